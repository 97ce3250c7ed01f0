package extraction

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"medassess/internal/domain"
)

// Date formats accepted from the reasoning service; anything else is
// treated as absent rather than guessed.
var dateLayouts = []string{"02.01.2006", "02/01/2006", "2006-01-02"}

const (
	defaultExplanation    = "Не удалось автоматически распознать документ."
	defaultRecommendation = "Загрузите более чёткую копию документа (скан или фото)."
)

// Normalizer turns the reasoning service's raw textual response into a
// validated ExtractionResult. It treats the response as an untrusted,
// partially structured source: every field is coerced independently, and a
// malformed response yields a safe default record instead of an error.
type Normalizer struct {
	refs   ReferenceSet
	logger *slog.Logger
}

// NewNormalizer binds the reference catalogs used to resolve type codes and
// article numbers.
func NewNormalizer(refs ReferenceSet, logger *slog.Logger) *Normalizer {
	return &Normalizer{refs: refs, logger: logger}
}

// flexInt tolerates numeric fields arriving as numbers, floats or strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt(v)
	} else {
		*f = 0
	}
	return nil
}

type rawLink struct {
	Number          string   `json:"number"`
	Category        string   `json:"category"`
	Confidence      flexInt  `json:"confidence"`
	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations"`
}

type rawResult struct {
	Text           string    `json:"text"`
	Date           string    `json:"date"`
	TypeCode       string    `json:"type_code"`
	SuggestedTitle string    `json:"suggested_title"`
	Articles       []rawLink `json:"articles"`
}

// Normalize parses, validates and resolves one raw response. It never
// returns an error: unparseable responses become the default record.
func (n *Normalizer) Normalize(raw string) domain.ExtractionResult {
	parsed, ok := n.parse(raw)
	if !ok {
		return n.defaultRecord()
	}

	result := domain.ExtractionResult{
		ExtractedText:    strings.TrimSpace(parsed.Text),
		DocumentDate:     parseDate(parsed.Date),
		DocumentTypeCode: n.resolveType(parsed.TypeCode),
		SuggestedTitle:   strings.TrimSpace(parsed.SuggestedTitle),
	}

	// A document links each article at most once; when the service repeats
	// an article, the highest-confidence entry wins.
	byNumber := map[string]int{}
	for _, link := range parsed.Articles {
		article, ok := n.resolveArticle(link.Number)
		if !ok {
			n.warn("dropping link to unknown article", "number", link.Number)
			continue
		}

		recs := link.Recommendations
		if recs == nil {
			recs = []string{}
		}

		candidate := domain.ExtractedLink{
			ArticleID:       article.ID,
			ArticleNumber:   article.Number,
			Category:        strings.TrimSpace(link.Category),
			Confidence:      clampConfidence(int(link.Confidence)),
			Explanation:     strings.TrimSpace(link.Explanation),
			Recommendations: recs,
		}

		if idx, seen := byNumber[article.Number]; seen {
			n.warn("duplicate article in response", "number", article.Number)
			if candidate.Confidence > result.Links[idx].Confidence {
				result.Links[idx] = candidate
			}
			continue
		}
		byNumber[article.Number] = len(result.Links)
		result.Links = append(result.Links, candidate)
	}

	result.PrimaryFromLinks()
	return result
}

func (n *Normalizer) parse(raw string) (rawResult, bool) {
	cleaned := stripFences(raw)

	var parsed rawResult
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		return parsed, true
	}

	span, ok := firstBalancedObject(cleaned)
	if !ok {
		n.warn("response carries no parseable JSON object")
		return rawResult{}, false
	}
	if err := json.Unmarshal([]byte(span), &parsed); err != nil {
		n.warn("embedded JSON object is malformed", "error", err)
		return rawResult{}, false
	}
	return parsed, true
}

func (n *Normalizer) defaultRecord() domain.ExtractionResult {
	return domain.ExtractionResult{
		Links:           []domain.ExtractedLink{},
		Confidence:      0,
		Explanation:     defaultExplanation,
		Recommendations: []string{defaultRecommendation},
	}
}

// resolveType matches a returned code against the type catalog; unmatched
// codes leave the type unset.
func (n *Normalizer) resolveType(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for _, t := range n.refs.Types {
		if t.Code == code {
			return t.Code
		}
	}
	n.warn("unknown document type code", "code", code)
	return ""
}

func (n *Normalizer) resolveArticle(number string) (domain.Article, bool) {
	number = strings.TrimSpace(number)
	for _, a := range n.refs.Articles {
		if a.Number == number {
			return a, true
		}
	}
	return domain.Article{}, false
}

func (n *Normalizer) warn(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Warn(msg, args...)
	}
}

// stripFences removes markdown code fences the service sometimes wraps
// around its JSON.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// firstBalancedObject locates the first balanced {...} span, skipping
// braces inside JSON string literals.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed
		}
	}
	return nil
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
