package assessment

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"medassess/internal/domain"
)

// Bucket is one fixed action category for recommendation strings.
type Bucket int

const (
	BucketLab Bucket = iota
	BucketImaging
	BucketCardiac
	BucketConsult
	BucketInpatient
	BucketDocs
	BucketRepeat
	BucketOther
	bucketCount
)

// freshnessMonths is the evidence freshness window: a bucket whose oldest
// contributing document is older than this renders in its stale form.
const freshnessMonths = 6

// dedupPrefixRunes is the shared-prefix length treated as a near-duplicate.
const dedupPrefixRunes = 30

// bucketRule routes a recommendation string into a bucket. Substrings match
// anywhere; words match whole letter-runs only (for short tokens that would
// otherwise fire inside unrelated words). Rules are evaluated in order and
// the first match wins.
type bucketRule struct {
	bucket     Bucket
	substrings []string
	words      []string
}

var bucketRules = []bucketRule{
	{
		bucket: BucketLab,
		substrings: []string{
			"анализ", "биохим", "гормон", "посев", "мазок", "глюкоз",
			"коагулогр", "гемоглобин", "холестерин",
		},
		words: []string{"оак", "оам", "кровь", "крови", "моча", "мочи"},
	},
	{
		bucket: BucketImaging,
		substrings: []string{
			"мрт", "томограф", "рентген", "ультразвук", "флюорограф",
			"эхокг", "эхо-кг", "маммограф", "денситометр", "ангиограф",
			"сцинтиграф", "эндоскоп", "гастроскоп", "колоноскоп", "снимок",
		},
		words: []string{"кт", "мскт", "узи", "ээг", "фгдс"},
	},
	{
		bucket: BucketCardiac,
		substrings: []string{
			"электрокардиогр", "холтер", "мониторирование ритма",
			"суточное мониторирование",
		},
		words: []string{"экг"},
	},
	{
		bucket: BucketConsult,
		substrings: []string{
			"консультац", "осмотр врача", "невролог", "нейрохирург",
			"кардиолог", "психиатр", "психотерапевт", "офтальмолог",
			"окулист", "оториноларинголог", "отоларинголог", "хирург",
			"терапевт", "эндокринолог", "дерматолог", "уролог",
			"гастроэнтеролог", "пульмонолог", "ревматолог", "травматолог",
			"ортопед", "онколог", "нефролог", "гематолог", "инфекционист",
			"гинеколог",
		},
		words: []string{"лор"},
	},
	{
		bucket:     BucketInpatient,
		substrings: []string{"стационар", "госпитализац"},
	},
	{
		bucket:     BucketDocs,
		substrings: []string{"справк", "выписк", "документ", "амбулаторн", "медицинскую карту", "заключени"},
	},
	{
		bucket:     BucketRepeat,
		substrings: []string{"повторн", "обновить", "пересдать", "переделать", "заново", "актуализир"},
	},
}

// ClassifyRecommendation routes one recommendation string into its bucket.
func ClassifyRecommendation(text string) Bucket {
	lower := strings.ToLower(text)
	for _, rule := range bucketRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.bucket
			}
		}
		for _, word := range rule.words {
			if containsWord(lower, word) {
				return rule.bucket
			}
		}
	}
	return BucketOther
}

// containsWord matches a whole letter-run, so "кт" does not fire inside
// "пункт".
func containsWord(lower, word string) bool {
	for _, token := range splitLetterRuns(lower) {
		if token == word {
			return true
		}
	}
	return false
}

func splitLetterRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TimedRecommendation is one flattened recommendation string tagged with
// its source document's evidence date (nil when unknown).
type TimedRecommendation struct {
	Text string
	Date *time.Time
}

// Flatten expands every link's recommendation list, tagging each string
// with the owning document's date.
func Flatten(links []domain.ArticleLink) []TimedRecommendation {
	var out []TimedRecommendation
	for _, link := range links {
		for _, rec := range link.Recommendations {
			rec = strings.TrimSpace(rec)
			if rec == "" {
				continue
			}
			out = append(out, TimedRecommendation{Text: rec, Date: link.DocumentDate})
		}
	}
	return out
}

// PlanSection is one labeled group of action items.
type PlanSection struct {
	Title string
	Items []string
}

// Plan is the synthesized, deduplicated action plan for one article.
type Plan struct {
	Sections []PlanSection
	Advisory string
}

// Render prints the plan as sequentially numbered, labeled sections.
func (p Plan) Render() string {
	var sb strings.Builder
	number := 0
	for _, section := range p.Sections {
		if len(section.Items) == 0 {
			continue
		}
		number++
		fmt.Fprintf(&sb, "%d. %s:\n", number, section.Title)
		for _, item := range section.Items {
			fmt.Fprintf(&sb, "   - %s\n", item)
		}
	}
	if p.Advisory != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Advisory)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// bucketState accumulates one bucket's deduplicated strings and the oldest
// contributing evidence date.
type bucketState struct {
	kept   []string
	oldest *time.Time
}

func (b *bucketState) add(rec TimedRecommendation) {
	lower := strings.ToLower(rec.Text)
	for _, existing := range b.kept {
		if nearDuplicate(strings.ToLower(existing), lower) {
			b.trackDate(rec.Date)
			return
		}
	}
	b.kept = append(b.kept, rec.Text)
	b.trackDate(rec.Date)
}

func (b *bucketState) trackDate(date *time.Time) {
	if date == nil {
		return
	}
	if b.oldest == nil || date.Before(*b.oldest) {
		b.oldest = date
	}
}

// nearDuplicate reports whether two lowercased strings share a prefix of at
// least dedupPrefixRunes runes, or are equal outright. A cheap similarity
// heuristic, not exact-match dedup.
func nearDuplicate(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	n := 0
	for n < len(ra) && n < len(rb) && ra[n] == rb[n] {
		n++
	}
	return n >= dedupPrefixRunes
}

// staleMonths returns how many whole months ago the bucket's oldest
// evidence is, and whether that exceeds the freshness window.
func (b *bucketState) staleMonths(now time.Time) (int, bool) {
	if b.oldest == nil {
		return 0, false
	}
	months := monthsBetween(*b.oldest, now)
	return months, months > freshnessMonths
}

func monthsBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// BuildPlan classifies, deduplicates and renders all recommendations for
// one article into a sectioned action plan. Pure and deterministic; safe to
// recompute on every read.
func BuildPlan(recs []TimedRecommendation, now time.Time) Plan {
	var buckets [bucketCount]bucketState
	staleCount := 0
	for _, rec := range recs {
		buckets[ClassifyRecommendation(rec.Text)].add(rec)
		if rec.Date != nil && monthsBetween(*rec.Date, now) > freshnessMonths {
			staleCount++
		}
	}

	analyses := bucketLines(&buckets[BucketLab], now, labSentence)

	var examinations []string
	examinations = append(examinations, bucketLines(&buckets[BucketImaging], now, imagingSentence)...)
	examinations = append(examinations, bucketLines(&buckets[BucketCardiac], now, cardiacSentence)...)
	examinations = append(examinations, bucketLines(&buckets[BucketInpatient], now, inpatientSentence)...)
	examinations = append(examinations, bucketLines(&buckets[BucketDocs], now, docsSentence)...)
	examinations = append(examinations, buckets[BucketRepeat].kept...)
	examinations = append(examinations, buckets[BucketOther].kept...)

	consultations := bucketLines(&buckets[BucketConsult], now, consultSentence)

	plan := Plan{
		Sections: []PlanSection{
			{Title: "Анализы", Items: analyses},
			{Title: "Обследования", Items: examinations},
			{Title: "Консультации", Items: consultations},
		},
	}

	if len(recs) > 0 && staleCount*2 > len(recs) {
		plan.Advisory = "Большинство документов старше 6 месяцев — рекомендуется обновить данные обследований."
	}

	return plan
}

// SynthesizePlan is the link-level entry point: flatten, classify, render.
func SynthesizePlan(links []domain.ArticleLink, now time.Time) string {
	return BuildPlan(Flatten(links), now).Render()
}

type sentenceFunc func(kept []string, months int, stale bool) string

func bucketLines(state *bucketState, now time.Time, sentence sentenceFunc) []string {
	if len(state.kept) == 0 {
		return nil
	}
	months, stale := state.staleMonths(now)
	return []string{sentence(state.kept, months, stale)}
}

func labSentence(_ []string, months int, stale bool) string {
	if stale {
		return fmt.Sprintf("Обновить анализы крови и мочи — последние данные %d мес. назад.", months)
	}
	return "Сдать анализы крови и мочи."
}

func imagingSentence(kept []string, months int, stale bool) string {
	modalities := extractModalities(kept)
	if stale {
		if len(modalities) > 0 {
			return fmt.Sprintf("Обновить инструментальные исследования (%s) — последние данные %d мес. назад.",
				strings.Join(modalities, ", "), months)
		}
		return fmt.Sprintf("Обновить инструментальные исследования — последние данные %d мес. назад.", months)
	}
	if len(modalities) > 0 {
		return fmt.Sprintf("Пройти инструментальные исследования: %s.", strings.Join(modalities, ", "))
	}
	return "Пройти инструментальные исследования по направлению врача."
}

func cardiacSentence(_ []string, months int, stale bool) string {
	if stale {
		return fmt.Sprintf("Обновить ЭКГ и данные мониторирования ритма — последние данные %d мес. назад.", months)
	}
	return "Выполнить ЭКГ и суточное мониторирование сердечного ритма."
}

func inpatientSentence(_ []string, months int, stale bool) string {
	if stale {
		return fmt.Sprintf("Повторить обследование в условиях стационара — последние данные %d мес. назад.", months)
	}
	return "Пройти обследование в условиях стационара."
}

func docsSentence(_ []string, months int, stale bool) string {
	if stale {
		return fmt.Sprintf("Обновить медицинскую документацию — последние данные %d мес. назад.", months)
	}
	return "Собрать медицинскую документацию: справки, выписки, амбулаторную карту."
}

func consultSentence(kept []string, months int, stale bool) string {
	names := extractSpecialties(kept)
	if stale {
		if len(names) > 0 {
			return fmt.Sprintf("Обновить заключения специалистов (%s) — последние данные %d мес. назад.",
				strings.Join(names, ", "), months)
		}
		return fmt.Sprintf("Обновить заключения профильных специалистов — последние данные %d мес. назад.", months)
	}
	if len(names) > 0 {
		return fmt.Sprintf("Получить консультации специалистов: %s.", strings.Join(names, ", "))
	}
	return "Получить консультацию профильного специалиста."
}

// modalityNames maps imaging keywords to display labels; word entries are
// matched as whole letter-runs.
var modalityNames = []struct {
	keyword string
	word    bool
	label   string
}{
	{keyword: "мрт", label: "МРТ"},
	{keyword: "кт", word: true, label: "КТ"},
	{keyword: "мскт", word: true, label: "КТ"},
	{keyword: "узи", word: true, label: "УЗИ"},
	{keyword: "ультразвук", label: "УЗИ"},
	{keyword: "рентген", label: "рентгенографию"},
	{keyword: "эхокг", label: "ЭхоКГ"},
	{keyword: "эхо-кг", label: "ЭхоКГ"},
	{keyword: "флюорограф", label: "флюорографию"},
	{keyword: "ээг", word: true, label: "ЭЭГ"},
	{keyword: "фгдс", word: true, label: "ФГДС"},
}

func extractModalities(kept []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, text := range kept {
		lower := strings.ToLower(text)
		for _, m := range modalityNames {
			matched := false
			if m.word {
				matched = containsWord(lower, m.keyword)
			} else {
				matched = strings.Contains(lower, m.keyword)
			}
			if matched && !seen[m.label] {
				seen[m.label] = true
				out = append(out, m.label)
			}
		}
	}
	return out
}

// specialtyNames maps specialist keywords (matching declined forms via
// substring) to canonical specialty names.
var specialtyNames = []struct {
	keyword string
	name    string
}{
	{"нейрохирург", "нейрохирург"},
	{"невролог", "невролог"},
	{"кардиолог", "кардиолог"},
	{"психиатр", "психиатр"},
	{"психотерапевт", "психотерапевт"},
	{"офтальмолог", "офтальмолог"},
	{"окулист", "офтальмолог"},
	{"оториноларинголог", "оториноларинголог"},
	{"отоларинголог", "оториноларинголог"},
	{"эндокринолог", "эндокринолог"},
	{"дерматолог", "дерматолог"},
	{"гастроэнтеролог", "гастроэнтеролог"},
	{"пульмонолог", "пульмонолог"},
	{"ревматолог", "ревматолог"},
	{"травматолог", "травматолог"},
	{"ортопед", "ортопед"},
	{"онколог", "онколог"},
	{"нефролог", "нефролог"},
	{"гематолог", "гематолог"},
	{"инфекционист", "инфекционист"},
	{"гинеколог", "гинеколог"},
	{"уролог", "уролог"},
	{"хирург", "хирург"},
	{"терапевт", "терапевт"},
}

func extractSpecialties(kept []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, text := range kept {
		lower := strings.ToLower(text)
		if containsWord(lower, "лор") && !seen["оториноларинголог"] {
			seen["оториноларинголог"] = true
			out = append(out, "оториноларинголог")
		}
		for _, s := range specialtyNames {
			if !strings.Contains(lower, s.keyword) {
				continue
			}
			// Guard generic names embedded in more specific ones.
			if s.keyword == "хирург" && strings.Contains(lower, "нейрохирург") {
				continue
			}
			if s.keyword == "терапевт" && strings.Contains(lower, "психотерапевт") {
				continue
			}
			if !seen[s.name] {
				seen[s.name] = true
				out = append(out, s.name)
			}
		}
	}
	return out
}
