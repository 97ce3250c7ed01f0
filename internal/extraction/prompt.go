package extraction

import (
	"fmt"
	"strings"

	"medassess/internal/domain"
)

// InputKind distinguishes the two supported evidence representations.
type InputKind string

const (
	InputImage InputKind = "image"
	InputText  InputKind = "text"
)

// ReferenceSet carries the read-only catalogs grounding a prompt.
type ReferenceSet struct {
	Types    []domain.DocumentType
	Articles []domain.Article
}

// Request carries all parameters required to build one prompt.
type Request struct {
	DocumentID  string
	Text        string
	ImageBase64 string
	ImageMIME   string
	Refs        ReferenceSet
}

// PromptBuilder renders a task-specific prompt for one input kind.
type PromptBuilder interface {
	Kind() InputKind
	Build(req Request) string
}

// BuilderRegistry keeps a mapping from input kinds to prompt builders.
type BuilderRegistry struct {
	builders map[InputKind]PromptBuilder
}

// NewBuilderRegistry builds a registry preloaded with the default builders.
func NewBuilderRegistry() *BuilderRegistry {
	reg := &BuilderRegistry{builders: map[InputKind]PromptBuilder{}}
	reg.Register(ImagePromptBuilder{})
	reg.Register(TextPromptBuilder{})
	return reg
}

// Register adds or replaces a prompt builder.
func (r *BuilderRegistry) Register(builder PromptBuilder) {
	if r.builders == nil {
		r.builders = map[InputKind]PromptBuilder{}
	}
	r.builders[builder.Kind()] = builder
}

// Resolve returns a builder by kind or an error if it is absent.
func (r *BuilderRegistry) Resolve(kind InputKind) (PromptBuilder, error) {
	if builder, ok := r.builders[kind]; ok {
		return builder, nil
	}
	return nil, fmt.Errorf("no prompt builder registered for input kind %s", kind)
}

const responseContract = `Respond with a single JSON object only (no markdown, no commentary):
{
  "text": "full extracted text",
  "date": "document date as DD.MM.YYYY, or empty string if absent",
  "type_code": "one document type code from the catalog, or empty string",
  "suggested_title": "short human-readable document title",
  "articles": [
    {
      "number": "statutory article number from the catalog",
      "category": "fitness category letter for that article",
      "confidence": 0,
      "explanation": "why this article may apply",
      "recommendations": ["missing test, examination or consultation"]
    }
  ]
}
Rules:
- confidence is an integer 0-100: the chance this article is the operative one
- list every plausible article separately; an empty articles list is valid
- recommendations name concrete missing evidence, one item per string
- use only article numbers and type codes from the catalogs above`

// ImagePromptBuilder requests full OCR plus statutory classification.
type ImagePromptBuilder struct{}

// Kind identifies the builder inside the registry.
func (ImagePromptBuilder) Kind() InputKind { return InputImage }

// Build renders the OCR-and-classify prompt for a scanned document.
func (ImagePromptBuilder) Build(req Request) string {
	var sb strings.Builder

	sb.WriteString("You analyze scanned medical documents against a fixed statutory schedule of conditions.\n\n")
	writeCatalogs(&sb, req.Refs)
	sb.WriteString("Task:\n")
	sb.WriteString("1. Perform full OCR of the attached document image; keep the original language.\n")
	sb.WriteString("2. Determine the document type and its date.\n")
	sb.WriteString("3. Match the findings against the statutory articles and estimate, per article, the chance it applies.\n")
	sb.WriteString("4. For each matched article, list the missing tests, examinations or specialist consultations needed to confirm it.\n\n")
	sb.WriteString(responseContract)

	return sb.String()
}

// TextPromptBuilder requests a differential-diagnosis reasoning step before
// classification: free-text complaints cannot be OCR'd as evidence, so the
// service must first enumerate plausible diagnoses per complaint.
type TextPromptBuilder struct{}

// Kind identifies the builder inside the registry.
func (TextPromptBuilder) Kind() InputKind { return InputText }

// Build renders the differential-diagnosis prompt for questionnaire text.
func (TextPromptBuilder) Build(req Request) string {
	var sb strings.Builder

	sb.WriteString("You analyze a person's free-text health complaints against a fixed statutory schedule of conditions.\n\n")
	writeCatalogs(&sb, req.Refs)
	sb.WriteString("Stated complaints:\n")
	sb.WriteString(strings.TrimSpace(req.Text))
	sb.WriteString("\n\nTask:\n")
	sb.WriteString("1. For each stated complaint, enumerate the plausible diagnoses it may indicate.\n")
	sb.WriteString("2. For each plausible diagnosis, name the examinations needed to confirm or exclude it.\n")
	sb.WriteString("3. Match the plausible diagnoses against the statutory articles and estimate, per article, the chance it applies.\n")
	sb.WriteString("4. Attach the confirming examinations as that article's recommendations.\n\n")
	sb.WriteString(responseContract)

	return sb.String()
}

func writeCatalogs(sb *strings.Builder, refs ReferenceSet) {
	if len(refs.Types) > 0 {
		sb.WriteString("Document type catalog:\n")
		for _, t := range refs.Types {
			fmt.Fprintf(sb, "- %s: %s\n", t.Code, t.Name)
		}
		sb.WriteString("\n")
	}

	if len(refs.Articles) > 0 {
		sb.WriteString("Statutory article catalog:\n")
		for _, a := range refs.Articles {
			if !a.Active {
				continue
			}
			fmt.Fprintf(sb, "- %s: %s\n", a.Number, a.Title)
		}
		sb.WriteString("\n")
	}
}
