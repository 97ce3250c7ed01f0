package domain

import "time"

// ClassificationStatus enumerates document lifecycle milestones.
type ClassificationStatus string

const (
	StatusUnclassified ClassificationStatus = "unclassified"
	StatusAnalyzing    ClassificationStatus = "analyzing"
	StatusClassified   ClassificationStatus = "classified"
)

// Document is one submitted piece of medical evidence. Bytes live in
// external storage; SourceRef is an opaque handle to them.
type Document struct {
	ID           string
	OwnerID      string
	Title        string
	SourceRef    string
	DocumentDate *time.Time
	Status       ClassificationStatus

	// Extracted free text from the latest successful analysis.
	ExtractedText string

	// Denormalized primary fields for single-article display. They mirror
	// the highest-confidence link and are overwritten on every analysis.
	PrimaryArticle  string
	Category        string
	Confidence      int
	Explanation     string
	Recommendations []string

	// AnalysisVersion grows monotonically with every analysis run so that
	// a slow, stale run cannot overwrite a newer one's results.
	AnalysisVersion int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Article is one read-only entry of the statutory schedule.
type Article struct {
	ID       int64
	Number   string
	Title    string
	Category string
	Active   bool
}

// DocumentType is one read-only entry of the document-type catalog.
type DocumentType struct {
	ID   int64
	Code string
	Name string
}

// ArticleLink ties one document to one statutory article with the evidence
// the reasoning service produced for that pair. A document's link set is
// always replaced wholesale, never patched.
type ArticleLink struct {
	DocumentID      string
	ArticleID       int64
	ArticleNumber   string
	Category        string
	Confidence      int
	Explanation     string
	Recommendations []string

	// DocumentDate is denormalized from the owning document so that plan
	// synthesis can judge evidence staleness without a second lookup.
	DocumentDate *time.Time
}

// Assessment is a manually supplied confidence for a (person, article)
// pair. When present it overrides every document-derived confidence.
type Assessment struct {
	OwnerID       string
	ArticleNumber string
	Confidence    int
}

// ArticleScore is the derived three-way probability split for one article.
// It is recomputed on every read and never persisted.
type ArticleScore struct {
	Applies          int
	DoesNotApply     int
	InsufficientData int
	RelevantCount    int
}
