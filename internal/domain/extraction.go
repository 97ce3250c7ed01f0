package domain

import "time"

// ExtractedLink is one article linkage proposed by the reasoning service,
// already resolved against the statutory catalog.
type ExtractedLink struct {
	ArticleID       int64
	ArticleNumber   string
	Category        string
	Confidence      int
	Explanation     string
	Recommendations []string
}

// ExtractionResult is the validated output of one analysis run.
type ExtractionResult struct {
	ExtractedText    string
	DocumentDate     *time.Time
	DocumentTypeCode string
	Links            []ExtractedLink

	// Primary fields mirror the highest-confidence link for
	// backward-compatible single-article display.
	PrimaryArticleNumber string
	Category             string
	Confidence           int
	Explanation          string
	Recommendations      []string
	SuggestedTitle       string
}

// AnalysisSummary is the notification payload describing one completed
// analysis run.
type AnalysisSummary struct {
	DocumentID      string
	Title           string
	ArticleNumber   string
	Category        string
	Confidence      int
	Recommendations []string
}

// PrimaryFromLinks fills the denormalized primary fields from the
// highest-confidence link, leaving them zero when no link exists.
func (r *ExtractionResult) PrimaryFromLinks() {
	best := -1
	for i, link := range r.Links {
		if best < 0 || link.Confidence > r.Links[best].Confidence {
			best = i
		}
	}
	if best < 0 {
		if r.Recommendations == nil {
			r.Recommendations = []string{}
		}
		return
	}

	link := r.Links[best]
	r.PrimaryArticleNumber = link.ArticleNumber
	r.Category = link.Category
	r.Confidence = link.Confidence
	r.Explanation = link.Explanation
	r.Recommendations = append([]string{}, link.Recommendations...)
}
