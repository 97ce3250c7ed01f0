package ports

import (
	"context"
	"errors"
	"time"

	"medassess/internal/domain"
)

// ErrStaleRun marks a write from an analysis run that a newer run has
// already superseded. Callers log and ignore it; the newer run's results
// stand.
var ErrStaleRun = errors.New("analysis run superseded by a newer one")

// ReasoningRequest carries one prompt for the external reasoning service.
// ImageBase64 is empty for text-only requests.
type ReasoningRequest struct {
	Prompt      string
	ImageBase64 string
	ImageMIME   string
}

// ReasoningClient invokes the external reasoning service and returns the
// raw textual response. Implementations classify transport failures into
// the extraction failure taxonomy.
type ReasoningClient interface {
	Complete(ctx context.Context, req ReasoningRequest) (string, error)
}

// DocumentRepository persists documents and their lifecycle transitions.
type DocumentRepository interface {
	Create(ctx context.Context, doc domain.Document) (domain.Document, error)
	Get(ctx context.Context, id string) (domain.Document, error)
	// Pending returns documents still awaiting classification.
	Pending(ctx context.Context, limit int) ([]domain.Document, error)
	// MarkAnalyzing flips the document to analyzing and returns the new
	// monotonic analysis version owned by this run.
	MarkAnalyzing(ctx context.Context, id string) (int64, error)
	// FinishAnalysis stores the denormalized result and flips the document
	// to classified, unless a newer run already took over.
	FinishAnalysis(ctx context.Context, id string, version int64, res domain.ExtractionResult) error
	// RevertAnalyzing returns a failed run's document to unclassified so it
	// stays re-analyzable.
	RevertAnalyzing(ctx context.Context, id string, version int64) error
}

// LinkRepository is the evidence link store.
type LinkRepository interface {
	// ReplaceLinks deletes all links for the document and inserts the new
	// set in one transaction. Writes from runs older than the document's
	// current analysis version are ignored.
	ReplaceLinks(ctx context.Context, documentID string, version int64, links []domain.ArticleLink) error
	LinksForArticle(ctx context.Context, ownerID, articleNumber string) ([]domain.ArticleLink, error)
	LinksForDocument(ctx context.Context, documentID string) ([]domain.ArticleLink, error)
}

// AssessmentRepository reads manual override confidences.
type AssessmentRepository interface {
	AssessmentFor(ctx context.Context, ownerID, articleNumber string) (*domain.Assessment, error)
}

// ReferenceProvider supplies the read-only catalogs grounding the prompt
// and validating the reasoning service's output.
type ReferenceProvider interface {
	DocumentTypes(ctx context.Context) ([]domain.DocumentType, error)
	Articles(ctx context.Context) ([]domain.Article, error)
}

// Notifier streams analysis summaries to Telegram or other channels.
type Notifier interface {
	PublishAnalysis(ctx context.Context, summary domain.AnalysisSummary) error
}

// Scheduler controls when the pending-document worker executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
