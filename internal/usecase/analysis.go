package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medassess/internal/assessment"
	"medassess/internal/domain"
	"medassess/internal/extraction"
	"medassess/internal/ports"
)

// ServiceDeps wires all driven adapters into the analysis service.
type ServiceDeps struct {
	Orchestrator *extraction.Orchestrator
	References   ports.ReferenceProvider
	Documents    ports.DocumentRepository
	Links        ports.LinkRepository
	Assessments  ports.AssessmentRepository
	Notifier     ports.Notifier
	Logger       *slog.Logger
	Now          func() time.Time
}

// Service implements the evidence analysis workflow: extraction,
// normalization, link replacement, and the read-side aggregation.
type Service struct {
	orchestrator *extraction.Orchestrator
	references   ports.ReferenceProvider
	documents    ports.DocumentRepository
	links        ports.LinkRepository
	assessments  ports.AssessmentRepository
	notifier     ports.Notifier
	logger       *slog.Logger
	now          func() time.Time
}

// NewService constructs the orchestration component.
func NewService(deps ServiceDeps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		orchestrator: deps.Orchestrator,
		references:   deps.References,
		documents:    deps.Documents,
		links:        deps.Links,
		assessments:  deps.Assessments,
		notifier:     deps.Notifier,
		logger:       deps.Logger,
		now:          now,
	}
}

// AnalyzeImage runs one full analysis of a base64 image payload: extract,
// normalize, replace the document's link set, store the primary fields.
func (s *Service) AnalyzeImage(ctx context.Context, documentID, imageBase64, imageMIME string) (domain.ExtractionResult, error) {
	return s.analyze(ctx, documentID, func(refs extraction.ReferenceSet) (string, error) {
		return s.orchestrator.ExtractImage(ctx, documentID, imageBase64, imageMIME, refs)
	})
}

// AnalyzeText runs one full analysis of free-form text such as
// questionnaire answers.
func (s *Service) AnalyzeText(ctx context.Context, documentID, text string) (domain.ExtractionResult, error) {
	return s.analyze(ctx, documentID, func(refs extraction.ReferenceSet) (string, error) {
		return s.orchestrator.ExtractText(ctx, documentID, text, refs)
	})
}

func (s *Service) analyze(ctx context.Context, documentID string, invoke func(extraction.ReferenceSet) (string, error)) (domain.ExtractionResult, error) {
	refs, err := s.loadReferences(ctx)
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("load reference catalogs: %w", err)
	}

	version, err := s.documents.MarkAnalyzing(ctx, documentID)
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("mark analyzing: %w", err)
	}

	raw, err := invoke(refs)
	if err != nil {
		// A failed extraction leaves the document re-analyzable.
		if revertErr := s.documents.RevertAnalyzing(ctx, documentID, version); revertErr != nil {
			s.warn("revert after failed extraction", "document", documentID, "error", revertErr)
		}
		return domain.ExtractionResult{}, err
	}

	result := extraction.NewNormalizer(refs, s.logger).Normalize(raw)
	links := toLinks(documentID, result)

	if err := s.links.ReplaceLinks(ctx, documentID, version, links); err != nil {
		if errors.Is(err, ports.ErrStaleRun) {
			s.debug("links superseded by newer run", "document", documentID, "version", version)
			return result, nil
		}
		if revertErr := s.documents.RevertAnalyzing(ctx, documentID, version); revertErr != nil {
			s.warn("revert after failed persist", "document", documentID, "error", revertErr)
		}
		return domain.ExtractionResult{}, fmt.Errorf("replace links: %w", err)
	}

	if err := s.documents.FinishAnalysis(ctx, documentID, version, result); err != nil {
		if errors.Is(err, ports.ErrStaleRun) {
			s.debug("analysis superseded by newer run", "document", documentID, "version", version)
			return result, nil
		}
		return domain.ExtractionResult{}, fmt.Errorf("finish analysis: %w", err)
	}

	s.notify(ctx, documentID, result)
	return result, nil
}

func toLinks(documentID string, result domain.ExtractionResult) []domain.ArticleLink {
	links := make([]domain.ArticleLink, 0, len(result.Links))
	for _, extracted := range result.Links {
		links = append(links, domain.ArticleLink{
			DocumentID:      documentID,
			ArticleID:       extracted.ArticleID,
			ArticleNumber:   extracted.ArticleNumber,
			Category:        extracted.Category,
			Confidence:      extracted.Confidence,
			Explanation:     extracted.Explanation,
			Recommendations: extracted.Recommendations,
			DocumentDate:    result.DocumentDate,
		})
	}
	return links
}

func (s *Service) loadReferences(ctx context.Context) (extraction.ReferenceSet, error) {
	types, err := s.references.DocumentTypes(ctx)
	if err != nil {
		return extraction.ReferenceSet{}, fmt.Errorf("document types: %w", err)
	}
	articles, err := s.references.Articles(ctx)
	if err != nil {
		return extraction.ReferenceSet{}, fmt.Errorf("articles: %w", err)
	}
	return extraction.ReferenceSet{Types: types, Articles: articles}, nil
}

// SubmitDocument registers a new unclassified document whose bytes live in
// external storage; SourceRef is the opaque handle to them.
func (s *Service) SubmitDocument(ctx context.Context, ownerID, title, sourceRef string) (domain.Document, error) {
	doc, err := s.documents.Create(ctx, domain.Document{
		OwnerID:   ownerID,
		Title:     title,
		SourceRef: sourceRef,
	})
	if err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// SubmitText registers a questionnaire-style text submission; the stored
// text keeps the document analyzable by the pending worker.
func (s *Service) SubmitText(ctx context.Context, ownerID, title, text string) (domain.Document, error) {
	doc, err := s.documents.Create(ctx, domain.Document{
		OwnerID:       ownerID,
		Title:         title,
		ExtractedText: text,
	})
	if err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// ScoreArticle aggregates all of one owner's links for an article into the
// three-way split, honoring a manual assessment override.
func (s *Service) ScoreArticle(ctx context.Context, ownerID, articleNumber string) (domain.ArticleScore, error) {
	links, err := s.links.LinksForArticle(ctx, ownerID, articleNumber)
	if err != nil {
		return domain.ArticleScore{}, fmt.Errorf("links for article %s: %w", articleNumber, err)
	}

	var override *domain.Assessment
	if s.assessments != nil {
		override, err = s.assessments.AssessmentFor(ctx, ownerID, articleNumber)
		if err != nil {
			return domain.ArticleScore{}, fmt.Errorf("assessment for article %s: %w", articleNumber, err)
		}
	}

	return assessment.Score(links, override), nil
}

// ActionPlan synthesizes the deduplicated, categorized plan of missing
// evidence for one article.
func (s *Service) ActionPlan(ctx context.Context, ownerID, articleNumber string) (string, error) {
	links, err := s.links.LinksForArticle(ctx, ownerID, articleNumber)
	if err != nil {
		return "", fmt.Errorf("links for article %s: %w", articleNumber, err)
	}
	return assessment.SynthesizePlan(links, s.now()), nil
}

// ProcessPending analyzes documents still awaiting classification. Only
// text-carrying documents can be re-analyzed here: image bytes live in
// external storage and arrive only as caller-prepared payloads.
func (s *Service) ProcessPending(ctx context.Context, limit int) error {
	pending, err := s.documents.Pending(ctx, limit)
	if err != nil {
		return fmt.Errorf("load pending documents: %w", err)
	}

	for _, doc := range pending {
		if doc.ExtractedText == "" {
			s.debug("skipping pending document without text", "document", doc.ID)
			continue
		}
		if _, err := s.AnalyzeText(ctx, doc.ID, doc.ExtractedText); err != nil {
			s.warn("pending analysis failed",
				"document", doc.ID, "kind", string(extraction.KindOf(err)), "error", err)
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, documentID string, result domain.ExtractionResult) {
	if s.notifier == nil {
		return
	}
	summary := domain.AnalysisSummary{
		DocumentID:      documentID,
		Title:           result.SuggestedTitle,
		ArticleNumber:   result.PrimaryArticleNumber,
		Category:        result.Category,
		Confidence:      result.Confidence,
		Recommendations: result.Recommendations,
	}
	if err := s.notifier.PublishAnalysis(ctx, summary); err != nil {
		s.warn("publish analysis summary", "document", documentID, "error", err)
	}
}

func (s *Service) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Service) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
