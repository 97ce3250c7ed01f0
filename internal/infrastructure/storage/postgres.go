package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"medassess/internal/domain"
	"medassess/internal/ports"
)

//go:embed schema.sql
var schema string

// Repository persists documents, links, assessments and the reference
// catalogs in Postgres.
type Repository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

var (
	_ ports.DocumentRepository   = (*Repository)(nil)
	_ ports.LinkRepository       = (*Repository)(nil)
	_ ports.AssessmentRepository = (*Repository)(nil)
	_ ports.ReferenceProvider    = (*Repository)(nil)
)

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// New wires a sql.DB implementation.
func New(db *sql.DB, logger *slog.Logger) *Repository {
	return &Repository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  logger,
	}
}

// EnsureSchema creates all tables when they are absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Create inserts a fresh, unclassified document.
func (r *Repository) Create(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.Status = domain.StatusUnclassified
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	query, args, err := r.builder.
		Insert("documents").
		Columns("id", "owner_id", "title", "source_ref", "document_date", "status", "extracted_text", "created_at", "updated_at").
		Values(doc.ID, doc.OwnerID, doc.Title, doc.SourceRef, doc.DocumentDate, doc.Status, doc.ExtractedText, doc.CreatedAt, doc.UpdatedAt).
		ToSql()
	if err != nil {
		return domain.Document{}, fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

const documentColumns = `id, owner_id, title, source_ref, document_date, status, extracted_text,
	primary_article, category, confidence, explanation, recommendations, analysis_version, created_at, updated_at`

// Get loads one document by identifier.
func (r *Repository) Get(ctx context.Context, id string) (domain.Document, error) {
	query, args, err := r.builder.
		Select(documentColumns).
		From("documents").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Document{}, fmt.Errorf("build select: %w", err)
	}

	row := r.db.QueryRowContext(ctx, query, args...)
	doc, err := scanDocument(row)
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// Pending returns documents still awaiting classification, oldest first.
func (r *Repository) Pending(ctx context.Context, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := r.builder.
		Select(documentColumns).
		From("documents").
		Where(sq.Eq{"status": domain.StatusUnclassified}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return docs, nil
}

// MarkAnalyzing flips the document to analyzing and claims a new monotonic
// analysis version for this run.
func (r *Repository) MarkAnalyzing(ctx context.Context, id string) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE documents
		 SET status = $1, analysis_version = analysis_version + 1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING analysis_version`,
		domain.StatusAnalyzing, id,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("mark analyzing %s: %w", id, err)
	}
	return version, nil
}

// FinishAnalysis stores the denormalized extraction result and flips the
// document to classified, unless a newer run already claimed the document.
func (r *Repository) FinishAnalysis(ctx context.Context, id string, version int64, res domain.ExtractionResult) error {
	recs := res.Recommendations
	if recs == nil {
		recs = []string{}
	}

	update := r.builder.
		Update("documents").
		Set("status", domain.StatusClassified).
		Set("extracted_text", res.ExtractedText).
		Set("primary_article", res.PrimaryArticleNumber).
		Set("category", res.Category).
		Set("confidence", res.Confidence).
		Set("explanation", res.Explanation).
		Set("recommendations", pq.Array(recs)).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "analysis_version": version})
	if res.DocumentDate != nil {
		update = update.Set("document_date", *res.DocumentDate)
	}
	if res.SuggestedTitle != "" {
		update = update.Set("title", res.SuggestedTitle)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish analysis %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish analysis %s: %w", id, err)
	}
	if affected == 0 {
		return ports.ErrStaleRun
	}
	return nil
}

// RevertAnalyzing returns a failed run's document to unclassified so it
// stays re-analyzable; a newer run's claim is left untouched.
func (r *Repository) RevertAnalyzing(ctx context.Context, id string, version int64) error {
	query, args, err := r.builder.
		Update("documents").
		Set("status", domain.StatusUnclassified).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "analysis_version": version, "status": domain.StatusAnalyzing}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("revert analyzing %s: %w", id, err)
	}
	return nil
}

// ReplaceLinks deletes all links for the document and inserts the new set
// in one transaction. Writes from superseded runs are rejected with
// ErrStaleRun so an older, slower analysis cannot overwrite a newer one.
func (r *Repository) ReplaceLinks(ctx context.Context, documentID string, version int64, links []domain.ArticleLink) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT analysis_version FROM documents WHERE id = $1 FOR UPDATE`, documentID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("lock document %s: %w", documentID, err)
	}
	if current != version {
		r.warn("ignoring links from superseded run",
			"document", documentID, "run_version", version, "current_version", current)
		return ports.ErrStaleRun
	}

	deleteQuery, deleteArgs, err := r.builder.
		Delete("document_articles").
		Where(sq.Eq{"document_id": documentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return fmt.Errorf("delete links %s: %w", documentID, err)
	}

	if len(links) > 0 {
		insert := r.builder.
			Insert("document_articles").
			Columns("document_id", "article_id", "article_number", "category", "confidence", "explanation", "recommendations")
		for _, link := range links {
			recs := link.Recommendations
			if recs == nil {
				recs = []string{}
			}
			insert = insert.Values(documentID, link.ArticleID, link.ArticleNumber,
				link.Category, link.Confidence, link.Explanation, pq.Array(recs))
		}
		insertQuery, insertArgs, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return fmt.Errorf("insert links %s: %w", documentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit links %s: %w", documentID, err)
	}
	return nil
}

const linkColumns = `da.document_id, da.article_id, da.article_number, da.category,
	da.confidence, da.explanation, da.recommendations, d.document_date`

// LinksForArticle returns all links to one article across every document of
// the given owner.
func (r *Repository) LinksForArticle(ctx context.Context, ownerID, articleNumber string) ([]domain.ArticleLink, error) {
	query, args, err := r.builder.
		Select(linkColumns).
		From("document_articles da").
		Join("documents d ON d.id = da.document_id").
		Where(sq.Eq{"d.owner_id": ownerID, "da.article_number": articleNumber}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return r.queryLinks(ctx, query, args)
}

// LinksForDocument returns the current link set of one document.
func (r *Repository) LinksForDocument(ctx context.Context, documentID string) ([]domain.ArticleLink, error) {
	query, args, err := r.builder.
		Select(linkColumns).
		From("document_articles da").
		Join("documents d ON d.id = da.document_id").
		Where(sq.Eq{"da.document_id": documentID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return r.queryLinks(ctx, query, args)
}

func (r *Repository) queryLinks(ctx context.Context, query string, args []interface{}) ([]domain.ArticleLink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var links []domain.ArticleLink
	for rows.Next() {
		var link domain.ArticleLink
		var recs pq.StringArray
		var date sql.NullTime
		if err := rows.Scan(&link.DocumentID, &link.ArticleID, &link.ArticleNumber,
			&link.Category, &link.Confidence, &link.Explanation, &recs, &date); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		link.Recommendations = []string(recs)
		if date.Valid {
			d := date.Time
			link.DocumentDate = &d
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return links, nil
}

// AssessmentFor reads the manual override for a (person, article) pair;
// absence is not an error.
func (r *Repository) AssessmentFor(ctx context.Context, ownerID, articleNumber string) (*domain.Assessment, error) {
	query, args, err := r.builder.
		Select("owner_id", "article_number", "confidence").
		From("assessments").
		Where(sq.Eq{"owner_id": ownerID, "article_number": articleNumber}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var a domain.Assessment
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&a.OwnerID, &a.ArticleNumber, &a.Confidence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query assessment: %w", err)
	}
	return &a, nil
}

// DocumentTypes loads the read-only type catalog.
func (r *Repository) DocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	query, args, err := r.builder.
		Select("id", "code", "name").
		From("document_types").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query document types: %w", err)
	}
	defer rows.Close()

	var types []domain.DocumentType
	for rows.Next() {
		var t domain.DocumentType
		if err := rows.Scan(&t.ID, &t.Code, &t.Name); err != nil {
			return nil, fmt.Errorf("scan document type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return types, nil
}

// Articles loads the read-only statutory article catalog.
func (r *Repository) Articles(ctx context.Context) ([]domain.Article, error) {
	query, args, err := r.builder.
		Select("id", "number", "title", "category", "active").
		From("articles").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.ID, &a.Number, &a.Title, &a.Category, &a.Active); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return articles, nil
}

// SeedReference upserts the bootstrap catalogs; existing rows keep their
// identifiers.
func (r *Repository) SeedReference(ctx context.Context, types []domain.DocumentType, articles []domain.Article) error {
	for _, t := range types {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO document_types (code, name) VALUES ($1, $2)
			 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`,
			t.Code, t.Name)
		if err != nil {
			return fmt.Errorf("seed document type %s: %w", t.Code, err)
		}
	}
	for _, a := range articles {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO articles (number, title, category, active) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (number) DO UPDATE
			 SET title = EXCLUDED.title, category = EXCLUDED.category, active = EXCLUDED.active`,
			a.Number, a.Title, a.Category, a.Active)
		if err != nil {
			return fmt.Errorf("seed article %s: %w", a.Number, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var date sql.NullTime
	var recs pq.StringArray
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.SourceRef, &date, &doc.Status,
		&doc.ExtractedText, &doc.PrimaryArticle, &doc.Category, &doc.Confidence,
		&doc.Explanation, &recs, &doc.AnalysisVersion, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Recommendations = []string(recs)
	if date.Valid {
		d := date.Time
		doc.DocumentDate = &d
	}
	return doc, nil
}

func (r *Repository) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
