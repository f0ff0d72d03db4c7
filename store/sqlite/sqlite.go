// Package sqlite implements kertas.Store using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/kertas"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements kertas.Store backed by a local SQLite file. Chunk
// rows are written once per processing run; reprocessing a document
// retires the previous rows before the new set is saved. Deterministic
// chunk ids make re-saving the same run a replace, not a duplicate.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ kertas.Store = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			page_count INTEGER NOT NULL,
			route TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS parent_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			content_sha TEXT NOT NULL,
			provenance TEXT NOT NULL,
			summary TEXT,
			confidence REAL,
			ocr_confidence REAL,
			degraded INTEGER NOT NULL DEFAULT 0,
			retired_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS child_chunks (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			role TEXT,
			retired_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Indexes on frequently queried columns.
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_parent_chunks_document ON parent_chunks(document_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_child_chunks_parent ON child_chunks(parent_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_child_chunks_document ON child_chunks(document_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// SaveDocument inserts or replaces a document record. Re-saving the
// same id updates route and status in place.
func (s *Store) SaveDocument(ctx context.Context, doc *kertas.Document) error {
	start := time.Now()
	s.logger.Debug("sqlite: save document", "id", doc.ID, "route", doc.Route, "status", doc.Status)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, source, page_count, route, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Source, doc.PageCount, string(doc.Route), string(doc.Status), doc.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: save document failed", "id", doc.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("save document: %w", err)
	}
	s.logger.Debug("sqlite: save document ok", "id", doc.ID, "duration", time.Since(start))
	return nil
}

// SaveChunks writes an entire chunk set in a single transaction. Chunk
// ids are deterministic per (document, ordinal), so saving the same set
// twice replaces rather than duplicates; a replaced row loses any
// retired_at stamp, which is correct because the new run supersedes the
// retirement.
func (s *Store) SaveChunks(ctx context.Context, set *kertas.ChunkSet) error {
	start := time.Now()
	s.logger.Debug("sqlite: save chunks", "document_id", set.DocumentID, "parents", len(set.Parents), "children", set.ChildCount())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := kertas.NowUnix()
	degraded := 0
	if set.Degraded {
		degraded = 1
	}

	for i := range set.Parents {
		p := &set.Parents[i]
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO parent_chunks
			 (id, document_id, ordinal, content, content_sha, provenance, summary, confidence, ocr_confidence, degraded, retired_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
			p.ID, p.DocumentID, p.Ordinal, p.Content, p.ContentSHA, string(p.Provenance),
			nullIfEmpty(p.Summary), p.Confidence, p.OCRConfidence, degraded, now,
		)
		if err != nil {
			s.logger.Error("sqlite: insert parent chunk failed", "chunk_id", p.ID, "doc_id", set.DocumentID, "error", err)
			return fmt.Errorf("insert parent chunk: %w", err)
		}

		for _, c := range p.Children {
			_, err = tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO child_chunks
				 (id, parent_id, document_id, sequence_number, content, role, retired_at, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
				c.ID, p.ID, set.DocumentID, c.SequenceNumber, c.Content, string(c.Role), now,
			)
			if err != nil {
				s.logger.Error("sqlite: insert child chunk failed", "chunk_id", c.ID, "parent_id", p.ID, "error", err)
				return fmt.Errorf("insert child chunk: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: save chunks commit failed", "document_id", set.DocumentID, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: save chunks ok", "document_id", set.DocumentID, "duration", time.Since(start))
	return nil
}

// RetireChunks stamps retired_at on every live chunk row of a document.
// Rows are never deleted; retired rows stay queryable for audit.
func (s *Store) RetireChunks(ctx context.Context, documentID string) error {
	start := time.Now()
	s.logger.Debug("sqlite: retire chunks", "document_id", documentID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := kertas.NowUnix()
	_, err = tx.ExecContext(ctx,
		`UPDATE parent_chunks SET retired_at = ? WHERE document_id = ? AND retired_at IS NULL`, now, documentID)
	if err != nil {
		return fmt.Errorf("retire parent chunks: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE child_chunks SET retired_at = ? WHERE document_id = ? AND retired_at IS NULL`, now, documentID)
	if err != nil {
		return fmt.Errorf("retire child chunks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: retire chunks commit failed", "document_id", documentID, "error", err)
		return err
	}
	s.logger.Debug("sqlite: retire chunks ok", "document_id", documentID, "duration", time.Since(start))
	return nil
}

// Document returns one document by id.
func (s *Store) Document(ctx context.Context, id string) (*kertas.Document, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get document", "id", id)

	var d kertas.Document
	var route, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, page_count, route, status, created_at FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Source, &d.PageCount, &route, &status, &d.CreatedAt)
	if err != nil {
		s.logger.Error("sqlite: get document failed", "id", id, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.Route = kertas.Route(route)
	d.Status = kertas.Status(status)
	s.logger.Debug("sqlite: get document ok", "id", id, "duration", time.Since(start))
	return &d, nil
}

// Parents returns the live (non-retired) parent chunks of a document in
// ordinal order. Children are not populated; load them per parent with
// Children.
func (s *Store) Parents(ctx context.Context, documentID string) ([]kertas.ParentChunk, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get parents", "document_id", documentID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, ordinal, content, content_sha, provenance, summary, confidence, ocr_confidence
		 FROM parent_chunks
		 WHERE document_id = ? AND retired_at IS NULL
		 ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("get parents: %w", err)
	}
	defer rows.Close()

	var parents []kertas.ParentChunk
	for rows.Next() {
		var p kertas.ParentChunk
		var provenance string
		var summary sql.NullString
		var confidence, ocrConfidence sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Ordinal, &p.Content, &p.ContentSHA, &provenance, &summary, &confidence, &ocrConfidence); err != nil {
			return nil, fmt.Errorf("scan parent chunk: %w", err)
		}
		p.Provenance = kertas.Provenance(provenance)
		if summary.Valid {
			p.Summary = summary.String
		}
		if confidence.Valid {
			p.Confidence = confidence.Float64
		}
		if ocrConfidence.Valid {
			p.OCRConfidence = ocrConfidence.Float64
		}
		parents = append(parents, p)
	}
	s.logger.Debug("sqlite: get parents ok", "document_id", documentID, "count", len(parents), "duration", time.Since(start))
	return parents, rows.Err()
}

// Children returns the live child chunks of one parent in sequence order.
func (s *Store) Children(ctx context.Context, parentID string) ([]kertas.ChildChunk, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get children", "parent_id", parentID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, sequence_number, content, role
		 FROM child_chunks
		 WHERE parent_id = ? AND retired_at IS NULL
		 ORDER BY sequence_number`, parentID)
	if err != nil {
		return nil, fmt.Errorf("get children: %w", err)
	}
	defer rows.Close()

	var children []kertas.ChildChunk
	for rows.Next() {
		var c kertas.ChildChunk
		var role sql.NullString
		if err := rows.Scan(&c.ID, &c.ParentID, &c.SequenceNumber, &c.Content, &role); err != nil {
			return nil, fmt.Errorf("scan child chunk: %w", err)
		}
		if role.Valid {
			c.Role = kertas.RoleTag(role.String)
		}
		children = append(children, c)
	}
	s.logger.Debug("sqlite: get children ok", "parent_id", parentID, "count", len(children), "duration", time.Since(start))
	return children, rows.Err()
}

// DB returns the underlying *sql.DB for callers that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
