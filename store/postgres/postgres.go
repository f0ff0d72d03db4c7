// Package postgres implements kertas.Store using PostgreSQL, plus a
// pgvector-backed kertas.VectorSink for the retrieval index.
//
// Both accept an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/kertas"
)

// Store implements kertas.Store backed by PostgreSQL. Chunk rows are
// written once per processing run; reprocessing retires the previous
// rows (retired_at stamp) before a fresh set is saved. Deterministic
// chunk ids make re-saving the same run an upsert, not a duplicate.
type Store struct {
	pool *pgxpool.Pool
}

var _ kertas.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			page_count INTEGER NOT NULL,
			route TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS parent_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			content_sha TEXT NOT NULL,
			provenance TEXT NOT NULL,
			summary TEXT,
			confidence DOUBLE PRECISION,
			ocr_confidence DOUBLE PRECISION,
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			retired_at BIGINT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS parent_chunks_document_idx ON parent_chunks(document_id)`,

		`CREATE TABLE IF NOT EXISTS child_chunks (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			role TEXT,
			retired_at BIGINT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS child_chunks_parent_idx ON child_chunks(parent_id)`,
		`CREATE INDEX IF NOT EXISTS child_chunks_document_idx ON child_chunks(document_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	return nil
}

// SaveDocument upserts a document record. Re-saving the same id updates
// route and status in place.
func (s *Store) SaveDocument(ctx context.Context, doc *kertas.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, source, page_count, route, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			page_count = EXCLUDED.page_count,
			route = EXCLUDED.route,
			status = EXCLUDED.status`,
		doc.ID, doc.Source, doc.PageCount, string(doc.Route), string(doc.Status), doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// SaveChunks writes an entire chunk set in a single transaction.
// Deterministic ids make the write idempotent: a conflicting row is
// replaced and loses any retired_at stamp, because the new run
// supersedes the retirement.
func (s *Store) SaveChunks(ctx context.Context, set *kertas.ChunkSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := kertas.NowUnix()
	for i := range set.Parents {
		p := &set.Parents[i]
		_, err = tx.Exec(ctx,
			`INSERT INTO parent_chunks
			 (id, document_id, ordinal, content, content_sha, provenance, summary, confidence, ocr_confidence, degraded, retired_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, $11)
			 ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				content_sha = EXCLUDED.content_sha,
				provenance = EXCLUDED.provenance,
				summary = EXCLUDED.summary,
				confidence = EXCLUDED.confidence,
				ocr_confidence = EXCLUDED.ocr_confidence,
				degraded = EXCLUDED.degraded,
				retired_at = NULL,
				created_at = EXCLUDED.created_at`,
			p.ID, p.DocumentID, p.Ordinal, p.Content, p.ContentSHA, string(p.Provenance),
			nullIfEmpty(p.Summary), p.Confidence, p.OCRConfidence, set.Degraded, now,
		)
		if err != nil {
			return fmt.Errorf("insert parent chunk: %w", err)
		}

		for _, c := range p.Children {
			_, err = tx.Exec(ctx,
				`INSERT INTO child_chunks
				 (id, parent_id, document_id, sequence_number, content, role, retired_at, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, NULL, $7)
				 ON CONFLICT (id) DO UPDATE SET
					content = EXCLUDED.content,
					role = EXCLUDED.role,
					retired_at = NULL,
					created_at = EXCLUDED.created_at`,
				c.ID, p.ID, set.DocumentID, c.SequenceNumber, c.Content, string(c.Role), now,
			)
			if err != nil {
				return fmt.Errorf("insert child chunk: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RetireChunks stamps retired_at on every live chunk row of a document.
// Rows are never deleted; retired rows stay queryable for audit.
func (s *Store) RetireChunks(ctx context.Context, documentID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := kertas.NowUnix()
	_, err = tx.Exec(ctx,
		`UPDATE parent_chunks SET retired_at = $1 WHERE document_id = $2 AND retired_at IS NULL`, now, documentID)
	if err != nil {
		return fmt.Errorf("retire parent chunks: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE child_chunks SET retired_at = $1 WHERE document_id = $2 AND retired_at IS NULL`, now, documentID)
	if err != nil {
		return fmt.Errorf("retire child chunks: %w", err)
	}
	return tx.Commit(ctx)
}

// Document returns one document by id.
func (s *Store) Document(ctx context.Context, id string) (*kertas.Document, error) {
	var d kertas.Document
	var route, status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, page_count, route, status, created_at FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Source, &d.PageCount, &route, &status, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.Route = kertas.Route(route)
	d.Status = kertas.Status(status)
	return &d, nil
}

// Parents returns the live (non-retired) parent chunks of a document in
// ordinal order. Children are not populated; load them per parent with
// Children.
func (s *Store) Parents(ctx context.Context, documentID string) ([]kertas.ParentChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, ordinal, content, content_sha, provenance, summary, confidence, ocr_confidence
		 FROM parent_chunks
		 WHERE document_id = $1 AND retired_at IS NULL
		 ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("get parents: %w", err)
	}
	defer rows.Close()

	var parents []kertas.ParentChunk
	for rows.Next() {
		var p kertas.ParentChunk
		var provenance string
		var summary *string
		var confidence, ocrConfidence *float64
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Ordinal, &p.Content, &p.ContentSHA, &provenance, &summary, &confidence, &ocrConfidence); err != nil {
			return nil, fmt.Errorf("scan parent chunk: %w", err)
		}
		p.Provenance = kertas.Provenance(provenance)
		if summary != nil {
			p.Summary = *summary
		}
		if confidence != nil {
			p.Confidence = *confidence
		}
		if ocrConfidence != nil {
			p.OCRConfidence = *ocrConfidence
		}
		parents = append(parents, p)
	}
	return parents, rows.Err()
}

// Children returns the live child chunks of one parent in sequence order.
func (s *Store) Children(ctx context.Context, parentID string) ([]kertas.ChildChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, parent_id, sequence_number, content, role
		 FROM child_chunks
		 WHERE parent_id = $1 AND retired_at IS NULL
		 ORDER BY sequence_number`, parentID)
	if err != nil {
		return nil, fmt.Errorf("get children: %w", err)
	}
	defer rows.Close()

	var children []kertas.ChildChunk
	for rows.Next() {
		var c kertas.ChildChunk
		var role *string
		if err := rows.Scan(&c.ID, &c.ParentID, &c.SequenceNumber, &c.Content, &role); err != nil {
			return nil, fmt.Errorf("scan child chunk: %w", err)
		}
		if role != nil {
			c.Role = kertas.RoleTag(*role)
		}
		children = append(children, c)
	}
	return children, rows.Err()
}

// Close is a no-op: the pool is owned by the caller.
func (s *Store) Close() error { return nil }

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// batchExec runs a pgx batch and surfaces the first error.
func batchExec(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch) error {
	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// vectorLiteral renders an embedding as a pgvector text literal.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", f)
	}
	b.WriteByte(']')
	return b.String()
}
