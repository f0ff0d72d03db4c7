package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/kertas"
)

// Sink implements kertas.VectorSink backed by pgvector with an HNSW
// cosine index. Entries upsert by chunk id, so re-indexing a document
// overwrites its previous vectors.
type Sink struct {
	pool *pgxpool.Pool
	cfg  sinkConfig
}

type sinkConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
}

// SinkOption configures a Sink.
type SinkOption func(*sinkConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, enabling
// better index optimization and catching dimension mismatches at insert time.
// Only affects new table creation (no ALTER on existing tables).
func WithEmbeddingDimension(dim int) SinkOption {
	return func(c *sinkConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) SinkOption {
	return func(c *sinkConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Higher values improve index quality at the cost of
// slower builds. Default: pgvector's 64.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithEFConstruction(ef int) SinkOption {
	return func(c *sinkConfig) { c.hnswEFConstruction = ef }
}

var _ kertas.VectorSink = (*Sink)(nil)

// NewSink creates a vector sink using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func NewSink(pool *pgxpool.Pool, opts ...SinkOption) *Sink {
	var cfg sinkConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Sink{pool: pool, cfg: cfg}
}

func (s *Sink) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

func (s *Sink) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, the index table, and the HNSW
// index. Safe to call multiple times.
func (s *Sink) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_vectors (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			provenance TEXT NOT NULL,
			role TEXT,
			embedding %s
		)`, s.vectorType()),
		`CREATE INDEX IF NOT EXISTS chunk_vectors_document_idx ON chunk_vectors(document_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS chunk_vectors_embedding_idx ON chunk_vectors USING hnsw (embedding vector_cosine_ops)%s`, s.hnswWithClause()),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("sink init: %w", err)
		}
	}
	return nil
}

// Upsert writes entries by chunk id in one batch round trip.
func (s *Sink) Upsert(ctx context.Context, entries []kertas.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO chunk_vectors
			 (chunk_id, document_id, parent_id, sequence_number, content, provenance, role, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)
			 ON CONFLICT (chunk_id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				parent_id = EXCLUDED.parent_id,
				sequence_number = EXCLUDED.sequence_number,
				content = EXCLUDED.content,
				provenance = EXCLUDED.provenance,
				role = EXCLUDED.role,
				embedding = EXCLUDED.embedding`,
			e.ChunkID, e.DocumentID, e.ParentID, e.SequenceNumber, e.Content,
			string(e.Provenance), string(e.Role), vectorLiteral(e.Embedding),
		)
	}
	if err := batchExec(ctx, s.pool, batch); err != nil {
		return fmt.Errorf("sink upsert: %w", err)
	}
	return nil
}
