// Package index feeds accepted chunk sets into a vector sink: child
// chunk texts are embedded in batches and upserted with their hierarchy
// metadata. Parent chunks are never embedded; retrieval works at child
// granularity and expands to the parent afterwards.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nevindra/kertas"
)

const defaultBatchSize = 64

// Indexer embeds child chunks and writes them to a VectorSink.
type Indexer struct {
	embedding kertas.EmbeddingProvider
	sink      kertas.VectorSink
	batchSize int
	logger    *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithBatchSize sets how many child texts go into one Embed call.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New creates an Indexer writing to sink.
func New(embedding kertas.EmbeddingProvider, sink kertas.VectorSink, opts ...Option) *Indexer {
	ix := &Indexer{
		embedding: embedding,
		sink:      sink,
		batchSize: defaultBatchSize,
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Index embeds every child chunk in set and upserts the entries. Ids
// are deterministic per document, so indexing the same set twice
// overwrites rather than duplicates.
func (ix *Indexer) Index(ctx context.Context, set *kertas.ChunkSet) error {
	entries := flatten(set)
	if len(entries) == 0 {
		return nil
	}

	for i := 0; i < len(entries); i += ix.batchSize {
		end := min(i+ix.batchSize, len(entries))
		batch := entries[i:end]

		texts := make([]string, len(batch))
		for j := range batch {
			texts[j] = batch[j].Content
		}

		vecs, err := ix.embedding.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed batch %d-%d: got %d embeddings for %d texts", i, end, len(vecs), len(batch))
		}
		for j := range batch {
			batch[j].Embedding = vecs[j]
		}
	}

	if err := ix.sink.Upsert(ctx, entries); err != nil {
		return &kertas.ErrPersist{Op: "index upsert", Err: err}
	}

	ix.logger.Debug("indexed chunk set",
		"document_id", set.DocumentID,
		"entries", len(entries))
	return nil
}

// flatten turns a chunk set into unembedded vector entries, parent by
// parent in ordinal order.
func flatten(set *kertas.ChunkSet) []kertas.VectorEntry {
	entries := make([]kertas.VectorEntry, 0, set.ChildCount())
	for i := range set.Parents {
		p := &set.Parents[i]
		for _, c := range p.Children {
			entries = append(entries, kertas.VectorEntry{
				ChunkID:        c.ID,
				DocumentID:     set.DocumentID,
				ParentID:       p.ID,
				SequenceNumber: c.SequenceNumber,
				Content:        c.Content,
				Provenance:     set.Provenance,
				Role:           c.Role,
			})
		}
	}
	return entries
}
