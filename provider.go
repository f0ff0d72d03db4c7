package kertas

import (
	"context"
	"image"
)

// Source is an opaque handle to one ingested document. Implementations
// decide how pages are stored; the pipeline only ever asks for counts,
// extracted text, or rendered page images.
type Source interface {
	// ID is a stable identifier for the underlying document.
	ID() string
	// PageCount reports the number of pages, or an error when even that
	// much cannot be read.
	PageCount(ctx context.Context) (int, error)
	// PageText returns the embedded text of one page. Pages without a
	// text layer return an empty string, not an error.
	PageText(ctx context.Context, page int) (string, error)
	// PageImage renders one page as an image for recognition.
	PageImage(ctx context.Context, page int) (image.Image, error)
}

// Provider generates chat responses, optionally constrained to a JSON
// schema via ChatRequest.ResponseSchema.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// EmbeddingProvider turns text into vectors for coherence scoring and
// downstream retrieval.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Engine performs text recognition on a single page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, page int, img image.Image) (*Recognition, error)
}

// Store persists documents and their chunk hierarchy. Writes are
// insert-only; reprocessing retires previous rows rather than deleting.
type Store interface {
	SaveDocument(ctx context.Context, doc *Document) error
	SaveChunks(ctx context.Context, set *ChunkSet) error
	RetireChunks(ctx context.Context, documentID string) error
	Document(ctx context.Context, id string) (*Document, error)
	Parents(ctx context.Context, documentID string) ([]ParentChunk, error)
	Children(ctx context.Context, parentID string) ([]ChildChunk, error)
	Close() error
}

// VectorSink receives embedded child chunks for retrieval indexing.
type VectorSink interface {
	Upsert(ctx context.Context, entries []VectorEntry) error
}

// VectorEntry pairs one child chunk with its embedding. Ids are
// deterministic, so re-upserting the same document is safe.
type VectorEntry struct {
	ChunkID        string
	DocumentID     string
	ParentID       string
	SequenceNumber int
	Content        string
	Provenance     Provenance
	Role           RoleTag
	Embedding      []float32
}

// ProgressSink observes pipeline milestones. Implementations must be
// safe for concurrent use; the pipeline never blocks on a sink.
type ProgressSink interface {
	Publish(ctx context.Context, ev ProgressEvent)
}
