package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nevindra/kertas"
)

type stubEmbedding struct {
	calls [][]string
	err   error
}

func (s *stubEmbedding) Name() string    { return "stub" }
func (s *stubEmbedding) Dimensions() int { return 2 }

func (s *stubEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

type captureSink struct {
	entries []kertas.VectorEntry
	err     error
}

func (c *captureSink) Upsert(_ context.Context, entries []kertas.VectorEntry) error {
	if c.err != nil {
		return c.err
	}
	c.entries = append(c.entries, entries...)
	return nil
}

func testSet(children int) *kertas.ChunkSet {
	set := &kertas.ChunkSet{
		DocumentID: "doc-1",
		Provenance: kertas.ProvenanceAgentic,
	}
	parent := kertas.ParentChunk{ID: "parent-1", DocumentID: "doc-1", Ordinal: 1, Content: "parent text"}
	for i := 1; i <= children; i++ {
		parent.Children = append(parent.Children, kertas.ChildChunk{
			ID:             fmt.Sprintf("child-%d", i),
			ParentID:       "parent-1",
			SequenceNumber: i,
			Content:        fmt.Sprintf("child %d content", i),
			Role:           kertas.RoleMainPoint,
		})
	}
	set.Parents = append(set.Parents, parent)
	return set
}

func TestIndex(t *testing.T) {
	emb := &stubEmbedding{}
	sink := &captureSink{}
	ix := New(emb, sink)

	if err := ix.Index(context.Background(), testSet(3)); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if len(sink.entries) != 3 {
		t.Fatalf("sink got %d entries, want 3", len(sink.entries))
	}

	first := sink.entries[0]
	if first.ChunkID != "child-1" || first.ParentID != "parent-1" || first.DocumentID != "doc-1" {
		t.Errorf("entry ids = %+v", first)
	}
	if first.SequenceNumber != 1 || first.Provenance != kertas.ProvenanceAgentic || first.Role != kertas.RoleMainPoint {
		t.Errorf("entry metadata = %+v", first)
	}
	if len(first.Embedding) != 2 {
		t.Errorf("entry embedding missing: %+v", first.Embedding)
	}
	for i, e := range sink.entries {
		if e.SequenceNumber != i+1 {
			t.Errorf("entry %d sequence = %d, want %d", i, e.SequenceNumber, i+1)
		}
	}
}

func TestIndex_Batching(t *testing.T) {
	emb := &stubEmbedding{}
	ix := New(emb, &captureSink{}, WithBatchSize(2))

	if err := ix.Index(context.Background(), testSet(5)); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if len(emb.calls) != 3 {
		t.Fatalf("Embed called %d times, want 3", len(emb.calls))
	}
	sizes := []int{len(emb.calls[0]), len(emb.calls[1]), len(emb.calls[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}
}

func TestIndex_EmbedError(t *testing.T) {
	emb := &stubEmbedding{err: errors.New("quota exceeded")}
	sink := &captureSink{}
	ix := New(emb, sink)

	err := ix.Index(context.Background(), testSet(2))
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("Index() error = %v, want embed failure", err)
	}
	if len(sink.entries) != 0 {
		t.Errorf("sink received %d entries after embed failure, want 0", len(sink.entries))
	}
}

func TestIndex_SinkErrorWrapsPersist(t *testing.T) {
	sink := &captureSink{err: errors.New("connection reset")}
	ix := New(&stubEmbedding{}, sink)

	err := ix.Index(context.Background(), testSet(1))
	var pe *kertas.ErrPersist
	if !errors.As(err, &pe) {
		t.Fatalf("Index() error = %v, want *ErrPersist", err)
	}
	if pe.Op != "index upsert" {
		t.Errorf("Op = %q, want \"index upsert\"", pe.Op)
	}
}

func TestIndex_EmptySet(t *testing.T) {
	emb := &stubEmbedding{}
	ix := New(emb, &captureSink{})

	set := &kertas.ChunkSet{DocumentID: "doc-1"}
	if err := ix.Index(context.Background(), set); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if len(emb.calls) != 0 {
		t.Errorf("Embed called %d times for empty set, want 0", len(emb.calls))
	}
}
