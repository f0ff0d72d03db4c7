package kertas

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewID_IsValidUUIDv7(t *testing.T) {
	id := NewID()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("NewID returned invalid UUID: %v", err)
	}
	if u.Version() != 7 {
		t.Errorf("got UUID version %d, want 7", u.Version())
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestParentChunkID_Deterministic(t *testing.T) {
	docID := NewID()
	a := ParentChunkID(docID, 0)
	b := ParentChunkID(docID, 0)
	if a != b {
		t.Errorf("same document and ordinal produced different ids: %s vs %s", a, b)
	}
	if a == ParentChunkID(docID, 1) {
		t.Error("different ordinals produced the same id")
	}
	if a == ParentChunkID(NewID(), 0) {
		t.Error("different documents produced the same id")
	}
}

func TestChildChunkID_Deterministic(t *testing.T) {
	docID := NewID()
	a := ChildChunkID(docID, 2, 5)
	b := ChildChunkID(docID, 2, 5)
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if a == ChildChunkID(docID, 2, 6) {
		t.Error("different sequence numbers produced the same id")
	}
	if a == ParentChunkID(docID, 2) {
		t.Error("child id collided with parent id")
	}
}

func TestContentSHA(t *testing.T) {
	a := ContentSHA("hello world")
	if len(a) != 64 {
		t.Errorf("got length %d, want 64 hex chars", len(a))
	}
	if a != ContentSHA("hello world") {
		t.Error("same content produced different hashes")
	}
	if a == ContentSHA("hello world.") {
		t.Error("different content produced the same hash")
	}
}
