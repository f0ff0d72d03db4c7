package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/nevindra/kertas"
)

const structuredDoc = `CHAPTER ONE: THE PIPELINE

The ingestion pipeline receives documents from the upload service. Each
document is classified before any heavy processing begins. The classifier
reads a sample of pages and measures how much meaningful text each one
carries. Documents with a strong text layer are routed to the structural
path where heading hierarchy drives the chunk boundaries.

CHAPTER TWO: RECOGNITION

Scanned documents have no text layer to read. They are rasterized page by
page and passed through a recognition engine. The engine reports a
confidence score for every page. Pages under the threshold are flagged so
the quality gate can weigh them later. Recognition output feeds the
semantic chunker which groups the text by theme rather than by layout.`

func TestStructural_SplitsAtHeadings(t *testing.T) {
	set, err := NewStructural().Chunk(context.Background(), "doc-1", structuredDoc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Parents) < 2 {
		t.Fatalf("got %d parents, want at least 2 (two chapters)", len(set.Parents))
	}
	if set.Provenance != kertas.ProvenanceStructural {
		t.Errorf("got provenance %q, want structural", set.Provenance)
	}

	var first, second string
	for _, p := range set.Parents {
		if strings.Contains(p.Content, "CHAPTER ONE") {
			first = p.Content
		}
		if strings.Contains(p.Content, "CHAPTER TWO") {
			second = p.Content
		}
	}
	if first == "" || second == "" {
		t.Fatal("chapter headings were not kept with their sections")
	}
	if strings.Contains(first, "Scanned documents") {
		t.Error("chapter two content leaked into chapter one's parent")
	}
}

func TestStructural_ParentsHaveOrderedChildren(t *testing.T) {
	set, err := NewStructural().Chunk(context.Background(), "doc-1", structuredDoc)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range set.Parents {
		if len(p.Children) == 0 {
			t.Errorf("parent %d has no children", p.Ordinal)
		}
		for i, c := range p.Children {
			if c.SequenceNumber != i+1 {
				t.Errorf("parent %d child %d has sequence %d, want %d", p.Ordinal, i, c.SequenceNumber, i+1)
			}
			if c.ParentID != p.ID {
				t.Errorf("parent %d child %d has ParentID %q, want %q", p.Ordinal, i, c.ParentID, p.ID)
			}
		}
	}
}

func TestStructural_DeterministicIDs(t *testing.T) {
	a, err := NewStructural().Chunk(context.Background(), "doc-1", structuredDoc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewStructural().Chunk(context.Background(), "doc-1", structuredDoc)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Parents) != len(b.Parents) {
		t.Fatalf("parent counts differ: %d vs %d", len(a.Parents), len(b.Parents))
	}
	for i := range a.Parents {
		if a.Parents[i].ID != b.Parents[i].ID {
			t.Errorf("parent %d ids differ across runs", i)
		}
		if a.Parents[i].ContentSHA != b.Parents[i].ContentSHA {
			t.Errorf("parent %d content hashes differ across runs", i)
		}
	}
}

func TestStructural_NoHeadingsFallsBackToSize(t *testing.T) {
	// Lowercase run-on prose without heading-looking lines.
	text := strings.TrimSpace(strings.Repeat("the quick brown fox jumps over the lazy dog and keeps running through the field without pause. ", 40))
	set, err := NewStructural().Chunk(context.Background(), "doc-1", text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Parents) < 2 {
		t.Errorf("got %d parents, want several from size-based split", len(set.Parents))
	}
}

func TestStructural_EmptyTextFails(t *testing.T) {
	if _, err := NewStructural().Chunk(context.Background(), "doc-1", "   \n  "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestStructural_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStructural().Chunk(ctx, "doc-1", structuredDoc); err == nil {
		t.Fatal("expected context error")
	}
}

func TestPromoteHeadings(t *testing.T) {
	md := promoteHeadings("CHAPTER ONE: BEGINNINGS\n\nRegular prose continues here with enough words to avoid heading promotion because it ends with a period.")
	if !strings.Contains(md, "# CHAPTER ONE: BEGINNINGS") {
		t.Errorf("chapter line was not promoted to level 1:\n%s", md)
	}
	if strings.Contains(md, "# Regular prose") {
		t.Error("prose line was wrongly promoted")
	}
}

func TestStructural_ParentContentHasNoInjectedMarkers(t *testing.T) {
	set, err := NewStructural().Chunk(context.Background(), "doc-1", structuredDoc)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range set.Parents {
		for _, line := range strings.Split(p.Content, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				t.Errorf("parent %d carries a marker that is not in the source text: %q", p.Ordinal, line)
			}
		}
	}
}

func TestStripPromotedHeadings(t *testing.T) {
	original := "CHAPTER ONE: THE PIPELINE\nBody prose stays untouched on its own line."
	if got := stripPromotedHeadings(promoteHeadings(original)); !strings.Contains(got, original[:25]) || strings.Contains(got, "#") {
		t.Errorf("round trip did not restore the source line:\n%s", got)
	}

	// A genuine markdown heading in the source survives the round trip.
	md := "# Chapter One\nSome body text follows the heading on the next line."
	if got := stripPromotedHeadings(promoteHeadings(md)); !strings.Contains(got, "# Chapter One") {
		t.Errorf("genuine markdown heading was stripped:\n%s", got)
	}
}

func TestHeadingLevel(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{"Chapter 3: Results", 1},
		{"Section 2.1 Methods", 2},
		{"SUMMARY OF FINDINGS", 2},
		{"Introduction:", 3},
	}
	for _, tt := range tests {
		if got := headingLevel(tt.line); got != tt.want {
			t.Errorf("headingLevel(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}
