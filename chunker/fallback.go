package chunker

import (
	"fmt"
	"strings"

	"github.com/nevindra/kertas"
)

// Fallback split sizes. Parents accumulate words until this many
// characters, preferring to break after a sentence-ending word.
const (
	fallbackTargetChars = 500
	fallbackMinChars    = 100
	fallbackTailChars   = 50
)

// FixedWindow is the last-resort chunker: a deterministic word-window
// split with sentence-level children. It cannot fail and never calls out,
// so it terminates every retry spiral. Sets it produces are marked
// Degraded and parents carry reduced confidence.
type FixedWindow struct {
	cfg config
}

// NewFixedWindow creates a FixedWindow chunker with the given options.
func NewFixedWindow(opts ...Option) *FixedWindow {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &FixedWindow{cfg: cfg}
}

// Chunk splits text into fixed-size windows. provenance records which
// path degraded into this splitter. The same text always produces the
// same chunks and, through positional ids, the same identifiers.
func (f *FixedWindow) Chunk(documentID string, provenance kertas.Provenance, text string) *kertas.ChunkSet {
	set := &kertas.ChunkSet{
		DocumentID: documentID,
		Provenance: provenance,
		SourceText: strings.TrimSpace(text),
		Degraded:   true,
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return set
	}

	var window []string
	size := 0
	flush := func(content string, confidence float64, summary string) {
		ordinal := len(set.Parents)
		parent := kertas.ParentChunk{
			ID:         kertas.ParentChunkID(documentID, ordinal),
			DocumentID: documentID,
			Ordinal:    ordinal,
			Content:    content,
			ContentSHA: kertas.ContentSHA(content),
			Provenance: provenance,
			Summary:    summary,
			Confidence: confidence,
		}
		parent.Children = f.childWindows(documentID, ordinal, parent.ID, content)
		set.Parents = append(set.Parents, parent)
	}

	for _, word := range words {
		window = append(window, word)
		size += len(word) + 1
		if size >= fallbackTargetChars || strings.HasSuffix(word, ".") {
			if size >= fallbackMinChars {
				content := strings.TrimSpace(strings.Join(window, " "))
				flush(content, 0.6, fmt.Sprintf("Content section %d", len(set.Parents)+1))
				window = window[:0]
				size = 0
			}
		}
	}

	// Short tails attach nothing useful on their own below the floor.
	if len(window) > 0 {
		content := strings.TrimSpace(strings.Join(window, " "))
		if len(content) >= fallbackTailChars {
			flush(content, 0.5, "Final content section")
		}
	}

	f.cfg.logger.Info("fixed-window fallback produced chunks",
		"document", documentID,
		"parents", len(set.Parents))
	return set
}

// childWindows splits a fallback parent into sentence children, capped at
// the configured maximum. Every child gets the main_point role; the
// fallback has no basis for finer distinctions.
func (f *FixedWindow) childWindows(documentID string, ordinal int, parentID, content string) []kertas.ChildChunk {
	var children []kertas.ChildChunk
	for _, sentence := range strings.Split(content, ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if !strings.HasSuffix(sentence, ".") {
			sentence += "."
		}
		seq := len(children) + 1
		children = append(children, kertas.ChildChunk{
			ID:             kertas.ChildChunkID(documentID, ordinal, seq),
			ParentID:       parentID,
			SequenceNumber: seq,
			Content:        sentence,
			Role:           kertas.RoleMainPoint,
		})
		if len(children) >= f.cfg.maxChildren {
			break
		}
	}
	return children
}
