package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nevindra/kertas"
)

// Semantic groups recognized text into thematic parent chunks with a
// single schema-constrained LLM generation. One call covers the whole
// document; per-page calls would lose cross-page themes.
//
// Attempts that fail transport, time out, or violate the output schema
// are retried with exponential backoff. Exhaustion returns the last
// error; falling back to FixedWindow is the caller's decision.
type Semantic struct {
	provider kertas.Provider
	cfg      config
}

// NewSemantic creates a Semantic chunker backed by provider.
func NewSemantic(provider kertas.Provider, opts ...Option) *Semantic {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Semantic{provider: provider, cfg: cfg}
}

// Chunk combines the recognitions into one text and asks the model for a
// parent/child structure. Unrecoverable pages contribute nothing; their
// absence is the extractor's report, not this chunker's concern.
func (s *Semantic) Chunk(ctx context.Context, documentID string, recs []kertas.Recognition) (*kertas.ChunkSet, error) {
	text, stats := combineRecognitions(recs)
	if text == "" {
		return nil, fmt.Errorf("semantic chunk: no recognizable text")
	}
	stats.targetChunks = max(1, stats.textLength/(s.cfg.parentChars/2))

	prompt := buildChunkingPrompt(text, stats)
	result, err := kertas.RetryCall(ctx, s.cfg.maxAttempts, s.cfg.baseDelay, s.provider.Name(), s.cfg.logger,
		func() (*chunkingResult, error) {
			return s.generate(ctx, prompt)
		})
	if err != nil {
		return nil, fmt.Errorf("semantic chunk: %w", err)
	}

	set := s.toChunkSet(documentID, text, stats, result)
	s.cfg.logger.Info("semantic chunking complete",
		"document", documentID,
		"parents", len(set.Parents),
		"children", set.ChildCount(),
		"ocr_confidence", stats.avgConfidence)
	return set, nil
}

// generate is one structured-output attempt, bounded by the configured
// timeout so a stalled generation cannot hold the document worker.
func (s *Semantic) generate(ctx context.Context, prompt string) (*chunkingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.timeout)
	defer cancel()

	resp, err := s.provider.Chat(ctx, &kertas.ChatRequest{
		Messages: []kertas.ChatMessage{
			kertas.SystemMessage(semanticSystemPrompt),
			kertas.UserMessage(prompt),
		},
		ResponseSchema: chunkingSchema,
	})
	if err != nil {
		return nil, err
	}

	var result chunkingResult
	if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
		return nil, &kertas.ErrSchema{Reason: "response is not valid JSON: " + err.Error()}
	}
	if err := result.validate(); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Semantic) toChunkSet(documentID, text string, stats generationStats, result *chunkingResult) *kertas.ChunkSet {
	set := &kertas.ChunkSet{
		DocumentID: documentID,
		Provenance: kertas.ProvenanceAgentic,
		SourceText: text,
	}
	for ordinal, p := range result.ParentChunks {
		parent := kertas.ParentChunk{
			ID:            kertas.ParentChunkID(documentID, ordinal),
			DocumentID:    documentID,
			Ordinal:       ordinal,
			Content:       strings.TrimSpace(p.Content),
			ContentSHA:    kertas.ContentSHA(strings.TrimSpace(p.Content)),
			Provenance:    kertas.ProvenanceAgentic,
			Summary:       p.ThematicSummary,
			Confidence:    p.ConfidenceScore,
			OCRConfidence: stats.avgConfidence,
		}
		for _, c := range p.ChildChunks {
			parent.Children = append(parent.Children, kertas.ChildChunk{
				ID:             kertas.ChildChunkID(documentID, ordinal, c.SequenceNumber),
				ParentID:       parent.ID,
				SequenceNumber: c.SequenceNumber,
				Content:        strings.TrimSpace(c.Content),
				Role:           kertas.RoleTag(c.SemanticRole),
			})
		}
		set.Parents = append(set.Parents, parent)
	}
	return set
}

// combineRecognitions joins page texts in page order with separators and
// computes the quality stats the prompt carries. Unrecoverable and empty
// pages are skipped; the dominant language wins a majority vote.
func combineRecognitions(recs []kertas.Recognition) (string, generationStats) {
	sorted := make([]kertas.Recognition, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageIndex < sorted[j].PageIndex })

	var b strings.Builder
	langVotes := map[string]int{}
	confSum, confN := 0.0, 0
	pages := 0
	for _, r := range sorted {
		if r.Unrecoverable || strings.TrimSpace(r.Text) == "" {
			continue
		}
		pages++
		if len(sorted) > 1 {
			fmt.Fprintf(&b, "\n--- Page %d ---\n", r.PageIndex+1)
		}
		b.WriteString(r.Text)
		b.WriteString("\n\n")
		confSum += r.Confidence
		confN++
		if r.Language != "" {
			langVotes[r.Language]++
		}
	}

	text := strings.TrimSpace(b.String())
	stats := generationStats{
		textLength: len(text),
		pageCount:  pages,
		language:   "unknown",
	}
	if confN > 0 {
		stats.avgConfidence = confSum / float64(confN)
	}
	best := 0
	for lang, n := range langVotes {
		if n > best {
			best, stats.language = n, lang
		}
	}
	return text, stats
}
