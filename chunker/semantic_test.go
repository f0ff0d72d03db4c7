package chunker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nevindra/kertas"
)

// scriptedProvider returns canned responses in order, recording requests.
type scriptedProvider struct {
	calls     int
	responses []scriptedResponse
	lastReq   *kertas.ChatRequest
}

type scriptedResponse struct {
	content string
	err     error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req *kertas.ChatRequest) (*kertas.ChatResponse, error) {
	p.lastReq = req
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	r := p.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	return &kertas.ChatResponse{Content: r.content}, nil
}

var _ kertas.Provider = (*scriptedProvider)(nil)

const validChunkingJSON = `{
  "parent_chunks": [
    {
      "content": "The pipeline classifies documents before processing them.",
      "thematic_summary": "Document classification",
      "confidence_score": 0.9,
      "child_chunks": [
        {"content": "The pipeline classifies documents.", "sequence_number": 1, "semantic_role": "introduction"},
        {"content": "Processing happens afterwards.", "sequence_number": 2, "semantic_role": "main_point"}
      ]
    },
    {
      "content": "Recognition produces confidence scores for every page.",
      "thematic_summary": "Recognition confidence",
      "confidence_score": 0.8,
      "child_chunks": [
        {"content": "Recognition produces confidence scores.", "sequence_number": 1, "semantic_role": "main_point"}
      ]
    }
  ]
}`

func pageRecognitions() []kertas.Recognition {
	return []kertas.Recognition{
		{PageIndex: 1, Text: "Recognition produces confidence scores for every page.", Confidence: 72, Language: "en"},
		{PageIndex: 0, Text: "The pipeline classifies documents before processing them.", Confidence: 88, Language: "en"},
	}
}

func TestSemantic_ValidGeneration(t *testing.T) {
	p := &scriptedProvider{responses: []scriptedResponse{{content: validChunkingJSON}}}
	set, err := NewSemantic(p, WithBaseDelay(0)).Chunk(context.Background(), "doc-1", pageRecognitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Parents) != 2 {
		t.Fatalf("got %d parents, want 2", len(set.Parents))
	}
	if set.Provenance != kertas.ProvenanceAgentic {
		t.Errorf("got provenance %q, want agentic", set.Provenance)
	}
	first := set.Parents[0]
	if first.Summary != "Document classification" {
		t.Errorf("got summary %q", first.Summary)
	}
	if first.Confidence != 0.9 {
		t.Errorf("got confidence %v, want 0.9", first.Confidence)
	}
	if first.OCRConfidence != 80 {
		t.Errorf("got OCR confidence %v, want 80 (mean of 88 and 72)", first.OCRConfidence)
	}
	if first.Children[0].Role != kertas.RoleIntroduction {
		t.Errorf("got role %q, want introduction", first.Children[0].Role)
	}
	if p.lastReq.ResponseSchema == nil {
		t.Error("request carried no response schema")
	}
}

func TestSemantic_PageOrderInPrompt(t *testing.T) {
	p := &scriptedProvider{responses: []scriptedResponse{{content: validChunkingJSON}}}
	if _, err := NewSemantic(p, WithBaseDelay(0)).Chunk(context.Background(), "doc-1", pageRecognitions()); err != nil {
		t.Fatal(err)
	}
	prompt := p.lastReq.Messages[1].Content
	classifyIdx := strings.Index(prompt, "classifies documents")
	recognizeIdx := strings.Index(prompt, "Recognition produces")
	if classifyIdx < 0 || recognizeIdx < 0 {
		t.Fatal("page text missing from prompt")
	}
	if classifyIdx > recognizeIdx {
		t.Error("pages appear out of order in prompt despite unsorted input")
	}
}

func TestSemantic_SchemaViolationRetriesThenSucceeds(t *testing.T) {
	bad := `{"parent_chunks": [{"content": "x", "thematic_summary": "s", "confidence_score": 0.5, "child_chunks": [{"content": "x", "sequence_number": 1, "semantic_role": "transition"}]}]}`
	p := &scriptedProvider{responses: []scriptedResponse{{content: bad}, {content: validChunkingJSON}}}
	set, err := NewSemantic(p, WithBaseDelay(0)).Chunk(context.Background(), "doc-1", pageRecognitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("got %d calls, want 2 (one retry after role violation)", p.calls)
	}
	if len(set.Parents) != 2 {
		t.Errorf("got %d parents from the retried response", len(set.Parents))
	}
}

func TestSemantic_ExhaustedRetriesReturnSchemaError(t *testing.T) {
	bad := `{"parent_chunks": []}`
	p := &scriptedProvider{responses: []scriptedResponse{{content: bad}}}
	_, err := NewSemantic(p, WithBaseDelay(0), WithMaxAttempts(3)).Chunk(context.Background(), "doc-1", pageRecognitions())
	var se *kertas.ErrSchema
	if !errors.As(err, &se) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("got %d calls, want 3", p.calls)
	}
}

func TestSemantic_MalformedJSONIsSchemaError(t *testing.T) {
	p := &scriptedProvider{responses: []scriptedResponse{{content: "not json at all"}}}
	_, err := NewSemantic(p, WithBaseDelay(0), WithMaxAttempts(1)).Chunk(context.Background(), "doc-1", pageRecognitions())
	var se *kertas.ErrSchema
	if !errors.As(err, &se) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestSemantic_NonTransportErrorNotRetried(t *testing.T) {
	p := &scriptedProvider{responses: []scriptedResponse{{err: errors.New("api key invalid")}}}
	_, err := NewSemantic(p, WithBaseDelay(0)).Chunk(context.Background(), "doc-1", pageRecognitions())
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("got %d calls, want 1", p.calls)
	}
}

func TestSemantic_NoTextFails(t *testing.T) {
	p := &scriptedProvider{responses: []scriptedResponse{{content: validChunkingJSON}}}
	recs := []kertas.Recognition{{PageIndex: 0, Text: "", Unrecoverable: true}}
	if _, err := NewSemantic(p).Chunk(context.Background(), "doc-1", recs); err == nil {
		t.Fatal("expected error for all-unrecoverable input")
	}
	if p.calls != 0 {
		t.Error("provider should not be called without text")
	}
}

func TestChunkingResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*chunkingResult)
		wantErr bool
	}{
		{"valid", func(*chunkingResult) {}, false},
		{"no parents", func(r *chunkingResult) { r.ParentChunks = nil }, true},
		{"empty parent content", func(r *chunkingResult) { r.ParentChunks[0].Content = " " }, true},
		{"confidence above 1", func(r *chunkingResult) { r.ParentChunks[0].ConfidenceScore = 1.2 }, true},
		{"no children", func(r *chunkingResult) { r.ParentChunks[0].ChildChunks = nil }, true},
		{"sparse sequence", func(r *chunkingResult) { r.ParentChunks[0].ChildChunks[1].SequenceNumber = 5 }, true},
		{"unknown role", func(r *chunkingResult) { r.ParentChunks[0].ChildChunks[0].SemanticRole = "thesis" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r chunkingResult
			if err := json.Unmarshal([]byte(validChunkingJSON), &r); err != nil {
				t.Fatal(err)
			}
			tt.mutate(&r)
			err := r.validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestBuildChunkingPrompt_EmbedsRawText(t *testing.T) {
	text := "First line with a \"quoted\" phrase.\nSecond line follows."
	prompt := buildChunkingPrompt(text, generationStats{
		textLength: len(text), pageCount: 2, avgConfidence: 85, language: "en", targetChunks: 1,
	})
	if !strings.Contains(prompt, text) {
		t.Fatalf("prompt does not embed the raw text:\n%s", prompt)
	}
	if strings.Contains(prompt, `\n`) || strings.Contains(prompt, `\"`) {
		t.Errorf("prompt carries escape sequences instead of raw characters:\n%s", prompt)
	}
}

func TestCombineRecognitions_LanguageMajority(t *testing.T) {
	recs := []kertas.Recognition{
		{PageIndex: 0, Text: "alpha", Confidence: 90, Language: "en"},
		{PageIndex: 1, Text: "beta", Confidence: 90, Language: "id"},
		{PageIndex: 2, Text: "gamma", Confidence: 90, Language: "id"},
	}
	_, stats := combineRecognitions(recs)
	if stats.language != "id" {
		t.Errorf("got language %q, want id (majority)", stats.language)
	}
	if stats.pageCount != 3 {
		t.Errorf("got %d pages, want 3", stats.pageCount)
	}
}
