package chunker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nevindra/kertas"
)

// chunkingSchema constrains the semantic chunker's generation. The role
// enum is closed: the model cannot invent tags, and anything that slips
// through anyway is rejected during validation.
var chunkingSchema = &kertas.ResponseSchema{
	Name: "chunking_result",
	Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "parent_chunks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "content": {"type": "string", "description": "Complete thematic content"},
          "thematic_summary": {"type": "string", "description": "Brief summary of the chunk's main theme"},
          "confidence_score": {"type": "number", "description": "Confidence in chunk quality (0.0-1.0)"},
          "child_chunks": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "content": {"type": "string", "description": "Complete sentence or coherent thought"},
                "sequence_number": {"type": "integer", "description": "Order within parent chunk, starting at 1"},
                "semantic_role": {
                  "type": "string",
                  "enum": ["introduction", "main_point", "example", "conclusion", "unspecified"]
                }
              },
              "required": ["content", "sequence_number", "semantic_role"]
            }
          }
        },
        "required": ["content", "thematic_summary", "confidence_score", "child_chunks"]
      }
    }
  },
  "required": ["parent_chunks"]
}`),
}

const semanticSystemPrompt = `You are an expert document analyst specializing in semantic chunking of unstructured text, often from OCR output. Your task is to analyze the provided raw text from a document and intelligently group it into logical, contextually complete parent chunks. Each parent chunk is then broken down into sentence-level child chunks.

The text was extracted via OCR and may contain formatting errors, missing punctuation, or lack clear structural separators like headers. Identify thematic shifts and logical groupings based on the content's semantic meaning rather than formatting cues.

Chunking principles:
1. Semantic coherence: group content by meaning and theme, not by formatting.
2. Concept preservation: never split a concept across chunk boundaries.
3. Logical flow: maintain natural reading flow within chunks.
4. Size balance: aim for 200-800 words per parent chunk.
5. Sentence integrity: child chunks should be complete thoughts.
6. OCR error tolerance: handle OCR mistakes gracefully, do not split on obvious errors.

Provide meaningful thematic summaries and assign confidence scores that reflect content clarity and coherence.`

// generationStats is the recognition-quality context embedded in the prompt.
type generationStats struct {
	textLength    int
	pageCount     int
	avgConfidence float64
	language      string
	targetChunks  int
}

func (g generationStats) quality() string {
	switch {
	case g.avgConfidence > 80:
		return "high"
	case g.avgConfidence > 60:
		return "medium"
	default:
		return "low"
	}
}

func buildChunkingPrompt(text string, stats generationStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Raw OCR text (%d characters from %d pages):\n\n---\n%s\n---\n\n", stats.textLength, stats.pageCount, text)
	b.WriteString("Processing context:\n")
	fmt.Fprintf(&b, "- OCR quality: %s\n", stats.quality())
	fmt.Fprintf(&b, "- Average confidence: %.1f%%\n", stats.avgConfidence)
	fmt.Fprintf(&b, "- Primary language: %s\n", stats.language)
	fmt.Fprintf(&b, "- Estimated chunks needed: %d\n\n", stats.targetChunks)
	b.WriteString(`Task:
1. Read the entire text and identify logical breaks and thematic groupings.
2. Create parent chunks that represent complete concepts (200-800 words each).
3. Split each parent chunk into coherent sentence-level child chunks.
4. Assign a semantic role to each child chunk.
5. Provide confidence scores based on content clarity and OCR quality.
6. Handle OCR errors gracefully; do not split on obvious mistakes.`)
	return b.String()
}

// Wire types for the structured response.

type chunkingResult struct {
	ParentChunks []parentPayload `json:"parent_chunks"`
}

type parentPayload struct {
	Content         string          `json:"content"`
	ThematicSummary string          `json:"thematic_summary"`
	ConfidenceScore float64         `json:"confidence_score"`
	ChildChunks     []childPayload  `json:"child_chunks"`
}

type childPayload struct {
	Content        string `json:"content"`
	SequenceNumber int    `json:"sequence_number"`
	SemanticRole   string `json:"semantic_role"`
}

// validate enforces the schema contract beyond what generation-side
// constraints guarantee. Violations are never repaired: a result the model
// could not express correctly is not trustworthy enough to persist.
func (r *chunkingResult) validate() error {
	if len(r.ParentChunks) == 0 {
		return &kertas.ErrSchema{Reason: "no parent chunks"}
	}
	for i, p := range r.ParentChunks {
		if strings.TrimSpace(p.Content) == "" {
			return &kertas.ErrSchema{Reason: fmt.Sprintf("parent %d has empty content", i)}
		}
		if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
			return &kertas.ErrSchema{Reason: fmt.Sprintf("parent %d confidence %v out of [0,1]", i, p.ConfidenceScore)}
		}
		if len(p.ChildChunks) == 0 {
			return &kertas.ErrSchema{Reason: fmt.Sprintf("parent %d has no child chunks", i)}
		}
		for j, c := range p.ChildChunks {
			if strings.TrimSpace(c.Content) == "" {
				return &kertas.ErrSchema{Reason: fmt.Sprintf("parent %d child %d has empty content", i, j)}
			}
			if c.SequenceNumber != j+1 {
				return &kertas.ErrSchema{Reason: fmt.Sprintf("parent %d child %d has sequence %d, want %d", i, j, c.SequenceNumber, j+1)}
			}
			if !kertas.ValidRole(kertas.RoleTag(c.SemanticRole)) {
				return &kertas.ErrSchema{Reason: fmt.Sprintf("parent %d child %d has unknown role %q", i, j, c.SemanticRole)}
			}
		}
	}
	return nil
}
