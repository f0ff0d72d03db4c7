package kertas

import "encoding/json"

// --- Domain types (database records) ---

// Route is the processing path a document was classified into.
// It is set exactly once by the classifier; reprocessing a document
// creates a new Document record rather than mutating the route.
type Route string

const (
	RouteUnknown      Route = "unknown"
	RouteNativeText   Route = "native_text"
	RouteScannedImage Route = "scanned_image"
)

// Status is the processing status of a document.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	// StatusDegraded means the document completed through a fallback path
	// and its chunks are usable but lower quality.
	StatusDegraded Status = "degraded"
	// StatusFailed means every path and fallback was exhausted; the
	// document needs manual intervention.
	StatusFailed Status = "failed"
)

// Provenance records which path produced a chunk. Set at creation,
// never changed.
type Provenance string

const (
	ProvenanceStructural Provenance = "structural"
	ProvenanceAgentic    Provenance = "agentic"
)

// RoleTag is the semantic role of a child chunk, assigned by the
// semantic chunker. The set is fixed; anything else is a schema violation.
type RoleTag string

const (
	RoleIntroduction RoleTag = "introduction"
	RoleMainPoint    RoleTag = "main_point"
	RoleExample      RoleTag = "example"
	RoleConclusion   RoleTag = "conclusion"
	RoleUnspecified  RoleTag = "unspecified"
)

// ValidRole reports whether r is one of the fixed role tags.
func ValidRole(r RoleTag) bool {
	switch r {
	case RoleIntroduction, RoleMainPoint, RoleExample, RoleConclusion, RoleUnspecified:
		return true
	}
	return false
}

type Document struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	PageCount int    `json:"page_count"`
	Route     Route  `json:"route"`
	Status    Status `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// ParentChunk is a contextually complete unit (target 200-800 words).
// Write-once: corrections regenerate the whole document's chunk set.
type ParentChunk struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Ordinal    int        `json:"ordinal"`
	Content    string     `json:"content"`
	ContentSHA string     `json:"content_sha"`
	Provenance Provenance `json:"provenance"`

	// Agentic-only fields; zero for the structural path.
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// OCR confidence of the pages this chunk was derived from, when the
	// agentic path produced it. Independent of Confidence.
	OCRConfidence float64 `json:"ocr_confidence,omitempty"`

	Children []ChildChunk `json:"children"`
}

// ChildChunk is the retrieval-granularity unit. SequenceNumber is dense
// and unique within its parent.
type ChildChunk struct {
	ID             string  `json:"id"`
	ParentID       string  `json:"parent_id"`
	SequenceNumber int     `json:"sequence_number"`
	Content        string  `json:"content"`
	Role           RoleTag `json:"role,omitempty"`
}

// ChunkSet is the common output contract of both processing paths:
// an ordered list of parents (children embedded) plus the source text
// they were derived from, which the quality gate checks coverage against.
type ChunkSet struct {
	DocumentID string        `json:"document_id"`
	Provenance Provenance    `json:"provenance"`
	SourceText string        `json:"-"`
	Parents    []ParentChunk `json:"parents"`
	// Degraded marks a set produced by a fallback split rather than the
	// path's primary algorithm.
	Degraded bool `json:"degraded,omitempty"`
}

// ChildCount returns the total number of child chunks across parents.
func (cs *ChunkSet) ChildCount() int {
	n := 0
	for i := range cs.Parents {
		n += len(cs.Parents[i].Children)
	}
	return n
}

// --- Classification types ---

// PageSample is the ephemeral per-page result of the text-density sampler.
// It exists only during classification and is never persisted.
type PageSample struct {
	PageIndex  int
	Text       string
	Meaningful bool
}

// --- OCR types ---

// Recognition is the result of recognizing a single page image.
type Recognition struct {
	PageIndex  int
	Text       string
	Confidence float64 // 0-100
	Language   string  // BCP-47 tag of the dominant script, or ""

	// LowConfidence marks pages under the configured threshold. They are
	// still returned; discarding is the quality gate's decision.
	LowConfidence bool
	// Unrecoverable marks pages whose recognition failed or timed out.
	// Text is empty for such pages.
	Unrecoverable bool
}

// --- Pipeline result ---

// Result is the terminal report for one document run. Every page that
// failed recognition is listed; nothing is silently dropped.
type Result struct {
	DocumentID  string
	Route       Route
	Status      Status
	Provenance  Provenance
	ParentCount int
	ChildCount  int
	FailedPages []int
	// Reason is set when Status is StatusFailed or StatusDegraded.
	Reason string
}

// --- Progress events ---

// EventKind is a coarse progress event emitted between pipeline stages.
type EventKind string

const (
	EventClassified       EventKind = "classified"
	EventPathSelected     EventKind = "path_selected"
	EventChunkingComplete EventKind = "chunking_complete"
	EventFailed           EventKind = "failed"
)

type ProgressEvent struct {
	DocumentID string
	Kind       EventKind
	// Detail carries the route for classified/path_selected events and
	// the reason for failed events.
	Detail string
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string      `json:"role"` // "system", "user", "assistant"
	Content string      `json:"content"`
	Images  []ImageData `json:"images,omitempty"`
}

type ImageData struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// ResponseSchema constrains a chat response to a JSON schema. Providers
// that support structured output enforce it server-side; responses that
// still violate the schema are an ErrSchema, never coerced.
type ResponseSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type ChatRequest struct {
	Messages       []ChatMessage   `json:"messages"`
	ResponseSchema *ResponseSchema `json:"response_schema,omitempty"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}
