package kertas

import (
	"fmt"
	"time"
)

// ErrClassify is a sampler or reader failure during classification.
// Never fatal: the classifier recovers by routing to the image path.
type ErrClassify struct {
	Source string
	Err    error
}

func (e *ErrClassify) Error() string {
	return fmt.Sprintf("classify %s: %v", e.Source, e.Err)
}

func (e *ErrClassify) Unwrap() error { return e.Err }

// ErrExtract is a recognition failure on one page, or escalation when
// too many pages are unrecoverable.
type ErrExtract struct {
	Page    int // -1 for document-level escalation
	Message string
	Err     error
}

func (e *ErrExtract) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("extract page %d: %s", e.Page, e.Message)
	}
	return fmt.Sprintf("extract: %s", e.Message)
}

func (e *ErrExtract) Unwrap() error { return e.Err }

// ErrSchema means the semantic chunker returned structure that violates
// the fixed output schema. Distinct from transport errors: the response
// arrived but cannot be trusted. Retryable.
type ErrSchema struct {
	Reason string
}

func (e *ErrSchema) Error() string {
	return fmt.Sprintf("chunk schema violation: %s", e.Reason)
}

// ErrCoverage is a quality-gate rejection: the parent chunks account for
// too little of the source text.
type ErrCoverage struct {
	Score float64
	Min   float64
}

func (e *ErrCoverage) Error() string {
	return fmt.Sprintf("coverage %.3f below minimum %.3f", e.Score, e.Min)
}

// ErrCoherence is a quality-gate rejection: one or more parent chunks do
// not read as a single topic.
type ErrCoherence struct {
	Score float64
	Min   float64
}

func (e *ErrCoherence) Error() string {
	return fmt.Sprintf("coherence %.3f below minimum %.3f", e.Score, e.Min)
}

// ErrPersist is a downstream storage or indexing failure. Retried with
// backoff; exhaustion escalates the whole document to manual review.
type ErrPersist struct {
	Op  string
	Err error
}

func (e *ErrPersist) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *ErrPersist) Unwrap() error { return e.Err }

// --- Transport-level errors shared by providers ---

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
