// Package chunker turns extracted document text into the parent/child
// chunk hierarchy.
//
// Two primary chunkers exist, one per processing path: Structural splits
// native text at heading boundaries, Semantic asks an LLM to group
// recognized text by theme. Both emit the same ChunkSet contract, and
// both degrade to the deterministic FixedWindow splitter when their
// primary algorithm cannot produce a valid result.
package chunker

import (
	"context"
	"log/slog"
	"time"
)

// Defaults shared by the chunkers.
const (
	DefaultParentChars   = 1000
	DefaultChildChars    = 300
	DefaultChildOverlap  = 45 // ~15% of the child size
	DefaultParentOverlap = 100
	DefaultMaxChildren   = 10
	DefaultMaxAttempts   = 3
	DefaultBaseDelay     = 2 * time.Second
	DefaultTimeout       = 2 * time.Minute
)

type config struct {
	parentChars   int
	childChars    int
	childOverlap  int
	parentOverlap int
	maxChildren   int
	maxAttempts   int
	baseDelay     time.Duration
	timeout       time.Duration
	logger        *slog.Logger
}

func defaultConfig() config {
	return config{
		parentChars:   DefaultParentChars,
		childChars:    DefaultChildChars,
		childOverlap:  DefaultChildOverlap,
		parentOverlap: DefaultParentOverlap,
		maxChildren:   DefaultMaxChildren,
		maxAttempts:   DefaultMaxAttempts,
		baseDelay:     DefaultBaseDelay,
		timeout:       DefaultTimeout,
		logger:        nopLogger,
	}
}

// Option configures a chunker.
type Option func(*config)

// WithParentChars sets the target parent chunk size in characters (default: 1000).
func WithParentChars(n int) Option {
	return func(c *config) { c.parentChars = n }
}

// WithChildChars sets the target child chunk size in characters (default: 300).
func WithChildChars(n int) Option {
	return func(c *config) { c.childChars = n }
}

// WithChildOverlap sets the overlap between consecutive child chunks in
// characters (default: 45, about 15% of the child size).
func WithChildOverlap(n int) Option {
	return func(c *config) { c.childOverlap = n }
}

// WithMaxChildren caps child chunks per parent for the semantic and
// fallback chunkers (default: 10).
func WithMaxChildren(n int) Option {
	return func(c *config) { c.maxChildren = n }
}

// WithMaxAttempts sets how many times the semantic chunker retries a
// failed or schema-violating generation (default: 3).
func WithMaxAttempts(n int) Option {
	return func(c *config) { c.maxAttempts = n }
}

// WithBaseDelay sets the initial backoff before the second semantic
// attempt; each subsequent delay doubles (default: 2s).
func WithBaseDelay(d time.Duration) Option {
	return func(c *config) { c.baseDelay = d }
}

// WithTimeout bounds a single semantic generation attempt (default: 2m).
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
