// Package gate scores a ChunkSet against the text it was derived from
// and decides whether the set is good enough to persist.
//
// Two scores can reject a set: coverage (how much of the source text the
// parent chunks account for) and coherence (whether each parent reads as
// a single topic). Size and role-sequence checks only flag; they never
// reject on their own.
package gate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nevindra/kertas"
)

// Verdict is the gate's decision for one ChunkSet.
type Verdict string

const (
	// VerdictAccept means the set passed both rejection checks.
	VerdictAccept Verdict = "accept"
	// VerdictRetry means a score fell below its minimum but another
	// chunking attempt may fix it.
	VerdictRetry Verdict = "retry"
	// VerdictEscalate means coverage is so low that rechunking the same
	// input is unlikely to help; the caller should fall back or fail.
	VerdictEscalate Verdict = "escalate"
)

// Defaults holds the gate thresholds. Callers override via options.
var Defaults = struct {
	MinCoverage    float64
	MinCoherence   float64
	MinParentWords int
	MaxParentWords int
}{
	MinCoverage:    0.85,
	MinCoherence:   0.80,
	MinParentWords: 200,
	MaxParentWords: 800,
}

// SizeFlag marks one parent chunk outside the target word range.
type SizeFlag struct {
	Ordinal int
	Words   int
	// Oversized is true when the parent is above the range, false when
	// it is below.
	Oversized bool
}

// IntegrityFlag marks a best-effort role-sequence anomaly inside one
// parent, such as an introduction appearing after a conclusion.
type IntegrityFlag struct {
	Ordinal int
	Reason  string
}

// Report carries every score and flag the gate computed, regardless of
// verdict. Flags are advisory; only the scores drive the verdict.
type Report struct {
	Coverage  float64
	Coherence float64
	// CoherenceMethod is "embedding" or "lexical" depending on whether an
	// EmbeddingProvider was available and succeeded.
	CoherenceMethod string
	Sizes           []SizeFlag
	Integrity       []IntegrityFlag
	Verdict         Verdict
}

// Gate evaluates chunk sets. Construct with New.
type Gate struct {
	embedding kertas.EmbeddingProvider
	cfg       config
}

type config struct {
	minCoverage    float64
	minCoherence   float64
	minParentWords int
	maxParentWords int
	logger         *slog.Logger
}

// Option configures a Gate.
type Option func(*config)

// WithMinCoverage sets the coverage rejection threshold.
func WithMinCoverage(v float64) Option {
	return func(c *config) {
		if v > 0 && v <= 1 {
			c.minCoverage = v
		}
	}
}

// WithMinCoherence sets the coherence rejection threshold.
func WithMinCoherence(v float64) Option {
	return func(c *config) {
		if v > 0 && v <= 1 {
			c.minCoherence = v
		}
	}
}

// WithSizeBounds sets the flagged parent word range.
func WithSizeBounds(minWords, maxWords int) Option {
	return func(c *config) {
		if minWords > 0 && maxWords > minWords {
			c.minParentWords = minWords
			c.maxParentWords = maxWords
		}
	}
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Gate. The embedding provider may be nil, in which case
// coherence degrades to a lexical cohesion heuristic.
func New(embedding kertas.EmbeddingProvider, opts ...Option) *Gate {
	cfg := config{
		minCoverage:    Defaults.MinCoverage,
		minCoherence:   Defaults.MinCoherence,
		minParentWords: Defaults.MinParentWords,
		maxParentWords: Defaults.MaxParentWords,
		logger:         nopLogger,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Gate{embedding: embedding, cfg: cfg}
}

// Evaluate scores set against its own SourceText. The returned Report is
// always populated; the error is non-nil exactly when the verdict is not
// accept, and is an *kertas.ErrCoverage or *kertas.ErrCoherence naming
// the failing score.
func (g *Gate) Evaluate(ctx context.Context, set *kertas.ChunkSet) (*Report, error) {
	rep := &Report{
		Coverage:  coverageScore(set.SourceText, set),
		Sizes:     sizeFlags(set, g.cfg.minParentWords, g.cfg.maxParentWords),
		Integrity: integrityFlags(set),
	}
	rep.Coherence, rep.CoherenceMethod = g.coherenceScore(ctx, set)

	g.cfg.logger.Debug("quality gate scored chunk set",
		"document_id", set.DocumentID,
		"coverage", rep.Coverage,
		"coherence", rep.Coherence,
		"coherence_method", rep.CoherenceMethod,
		"size_flags", len(rep.Sizes),
		"integrity_flags", len(rep.Integrity))

	if rep.Coverage < g.cfg.minCoverage {
		rep.Verdict = VerdictRetry
		// A set missing more than half the source is not a chunking
		// mishap; retrying the same path will not recover the text.
		if rep.Coverage < g.cfg.minCoverage/2 {
			rep.Verdict = VerdictEscalate
		}
		return rep, &kertas.ErrCoverage{Score: rep.Coverage, Min: g.cfg.minCoverage}
	}
	if rep.Coherence < g.cfg.minCoherence {
		rep.Verdict = VerdictRetry
		return rep, &kertas.ErrCoherence{Score: rep.Coherence, Min: g.cfg.minCoherence}
	}
	rep.Verdict = VerdictAccept
	return rep, nil
}

func sizeFlags(set *kertas.ChunkSet, minWords, maxWords int) []SizeFlag {
	var flags []SizeFlag
	for i := range set.Parents {
		p := &set.Parents[i]
		words := len(strings.Fields(p.Content))
		switch {
		case words > maxWords:
			flags = append(flags, SizeFlag{Ordinal: p.Ordinal, Words: words, Oversized: true})
		case words < minWords:
			flags = append(flags, SizeFlag{Ordinal: p.Ordinal, Words: words})
		}
	}
	return flags
}

func integrityFlags(set *kertas.ChunkSet) []IntegrityFlag {
	var flags []IntegrityFlag
	for i := range set.Parents {
		p := &set.Parents[i]
		concluded := false
		for _, c := range p.Children {
			switch c.Role {
			case kertas.RoleConclusion:
				concluded = true
			case kertas.RoleIntroduction:
				if concluded {
					flags = append(flags, IntegrityFlag{
						Ordinal: p.Ordinal,
						Reason:  "introduction after conclusion; parent likely merges two topics",
					})
				}
			}
		}
	}
	return flags
}
