// Package ocr extracts text from scanned pages through a recognition
// engine.
//
// The extractor renders pages from a Source, preprocesses each image,
// and recognizes them on a small bounded worker pool. Results come back
// in page order regardless of completion order. A page that fails or
// times out is marked unrecoverable rather than failing the document;
// only when too many pages are lost does extraction escalate.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nevindra/kertas"
)

// Defaults for the extraction pool.
const (
	DefaultConcurrency     = 3
	DefaultPageTimeout     = 45 * time.Second
	DefaultMinConfidence   = 60.0
	DefaultMaxLostFraction = 0.5
	DefaultTargetDPI       = 300
)

// Extractor runs a recognition engine over every page of a document.
type Extractor struct {
	engine          kertas.Engine
	concurrency     int
	pageTimeout     time.Duration
	minConfidence   float64
	maxLostFraction float64
	preprocess      bool
	targetDPI       int
	logger          *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConcurrency sets how many pages recognize concurrently (default: 3).
// Engines rate-limit aggressively, so this stays low.
func WithConcurrency(n int) Option {
	return func(e *Extractor) { e.concurrency = n }
}

// WithPageTimeout bounds a single page's recognition (default: 45s).
func WithPageTimeout(d time.Duration) Option {
	return func(e *Extractor) { e.pageTimeout = d }
}

// WithMinConfidence sets the threshold (0-100) below which a page is
// flagged low confidence (default: 60).
func WithMinConfidence(f float64) Option {
	return func(e *Extractor) { e.minConfidence = f }
}

// WithMaxLostFraction sets the fraction of unrecoverable pages above
// which the whole extraction fails (default: 0.5).
func WithMaxLostFraction(f float64) Option {
	return func(e *Extractor) { e.maxLostFraction = f }
}

// WithoutPreprocessing disables image preprocessing, for engines that do
// their own.
func WithoutPreprocessing() Option {
	return func(e *Extractor) { e.preprocess = false }
}

// WithTargetDPI sets the resolution preprocessing upscales toward
// (default: 300).
func WithTargetDPI(n int) Option {
	return func(e *Extractor) { e.targetDPI = n }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor backed by engine.
func New(engine kertas.Engine, opts ...Option) *Extractor {
	e := &Extractor{
		engine:          engine,
		concurrency:     DefaultConcurrency,
		pageTimeout:     DefaultPageTimeout,
		minConfidence:   DefaultMinConfidence,
		maxLostFraction: DefaultMaxLostFraction,
		preprocess:      true,
		targetDPI:       DefaultTargetDPI,
		logger:          nopLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract recognizes every page of src. The returned slice always has one
// entry per page, in page order; failed pages appear with Unrecoverable
// set. Extract returns an error only on cancellation or when more than
// the allowed fraction of pages is unrecoverable.
func (e *Extractor) Extract(ctx context.Context, src kertas.Source) ([]kertas.Recognition, error) {
	total, err := src.PageCount(ctx)
	if err != nil {
		return nil, &kertas.ErrExtract{Page: -1, Message: "page count", Err: err}
	}
	if total == 0 {
		return nil, &kertas.ErrExtract{Page: -1, Message: "document has no pages"}
	}

	results := make([]kertas.Recognition, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for page := 0; page < total; page++ {
		g.Go(func() error {
			results[page] = e.recognizePage(gctx, src, page)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lost := 0
	for _, r := range results {
		if r.Unrecoverable {
			lost++
		}
	}
	if frac := float64(lost) / float64(total); frac > e.maxLostFraction {
		return results, &kertas.ErrExtract{
			Page:    -1,
			Message: fmt.Sprintf("%d of %d pages unrecoverable", lost, total),
		}
	}

	e.logger.Info("extraction complete",
		"source", src.ID(),
		"pages", total,
		"unrecoverable", lost)
	return results, nil
}

// recognizePage processes one page end to end. Failures are folded into
// the Recognition; only the page pool's shared context stops the run.
func (e *Extractor) recognizePage(ctx context.Context, src kertas.Source, page int) kertas.Recognition {
	ctx, cancel := context.WithTimeout(ctx, e.pageTimeout)
	defer cancel()

	img, err := src.PageImage(ctx, page)
	if err != nil {
		e.logger.Warn("page render failed", "source", src.ID(), "page", page, "error", err)
		return kertas.Recognition{PageIndex: page, Unrecoverable: true}
	}

	if e.preprocess {
		processed, report := Preprocess(img, e.targetDPI)
		img = processed
		e.logger.Debug("page preprocessed",
			"source", src.ID(), "page", page, "upscaled", report.Upscaled)
	}

	rec, err := e.engine.Recognize(ctx, page, img)
	if err != nil {
		e.logger.Warn("recognition failed", "source", src.ID(), "page", page, "error", err)
		return kertas.Recognition{PageIndex: page, Unrecoverable: true}
	}

	rec.PageIndex = page
	rec.Text = strings.TrimSpace(rec.Text)
	rec.LowConfidence = rec.Confidence < e.minConfidence
	if rec.LowConfidence {
		e.logger.Warn("low confidence page",
			"source", src.ID(), "page", page, "confidence", rec.Confidence)
	}
	return *rec
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
