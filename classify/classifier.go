// Package classify decides which processing path a document takes.
//
// The classifier samples a handful of pages, extracts their embedded text,
// and judges whether the text layer is meaningful. Documents whose sampled
// pages are mostly meaningful take the native-text path; everything else,
// including documents that cannot be read at all, takes the scanned-image
// path. Misrouting a native document to OCR wastes compute but still
// produces chunks; the reverse loses the document, so every failure mode
// leans toward the scanned route.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nevindra/kertas"
)

// Defaults mirror the tuning the pipeline ships with.
const (
	DefaultSampleLimit     = 5
	DefaultNativeThreshold = 0.8
	DefaultMixedThreshold  = 0.3
	DefaultMinTextLength   = 50
)

// PageReport is the per-page detail behind a classification decision.
type PageReport struct {
	Page        int
	TextLength  int
	Readability float64
	Meaningful  bool
}

// Analysis is the classification verdict for one document.
type Analysis struct {
	Route      kertas.Route
	Confidence float64 // 0-1
	TotalPages int
	// Estimated counts extrapolated from the sample to the whole document.
	PagesWithText     int
	PagesRequiringOCR int
	Reports           []PageReport
	// Method is "complete" when every page was inspected, "sampling" when
	// only a subset was, and "fallback" when the document could not be read.
	Method  string
	Factors []string
}

// Classifier routes documents by sampling their text layer.
type Classifier struct {
	sampleLimit     int
	nativeThreshold float64
	mixedThreshold  float64
	minTextLength   int
	logger          *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithSampleLimit caps how many pages are inspected (default: 5).
func WithSampleLimit(n int) Option {
	return func(c *Classifier) { c.sampleLimit = n }
}

// WithNativeThreshold sets the meaningful-page fraction a document must
// exceed to take the native-text path (default: 0.8).
func WithNativeThreshold(f float64) Option {
	return func(c *Classifier) { c.nativeThreshold = f }
}

// WithMinTextLength sets the minimum character count for a page's text
// layer to count as present at all (default: 50).
func WithMinTextLength(n int) Option {
	return func(c *Classifier) { c.minTextLength = n }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a Classifier with the given options.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		sampleLimit:     DefaultSampleLimit,
		nativeThreshold: DefaultNativeThreshold,
		mixedThreshold:  DefaultMixedThreshold,
		minTextLength:   DefaultMinTextLength,
		logger:          nopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify inspects src and decides its route. Read failures never fail
// the call: they produce a low-confidence scanned-image verdict, because
// a document we cannot read natively can still be rasterized and OCR'd.
// The only returned error is context cancellation.
func (c *Classifier) Classify(ctx context.Context, src kertas.Source) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total, err := src.PageCount(ctx)
	if err != nil {
		cerr := &kertas.ErrClassify{Source: src.ID(), Err: err}
		c.logger.Warn("page count failed, falling back to scanned route",
			"source", src.ID(), "error", err)
		return c.fallback(cerr), nil
	}
	if total == 0 {
		return c.fallback(&kertas.ErrClassify{Source: src.ID(), Err: fmt.Errorf("document has no pages")}), nil
	}

	pages := SamplePages(total, c.sampleLimit)
	reports := make([]PageReport, 0, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := src.PageText(ctx, p)
		if err != nil {
			c.logger.Warn("page text failed, falling back to scanned route",
				"source", src.ID(), "page", p, "error", err)
			return c.fallback(&kertas.ErrClassify{Source: src.ID(), Err: err}), nil
		}
		text = strings.TrimSpace(text)
		reports = append(reports, PageReport{
			Page:        p,
			TextLength:  len(text),
			Readability: estimateReadability(text),
			Meaningful:  meaningfulText(text, c.minTextLength),
		})
	}

	a := c.decide(reports, total)
	c.logger.Info("document classified",
		"source", src.ID(),
		"route", a.Route,
		"confidence", a.Confidence,
		"method", a.Method,
		"sampled", len(reports),
		"total_pages", total)
	return a, nil
}

// decide turns per-page reports into a route. The meaningful fraction is
// compared against the native threshold; everything below it, mixed
// documents included, goes to the scanned path where OCR reads every page.
func (c *Classifier) decide(reports []PageReport, total int) *Analysis {
	meaningful := 0
	for _, r := range reports {
		if r.Meaningful {
			meaningful++
		}
	}
	textRatio := float64(meaningful) / float64(len(reports))
	ocrRatio := 1 - textRatio

	var (
		route      kertas.Route
		confidence float64
		factors    []string
	)
	switch {
	case textRatio > c.nativeThreshold:
		route = kertas.RouteNativeText
		confidence = min(0.95, 0.5+textRatio*0.5)
		factors = append(factors, fmt.Sprintf("%.0f%% of sampled pages have meaningful text", textRatio*100))
	case textRatio <= c.mixedThreshold:
		route = kertas.RouteScannedImage
		confidence = min(0.95, 0.5+ocrRatio*0.5)
		factors = append(factors, fmt.Sprintf("%.0f%% of sampled pages require OCR", ocrRatio*100))
	default:
		// Mixed documents take the scanned path: OCR reads every page,
		// native extraction would drop the scanned ones.
		route = kertas.RouteScannedImage
		confidence = 0.7
		factors = append(factors, fmt.Sprintf("mixed document: %.0f%% text, %.0f%% OCR", textRatio*100, ocrRatio*100))
	}

	avgReadability := 0.0
	for _, r := range reports {
		avgReadability += r.Readability
	}
	avgReadability /= float64(len(reports))
	factors = append(factors, fmt.Sprintf("average readability %.2f", avgReadability))
	if avgReadability > 0.8 {
		confidence = min(0.98, confidence+0.1)
	} else if avgReadability < 0.3 {
		confidence = max(0.5, confidence-0.1)
	}

	method := "complete"
	if len(reports) < total {
		method = "sampling"
	}
	estText := meaningful * total / len(reports)

	return &Analysis{
		Route:             route,
		Confidence:        confidence,
		TotalPages:        total,
		PagesWithText:     estText,
		PagesRequiringOCR: total - estText,
		Reports:           reports,
		Method:            method,
		Factors:           factors,
	}
}

// fallback is the verdict when the document cannot be inspected: assume
// it is scanned, with low confidence.
func (c *Classifier) fallback(err *kertas.ErrClassify) *Analysis {
	return &Analysis{
		Route:             kertas.RouteScannedImage,
		Confidence:        0.3,
		TotalPages:        1,
		PagesRequiringOCR: 1,
		Method:            "fallback",
		Factors:           []string{"analysis failed: " + err.Error(), "defaulting to OCR processing"},
	}
}
