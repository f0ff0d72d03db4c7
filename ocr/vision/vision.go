// Package vision recognizes page images with Google Cloud Vision's
// document text detection.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	vision "cloud.google.com/go/vision/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/nevindra/kertas"
	"github.com/nevindra/kertas/ocr"
)

// Engine is a kertas.Engine backed by the Cloud Vision API.
type Engine struct {
	client *vision.ImageAnnotatorClient
	hints  []string
}

var _ kertas.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLanguageHints passes expected language codes to the API. Detection
// works unhinted, but hints sharpen results on short or degraded pages.
func WithLanguageHints(langs ...string) Option {
	return func(e *Engine) { e.hints = langs }
}

// New creates an Engine. credentialsFile may be empty, in which case
// application default credentials apply (attached service accounts on
// GKE or Cloud Run).
func New(ctx context.Context, credentialsFile string, opts ...Option) (*Engine, error) {
	var copts []option.ClientOption
	if credentialsFile != "" {
		copts = append(copts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	e := &Engine{client: client}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name identifies the engine in logs and retry output.
func (e *Engine) Name() string { return "gcp-vision" }

// Recognize runs document text detection on one page image.
func (e *Engine) Recognize(ctx context.Context, page int, img image.Image) (*kertas.Recognition, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &kertas.ErrExtract{Page: page, Message: "encode page image", Err: err}
	}

	vimg, err := vision.NewImageFromReader(&buf)
	if err != nil {
		return nil, &kertas.ErrExtract{Page: page, Message: "build vision image", Err: err}
	}
	doc, err := e.client.DetectDocumentText(ctx, vimg, e.imageContext())
	if err != nil {
		return nil, &kertas.ErrExtract{Page: page, Message: "detect document text", Err: err}
	}
	if doc == nil || doc.Text == "" {
		// A blank page is a valid result, not a failure.
		return &kertas.Recognition{PageIndex: page}, nil
	}

	rec := &kertas.Recognition{
		PageIndex:  page,
		Text:       doc.Text,
		Confidence: pageConfidence(doc.Pages) * 100,
		Language:   detectedLanguage(doc.Pages, doc.Text),
	}
	return rec, nil
}

// imageContext carries the configured language hints, or nil when there
// are none so the API detects freely.
func (e *Engine) imageContext() *visionpb.ImageContext {
	if len(e.hints) == 0 {
		return nil
	}
	return &visionpb.ImageContext{LanguageHints: e.hints}
}

// Close releases the underlying gRPC connection.
func (e *Engine) Close() error { return e.client.Close() }

// pageConfidence averages block confidences (0-1) across the response.
func pageConfidence(pages []*visionpb.Page) float64 {
	sum, n := 0.0, 0
	for _, pg := range pages {
		for _, b := range pg.GetBlocks() {
			if c := b.GetConfidence(); c > 0 {
				sum += float64(c)
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// detectedLanguage prefers the API's top detected language and falls back
// to script-based detection on the text itself.
func detectedLanguage(pages []*visionpb.Page, text string) string {
	votes := map[string]float32{}
	for _, pg := range pages {
		for _, dl := range pg.GetProperty().GetDetectedLanguages() {
			votes[dl.GetLanguageCode()] += dl.GetConfidence()
		}
	}
	best, bestScore := "", float32(0)
	for code, score := range votes {
		if score > bestScore {
			best, bestScore = code, score
		}
	}
	if best != "" {
		if tag, err := language.Parse(best); err == nil {
			return tag.String()
		}
	}
	return ocr.DetectLanguage(text).String()
}
