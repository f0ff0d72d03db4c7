package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nevindra/kertas"
)

// imageSource serves a fixed number of synthetic page images.
type imageSource struct {
	pages     int
	failPages map[int]bool
}

func (s *imageSource) ID() string                            { return "scan-1" }
func (s *imageSource) PageCount(context.Context) (int, error) { return s.pages, nil }

func (s *imageSource) PageText(context.Context, int) (string, error) {
	return "", nil
}

func (s *imageSource) PageImage(_ context.Context, page int) (image.Image, error) {
	if s.failPages[page] {
		return nil, errors.New("render failed")
	}
	return image.NewGray(image.Rect(0, 0, 8, 8)), nil
}

var _ kertas.Source = (*imageSource)(nil)

// countingEngine records concurrency and returns canned text per page.
type countingEngine struct {
	mu         sync.Mutex
	inFlight   int32
	maxSeen    int32
	delay      time.Duration
	failPages  map[int]bool
	confidence func(page int) float64
}

func (e *countingEngine) Name() string { return "counting" }

func (e *countingEngine) Recognize(ctx context.Context, page int, _ image.Image) (*kertas.Recognition, error) {
	cur := atomic.AddInt32(&e.inFlight, 1)
	defer atomic.AddInt32(&e.inFlight, -1)
	e.mu.Lock()
	if cur > e.maxSeen {
		e.maxSeen = cur
	}
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.failPages[page] {
		return nil, errors.New("engine error")
	}
	conf := 90.0
	if e.confidence != nil {
		conf = e.confidence(page)
	}
	return &kertas.Recognition{
		Text:       fmt.Sprintf("text of page %d", page),
		Confidence: conf,
		Language:   "en",
	}, nil
}

var _ kertas.Engine = (*countingEngine)(nil)

func TestExtract_AllPagesInOrder(t *testing.T) {
	engine := &countingEngine{}
	recs, err := New(engine).Extract(context.Background(), &imageSource{pages: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 7 {
		t.Fatalf("got %d recognitions, want 7", len(recs))
	}
	for i, r := range recs {
		if r.PageIndex != i {
			t.Errorf("position %d holds page %d; results must be in page order", i, r.PageIndex)
		}
		if want := fmt.Sprintf("text of page %d", i); r.Text != want {
			t.Errorf("page %d text = %q, want %q", i, r.Text, want)
		}
	}
}

func TestExtract_BoundsConcurrency(t *testing.T) {
	engine := &countingEngine{delay: 20 * time.Millisecond}
	_, err := New(engine, WithConcurrency(2)).Extract(context.Background(), &imageSource{pages: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.maxSeen > 2 {
		t.Errorf("observed %d concurrent recognitions, want at most 2", engine.maxSeen)
	}
}

func TestExtract_FailedPageIsUnrecoverable(t *testing.T) {
	engine := &countingEngine{failPages: map[int]bool{2: true}}
	recs, err := New(engine).Extract(context.Background(), &imageSource{pages: 5})
	if err != nil {
		t.Fatalf("one failed page must not fail extraction: %v", err)
	}
	if !recs[2].Unrecoverable {
		t.Error("page 2 should be unrecoverable")
	}
	if recs[2].Text != "" {
		t.Errorf("unrecoverable page carries text %q, want empty", recs[2].Text)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if recs[i].Unrecoverable {
			t.Errorf("page %d wrongly marked unrecoverable", i)
		}
	}
}

func TestExtract_RenderFailureIsUnrecoverable(t *testing.T) {
	engine := &countingEngine{}
	src := &imageSource{pages: 4, failPages: map[int]bool{1: true}}
	recs, err := New(engine).Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recs[1].Unrecoverable {
		t.Error("page 1 should be unrecoverable after render failure")
	}
}

func TestExtract_TooManyLostPagesFails(t *testing.T) {
	engine := &countingEngine{failPages: map[int]bool{0: true, 1: true, 2: true}}
	_, err := New(engine).Extract(context.Background(), &imageSource{pages: 4})
	var ee *kertas.ErrExtract
	if !errors.As(err, &ee) {
		t.Fatalf("expected ErrExtract, got %v", err)
	}
	if ee.Page != -1 {
		t.Errorf("got page %d, want -1 for document-level escalation", ee.Page)
	}
}

func TestExtract_ExactlyHalfLostSucceeds(t *testing.T) {
	engine := &countingEngine{failPages: map[int]bool{0: true, 1: true}}
	recs, err := New(engine).Extract(context.Background(), &imageSource{pages: 4})
	if err != nil {
		t.Fatalf("half lost is at the threshold, not over it: %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("got %d recognitions, want 4", len(recs))
	}
}

func TestExtract_LowConfidenceFlagged(t *testing.T) {
	engine := &countingEngine{confidence: func(page int) float64 {
		if page == 1 {
			return 40
		}
		return 90
	}}
	recs, err := New(engine).Extract(context.Background(), &imageSource{pages: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !recs[1].LowConfidence {
		t.Error("page 1 at confidence 40 should be flagged low confidence")
	}
	if recs[1].Text == "" {
		t.Error("low confidence pages keep their text; discarding is the gate's call")
	}
	if recs[0].LowConfidence {
		t.Error("page 0 at confidence 90 wrongly flagged")
	}
}

// boundsEngine records the bounds of the image it receives.
type boundsEngine struct {
	mu   sync.Mutex
	seen []image.Rectangle
}

func (e *boundsEngine) Name() string { return "bounds" }

func (e *boundsEngine) Recognize(_ context.Context, page int, img image.Image) (*kertas.Recognition, error) {
	e.mu.Lock()
	e.seen = append(e.seen, img.Bounds())
	e.mu.Unlock()
	return &kertas.Recognition{Text: "ok", Confidence: 90}, nil
}

var _ kertas.Engine = (*boundsEngine)(nil)

func TestExtract_PreprocessingUpscalesSmallPages(t *testing.T) {
	engine := &boundsEngine{}
	if _, err := New(engine).Extract(context.Background(), &imageSource{pages: 1}); err != nil {
		t.Fatal(err)
	}
	// Source pages are 8x8; the default target DPI upscales them.
	if got := engine.seen[0]; got.Dx() <= 8 {
		t.Errorf("engine received %v, want an upscaled image", got)
	}
}

func TestExtract_WithoutPreprocessingPassesOriginal(t *testing.T) {
	engine := &boundsEngine{}
	e := New(engine, WithoutPreprocessing())
	if _, err := e.Extract(context.Background(), &imageSource{pages: 1}); err != nil {
		t.Fatal(err)
	}
	if got := engine.seen[0]; got.Dx() != 8 || got.Dy() != 8 {
		t.Errorf("engine received %v, want the untouched 8x8 page", got)
	}
}

func TestExtract_PageTimeout(t *testing.T) {
	engine := &countingEngine{delay: 200 * time.Millisecond}
	recs, err := New(engine, WithPageTimeout(10*time.Millisecond), WithMaxLostFraction(1)).
		Extract(context.Background(), &imageSource{pages: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range recs {
		if !r.Unrecoverable {
			t.Errorf("page %d should have timed out", i)
		}
	}
}

func TestExtract_Cancelled(t *testing.T) {
	engine := &countingEngine{delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := New(engine).Extract(ctx, &imageSource{pages: 5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtract_EmptyDocumentFails(t *testing.T) {
	if _, err := New(&countingEngine{}).Extract(context.Background(), &imageSource{pages: 0}); err == nil {
		t.Fatal("expected error for zero pages")
	}
}
