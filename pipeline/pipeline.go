// Package pipeline orchestrates a full document run: classification,
// chunking along the selected path, quality gating, fallbacks,
// persistence, and indexing.
//
// Each document runs through an explicit state machine (attempting →
// retrying → fallen_back → terminal). The semantic chunker gets a
// bounded number of attempts against the quality gate before the run
// falls back to the fixed-window splitter; the structural path falls
// back to the OCR path instead, since rerunning a deterministic
// algorithm cannot change the gate's verdict. Cancellation is honored
// between stages, never inside one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nevindra/kertas"
	"github.com/nevindra/kertas/chunker"
	"github.com/nevindra/kertas/classify"
	"github.com/nevindra/kertas/gate"
	"github.com/nevindra/kertas/index"
	"github.com/nevindra/kertas/ocr"
)

// Defaults holds the orchestration knobs. Callers override via options.
var Defaults = struct {
	GateAttempts     int
	RetryBaseDelay   time.Duration
	PersistAttempts  int
	PersistBaseDelay time.Duration
	Workers          int
}{
	GateAttempts:     3,
	RetryBaseDelay:   2 * time.Second,
	PersistAttempts:  3,
	PersistBaseDelay: time.Second,
	Workers:          4,
}

// Pipeline processes documents end to end. Construct with New.
type Pipeline struct {
	classifier *classify.Classifier
	structural *chunker.Structural
	semantic   *chunker.Semantic
	fallback   *chunker.FixedWindow
	extractor  *ocr.Extractor
	gate       *gate.Gate
	store      kertas.Store
	indexer    *index.Indexer
	progress   kertas.ProgressSink
	logger     *slog.Logger

	gateAttempts     int
	retryBaseDelay   time.Duration
	persistAttempts  int
	persistBaseDelay time.Duration
	workers          int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClassifier replaces the default classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithStructural replaces the default structural chunker.
func WithStructural(s *chunker.Structural) Option {
	return func(p *Pipeline) { p.structural = s }
}

// WithSemantic replaces the default semantic chunker.
func WithSemantic(s *chunker.Semantic) Option {
	return func(p *Pipeline) { p.semantic = s }
}

// WithFixedWindow replaces the default fallback splitter.
func WithFixedWindow(f *chunker.FixedWindow) Option {
	return func(p *Pipeline) { p.fallback = f }
}

// WithExtractor replaces the default OCR extractor.
func WithExtractor(e *ocr.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithGate replaces the default quality gate.
func WithGate(g *gate.Gate) Option {
	return func(p *Pipeline) { p.gate = g }
}

// WithIndexer sets the egress indexer. Without one, accepted chunk sets
// are persisted but not embedded.
func WithIndexer(ix *index.Indexer) Option {
	return func(p *Pipeline) { p.indexer = ix }
}

// WithProgress sets the progress sink. Events are emitted after each
// stage transition.
func WithProgress(sink kertas.ProgressSink) Option {
	return func(p *Pipeline) { p.progress = sink }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithGateAttempts bounds how many semantic chunking attempts the gate
// may reject before the run falls back to the fixed-window splitter.
func WithGateAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.gateAttempts = n
		}
	}
}

// WithRetryBaseDelay sets the base delay between gate-rejected attempts.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.retryBaseDelay = d
		}
	}
}

// WithPersistAttempts bounds storage write retries.
func WithPersistAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.persistAttempts = n
		}
	}
}

// WithPersistBaseDelay sets the base delay between storage retries.
func WithPersistBaseDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.persistBaseDelay = d
		}
	}
}

// WithWorkers bounds ProcessBatch concurrency (one worker per document).
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a Pipeline. provider drives the semantic chunker; engine
// drives OCR and may be nil, in which case scanned documents fail with
// an explanatory reason instead of being recognized.
func New(store kertas.Store, provider kertas.Provider, engine kertas.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier:       classify.New(),
		structural:       chunker.NewStructural(),
		semantic:         chunker.NewSemantic(provider),
		fallback:         chunker.NewFixedWindow(),
		gate:             gate.New(nil),
		store:            store,
		logger:           nopLogger,
		gateAttempts:     Defaults.GateAttempts,
		retryBaseDelay:   Defaults.RetryBaseDelay,
		persistAttempts:  Defaults.PersistAttempts,
		persistBaseDelay: Defaults.PersistBaseDelay,
		workers:          Defaults.Workers,
	}
	if engine != nil {
		p.extractor = ocr.New(engine)
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs one document to a terminal status. The returned error is
// non-nil only for context cancellation or when even the document
// record could not be written; every other failure lands in the Result
// with StatusFailed and a reason.
func (p *Pipeline) Process(ctx context.Context, src kertas.Source) (*kertas.Result, error) {
	docID := src.ID()
	p.logger.Info("processing document", "document_id", docID)

	analysis, err := p.classifier.Classify(ctx, src)
	if err != nil {
		return nil, err
	}
	p.emit(ctx, docID, kertas.EventClassified, string(analysis.Route))

	doc := &kertas.Document{
		ID:        docID,
		Source:    docID,
		PageCount: analysis.TotalPages,
		Route:     analysis.Route,
		Status:    kertas.StatusPending,
		CreatedAt: kertas.NowUnix(),
	}
	if err := p.saveDocument(ctx, doc); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := newMachine(docID, p.logger)
	run := &runResult{}

	switch analysis.Route {
	case kertas.RouteNativeText:
		p.emit(ctx, docID, kertas.EventPathSelected, "structural")
		p.runStructural(ctx, src, analysis.TotalPages, run)
		// A hard error or gate rejection on the structural path switches
		// to the OCR path rather than failing outright.
		if run.set == nil && ctx.Err() == nil {
			p.logger.Warn("structural path abandoned, switching to recognition path",
				"document_id", docID, "reason", run.reason)
			m.to(stateFallenBack)
			p.emit(ctx, docID, kertas.EventPathSelected, "agentic")
			p.runAgentic(ctx, m, src, run)
		}
	default:
		p.emit(ctx, docID, kertas.EventPathSelected, "agentic")
		p.runAgentic(ctx, m, src, run)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	status := kertas.StatusCompleted
	switch {
	case run.set == nil:
		status = kertas.StatusFailed
	case run.degraded:
		status = kertas.StatusDegraded
	}

	if run.set != nil {
		if err := p.persistChunks(ctx, run.set); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// Exhausted storage retries: retire any partial write and
			// hand the document to manual review.
			_ = p.store.RetireChunks(ctx, run.set.DocumentID)
			status = kertas.StatusFailed
			run.reason = err.Error()
			run.set = nil
		}
	}

	if run.set != nil && p.indexer != nil {
		if err := p.indexer.Index(ctx, run.set); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// Chunks are persisted but not searchable; usable, degraded.
			p.logger.Error("indexing failed", "document_id", docID, "error", err)
			if status == kertas.StatusCompleted {
				status = kertas.StatusDegraded
			}
			run.reason = joinReasons(run.reason, fmt.Sprintf("indexing failed: %v", err))
		}
	}

	m.to(stateTerminal)

	doc.Status = status
	if err := p.saveDocument(ctx, doc); err != nil {
		return nil, err
	}

	res := &kertas.Result{
		DocumentID:  docID,
		Route:       analysis.Route,
		Status:      status,
		FailedPages: run.failedPages,
		Reason:      run.reason,
	}
	if run.set != nil {
		res.Provenance = run.set.Provenance
		res.ParentCount = len(run.set.Parents)
		res.ChildCount = run.set.ChildCount()
	}

	if status == kertas.StatusFailed {
		p.emit(ctx, docID, kertas.EventFailed, run.reason)
		p.logger.Error("document failed", "document_id", docID, "reason", run.reason)
	} else {
		p.emit(ctx, docID, kertas.EventChunkingComplete, string(status))
		p.logger.Info("document processed",
			"document_id", docID,
			"status", string(status),
			"parents", res.ParentCount,
			"children", res.ChildCount,
			"failed_pages", len(res.FailedPages))
	}
	return res, nil
}

// ProcessBatch runs sources concurrently, one worker per document. The
// returned slice is index-aligned with sources; a nil entry means that
// document's run was cut short by cancellation.
func (p *Pipeline) ProcessBatch(ctx context.Context, sources []kertas.Source) ([]*kertas.Result, error) {
	results := make([]*kertas.Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, src := range sources {
		g.Go(func() error {
			res, err := p.Process(gctx, src)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// runResult accumulates the chunking outcome of one document run.
type runResult struct {
	set         *kertas.ChunkSet
	degraded    bool
	failedPages []int
	reason      string
}

// runStructural attempts the native-text path. On any failure it leaves
// run.set nil with a reason; the caller decides the path switch.
func (p *Pipeline) runStructural(ctx context.Context, src kertas.Source, pages int, run *runResult) {
	text, err := nativeText(ctx, src, pages)
	if err != nil {
		run.reason = fmt.Sprintf("native text extraction: %v", err)
		return
	}
	if strings.TrimSpace(text) == "" {
		run.reason = "native text extraction: no text layer"
		return
	}

	set, err := p.structural.Chunk(ctx, src.ID(), text)
	if err != nil {
		run.reason = fmt.Sprintf("structural chunking: %v", err)
		return
	}

	rep, err := p.gate.Evaluate(ctx, set)
	if err != nil {
		// Deterministic input, deterministic split: a retry cannot
		// change the verdict, so any rejection is terminal for this path.
		run.reason = fmt.Sprintf("quality gate: %v", err)
		return
	}
	p.logGateReport(src.ID(), rep)
	run.set = set
	run.reason = ""
}

// runAgentic runs OCR extraction, bounded semantic chunking attempts
// against the gate, and the fixed-window fallback when those exhaust.
func (p *Pipeline) runAgentic(ctx context.Context, m *machine, src kertas.Source, run *runResult) {
	docID := src.ID()
	if p.extractor == nil {
		run.reason = joinReasons(run.reason, "no recognition engine configured")
		return
	}

	recs, err := p.extractor.Extract(ctx, src)
	run.failedPages = unrecoverablePages(recs)
	if err != nil {
		run.set = nil
		run.reason = joinReasons(run.reason, fmt.Sprintf("recognition: %v", err))
		return
	}

	if err := ctx.Err(); err != nil {
		return
	}

	var lastReason string
	for attempt := 1; attempt <= p.gateAttempts; attempt++ {
		if attempt > 1 {
			m.to(stateRetrying)
			if err := sleepBackoff(ctx, p.retryBaseDelay, attempt-2); err != nil {
				return
			}
		}

		set, err := p.semantic.Chunk(ctx, docID, recs)
		if err != nil {
			// The semantic chunker already retried transport and schema
			// failures internally; a returned error is exhaustion.
			lastReason = fmt.Sprintf("semantic chunking: %v", err)
			break
		}

		rep, err := p.gate.Evaluate(ctx, set)
		if err == nil {
			p.logGateReport(docID, rep)
			run.set = set
			run.reason = ""
			return
		}
		lastReason = fmt.Sprintf("quality gate: %v", err)
		p.logger.Warn("quality gate rejected chunk set",
			"document_id", docID,
			"attempt", attempt,
			"verdict", string(rep.Verdict),
			"reason", lastReason)
		if rep.Verdict == gate.VerdictEscalate {
			break
		}
		if ctx.Err() != nil {
			return
		}
	}

	// Primary algorithm exhausted: deterministic fixed-window split of
	// the raw recognized text, marked degraded.
	m.to(stateFallenBack)
	raw := joinRecognitions(recs)
	if strings.TrimSpace(raw) == "" {
		run.set = nil
		run.reason = joinReasons(run.reason, joinReasons(lastReason, "no recognized text to fall back on"))
		return
	}
	p.logger.Warn("falling back to fixed-window split",
		"document_id", docID, "reason", lastReason)
	run.set = p.fallback.Chunk(docID, kertas.ProvenanceAgentic, raw)
	run.degraded = true
	run.reason = joinReasons(run.reason, lastReason)
}

func (p *Pipeline) logGateReport(docID string, rep *gate.Report) {
	p.logger.Debug("quality gate accepted chunk set",
		"document_id", docID,
		"coverage", rep.Coverage,
		"coherence", rep.Coherence,
		"size_flags", len(rep.Sizes),
		"integrity_flags", len(rep.Integrity))
}

func (p *Pipeline) emit(ctx context.Context, docID string, kind kertas.EventKind, detail string) {
	if p.progress == nil {
		return
	}
	p.progress.Publish(ctx, kertas.ProgressEvent{DocumentID: docID, Kind: kind, Detail: detail})
}

// nativeText concatenates the text layer of every page.
func nativeText(ctx context.Context, src kertas.Source, pages int) (string, error) {
	var b strings.Builder
	for page := 0; page < pages; page++ {
		text, err := src.PageText(ctx, page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(text))
	}
	return b.String(), nil
}

// joinRecognitions concatenates recognized page texts in page order,
// skipping unrecoverable pages.
func joinRecognitions(recs []kertas.Recognition) string {
	var b strings.Builder
	for _, r := range recs {
		if r.Unrecoverable || strings.TrimSpace(r.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(r.Text))
	}
	return b.String()
}

func unrecoverablePages(recs []kertas.Recognition) []int {
	var pages []int
	for _, r := range recs {
		if r.Unrecoverable {
			pages = append(pages, r.PageIndex)
		}
	}
	return pages
}

func joinReasons(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}

// sleepBackoff waits base*2^attempt or until the context is done.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	if attempt < 0 {
		attempt = 0
	}
	t := time.NewTimer(base * (1 << attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
