package observer

import (
	"context"
	"image"
	"time"

	"github.com/nevindra/kertas"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedEngine wraps a kertas.Engine with OTEL instrumentation.
type ObservedEngine struct {
	inner kertas.Engine
	inst  *Instruments
}

// WrapEngine returns an instrumented recognition engine.
func WrapEngine(inner kertas.Engine, inst *Instruments) *ObservedEngine {
	return &ObservedEngine{inner: inner, inst: inst}
}

func (o *ObservedEngine) Name() string { return o.inner.Name() }

func (o *ObservedEngine) Recognize(ctx context.Context, page int, img image.Image) (*kertas.Recognition, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "ocr.recognize", trace.WithAttributes(
		AttrOCREngine.String(o.inner.Name()),
		AttrOCRPage.Int(page),
	))
	defer span.End()
	start := time.Now()

	rec, err := o.inner.Recognize(ctx, page, img)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		AttrOCREngine.String(o.inner.Name()),
	)

	o.inst.OCRPages.Add(ctx, 1, metric.WithAttributes(
		AttrOCREngine.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.OCRDuration.Record(ctx, durationMs, attrs)

	if rec != nil {
		span.SetAttributes(
			AttrOCRConfidence.Float64(rec.Confidence),
			AttrOCRLanguage.String(rec.Language),
		)
		o.inst.OCRConfidence.Record(ctx, rec.Confidence, attrs)
	}

	// Structured log
	var logRec otellog.Record
	logRec.SetSeverity(otellog.SeverityInfo)
	logRec.SetBody(otellog.StringValue("page recognition completed"))
	logRec.AddAttributes(
		otellog.String("ocr.engine", o.inner.Name()),
		otellog.Int("ocr.page", page),
		otellog.Float64("ocr.duration_ms", durationMs),
		otellog.String("status", status),
	)
	if rec != nil {
		logRec.AddAttributes(otellog.Float64("ocr.confidence", rec.Confidence))
	}
	o.inst.Logger.Emit(ctx, logRec)

	return rec, err
}

// Compile-time interface check.
var _ kertas.Engine = (*ObservedEngine)(nil)
