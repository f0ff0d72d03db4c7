// Command kertas_example processes PDF documents given on the command line
// and persists the resulting chunk hierarchy.
//
//	kertas_example [-config kertas.toml] [-images dir] doc1.pdf doc2.pdf ...
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/kertas"
	"github.com/nevindra/kertas/chunker"
	"github.com/nevindra/kertas/classify"
	"github.com/nevindra/kertas/gate"
	"github.com/nevindra/kertas/index"
	"github.com/nevindra/kertas/internal/config"
	"github.com/nevindra/kertas/observer"
	"github.com/nevindra/kertas/ocr"
	"github.com/nevindra/kertas/ocr/vision"
	"github.com/nevindra/kertas/pipeline"
	"github.com/nevindra/kertas/provider/resolve"
	"github.com/nevindra/kertas/source"
	"github.com/nevindra/kertas/store/postgres"
	"github.com/nevindra/kertas/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to kertas.toml (default: ./kertas.toml)")
	imageDir := flag.String("images", "", "directory of pre-rendered page images for scanned PDFs")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: kertas_example [-config kertas.toml] [-images dir] doc.pdf ...")
		os.Exit(2)
	}

	if err := run(context.Background(), *configPath, *imageDir, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, configPath, imageDir string, paths []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Observability (optional).
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		inst, shutdown, err = observer.Init(ctx, pricing)
		if err != nil {
			return fmt.Errorf("observer init: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	// Providers.
	provider, err := resolve.Provider(resolve.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return err
	}
	embedding, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return err
	}
	if inst != nil {
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
	}
	provider = kertas.WithRateLimit(provider, kertas.RPM(60))
	provider = kertas.WithRetry(provider, kertas.RetryLogger(logger))
	embedding = kertas.WithEmbeddingRetry(embedding, kertas.RetryLogger(logger))

	// Recognition engine.
	var engine kertas.Engine
	visionEngine, err := vision.New(ctx, cfg.OCR.CredentialsFilePath,
		vision.WithLanguageHints(cfg.OCR.Languages...))
	if err != nil {
		logger.Warn("vision engine unavailable, scanned documents will fail", "error", err)
	} else {
		defer visionEngine.Close()
		engine = visionEngine
		if inst != nil {
			engine = observer.WrapEngine(engine, inst)
		}
	}

	// Store and vector sink.
	var store kertas.Store
	var sink kertas.VectorSink
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		pg := postgres.New(pool)
		if err := pg.Init(ctx); err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
		pgSink := postgres.NewSink(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		if err := pgSink.Init(ctx); err != nil {
			return fmt.Errorf("pgvector init: %w", err)
		}
		store, sink = pg, pgSink
	default:
		lite := sqlite.New(cfg.Store.Path, sqlite.WithLogger(logger))
		if err := lite.Init(ctx); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
		store = lite
	}
	defer store.Close()

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithClassifier(classify.New(
			classify.WithSampleLimit(cfg.Sampler.SampleSize),
			classify.WithNativeThreshold(cfg.Sampler.NativeThreshold),
			classify.WithMinTextLength(cfg.Sampler.MinTextLength),
			classify.WithLogger(logger),
		)),
		pipeline.WithStructural(chunker.NewStructural(
			chunker.WithParentChars(cfg.Chunking.ParentChars),
			chunker.WithChildChars(cfg.Chunking.ChildChars),
			chunker.WithChildOverlap(cfg.Chunking.ChildOverlap),
			chunker.WithLogger(logger),
		)),
		pipeline.WithSemantic(chunker.NewSemantic(provider,
			chunker.WithMaxAttempts(cfg.Chunking.MaxAttempts),
			chunker.WithTimeout(cfg.Chunking.SemanticTimeout()),
			chunker.WithBaseDelay(cfg.Chunking.RetryBaseDelay()),
			chunker.WithLogger(logger),
		)),
		pipeline.WithGate(gate.New(embedding,
			gate.WithMinCoverage(cfg.Gate.MinCoverage),
			gate.WithMinCoherence(cfg.Gate.MinCoherence),
			gate.WithSizeBounds(cfg.Gate.MinParentWords, cfg.Gate.MaxParentWords),
			gate.WithLogger(logger),
		)),
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithGateAttempts(cfg.Pipeline.GateAttempts),
	}
	if engine != nil {
		ocrOpts := []ocr.Option{
			ocr.WithConcurrency(cfg.OCR.Concurrency),
			ocr.WithPageTimeout(cfg.OCR.PageTimeout()),
			ocr.WithMinConfidence(cfg.OCR.MinConfidence),
			ocr.WithMaxLostFraction(cfg.OCR.MaxLostFraction),
			ocr.WithTargetDPI(cfg.OCR.TargetDPI),
			ocr.WithLogger(logger),
		}
		if cfg.OCR.DisablePreprocess {
			ocrOpts = append(ocrOpts, ocr.WithoutPreprocessing())
		}
		pipeOpts = append(pipeOpts, pipeline.WithExtractor(ocr.New(engine, ocrOpts...)))
	}
	if sink != nil {
		pipeOpts = append(pipeOpts, pipeline.WithIndexer(index.New(embedding, sink, index.WithLogger(logger))))
	}
	pipe := pipeline.New(store, provider, engine, pipeOpts...)

	// Open every PDF, then process the batch concurrently.
	sources := make([]kertas.Source, 0, len(paths))
	for _, path := range paths {
		var opts []source.PDFOption
		if imageDir != "" {
			opts = append(opts, source.WithImageDir(imageDir))
		}
		src, err := source.OpenPDF(path, opts...)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}

	results, err := pipe.ProcessBatch(ctx, sources)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		fmt.Printf("%s: route=%s status=%s parents=%d children=%d",
			res.DocumentID, res.Route, res.Status, res.ParentCount, res.ChildCount)
		if res.Reason != "" {
			fmt.Printf(" reason=%q", res.Reason)
		}
		if len(res.FailedPages) > 0 {
			fmt.Printf(" failed_pages=%v", res.FailedPages)
		}
		fmt.Println()
	}
	return nil
}
