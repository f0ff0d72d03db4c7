// Package kertas is a hybrid document chunking pipeline for PDF ingestion in Go.
//
// It classifies each incoming document as native text or scanned imagery,
// then routes it down one of two processing paths: a structural chunker
// driven by heading hierarchy, or an OCR extraction stage followed by an
// LLM-driven semantic chunker. Both paths produce the same parent/child
// chunk hierarchy, which a quality gate validates before persistence.
//
// # Quick Start
//
// Process a document end to end with the pipeline:
//
//	provider := kertas.WithRetry(gemini.New(apiKey, model))
//	embedding := gemini.NewEmbedding(apiKey, embedModel, 768)
//	store := sqlite.New("kertas.db")
//	engine, _ := vision.New(ctx, "")
//
//	pipe := pipeline.New(store, provider, engine,
//		pipeline.WithGate(gate.New(embedding)),
//	)
//
//	result, err := pipe.Process(ctx, source)
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Source] — opaque handle to one document's pages (text and images)
//   - [Provider] — LLM backend with schema-constrained structured output
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [Engine] — per-page text recognition
//   - [Store] — insert-only chunk persistence
//   - [VectorSink] — retrieval index for embedded child chunks
//   - [ProgressSink] — pipeline milestone observation
//
// # Included Implementations
//
// Providers: provider/gemini (Google Gemini chat, structured output, embedding).
// Recognition: ocr/vision (Google Cloud Vision document text detection).
// Storage: store/sqlite (local), store/postgres (pgx pool).
// Sources: source (PDF text layer, page-image directories).
//
// See the cmd/kertas_example directory for a complete reference application.
package kertas
