// Package config loads and validates the pipeline configuration.
// Configuration is read once at startup and treated as immutable for the
// lifetime of a document run.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Sampler   SamplerConfig   `toml:"sampler"`
	OCR       OCRConfig       `toml:"ocr"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Gate      GateConfig      `toml:"gate"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Store     StoreConfig     `toml:"store"`
	Observer  ObserverConfig  `toml:"observer"`
}

// SamplerConfig tunes the classification sampler.
type SamplerConfig struct {
	SampleSize      int     `toml:"sample_size"`
	MinTextLength   int     `toml:"min_text_length"`
	NativeThreshold float64 `toml:"native_threshold"`
}

// OCRConfig tunes the recognition pool.
type OCRConfig struct {
	Languages           []string `toml:"languages"`
	MinConfidence       float64  `toml:"min_confidence"`
	Concurrency         int      `toml:"concurrency"`
	PageTimeoutSeconds  int      `toml:"page_timeout_seconds"`
	MaxLostFraction     float64  `toml:"max_lost_fraction"`
	TargetDPI           int      `toml:"target_dpi"`
	DisablePreprocess   bool     `toml:"disable_preprocess"`
	CredentialsFilePath string   `toml:"credentials_file"`
}

// ChunkingConfig tunes both chunking paths.
type ChunkingConfig struct {
	ParentChars            int     `toml:"parent_chars"`
	ChildChars             int     `toml:"child_chars"`
	ChildOverlap           int     `toml:"child_overlap"`
	MaxChildren            int     `toml:"max_children"`
	MaxAttempts            int     `toml:"max_attempts"`
	SemanticTimeoutSeconds int     `toml:"semantic_timeout_seconds"`
	RetryBaseDelaySeconds  float64 `toml:"retry_base_delay_seconds"`
}

// GateConfig tunes the quality gate.
type GateConfig struct {
	MinCoverage    float64 `toml:"min_coverage"`
	MinCoherence   float64 `toml:"min_coherence"`
	MinParentWords int     `toml:"min_parent_words"`
	MaxParentWords int     `toml:"max_parent_words"`
}

// PipelineConfig tunes orchestration.
type PipelineConfig struct {
	Workers      int `toml:"workers"`
	GateAttempts int `toml:"gate_attempts"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

// StoreConfig selects and configures the chunk store.
type StoreConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	Path   string `toml:"path"`   // sqlite file path
	DSN    string `toml:"dsn"`    // postgres connection string
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Sampler: SamplerConfig{
			SampleSize:      5,
			MinTextLength:   50,
			NativeThreshold: 0.8,
		},
		OCR: OCRConfig{
			Languages:          []string{"en"},
			MinConfidence:      60,
			Concurrency:        3,
			PageTimeoutSeconds: 45,
			MaxLostFraction:    0.5,
			TargetDPI:          300,
		},
		Chunking: ChunkingConfig{
			ParentChars:            1000,
			ChildChars:             300,
			ChildOverlap:           45,
			MaxChildren:            10,
			MaxAttempts:            3,
			SemanticTimeoutSeconds: 120,
			RetryBaseDelaySeconds:  2,
		},
		Gate: GateConfig{
			MinCoverage:    0.85,
			MinCoherence:   0.80,
			MinParentWords: 200,
			MaxParentWords: 800,
		},
		Pipeline: PipelineConfig{
			Workers:      4,
			GateAttempts: 3,
		},
		LLM:       LLMConfig{Provider: "gemini", Model: "gemini-2.5-flash"},
		Embedding: EmbeddingConfig{Provider: "gemini", Model: "gemini-embedding-001", Dimensions: 768},
		Store:     StoreConfig{Driver: "sqlite", Path: "kertas.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "kertas.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Env overrides
	if v := os.Getenv("KERTAS_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("KERTAS_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("KERTAS_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("KERTAS_OCR_CREDENTIALS_FILE"); v != "" {
		cfg.OCR.CredentialsFilePath = v
	}
	if v := os.Getenv("KERTAS_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// PageTimeout returns the OCR per-page timeout as a Duration.
func (c OCRConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// SemanticTimeout returns the semantic generation timeout as a Duration.
func (c ChunkingConfig) SemanticTimeout() time.Duration {
	return time.Duration(c.SemanticTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the semantic retry base delay as a Duration.
func (c ChunkingConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySeconds * float64(time.Second))
}

// Validate checks value ranges. It is called by Load; callers constructing
// a Config by hand should call it themselves before wiring the pipeline.
func (c Config) Validate() error {
	if c.Sampler.SampleSize <= 0 {
		return fmt.Errorf("config: sampler.sample_size must be positive, got %d", c.Sampler.SampleSize)
	}
	if c.Sampler.MinTextLength <= 0 {
		return fmt.Errorf("config: sampler.min_text_length must be positive, got %d", c.Sampler.MinTextLength)
	}
	if c.Sampler.NativeThreshold < 0 || c.Sampler.NativeThreshold > 1 {
		return fmt.Errorf("config: sampler.native_threshold must be in [0,1], got %g", c.Sampler.NativeThreshold)
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 100 {
		return fmt.Errorf("config: ocr.min_confidence must be in [0,100], got %g", c.OCR.MinConfidence)
	}
	if c.OCR.Concurrency <= 0 {
		return fmt.Errorf("config: ocr.concurrency must be positive, got %d", c.OCR.Concurrency)
	}
	if c.OCR.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("config: ocr.page_timeout_seconds must be positive, got %d", c.OCR.PageTimeoutSeconds)
	}
	if c.OCR.MaxLostFraction < 0 || c.OCR.MaxLostFraction > 1 {
		return fmt.Errorf("config: ocr.max_lost_fraction must be in [0,1], got %g", c.OCR.MaxLostFraction)
	}
	if c.Chunking.ParentChars <= 0 || c.Chunking.ChildChars <= 0 {
		return fmt.Errorf("config: chunking sizes must be positive")
	}
	if c.Chunking.ChildOverlap < 0 || c.Chunking.ChildOverlap >= c.Chunking.ChildChars {
		return fmt.Errorf("config: chunking.child_overlap must be in [0, child_chars), got %d", c.Chunking.ChildOverlap)
	}
	if c.Chunking.MaxAttempts <= 0 {
		return fmt.Errorf("config: chunking.max_attempts must be positive, got %d", c.Chunking.MaxAttempts)
	}
	if c.Gate.MinCoverage < 0 || c.Gate.MinCoverage > 1 {
		return fmt.Errorf("config: gate.min_coverage must be in [0,1], got %g", c.Gate.MinCoverage)
	}
	if c.Gate.MinCoherence < 0 || c.Gate.MinCoherence > 1 {
		return fmt.Errorf("config: gate.min_coherence must be in [0,1], got %g", c.Gate.MinCoherence)
	}
	if c.Gate.MinParentWords < 0 || c.Gate.MaxParentWords < c.Gate.MinParentWords {
		return fmt.Errorf("config: gate parent word bounds invalid: [%d, %d]", c.Gate.MinParentWords, c.Gate.MaxParentWords)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("config: pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.GateAttempts <= 0 {
		return fmt.Errorf("config: pipeline.gate_attempts must be positive, got %d", c.Pipeline.GateAttempts)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	return nil
}
