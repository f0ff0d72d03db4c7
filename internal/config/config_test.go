package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sampler.SampleSize != 5 {
		t.Errorf("SampleSize = %d, want 5", cfg.Sampler.SampleSize)
	}
	if cfg.Gate.MinCoverage != 0.85 {
		t.Errorf("MinCoverage = %g, want 0.85", cfg.Gate.MinCoverage)
	}
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kertas.toml")
	data := `
[sampler]
sample_size = 3

[ocr]
concurrency = 8
languages = ["en", "id"]

[gate]
min_coverage = 0.9

[store]
driver = "postgres"
dsn = "postgres://localhost/kertas"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sampler.SampleSize != 3 {
		t.Errorf("SampleSize = %d, want 3", cfg.Sampler.SampleSize)
	}
	if cfg.OCR.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.OCR.Concurrency)
	}
	if len(cfg.OCR.Languages) != 2 || cfg.OCR.Languages[1] != "id" {
		t.Errorf("Languages = %v", cfg.OCR.Languages)
	}
	if cfg.Gate.MinCoverage != 0.9 {
		t.Errorf("MinCoverage = %g, want 0.9", cfg.Gate.MinCoverage)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Driver = %q", cfg.Store.Driver)
	}
	// Untouched sections keep defaults.
	if cfg.Chunking.ParentChars != 1000 {
		t.Errorf("ParentChars = %d, want 1000", cfg.Chunking.ParentChars)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kertas.toml")
	data := `
[llm]
api_key = "from-file"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KERTAS_LLM_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.LLM.APIKey)
	}
	// Embedding key falls back to the LLM key.
	if cfg.Embedding.APIKey != "from-env" {
		t.Errorf("Embedding.APIKey = %q, want from-env", cfg.Embedding.APIKey)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample size", func(c *Config) { c.Sampler.SampleSize = 0 }},
		{"threshold above one", func(c *Config) { c.Sampler.NativeThreshold = 1.5 }},
		{"negative confidence", func(c *Config) { c.OCR.MinConfidence = -1 }},
		{"lost fraction above one", func(c *Config) { c.OCR.MaxLostFraction = 1.2 }},
		{"overlap at child size", func(c *Config) { c.Chunking.ChildOverlap = c.Chunking.ChildChars }},
		{"coverage above one", func(c *Config) { c.Gate.MinCoverage = 2 }},
		{"inverted word bounds", func(c *Config) { c.Gate.MinParentWords = 900 }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongodb" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("want validation error")
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if cfg.OCR.PageTimeout() != 45*time.Second {
		t.Errorf("PageTimeout = %v", cfg.OCR.PageTimeout())
	}
	if cfg.Chunking.SemanticTimeout() != 2*time.Minute {
		t.Errorf("SemanticTimeout = %v", cfg.Chunking.SemanticTimeout())
	}
	if cfg.Chunking.RetryBaseDelay() != 2*time.Second {
		t.Errorf("RetryBaseDelay = %v", cfg.Chunking.RetryBaseDelay())
	}
}
