package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsValidate(t *testing.T) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.TopK != 5 || cfg.RawN != 50 {
		t.Fatalf("unexpected retrieval defaults: top_k=%d raw_n=%d", cfg.TopK, cfg.RawN)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CIVICCITE_MIN_SIMILARITY", "0.72")
	t.Setenv("CIVICCITE_REQUEST_TIMEOUT", "9s")
	t.Setenv("CIVICCITE_TOP_K", "not-a-number")
	cfg := Load()
	if cfg.MinSimilarity != 0.72 {
		t.Fatalf("min similarity: got %v", cfg.MinSimilarity)
	}
	if cfg.RequestTimeout != 9*time.Second {
		t.Fatalf("request timeout: got %v", cfg.RequestTimeout)
	}
	if cfg.TopK != 5 {
		t.Fatalf("unparseable int should fall back, got %d", cfg.TopK)
	}
}

func TestValidateRejectsRawNNotAboveK(t *testing.T) {
	cfg := Load()
	cfg.RawN = cfg.MaxTopK
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when raw_n <= max_top_k")
	}
}

func TestValidateRejectsChunkBounds(t *testing.T) {
	cfg := Load()
	cfg.ChunkMinTokens = 800
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when min tokens exceed max tokens")
	}
}

func TestGetenvBool(t *testing.T) {
	t.Setenv("CIVICCITE_AUDIT_S3_PATH_STYLE", "true")
	if !Load().AuditS3PathStyle {
		t.Fatalf("expected path style to be enabled")
	}
	t.Setenv("CIVICCITE_AUDIT_S3_PATH_STYLE", "maybe")
	if Load().AuditS3PathStyle {
		t.Fatalf("unparseable bool should fall back to false")
	}
}

func TestHNSWDefaultsAndBounds(t *testing.T) {
	cfg := Load()
	if !cfg.HNSWIterativeScan || cfg.HNSWEFSearch < cfg.RawN {
		t.Fatalf("hnsw defaults must cover raw_n: ef_search=%d iterative=%v", cfg.HNSWEFSearch, cfg.HNSWIterativeScan)
	}
	cfg.HNSWEFSearch = 5000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for ef_search above 1000")
	}
}
