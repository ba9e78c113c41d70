package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.ClassifyK != 5 || cfg.ClassifyThreshold != 0.7 || cfg.ClassifySample != 500 {
		t.Fatalf("classifier defaults = %d %v %d", cfg.ClassifyK, cfg.ClassifyThreshold, cfg.ClassifySample)
	}
	if cfg.ClassifyTimeout != 10*time.Second || cfg.ClassifyInferTO != 3*time.Minute {
		t.Fatalf("classifier timeouts = %v %v", cfg.ClassifyTimeout, cfg.ClassifyInferTO)
	}
	if cfg.ExtractMinChar != 100 {
		t.Fatalf("min chars = %d", cfg.ExtractMinChar)
	}
	if cfg.KnowledgeSample != 200 || cfg.KnowledgeTopK != 5 || cfg.KnowledgeMaxKeywords != 3 {
		t.Fatalf("knowledge defaults = %d %d %d", cfg.KnowledgeSample, cfg.KnowledgeTopK, cfg.KnowledgeMaxKeywords)
	}
	if len(cfg.LLMProviders) != 4 || cfg.LLMProviders[0] != "openai" {
		t.Fatalf("providers = %v", cfg.LLMProviders)
	}
	if cfg.LLMProviderTimeout != 60*time.Second {
		t.Fatalf("provider timeout = %v", cfg.LLMProviderTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDERS", " Ollama , openai ")
	t.Setenv("CLASSIFY_SAMPLE", "9000")
	t.Setenv("KNOWLEDGE_SAMPLE", "50")
	t.Setenv("OBJECT_LOCATIONS", "s3,local,s3,gcs")
	t.Setenv("KNOWLEDGE_BACKEND", "Chromem")
	t.Setenv("ENV", "prod")

	cfg := Load()

	if got := cfg.LLMProviders; len(got) != 2 || got[0] != "ollama" || got[1] != "openai" {
		t.Fatalf("providers = %v", got)
	}
	if cfg.ClassifySample != 500 {
		t.Fatalf("exemplar sample should be capped, got %d", cfg.ClassifySample)
	}
	if cfg.KnowledgeSample != 50 {
		t.Fatalf("knowledge sample = %d", cfg.KnowledgeSample)
	}
	if got := cfg.ObjectLocations; len(got) != 3 || got[0] != "s3" || got[1] != "local" || got[2] != "gcs" {
		t.Fatalf("locations = %v", got)
	}
	if cfg.KnowledgeBackend != "chromem" {
		t.Fatalf("backend = %q", cfg.KnowledgeBackend)
	}
	if cfg.Env != "production" {
		t.Fatalf("env = %q", cfg.Env)
	}
}

func TestLoadFileThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("CLASSIFY_K: 7\nPORT: \"9000\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PORT", "9100")

	cfg := LoadFile(path)

	if cfg.ClassifyK != 7 {
		t.Fatalf("k = %d", cfg.ClassifyK)
	}
	if cfg.Port != "9100" {
		t.Fatalf("env should win over file, got %q", cfg.Port)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("split = %v", got)
	}
}

func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		in      string
		key     string
		val     string
		matched bool
	}{
		{"FOO=bar", "FOO", "bar", true},
		{"export FOO=\"bar baz\"", "FOO", "bar baz", true},
		{"# comment", "", "", false},
		{"novalue", "", "", false},
	}
	for _, tc := range cases {
		k, v, ok := parseEnvLine(tc.in)
		if ok != tc.matched || k != tc.key || v != tc.val {
			t.Fatalf("parseEnvLine(%q) = %q %q %v", tc.in, k, v, ok)
		}
	}
}
