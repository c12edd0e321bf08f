package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DailyAnalysisLimit != 50 {
		t.Errorf("DailyAnalysisLimit = %d, want 50", cfg.DailyAnalysisLimit)
	}
	if cfg.MaxConcurrentAnalyses != 1 {
		t.Errorf("MaxConcurrentAnalyses = %d, want 1", cfg.MaxConcurrentAnalyses)
	}
	if cfg.CacheDurationDays != 30 {
		t.Errorf("CacheDurationDays = %d, want 30", cfg.CacheDurationDays)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DailyAnalysisLimit = 2
	cfg.AutoAnalyze = true
	cfg.AdditionalPaths = []string{"/extra/sessions"}

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.DailyAnalysisLimit != 2 {
		t.Errorf("DailyAnalysisLimit = %d, want 2", loaded.DailyAnalysisLimit)
	}
	if !loaded.AutoAnalyze {
		t.Error("AutoAnalyze should survive the round trip")
	}
	if len(loaded.AdditionalPaths) != 1 || loaded.AdditionalPaths[0] != "/extra/sessions" {
		t.Errorf("AdditionalPaths = %v", loaded.AdditionalPaths)
	}
}

func TestLoadConfigRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(dir); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero daily limit is allowed", func(c *Config) { c.DailyAnalysisLimit = 0 }, false},
		{"negative daily limit", func(c *Config) { c.DailyAnalysisLimit = -1 }, true},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentAnalyses = 0 }, true},
		{"bad version", func(c *Config) { c.Version = 9 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnalysisTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.AnalysisTimeout() != 60*time.Second {
		t.Errorf("AnalysisTimeout = %v, want 60s", cfg.AnalysisTimeout())
	}

	cfg.AnalysisTimeoutMs = 0
	if cfg.AnalysisTimeout() != 60*time.Second {
		t.Error("zero timeout should fall back to the default")
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	t.Setenv("SKB_DATA_DIR", "/custom/dir")
	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir failed: %v", err)
	}
	if dir != "/custom/dir" {
		t.Errorf("DataDir = %q, want /custom/dir", dir)
	}
}
