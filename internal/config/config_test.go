package config

import (
	"os"
	"path/filepath"
	"testing"
)

func issueAt(issues []Issue, path string) (Issue, bool) {
	for _, iss := range issues {
		if iss.Path == path {
			return iss, true
		}
	}
	return Issue{}, false
}

// TestValidateDefault verifies the default configuration starts clean.
func TestValidateDefault(t *testing.T) {
	t.Parallel()

	if issues := Validate(Default()); HasError(issues) {
		t.Fatalf("default config has errors: %v", issues)
	}
}

// TestValidate verifies per-field rules and severities.
func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Config)
		path     string
		severity Severity
	}{
		{
			name:     "empty_listen",
			mutate:   func(c *Config) { c.Listen = "  " },
			path:     "listen",
			severity: SeverityError,
		},
		{
			name:     "empty_job_warns",
			mutate:   func(c *Config) { c.Job = "" },
			path:     "job",
			severity: SeverityWarning,
		},
		{
			name:     "unknown_store_kind",
			mutate:   func(c *Config) { c.Store.Kind = "oracle" },
			path:     "store.kind",
			severity: SeverityError,
		},
		{
			name:     "missing_store_kind",
			mutate:   func(c *Config) { c.Store.Kind = "" },
			path:     "store.kind",
			severity: SeverityError,
		},
		{
			name:     "missing_dsn",
			mutate:   func(c *Config) { c.Store.DSN = "" },
			path:     "store.dsn",
			severity: SeverityError,
		},
		{
			name:     "relative_ai_endpoint",
			mutate:   func(c *Config) { c.AI.Endpoint = "/summarize" },
			path:     "ai.endpoint",
			severity: SeverityError,
		},
		{
			name:     "negative_image_results",
			mutate:   func(c *Config) { c.ImageSearch = ImageSearchConfig{Endpoint: "https://img.example.com", MaxResults: -1} },
			path:     "image_search.max_results",
			severity: SeverityError,
		},
		{
			name:     "unknown_metrics_backend",
			mutate:   func(c *Config) { c.Metrics.Backend = "statsd" },
			path:     "metrics.backend",
			severity: SeverityError,
		},
		{
			name:     "aggressive_flush_warns",
			mutate:   func(c *Config) { c.Metrics = MetricsConfig{Backend: "datadog", FlushSeconds: 2} },
			path:     "metrics.flush_seconds",
			severity: SeverityWarning,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tc.mutate(&cfg)

			issues := Validate(cfg)
			iss, ok := issueAt(issues, tc.path)
			if !ok {
				t.Fatalf("no issue at %q; got %v", tc.path, issues)
			}
			if iss.Severity != tc.severity {
				t.Fatalf("severity = %s, want %s", iss.Severity, tc.severity)
			}
		})
	}
}

// TestLoad verifies file decoding, default merging, and rejection of
// unknown fields.
func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	path := filepath.Join(dir, "config.json")
	body := `{
  "listen": ":9000",
  "store": {"kind": "postgres", "dsn": "postgres://localhost/app"},
  "metrics": {"backend": "datadog", "flush_seconds": 30, "tags": "env:test"}
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Store.Kind != "postgres" {
		t.Errorf("Store.Kind = %q", cfg.Store.Kind)
	}
	// Unset fields keep defaults.
	if cfg.Job != "producttrack" {
		t.Errorf("Job = %q, want default", cfg.Job)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"listne": ":9000"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for unknown field")
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
