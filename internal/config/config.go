// Package config holds the server configuration and its validation rules.
//
// Configuration is plain JSON decoded into Config. Validation returns a list
// of issues rather than a single error so operators see every problem in one
// pass; only error-severity issues block startup.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path points into the config structure
// using dotted notation (e.g. "store.dsn").
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Kind is a registered backend: "sqlite", "postgres" or "mssql".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// AIConfig configures the row summary endpoint.
type AIConfig struct {
	Endpoint       string `json:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ImageSearchConfig configures the product image scraper.
type ImageSearchConfig struct {
	Endpoint   string `json:"endpoint"`
	MaxResults int    `json:"max_results"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "datadog" or "none". Empty means none.
	Backend      string `json:"backend"`
	FlushSeconds int    `json:"flush_seconds"`
	// Tags is comma-separated extra tags, e.g. "env:prod,team:data".
	Tags string `json:"tags"`
}

// IngestConfig bounds file decoding.
type IngestConfig struct {
	// MaxRows caps rows decoded per upload. 0 uses the decoder default;
	// negative disables the cap.
	MaxRows int `json:"max_rows"`
}

// Config is the full server configuration.
type Config struct {
	// Job names this deployment in logs and metric tags.
	Job    string `json:"job"`
	Listen string `json:"listen"`

	Store       StoreConfig       `json:"store"`
	AI          AIConfig          `json:"ai"`
	ImageSearch ImageSearchConfig `json:"image_search"`
	Metrics     MetricsConfig     `json:"metrics"`
	Ingest      IngestConfig      `json:"ingest"`
}

// Default returns a configuration that runs standalone: local SQLite file,
// no metrics, no external endpoints.
func Default() Config {
	return Config{
		Job:    "producttrack",
		Listen: ":8080",
		Store: StoreConfig{
			Kind: "sqlite",
			DSN:  "producttrack.db",
		},
	}
}

// Load reads and decodes a JSON config file. Fields absent from the file
// keep their Default() values.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration and returns all findings. A config with
// no error-severity issues is runnable; warnings flag likely mistakes that
// do not prevent startup.
func Validate(cfg Config) []Issue {
	var issues []Issue

	addErr := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	addWarn := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Listen) == "" {
		addErr("listen", "listen address must not be empty")
	}
	if strings.TrimSpace(cfg.Job) == "" {
		addWarn("job", "job name is empty; metrics and logs will use defaults")
	}

	switch cfg.Store.Kind {
	case "sqlite", "postgres", "mssql":
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			addErr("store.dsn", "dsn must not be empty for kind=%s", cfg.Store.Kind)
		}
	case "":
		addErr("store.kind", "store kind must be set (sqlite, postgres, mssql)")
	default:
		addErr("store.kind", "unknown store kind %q (want sqlite, postgres, mssql)", cfg.Store.Kind)
	}

	if cfg.AI.Endpoint != "" {
		if !isAbsoluteURL(cfg.AI.Endpoint) {
			addErr("ai.endpoint", "endpoint %q must be an absolute URL", cfg.AI.Endpoint)
		}
		if cfg.AI.TimeoutSeconds < 0 {
			addErr("ai.timeout_seconds", "timeout must not be negative")
		}
	}

	if cfg.ImageSearch.Endpoint != "" {
		if !isAbsoluteURL(cfg.ImageSearch.Endpoint) {
			addErr("image_search.endpoint", "endpoint %q must be an absolute URL", cfg.ImageSearch.Endpoint)
		}
		if cfg.ImageSearch.MaxResults < 0 {
			addErr("image_search.max_results", "max_results must not be negative")
		}
	}

	switch cfg.Metrics.Backend {
	case "", "none", "datadog":
	default:
		addErr("metrics.backend", "unknown metrics backend %q (want datadog, none)", cfg.Metrics.Backend)
	}
	if cfg.Metrics.FlushSeconds < 0 {
		addErr("metrics.flush_seconds", "flush_seconds must not be negative")
	}
	if cfg.Metrics.Backend == "datadog" && cfg.Metrics.FlushSeconds > 0 && cfg.Metrics.FlushSeconds < 10 {
		addWarn("metrics.flush_seconds", "flushing every %ds is aggressive; consider >= 10s", cfg.Metrics.FlushSeconds)
	}

	return issues
}

// HasError reports whether any issue blocks startup.
func HasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
