// Package store defines the backend-agnostic dataset repository and the
// factory registry the concrete backends plug into.
//
// The interface is intentionally minimal and focused on what the viewer
// needs: whole-dataset save/load (uploads replace datasets atomically),
// per-row status updates, listing, and deletion. Each backend implements
// these semantics in its own idiomatic way (Postgres and SQLite ON
// CONFLICT, MSSQL update-then-insert).
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// ErrNotFound is returned when a dataset or row does not exist.
var ErrNotFound = errors.New("store: not found")

// Config is the minimal configuration needed to create a Store.
type Config struct {
	// Kind selects a registered backend ("sqlite", "postgres", "mssql").
	Kind string
	// DSN is passed through to the backend factory; validation is
	// backend-specific.
	DSN string
}

// Store is the persistence boundary for named datasets.
//
// Implementations must keep SaveDataset atomic: a re-upload either fully
// replaces the previous rows or leaves them untouched on error. The grid
// layer relies on that to stay consistent with what it has in memory.
type Store interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// Init creates tables as needed; idempotent.
	Init(ctx context.Context) error

	// SaveDataset stores the dataset under its name, replacing any
	// previous contents.
	SaveDataset(ctx context.Context, ds rows.Dataset) error

	// LoadDataset returns the dataset by name, records in stored order.
	// Returns ErrNotFound for unknown names.
	LoadDataset(ctx context.Context, name string) (rows.Dataset, error)

	// ListDatasets returns all dataset names, sorted.
	ListDatasets(ctx context.Context) ([]string, error)

	// DeleteDataset removes the dataset and all its rows. Deleting an
	// unknown dataset is not an error.
	DeleteDataset(ctx context.Context, name string) error

	// UpdateStatus persists a row's completion status. Returns ErrNotFound
	// when the dataset/row pair does not exist.
	UpdateStatus(ctx context.Context, dataset, rowID string, status rows.Status) error
}

// ---- factory registry (mirrors the backend registration pattern) ----

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind. Call from an init() function
// in the backend package. Registering the same kind twice panics.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("store: Register called with empty kind")
	}
	if f == nil {
		panic("store: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("store: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("store: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("store: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
