package postgres

import "github.com/M21ATS/ProductTrack-Pro/internal/store"

func init() {
	// registers the postgres backend factory
	store.Register("postgres", New)
}
