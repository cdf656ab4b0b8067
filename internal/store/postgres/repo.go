package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/M21ATS/ProductTrack-Pro/internal/store"
	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

/*
Repo implements store.Store for Postgres.

Schema mirrors the SQLite backend but uses JSONB for record fields and
relies on ON CONFLICT for the dataset upsert. Row order is preserved
through an explicit position column; JSONB object key order is not stable
and must not be relied on.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed Repo from a pgx pool DSN.
func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
  name TEXT PRIMARY KEY,
  headers JSONB NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS dataset_rows (
  dataset TEXT NOT NULL REFERENCES datasets (name) ON DELETE CASCADE,
  row_id TEXT NOT NULL,
  position BIGINT NOT NULL,
  status TEXT NOT NULL,
  fields JSONB NOT NULL,
  PRIMARY KEY (dataset, row_id)
);`,
		`CREATE INDEX IF NOT EXISTS idx_dataset_rows_order ON dataset_rows (dataset, position);`,
	}
	for _, q := range ddl {
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// SaveDataset replaces the stored dataset in one transaction. Rows go in
// through a pgx batch, which keeps round trips flat for large uploads.
func (r *Repo) SaveDataset(ctx context.Context, ds rows.Dataset) error {
	headers, err := json.Marshal(ds.Headers)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO datasets (name, headers) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET headers = EXCLUDED.headers`,
		ds.Name, headers,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM dataset_rows WHERE dataset = $1`, ds.Name); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, rec := range ds.Records {
		fields, err := json.Marshal(rec.StripReserved())
		if err != nil {
			return fmt.Errorf("postgres: encode row %s: %w", rec.ID(), err)
		}
		batch.Queue(
			`INSERT INTO dataset_rows (dataset, row_id, position, status, fields) VALUES ($1, $2, $3, $4, $5)`,
			ds.Name, rec.ID(), i, string(rec.Status()), fields,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repo) LoadDataset(ctx context.Context, name string) (rows.Dataset, error) {
	ds := rows.Dataset{Name: name}

	var headersRaw []byte
	err := r.pool.QueryRow(ctx, `SELECT headers FROM datasets WHERE name = $1`, name).Scan(&headersRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return rows.Dataset{}, store.ErrNotFound
	}
	if err != nil {
		return rows.Dataset{}, err
	}
	if err := json.Unmarshal(headersRaw, &ds.Headers); err != nil {
		return rows.Dataset{}, fmt.Errorf("postgres: decode headers for %s: %w", name, err)
	}

	rs, err := r.pool.Query(ctx,
		`SELECT row_id, status, fields FROM dataset_rows WHERE dataset = $1 ORDER BY position`, name)
	if err != nil {
		return rows.Dataset{}, err
	}
	defer rs.Close()

	for rs.Next() {
		var rowID, status string
		var fieldsRaw []byte
		if err := rs.Scan(&rowID, &status, &fieldsRaw); err != nil {
			return rows.Dataset{}, err
		}
		rec, err := decodeRecord(rowID, status, fieldsRaw)
		if err != nil {
			return rows.Dataset{}, fmt.Errorf("postgres: decode row %s: %w", rowID, err)
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, rs.Err()
}

func (r *Repo) ListDatasets(ctx context.Context) ([]string, error) {
	rs, err := r.pool.Query(ctx, `SELECT name FROM datasets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var names []string
	for rs.Next() {
		var n string
		if err := rs.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rs.Err()
}

func (r *Repo) DeleteDataset(ctx context.Context, name string) error {
	// dataset_rows goes away via ON DELETE CASCADE.
	_, err := r.pool.Exec(ctx, `DELETE FROM datasets WHERE name = $1`, name)
	return err
}

func (r *Repo) UpdateStatus(ctx context.Context, dataset, rowID string, status rows.Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE dataset_rows SET status = $1 WHERE dataset = $2 AND row_id = $3`,
		string(status), dataset, rowID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func decodeRecord(rowID, status string, fieldsRaw []byte) (rows.Record, error) {
	rec := rows.Record{}
	if len(fieldsRaw) > 0 {
		if err := json.Unmarshal(fieldsRaw, &rec); err != nil {
			return nil, err
		}
	}
	rec[rows.FieldID] = rowID

	st := rows.Status(status)
	if !st.Valid() {
		st = rows.StatusIncomplete
	}
	rec[rows.FieldStatus] = string(st)
	return rec, nil
}
