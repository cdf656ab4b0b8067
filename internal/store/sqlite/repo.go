package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/M21ATS/ProductTrack-Pro/internal/store"
	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// Repo implements store.Store for SQLite.
//
// Layout:
//   - datasets      one row per dataset (name + header order as JSON)
//   - dataset_rows  one row per record, position preserves upload order
//
// Record fields are stored as a JSON TEXT column. Spreadsheet rows are
// schema-less, so a fixed column layout would fight the data model; JSON
// keeps the backend oblivious to whatever headers an upload carries.
type Repo struct {
	db *sql.DB
}

func init() {
	store.Register("sqlite", New)
}

func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
  name TEXT PRIMARY KEY,
  headers TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS dataset_rows (
  dataset TEXT NOT NULL,
  row_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  status TEXT NOT NULL,
  fields TEXT NOT NULL,
  PRIMARY KEY (dataset, row_id)
);`,
		`CREATE INDEX IF NOT EXISTS idx_dataset_rows_order ON dataset_rows (dataset, position);`,
	}
	for _, q := range ddl {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite: init: %w", err)
		}
	}
	return nil
}

// SaveDataset replaces the stored dataset inside a single transaction, so a
// failed re-upload leaves the previous contents intact.
func (r *Repo) SaveDataset(ctx context.Context, ds rows.Dataset) error {
	headers, err := json.Marshal(ds.Headers)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_rows WHERE dataset = ?`, ds.Name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (name, headers) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET headers = excluded.headers`,
		ds.Name, string(headers),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dataset_rows (dataset, row_id, position, status, fields) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range ds.Records {
		fields, err := json.Marshal(rec.StripReserved())
		if err != nil {
			return fmt.Errorf("sqlite: encode row %s: %w", rec.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx, ds.Name, rec.ID(), i, string(rec.Status()), string(fields)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repo) LoadDataset(ctx context.Context, name string) (rows.Dataset, error) {
	ds := rows.Dataset{Name: name}

	var headersRaw string
	err := r.db.QueryRowContext(ctx, `SELECT headers FROM datasets WHERE name = ?`, name).Scan(&headersRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return rows.Dataset{}, store.ErrNotFound
	}
	if err != nil {
		return rows.Dataset{}, err
	}
	if err := json.Unmarshal([]byte(headersRaw), &ds.Headers); err != nil {
		return rows.Dataset{}, fmt.Errorf("sqlite: decode headers for %s: %w", name, err)
	}

	rs, err := r.db.QueryContext(ctx,
		`SELECT row_id, status, fields FROM dataset_rows WHERE dataset = ? ORDER BY position`, name)
	if err != nil {
		return rows.Dataset{}, err
	}
	defer rs.Close()

	for rs.Next() {
		var rowID, status, fieldsRaw string
		if err := rs.Scan(&rowID, &status, &fieldsRaw); err != nil {
			return rows.Dataset{}, err
		}
		rec, err := decodeRecord(rowID, status, fieldsRaw)
		if err != nil {
			return rows.Dataset{}, fmt.Errorf("sqlite: decode row %s: %w", rowID, err)
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, rs.Err()
}

func (r *Repo) ListDatasets(ctx context.Context) ([]string, error) {
	rs, err := r.db.QueryContext(ctx, `SELECT name FROM datasets ORDER BY name`)
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_rows WHERE dataset = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) UpdateStatus(ctx context.Context, dataset, rowID string, status rows.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dataset_rows SET status = ? WHERE dataset = ? AND row_id = ?`,
		string(status), dataset, rowID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// decodeRecord rebuilds a Record from the stored JSON fields plus the
// reserved columns. Unknown status strings fall back to incomplete, matching
// the in-memory behavior for malformed rows.
func decodeRecord(rowID, status, fieldsRaw string) (rows.Record, error) {
	rec := rows.Record{}
	if strings.TrimSpace(fieldsRaw) != "" {
		if err := json.Unmarshal([]byte(fieldsRaw), &rec); err != nil {
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
