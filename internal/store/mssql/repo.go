package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/M21ATS/ProductTrack-Pro/internal/store"
	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// Repo implements store.Store for Microsoft SQL Server.
//
// Same two-table layout as the other backends. SQL Server has no native
// JSON column type, so record fields live in NVARCHAR(MAX); named @p
// parameters are the sqlserver driver's placeholder style.
type Repo struct {
	db *sql.DB
}

func init() {
	store.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
// Connectivity is validated via PingContext.
func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty upload traffic.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Init(ctx context.Context) error {
	ddl := []string{
		`IF OBJECT_ID('datasets', 'U') IS NULL
CREATE TABLE datasets (
  name NVARCHAR(450) PRIMARY KEY,
  headers NVARCHAR(MAX) NOT NULL
);`,
		`IF OBJECT_ID('dataset_rows', 'U') IS NULL
CREATE TABLE dataset_rows (
  dataset NVARCHAR(450) NOT NULL,
  row_id NVARCHAR(64) NOT NULL,
  position BIGINT NOT NULL,
  status NVARCHAR(32) NOT NULL,
  fields NVARCHAR(MAX) NOT NULL,
  PRIMARY KEY (dataset, row_id)
);`,
	}
	for _, q := range ddl {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql: init: %w", err)
		}
	}
	return nil
}

// SaveDataset replaces the stored dataset in one transaction. The dataset
// upsert is UPDATE-then-INSERT on the name primary key; avoids MERGE.
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

	res, err := tx.ExecContext(ctx,
		`UPDATE datasets SET headers = @p1 WHERE name = @p2`,
		string(headers), ds.Name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO datasets (name, headers) VALUES (@p1, @p2)`,
			ds.Name, string(headers)); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_rows WHERE dataset = @p1`, ds.Name); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dataset_rows (dataset, row_id, position, status, fields) VALUES (@p1, @p2, @p3, @p4, @p5)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range ds.Records {
		fields, err := json.Marshal(rec.StripReserved())
		if err != nil {
			return fmt.Errorf("mssql: encode row %s: %w", rec.ID(), err)
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
	err := r.db.QueryRowContext(ctx, `SELECT headers FROM datasets WHERE name = @p1`, name).Scan(&headersRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return rows.Dataset{}, store.ErrNotFound
	}
	if err != nil {
		return rows.Dataset{}, err
	}
	if err := json.Unmarshal([]byte(headersRaw), &ds.Headers); err != nil {
		return rows.Dataset{}, fmt.Errorf("mssql: decode headers for %s: %w", name, err)
	}

	rs, err := r.db.QueryContext(ctx,
		`SELECT row_id, status, fields FROM dataset_rows WHERE dataset = @p1 ORDER BY position`, name)
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
			return rows.Dataset{}, fmt.Errorf("mssql: decode row %s: %w", rowID, err)
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_rows WHERE dataset = @p1`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = @p1`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) UpdateStatus(ctx context.Context, dataset, rowID string, status rows.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dataset_rows SET status = @p1 WHERE dataset = @p2 AND row_id = @p3`,
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

func decodeRecord(rowID, status, fieldsRaw string) (rows.Record, error) {
	rec := rows.Record{}
	if fieldsRaw != "" {
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
