// Package server exposes the grid over a JSON HTTP API.
//
// One grid.Table exists per dataset, demand-loaded from the store and kept
// in memory. Tables are not concurrency-safe, so all access goes through the
// server mutex; the work under the lock is in-memory filtering over modest
// row counts, which keeps contention irrelevant in practice.
//
// API errors follow one rule: a failing collaborator (store, summary
// endpoint, image search) degrades that one response and nothing else. The
// grid itself never becomes unusable because an external call failed.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/M21ATS/ProductTrack-Pro/internal/ai"
	"github.com/M21ATS/ProductTrack-Pro/internal/grid"
	"github.com/M21ATS/ProductTrack-Pro/internal/ingest"
	"github.com/M21ATS/ProductTrack-Pro/internal/metrics"
	"github.com/M21ATS/ProductTrack-Pro/internal/store"
	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// maxUploadBytes bounds multipart uploads. Spreadsheets beyond this are not
// viewer material.
const maxUploadBytes = 64 << 20

// Summarizer produces a summary for the rows currently in view.
type Summarizer interface {
	Summarize(ctx context.Context, dataset string, headers []string, recs []rows.Record) (ai.Summary, error)
}

// ImageSearcher finds candidate product images for a display name.
type ImageSearcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Options wires the server's collaborators. Store is required; AI and
// Images may be nil, which disables the corresponding endpoints.
type Options struct {
	Store  store.Store
	AI     Summarizer
	Images ImageSearcher

	// IngestMaxRows caps rows per upload; 0 uses the decoder default.
	IngestMaxRows int

	Log *log.Logger
}

// Server is the HTTP API. Create with New, serve via Handler().
type Server struct {
	store  store.Store
	ai     Summarizer
	images ImageSearcher

	ingestMaxRows int
	log           *log.Logger

	mu     sync.Mutex
	tables map[string]*grid.Table
}

// New constructs a Server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: Store is required")
	}
	logger := opts.Log
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		store:         opts.Store,
		ai:            opts.AI,
		images:        opts.Images,
		ingestMaxRows: opts.IngestMaxRows,
		log:           logger,
		tables:        make(map[string]*grid.Table),
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(name, h))
	}

	route("POST /api/datasets", "upload", s.handleUpload)
	route("GET /api/datasets", "list", s.handleList)
	route("DELETE /api/datasets/{name}", "delete", s.handleDelete)

	route("GET /api/datasets/{name}/rows", "rows", s.handleRows)
	route("GET /api/datasets/{name}/tags", "tags", s.handleTags)
	route("GET /api/datasets/{name}/columns", "columns", s.handleColumns)
	route("PUT /api/datasets/{name}/columns", "set_columns", s.handleSetColumns)

	route("POST /api/datasets/{name}/rows/{id}/status", "toggle_status", s.handleToggleStatus)
	route("POST /api/datasets/{name}/rows/{id}/expand", "toggle_expand", s.handleToggleExpand)
	route("GET /api/datasets/{name}/rows/{id}/images", "images", s.handleImages)

	route("POST /api/datasets/{name}/summary", "summary", s.handleSummary)

	return mux
}

// instrument wraps a handler with request/error counters and a latency
// histogram keyed by route name.
func instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next(sw, r)

		labels := metrics.Labels{"route": route, "status": strconv.Itoa(sw.status)}
		metrics.IncCounter(metrics.APIRequestsTotal, 1, labels)
		if sw.status >= 400 {
			metrics.IncCounter(metrics.APIErrorsTotal, 1, labels)
		}
		metrics.ObserveHistogram(metrics.APISeconds, time.Since(start).Seconds(), metrics.Labels{"route": route})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// table returns the grid for a dataset, loading it from the store on first
// access. Callers must hold s.mu.
func (s *Server) table(ctx context.Context, name string) (*grid.Table, error) {
	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	ds, err := s.store.LoadDataset(ctx, name)
	if err != nil {
		return nil, err
	}

	t := grid.NewTable(s.persistStatus(name))
	t.Load(ds)
	s.tables[name] = t
	return t, nil
}

// persistStatus returns the status-change callback for a dataset. Persistence
// is best effort: the in-memory toggle already happened and must not be
// rolled back by a storage hiccup.
func (s *Server) persistStatus(dataset string) grid.StatusChangeFn {
	return func(rowID string, newStatus rows.Status) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.UpdateStatus(ctx, dataset, rowID, newStatus); err != nil {
			s.log.Printf("persist status %s/%s: %v", dataset, rowID, err)
		}
	}
}

//
// handlers
//

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	ds, err := s.decodeUpload(file, header.Filename, r.FormValue("name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.SaveDataset(r.Context(), ds); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("save dataset: %w", err))
		return
	}
	metrics.IncCounter(metrics.UploadsTotal, 1, nil)

	s.mu.Lock()
	t := grid.NewTable(s.persistStatus(ds.Name))
	t.Load(ds)
	s.tables[ds.Name] = t
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"dataset": ds.Name,
		"headers": ds.Headers,
		"rows":    len(ds.Records),
	})
}

// decodeUpload sniffs the format from the filename and content and decodes.
func (s *Server) decodeUpload(file io.Reader, filename, name string) (rows.Dataset, error) {
	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	head = head[:n]
	body := io.MultiReader(bytes.NewReader(head), file)

	format := ingest.DetectFormat(filename, head)
	skipped := 0
	opt := ingest.Options{
		Name:    name,
		MaxRows: s.ingestMaxRows,
		OnError: func(line int, err error) {
			skipped++
			s.log.Printf("upload %s: skipped line %d: %v", filename, line, err)
		},
	}
	if opt.Name == "" {
		base := filepath.Base(filename)
		opt.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if opt.Name == "" || opt.Name == "." {
		return rows.Dataset{}, fmt.Errorf("upload needs a dataset name")
	}

	var (
		ds  rows.Dataset
		err error
	)
	switch format {
	case ingest.FormatCSV:
		ds, err = ingest.DecodeCSV(body, opt)
	case ingest.FormatXLSX:
		ds, err = ingest.DecodeXLSX(body, opt)
	default:
		return rows.Dataset{}, fmt.Errorf("unsupported file format for %q", filename)
	}
	if err != nil {
		return rows.Dataset{}, fmt.Errorf("decode %s: %w", format, err)
	}

	metrics.IncCounter(metrics.IngestRowsTotal, float64(len(ds.Records)), metrics.Labels{"format": format.String()})
	if skipped > 0 {
		metrics.IncCounter(metrics.IngestSkippedTotal, float64(skipped), metrics.Labels{"format": format.String()})
	}
	return ds, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListDatasets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": names})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := s.store.DeleteDataset(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.mu.Lock()
	delete(s.tables, name)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// rowView is one row as the grid renders it.
type rowView struct {
	ID       string         `json:"id"`
	Status   rows.Status    `json:"processingStatus"`
	Expanded bool           `json:"expanded"`
	Fields   map[string]any `json:"fields"`
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Query params are the authoritative filter state for this view.
	t.SetSearch(r.URL.Query().Get("search"))
	if want := r.URL.Query().Get("tag"); t.ActiveFilter().Tag != want {
		t.SetActiveTag(want)
	}

	start := time.Now()
	visible := t.VisibleRows()
	nameCol := t.NameColumn()
	metrics.ObserveHistogram(metrics.InferSeconds, time.Since(start).Seconds(), nil)

	views := make([]rowView, 0, len(visible))
	for _, rec := range visible {
		views = append(views, rowView{
			ID:       rec.ID(),
			Status:   rec.Status(),
			Expanded: t.Expanded(rec.ID()),
			Fields:   rec.StripReserved(),
		})
	}

	filter := t.ActiveFilter()
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset":     name,
		"headers":     t.Headers(),
		"nameColumn":  nameCol,
		"groupColumn": t.GroupColumn(),
		"filter":      map[string]string{"search": filter.Search, "tag": filter.Tag},
		"total":       t.Len(),
		"rows":        views,
	})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	tags := t.Tags()
	if tags == nil {
		tags = []grid.Tag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groupColumn": t.GroupColumn(),
		"activeTag":   t.ActiveFilter().Tag,
		"tags":        tags,
	})
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"headers":     t.Headers(),
		"nameColumn":  t.NameColumn(),
		"groupColumn": t.GroupColumn(),
		"report":      grid.FormatInferenceReport(t.NameScores(), t.NameColumn()),
		"scores":      t.NameScores(),
	})
}

type columnsRequest struct {
	NameColumn  string `json:"nameColumn"`
	GroupColumn string `json:"groupColumn"`
}

func (s *Server) handleSetColumns(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req columnsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if req.NameColumn != "" {
		if err := t.SetNameColumn(req.NameColumn); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.GroupColumn != "" {
		if err := t.SetGroupColumn(req.GroupColumn); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nameColumn":  t.NameColumn(),
		"groupColumn": t.GroupColumn(),
	})
}

func (s *Server) handleToggleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rowID := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	next, ok := t.ToggleStatus(rowID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown row %q", rowID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":               rowID,
		"processingStatus": next,
	})
}

func (s *Server) handleToggleExpand(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rowID := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       rowID,
		"expanded": t.ToggleExpanded(rowID),
	})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeError(w, http.StatusNotImplemented, errors.New("image search is not configured"))
		return
	}

	name := r.PathValue("name")
	rowID := r.PathValue("id")

	s.mu.Lock()
	t, err := s.table(r.Context(), name)
	var query string
	if err == nil {
		query = t.NameValue(rowID)
	}
	s.mu.Unlock()

	if err != nil {
		writeStoreError(w, err)
		return
	}
	if query == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("row %q has no name value", rowID))
		return
	}

	// Out-of-lock: network time must not block other grid requests.
	urls, err := s.images.Search(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":  query,
		"images": urls,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.ai == nil {
		writeError(w, http.StatusNotImplemented, errors.New("summary endpoint is not configured"))
		return
	}

	name := r.PathValue("name")

	s.mu.Lock()
	t, err := s.table(r.Context(), name)
	var (
		headers []string
		visible []rows.Record
	)
	if err == nil {
		headers = t.Headers()
		visible = t.VisibleRows()
	}
	s.mu.Unlock()

	if err != nil {
		writeStoreError(w, err)
		return
	}

	summary, err := s.ai.Summarize(r.Context(), name, headers, visible)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

//
// helpers
//

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
