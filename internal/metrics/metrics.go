// Package metrics is the thin instrumentation facade the rest of the code
// depends on. Application code calls IncCounter/ObserveHistogram with stable
// metric names; the configured backend decides what to do with them. The
// default backend is a nop, so instrumentation never needs guarding.
package metrics

import "sync/atomic"

// Labels attaches low-cardinality dimensions to a metric sample.
type Labels map[string]string

// Backend receives metric samples. Implementations must be safe for
// concurrent use; callers fire from request handlers and workers alike.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is optionally implemented by backends that buffer samples.
type Flusher interface {
	Flush() error
}

// Metric names used across the application. Kept in one place so backends
// can switch on them without chasing call sites.
const (
	IngestRowsTotal    = "grid_ingest_rows_total"            // labels: format
	IngestSkippedTotal = "grid_ingest_skipped_total"         // labels: format
	UploadsTotal       = "grid_uploads_total"                // no labels
	APIRequestsTotal   = "grid_api_requests_total"           // labels: route, status
	APIErrorsTotal     = "grid_api_errors_total"             // labels: route, status
	InferSeconds       = "grid_infer_duration_seconds"       // no labels
	APISeconds         = "grid_api_request_duration_seconds" // labels: route
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// holder wraps the backend so atomic.Value always stores one concrete type.
type holder struct {
	b Backend
}

var current atomic.Value // holder

func init() {
	current.Store(holder{b: nopBackend{}})
}

// SetBackend installs the process-wide backend. Call once at startup before
// traffic; samples fired earlier go to the nop backend and are lost.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	current.Store(holder{b: b})
}

func backend() Backend {
	return current.Load().(holder).b
}

// IncCounter adds delta to a named counter.
func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample of a named distribution.
func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// Flush asks a buffering backend to submit now. Nop for backends that do
// not buffer.
func Flush() error {
	if f, ok := backend().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
