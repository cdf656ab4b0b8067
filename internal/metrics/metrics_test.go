package metrics

import "testing"

type recordingBackend struct {
	counters   map[string]float64
	histograms map[string][]float64
	flushed    int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (b *recordingBackend) IncCounter(name string, delta float64, _ Labels) {
	b.counters[name] += delta
}

func (b *recordingBackend) ObserveHistogram(name string, value float64, _ Labels) {
	b.histograms[name] = append(b.histograms[name], value)
}

func (b *recordingBackend) Flush() error {
	b.flushed++
	return nil
}

// TestSetBackend verifies samples route to the installed backend and that
// installing nil restores the nop backend without panicking.
func TestSetBackend(t *testing.T) {
	rec := newRecordingBackend()
	SetBackend(rec)
	defer SetBackend(nil)

	IncCounter(UploadsTotal, 1, nil)
	IncCounter(UploadsTotal, 2, nil)
	ObserveHistogram(InferSeconds, 0.5, nil)

	if got := rec.counters[UploadsTotal]; got != 3 {
		t.Fatalf("counter=%v, want 3", got)
	}
	if got := len(rec.histograms[InferSeconds]); got != 1 {
		t.Fatalf("histogram samples=%d, want 1", got)
	}

	SetBackend(nil)
	IncCounter(UploadsTotal, 5, nil)
	if got := rec.counters[UploadsTotal]; got != 3 {
		t.Fatalf("counter after reset=%v, want 3", got)
	}
}

// TestFlush checks Flush reaches backends that buffer and is a nop for
// backends that do not.
func TestFlush(t *testing.T) {
	rec := newRecordingBackend()
	SetBackend(rec)
	defer SetBackend(nil)

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if rec.flushed != 1 {
		t.Fatalf("flushed=%d, want 1", rec.flushed)
	}

	SetBackend(nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush on nop backend: %v", err)
	}
}
