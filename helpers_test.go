package segtrace

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestTracer builds a tracer with quiet defaults for tests. The
// caller's config wins where set.
func newTestTracer(t *testing.T, cfg TracerConfig) *Tracer {
	t.Helper()
	if cfg.Service == "" {
		cfg.Service = "testsvc"
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	if cfg.Collector == nil {
		cfg.Collector = NewBufferedCollector(0)
	}
	tracer, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(tracer.Close)
	return tracer
}

// sequentialIDs yields start, start+1, start+2, ...
func sequentialIDs(start uint64) IDGenerator {
	var n atomic.Uint64
	n.Store(start - 1)
	return func() uint64 {
		return n.Add(1)
	}
}

// constantID always yields the same identifier.
func constantID(id uint64) IDGenerator {
	return func() uint64 { return id }
}

// firstSpan asserts the collector holds exactly one chunk with exactly
// one record and returns that record.
func firstSpan(t *testing.T, collector *BufferedCollector) *SpanData {
	t.Helper()
	chunks := collector.Export()
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Spans, 1)
	return chunks[0].Spans[0]
}

// captureLogger records error diagnostics for assertions.
type captureLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *captureLogger) Error(msg string, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *captureLogger) Debug(string) {}

func (l *captureLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
