package segtrace

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAgent captures trace payloads POSTed by the collector.
type recordingAgent struct {
	mu     sync.Mutex
	bodies [][]byte
	counts []string
	status int
}

func (a *recordingAgent) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		a.mu.Lock()
		a.bodies = append(a.bodies, body)
		a.counts = append(a.counts, r.Header.Get("X-Datadog-Trace-Count"))
		status := a.status
		a.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	})
}

func (a *recordingAgent) received() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bodies)
}

func TestAgentCollectorSubmitsChunk(t *testing.T) {
	agent := &recordingAgent{}
	server := httptest.NewServer(agent.handler())
	defer server.Close()

	collector := NewAgentCollector(AgentCollectorConfig{URL: server.URL})
	require.NoError(t, collector.Submit(testChunk(42)))
	collector.Close()

	require.Equal(t, 1, agent.received())
	assert.Equal(t, "1", agent.counts[0])

	var payload [][]map[string]any
	require.NoError(t, sonic.Unmarshal(agent.bodies[0], &payload))
	require.Len(t, payload, 1)
	require.Len(t, payload[0], 1)

	span := payload[0][0]
	assert.EqualValues(t, 42, span["trace_id"])
	assert.EqualValues(t, 42, span["span_id"])
	assert.Equal(t, "op", span["name"])
	meta, ok := span["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v", meta["k"])
	metrics, ok := span["metrics"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, metrics["_sampling_priority_v1"])
}

func TestAgentCollectorPriorityOnFirstSpanOnly(t *testing.T) {
	chunk := testChunk(7)
	second := *chunk.Spans[0]
	second.SpanID = 8
	second.ParentID = 7
	chunk.Spans = append(chunk.Spans, &second)
	chunk.Priority = PriorityUserKeep

	spans := encodeChunk(chunk)
	require.Len(t, spans, 2)
	assert.Equal(t, float64(PriorityUserKeep), spans[0].Metrics["_sampling_priority_v1"])
	assert.Nil(t, spans[1].Metrics)
	assert.EqualValues(t, 7, spans[1].ParentID)
}

func TestAgentCollectorErrorFlagEncoding(t *testing.T) {
	chunk := testChunk(9)
	chunk.Spans[0].Error = true
	chunk.Spans[0].Duration = 250 * time.Millisecond

	spans := encodeChunk(chunk)
	assert.EqualValues(t, 1, spans[0].Error)
	assert.EqualValues(t, (250 * time.Millisecond).Nanoseconds(), spans[0].Duration)
}

func TestAgentCollectorServerErrorLogged(t *testing.T) {
	agent := &recordingAgent{status: http.StatusServiceUnavailable}
	server := httptest.NewServer(agent.handler())
	defer server.Close()

	logger := &captureLogger{}
	collector := NewAgentCollector(AgentCollectorConfig{URL: server.URL, Logger: logger})
	require.NoError(t, collector.Submit(testChunk(1)))
	collector.Close()

	assert.Equal(t, 1, logger.errorCount())
}

func TestAgentCollectorQueueFullDrops(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-blocked
	}))
	defer server.Close()

	collector := NewAgentCollector(AgentCollectorConfig{
		URL:       server.URL,
		Workers:   1,
		QueueSize: 1,
	})
	defer collector.Close()
	defer close(blocked)

	// First chunk occupies the worker, second fills the queue; the
	// third must drop instead of blocking the finishing goroutine.
	require.NoError(t, collector.Submit(testChunk(1)))
	require.Eventually(t, func() bool {
		return collector.Submit(testChunk(2)) == nil
	}, time.Second, 5*time.Millisecond)

	var sawDrop bool
	for i := 0; i < 4; i++ {
		if collector.Submit(testChunk(uint64(3+i))) == ErrQueueFull {
			sawDrop = true
			break
		}
	}
	assert.True(t, sawDrop)
	assert.Positive(t, collector.DroppedCount())
}

func TestTracerOwnsDefaultAgentCollector(t *testing.T) {
	agent := &recordingAgent{}
	server := httptest.NewServer(agent.handler())
	defer server.Close()

	tracer, err := New(TracerConfig{
		Service:  "testsvc",
		AgentURL: server.URL,
		Logger:   NopLogger{},
	})
	require.NoError(t, err)

	tracer.StartSpan(SpanConfig{Name: "work"}).Finish()
	tracer.Close() // drains the owned collector

	assert.Equal(t, 1, agent.received())
}
