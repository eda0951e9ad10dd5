package segtrace

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

// agentTracesPath is the trace-intake endpoint of the Datadog agent.
const agentTracesPath = "/v0.4/traces"

// ErrQueueFull is returned by AgentCollector.Submit when the outbound
// queue is saturated and the chunk is dropped.
var ErrQueueFull = errors.New("agent collector queue is full")

// AgentCollectorConfig configures an AgentCollector. The zero value is
// usable: defaults point at a local trace agent.
type AgentCollectorConfig struct {
	// URL is the agent base URL, e.g. "http://localhost:8126".
	URL string
	// Workers is the number of submission goroutines. Default 2.
	Workers int
	// QueueSize bounds the number of chunks awaiting submission.
	// Default 64. A full queue drops new chunks rather than blocking.
	QueueSize int
	// Logger receives submission failures. Default discards them.
	Logger Logger
	// Client overrides the HTTP client, e.g. for tests.
	Client *resty.Client
}

// AgentCollector ships chunks to a trace agent over HTTP. Submit is
// non-blocking: chunks queue to a bounded channel drained by a fixed
// set of workers, and a full queue drops the chunk. Failed requests
// are logged and the chunk is discarded; there are no retries.
type AgentCollector struct {
	client  *resty.Client
	url     string
	logger  Logger
	chunks  chan Chunk
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	once    sync.Once
}

// NewAgentCollector creates the collector and starts its workers.
func NewAgentCollector(cfg AgentCollectorConfig) *AgentCollector {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8126"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	if cfg.Client == nil {
		cfg.Client = resty.New()
	}

	c := &AgentCollector{
		client: cfg.Client,
		url:    cfg.URL + agentTracesPath,
		logger: cfg.Logger,
		chunks: make(chan Chunk, cfg.QueueSize),
		stop:   make(chan struct{}),
	}
	c.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go c.run()
	}
	return c
}

// Submit queues a chunk for delivery. Never blocks: a saturated queue
// drops the chunk, increments the drop counter, and reports
// ErrQueueFull.
func (c *AgentCollector) Submit(chunk Chunk) error {
	select {
	case c.chunks <- chunk:
		return nil
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

// DroppedCount returns the number of chunks dropped at the queue.
func (c *AgentCollector) DroppedCount() uint64 {
	return c.dropped.Load()
}

// Close stops accepting work and waits for in-flight submissions.
func (c *AgentCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}

func (c *AgentCollector) run() {
	defer c.wg.Done()
	for {
		select {
		case chunk := <-c.chunks:
			c.send(chunk)
		case <-c.stop:
			// Drain whatever queued before shutdown.
			for {
				select {
				case chunk := <-c.chunks:
					c.send(chunk)
				default:
					return
				}
			}
		}
	}
}

// send performs one fire-and-forget POST. Any failure is logged and
// the chunk is gone.
func (c *AgentCollector) send(chunk Chunk) {
	body, err := sonic.Marshal([][]agentSpan{encodeChunk(chunk)})
	if err != nil {
		c.logger.Error("failed to encode trace chunk", err)
		return
	}

	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Datadog-Trace-Count", "1").
		SetBody(body).
		Post(c.url)
	if err != nil {
		c.logger.Error("failed to submit trace chunk", err)
		return
	}
	if resp.IsError() {
		c.logger.Error("trace agent rejected chunk", fmt.Errorf("status %s", resp.Status()))
	}
}

// agentSpan is the agent wire representation of one finished record.
type agentSpan struct {
	TraceID  uint64             `json:"trace_id"`
	SpanID   uint64             `json:"span_id"`
	ParentID uint64             `json:"parent_id,omitempty"`
	Name     string             `json:"name"`
	Service  string             `json:"service"`
	Type     string             `json:"type,omitempty"`
	Resource string             `json:"resource"`
	Start    int64              `json:"start"`
	Duration int64              `json:"duration"`
	Error    int32              `json:"error"`
	Meta     *Tags              `json:"meta,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// encodeChunk converts a chunk to agent wire form. The trace's final
// sampling priority rides on the first span's metrics, where the agent
// looks for it.
func encodeChunk(chunk Chunk) []agentSpan {
	spans := make([]agentSpan, len(chunk.Spans))
	for i, rec := range chunk.Spans {
		span := agentSpan{
			TraceID:  rec.TraceID.Low,
			SpanID:   rec.SpanID,
			ParentID: rec.ParentID,
			Name:     rec.Name,
			Service:  rec.Service,
			Type:     rec.ServiceType,
			Resource: rec.Resource,
			Start:    rec.Start.UnixNano(),
			Duration: rec.Duration.Nanoseconds(),
		}
		if rec.Error {
			span.Error = 1
		}
		if rec.Tags.Len() > 0 {
			span.Meta = rec.Tags
		}
		if i == 0 {
			span.Metrics = map[string]float64{
				"_sampling_priority_v1": float64(chunk.Priority),
			}
		}
		spans[i] = span
	}
	return spans
}
