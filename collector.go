package segtrace

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Chunk is the finalized, ordered batch of one trace's finished span
// records, submitted exactly once when the trace's last span finishes.
type Chunk struct {
	// TraceID is shared by every record in the chunk.
	TraceID TraceID
	// Priority is the trace's final sampling decision.
	Priority int
	// Spans holds the finished records in completion order. Never
	// empty.
	Spans []*SpanData
}

// Collector accepts completed trace chunks. Submit must be bounded and
// non-blocking from the segment's point of view: queue or reject, never
// stall the finishing goroutine. Delivery is fire-and-forget; a
// returned error means the chunk was not accepted and will be dropped
// by the caller.
type Collector interface {
	Submit(chunk Chunk) error
}

// ErrBufferFull is returned by BufferedCollector.Submit when the
// buffer limit is reached.
var ErrBufferFull = errors.New("collector buffer is full")

// BufferedCollector keeps submitted chunks in memory until Export is
// called. Safe for concurrent use by multiple goroutines. Suited to
// tests and to embedders that ship traces on their own schedule.
type BufferedCollector struct {
	mu           sync.Mutex
	chunks       []Chunk
	maxChunks    int
	droppedCount atomic.Int64
}

// NewBufferedCollector creates a collector holding at most maxChunks
// chunks; zero or negative means unbounded.
func NewBufferedCollector(maxChunks int) *BufferedCollector {
	return &BufferedCollector{
		chunks:    make([]Chunk, 0, 8), // Start with small capacity.
		maxChunks: maxChunks,
	}
}

// Submit buffers a chunk. When the buffer is full the chunk is
// rejected and counted as dropped.
func (c *BufferedCollector) Submit(chunk Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxChunks > 0 && len(c.chunks) >= c.maxChunks {
		c.droppedCount.Add(1)
		return ErrBufferFull
	}
	c.chunks = append(c.chunks, chunk)
	return nil
}

// Export returns all buffered chunks and clears the internal buffer.
func (c *BufferedCollector) Export() []Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.chunks) == 0 {
		return nil
	}
	result := c.chunks
	// Shrink oversized buffers after export to bound idle memory.
	if cap(c.chunks) > 256 && len(c.chunks) < cap(c.chunks)/8 {
		c.chunks = make([]Chunk, 0, 32)
	} else {
		c.chunks = make([]Chunk, 0, cap(c.chunks))
	}
	return result
}

// Count returns the current number of buffered chunks.
func (c *BufferedCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

// DroppedCount returns the total number of chunks rejected because the
// buffer was full.
func (c *BufferedCollector) DroppedCount() int64 {
	return c.droppedCount.Load()
}
