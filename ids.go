package segtrace

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// IDGenerator produces fresh 64-bit identifiers for spans and traces.
// Values must be effectively unique within the process for the lifetime
// of concurrently open traces. Pluggable for determinism in tests.
type IDGenerator func() uint64

// randomID is the production generator: 8 bytes of crypto/rand, never
// zero (zero means "absent" on the wire).
func randomID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fallback to time-based ID if crypto/rand fails.
		return uint64(time.Now().UnixNano())
	}
	id := binary.BigEndian.Uint64(b[:])
	if id == 0 {
		id = 1
	}
	return id
}

// TraceID identifies one trace. Low carries the 64-bit identifier every
// propagation style understands; High holds the upper 64 bits of a
// 128-bit identifier when an extracted B3 context supplied one.
type TraceID struct {
	High uint64
	Low  uint64
}

// Hex renders the identifier as lowercase hexadecimal with no leading
// zeros and no prefix, widening to 128 bits only when High is set.
func (id TraceID) Hex() string {
	if id.High != 0 {
		return fmt.Sprintf("%x%016x", id.High, id.Low)
	}
	return strconv.FormatUint(id.Low, 16)
}

// String renders the low 64 bits as decimal text.
func (id TraceID) String() string {
	return strconv.FormatUint(id.Low, 10)
}

// IDPool manages a pool of pre-generated IDs to amortize crypto/rand
// overhead on the span-creation hot path.
type IDPool struct {
	factory IDGenerator
	ids     chan uint64
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity.
func NewIDPool(capacity int, factory IDGenerator) *IDPool {
	pool := &IDPool{
		ids:     make(chan uint64, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	// Start background refill goroutine.
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool or generates one if pool is empty.
func (p *IDPool) Get() uint64 {
	select {
	case id := <-p.ids:
		return id
	default:
		// Pool empty, generate directly (fallback for burst load).
		return p.factory()
	}
}

// refill maintains the pool by generating IDs in background.
func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
			select {
			case p.ids <- p.factory():
				// Successfully added ID to pool.
			case <-p.stopCh:
				return
			}
		}
	}
}

// Close shuts down the ID pool gracefully.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}
