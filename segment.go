package segtrace

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// TraceSegment is the state shared by every span of one trace: the
// sampling decision, the finished records collected so far, and the
// count of still-live spans. The moment the count reaches zero the
// segment closes, packages its records as one chunk, and submits it to
// the Collector — exactly once per trace. A flushed segment is never
// revived.
//
// All shared state lives under one mutex; the decrement that brings
// the live count to zero runs the flush inside the same critical
// section, so no goroutine can observe a half-flushed segment.
type TraceSegment struct {
	mu       sync.Mutex
	traceID  TraceID
	priority int
	records  []*SpanData
	live     int
	flushed  bool

	collector Collector
	logger    Logger
	clock     clockz.Clock
	ids       *IDPool
	gen       IDGenerator
	injectors []propagator
}

// TraceID returns the identifier shared by the whole trace.
func (ts *TraceSegment) TraceID() TraceID {
	return ts.traceID
}

// SamplingPriority returns the segment's current sampling decision.
func (ts *TraceSegment) SamplingPriority() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.priority
}

// OverrideSamplingPriority replaces the sampling decision. The last
// write before the flush wins and is visible immediately to any
// subsequent injection from any span of the trace. Overrides arriving
// after the flush are ignored.
func (ts *TraceSegment) OverrideSamplingPriority(priority int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.flushed {
		ts.logger.Debug("sampling priority override after flush ignored")
		return
	}
	ts.priority = priority
}

// now reads the injected clock.
func (ts *TraceSegment) now() time.Time {
	return ts.clock.Now()
}

// nextID draws a fresh span identifier.
func (ts *TraceSegment) nextID() uint64 {
	if ts.ids != nil {
		return ts.ids.Get()
	}
	return ts.gen()
}

// newSpan registers one more live span under this segment. Safe to
// call while sibling spans finish concurrently; the caller must hold a
// live span of the trace (its parent), which keeps the count positive.
func (ts *TraceSegment) newSpan(parentID uint64, cfg SpanConfig) *Span {
	data := &SpanData{
		TraceID:     ts.traceID,
		SpanID:      ts.nextID(),
		ParentID:    parentID,
		Name:        cfg.Name,
		Service:     cfg.Service,
		ServiceType: cfg.ServiceType,
		Resource:    cfg.Resource,
		Start:       cfg.Start,
		Tags:        newTags(),
	}
	if data.Resource == "" {
		data.Resource = data.Name
	}
	if data.Start.IsZero() {
		data.Start = ts.now()
	}
	for key, value := range cfg.Tags {
		data.Tags.setPublic(key, value)
	}

	ts.mu.Lock()
	if ts.flushed {
		ts.logger.Error("span created under a flushed trace segment", nil)
	}
	ts.live++
	ts.mu.Unlock()

	return &Span{data: data, segment: ts}
}

// finishSpan appends a finished record and decrements the live count.
// The call that reaches zero closes the segment and flushes the chunk
// before releasing the lock.
func (ts *TraceSegment) finishSpan(record *SpanData) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.flushed {
		// A record after the flush is a bookkeeping defect upstream;
		// drop it rather than submit the trace twice.
		ts.logger.Error("span finished under a flushed trace segment", nil)
		return
	}

	ts.records = append(ts.records, record)
	ts.live--
	if ts.live > 0 {
		return
	}
	ts.flushLocked()
}

// flushLocked packages the collected records and submits them. Caller
// holds ts.mu.
func (ts *TraceSegment) flushLocked() {
	ts.flushed = true
	records := ts.records
	ts.records = nil
	if len(records) == 0 {
		return
	}

	// Finalization writes bypass the public tag setter: the decision
	// maker lands on the first record of a kept trace, invisible to
	// LookupTag but delivered to the Collector.
	if ts.priority > 0 {
		records[0].Tags.set(tagDecisionMaker, "-0")
	}

	chunk := Chunk{
		TraceID:  ts.traceID,
		Priority: ts.priority,
		Spans:    records,
	}
	if err := ts.collector.Submit(chunk); err != nil {
		// Chunk is dropped, not retried: buffering indefinitely risks
		// unbounded memory growth in the host process.
		ts.logger.Error("trace chunk rejected by collector", err)
	}
}

// inject runs every enabled injection style against the carrier. The
// styles write disjoint header sets, so order is cosmetic but stable.
func (ts *TraceSegment) inject(writer TextMapWriter, ctx SpanContext) {
	for _, p := range ts.injectors {
		p.inject(writer, ctx)
	}
}
