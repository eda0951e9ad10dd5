// Package segtrace is the client-side core of a distributed tracing
// library: it creates spans describing units of work, links them into
// traces, propagates trace context across process boundaries via HTTP
// headers, and hands completed traces to a collector.
//
// Core Components:
//   - Tracer: creates spans and extracts trace context from carriers.
//   - Span: a live, mutable handle over one unit of work.
//   - TraceSegment: shared per-trace state (sampling decision, finished
//     records, live-span count). Flushes exactly one chunk per trace.
//   - Collector: receives finished chunks. AgentCollector ships them to
//     a trace agent; BufferedCollector keeps them in memory.
//
// Basic Usage:
//
//	tracer, err := segtrace.New(segtrace.TracerConfig{Service: "billing"})
//	if err != nil {
//		return err
//	}
//	defer tracer.Close()
//
//	span := tracer.StartSpan(segtrace.SpanConfig{Name: "handle.request"})
//	span.SetTag("customer.id", "123")
//
//	// Propagate to the next hop.
//	span.Inject(segtrace.HTTPHeadersCarrier(req.Header))
//
//	// Child work, possibly on another goroutine.
//	child := span.StartChild(segtrace.SpanConfig{Name: "db.query"})
//	child.Finish()
//
//	span.Finish()
//
// Thread Safety:
//
// Tracer is safe for concurrent use by multiple goroutines. Spans of
// one trace may be held and finished concurrently on different
// goroutines; a single Span's methods are internally synchronized, but
// a Span is intended to be driven by one goroutine at a time.
//
// Context Propagation:
//
// Trace context crosses process boundaries through enabled propagation
// styles (Datadog and B3 headers). Within a process, ContextWithSpan
// and SpanFromContext link spans through context.Context.
//
// Delivery:
//
// A trace's records are delivered to the Collector exactly once, the
// instant its last live span finishes. Failed delivery is logged and
// the chunk is dropped; tracing never blocks or crashes the host.
package segtrace

// internalTagPrefix marks tag keys reserved for the tracing runtime.
// Keys with this prefix are never settable or readable through the
// public tag API; they appear only in records handed to the Collector.
const internalTagPrefix = "_dd."

// Tag keys the error model writes alongside the error flag.
const (
	tagErrorMessage = "error.msg"
	tagErrorType    = "error.type"
)

// tagDecisionMaker records which mechanism kept the trace. Written into
// the first record of a kept chunk at finalization.
const tagDecisionMaker = "_dd.p.dm"

// Sampling priorities shared across every span of a trace. Positive
// values keep the trace, zero and negative values drop it.
const (
	PriorityUserReject = -1
	PriorityAutoReject = 0
	PriorityAutoKeep   = 1
	PriorityUserKeep   = 2
)
