package segtrace

import (
	"context"
	"runtime"

	"github.com/zoobzio/clockz"
)

// Tracer is the factory for spans. It either starts a new trace (a new
// TraceSegment plus root span) or attaches a span to trace context
// extracted from a carrier. Safe for concurrent use by multiple
// goroutines.
type Tracer struct {
	service         string
	serviceType     string
	env             string
	defaultPriority int

	injectors  []propagator
	extractors []propagator

	collector     Collector
	ownsCollector bool
	logger        Logger
	clock         clockz.Clock
	gen           IDGenerator
	pool          *IDPool
}

// New validates the configuration and builds a Tracer. Configuration
// problems are the only failures surfaced here; once a Tracer exists,
// tracing never returns errors to instrumented code paths (extraction
// misses aside).
func New(cfg TracerConfig) (*Tracer, error) {
	if cfg.Service == "" {
		return nil, ErrMissingService
	}
	injectors, err := parseStyles(cfg.InjectionStyles, "injection")
	if err != nil {
		return nil, err
	}
	extractors, err := parseStyles(cfg.ExtractionStyles, "extraction")
	if err != nil {
		return nil, err
	}

	t := &Tracer{
		service:         cfg.Service,
		serviceType:     cfg.ServiceType,
		env:             cfg.Env,
		defaultPriority: cfg.SamplingPriority,
		injectors:       injectors,
		extractors:      extractors,
		collector:       cfg.Collector,
		logger:          cfg.Logger,
		clock:           cfg.Clock,
		gen:             cfg.IDGenerator,
	}
	if t.serviceType == "" {
		t.serviceType = "web"
	}
	if t.logger == nil {
		t.logger = NewDefaultLogger()
	}
	if t.clock == nil {
		t.clock = clockz.RealClock
	}
	if t.gen == nil {
		// Pool size based on number of CPUs for contention balance.
		t.pool = NewIDPool(runtime.NumCPU()*100, randomID)
		t.gen = randomID
	}
	if t.collector == nil {
		t.collector = NewAgentCollector(AgentCollectorConfig{
			URL:    cfg.AgentURL,
			Logger: t.logger,
		})
		t.ownsCollector = true
	}
	return t, nil
}

// newSegment builds the shared state for one trace.
func (t *Tracer) newSegment(traceID TraceID, priority int) *TraceSegment {
	return &TraceSegment{
		traceID:   traceID,
		priority:  priority,
		collector: t.collector,
		logger:    t.logger,
		clock:     t.clock,
		ids:       t.pool,
		gen:       t.gen,
		injectors: t.injectors,
	}
}

// fillDefaults applies tracer-level defaults to a span config.
func (t *Tracer) fillDefaults(cfg SpanConfig) SpanConfig {
	if cfg.Service == "" {
		cfg.Service = t.service
	}
	if cfg.ServiceType == "" {
		cfg.ServiceType = t.serviceType
	}
	return cfg
}

// StartSpan begins a new trace and returns its root span.
func (t *Tracer) StartSpan(cfg SpanConfig) *Span {
	segment := t.newSegment(TraceID{Low: t.nextID()}, t.defaultPriority)
	span := segment.newSpan(0, t.fillDefaults(cfg))
	if t.env != "" {
		span.SetTag("env", t.env)
	}
	return span
}

// ExtractSpan decodes trace context from the carrier and, when one is
// found, starts a span continuing that trace: same trace id, extracted
// parent id, and the upstream sampling decision if it was propagated.
// Styles are tried in configured order and the first complete context
// wins. Returns ErrNoTraceContext when no enabled style decodes one.
func (t *Tracer) ExtractSpan(reader TextMapReader, cfg SpanConfig) (*Span, error) {
	spanCtx, err := extract(reader, t.extractors)
	if err != nil {
		return nil, err
	}

	priority := t.defaultPriority
	if spanCtx.HasPriority {
		priority = spanCtx.SamplingPriority
	}
	segment := t.newSegment(spanCtx.TraceID, priority)
	span := segment.newSpan(spanCtx.ParentID, t.fillDefaults(cfg))
	if t.env != "" {
		span.SetTag("env", t.env)
	}
	return span, nil
}

// nextID draws a fresh trace identifier.
func (t *Tracer) nextID() uint64 {
	if t.pool != nil {
		return t.pool.Get()
	}
	return t.gen()
}

// Close releases tracer-owned resources: the ID pool and, when the
// tracer built its own AgentCollector, the collector's workers. Spans
// still live keep working; their segments hold their own references.
func (t *Tracer) Close() {
	if t.pool != nil {
		t.pool.Close()
	}
	if t.ownsCollector {
		if closer, ok := t.collector.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// spanContextKey is a private type for context keys to avoid
// collisions.
type spanContextKey struct{}

// ContextWithSpan returns a context carrying the span, for linking
// work within a process.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey{}, span)
}

// SpanFromContext returns the span carried by the context, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanContextKey{}).(*Span)
	return span
}
