package segtrace

import (
	"sync"
	"time"
)

// SpanConfig carries optional overrides applied when a span is created.
// Zero-valued fields fall back to the tracer's defaults (or, for child
// spans, to values inherited from the trace).
type SpanConfig struct {
	// Name is the operation name, e.g. "http.request".
	Name string
	// Service overrides the tracer's service name.
	Service string
	// ServiceType classifies the service, e.g. "web", "db".
	ServiceType string
	// Resource names the specific thing being operated on, e.g. a URL
	// route or SQL table. Defaults to Name.
	Resource string
	// Tags are applied through the public setter, so reserved-prefixed
	// keys are dropped.
	Tags map[string]string
	// Start overrides the clock reading taken at creation.
	Start time.Time
}

// SpanData is the immutable record of a finished span. Once a span
// finishes, its record is owned by the trace segment and, after the
// flush, by the Collector.
type SpanData struct {
	TraceID     TraceID
	SpanID      uint64
	ParentID    uint64
	Name        string
	Service     string
	ServiceType string
	Resource    string
	Start       time.Time
	Duration    time.Duration
	Error       bool
	Tags        *Tags
}

// Span is a live, mutable handle over one unit of work. It is created
// by a Tracer (or by StartChild) and becomes inert once finished: all
// mutators turn into no-ops and accessors keep answering from the
// final state.
//
// Methods are internally synchronized, but a Span is meant to be
// driven by one goroutine; spans of the same trace may live on
// different goroutines concurrently.
type Span struct {
	mu          sync.Mutex
	data        *SpanData
	segment     *TraceSegment
	endOverride time.Time
	finished    bool
}

// SpanID returns this span's identifier.
func (s *Span) SpanID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SpanID
}

// ParentID returns the parent span's identifier, or zero for the
// trace's first local span.
func (s *Span) ParentID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ParentID
}

// TraceID returns the identifier shared by every span of the trace.
func (s *Span) TraceID() TraceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.TraceID
}

// StartTime returns the span's start time point.
func (s *Span) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Start
}

// Segment returns the trace segment this span contributes to.
func (s *Span) Segment() *TraceSegment {
	return s.segment
}

// SetTag inserts or overwrites a tag. Keys under the reserved prefix
// are dropped silently. No-op once the span is finished.
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.Tags.setPublic(key, value)
}

// LookupTag returns the value stored for key. Reserved-prefixed keys
// always read as absent, even when the runtime wrote them internally.
func (s *Span) LookupTag(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Tags.lookup(key)
}

// RemoveTag deletes a tag. Removing an absent tag is not an error.
func (s *Span) RemoveTag(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.Tags.remove(key)
}

// SetServiceName overwrites the record's service field.
func (s *Span) SetServiceName(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.Service = service
}

// SetServiceType overwrites the record's service type field.
func (s *Span) SetServiceType(serviceType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.ServiceType = serviceType
}

// SetOperationName overwrites the record's operation name.
func (s *Span) SetOperationName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.Name = name
}

// SetResourceName overwrites the record's resource name.
func (s *Span) SetResourceName(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.Resource = resource
}

// SetError sets or clears the error flag. Clearing also removes the
// error.msg and error.type tags.
func (s *Span) SetError(isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.Error = isError
	if !isError {
		s.data.Tags.remove(tagErrorMessage)
		s.data.Tags.remove(tagErrorType)
	}
}

// SetErrorMessage sets the error flag and the error.msg tag.
func (s *Span) SetErrorMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.Error = true
	s.data.Tags.set(tagErrorMessage, msg)
}

// SetErrorType sets the error flag and the error.type tag.
func (s *Span) SetErrorType(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.data.Error = true
	s.data.Tags.set(tagErrorType, name)
}

// Error reports the current error flag.
func (s *Span) Error() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Error
}

// SetEndTime fixes the span's end time ahead of Finish. The value is
// used verbatim: no clamping, and an end before the start yields a
// negative duration.
func (s *Span) SetEndTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.endOverride = t
}

// StartChild creates a new span under the same trace segment, parented
// to this span. Safe to call while other spans of the trace finish
// concurrently.
func (s *Span) StartChild(cfg SpanConfig) *Span {
	s.mu.Lock()
	parentID := s.data.SpanID
	service := s.data.Service
	serviceType := s.data.ServiceType
	s.mu.Unlock()

	if cfg.Service == "" {
		cfg.Service = service
	}
	if cfg.ServiceType == "" {
		cfg.ServiceType = serviceType
	}
	return s.segment.newSpan(parentID, cfg)
}

// Inject writes this span's trace context into the carrier using every
// enabled injection style: the trace id, this span's id as the next
// hop's parent, and the segment's current sampling decision.
func (s *Span) Inject(writer TextMapWriter) {
	s.mu.Lock()
	ctx := SpanContext{
		TraceID:     s.data.TraceID,
		ParentID:    s.data.SpanID,
		HasPriority: true,
	}
	s.mu.Unlock()
	ctx.SamplingPriority = s.segment.SamplingPriority()
	s.segment.inject(writer, ctx)
}

// Finish completes the span: the end time is taken from the clock
// unless SetEndTime fixed one, the immutable record transfers to the
// trace segment, and the live handle becomes inert. Safe to call more
// than once; only the first call has an effect.
func (s *Span) Finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true

	end := s.endOverride
	if end.IsZero() {
		end = s.segment.now()
	}
	s.data.Duration = end.Sub(s.data.Start)

	// Deep copy for the segment; the inert handle keeps its own state
	// so reads never race with finalization writes to the record.
	record := *s.data
	record.Tags = s.data.Tags.clone()
	s.mu.Unlock()

	// The decrement that reaches zero flushes the segment; keep it
	// outside the span lock so concurrent siblings never deadlock.
	s.segment.finishSpan(&record)
}
