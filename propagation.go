package segtrace

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// TextMapWriter is the injection side of a propagation carrier, e.g.
// outbound HTTP request headers. Supplied (and owned) by the caller.
type TextMapWriter interface {
	Set(key, value string)
}

// TextMapReader is the extraction side of a propagation carrier, e.g.
// inbound HTTP request headers. Get returns "" for absent keys.
type TextMapReader interface {
	Get(key string) string
}

// TextMapCarrier is a plain map carrier for both injection and
// extraction.
type TextMapCarrier map[string]string

func (c TextMapCarrier) Set(key, value string) { c[key] = value }
func (c TextMapCarrier) Get(key string) string { return c[key] }

// HTTPHeadersCarrier adapts http.Header to the carrier interfaces.
type HTTPHeadersCarrier http.Header

func (c HTTPHeadersCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

func (c HTTPHeadersCarrier) Get(key string) string {
	// Canonicalize directly; http.Header.Get allocates the same way.
	if vs := c[textproto.CanonicalMIMEHeaderKey(key)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// PropagationStyle selects one header encoding for trace context. The
// set of styles is closed: each is an independently-enabled capability
// pair of encode and decode over a disjoint header key set.
type PropagationStyle int

const (
	// StyleDatadog propagates decimal trace/parent ids and the signed
	// sampling priority over x-datadog-* headers.
	StyleDatadog PropagationStyle = iota
	// StyleB3 propagates lowercase-hex trace/span ids and a 0/1
	// sampled flag over x-b3-* headers.
	StyleB3
)

// ParsePropagationStyle converts a configuration token into a style.
func ParsePropagationStyle(s string) (PropagationStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "datadog":
		return StyleDatadog, nil
	case "b3":
		return StyleB3, nil
	}
	return 0, fmt.Errorf("unknown propagation style %q", s)
}

func (s PropagationStyle) String() string {
	switch s {
	case StyleDatadog:
		return "datadog"
	case StyleB3:
		return "b3"
	}
	return "unknown"
}

// SpanContext is the trace context a carrier transports across one
// process hop: which trace to join, which span is the parent, and the
// sampling decision if the upstream sent one.
type SpanContext struct {
	TraceID          TraceID
	ParentID         uint64
	SamplingPriority int
	HasPriority      bool
}

// propagator is one style's encode/decode capability pair. extract
// reports false when the carrier holds no complete context for the
// style — absence and malformed input alike degrade to "not present",
// never to an error.
type propagator interface {
	inject(writer TextMapWriter, ctx SpanContext)
	extract(reader TextMapReader) (SpanContext, bool)
}

// Datadog style headers.
const (
	headerDatadogTraceID  = "x-datadog-trace-id"
	headerDatadogParentID = "x-datadog-parent-id"
	headerDatadogPriority = "x-datadog-sampling-priority"
)

// B3 style headers.
const (
	headerB3TraceID = "x-b3-traceid"
	headerB3SpanID  = "x-b3-spanid"
	headerB3Sampled = "x-b3-sampled"
)

type datadogPropagator struct{}

func (datadogPropagator) inject(writer TextMapWriter, ctx SpanContext) {
	writer.Set(headerDatadogTraceID, strconv.FormatUint(ctx.TraceID.Low, 10))
	writer.Set(headerDatadogParentID, strconv.FormatUint(ctx.ParentID, 10))
	if ctx.HasPriority {
		writer.Set(headerDatadogPriority, strconv.Itoa(ctx.SamplingPriority))
	}
}

func (datadogPropagator) extract(reader TextMapReader) (SpanContext, bool) {
	traceID, err := strconv.ParseUint(reader.Get(headerDatadogTraceID), 10, 64)
	if err != nil || traceID == 0 {
		return SpanContext{}, false
	}
	parentID, err := strconv.ParseUint(reader.Get(headerDatadogParentID), 10, 64)
	if err != nil {
		return SpanContext{}, false
	}

	ctx := SpanContext{
		TraceID:  TraceID{Low: traceID},
		ParentID: parentID,
	}
	if raw := reader.Get(headerDatadogPriority); raw != "" {
		priority, err := strconv.Atoi(raw)
		if err != nil {
			return SpanContext{}, false
		}
		ctx.SamplingPriority = priority
		ctx.HasPriority = true
	}
	return ctx, true
}

type b3Propagator struct{}

func (b3Propagator) inject(writer TextMapWriter, ctx SpanContext) {
	writer.Set(headerB3TraceID, ctx.TraceID.Hex())
	writer.Set(headerB3SpanID, strconv.FormatUint(ctx.ParentID, 16))
	sampled := "0"
	if ctx.HasPriority && ctx.SamplingPriority > 0 {
		sampled = "1"
	}
	writer.Set(headerB3Sampled, sampled)
}

func (b3Propagator) extract(reader TextMapReader) (SpanContext, bool) {
	traceID, ok := parseB3TraceID(reader.Get(headerB3TraceID))
	if !ok {
		return SpanContext{}, false
	}
	parentID, err := strconv.ParseUint(reader.Get(headerB3SpanID), 16, 64)
	if err != nil {
		return SpanContext{}, false
	}

	ctx := SpanContext{TraceID: traceID, ParentID: parentID}
	switch reader.Get(headerB3Sampled) {
	case "1":
		ctx.SamplingPriority = PriorityAutoKeep
		ctx.HasPriority = true
	case "0":
		ctx.SamplingPriority = PriorityAutoReject
		ctx.HasPriority = true
	}
	return ctx, true
}

// parseB3TraceID accepts 64-bit (up to 16 hex digits) and 128-bit (up
// to 32 hex digits) identifiers, keeping the high bits for round
// trips.
func parseB3TraceID(raw string) (TraceID, bool) {
	if raw == "" || len(raw) > 32 {
		return TraceID{}, false
	}
	if len(raw) <= 16 {
		low, err := strconv.ParseUint(raw, 16, 64)
		if err != nil || low == 0 {
			return TraceID{}, false
		}
		return TraceID{Low: low}, true
	}
	split := len(raw) - 16
	high, err := strconv.ParseUint(raw[:split], 16, 64)
	if err != nil {
		return TraceID{}, false
	}
	low, err := strconv.ParseUint(raw[split:], 16, 64)
	if err != nil {
		return TraceID{}, false
	}
	return TraceID{High: high, Low: low}, true
}

// propagatorFor maps a style to its codec.
func propagatorFor(style PropagationStyle) propagator {
	switch style {
	case StyleB3:
		return b3Propagator{}
	default:
		return datadogPropagator{}
	}
}

// ErrNoTraceContext is returned by extraction when no enabled style
// finds a complete context in the carrier.
var ErrNoTraceContext = errors.New("no trace context found in carrier")

// extract tries each enabled style in configuration order and returns
// the first complete context. When several styles decode conflicting
// contexts from one carrier, the first enabled style wins and the rest
// are not consulted; the default order is Datadog before B3.
func extract(reader TextMapReader, extractors []propagator) (SpanContext, error) {
	for _, p := range extractors {
		if ctx, ok := p.extract(reader); ok {
			return ctx, nil
		}
	}
	return SpanContext{}, ErrNoTraceContext
}
