package segtrace

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/zoobzio/clockz"
)

// TracerConfig configures a Tracer. Only Service is required; every
// other field has a production default. Malformed or contradictory
// settings are rejected by New before any span can be created.
type TracerConfig struct {
	// Service is the default service name stamped on every span.
	Service string `envconfig:"SEGTRACE_SERVICE"`

	// ServiceType is the default service type, e.g. "web" or "db".
	ServiceType string `envconfig:"SEGTRACE_SERVICE_TYPE" default:"web"`

	// Env names the deployment environment and, when set, is recorded
	// as the "env" tag on every local root span.
	Env string `envconfig:"SEGTRACE_ENV"`

	// AgentURL is where the default AgentCollector submits chunks.
	// Ignored when Collector is supplied.
	AgentURL string `envconfig:"SEGTRACE_AGENT_URL" default:"http://localhost:8126"`

	// InjectionStyles and ExtractionStyles name the enabled
	// propagation styles ("datadog", "b3") in precedence order.
	InjectionStyles  []string `envconfig:"SEGTRACE_PROPAGATION_STYLES_INJECT" default:"datadog,b3"`
	ExtractionStyles []string `envconfig:"SEGTRACE_PROPAGATION_STYLES_EXTRACT" default:"datadog,b3"`

	// SamplingPriority seeds each new local trace's sampling decision.
	// Extracted traces keep the upstream decision instead.
	SamplingPriority int `envconfig:"SEGTRACE_SAMPLING_PRIORITY" default:"1"`

	// Collector receives one chunk per completed trace. Defaults to an
	// AgentCollector pointed at AgentURL, owned (and closed) by the
	// Tracer.
	Collector Collector `ignored:"true"`

	// Logger receives diagnostics. Defaults to a zap production
	// logger.
	Logger Logger `ignored:"true"`

	// Clock supplies time points. Defaults to the real clock.
	Clock clockz.Clock `ignored:"true"`

	// IDGenerator supplies span and trace identifiers. Defaults to a
	// pooled crypto/rand generator. Supplying one disables pooling so
	// deterministic generators stay deterministic.
	IDGenerator IDGenerator `ignored:"true"`
}

// ErrMissingService is returned by New when no service name is
// configured.
var ErrMissingService = errors.New("tracer config: service name is required")

// ConfigFromEnv loads a TracerConfig from environment variables,
// applying defaults for anything unset.
func ConfigFromEnv() (TracerConfig, error) {
	var cfg TracerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return TracerConfig{}, fmt.Errorf("tracer config: %w", err)
	}
	return cfg, nil
}

// parseStyles resolves configured style names, rejecting unknown names
// and duplicates. An empty result is only valid where the caller says
// so.
func parseStyles(names []string, direction string) ([]propagator, error) {
	seen := make(map[PropagationStyle]bool, len(names))
	propagators := make([]propagator, 0, len(names))
	for _, name := range names {
		style, err := ParsePropagationStyle(name)
		if err != nil {
			return nil, fmt.Errorf("tracer config: %s styles: %w", direction, err)
		}
		if seen[style] {
			return nil, fmt.Errorf("tracer config: %s styles: %q listed twice", direction, style)
		}
		seen[style] = true
		propagators = append(propagators, propagatorFor(style))
	}
	if len(propagators) == 0 {
		return nil, fmt.Errorf("tracer config: at least one %s style is required", direction)
	}
	return propagators, nil
}
