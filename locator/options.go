package locator

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/timzifer/repolocator/telemetry"
)

// Option configures a provider during construction.
type Option func(*options) error

type options struct {
	logger    zerolog.Logger
	telemetry telemetry.Collector
	tracer    trace.Tracer
	settings  Settings
}

// WithLogger provides a custom logger. Failures are logged at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *options) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		return nil
	}
}

// WithTelemetry injects a collector that records connects, disconnects and failures.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *options) error {
		if cfg == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		return nil
	}
}

// WithTracer overrides the tracer used for reconcile spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(cfg *options) error {
		if cfg == nil || tracer == nil {
			return nil
		}
		cfg.tracer = tracer
		return nil
	}
}

// WithSettings sets the initial selector and credentials.
func WithSettings(settings Settings) Option {
	return func(cfg *options) error {
		if cfg == nil {
			return nil
		}
		cfg.settings = settings
		return nil
	}
}
