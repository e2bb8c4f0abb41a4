package runtime

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/actiongate/internal/adapters/config/file"
	"github.com/tjfontaine/actiongate/internal/controller"
	"github.com/tjfontaine/actiongate/internal/core/ports"
	"github.com/tjfontaine/actiongate/internal/plugin"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithFileConfig uses file-based configuration with hot-reload.
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(g *Gateway) error {
		provider, err := file.NewProvider(path, file.WithLogger(g.logger))
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		g.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(g *Gateway) error {
		g.config = provider
		return nil
	}
}

// WithControllers sets the controllers the gateway dispatches to.
func WithControllers(reg *controller.Registry) Option {
	return func(g *Gateway) error {
		if reg == nil {
			return errors.New("controller registry cannot be nil")
		}
		g.controllers = reg
		return nil
	}
}

// WithPluginRegistry replaces the built-in hook factories.
func WithPluginRegistry(reg *plugin.Registry) Option {
	return func(g *Gateway) error {
		g.plugins = reg
		return nil
	}
}

// WithSessionBackend uses backend instead of the configured one. The
// caller keeps ownership and closes it.
func WithSessionBackend(backend ports.SessionBackend) Option {
	return func(g *Gateway) error {
		g.sessions = backend
		return nil
	}
}

// WithTracerProvider sets the tracer provider for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) error {
		g.tracer = tp
		return nil
	}
}

// WithMetricsRegistry registers dispatch metrics on reg and serves it at
// /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(g *Gateway) error {
		g.metricsReg = reg
		return nil
	}
}

// WithLogger sets a custom logger. Apply it before WithFileConfig for the
// provider to share it.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}
