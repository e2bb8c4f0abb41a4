// Package dispatch runs the flow controller: resolve a route, run pre
// hooks, policies, the action and post hooks, then render. Flow signals
// returned along the way change the path through that sequence.
package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/controller"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
	"github.com/tjfontaine/actiongate/internal/plugin"
	"github.com/tjfontaine/actiongate/internal/resolver"
)

// DefaultMaxReentries bounds REBOOT and RESTART re-entries per dispatch.
const DefaultMaxReentries = 8

const tracerName = "github.com/tjfontaine/actiongate/internal/dispatch"

// Environment is the configuration a dispatch runs against. It is replaced
// as a whole, never mutated.
type Environment struct {
	Config ports.ConfigAccessor
	Hooks  *plugin.Chain
}

// EnvironmentLoader rebuilds the environment on RESTART.
type EnvironmentLoader interface {
	LoadEnvironment(ctx context.Context) (*Environment, error)
}

// EnvironmentLoaderFunc adapts a function to EnvironmentLoader.
type EnvironmentLoaderFunc func(ctx context.Context) (*Environment, error)

func (f EnvironmentLoaderFunc) LoadEnvironment(ctx context.Context) (*Environment, error) {
	return f(ctx)
}

// Request is one inbound dispatch.
type Request struct {
	Route      domain.Route
	HTTP       ports.Request
	Session    ports.SessionStore
	Redirector ports.Redirector
	// Renderer overrides the dispatcher's renderer for this request.
	Renderer ports.Renderer
	// Vars seed every ActionContext built for this request.
	Vars map[string]any
}

// Outcome is how a dispatch terminated.
type Outcome int

const (
	// OutcomeRendered means output checks passed and the renderer ran.
	OutcomeRendered Outcome = iota
	// OutcomeNotRendered means the dispatch completed without rendering:
	// a STOP, or a redirect issued before rendering.
	OutcomeNotRendered
	// OutcomeQuit means a QUIT terminated the dispatch immediately.
	OutcomeQuit
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRendered:
		return "rendered"
	case OutcomeNotRendered:
		return "not_rendered"
	case OutcomeQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Result describes a completed dispatch.
type Result struct {
	Outcome Outcome
	// Route is the route that finally ran, after any reboots.
	Route domain.Route
	// Reentries counts REBOOT and RESTART transitions taken.
	Reentries int
	// Signal is the last non-continue signal seen, if any.
	Signal    domain.Signal
	Response  *action.Response
	Collector *action.Collector
}

// Dispatcher runs dispatches. It is safe for concurrent use; each dispatch
// owns its ActionContext.
type Dispatcher struct {
	registry     *controller.Registry
	resolver     *resolver.Resolver
	env          atomic.Pointer[Environment]
	loader       EnvironmentLoader
	renderer     ports.Renderer
	maxReentries int
	logger       *slog.Logger
	tracer       trace.Tracer
	observer     Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEnvironment sets the initial environment.
func WithEnvironment(env *Environment) Option {
	return func(d *Dispatcher) {
		d.env.Store(env)
	}
}

// WithEnvironmentLoader sets the loader consulted on RESTART.
func WithEnvironmentLoader(l EnvironmentLoader) Option {
	return func(d *Dispatcher) {
		d.loader = l
	}
}

// WithRenderer sets the default renderer.
func WithRenderer(r ports.Renderer) Option {
	return func(d *Dispatcher) {
		d.renderer = r
	}
}

// WithMaxReentries bounds REBOOT/RESTART re-entries. Values below zero are
// ignored.
func WithMaxReentries(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxReentries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// WithObserver installs a metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// New creates a dispatcher over reg.
func New(reg *controller.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:     reg,
		resolver:     resolver.New(reg),
		maxReentries: DefaultMaxReentries,
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.env.Load() == nil {
		d.env.Store(&Environment{})
	}
	return d
}

// Environment returns the current environment.
func (d *Dispatcher) Environment() *Environment {
	return d.env.Load()
}

// SetEnvironment swaps the environment used by subsequent dispatches.
// Dispatches already running keep the environment they started with.
func (d *Dispatcher) SetEnvironment(env *Environment) {
	if env != nil {
		d.env.Store(env)
	}
}

// Resolver returns the attribute resolver.
func (d *Dispatcher) Resolver() *resolver.Resolver {
	return d.resolver
}
