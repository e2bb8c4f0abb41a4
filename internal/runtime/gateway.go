// Package runtime wires configuration, sessions, identity, hooks and the
// dispatcher into a running HTTP server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/actiongate/internal/adapters/identity/bearer"
	"github.com/tjfontaine/actiongate/internal/adapters/session"
	"github.com/tjfontaine/actiongate/internal/controller"
	"github.com/tjfontaine/actiongate/internal/core/ports"
	"github.com/tjfontaine/actiongate/internal/dispatch"
	"github.com/tjfontaine/actiongate/internal/frontdoor"
	"github.com/tjfontaine/actiongate/internal/metrics"
	"github.com/tjfontaine/actiongate/internal/pkg/config"
	"github.com/tjfontaine/actiongate/internal/plugin"
	"github.com/tjfontaine/actiongate/internal/server"
)

// MetricsPath serves the Prometheus registry.
const MetricsPath = "/metrics"

// Gateway runs the dispatcher behind an HTTP server. It can be embedded in
// a larger application or run standalone.
type Gateway struct {
	// Dependencies (injected via options)
	config      ports.ConfigProvider
	controllers *controller.Registry
	plugins     *plugin.Registry
	sessions    ports.SessionBackend
	tracer      trace.TracerProvider
	metricsReg  *prometheus.Registry
	logger      *slog.Logger

	// Owned resources, closed on Shutdown
	ownsSessions bool

	dispatcher *dispatch.Dispatcher
	handler    http.Handler
	server     *http.Server
	addr       net.Addr

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates a Gateway. A config provider and a controller registry are
// required.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	if gw.controllers == nil {
		return nil, errors.New("controller registry required (use WithControllers)")
	}
	if gw.plugins == nil {
		gw.plugins = plugin.NewDefaultRegistry()
	}
	if gw.metricsReg == nil {
		gw.metricsReg = prometheus.NewRegistry()
	}
	return gw, nil
}

// Start loads configuration, builds the dispatch pipeline and starts
// listening. It returns once the listener is bound.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ctx, g.cancel = context.WithCancel(ctx)

	cfg, err := g.config.Load(g.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := g.initDispatcher(cfg); err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}

	if g.sessions == nil {
		backend, err := session.NewBackend(g.ctx, cfg.Session)
		if err != nil {
			return fmt.Errorf("init sessions: %w", err)
		}
		g.sessions = backend
		g.ownsSessions = true
	}

	if err := g.initHandler(cfg); err != nil {
		return fmt.Errorf("init handler: %w", err)
	}

	if err := g.startServer(cfg); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	go g.watchConfig()

	g.logger.Info("gateway started",
		slog.String("addr", g.addr.String()),
		slog.String("session", cfg.Session.Type),
		slog.Int("controllers", len(g.controllers.Controllers())))

	return nil
}

// Shutdown gracefully stops the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if g.cancel != nil {
		g.cancel()
	}

	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	if g.sessions != nil && g.ownsSessions {
		if err := g.sessions.Close(); err != nil {
			g.logger.Error("failed to close sessions", slog.String("error", err.Error()))
		}
	}

	if g.config != nil {
		if err := g.config.Close(); err != nil {
			g.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	g.logger.Info("gateway shutdown complete")
	return nil
}

// Addr returns the bound listener address once started.
func (g *Gateway) Addr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.addr
}

// Handler returns the HTTP handler once started.
func (g *Gateway) Handler() http.Handler {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.handler
}

// Dispatcher returns the dispatcher once started.
func (g *Gateway) Dispatcher() *dispatch.Dispatcher {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dispatcher
}

// watchConfig swaps the dispatch environment when the configuration
// changes. Server and session settings need a restart of the process.
func (g *Gateway) watchConfig() {
	onChange := func(newCfg *config.Config) {
		g.logger.Info("config changed, reloading")
		if err := g.reload(newCfg); err != nil {
			g.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	}

	if err := g.config.Watch(g.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

func (g *Gateway) reload(cfg *config.Config) error {
	env, err := g.buildEnvironment(cfg)
	if err != nil {
		return err
	}
	g.Dispatcher().SetEnvironment(env)

	g.logger.Info("reload complete", slog.Int("hooks", env.Hooks.Len()))
	return nil
}

// buildEnvironment is also the RESTART loader: the configuration is read
// again and every hook is rebuilt from it.
func (g *Gateway) buildEnvironment(cfg *config.Config) (*dispatch.Environment, error) {
	chain, err := plugin.NewChainFromConfig(cfg.Plugins, g.plugins)
	if err != nil {
		return nil, fmt.Errorf("build hook chain: %w", err)
	}
	return &dispatch.Environment{Config: cfg, Hooks: chain}, nil
}

func (g *Gateway) loadEnvironment(ctx context.Context) (*dispatch.Environment, error) {
	cfg, err := g.config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return g.buildEnvironment(cfg)
}

func (g *Gateway) initDispatcher(cfg *config.Config) error {
	env, err := g.buildEnvironment(cfg)
	if err != nil {
		return err
	}

	opts := []dispatch.Option{
		dispatch.WithEnvironment(env),
		dispatch.WithEnvironmentLoader(dispatch.EnvironmentLoaderFunc(g.loadEnvironment)),
		dispatch.WithMaxReentries(cfg.Dispatch.MaxReentries),
		dispatch.WithLogger(g.logger),
		dispatch.WithObserver(metrics.NewRecorder(g.metricsReg)),
	}
	if g.tracer != nil {
		opts = append(opts, dispatch.WithTracerProvider(g.tracer))
	}
	g.dispatcher = dispatch.New(g.controllers, opts...)

	g.logger.Debug("dispatcher initialized",
		slog.Int("hooks", env.Hooks.Len()),
		slog.Int("max_reentries", cfg.Dispatch.MaxReentries))
	return nil
}

func (g *Gateway) initHandler(cfg *config.Config) error {
	var timeout time.Duration
	if cfg.Server.Timeout != "" {
		d, err := time.ParseDuration(cfg.Server.Timeout)
		if err != nil {
			return fmt.Errorf("invalid server timeout %q: %w", cfg.Server.Timeout, err)
		}
		timeout = d
	}

	var verifier *bearer.Verifier
	if cfg.Auth.JWTSecret != "" {
		v, err := bearer.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return fmt.Errorf("create token verifier: %w", err)
		}
		verifier = v
	} else {
		g.logger.Info("no jwt secret configured, bearer tokens are ignored")
	}

	srv := server.New(server.Options{Logger: g.logger, Timeout: timeout})
	srv.Router.Handle(MetricsPath, metrics.Handler(g.metricsReg))

	fd := frontdoor.New(frontdoor.Options{
		Dispatcher:    g.dispatcher,
		Sessions:      g.sessions,
		Verifier:      verifier,
		CookieName:    cfg.Session.Cookie,
		DefaultAction: cfg.Dispatch.DefaultAction,
		Logger:        g.logger,
	})
	fd.Mount(srv.Router)

	g.handler = srv.Router
	g.server = srv.HTTPServer(cfg.Server.Port)
	return nil
}

func (g *Gateway) startServer(cfg *config.Config) error {
	g.logger.Debug("starting HTTP server", slog.Int("port", cfg.Server.Port))

	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return err
	}
	g.addr = ln.Addr()

	srv := g.server
	go func() {
		g.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}
