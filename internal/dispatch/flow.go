package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
	"github.com/tjfontaine/actiongate/internal/plugin"
	"github.com/tjfontaine/actiongate/internal/resolver"
)

// State is a flow controller state.
type State int

const (
	StateResolvingPolicies State = iota
	StateRunningPreHooks
	StateRunningPolicies
	StateRunningAction
	StateRunningPostHooks
	StateRendering
	StateTerminated
)

var stateNames = [...]string{
	StateResolvingPolicies: "ResolvingPolicies",
	StateRunningPreHooks:   "RunningPreHooks",
	StateRunningPolicies:   "RunningPolicies",
	StateRunningAction:     "RunningAction",
	StateRunningPostHooks:  "RunningPostHooks",
	StateRendering:         "Rendering",
	StateTerminated:        "Terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Dispatch runs req to completion. Errors not converted into signals by
// policies, hooks or the action propagate unchanged; re-entry beyond the
// configured maximum fails with a *domain.DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	env := d.Environment()
	collector := action.NewCollector()
	route := req.Route
	reentries := 0

	for {
		a := &attempt{
			d:         d,
			req:       req,
			env:       env,
			route:     route,
			reentry:   reentries,
			collector: collector,
		}
		outcome, sig, err := a.run(ctx)
		if err != nil {
			d.observer.DispatchCompleted(route, outcome, reentries, err)
			return nil, err
		}

		if sig.Kind != domain.SignalReboot && sig.Kind != domain.SignalRestart {
			d.observer.DispatchCompleted(route, outcome, reentries, nil)
			return &Result{
				Outcome:   outcome,
				Route:     route,
				Reentries: reentries,
				Signal:    sig,
				Response:  a.ac.Response(),
				Collector: collector,
			}, nil
		}

		if reentries >= d.maxReentries {
			err := &domain.DispatchError{Kind: domain.ErrRebootLimit, Route: route, Limit: d.maxReentries}
			d.observer.DispatchCompleted(route, outcome, reentries, err)
			return nil, err
		}
		reentries++

		switch sig.Kind {
		case domain.SignalReboot:
			d.logger.DebugContext(ctx, "dispatch reboot",
				slog.String("from", route.String()),
				slog.String("to", sig.Route.String()),
			)
			route = sig.Route
		case domain.SignalRestart:
			d.logger.DebugContext(ctx, "dispatch restart", slog.String("route", req.Route.String()))
			route = req.Route
			if d.loader != nil {
				fresh, err := d.loader.LoadEnvironment(ctx)
				if err != nil {
					err = fmt.Errorf("restart: reload environment: %w", err)
					d.observer.DispatchCompleted(route, outcome, reentries, err)
					return nil, err
				}
				if fresh != nil {
					d.SetEnvironment(fresh)
					env = fresh
				}
			}
		}
	}
}

// attempt is one pass through the state machine with its own
// ActionContext.
type attempt struct {
	d         *Dispatcher
	req       *Request
	env       *Environment
	route     domain.Route
	reentry   int
	collector *action.Collector

	ac      *action.Context
	state   State
	last    domain.Signal
	stopped bool
	span    trace.Span
}

func (a *attempt) run(ctx context.Context) (Outcome, domain.Signal, error) {
	ctx, a.span = a.d.tracer.Start(ctx, "dispatch "+a.route.String(), trace.WithAttributes(
		attribute.String("actiongate.controller", a.route.Controller),
		attribute.String("actiongate.action", a.route.Action),
		attribute.Int("actiongate.reentry", a.reentry),
	))
	defer a.span.End()

	outcome, sig, err := a.step(ctx)
	if err != nil {
		a.d.logger.DebugContext(ctx, "dispatch failed",
			slog.String("route", a.route.String()),
			slog.String("state", a.state.String()),
			slog.String("error", err.Error()),
		)
		a.span.SetAttributes(attribute.String("actiongate.failed_state", a.state.String()))
		a.span.RecordError(err)
		a.span.SetStatus(codes.Error, err.Error())
	}
	a.enter(ctx, StateTerminated)

	a.span.SetAttributes(
		attribute.String("actiongate.outcome", outcome.String()),
		attribute.String("actiongate.signal", sig.Kind.String()),
	)
	return outcome, sig, err
}

func (a *attempt) step(ctx context.Context) (Outcome, domain.Signal, error) {
	a.enter(ctx, StateResolvingPolicies)
	bindings, err := a.d.resolver.Resolve(a.route.Controller, a.route.Action)
	if err != nil {
		return OutcomeNotRendered, a.last, err
	}
	handler, err := a.d.registry.Handler(a.route)
	if err != nil {
		return OutcomeNotRendered, a.last, err
	}
	pre := a.env.Hooks.ResolvePre(a.route.Controller, a.route.Action)
	post := a.env.Hooks.ResolvePost(a.route.Controller, a.route.Action)

	a.ac = action.New(action.Options{
		Route:      a.route,
		Request:    a.req.HTTP,
		Session:    a.req.Session,
		Config:     a.env.Config,
		Redirector: a.req.Redirector,
		Collector:  a.collector,
		Logger:     a.d.logger,
		Vars:       a.req.Vars,
	})

	next := StateRunningPreHooks
	for {
		a.enter(ctx, next)

		var sig domain.Signal
		switch next {
		case StateRunningPreHooks:
			sig, err = a.runHooks(ctx, ports.HookPre, pre)
			next = StateRunningPolicies
		case StateRunningPolicies:
			sig, err = a.runPolicies(ctx, bindings)
			next = StateRunningAction
		case StateRunningAction:
			sig, err = handler(ctx, a.ac)
			next = StateRunningPostHooks
		case StateRunningPostHooks:
			sig, err = a.runHooks(ctx, ports.HookPost, post)
			if a.stopped && sig.IsContinue() && err == nil {
				return OutcomeNotRendered, a.last, nil
			}
			next = StateRendering
		case StateRendering:
			return a.render(ctx)
		}
		if err != nil {
			return OutcomeNotRendered, a.last, err
		}
		if sig.IsContinue() {
			continue
		}

		a.signal(ctx, sig)
		switch sig.Kind {
		case domain.SignalHalt:
			if a.stopped {
				return OutcomeNotRendered, a.last, nil
			}
			next = StateRendering
		case domain.SignalStop:
			if a.state == StateRunningPostHooks {
				return OutcomeNotRendered, a.last, nil
			}
			a.stopped = true
			next = StateRunningPostHooks
		case domain.SignalQuit:
			return OutcomeQuit, a.last, nil
		case domain.SignalReboot, domain.SignalRestart:
			return OutcomeNotRendered, sig, nil
		default:
			return OutcomeNotRendered, a.last, fmt.Errorf("unknown signal %s", sig)
		}
	}
}

func (a *attempt) runHooks(ctx context.Context, phase ports.HookPhase, hooks []plugin.Hook) (domain.Signal, error) {
	ctx = plugin.WithPhase(ctx, phase)
	for _, h := range hooks {
		sig, err := h.Run(ctx, a.ac)
		if err != nil {
			return domain.Continue(), fmt.Errorf("%s hook %s: %w", phase, h.Name(), err)
		}
		if !sig.IsContinue() {
			return sig, nil
		}
	}
	return domain.Continue(), nil
}

func (a *attempt) runPolicies(ctx context.Context, bindings []resolver.Binding) (domain.Signal, error) {
	for _, b := range bindings {
		sig, err := b.Attribute.Apply(ctx, a.ac)
		if err != nil {
			a.d.observer.PolicyFailed(a.route, b.Attribute.Name(), err)
			return domain.Continue(), err
		}
		if !sig.IsContinue() {
			return sig, nil
		}
	}
	return domain.Continue(), nil
}

func (a *attempt) render(ctx context.Context) (Outcome, domain.Signal, error) {
	resp := a.ac.Response()
	if resp.Location != "" {
		a.d.logger.DebugContext(ctx, "render skipped after redirect",
			slog.String("route", a.route.String()),
			slog.String("location", resp.Location),
		)
		return OutcomeNotRendered, a.last, nil
	}

	if err := a.ac.CheckOutput(); err != nil {
		return OutcomeNotRendered, a.last, err
	}

	renderer := a.req.Renderer
	if renderer == nil {
		renderer = a.d.renderer
	}
	if renderer != nil {
		view := ports.RenderView{
			Controller: a.route.Controller,
			Action:     a.route.Action,
			Status:     resp.Status,
			Data:       resp.Data,
			Headers:    resp.Headers,
		}
		if err := renderer.Render(ctx, view); err != nil {
			return OutcomeNotRendered, a.last, fmt.Errorf("render %s: %w", a.route, err)
		}
	}
	return OutcomeRendered, a.last, nil
}

func (a *attempt) enter(ctx context.Context, s State) {
	a.state = s
	a.d.logger.DebugContext(ctx, "dispatch state",
		slog.String("route", a.route.String()),
		slog.String("state", s.String()),
		slog.Int("reentry", a.reentry),
	)
}

func (a *attempt) signal(ctx context.Context, sig domain.Signal) {
	a.last = sig
	a.d.observer.SignalRaised(a.route, a.state, sig)
	a.span.AddEvent("signal", trace.WithAttributes(
		attribute.String("actiongate.signal", sig.Kind.String()),
		attribute.String("actiongate.state", a.state.String()),
	))
	a.collector.Add("dispatch", "signal "+sig.String(), "state", a.state.String())
	a.d.logger.DebugContext(ctx, "dispatch signal",
		slog.String("route", a.route.String()),
		slog.String("state", a.state.String()),
		slog.String("signal", sig.String()),
	)
}
