package plugin

import (
	"context"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// Hook runs before or after an action with the dispatch's ActionContext.
type Hook interface {
	// Name returns the unique identifier for this hook.
	Name() string
	// Run executes the hook. The phase is available via PhaseFromContext.
	Run(ctx context.Context, ac *action.Context) (domain.Signal, error)
}

// HookFunc adapts a function to Hook.
type HookFunc struct {
	ID string
	Fn func(ctx context.Context, ac *action.Context) (domain.Signal, error)
}

func (h HookFunc) Name() string { return h.ID }

func (h HookFunc) Run(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	return h.Fn(ctx, ac)
}

type phaseKey struct{}

// WithPhase tags ctx with the hook phase being run.
func WithPhase(ctx context.Context, phase ports.HookPhase) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

// PhaseFromContext returns the phase set by WithPhase, defaulting to pre.
func PhaseFromContext(ctx context.Context) ports.HookPhase {
	if p, ok := ctx.Value(phaseKey{}).(ports.HookPhase); ok {
		return p
	}
	return ports.HookPre
}
