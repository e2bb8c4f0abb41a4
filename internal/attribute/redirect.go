package attribute

import (
	"context"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// Redirect unconditionally sends the client elsewhere. The target is the
// first of URL, the Var context variable, the Referer header (when
// Referer is set) and the policy.redirect config key. With no target it
// fails with NoRedirectTarget.
type Redirect struct {
	URL     string
	Var     string
	Referer bool
}

func (r *Redirect) Name() string { return "Redirect" }

func (r *Redirect) Apply(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	target := r.URL
	if target == "" && r.Var != "" {
		target = ac.GetString(r.Var)
	}
	if target == "" && r.Referer {
		target = ac.Header("Referer")
	}
	if target == "" {
		target = configString(ac, KeyRedirect)
	}
	if target == "" {
		return domain.Continue(), domain.NewPolicyError(domain.ErrNoRedirectTarget, r.Name(), "no redirect target resolved")
	}

	if err := ac.Redirect(ctx, target); err != nil {
		return domain.Continue(), err
	}
	ac.Debug(ctx, r.Name(), "redirected", "location", target)
	return domain.Halt(r.Name()), nil
}
