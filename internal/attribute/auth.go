package attribute

import (
	"context"
	"fmt"
	"strings"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// AuthState constrains whether an identity must be present.
type AuthState int

const (
	// AuthAny does not check presence.
	AuthAny AuthState = iota
	// AuthRequired fails with NotAuthenticated when no identity is present.
	AuthRequired
	// AuthAnonymous fails with Authenticated when an identity is present.
	AuthAnonymous
)

// Auth checks the current identity's presence, roles and services.
//
// Role and service entries prefixed with "-" are forbidden: holding one
// fails immediately with ForbiddenRole / ForbiddenService, in list order.
// When the list has positive entries the identity must hold at least one.
type Auth struct {
	State    AuthState
	Roles    []string
	Services []string
	Redirect RedirectTarget
	// StoreURL saves the requested URL in the session before redirecting.
	StoreURL bool
	// UserVar overrides the policy.user_var config key.
	UserVar string
}

func (a *Auth) Name() string { return "Auth" }

func (a *Auth) Apply(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	id := a.identity(ac)

	if perr := a.evaluate(id); perr != nil {
		return fail(ctx, ac, a.Name(), a.Redirect, KeyAuthRedirect, perr, func(ctx context.Context) error {
			return a.stash(ctx, ac, perr)
		})
	}
	return domain.Continue(), nil
}

func (a *Auth) evaluate(id ports.Identity) *domain.PolicyError {
	present := id != nil && id.IdentityID() != ""

	switch a.State {
	case AuthRequired:
		if !present {
			return domain.NewPolicyError(domain.ErrNotAuthenticated, a.Name(), "an authenticated user is required")
		}
	case AuthAnonymous:
		if present {
			return domain.NewPolicyError(domain.ErrAuthenticated, a.Name(), "user is already authenticated").WithData(id.IdentityID())
		}
	}

	var roles, services []string
	if id != nil {
		roles = id.Roles()
		services = id.Services()
	}

	if len(a.Roles) > 0 {
		if perr := matchList(a.Roles, roles, domain.ErrForbiddenRole, domain.ErrNoMatchingRole, "role"); perr != nil {
			perr.Attribute = a.Name()
			return perr
		}
	}
	if len(a.Services) > 0 {
		if perr := matchList(a.Services, services, domain.ErrForbiddenService, domain.ErrNoMatchingAccess, "service"); perr != nil {
			perr.Attribute = a.Name()
			return perr
		}
	}
	return nil
}

// matchList applies the negative-prefix rule. Every forbidden entry is
// checked even after a positive match.
func matchList(rules, held []string, forbidden, noMatch domain.PolicyErrorKind, what string) *domain.PolicyError {
	var positives []string
	matched := false
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if name, ok := strings.CutPrefix(rule, "-"); ok {
			if contains(held, name) {
				return domain.NewPolicyError(forbidden, "", fmt.Sprintf("%s %s is forbidden", what, name)).WithData(name)
			}
			continue
		}
		positives = append(positives, rule)
		if contains(held, rule) {
			matched = true
		}
	}
	if len(positives) > 0 && !matched {
		return domain.NewPolicyError(noMatch, "", fmt.Sprintf("requires %s %s", what, strings.Join(positives, " or "))).WithData(positives)
	}
	return nil
}

func (a *Auth) stash(ctx context.Context, ac *action.Context, perr *domain.PolicyError) error {
	s := ac.Session()
	if err := s.Set(ctx, SessionAuthError, string(perr.Kind)); err != nil {
		return err
	}
	if perr.Data != nil {
		if err := s.Set(ctx, SessionAuthErrorData, perr.Data); err != nil {
			return err
		}
	} else if err := s.Unset(ctx, SessionAuthErrorData); err != nil {
		return err
	}
	if a.StoreURL {
		if u := ac.RequestURL(); u != "" {
			if err := s.Set(ctx, SessionAuthRequestedURL, u); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Auth) identity(ac *action.Context) ports.Identity {
	name := a.UserVar
	if name == "" {
		name = configString(ac, KeyUserVar)
	}
	if name == "" {
		name = DefaultUserVar
	}
	v, ok := ac.Get(name)
	if !ok {
		return nil
	}
	return AsIdentity(v)
}

// AsIdentity adapts a context variable into an Identity. It accepts an
// Identity, a map with "id", "roles" and "services" entries, or a bare ID
// string. Anything else yields nil.
func AsIdentity(v any) ports.Identity {
	switch t := v.(type) {
	case nil:
		return nil
	case ports.Identity:
		return t
	case string:
		if t == "" {
			return nil
		}
		return staticIdentity{id: t}
	case map[string]any:
		id := staticIdentity{
			roles:    toStrings(t["roles"]),
			services: toStrings(t["services"]),
		}
		switch raw := t["id"].(type) {
		case string:
			id.id = raw
		case nil:
		default:
			id.id = fmt.Sprint(raw)
		}
		return id
	default:
		return nil
	}
}

type staticIdentity struct {
	id       string
	roles    []string
	services []string
}

func (s staticIdentity) IdentityID() string { return s.id }
func (s staticIdentity) Roles() []string { return s.roles }
func (s staticIdentity) Services() []string { return s.services }
