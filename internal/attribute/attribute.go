// Package attribute implements the policy attributes attached to controllers
// and actions: Auth, Method, Referer, Redirect and Check.
//
// Every attribute has the same outcome model. It either passes (Continue,
// nil), redirects and halts (Halt, nil) when a redirect target resolves, or
// fails hard with a typed error when none does. No attribute keeps
// evaluating after it has detected its own failure.
//
// Attributes are immutable once constructed and may be shared by
// concurrent dispatches.
package attribute

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// Attribute is a policy evaluated against a dispatch.
type Attribute interface {
	// Name identifies the attribute in logs and errors.
	Name() string
	// Apply evaluates the policy. A non-nil error is a hard failure and the
	// returned signal is ignored.
	Apply(ctx context.Context, ac *action.Context) (domain.Signal, error)
}

// ConfigNamespace is the Xtra namespace holding policy settings.
const ConfigNamespace = "policy"

// Config keys read from the policy namespace.
const (
	KeyUserVar         = "user_var"
	KeyAuthRedirect    = "auth_redirect"
	KeyMethodRedirect  = "method_redirect"
	KeyRefererRedirect = "referer_redirect"
	KeyCheckRedirect   = "check_redirect"
	KeyRedirect        = "redirect"
)

// DefaultUserVar is the context variable holding the current identity.
const DefaultUserVar = "user"

// Session keys written on redirect.
const (
	SessionAuthError        = "authError"
	SessionAuthErrorData    = "authErrorData"
	SessionAuthRequestedURL = "authRequestedUrl"
	DefaultFlashVar         = "form"
)

// RedirectTarget is where a failing attribute sends the client. The explicit URL
// wins over the context variable; when both are empty the attribute's
// class-specific config key and then the general "redirect" key are tried.
type RedirectTarget struct {
	URL string
	Var string
}

// resolveTarget walks explicit URL, context variable, class config key,
// general config key. It returns "" when nothing resolves.
func resolveTarget(ac *action.Context, t RedirectTarget, classKey string) string {
	if t.URL != "" {
		return t.URL
	}
	if t.Var != "" {
		if v := ac.GetString(t.Var); v != "" {
			return v
		}
	}
	if classKey != "" {
		if v := configString(ac, classKey); v != "" {
			return v
		}
	}
	return configString(ac, KeyRedirect)
}

// fail converts a failure into a redirect-halt when a target resolves, or
// returns the failure unchanged. before runs ahead of the redirect to stash
// session data.
func fail(ctx context.Context, ac *action.Context, name string, t RedirectTarget, classKey string, cause error, before func(context.Context) error) (domain.Signal, error) {
	url := resolveTarget(ac, t, classKey)
	if url == "" {
		ac.Debug(ctx, name, "policy failed", slog.String("error", cause.Error()))
		return domain.Continue(), cause
	}

	if before != nil {
		if err := before(ctx); err != nil {
			return domain.Continue(), fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := ac.Redirect(ctx, url); err != nil {
		return domain.Continue(), err
	}

	ac.Debug(ctx, name, "policy redirected",
		slog.String("error", cause.Error()),
		slog.String("location", url),
	)
	return domain.Halt(name + ": " + cause.Error()), nil
}

func configString(ac *action.Context, key string) string {
	v, _ := ac.Xtra(ConfigNamespace, key, "").(string)
	return v
}

// configStrings reads a config value that may be a single string or a list.
func configStrings(ac *action.Context, key string) []string {
	if key == "" {
		return nil
	}
	return toStrings(ac.Xtra(ConfigNamespace, key, nil))
}

// varStrings reads a context variable that may be a single string or a list.
func varStrings(ac *action.Context, name string) []string {
	if name == "" {
		return nil
	}
	v, _ := ac.Get(name)
	return toStrings(v)
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
