package attribute

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// Method restricts the HTTP methods an action accepts. A method listed in
// Forbidden always fails; a non-empty Allowed list must contain the method.
type Method struct {
	Allowed   []string
	Forbidden []string
	Redirect  RedirectTarget
}

// GET allows only GET requests.
func GET() *Method { return &Method{Allowed: []string{http.MethodGet}} }

// POST allows only POST requests.
func POST() *Method { return &Method{Allowed: []string{http.MethodPost}} }

// PUT allows only PUT requests.
func PUT() *Method { return &Method{Allowed: []string{http.MethodPut}} }

// PATCH allows only PATCH requests.
func PATCH() *Method { return &Method{Allowed: []string{http.MethodPatch}} }

// DELETE allows only DELETE requests.
func DELETE() *Method { return &Method{Allowed: []string{http.MethodDelete}} }

// HEAD allows only HEAD requests.
func HEAD() *Method { return &Method{Allowed: []string{http.MethodHead}} }

func (m *Method) Name() string {
	if len(m.Forbidden) == 0 && len(m.Allowed) == 1 {
		return "Method(" + strings.ToUpper(m.Allowed[0]) + ")"
	}
	return "Method"
}

func (m *Method) Apply(ctx context.Context, ac *action.Context) (domain.Signal, error) {
	actual := ac.Method()

	var perr *domain.PolicyError
	switch {
	case contains(upperAll(m.Forbidden), actual):
		perr = domain.NewPolicyError(domain.ErrUnauthorizedMethod, m.Name(), fmt.Sprintf("method %s is forbidden", actual))
	case len(m.Allowed) > 0 && !contains(upperAll(m.Allowed), actual):
		perr = domain.NewPolicyError(domain.ErrUnauthorizedMethod, m.Name(),
			fmt.Sprintf("method %s not in %s", actual, strings.Join(upperAll(m.Allowed), ", ")))
	default:
		return domain.Continue(), nil
	}

	return fail(ctx, ac, m.Name(), m.Redirect, KeyMethodRedirect, perr.WithData(actual), nil)
}
