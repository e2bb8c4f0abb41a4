// Package resolver computes the ordered policy attribute list for a
// controller action: controller-level bindings in declared order, then the
// action's own bindings in declared order.
package resolver

import (
	"sync"

	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/internal/controller"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// Scope records where a binding was declared.
type Scope int

const (
	ScopeController Scope = iota
	ScopeAction
)

func (s Scope) String() string {
	if s == ScopeAction {
		return "action"
	}
	return "controller"
}

// Binding is one attribute attached to a controller or action. Repeated
// attributes of the same type stay separate bindings.
type Binding struct {
	Scope     Scope
	Attribute attribute.Attribute
}

// Resolver memoizes bindings per route. Registered definitions never
// change, so a memoized list stays valid for the process lifetime.
type Resolver struct {
	registry *controller.Registry
	memo     sync.Map // domain.Route -> []Binding
}

// New creates a resolver over reg.
func New(reg *controller.Registry) *Resolver {
	return &Resolver{registry: reg}
}

// Resolve returns the bindings for controller.action. Each call returns a
// fresh slice. Unknown routes yield a *domain.DispatchError and are not
// memoized.
func (r *Resolver) Resolve(controllerName, actionName string) ([]Binding, error) {
	route := domain.Route{Controller: controllerName, Action: actionName}

	if cached, ok := r.memo.Load(route); ok {
		return clone(cached.([]Binding)), nil
	}

	ctrlAttrs, act, err := r.registry.Lookup(route)
	if err != nil {
		return nil, err
	}

	bindings := make([]Binding, 0, len(ctrlAttrs)+len(act.Attributes))
	for _, a := range ctrlAttrs {
		bindings = append(bindings, Binding{Scope: ScopeController, Attribute: a})
	}
	for _, a := range act.Attributes {
		bindings = append(bindings, Binding{Scope: ScopeAction, Attribute: a})
	}

	actual, _ := r.memo.LoadOrStore(route, bindings)
	return clone(actual.([]Binding)), nil
}

// Attributes is Resolve without scope information.
func (r *Resolver) Attributes(route domain.Route) ([]attribute.Attribute, error) {
	bindings, err := r.Resolve(route.Controller, route.Action)
	if err != nil {
		return nil, err
	}
	attrs := make([]attribute.Attribute, len(bindings))
	for i, b := range bindings {
		attrs[i] = b.Attribute
	}
	return attrs, nil
}

func clone(b []Binding) []Binding {
	out := make([]Binding, len(b))
	copy(out, b)
	return out
}
