// Package controller holds the explicit registration table of controllers,
// their actions and the policy attributes declared on each.
//
// # Registering a Controller
//
//	reg := controller.NewRegistry()
//	reg.MustRegister(controller.Definition{
//	    Name:       "account",
//	    Attributes: []attribute.Attribute{&attribute.Auth{State: attribute.AuthRequired}},
//	    Actions: []controller.Action{
//	        {Name: "show", Handler: showAccount},
//	        {Name: "save", Handler: saveAccount, Attributes: []attribute.Attribute{attribute.POST()}},
//	    },
//	})
//
// Definitions are copied on registration and never change afterwards, so
// they can be shared by concurrent dispatches.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// ActionFunc is an action body. It may return a flow signal, an error, or
// both zero values for normal completion.
type ActionFunc func(ctx context.Context, ac *action.Context) (domain.Signal, error)

// Action is one named action of a controller.
type Action struct {
	Name    string
	Handler ActionFunc
	// Attributes are evaluated after the controller-level attributes, in
	// declared order.
	Attributes []attribute.Attribute
}

// Definition declares a controller.
type Definition struct {
	Name string
	// Attributes apply to every action of the controller.
	Attributes []attribute.Attribute
	Actions    []Action
}

type entry struct {
	def     Definition
	actions map[string]*Action
}

// Registry maps controller names to their definitions.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{controllers: make(map[string]*entry)}
}

// Register adds a controller. It rejects empty names, nil handlers and
// duplicate controllers or actions.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("controller name cannot be empty")
	}

	e := &entry{
		def: Definition{
			Name:       def.Name,
			Attributes: append([]attribute.Attribute(nil), def.Attributes...),
			Actions:    make([]Action, 0, len(def.Actions)),
		},
		actions: make(map[string]*Action, len(def.Actions)),
	}
	for _, a := range def.Attributes {
		if a == nil {
			return fmt.Errorf("controller %q: nil attribute", def.Name)
		}
	}

	for _, act := range def.Actions {
		if act.Name == "" {
			return fmt.Errorf("controller %q: action name cannot be empty", def.Name)
		}
		if act.Handler == nil {
			return fmt.Errorf("controller %q: action %q has no handler", def.Name, act.Name)
		}
		if _, dup := e.actions[act.Name]; dup {
			return fmt.Errorf("controller %q: action %q already registered", def.Name, act.Name)
		}
		for _, a := range act.Attributes {
			if a == nil {
				return fmt.Errorf("controller %q: action %q: nil attribute", def.Name, act.Name)
			}
		}
		e.def.Actions = append(e.def.Actions, Action{
			Name:       act.Name,
			Handler:    act.Handler,
			Attributes: append([]attribute.Attribute(nil), act.Attributes...),
		})
		e.actions[act.Name] = &e.def.Actions[len(e.def.Actions)-1]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.controllers[def.Name]; exists {
		return fmt.Errorf("controller %q already registered", def.Name)
	}
	r.controllers[def.Name] = e
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the controller-level attributes and the action for route.
// Unknown names yield a *domain.DispatchError. The returned values are
// shared and must not be modified.
func (r *Registry) Lookup(route domain.Route) ([]attribute.Attribute, *Action, error) {
	r.mu.RLock()
	e, ok := r.controllers[route.Controller]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, &domain.DispatchError{Kind: domain.ErrUnknownController, Route: route}
	}
	act, ok := e.actions[route.Action]
	if !ok {
		return nil, nil, &domain.DispatchError{Kind: domain.ErrUnknownAction, Route: route}
	}
	return e.def.Attributes, act, nil
}

// Handler returns the action body for route.
func (r *Registry) Handler(route domain.Route) (ActionFunc, error) {
	_, act, err := r.Lookup(route)
	if err != nil {
		return nil, err
	}
	return act.Handler, nil
}

// Controllers returns the registered controller names, sorted.
func (r *Registry) Controllers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.controllers))
	for name := range r.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actions returns the action names of a controller in declared order.
func (r *Registry) Actions(controller string) []string {
	r.mu.RLock()
	e, ok := r.controllers[controller]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	names := make([]string, len(e.def.Actions))
	for i, a := range e.def.Actions {
		names[i] = a.Name
	}
	return names
}
