package plugin

import (
	"fmt"
	"sort"
)

// Scopes lists hook names per granularity. Controller keys are controller
// names; action keys are "controller.action".
type Scopes struct {
	Global      []string
	Controllers map[string][]string
	Actions     map[string][]string
}

func (s Scopes) names() []string {
	var out []string
	out = append(out, s.Global...)
	for _, k := range sortedKeys(s.Controllers) {
		out = append(out, s.Controllers[k]...)
	}
	for _, k := range sortedKeys(s.Actions) {
		out = append(out, s.Actions[k]...)
	}
	return out
}

// Chain resolves the ordered hook lists for a route.
type Chain struct {
	hooks map[string]Hook
	pre   Scopes
	post  Scopes
}

// NewChain builds a chain over hooks. Every name referenced by pre or post
// must belong to a hook, and hook names must be unique.
func NewChain(hooks []Hook, pre, post Scopes) (*Chain, error) {
	c := &Chain{hooks: make(map[string]Hook, len(hooks)), pre: pre, post: post}
	for _, h := range hooks {
		if h == nil || h.Name() == "" {
			return nil, fmt.Errorf("hook must have a name")
		}
		if _, dup := c.hooks[h.Name()]; dup {
			return nil, fmt.Errorf("hook %q defined twice", h.Name())
		}
		c.hooks[h.Name()] = h
	}
	for _, scope := range []struct {
		phase string
		s     Scopes
	}{{"pre", pre}, {"post", post}} {
		for _, name := range scope.s.names() {
			if _, ok := c.hooks[name]; !ok {
				return nil, fmt.Errorf("%s hooks reference undefined hook %q", scope.phase, name)
			}
		}
	}
	return c, nil
}

// ResolvePre returns the pre hooks for controller.action: global, then
// controller-scoped, then action-scoped.
func (c *Chain) ResolvePre(controller, action string) []Hook {
	if c == nil {
		return nil
	}
	return c.resolve(c.pre, controller, action)
}

// ResolvePost returns the post hooks in the same precedence as ResolvePre.
func (c *Chain) ResolvePost(controller, action string) []Hook {
	if c == nil {
		return nil
	}
	return c.resolve(c.post, controller, action)
}

func (c *Chain) resolve(s Scopes, controller, action string) []Hook {
	var names []string
	names = append(names, s.Global...)
	names = append(names, s.Controllers[controller]...)
	names = append(names, s.Actions[controller+"."+action]...)

	out := make([]Hook, 0, len(names))
	for _, name := range names {
		out = append(out, c.hooks[name])
	}
	return out
}

// Hook returns a defined hook by name.
func (c *Chain) Hook(name string) (Hook, bool) {
	if c == nil {
		return nil, false
	}
	h, ok := c.hooks[name]
	return h, ok
}

// Len returns the number of defined hooks.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.hooks)
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
