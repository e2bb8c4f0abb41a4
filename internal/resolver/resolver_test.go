package resolver

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/internal/controller"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

func noop(context.Context, *action.Context) (domain.Signal, error) {
	return domain.Continue(), nil
}

func names(bindings []Binding) []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.Scope.String() + ":" + b.Attribute.Name()
	}
	return out
}

func accountRegistry() *controller.Registry {
	reg := controller.NewRegistry()
	reg.MustRegister(controller.Definition{
		Name: "account",
		Attributes: []attribute.Attribute{
			&attribute.Auth{State: attribute.AuthRequired},
			&attribute.Method{Forbidden: []string{"DELETE"}},
		},
		Actions: []controller.Action{
			{Name: "show", Handler: noop, Attributes: []attribute.Attribute{attribute.GET()}},
			{Name: "save", Handler: noop, Attributes: []attribute.Attribute{
				attribute.POST(),
				attribute.Params(map[string]string{"id": "int"}),
				attribute.Params(map[string]string{"name": "string"}),
			}},
			{Name: "logout", Handler: noop},
		},
	})
	return reg
}

func TestResolve_Order(t *testing.T) {
	r := New(accountRegistry())

	tests := []struct {
		action string
		want   []string
	}{
		{"show", []string{"controller:Auth", "controller:Method", "action:Method(GET)"}},
		{"save", []string{"controller:Auth", "controller:Method", "action:Method(POST)", "action:Check(PARAMS)", "action:Check(PARAMS)"}},
		{"logout", []string{"controller:Auth", "controller:Method"}},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := r.Resolve("account", tt.action)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !reflect.DeepEqual(names(got), tt.want) {
				t.Errorf("Resolve() = %v, want %v", names(got), tt.want)
			}
		})
	}
}

func TestResolve_RepeatedBindingsStaySeparate(t *testing.T) {
	r := New(accountRegistry())
	got, _ := r.Resolve("account", "save")
	if got[3].Attribute == got[4].Attribute {
		t.Error("repeated Check bindings were merged")
	}
}

func TestResolve_FreshSlice(t *testing.T) {
	r := New(accountRegistry())
	first, _ := r.Resolve("account", "show")
	first[0] = Binding{}

	second, _ := r.Resolve("account", "show")
	if len(second) != 3 || second[0].Attribute == nil || second[0].Attribute.Name() != "Auth" {
		t.Errorf("memo corrupted by caller: %v", second)
	}
}

func TestResolve_Unknown(t *testing.T) {
	r := New(accountRegistry())
	if _, err := r.Resolve("billing", "show"); !domain.IsDispatchError(err, domain.ErrUnknownController) {
		t.Errorf("error = %v", err)
	}
	if _, err := r.Attributes(domain.Route{Controller: "account", Action: "nope"}); !domain.IsDispatchError(err, domain.ErrUnknownAction) {
		t.Errorf("error = %v", err)
	}
}

func TestResolve_Concurrent(t *testing.T) {
	r := New(accountRegistry())
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Resolve("account", "save")
			if err != nil || len(got) != 5 {
				t.Errorf("Resolve() = %v, %v", got, err)
			}
		}()
	}
	wg.Wait()
}

// TestResolveDeterminism verifies repeated resolution is stable.
// Property: Resolve(c, a) == Resolve(c, a) for any registered pair
func TestResolveDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("resolve is deterministic and idempotent", prop.ForAll(
		func(ctrlCount, actCount, pick int) bool {
			reg := controller.NewRegistry()
			actions := make([]controller.Action, actCount)
			for i := range actions {
				attrs := make([]attribute.Attribute, i%3)
				for j := range attrs {
					attrs[j] = &attribute.Redirect{URL: fmt.Sprintf("/a%d/%d", i, j)}
				}
				actions[i] = controller.Action{Name: fmt.Sprintf("act%d", i), Handler: noop, Attributes: attrs}
			}
			ctrlAttrs := make([]attribute.Attribute, ctrlCount)
			for i := range ctrlAttrs {
				ctrlAttrs[i] = &attribute.Method{Allowed: []string{"GET"}}
			}
			reg.MustRegister(controller.Definition{Name: "c", Attributes: ctrlAttrs, Actions: actions})

			r := New(reg)
			name := fmt.Sprintf("act%d", pick%actCount)
			first, err1 := r.Resolve("c", name)
			second, err2 := r.Resolve("c", name)
			fresh, err3 := New(reg).Resolve("c", name)
			if err1 != nil || err2 != nil || err3 != nil {
				return false
			}
			if len(first) != ctrlCount+(pick%actCount)%3 {
				return false
			}
			for i := range first {
				if first[i] != second[i] || first[i] != fresh[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 5),
		gen.IntRange(1, 6),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
