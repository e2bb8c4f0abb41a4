package controller

import (
	"context"
	"testing"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

func noop(context.Context, *action.Context) (domain.Signal, error) {
	return domain.Continue(), nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	auth := &attribute.Auth{State: attribute.AuthRequired}
	post := attribute.POST()

	attrs := []attribute.Attribute{auth}
	reg.MustRegister(Definition{
		Name:       "account",
		Attributes: attrs,
		Actions: []Action{
			{Name: "show", Handler: noop},
			{Name: "save", Handler: noop, Attributes: []attribute.Attribute{post}},
		},
	})

	ctrlAttrs, act, err := reg.Lookup(domain.Route{Controller: "account", Action: "save"})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(ctrlAttrs) != 1 || ctrlAttrs[0] != auth {
		t.Errorf("controller attributes = %v", ctrlAttrs)
	}
	if act.Name != "save" || len(act.Attributes) != 1 || act.Attributes[0] != post {
		t.Errorf("action = %+v", act)
	}

	attrs[0] = post
	ctrlAttrs, _, _ = reg.Lookup(domain.Route{Controller: "account", Action: "show"})
	if ctrlAttrs[0] != auth {
		t.Error("registry shares the caller's slice")
	}

	if got := reg.Actions("account"); len(got) != 2 || got[0] != "show" || got[1] != "save" {
		t.Errorf("Actions() = %v", got)
	}
	if got := reg.Controllers(); len(got) != 1 || got[0] != "account" {
		t.Errorf("Controllers() = %v", got)
	}
}

func TestRegistry_LookupErrors(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Definition{Name: "account", Actions: []Action{{Name: "show", Handler: noop}}})

	_, _, err := reg.Lookup(domain.Route{Controller: "billing", Action: "show"})
	if !domain.IsDispatchError(err, domain.ErrUnknownController) {
		t.Errorf("unknown controller error = %v", err)
	}

	_, err = reg.Handler(domain.Route{Controller: "account", Action: "delete"})
	if !domain.IsDispatchError(err, domain.ErrUnknownAction) {
		t.Errorf("unknown action error = %v", err)
	}
}

func TestRegistry_RegisterRejects(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"empty name", Definition{}},
		{"empty action name", Definition{Name: "a", Actions: []Action{{Handler: noop}}}},
		{"nil handler", Definition{Name: "a", Actions: []Action{{Name: "x"}}}},
		{"duplicate action", Definition{Name: "a", Actions: []Action{{Name: "x", Handler: noop}, {Name: "x", Handler: noop}}}},
		{"nil controller attribute", Definition{Name: "a", Attributes: []attribute.Attribute{nil}}},
		{"nil action attribute", Definition{Name: "a", Actions: []Action{{Name: "x", Handler: noop, Attributes: []attribute.Attribute{nil}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewRegistry().Register(tt.def); err == nil {
				t.Error("expected error")
			}
		})
	}

	reg := NewRegistry()
	reg.MustRegister(Definition{Name: "a"})
	if err := reg.Register(Definition{Name: "a"}); err == nil {
		t.Error("duplicate controller accepted")
	}
}
