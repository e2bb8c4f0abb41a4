package main

import (
	"context"

	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/pkg/actiongate"
)

// demoControllers is a small account area: signed-in users see and edit
// their profile, anonymous users are sent to the login page.
func demoControllers() *actiongate.Registry {
	reg := actiongate.NewRegistry()

	reg.MustRegister(actiongate.Definition{
		Name: "account",
		Attributes: []actiongate.Attribute{
			&attribute.Auth{
				State:    attribute.AuthRequired,
				Redirect: attribute.RedirectTarget{URL: "/session/login"},
				StoreURL: true,
			},
		},
		Actions: []actiongate.Action{
			{Name: "index", Handler: showAccount},
			{
				Name:    "update",
				Handler: updateAccount,
				Attributes: []actiongate.Attribute{
					attribute.POST(),
					attribute.MustCheck(attribute.CheckConfig{
						Target: attribute.CheckPost,
						Fields: map[string]string{
							"name": "string; maxLen: 64",
							"age?": "int; min: 18",
						},
						Redirect: attribute.RedirectTarget{URL: "/account"},
					}),
					attribute.Output(map[string]string{"name": "string"}),
				},
			},
			{Name: "legacy", Handler: func(ctx context.Context, ac *actiongate.Context) (actiongate.Signal, error) {
				return actiongate.Reboot(actiongate.Route{Controller: "account", Action: "index"}), nil
			}},
		},
	})

	reg.MustRegister(actiongate.Definition{
		Name: "session",
		Actions: []actiongate.Action{
			{
				Name:    "login",
				Handler: showLogin,
				Attributes: []actiongate.Attribute{
					&attribute.Auth{State: attribute.AuthAnonymous, Redirect: attribute.RedirectTarget{URL: "/account"}},
				},
			},
		},
	})

	return reg
}

func showAccount(ctx context.Context, ac *actiongate.Context) (actiongate.Signal, error) {
	id := attribute.AsIdentity(ac.Vars()[attribute.DefaultUserVar])
	ac.Response().Set("id", id.IdentityID())
	ac.Response().Set("roles", id.Roles())

	flash, ok, err := ac.Flash(ctx, attribute.DefaultFlashVar)
	if err != nil {
		return actiongate.Continue(), err
	}
	if ok {
		ac.Response().Set("rejected", flash)
	}
	return actiongate.Continue(), nil
}

func updateAccount(ctx context.Context, ac *actiongate.Context) (actiongate.Signal, error) {
	form := ac.Form()
	ac.Response().Set("name", form["name"])
	if age, ok := form["age"]; ok {
		ac.Response().Set("age", age)
	}
	return actiongate.Continue(), nil
}

func showLogin(ctx context.Context, ac *actiongate.Context) (actiongate.Signal, error) {
	s := ac.Session()
	if s == nil {
		return actiongate.Continue(), nil
	}
	for _, key := range []string{attribute.SessionAuthRequestedURL, attribute.SessionAuthError} {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return actiongate.Continue(), err
		}
		if ok {
			ac.Response().Set(key, v)
		}
	}
	return actiongate.Continue(), nil
}
