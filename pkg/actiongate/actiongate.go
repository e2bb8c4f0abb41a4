// Package actiongate is the public API for embedding the dispatch gateway.
// This is the stable API for external consumers.
package actiongate

import (
	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/adapters/identity/bearer"
	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/internal/controller"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/plugin"
	"github.com/tjfontaine/actiongate/internal/runtime"
)

// Gateway runs controllers behind an HTTP server.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// New creates a new Gateway with the given options.
// Example:
//
//	reg := actiongate.NewRegistry()
//	reg.MustRegister(actiongate.Definition{Name: "account", Actions: actions})
//	gw, err := actiongate.New(
//	    actiongate.WithFileConfig("config.yaml"),
//	    actiongate.WithControllers(reg),
//	)
var New = runtime.New

// Configuration options
var (
	WithFileConfig        = runtime.WithFileConfig
	WithConfigProvider    = runtime.WithConfigProvider
	WithControllers       = runtime.WithControllers
	WithPluginRegistry    = runtime.WithPluginRegistry
	WithSessionBackend    = runtime.WithSessionBackend
	WithTracerProvider    = runtime.WithTracerProvider
	WithMetricsRegistry   = runtime.WithMetricsRegistry
	WithLogger            = runtime.WithLogger
)

// NewPluginRegistry returns a hook registry with the built-in types, ready
// for custom factories to be added.
var NewPluginRegistry = plugin.NewDefaultRegistry

// Controllers
type (
	Registry   = controller.Registry
	Definition = controller.Definition
	Action     = controller.Action
	ActionFunc = controller.ActionFunc
	Context    = action.Context
	Attribute  = attribute.Attribute
	Hook       = plugin.Hook
)

var NewRegistry = controller.NewRegistry

// Flow signals
type (
	Signal = domain.Signal
	Route  = domain.Route
)

var (
	Continue = domain.Continue
	Halt     = domain.Halt
	Stop     = domain.Stop
	Quit     = domain.Quit
	Reboot   = domain.Reboot
	Restart  = domain.Restart
)

// Identity is the bearer token principal placed in the "user" variable.
type Identity = bearer.Identity
