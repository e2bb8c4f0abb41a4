// This file contains the wire contract between the dispatcher's plugin
// hooks and external hook services.
package ports

import (
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// HookPhase determines when a hook runs around the action.
type HookPhase string

const (
	// HookPre runs after resolution and before policies.
	HookPre HookPhase = "pre"
	// HookPost runs after the action and before rendering.
	HookPost HookPhase = "post"
)

// HookAction is the verdict returned by an external hook service.
type HookAction string

const (
	// ActionAllow lets the dispatch continue.
	ActionAllow HookAction = "allow"
	// ActionDeny fails the dispatch with a hook denial.
	ActionDeny HookAction = "deny"
	// ActionRedirect redirects and halts.
	ActionRedirect HookAction = "redirect"
	ActionHalt     HookAction = "halt"
	ActionStop     HookAction = "stop"
	ActionQuit     HookAction = "quit"
	ActionReboot   HookAction = "reboot"
	ActionRestart  HookAction = "restart"
)

// HookInput is the document POSTed to a hook service.
type HookInput struct {
	Phase    HookPhase      `json:"phase"`
	Route    domain.Route   `json:"route"`
	Method   string         `json:"method"`
	URL      string         `json:"url"`
	Query    map[string]any `json:"query,omitempty"`
	Form     map[string]any `json:"form,omitempty"`
	Identity string         `json:"identity,omitempty"`
	// Status is the response status so far; only set in the post phase.
	Status int `json:"status,omitempty"`
	// Metadata carries request_id and the hook name.
	Metadata map[string]any `json:"metadata"`
}

// HookOutput is a hook service's reply.
type HookOutput struct {
	Action HookAction `json:"action"`
	// Redirect is the target for ActionRedirect.
	Redirect string `json:"redirect,omitempty"`
	// Route is the forward target for ActionReboot.
	Route *domain.Route `json:"route,omitempty"`
	// Reason explains a deny or halt.
	Reason string `json:"reason,omitempty"`
	// Vars are merged into the dispatch variables on allow.
	Vars map[string]any `json:"vars,omitempty"`
}
