// Package plugin provides the pre/post hook chain run around controller
// actions.
//
// # Architecture
//
// Hooks are named instances built by registered factories from
// configuration. Each dispatch resolves two ordered lists:
//   - Pre hooks: run after resolution and before policies
//   - Post hooks: run after the action and before rendering
//
// Both lists are the concatenation of the global list, the controller list
// and the "controller.action" list, in that order. Hooks share the
// ActionContext with policies and return the same flow signals.
//
// # Webhook Contract
//
// Webhook hooks POST a HookInput and expect a HookOutput:
//
//	POST <webhook_url>
//	Content-Type: application/json
//
//	{
//	  "phase": "pre" | "post",
//	  "route": {"controller": "account", "action": "save"},
//	  "method": "POST",
//	  "url": "https://app.example/account/save",
//	  "identity": "u-42",
//	  "metadata": {"request_id": "...", "hook": "audit"}
//	}
//
// Response:
//
//	{
//	  "action": "allow" | "deny" | "redirect" | "halt" | "stop" | "quit" | "reboot" | "restart",
//	  "redirect": "/login",                          // for redirect
//	  "route": {"controller": "c", "action": "a"},   // for reboot
//	  "reason": "...",
//	  "vars": {"flag": true}                         // merged on allow
//	}
package plugin
