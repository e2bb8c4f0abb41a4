// Package domain provides the core types shared by the dispatch pipeline:
// routes, flow signals and the error taxonomy.
package domain

import "fmt"

// Route identifies a controller action.
type Route struct {
	Controller string `json:"controller"`
	Action     string `json:"action"`
}

// String returns the route in "controller.action" form.
func (r Route) String() string {
	return r.Controller + "." + r.Action
}

// SignalKind enumerates the flow signals understood by the dispatcher.
type SignalKind int

const (
	// SignalContinue is the implicit non-signal: evaluation proceeds normally.
	SignalContinue SignalKind = iota
	// SignalHalt stops controller logic and proceeds to rendering.
	SignalHalt
	// SignalStop skips rendering; post hooks still run.
	SignalStop
	// SignalQuit terminates the dispatch immediately.
	SignalQuit
	// SignalReboot restarts resolution with a different route.
	SignalReboot
	// SignalRestart re-runs the whole dispatch after reloading configuration.
	SignalRestart
)

var signalNames = map[SignalKind]string{
	SignalContinue: "continue",
	SignalHalt:     "halt",
	SignalStop:     "stop",
	SignalQuit:     "quit",
	SignalReboot:   "reboot",
	SignalRestart:  "restart",
}

// String returns the lowercase name of the signal kind.
func (k SignalKind) String() string {
	if name, ok := signalNames[k]; ok {
		return name
	}
	return fmt.Sprintf("signal(%d)", int(k))
}

// ParseSignalKind maps a name produced by SignalKind.String back to its kind.
func ParseSignalKind(name string) (SignalKind, bool) {
	for k, n := range signalNames {
		if n == name {
			return k, true
		}
	}
	return SignalContinue, false
}

// Signal is a control transfer returned alongside the error channel by
// policies, hooks and actions. The zero value is Continue.
type Signal struct {
	Kind SignalKind
	// Route is the forward target of a Reboot signal.
	Route Route
	// Reason is a free-form note for logs.
	Reason string
}

// IsContinue reports whether the signal lets evaluation proceed.
func (s Signal) IsContinue() bool {
	return s.Kind == SignalContinue
}

func (s Signal) String() string {
	switch {
	case s.Kind == SignalReboot:
		return fmt.Sprintf("reboot(%s)", s.Route)
	case s.Reason != "":
		return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
	default:
		return s.Kind.String()
	}
}

// Continue returns the non-signal.
func Continue() Signal { return Signal{} }

// Halt returns a HALT signal.
func Halt(reason string) Signal { return Signal{Kind: SignalHalt, Reason: reason} }

// Stop returns a STOP signal.
func Stop() Signal { return Signal{Kind: SignalStop} }

// Quit returns a QUIT signal.
func Quit() Signal { return Signal{Kind: SignalQuit} }

// Reboot returns a REBOOT signal forwarding to route.
func Reboot(route Route) Signal { return Signal{Kind: SignalReboot, Route: route} }

// Restart returns a RESTART signal.
func Restart() Signal { return Signal{Kind: SignalRestart} }
