package dispatch

import (
	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// Observer receives dispatch events, typically to update metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	// DispatchCompleted is called once per dispatch. err is nil on success.
	DispatchCompleted(route domain.Route, outcome Outcome, reentries int, err error)
	// SignalRaised is called for every non-continue signal with the state
	// it was raised in.
	SignalRaised(route domain.Route, state State, sig domain.Signal)
	// PolicyFailed is called when a policy attribute returns an error.
	PolicyFailed(route domain.Route, attribute string, err error)
}

type nopObserver struct{}

func (nopObserver) DispatchCompleted(domain.Route, Outcome, int, error) {}
func (nopObserver) SignalRaised(domain.Route, State, domain.Signal) {}
func (nopObserver) PolicyFailed(domain.Route, string, error) {}
