// Package metrics exports dispatch counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/dispatch"
)

// Recorder implements dispatch.Observer over Prometheus collectors.
type Recorder struct {
	dispatches     *prometheus.CounterVec
	signals        *prometheus.CounterVec
	policyFailures *prometheus.CounterVec
	reentries      *prometheus.HistogramVec
}

var _ dispatch.Observer = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actiongate_dispatches_total",
			Help: "Completed dispatches grouped by route, outcome and error kind",
		}, []string{"route", "outcome", "error"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actiongate_signals_total",
			Help: "Non-continue flow signals grouped by raising state",
		}, []string{"state", "signal"}),
		policyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actiongate_policy_failures_total",
			Help: "Policy attribute failures grouped by attribute",
		}, []string{"attribute"}),
		reentries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actiongate_dispatch_reentries",
			Help:    "Reboots and restarts per dispatch",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		}, []string{"route"}),
	}

	reg.MustRegister(
		r.dispatches,
		r.signals,
		r.policyFailures,
		r.reentries,
	)
	return r
}

// Handler returns HTTP handler serving /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (r *Recorder) DispatchCompleted(route domain.Route, outcome dispatch.Outcome, reentries int, err error) {
	label := route.String()
	r.dispatches.WithLabelValues(label, outcome.String(), errorKind(err)).Inc()
	r.reentries.WithLabelValues(label).Observe(float64(reentries))
}

func (r *Recorder) SignalRaised(_ domain.Route, state dispatch.State, sig domain.Signal) {
	r.signals.WithLabelValues(state.String(), sig.Kind.String()).Inc()
}

func (r *Recorder) PolicyFailed(_ domain.Route, attribute string, _ error) {
	r.policyFailures.WithLabelValues(attribute).Inc()
}

// errorKind keeps label cardinality bounded: only typed error kinds are
// used, everything else is "internal".
func errorKind(err error) string {
	if err == nil {
		return "none"
	}
	var (
		pe *domain.PolicyError
		de *domain.DispatchError
		ve *domain.ValidationError
		oe *domain.OutputError
		he *domain.HookDeniedError
	)
	switch {
	case errors.As(err, &pe):
		return string(pe.Kind)
	case errors.As(err, &de):
		return string(de.Kind)
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &oe):
		return "output"
	case errors.As(err, &he):
		return "hook_denied"
	default:
		return "internal"
	}
}
