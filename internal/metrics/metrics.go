// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

// Package metrics exposes protocol and device state as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeTelescope/fffpctl/pkg/correlator"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
	"github.com/LeTelescope/fffpctl/pkg/panel"
)

const namespace = "fffpctl"

// Outcome labels for fffpctl_requests_total
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "rejected"
	OutcomeTimeout     = "timeout"
	OutcomeLinkLost    = "link_lost"
	OutcomeWriteFailed = "write_failed"
)

var capStates = []panel.CapState{panel.CapUnknown, panel.CapParked, panel.CapUnparked, panel.CapMoving}

// Collector records correlator events and Belief changes. It implements
// correlator.Observer and panel.Sink.
type Collector struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	discarded  *prometheus.CounterVec
	pending    prometheus.Gauge
	connected  prometheus.Gauge
	brightness prometheus.Gauge
	lightOn    prometheus.Gauge
	capState   *prometheus.GaugeVec
}

var (
	_ correlator.Observer = (*Collector)(nil)
	_ panel.Sink          = (*Collector)(nil)
)

// New creates a Collector on a fresh registry that also carries the Go
// runtime and process collectors
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests sent to the panel by command and outcome.",
			},
			[]string{"command", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from sending a command to its resolution.",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"command"},
		),
		discarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_discarded_total",
				Help:      "Inbound lines that resolved no request.",
			},
			[]string{"reason"},
		),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "request_pending",
			Help:      "1 while a request awaits its reply.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_up",
			Help:      "1 while a session with the panel is open.",
		}),
		brightness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "brightness",
			Help:      "Confirmed brightness level.",
		}),
		lightOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "light_on",
			Help:      "1 when the light is confirmed on.",
		}),
		capState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cap_state",
				Help:      "1 for the currently believed cap state.",
			},
			[]string{"state"},
		),
	}

	c.registry.MustRegister(
		c.requests, c.duration, c.discarded, c.pending, c.connected,
		c.brightness, c.lightOn, c.capState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.BeliefChanged(panel.State{Cap: panel.CapUnknown})
	return c
}

// Registry returns the registry holding every metric
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RequestSubmitted implements correlator.Observer
func (c *Collector) RequestSubmitted(fffp.Command) {
	c.pending.Set(1)
}

// RequestResolved implements correlator.Observer
func (c *Collector) RequestResolved(cmd fffp.Command, o correlator.Outcome, elapsed time.Duration) {
	c.pending.Set(0)
	c.requests.WithLabelValues(cmd.Name(), outcomeLabel(o)).Inc()
	c.duration.WithLabelValues(cmd.Name()).Observe(elapsed.Seconds())
}

// LineDiscarded implements correlator.Observer
func (c *Collector) LineDiscarded(_ string, reason correlator.DiscardReason) {
	c.discarded.WithLabelValues(string(reason)).Inc()
}

// BeliefChanged implements panel.Sink
func (c *Collector) BeliefChanged(s panel.State) {
	c.brightness.Set(float64(s.Brightness))
	c.lightOn.Set(boolGauge(s.LightOn))
	for _, st := range capStates {
		c.capState.WithLabelValues(string(st)).Set(boolGauge(st == s.Cap))
	}
}

// SetConnected records whether a session is open
func (c *Collector) SetConnected(up bool) {
	c.connected.Set(boolGauge(up))
	if !up {
		c.pending.Set(0)
	}
}

func outcomeLabel(o correlator.Outcome) string {
	switch {
	case o.Kind == correlator.Success:
		return OutcomeSuccess
	case o.Kind == correlator.Timeout:
		return OutcomeTimeout
	case o.LinkLost():
		return OutcomeLinkLost
	case o.Reason == correlator.ReasonWriteFailed:
		return OutcomeWriteFailed
	default:
		return OutcomeRejected
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
