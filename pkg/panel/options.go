// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package panel

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/LeTelescope/fffpctl/pkg/correlator"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

// CapMotion selects how a cap Result is interpreted
type CapMotion int

const (
	// CapSynchronous treats the cap Result as completion of the motion
	CapSynchronous CapMotion = iota
	// CapAcknowledged treats the cap Result as receipt only; the cap is
	// believed Moving until a COVER_GET_STATE poll reports the final state
	CapAcknowledged
)

// ParseCapMotion parses "synchronous" or "acknowledged"
func ParseCapMotion(s string) (CapMotion, error) {
	switch s {
	case "", "synchronous", "sync":
		return CapSynchronous, nil
	case "acknowledged", "ack":
		return CapAcknowledged, nil
	default:
		return CapSynchronous, fmt.Errorf("unknown cap motion %q (want synchronous or acknowledged)", s)
	}
}

func (m CapMotion) String() string {
	if m == CapAcknowledged {
		return "acknowledged"
	}
	return "synchronous"
}

// Defaults
const (
	DefaultTimeout       = 3 * time.Second
	DefaultTickInterval  = 100 * time.Millisecond
	DefaultPollInterval  = 2 * time.Second
	DefaultMaxBrightness = 65535
)

// Tap observes every line crossing the link
type Tap func(dir fffp.Direction, line string, at time.Time)

type options struct {
	timeout        time.Duration
	maxBrightness  uint16
	capMotion      CapMotion
	dialect        fffp.Dialect
	handshake      fffp.Command
	handshakeReply string
	simulate       bool

	tickInterval time.Duration
	pollInterval time.Duration
	pollAlways   bool

	sink        Sink
	tap         Tap
	observer    correlator.Observer
	attribution correlator.ErrorAttribution
	log         logr.Logger
	now         func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		timeout:        DefaultTimeout,
		maxBrightness:  DefaultMaxBrightness,
		handshake:      fffp.NewPing(),
		handshakeReply: fffp.ResultPong,
		tickInterval:   DefaultTickInterval,
		pollInterval:   DefaultPollInterval,
		log:            logr.Discard(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Controller or Session
type Option func(*options)

// WithTimeout sets the per-request reply deadline
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxBrightness bounds SetBrightness. The original firmware tops out at 1023.
func WithMaxBrightness(max uint16) Option {
	return func(o *options) {
		o.maxBrightness = max
	}
}

// WithCapMotion sets how cap Results are interpreted
func WithCapMotion(m CapMotion) Option {
	return func(o *options) {
		o.capMotion = m
	}
}

// WithDialect selects the cap command names
func WithDialect(d fffp.Dialect) Option {
	return func(o *options) {
		o.dialect = d
	}
}

// WithHandshake sets the liveness command and its expected result message.
// An empty reply accepts any result.
func WithHandshake(cmd fffp.Command, reply string) Option {
	return func(o *options) {
		o.handshake = cmd
		o.handshakeReply = reply
	}
}

// WithSimulation makes Handshake succeed without wire traffic
func WithSimulation(simulate bool) Option {
	return func(o *options) {
		o.simulate = simulate
	}
}

// WithSink receives Belief snapshots
func WithSink(s Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithTap observes every line sent and received by a Session
func WithTap(t Tap) Option {
	return func(o *options) {
		o.tap = t
	}
}

// WithObserver instruments the Session's correlator
func WithObserver(obs correlator.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithErrorAttribution sets the Session's ERROR attribution policy
func WithErrorAttribution(a correlator.ErrorAttribution) Option {
	return func(o *options) {
		o.attribution = a
	}
}

// WithTickInterval sets how often a Session checks the pending deadline
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithPollInterval sets how often a Session polls the cover state while
// the cap is moving. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithPollAlways polls the cover state every interval, not only while moving
func WithPollAlways(always bool) Option {
	return func(o *options) {
		o.pollAlways = always
	}
}

// WithLogger sets the logger
func WithLogger(log logr.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithClock sets the time source for deadlines and taps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
