// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

// Package correlator matches device replies to the single outstanding request.
//
// The FFFP link carries no sequence numbers, so a reply is attributed by
// command name. That is only sound while at most one request is in flight:
// Submit refuses a second request with ErrBusy until the first resolves by
// reply, by deadline (Tick), or by link loss.
package correlator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

// ErrBusy is returned by Submit while another request is pending
var ErrBusy = errors.New("correlator: request already pending")

// LineWriter writes one wire line (without terminator) to the transport
type LineWriter interface {
	WriteLine(line string) error
}

// LineWriterFunc adapts a function to LineWriter
type LineWriterFunc func(line string) error

// WriteLine calls f(line)
func (f LineWriterFunc) WriteLine(line string) error {
	return f(line)
}

// DiscardReason explains why an inbound line resolved nothing
type DiscardReason string

const (
	DiscardMalformed   DiscardReason = "malformed"
	DiscardUnsolicited DiscardReason = "unsolicited"
	DiscardMismatched  DiscardReason = "mismatched"
)

// Observer receives request lifecycle events. Calls are made outside the
// correlator lock and must not block.
type Observer interface {
	RequestSubmitted(cmd fffp.Command)
	RequestResolved(cmd fffp.Command, outcome Outcome, elapsed time.Duration)
	LineDiscarded(line string, reason DiscardReason)
}

// ErrorAttribution decides which ERROR replies resolve the pending request
type ErrorAttribution int

const (
	// AttributeNamed treats an ERROR whose reason names a different known
	// command as a stale reply for that command. Every other ERROR resolves
	// the pending request.
	AttributeNamed ErrorAttribution = iota
	// AttributeAll resolves the pending request with any ERROR
	AttributeAll
)

// ParseErrorAttribution parses "named" or "unattributed"
func ParseErrorAttribution(s string) (ErrorAttribution, error) {
	switch s {
	case "", "named":
		return AttributeNamed, nil
	case "unattributed", "all":
		return AttributeAll, nil
	default:
		return AttributeNamed, fmt.Errorf("unknown error attribution %q (want named or unattributed)", s)
	}
}

func (a ErrorAttribution) String() string {
	if a == AttributeAll {
		return "unattributed"
	}
	return "named"
}

// Option configures a Correlator
type Option func(*Correlator)

// WithClock sets the time source used for deadlines
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) {
		c.now = now
	}
}

// WithLogger sets the logger for discarded lines and resolutions
func WithLogger(log logr.Logger) Option {
	return func(c *Correlator) {
		c.log = log
	}
}

// WithObserver registers an observer for request lifecycle events
func WithObserver(o Observer) Option {
	return func(c *Correlator) {
		c.observer = o
	}
}

// WithErrorAttribution sets the ERROR attribution policy
func WithErrorAttribution(a ErrorAttribution) Option {
	return func(c *Correlator) {
		c.attribution = a
	}
}

// Correlator tracks at most one in-flight request.
// States: Idle (pending == nil) and Awaiting (pending != nil).
type Correlator struct {
	mu      sync.Mutex
	w       LineWriter
	pending *Handle

	now         func() time.Time
	log         logr.Logger
	observer    Observer
	attribution ErrorAttribution
}

// New creates a Correlator writing commands through w
func New(w LineWriter, opts ...Option) *Correlator {
	c := &Correlator{
		w:   w,
		now: time.Now,
		log: logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit writes cmd and records it as the pending request with
// deadline now+timeout. It fails with ErrBusy, writing nothing, while
// another request is pending.
func (c *Correlator) Submit(cmd fffp.Command, timeout time.Duration) (*Handle, error) {
	if cmd.IsZero() {
		return nil, errors.New("correlator: empty command")
	}

	c.mu.Lock()
	if c.pending != nil {
		busyWith := c.pending.cmd.Name()
		c.mu.Unlock()
		c.log.V(1).Info("rejecting command, request pending", "command", cmd.Name(), "pending", busyWith)
		return nil, ErrBusy
	}
	now := c.now()
	h := &Handle{
		cmd:      cmd,
		sentAt:   now,
		deadline: now.Add(timeout),
		done:     make(chan Outcome, 1),
	}
	c.pending = h
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.RequestSubmitted(cmd)
	}

	// The slot is claimed before writing so a concurrent Submit sees Busy
	// instead of waiting on a slow transport.
	if err := c.w.WriteLine(fffp.Encode(cmd)); err != nil {
		c.mu.Lock()
		owned := c.pending == h
		if owned {
			c.pending = nil
		}
		c.mu.Unlock()
		if owned && c.observer != nil {
			c.observer.RequestResolved(cmd, Outcome{Kind: Failure, Reason: ReasonWriteFailed, local: true}, 0)
		}
		return nil, fmt.Errorf("write %s: %w", cmd.Name(), err)
	}

	c.log.V(1).Info("command sent", "command", cmd.Name(), "args", cmd.Args(), "timeout", timeout)
	return h, nil
}

// OnLine handles one inbound line. Malformed, unsolicited, and
// mismatched lines are logged and dropped; the pending request keeps waiting.
func (c *Correlator) OnLine(line string) {
	reply, err := fffp.Decode(line)
	if err != nil {
		c.log.V(1).Info("discarding malformed line", "line", line, "error", err.Error())
		c.discarded(line, DiscardMalformed)
		return
	}

	c.mu.Lock()
	h := c.pending
	if h == nil {
		c.mu.Unlock()
		c.log.V(1).Info("discarding unsolicited line", "line", line)
		c.discarded(line, DiscardUnsolicited)
		return
	}

	outcome, ok := c.match(h.cmd, reply)
	if !ok {
		c.mu.Unlock()
		c.log.V(1).Info("discarding reply for another command", "line", line, "pending", h.cmd.Name())
		c.discarded(line, DiscardMismatched)
		return
	}
	c.pending = nil
	c.mu.Unlock()

	c.finish(h, outcome)
}

func (c *Correlator) match(cmd fffp.Command, reply fffp.Reply) (Outcome, bool) {
	switch r := reply.(type) {
	case fffp.Result:
		if r.Command != cmd.Name() {
			return Outcome{}, false
		}
		return Outcome{Kind: Success, Message: r.Message}, true
	case fffp.ErrorReply:
		if c.attribution == AttributeNamed && r.Reason != cmd.Name() && fffp.IsKnownCommand(r.Reason) {
			return Outcome{}, false
		}
		return Outcome{Kind: Failure, Reason: r.Reason, Details: r.Details}, true
	}
	return Outcome{}, false
}

// Tick resolves the pending request as Timeout once now reaches its deadline
func (c *Correlator) Tick(now time.Time) {
	c.mu.Lock()
	h := c.pending
	if h == nil || now.Before(h.deadline) {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()

	c.log.Info("request timed out", "command", h.cmd.Name(), "deadline", h.deadline)
	c.finish(h, Outcome{Kind: Timeout})
}

// LinkLost resolves the pending request, if any, as a link_lost failure
func (c *Correlator) LinkLost() {
	c.mu.Lock()
	h := c.pending
	c.pending = nil
	c.mu.Unlock()

	if h == nil {
		return
	}
	c.log.Info("link lost with request pending", "command", h.cmd.Name())
	c.finish(h, Outcome{Kind: Failure, Reason: ReasonLinkLost, local: true})
}

// Pending returns the pending command, if any
func (c *Correlator) Pending() (fffp.Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return fffp.Command{}, false
	}
	return c.pending.cmd, true
}

func (c *Correlator) finish(h *Handle, o Outcome) {
	h.resolve(o)
	if c.observer != nil {
		c.observer.RequestResolved(h.cmd, o, c.now().Sub(h.sentAt))
	}
}

func (c *Correlator) discarded(line string, reason DiscardReason) {
	if c.observer != nil {
		c.observer.LineDiscarded(line, reason)
	}
}
