// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

// Package panel drives a flat panel calibrator with a motorized dust cap.
//
// A Controller turns intents (set brightness, park the cap) into FFFP
// requests through a correlator and updates its Belief only when the
// firmware confirms them. A Session binds a Controller to a transport and
// runs the recurring deadline and poll task for the life of the link.
package panel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/LeTelescope/fffpctl/pkg/correlator"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

// Dimmable is the calibrator capability
type Dimmable interface {
	SetBrightness(ctx context.Context, level int) error
	EnableLight(ctx context.Context, on bool) error
	Brightness() int
	MaxBrightness() int
	LightOn() bool
}

// Coverable is the dust cap capability
type Coverable interface {
	ParkCap(ctx context.Context) error
	UnparkCap(ctx context.Context) error
	CapState() CapState
}

// Submitter sends one request and returns a handle on its outcome
type Submitter interface {
	Submit(cmd fffp.Command, timeout time.Duration) (*correlator.Handle, error)
}

var (
	_ Dimmable  = (*Controller)(nil)
	_ Coverable = (*Controller)(nil)
)

// Controller implements both capabilities over a single request slot.
// Every operation writes at most one line and, on success, updates one
// slice of Belief.
type Controller struct {
	sub    Submitter
	belief *Belief
	opts   options
	log    logr.Logger
}

// NewController creates a Controller submitting through sub
func NewController(sub Submitter, opts ...Option) *Controller {
	return newController(sub, newOptions(opts))
}

func newController(sub Submitter, o options) *Controller {
	log := o.log.WithName("controller")
	return &Controller{
		sub:    sub,
		belief: NewBelief(o.sink, log),
		opts:   o,
		log:    log,
	}
}

//////////////////////////////////////////////////////////////
// Intents
//////////////////////////////////////////////////////////////

// SetBrightness sends BRIGHTNESS_SET. On success brightness is the
// level echoed by the firmware (or the requested level when the result
// carries no number) and the light is on iff the level is above zero.
func (c *Controller) SetBrightness(ctx context.Context, level int) error {
	if level < 0 || level > int(c.opts.maxBrightness) {
		return fmt.Errorf("%w: %d not in 0..%d", ErrBrightnessRange, level, c.opts.maxBrightness)
	}

	o, epoch, err := c.do(ctx, fffp.NewBrightnessSet(uint16(level)))
	if err != nil {
		return err
	}

	applied := uint16(level)
	if echoed, ok := parseLevel(o.Message); ok {
		applied = echoed
	}
	c.belief.applyBrightness(epoch, applied)
	return nil
}

// EnableLight sends LIGHT_ON or LIGHT_OFF
func (c *Controller) EnableLight(ctx context.Context, on bool) error {
	_, epoch, err := c.do(ctx, fffp.NewLight(on))
	if err != nil {
		return err
	}
	c.belief.applyLight(epoch, on)
	return nil
}

// ParkCap closes the dust cap
func (c *Controller) ParkCap(ctx context.Context) error {
	return c.moveCap(ctx, c.opts.dialect.NewPark(), CapParked)
}

// UnparkCap opens the dust cap
func (c *Controller) UnparkCap(ctx context.Context) error {
	return c.moveCap(ctx, c.opts.dialect.NewUnpark(), CapUnparked)
}

func (c *Controller) moveCap(ctx context.Context, cmd fffp.Command, target CapState) error {
	_, epoch, err := c.do(ctx, cmd)
	if err != nil {
		return err
	}
	if c.opts.capMotion == CapAcknowledged {
		c.belief.applyCap(epoch, CapMoving)
		return nil
	}
	c.belief.applyCap(epoch, target)
	return nil
}

// Handshake confirms the link is live. In simulation mode it succeeds
// without touching the wire.
func (c *Controller) Handshake(ctx context.Context) error {
	if c.opts.simulate {
		c.log.V(1).Info("simulation mode, skipping handshake")
		return nil
	}

	cmd := c.opts.handshake
	o, _, err := c.do(ctx, cmd)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if c.opts.handshakeReply != "" && strings.TrimSpace(o.Message) != c.opts.handshakeReply {
		return &UnexpectedReplyError{Command: cmd.Name(), Message: o.Message, Want: strconv.Quote(c.opts.handshakeReply)}
	}
	c.log.Info("handshake complete", "command", cmd.Name())
	return nil
}

//////////////////////////////////////////////////////////////
// Queries
//////////////////////////////////////////////////////////////

// RefreshCap asks the firmware for the cover state and records it
func (c *Controller) RefreshCap(ctx context.Context) error {
	cmd := fffp.NewCoverState()
	o, epoch, err := c.do(ctx, cmd)
	if err != nil {
		return err
	}

	state, ok := coverState(o.Message)
	if !ok {
		return &UnexpectedReplyError{
			Command: cmd.Name(),
			Message: o.Message,
			Want:    strings.Join([]string{fffp.CoverOpen, fffp.CoverOpening, fffp.CoverClosing, fffp.CoverClosed}, "|"),
		}
	}
	c.belief.applyCap(epoch, state)
	return nil
}

// RefreshBrightness asks the firmware for the current level and records it
func (c *Controller) RefreshBrightness(ctx context.Context) error {
	cmd := fffp.NewBrightnessGet()
	o, epoch, err := c.do(ctx, cmd)
	if err != nil {
		return err
	}

	level, ok := parseLevel(o.Message)
	if !ok || int(level) > int(c.opts.maxBrightness) {
		return &UnexpectedReplyError{Command: cmd.Name(), Message: o.Message, Want: fmt.Sprintf("0..%d", c.opts.maxBrightness)}
	}
	c.belief.applyBrightness(epoch, level)
	return nil
}

// ResetBrightness sends BRIGHTNESS_RESET, which turns the light off
func (c *Controller) ResetBrightness(ctx context.Context) error {
	o, epoch, err := c.do(ctx, fffp.NewBrightnessReset())
	if err != nil {
		return err
	}

	level := uint16(0)
	if echoed, ok := parseLevel(o.Message); ok {
		level = echoed
	}
	c.belief.applyBrightness(epoch, level)
	return nil
}

// Refresh reads back both cover state and brightness
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.RefreshCap(ctx); err != nil {
		return err
	}
	return c.RefreshBrightness(ctx)
}

//////////////////////////////////////////////////////////////
// Belief accessors
//////////////////////////////////////////////////////////////

// Belief returns a snapshot of the confirmed device state
func (c *Controller) Belief() State {
	return c.belief.Snapshot()
}

// Brightness returns the confirmed brightness level
func (c *Controller) Brightness() int {
	return int(c.belief.Snapshot().Brightness)
}

// MaxBrightness returns the configured upper bound for SetBrightness
func (c *Controller) MaxBrightness() int {
	return int(c.opts.maxBrightness)
}

// LightOn reports whether the light is confirmed on
func (c *Controller) LightOn() bool {
	return c.belief.Snapshot().LightOn
}

// CapState returns the confirmed cap state
func (c *Controller) CapState() CapState {
	return c.belief.Snapshot().Cap
}

// Disconnected resets Belief after the transport reports link loss
func (c *Controller) Disconnected() {
	c.belief.MarkDisconnected()
}

// do submits cmd and translates the outcome into the panel error taxonomy.
// The returned epoch is the Belief epoch the request was submitted in.
func (c *Controller) do(ctx context.Context, cmd fffp.Command) (correlator.Outcome, uint64, error) {
	epoch := c.belief.Epoch()
	h, err := c.sub.Submit(cmd, c.opts.timeout)
	switch {
	case errors.Is(err, correlator.ErrBusy):
		return correlator.Outcome{}, epoch, ErrBusy
	case err != nil:
		return correlator.Outcome{}, epoch, fmt.Errorf("%w: %v", ErrLinkLost, err)
	}

	o, err := h.Wait(ctx)
	if err != nil {
		return correlator.Outcome{}, epoch, err
	}

	switch o.Kind {
	case correlator.Success:
		c.log.V(1).Info("command confirmed", "command", cmd.Name(), "message", o.Message)
		return o, epoch, nil
	case correlator.Timeout:
		c.log.Info("device unresponsive", "command", cmd.Name(), "timeout", c.opts.timeout)
		return o, epoch, ErrUnresponsive
	default:
		if o.LinkLost() {
			return o, epoch, ErrLinkLost
		}
		c.log.Info("command rejected", "command", cmd.Name(), "reason", o.Reason, "details", o.Details)
		return o, epoch, &RejectedError{Command: cmd.Name(), Reason: o.Reason, Details: o.Details}
	}
}

func parseLevel(message string) (uint16, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(message), 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

func coverState(message string) (CapState, bool) {
	switch strings.TrimSpace(message) {
	case fffp.CoverOpen:
		return CapUnparked, true
	case fffp.CoverClosed:
		return CapParked, true
	case fffp.CoverOpening, fffp.CoverClosing:
		return CapMoving, true
	default:
		return CapUnknown, false
	}
}
