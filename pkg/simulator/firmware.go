// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

// Package simulator implements the device side of the FFFP protocol.
//
// A Firmware answers command lines the way the flat panel firmware does and
// can be served over any byte stream. It backs the CLI's simulation mode and
// end-to-end tests.
package simulator

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

// Error reasons the simulated firmware reports
const (
	ReasonBadCommand     = "BAD_COMMAND"
	ReasonUnknownCommand = "UNKNOWN_COMMAND"
	ReasonInvalidArgs    = "INVALID_ARGS"
)

// Firmware is a simulated flat panel
type Firmware struct {
	mu           sync.Mutex
	brightness   uint16
	lightOn      bool
	cover        string
	motionTarget string
	motionEnd    time.Time

	maxBrightness uint16
	motion        time.Duration
	acknowledged  bool
	faults        map[string]fffp.ErrorReply
	silenced      map[string]bool
	noise         []string
	now           func() time.Time
	log           logr.Logger
}

// Option configures a Firmware
type Option func(*Firmware)

// WithMaxBrightness sets the level BRIGHTNESS_SET clamps to (default 1023)
func WithMaxBrightness(max uint16) Option {
	return func(f *Firmware) {
		f.maxBrightness = max
	}
}

// WithMotion sets how long the cap takes to move
func WithMotion(d time.Duration) Option {
	return func(f *Firmware) {
		f.motion = d
	}
}

// WithAcknowledgedMotion answers cap commands at once and reports
// OPENING/CLOSING until the motion completes
func WithAcknowledgedMotion() Option {
	return func(f *Firmware) {
		f.acknowledged = true
	}
}

// WithFault makes a command fail with ERROR:reason@details
func WithFault(command, reason, details string) Option {
	return func(f *Firmware) {
		f.faults[command] = fffp.ErrorReply{Reason: reason, Details: details}
	}
}

// WithSilence makes the firmware ignore a command
func WithSilence(command string) Option {
	return func(f *Firmware) {
		f.silenced[command] = true
	}
}

// WithNoise emits the given lines before every reply
func WithNoise(lines ...string) Option {
	return func(f *Firmware) {
		f.noise = append(f.noise, lines...)
	}
}

// WithClock sets the time source for cap motion
func WithClock(now func() time.Time) Option {
	return func(f *Firmware) {
		f.now = now
	}
}

// WithLogger sets the logger
func WithLogger(log logr.Logger) Option {
	return func(f *Firmware) {
		f.log = log
	}
}

// New creates a Firmware with the cap closed and the light off
func New(opts ...Option) *Firmware {
	f := &Firmware{
		cover:         fffp.CoverClosed,
		maxBrightness: 1023,
		faults:        make(map[string]fffp.ErrorReply),
		silenced:      make(map[string]bool),
		now:           time.Now,
		log:           logr.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the simulated hardware state
func (f *Firmware) State() (cover string, brightness uint16, lightOn bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceLocked()
	return f.cover, f.brightness, f.lightOn
}

// Respond returns the lines the firmware sends for one command line,
// ignoring motion delay
func (f *Firmware) Respond(line string) []string {
	replies, _ := f.handle(line)
	return replies
}

func (f *Firmware) handle(line string) ([]string, time.Duration) {
	cmd, err := fffp.DecodeCommand(line)
	if err != nil {
		f.log.V(1).Info("bad command", "line", line, "error", err.Error())
		return f.reply(fffp.ErrorReply{Reason: ReasonBadCommand}), 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceLocked()

	if f.silenced[cmd.Name()] {
		f.log.V(1).Info("ignoring command", "command", cmd.Name())
		return nil, 0
	}
	if fault, ok := f.faults[cmd.Name()]; ok {
		return f.reply(fault), 0
	}

	ok := func(message string) []string {
		return f.reply(fffp.Result{Command: cmd.Name(), Message: message})
	}

	switch cmd.Name() {
	case fffp.CmdPing:
		return ok(fffp.ResultPong), 0

	case fffp.CmdBrightnessSet:
		level, err := strconv.ParseUint(cmd.Args(), 10, 16)
		if err != nil {
			return f.reply(fffp.ErrorReply{Reason: ReasonInvalidArgs, Details: cmd.Args()}), 0
		}
		if level > uint64(f.maxBrightness) {
			level = uint64(f.maxBrightness)
		}
		f.brightness = uint16(level)
		f.lightOn = level > 0
		return ok(strconv.FormatUint(level, 10)), 0

	case fffp.CmdBrightnessGet:
		return ok(strconv.FormatUint(uint64(f.brightness), 10)), 0

	case fffp.CmdBrightnessReset:
		f.brightness = 0
		f.lightOn = false
		return ok("0"), 0

	case fffp.CmdLightOn:
		f.lightOn = true
		return ok(fffp.ResultOK), 0

	case fffp.CmdLightOff:
		f.lightOn = false
		return ok(fffp.ResultOK), 0

	case fffp.CmdCapPark, fffp.CmdCoverClose:
		return ok(fffp.ResultOK), f.startMotionLocked(fffp.CoverClosed, fffp.CoverClosing)

	case fffp.CmdCapUnpark, fffp.CmdCoverOpen:
		return ok(fffp.ResultOK), f.startMotionLocked(fffp.CoverOpen, fffp.CoverOpening)

	case fffp.CmdCoverState:
		return ok(f.cover), 0

	default:
		return f.reply(fffp.ErrorReply{Reason: ReasonUnknownCommand}), 0
	}
}

// startMotionLocked begins a cap move and returns how long the reply must
// be held back
func (f *Firmware) startMotionLocked(target, transient string) time.Duration {
	if f.cover == target || f.motion <= 0 {
		f.cover = target
		f.motionTarget = ""
		return 0
	}
	if !f.acknowledged {
		f.cover = target
		return f.motion
	}
	f.cover = transient
	f.motionTarget = target
	f.motionEnd = f.now().Add(f.motion)
	return 0
}

func (f *Firmware) advanceLocked() {
	if f.motionTarget != "" && !f.now().Before(f.motionEnd) {
		f.cover = f.motionTarget
		f.motionTarget = ""
	}
}

func (f *Firmware) reply(r fffp.Reply) []string {
	return append(append([]string(nil), f.noise...), r.Line())
}

// Serve answers commands read from conn until ctx is done or the stream fails
func (f *Firmware) Serve(ctx context.Context, conn io.ReadWriter) error {
	decoder := fffp.NewLineDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		for i := 0; i < n; i++ {
			line, complete, derr := decoder.DecodeByte(buf[i])
			if derr != nil {
				f.log.V(1).Info("dropping input", "error", derr.Error())
				continue
			}
			if !complete {
				continue
			}

			replies, delay := f.handle(line)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			for _, r := range replies {
				if _, werr := conn.Write(fffp.AppendTerminator(r)); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

// Pipe serves f on one end of an in-memory full-duplex link and returns the
// host end. The device end closes when ctx is done or the host end closes.
func Pipe(ctx context.Context, f *Firmware) io.ReadWriteCloser {
	host, device := net.Pipe()
	stop := context.AfterFunc(ctx, func() {
		device.Close()
	})
	go func() {
		defer stop()
		defer device.Close()
		if err := f.Serve(ctx, device); err != nil && !errors.Is(err, context.Canceled) {
			f.log.V(1).Info("simulator stopped", "error", err.Error())
		}
	}()
	return host
}
