// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package panel

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"
)

// CapState is the believed position of the dust cap
type CapState string

const (
	CapUnknown  CapState = "unknown"
	CapParked   CapState = "parked"
	CapUnparked CapState = "unparked"
	CapMoving   CapState = "moving"
)

// Cap state machine events
const (
	eventPark   = "park"
	eventUnpark = "unpark"
	eventMove   = "move"
	eventReset  = "reset"
)

var allCapStates = []string{
	string(CapUnknown),
	string(CapParked),
	string(CapUnparked),
	string(CapMoving),
}

// State is a snapshot of Belief
type State struct {
	Cap        CapState `json:"cap"`
	LightOn    bool     `json:"light_on"`
	Brightness uint16   `json:"brightness"`
}

// Sink receives a snapshot after every Belief change.
// Calls are serialised and must return promptly.
type Sink interface {
	BeliefChanged(State)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(State)

// BeliefChanged calls f(s)
func (f SinkFunc) BeliefChanged(s State) {
	f(s)
}

type multiSink []Sink

func (m multiSink) BeliefChanged(s State) {
	for _, sink := range m {
		sink.BeliefChanged(s)
	}
}

// MultiSink fans one Belief change out to several sinks; nil sinks are skipped
func MultiSink(sinks ...Sink) Sink {
	var m multiSink
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// Belief is the host's reply-confirmed view of device state.
// Only the Controller mutates it, and only after a correlated Result.
type Belief struct {
	mu         sync.Mutex
	notifyMu   sync.Mutex
	cap        *fsm.FSM
	lightOn    bool
	brightness uint16
	epoch      uint64 // bumped by MarkDisconnected

	sink Sink
	log  logr.Logger
}

// NewBelief creates a Belief in the disconnected state
func NewBelief(sink Sink, log logr.Logger) *Belief {
	b := &Belief{sink: sink, log: log}

	b.cap = fsm.NewFSM(
		string(CapUnknown),
		fsm.Events{
			{Name: eventPark, Src: allCapStates, Dst: string(CapParked)},
			{Name: eventUnpark, Src: allCapStates, Dst: string(CapUnparked)},
			{Name: eventMove, Src: allCapStates, Dst: string(CapMoving)},
			{Name: eventReset, Src: allCapStates, Dst: string(CapUnknown)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				b.log.V(1).Info("cap state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return b
}

// Epoch identifies the link Belief currently describes. Every
// MarkDisconnected starts a new epoch.
func (b *Belief) Epoch() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch
}

// ApplyBrightness records a confirmed brightness level. A level above
// zero implies the light is on.
func (b *Belief) ApplyBrightness(level uint16) {
	b.applyBrightness(b.Epoch(), level)
}

// ApplyLight records a confirmed light toggle
func (b *Belief) ApplyLight(on bool) {
	b.applyLight(b.Epoch(), on)
}

// ApplyCap records a confirmed cap state
func (b *Belief) ApplyCap(state CapState) {
	b.applyCap(b.Epoch(), state)
}

func (b *Belief) applyBrightness(epoch uint64, level uint16) {
	b.update(epoch, func() {
		b.brightness = level
		b.lightOn = level > 0
	})
}

func (b *Belief) applyLight(epoch uint64, on bool) {
	b.update(epoch, func() {
		b.lightOn = on
	})
}

func (b *Belief) applyCap(epoch uint64, state CapState) {
	b.update(epoch, func() {
		b.fire(capEvent(state))
	})
}

// MarkDisconnected resets Belief to unknown/defaults. Confirmations of
// requests submitted before the reset are dropped.
func (b *Belief) MarkDisconnected() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	before := b.snapshotLocked()
	b.epoch++
	b.fire(eventReset)
	b.lightOn = false
	b.brightness = 0
	after := b.snapshotLocked()
	b.mu.Unlock()

	b.notify(before, after)
}

// Snapshot returns the current Belief
func (b *Belief) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Belief) snapshotLocked() State {
	return State{
		Cap:        CapState(b.cap.Current()),
		LightOn:    b.lightOn,
		Brightness: b.brightness,
	}
}

// update applies mutate unless Belief has moved past epoch
func (b *Belief) update(epoch uint64, mutate func()) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	if epoch != b.epoch {
		b.mu.Unlock()
		b.log.V(1).Info("dropping confirmation from a previous link", "epoch", epoch)
		return
	}
	before := b.snapshotLocked()
	mutate()
	after := b.snapshotLocked()
	b.mu.Unlock()

	b.notify(before, after)
}

func (b *Belief) notify(before, after State) {
	if b.sink != nil && after != before {
		b.sink.BeliefChanged(after)
	}
}

// fire runs a cap event; staying in the same state is not an error
func (b *Belief) fire(event string) {
	err := b.cap.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		b.log.Error(err, "cap state machine rejected event", "event", event)
	}
}

func capEvent(state CapState) string {
	switch state {
	case CapParked:
		return eventPark
	case CapUnparked:
		return eventUnpark
	case CapMoving:
		return eventMove
	default:
		return eventReset
	}
}
