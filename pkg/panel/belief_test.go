// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package panel

import (
	"testing"

	"github.com/go-logr/logr"
)

func TestBelief_InitialState(t *testing.T) {
	b := NewBelief(nil, logr.Discard())
	want := State{Cap: CapUnknown}
	if got := b.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestBelief_CapTransitions(t *testing.T) {
	sink := &recordingSink{}
	b := NewBelief(sink, logr.Discard())

	steps := []CapState{CapMoving, CapParked, CapParked, CapUnparked, CapMoving, CapUnknown}
	for _, s := range steps {
		b.ApplyCap(s)
		if got := b.Snapshot().Cap; got != s {
			t.Fatalf("after ApplyCap(%s) Cap = %s", s, got)
		}
	}

	// The repeated CapParked is not a change
	if sink.count() != len(steps)-1 {
		t.Errorf("notifications = %d, want %d", sink.count(), len(steps)-1)
	}
}

func TestBelief_Brightness(t *testing.T) {
	b := NewBelief(nil, logr.Discard())

	b.ApplyBrightness(200)
	if s := b.Snapshot(); s.Brightness != 200 || !s.LightOn {
		t.Errorf("after 200: %+v", s)
	}
	b.ApplyLight(false)
	if s := b.Snapshot(); s.Brightness != 200 || s.LightOn {
		t.Errorf("after light off: %+v, brightness kept and light off", s)
	}
	b.ApplyBrightness(0)
	if s := b.Snapshot(); s.LightOn {
		t.Errorf("after 0: %+v, want light off", s)
	}
}

func TestBelief_MarkDisconnected(t *testing.T) {
	sink := &recordingSink{}
	b := NewBelief(sink, logr.Discard())
	b.ApplyBrightness(65535)
	b.ApplyCap(CapParked)

	b.MarkDisconnected()
	want := State{Cap: CapUnknown}
	if got := b.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
	last := sink.states[len(sink.states)-1]
	if last != want {
		t.Errorf("last notification = %+v, want %+v", last, want)
	}
}

func TestBelief_DropsConfirmationsFromPreviousLink(t *testing.T) {
	sink := &recordingSink{}
	b := NewBelief(sink, logr.Discard())

	epoch := b.Epoch()
	b.MarkDisconnected()
	if b.Epoch() == epoch {
		t.Fatal("MarkDisconnected did not start a new epoch")
	}

	b.applyCap(epoch, CapParked)
	b.applyBrightness(epoch, 512)
	b.applyLight(epoch, true)

	want := State{Cap: CapUnknown}
	if got := b.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
	if sink.count() != 0 {
		t.Errorf("notifications = %d, want 0", sink.count())
	}

	b.applyCap(b.Epoch(), CapParked)
	if got := b.Snapshot().Cap; got != CapParked {
		t.Errorf("Cap = %s in the current epoch, want %s", got, CapParked)
	}
}

func TestMultiSink(t *testing.T) {
	a, c := &recordingSink{}, &recordingSink{}
	var fromFunc []State
	sink := MultiSink(a, nil, c, SinkFunc(func(s State) { fromFunc = append(fromFunc, s) }))

	b := NewBelief(sink, logr.Discard())
	b.ApplyLight(true)

	if a.count() != 1 || c.count() != 1 || len(fromFunc) != 1 {
		t.Errorf("fan-out counts = %d/%d/%d, want 1/1/1", a.count(), c.count(), len(fromFunc))
	}
}

func TestParseCapMotion(t *testing.T) {
	for in, want := range map[string]CapMotion{"": CapSynchronous, "synchronous": CapSynchronous, "acknowledged": CapAcknowledged} {
		got, err := ParseCapMotion(in)
		if err != nil || got != want {
			t.Errorf("ParseCapMotion(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCapMotion("eventually"); err == nil {
		t.Error("ParseCapMotion(eventually) should fail")
	}
}
