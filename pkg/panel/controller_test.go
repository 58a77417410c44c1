// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package panel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeTelescope/fffpctl/pkg/correlator"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

// ============================================================
// Test Harness
// ============================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// harness wires a Controller to a real correlator whose writer hands each
// line to the test instead of a device
type harness struct {
	t     *testing.T
	clock *fakeClock
	corr  *correlator.Correlator
	ctrl  *Controller
	sent  chan string
	sink  *recordingSink
}

type recordingSink struct {
	mu     sync.Mutex
	states []State
}

func (r *recordingSink) BeliefChanged(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func newHarness(t *testing.T, opts ...Option) *harness {
	h := &harness{
		t:     t,
		clock: &fakeClock{now: time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)},
		sent:  make(chan string, 16),
		sink:  &recordingSink{},
	}
	h.corr = correlator.New(
		correlator.LineWriterFunc(func(line string) error {
			h.sent <- line
			return nil
		}),
		correlator.WithClock(h.clock.Now),
	)
	h.ctrl = NewController(h.corr, append([]Option{WithSink(h.sink)}, opts...)...)
	return h
}

// start runs op in the background and returns its result channel
func (h *harness) start(op func(ctx context.Context) error) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- op(context.Background())
	}()
	return errCh
}

func (h *harness) expectSent(want string) {
	h.t.Helper()
	select {
	case line := <-h.sent:
		if line != want {
			h.t.Fatalf("sent %q, want %q", line, want)
		}
	case <-time.After(2 * time.Second):
		h.t.Fatalf("nothing sent, want %q", want)
	}
}

func (h *harness) expectNothingSent() {
	h.t.Helper()
	select {
	case line := <-h.sent:
		h.t.Fatalf("unexpected line sent: %q", line)
	default:
	}
}

func (h *harness) result(errCh <-chan error) error {
	h.t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		h.t.Fatal("operation did not complete")
		return nil
	}
}

// roundTrip runs op, expects line on the wire, answers with reply
func (h *harness) roundTrip(op func(ctx context.Context) error, line, reply string) error {
	h.t.Helper()
	errCh := h.start(op)
	h.expectSent(line)
	h.corr.OnLine(reply)
	return h.result(errCh)
}

// ============================================================
// Scenario Tests
// ============================================================

func TestSetBrightness_ConfirmedUpdatesBelief(t *testing.T) {
	h := newHarness(t)
	errCh := h.start(func(ctx context.Context) error { return h.ctrl.SetBrightness(ctx, 128) })
	h.expectSent("COMMAND:BRIGHTNESS_SET@128")

	// Nothing is believed before the firmware confirms
	if got := h.ctrl.Belief(); got.Brightness != 0 || got.LightOn {
		t.Fatalf("Belief before reply = %+v, want untouched", got)
	}

	h.corr.OnLine("RESULT:BRIGHTNESS_SET@128")
	if err := h.result(errCh); err != nil {
		t.Fatalf("SetBrightness error = %v", err)
	}

	want := State{Cap: CapUnknown, LightOn: true, Brightness: 128}
	if got := h.ctrl.Belief(); got != want {
		t.Errorf("Belief = %+v, want %+v", got, want)
	}
	if h.sink.count() != 1 {
		t.Errorf("sink notifications = %d, want 1", h.sink.count())
	}
}

func TestSetBrightness_UsesEchoedLevel(t *testing.T) {
	h := newHarness(t)
	err := h.roundTrip(func(ctx context.Context) error { return h.ctrl.SetBrightness(ctx, 2000) },
		"COMMAND:BRIGHTNESS_SET@2000", "RESULT:BRIGHTNESS_SET@1023")
	if err != nil {
		t.Fatalf("SetBrightness error = %v", err)
	}
	if h.ctrl.Brightness() != 1023 {
		t.Errorf("Brightness = %d, want firmware-clamped 1023", h.ctrl.Brightness())
	}

	err = h.roundTrip(func(ctx context.Context) error { return h.ctrl.SetBrightness(ctx, 0) },
		"COMMAND:BRIGHTNESS_SET@0", "RESULT:BRIGHTNESS_SET@OK")
	if err != nil {
		t.Fatalf("SetBrightness(0) error = %v", err)
	}
	if h.ctrl.Brightness() != 0 || h.ctrl.LightOn() {
		t.Errorf("Belief = %+v, want brightness 0 light off", h.ctrl.Belief())
	}
}

func TestSetBrightness_OutOfRange(t *testing.T) {
	h := newHarness(t, WithMaxBrightness(1023))
	for _, level := range []int{-1, 1024, 70000} {
		err := h.ctrl.SetBrightness(context.Background(), level)
		if !errors.Is(err, ErrBrightnessRange) {
			t.Errorf("SetBrightness(%d) error = %v, want ErrBrightnessRange", level, err)
		}
	}
	h.expectNothingSent()
	if h.ctrl.MaxBrightness() != 1023 {
		t.Errorf("MaxBrightness = %d, want 1023", h.ctrl.MaxBrightness())
	}
}

func TestParkCap_RejectedLeavesBelief(t *testing.T) {
	h := newHarness(t)
	err := h.roundTrip(h.ctrl.ParkCap, "COMMAND:CAP_PARK", "ERROR:MOTOR_STALL@timeout")

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("ParkCap error = %v, want *RejectedError", err)
	}
	if rejected.Reason != "MOTOR_STALL" || rejected.Details != "timeout" || rejected.Command != fffp.CmdCapPark {
		t.Errorf("RejectedError = %+v", rejected)
	}
	if h.ctrl.CapState() != CapUnknown {
		t.Errorf("CapState = %s, want unchanged unknown", h.ctrl.CapState())
	}
	if h.sink.count() != 0 {
		t.Error("rejected command must not notify the sink")
	}
}

func TestEnableLight_BusyWhilePending(t *testing.T) {
	h := newHarness(t)
	errCh := h.start(func(ctx context.Context) error { return h.ctrl.SetBrightness(ctx, 50) })
	h.expectSent("COMMAND:BRIGHTNESS_SET@50")

	err := h.ctrl.EnableLight(context.Background(), false)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("EnableLight error = %v, want ErrBusy", err)
	}
	if !IsRetryable(err) {
		t.Error("ErrBusy should be retryable")
	}
	h.expectNothingSent()

	h.corr.OnLine("RESULT:BRIGHTNESS_SET@50")
	if err := h.result(errCh); err != nil {
		t.Fatalf("SetBrightness error = %v", err)
	}
}

func TestUnparkCap_TimeoutThenRecovers(t *testing.T) {
	h := newHarness(t, WithTimeout(2*time.Second))
	errCh := h.start(h.ctrl.UnparkCap)
	h.expectSent("COMMAND:CAP_UNPARK")

	h.corr.Tick(h.clock.Advance(2 * time.Second))
	if err := h.result(errCh); !errors.Is(err, ErrUnresponsive) {
		t.Fatalf("UnparkCap error = %v, want ErrUnresponsive", err)
	}
	if h.ctrl.CapState() != CapUnknown {
		t.Errorf("CapState = %s, want unknown after timeout", h.ctrl.CapState())
	}

	if err := h.roundTrip(h.ctrl.ParkCap, "COMMAND:CAP_PARK", "RESULT:CAP_PARK@OK"); err != nil {
		t.Fatalf("ParkCap after timeout error = %v", err)
	}
	if h.ctrl.CapState() != CapParked {
		t.Errorf("CapState = %s, want parked", h.ctrl.CapState())
	}
}

func TestLinkLost_ResetsBelief(t *testing.T) {
	h := newHarness(t)
	if err := h.roundTrip(func(ctx context.Context) error { return h.ctrl.SetBrightness(ctx, 300) },
		"COMMAND:BRIGHTNESS_SET@300", "RESULT:BRIGHTNESS_SET@300"); err != nil {
		t.Fatal(err)
	}
	if err := h.roundTrip(h.ctrl.UnparkCap, "COMMAND:CAP_UNPARK", "RESULT:CAP_UNPARK"); err != nil {
		t.Fatal(err)
	}

	errCh := h.start(h.ctrl.ParkCap)
	h.expectSent("COMMAND:CAP_PARK")
	h.corr.LinkLost()
	h.ctrl.Disconnected()

	if err := h.result(errCh); !errors.Is(err, ErrLinkLost) {
		t.Fatalf("ParkCap error = %v, want ErrLinkLost", err)
	}
	want := State{Cap: CapUnknown, LightOn: false, Brightness: 0}
	if got := h.ctrl.Belief(); got != want {
		t.Errorf("Belief = %+v, want %+v", got, want)
	}
}

// ============================================================
// Operation Tests
// ============================================================

func TestEnableLight(t *testing.T) {
	h := newHarness(t)
	if err := h.roundTrip(func(ctx context.Context) error { return h.ctrl.EnableLight(ctx, true) },
		"COMMAND:LIGHT_ON", "RESULT:LIGHT_ON"); err != nil {
		t.Fatal(err)
	}
	if !h.ctrl.LightOn() {
		t.Error("LightOn = false after confirmed LIGHT_ON")
	}
	if err := h.roundTrip(func(ctx context.Context) error { return h.ctrl.EnableLight(ctx, false) },
		"COMMAND:LIGHT_OFF", "RESULT:LIGHT_OFF@OK"); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.LightOn() {
		t.Error("LightOn = true after confirmed LIGHT_OFF")
	}
}

func TestCapMotion_Acknowledged(t *testing.T) {
	h := newHarness(t, WithCapMotion(CapAcknowledged))
	if err := h.roundTrip(h.ctrl.ParkCap, "COMMAND:CAP_PARK", "RESULT:CAP_PARK@OK"); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.CapState() != CapMoving {
		t.Fatalf("CapState = %s, want moving after acknowledgement", h.ctrl.CapState())
	}

	if err := h.roundTrip(h.ctrl.RefreshCap, "COMMAND:COVER_GET_STATE", "RESULT:COVER_GET_STATE@CLOSED"); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.CapState() != CapParked {
		t.Errorf("CapState = %s, want parked after poll", h.ctrl.CapState())
	}
}

func TestDialect_Cover(t *testing.T) {
	h := newHarness(t, WithDialect(fffp.DialectCover))
	if err := h.roundTrip(h.ctrl.UnparkCap, "COMMAND:COVER_OPEN", "RESULT:COVER_OPEN@OK"); err != nil {
		t.Fatal(err)
	}
	if err := h.roundTrip(h.ctrl.ParkCap, "COMMAND:COVER_CLOSE", "RESULT:COVER_CLOSE@OK"); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.CapState() != CapParked {
		t.Errorf("CapState = %s, want parked", h.ctrl.CapState())
	}
}

func TestRefreshCap_States(t *testing.T) {
	tests := []struct {
		message string
		want    CapState
	}{
		{"OPEN", CapUnparked},
		{"CLOSED", CapParked},
		{"OPENING", CapMoving},
		{"CLOSING", CapMoving},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			h := newHarness(t)
			if err := h.roundTrip(h.ctrl.RefreshCap, "COMMAND:COVER_GET_STATE", "RESULT:COVER_GET_STATE@"+tt.message); err != nil {
				t.Fatal(err)
			}
			if h.ctrl.CapState() != tt.want {
				t.Errorf("CapState = %s, want %s", h.ctrl.CapState(), tt.want)
			}
		})
	}

	h := newHarness(t)
	err := h.roundTrip(h.ctrl.RefreshCap, "COMMAND:COVER_GET_STATE", "RESULT:COVER_GET_STATE@AJAR")
	var unexpected *UnexpectedReplyError
	if !errors.As(err, &unexpected) {
		t.Errorf("RefreshCap(AJAR) error = %v, want *UnexpectedReplyError", err)
	}
}

func TestRefreshBrightness(t *testing.T) {
	h := newHarness(t, WithMaxBrightness(1023))
	if err := h.roundTrip(h.ctrl.RefreshBrightness, "COMMAND:BRIGHTNESS_GET", "RESULT:BRIGHTNESS_GET@512"); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.Brightness() != 512 || !h.ctrl.LightOn() {
		t.Errorf("Belief = %+v, want 512 on", h.ctrl.Belief())
	}

	for _, msg := range []string{"bright", "2048"} {
		err := h.roundTrip(h.ctrl.RefreshBrightness, "COMMAND:BRIGHTNESS_GET", "RESULT:BRIGHTNESS_GET@"+msg)
		var unexpected *UnexpectedReplyError
		if !errors.As(err, &unexpected) {
			t.Errorf("RefreshBrightness(%q) error = %v, want *UnexpectedReplyError", msg, err)
		}
	}
	if h.ctrl.Brightness() != 512 {
		t.Errorf("Brightness = %d, uninterpretable replies must not change it", h.ctrl.Brightness())
	}
}

func TestResetBrightness(t *testing.T) {
	h := newHarness(t)
	if err := h.roundTrip(func(ctx context.Context) error { return h.ctrl.SetBrightness(ctx, 9) },
		"COMMAND:BRIGHTNESS_SET@9", "RESULT:BRIGHTNESS_SET@9"); err != nil {
		t.Fatal(err)
	}
	if err := h.roundTrip(h.ctrl.ResetBrightness, "COMMAND:BRIGHTNESS_RESET", "RESULT:BRIGHTNESS_RESET@0"); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.Brightness() != 0 || h.ctrl.LightOn() {
		t.Errorf("Belief = %+v, want reset", h.ctrl.Belief())
	}
}

func TestHandshake(t *testing.T) {
	t.Run("pong", func(t *testing.T) {
		h := newHarness(t)
		if err := h.roundTrip(h.ctrl.Handshake, "COMMAND:PING", "RESULT:PING@PONG"); err != nil {
			t.Errorf("Handshake error = %v", err)
		}
	})

	t.Run("wrong reply", func(t *testing.T) {
		h := newHarness(t)
		err := h.roundTrip(h.ctrl.Handshake, "COMMAND:PING", "RESULT:PING@PANG")
		var unexpected *UnexpectedReplyError
		if !errors.As(err, &unexpected) {
			t.Errorf("Handshake error = %v, want *UnexpectedReplyError", err)
		}
	})

	t.Run("custom command any reply", func(t *testing.T) {
		h := newHarness(t, WithHandshake(fffp.MustCommand("IDENTIFY", ""), ""))
		if err := h.roundTrip(h.ctrl.Handshake, "COMMAND:IDENTIFY", "RESULT:IDENTIFY@FFFP V1"); err != nil {
			t.Errorf("Handshake error = %v", err)
		}
	})

	t.Run("simulation skips wire", func(t *testing.T) {
		h := newHarness(t, WithSimulation(true))
		if err := h.ctrl.Handshake(context.Background()); err != nil {
			t.Errorf("Handshake error = %v", err)
		}
		h.expectNothingSent()
	})
}

func TestOperation_ContextCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.ctrl.EnableLight(ctx, true) }()
	h.expectSent("COMMAND:LIGHT_ON")
	cancel()

	if err := h.result(errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("EnableLight error = %v, want context.Canceled", err)
	}
	// A late confirmation does not reach Belief through the abandoned call
	h.corr.OnLine("RESULT:LIGHT_ON")
	if h.ctrl.LightOn() {
		t.Error("LightOn = true, abandoned intent must not update Belief")
	}
}
