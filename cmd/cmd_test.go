// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LeTelescope/fffpctl/internal/bridge"
	"github.com/LeTelescope/fffpctl/pkg/panel"
	"github.com/LeTelescope/fffpctl/pkg/simulator"
)

// ============================================================
// Helpers
// ============================================================

func simulatedController(t *testing.T) *panel.Controller {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := panel.Open(simulator.Pipe(ctx, simulator.New()), panel.WithSimulation(true))
	t.Cleanup(func() {
		s.Close()
		cancel()
	})
	return s.Controller()
}

func updateControl(t *testing.T, m controlModel, msg tea.Msg) (controlModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(controlModel)
	if !ok {
		t.Fatalf("Update returned %T, want controlModel", next)
	}
	return cm, cmd
}

func lastEvent(m controlModel) eventLogEntry {
	if len(m.events.entries) == 0 {
		return eventLogEntry{}
	}
	return m.events.entries[len(m.events.entries)-1]
}

// ============================================================
// Formatting Tests
// ============================================================

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{90 * time.Second, "1 minute and 30 seconds"},
		{time.Hour, "1 hour"},
		{26*time.Hour + 2*time.Minute + 3*time.Second, "1 day, 2 hours, 2 minutes, and 3 seconds"},
		{1500 * time.Millisecond, "1 second"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.in); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBrightnessBar(t *testing.T) {
	tests := []struct {
		level, max int
		filled     int
	}{
		{0, 1023, 0},
		{1023, 1023, brightnessBarLen},
		{512, 1024, brightnessBarLen / 2},
		{5, 0, 0},
	}

	for _, tt := range tests {
		bar := brightnessBar(tt.level, tt.max)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("brightnessBar(%d, %d) filled = %d, want %d", tt.level, tt.max, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "·"); got != brightnessBarLen {
			t.Errorf("brightnessBar(%d, %d) length = %d, want %d", tt.level, tt.max, got, brightnessBarLen)
		}
	}
}

func TestEventLog_KeepsNewest(t *testing.T) {
	l := newEventLog(3)
	for i := range 5 {
		l.add(time.Now(), strings.Repeat("x", i+1), false)
	}

	if len(l.entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(l.entries))
	}
	if l.entries[0].message != "xxx" {
		t.Errorf("oldest entry = %q, want %q", l.entries[0].message, "xxx")
	}
}

// ============================================================
// Retry Tests
// ============================================================

func TestWithRetries(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"success", 2, []error{nil}, 1, nil},
		{"busy then success", 2, []error{panel.ErrBusy, nil}, 2, nil},
		{"rejected is final", 2, []error{&panel.RejectedError{Command: "CAP_PARK", Reason: "MOTOR_STALL"}}, 1, nil},
		{"no retries", 0, []error{panel.ErrUnresponsive}, 1, panel.ErrUnresponsive},
		{"link lost is final", 3, []error{panel.ErrLinkLost}, 1, panel.ErrLinkLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := withRetries(context.Background(), tt.retries, func(context.Context) error {
				err := tt.errs[min(calls, len(tt.errs)-1)]
				calls++
				return err
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.name == "rejected is final" {
				var rejected *panel.RejectedError
				if !errors.As(err, &rejected) {
					t.Errorf("err = %v, want *RejectedError", err)
				}
			}
		})
	}
}

func TestWithRetries_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetries(ctx, 5, func(context.Context) error {
		return panel.ErrBusy
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ============================================================
// Control Model Tests
// ============================================================

func TestControlModel_RefusesWhileDisconnected(t *testing.T) {
	m := initialControlModel(bridge.ProviderFunc(func() (*panel.Controller, error) {
		return nil, panel.ErrNotConnected
	}))

	m, cmd := updateControl(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if cmd != nil {
		t.Error("park while disconnected returned a command")
	}
	if e := lastEvent(m); !e.isError || !strings.Contains(e.message, "not connected") {
		t.Errorf("last event = %+v, want not connected error", e)
	}
}

func TestControlModel_ParkThroughSimulator(t *testing.T) {
	ctrl := simulatedController(t)
	m := initialControlModel(bridge.ProviderFunc(func() (*panel.Controller, error) {
		return ctrl, nil
	}))
	m.connected = true

	m, cmd := updateControl(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if cmd == nil {
		t.Fatal("park returned no command")
	}
	if m.pending != "Park" {
		t.Errorf("pending = %q, want %q", m.pending, "Park")
	}

	// A second intent is refused locally while the first is in flight
	m, second := updateControl(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("u")})
	if second != nil {
		t.Error("unpark while park pending returned a command")
	}

	result, ok := cmd().(opResultMsg)
	if !ok {
		t.Fatal("command did not produce an opResultMsg")
	}
	if result.err != nil {
		t.Fatalf("park: %v", result.err)
	}
	if got := ctrl.CapState(); got != panel.CapParked {
		t.Errorf("CapState() = %v, want %v", got, panel.CapParked)
	}

	m, _ = updateControl(t, m, result)
	if m.pending != "" {
		t.Errorf("pending = %q after result, want empty", m.pending)
	}
}

func TestControlModel_BrightnessEntry(t *testing.T) {
	ctrl := simulatedController(t)
	m := initialControlModel(bridge.ProviderFunc(func() (*panel.Controller, error) {
		return ctrl, nil
	}))
	m.connected = true
	m.maxBrightness = 1023

	tests := []struct {
		name    string
		input   string
		wantCmd bool
	}{
		{"out of range", "5000", false},
		{"in range", "200", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := updateControl(t, m, tea.KeyMsg{Type: tea.KeyTab})
			if m.focusedField != focusBrightnessInput {
				t.Fatalf("focusedField = %d, want %d", m.focusedField, focusBrightnessInput)
			}
			m.brightnessInput.SetValue(tt.input)

			m, cmd := updateControl(t, m, tea.KeyMsg{Type: tea.KeyEnter})
			if (cmd != nil) != tt.wantCmd {
				t.Fatalf("command = %v, want %v", cmd != nil, tt.wantCmd)
			}
			if !tt.wantCmd {
				if e := lastEvent(m); !e.isError {
					t.Errorf("last event = %+v, want range error", e)
				}
				return
			}

			if result := cmd().(opResultMsg); result.err != nil {
				t.Fatalf("set brightness: %v", result.err)
			}
			if got := ctrl.Brightness(); got != 200 {
				t.Errorf("Brightness() = %d, want 200", got)
			}
		})
	}
}

func TestControlModel_BeliefEvents(t *testing.T) {
	m := initialControlModel(bridge.ProviderFunc(func() (*panel.Controller, error) {
		return nil, panel.ErrNotConnected
	}))

	m, _ = updateControl(t, m, beliefMsg(panel.State{Cap: panel.CapMoving}))
	if e := lastEvent(m); e.message != "Cap: unknown -> moving" {
		t.Errorf("last event = %q, want cap transition", e.message)
	}

	m, _ = updateControl(t, m, beliefMsg(panel.State{Cap: panel.CapMoving, LightOn: true, Brightness: 42}))
	if e := lastEvent(m); e.message != "Light: on at 42" {
		t.Errorf("last event = %q, want light change", e.message)
	}
}
