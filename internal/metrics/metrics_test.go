// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/LeTelescope/fffpctl/pkg/correlator"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
	"github.com/LeTelescope/fffpctl/pkg/panel"
)

func newCorrelator(c *Collector) *correlator.Correlator {
	w := correlator.LineWriterFunc(func(string) error { return nil })
	return correlator.New(w, correlator.WithObserver(c))
}

// ============================================================
// Observer Tests
// ============================================================

func TestCollector_RequestOutcomes(t *testing.T) {
	c := New()
	corr := newCorrelator(c)

	if _, err := corr.Submit(fffp.NewPing(), time.Second); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(c.pending); got != 1 {
		t.Errorf("request_pending = %v, want 1", got)
	}
	corr.OnLine("RESULT:PING@PONG")

	if _, err := corr.Submit(fffp.NewLight(true), time.Second); err != nil {
		t.Fatal(err)
	}
	corr.OnLine("ERROR:OVERHEAT")

	if _, err := corr.Submit(fffp.NewLight(false), time.Second); err != nil {
		t.Fatal(err)
	}
	corr.Tick(time.Now().Add(time.Minute))

	if _, err := corr.Submit(fffp.NewCoverState(), time.Second); err != nil {
		t.Fatal(err)
	}
	corr.LinkLost()

	tests := []struct {
		command, outcome string
	}{
		{fffp.CmdPing, OutcomeSuccess},
		{fffp.CmdLightOn, OutcomeRejected},
		{fffp.CmdLightOff, OutcomeTimeout},
		{fffp.CmdCoverState, OutcomeLinkLost},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.requests.WithLabelValues(tt.command, tt.outcome)); got != 1 {
			t.Errorf("requests_total{%s,%s} = %v, want 1", tt.command, tt.outcome, got)
		}
	}
	if got := testutil.ToFloat64(c.pending); got != 0 {
		t.Errorf("request_pending = %v, want 0", got)
	}
	if got := testutil.CollectAndCount(c.duration); got != 4 {
		t.Errorf("request_duration_seconds series = %d, want 4", got)
	}
}

func TestCollector_LineDiscarded(t *testing.T) {
	c := New()
	corr := newCorrelator(c)

	corr.OnLine("garbage")
	corr.OnLine("RESULT:PING@PONG")

	if got := testutil.ToFloat64(c.discarded.WithLabelValues(string(correlator.DiscardMalformed))); got != 1 {
		t.Errorf("lines_discarded_total{malformed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.discarded.WithLabelValues(string(correlator.DiscardUnsolicited))); got != 1 {
		t.Errorf("lines_discarded_total{unsolicited} = %v, want 1", got)
	}
}

// ============================================================
// Sink Tests
// ============================================================

func TestCollector_BeliefChanged(t *testing.T) {
	c := New()
	if got := testutil.ToFloat64(c.capState.WithLabelValues("unknown")); got != 1 {
		t.Errorf("initial cap_state{unknown} = %v, want 1", got)
	}

	c.BeliefChanged(panel.State{Cap: panel.CapParked, LightOn: true, Brightness: 200})

	if got := testutil.ToFloat64(c.brightness); got != 200 {
		t.Errorf("brightness = %v, want 200", got)
	}
	if got := testutil.ToFloat64(c.lightOn); got != 1 {
		t.Errorf("light_on = %v, want 1", got)
	}
	for _, st := range capStates {
		want := 0.0
		if st == panel.CapParked {
			want = 1
		}
		if got := testutil.ToFloat64(c.capState.WithLabelValues(string(st))); got != want {
			t.Errorf("cap_state{%s} = %v, want %v", st, got, want)
		}
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.SetConnected(true)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"fffpctl_link_up 1", "fffpctl_cap_state{state=\"unknown\"} 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
