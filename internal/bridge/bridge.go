// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

// Package bridge exposes a panel to host frameworks over HTTP and MQTT.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/LeTelescope/fffpctl/pkg/panel"
)

// Provider hands out the controller of the current session. It returns
// panel.ErrNotConnected while no session is open.
type Provider interface {
	Controller() (*panel.Controller, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func() (*panel.Controller, error)

// Controller calls f()
func (f ProviderFunc) Controller() (*panel.Controller, error) {
	return f()
}

// IntentKind names an operation a client can request
type IntentKind string

const (
	IntentBrightness IntentKind = "brightness"
	IntentLight      IntentKind = "light"
	IntentCap        IntentKind = "cap"
	IntentRefresh    IntentKind = "refresh"
)

// Intent is a parsed client request
type Intent struct {
	Kind  IntentKind
	Level int  // IntentBrightness
	On    bool // IntentLight
	Park  bool // IntentCap
}

func (i Intent) String() string {
	switch i.Kind {
	case IntentBrightness:
		return fmt.Sprintf("brightness=%d", i.Level)
	case IntentLight:
		return fmt.Sprintf("light=%s", onOff(i.On))
	case IntentCap:
		if i.Park {
			return "cap=park"
		}
		return "cap=unpark"
	default:
		return string(i.Kind)
	}
}

// ParseIntent parses a textual value for kind
func ParseIntent(kind IntentKind, value string) (Intent, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	in := Intent{Kind: kind}

	switch kind {
	case IntentBrightness:
		level, err := strconv.Atoi(value)
		if err != nil {
			return Intent{}, fmt.Errorf("brightness %q is not an integer", value)
		}
		in.Level = level
	case IntentLight:
		switch value {
		case "on", "true", "1":
			in.On = true
		case "off", "false", "0":
			in.On = false
		default:
			return Intent{}, fmt.Errorf("light %q is not on or off", value)
		}
	case IntentCap:
		switch value {
		case "park", "close", "closed":
			in.Park = true
		case "unpark", "open":
			in.Park = false
		default:
			return Intent{}, fmt.Errorf("cap %q is not park or unpark", value)
		}
	case IntentRefresh:
	default:
		return Intent{}, fmt.Errorf("unknown intent %q", kind)
	}
	return in, nil
}

// Apply runs the intent against ctrl
func (i Intent) Apply(ctx context.Context, ctrl *panel.Controller) error {
	switch i.Kind {
	case IntentBrightness:
		return ctrl.SetBrightness(ctx, i.Level)
	case IntentLight:
		return ctrl.EnableLight(ctx, i.On)
	case IntentCap:
		if i.Park {
			return ctrl.ParkCap(ctx)
		}
		return ctrl.UnparkCap(ctx)
	case IntentRefresh:
		return ctrl.Refresh(ctx)
	default:
		return fmt.Errorf("unknown intent %q", i.Kind)
	}
}

// StatusCode maps a controller error to an HTTP status
func StatusCode(err error) int {
	var rejected *panel.RejectedError
	var unexpected *panel.UnexpectedReplyError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, panel.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, panel.ErrUnresponsive), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, panel.ErrLinkLost), errors.Is(err, panel.ErrNotConnected), errors.Is(err, panel.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, panel.ErrBrightnessRange):
		return http.StatusBadRequest
	case errors.As(err, &unexpected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON shape of a failed request
type ErrorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

func errorBody(err error) ErrorBody {
	body := ErrorBody{Error: err.Error()}
	var rejected *panel.RejectedError
	if errors.As(err, &rejected) {
		body.Reason = rejected.Reason
		body.Details = rejected.Details
	}
	return body
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
