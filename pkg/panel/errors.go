// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package panel

import (
	"errors"
	"fmt"

	"github.com/LeTelescope/fffpctl/pkg/correlator"
)

// Caller-visible failures of panel operations
var (
	// ErrBusy means another request is outstanding; retry after it resolves
	ErrBusy = correlator.ErrBusy

	// ErrUnresponsive means no reply arrived before the deadline
	ErrUnresponsive = errors.New("panel: device unresponsive")

	// ErrLinkLost means the transport went away; Belief has been reset
	ErrLinkLost = errors.New("panel: link lost")

	// ErrNotConnected means no session is open
	ErrNotConnected = errors.New("panel: not connected")

	// ErrSessionClosed is the Session error after Close
	ErrSessionClosed = errors.New("panel: session closed")

	// ErrBrightnessRange means a level outside 0..MaxBrightness was requested
	ErrBrightnessRange = errors.New("panel: brightness out of range")
)

// RejectedError is returned when the firmware answers with ERROR:REASON@DETAILS
type RejectedError struct {
	Command string
	Reason  string
	Details string
}

// Error implements the error interface
func (r *RejectedError) Error() string {
	if r.Details == "" {
		return fmt.Sprintf("panel: %s rejected: %s", r.Command, r.Reason)
	}
	return fmt.Sprintf("panel: %s rejected: %s (%s)", r.Command, r.Reason, r.Details)
}

// UnexpectedReplyError is returned when a correlated result carries a
// message that cannot be interpreted
type UnexpectedReplyError struct {
	Command string
	Message string
	Want    string
}

// Error implements the error interface
func (u *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("panel: %s replied %q, want %s", u.Command, u.Message, u.Want)
}

// IsRetryable reports whether err is worth retrying as is: the link was
// busy or the device did not answer in time.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrUnresponsive)
}
