// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package correlator

import (
	"context"
	"fmt"
	"time"

	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

// OutcomeKind classifies how a request was resolved
type OutcomeKind int

const (
	Success OutcomeKind = iota + 1
	Failure
	Timeout
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ReasonLinkLost is the failure reason used when the transport goes away
// while a request is pending.
const ReasonLinkLost = "link_lost"

// ReasonWriteFailed is reported to observers when a command never reached
// the transport. Submit returns the write error to the caller instead.
const ReasonWriteFailed = "write_failed"

// Outcome is the resolution of a request
type Outcome struct {
	Kind    OutcomeKind
	Message string // Success: the result message
	Reason  string // Failure: the error reason
	Details string // Failure: the error details

	local bool // failure raised by the host, not the firmware
}

// LinkLost reports whether the request failed because the link went down
func (o Outcome) LinkLost() bool {
	return o.Kind == Failure && o.local && o.Reason == ReasonLinkLost
}

func (o Outcome) String() string {
	switch o.Kind {
	case Success:
		return fmt.Sprintf("success(%q)", o.Message)
	case Failure:
		return fmt.Sprintf("failure(%s@%s)", o.Reason, o.Details)
	default:
		return o.Kind.String()
	}
}

// Handle tracks one submitted request until it resolves
type Handle struct {
	cmd      fffp.Command
	sentAt   time.Time
	deadline time.Time
	done     chan Outcome
}

// Command returns the submitted command
func (h *Handle) Command() fffp.Command {
	return h.cmd
}

// SentAt returns when the command was written
func (h *Handle) SentAt() time.Time {
	return h.sentAt
}

// Deadline returns when the request times out
func (h *Handle) Deadline() time.Time {
	return h.deadline
}

// Done returns a channel that receives the outcome exactly once
func (h *Handle) Done() <-chan Outcome {
	return h.done
}

// Wait blocks until the request resolves or ctx is done.
// A cancelled ctx does not withdraw the request; it stays pending until
// a reply, the deadline, or link loss.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case o := <-h.done:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (h *Handle) resolve(o Outcome) {
	// done is buffered with capacity 1 and resolve runs once per handle
	h.done <- o
}
