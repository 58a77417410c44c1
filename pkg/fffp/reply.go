// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package fffp

import "fmt"

// Reply is a decoded device line: either a Result or an ErrorReply.
type Reply interface {
	// Line returns the wire form without terminator
	Line() string
	isReply()
}

// Result is a success reply, RESULT:NAME[@MESSAGE]
type Result struct {
	Command string
	Message string
}

func (Result) isReply() {}

// Line returns the wire form of the result
func (r Result) Line() string {
	return joinLine(TypeResult, r.Command, r.Message)
}

// ErrorReply is a failure reported by firmware, ERROR:REASON[@DETAILS]
type ErrorReply struct {
	Reason  string
	Details string
}

func (ErrorReply) isReply() {}

// Line returns the wire form of the error
func (e ErrorReply) Line() string {
	return joinLine(TypeError, e.Reason, e.Details)
}

// MalformedLineError is returned for a line that matches neither reply grammar
type MalformedLineError struct {
	Line     string
	Reason   string
	Overlong bool
}

// Error implements the error interface
func (m *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed line %q: %s", m.Line, m.Reason)
}
