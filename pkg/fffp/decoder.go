// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package fffp

import (
	"fmt"
	"strings"
)

// Decode parses a device line into a Reply.
//
// The line is split on the first ':' into TYPE and remainder, and the
// remainder on the first '@' into head and tail. Later ':' and '@' belong to
// the tail. Any line that is not a RESULT or ERROR yields a *MalformedLineError.
func Decode(line string) (Reply, error) {
	lineType, head, tail, err := splitLine(line)
	if err != nil {
		return nil, err
	}

	switch lineType {
	case TypeResult:
		if err := ValidateName(head); err != nil {
			return nil, &MalformedLineError{Line: line, Reason: "result command name: " + err.Error()}
		}
		return Result{Command: head, Message: tail}, nil
	case TypeError:
		if head == "" {
			return nil, &MalformedLineError{Line: line, Reason: "empty error reason"}
		}
		return ErrorReply{Reason: head, Details: tail}, nil
	default:
		return nil, &MalformedLineError{Line: line, Reason: fmt.Sprintf("unknown line type %q", lineType)}
	}
}

// DecodeCommand parses a host line into a Command.
// This is the device side of the codec, used by the simulator and monitors.
func DecodeCommand(line string) (Command, error) {
	lineType, head, tail, err := splitLine(line)
	if err != nil {
		return Command{}, err
	}
	if lineType != TypeCommand {
		return Command{}, &MalformedLineError{Line: line, Reason: fmt.Sprintf("unknown line type %q", lineType)}
	}
	cmd, err := NewCommand(head, tail)
	if err != nil {
		return Command{}, &MalformedLineError{Line: line, Reason: err.Error()}
	}
	return cmd, nil
}

func splitLine(line string) (lineType, head, tail string, err error) {
	trimmed := strings.TrimRight(line, "\r\n")
	lineType, rest, found := strings.Cut(trimmed, TypeSeparator)
	if !found {
		return "", "", "", &MalformedLineError{Line: line, Reason: "missing type separator"}
	}
	head, tail, _ = strings.Cut(rest, ArgsSeparator)
	// Some firmware pads the name before the separator ("RESULT:NAME @MSG")
	return lineType, strings.TrimSpace(head), tail, nil
}

// LineDecoder reassembles lines from a byte stream.
type LineDecoder struct {
	buffer     []byte
	discarding bool // inside an overlong line, drop until terminator
}

// NewLineDecoder creates a new streaming line decoder
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{
		buffer: make([]byte, 0, MaxLineLength),
	}
}

// Reset drops any partial line
func (d *LineDecoder) Reset() {
	d.buffer = d.buffer[:0]
	d.discarding = false
}

// Pending returns the bytes of the partial line accumulated so far
func (d *LineDecoder) Pending() []byte {
	return d.buffer
}

// DecodeByte processes a single byte.
// Returns the completed line (without terminator) when b ends a non-empty line.
// Returns a *MalformedLineError once when a line exceeds MaxLineLength; the
// rest of that line is dropped.
func (d *LineDecoder) DecodeByte(b byte) (string, bool, error) {
	if b == Terminator {
		if d.discarding {
			d.Reset()
			return "", false, nil
		}
		line := string(d.buffer)
		d.buffer = d.buffer[:0]
		if n := len(line); n > 0 && line[n-1] == carriageReturn {
			line = line[:n-1]
		}
		if line == "" {
			return "", false, nil
		}
		return line, true, nil
	}

	if d.discarding {
		return "", false, nil
	}

	if len(d.buffer) >= MaxLineLength {
		err := &MalformedLineError{
			Line:     string(d.buffer[:32]) + "...",
			Reason:   fmt.Sprintf("line exceeds %d bytes", MaxLineLength),
			Overlong: true,
		}
		d.buffer = d.buffer[:0]
		d.discarding = true
		return "", false, err
	}

	d.buffer = append(d.buffer, b)
	return "", false, nil
}

// Feed processes a chunk of bytes and calls fn for every completed line or
// decode error, in stream order.
func (d *LineDecoder) Feed(p []byte, fn func(line string, err error)) {
	for _, b := range p {
		line, ok, err := d.DecodeByte(b)
		if err != nil {
			fn("", err)
			continue
		}
		if ok {
			fn(line, nil)
		}
	}
}
