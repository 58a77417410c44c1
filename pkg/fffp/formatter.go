// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package fffp

import (
	"fmt"
	"time"
)

// FormatLine formats a raw wire line into a human-readable log entry
func FormatLine(at time.Time, dir Direction, line string) string {
	timestamp := at.Format("15:04:05.000")
	return fmt.Sprintf("[%s] %s %s\n", timestamp, dir, DescribeLine(dir, line))
}

// DescribeLine decodes a line for display. Undecodable lines are shown
// verbatim with the decode error.
func DescribeLine(dir Direction, line string) string {
	if dir == Outbound {
		cmd, err := DecodeCommand(line)
		if err != nil {
			return fmt.Sprintf("%q (%v)", line, err)
		}
		return FormatCommand(cmd)
	}

	reply, err := Decode(line)
	if err != nil {
		if m, ok := err.(*MalformedLineError); ok {
			return fmt.Sprintf("MALFORMED %q: %s", line, m.Reason)
		}
		return fmt.Sprintf("%q (%v)", line, err)
	}
	return FormatReply(reply)
}

// FormatCommand returns a short description of a command
func FormatCommand(c Command) string {
	if c.HasArgs() {
		return fmt.Sprintf("COMMAND %s args=%q", c.Name(), c.Args())
	}
	return "COMMAND " + c.Name()
}

// FormatReply returns a short description of a reply
func FormatReply(r Reply) string {
	switch v := r.(type) {
	case Result:
		if v.Message == "" {
			return "RESULT  " + v.Command
		}
		return fmt.Sprintf("RESULT  %s message=%q", v.Command, v.Message)
	case ErrorReply:
		if v.Details == "" {
			return "ERROR   " + v.Reason
		}
		return fmt.Sprintf("ERROR   %s details=%q", v.Reason, v.Details)
	default:
		return fmt.Sprintf("%v", r)
	}
}
