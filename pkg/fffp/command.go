// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package fffp

import (
	"fmt"
	"strconv"
)

// Command is a request to the device. It is immutable once built.
type Command struct {
	name string
	args string
}

// NewCommand validates name and args and builds a Command.
// Name must match [A-Z_]+ and args [A-Za-z0-9 @]*.
func NewCommand(name, args string) (Command, error) {
	if err := ValidateName(name); err != nil {
		return Command{}, err
	}
	if err := ValidatePayload("args", args); err != nil {
		return Command{}, err
	}
	return Command{name: name, args: args}, nil
}

// MustCommand is like NewCommand but panics on invalid input.
// Intended for package-level vocabulary and tests.
func MustCommand(name, args string) Command {
	c, err := NewCommand(name, args)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the command name
func (c Command) Name() string {
	return c.name
}

// Args returns the optional argument payload
func (c Command) Args() string {
	return c.args
}

// HasArgs reports whether the command carries an argument payload
func (c Command) HasArgs() bool {
	return c.args != ""
}

// IsZero reports whether c is the zero Command
func (c Command) IsZero() bool {
	return c.name == ""
}

func (c Command) String() string {
	return Encode(c)
}

// Command builder functions. Their inputs cannot produce an invalid Command.

// NewPing creates a PING liveness command.
// Firmware answers RESULT:PING@PONG.
func NewPing() Command {
	return Command{name: CmdPing}
}

// NewBrightnessSet creates a BRIGHTNESS_SET command with a decimal level.
func NewBrightnessSet(level uint16) Command {
	return Command{name: CmdBrightnessSet, args: strconv.FormatUint(uint64(level), 10)}
}

// NewBrightnessGet creates a BRIGHTNESS_GET query
func NewBrightnessGet() Command {
	return Command{name: CmdBrightnessGet}
}

// NewBrightnessReset creates a BRIGHTNESS_RESET command (result is "0")
func NewBrightnessReset() Command {
	return Command{name: CmdBrightnessReset}
}

// NewLight creates LIGHT_ON or LIGHT_OFF
func NewLight(on bool) Command {
	if on {
		return Command{name: CmdLightOn}
	}
	return Command{name: CmdLightOff}
}

// NewCoverState creates a COVER_GET_STATE query
func NewCoverState() Command {
	return Command{name: CmdCoverState}
}

// Dialect selects the command names used for dust cap motion.
type Dialect int

const (
	// DialectCap uses CAP_PARK and CAP_UNPARK
	DialectCap Dialect = iota
	// DialectCover uses COVER_CLOSE and COVER_OPEN
	DialectCover
)

// ParseDialect parses "cap" or "cover"
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "", "cap":
		return DialectCap, nil
	case "cover":
		return DialectCover, nil
	default:
		return DialectCap, fmt.Errorf("unknown dialect %q (want cap or cover)", s)
	}
}

func (d Dialect) String() string {
	if d == DialectCover {
		return "cover"
	}
	return "cap"
}

// NewPark creates the park command for the dialect
func (d Dialect) NewPark() Command {
	if d == DialectCover {
		return Command{name: CmdCoverClose}
	}
	return Command{name: CmdCapPark}
}

// NewUnpark creates the unpark command for the dialect
func (d Dialect) NewUnpark() Command {
	if d == DialectCover {
		return Command{name: CmdCoverOpen}
	}
	return Command{name: CmdCapUnpark}
}
