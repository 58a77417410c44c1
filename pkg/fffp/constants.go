// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

// Package fffp provides a Go implementation of the FFFP flat panel line protocol.
//
// FFFP is a line-oriented ASCII protocol spoken over a serial link between a
// host and a motorized, illuminated flat panel. The host sends commands and
// the firmware answers each one with a result or an error line:
//
//	COMMAND:NAME[@ARGS]
//	RESULT:NAME[@MESSAGE]
//	ERROR:REASON[@DETAILS]
//
// This package provides command construction and encoding, reply decoding,
// a streaming line decoder, and formatting helpers. It performs no I/O.
package fffp

// Line framing
const (
	Terminator     = '\n'
	TypeSeparator  = ":"
	ArgsSeparator  = "@"
	MaxLineLength  = 256
	carriageReturn = '\r'
)

// Line types
const (
	TypeCommand = "COMMAND"
	TypeResult  = "RESULT"
	TypeError   = "ERROR"
)

// Commands - calibrator
const (
	CmdBrightnessSet   = "BRIGHTNESS_SET"
	CmdBrightnessGet   = "BRIGHTNESS_GET"
	CmdBrightnessReset = "BRIGHTNESS_RESET"
	CmdLightOn         = "LIGHT_ON"
	CmdLightOff        = "LIGHT_OFF"
)

// Commands - dust cap
const (
	CmdCapPark    = "CAP_PARK"
	CmdCapUnpark  = "CAP_UNPARK"
	CmdCoverClose = "COVER_CLOSE" // cover dialect of CAP_PARK
	CmdCoverOpen  = "COVER_OPEN"  // cover dialect of CAP_UNPARK
	CmdCoverState = "COVER_GET_STATE"
)

// Commands - link
const (
	CmdPing = "PING"
)

// Well-known result messages
const (
	ResultOK   = "OK"
	ResultPong = "PONG"
)

// Cover states reported by COVER_GET_STATE
const (
	CoverOpen    = "OPEN"
	CoverOpening = "OPENING"
	CoverClosing = "CLOSING"
	CoverClosed  = "CLOSED"
)

// KnownCommands lists every command name in the vocabulary
var KnownCommands = []string{
	CmdBrightnessSet,
	CmdBrightnessGet,
	CmdBrightnessReset,
	CmdLightOn,
	CmdLightOff,
	CmdCapPark,
	CmdCapUnpark,
	CmdCoverClose,
	CmdCoverOpen,
	CmdCoverState,
	CmdPing,
}

// IsKnownCommand reports whether name is part of the command vocabulary
func IsKnownCommand(name string) bool {
	for _, known := range KnownCommands {
		if known == name {
			return true
		}
	}
	return false
}

// Direction identifies which side of the link produced a line
type Direction uint8

const (
	Outbound Direction = iota + 1 // host to device
	Inbound                       // device to host
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "TX"
	case Inbound:
		return "RX"
	default:
		return "??"
	}
}
