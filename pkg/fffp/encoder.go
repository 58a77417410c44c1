// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package fffp

// Encode returns the wire line for a command, without terminator.
// It cannot fail: Command values are validated at construction.
func Encode(c Command) string {
	return joinLine(TypeCommand, c.name, c.args)
}

// EncodeFrame returns the wire bytes for a command including terminator
func EncodeFrame(c Command) []byte {
	return AppendTerminator(Encode(c))
}

// AppendTerminator returns line followed by the line terminator
func AppendTerminator(line string) []byte {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	return append(buf, Terminator)
}

func joinLine(lineType, head, tail string) string {
	if tail == "" {
		return lineType + TypeSeparator + head
	}
	return lineType + TypeSeparator + head + ArgsSeparator + tail
}
