// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package fffp

import "fmt"

// ValidationError reports a field that violates the wire grammar
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", v.Field, v.Value, v.Reason)
}

// ValidateName checks that name matches [A-Z_]+
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Value: name, Reason: "empty"}
	}
	for i := 0; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return &ValidationError{
				Field:  "name",
				Value:  name,
				Reason: fmt.Sprintf("byte 0x%02X at offset %d not in [A-Z_]", name[i], i),
			}
		}
	}
	return nil
}

// ValidatePayload checks that s matches [A-Za-z0-9 @]*
func ValidatePayload(field, s string) error {
	for i := 0; i < len(s); i++ {
		if !isPayloadByte(s[i]) {
			return &ValidationError{
				Field:  field,
				Value:  s,
				Reason: fmt.Sprintf("byte 0x%02X at offset %d not in [A-Za-z0-9 @]", s[i], i),
			}
		}
	}
	return nil
}

func isNameByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') || b == '_'
}

func isPayloadByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == ' ', b == '@':
		return true
	}
	return false
}
