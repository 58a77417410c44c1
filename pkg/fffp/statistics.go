// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package fffp

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks inbound line counts and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalLines     uint64
	Results        uint64
	Errors         uint64
	MalformedLines uint64
	OverlongLines  uint64
	OtherErrors    uint64

	// Rates (calculated)
	LineRate  float64 // lines/sec
	ErrorRate float64 // malformed/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decoded line or decode failure
func (s *Statistics) Update(reply Reply, decodeErr error) {
	s.TotalLines++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		var malformed *MalformedLineError
		switch {
		case errors.As(decodeErr, &malformed) && malformed.Overlong:
			s.OverlongLines++
			s.MalformedLines++
		case errors.As(decodeErr, &malformed):
			s.MalformedLines++
		default:
			s.OtherErrors++
		}
		return
	}

	switch reply.(type) {
	case Result:
		s.Results++
	case ErrorReply:
		s.Errors++
	}
}

// CalculateRates calculates line and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.LineRate = float64(s.TotalLines) / elapsed
		s.ErrorRate = float64(s.MalformedLines+s.OtherErrors) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalLines == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalLines)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", s.TotalLines)
	result += fmt.Sprintf("Results:         %8d (%.1f%%)\n", s.Results, percent(s.Results))
	result += fmt.Sprintf("Errors:          %8d (%.1f%%)\n", s.Errors, percent(s.Errors))

	if s.MalformedLines > 0 {
		result += fmt.Sprintf("Malformed Lines: %8d (%.1f%%)\n", s.MalformedLines, percent(s.MalformedLines))
		if s.OverlongLines > 0 {
			result += fmt.Sprintf("  Overlong:         %5d\n", s.OverlongLines)
		}
	}
	if s.OtherErrors > 0 {
		result += fmt.Sprintf("Read Errors:     %8d (%.1f%%)\n", s.OtherErrors, percent(s.OtherErrors))
	}

	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
