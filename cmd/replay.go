// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/LeTelescope/fffpctl/pkg/fffp"
	"github.com/LeTelescope/fffpctl/pkg/trace"
)

var replayErrorsOnly bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print a recorded trace file",
	Long: `Decode and print a trace file written by "raw_log --record" or
"control --record", followed by statistics for the lines received from the
panel.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayErrorsOnly, "errors-only", false, "Only print malformed lines and ERROR replies")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r := trace.NewReader(f)
	stats := fffp.NewStatistics()
	count := 0

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", count+1, err)
		}
		count++

		if rec.Direction == fffp.Inbound {
			reply, err := fffp.Decode(rec.Line)
			stats.Update(reply, err)
			if replayErrorsOnly && err == nil && !isErrorReply(reply) {
				continue
			}
		} else if replayErrorsOnly {
			continue
		}
		fmt.Print(fffp.FormatLine(rec.Time(), rec.Direction, rec.Line))
	}

	fmt.Printf("\n%d records\n", count)
	if stats.TotalLines > 0 {
		fmt.Print(stats.String())
	}
	return nil
}
