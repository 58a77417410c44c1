// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeTelescope/fffpctl/internal/log"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
	"github.com/LeTelescope/fffpctl/pkg/trace"
)

var recordPath string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw line log in human-readable format",
	Long: `Continuously decode and display FFFP lines as they arrive from the panel.

Each line is shown with a timestamp and its decoded form. Lines that do not
parse are shown verbatim with the reason. Nothing is written to the panel.

With --record every line is also appended to a trace file that can be
inspected later with "fffpctl replay".

Supports serial, WebSocket and simulated connections.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&recordPath, "record", "", "Append received lines to this trace file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var rec *trace.Recorder
	if recordPath != "" {
		f, err := os.OpenFile(recordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		rec = trace.NewRecorder(f)
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error(err, "closing trace file", "path", recordPath)
			}
			fmt.Printf("Recorded %d lines to %s\n", rec.Count(), recordPath)
		}()
	}

	fmt.Printf("fffpctl - Raw Line Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return readLines(ctx, conn, func(line string, decodeErr error, at time.Time) {
		if decodeErr != nil {
			fmt.Printf("[%s] [ERROR] %v\n", at.Format("15:04:05.000"), decodeErr)
			return
		}
		fmt.Print(fffp.FormatLine(at, fffp.Inbound, line))
		if rec != nil {
			rec.Record(fffp.Inbound, line, at)
		}
	})
}

// readLines feeds bytes from conn through a line decoder until ctx is done
// or the connection closes. fn runs on the calling goroutine.
func readLines(ctx context.Context, conn Connection, fn func(line string, decodeErr error, at time.Time)) error {
	type chunk struct {
		data []byte
		at   time.Time
	}
	chunks := make(chan chunk, 16)
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case chunks <- chunk{data: data, at: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	decoder := fffp.NewLineDecoder()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			for len(chunks) > 0 {
				c := <-chunks
				decoder.Feed(c.data, func(line string, err error) { fn(line, err, c.at) })
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				fmt.Println("Connection closed")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case c := <-chunks:
			decoder.Feed(c.data, func(line string, err error) {
				fn(line, err, c.at)
			})
		}
	}
}
