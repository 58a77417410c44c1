// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	Aliases: []string{"error_detection"},
	Short:   "Watch the line stream for malformed lines and error replies",
	Long: `Track malformed lines and ERROR replies with statistics.

This command listens to the panel without sending anything and detects:
  - Lines without a type separator or with an unknown type
  - RESULT lines whose command name is not valid
  - Lines longer than the protocol limit
  - ERROR replies from the firmware

By default, only problems are displayed. Use --show-all to display valid
lines too.

Lines are checked in real time, with problems highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all lines (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %d", statsInterval)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runMonitorTUI(ctx, conn, connInfo)
	}
	return runMonitorText(ctx, conn, connInfo)
}

// runMonitorTUI runs the monitor in TUI mode
func runMonitorTUI(ctx context.Context, conn Connection, connInfo string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialMonitorModel(connInfo, showAll), tea.WithContext(ctx))

	go func() {
		err := readLines(ctx, conn, func(line string, decodeErr error, at time.Time) {
			p.Send(lineMsg{line: line, decodeErr: decodeErr, at: at})
		})
		p.Send(linkClosedMsg{err: err})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runMonitorText runs the monitor in plain text mode
func runMonitorText(ctx context.Context, conn Connection, connInfo string) error {
	fmt.Printf("fffpctl - Line Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All lines\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var mu sync.Mutex
	stats := fffp.NewStatistics()
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				mu.Lock()
				fmt.Println()
				fmt.Print(stats.String())
				fmt.Println()
				mu.Unlock()
			}
		}
	}()

	err := readLines(ctx, conn, func(line string, decodeErr error, at time.Time) {
		reply, err := decodeInbound(line, decodeErr)
		mu.Lock()
		defer mu.Unlock()
		stats.Update(reply, err)

		switch {
		case err != nil:
			printMalformed(at, line, err)
		case isErrorReply(reply):
			fmt.Printf("[%s] \033[1;33mERROR REPLY:\033[0m %s\n", at.Format("15:04:05.000"), fffp.FormatReply(reply))
		case showAll:
			fmt.Print(fffp.FormatLine(at, fffp.Inbound, line))
		}
	})
	stop()

	mu.Lock()
	defer mu.Unlock()
	fmt.Println()
	fmt.Print(stats.String())
	return err
}

// printMalformed prints a decode failure in highlighted format
func printMalformed(at time.Time, line string, err error) {
	fmt.Printf("[%s] \033[1;31mMALFORMED:\033[0m %v\n", at.Format("15:04:05.000"), err)
	if line != "" {
		fmt.Printf("  Line: %q\n", line)
	}
	fmt.Printf("  >>> LINE DISCARDED <<<\n\n")
}
