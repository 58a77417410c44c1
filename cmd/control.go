// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/LeTelescope/fffpctl/internal/log"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
	"github.com/LeTelescope/fffpctl/pkg/panel"
	"github.com/LeTelescope/fffpctl/pkg/trace"
)

var controlRecordPath string

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the flat panel",
	Long: `Control the flat panel and its dust cap via an interactive terminal UI.

Features:
  - Confirmed state display (cap, light, brightness)
  - Park and unpark the dust cap
  - Light toggle and brightness entry
  - Line statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Keys: p=park u=unpark l=light r=refresh 0=reset Tab=brightness q=quit

Supports serial, WebSocket and simulated connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().StringVar(&controlRecordPath, "record", "", "Append all lines to this trace file")
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var rec *trace.Recorder
	if controlRecordPath != "" {
		f, err := os.OpenFile(controlRecordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		rec = trace.NewRecorder(f)
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error(err, "closing trace file", "path", controlRecordPath)
			}
		}()
	}

	// Logs would tear the alt screen; keep only errors unless they go to a file
	if len(cfg.Log.OutputPaths) == 1 && cfg.Log.OutputPaths[0] == "stderr" {
		quiet := *cfg.Log
		quiet.Level = "error"
		if err := log.Init(&quiet); err != nil {
			return err
		}
	}

	sm := &sessionManager{}

	// Create TUI model with the session manager as controller provider
	m := initialControlModel(sm)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	sm.onUp = func(connInfo string) {
		p.Send(connectedMsg{connInfo: connInfo, at: time.Now()})
	}
	sm.onDown = func(err error) {
		p.Send(connectionLostMsg{err: err})
	}
	sm.extra = []panel.Option{
		panel.WithSink(panel.SinkFunc(func(s panel.State) {
			p.Send(beliefMsg(s))
		})),
		panel.WithTap(func(dir fffp.Direction, line string, at time.Time) {
			if rec != nil {
				rec.Record(dir, line, at)
			}
			if dir == fffp.Inbound {
				p.Send(lineMsg{line: line, at: at})
			}
		}),
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = sm.run(ctx)
	}()

	_, err := p.Run()
	cancel()
	<-runDone
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
