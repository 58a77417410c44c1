// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeTelescope/fffpctl/internal/log"
	"github.com/LeTelescope/fffpctl/pkg/panel"
)

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the panel firmware answers",
	Long: `Send the handshake command (COMMAND:PING by default) and wait for the
expected reply (RESULT:PING@PONG).

This is useful for verifying:
  - The serial port or WebSocket bridge is reachable
  - The baud rate matches the firmware
  - The firmware is running and answering commands

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	opts, err := cfg.PanelOptions()
	if err != nil {
		return err
	}
	// the handshake is the ping, so it always goes on the wire
	opts = append(opts, panel.WithSimulation(false), panel.WithLogger(log.WithName("panel").Logr()))
	s := panel.Open(conn, opts...)
	defer s.Close()

	fmt.Printf("fffpctl - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per ping\n", cfg.Protocol.Timeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		err := s.Controller().Handshake(ctx)
		rtt := time.Since(start)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
		} else {
			fmt.Printf("%s, rtt=%v\n", cfg.Protocol.HandshakeReply, rtt.Round(time.Millisecond))
			successCount++
		}

		if !s.Connected() {
			fmt.Printf("Link lost: %v\n", s.Err())
			break
		}
		if i < pingCount {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d replies received, %.0f%% loss\n",
		pingCount, successCount, float64(pingCount-successCount)/float64(max(pingCount, 1))*100)

	if successCount < pingCount {
		s.Close()
		os.Exit(1)
	}
	return nil
}

