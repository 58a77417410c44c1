// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/LeTelescope/fffpctl/internal/log"
	"github.com/LeTelescope/fffpctl/pkg/panel"
)

var (
	discoveryTimeout time.Duration
	discoveryProbe   bool
)

var discoveryCmd = &cobra.Command{
	Use:     "discovery",
	Aliases: []string{"ports"},
	Short:   "List serial ports and find the ones a panel answers on",
	Long: `List the serial ports of this machine. With --probe every port is opened
at the configured baud rate and sent the handshake command; ports where the
firmware answers are marked.

Examples:
  # List ports with USB details
  fffpctl discovery

  # Find the calibrator
  fffpctl discovery --probe --baud 57600

Exit codes:
  0 - Discovery successful (at least one port listed, or a panel found with --probe)
  1 - Discovery failed (no ports, or no panel answered)
  2 - Port enumeration error`,
	Args: cobra.NoArgs,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "probe-timeout", 2*time.Second, "Handshake timeout per port")
	discoveryCmd.Flags().BoolVar(&discoveryProbe, "probe", false, "Send the handshake to every port")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Port enumeration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("fffpctl - Port Discovery\n")
	fmt.Printf("Baud: %d\n\n", baudRate)

	table := uitable.New()
	table.MaxColWidth = 40
	header := []any{"PORT", "USB", "VID:PID", "SERIAL", "PRODUCT"}
	if discoveryProbe {
		header = append(header, "PANEL")
	}
	table.AddRow(header...)

	found := 0
	for _, port := range ports {
		usb, ids := "no", ""
		if port.IsUSB {
			usb = "yes"
			ids = port.VID + ":" + port.PID
		}
		row := []any{port.Name, usb, ids, port.SerialNumber, port.Product}

		if discoveryProbe {
			status := "yes"
			if err := probePort(cmd.Context(), port.Name); err != nil {
				status = err.Error()
			} else {
				found++
			}
			row = append(row, status)
		}
		table.AddRow(row...)
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		os.Exit(1)
	}
	fmt.Println(table)

	if discoveryProbe {
		fmt.Printf("\n%d of %d ports answered the handshake\n", found, len(ports))
		if found == 0 {
			os.Exit(1)
		}
	}
	return nil
}

// probePort opens name and runs the handshake once
func probePort(ctx context.Context, name string) error {
	conn, err := OpenSerialConnection(name, baudRate)
	if err != nil {
		return err
	}

	opts, err := cfg.PanelOptions()
	if err != nil {
		conn.Close()
		return err
	}
	opts = append(opts,
		panel.WithTimeout(discoveryTimeout),
		panel.WithLogger(log.WithName("probe").WithValues("port", name).Logr()),
	)
	s := panel.Open(conn, opts...)
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout+time.Second)
	defer cancel()
	return s.Controller().Handshake(ctx)
}
