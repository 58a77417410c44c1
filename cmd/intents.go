// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/LeTelescope/fffpctl/pkg/panel"
)

var retries int

var brightnessCmd = &cobra.Command{
	Use:   "brightness [level|reset]",
	Short: "Set, reset or read the calibrator brightness",
	Long: `Set the calibrator brightness to a level between 0 and the configured
maximum. A level above zero turns the light on. With no argument the current
level is read back from the panel; "reset" returns it to zero.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntent(cmd, func(ctx context.Context, ctrl *panel.Controller) error {
			switch {
			case len(args) == 0:
				return ctrl.RefreshBrightness(ctx)
			case args[0] == "reset":
				return ctrl.ResetBrightness(ctx)
			}
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid level %q", args[0])
			}
			return ctrl.SetBrightness(ctx, level)
		})
	},
}

var lightCmd = &cobra.Command{
	Use:       "light on|off",
	Short:     "Switch the calibrator light on or off",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var on bool
		switch args[0] {
		case "on":
			on = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		return runIntent(cmd, func(ctx context.Context, ctrl *panel.Controller) error {
			return ctrl.EnableLight(ctx, on)
		})
	},
}

var capCmd = &cobra.Command{
	Use:   "cap park|unpark|state",
	Short: "Park (close) or unpark (open) the dust cap, or read its state",
	Long: `Move the dust cap. With protocol.cap-motion = acknowledged the panel
answers before the motion ends; the cap then reads as moving until a state
query reports the final position.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"park", "unpark", "state"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var op func(ctx context.Context, ctrl *panel.Controller) error
		switch args[0] {
		case "park", "close":
			op = func(ctx context.Context, ctrl *panel.Controller) error { return ctrl.ParkCap(ctx) }
		case "unpark", "open":
			op = func(ctx context.Context, ctrl *panel.Controller) error { return ctrl.UnparkCap(ctx) }
		case "state":
			op = func(ctx context.Context, ctrl *panel.Controller) error { return ctrl.RefreshCap(ctx) }
		default:
			return fmt.Errorf("expected park, unpark or state, got %q", args[0])
		}
		return runIntent(cmd, op)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the cap state and brightness from the panel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntent(cmd, func(ctx context.Context, ctrl *panel.Controller) error {
			return ctrl.Refresh(ctx)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{brightnessCmd, lightCmd, capCmd, statusCmd} {
		c.Flags().IntVar(&retries, "retries", 0, "Retry when the panel is busy or does not answer")
		rootCmd.AddCommand(c)
	}
}

// runIntent opens a session, applies op with retries and prints the
// resulting belief
func runIntent(cmd *cobra.Command, op func(context.Context, *panel.Controller) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, connInfo, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ctrl := s.Controller()
	err = withRetries(ctx, retries, func(ctx context.Context) error {
		return op(ctx, ctrl)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, formatBelief(connInfo, ctrl))
	return nil
}

func formatBelief(connInfo string, ctrl *panel.Controller) string {
	st := ctrl.Belief()

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("CONNECTION:", connInfo)
	table.AddRow("CAP:", st.Cap)
	table.AddRow("LIGHT:", onOff(st.LightOn))
	table.AddRow("BRIGHTNESS:", fmt.Sprintf("%d / %d", st.Brightness, ctrl.MaxBrightness()))
	return table.String()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
