// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/LeTelescope/fffpctl/internal/config"
	"github.com/LeTelescope/fffpctl/internal/log"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	simulate   bool

	logOptions = log.NewOptions()

	// cfg is resolved before any command runs
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "fffpctl",
	Short: "Flat-panel calibrator and dust cap controller",
	Long: `fffpctl - control a serial flat-panel calibrator with a motorized dust cap.

Sends line-oriented commands (COMMAND:NAME@ARGS) to the panel firmware and
tracks its replies, with one request outstanding at a time.

Connection modes:
  Serial:     --port /dev/ttyACM0 [--baud 57600]
  WebSocket:  --url ws://host/path [--username user]
  Simulation: --simulate

Settings are read from --config (default $XDG_CONFIG_HOME/fffpctl/config.toml),
then FFFP_* environment variables, then flags, the later overriding the earlier.

For WebSocket authentication, the password is read from the FFFP_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	defaults := config.Default()
	flags := rootCmd.PersistentFlags()

	// Serial connection flags
	flags.StringVarP(&portName, "port", "p", defaults.Serial.Port, "Serial port device")
	flags.IntVarP(&baudRate, "baud", "b", defaults.Serial.Baud, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.StringVar(&configPath, "config", "", "Configuration file (TOML)")
	flags.BoolVar(&simulate, "simulate", false, "Talk to the built-in firmware simulator instead of a device")
	flags.Duration("timeout", defaults.Protocol.Timeout, "Reply timeout per request")

	logOptions.AddFlags(flags)
}

// loadConfig resolves file, environment and flags into cfg and sets up logging
func loadConfig(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		if p := config.DefaultPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	v := config.NewViper()
	bindings := map[string]string{
		"serial.port":          "port",
		"serial.baud":          "baud",
		"remote.url":           "url",
		"remote.username":      "username",
		"remote.no-ssl-verify": "no-ssl-verify",
		"protocol.timeout":     "timeout",
		"serve.http-address":   "http-address",
		"serve.mqtt-broker":    "mqtt-broker",
		"log.level":            "log.level",
		"log.format":           "log.format",
		"log.enable-color":     "log.enable-color",
		"log.disable-caller":   "log.disable-caller",
		"log.output-paths":     "log.output-paths",
	}
	for key, name := range bindings {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if err := loaded.Resolve(v); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	cfg = loaded

	portName = cfg.Serial.Port
	baudRate = cfg.Serial.Baud
	wsURL = cfg.Remote.URL
	wsUsername = cfg.Remote.Username
	wsNoSSLVerify = cfg.Remote.NoSSLVerify

	if err := log.Init(cfg.Log); err != nil {
		return err
	}
	log.Debug("configuration loaded", "file", path, "port", portName, "url", wsURL, "simulate", simulate)
	return nil
}

// Execute runs the root command
func Execute() error {
	defer func() { _ = log.Sync() }()
	return rootCmd.Execute()
}
