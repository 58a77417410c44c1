// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope
//
// fffpctl - Flat Field Panel control client
//
// A CLI tool for driving serial flat panel calibrators with a motorized
// dust cap, monitoring their line protocol, and exposing them over HTTP
// and MQTT.

package main

import (
	"os"

	"github.com/LeTelescope/fffpctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
