// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ============================================================
// Load Tests
// ============================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyACM0" || cfg.Serial.Baud != 57600 {
		t.Errorf("serial defaults = %+v", cfg.Serial)
	}
	if cfg.Protocol.Timeout != 3*time.Second || cfg.Protocol.MaxBrightness != 65535 {
		t.Errorf("protocol defaults = %+v", cfg.Protocol)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[serial]
port = "/dev/ttyUSB3"

[protocol]
timeout = "5s"
cap-motion = "acknowledged"
max-brightness = 1023
dialect = "cover"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB3" {
		t.Errorf("Serial.Port = %q", cfg.Serial.Port)
	}
	if cfg.Serial.Baud != 57600 {
		t.Errorf("Serial.Baud = %d, want default 57600", cfg.Serial.Baud)
	}
	if cfg.Protocol.Timeout != 5*time.Second {
		t.Errorf("Protocol.Timeout = %v, want 5s", cfg.Protocol.Timeout)
	}
	if cfg.Protocol.TickInterval != 100*time.Millisecond {
		t.Errorf("Protocol.TickInterval = %v, want default", cfg.Protocol.TickInterval)
	}
	if cfg.Protocol.MaxBrightness != 1023 || cfg.Protocol.Dialect != "cover" {
		t.Errorf("Protocol = %+v", cfg.Protocol)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}

	opts, err := cfg.PanelOptions()
	if err != nil || len(opts) == 0 {
		t.Errorf("PanelOptions() = %d options, %v", len(opts), err)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"unknown key", "[serial]\nspeed = 9600\n", []string{"serial.speed"}},
		{"syntax", "[serial\n", []string{"load config"}},
		{
			"invalid values",
			"[protocol]\ntimeout = \"0s\"\ncap-motion = \"sideways\"\nerror-attribution = \"maybe\"\nhandshake-command = \"ping\"\n",
			[]string{"protocol.timeout", "protocol.cap-motion", "protocol.error-attribution", "protocol.handshake-command"},
		},
		{"bad remote", "[remote]\nurl = \"ftp://bridge\"\n", []string{"remote.url"}},
		{"wildcard prefix", "[serve]\nmqtt-broker = \"mqtt://localhost:1883\"\ntopic-prefix = \"fffp/#\"\n", []string{"serve.topic-prefix"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("Load() error = %q, missing %q", err, w)
				}
			}
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Serial.Port != Default().Serial.Port {
		t.Errorf("Load(\"\") did not return defaults")
	}
}

// ============================================================
// Resolve Tests
// ============================================================

func TestResolve_Precedence(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[serial]\nport = \"/dev/from-file\"\nbaud = 9600\n[protocol]\ntimeout = \"4s\"\n"))
	if err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("port", "/dev/ttyACM0", "")
	fs.Int("baud", 57600, "")
	fs.Duration("timeout", 3*time.Second, "")
	if err := fs.Parse([]string{"--port", "/dev/from-flag"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FFFP_PROTOCOL_TIMEOUT", "7s")

	v := NewViper()
	_ = v.BindPFlag("serial.port", fs.Lookup("port"))
	_ = v.BindPFlag("serial.baud", fs.Lookup("baud"))
	_ = v.BindPFlag("protocol.timeout", fs.Lookup("timeout"))

	if err := cfg.Resolve(v); err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if cfg.Serial.Port != "/dev/from-flag" {
		t.Errorf("Serial.Port = %q, want flag value", cfg.Serial.Port)
	}
	if cfg.Serial.Baud != 9600 {
		t.Errorf("Serial.Baud = %d, want file value over flag default", cfg.Serial.Baud)
	}
	if cfg.Protocol.Timeout != 7*time.Second {
		t.Errorf("Protocol.Timeout = %v, want env value", cfg.Protocol.Timeout)
	}
	if cfg.Protocol.CapMotion != "synchronous" {
		t.Errorf("Protocol.CapMotion = %q, want default", cfg.Protocol.CapMotion)
	}
}
