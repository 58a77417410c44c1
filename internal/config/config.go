// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

// Package config loads the fffpctl TOML configuration file and resolves it
// against flags and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/LeTelescope/fffpctl/internal/log"
	"github.com/LeTelescope/fffpctl/pkg/correlator"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
	"github.com/LeTelescope/fffpctl/pkg/panel"
)

// EnvPrefix prefixes environment overrides, e.g. FFFP_SERIAL_PORT
const EnvPrefix = "FFFP"

// Config is the complete fffpctl configuration
type Config struct {
	Serial   Serial       `toml:"serial"`
	Remote   Remote       `toml:"remote"`
	Protocol Protocol     `toml:"protocol"`
	Serve    Serve        `toml:"serve"`
	Log      *log.Options `toml:"log"`
}

// Serial selects a local serial port
type Serial struct {
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
}

// Remote selects a websocket serial bridge instead of a local port
type Remote struct {
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify bool   `toml:"no-ssl-verify"`
}

// Protocol tunes the protocol engine
type Protocol struct {
	Timeout          time.Duration `toml:"timeout"`
	TickInterval     time.Duration `toml:"tick-interval"`
	PollInterval     time.Duration `toml:"poll-interval"`
	PollAlways       bool          `toml:"poll-always"`
	CapMotion        string        `toml:"cap-motion"`
	ErrorAttribution string        `toml:"error-attribution"`
	MaxBrightness    uint16        `toml:"max-brightness"`
	HandshakeCommand string        `toml:"handshake-command"`
	HandshakeReply   string        `toml:"handshake-reply"`
	Dialect          string        `toml:"dialect"`
}

// Serve configures the HTTP and MQTT bridge
type Serve struct {
	HTTPAddress  string `toml:"http-address"`
	MQTTBroker   string `toml:"mqtt-broker"`
	ClientID     string `toml:"client-id"`
	TopicPrefix  string `toml:"topic-prefix"`
	MQTTUsername string `toml:"mqtt-username"`
	MQTTPassword string `toml:"mqtt-password"`
	KeepAlive    uint16 `toml:"keep-alive"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Serial: Serial{
			Port: "/dev/ttyACM0",
			Baud: 57600,
		},
		Protocol: Protocol{
			Timeout:          panel.DefaultTimeout,
			TickInterval:     panel.DefaultTickInterval,
			PollInterval:     panel.DefaultPollInterval,
			CapMotion:        panel.CapSynchronous.String(),
			ErrorAttribution: correlator.AttributeNamed.String(),
			MaxBrightness:    panel.DefaultMaxBrightness,
			HandshakeCommand: fffp.CmdPing,
			HandshakeReply:   fffp.ResultPong,
			Dialect:          fffp.DialectCap.String(),
		},
		Serve: Serve{
			HTTPAddress: ":8080",
			ClientID:    "fffpctl",
			TopicPrefix: "fffp/panel",
			KeepAlive:   30,
		},
		Log: log.NewOptions(),
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/fffpctl/config.toml (or the
// platform equivalent)
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fffpctl", "config.toml")
}

// Load reads path over the defaults. Keys absent from the file keep their
// default; unknown keys are an error. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Remote.URL == "" && c.Serial.Port == "" {
		add("serial.port: required when remote.url is not set")
	}
	if c.Serial.Baud <= 0 {
		add("serial.baud: must be positive, got %d", c.Serial.Baud)
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || !slices.Contains([]string{"ws", "wss", "http", "https"}, u.Scheme) {
			add("remote.url: %q is not a ws:// or wss:// URL", c.Remote.URL)
		}
	}

	p := c.Protocol
	if p.Timeout <= 0 {
		add("protocol.timeout: must be positive, got %s", p.Timeout)
	}
	if p.TickInterval <= 0 || p.TickInterval > p.Timeout {
		add("protocol.tick-interval: must be in (0, timeout], got %s", p.TickInterval)
	}
	if p.PollInterval < 0 {
		add("protocol.poll-interval: must not be negative, got %s", p.PollInterval)
	}
	if _, err := panel.ParseCapMotion(p.CapMotion); err != nil {
		add("protocol.cap-motion: %w", err)
	}
	if _, err := correlator.ParseErrorAttribution(p.ErrorAttribution); err != nil {
		add("protocol.error-attribution: %w", err)
	}
	if p.MaxBrightness == 0 {
		add("protocol.max-brightness: must be positive")
	}
	if err := fffp.ValidateName(p.HandshakeCommand); err != nil {
		add("protocol.handshake-command: %w", err)
	}
	if _, err := fffp.ParseDialect(p.Dialect); err != nil {
		add("protocol.dialect: %w", err)
	}

	if c.Serve.MQTTBroker != "" {
		if _, err := url.Parse(c.Serve.MQTTBroker); err != nil {
			add("serve.mqtt-broker: %w", err)
		}
		if c.Serve.TopicPrefix == "" || strings.ContainsAny(c.Serve.TopicPrefix, "#+") {
			add("serve.topic-prefix: %q must be a non-empty topic without wildcards", c.Serve.TopicPrefix)
		}
	}

	if c.Log == nil {
		c.Log = log.NewOptions()
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PanelOptions converts the protocol section into panel options
func (c *Config) PanelOptions() ([]panel.Option, error) {
	p := c.Protocol

	motion, err := panel.ParseCapMotion(p.CapMotion)
	if err != nil {
		return nil, err
	}
	attribution, err := correlator.ParseErrorAttribution(p.ErrorAttribution)
	if err != nil {
		return nil, err
	}
	dialect, err := fffp.ParseDialect(p.Dialect)
	if err != nil {
		return nil, err
	}
	handshake, err := fffp.NewCommand(p.HandshakeCommand, "")
	if err != nil {
		return nil, err
	}

	return []panel.Option{
		panel.WithTimeout(p.Timeout),
		panel.WithTickInterval(p.TickInterval),
		panel.WithPollInterval(p.PollInterval),
		panel.WithPollAlways(p.PollAlways),
		panel.WithCapMotion(motion),
		panel.WithErrorAttribution(attribution),
		panel.WithMaxBrightness(p.MaxBrightness),
		panel.WithHandshake(handshake, p.HandshakeReply),
		panel.WithDialect(dialect),
	}, nil
}
