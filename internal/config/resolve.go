// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// NewViper returns a viper instance reading FFFP_ environment variables.
// Bind command flags to it with BindPFlag using the dotted config keys.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Resolve overlays v onto c. The values in c act as viper defaults, so the
// result follows flag > environment > c.
func (c *Config) Resolve(v *viper.Viper) error {
	v.SetDefault("serial.port", c.Serial.Port)
	v.SetDefault("serial.baud", c.Serial.Baud)
	v.SetDefault("remote.url", c.Remote.URL)
	v.SetDefault("remote.username", c.Remote.Username)
	v.SetDefault("remote.no-ssl-verify", c.Remote.NoSSLVerify)
	v.SetDefault("protocol.timeout", c.Protocol.Timeout)
	v.SetDefault("protocol.tick-interval", c.Protocol.TickInterval)
	v.SetDefault("protocol.poll-interval", c.Protocol.PollInterval)
	v.SetDefault("protocol.poll-always", c.Protocol.PollAlways)
	v.SetDefault("protocol.cap-motion", c.Protocol.CapMotion)
	v.SetDefault("protocol.error-attribution", c.Protocol.ErrorAttribution)
	v.SetDefault("protocol.max-brightness", c.Protocol.MaxBrightness)
	v.SetDefault("protocol.handshake-command", c.Protocol.HandshakeCommand)
	v.SetDefault("protocol.handshake-reply", c.Protocol.HandshakeReply)
	v.SetDefault("protocol.dialect", c.Protocol.Dialect)
	v.SetDefault("serve.http-address", c.Serve.HTTPAddress)
	v.SetDefault("serve.mqtt-broker", c.Serve.MQTTBroker)
	v.SetDefault("serve.client-id", c.Serve.ClientID)
	v.SetDefault("serve.topic-prefix", c.Serve.TopicPrefix)
	v.SetDefault("serve.mqtt-username", c.Serve.MQTTUsername)
	v.SetDefault("serve.mqtt-password", c.Serve.MQTTPassword)
	v.SetDefault("serve.keep-alive", c.Serve.KeepAlive)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.enable-color", c.Log.EnableColor)
	v.SetDefault("log.disable-caller", c.Log.DisableCaller)
	v.SetDefault("log.output-paths", c.Log.OutputPaths)

	c.Serial.Port = v.GetString("serial.port")
	c.Serial.Baud = v.GetInt("serial.baud")
	c.Remote.URL = v.GetString("remote.url")
	c.Remote.Username = v.GetString("remote.username")
	c.Remote.NoSSLVerify = v.GetBool("remote.no-ssl-verify")
	c.Protocol.Timeout = v.GetDuration("protocol.timeout")
	c.Protocol.TickInterval = v.GetDuration("protocol.tick-interval")
	c.Protocol.PollInterval = v.GetDuration("protocol.poll-interval")
	c.Protocol.PollAlways = v.GetBool("protocol.poll-always")
	c.Protocol.CapMotion = v.GetString("protocol.cap-motion")
	c.Protocol.ErrorAttribution = v.GetString("protocol.error-attribution")
	c.Protocol.MaxBrightness = v.GetUint16("protocol.max-brightness")
	c.Protocol.HandshakeCommand = v.GetString("protocol.handshake-command")
	c.Protocol.HandshakeReply = v.GetString("protocol.handshake-reply")
	c.Protocol.Dialect = v.GetString("protocol.dialect")
	c.Serve.HTTPAddress = v.GetString("serve.http-address")
	c.Serve.MQTTBroker = v.GetString("serve.mqtt-broker")
	c.Serve.ClientID = v.GetString("serve.client-id")
	c.Serve.TopicPrefix = v.GetString("serve.topic-prefix")
	c.Serve.MQTTUsername = v.GetString("serve.mqtt-username")
	c.Serve.MQTTPassword = v.GetString("serve.mqtt-password")
	c.Serve.KeepAlive = v.GetUint16("serve.keep-alive")
	c.Log.Level = v.GetString("log.level")
	c.Log.Format = v.GetString("log.format")
	c.Log.EnableColor = v.GetBool("log.enable-color")
	c.Log.DisableCaller = v.GetBool("log.disable-caller")
	c.Log.OutputPaths = v.GetStringSlice("log.output-paths")

	return c.Validate()
}
