// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/LeTelescope/fffpctl/internal/bridge"
	"github.com/LeTelescope/fffpctl/internal/log"
	"github.com/LeTelescope/fffpctl/internal/metrics"
	"github.com/LeTelescope/fffpctl/pkg/panel"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the panel over HTTP and MQTT",
	Long: `Keep a session to the panel open and expose it to other programs.

The HTTP listener serves:
  GET  /api/v1/state                 current belief
  PUT  /api/v1/brightness            {"level": N}
  PUT  /api/v1/light                 {"on": true|false}
  POST /api/v1/cap/park|unpark       move the dust cap
  POST /api/v1/refresh               read back cap state and brightness
  GET  /metrics                      Prometheus metrics
  GET  /healthz                      liveness

When serve.mqtt-broker is set, intents are also accepted on
<topic-prefix>/set/{brightness,light,cap,refresh} and the belief is published
retained on <topic-prefix>/state.

The session reconnects with exponential backoff when the link drops.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("http-address", cfg.Serve.HTTPAddress, "HTTP listen address")
	serveCmd.Flags().String("mqtt-broker", cfg.Serve.MQTTBroker, "MQTT broker URL, e.g. mqtt://localhost:1883 (empty disables MQTT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	defer undo()
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()
	sinks := []panel.Sink{collector}

	sm := &sessionManager{
		onUp: func(connInfo string) {
			collector.SetConnected(true)
			log.Info("panel connected", "connection", connInfo)
		},
		onDown: func(err error) {
			collector.SetConnected(false)
		},
	}

	var mqtt *bridge.MQTT
	if cfg.Serve.MQTTBroker != "" {
		mqtt, err = bridge.NewMQTT(bridge.MQTTConfig{
			BrokerURL:          cfg.Serve.MQTTBroker,
			ClientID:           cfg.Serve.ClientID,
			Username:           cfg.Serve.MQTTUsername,
			Password:           cfg.Serve.MQTTPassword,
			TopicPrefix:        cfg.Serve.TopicPrefix,
			KeepAlive:          cfg.Serve.KeepAlive,
			InsecureSkipVerify: cfg.Remote.NoSSLVerify,
		}, sm, log.WithName("mqtt").Logr())
		if err != nil {
			return err
		}
		sinks = append(sinks, mqtt)
	}

	sm.extra = []panel.Option{
		panel.WithSink(panel.MultiSink(sinks...)),
		panel.WithObserver(collector),
	}

	server := bridge.NewServer(cfg.Serve.HTTPAddress, sm, collector.Handler(), log.WithName("http").Logr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sm.run(ctx)
	})
	g.Go(func() error {
		return server.Start(ctx)
	})
	if mqtt != nil {
		g.Go(func() error {
			return mqtt.Start(ctx)
		})
	}

	log.Info("serving", "http", cfg.Serve.HTTPAddress, "mqtt", cfg.Serve.MQTTBroker)
	return g.Wait()
}
