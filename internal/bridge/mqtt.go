// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package bridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/go-logr/logr"

	"github.com/LeTelescope/fffpctl/pkg/panel"
)

// Status payloads published retained on <prefix>/status
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MQTTConfig configures the MQTT bridge
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string

	// KeepAlive in seconds (default 30)
	KeepAlive uint16

	// ConnectTimeout for each connection attempt (default 5s)
	ConnectTimeout time.Duration

	InsecureSkipVerify bool
}

func (c *MQTTConfig) setDefaults() {
	if c.KeepAlive == 0 {
		c.KeepAlive = 30
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
}

// Validate checks the configuration
func (c *MQTTConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	if _, err := url.Parse(c.BrokerURL); err != nil {
		return fmt.Errorf("broker url: %w", err)
	}
	if c.TopicPrefix == "" || strings.ContainsAny(c.TopicPrefix, "+#") {
		return fmt.Errorf("topic prefix %q must be a non-empty topic without wildcards", c.TopicPrefix)
	}
	return nil
}

// Result is published on <prefix>/result for every intent received
type Result struct {
	Topic  string `json:"topic"`
	Intent string `json:"intent,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Status int    `json:"status"`
}

// publisher is the subset of the connection manager used for publishing
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// MQTT publishes Belief as a retained property and accepts intents on
// <prefix>/set/<kind>. It implements panel.Sink.
type MQTT struct {
	cfg      MQTTConfig
	provider Provider
	log      logr.Logger

	pub     publisher
	updates chan panel.State

	mu   sync.Mutex
	last *panel.State
}

var _ panel.Sink = (*MQTT)(nil)

// NewMQTT creates the bridge. Call Start to connect.
func NewMQTT(cfg MQTTConfig, provider Provider, log logr.Logger) (*MQTT, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}
	return &MQTT{
		cfg:      cfg,
		provider: provider,
		log:      log,
		updates:  make(chan panel.State, 1),
	}, nil
}

// StateTopic is where Belief is published
func (m *MQTT) StateTopic() string { return m.cfg.TopicPrefix + "/state" }

// StatusTopic carries online/offline, with offline as the will message
func (m *MQTT) StatusTopic() string { return m.cfg.TopicPrefix + "/status" }

// ResultTopic carries the outcome of each intent
func (m *MQTT) ResultTopic() string { return m.cfg.TopicPrefix + "/result" }

// SetFilter is the subscription for intents
func (m *MQTT) SetFilter() string { return m.cfg.TopicPrefix + "/set/+" }

// Start connects to the broker and publishes state until ctx is done
func (m *MQTT) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(m.cfg.BrokerURL)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     m.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                m.cfg.ConnectTimeout,
		ConnectUsername:               m.cfg.Username,
		ConnectPassword:               []byte(m.cfg.Password),
		TlsCfg:                        &tls.Config{InsecureSkipVerify: m.cfg.InsecureSkipVerify},
		WillMessage: &paho.WillMessage{
			Topic:   m.StatusTopic(),
			Payload: []byte(StatusOffline),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: m.onConnectionUp,
		OnConnectError: func(err error) {
			m.log.Error(err, "MQTT connection failed, retrying")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: m.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				m.onPublishReceived,
			},
			OnClientError: func(err error) {
				m.log.Error(err, "MQTT client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				reason := ""
				if d.Properties != nil {
					reason = d.Properties.ReasonString
				}
				m.log.Info("MQTT server requested disconnect", "reason", reason)
			},
		},
	}

	m.log.Info("starting MQTT client", "broker", m.cfg.BrokerURL, "clientID", m.cfg.ClientID)
	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	m.mu.Lock()
	m.pub = cm
	m.mu.Unlock()

	m.publishLoop(ctx)

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.publish(disconnectCtx, m.StatusTopic(), true, []byte(StatusOffline))
	_ = cm.Disconnect(disconnectCtx)
	<-cm.Done()
	m.log.Info("MQTT client disconnected")
	return nil
}

// BeliefChanged implements panel.Sink. The newest state replaces any
// state not yet published.
func (m *MQTT) BeliefChanged(s panel.State) {
	m.mu.Lock()
	m.last = &s
	m.mu.Unlock()

	select {
	case <-m.updates:
	default:
	}
	select {
	case m.updates <- s:
	default:
	}
}

func (m *MQTT) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.updates:
			m.publishState(ctx, s)
		}
	}
}

func (m *MQTT) publishState(ctx context.Context, s panel.State) {
	payload, err := json.Marshal(s)
	if err != nil {
		m.log.Error(err, "encode state")
		return
	}
	m.publish(ctx, m.StateTopic(), true, payload)
}

func (m *MQTT) publish(ctx context.Context, topic string, retain bool, payload []byte) {
	m.mu.Lock()
	pub := m.pub
	m.mu.Unlock()
	if pub == nil {
		return
	}

	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Retain:  retain,
		Payload: payload,
	}); err != nil {
		m.log.V(1).Info("publish failed", "topic", topic, "error", err.Error())
	}
}

func (m *MQTT) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	m.log.Info("MQTT connection established")

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: m.SetFilter(), QoS: 1}},
	}); err != nil {
		m.log.Error(err, "subscribe failed", "topic", m.SetFilter())
	}

	m.publish(ctx, m.StatusTopic(), true, []byte(StatusOnline))

	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	if last != nil {
		m.publishState(ctx, *last)
	}
}

func (m *MQTT) onPublishReceived(p paho.PublishReceived) (bool, error) {
	topic := p.Packet.Topic
	if !topicsMatch(m.SetFilter(), topic) {
		m.log.V(1).Info("message on unhandled topic", "topic", topic)
		return true, nil
	}
	payload := append([]byte(nil), p.Packet.Payload...)
	go m.HandleMessage(context.Background(), topic, payload)
	return true, nil
}

// HandleMessage applies one intent message and publishes its Result.
// An intent arriving while another is in flight is not queued; its Result
// carries the controller's Busy as status 409.
func (m *MQTT) HandleMessage(ctx context.Context, topic string, payload []byte) Result {
	res := m.handle(ctx, topic, payload)

	body, err := json.Marshal(res)
	if err == nil {
		m.publish(ctx, m.ResultTopic(), false, body)
	}
	return res
}

func (m *MQTT) handle(ctx context.Context, topic string, payload []byte) Result {
	res := Result{Topic: topic}

	kind := IntentKind(topic[strings.LastIndex(topic, "/")+1:])
	intent, err := ParseIntent(kind, string(payload))
	if err != nil {
		res.Error = err.Error()
		res.Status = 400
		return res
	}
	res.Intent = intent.String()

	ctrl, err := m.provider.Controller()
	if err == nil {
		err = intent.Apply(ctx, ctrl)
	}

	res.Status = StatusCode(err)
	if err != nil {
		m.log.Info("intent failed", "intent", res.Intent, "error", err.Error())
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

// topicsMatch reports whether topic matches filter, honouring the + and #
// wildcards
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")
	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}
