// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LeTelescope/fffpctl/internal/log"
	"github.com/LeTelescope/fffpctl/pkg/panel"
)

const (
	reconnectBackoff    = 1 * time.Second
	maxReconnectBackoff = 30 * time.Second
)

// openSession connects, starts a panel session and confirms the link with
// the handshake. The connection lives until ctx is done or the session is
// closed.
func openSession(ctx context.Context, extra ...panel.Option) (*panel.Session, string, error) {
	opts, err := cfg.PanelOptions()
	if err != nil {
		return nil, "", err
	}

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return nil, "", err
	}

	opts = append(opts,
		panel.WithSimulation(simulate),
		panel.WithLogger(log.WithName("panel").Logr()),
	)
	s := panel.Open(conn, append(opts, extra...)...)

	if err := s.Controller().Handshake(ctx); err != nil {
		s.Close()
		return nil, "", fmt.Errorf("%s: %w", connInfo, err)
	}
	log.Info("session open", "connection", connInfo)
	return s, connInfo, nil
}

// withRetries runs op until it succeeds, fails with a non-retryable error,
// or has been retried retries times
func withRetries(ctx context.Context, retries int, op func(context.Context) error) error {
	delay := 250 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil || !panel.IsRetryable(err) || attempt >= retries {
			return err
		}

		log.Info("retrying", "attempt", attempt+1, "of", retries, "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

//////////////////////////////////////////////////////////////
// Session manager
//////////////////////////////////////////////////////////////

// sessionManager keeps a session open, reconnecting with exponential
// backoff when the link drops
type sessionManager struct {
	extra []panel.Option

	// onUp and onDown are called from run's goroutine
	onUp   func(connInfo string)
	onDown func(err error)

	mu       sync.RWMutex
	session  *panel.Session
	connInfo string
}

// Controller returns the controller of the open session
func (sm *sessionManager) Controller() (*panel.Controller, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.session == nil || !sm.session.Connected() {
		return nil, panel.ErrNotConnected
	}
	return sm.session.Controller(), nil
}

func (sm *sessionManager) setSession(s *panel.Session, connInfo string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.session = s
	sm.connInfo = connInfo
}

// run blocks until ctx is done
func (sm *sessionManager) run(ctx context.Context) error {
	backoff := reconnectBackoff

	for {
		s, connInfo, err := openSession(ctx, sm.extra...)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("connect failed", "error", err.Error(), "retry_in", backoff)
			if sm.onDown != nil {
				sm.onDown(err)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxReconnectBackoff {
				backoff = maxReconnectBackoff
			}
			continue
		}

		backoff = reconnectBackoff
		sm.setSession(s, connInfo)
		if sm.onUp != nil {
			sm.onUp(connInfo)
		}

		select {
		case <-ctx.Done():
			s.Close()
			sm.setSession(nil, "")
			return nil
		case <-s.Done():
		}

		sm.setSession(nil, "")
		log.Warn("connection lost", "connection", connInfo, "error", fmt.Sprint(s.Err()))
		if sm.onDown != nil {
			sm.onDown(s.Err())
		}
		s.Close()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}
