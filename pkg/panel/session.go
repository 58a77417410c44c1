// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/LeTelescope/fffpctl/pkg/correlator"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

// Session binds a Controller to an open transport for the life of one link.
//
// The write half is serialised so lines never interleave. A reader
// goroutine feeds inbound lines to the correlator. A recurring task ticks
// the correlator deadline and polls the cover state; it is stopped when the
// link is lost or the Session is closed.
type Session struct {
	conn io.ReadWriteCloser
	corr *correlator.Correlator
	ctrl *Controller
	opts options
	log  logr.Logger

	wmu sync.Mutex

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	err       error
	wg        sync.WaitGroup
	polling   atomic.Bool
}

// Open starts a Session over conn
func Open(conn io.ReadWriteCloser, opts ...Option) *Session {
	o := newOptions(opts)
	s := &Session{
		conn: conn,
		opts: o,
		log:  o.log.WithName("session"),
		done: make(chan struct{}),
	}

	corrOpts := []correlator.Option{
		correlator.WithClock(o.now),
		correlator.WithLogger(o.log.WithName("correlator")),
		correlator.WithErrorAttribution(o.attribution),
	}
	if o.observer != nil {
		corrOpts = append(corrOpts, correlator.WithObserver(o.observer))
	}
	s.corr = correlator.New(correlator.LineWriterFunc(s.WriteLine), corrOpts...)
	s.ctrl = newController(s.corr, o)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.readLoop()
	go s.tickLoop(ctx)

	s.log.V(1).Info("session opened", "tick", o.tickInterval, "poll", o.pollInterval)
	return s
}

// Controller returns the session's controller
func (s *Session) Controller() *Controller {
	return s.ctrl
}

// Done is closed when the link is lost or the Session is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, or nil while it is running
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Connected reports whether the link is still up
func (s *Session) Connected() bool {
	return s.Err() == nil
}

// Close stops the recurring task, closes the transport, and waits for the
// session goroutines. A pending request resolves as link lost.
func (s *Session) Close() error {
	s.teardown(ErrSessionClosed)
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

// WriteLine writes one line followed by the terminator. Lines from
// concurrent callers never interleave.
func (s *Session) WriteLine(line string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	select {
	case <-s.done:
		return ErrLinkLost
	default:
	}

	if s.opts.tap != nil {
		s.opts.tap(fffp.Outbound, line, s.opts.now())
	}
	_, err := s.conn.Write(fffp.AppendTerminator(line))
	return err
}

func (s *Session) readLoop() {
	defer s.wg.Done()

	decoder := fffp.NewLineDecoder()
	buf := make([]byte, 256)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n], s.handleLine)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: %v", ErrLinkLost, err)
			}
			s.teardown(err)
			return
		}
	}
}

func (s *Session) handleLine(line string, err error) {
	if err != nil {
		s.log.V(1).Info("dropping undecodable input", "error", err.Error())
		if s.opts.observer != nil {
			s.opts.observer.LineDiscarded("", correlator.DiscardMalformed)
		}
		return
	}
	if s.opts.tap != nil {
		s.opts.tap(fffp.Inbound, line, s.opts.now())
	}
	s.corr.OnLine(line)
}

func (s *Session) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.tickInterval)
	defer ticker.Stop()

	var lastPoll time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.opts.now()
			s.corr.Tick(now)

			if s.opts.pollInterval > 0 && now.Sub(lastPoll) >= s.opts.pollInterval {
				lastPoll = now
				s.poll(ctx)
			}
		}
	}
}

// poll refreshes the cover state in the background so the tick keeps
// running while the query waits for its reply
func (s *Session) poll(ctx context.Context) {
	if !s.opts.pollAlways && s.ctrl.CapState() != CapMoving {
		return
	}
	if _, pending := s.corr.Pending(); pending {
		return
	}
	if !s.polling.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.polling.Store(false)

		err := s.ctrl.RefreshCap(ctx)
		switch {
		case err == nil, errors.Is(err, ErrBusy), errors.Is(err, context.Canceled):
		default:
			s.log.V(1).Info("cover state poll failed", "error", err.Error())
		}
	}()
}

func (s *Session) teardown(cause error) {
	s.closeOnce.Do(func() {
		s.cancel()
		s.err = cause
		close(s.done)
		s.corr.LinkLost()
		s.ctrl.Disconnected()
		if errors.Is(cause, ErrSessionClosed) {
			s.log.V(1).Info("session closed")
		} else {
			s.log.Info("link lost", "error", cause.Error())
		}
	})
}
