// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 LeTelescope

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"github.com/LeTelescope/fffpctl/pkg/panel"
)

// StateBody is the JSON shape of GET /api/v1/state and every successful
// intent
type StateBody struct {
	Connected     bool `json:"connected"`
	MaxBrightness int  `json:"max_brightness"`
	panel.State
}

// Server is the REST front end of a panel
type Server struct {
	server   *http.Server
	provider Provider
	log      logr.Logger
}

// NewServer builds the router. metrics may be nil.
func NewServer(addr string, provider Provider, metrics http.Handler, log logr.Logger) *Server {
	s := &Server{provider: provider, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/brightness", s.intentHandler(parseBrightness)).Methods(http.MethodPut)
	api.HandleFunc("/light", s.intentHandler(parseLight)).Methods(http.MethodPut)
	api.HandleFunc("/cap/{action:park|unpark}", s.intentHandler(parseCap)).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.intentHandler(parseRefresh)).Methods(http.MethodPost)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("starting HTTP server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

//////////////////////////////////////////////////////////////
// Handlers
//////////////////////////////////////////////////////////////

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	ctrl, err := s.provider.Controller()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeState(w, ctrl)
}

func parseBrightness(r *http.Request) (Intent, error) {
	var body struct {
		Level *int `json:"level"`
	}
	if err := decodeBody(r, &body); err != nil {
		return Intent{}, err
	}
	if body.Level == nil {
		return Intent{}, errors.New(`missing "level"`)
	}
	return Intent{Kind: IntentBrightness, Level: *body.Level}, nil
}

func parseLight(r *http.Request) (Intent, error) {
	var body struct {
		On *bool `json:"on"`
	}
	if err := decodeBody(r, &body); err != nil {
		return Intent{}, err
	}
	if body.On == nil {
		return Intent{}, errors.New(`missing "on"`)
	}
	return Intent{Kind: IntentLight, On: *body.On}, nil
}

func parseCap(r *http.Request) (Intent, error) {
	return ParseIntent(IntentCap, mux.Vars(r)["action"])
}

func parseRefresh(*http.Request) (Intent, error) {
	return Intent{Kind: IntentRefresh}, nil
}

// intentHandler parses the request, applies the intent and answers with
// the resulting state
func (s *Server) intentHandler(parse func(*http.Request) (Intent, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		intent, err := parse(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error()})
			return
		}

		ctrl, err := s.provider.Controller()
		if err != nil {
			s.writeError(w, err)
			return
		}

		if err := intent.Apply(r.Context(), ctrl); err != nil {
			s.log.Info("intent failed", "intent", intent.String(), "error", err.Error())
			s.writeError(w, err)
			return
		}
		s.log.V(1).Info("intent applied", "intent", intent.String())
		s.writeState(w, ctrl)
	}
}

func (s *Server) writeState(w http.ResponseWriter, ctrl *panel.Controller) {
	writeJSON(w, http.StatusOK, StateBody{
		Connected:     true,
		MaxBrightness: ctrl.MaxBrightness(),
		State:         ctrl.Belief(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusCode(err), errorBody(err))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
