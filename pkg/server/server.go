// Package server exposes agent sessions over HTTP: a turn-start
// endpoint and a Server-Sent Events stream per turn, plus health and
// metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/coordinator"
	"github.com/bioagentlabs/bioagent/pkg/logger"
	"github.com/bioagentlabs/bioagent/pkg/stream"
)

// heartbeatInterval is how often an idle SSE stream emits a comment
// frame to keep intermediaries from closing the connection.
const heartbeatInterval = 15 * time.Second

// Server is the HTTP gateway.
type Server struct {
	cfg    *config.Config
	coord  *coordinator.Coordinator
	broker *stream.Broker
	log    *slog.Logger
}

// New creates a server around a coordinator and broker.
func New(cfg *config.Config, coord *coordinator.Coordinator, broker *stream.Broker) *Server {
	return &Server{
		cfg:    cfg,
		coord:  coord,
		broker: broker,
		log:    logger.Component("server"),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/stream/{turnID}", s.handleStream)
	})

	return r
}

// ListenAndServe blocks serving on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	TurnID string `json:"turn_id"`
}

// handleQuery starts a turn. The work runs in the background; the
// caller follows it on the stream endpoint.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	turnID := uuid.NewString()

	turnCtx := context.Background()
	cancel := context.CancelFunc(func() {})
	if s.cfg.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(turnCtx, s.cfg.TurnTimeout)
	}

	ctx, pub := s.broker.Open(turnCtx, turnID)
	go func() {
		defer cancel()
		s.runTurn(ctx, req.Query, pub)
	}()

	writeJSON(w, http.StatusAccepted, queryResponse{TurnID: turnID})
}

// runTurn executes one query and closes the stream with a terminal
// event.
func (s *Server) runTurn(ctx context.Context, query string, pub *stream.Publisher) {
	start := time.Now()

	answer, err := s.coord.Handle(ctx, query, pub)
	switch {
	case ctx.Err() != nil:
		pub.Close(stream.Disconnect())
	case err != nil:
		s.log.Error("turn failed", "turn", pub.TurnID(), "error", err)
		pub.Close(stream.ErrorEvent("turn failed", err.Error()))
	default:
		total := answer.Usage.InputTokens + answer.Usage.OutputTokens
		pub.Close(stream.Done(total, time.Since(start), pub.ToolsUsed()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleStream attaches the caller to a turn's event stream as SSE.
// Client disconnect cancels the turn.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	turnID := chi.URLParam(r, "turnID")

	events := s.broker.Subscribe(turnID)
	if events == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown turn"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.broker.Cancel(turnID)
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				s.broker.Cancel(turnID)
				return
			}
			flusher.Flush()

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				s.broker.Cancel(turnID)
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

// writeSSE renders one event in SSE framing. The data line carries the
// event's payload fields directly; the event name is the SSE event field.
func writeSSE(w http.ResponseWriter, ev stream.Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
