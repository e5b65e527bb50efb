// Package server exposes the read-only HTTP API plus the operational
// endpoints (health, readiness, metrics).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"LeverPool/internal/observability"
	"LeverPool/internal/query"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	http    *http.Server
	log     zerolog.Logger
	metrics *observability.Metrics
	queries *query.Service
}

func New(addr string, queries *query.Service, health *observability.HealthChecker, metrics *observability.Metrics) *Server {
	s := &Server{
		log:     observability.NewLogger("http"),
		metrics: metrics,
		queries: queries,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", health.LivenessHandler)
	r.Get("/readyz", health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/reserves", s.handleReserves)
		r.Get("/reserves/{asset}", s.handleReserve)
		r.Get("/reserves/{asset}/history", s.handleRateHistory)
		r.Get("/users/{user}", s.handleAccount)
		r.Get("/users/{user}/events", s.handleUserEvents)
		r.Get("/positions/{id}", s.handlePosition)
		r.Get("/traders/{trader}/positions", s.handleTraderPositions)
		r.Get("/events/recent", s.handleRecentEvents)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleReserves(w http.ResponseWriter, r *http.Request) {
	defer s.observe("reserves", time.Now())
	s.writeJSON(w, "reserves", http.StatusOK, s.queries.Reserves())
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	defer s.observe("reserve", time.Now())
	resp, err := s.queries.Reserve(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, "reserve", http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, "reserve", http.StatusOK, resp)
}

func (s *Server) handleRateHistory(w http.ResponseWriter, r *http.Request) {
	defer s.observe("rate_history", time.Now())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.writeJSON(w, "rate_history", http.StatusOK, s.queries.RateHistory(chi.URLParam(r, "asset"), limit))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	defer s.observe("account", time.Now())
	resp, err := s.queries.Account(chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, "account", http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, "account", http.StatusOK, resp)
}

func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	defer s.observe("user_events", time.Now())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	before, _ := strconv.ParseUint(r.URL.Query().Get("before"), 10, 64)

	resp, err := s.queries.EventHistory(r.Context(), chi.URLParam(r, "user"), limit, before)
	if errors.Is(err, query.ErrNoEventLog) {
		s.writeError(w, "user_events", http.StatusNotImplemented, err)
		return
	}
	if err != nil {
		s.writeError(w, "user_events", http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, "user_events", http.StatusOK, resp)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	defer s.observe("position", time.Now())
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, "position", http.StatusBadRequest, errors.New("invalid position id"))
		return
	}
	resp, err := s.queries.Position(id)
	if err != nil {
		s.writeError(w, "position", http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, "position", http.StatusOK, resp)
}

func (s *Server) handleTraderPositions(w http.ResponseWriter, r *http.Request) {
	defer s.observe("trader_positions", time.Now())
	resp, err := s.queries.TraderPositions(chi.URLParam(r, "trader"))
	if err != nil {
		s.writeError(w, "trader_positions", http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, "trader_positions", http.StatusOK, resp)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	defer s.observe("recent_events", time.Now())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.writeJSON(w, "recent_events", http.StatusOK, s.queries.RecentEvents(limit))
}

func (s *Server) observe(endpoint string, start time.Time) {
	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, code int, v any) {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Str("endpoint", endpoint).Msg("response encoding failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, code int, err error) {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
