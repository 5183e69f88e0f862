// Package server assembles the quote HTTP API and runs its lifecycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/transferhub/farequote/internal/health"
	"github.com/transferhub/farequote/internal/logger"
	imw "github.com/transferhub/farequote/internal/middleware"
	"github.com/transferhub/farequote/internal/observability"
	"github.com/transferhub/farequote/internal/pricing/calculator"
	"github.com/transferhub/farequote/internal/router"
)

type Server struct {
	calc      *calculator.Calculator
	estimator router.Estimator
	readiness map[string]func(context.Context) error
	log       zerolog.Logger
	now       func() time.Time
}

func New(calc *calculator.Calculator, estimator router.Estimator, readiness map[string]func(context.Context) error, log zerolog.Logger) *Server {
	return &Server{
		calc:      calc,
		estimator: estimator,
		readiness: readiness,
		log:       log,
		now:       time.Now,
	}
}

// WithClock pins the request clock for tests.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(imw.Recover(s.log))
	r.Use(imw.Logging(s.log))
	r.Use(imw.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(s.readiness))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/quote", s.handleQuote)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := router.ParseQuoteRequest(r, s.estimator, s.now().UTC())
	if err != nil {
		observability.ObserveQuote("none", "bad_request", time.Since(start).Seconds())
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	bd, err := s.calc.Calculate(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, calculator.ErrNoRegionCoverage),
		errors.Is(err, calculator.ErrNoPriceConfigured):
		observability.ObserveQuote("none", "unpriceable", time.Since(start).Seconds())
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	default:
		observability.ObserveQuote("none", "error", time.Since(start).Seconds())
		logger.FromContext(r.Context(), &s.log).Error().Err(err).Msg("quote failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	observability.ObserveQuote(string(bd.Method), "ok", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, bd)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves the handler until the context is cancelled, then shuts
// down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
