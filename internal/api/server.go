// Package api exposes the forecast service over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"catch-forecast/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Service is the query boundary served by the API.
type Service interface {
	Historical(ctx context.Context, q service.HistoricalQuery) service.HistoricalResult
	VisitorAverages(ctx context.Context) service.VisitorAveragesResult
	VisitorEstimate(ctx context.Context, date, weather string) service.VisitorEstimateResult
	Predict(ctx context.Context, req service.PredictRequest) service.PredictResult
	Status(ctx context.Context) service.StatusResult
}

// Options tune the HTTP surface.
type Options struct {
	Port           int
	AllowedOrigins []string
	RateLimit      int // requests per minute per IP on /api, 0 disables
	RequestTimeout time.Duration
	Gatherer       prometheus.Gatherer
}

// Server serves the forecast API.
type Server struct {
	svc    Service
	opts   Options
	server *http.Server
}

// NewServer creates a new HTTP server for the forecast API.
func NewServer(svc Service, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	s := &Server{svc: svc, opts: opts}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting forecast API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
