package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catch-forecast/internal/api"
	"catch-forecast/internal/cfg"
	"catch-forecast/internal/metrics"
	"catch-forecast/internal/ml"
	"catch-forecast/internal/records"
	"catch-forecast/internal/service"
	"catch-forecast/internal/storage"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setLogLevel(c.LogLevel)

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	clock := clockwork.NewRealClock()

	source, closeSource, err := storage.Open(c.DataPath, c.LedgerCSV, c.LedgerURL, c.LedgerTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("ledger source unavailable")
	}
	defer closeSource()

	manager := initializeModel(c, mw, clock)

	svc := service.New(service.Config{
		Species:    c.TargetSpecies,
		Source:     source,
		Predictor:  manager,
		Normalizer: records.NewNormalizer(mw),
		Clock:      clock,
		Metrics:    mw,
	})

	server := api.NewServer(svc, api.Options{
		Port:           c.Port,
		AllowedOrigins: c.AllowedOrigins,
		RateLimit:      c.RateLimit,
		RequestTimeout: c.RequestTimeout,
		Gatherer:       prometheus.DefaultGatherer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("forecast API server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, server)
}

func setLogLevel(level string) {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
}

// initializeModel loads the newest artifact, or the fallback model when
// none is usable.
func initializeModel(c cfg.Settings, mw *metrics.MetricsWrapper, clock clockwork.Clock) *ml.Manager {
	manager := ml.NewManager(ml.Config{
		Dir:     c.ModelsDir,
		Prefix:  c.ArtifactPrefix,
		Kind:    c.ModelKind,
		Params:  c.Hyperparameters,
		Keep:    c.KeepArtifacts,
		Clock:   clock,
		Metrics: mw,
	})
	if err := manager.LoadOrFallback(); err != nil {
		log.Error().Err(err).Msg("no model available, predictions disabled")
		return manager
	}

	info := manager.Info()
	log.Info().
		Str("kind", string(info.Kind)).
		Str("state", info.State).
		Str("artifact", info.ArtifactPath).
		Bool("degraded", info.Degraded).
		Msg("model ready")
	return manager
}

// waitForShutdown waits for shutdown signals and drains the HTTP server
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, server *api.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return
	}
	log.Info().Msg("server stopped")
}
