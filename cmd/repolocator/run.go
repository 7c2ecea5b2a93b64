package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/timzifer/repolocator/config"
	"github.com/timzifer/repolocator/internal/reload"
	"github.com/timzifer/repolocator/internal/tracing"
	"github.com/timzifer/repolocator/locator"
	"github.com/timzifer/repolocator/telemetry"
)

// session keeps one provider connected and feeds configuration changes into it.
type session struct {
	cfgPath   string
	cfg       *config.Config
	provider  *locator.Provider
	watcher   *reload.Watcher
	collector telemetry.Collector
	logger    zerolog.Logger

	// pending holds changed files whose reload has not succeeded yet.
	pending map[string]struct{}
}

func newSession(cfgPath string, cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector) (*session, error) {
	if collector == nil {
		collector = telemetry.Noop()
	}
	provider, err := newProvider(cfg, logger, collector)
	if err != nil {
		return nil, err
	}
	return &session{
		cfgPath:   cfgPath,
		cfg:       cfg,
		provider:  provider,
		watcher:   reload.NewWatcher(cfg),
		collector: collector,
		logger:    logger,
	}, nil
}

// tick applies pending configuration changes and makes sure the repository is
// connected. Failures are logged; the next tick retries.
func (s *session) tick(ctx context.Context) {
	if s.cfg.HotReload {
		s.reload()
	}
	if s.provider.Repository(ctx) == nil {
		s.logger.Warn().Err(s.provider.Err()).Str("selector", s.cfg.Repository.Selector).Msg("repository unavailable")
	}
}

// reload applies changed configuration files. A change whose configuration
// fails to load stays pending and is retried on the next tick.
func (s *session) reload() {
	for _, file := range s.watcher.Check() {
		if s.pending == nil {
			s.pending = make(map[string]struct{})
		}
		s.pending[file] = struct{}{}
	}
	if len(s.pending) == 0 {
		return
	}
	newCfg, err := config.Load(s.cfgPath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to reload configuration")
		return
	}
	changes := make([]string, 0, len(s.pending))
	for file := range s.pending {
		changes = append(changes, file)
	}
	sort.Strings(changes)
	s.pending = nil

	if newCfg.Repository.Catalog != s.cfg.Repository.Catalog {
		s.provider.SetSource(config.NewCatalog(newCfg.Repository.Catalog))
	}
	s.provider.Apply(settingsFrom(newCfg))
	s.watcher.Update(newCfg)
	s.cfg = newCfg
	for _, file := range changes {
		s.collector.IncHotReload(file)
	}
	s.logger.Info().Strs("files", changes).Msg("configuration reloaded")
}

func (s *session) close() error {
	return s.provider.Close()
}

func executeRun(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger, cleanup, err := setupLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	shutdown, err := tracing.Setup(cfg.Telemetry.Tracing, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
		collector = telemetry.Noop()
	}

	if cfg.Metrics.Listen != "" {
		stop := serveMetrics(cfg.Metrics.Listen, logger)
		defer stop()
	}

	sess, err := newSession(cfgPath, cfg, logger, collector)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.close(); err != nil {
			logger.Error().Err(err).Msg("failed to release repository")
		}
	}()

	sess.tick(ctx)
	ticker := time.NewTicker(cfg.ReloadEvery())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sess.tick(ctx)
		}
	}
}

func serveMetrics(addr string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("listen", addr).Msg("metrics endpoint stopped")
		}
	}()
	logger.Info().Str("listen", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to shut down metrics endpoint")
		}
	}
}
