// Package manager runs the Experiment Manager service: the signal intake
// listener, the position monitor loop and the portfolio snapshot loop.
package manager

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wavesens/internal/config"
	"wavesens/internal/db"
	"wavesens/internal/portfolio"
)

// Service ties the trading engine to its three concurrent loops
type Service struct {
	engine   *portfolio.Engine
	listener *db.Listener
	cfg      config.PortfolioConfig
	log      zerolog.Logger
}

// New wires the intake listener to the engine. The listener sweeps
// unconsumed signals on every (re)connect so notifications lost while the
// service was down are still admitted.
func New(database *db.DB, engine *portfolio.Engine, cfg config.PortfolioConfig, log zerolog.Logger) *Service {
	listener := db.NewListener(database.URL(), db.ChannelTradingSignals, log)
	listener.Handle = engine.HandleSignal
	listener.Sweep = engine.Sweep

	return &Service{
		engine:   engine,
		listener: listener,
		cfg:      cfg,
		log:      log,
	}
}

// Run seeds the ledger if needed, then blocks until the context is
// cancelled or one of the loops fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.engine.EnsureLedger(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.listener.Run(ctx) })
	g.Go(func() error { return s.monitorLoop(ctx) })
	g.Go(func() error { return s.snapshotLoop(ctx) })
	g.Go(func() error { return s.statsLoop(ctx) })

	s.log.Info().
		Dur("monitor_interval", s.cfg.PositionCheckInterval()).
		Dur("snapshot_interval", s.cfg.SnapshotInterval()).
		Msg("Experiment manager started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// monitorLoop applies the exit rules to every open position on a fixed
// cadence. Cycle errors are logged and retried on the next tick.
func (s *Service) monitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PositionCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.engine.MonitorCycle(ctx); err != nil {
				s.log.Error().Err(err).Msg("Monitor cycle failed")
			}
		}
	}
}

// snapshotLoop appends a portfolio snapshot row on a fixed cadence
func (s *Service) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SnapshotInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.engine.Snapshot(ctx); err != nil {
				s.log.Error().Err(err).Msg("Snapshot failed")
			}
		}
	}
}

// statsLoop logs the engine's activity counters once per hour
func (s *Service) statsLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.engine.LogStats(ctx)
		}
	}
}
