// Package supervisor runs N independent slot loops, each restarting the
// simulator binary forever. Slots share nothing beyond the metrics exporter
// and the history store.
package supervisor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/simswarm/simswarm/internal/history"
	"github.com/simswarm/simswarm/internal/metrics"
	"github.com/simswarm/simswarm/internal/runner"
	"github.com/simswarm/simswarm/pkg/logging"
)

// DefaultRestartInterval bounds how fast a slot may restart its simulator.
// A binary that exits instantly must not spin the loop hot.
const DefaultRestartInterval = 5 * time.Second

// Config holds supervisor configuration
type Config struct {
	Slots           int
	RestartInterval time.Duration
}

// Supervisor owns the slot loops
type Supervisor struct {
	config   Config
	runner   *runner.Runner
	store    *history.Store    // optional
	exporter *metrics.Exporter // optional
	logger   *logging.Logger
}

// New creates a supervisor. store and exporter may be nil.
func New(config Config, r *runner.Runner, store *history.Store, exporter *metrics.Exporter, logger *logging.Logger) *Supervisor {
	if config.RestartInterval <= 0 {
		config.RestartInterval = DefaultRestartInterval
	}
	return &Supervisor{
		config:   config,
		runner:   r,
		store:    store,
		exporter: exporter,
		logger:   logger,
	}
}

// Run starts all slot loops and blocks until the context is cancelled and
// every in-flight attempt has drained.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Info("Starting supervision", map[string]interface{}{
		"slots":            s.config.Slots,
		"restart_interval": s.config.RestartInterval.String(),
	})

	var wg sync.WaitGroup
	for slot := 0; slot < s.config.Slots; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			s.slotLoop(ctx, slot)
		}(slot)
	}
	wg.Wait()

	s.logger.Info("All slots drained")
}

// slotLoop runs one slot: attempt, record, restart, forever. Failures and
// timeouts are absorbed; only context cancellation ends the loop.
func (s *Supervisor) slotLoop(ctx context.Context, slot int) {
	slotLogger := s.logger.WithField("slot", slot)
	limiter := rate.NewLimiter(rate.Every(s.config.RestartInterval), 1)

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			slotLogger.Info("Slot stopping", map[string]interface{}{"attempts": attempt - 1})
			return
		}

		if s.exporter != nil {
			s.exporter.RunStarted()
		}
		result, err := s.runner.RunOnce(ctx, slot)
		if s.exporter != nil {
			s.exporter.RunFinished()
		}

		if err != nil {
			slotLogger.Error("Run attempt bookkeeping failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
		}

		if result != nil {
			s.record(slotLogger, result, attempt)
		}

		if ctx.Err() != nil {
			slotLogger.Info("Slot stopping", map[string]interface{}{"attempts": attempt})
			return
		}

		if s.exporter != nil {
			s.exporter.RecordRestart()
		}
	}
}

func (s *Supervisor) record(slotLogger *logging.Logger, result *runner.Result, attempt int) {
	fields := map[string]interface{}{
		"run_id":   result.RunID,
		"attempt":  attempt,
		"outcome":  string(result.Outcome),
		"duration": result.Duration.Round(time.Millisecond).String(),
		"log":      result.LogPath,
	}

	switch result.Outcome {
	case runner.OutcomeSuccess:
		slotLogger.Info("Simulator run completed", fields)
	case runner.OutcomeTimeout:
		slotLogger.Warn("Simulator run timed out", fields)
	default:
		fields["exit_code"] = result.ExitCode
		slotLogger.Warn("Simulator run failed", fields)
	}

	if s.exporter != nil {
		s.exporter.RecordResult(result)
	}

	// History writes never interrupt supervision
	if s.store != nil {
		if err := s.store.RecordResult(result); err != nil {
			slotLogger.Error("Failed to record run history", map[string]interface{}{
				"run_id": result.RunID,
				"error":  err.Error(),
			})
		}
	}
}
