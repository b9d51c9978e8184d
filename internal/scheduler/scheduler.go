// Package scheduler drives the periodic jobs: scan cycles, risk
// sweeps, agent heartbeats and the nightly optimization run.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/agents"
	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
	"github.com/ualgo/engine/internal/orchestrator"
)

const (
	nightlySpec       = "0 0 * * *"
	defaultStrategyID = "default"
	defaultLookback   = 30
)

// Scanner runs one scan cycle per symbol
type Scanner interface {
	RunScanAll(ctx context.Context, symbols []string, strategyID string) []*orchestrator.CycleResult
}

// RiskChecker evaluates portfolio posture; a nil proposal checks the
// portfolio alone.
type RiskChecker interface {
	Analyze(ctx context.Context, symbol string, proposed *agents.ProposedSignal) (*agents.RiskResult, error)
}

// Optimizer runs the nightly performance review
type Optimizer interface {
	RunOptimization(ctx context.Context, strategyID string, lookbackDays int) (*agents.OptimizationResult, error)
}

// Scheduler registers the recurring jobs on a UTC cron and runs them
// with panic recovery. The scan job is overlap-skipping: a tick that
// fires while the previous scan is still running is dropped.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	scanner Scanner
	risk    RiskChecker
	quant   Optimizer
	bus     *bus.Bus

	symbols []string

	scanEvery      time.Duration
	riskEvery      time.Duration
	heartbeatEvery time.Duration

	heartbeatNames []string
	heartbeats     map[string]func(context.Context) error

	scanRunning atomic.Bool
}

// New creates the scheduler with cadences from config
func New(scanner Scanner, risk RiskChecker, quant Optimizer, b *bus.Bus, trading config.TradingConfig, sched config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:           cron.New(cron.WithLocation(time.UTC)),
		logger:         config.NewLogger("scheduler"),
		scanner:        scanner,
		risk:           risk,
		quant:          quant,
		bus:            b,
		symbols:        trading.Symbols,
		scanEvery:      sched.ScanInterval(),
		riskEvery:      sched.RiskCheckInterval(),
		heartbeatEvery: sched.HeartbeatInterval(),
		heartbeats:     make(map[string]func(context.Context) error),
	}
}

// RegisterHeartbeat adds a liveness reporter to the heartbeat sweep.
// Registration order is preserved.
func (s *Scheduler) RegisterHeartbeat(name string, fn func(context.Context) error) {
	if _, ok := s.heartbeats[name]; !ok {
		s.heartbeatNames = append(s.heartbeatNames, name)
	}
	s.heartbeats[name] = fn
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"scan", every(s.scanEvery), s.runScan},
		{"risk_sweep", every(s.riskEvery), s.runRiskSweep},
		{"heartbeat", every(s.heartbeatEvery), s.runHeartbeats},
		{"optimize", nightlySpec, s.runOptimization},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.schedule, s.recovered(job.name, job.run)); err != nil {
			return fmt.Errorf("failed to register %s job: %w", job.name, err)
		}
		s.logger.Info().Str("job", job.name).Str("schedule", job.schedule).Msg("Job registered")
	}

	s.cron.Start()
	s.logger.Info().Int("symbols", len(s.symbols)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// recovered wraps a job so a panic is logged instead of killing the
// cron goroutine.
func (s *Scheduler) recovered(name string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Str("job", name).Msg("Job panicked")
			}
		}()
		fn()
	}
}

func (s *Scheduler) runScan() {
	if !s.scanRunning.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("Previous scan still running, skipping tick")
		return
	}
	defer s.scanRunning.Store(false)

	results := s.scanner.RunScanAll(context.Background(), s.symbols, defaultStrategyID)

	executed := 0
	for _, res := range results {
		if res.Action == orchestrator.ActionExecute {
			executed++
		}
	}
	s.logger.Info().Int("symbols", len(results)).Int("executed", executed).Msg("Scan sweep finished")
}

// runRiskSweep checks portfolio posture per symbol and raises
// risk.alert for any flagged condition.
func (s *Scheduler) runRiskSweep() {
	ctx := context.Background()
	for _, symbol := range s.symbols {
		res, err := s.risk.Analyze(ctx, symbol, nil)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Risk sweep failed")
			continue
		}
		if len(res.Flags) == 0 {
			continue
		}
		if err := s.bus.Broadcast("scheduler", "risk.alert", map[string]any{
			"symbol":      symbol,
			"flags":       res.Flags,
			"risk_score":  res.RiskScore,
			"kill_switch": res.KillSwitchActive,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to broadcast risk alert")
		}
	}
}

func (s *Scheduler) runHeartbeats() {
	ctx := context.Background()
	for _, name := range s.heartbeatNames {
		if err := s.heartbeats[name](ctx); err != nil {
			s.logger.Warn().Err(err).Str("agent", name).Msg("Heartbeat failed")
		}
	}
}

func (s *Scheduler) runOptimization() {
	start := time.Now()
	res, err := s.quant.RunOptimization(context.Background(), defaultStrategyID, defaultLookback)
	if err != nil {
		s.logger.Error().Err(err).Msg("Nightly optimization failed")
		return
	}
	s.logger.Info().
		Str("regime", res.Regime).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Nightly optimization finished")
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
