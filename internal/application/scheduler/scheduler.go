// Package scheduler drives the periodic work: liveness scans, delivery
// retries, claim advancement and response-token cleanup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/application/claim"
	"github.com/go-dead-mans-switch/internal/application/liveness"
	"go.uber.org/atomic"
)

// ErrTickInProgress is returned when Tick is called while another tick runs.
var ErrTickInProgress = errors.New("tick already in progress")

// Report describes one tick.
type Report struct {
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Liveness    liveness.ScanReport `json:"liveness"`
	Redelivered int                 `json:"redelivered"`
	Claims      claim.AdvanceReport `json:"claims"`
	TokensSwept int                 `json:"tokens_swept"`
}

type monitor interface {
	Scan(ctx context.Context) (liveness.ScanReport, error)
	RetryUndelivered(ctx context.Context) (int, error)
}

type claimAdvancer interface {
	AdvanceAll(ctx context.Context, now time.Time) (claim.AdvanceReport, error)
}

type tokenSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	monitor  monitor
	claims   claimAdvancer
	tokens   tokenSweeper
	clock    clock.Clock
	interval time.Duration
	running  atomic.Bool
}

type Deps struct {
	Monitor  monitor
	Claims   claimAdvancer
	Tokens   tokenSweeper // optional
	Clock    clock.Clock
	Interval time.Duration
}

func New(deps Deps) *Scheduler {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		monitor:  deps.Monitor,
		claims:   deps.Claims,
		tokens:   deps.Tokens,
		clock:    clk,
		interval: interval,
	}
}

// Tick runs every job once. Only one tick runs at a time; a job that fails is
// logged and the remaining jobs still run.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, ErrTickInProgress
	}
	defer s.running.Store(false)

	var errs []error
	report := Report{StartedAt: s.clock.Now().UTC()}

	scan, err := s.monitor.Scan(ctx)
	report.Liveness = scan
	if err != nil {
		errs = append(errs, fmt.Errorf("liveness scan: %w", err))
	}

	if report.Redelivered, err = s.monitor.RetryUndelivered(ctx); err != nil {
		errs = append(errs, fmt.Errorf("retry undelivered: %w", err))
	}

	if report.Claims, err = s.claims.AdvanceAll(ctx, s.clock.Now()); err != nil {
		errs = append(errs, fmt.Errorf("advance claims: %w", err))
	}

	if s.tokens != nil {
		if report.TokensSwept, err = s.tokens.SweepExpired(ctx, s.clock.Now()); err != nil {
			errs = append(errs, fmt.Errorf("sweep tokens: %w", err))
		}
	}

	report.FinishedAt = s.clock.Now().UTC()
	for _, e := range errs {
		slog.Error("tick job failed", "err", e)
	}
	slog.Info("tick finished",
		"scanned", report.Liveness.Scanned,
		"triggered", report.Liveness.Triggered,
		"redelivered", report.Redelivered,
		"claims_advanced", report.Claims.Advanced,
		"tokens_swept", report.TokensSwept,
	)
	return report, errors.Join(errs...)
}

// Running reports whether a tick is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Run ticks every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()
	slog.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); errors.Is(err, ErrTickInProgress) {
				slog.Warn("skipping tick, previous tick still running")
			}
		}
	}
}
