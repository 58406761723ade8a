// Package scheduler periodically brings every watched target up to the
// chain head through the syncer.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kslji/trackUserAddress/internal/alert"
	"github.com/kslji/trackUserAddress/internal/domain/model"
	"github.com/kslji/trackUserAddress/internal/failure"
	"github.com/kslji/trackUserAddress/internal/metrics"
)

// Synchronizer is satisfied by *syncer.Syncer.
type Synchronizer interface {
	Synchronize(ctx context.Context, req model.SyncRequest) ([]model.Transfer, error)
}

// Target is one watched sync key.
type Target struct {
	Address   string
	Category  model.Category
	Direction model.Direction
}

func (t Target) String() string {
	return t.Address + "|" + t.Category.String() + "|" + t.Direction.String()
}

// Targets builds one target per address, all sharing category and direction.
func Targets(addresses []string, category model.Category, direction model.Direction) []Target {
	targets := make([]Target, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		targets = append(targets, Target{Address: addr, Category: category, Direction: direction})
	}
	return targets
}

type Scheduler struct {
	syncer   Synchronizer
	targets  []Target
	health   []*TargetHealth
	interval time.Duration
	alerter  alert.Alerter
	logger   *slog.Logger
}

type Option func(*Scheduler)

// WithAlerter sends UNHEALTHY and RECOVERY alerts on target health transitions.
func WithAlerter(a alert.Alerter) Option {
	return func(s *Scheduler) {
		if a != nil {
			s.alerter = a
		}
	}
}

func New(syncer Synchronizer, targets []Target, interval time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	health := make([]*TargetHealth, len(targets))
	for i, target := range targets {
		health[i] = NewTargetHealth(target)
	}
	s := &Scheduler{
		syncer:   syncer,
		targets:  targets,
		health:   health,
		interval: interval,
		alerter:  alert.NoopAlerter{},
		logger:   logger.With("component", "scheduler"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.targets) == 0 {
		s.logger.Info("no watched targets, scheduler idle")
		<-ctx.Done()
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.interval)
	}

	s.logger.Info("scheduler started", "targets", len(s.targets), "interval", s.interval.String())
	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "cause", "context_done")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick syncs every target to the latest block, sequentially, and returns the
// number of failed targets. A failing target does not stop the others.
func (s *Scheduler) Tick(ctx context.Context) int {
	metrics.SchedulerTicksTotal.Inc()
	failed := 0
	for i, target := range s.targets {
		if ctx.Err() != nil {
			return failed
		}
		if err := s.syncTarget(ctx, target, s.health[i]); err != nil {
			failed++
		}
	}
	return failed
}

func (s *Scheduler) syncTarget(ctx context.Context, target Target, health *TargetHealth) error {
	start := time.Now()
	transfers, err := s.syncer.Synchronize(ctx, model.SyncRequest{
		Address:   target.Address,
		Category:  target.Category,
		Direction: target.Direction,
		FromBlock: -1,
		ToBlock:   model.BlockLatest,
	})
	elapsed := time.Since(start)

	if err != nil {
		class := failure.Classify(err)
		if class == failure.ClassCanceled && ctx.Err() != nil {
			return err
		}
		metrics.SchedulerTargetErrors.WithLabelValues(target.Category.String(), target.Direction.String()).Inc()
		if health.RecordFailure(err) {
			s.logger.Error("target became unhealthy", "target", target.String(), "error", err)
			s.notify(ctx, alert.Alert{
				Type:    alert.AlertTypeUnhealthy,
				Target:  target.String(),
				Title:   "Target sync unhealthy",
				Message: fmt.Sprintf("%d consecutive sync failures", health.Snapshot().ConsecutiveFailures),
				Fields:  map[string]string{"class": string(class), "last_error": err.Error()},
			})
		}
		s.logger.Warn("target sync failed", "target", target.String(), "class", class, "error", err)
		return err
	}

	if health.RecordSuccess(elapsed) {
		s.logger.Info("target recovered", "target", target.String())
		s.notify(ctx, alert.Alert{
			Type:    alert.AlertTypeRecovery,
			Target:  target.String(),
			Title:   "Target sync recovered",
			Message: fmt.Sprintf("synced %d transfers in %s", len(transfers), elapsed),
		})
	}
	s.logger.Info("target synced", "target", target.String(), "transfers", len(transfers), "elapsed", elapsed.String())
	return nil
}

func (s *Scheduler) notify(ctx context.Context, a alert.Alert) {
	if err := s.alerter.Send(ctx, a); err != nil {
		s.logger.Warn("alert delivery failed", "target", a.Target, "type", a.Type, "error", err)
	}
}

// Health returns a snapshot per target in configuration order.
func (s *Scheduler) Health() []HealthSnapshot {
	out := make([]HealthSnapshot, len(s.health))
	for i, h := range s.health {
		out[i] = h.Snapshot()
	}
	return out
}

// Healthy reports false when any target is UNHEALTHY.
func (s *Scheduler) Healthy() bool {
	for _, h := range s.health {
		if h.Status() == HealthStatusUnhealthy {
			return false
		}
	}
	return true
}
