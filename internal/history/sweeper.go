package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper deletes conversations past the retention window on a cron
// schedule. A zero retention disables sweeping entirely.
type Sweeper struct {
	store     *Store
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewSweeper creates a retention sweeper. schedule is a standard 5-field
// cron spec.
func NewSweeper(store *Store, retention time.Duration, schedule string, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		store:     store,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
	if retention <= 0 {
		return s, nil
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduled sweeping. No-op when retention is disabled.
func (s *Sweeper) Start() {
	if s.retention <= 0 {
		return
	}
	s.cron.Start()
	s.logger.Info("retention sweeper started", slog.Duration("retention", s.retention))
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// sweep runs one retention pass.
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	removed, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		s.logger.Info("retention sweep removed conversations",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
}
