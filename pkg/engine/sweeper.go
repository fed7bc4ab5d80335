package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainpress/chainpress/pkg/persistence"
)

// Sweeper is the engine's clock: it periodically re-enqueues actions whose
// pause deadline passed and trims aged run history. Execution itself stays
// with the workers; the sweeper only schedules.
type Sweeper struct {
	store  persistence.Persistence
	logger *slog.Logger
}

func NewSweeper(store persistence.Persistence, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		logger: logger.With("module", "sweeper"),
	}
}

// Sweep returns an enqueue for every action that is due at the given time:
// unfinished, unlocked, past its pause deadline, not waiting on a human, and
// belonging to a live non-testing instance. Re-enqueueing an action that a
// worker picked up in the meantime is harmless; the claim guard drops the
// duplicate.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) ([]Enqueue, error) {
	due, err := s.store.DueActions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("loading due actions: %w", err)
	}

	enqueues := make([]Enqueue, 0, len(due))
	for _, action := range due {
		enqueues = append(enqueues, Enqueue{
			ActionID:   action.ID,
			InstanceID: action.InstanceID,
		})
	}

	if len(enqueues) > 0 {
		s.logger.InfoContext(ctx, "Sweep found due actions", "count", len(enqueues))
	}

	return enqueues, nil
}

// DeleteHistory removes finished instances older than the retention window,
// cascading to their actions. Runs with open actions are never touched.
func (s *Sweeper) DeleteHistory(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)

	removed, err := s.store.DeleteFinishedInstancesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting finished instances: %w", err)
	}

	if removed > 0 {
		s.logger.InfoContext(ctx, "Removed aged instances", "count", removed, "cutoff", cutoff)
	}

	return removed, nil
}
