package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/post-scraper/internal/progress"
	"github.com/JakeFAU/post-scraper/internal/store"
)

// StoreSink persists run milestones via a store.RunRepository. Poll events
// are collapsed to the highest attempt per run before writing.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards the batch to the repository. It respects ctx deadlines and
// returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	// Polls of one run collapse to the highest attempt. A pending count is
	// written before that run's terminal event and the rest at batch end.
	polls := make(map[uuid.UUID]int)
	order := make([]uuid.UUID, 0)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunPoll:
			if _, seen := polls[runID]; !seen {
				order = append(order, runID)
			}
			polls[runID] = max(polls[runID], evt.Attempt)
		case progress.StageRunDone, progress.StageRunError:
			if err := s.flushPolls(ctx, polls, runID); err != nil {
				return err
			}
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		default:
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		}
	}

	for _, runID := range order {
		if err := s.flushPolls(ctx, polls, runID); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) flushPolls(ctx context.Context, polls map[uuid.UUID]int, runID uuid.UUID) error {
	attempt, ok := polls[runID]
	if !ok {
		return nil
	}
	delete(polls, runID)
	if err := s.repo.RecordPoll(ctx, runID, attempt); err != nil {
		return fmt.Errorf("record run poll: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
