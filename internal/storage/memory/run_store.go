// Package memory keeps the run log in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/post-scraper/internal/store"
)

// RunStore keeps the run log in memory for development and tests.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// StartRun inserts a pending run unless it already exists.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, subject string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[id]; exists {
		return nil
	}
	s.runs[id] = store.Run{
		ID:        id,
		Subject:   subject,
		StartedAt: startedAt,
		Status:    store.RunPending,
	}
	return nil
}

// MarkSubmitted records the remote identifiers for a run.
func (s *RunStore) MarkSubmitted(_ context.Context, id uuid.UUID, actorID, remoteRunID, datasetID string) error {
	return s.update(id, func(run *store.Run) {
		run.ActorID = actorID
		run.RemoteRunID = remoteRunID
		run.DatasetID = datasetID
		if run.FinishedAt == nil {
			run.Status = store.RunSubmitted
		}
	})
}

// RecordPoll raises the poll counter to at least attempt.
func (s *RunStore) RecordPoll(_ context.Context, id uuid.UUID, attempt int) error {
	return s.update(id, func(run *store.Run) {
		run.Polls = max(run.Polls, attempt)
	})
}

// CompleteRun marks a run terminal.
func (s *RunStore) CompleteRun(_ context.Context, id uuid.UUID, c store.Completion) error {
	return s.update(id, func(run *store.Run) {
		finished := c.FinishedAt
		run.FinishedAt = &finished
		run.Status = c.Status
		run.Outcome = c.Outcome
		run.Polls = max(run.Polls, c.Polls)
		run.Records = c.Records
		run.ErrorMessage = c.ErrorMessage
	})
}

func (s *RunStore) update(id uuid.UUID, fn func(*store.Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&run)
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []store.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
