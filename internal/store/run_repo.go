package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the scrape_runs.status column.
type RunStatus string

// Run statuses persisted in scrape_runs.status.
const (
	RunPending   RunStatus = "pending"
	RunSubmitted RunStatus = "submitted"
	RunSuccess   RunStatus = "success"
	RunError     RunStatus = "error"
)

// ParseRunStatus validates a status filter value.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunPending, RunSubmitted, RunSuccess, RunError:
		return RunStatus(s), true
	default:
		return "", false
	}
}

// Run models one row of the run log.
type Run struct {
	// ID is the local orchestration run ID.
	ID uuid.UUID
	// Subject is the scrape subject.
	Subject string
	// ActorID, RemoteRunID and DatasetID are empty until submission succeeds.
	ActorID     string
	RemoteRunID string
	DatasetID   string
	// StartedAt is when the orchestration began.
	StartedAt time.Time
	// FinishedAt is nil until the run is terminal.
	FinishedAt *time.Time
	// Status is pending/submitted/success/error.
	Status RunStatus
	// Outcome is the failure kind for errored runs.
	Outcome *string
	// Polls counts status polls made so far.
	Polls int
	// Records is the result size of a successful run.
	Records int
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// Completion describes the terminal state written by CompleteRun.
type Completion struct {
	FinishedAt   time.Time
	Status       RunStatus
	Outcome      *string
	Polls        int
	Records      int
	ErrorMessage *string
}

// RunRepository persists the run log.
type RunRepository interface {
	// StartRun inserts a pending run; repeated calls are no-ops.
	StartRun(ctx context.Context, id uuid.UUID, subject string, startedAt time.Time) error
	// MarkSubmitted records the remote identifiers.
	MarkSubmitted(ctx context.Context, id uuid.UUID, actorID, remoteRunID, datasetID string) error
	// RecordPoll raises the poll counter to at least attempt.
	RecordPoll(ctx context.Context, id uuid.UUID, attempt int) error
	// CompleteRun marks the run terminal.
	CompleteRun(ctx context.Context, id uuid.UUID, c Completion) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, filtered by optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
