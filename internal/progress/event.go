package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes which run milestone an Event represents.
type Stage string

// Supported run stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunSubmitted Stage = "RUN_SUBMITTED"
	StageRunPoll      Stage = "RUN_POLL"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
)

// Event captures one milestone of an orchestration run.
type Event struct {
	// RunID is the local correlation ID in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Subject is the scrape subject the run was started for.
	Subject string
	// ActorID, RemoteRunID and DatasetID are set once the remote job exists.
	ActorID     string
	RemoteRunID string
	DatasetID   string
	// Attempt is the 1-based poll attempt for RUN_POLL events.
	Attempt int
	// Status is the remote status observed by a poll.
	Status string
	// Outcome is the failure kind for RUN_ERROR events.
	Outcome string
	// Records is the result size for RUN_DONE events.
	Records int
	// Dur is the wall time since the run started.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageRunSubmitted:
		if e.RemoteRunID == "" {
			return errors.New("run submitted requires remote run id")
		}
	case StageRunPoll:
		if e.Attempt <= 0 {
			return errors.New("run poll requires attempt > 0")
		}
	case StageRunError:
		if e.Outcome == "" {
			return errors.New("run error requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID parses a string run ID into the Event form.
func ParseRunID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(id), nil
}
