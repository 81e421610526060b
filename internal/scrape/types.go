package scrape

import (
	"encoding/json"
	"strings"
)

// Subject identifies what the remote job scrapes (e.g. an account name).
type Subject string

// Validate rejects empty or whitespace-only subjects.
func (s Subject) Validate() error {
	if strings.TrimSpace(string(s)) == "" {
		return ErrInvalidSubject
	}
	return nil
}

// Handle identifies one remote job execution.
type Handle struct {
	ActorID   string `json:"actor_id"`
	RunID     string `json:"run_id"`
	DatasetID string `json:"dataset_id"`
}

// IsZero reports whether no identifiers are set.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// Status is the coarse state of a remote run.
type Status string

// Status values the orchestrator distinguishes.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether polling should stop.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ParseRemoteStatus maps the service's status token onto Status. Tokens other
// than SUCCEEDED and FAILED are treated as still running.
func ParseRemoteStatus(token string) Status {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "SUCCEEDED":
		return StatusSucceeded
	case "FAILED":
		return StatusFailed
	default:
		return StatusRunning
	}
}

// Result is the pass-through record set of a succeeded run.
type Result struct {
	Records []json.RawMessage
}

// Len returns the number of records.
func (r Result) Len() int {
	return len(r.Records)
}

// MarshalJSON renders the records as a JSON array, never null.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Records)
}
