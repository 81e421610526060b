package scrape

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for classification via errors.Is.
var (
	ErrSubmission = errors.New("job submission failed")
	ErrPoll       = errors.New("job status poll failed")
	ErrJobFailed  = errors.New("job failed")
	ErrFetch      = errors.New("job result fetch failed")
	ErrTimedOut   = errors.New("job timed out")

	// ErrInvalidSubject is returned before any remote call for a blank subject.
	ErrInvalidSubject = errors.New("subject must not be empty")
	// ErrMalformedResponse marks a remote response missing required fields.
	ErrMalformedResponse = errors.New("malformed response")
)

// Kind classifies a terminal orchestration failure.
type Kind int

// Failure kinds, one per terminal error state.
const (
	KindSubmission Kind = iota + 1
	KindPoll
	KindJobFailed
	KindFetch
	KindTimedOut
)

func (k Kind) String() string {
	switch k {
	case KindSubmission:
		return "submission_error"
	case KindPoll:
		return "poll_error"
	case KindJobFailed:
		return "job_failed"
	case KindFetch:
		return "fetch_error"
	case KindTimedOut:
		return "job_timed_out"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindSubmission:
		return ErrSubmission
	case KindPoll:
		return ErrPoll
	case KindJobFailed:
		return ErrJobFailed
	case KindFetch:
		return ErrFetch
	case KindTimedOut:
		return ErrTimedOut
	default:
		return nil
	}
}

// Error is the terminal failure of one run. It carries enough context to act
// on without re-deriving it.
type Error struct {
	Kind     Kind
	Op       string // e.g. "apify.submit"
	Subject  Subject
	RunID    string // local correlation ID of the orchestration run
	Handle   Handle // zero until submission succeeded
	Attempts int    // poll attempts made before the terminal state
	Cause    error
}

// NewError builds an Error of the given kind wrapping cause.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindJobFailed:
		fmt.Fprintf(&b, "actor run failed: actor ID: %s, run ID: %s", e.Handle.ActorID, e.Handle.RunID)
	case KindTimedOut:
		fmt.Fprintf(&b, "actor run timed out: actor ID: %s, run ID: %s", e.Handle.ActorID, e.Handle.RunID)
	default:
		if s := e.Kind.sentinel(); s != nil {
			b.WriteString(s.Error())
		} else {
			b.WriteString("scrape error")
		}
		if e.Subject != "" {
			fmt.Fprintf(&b, " for %q", string(e.Subject))
		}
	}
	if e.Op != "" {
		fmt.Fprintf(&b, " (%s)", e.Op)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		out = append(out, s)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// KindOf returns the Kind of err, or zero if err is not an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
