package scrape

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	handle := Handle{ActorID: "A1", RunID: "R1", DatasetID: "D1"}
	cause := errors.New("dial tcp: refused")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "job failed",
			err:  &Error{Kind: KindJobFailed, Handle: handle},
			want: "actor run failed: actor ID: A1, run ID: R1",
		},
		{
			name: "timed out",
			err:  &Error{Kind: KindTimedOut, Handle: handle},
			want: "actor run timed out: actor ID: A1, run ID: R1",
		},
		{
			name: "submission with subject and cause",
			err:  &Error{Kind: KindSubmission, Op: "apify.submit", Subject: "alice", Cause: cause},
			want: `job submission failed for "alice" (apify.submit): dial tcp: refused`,
		},
		{
			name: "fetch",
			err:  NewError(KindFetch, "apify.fetch", cause),
			want: "job result fetch failed (apify.fetch): dial tcp: refused",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	sentinels := map[Kind]error{
		KindSubmission: ErrSubmission,
		KindPoll:       ErrPoll,
		KindJobFailed:  ErrJobFailed,
		KindFetch:      ErrFetch,
		KindTimedOut:   ErrTimedOut,
	}
	for kind, sentinel := range sentinels {
		err := fmt.Errorf("outer: %w", NewError(kind, "op", cause))
		require.ErrorIs(t, err, sentinel, kind.String())
		require.ErrorIs(t, err, cause, kind.String())
		require.Equal(t, kind, KindOf(err))
		for other, s := range sentinels {
			if other != kind {
				require.NotErrorIs(t, err, s)
			}
		}
	}
	require.Equal(t, Kind(0), KindOf(cause))
}

func TestParseRemoteStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusSucceeded, ParseRemoteStatus("SUCCEEDED"))
	require.Equal(t, StatusFailed, ParseRemoteStatus("failed"))
	for _, token := range []string{"RUNNING", "READY", "TIMING-OUT", "TIMED-OUT", "ABORTING", "ABORTED", ""} {
		require.Equal(t, StatusRunning, ParseRemoteStatus(token), token)
	}
	require.False(t, StatusRunning.IsTerminal())
	require.True(t, StatusFailed.IsTerminal())
}

func TestResultMarshalsEmptyAsArray(t *testing.T) {
	t.Parallel()

	raw, err := Result{}.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "[]", string(raw))
}

func TestSubjectValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Subject("alice").Validate())
	require.ErrorIs(t, Subject(" \t").Validate(), ErrInvalidSubject)
}
