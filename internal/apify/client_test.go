package apify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/post-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/post-scraper/internal/scrape"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL, Token: "secret", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return client, &calls
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "ftp://example.com"})
	require.Error(t, err)
}

func TestSubmitSendsRunInput(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/acts/zuzka~instagram-post-scraper/runs", r.URL.Path)
		require.Equal(t, "secret", r.URL.Query().Get("token"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"username":["alice"],"resultsLimit":20}`, string(raw))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"R1","actId":"A1","defaultDatasetId":"D1","status":"READY"}}`)
	})

	handle, err := client.Submit(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, scrape.Handle{ActorID: "A1", RunID: "R1", DatasetID: "D1"}, handle)
	require.Equal(t, int32(1), calls.Load())
}

func TestSubmitErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`},
		{name: "missing dataset", status: http.StatusCreated, body: `{"data":{"id":"R1","actId":"A1"}}`, malformed: true},
		{name: "not json", status: http.StatusCreated, body: `<html>`, malformed: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			handle, err := client.Submit(context.Background(), "alice")
			require.Error(t, err)
			require.True(t, handle.IsZero())
			require.ErrorIs(t, err, scrape.ErrSubmission)
			require.Equal(t, scrape.KindSubmission, scrape.KindOf(err))
			if tc.malformed {
				require.ErrorIs(t, err, scrape.ErrMalformedResponse)
			} else {
				require.ErrorIs(t, err, ErrUnexpectedStatus)
			}
			require.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestSubmitTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := New(Config{BaseURL: url})
	require.NoError(t, err)
	_, err = client.Submit(context.Background(), "alice")
	require.ErrorIs(t, err, scrape.ErrSubmission)
}

func TestPollStatusMapsTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token string
		want  scrape.Status
	}{
		{"RUNNING", scrape.StatusRunning},
		{"READY", scrape.StatusRunning},
		{"TIMED-OUT", scrape.StatusRunning},
		{"ABORTED", scrape.StatusRunning},
		{"SUCCEEDED", scrape.StatusSucceeded},
		{"FAILED", scrape.StatusFailed},
	}
	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			t.Parallel()

			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodGet, r.Method)
				require.Equal(t, "/v2/acts/A1/runs/R1", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"status": tc.token}})
			})

			got, err := client.PollStatus(context.Background(), scrape.Handle{ActorID: "A1", RunID: "R1", DatasetID: "D1"})
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPollStatusErrors(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.PollStatus(context.Background(), scrape.Handle{ActorID: "A1", RunID: "R1"})
	require.ErrorIs(t, err, scrape.ErrPoll)
	require.Equal(t, int32(1), calls.Load())
}

func TestPollStatusMissingStatusKeepsRunning(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"data":{"id":"R1"}}`, `{"data":{}}`, `{}`} {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})
		status, err := client.PollStatus(context.Background(), scrape.Handle{ActorID: "A1", RunID: "R1"})
		require.NoError(t, err, body)
		require.Equal(t, scrape.StatusRunning, status, body)
	}
}

func TestFetchResultPassesRecordsThrough(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/datasets/D1/items", r.URL.Path)
		require.Equal(t, "secret", r.URL.Query().Get("token"))
		_, _ = io.WriteString(w, `[{"id":1,"caption":"x"},{"id":2}]`)
	})

	res, err := client.FetchResult(context.Background(), scrape.Handle{ActorID: "A1", RunID: "R1", DatasetID: "D1"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())
	require.JSONEq(t, `{"id":1,"caption":"x"}`, string(res.Records[0]))
}

func TestFetchResultEmptyArray(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	res, err := client.FetchResult(context.Background(), scrape.Handle{DatasetID: "D1"})
	require.NoError(t, err)
	require.NotNil(t, res.Records)
	require.Zero(t, res.Len())
}

func TestFetchResultRejectsNonArray(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"items":[]}`, `null`, `oops`} {
		client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})

		_, err := client.FetchResult(context.Background(), scrape.Handle{DatasetID: "D1"})
		require.ErrorIs(t, err, scrape.ErrFetch, body)
		require.Equal(t, scrape.KindFetch, scrape.KindOf(err))
	}
}

func TestTokenOmittedWhenUnset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.False(t, r.URL.Query().Has("token"))
		_, _ = io.WriteString(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = client.FetchResult(context.Background(), scrape.Handle{DatasetID: "D1"})
	require.NoError(t, err)
}

func TestLimiterWaitFailureSendsNothing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: 1.0 / 3600, DefaultBurst: 1})
	require.NoError(t, limiter.Wait(context.Background(), srv.URL))
	client, err := New(Config{BaseURL: srv.URL, Limiter: limiter})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.FetchResult(ctx, scrape.Handle{DatasetID: "D1"})
	require.ErrorIs(t, err, scrape.ErrFetch)
	require.Zero(t, calls.Load())
}
