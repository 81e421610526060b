package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/post-scraper/internal/scrape"
	"github.com/JakeFAU/post-scraper/internal/storage/memory"
)

func TestServer_GetPosts_ReturnsRecords(t *testing.T) {
	t.Parallel()

	var got scrape.Subject
	runner := runnerFunc(func(_ context.Context, subject scrape.Subject) (scrape.Result, error) {
		got = subject
		return scrape.Result{Records: []json.RawMessage{
			json.RawMessage(`{"id":"p1"}`),
			json.RawMessage(`{"id":"p2"}`),
		}}, nil
	})
	server := newTestServer(runner)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, scrape.Subject("alice"), got)
	require.JSONEq(t, `[{"id":"p1"},{"id":"p2"}]`, rec.Body.String())
}

func TestServer_GetPosts_EmptyResultIsArray(t *testing.T) {
	t.Parallel()

	server := newTestServer(runnerFunc(func(context.Context, scrape.Subject) (scrape.Result, error) {
		return scrape.Result{}, nil
	}))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_GetPosts_MissingUsername(t *testing.T) {
	t.Parallel()

	called := false
	server := newTestServer(runnerFunc(func(context.Context, scrape.Subject) (scrape.Result, error) {
		called = true
		return scrape.Result{}, nil
	}))

	for _, path := range []string{"/posts", "/posts/", "/posts/%20"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusBadRequest, rec.Code, path)
		require.JSONEq(t, `{"message":"Missing parameter: \"username\""}`, rec.Body.String(), path)
	}
	require.False(t, called)
}

func TestServer_GetPosts_MapsErrors(t *testing.T) {
	t.Parallel()

	handle := scrape.Handle{ActorID: "A1", RunID: "R1", DatasetID: "D1"}
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{
			name:   "submission",
			err:    &scrape.Error{Kind: scrape.KindSubmission, Op: "apify.submit", RunID: "run-1", Cause: errors.New("refused")},
			status: http.StatusBadGateway,
			kind:   "submission_error",
		},
		{
			name:   "poll",
			err:    &scrape.Error{Kind: scrape.KindPoll, Handle: handle, Cause: errors.New("503")},
			status: http.StatusBadGateway,
			kind:   "poll_error",
		},
		{
			name:   "job failed",
			err:    &scrape.Error{Kind: scrape.KindJobFailed, Handle: handle},
			status: http.StatusUnprocessableEntity,
			kind:   "job_failed",
		},
		{
			name:   "fetch",
			err:    &scrape.Error{Kind: scrape.KindFetch, Handle: handle},
			status: http.StatusBadGateway,
			kind:   "fetch_error",
		},
		{
			name:   "timed out",
			err:    &scrape.Error{Kind: scrape.KindTimedOut, Handle: handle, Attempts: 120},
			status: http.StatusGatewayTimeout,
			kind:   "job_timed_out",
		},
		{
			name:   "deadline",
			err:    &scrape.Error{Kind: scrape.KindPoll, Handle: handle, Cause: context.DeadlineExceeded},
			status: http.StatusGatewayTimeout,
			kind:   "poll_error",
		},
		{
			name:   "unclassified",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(runnerFunc(func(context.Context, scrape.Subject) (scrape.Result, error) {
				return scrape.Result{}, tc.err
			}))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/alice", nil))

			require.Equal(t, tc.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.err.Error(), body.Message)
			require.Equal(t, tc.kind, body.Kind)
		})
	}
}

func TestServer_GetPosts_JobFailedMessage(t *testing.T) {
	t.Parallel()

	server := newTestServer(runnerFunc(func(context.Context, scrape.Subject) (scrape.Result, error) {
		return scrape.Result{}, &scrape.Error{
			Kind:   scrape.KindJobFailed,
			RunID:  "run-9",
			Handle: scrape.Handle{ActorID: "A2", RunID: "R2", DatasetID: "D2"},
		}
	}))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/bob", nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "actor run failed: actor ID: A2, run ID: R2")
	require.Contains(t, rec.Body.String(), `"run_id":"run-9"`)
}

func TestServer_Index(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "/posts/")
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ready := NewServer(nil, nil, Options{Ready: func(context.Context) error {
		return errors.New("database down")
	}}, zap.NewNop())
	rec = httptest.NewRecorder()
	ready.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	newTestServer(nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	server := newTestServer(runnerFunc(func(context.Context, scrape.Subject) (scrape.Result, error) {
		panic("unexpected")
	}))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/alice", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RequestTimeout(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, _ scrape.Subject) (scrape.Result, error) {
		<-ctx.Done()
		return scrape.Result{}, &scrape.Error{Kind: scrape.KindPoll, Cause: ctx.Err()}
	})
	server := NewServer(runner, nil, Options{RequestTimeout: 20 * time.Millisecond}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts/alice", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "request timed out")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(nil).Handler().ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	newTestServer(nil).Handler().ServeHTTP(rec, req)
	require.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
	require.NotNil(t, buf)
}

// --- helpers/fakes ---

type runnerFunc func(ctx context.Context, subject scrape.Subject) (scrape.Result, error)

func (f runnerFunc) Run(ctx context.Context, subject scrape.Subject) (scrape.Result, error) {
	return f(ctx, subject)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(runner Runner) *Server {
	return NewServer(runner, memory.NewRunStore(), Options{RequestTimeout: time.Minute}, zap.NewNop())
}
