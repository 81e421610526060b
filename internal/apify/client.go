// Package apify implements scrape.JobClient against the Apify REST API.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/post-scraper/internal/metrics"
	"github.com/JakeFAU/post-scraper/internal/scrape"
)

const (
	// DefaultBaseURL is the public Apify API endpoint.
	DefaultBaseURL = "https://api.apify.com"
	// DefaultActor is the actor launched when none is configured.
	DefaultActor = "zuzka~instagram-post-scraper"
	// DefaultResultsLimit caps the records a run collects.
	DefaultResultsLimit = 20

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
	maxBodyBytes   = 64 << 20
)

// ErrUnexpectedStatus marks a non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// Config controls how the client reaches the service.
type Config struct {
	BaseURL      string
	Token        string
	Actor        string
	ResultsLimit int
	Timeout      time.Duration
	// Limiter optionally throttles outbound requests across all runs.
	Limiter Waiter
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Waiter delays an outbound request to rawURL; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Client is stateless apart from its configuration and is safe for
// concurrent use.
type Client struct {
	baseURL *url.URL
	token   string
	actor   string
	limit   int
	limiter Waiter
	http    *http.Client
	logger  *zap.Logger
}

var _ scrape.JobClient = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}
	if cfg.Actor == "" {
		cfg.Actor = DefaultActor
	}
	if cfg.ResultsLimit <= 0 {
		cfg.ResultsLimit = DefaultResultsLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		actor:   cfg.Actor,
		limit:   cfg.ResultsLimit,
		limiter: cfg.Limiter,
		http:    httpClient,
		logger:  cfg.Logger.Named("apify"),
	}, nil
}

type runInput struct {
	Username     []string `json:"username"`
	ResultsLimit int      `json:"resultsLimit"`
}

type runEnvelope struct {
	Data struct {
		ID               string `json:"id"`
		ActID            string `json:"actId"`
		DefaultDatasetID string `json:"defaultDatasetId"`
		Status           string `json:"status"`
	} `json:"data"`
}

// Submit starts one actor run for subject.
func (c *Client) Submit(ctx context.Context, subject scrape.Subject) (scrape.Handle, error) {
	const op = "apify.submit"
	body, err := json.Marshal(runInput{Username: []string{string(subject)}, ResultsLimit: c.limit})
	if err != nil {
		return scrape.Handle{}, scrape.NewError(scrape.KindSubmission, op, fmt.Errorf("encode run input: %w", err))
	}
	var env runEnvelope
	if err := c.doJSON(ctx, op, http.MethodPost, c.endpoint("v2", "acts", c.actor, "runs"), body, &env); err != nil {
		return scrape.Handle{}, scrape.NewError(scrape.KindSubmission, op, err)
	}
	handle := scrape.Handle{
		ActorID:   env.Data.ActID,
		RunID:     env.Data.ID,
		DatasetID: env.Data.DefaultDatasetID,
	}
	if handle.ActorID == "" || handle.RunID == "" || handle.DatasetID == "" {
		return scrape.Handle{}, scrape.NewError(scrape.KindSubmission, op,
			fmt.Errorf("%w: run response lacks actId, id or defaultDatasetId", scrape.ErrMalformedResponse))
	}
	c.logger.Debug("actor run started",
		zap.String("actor_id", handle.ActorID),
		zap.String("remote_run_id", handle.RunID),
		zap.String("dataset_id", handle.DatasetID),
	)
	return handle, nil
}

// PollStatus reads the current status of the run named by handle.
func (c *Client) PollStatus(ctx context.Context, handle scrape.Handle) (scrape.Status, error) {
	const op = "apify.poll"
	var env runEnvelope
	if err := c.doJSON(ctx, op, http.MethodGet, c.endpoint("v2", "acts", handle.ActorID, "runs", handle.RunID), nil, &env); err != nil {
		return "", scrape.NewError(scrape.KindPoll, op, err)
	}
	// An absent status is not terminal; the caller keeps polling.
	return scrape.ParseRemoteStatus(env.Data.Status), nil
}

// FetchResult reads every record of the run's dataset.
func (c *Client) FetchResult(ctx context.Context, handle scrape.Handle) (scrape.Result, error) {
	const op = "apify.fetch"
	var records []json.RawMessage
	if err := c.doJSON(ctx, op, http.MethodGet, c.endpoint("v2", "datasets", handle.DatasetID, "items"), nil, &records); err != nil {
		return scrape.Result{}, scrape.NewError(scrape.KindFetch, op, err)
	}
	if records == nil {
		// A literal null decodes without error but is not an array.
		return scrape.Result{}, scrape.NewError(scrape.KindFetch, op,
			fmt.Errorf("%w: dataset items is not an array", scrape.ErrMalformedResponse))
	}
	return scrape.Result{Records: records}, nil
}

func (c *Client) endpoint(segments ...string) string {
	u := c.baseURL.JoinPath(segments...)
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) doJSON(ctx context.Context, op, method, target string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return err
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest(target, op, 0, time.Since(start))
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	metrics.ObserveRemoteRequest(target, op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // diagnostic only
		return fmt.Errorf("%w: %s %s returned %d: %s",
			ErrUnexpectedStatus, method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", scrape.ErrMalformedResponse, req.URL.Path, err)
	}
	return nil
}
