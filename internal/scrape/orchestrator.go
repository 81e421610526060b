package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/post-scraper/internal/progress"
)

// Defaults for Options.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultBudget       = 10 * time.Minute
)

// Options bound the poll loop.
type Options struct {
	// PollInterval is the pause between consecutive status polls.
	PollInterval time.Duration
	// Budget is the total waiting time allowed; it fixes the attempt count.
	Budget time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Budget <= 0 {
		o.Budget = DefaultBudget
	}
	return o
}

// MaxAttempts is the number of polls a run may make: Budget / PollInterval,
// never less than one.
func (o Options) MaxAttempts() int {
	o = o.withDefaults()
	return max(int(o.Budget/o.PollInterval), 1)
}

// Orchestrator runs scrape jobs to completion. It keeps no per-run state, so
// a single Orchestrator serves any number of concurrent runs.
type Orchestrator struct {
	client      JobClient
	sleeper     Sleeper
	clock       Clock
	ids         IDGenerator
	emitter     Emitter
	opts        Options
	maxAttempts int
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewOrchestrator wires the collaborators. emitter and logger may be nil.
func NewOrchestrator(
	client JobClient,
	sleeper Sleeper,
	clock Clock,
	ids IDGenerator,
	emitter Emitter,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	opts = opts.withDefaults()
	return &Orchestrator{
		client:      client,
		sleeper:     sleeper,
		clock:       clock,
		ids:         ids,
		emitter:     emitter,
		opts:        opts,
		maxAttempts: opts.MaxAttempts(),
		logger:      logger,
		tracer:      otel.Tracer("github.com/JakeFAU/post-scraper/internal/scrape"),
	}
}

// MaxAttempts reports the poll budget of every run.
func (o *Orchestrator) MaxAttempts() int {
	return o.maxAttempts
}

// Run submits a job for subject, waits for it to finish and returns its
// records. On failure the Result is zero and the error is an *Error.
func (o *Orchestrator) Run(ctx context.Context, subject Subject) (Result, error) {
	r := &run{o: o, subject: subject, start: o.clock.Now()}
	r.logger = o.logger.With(zap.String("subject", string(subject)))

	if err := subject.Validate(); err != nil {
		return Result{}, r.classify(KindSubmission, "scrape.validate", err)
	}
	id, err := o.ids.NewID()
	if err != nil {
		return Result{}, r.classify(KindSubmission, "scrape.run_id", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Result{}, r.classify(KindSubmission, "scrape.run_id", fmt.Errorf("parse run id: %w", err))
	}
	r.id = id
	r.eventID = progress.UUIDToBytes(parsed)
	r.logger = r.logger.With(zap.String("run_id", id))

	ctx, span := o.tracer.Start(ctx, "scrape.Run", trace.WithAttributes(
		attribute.String("scrape.subject", string(subject)),
		attribute.String("scrape.run_id", id),
	))
	defer span.End()
	r.span = span

	r.emit(progress.Event{Stage: progress.StageRunStart})
	return r.execute(ctx)
}

// run carries the state of one orchestration; it never outlives Run.
type run struct {
	o        *Orchestrator
	subject  Subject
	id       string
	eventID  [16]byte
	start    time.Time
	handle   Handle
	attempts int
	logger   *zap.Logger
	span     trace.Span
}

func (r *run) execute(ctx context.Context) (Result, error) {
	o := r.o
	handle, err := o.client.Submit(ctx, r.subject)
	if err != nil {
		return Result{}, r.fail(KindSubmission, "scrape.submit", err)
	}
	r.handle = handle
	r.span.SetAttributes(
		attribute.String("apify.actor_id", handle.ActorID),
		attribute.String("apify.run_id", handle.RunID),
	)
	r.logger.Info("scrape job submitted",
		zap.String("actor_id", handle.ActorID),
		zap.String("remote_run_id", handle.RunID),
		zap.String("dataset_id", handle.DatasetID),
	)
	r.emit(progress.Event{Stage: progress.StageRunSubmitted})

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		r.attempts = attempt
		status, err := o.client.PollStatus(ctx, handle)
		if err != nil {
			return Result{}, r.fail(KindPoll, "scrape.poll", err)
		}
		r.logger.Debug("scrape job polled", zap.Int("attempt", attempt), zap.String("status", string(status)))
		r.emit(progress.Event{Stage: progress.StageRunPoll, Attempt: attempt, Status: string(status)})

		switch status {
		case StatusSucceeded:
			return r.fetch(ctx)
		case StatusFailed:
			return Result{}, r.fail(KindJobFailed, "scrape.poll", nil)
		}
		if attempt == o.maxAttempts {
			break
		}
		if err := o.sleeper.Sleep(ctx, o.opts.PollInterval); err != nil {
			return Result{}, r.fail(KindPoll, "scrape.wait", err)
		}
	}
	return Result{}, r.fail(KindTimedOut, "scrape.poll",
		fmt.Errorf("no terminal status after %d polls", r.attempts))
}

func (r *run) fetch(ctx context.Context) (Result, error) {
	res, err := r.o.client.FetchResult(ctx, r.handle)
	if err != nil {
		return Result{}, r.fail(KindFetch, "scrape.fetch", err)
	}
	if res.Records == nil {
		res.Records = []json.RawMessage{}
	}
	r.span.SetAttributes(attribute.Int("scrape.records", res.Len()))
	r.span.SetStatus(codes.Ok, "")
	r.logger.Info("scrape job completed",
		zap.Int("polls", r.attempts),
		zap.Int("records", res.Len()),
		zap.Duration("dur", r.elapsed()),
	)
	r.emit(progress.Event{Stage: progress.StageRunDone, Attempt: r.attempts, Records: res.Len()})
	return res, nil
}

// classify builds the terminal *Error for kind. A cause that is already an
// *Error of the same kind keeps its op and cause; anything else is wrapped.
func (r *run) classify(kind Kind, op string, cause error) *Error {
	out := NewError(kind, op, cause)
	var se *Error
	if errors.As(cause, &se) && se.Kind == kind {
		out.Op = se.Op
		out.Cause = se.Cause
	}
	out.Subject = r.subject
	out.RunID = r.id
	out.Handle = r.handle
	out.Attempts = r.attempts
	return out
}

func (r *run) fail(kind Kind, op string, cause error) *Error {
	err := r.classify(kind, op, cause)
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, kind.String())
	r.logger.Warn("scrape job failed",
		zap.String("outcome", kind.String()),
		zap.Int("polls", r.attempts),
		zap.Duration("dur", r.elapsed()),
		zap.Error(err),
	)
	r.emit(progress.Event{
		Stage:   progress.StageRunError,
		Attempt: r.attempts,
		Outcome: kind.String(),
		Note:    err.Error(),
	})
	return err
}

func (r *run) emit(evt progress.Event) {
	evt.RunID = r.eventID
	evt.TS = r.o.clock.Now()
	evt.Subject = string(r.subject)
	evt.ActorID = r.handle.ActorID
	evt.RemoteRunID = r.handle.RunID
	evt.DatasetID = r.handle.DatasetID
	evt.Dur = r.elapsed()
	r.o.emitter.Emit(evt)
}

func (r *run) elapsed() time.Duration {
	return max(r.o.clock.Now().Sub(r.start), 0)
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}
