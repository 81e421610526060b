package scrape

import (
	"context"
	"time"

	"github.com/JakeFAU/post-scraper/internal/progress"
)

// JobClient performs the three remote operations. Each call makes exactly
// one outbound request and never retries.
type JobClient interface {
	Submit(ctx context.Context, subject Subject) (Handle, error)
	PollStatus(ctx context.Context, handle Handle) (Status, error)
	FetchResult(ctx context.Context, handle Handle) (Result, error)
}

// Sleeper suspends the caller for at least d unless ctx ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run correlation IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Emitter receives run progress events.
type Emitter = progress.Emitter
