package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves remote pages. Every failure is reported as a *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (RawPage, error)
}

// PostingStore is the persistence gateway for companies and postings.
type PostingStore interface {
	UpsertCompany(ctx context.Context, company Company) error
	// UpsertPosting stores the posting keyed by (company name, title) and
	// reports whether a new row was inserted.
	UpsertPosting(ctx context.Context, posting NormalizedPosting) (bool, error)
	Counts(ctx context.Context) (StoreCounts, error)
	Close()
}

// RunStore keeps the records of harvest runs started through the control API.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, runID string, status RunStatus, result *RunResult, errText string) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes posting events to a topic or channel.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
