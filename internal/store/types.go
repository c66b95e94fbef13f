// Package store provides typed operations over the persisted job queue,
// sections, and the embeddings table, plus approximate similarity search
// over the stored vectors. SQLite is the backing store; the vector index
// is an in-memory HNSW graph rebuilt from the embeddings table at open.
package store

import (
	"context"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an embedding job.
type JobStatus string

const (
	// JobPending means the job is queued and claimable.
	JobPending JobStatus = "pending"
	// JobProcessing means a worker holds the job. A processing job whose
	// updated_at is older than the stuck threshold is presumed abandoned
	// and becomes claimable again.
	JobProcessing JobStatus = "processing"
	// JobDone is terminal success.
	JobDone JobStatus = "done"
	// JobError is terminal failure after the retry budget is exhausted.
	JobError JobStatus = "error"
)

// MaxJobRetries is the cross-invocation attempt ceiling per job.
const MaxJobRetries = 3

// Article is the owning record for sections. Only the private flag matters
// to this core; everything else about articles is managed elsewhere.
type Article struct {
	ID        int64
	Title     string
	IsPrivate bool
}

// Section is a unit of source text belonging to an article. Read-only input
// from this core's perspective.
type Section struct {
	ID          int64
	ArticleID   int64
	Language    string
	SectionType string
	Content     string
}

// Job is a queue entry referencing exactly one section. UpdatedAt doubles as
// the optimistic-concurrency token for the claim CAS: a claim succeeds only
// if the row still carries the UpdatedAt value the worker read.
type Job struct {
	ID         int64
	SectionID  int64
	Status     JobStatus
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk is a persisted, retrievable unit: one embedded slice of a section.
// Unique per (SectionID, ChunkID); writes are upserts so reprocessing a
// section overwrites rather than duplicates its chunks.
type Chunk struct {
	ArticleID   int64
	SectionID   int64
	ChunkID     int
	Language    string
	SectionType string
	Content     string
	Embedding   []float32
	Compressed  bool
}

// SearchResult is one scored row from a similarity search. Ephemeral.
type SearchResult struct {
	ArticleID   int64   `json:"article_id"`
	SectionID   int64   `json:"section_id"`
	ChunkID     int     `json:"chunk_id"`
	Score       float64 `json:"score"`
	Content     string  `json:"content"`
	SectionType string  `json:"section_type"`
	Language    string  `json:"language"`
}

// SearchQuery parameterizes one similarity search pass.
type SearchQuery struct {
	// Vector is the query embedding.
	Vector []float32

	// Threshold drops results scoring below it.
	Threshold float64

	// Count caps the number of results.
	Count int

	// AllowedTypes restricts results to these section types. Empty means all.
	AllowedTypes []string

	// ArticleFilter restricts results to these article ids. Nil means all.
	ArticleFilter []int64

	// ExcludedArticles removes results belonging to these article ids.
	ExcludedArticles []int64

	// EfSearch widens the approximate-search effort for this query.
	// Zero uses the index default.
	EfSearch int
}

// SectionStore reads source sections.
type SectionStore interface {
	// GetSection returns ErrCodeSectionNotFound when the id is unknown.
	GetSection(ctx context.Context, id int64) (*Section, error)
}

// JobStore provides the queue operations and the claim CAS primitive.
// Finalization is split into explicit transitions so illegal state
// combinations (a done job carrying an error, a terminal job with a
// stale status) cannot be written.
type JobStore interface {
	// PendingJobs returns up to limit pending jobs, oldest first.
	PendingJobs(ctx context.Context, limit int) ([]*Job, error)

	// StuckJobs returns up to limit processing jobs last touched before
	// olderThan with retry_count below the ceiling.
	StuckJobs(ctx context.Context, limit int, olderThan time.Time) ([]*Job, error)

	// ClaimJob atomically transitions a job to processing if and only if
	// its updated_at still equals expectedUpdatedAt. Returns false with no
	// error when another worker won the race.
	ClaimJob(ctx context.Context, id int64, expectedUpdatedAt time.Time) (bool, error)

	// CompleteJob marks terminal success and clears last_error.
	CompleteJob(ctx context.Context, id int64) error

	// ReleaseJob returns a failed job to the queue with an incremented
	// retry count and the failure message recorded.
	ReleaseJob(ctx context.Context, id int64, retryCount int, lastError string) error

	// FailJob marks terminal failure with the final retry count and message.
	FailJob(ctx context.Context, id int64, retryCount int, lastError string) error

	// GetJob fetches a single job row.
	GetJob(ctx context.Context, id int64) (*Job, error)

	// EnqueueJob inserts a pending job for a section.
	EnqueueJob(ctx context.Context, sectionID int64) (*Job, error)
}

// ChunkStore persists embedded chunks.
type ChunkStore interface {
	// UpsertChunk writes a chunk keyed by (section_id, chunk_id),
	// overwriting any previous row. This is what makes retries idempotent.
	UpsertChunk(ctx context.Context, chunk *Chunk) error
}

// SearchStore serves similarity queries over the stored embeddings.
type SearchStore interface {
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)

	// PrivateArticleIDs lists article ids flagged private, for exclusion.
	PrivateArticleIDs(ctx context.Context) ([]int64, error)
}

// Store combines every persistence concern the pipeline and retrieval
// engine need. Implemented by SQLiteStore.
type Store interface {
	SectionStore
	JobStore
	ChunkStore
	SearchStore

	// SaveArticle and SaveSection exist for tooling and tests; section and
	// article creation is owned by the article ingestion flow, not this core.
	SaveArticle(ctx context.Context, a *Article) error
	SaveSection(ctx context.Context, s *Section) error

	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
