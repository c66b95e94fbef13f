// Package ingest implements the embedding ingestion worker: it claims queued
// jobs with a compare-and-swap on the job's updated_at, runs the
// normalize -> compress -> chunk -> embed -> upsert pipeline per section, and
// finalizes job status under a fixed cross-invocation retry budget.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keepstack/keeprag/internal/embed"
	"github.com/keepstack/keeprag/internal/store"
	"github.com/keepstack/keeprag/internal/textproc"
)

// Defaults for one worker invocation.
const (
	// DefaultBatchSize caps jobs handled per invocation, keeping each
	// trigger short enough for scheduler timeouts.
	DefaultBatchSize = 5

	// DefaultStuckThreshold is how long a processing job may sit untouched
	// before it is presumed abandoned and becomes claimable again.
	DefaultStuckThreshold = time.Hour
)

// Store is the persistence surface the worker needs.
type Store interface {
	GetSection(ctx context.Context, id int64) (*store.Section, error)
	PendingJobs(ctx context.Context, limit int) ([]*store.Job, error)
	StuckJobs(ctx context.Context, limit int, olderThan time.Time) ([]*store.Job, error)
	ClaimJob(ctx context.Context, id int64, expectedUpdatedAt time.Time) (bool, error)
	CompleteJob(ctx context.Context, id int64) error
	ReleaseJob(ctx context.Context, id int64, retryCount int, lastError string) error
	FailJob(ctx context.Context, id int64, retryCount int, lastError string) error
	UpsertChunk(ctx context.Context, chunk *store.Chunk) error
}

// Config tunes one worker.
type Config struct {
	// BatchSize is the maximum number of jobs per invocation.
	BatchSize int

	// StuckThreshold ages out abandoned processing jobs for re-claim.
	StuckThreshold time.Duration

	// ChunkTarget and ChunkMax bound chunk sizes in characters.
	ChunkTarget int
	ChunkMax    int
}

// Worker executes ingestion invocations. Workers are stateless between
// invocations: all coordination state lives in the job table, and within one
// invocation jobs run sequentially with one network call in flight at a time.
type Worker struct {
	store      Store
	embedder   embed.Embedder
	compressor *textproc.Compressor
	config     Config
}

// NewWorker wires a worker. summarizer is the generator used to compress
// sections that exceed the chunk bound (typically the cheaper summary model).
func NewWorker(st Store, embedder embed.Embedder, summarizer embed.Generator, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = DefaultStuckThreshold
	}
	if cfg.ChunkTarget <= 0 {
		cfg.ChunkTarget = textproc.DefaultChunkTarget
	}
	if cfg.ChunkMax <= 0 {
		cfg.ChunkMax = textproc.DefaultChunkMax
	}

	return &Worker{
		store:      st,
		embedder:   embedder,
		compressor: textproc.NewCompressor(summarizer, cfg.ChunkMax),
		config:     cfg,
	}
}

// Run executes one batch invocation and returns the number of jobs handled
// to completion. Pending jobs are taken oldest-first; if the batch is not
// full, it is topped up with stuck processing jobs. One job's failure never
// aborts the rest of the batch.
func (w *Worker) Run(ctx context.Context) (int, error) {
	jobs, err := w.store.PendingJobs(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("select pending jobs: %w", err)
	}

	if len(jobs) < w.config.BatchSize {
		olderThan := time.Now().Add(-w.config.StuckThreshold)
		stuck, err := w.store.StuckJobs(ctx, w.config.BatchSize-len(jobs), olderThan)
		if err != nil {
			slog.Warn("stuck_job_selection_failed", slog.String("error", err.Error()))
		} else {
			jobs = append(jobs, stuck...)
		}
	}

	handled := 0
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			return handled, ctx.Err()
		default:
		}

		// The CAS carries the updated_at observed during selection. Losing
		// the race is not an error; another worker owns the job now.
		claimed, err := w.store.ClaimJob(ctx, job.ID, job.UpdatedAt)
		if err != nil {
			slog.Warn("claim_failed",
				slog.Int64("job_id", job.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !claimed {
			slog.Debug("claim_lost", slog.Int64("job_id", job.ID))
			continue
		}

		if err := w.ProcessSection(ctx, job.SectionID); err != nil {
			w.finalizeFailure(ctx, job, err)
			continue
		}

		if err := w.store.CompleteJob(ctx, job.ID); err != nil {
			slog.Error("complete_failed",
				slog.Int64("job_id", job.ID),
				slog.String("error", err.Error()))
			continue
		}
		handled++
		slog.Info("job_done",
			slog.Int64("job_id", job.ID),
			slog.Int64("section_id", job.SectionID))
	}

	return handled, nil
}

// finalizeFailure applies the cross-invocation retry budget: below the
// ceiling the job is released back to pending for a future invocation,
// at the ceiling it freezes at error for external remediation.
func (w *Worker) finalizeFailure(ctx context.Context, job *store.Job, cause error) {
	retryCount := job.RetryCount + 1
	msg := cause.Error()

	var err error
	if retryCount >= store.MaxJobRetries {
		err = w.store.FailJob(ctx, job.ID, retryCount, msg)
	} else {
		err = w.store.ReleaseJob(ctx, job.ID, retryCount, msg)
	}
	if err != nil {
		slog.Error("finalize_failed",
			slog.Int64("job_id", job.ID),
			slog.String("error", err.Error()))
		return
	}

	slog.Warn("job_failed",
		slog.Int64("job_id", job.ID),
		slog.Int64("section_id", job.SectionID),
		slog.Int("retry_count", retryCount),
		slog.Bool("terminal", retryCount >= store.MaxJobRetries),
		slog.String("error", msg))
}

// ProcessSection runs the per-section pipeline directly, ignoring job
// bookkeeping. This is also the direct single-section mode used for manual
// reprocessing. Chunk writes are upserts keyed (section_id, chunk_id), so
// reprocessing overwrites rather than duplicates.
func (w *Worker) ProcessSection(ctx context.Context, sectionID int64) error {
	section, err := w.store.GetSection(ctx, sectionID)
	if err != nil {
		return err
	}

	text := textproc.Normalize(section.Content)

	text, compressed, err := w.compressor.Compress(ctx, text)
	if err != nil {
		return fmt.Errorf("section %d: %w", sectionID, err)
	}

	chunks := textproc.Chunk(text, w.config.ChunkTarget, w.config.ChunkMax)

	for chunkID, content := range chunks {
		vector, err := w.embedder.Embed(ctx, content, embed.TaskDocument)
		if err != nil {
			return fmt.Errorf("embed chunk %d of section %d: %w", chunkID, sectionID, err)
		}

		err = w.store.UpsertChunk(ctx, &store.Chunk{
			ArticleID:   section.ArticleID,
			SectionID:   section.ID,
			ChunkID:     chunkID,
			Language:    section.Language,
			SectionType: section.SectionType,
			Content:     content,
			Embedding:   vector,
			Compressed:  compressed,
		})
		if err != nil {
			return fmt.Errorf("persist chunk %d of section %d: %w", chunkID, sectionID, err)
		}
	}

	slog.Info("section_processed",
		slog.Int64("section_id", sectionID),
		slog.Int("chunks", len(chunks)),
		slog.Bool("compressed", compressed))
	return nil
}
