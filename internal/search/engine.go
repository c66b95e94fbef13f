package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keepstack/keeprag/internal/embed"
	kerrors "github.com/keepstack/keeprag/internal/errors"
	"github.com/keepstack/keeprag/internal/store"
)

// notFoundAnswer is returned when no source clears the threshold. The
// generator is deliberately not called in that case: there is nothing to
// ground an answer in, and an ungrounded generation is worse than none.
const notFoundAnswer = "Sorry, I could not find anything related to your question in the knowledge base. Try rephrasing the question or adding more context."

// Store is the persistence surface the engine reads.
type Store interface {
	Search(ctx context.Context, q store.SearchQuery) ([]store.SearchResult, error)
	PrivateArticleIDs(ctx context.Context) ([]int64, error)
}

// Config tunes one engine.
type Config struct {
	// SummaryTypes and TranscriptTypes partition section types into the two
	// retrieval classes. Empty slices take the package defaults.
	SummaryTypes    []string
	TranscriptTypes []string

	// AnswerLanguage is the fixed output language for generated answers.
	AnswerLanguage string
}

// Engine answers questions over the embedded corpus.
type Engine struct {
	store     Store
	embedder  embed.Embedder
	generator embed.Generator
	config    Config
}

// NewEngine wires a retrieval engine. generator is the answer model; the
// embedder should be the cached one so repeated questions skip the network.
func NewEngine(st Store, embedder embed.Embedder, generator embed.Generator, cfg Config) *Engine {
	if len(cfg.SummaryTypes) == 0 {
		cfg.SummaryTypes = DefaultSummaryTypes
	}
	if len(cfg.TranscriptTypes) == 0 {
		cfg.TranscriptTypes = DefaultTranscriptTypes
	}
	if cfg.AnswerLanguage == "" {
		cfg.AnswerLanguage = DefaultAnswerLanguage
	}

	return &Engine{
		store:     st,
		embedder:  embedder,
		generator: generator,
		config:    cfg,
	}
}

// Answer embeds the question, retrieves sources in the requested mode, and
// generates a grounded answer. Blank questions are rejected; an empty result
// set short-circuits to a canned answer without touching the generator.
func (e *Engine) Answer(ctx context.Context, question string, opts Options) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, kerrors.New(kerrors.ErrCodeQuestionEmpty, "question must not be empty", nil)
	}

	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Mode == "" {
		opts.Mode = ModeParallel
	}
	switch opts.Mode {
	case ModeLayered, ModeParallel, ModeSingle:
	default:
		return nil, kerrors.New(kerrors.ErrCodeInvalidMode,
			fmt.Sprintf("unknown search mode %q", opts.Mode), nil)
	}

	started := time.Now()

	embedStart := time.Now()
	vector, err := e.embedder.Embed(ctx, question, embed.TaskQuery)
	if err != nil {
		return nil, err
	}
	embedTime := time.Since(embedStart)

	searchStart := time.Now()
	var sources []store.SearchResult
	switch opts.Mode {
	case ModeLayered:
		sources, err = e.layeredSearch(ctx, vector, opts)
	case ModeParallel:
		sources, err = e.parallelSearch(ctx, vector, opts)
	case ModeSingle:
		sources, err = e.singleSearch(ctx, vector, opts)
	}
	if err != nil {
		return nil, kerrors.New(kerrors.ErrCodeSearchFailed,
			fmt.Sprintf("%s search failed", opts.Mode), err)
	}
	searchTime := time.Since(searchStart)

	slog.Debug("retrieval_done",
		slog.String("mode", string(opts.Mode)),
		slog.Int("sources", len(sources)),
		slog.Duration("search_time", searchTime))

	if len(sources) == 0 {
		return &Response{
			Answer:               notFoundAnswer,
			Sources:              []store.SearchResult{},
			QueryEmbeddingTimeMS: embedTime.Milliseconds(),
			SearchTimeMS:         searchTime.Milliseconds(),
			GenerationTimeMS:     0,
			TotalTimeMS:          time.Since(started).Milliseconds(),
			SearchMode:           string(opts.Mode),
		}, nil
	}

	genStart := time.Now()
	answer, err := e.generator.Generate(ctx, buildPrompt(question, sources, e.config.AnswerLanguage))
	if err != nil {
		return nil, err
	}
	genTime := time.Since(genStart)

	return &Response{
		Answer:               answer,
		Sources:              sources,
		QueryEmbeddingTimeMS: embedTime.Milliseconds(),
		SearchTimeMS:         searchTime.Milliseconds(),
		GenerationTimeMS:     genTime.Milliseconds(),
		TotalTimeMS:          time.Since(started).Milliseconds(),
		SearchMode:           string(opts.Mode),
	}, nil
}

// parallelSearch runs the summary-class and transcript-class searches
// concurrently, each capped at half the requested count, excluding private
// articles from both, then merges by score.
func (e *Engine) parallelSearch(ctx context.Context, vector []float32, opts Options) ([]store.SearchResult, error) {
	excluded, err := e.store.PrivateArticleIDs(ctx)
	if err != nil {
		return nil, err
	}

	half := (opts.TopK + 1) / 2
	var summaries, transcripts []store.SearchResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summaries, err = e.store.Search(gctx, store.SearchQuery{
			Vector:           vector,
			Threshold:        opts.Threshold,
			Count:            half,
			AllowedTypes:     e.config.SummaryTypes,
			ExcludedArticles: excluded,
		})
		return err
	})
	g.Go(func() error {
		var err error
		transcripts, err = e.store.Search(gctx, store.SearchQuery{
			Vector:           vector,
			Threshold:        opts.Threshold,
			Count:            half,
			AllowedTypes:     e.config.TranscriptTypes,
			ExcludedArticles: excluded,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := dedupeByMaxScore(append(summaries, transcripts...))
	sortByScore(merged)
	return truncate(merged, opts.TopK), nil
}

// layeredSearch shortlists articles via a loose summary pass, then runs a
// focused transcript pass restricted to the shortlist. An empty focused pass
// falls back to the shortlist results rather than returning nothing.
func (e *Engine) layeredSearch(ctx context.Context, vector []float32, opts Options) ([]store.SearchResult, error) {
	shortlist, err := e.store.Search(ctx, store.SearchQuery{
		Vector:       vector,
		Threshold:    shortlistThreshold,
		Count:        shortlistCount,
		AllowedTypes: e.config.SummaryTypes,
	})
	if err != nil {
		return nil, err
	}
	if len(shortlist) == 0 {
		return nil, nil
	}

	focused, err := e.store.Search(ctx, store.SearchQuery{
		Vector:        vector,
		Threshold:     opts.Threshold,
		Count:         opts.TopK,
		AllowedTypes:  e.config.TranscriptTypes,
		ArticleFilter: articleIDs(shortlist),
		EfSearch:      focusedEfSearch,
	})
	if err != nil {
		return nil, err
	}
	if len(focused) == 0 {
		return truncate(shortlist, opts.TopK), nil
	}
	return focused, nil
}

// singleSearch is one pass over every section type, excluding private
// articles.
func (e *Engine) singleSearch(ctx context.Context, vector []float32, opts Options) ([]store.SearchResult, error) {
	excluded, err := e.store.PrivateArticleIDs(ctx)
	if err != nil {
		return nil, err
	}
	return e.store.Search(ctx, store.SearchQuery{
		Vector:           vector,
		Threshold:        opts.Threshold,
		Count:            opts.TopK,
		ExcludedArticles: excluded,
	})
}

func articleIDs(results []store.SearchResult) []int64 {
	seen := make(map[int64]struct{}, len(results))
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.ArticleID]; ok {
			continue
		}
		seen[r.ArticleID] = struct{}{}
		ids = append(ids, r.ArticleID)
	}
	return ids
}
