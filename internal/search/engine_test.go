package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepstack/keeprag/internal/embed"
	kerrors "github.com/keepstack/keeprag/internal/errors"
	"github.com/keepstack/keeprag/internal/store"
)

// fakeStore answers searches via respond and records every query. Safe for
// the concurrent passes of parallel mode.
type fakeStore struct {
	mu         sync.Mutex
	queries    []store.SearchQuery
	respond    func(q store.SearchQuery) []store.SearchResult
	privateIDs []int64
	searchErr  error
}

func (f *fakeStore) Search(_ context.Context, q store.SearchQuery) ([]store.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(q), nil
}

func (f *fakeStore) PrivateArticleIDs(context.Context) ([]int64, error) {
	return f.privateIDs, nil
}

func (f *fakeStore) queryByTypes(t *testing.T, firstType string) store.SearchQuery {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queries {
		if len(q.AllowedTypes) > 0 && q.AllowedTypes[0] == firstType {
			return q
		}
	}
	t.Fatalf("no recorded query with first allowed type %q", firstType)
	return store.SearchQuery{}
}

type queryEmbedder struct {
	tasks []embed.TaskType
}

func (e *queryEmbedder) Embed(_ context.Context, _ string, task embed.TaskType) ([]float32, error) {
	e.tasks = append(e.tasks, task)
	return []float32{1, 0, 0, 0}, nil
}

func (e *queryEmbedder) Dimensions() int   { return 4 }
func (e *queryEmbedder) ModelName() string { return "fake-embedding" }

type recordingGenerator struct {
	prompts []string
	out     string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.out, nil
}

func result(article, section int64, chunk int, score float64, sectionType string) store.SearchResult {
	return store.SearchResult{
		ArticleID:   article,
		SectionID:   section,
		ChunkID:     chunk,
		Score:       score,
		Content:     "content",
		SectionType: sectionType,
		Language:    "en",
	}
}

func newTestEngine(st Store, gen embed.Generator) (*Engine, *queryEmbedder) {
	emb := &queryEmbedder{}
	return NewEngine(st, emb, gen, Config{}), emb
}

func TestAnswer_RejectsBlankQuestion(t *testing.T) {
	e, _ := newTestEngine(&fakeStore{}, &recordingGenerator{})

	_, err := e.Answer(context.Background(), "   \n\t", Options{})

	require.Error(t, err)
	assert.Equal(t, kerrors.ErrCodeQuestionEmpty, kerrors.GetCode(err))
}

func TestAnswer_RejectsUnknownMode(t *testing.T) {
	e, _ := newTestEngine(&fakeStore{}, &recordingGenerator{})

	_, err := e.Answer(context.Background(), "what is hnsw?", Options{Mode: "hybrid"})

	require.Error(t, err)
	assert.Equal(t, kerrors.ErrCodeInvalidMode, kerrors.GetCode(err))
}

func TestAnswer_EmbedsQuestionWithQueryIntent(t *testing.T) {
	st := &fakeStore{respond: func(store.SearchQuery) []store.SearchResult {
		return []store.SearchResult{result(1, 1, 0, 0.9, "summary")}
	}}
	e, emb := newTestEngine(st, &recordingGenerator{out: "answer"})

	_, err := e.Answer(context.Background(), "what is hnsw?", Options{})

	require.NoError(t, err)
	require.Len(t, emb.tasks, 1)
	assert.Equal(t, embed.TaskQuery, emb.tasks[0])
}

func TestAnswer_ParallelSearchesBothClassesHalfEach(t *testing.T) {
	// Given a store with one private article and hits in both classes
	st := &fakeStore{
		privateIDs: []int64{99},
		respond: func(q store.SearchQuery) []store.SearchResult {
			if q.AllowedTypes[0] == DefaultSummaryTypes[0] {
				return []store.SearchResult{result(1, 1, 0, 0.8, "summary")}
			}
			return []store.SearchResult{result(2, 5, 0, 0.9, "transcript")}
		},
	}
	e, _ := newTestEngine(st, &recordingGenerator{out: "answer"})

	// When a parallel query runs with an odd top_k
	resp, err := e.Answer(context.Background(), "q", Options{TopK: 7, Threshold: 0.2, Mode: ModeParallel})
	require.NoError(t, err)

	// Then each class gets half the budget, rounded up, with privates excluded
	summaryQ := st.queryByTypes(t, DefaultSummaryTypes[0])
	transcriptQ := st.queryByTypes(t, DefaultTranscriptTypes[0])
	for _, q := range []store.SearchQuery{summaryQ, transcriptQ} {
		assert.Equal(t, 4, q.Count)
		assert.Equal(t, 0.2, q.Threshold)
		assert.Equal(t, []int64{99}, q.ExcludedArticles)
	}

	// And the merged result is sorted best-first
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, 0.9, resp.Sources[0].Score)
	assert.Equal(t, "parallel", resp.SearchMode)
}

func TestAnswer_ParallelDeduplicatesByMaxScore(t *testing.T) {
	// Given the same chunk surfacing in both passes with different scores
	st := &fakeStore{respond: func(q store.SearchQuery) []store.SearchResult {
		if q.AllowedTypes[0] == DefaultSummaryTypes[0] {
			return []store.SearchResult{result(1, 2, 3, 0.42, "summary")}
		}
		return []store.SearchResult{result(1, 2, 3, 0.51, "transcript")}
	}}
	e, _ := newTestEngine(st, &recordingGenerator{out: "answer"})

	// When a parallel query runs
	resp, err := e.Answer(context.Background(), "q", Options{Mode: ModeParallel})

	// Then the chunk appears once, at its higher score
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 0.51, resp.Sources[0].Score)
}

func TestAnswer_EmptyResultsShortCircuitGeneration(t *testing.T) {
	// Given a store with no matches
	st := &fakeStore{}
	gen := &recordingGenerator{out: "should never appear"}
	e, _ := newTestEngine(st, gen)

	// When a query runs
	resp, err := e.Answer(context.Background(), "anything about quasars?", Options{})

	// Then the canned answer comes back and the generator is never called
	require.NoError(t, err)
	assert.Equal(t, notFoundAnswer, resp.Answer)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.GenerationTimeMS)
	assert.Empty(t, gen.prompts)
}

func TestAnswer_LayeredRestrictsFocusedPassToShortlist(t *testing.T) {
	// Given summary hits in two articles and transcript hits in one
	focused := result(7, 70, 0, 0.6, "transcript")
	st := &fakeStore{respond: func(q store.SearchQuery) []store.SearchResult {
		if q.AllowedTypes[0] == DefaultSummaryTypes[0] {
			return []store.SearchResult{
				result(7, 71, 0, 0.5, "summary"),
				result(8, 81, 0, 0.3, "summary"),
				result(7, 72, 0, 0.2, "summary"),
			}
		}
		return []store.SearchResult{focused}
	}}
	e, _ := newTestEngine(st, &recordingGenerator{out: "answer"})

	// When a layered query runs
	resp, err := e.Answer(context.Background(), "q", Options{TopK: 5, Threshold: 0.3, Mode: ModeLayered})
	require.NoError(t, err)

	// Then the shortlist pass used the loose fixed parameters
	shortlistQ := st.queryByTypes(t, DefaultSummaryTypes[0])
	assert.Equal(t, shortlistThreshold, shortlistQ.Threshold)
	assert.Equal(t, shortlistCount, shortlistQ.Count)
	assert.Zero(t, shortlistQ.EfSearch)

	// And the focused pass carried the caller's parameters plus the shortlist
	focusedQ := st.queryByTypes(t, DefaultTranscriptTypes[0])
	assert.Equal(t, 0.3, focusedQ.Threshold)
	assert.Equal(t, 5, focusedQ.Count)
	assert.Equal(t, focusedEfSearch, focusedQ.EfSearch)
	assert.Equal(t, []int64{7, 8}, focusedQ.ArticleFilter)

	require.Len(t, resp.Sources, 1)
	assert.Equal(t, focused, resp.Sources[0])
	assert.Equal(t, "layered", resp.SearchMode)
}

func TestAnswer_LayeredFallsBackToShortlistResults(t *testing.T) {
	// Given summary hits but an empty focused pass
	st := &fakeStore{respond: func(q store.SearchQuery) []store.SearchResult {
		if q.AllowedTypes[0] == DefaultSummaryTypes[0] {
			return []store.SearchResult{
				result(1, 1, 0, 0.5, "summary"),
				result(2, 2, 0, 0.4, "summary"),
				result(3, 3, 0, 0.3, "summary"),
			}
		}
		return nil
	}}
	e, _ := newTestEngine(st, &recordingGenerator{out: "answer"})

	// When a layered query runs with top_k below the shortlist size
	resp, err := e.Answer(context.Background(), "q", Options{TopK: 2, Mode: ModeLayered})

	// Then the shortlist results come back, truncated to top_k
	require.NoError(t, err)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, 0.5, resp.Sources[0].Score)
	assert.Equal(t, 0.4, resp.Sources[1].Score)
}

func TestAnswer_LayeredEmptyShortlistReturnsCannedAnswer(t *testing.T) {
	st := &fakeStore{}
	gen := &recordingGenerator{}
	e, _ := newTestEngine(st, gen)

	resp, err := e.Answer(context.Background(), "q", Options{Mode: ModeLayered})

	require.NoError(t, err)
	assert.Equal(t, notFoundAnswer, resp.Answer)
	assert.Empty(t, gen.prompts)

	// Only the shortlist pass ran; there was nothing to focus on.
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Len(t, st.queries, 1)
}

func TestAnswer_SingleModeSearchesAllTypes(t *testing.T) {
	// Given a store with one private article
	st := &fakeStore{
		privateIDs: []int64{5},
		respond: func(store.SearchQuery) []store.SearchResult {
			return []store.SearchResult{result(1, 1, 0, 0.7, "transcript")}
		},
	}
	e, _ := newTestEngine(st, &recordingGenerator{out: "answer"})

	// When a single-mode query runs
	resp, err := e.Answer(context.Background(), "q", Options{TopK: 3, Threshold: 0.2, Mode: ModeSingle})
	require.NoError(t, err)

	// Then one unrestricted pass ran with the caller's parameters
	st.mu.Lock()
	require.Len(t, st.queries, 1)
	q := st.queries[0]
	st.mu.Unlock()
	assert.Empty(t, q.AllowedTypes)
	assert.Equal(t, 3, q.Count)
	assert.Equal(t, 0.2, q.Threshold)
	assert.Equal(t, []int64{5}, q.ExcludedArticles)
	assert.Equal(t, "single", resp.SearchMode)
}

func TestAnswer_DefaultsAppliedToZeroOptions(t *testing.T) {
	st := &fakeStore{respond: func(store.SearchQuery) []store.SearchResult {
		return []store.SearchResult{result(1, 1, 0, 0.9, "summary")}
	}}
	e, _ := newTestEngine(st, &recordingGenerator{out: "answer"})

	resp, err := e.Answer(context.Background(), "q", Options{})
	require.NoError(t, err)

	assert.Equal(t, "parallel", resp.SearchMode)
	q := st.queryByTypes(t, DefaultSummaryTypes[0])
	assert.Equal(t, DefaultThreshold, q.Threshold)
	assert.Equal(t, DefaultTopK/2, q.Count)
}

func TestAnswer_SearchErrorSurfacesWithCode(t *testing.T) {
	st := &fakeStore{searchErr: errors.New("index unavailable")}
	e, _ := newTestEngine(st, &recordingGenerator{})

	_, err := e.Answer(context.Background(), "q", Options{Mode: ModeSingle})

	require.Error(t, err)
	assert.Equal(t, kerrors.ErrCodeSearchFailed, kerrors.GetCode(err))
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestAnswer_PromptCarriesSourcesAndLanguage(t *testing.T) {
	// Given one source in a different language than the answer language
	src := result(1, 1, 0, 0.876, "transcript")
	src.Language = "zh"
	src.Content = "chunk body text"
	st := &fakeStore{respond: func(store.SearchQuery) []store.SearchResult {
		return []store.SearchResult{src}
	}}
	gen := &recordingGenerator{out: "answer"}
	e, _ := newTestEngine(st, gen)

	// When a query runs
	resp, err := e.Answer(context.Background(), "what was said?", Options{Mode: ModeSingle})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Answer)

	// Then the prompt enumerates the source with its metadata
	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "what was said?")
	assert.Contains(t, prompt, "[Source 1]")
	assert.Contains(t, prompt, "Type: transcript")
	assert.Contains(t, prompt, "Language: zh")
	assert.Contains(t, prompt, "Score: 0.876")
	assert.Contains(t, prompt, "chunk body text")
	assert.Contains(t, prompt, "Answer in English")
}

func TestDedupeByMaxScore(t *testing.T) {
	merged := dedupeByMaxScore([]store.SearchResult{
		result(1, 2, 3, 0.42, "summary"),
		result(1, 2, 3, 0.51, "transcript"),
		result(1, 2, 4, 0.30, "transcript"),
	})

	require.Len(t, merged, 2)
	sortByScore(merged)
	assert.Equal(t, 0.51, merged[0].Score)
	assert.Equal(t, "transcript", merged[0].SectionType)
	assert.Equal(t, 0.30, merged[1].Score)
}
