package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/keepstack/keeprag/internal/errors"
	"github.com/keepstack/keeprag/internal/search"
	"github.com/keepstack/keeprag/internal/store"
)

type fakeEngine struct {
	question string
	opts     search.Options
	resp     *search.Response
	err      error
}

func (f *fakeEngine) Answer(_ context.Context, question string, opts search.Options) (*search.Response, error) {
	f.question = question
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeWorker struct {
	handled   int
	runErr    error
	sectionID int64
	direct    int
	directErr error
}

func (f *fakeWorker) Run(context.Context) (int, error) {
	return f.handled, f.runErr
}

func (f *fakeWorker) ProcessSection(_ context.Context, sectionID int64) error {
	f.sectionID = sectionID
	f.direct++
	return f.directErr
}

func newTestServer(engine *fakeEngine, worker *fakeWorker) http.Handler {
	return New("", engine, worker).Handler()
}

func TestQuery_ReturnsEngineResponse(t *testing.T) {
	// Given an engine with a full response ready
	engine := &fakeEngine{resp: &search.Response{
		Answer: "grounded answer",
		Sources: []store.SearchResult{
			{ArticleID: 1, SectionID: 2, ChunkID: 0, Score: 0.9, Content: "src"},
		},
		QueryEmbeddingTimeMS: 12,
		SearchTimeMS:         5,
		GenerationTimeMS:     300,
		TotalTimeMS:          320,
		SearchMode:           "parallel",
	}}
	h := newTestServer(engine, &fakeWorker{})

	// When a query posts with explicit options
	body := `{"question":"what is hnsw?","top_k":7,"score_threshold":0.3,"mode":"layered"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body)))

	// Then the options reach the engine and the response round-trips
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what is hnsw?", engine.question)
	assert.Equal(t, 7, engine.opts.TopK)
	assert.Equal(t, 0.3, engine.opts.Threshold)
	assert.Equal(t, search.ModeLayered, engine.opts.Mode)

	var resp search.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "grounded answer", resp.Answer)
	assert.Equal(t, int64(300), resp.GenerationTimeMS)
	assert.Equal(t, "parallel", resp.SearchMode)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestQuery_BlankQuestionIs400(t *testing.T) {
	engine := &fakeEngine{err: kerrors.New(kerrors.ErrCodeQuestionEmpty, "question must not be empty", nil)}
	h := newTestServer(engine, &fakeWorker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":""}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "question")
}

func TestQuery_MalformedBodyIs400(t *testing.T) {
	h := newTestServer(&fakeEngine{}, &fakeWorker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_InternalErrorIs500(t *testing.T) {
	engine := &fakeEngine{err: errors.New("model exploded")}
	h := newTestServer(engine, &fakeWorker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":"q"}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "model exploded", resp["error"])
}

func TestQuery_PreflightIsPermissive(t *testing.T) {
	h := newTestServer(&fakeEngine{}, &fakeWorker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/query", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "content-type")
}

func TestQuery_GetIsRejected(t *testing.T) {
	h := newTestServer(&fakeEngine{}, &fakeWorker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/query", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngest_BatchModeReportsHandledCount(t *testing.T) {
	worker := &fakeWorker{handled: 3}
	h := newTestServer(&fakeEngine{}, worker)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingest", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"handled":3}`, rec.Body.String())
	assert.Zero(t, worker.direct)
}

func TestIngest_SectionParamSelectsDirectMode(t *testing.T) {
	worker := &fakeWorker{}
	h := newTestServer(&fakeEngine{}, worker)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingest?section_id=42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"handled":1}`, rec.Body.String())
	assert.Equal(t, int64(42), worker.sectionID)
	assert.Equal(t, 1, worker.direct)
}

func TestIngest_InvalidSectionParamIs400(t *testing.T) {
	h := newTestServer(&fakeEngine{}, &fakeWorker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingest?section_id=abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_FailureIs500WithOKFalse(t *testing.T) {
	worker := &fakeWorker{runErr: errors.New("queue unavailable")}
	h := newTestServer(&fakeEngine{}, worker)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingest", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"queue unavailable"}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	h := newTestServer(&fakeEngine{}, &fakeWorker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
