package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	kerrors "github.com/keepstack/keeprag/internal/errors"
)

// Candidate over-fetch for approximate search: filters (type, article) drop
// candidates after the graph traversal, so we ask the graph for more than
// the caller wants.
const (
	candidateOverFetch = 8
	minCandidateFetch  = 64
)

// SQLiteStore implements Store over a single SQLite database plus an
// in-memory HNSW index over the embeddings table.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	index  *vectorIndex
	closed bool
}

// Verify interface implementation at compile time
var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the store at path. An empty path creates an
// in-memory store for testing. dims is the embedding dimension the vector
// index enforces.
func Open(path string, dims int) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, kerrors.Wrap(kerrors.ErrCodeStoreOpen, fmt.Errorf("create directory %s: %w", dir, err))
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrCodeStoreOpen, fmt.Errorf("open database: %w", err))
	}

	// Single writer to prevent lock contention; modernc.org/sqlite serializes
	// anyway and a pool of one keeps the in-memory DSN on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Set pragmas via statements (DSN params may be ignored by modernc.org/sqlite)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, kerrors.Wrap(kerrors.ErrCodeStoreOpen, fmt.Errorf("set pragma: %w", err))
		}
	}

	s := &SQLiteStore{
		db:    db,
		path:  path,
		index: newVectorIndex(dims),
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, kerrors.Wrap(kerrors.ErrCodeStoreOpen, fmt.Errorf("initialize schema: %w", err))
	}

	if err := s.loadVectors(context.Background()); err != nil {
		_ = db.Close()
		return nil, kerrors.Wrap(kerrors.ErrCodeStoreCorrupt, fmt.Errorf("load vector index: %w", err))
	}

	return s, nil
}

// initSchema creates the tables this core depends on.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		is_private INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sections (
		id INTEGER PRIMARY KEY,
		article_id INTEGER NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		section_type TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL
	);

	-- Job queue. Timestamps are unix nanoseconds so the updated_at CAS token
	-- round-trips exactly.
	CREATE TABLE IF NOT EXISTS embedding_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		section_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON embedding_jobs(status, created_at);

	CREATE TABLE IF NOT EXISTS article_embeddings (
		article_id INTEGER NOT NULL,
		section_id INTEGER NOT NULL,
		chunk_id INTEGER NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		section_type TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		meta TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (section_id, chunk_id)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_article ON article_embeddings(article_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// loadVectors rebuilds the in-memory HNSW index from the embeddings table.
func (s *SQLiteStore) loadVectors(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT rowid, embedding FROM article_embeddings`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var rowID int64
		var blob []byte
		if err := rows.Scan(&rowID, &blob); err != nil {
			return err
		}
		if err := s.index.add(rowID, decodeVector(blob)); err != nil {
			return fmt.Errorf("index row %d: %w", rowID, err)
		}
	}
	return rows.Err()
}

// SaveArticle inserts or replaces an article record.
func (s *SQLiteStore) SaveArticle(ctx context.Context, a *Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, title, is_private) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, is_private = excluded.is_private`,
		a.ID, a.Title, boolToInt(a.IsPrivate))
	return err
}

// SaveSection inserts or replaces a section record.
func (s *SQLiteStore) SaveSection(ctx context.Context, sec *Section) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (id, article_id, language, section_type, content) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			article_id = excluded.article_id,
			language = excluded.language,
			section_type = excluded.section_type,
			content = excluded.content`,
		sec.ID, sec.ArticleID, sec.Language, sec.SectionType, sec.Content)
	return err
}

// GetSection fetches one section by id.
func (s *SQLiteStore) GetSection(ctx context.Context, id int64) (*Section, error) {
	sec := &Section{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, article_id, language, section_type, content
		FROM sections WHERE id = ?`, id).
		Scan(&sec.ID, &sec.ArticleID, &sec.Language, &sec.SectionType, &sec.Content)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.ErrCodeSectionNotFound,
			fmt.Sprintf("section %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get section %d: %w", id, err)
	}
	return sec, nil
}

// EnqueueJob inserts a pending job for a section.
func (s *SQLiteStore) EnqueueJob(ctx context.Context, sectionID int64) (*Job, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_jobs (section_id, status, retry_count, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)`,
		sectionID, JobPending, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("enqueue job for section %d: %w", sectionID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches one job row.
func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, section_id, status, retry_count, last_error, created_at, updated_at
		FROM embedding_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, kerrors.New(kerrors.ErrCodeJobNotFound,
			fmt.Sprintf("job %d not found", id), nil)
	}
	return job, err
}

// PendingJobs returns up to limit pending jobs, oldest first (FIFO).
func (s *SQLiteStore) PendingJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.queryJobs(ctx, `
		SELECT id, section_id, status, retry_count, last_error, created_at, updated_at
		FROM embedding_jobs
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?`, JobPending, limit)
}

// StuckJobs returns processing jobs abandoned before olderThan with retry
// budget remaining. Recovers work from crashed workers without a heartbeat.
func (s *SQLiteStore) StuckJobs(ctx context.Context, limit int, olderThan time.Time) ([]*Job, error) {
	return s.queryJobs(ctx, `
		SELECT id, section_id, status, retry_count, last_error, created_at, updated_at
		FROM embedding_jobs
		WHERE status = ? AND updated_at < ? AND retry_count < ?
		ORDER BY updated_at ASC
		LIMIT ?`, JobProcessing, olderThan.UnixNano(), MaxJobRetries, limit)
}

// ClaimJob is the sole concurrency-control primitive: a conditional update
// on (id, updated_at). Two workers carrying the same observed updated_at
// cannot both match the row; the loser affects zero rows and skips the job.
func (s *SQLiteStore) ClaimJob(ctx context.Context, id int64, expectedUpdatedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE embedding_jobs
		SET status = ?, updated_at = ?
		WHERE id = ? AND updated_at = ?`,
		JobProcessing, time.Now().UTC().UnixNano(), id, expectedUpdatedAt.UnixNano())
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CompleteJob marks terminal success and clears last_error.
func (s *SQLiteStore) CompleteJob(ctx context.Context, id int64) error {
	return s.finishJob(ctx, id, JobDone, 0, nil)
}

// ReleaseJob returns a failed job to the queue for a future invocation.
func (s *SQLiteStore) ReleaseJob(ctx context.Context, id int64, retryCount int, lastError string) error {
	return s.finishJob(ctx, id, JobPending, retryCount, &lastError)
}

// FailJob freezes a job at terminal error. Requires external remediation.
func (s *SQLiteStore) FailJob(ctx context.Context, id int64, retryCount int, lastError string) error {
	return s.finishJob(ctx, id, JobError, retryCount, &lastError)
}

func (s *SQLiteStore) finishJob(ctx context.Context, id int64, status JobStatus, retryCount int, lastError *string) error {
	var err error
	now := time.Now().UTC().UnixNano()
	if lastError == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE embedding_jobs
			SET status = ?, last_error = NULL, updated_at = ?
			WHERE id = ?`, status, now, id)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE embedding_jobs
			SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
			WHERE id = ?`, status, retryCount, *lastError, now, id)
	}
	if err != nil {
		return fmt.Errorf("finish job %d as %s: %w", id, status, err)
	}
	return nil
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		lastError sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&job.ID, &job.SectionID, &job.Status, &job.RetryCount,
		&lastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.LastError = lastError.String
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &job, nil
}

// chunkMeta is the serialized meta column.
type chunkMeta struct {
	Compressed bool `json:"compressed"`
}

// UpsertChunk writes one embedded chunk keyed by (section_id, chunk_id).
// The conflict clause keeps the rowid stable so the vector index entry is
// replaced, not duplicated.
func (s *SQLiteStore) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	meta, err := json.Marshal(chunkMeta{Compressed: chunk.Compressed})
	if err != nil {
		return fmt.Errorf("marshal chunk meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO article_embeddings
			(article_id, section_id, chunk_id, language, section_type, content, embedding, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(section_id, chunk_id) DO UPDATE SET
			article_id = excluded.article_id,
			language = excluded.language,
			section_type = excluded.section_type,
			content = excluded.content,
			embedding = excluded.embedding,
			meta = excluded.meta`,
		chunk.ArticleID, chunk.SectionID, chunk.ChunkID,
		chunk.Language, chunk.SectionType, chunk.Content,
		encodeVector(chunk.Embedding), string(meta))
	if err != nil {
		return fmt.Errorf("upsert chunk (%d,%d): %w", chunk.SectionID, chunk.ChunkID, err)
	}

	var rowID int64
	err = s.db.QueryRowContext(ctx, `
		SELECT rowid FROM article_embeddings WHERE section_id = ? AND chunk_id = ?`,
		chunk.SectionID, chunk.ChunkID).Scan(&rowID)
	if err != nil {
		return fmt.Errorf("resolve chunk rowid (%d,%d): %w", chunk.SectionID, chunk.ChunkID, err)
	}

	return s.index.add(rowID, chunk.Embedding)
}

// PrivateArticleIDs lists article ids flagged private.
func (s *SQLiteStore) PrivateArticleIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM articles WHERE is_private = 1`)
	if err != nil {
		return nil, fmt.Errorf("list private articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Search runs one approximate similarity pass: graph candidates first, then
// metadata filters, threshold, score-descending order, and truncation.
func (s *SQLiteStore) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	if q.Count <= 0 {
		return []SearchResult{}, nil
	}

	k := q.Count * candidateOverFetch
	if k < minCandidateFetch {
		k = minCandidateFetch
	}
	if q.EfSearch > k {
		k = q.EfSearch
	}

	candidates, err := s.index.search(q.Vector, k, q.EfSearch)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrCodeSearchFailed, err)
	}
	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	scores := make(map[int64]float64, len(candidates))
	placeholders := make([]string, 0, len(candidates))
	args := make([]any, 0, len(candidates))
	for _, c := range candidates {
		scores[c.rowID] = c.score
		placeholders = append(placeholders, "?")
		args = append(args, c.rowID)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT rowid, article_id, section_id, chunk_id, language, section_type, content
		FROM article_embeddings
		WHERE rowid IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrCodeSearchFailed, err)
	}
	defer func() { _ = rows.Close() }()

	allowed := makeSet(q.AllowedTypes)
	var articleFilter map[int64]struct{}
	if q.ArticleFilter != nil {
		articleFilter = makeInt64Set(q.ArticleFilter)
	}
	excluded := makeInt64Set(q.ExcludedArticles)

	results := make([]SearchResult, 0, q.Count)
	for rows.Next() {
		var rowID int64
		var r SearchResult
		if err := rows.Scan(&rowID, &r.ArticleID, &r.SectionID, &r.ChunkID,
			&r.Language, &r.SectionType, &r.Content); err != nil {
			return nil, err
		}

		r.Score = scores[rowID]
		if r.Score < q.Threshold {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[r.SectionType]; !ok {
				continue
			}
		}
		if articleFilter != nil {
			if _, ok := articleFilter[r.ArticleID]; !ok {
				continue
			}
		}
		if _, ok := excluded[r.ArticleID]; ok {
			continue
		}

		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > q.Count {
		results = results[:q.Count]
	}
	return results, nil
}

// VectorCount reports the number of live entries in the vector index.
func (s *SQLiteStore) VectorCount() int {
	return s.index.count()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func makeSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func makeInt64Set(items []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
