// Package search implements the query-time retrieval engine: question
// embedding, multi-pass similarity search over stored chunks, score-ranked
// merge and dedup, and grounded answer generation.
package search

import "github.com/keepstack/keeprag/internal/store"

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeLayered shortlists candidate articles with a cheap summary pass,
	// then searches transcripts restricted to the shortlist.
	ModeLayered Mode = "layered"

	// ModeParallel searches summary and transcript section types
	// concurrently and merges by score. The default.
	ModeParallel Mode = "parallel"

	// ModeSingle is the legacy one-pass search over every section type.
	ModeSingle Mode = "single"
)

// Caller-facing defaults.
const (
	DefaultTopK      = 20
	DefaultThreshold = 0.15
)

// Layered-mode tuning. The shortlist pass runs a deliberately loose
// threshold so weak summary matches can still nominate their articles; the
// focused pass widens the approximate-search effort because its article
// filter discards most graph candidates.
const (
	shortlistThreshold = 0.1
	shortlistCount     = 20
	focusedEfSearch    = 100
)

// Default section-type classes, matching how sections are tagged upstream.
var (
	DefaultSummaryTypes    = []string{"summary", "key_takeaways", "profile"}
	DefaultTranscriptTypes = []string{"transcript", "raw", "paragraph", "section"}
)

// DefaultAnswerLanguage is the language answers are written in regardless of
// source language; non-matching sources get translated, not omitted.
const DefaultAnswerLanguage = "English"

// Options parameterizes one Engine.Answer call. Zero values take the
// package defaults.
type Options struct {
	TopK      int
	Threshold float64
	Mode      Mode
}

// Response is the full retrieval result including the timing breakdown.
type Response struct {
	Answer  string               `json:"answer"`
	Sources []store.SearchResult `json:"sources"`

	QueryEmbeddingTimeMS int64  `json:"query_embedding_time_ms"`
	SearchTimeMS         int64  `json:"search_time_ms"`
	GenerationTimeMS     int64  `json:"generation_time_ms"`
	TotalTimeMS          int64  `json:"total_time_ms"`
	SearchMode           string `json:"search_mode"`
}
