package search

import (
	"sort"

	"github.com/keepstack/keeprag/internal/store"
)

// resultKey identifies one retrievable unit across search passes.
type resultKey struct {
	articleID int64
	sectionID int64
	chunkID   int
}

// dedupeByMaxScore collapses rows sharing (article, section, chunk), keeping
// the higher score on conflict. A chunk surfaced by both the summary and
// transcript passes counts once, at its best score.
func dedupeByMaxScore(results []store.SearchResult) []store.SearchResult {
	best := make(map[resultKey]store.SearchResult, len(results))
	for _, r := range results {
		key := resultKey{r.ArticleID, r.SectionID, r.ChunkID}
		if existing, ok := best[key]; ok && existing.Score >= r.Score {
			continue
		}
		best[key] = r
	}

	merged := make([]store.SearchResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	return merged
}

// sortByScore orders results best-first, breaking score ties by ids so the
// ordering is stable across runs.
func sortByScore(results []store.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ArticleID != results[j].ArticleID {
			return results[i].ArticleID < results[j].ArticleID
		}
		if results[i].SectionID != results[j].SectionID {
			return results[i].SectionID < results[j].SectionID
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func truncate(results []store.SearchResult, n int) []store.SearchResult {
	if len(results) <= n {
		return results
	}
	return results[:n]
}
