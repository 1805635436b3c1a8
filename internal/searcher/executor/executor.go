// Package executor evaluates free-text queries against a MemoryIndex with
// BM25 scoring, per-field boosts and prefix expansion of every query term.
package executor

import (
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/ranker"
)

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
}

// Query scores every live document matching text. Documents in removed are
// never returned, though their postings may still be indexed.
func Query(
	idx *index.MemoryIndex,
	params ranker.Params,
	tokenize tokenizer.Func,
	filter tokenizer.Filter,
	removed index.RemovedSet,
	text string,
) ([]ranker.ScoredDoc, error) {
	res, err := Execute(idx, params, tokenize, filter, removed, text, 0)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Execute is Query with a result limit (<= 0 for all) and per-term match
// counts in TermStats.
func Execute(
	idx *index.MemoryIndex,
	params ranker.Params,
	tokenize tokenizer.Func,
	filter tokenizer.Filter,
	removed index.RemovedSet,
	text string,
	limit int,
) (*SearchResult, error) {
	if err := params.Validate(idx.FieldCount()); err != nil {
		return nil, err
	}
	result := &SearchResult{
		Query:     text,
		Results:   []ranker.ScoredDoc{},
		TermStats: make(map[string]int),
	}
	terms := tokenizer.Analyze(text, tokenize, filter)
	if len(terms) == 0 {
		return result, nil
	}
	totalDocs := liveDocCount(idx, removed)
	if totalDocs <= 0 {
		return result, nil
	}
	avgs := averageFieldLengths(idx, removed, params.LiveAverages)

	scores := make(map[string]float64)
	for _, term := range terms {
		matched := make(map[string]struct{})
		for _, entry := range idx.Expand(term) {
			docFreq := 0
			for _, p := range entry.Postings {
				if !removed.Has(p.DocID) {
					docFreq++
				}
			}
			if docFreq == 0 {
				continue
			}
			idf := ranker.IDF(totalDocs, docFreq)
			for _, p := range entry.Postings {
				if removed.Has(p.DocID) {
					continue
				}
				lengths, ok := idx.Document(p.DocID)
				if !ok {
					continue
				}
				matched[p.DocID] = struct{}{}
				for field, tf := range p.TermFreq {
					if tf == 0 {
						continue
					}
					scores[p.DocID] += ranker.Contribution(
						params.Boosts[field],
						idf,
						float64(tf),
						float64(lengths[field]),
						avgs[field],
						params.K1,
						params.B,
					)
				}
			}
		}
		result.TermStats[term] = len(matched)
	}

	ranked := ranker.Rank(scores, 0)
	result.TotalHits = len(ranked)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	result.Results = ranked
	return result, nil
}

// liveDocCount is the registry size minus removed keys that are registered.
func liveDocCount(idx *index.MemoryIndex, removed index.RemovedSet) int {
	n := idx.DocCount()
	for docID := range removed {
		if _, ok := idx.Document(docID); ok {
			n--
		}
	}
	return n
}

func averageFieldLengths(idx *index.MemoryIndex, removed index.RemovedSet, live bool) []float64 {
	stats := idx.FieldStats()
	if live {
		for docID := range removed {
			lengths, ok := idx.Document(docID)
			if !ok {
				continue
			}
			for i, l := range lengths {
				stats[i].TotalLength -= l
				stats[i].DocCount--
			}
		}
	}
	avgs := make([]float64, len(stats))
	for i, s := range stats {
		avgs[i] = s.Average()
	}
	return avgs
}
