// Package merger combines per-shard ranked lists into one global top-k list
// using a bounded min-heap.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/searcher/ranker"
)

// Merge returns the best limit documents across all shard results, ordered
// by descending score and then ascending DocID. limit <= 0 keeps everything.
func Merge(shardResults [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		all := make([]ranker.ScoredDoc, 0)
		for _, results := range shardResults {
			all = append(all, results...)
		}
		ranker.Sort(all)
		return all
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for _, results := range shardResults {
		for _, doc := range results {
			heap.Push(h, doc)
			if h.Len() > limit {
				heap.Pop(h)
			}
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap keeps the weakest document on top so it is evicted first.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return ranker.Less(h[i], h[j]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
