package ranker

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
)

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Params configures BM25 scoring. Boosts holds one multiplier per field.
// LiveAverages makes average field lengths exclude documents that are
// pending removal instead of using the stored statistics.
type Params struct {
	K1           float64   `json:"k1"`
	B            float64   `json:"b"`
	Boosts       []float64 `json:"boosts"`
	LiveAverages bool      `json:"live_averages"`
}

// DefaultParams returns k1=1.2, b=0.75 and a boost of 1 for every field.
func DefaultParams(fieldCount int) Params {
	boosts := make([]float64, fieldCount)
	for i := range boosts {
		boosts[i] = 1
	}
	return Params{K1: DefaultK1, B: DefaultB, Boosts: boosts}
}

func (p Params) Validate(fieldCount int) error {
	if len(p.Boosts) != fieldCount {
		return fmt.Errorf("got %d field boosts for %d fields: %w", len(p.Boosts), fieldCount, apperrors.ErrInvalidInput)
	}
	if p.K1 < 0 || p.B < 0 || p.B > 1 {
		return fmt.Errorf("k1=%v b=%v out of range: %w", p.K1, p.B, apperrors.ErrInvalidInput)
	}
	return nil
}

// IDF returns ln(1 + (n - df + 0.5) / (df + 0.5)).
func IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

// TFNorm returns the saturated, length-normalised term frequency. It is 0
// when the average field length is 0.
func TFNorm(termFreq, fieldLength, avgFieldLength, k1, b float64) float64 {
	if avgFieldLength == 0 {
		return 0
	}
	lengthRatio := fieldLength / avgFieldLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	if denominator == 0 {
		return 0
	}
	return (termFreq * (k1 + 1)) / denominator
}

// Contribution is the score one field of one document adds for one term.
func Contribution(boost, idf, termFreq, fieldLength, avgFieldLength, k1, b float64) float64 {
	return boost * idf * TFNorm(termFreq, fieldLength, avgFieldLength, k1, b)
}

// Rank turns accumulated scores into a list ordered by descending score and
// then ascending document ID. Zero scores are dropped; limit <= 0 keeps all.
func Rank(scores map[string]float64, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		if score == 0 {
			continue
		}
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	Sort(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Sort orders docs by descending score, breaking ties by ascending DocID.
func Sort(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		return Less(docs[j], docs[i])
	})
}

// Less reports whether a ranks below b.
func Less(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}
