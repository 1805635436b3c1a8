package tokenizer

import (
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `A trie stores every indexed term along the path of its characters, so
        a prefix query walks one branch and collects the postings below it. Each
        posting keeps one term frequency per field for BM25 scoring.`,
	"long": strings.Repeat(`Removing a document only marks it. Queries skip marked keys while
        their postings stay in the trie until a vacuum purges them and prunes the
        branches that became empty. `, 20),
}

func BenchmarkAnalyze(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Analyze(text, Split, Normalize)
			}
		})
	}
}

func BenchmarkStem(b *testing.B) {
	words := []string{"running", "indexed", "tries", "vacuuming", "searches", "ranking"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = stem(w)
		}
	}
}
