package index

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/trie-search/pkg/errors"
)

// MemoryIndex is a multi-field inverted index whose terms live in a
// character trie. It is not safe for concurrent use: callers must keep
// mutations exclusive with each other and with queries.
type MemoryIndex struct {
	fieldCount int
	root       *node
	registry   registry
}

// FieldAccessor extracts the text of one field from a document.
type FieldAccessor[D any] func(doc D) (string, error)

// VacuumStats reports the work done by one Vacuum pass.
type VacuumStats struct {
	PostingsPurged  int
	NodesPruned     int
	DocumentsPurged int
}

func NewMemoryIndex(fieldCount int) (*MemoryIndex, error) {
	if fieldCount <= 0 {
		return nil, fmt.Errorf("creating index with %d fields: %w", fieldCount, apperrors.ErrInvalidFieldCount)
	}
	return &MemoryIndex{
		fieldCount: fieldCount,
		root:       &node{},
		registry:   newRegistry(fieldCount),
	}, nil
}

// AddDocument analyses every field of doc and indexes it under docID. All
// accessors run before anything is mutated, so a failing accessor leaves the
// index untouched. Re-adding a registered key, even one pending removal, is
// rejected with ErrDocumentExists. Terms must be valid UTF-8.
func AddDocument[D any](
	m *MemoryIndex,
	accessors []FieldAccessor[D],
	tokenize tokenizer.Func,
	filter tokenizer.Filter,
	docID string,
	doc D,
) error {
	if len(accessors) != m.fieldCount {
		return fmt.Errorf("got %d field accessors for %d fields: %w",
			len(accessors), m.fieldCount, apperrors.ErrInvalidInput)
	}
	if _, exists := m.registry.docs[docID]; exists {
		return fmt.Errorf("adding document %q: %w", docID, apperrors.ErrDocumentExists)
	}

	lengths := make([]int, m.fieldCount)
	freqs := make([]map[string]int, m.fieldCount)
	for i, access := range accessors {
		text, err := access(doc)
		if err != nil {
			return fmt.Errorf("reading field %d of document %q: %w: %w", i, docID, apperrors.ErrFieldAccess, err)
		}
		terms := tokenizer.Analyze(text, tokenize, filter)
		lengths[i] = len(terms)
		counts := make(map[string]int, len(terms))
		for _, term := range terms {
			if !utf8.ValidString(term) {
				return fmt.Errorf("field %d of document %q has term %q: %w", i, docID, term, apperrors.ErrInvalidInput)
			}
			counts[term]++
		}
		freqs[i] = counts
	}

	m.registry.register(docID, lengths)
	for field, counts := range freqs {
		terms := make([]string, 0, len(counts))
		for term := range counts {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			m.root.insert(term, docID, field, m.fieldCount, counts[term])
		}
	}
	return nil
}

// RemoveDocument marks docID as removed. The trie, registry and field
// statistics are left as they are until Vacuum runs.
func (m *MemoryIndex) RemoveDocument(removed RemovedSet, docID string) {
	removed.Add(docID)
}

// Vacuum purges every posting and registry entry belonging to a key in
// removed, prunes emptied trie branches, updates field statistics and clears
// removed.
func (m *MemoryIndex) Vacuum(removed RemovedSet) VacuumStats {
	var stats VacuumStats
	if removed.Len() == 0 {
		return stats
	}
	stats.PostingsPurged, stats.NodesPruned = m.root.vacuum(removed)
	for docID := range removed {
		if m.registry.purge(docID) {
			stats.DocumentsPurged++
		}
	}
	removed.Clear()
	return stats
}

func (m *MemoryIndex) FieldCount() int {
	return m.fieldCount
}

// DocCount returns the number of registered documents, including those
// pending removal.
func (m *MemoryIndex) DocCount() int {
	return len(m.registry.docs)
}

// Document returns the field lengths registered for docID.
func (m *MemoryIndex) Document(docID string) ([]int, bool) {
	lengths, ok := m.registry.docs[docID]
	return lengths, ok
}

// FieldStats returns a copy of the per-field statistics.
func (m *MemoryIndex) FieldStats() []FieldStats {
	out := make([]FieldStats, len(m.registry.fields))
	copy(out, m.registry.fields)
	return out
}

// Lookup returns the postings of exactly term. The list is shared with the
// index and must not be modified.
func (m *MemoryIndex) Lookup(term string) PostingList {
	n := m.root.find(term)
	if n == nil {
		return nil
	}
	return n.postings
}

// Expand returns every indexed term starting with prefix, the prefix itself
// included, with its postings. Postings are shared with the index.
func (m *MemoryIndex) Expand(prefix string) []TermEntry {
	if prefix == "" {
		return nil
	}
	start := m.root.find(prefix)
	if start == nil {
		return nil
	}
	var entries []TermEntry
	start.walk(prefix, func(term string, postings PostingList) {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	})
	return entries
}

// Terms returns a deep copy of every term and its postings, sorted by term.
func (m *MemoryIndex) Terms() []TermEntry {
	var entries []TermEntry
	m.root.walk("", func(term string, postings PostingList) {
		entries = append(entries, TermEntry{Term: term, Postings: postings.clone()})
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// TermCount returns the number of distinct indexed terms.
func (m *MemoryIndex) TermCount() int {
	count := 0
	m.root.walk("", func(string, PostingList) { count++ })
	return count
}

// NodeCount returns the number of trie nodes, the root included.
func (m *MemoryIndex) NodeCount() int {
	return m.root.countNodes()
}

// Documents returns every registry entry sorted by key.
func (m *MemoryIndex) Documents() []DocumentEntry {
	entries := make([]DocumentEntry, 0, len(m.registry.docs))
	for docID, lengths := range m.registry.docs {
		l := make([]int, len(lengths))
		copy(l, lengths)
		entries = append(entries, DocumentEntry{DocID: docID, FieldLengths: l})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DocID < entries[j].DocID
	})
	return entries
}

// RegisterDocument adds a registry entry without touching the trie. It is
// the bulk-load counterpart of AddDocument used when restoring snapshots.
func (m *MemoryIndex) RegisterDocument(docID string, fieldLengths []int) error {
	if len(fieldLengths) != m.fieldCount {
		return fmt.Errorf("document %q has %d field lengths, want %d: %w",
			docID, len(fieldLengths), m.fieldCount, apperrors.ErrInvalidInput)
	}
	if _, exists := m.registry.docs[docID]; exists {
		return fmt.Errorf("registering document %q: %w", docID, apperrors.ErrDocumentExists)
	}
	lengths := make([]int, len(fieldLengths))
	copy(lengths, fieldLengths)
	m.registry.register(docID, lengths)
	return nil
}

// InsertPosting records freq occurrences of term in field of a registered
// document.
func (m *MemoryIndex) InsertPosting(term, docID string, field, freq int) error {
	if term == "" {
		return fmt.Errorf("inserting posting for %q: %w", docID, apperrors.ErrEmptyTerm)
	}
	if !utf8.ValidString(term) {
		return fmt.Errorf("inserting posting for %q: term %q: %w", docID, term, apperrors.ErrInvalidInput)
	}
	if field < 0 || field >= m.fieldCount {
		return fmt.Errorf("field %d out of range [0,%d): %w", field, m.fieldCount, apperrors.ErrInvalidInput)
	}
	if _, ok := m.registry.docs[docID]; !ok {
		return fmt.Errorf("inserting posting for %q: %w", docID, apperrors.ErrDocumentNotFound)
	}
	m.root.insert(term, docID, field, m.fieldCount, freq)
	return nil
}

// Restore rebuilds an index from its flat representation. Order of docs
// and terms does not matter; zero frequencies are skipped.
func Restore(fieldCount int, docs []DocumentEntry, terms []TermEntry) (*MemoryIndex, error) {
	m, err := NewMemoryIndex(fieldCount)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if err := m.RegisterDocument(d.DocID, d.FieldLengths); err != nil {
			return nil, err
		}
	}
	for _, t := range terms {
		for _, p := range t.Postings {
			if len(p.TermFreq) != fieldCount {
				return nil, fmt.Errorf("posting %q/%q has %d frequencies, want %d: %w",
					t.Term, p.DocID, len(p.TermFreq), fieldCount, apperrors.ErrInvalidInput)
			}
			for field, freq := range p.TermFreq {
				if freq == 0 {
					continue
				}
				if err := m.InsertPosting(t.Term, p.DocID, field, freq); err != nil {
					return nil, err
				}
			}
		}
	}
	return m, nil
}
