package index

import "sort"

// RemovedSet holds document keys that are marked for deletion but whose
// postings are still present in the index. It is owned by the caller and
// threaded through RemoveDocument, Vacuum and queries.
type RemovedSet map[string]struct{}

func NewRemovedSet() RemovedSet {
	return make(RemovedSet)
}

func (s RemovedSet) Add(docID string) {
	s[docID] = struct{}{}
}

// Has is safe on a nil set.
func (s RemovedSet) Has(docID string) bool {
	_, ok := s[docID]
	return ok
}

func (s RemovedSet) Len() int {
	return len(s)
}

// Keys returns the marked keys in ascending order.
func (s RemovedSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s RemovedSet) Clear() {
	for k := range s {
		delete(s, k)
	}
}
