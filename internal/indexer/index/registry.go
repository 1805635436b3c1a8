package index

// FieldStats aggregates the lengths of one field across every registered
// document, including documents that are marked removed but not vacuumed.
type FieldStats struct {
	TotalLength int `json:"total_length"`
	DocCount    int `json:"doc_count"`
}

// Average returns the mean field length, or 0 for an empty registry.
func (s FieldStats) Average() float64 {
	if s.DocCount == 0 {
		return 0
	}
	return float64(s.TotalLength) / float64(s.DocCount)
}

// registry maps document keys to their per-field lengths and keeps the
// field statistics in lockstep with its contents.
type registry struct {
	docs   map[string][]int
	fields []FieldStats
}

func newRegistry(fieldCount int) registry {
	return registry{
		docs:   make(map[string][]int),
		fields: make([]FieldStats, fieldCount),
	}
}

func (r *registry) register(docID string, lengths []int) {
	r.docs[docID] = lengths
	for i, l := range lengths {
		r.fields[i].TotalLength += l
		r.fields[i].DocCount++
	}
}

func (r *registry) purge(docID string) bool {
	lengths, ok := r.docs[docID]
	if !ok {
		return false
	}
	for i, l := range lengths {
		r.fields[i].TotalLength -= l
		r.fields[i].DocCount--
	}
	delete(r.docs, docID)
	return true
}
