package index

// Posting records how often one term occurs in each field of one document.
// TermFreq always has one slot per indexed field.
type Posting struct {
	DocID    string `json:"d"`
	TermFreq []int  `json:"f"`
}

// PostingList holds every posting of one term in insertion order, at most
// one per document.
type PostingList []Posting

// TermEntry pairs a term spelling with its postings.
type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}

// DocumentEntry is a registered document and its per-field token counts.
type DocumentEntry struct {
	DocID        string `json:"doc_id"`
	FieldLengths []int  `json:"field_lengths"`
}

func (p Posting) clone() Posting {
	freq := make([]int, len(p.TermFreq))
	copy(freq, p.TermFreq)
	return Posting{DocID: p.DocID, TermFreq: freq}
}

func (l PostingList) clone() PostingList {
	out := make(PostingList, len(l))
	for i, p := range l {
		out[i] = p.clone()
	}
	return out
}
