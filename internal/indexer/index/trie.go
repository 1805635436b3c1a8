package index

import (
	"sort"
	"unicode/utf8"
)

// node is one character position in the term trie. A node owns postings
// only when the path from the root to it spells an indexed term.
type node struct {
	children map[rune]*node
	postings PostingList
}

func (n *node) isEmpty() bool {
	return len(n.postings) == 0 && len(n.children) == 0
}

// insert walks or creates the path for term and upserts the posting for
// docID at its end. fieldCount sizes the frequency vector of new postings.
func (n *node) insert(term, docID string, field, fieldCount, freq int) {
	cur := n
	for _, r := range term {
		if cur.children == nil {
			cur.children = make(map[rune]*node)
		}
		next, ok := cur.children[r]
		if !ok {
			next = &node{}
			cur.children[r] = next
		}
		cur = next
	}
	if i := cur.postingIndex(docID); i >= 0 {
		cur.postings[i].TermFreq[field] = freq
		return
	}
	tf := make([]int, fieldCount)
	tf[field] = freq
	cur.postings = append(cur.postings, Posting{DocID: docID, TermFreq: tf})
}

// postingIndex returns the position of docID's posting or -1. All fields of
// a document are inserted back to back, so the last posting is checked first.
func (n *node) postingIndex(docID string) int {
	last := len(n.postings) - 1
	if last < 0 {
		return -1
	}
	if n.postings[last].DocID == docID {
		return last
	}
	for i := last - 1; i >= 0; i-- {
		if n.postings[i].DocID == docID {
			return i
		}
	}
	return -1
}

func (n *node) find(term string) *node {
	cur := n
	for _, r := range term {
		next, ok := cur.children[r]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// walk visits every node owning postings at or below n, depth-first with
// children in ascending rune order.
func (n *node) walk(prefix string, fn func(term string, postings PostingList)) {
	n.walkInto([]byte(prefix), fn)
}

func (n *node) walkInto(path []byte, fn func(term string, postings PostingList)) {
	if len(n.postings) > 0 {
		fn(string(path), n.postings)
	}
	if len(n.children) == 0 {
		return
	}
	keys := make([]rune, 0, len(n.children))
	for r := range n.children {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, r := range keys {
		n.children[r].walkInto(utf8.AppendRune(path, r), fn)
	}
}

// vacuum drops postings of removed documents below n and prunes children
// left with neither postings nor children. Pruning runs post-order so an
// emptied path collapses all the way up to the first node still in use.
func (n *node) vacuum(removed RemovedSet) (purged, pruned int) {
	for r, child := range n.children {
		p, pr := child.vacuum(removed)
		purged += p
		pruned += pr
		if child.isEmpty() {
			delete(n.children, r)
			pruned++
		}
	}
	if len(n.children) == 0 {
		n.children = nil
	}
	if len(n.postings) == 0 {
		return purged, pruned
	}
	kept := n.postings[:0]
	for _, p := range n.postings {
		if removed.Has(p.DocID) {
			purged++
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(n.postings); i++ {
		n.postings[i] = Posting{}
	}
	if len(kept) == 0 {
		n.postings = nil
	} else {
		n.postings = kept
	}
	return purged, pruned
}

func (n *node) countNodes() int {
	total := 1
	for _, child := range n.children {
		total += child.countNodes()
	}
	return total
}
