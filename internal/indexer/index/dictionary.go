package index

import (
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/stoplist"
)

// Dictionary accumulates raw token -> document -> occurrence counts from
// concurrent document scans.
type Dictionary struct {
	mu    sync.Mutex
	terms map[string]map[int32]int
}

func NewDictionary() *Dictionary {
	return &Dictionary{
		terms: make(map[string]map[int32]int),
	}
}

// AddDocument merges one document's local counts. The whole merge is one
// critical section so no increment is lost to a concurrent writer.
func (d *Dictionary) AddDocument(docID int32, counts map[string]int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for term, n := range counts {
		docs, ok := d.terms[term]
		if !ok {
			docs = make(map[int32]int)
			d.terms[term] = docs
		}
		docs[docID] += n
	}
}

// Add records a single occurrence of term in docID.
func (d *Dictionary) Add(term string, docID int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	docs, ok := d.terms[term]
	if !ok {
		docs = make(map[int32]int)
		d.terms[term] = docs
	}
	docs[docID]++
}

// Count returns the occurrences of term in docID.
func (d *Dictionary) Count(term string, docID int32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terms[term][docID]
}

// Len returns the number of distinct terms.
func (d *Dictionary) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.terms)
}

// Prune removes every term the policy rejects, together with all of its
// per-document counts, and returns how many terms each verdict applied to.
// It must only run after every scan has finished.
func (d *Dictionary) Prune(policy stoplist.Policy) map[stoplist.Verdict]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	verdicts := make(map[stoplist.Verdict]int)
	for term, docs := range d.terms {
		total := 0
		for _, n := range docs {
			total += n
		}
		v := policy.Check(term, total)
		verdicts[v]++
		if v != stoplist.Admitted {
			delete(d.terms, term)
		}
	}
	return verdicts
}

// DocumentTotals sums, per document, the counts of every term still in the
// dictionary. After Prune these are the admissible token totals.
func (d *Dictionary) DocumentTotals() map[int32]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	totals := make(map[int32]int)
	for _, docs := range d.terms {
		for id, n := range docs {
			totals[id] += n
		}
	}
	return totals
}

// Layout lays out the posting array. Terms are enumerated in byte order and
// each run lists its documents in ascending id order, which is the order a
// sequential scan discovers them in.
func (d *Dictionary) Layout(docs []Document) *Index {
	totals := d.DocumentTotals()

	d.mu.Lock()
	defer d.mu.Unlock()

	terms := make([]string, 0, len(d.terms))
	size := 0
	for term, ds := range d.terms {
		terms = append(terms, term)
		size += len(ds)
	}
	slices.Sort(terms)

	tokens := make([]Token, 0, len(terms))
	postings := make([]Posting, 0, size)
	for _, term := range terms {
		counts := d.terms[term]
		ids := make([]int32, 0, len(counts))
		for id := range counts {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		start := int32(len(postings))
		for _, id := range ids {
			postings = append(postings, Posting{
				DocumentID: id,
				Weight:     Weight(counts[id], totals[id]),
			})
		}
		tokens = append(tokens, Token{
			Text:          term,
			DocumentCount: int32(len(ids)),
			PostingIndex:  start,
		})
	}
	return New(docs, tokens, postings)
}
