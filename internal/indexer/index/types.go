// Package index holds the entities of an inverted-index generation and the
// concurrent dictionary the builder aggregates raw counts into.
package index

import "fmt"

// Document is a corpus file. IDs are dense and zero-based in scan order.
type Document struct {
	ID   int32
	Name string
}

// Token is an admitted word. Its postings are the run
// [PostingIndex, PostingIndex+DocumentCount) of the generation's posting
// array.
type Token struct {
	Text          string
	DocumentCount int32
	PostingIndex  int32
}

// End returns the exclusive upper bound of the token's posting run.
func (t Token) End() int32 {
	return t.PostingIndex + t.DocumentCount
}

// Posting records that a token occurs in a document with a relevance weight.
type Posting struct {
	DocumentID int32
	Weight     float64
}

// Weight is the relevance of a token that occurs count times in a document
// holding total admitted tokens.
func Weight(count, total int) float64 {
	return float64(count*100) / float64(total)
}

// Index is one complete generation in native containers.
type Index struct {
	Documents []Document
	Tokens    []Token
	Postings  []Posting

	ordinals map[string]int
}

// New assembles an Index and builds its token-text lookup.
func New(docs []Document, tokens []Token, postings []Posting) *Index {
	ix := &Index{
		Documents: docs,
		Tokens:    tokens,
		Postings:  postings,
		ordinals:  make(map[string]int, len(tokens)),
	}
	for i, tok := range tokens {
		ix.ordinals[tok.Text] = i
	}
	return ix
}

// Ordinal returns the position of text in Tokens.
func (ix *Index) Ordinal(text string) (int, bool) {
	i, ok := ix.ordinals[text]
	return i, ok
}

// Lookup returns the token record for text.
func (ix *Index) Lookup(text string) (Token, bool) {
	i, ok := ix.ordinals[text]
	if !ok {
		return Token{}, false
	}
	return ix.Tokens[i], true
}

// Ordinals returns the token-text to ordinal map. Callers must not modify it.
func (ix *Index) Ordinals() map[string]int {
	return ix.ordinals
}

// Validate checks that posting runs are disjoint, cover the whole posting
// array in token order, and reference known documents.
func (ix *Index) Validate() error {
	var next int32
	for _, tok := range ix.Tokens {
		if tok.PostingIndex != next {
			return fmt.Errorf("token %q run starts at %d, want %d", tok.Text, tok.PostingIndex, next)
		}
		if tok.DocumentCount <= 0 {
			return fmt.Errorf("token %q has empty run", tok.Text)
		}
		next = tok.End()
	}
	if int(next) != len(ix.Postings) {
		return fmt.Errorf("runs cover %d postings, array holds %d", next, len(ix.Postings))
	}
	for i, p := range ix.Postings {
		if p.DocumentID < 0 || int(p.DocumentID) >= len(ix.Documents) {
			return fmt.Errorf("posting %d references unknown document %d", i, p.DocumentID)
		}
	}
	return nil
}
