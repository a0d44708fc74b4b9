// Package stoplist loads the stopword set and decides which tokens are
// admitted into an index generation.
package stoplist

import (
	"fmt"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
)

// Set is a frozen stopword lookup set.
type Set struct {
	words map[string]struct{}
}

// Load reads a whitespace-delimited stopword list from path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stopword list %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// Parse builds a Set from whitespace-delimited text. Words are folded the
// same way document tokens are.
func Parse(text string) *Set {
	fields := strings.Fields(text)
	s := &Set{words: make(map[string]struct{}, len(fields))}
	for _, w := range fields {
		s.words[tokenizer.Normalize(w)] = struct{}{}
	}
	return s
}

// Contains reports whether word is a stopword. A nil Set contains nothing.
func (s *Set) Contains(word string) bool {
	if s == nil {
		return false
	}
	_, ok := s.words[word]
	return ok
}

// Len returns the number of distinct stopwords.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}

// Verdict is the outcome of an admission check.
type Verdict int

const (
	Admitted Verdict = iota
	RejectedStopword
	RejectedTooShort
	RejectedTooLong
	RejectedRare
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case RejectedStopword:
		return "stopword"
	case RejectedTooShort:
		return "too_short"
	case RejectedTooLong:
		return "too_long"
	case RejectedRare:
		return "rare"
	default:
		return "unknown"
	}
}

// Policy is the corpus-global admission rule set. Stopwords may be nil when
// the stoplist is disabled.
type Policy struct {
	Stopwords      *Set
	MaxTokenLength int
	MinRepetitions int
}

// Check applies every admission rule to token, whose total number of
// occurrences across the corpus is occurrences. Lengths are measured in
// encoded bytes.
func (p Policy) Check(token string, occurrences int) Verdict {
	switch {
	case p.Stopwords.Contains(token):
		return RejectedStopword
	case len(token) <= 1:
		return RejectedTooShort
	case len(token) > p.MaxTokenLength:
		return RejectedTooLong
	case occurrences < p.MinRepetitions:
		return RejectedRare
	}
	return Admitted
}

// Admit reports whether token survives admission.
func (p Policy) Admit(token string, occurrences int) bool {
	return p.Check(token, occurrences) == Admitted
}
