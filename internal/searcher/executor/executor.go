// Package executor answers single-term queries against an index store.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
)

// Result is one matching document.
type Result struct {
	Document string  `json:"document"`
	Weight   float64 `json:"weight"`
}

// SearchResult is the answer for one term from one generation.
type SearchResult struct {
	Term       string   `json:"term"`
	Generation string   `json:"generation"`
	TotalHits  int      `json:"total_hits"`
	Results    []Result `json:"results"`
}

// Search returns the documents containing term in posting order. A term the
// index does not hold yields an empty, non-nil slice and no error. Errors
// wrapping ErrCorruptIndex report an inconsistent generation; the store
// stays usable for other lookups.
func Search(ctx context.Context, s store.Store, term string) ([]Result, error) {
	term = tokenizer.Normalize(term)
	if term == "" {
		return []Result{}, nil
	}
	tok, err := s.Token(term)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenNotFound) {
			return []Result{}, nil
		}
		return nil, fmt.Errorf("looking up token %q: %w", term, err)
	}

	results := make([]Result, 0, tok.DocumentCount)
	for ordinal := tok.PostingIndex; ordinal < tok.End(); ordinal++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.Posting(ordinal)
		if err != nil {
			return nil, fmt.Errorf("reading posting %d of %q: %w", ordinal, term, err)
		}
		name, err := s.Document(p.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("resolving document %d of %q: %w", p.DocumentID, term, err)
		}
		results = append(results, Result{Document: name, Weight: p.Weight})
	}
	return results, nil
}
