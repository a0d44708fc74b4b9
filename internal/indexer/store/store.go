// Package store provides uniform key/value lookups over one index
// generation, either held in memory or read record by record from the
// binary streams on disk.
package store

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
)

// Store answers the three lookups a query needs. Token returns an error
// wrapping ErrTokenNotFound for absent text; any error wrapping
// ErrCorruptIndex means the generation is inconsistent with itself.
// Implementations are safe for concurrent readers.
type Store interface {
	Token(text string) (index.Token, error)
	Posting(ordinal int32) (index.Posting, error)
	Document(id int32) (string, error)
	Close() error
}

// Memory serves lookups from the builder's native containers.
type Memory struct {
	ix *index.Index
}

var _ Store = (*Memory)(nil)

func NewMemory(ix *index.Index) *Memory {
	return &Memory{ix: ix}
}

func (m *Memory) Token(text string) (index.Token, error) {
	tok, ok := m.ix.Lookup(text)
	if !ok {
		return index.Token{}, fmt.Errorf("%w: %q", apperrors.ErrTokenNotFound, text)
	}
	return tok, nil
}

func (m *Memory) Posting(ordinal int32) (index.Posting, error) {
	if ordinal < 0 || int(ordinal) >= len(m.ix.Postings) {
		return index.Posting{}, fmt.Errorf("%w: posting %d out of range [0, %d)",
			apperrors.ErrCorruptIndex, ordinal, len(m.ix.Postings))
	}
	return m.ix.Postings[ordinal], nil
}

func (m *Memory) Document(id int32) (string, error) {
	if id < 0 || int(id) >= len(m.ix.Documents) {
		return "", fmt.Errorf("%w: document %d out of range [0, %d)",
			apperrors.ErrCorruptIndex, id, len(m.ix.Documents))
	}
	return m.ix.Documents[id].Name, nil
}

func (m *Memory) Close() error { return nil }

// Disk serves lookups with random reads against a segment directory. Token
// text is translated to a record ordinal through an in-memory map built once
// when the store is opened.
type Disk struct {
	reader   *segment.Reader
	ordinals map[string]int
}

var _ Store = (*Disk)(nil)

// OpenDisk opens the streams in dir. ordinals is the token-text to ordinal
// map of the generation that was written there; when nil it is recovered by
// scanning the token stream.
func OpenDisk(dir string, ordinals map[string]int) (*Disk, error) {
	r, err := segment.OpenReader(dir)
	if err != nil {
		return nil, fmt.Errorf("opening disk store: %w", err)
	}
	if ordinals == nil {
		ordinals, err = r.TokenOrdinals()
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("loading token ordinals: %w", err)
		}
	}
	return &Disk{reader: r, ordinals: ordinals}, nil
}

func (d *Disk) Token(text string) (index.Token, error) {
	ordinal, ok := d.ordinals[text]
	if !ok {
		return index.Token{}, fmt.Errorf("%w: %q", apperrors.ErrTokenNotFound, text)
	}
	tok, err := d.reader.Token(ordinal)
	if err != nil {
		return index.Token{}, err
	}
	if tok.Text != text {
		return index.Token{}, fmt.Errorf("%w: record %d holds %q, looked up %q",
			apperrors.ErrCorruptIndex, ordinal, tok.Text, text)
	}
	return tok, nil
}

func (d *Disk) Posting(ordinal int32) (index.Posting, error) {
	return d.reader.Posting(ordinal)
}

func (d *Disk) Document(id int32) (string, error) {
	return d.reader.Document(id)
}

// Counts returns the number of document, token and posting records.
func (d *Disk) Counts() (documents, tokens, postings int) {
	return d.reader.DocumentCount(), d.reader.TokenCount(), d.reader.PostingCount()
}

func (d *Disk) Close() error {
	return d.reader.Close()
}
