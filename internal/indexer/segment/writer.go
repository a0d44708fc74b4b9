package segment

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/index"
)

// Writer serialises a generation into the three record streams of one
// directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer that writes into dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write persists ix. The three streams are written concurrently, each by a
// single goroutine in enumeration order. Every stream goes to a .tmp file
// that is renamed into place only once all three succeeded; on failure no
// .bin file from this call is left behind.
func (w *Writer) Write(ctx context.Context, ix *index.Index) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}

	streams := []struct {
		name  string
		write func(*bufio.Writer) error
	}{
		{DocumentsFile, func(bw *bufio.Writer) error { return writeDocuments(bw, ix.Documents) }},
		{PostingsFile, func(bw *bufio.Writer) error { return writePostings(bw, ix.Postings) }},
		{TokensFile, func(bw *bufio.Writer) error { return writeTokens(bw, ix.Tokens) }},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeStream(filepath.Join(w.dir, s.name+".tmp"), s.write)
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range streams {
			os.Remove(filepath.Join(w.dir, s.name+".tmp"))
		}
		return err
	}

	for _, s := range streams {
		final := filepath.Join(w.dir, s.name)
		if err := os.Rename(final+".tmp", final); err != nil {
			return fmt.Errorf("renaming %s: %w", s.name, err)
		}
	}
	return nil
}

func writeStream(path string, write func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func writeDocuments(bw *bufio.Writer, docs []index.Document) error {
	var rec [DocumentRecordSize]byte
	for _, d := range docs {
		if err := EncodeDocument(rec[:], d.Name); err != nil {
			return fmt.Errorf("document %d: %w", d.ID, err)
		}
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

func writePostings(bw *bufio.Writer, postings []index.Posting) error {
	var rec [PostingRecordSize]byte
	for _, p := range postings {
		EncodePosting(rec[:], p)
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeTokens(bw *bufio.Writer, tokens []index.Token) error {
	var rec [TokenRecordSize]byte
	for _, t := range tokens {
		if err := EncodeToken(rec[:], t); err != nil {
			return fmt.Errorf("token %q: %w", t.Text, err)
		}
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}
