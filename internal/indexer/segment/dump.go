package segment

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/index"
)

const (
	DocumentsDump = "documents.txt"
	PostingsDump  = "posting.txt"
	TokensDump    = "tokens.txt"
)

// WriteDebugDumps writes tab-separated, human-readable mirrors of the three
// streams into dir:
//
//	documents.txt  id<TAB>name
//	posting.txt    documentID<TAB>weight
//	tokens.txt     token<TAB>documentCount<TAB>postingIndex
func WriteDebugDumps(dir string, ix *index.Index) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}
	dumps := []struct {
		name  string
		lines int
		line  func(i int) string
	}{
		{DocumentsDump, len(ix.Documents), func(i int) string {
			d := ix.Documents[i]
			return strconv.Itoa(int(d.ID)) + "\t" + d.Name
		}},
		{PostingsDump, len(ix.Postings), func(i int) string {
			p := ix.Postings[i]
			return strconv.Itoa(int(p.DocumentID)) + "\t" + strconv.FormatFloat(p.Weight, 'f', -1, 64)
		}},
		{TokensDump, len(ix.Tokens), func(i int) string {
			t := ix.Tokens[i]
			return t.Text + "\t" + strconv.Itoa(int(t.DocumentCount)) + "\t" + strconv.Itoa(int(t.PostingIndex))
		}},
	}
	for _, d := range dumps {
		if err := writeLines(filepath.Join(dir, d.name), d.lines, d.line); err != nil {
			return err
		}
	}
	return nil
}

func writeLines(path string, n int, line func(int) string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	for i := 0; i < n; i++ {
		if i > 0 {
			bw.WriteByte('\n')
		}
		bw.WriteString(line(i))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
