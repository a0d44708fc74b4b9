package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
)

// Reader performs fixed-size random reads against the three streams of a
// directory. It never writes and is safe for concurrent use.
type Reader struct {
	dir       string
	documents stream
	postings  stream
	tokens    stream
}

type stream struct {
	file       *os.File
	recordSize int
	count      int
}

// OpenReader opens independent handles on the streams in dir.
func OpenReader(dir string) (*Reader, error) {
	r := &Reader{dir: dir}
	specs := []struct {
		name string
		size int
		dst  *stream
	}{
		{DocumentsFile, DocumentRecordSize, &r.documents},
		{PostingsFile, PostingRecordSize, &r.postings},
		{TokensFile, TokenRecordSize, &r.tokens},
	}
	for _, s := range specs {
		st, err := openStream(filepath.Join(dir, s.name), s.size)
		if err != nil {
			r.Close()
			return nil, err
		}
		*s.dst = st
	}
	return r, nil
}

func openStream(path string, recordSize int) (stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return stream{}, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return stream{}, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.Size()%int64(recordSize) != 0 {
		f.Close()
		return stream{}, fmt.Errorf("%w: %s size %d is not a multiple of %d",
			apperrors.ErrCorruptIndex, filepath.Base(path), info.Size(), recordSize)
	}
	return stream{
		file:       f,
		recordSize: recordSize,
		count:      int(info.Size() / int64(recordSize)),
	}, nil
}

func (s stream) read(ordinal int, buf []byte) error {
	if ordinal < 0 || ordinal >= s.count {
		return fmt.Errorf("%w: record %d out of range [0, %d) in %s",
			apperrors.ErrCorruptIndex, ordinal, s.count, filepath.Base(s.file.Name()))
	}
	if _, err := s.file.ReadAt(buf, int64(ordinal)*int64(s.recordSize)); err != nil {
		return fmt.Errorf("reading record %d of %s: %w", ordinal, filepath.Base(s.file.Name()), err)
	}
	return nil
}

// Document returns the name of document id.
func (r *Reader) Document(id int32) (string, error) {
	var buf [DocumentRecordSize]byte
	if err := r.documents.read(int(id), buf[:]); err != nil {
		return "", err
	}
	return DecodeDocument(buf[:]), nil
}

// Posting returns the posting at ordinal.
func (r *Reader) Posting(ordinal int32) (index.Posting, error) {
	var buf [PostingRecordSize]byte
	if err := r.postings.read(int(ordinal), buf[:]); err != nil {
		return index.Posting{}, err
	}
	return DecodePosting(buf[:]), nil
}

// Token returns the token record at ordinal.
func (r *Reader) Token(ordinal int) (index.Token, error) {
	var buf [TokenRecordSize]byte
	if err := r.tokens.read(ordinal, buf[:]); err != nil {
		return index.Token{}, err
	}
	return DecodeToken(buf[:]), nil
}

// TokenOrdinals scans the token stream once and maps each token's text to
// its ordinal. It serves generations whose in-memory dictionary is gone.
func (r *Reader) TokenOrdinals() (map[string]int, error) {
	ordinals := make(map[string]int, r.tokens.count)
	for i := 0; i < r.tokens.count; i++ {
		tok, err := r.Token(i)
		if err != nil {
			return nil, err
		}
		if _, dup := ordinals[tok.Text]; dup {
			return nil, fmt.Errorf("%w: token %q stored twice", apperrors.ErrCorruptIndex, tok.Text)
		}
		ordinals[tok.Text] = i
	}
	return ordinals, nil
}

func (r *Reader) DocumentCount() int { return r.documents.count }
func (r *Reader) PostingCount() int  { return r.postings.count }
func (r *Reader) TokenCount() int    { return r.tokens.count }

// Dir returns the directory the reader was opened on.
func (r *Reader) Dir() string {
	return r.dir
}

func (r *Reader) Close() error {
	var firstErr error
	for _, s := range []stream{r.documents, r.postings, r.tokens} {
		if s.file == nil {
			continue
		}
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
