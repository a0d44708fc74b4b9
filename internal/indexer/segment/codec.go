// Package segment persists an index generation as three fixed-width record
// streams and reads single records back by ordinal. The streams carry no
// header, count or checksum: a record's byte offset is its ordinal times the
// record size, and the record count is the file size divided by it.
//
// All integers are big-endian two's complement; weights are big-endian
// IEEE-754 doubles. Text fields are zero-padded and end at the first NUL.
package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
)

const (
	DocumentsFile = "documents.bin"
	PostingsFile  = "postings.bin"
	TokensFile    = "tokens.bin"
)

// TextWidth is the width of every text field.
const TextWidth = 32

// Document record: name.
const (
	DocumentNameOffset = 0
	DocumentRecordSize = TextWidth
)

// Posting record: document id, weight.
const (
	PostingDocumentIDOffset = 0
	PostingWeightOffset     = 4
	PostingRecordSize       = 12
)

// Token record: text, document count, posting index.
const (
	TokenTextOffset          = 0
	TokenDocumentCountOffset = TextWidth
	TokenPostingIndexOffset  = TextWidth + 4
	TokenRecordSize          = TextWidth + 8
)

// EncodeDocument writes name into dst, which must hold DocumentRecordSize
// bytes.
func EncodeDocument(dst []byte, name string) error {
	return putText(dst[DocumentNameOffset:DocumentNameOffset+TextWidth], name)
}

// DecodeDocument reads a document name from a DocumentRecordSize record.
func DecodeDocument(src []byte) string {
	return getText(src[DocumentNameOffset : DocumentNameOffset+TextWidth])
}

// EncodePosting writes p into dst, which must hold PostingRecordSize bytes.
func EncodePosting(dst []byte, p index.Posting) {
	binary.BigEndian.PutUint32(dst[PostingDocumentIDOffset:], uint32(p.DocumentID))
	binary.BigEndian.PutUint64(dst[PostingWeightOffset:], math.Float64bits(p.Weight))
}

// DecodePosting reads a posting from a PostingRecordSize record.
func DecodePosting(src []byte) index.Posting {
	return index.Posting{
		DocumentID: int32(binary.BigEndian.Uint32(src[PostingDocumentIDOffset:])),
		Weight:     math.Float64frombits(binary.BigEndian.Uint64(src[PostingWeightOffset:])),
	}
}

// EncodeToken writes t into dst, which must hold TokenRecordSize bytes.
func EncodeToken(dst []byte, t index.Token) error {
	if err := putText(dst[TokenTextOffset:TokenTextOffset+TextWidth], t.Text); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(dst[TokenDocumentCountOffset:], uint32(t.DocumentCount))
	binary.BigEndian.PutUint32(dst[TokenPostingIndexOffset:], uint32(t.PostingIndex))
	return nil
}

// DecodeToken reads a token from a TokenRecordSize record.
func DecodeToken(src []byte) index.Token {
	return index.Token{
		Text:          getText(src[TokenTextOffset : TokenTextOffset+TextWidth]),
		DocumentCount: int32(binary.BigEndian.Uint32(src[TokenDocumentCountOffset:])),
		PostingIndex:  int32(binary.BigEndian.Uint32(src[TokenPostingIndexOffset:])),
	}
}

// putText zero-pads s into field. Text that does not fit, or that holds a
// NUL and so could not be read back, is rejected rather than truncated.
func putText(field []byte, s string) error {
	if len(s) > len(field) {
		return fmt.Errorf("%w: %q is %d bytes, field holds %d", apperrors.ErrFieldOverflow, s, len(s), len(field))
	}
	if strings.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("%w: %q contains a NUL byte", apperrors.ErrInvalidInput, s)
	}
	n := copy(field, s)
	clear(field[n:])
	return nil
}

func getText(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
