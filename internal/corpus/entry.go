package corpus

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"unicode/utf8"
)

// Encoding records how an entry's bytes were turned into text
type Encoding string

const (
	// EncodingText means the file was valid UTF-8
	EncodingText Encoding = "text"
	// EncodingLatin1 means the file was text in a legacy single-byte encoding
	EncodingLatin1 Encoding = "latin1"
	// EncodingStrings means the file was binary and only printable runs were kept
	EncodingStrings Encoding = "strings"
)

// Entry is one decoded file of the corpus. Entries are immutable.
type Entry struct {
	Path     string // slash-separated, relative to the corpus root
	Text     string
	Encoding Encoding

	lineStarts []int
}

func newEntry(p, text string, enc Encoding) *Entry {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Entry{Path: p, Text: text, Encoding: enc, lineStarts: starts}
}

// LineAt converts a byte offset into a 1-based line number.
func (e *Entry) LineAt(offset int) int {
	return sort.SearchInts(e.lineStarts, offset+1)
}

// Lines returns the number of lines in the entry.
func (e *Entry) Lines() int {
	return len(e.lineStarts)
}

// LineText returns the text of a 1-based line without its terminator.
func (e *Entry) LineText(line int) string {
	if line < 1 || line > len(e.lineStarts) {
		return ""
	}
	start := e.lineStarts[line-1]
	end := len(e.Text)
	if line < len(e.lineStarts) {
		end = e.lineStarts[line] - 1
	}
	return e.Text[start:end]
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode turns raw file bytes into searchable text. Valid UTF-8 is kept,
// binary content (any NUL byte) is reduced by decodeBinary, and anything else
// is read as Latin-1.
func decode(data []byte, minRun int, maxBinary int64) (string, Encoding) {
	if bytes.IndexByte(data, 0) >= 0 {
		return decodeBinary(data, minRun, maxBinary), EncodingStrings
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if utf8.Valid(data) {
		return normalizeNewlines(string(data)), EncodingText
	}

	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return normalizeNewlines(string(runes)), EncodingLatin1
}

// decodeBinary keeps the printable ASCII runs of at least minRun bytes found
// in the first maxBinary bytes of data.
func decodeBinary(data []byte, minRun int, maxBinary int64) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if int64(len(data)) > maxBinary {
		data = data[:maxBinary]
	}
	return extractStrings(data, minRun)
}

// readChunkSize is the read granularity of readContent
const readChunkSize = 32 * 1024

// readContent reads r to the end unless a NUL byte marks it binary. Reading
// then stops once the maxBinary bytes decodeBinary looks at are held.
func readContent(r io.Reader, maxBinary int64) ([]byte, bool, error) {
	limit := maxBinary + int64(len(utf8BOM))
	chunk := make([]byte, readChunkSize)
	var data []byte
	binary := false
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			binary = binary || bytes.IndexByte(chunk[:n], 0) >= 0
			data = append(data, chunk[:n]...)
			if binary && int64(len(data)) >= limit {
				return data, true, nil
			}
		}
		if err == io.EOF {
			return data, binary, nil
		}
		if err != nil {
			return nil, false, err
		}
	}
}

// extractStrings keeps runs of printable ASCII (0x20-0x7E) of at least minRun
// bytes, one run per line.
func extractStrings(data []byte, minRun int) string {
	var sb strings.Builder
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minRun {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.Write(data[start:end])
		}
		start = -1
	}

	for i, b := range data {
		if b >= 0x20 && b <= 0x7E {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))
	return sb.String()
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
