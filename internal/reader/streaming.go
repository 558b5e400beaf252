package reader

// streaming.go provides the reader chain every input file passes through:
//
//   - sizeLimitReader: counts bytes and fails once LOAD_MAX_FILE_SIZE is exceeded
//   - skipBOM: drops a UTF-8 BOM (0xEF 0xBB 0xBF) written by Windows tools
//   - utf8Sanitizer: replaces invalid UTF-8 bytes with '?' without buffering the file
//
// Use wrapForStreaming to apply all of them in the correct order.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrFileTooLarge is returned once more than the allowed bytes were read.
var ErrFileTooLarge = errors.New("file too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sizeLimitReader counts bytes read. A max of 0 disables the limit.
type sizeLimitReader struct {
	r    io.Reader
	max  int64
	read int64
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.max > 0 && l.read > l.max {
		return n, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, l.max)
	}
	return n, err
}

// skipBOM returns a reader positioned after the BOM, if r starts with one.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer rewrites invalid UTF-8 on the fly. A multi-byte rune split
// across two reads is held back until the rest of it arrives.
type utf8Sanitizer struct {
	r     io.Reader
	chunk []byte
	raw   []byte // unchecked bytes, may end in a partial rune
	clean []byte // checked bytes not yet returned
	err   error
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, chunk: make([]byte, 32*1024)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.clean) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		n, err := s.r.Read(s.chunk)
		s.raw = append(s.raw, s.chunk[:n]...)
		s.err = err
		s.sanitize(err != nil)
	}
	n := copy(p, s.clean)
	s.clean = s.clean[n:]
	return n, nil
}

// sanitize moves checked bytes from raw to clean. Unless final, a trailing
// partial rune stays in raw.
func (s *utf8Sanitizer) sanitize(final bool) {
	i := 0
	for i < len(s.raw) {
		b := s.raw[i]
		if b < utf8.RuneSelf {
			s.clean = append(s.clean, b)
			i++
			continue
		}
		if !final && !utf8.FullRune(s.raw[i:]) {
			break
		}
		r, size := utf8.DecodeRune(s.raw[i:])
		if r == utf8.RuneError && size == 1 {
			s.clean = append(s.clean, '?')
		} else {
			s.clean = append(s.clean, s.raw[i:i+size]...)
		}
		i += size
	}
	s.raw = append(s.raw[:0], s.raw[i:]...)
}

// wrapForStreaming applies the size limit, BOM skipping and UTF-8
// sanitation. The returned counter reports bytes consumed from r.
//
// The order matters: the limit sees raw bytes, and the BOM must be gone
// before sanitation rewrites anything.
func wrapForStreaming(r io.Reader, maxSize int64) (io.Reader, *sizeLimitReader) {
	limited := &sizeLimitReader{r: r, max: maxSize}
	return newUTF8Sanitizer(skipBOM(limited)), limited
}
