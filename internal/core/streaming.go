package core

// streaming.go provides streaming readers that clean up uploaded CSV
// bytes before they reach encoding/csv:
//
//   - BOMSkippingReader: Removes the UTF-8 BOM (0xEF 0xBB 0xBF) that
//     Windows tools prepend to exported files
//   - StreamingUTF8Sanitizer: Replaces invalid UTF-8 bytes with '?'
//
// Both work on a fixed-size buffer, so a large upload is never loaded
// into memory as a whole. Use WrapReader to apply them in the correct
// order.

import (
	"bytes"
	"io"
	"unicode/utf8"
)

// WrapReader wraps a raw upload stream with BOM skipping and UTF-8
// sanitization so it can be fed directly to a csv.Reader. The BOM must
// be stripped before any byte inspection, so it goes innermost.
func WrapReader(r io.Reader) io.Reader {
	return NewStreamingUTF8Sanitizer(NewBOMSkippingReader(r))
}

// BOMSkippingReader wraps an io.Reader and skips a leading UTF-8 BOM
// if present. Anything read while checking that is not a BOM is pushed
// back and served to the caller unchanged.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. The first call inspects the first three
// bytes of the stream; later calls pass through.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var head [3]byte
		n, err := io.ReadFull(r.reader, head[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}

		if n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
			// BOM found, drop it and continue with the rest of the stream
		} else if n > 0 {
			r.reader = io.MultiReader(bytes.NewReader(head[:n]), r.reader)
		}
	}
	return r.reader.Read(p)
}

// StreamingUTF8Sanitizer wraps an io.Reader and replaces invalid UTF-8
// bytes with '?' on the fly. A multi-byte rune split across two reads
// is carried over to the next call rather than mangled.
//
// '?' is used instead of U+FFFD because the replacement must not grow
// the data while sanitizing in place.
type StreamingUTF8Sanitizer struct {
	reader io.Reader

	// carry holds the tail bytes of an incomplete rune from the
	// previous read
	carry []byte
}

// NewStreamingUTF8Sanitizer creates a new streaming UTF-8 sanitizer.
func NewStreamingUTF8Sanitizer(r io.Reader) *StreamingUTF8Sanitizer {
	return &StreamingUTF8Sanitizer{
		reader: r,
		carry:  make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader. It reads from the underlying reader and
// sanitizes invalid UTF-8 sequences in place.
func (s *StreamingUTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Prepend carried-over bytes from the previous read
	offset := 0
	if len(s.carry) > 0 {
		offset = copy(p, s.carry)
		s.carry = s.carry[:0]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset

	if n == 0 {
		return 0, err
	}

	// Fast path: most CSV data is plain ASCII
	if isAllASCII(p[:n]) {
		return n, err
	}

	sanitized := s.sanitizeUTF8(p[:n], err == io.EOF)
	return sanitized, err
}

// isAllASCII returns true if all bytes are ASCII (< 128).
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// sanitizeUTF8 sanitizes the data in place and returns the number of
// valid bytes. When atEOF is false, an incomplete sequence at the end
// is saved to carry for the next read call instead of being replaced.
func (s *StreamingUTF8Sanitizer) sanitizeUTF8(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		if !atEOF {
			trailing := incompleteTrailingBytes(data)
			if trailing > 0 {
				s.carry = append(s.carry, data[len(data)-trailing:]...)
				return len(data) - trailing
			}
		}
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		// A sequence cut off by the buffer boundary is not invalid yet
		if !atEOF && read+size >= len(data) && isIncompleteRune(data[read:]) {
			s.carry = append(s.carry, data[read:]...)
			return write
		}

		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
		} else {
			copy(data[write:], data[read:read+size])
			write += size
			read += size
		}
	}

	return write
}

// incompleteTrailingBytes returns the number of bytes at the end of
// data that form the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			// Start byte of a multi-byte sequence
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			// Not a continuation byte, so nothing is cut off
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting
// with byte b.
func runeLen(b byte) int {
	if b < 0x80 {
		return 1
	}
	if b < 0xC0 {
		return 0 // continuation byte
	}
	if b < 0xE0 {
		return 2
	}
	if b < 0xF0 {
		return 3
	}
	return 4
}

// isIncompleteRune returns true if data could be the start of a
// multi-byte sequence that is missing its tail.
func isIncompleteRune(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	expected := runeLen(data[0])
	return expected > len(data)
}
