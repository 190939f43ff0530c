// Package httprange resolves single-range HTTP Range headers for downloads.
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotSatisfiable means the range names no byte inside the object; the
// response is 416 with "Content-Range: bytes */<size>".
var ErrNotSatisfiable = errors.New("range not satisfiable")

// Range is a resolved byte range: Length bytes starting at Start.
type Range struct {
	Start  int64
	Length int64
}

// End returns the inclusive last byte offset.
func (r Range) End() int64 { return r.Start + r.Length - 1 }

// ContentRange formats the Content-Range header value for a 206 response.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End(), size)
}

// Unsatisfiable formats the Content-Range value for a 416 response.
func Unsatisfiable(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Resolve interprets a Range header against an object of the given size.
//
// Supported forms: "bytes=start-end" (end clamped to size-1), "bytes=start-",
// "bytes=-suffixLength". Multi-range and malformed headers are not errors:
// ok is false and the caller serves the full object. A syntactically valid
// range starting at or past the end returns ErrNotSatisfiable.
func Resolve(header string, size int64) (rng Range, ok bool, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Range{}, false, nil
	}
	spec := strings.TrimSpace(header[len(prefix):])
	if spec == "" || strings.Contains(spec, ",") {
		return Range{}, false, nil
	}

	var start, end int64
	switch {
	case strings.HasPrefix(spec, "-"):
		// "-500": the final 500 bytes.
		n, perr := strconv.ParseInt(spec[1:], 10, 64)
		if perr != nil {
			return Range{}, false, nil
		}
		if n <= 0 || size == 0 {
			return Range{}, false, ErrNotSatisfiable
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	case strings.HasSuffix(spec, "-"):
		// "500-": from offset 500 to the end.
		n, perr := strconv.ParseInt(spec[:len(spec)-1], 10, 64)
		if perr != nil || n < 0 {
			return Range{}, false, nil
		}
		if n >= size {
			return Range{}, false, ErrNotSatisfiable
		}
		start, end = n, size-1
	default:
		parts := strings.SplitN(spec, "-", 2)
		if len(parts) != 2 {
			return Range{}, false, nil
		}
		s, serr := strconv.ParseInt(parts[0], 10, 64)
		e, eerr := strconv.ParseInt(parts[1], 10, 64)
		if serr != nil || eerr != nil || s < 0 || e < s {
			return Range{}, false, nil
		}
		if s >= size {
			return Range{}, false, ErrNotSatisfiable
		}
		if e > size-1 {
			e = size - 1
		}
		start, end = s, e
	}

	return Range{Start: start, Length: end - start + 1}, true, nil
}
