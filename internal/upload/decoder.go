// Package upload decodes streaming multipart/form-data bodies and writes the
// contained files to disk.
//
// The decoder yields file parts lazily and never buffers a whole part: bytes
// flow from the request stream to the destination in bounded chunks. A
// boundary marker split across reads is handled by holding back a
// partial-boundary-sized tail until the next fill, so the decoder is correct
// even for one-byte reads.
package upload

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"mime"
	"strings"

	"vortex/internal/fsutil"
)

const (
	// maxHeaderSize caps a part's header block; larger blocks indicate a
	// malformed or hostile request.
	maxHeaderSize = 8 << 10

	// bufSize is the decoder's read buffer; peekWindow is how far the part
	// reader looks ahead for a boundary in one step.
	bufSize    = 64 << 10
	peekWindow = 32 << 10
)

// ErrMalformed reports a body that does not follow multipart framing. It is
// a client error, never a server one.
var ErrMalformed = errors.New("malformed multipart body")

// ExtractBoundary pulls the boundary parameter out of a Content-Type header.
func ExtractBoundary(contentType string) (string, error) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrMalformed
	}
	if !strings.HasPrefix(mt, "multipart/") {
		return "", ErrMalformed
	}
	b := params["boundary"]
	if b == "" {
		return "", ErrMalformed
	}
	return b, nil
}

// Decoder reads a multipart body as a lazy sequence of file parts.
// It holds no state shared across requests.
type Decoder struct {
	br    *bufio.Reader
	delim []byte // "\r\n--boundary", separates a part body from the next boundary line
	dash  []byte // "--boundary"

	started  bool
	finished bool
	current  *partReader
}

// NewDecoder decodes the body r framed by the given boundary.
func NewDecoder(r io.Reader, boundary string) *Decoder {
	return &Decoder{
		br:    bufio.NewReaderSize(r, bufSize),
		delim: []byte("\r\n--" + boundary),
		dash:  []byte("--" + boundary),
	}
}

// Part is one uploaded file: the client-declared name, the sanitized name
// used on disk, and the content stream. The reader yields exactly the part's
// payload bytes; a zero-byte part yields an immediate EOF.
type Part struct {
	Declared string
	Name     string
	r        *partReader
}

func (p *Part) Read(b []byte) (int, error) { return p.r.Read(b) }

// Next returns the next file part, or io.EOF after the closing boundary.
// Parts whose Content-Disposition carries no filename (ordinary form fields)
// are drained and skipped. The previous part's reader is invalidated.
func (d *Decoder) Next() (*Part, error) {
	if d.finished {
		return nil, io.EOF
	}
	if d.current != nil {
		if _, err := io.Copy(io.Discard, d.current); err != nil {
			return nil, err
		}
		d.current = nil
	}

	for {
		if err := d.advanceBoundary(); err != nil {
			return nil, err
		}
		if d.finished {
			return nil, io.EOF
		}
		declared, hasFile, err := d.readPartHeaders()
		if err != nil {
			return nil, err
		}
		pr := &partReader{d: d}
		if !hasFile {
			// Field part, not a file: drain and move on.
			if _, err := io.Copy(io.Discard, pr); err != nil {
				return nil, err
			}
			continue
		}
		d.current = pr
		return &Part{
			Declared: declared,
			Name:     fsutil.SanitizeFilename(declared),
			r:        pr,
		}, nil
	}
}

// advanceBoundary consumes the boundary line the stream is positioned at.
// Before the first part it also skips any preamble. Sets finished on the
// closing "--boundary--" marker.
func (d *Decoder) advanceBoundary() error {
	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && d.started {
				// Transports may drop the trailing CRLF after the close
				// delimiter; treat a clean EOF here as the epilogue.
				d.finished = true
				return nil
			}
			return ErrMalformed
		}
		trimmed := bytes.TrimRight(line, "\r\n \t")
		if !bytes.HasPrefix(trimmed, d.dash) {
			if d.started {
				return ErrMalformed
			}
			continue // preamble before the first boundary
		}
		d.started = true
		if bytes.HasPrefix(trimmed[len(d.dash):], []byte("--")) {
			d.finished = true
		}
		return nil
	}
}

// readPartHeaders consumes the header block up to the blank line and returns
// the declared filename, if any. The whole block is capped at maxHeaderSize.
func (d *Decoder) readPartHeaders() (declared string, hasFile bool, err error) {
	total := 0
	for {
		line, err := d.readLine()
		if err != nil {
			return "", false, ErrMalformed
		}
		total += len(line)
		if total > maxHeaderSize {
			return "", false, ErrMalformed
		}
		trimmed := strings.TrimRight(string(line), "\r\n")
		if trimmed == "" {
			return declared, hasFile, nil
		}
		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return "", false, ErrMalformed
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Content-Disposition") {
			continue
		}
		_, params, perr := mime.ParseMediaType(strings.TrimSpace(value))
		if perr != nil {
			continue
		}
		// An empty filename is how browsers submit a blank file input;
		// treated the same as no filename at all.
		if fn, ok := params["filename"]; ok && fn != "" {
			declared, hasFile = fn, true
		}
	}
}

func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, ErrMalformed
	}
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return line, nil
}

// partReader streams one part's payload, stopping at the delimiter that
// precedes the next boundary line. The delimiter's CRLF is consumed; the
// boundary line itself is left for advanceBoundary.
type partReader struct {
	d    *Decoder
	done bool
}

func (pr *partReader) Read(p []byte) (int, error) {
	if pr.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	d := pr.d

	peek, perr := d.br.Peek(peekWindow)
	if i := bytes.Index(peek, d.delim); i >= 0 {
		n := copy(p, peek[:i])
		if _, err := d.br.Discard(n); err != nil {
			return n, err
		}
		if n == i {
			// Payload fully delivered: consume the CRLF, leave "--boundary".
			if _, err := d.br.Discard(2); err != nil {
				return n, ErrMalformed
			}
			pr.done = true
			if n == 0 {
				return 0, io.EOF
			}
		}
		return n, nil
	}

	if perr != nil && !errors.Is(perr, bufio.ErrBufferFull) {
		if errors.Is(perr, io.EOF) {
			// Body ended with no closing boundary.
			return 0, io.ErrUnexpectedEOF
		}
		return 0, perr
	}

	// No delimiter in the window: everything but a partial-delimiter tail is
	// safely payload. Hold the tail back and recheck after the next fill.
	safe := len(peek) - len(d.delim) + 1
	if safe <= 0 {
		// Window too small to decide; only possible right at the stream tail.
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, peek[:safe])
	if _, err := d.br.Discard(n); err != nil {
		return n, err
	}
	return n, nil
}
