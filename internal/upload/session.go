package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SavedFile records one file written by a session.
type SavedFile struct {
	Declared string `json:"declared"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
}

// Session is the transient state of one upload request: the target directory
// and what has been written so far. It lives for a single request.
type Session struct {
	Dir   string
	Saved []SavedFile
}

// NewSession starts an upload into dir, which must already be a directory
// inside the served root.
func NewSession(dir string) *Session {
	return &Session{Dir: dir}
}

// SaveAll streams every file part from dec into the session directory.
//
// Each part is written to a hidden ".upload_<uuid>" temp file and renamed
// over its destination only after its stream completes, so duplicate
// sanitized names within one request resolve last-write-wins without ever
// exposing a half-written file. A failed part removes its temp file; files
// finalized earlier in the request stay in place.
func (s *Session) SaveAll(dec *Decoder) error {
	buf := make([]byte, 64<<10)
	for {
		part, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.savePart(part, buf); err != nil {
			return err
		}
	}
}

func (s *Session) savePart(part *Part, buf []byte) error {
	tmp := filepath.Join(s.Dir, ".upload_"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	n, cerr := io.CopyBuffer(f, part, buf)
	if err := f.Close(); cerr == nil {
		cerr = err
	}
	if cerr != nil {
		_ = os.Remove(tmp)
		return cerr
	}
	dst := filepath.Join(s.Dir, part.Name)
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", part.Name, err)
	}
	s.Saved = append(s.Saved, SavedFile{Declared: part.Declared, Name: part.Name, Size: n})
	return nil
}
