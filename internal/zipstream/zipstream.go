// Package zipstream streams a directory's direct files as a ZIP archive.
//
// Entries are written incrementally: a local header per file, content copied
// straight from disk, then the central directory on Close. Memory use is one
// copy buffer plus deferred per-entry metadata, independent of file sizes.
package zipstream

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
)

// WriteDir writes the direct regular files of dir (non-recursive) into w as
// a ZIP archive and returns the number of entries written. Unreadable
// entries are skipped. Zero files still produces a valid empty archive.
// The context aborts the stream between entries.
func WriteDir(ctx context.Context, w io.Writer, dir string) (int, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	count := 0
	for _, e := range ents {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return count, err
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		h := &zip.FileHeader{
			Name:     e.Name(),
			Method:   zip.Deflate,
			Modified: info.ModTime(),
		}
		ew, err := zw.CreateHeader(h)
		if err != nil {
			_ = f.Close()
			_ = zw.Close()
			return count, err
		}
		if _, err := io.Copy(ew, f); err != nil {
			_ = f.Close()
			_ = zw.Close()
			return count, err
		}
		_ = f.Close()
		count++
	}
	return count, zw.Close()
}
