package zipstream

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"alpha.txt": []byte("first file"),
		"beta.bin":  bytes.Repeat([]byte{0xAB}, 200_000),
		"empty":     {},
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Subdirectories and their contents are excluded.
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "nested.txt"), []byte("nested"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := WriteDir(context.Background(), &buf, dir)
	if err != nil {
		t.Fatalf("WriteDir: %v", err)
	}
	if n != len(files) {
		t.Errorf("entries written = %d, want %d", n, len(files))
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reopen archive: %v", err)
	}
	if len(zr.File) != len(files) {
		t.Fatalf("archive entries = %d, want %d", len(zr.File), len(files))
	}
	for _, zf := range zr.File {
		want, ok := files[zf.Name]
		if !ok {
			t.Errorf("unexpected entry %q", zf.Name)
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("open %q: %v", zf.Name, err)
		}
		got, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read %q: %v", zf.Name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("entry %q: content mismatch (%d vs %d bytes)", zf.Name, len(got), len(want))
		}
		if zf.CRC32 != crc32.ChecksumIEEE(want) {
			t.Errorf("entry %q: CRC-32 mismatch", zf.Name)
		}
	}
}

func TestWriteDirEmpty(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteDir(context.Background(), &buf, t.TempDir())
	if err != nil {
		t.Fatalf("WriteDir: %v", err)
	}
	if n != 0 {
		t.Errorf("entries = %d, want 0", n)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("empty archive unreadable: %v", err)
	}
	if len(zr.File) != 0 {
		t.Errorf("empty archive has %d entries", len(zr.File))
	}
}

func TestWriteDirCancelled(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Repeat(name, 10)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := WriteDir(ctx, io.Discard, dir); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
