package listing

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestSort(t *testing.T) {
	entries := []Entry{
		{Name: "zeta.txt"},
		{Name: "Alpha.txt"},
		{Name: "music", IsDir: true},
		{Name: "archive", IsDir: true},
	}
	Sort(entries)
	want := []string{"archive", "music", "Alpha.txt", "zeta.txt"}
	for i, name := range want {
		if entries[i].Name != name {
			t.Fatalf("order[%d] = %q, want %q", i, entries[i].Name, name)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}
	for _, c := range cases {
		if got := FormatSize(c.in); got != c.want {
			t.Errorf("FormatSize(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHTMLRender(t *testing.T) {
	mod := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	entries := []Entry{
		{Name: "docs", IsDir: true, ModTime: mod},
		{Name: "photo.jpg", Size: 2048, ModTime: mod},
		{Name: "a b.txt", Size: 10, ModTime: mod},
	}
	var buf bytes.Buffer
	r := &HTMLRenderer{}
	if err := r.Render(&buf, "shared/media", entries); err != nil {
		t.Fatalf("render: %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		`href="/shared/media/docs/"`,
		`href="/shared/media/photo.jpg"`,
		`href="/shared/media/a%20b.txt"`,
		`/thumb?path=shared%2Fmedia%2Fphoto.jpg`,
		`action="/shared/media/"`,
		`?download=zip`,
		"2.00 KB",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestHTMLRenderRoot(t *testing.T) {
	var buf bytes.Buffer
	r := &HTMLRenderer{Title: "share"}
	if err := r.Render(&buf, "", []Entry{{Name: "f.txt", Size: 1}}); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	if !strings.Contains(html, `href="/f.txt"`) {
		t.Error("root entries should link from /")
	}
	if !strings.Contains(html, "share") {
		t.Error("custom title not rendered")
	}
}

func TestHTMLRenderEscapesNames(t *testing.T) {
	var buf bytes.Buffer
	r := &HTMLRenderer{}
	err := r.Render(&buf, "", []Entry{{Name: `<script>alert(1)</script>.txt`, Size: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<script>alert(1)") {
		t.Error("entry name not escaped")
	}
}
