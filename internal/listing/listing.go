// Package listing renders directory listings. The dispatcher invokes a
// Renderer with the request path and the directory's entries and sends the
// produced body verbatim, so alternative front ends plug in without touching
// the transfer pipeline.
package listing

import (
	"fmt"
	"html/template"
	"io"
	"net/url"
	"path"
	"sort"
	"time"

	"vortex/internal/mimetype"
)

// Entry is one direct child of the listed directory.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Renderer produces a listing body for a directory. dirPath is the
// slash-separated request path ("" for the root).
type Renderer interface {
	Render(w io.Writer, dirPath string, entries []Entry) error
}

// Sort orders entries directories-first, then case-insensitively by name,
// matching what browsers expect from a file index.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return lower(entries[i].Name) < lower(entries[j].Name)
	})
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && 'Z' >= c {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// HTMLRenderer is the built-in browser UI: breadcrumb, upload form,
// zip-download link, and an entry table with sizes and modification times.
type HTMLRenderer struct {
	// Title heads the page; defaults to "vortex".
	Title string
}

type crumb struct {
	Name string
	Href string
}

type entryView struct {
	Name    string
	Href    string
	IsDir   bool
	Size    string
	ModTime string
	Thumb   string
}

type pageView struct {
	Title   string
	Dir     string
	Crumbs  []crumb
	Entries []entryView
	ZipHref string
}

func (h *HTMLRenderer) Render(w io.Writer, dirPath string, entries []Entry) error {
	Sort(entries)
	title := h.Title
	if title == "" {
		title = "vortex"
	}

	base := "/" + dirPath
	if dirPath != "" {
		base += "/"
	}

	view := pageView{
		Title:   title,
		Dir:     base,
		Crumbs:  crumbs(dirPath),
		ZipHref: base + "?download=zip",
	}
	for _, e := range entries {
		ev := entryView{
			Name:    e.Name,
			Href:    base + url.PathEscape(e.Name),
			IsDir:   e.IsDir,
			ModTime: e.ModTime.Format("2006-01-02 15:04"),
		}
		if e.IsDir {
			ev.Href += "/"
		} else {
			ev.Size = FormatSize(e.Size)
			if mimetype.IsImage(e.Name) {
				rel := e.Name
				if dirPath != "" {
					rel = dirPath + "/" + e.Name
				}
				ev.Thumb = "/thumb?path=" + url.QueryEscape(rel)
			}
		}
		view.Entries = append(view.Entries, ev)
	}
	return pageTmpl.Execute(w, view)
}

func crumbs(dirPath string) []crumb {
	out := []crumb{{Name: "root", Href: "/"}}
	if dirPath == "" {
		return out
	}
	acc := ""
	for {
		head, rest, found := cutSlash(dirPath)
		acc = path.Join(acc, head)
		out = append(out, crumb{Name: head, Href: "/" + acc + "/"})
		if !found {
			return out
		}
		dirPath = rest
	}
}

func cutSlash(p string) (head, rest string, found bool) {
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			return p[:i], p[i+1:], true
		}
	}
	return p, "", false
}

// FormatSize renders a byte count in human units.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

var pageTmpl = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} — {{.Dir}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:60rem;margin:2rem auto;padding:0 1rem;color:#222}
h1{font-size:1.2rem}
table{border-collapse:collapse;width:100%}
td,th{padding:.35rem .6rem;text-align:left;border-bottom:1px solid #e4e4e4}
td.num{text-align:right;white-space:nowrap;color:#666}
a{color:#0b62c4;text-decoration:none}
a:hover{text-decoration:underline}
img.thumb{height:28px;vertical-align:middle;margin-right:.4rem;border-radius:3px}
form.upload{margin:1rem 0;padding:.8rem;border:1px dashed #bbb;border-radius:6px}
.crumbs{color:#888}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="crumbs">{{range $i, $c := .Crumbs}}{{if $i}} / {{end}}<a href="{{$c.Href}}">{{$c.Name}}</a>{{end}}
 — <a href="{{.ZipHref}}">download folder as zip</a></p>
<form class="upload" method="post" action="{{.Dir}}" enctype="multipart/form-data">
<input type="file" name="file" multiple>
<button type="submit">Upload</button>
</form>
<table>
<tr><th>Name</th><th>Size</th><th>Modified</th></tr>
{{range .Entries}}<tr>
<td>{{if .Thumb}}<img class="thumb" src="{{.Thumb}}" alt="">{{end}}<a href="{{.Href}}">{{.Name}}{{if .IsDir}}/{{end}}</a></td>
<td class="num">{{.Size}}</td>
<td class="num">{{.ModTime}}</td>
</tr>{{end}}
</table>
</body>
</html>
`))
