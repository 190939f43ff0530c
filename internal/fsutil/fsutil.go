package fsutil

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a request path resolves outside the served
// root, either through ".." traversal or through a symlink.
var ErrEscapesRoot = errors.New("path escapes root")

// CleanRelPath takes a user path like "", ".", "/a/b", "a//b", and returns a
// safe, slash-based, no-leading-slash relative path ("" means root).
func CleanRelPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." || p == "/" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p) // force absolute for stable cleaning
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// JoinWithinRoot returns an absolute filesystem path under root for a given
// rel path. It rejects escapes (..).
func JoinWithinRoot(rootAbs string, rel string) (string, error) {
	rel = CleanRelPath(rel)
	if rel == "" {
		return rootAbs, nil
	}
	if strings.Contains(rel, "\x00") {
		return "", ErrEscapesRoot
	}
	abs := filepath.Join(rootAbs, filepath.FromSlash(rel))
	absClean := filepath.Clean(abs)
	rootClean := filepath.Clean(rootAbs)
	if !within(rootClean, absClean) {
		return "", ErrEscapesRoot
	}
	return absClean, nil
}

// ResolveWithinRoot is JoinWithinRoot plus symlink resolution: the returned
// path is safe to open. A symlink inside the root pointing outside it is
// rejected before any read of the target. Paths that do not exist yet (upload
// destinations) resolve their deepest existing ancestor instead.
func ResolveWithinRoot(rootAbs string, rel string) (string, error) {
	abs, err := JoinWithinRoot(rootAbs, rel)
	if err != nil {
		return "", err
	}
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", err
	}
	real, err := evalExisting(abs)
	if err != nil {
		return "", err
	}
	if !within(filepath.Clean(rootReal), filepath.Clean(real)) {
		return "", ErrEscapesRoot
	}
	return abs, nil
}

// evalExisting resolves symlinks for the longest existing prefix of p and
// re-joins the missing suffix.
func evalExisting(p string) (string, error) {
	suffix := ""
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(real, suffix), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		dir := filepath.Dir(filepath.Clean(p))
		if dir == p {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(filepath.Clean(p)), suffix)
		p = dir
	}
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

// Characters invalid in Windows filenames; replaced so uploads land cleanly
// on any filesystem.
const invalidNameChars = `\/:*?"<>|`

// SanitizeFilename normalizes a client-declared upload name to a single safe
// path element: separators and traversal sequences are stripped, reserved
// characters replaced, surrounding spaces/dots trimmed, length capped.
// Returns "uploaded_file" if nothing usable remains.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	var b strings.Builder
	for _, r := range name {
		if r == 0 || strings.ContainsRune(invalidNameChars, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), " .")
	if len(out) > 255 {
		out = out[:255]
	}
	if out == "" {
		return "uploaded_file"
	}
	return out
}
