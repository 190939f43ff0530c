package httpserver

import (
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/netutil"

	"vortex/internal/config"
	"vortex/internal/fsutil"
	"vortex/internal/httprange"
	"vortex/internal/listing"
	"vortex/internal/mimetype"
	"vortex/internal/ratelimit"
	"vortex/internal/secure"
	"vortex/internal/upload"
	"vortex/internal/zipstream"
)

const copyChunk = 64 << 10

type Options struct {
	Config   config.Config
	Tokens   *secure.TokenStore // required when Config.EnableAuth
	Limiter  *ratelimit.Limiter // defaulted if nil
	Renderer listing.Renderer   // defaulted to the built-in HTML renderer

	// Middleware wraps the outside of the pipeline, ahead of rate limiting.
	// Used by the command wrapper for access logging and hardening headers.
	Middleware func(http.Handler) http.Handler
}

type Server struct {
	cfg      config.Config
	tokens   *secure.TokenStore
	limiter  *ratelimit.Limiter
	renderer listing.Renderer
	wrap     func(http.Handler) http.Handler
}

func New(opts Options) (*Server, error) {
	if opts.Config.Root == "" {
		return nil, errors.New("httpserver: root is required")
	}
	if opts.Config.EnableAuth && opts.Tokens == nil {
		return nil, errors.New("httpserver: auth enabled without a token store")
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(opts.Config.RateLimit, ratelimit.DefaultWindow)
	}
	if opts.Renderer == nil {
		opts.Renderer = &listing.HTMLRenderer{}
	}
	return &Server{
		cfg:      opts.Config,
		tokens:   opts.Tokens,
		limiter:  opts.Limiter,
		renderer: opts.Renderer,
		wrap:     opts.Middleware,
	}, nil
}

// Handler returns the full request pipeline: rate limit, then token check,
// then path resolution and routing. Every request counts against its source
// address, whatever its outcome.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/list", s.handleAPIList)
	mux.HandleFunc("/thumb", s.handleThumb)
	mux.HandleFunc("/", s.dispatch)
	h := s.protect(mux)
	if s.wrap != nil {
		h = s.wrap(h)
	}
	return h
}

// ListenAndServe serves until ctx is cancelled. The listener is capped at
// MaxConns concurrent connections; excess connections queue at the accept
// layer.
func (s *Server) ListenAndServe(ctx context.Context, cert *tls.Certificate) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	if cert != nil {
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{*cert}})
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- protection layer ---

func (s *Server) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := ratelimit.ClientAddr(r)
		if !s.limiter.Allow(addr) {
			log.Printf("[RATE] blocked %s (%d req/min)", addr, s.limiter.Count(addr))
			http.Error(w, "too many requests, slow down", http.StatusTooManyRequests)
			return
		}
		if s.cfg.EnableAuth {
			if !s.tokens.Validate(suppliedToken(r)) {
				// Runs before any path resolution, so a 403 here reveals
				// nothing about what exists under the root.
				log.Printf("[AUTH] invalid token from %s", addr)
				http.Error(w, "invalid or missing access token", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// suppliedToken reads the client token. The X-Token header wins over the
// token query parameter so secrets stay out of logged URLs when both appear.
func suppliedToken(r *http.Request) string {
	if t := r.Header.Get("X-Token"); t != "" {
		return t
	}
	return r.URL.Query().Get("token")
}

// --- routing ---

type routeKind int

const (
	routeListing routeKind = iota
	routeArchive
	routeDownload
	routeUpload
)

type route struct {
	kind routeKind
	rel  string
	abs  string
	info os.FileInfo
}

// resolve canonicalizes the request path, enforces root containment, and
// picks the route variant. A non-nil *httpError short-circuits dispatch.
func (s *Server) resolve(r *http.Request) (route, *httpError) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		return route{}, &httpError{http.StatusMethodNotAllowed, "method not allowed"}
	}

	rel := fsutil.CleanRelPath(r.URL.Path)
	abs, err := fsutil.ResolveWithinRoot(s.cfg.Root, rel)
	if err != nil {
		log.Printf("[PATH] refused %q from %s: %v", r.URL.Path, ratelimit.ClientAddr(r), err)
		return route{}, &httpError{http.StatusForbidden, "forbidden"}
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return route{}, &httpError{http.StatusNotFound, "not found"}
		}
		return route{}, &httpError{http.StatusInternalServerError, "stat failed"}
	}

	rt := route{rel: rel, abs: abs, info: info}
	switch {
	case r.Method == http.MethodPost:
		if !info.IsDir() {
			return route{}, &httpError{http.StatusBadRequest, "upload target is not a directory"}
		}
		rt.kind = routeUpload
	case info.IsDir() && r.URL.Query().Get("download") == "zip":
		rt.kind = routeArchive
	case info.IsDir():
		rt.kind = routeListing
	default:
		rt.kind = routeDownload
	}
	return rt, nil
}

type httpError struct {
	status int
	msg    string
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	rt, herr := s.resolve(r)
	if herr != nil {
		http.Error(w, herr.msg, herr.status)
		return
	}
	switch rt.kind {
	case routeUpload:
		s.handleUpload(w, r, rt)
	case routeArchive:
		s.handleArchive(w, r, rt)
	case routeListing:
		s.handleListing(w, r, rt)
	case routeDownload:
		s.handleDownload(w, r, rt)
	}
}

// --- handlers ---

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request, rt route) {
	entries, err := readEntries(rt.abs)
	if err != nil {
		http.Error(w, "cannot read directory", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		return
	}
	if err := s.renderer.Render(w, rt.rel, entries); err != nil {
		log.Printf("render %q: %v", rt.rel, err)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, rt route) {
	size := rt.info.Size()
	etag := fileETag(rt.abs, rt.info)

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("ETag", etag)
	h.Set("Last-Modified", rt.info.ModTime().UTC().Format(http.TimeFormat))
	h.Set("Content-Type", mimetype.ByName(rt.info.Name()))
	h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", rt.info.Name()))
	h.Set("Cache-Control", "public, max-age=3600")

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	start, length := int64(0), size
	status := http.StatusOK
	if rangeHdr := r.Header.Get("Range"); rangeHdr != "" {
		rng, ok, err := httprange.Resolve(rangeHdr, size)
		if err != nil {
			h.Set("Content-Range", httprange.Unsatisfiable(size))
			http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if ok {
			start, length = rng.Start, rng.Length
			status = http.StatusPartialContent
			h.Set("Content-Range", rng.ContentRange(size))
		}
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead || length == 0 {
		return
	}

	f, err := os.Open(rt.abs)
	if err != nil {
		// Headers are gone already; all we can do is cut the stream.
		return
	}
	defer f.Close()
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return
		}
	}
	// A client hanging up mid-copy surfaces as a write error; partial
	// downloads are ordinary truncated transfers.
	_, _ = io.CopyN(w, f, length)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, rt route) {
	name := filepath.Base(rt.abs)
	if rt.rel == "" {
		name = "download"
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".zip"))
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := zipstream.WriteDir(r.Context(), w, rt.abs); err != nil && r.Context().Err() == nil {
		log.Printf("archive %q: %v", rt.rel, err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, rt route) {
	boundary, err := upload.ExtractBoundary(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}

	sess := upload.NewSession(rt.abs)
	err = sess.SaveAll(upload.NewDecoder(r.Body, boundary))
	if err != nil {
		// Decode errors are the client's fault; anything else is ours.
		// Finalized files from earlier parts stay in place either way.
		if errors.Is(err, upload.ErrMalformed) || errors.Is(err, io.ErrUnexpectedEOF) {
			http.Error(w, "malformed upload", http.StatusBadRequest)
		} else {
			log.Printf("upload to %q: %v", rt.rel, err)
			http.Error(w, "upload failed", http.StatusInternalServerError)
		}
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, map[string]any{"ok": true, "files": sess.Saved})
		return
	}
	// Browser form flow: back to the listing.
	dest := "/" + rt.rel
	if rt.rel != "" {
		dest += "/"
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (s *Server) handleAPIList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rel := fsutil.CleanRelPath(r.URL.Query().Get("path"))
	abs, err := fsutil.ResolveWithinRoot(s.cfg.Root, rel)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	st, err := os.Stat(abs)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !st.IsDir() {
		http.Error(w, "not a directory", http.StatusBadRequest)
		return
	}
	entries, err := readEntries(abs)
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	listing.Sort(entries)
	type item struct {
		Name  string `json:"name"`
		Path  string `json:"path"`
		IsDir bool   `json:"isDir"`
		Size  int64  `json:"size"`
		Mtime int64  `json:"mtime"`
		Mime  string `json:"mime,omitempty"`
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		it := item{
			Name:  e.Name,
			Path:  joinRel(rel, e.Name),
			IsDir: e.IsDir,
			Size:  e.Size,
			Mtime: e.ModTime.Unix(),
		}
		if !e.IsDir {
			it.Mime = mimetype.ByName(e.Name)
		}
		items = append(items, it)
	}
	writeJSON(w, map[string]any{"path": rel, "items": items})
}

// --- helpers ---

func readEntries(dir string) ([]listing.Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]listing.Entry, 0, len(ents))
	for _, e := range ents {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, listing.Entry{
			Name:    e.Name(),
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// fileETag derives a cache validator from path, size and mtime.
func fileETag(abs string, info os.FileInfo) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano())))
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum))
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
