// Package ratelimit provides a fixed-window per-address request limiter.
//
// Each source address owns a window of {start, count}. A request landing in
// an expired window starts a fresh one; otherwise the count is incremented
// and the request is rejected once the count exceeds the limit. Counting
// continues past the limit, so sustained abuse stays rejected until the
// window rolls over.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultLimit  = 200
	DefaultWindow = time.Minute
)

type window struct {
	start time.Time
	count int
}

// Limiter tracks request counts per source address. The zero value is not
// usable; create one with New.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*window
}

// New creates a limiter allowing limit requests per address per window.
// Non-positive arguments take the defaults.
func New(limit int, win time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  win,
		now:     time.Now,
		entries: make(map[string]*window),
	}
}

// Allow records a request from addr and reports whether it is admitted.
// Every call counts, admitted or not.
func (l *Limiter) Allow(addr string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.entries[addr]
	if !ok || now.Sub(w.start) >= l.window {
		l.entries[addr] = &window{start: now, count: 1}
		return true
	}
	w.count++
	return w.count <= l.limit
}

// Count returns the current window's count for addr, for logging.
func (l *Limiter) Count(addr string) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.entries[addr]
	if !ok || now.Sub(w.start) >= l.window {
		return 0
	}
	return w.count
}

// Sweep drops entries whose window expired. Called periodically so addresses
// seen once do not accumulate forever; correctness never depends on it.
func (l *Limiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, w := range l.entries {
		if now.Sub(w.start) >= l.window {
			delete(l.entries, addr)
		}
	}
}

// SweepLoop runs Sweep every interval until stop is closed.
func (l *Limiter) SweepLoop(stop <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

// ClientAddr extracts the source IP from a request's RemoteAddr. The gateway
// terminates its own connections on a LAN, so forwarding headers are not
// consulted.
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
