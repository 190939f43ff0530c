// Package secure holds the gateway's protection-layer state: the persisted
// authentication token and the self-signed TLS material. Both are generated
// once, persisted under the config dir, and reused across restarts.
package secure

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

const (
	TokenFile = "token.txt"

	// tokenLen is the secret length in hex characters (8 random bytes).
	tokenLen = 16
)

// TokenStore manages the single active authentication secret. The value is
// persisted as raw text so share URLs and QR codes survive restarts, and is
// held behind an atomic swap: readers never lock, writers replace wholesale.
type TokenStore struct {
	path   string
	active atomic.Value // string
}

// NewTokenStore creates a store persisting to <dir>/token.txt.
func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{path: filepath.Join(dir, TokenFile)}
}

// Path returns the token file location.
func (s *TokenStore) Path() string { return s.path }

// Load activates the persisted token, generating and persisting a new one if
// no usable secret exists yet.
func (s *TokenStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if err == nil {
		tok := strings.TrimSpace(string(b))
		if len(tok) >= tokenLen {
			s.active.Store(tok)
			return tok, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read token: %w", err)
	}
	return s.Regenerate()
}

// Regenerate creates a fresh secret, persists it, and swaps it in. The prior
// token stops validating immediately; open connections are unaffected.
func (s *TokenStore) Regenerate() (string, error) {
	var raw [tokenLen / 2]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	tok := hex.EncodeToString(raw[:])
	if err := writeFileAtomic(s.path, []byte(tok), 0o600); err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}
	s.active.Store(tok)
	return tok, nil
}

// Reload re-reads the persisted token, picking up external edits. A missing
// or truncated file leaves the active value unchanged.
func (s *TokenStore) Reload() {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	tok := strings.TrimSpace(string(b))
	if len(tok) >= tokenLen {
		s.active.Store(tok)
	}
}

// Active returns the current secret, or "" before Load.
func (s *TokenStore) Active() string {
	v, _ := s.active.Load().(string)
	return v
}

// Validate compares a supplied token against the active secret in constant
// time. It never succeeds before a secret is active.
func (s *TokenStore) Validate(provided string) bool {
	active := s.Active()
	if active == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(active)) == 1
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
