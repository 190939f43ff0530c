package secure

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the token when its file is rewritten externally (another
// process regenerating it, or an operator editing it). Runs until the
// context is cancelled. The watcher is best-effort: if it cannot start, the
// persisted token simply requires a restart to pick up.
func (s *TokenStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory, not the file: atomic write-then-rename replaces
	// the inode, which a file-level watch would lose.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != TokenFile {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				before := s.Active()
				s.Reload()
				if s.Active() != before {
					log.Printf("[AUTH] token reloaded from %s", s.path)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[AUTH] token watcher: %v", err)
		}
	}
}
