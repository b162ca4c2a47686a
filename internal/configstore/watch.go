package configstore

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/mozi-run/mozi/internal/errs"
)

// Delete removes path from the document under CAS, same conflict semantics
// as Apply.
func (s *Store) Delete(path string, expectedRawHash [32]byte) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expectedRawHash != s.current.RawHash {
		return Snapshot{}, errs.New(errs.CodeConfigConflict, "config changed since snapshot was read")
	}

	next := deepCopyMap(s.current.Raw)
	if !deletePath(next, path) {
		return Snapshot{}, errs.New(errs.CodeValidation, "path not found: "+path)
	}
	if err := s.persist(next); err != nil {
		return Snapshot{}, err
	}
	s.current = Snapshot{Raw: next, RawHash: hashOf(next)}
	return s.current, nil
}

// PatchOp is one step of a multi-path Patch call.
type PatchOp struct {
	Path   string
	Value  any
	Delete bool
}

// Patch applies a batch of operations atomically under a single CAS check
// and a single disk write.
func (s *Store) Patch(ops []PatchOp, expectedRawHash [32]byte) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expectedRawHash != s.current.RawHash {
		return Snapshot{}, errs.New(errs.CodeConfigConflict, "config changed since snapshot was read")
	}

	next := deepCopyMap(s.current.Raw)
	for _, op := range ops {
		if op.Delete {
			deletePath(next, op.Path)
			continue
		}
		resolved, err := resolveSentinel(next, op.Path, op.Value)
		if err != nil {
			return Snapshot{}, errs.Wrap(errs.CodeConfigValidation, "resolve redacted sentinel for patch op "+op.Path, err)
		}
		if err := setPath(next, op.Path, resolved); err != nil {
			return Snapshot{}, errs.Wrap(errs.CodeConfigValidation, "apply patch op "+op.Path, err)
		}
	}

	if err := validate(next); err != nil {
		return Snapshot{}, errs.Wrap(errs.CodeConfigValidation, "validate config after patch", err)
	}
	if err := s.persist(next); err != nil {
		return Snapshot{}, err
	}
	s.current = Snapshot{Raw: deepCopyMap(next), RawHash: hashOf(next)}
	return s.current, nil
}

// Watch starts an fsnotify watch on the store's underlying file and reloads
// the in-memory snapshot whenever an external process writes it (e.g. an
// operator editing config.jsonc by hand). It runs until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(errs.CodeConfigIO, "create fsnotify watcher", err)
	}

	dir := dirOf(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errs.Wrap(errs.CodeConfigIO, "watch config dir", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					logger.Warn("config reload after external edit failed", "error", err)
					continue
				}
				logger.Info("config reloaded from external edit", "path", s.path)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", watchErr)
			}
		}
	}()

	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
