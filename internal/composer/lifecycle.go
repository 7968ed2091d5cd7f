package composer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wingman/internal/checkpoint"
	"wingman/internal/diffstat"
	"wingman/internal/workspace"
)

// threadLocks hands out one mutex per thread id.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *threadLocks) get(threadID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	if mu, ok := t.locks[threadID]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	t.locks[threadID] = mu
	return mu
}

// Lifecycle applies accept, reject and undo decisions to the files of a
// thread. Decisions on the same thread are serialized.
type Lifecycle struct {
	store *Store
	files *workspace.Files
	locks threadLocks
}

func NewLifecycle(store *Store, files *workspace.Files) *Lifecycle {
	return &Lifecycle{store: store, files: files}
}

type decision func(f *FileMetadata) (changed bool, err error)

// Accept writes the proposed code to disk and marks the file accepted.
func (l *Lifecycle) Accept(threadID, path string) (*FileMetadata, error) {
	return l.apply(threadID, path, "accept", func(f *FileMetadata) (bool, error) {
		if f.Accepted {
			return false, nil
		}
		if f.Rejected || f.Code == "" {
			return false, fmt.Errorf("%s: %w", f.Path, ErrNoProposedCode)
		}
		if err := writeFileAtomic(l.files.Abs(f.Path), []byte(f.Code)); err != nil {
			return false, err
		}
		f.Accepted = true
		return true, nil
	})
}

// Reject discards the proposed code. The disk is not touched.
func (l *Lifecycle) Reject(threadID, path string) (*FileMetadata, error) {
	return l.apply(threadID, path, "reject", func(f *FileMetadata) (bool, error) {
		if f.Rejected {
			return false, nil
		}
		if f.Accepted {
			return false, fmt.Errorf("%s is accepted, undo it first: %w", f.Path, ErrDecisionConflict)
		}
		f.Code = ""
		f.Diff = diffstat.Empty
		f.Rejected = true
		return true, nil
	})
}

// Undo restores the original content of an accepted file, or removes the
// file when it did not exist before. A file that existed is never removed.
func (l *Lifecycle) Undo(threadID, path string) (*FileMetadata, error) {
	return l.apply(threadID, path, "undo", func(f *FileMetadata) (bool, error) {
		if !f.Accepted {
			return false, nil
		}
		abs := l.files.Abs(f.Path)
		if !f.Existed {
			if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
				return false, fmt.Errorf("remove %s: %w", f.Path, err)
			}
		} else if err := writeFileAtomic(abs, []byte(f.Original)); err != nil {
			return false, err
		}
		f.Accepted = false
		return true, nil
	})
}

func (l *Lifecycle) apply(threadID, path, action string, fn decision) (*FileMetadata, error) {
	mu := l.locks.get(threadID)
	mu.Lock()
	defer mu.Unlock()

	cp, state, err := l.store.Get(threadID)
	if err != nil {
		return nil, err
	}
	i, ok := state.Files.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrFileNotFound)
	}

	f := state.Files.At(i)
	changed, err := fn(&f)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &f, nil
	}

	if err := state.Files.Replace(i, f); err != nil {
		return nil, err
	}
	if _, err := l.store.Put(threadID, Meta{Node: cp.Node, Step: cp.Step, Source: checkpoint.SourceUpdate}, state); err != nil {
		return nil, err
	}
	logger().Info().Str("thread_id", threadID).Str("path", path).Str("action", action).Msg("file decision applied")
	return &f, nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, ".wingman-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
