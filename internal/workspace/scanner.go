// Package workspace provides read-only views of the user's project: the file
// listing, project rules, the project description and diff baselines.
package workspace

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"wingman/internal/logging"
)

func logger() *zerolog.Logger {
	return logging.Component("workspace")
}

// Scanner lists workspace files filtered by include/exclude globs. Results
// are cached until Invalidate is called.
type Scanner struct {
	root     string
	include  []string
	exclude  []string
	maxDepth int

	mu    sync.Mutex
	cache []string
	valid bool
}

// NewScanner creates a scanner. Globs are matched against slash-separated
// paths relative to root.
func NewScanner(root string, include, exclude []string, maxDepth int) *Scanner {
	return &Scanner{
		root:     root,
		include:  include,
		exclude:  exclude,
		maxDepth: maxDepth,
	}
}

// Root returns the workspace root
func (s *Scanner) Root() string {
	return s.root
}

// Invalidate drops the cached listing
func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.cache = nil
	s.mu.Unlock()
}

// List returns the sorted relative paths of all matching files
func (s *Scanner) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid {
		return append([]string(nil), s.cache...), nil
	}

	var files []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			logger().Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == s.root {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.depth(rel) >= s.maxDepth || s.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if s.Match(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	s.cache = files
	s.valid = true
	return append([]string(nil), files...), nil
}

func (s *Scanner) depth(rel string) int {
	return strings.Count(rel, "/") + 1
}

// Match reports whether a relative file path is included and not excluded
func (s *Scanner) Match(rel string) bool {
	if matchAny(s.exclude, rel) {
		return false
	}
	return matchAny(s.include, rel)
}

// SkipDir reports whether a relative directory is excluded entirely
func (s *Scanner) SkipDir(rel string) bool {
	// a directory is pruned when anything inside it would be excluded
	return matchAny(s.exclude, rel+"/x")
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
