package codeindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wingman/internal/logging"
)

func logger() *zerolog.Logger {
	return logging.Component("codeindex")
}

const (
	windowLines  = 30
	maxFileBytes = 512 * 1024
)

// Lister returns workspace-relative file paths
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Lexical ranks files by query term frequency. File contents are cached
// until invalidated.
type Lexical struct {
	root   string
	lister Lister

	mu    sync.RWMutex
	cache map[string]string
}

func NewLexical(root string, lister Lister) *Lexical {
	return &Lexical{
		root:   root,
		lister: lister,
		cache:  make(map[string]string),
	}
}

// Invalidate drops the cached content of one absolute or relative path, or
// everything when path is empty.
func (l *Lexical) Invalidate(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if path == "" {
		l.cache = make(map[string]string)
		return
	}
	if rel, err := l.relative(path); err == nil {
		delete(l.cache, rel)
	}
}

// ReadFile returns the content of a workspace file
func (l *Lexical) ReadFile(path string) (string, error) {
	rel, err := l.relative(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", err
	}
	return string(data), nil
}

func (l *Lexical) relative(path string) (string, error) {
	path = filepath.FromSlash(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.root, path)
	}
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the workspace", path)
	}
	return filepath.ToSlash(rel), nil
}

func (l *Lexical) content(rel string) (string, bool) {
	l.mu.RLock()
	c, ok := l.cache[rel]
	l.mu.RUnlock()
	if ok {
		return c, true
	}

	full := filepath.Join(l.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || info.Size() > maxFileBytes {
		return "", false
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", false
	}
	c = string(data)
	if strings.ContainsRune(c, 0) {
		c = ""
	}

	l.mu.Lock()
	l.cache[rel] = c
	l.mu.Unlock()
	return c, c != ""
}

// Search returns the k best matching snippets, highest score first
func (l *Lexical) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	terms := tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	files, err := l.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspace: %w", err)
	}

	results := make([]*Snippet, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = l.score(rel, terms)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Snippet
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > k {
		out = out[:k]
	}
	logger().Debug().Str("query", query).Int("results", len(out)).Msg("search")
	return out, nil
}

// score finds the best window of lines in a file. Path matches count double.
func (l *Lexical) score(rel string, terms []string) *Snippet {
	pathScore := 0.0
	lowerPath := strings.ToLower(rel)
	for _, t := range terms {
		if strings.Contains(lowerPath, t) {
			pathScore += 2
		}
	}

	content, ok := l.content(rel)
	if !ok && pathScore == 0 {
		return nil
	}

	lines := strings.Split(content, "\n")
	hits := make([]int, len(lines))
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, t := range terms {
			hits[i] += strings.Count(lower, t)
		}
	}

	best, bestStart, window := 0, 0, 0
	for i := range lines {
		window += hits[i]
		if i >= windowLines {
			window -= hits[i-windowLines]
		}
		if window > best {
			best = window
			bestStart = max(0, i-windowLines+1)
		}
	}

	total := pathScore + float64(best)
	if total == 0 {
		return nil
	}

	end := min(len(lines), bestStart+windowLines)
	return &Snippet{
		Path:      rel,
		StartLine: bestStart + 1,
		EndLine:   end,
		Content:   strings.Join(lines[bestStart:end], "\n"),
		Score:     total,
	}
}

func tokenize(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, f := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len(f) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "how": true, "where": true, "what": true, "are": true,
	"is": true, "of": true, "to": true, "in": true, "on": true, "an": true, "or": true,
}
