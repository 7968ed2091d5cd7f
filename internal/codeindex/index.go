// Package codeindex answers code search and file read requests for the
// planning agent.
package codeindex

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("file not found")

// Snippet is a ranked excerpt of a workspace file
type Snippet struct {
	Path      string  `json:"path"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// Index is the code search service used by the agents
type Index interface {
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
	ReadFile(path string) (string, error)
}
