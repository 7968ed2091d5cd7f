// Package diffstat summarizes the line changes between two versions of a file.
package diffstat

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"

	"wingman/internal/logging"
)

// Empty is returned when there is nothing to report or the diff failed.
const Empty = "+0,-0"

func logger() *zerolog.Logger {
	return logging.Component("diffstat")
}

// Stat holds added and removed line counts.
type Stat struct {
	Additions int
	Deletions int
}

func (s Stat) String() string {
	return fmt.Sprintf("+%d,-%d", s.Additions, s.Deletions)
}

// Compute returns "+A,-D" for the change from original to proposed.
// An empty original is a new file. It never fails: any internal error is
// logged and reported as Empty.
func Compute(original, proposed, path string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logger().Warn().Str("path", path).Interface("panic", r).Msg("diff failed")
			out = Empty
		}
	}()

	stat, err := Count(original, proposed, path)
	if err != nil {
		logger().Warn().Err(err).Str("path", path).Msg("diff failed")
		return Empty
	}
	return stat.String()
}

// Count diffs original against proposed and counts content lines only.
// File headers and hunk markers are not counted.
func Count(original, proposed, path string) (Stat, error) {
	if original == proposed {
		return Stat{}, nil
	}

	diff := difflib.UnifiedDiff{
		A:        splitLines(original),
		B:        splitLines(proposed),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return Stat{}, err
	}

	var stat Stat
	inHunk := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case !inHunk:
			// ---/+++ headers
		case strings.HasPrefix(line, "\\"):
		case strings.HasPrefix(line, "+"):
			stat.Additions++
		case strings.HasPrefix(line, "-"):
			stat.Deletions++
		}
	}
	return stat, nil
}

// splitLines returns newline-terminated lines. A missing final newline is
// not treated as a change.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i := range lines {
		lines[i] += "\n"
	}
	return lines
}
