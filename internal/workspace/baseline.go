package workspace

import (
	"errors"
	"os"
	"path/filepath"
)

// HeadReader reads the committed version of a file
type HeadReader interface {
	FileAtHead(path string) (string, error)
}

// Files resolves and reads workspace files
type Files struct {
	root string
	head HeadReader
}

// NewFiles creates a Files view. head may be nil when the workspace is not a
// git repository.
func NewFiles(root string, head HeadReader) *Files {
	return &Files{root: root, head: head}
}

// Abs resolves a workspace-relative path. Absolute paths are kept.
func (f *Files) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(f.root, filepath.FromSlash(path))
}

// Read returns the content of path and whether the file exists.
func (f *Files) Read(path string) (string, bool, error) {
	data, err := os.ReadFile(f.Abs(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// Baseline returns the current content of path for diffing. A missing file
// is empty. When the file exists but cannot be read, the committed version
// is used if there is one, otherwise "".
func (f *Files) Baseline(path string) string {
	content, _, err := f.Read(path)
	if err == nil {
		return content
	}

	logger().Debug().Err(err).Str("path", path).Msg("baseline read failed")
	if f.head != nil {
		if committed, herr := f.head.FileAtHead(f.Abs(path)); herr == nil {
			return committed
		}
	}
	return ""
}
