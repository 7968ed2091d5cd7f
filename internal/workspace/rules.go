package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// RuleFiles are checked in order; the first one found is used.
var RuleFiles = []string{".wingmanrules", filepath.Join(".wingman", "rules.md")}

// LoadRules returns the project's rule pack for the writer, or "" when the
// project has none.
func LoadRules(root string) string {
	for _, name := range RuleFiles {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger().Warn().Err(err).Str("file", name).Msg("failed to read rules")
			}
			continue
		}
		return strings.TrimSpace(string(data))
	}
	return ""
}
