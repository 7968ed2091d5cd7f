package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wingman/internal/codeindex"
	"wingman/internal/provider"
)

const (
	toolReadFile       = "read_file"
	toolSemanticSearch = "semantic_search_codebase"
)

var findTools = []provider.Tool{
	{
		Name:        toolReadFile,
		Description: "Reads the exact contents of a workspace file. Use it for dependency manifests, configuration files and files whose path is known.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filePath": map[string]any{
					"type":        "string",
					"description": "Workspace relative path of the file",
				},
			},
			"required": []string{"filePath"},
		},
	},
	{
		Name:        toolSemanticSearch,
		Description: "Searches the codebase and returns the most relevant file snippets for a query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for",
				},
			},
			"required": []string{"query"},
		},
	},
}

// toolRunner executes the find agent's tool calls against the code index.
// Failures are reported back to the model as text.
type toolRunner struct {
	index   codeindex.Index
	results int
}

func (r toolRunner) run(ctx context.Context, call provider.ToolCall) string {
	switch call.Name {
	case toolReadFile:
		var args struct {
			FilePath string `json:"filePath"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args.FilePath == "" {
			return "Error: read_file requires a filePath argument."
		}
		content, err := r.index.ReadFile(args.FilePath)
		if errors.Is(err, codeindex.ErrNotFound) {
			return fmt.Sprintf("File not found: %s", args.FilePath)
		}
		if err != nil {
			return fmt.Sprintf("Error reading %s: %v", args.FilePath, err)
		}
		return content

	case toolSemanticSearch:
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args.Query == "" {
			return "Error: semantic_search_codebase requires a query argument."
		}
		snippets, err := r.index.Search(ctx, args.Query, r.results)
		if err != nil {
			return fmt.Sprintf("Error searching the codebase: %v", err)
		}
		if len(snippets) == 0 {
			return "No matching files found."
		}
		var b strings.Builder
		for _, s := range snippets {
			fmt.Fprintf(&b, "File: %s (lines %d-%d)\n```\n%s\n```\n\n", s.Path, s.StartLine, s.EndLine, s.Content)
		}
		return strings.TrimSpace(b.String())

	default:
		return fmt.Sprintf("Unknown tool: %s", call.Name)
	}
}
