package composer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/provider"
)

func TestFindAgent_ToolLoop(t *testing.T) {
	h := newHarness(t, map[string]string{"a.ts": "export const a = 1\n"})
	model := script(
		turn{
			chunks: []string{"Let me check the code."},
			calls: []provider.ToolCall{
				{ID: "c1", Name: toolReadFile, Arguments: `{"filePath":"a.ts"}`},
				{ID: "c2", Name: toolSemanticSearch, Arguments: `{"query":"export"}`},
				{ID: "c3", Name: toolReadFile, Arguments: `{"filePath":"missing.ts"}`},
			},
		},
		turn{chunks: split(planAB, 7)},
	)
	state := NewState()
	state.Messages = []provider.Message{{Role: provider.RoleUser, Content: "add b"}}

	res := h.findAgent(model).Run(context.Background(), Run{ThreadID: "t1", Emit: h.emit}, state)
	require.NoError(t, res.Err())
	patch := res.Patch()

	reqs := model.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, findTools, reqs[0].Tools)
	assert.Contains(t, reqs[0].System, "A TypeScript project.")
	assert.Contains(t, reqs[0].System, "- package.json")
	assert.Contains(t, reqs[0].Messages[0].Content, "user: add b")

	second := reqs[1].Messages
	require.Len(t, second, 5)
	assert.Equal(t, provider.RoleAssistant, second[1].Role)
	assert.Len(t, second[1].ToolCalls, 3)
	assert.Equal(t, provider.Message{Role: provider.RoleTool, Content: "export const a = 1\n", ToolCallID: "c1"}, second[2])
	assert.Contains(t, second[3].Content, "File: a.ts (lines 1-1)")
	assert.Equal(t, "File not found: missing.ts", second[4].Content)

	require.NotNil(t, patch.Files)
	files := patch.Files.Items()
	require.Len(t, files, 2)
	assert.Equal(t, "a.ts", files[0].Path)
	assert.Equal(t, "bump the constant", files[0].Description)
	assert.Equal(t, "export const a = 1\n", files[0].Original)
	assert.True(t, files[0].Existed)
	assert.Empty(t, files[0].Code)
	assert.NotEmpty(t, files[0].ID)
	assert.Equal(t, "b.ts", files[1].Path)
	assert.Empty(t, files[1].Original)
	assert.False(t, files[1].Existed)

	assert.Equal(t, []string{"lodash"}, patch.Dependencies)
	assert.Equal(t, planAB, *patch.ImplementationPlan)
	assert.Equal(t, "A TypeScript project.", *patch.ProjectDetails)
	assert.Equal(t, "", *patch.Error)
	require.Len(t, patch.Messages, 2)
	assert.Equal(t, planAB, patch.Messages[1].Content, "tool round text is not part of the answer")

	finish := h.emit.of("stream-finish")
	require.Len(t, finish, 1)
	assert.Equal(t, planAB, finish[0].content)
}

func TestFindAgent_UnreadableTargetExisted(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(h.root, "a.ts"), 0755))
	model := script(turn{chunks: []string{planA}})

	res := h.findAgent(model).Run(context.Background(), Run{ThreadID: "t1", Emit: h.emit}, NewState())
	require.NoError(t, res.Err())
	require.NotNil(t, res.Patch().Files)
	files := res.Patch().Files.Items()
	require.Len(t, files, 1)
	assert.True(t, files[0].Existed)
	assert.Empty(t, files[0].Original)
}

func TestFindAgent_LastRoundHasNoTools(t *testing.T) {
	h := newHarness(t, nil)
	call := []provider.ToolCall{{ID: "c", Name: toolSemanticSearch, Arguments: `{"query":"x"}`}}
	model := script(turn{calls: call}, turn{calls: call}, turn{chunks: []string{planNone}})
	agent := h.findAgent(model)
	agent.opts.MaxToolRounds = 2

	res := agent.Run(context.Background(), Run{ThreadID: "t1", Emit: NopEmitter{}}, NewState())
	require.NoError(t, res.Err())

	reqs := model.requests()
	require.Len(t, reqs, 3)
	assert.NotNil(t, reqs[1].Tools)
	assert.Nil(t, reqs[2].Tools)
	assert.Equal(t, 0, res.Patch().Files.Len())
}

func TestFindAgent_KeepsProjectDetails(t *testing.T) {
	h := newHarness(t, nil)
	model := script(turn{chunks: []string{planNone}})
	state := NewState()
	state.ProjectDetails = "Known details."

	res := h.findAgent(model).Run(context.Background(), Run{Emit: NopEmitter{}}, state)
	require.NoError(t, res.Err())
	assert.Equal(t, "Known details.", *res.Patch().ProjectDetails)
	assert.Contains(t, model.requests()[0].System, "Known details.")
}

func TestToolRunner_BadArguments(t *testing.T) {
	r := toolRunner{index: fakeIndex{}, results: 3}
	ctx := context.Background()
	assert.Contains(t, r.run(ctx, provider.ToolCall{Name: toolReadFile, Arguments: "{"}), "requires a filePath")
	assert.Contains(t, r.run(ctx, provider.ToolCall{Name: toolSemanticSearch, Arguments: "{}"}), "requires a query")
	assert.Equal(t, "No matching files found.", r.run(ctx, provider.ToolCall{Name: toolSemanticSearch, Arguments: `{"query":"q"}`}))
	assert.Equal(t, "Unknown tool: shell", r.run(ctx, provider.ToolCall{Name: "shell"}))
}
