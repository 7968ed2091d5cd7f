package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/composer"
	"wingman/internal/provider"
)

// scriptedModel answers each request with the next canned response
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
}

func (m *scriptedModel) pop() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func (m *scriptedModel) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	r, err := m.pop()
	if err != nil {
		return nil, err
	}
	return &textStream{text: r}, nil
}

func (m *scriptedModel) Invoke(ctx context.Context, req provider.Request) (string, error) {
	return m.pop()
}

type textStream struct {
	text string
	done bool
}

func (s *textStream) Recv() (provider.Chunk, error) {
	if s.done {
		return provider.Chunk{}, io.EOF
	}
	s.done = true
	return provider.Chunk{Text: s.text}, nil
}

func (s *textStream) Close() error { return nil }

type broadcast struct {
	mu     sync.Mutex
	events []string
}

func (b *broadcast) BroadcastEvent(eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *broadcast) has(eventType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == eventType {
			return true
		}
	}
	return false
}

const testPlan = "### Required File Changes\n- File: `main.txt`\n- Analysis: say goodbye\n"

const testFile = "===FILE_START===\nPath: main.txt\nLanguage: text\nDescription: say goodbye\n" +
	"Dependencies: none\nCode:\ngoodbye\n===FILE_END==="

func startApp(t *testing.T, replies ...string) (*App, string, *broadcast) {
	t.Helper()
	t.Setenv("WINGMAN_HOME", t.TempDir())

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.txt"), []byte("hello\n"), 0644))

	app := NewApp(root)
	app.model = &scriptedModel{replies: replies}
	require.NoError(t, app.Startup(context.Background()))
	t.Cleanup(func() { app.Shutdown(context.Background()) })

	b := &broadcast{}
	app.SetEventHubBroadcaster(b)
	return app, root, b
}

func TestApp_ComposeAcceptUndo(t *testing.T) {
	app, root, events := startApp(t, testPlan, testFile)

	state, err := app.Compose(context.Background(), composer.ComposeRequest{Input: "Say goodbye\ninstead of hello"})
	require.NoError(t, err)
	require.Equal(t, 1, state.Files.Len())

	file := state.Files.At(0)
	assert.Equal(t, "main.txt", file.Path)
	assert.Equal(t, "hello\n", file.Original)
	assert.Equal(t, "goodbye", file.Code)
	assert.Equal(t, "+1,-1", file.Diff)

	threads, err := app.ListThreads()
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "Say goodbye", threads[0].Title)
	threadID := threads[0].ID

	accepted, err := app.AcceptFile(file, threadID)
	require.NoError(t, err)
	assert.True(t, accepted.Accepted)
	data, err := os.ReadFile(filepath.Join(root, "main.txt"))
	require.NoError(t, err)
	assert.Equal(t, "goodbye", string(data))

	undone, err := app.UndoFile(file, threadID)
	require.NoError(t, err)
	assert.False(t, undone.Accepted)
	data, err = os.ReadFile(filepath.Join(root, "main.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	view, err := app.GetThreadState(threadID)
	require.NoError(t, err)
	assert.False(t, view.Running)
	assert.NotEmpty(t, view.CheckpointID)
	assert.False(t, view.State.Files.At(0).Accepted)

	assert.True(t, events.has("composer:done"))
	assert.True(t, events.has("composer:files"))
	assert.True(t, events.has("threads:changed"))
}

func TestApp_BranchClearRewind(t *testing.T) {
	app, _, _ := startApp(t, testPlan, testFile)

	thread, err := app.CreateThread("  refactor  ")
	require.NoError(t, err)
	assert.Equal(t, "refactor", thread.Title)

	_, err = app.Compose(context.Background(), composer.ComposeRequest{ThreadID: thread.ID, Input: "bye"})
	require.NoError(t, err)

	branch, err := app.BranchThread(thread.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "refactor (branch)", branch.Thread.Title)
	assert.Equal(t, thread.ID, branch.Thread.ParentThreadID)
	require.Equal(t, 1, branch.State.Files.Len())

	_, err = app.RejectFile(branch.State.Files.At(0), branch.Thread.ID)
	require.NoError(t, err)

	orig, err := app.GetThreadState(thread.ID)
	require.NoError(t, err)
	assert.True(t, orig.State.Files.At(0).Pending(), "branches do not share decisions")

	cleared, err := app.ClearChatHistory(thread.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Messages)
	assert.Equal(t, 0, cleared.Files.Len())

	rewound, err := app.RewindThread(thread.ID, orig.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, 1, rewound.Files.Len())

	timeline, err := app.GetThreadTimeline(thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, timeline.TotalCheckpoints)

	require.NoError(t, app.RenameThread(thread.ID, "renamed"))
	view, err := app.GetThreadState(thread.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", view.Thread.Title)
}

func TestApp_Errors(t *testing.T) {
	app, _, _ := startApp(t)

	_, err := app.Compose(context.Background(), composer.ComposeRequest{Input: "   "})
	assert.Error(t, err)

	_, err = app.AcceptFile(composer.FileMetadata{Path: "main.txt"}, "missing")
	assert.ErrorIs(t, err, composer.ErrThreadNotFound)

	_, err = app.BranchThread("missing", "", "")
	assert.ErrorIs(t, err, composer.ErrThreadNotFound)

	assert.Equal(t, 0, app.CancelComposer(""))
	assert.Equal(t, 0, app.CancelComposer("missing"))

	_, err = NewApp(t.TempDir()).ListThreads()
	assert.ErrorIs(t, err, errNotStarted)
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "Fix the bug", titleFrom("  Fix the bug\nin main.go"))
	long := strings.Repeat("é", maxTitleLen+5)
	title := titleFrom(long)
	assert.True(t, strings.HasSuffix(title, "…"))
	assert.Equal(t, maxTitleLen+1, len([]rune(title)))
}
