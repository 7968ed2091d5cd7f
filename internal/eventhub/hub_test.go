package eventhub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/composer"
)

type captured struct {
	name    string
	payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []captured
}

func (f *fakeBroadcaster) BroadcastEvent(eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, captured{eventType, payload})
}

func TestEventHub_WithoutBroadcaster(t *testing.T) {
	h := New()
	assert.NotPanics(t, func() { h.Error("t1", "boom") })
}

func TestEventHub_ComposerEvents(t *testing.T) {
	b := &fakeBroadcaster{}
	h := New()
	h.SetBroadcaster(b)

	state := composer.NewState()
	h.NodeFinished("t1", composer.NodeFind, state)
	h.MessageStream("t1", "partial")
	h.MessageStreamFinish("t1", nil)
	h.FilesUpdated("t1", []composer.FileMetadata{{Path: "a.ts", Diff: "+1,-0"}})
	h.Error("t1", "boom")
	h.Done("t1", state)
	h.EmitThreadsChanged(ThreadsChangedEvent{ThreadID: "t1", Action: "created"})
	h.EmitWorkspaceChanged(WorkspaceChangedEvent{Paths: []string{"a.ts"}})

	var names []string
	for _, e := range b.events {
		names = append(names, e.name)
	}
	assert.Equal(t, []string{
		EventComposerNode, EventComposerMessageStream, EventComposerMessageStreamFinish,
		EventComposerFiles, EventComposerError, EventComposerDone,
		EventThreadsChanged, EventWorkspaceChanged,
	}, names)

	data, err := json.Marshal(b.events[3].payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"threadId":"t1","files":[{"id":"","path":"a.ts","original":"","code":"","diff":"+1,-0"}]}`, string(data))

	data, err = json.Marshal(b.events[4].payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"threadId":"t1","error":"boom"}`, string(data))
}
