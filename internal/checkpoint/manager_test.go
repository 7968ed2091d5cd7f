package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ForkIsIndependent(t *testing.T) {
	m := NewManager(newTestStorage(t))
	s := m.Storage()

	content := "original"
	hash := CalculateHash(content)
	src := &Checkpoint{ThreadID: "parent", Node: "write", Step: 2, Source: SourceLoop}
	require.NoError(t, s.Put(src, []byte(`{"v":"parent"}`), map[string]string{hash: content}))

	forked, err := m.Fork("parent", "", "child")
	require.NoError(t, err)
	assert.Equal(t, "child", forked.ThreadID)
	assert.Equal(t, src.ID, forked.ParentID)
	assert.Equal(t, SourceFork, forked.Source)
	assert.Equal(t, 1, forked.Version)
	assert.Equal(t, 2, forked.Step)

	_, payload, err := s.Latest("child")
	require.NoError(t, err)
	assert.Equal(t, `{"v":"parent"}`, string(payload))

	got, err := s.Blob("child", hash)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Writing to the child leaves the parent lineage untouched.
	require.NoError(t, s.Put(&Checkpoint{ThreadID: "child"}, []byte(`{"v":"child"}`), nil))
	parentList, err := s.List("parent")
	require.NoError(t, err)
	require.Len(t, parentList, 1)
	_, payload, err = s.Latest("parent")
	require.NoError(t, err)
	assert.Equal(t, `{"v":"parent"}`, string(payload))
}

func TestManager_ForkSpecificCheckpoint(t *testing.T) {
	m := NewManager(newTestStorage(t))
	s := m.Storage()

	first := &Checkpoint{ThreadID: "p"}
	require.NoError(t, s.Put(first, []byte("first"), nil))
	require.NoError(t, s.Put(&Checkpoint{ThreadID: "p"}, []byte("second"), nil))

	_, err := m.Fork("p", first.ID, "c")
	require.NoError(t, err)

	_, payload, err := s.Latest("c")
	require.NoError(t, err)
	assert.Equal(t, "first", string(payload))
}

func TestManager_ForkErrors(t *testing.T) {
	m := NewManager(newTestStorage(t))

	_, err := m.Fork("missing", "", "c")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Storage().Put(&Checkpoint{ThreadID: "p"}, nil, nil))
	require.NoError(t, m.Storage().Put(&Checkpoint{ThreadID: "c"}, nil, nil))
	_, err = m.Fork("p", "", "c")
	assert.ErrorIs(t, err, ErrThreadExists)
}

func TestManager_RewindAppends(t *testing.T) {
	m := NewManager(newTestStorage(t))
	s := m.Storage()

	first := &Checkpoint{ThreadID: "t"}
	require.NoError(t, s.Put(first, []byte("first"), nil))
	require.NoError(t, s.Put(&Checkpoint{ThreadID: "t"}, []byte("second"), nil))

	rewound, err := m.Rewind("t", first.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rewound.Version)
	assert.Equal(t, SourceRewind, rewound.Source)

	_, payload, err := s.Latest("t")
	require.NoError(t, err)
	assert.Equal(t, "first", string(payload))

	list, err := s.List("t")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestManager_Timeline(t *testing.T) {
	m := NewManager(newTestStorage(t))
	s := m.Storage()

	a := &Checkpoint{ThreadID: "t"}
	require.NoError(t, s.Put(a, nil, nil))
	b := &Checkpoint{ThreadID: "t"}
	require.NoError(t, s.Put(b, nil, nil))
	c, err := m.Rewind("t", a.ID)
	require.NoError(t, err)

	timeline, err := m.Timeline("t")
	require.NoError(t, err)
	assert.Equal(t, 3, timeline.TotalCheckpoints)
	assert.Equal(t, c.ID, timeline.CurrentCheckpointID)

	require.NotNil(t, timeline.RootNode)
	assert.Equal(t, a.ID, timeline.RootNode.Checkpoint.ID)
	require.Len(t, timeline.RootNode.Children, 2)
	assert.Equal(t, b.ID, timeline.RootNode.Children[0].Checkpoint.ID)
	assert.Equal(t, c.ID, timeline.RootNode.Children[1].Checkpoint.ID)
}

func TestManager_TimelineEmpty(t *testing.T) {
	m := NewManager(newTestStorage(t))
	timeline, err := m.Timeline("none")
	require.NoError(t, err)
	assert.Nil(t, timeline.RootNode)
	assert.Zero(t, timeline.TotalCheckpoints)
}
