// internal/checkpoint/storage_test.go
package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir(), 3)
	require.NoError(t, err)
	return s
}

func TestStorage_PutAssignsVersions(t *testing.T) {
	s := newTestStorage(t)

	first := &Checkpoint{ThreadID: "thread-1", Source: SourceInput}
	require.NoError(t, s.Put(first, []byte(`{"n":1}`), nil))
	second := &Checkpoint{ThreadID: "thread-1", Source: SourceLoop, Node: "find", Step: 1}
	require.NoError(t, s.Put(second, []byte(`{"n":2}`), nil))

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())
	assert.Empty(t, first.ParentID)
	assert.Equal(t, first.ID, second.ParentID)
}

func TestStorage_LatestAndLoad(t *testing.T) {
	s := newTestStorage(t)

	for _, payload := range []string{"one", "two", "three"} {
		require.NoError(t, s.Put(&Checkpoint{ThreadID: "t"}, []byte(payload), nil))
	}

	cp, payload, err := s.Latest("t")
	require.NoError(t, err)
	assert.Equal(t, 3, cp.Version)
	assert.Equal(t, "three", string(payload))

	list, err := s.List("t")
	require.NoError(t, err)
	require.Len(t, list, 3)

	loaded, payload, err := s.Load("t", list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, "one", string(payload))
}

func TestStorage_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, _, err := s.Latest("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.Exists("missing"))

	require.NoError(t, s.Put(&Checkpoint{ThreadID: "t"}, nil, nil))
	_, _, err = s.Load("t", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Blob("t", CalculateHash("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_Blobs(t *testing.T) {
	s := newTestStorage(t)

	content := "package main\n"
	hash := CalculateHash(content)
	cp := &Checkpoint{ThreadID: "t"}
	require.NoError(t, s.Put(cp, []byte("{}"), map[string]string{hash: content}))
	assert.Equal(t, []string{hash}, cp.Blobs)

	got, err := s.Blob("t", hash)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Same content again is stored once.
	require.NoError(t, s.Put(&Checkpoint{ThreadID: "t"}, []byte("{}"), map[string]string{hash: content}))
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "t", "content_pool"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStorage_ListSkipsIncomplete(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Put(&Checkpoint{ThreadID: "t"}, nil, nil))
	require.NoError(t, os.MkdirAll(filepath.Join(s.baseDir, "t", "00000002-x.tmp"), 0755))

	list, err := s.List("t")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStorage_RequiresThreadID(t *testing.T) {
	s := newTestStorage(t)
	assert.Error(t, s.Put(&Checkpoint{}, nil, nil))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "thread-1", safeName("thread-1"))
	assert.Equal(t, "a_b", safeName("a_b"))
	assert.Equal(t, "~612f62", safeName("a/b"))
	assert.Equal(t, "~2e2e", safeName(".."))
	assert.Equal(t, "~", safeName(""))

	seen := make(map[string]string)
	for _, id := range []string{"a/b", "a_b", "a\\b", "~612f62", ".", "..", "_", ""} {
		name := safeName(id)
		assert.NotContains(t, name, "/")
		assert.NotContains(t, name, "\\")
		prev, dup := seen[name]
		assert.False(t, dup, "%q and %q share %q", prev, id, name)
		seen[name] = id
	}
}

func TestStorage_SimilarThreadIDsStaySeparate(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.Put(&Checkpoint{ThreadID: "a/b"}, []byte("slash"), nil))
	require.NoError(t, s.Put(&Checkpoint{ThreadID: "a_b"}, []byte("underscore"), nil))

	_, payload, err := s.Latest("a/b")
	require.NoError(t, err)
	assert.Equal(t, "slash", string(payload))
	_, payload, err = s.Latest("a_b")
	require.NoError(t, err)
	assert.Equal(t, "underscore", string(payload))

	list, err := s.List("a/b")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCalculateHash(t *testing.T) {
	assert.Equal(t, CalculateHash("a"), CalculateHash("a"))
	assert.NotEqual(t, CalculateHash("a"), CalculateHash("b"))
	assert.Len(t, CalculateHash(""), 64)
}
