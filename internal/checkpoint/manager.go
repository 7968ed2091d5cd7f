// internal/checkpoint/manager.go
package checkpoint

import (
	"errors"
	"fmt"
	"time"
)

var ErrThreadExists = errors.New("thread already has checkpoints")

// Manager implements the thread-level operations built on Storage
type Manager struct {
	storage *Storage
}

// NewManager creates a new checkpoint manager
func NewManager(storage *Storage) *Manager {
	return &Manager{storage: storage}
}

// Storage returns the underlying storage
func (m *Manager) Storage() *Storage {
	return m.storage
}

// loadWithBlobs loads a checkpoint (the latest when checkpointID is empty)
// together with every pooled blob it references.
func (m *Manager) loadWithBlobs(threadID, checkpointID string) (*Checkpoint, []byte, map[string]string, error) {
	var (
		cp      *Checkpoint
		payload []byte
		err     error
	)
	if checkpointID == "" {
		cp, payload, err = m.storage.Latest(threadID)
	} else {
		cp, payload, err = m.storage.Load(threadID, checkpointID)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	blobs := make(map[string]string, len(cp.Blobs))
	for _, hash := range cp.Blobs {
		content, err := m.storage.Blob(threadID, hash)
		if err != nil {
			return nil, nil, nil, err
		}
		blobs[hash] = content
	}
	return cp, payload, blobs, nil
}

// Fork copies a checkpoint of srcThread (its latest when checkpointID is
// empty) into dstThread as its first checkpoint. The copy is independent:
// payload and blobs are duplicated into the new thread's directory.
func (m *Manager) Fork(srcThread, checkpointID, dstThread string) (*Checkpoint, error) {
	if m.storage.Exists(dstThread) {
		return nil, fmt.Errorf("fork into %s: %w", dstThread, ErrThreadExists)
	}

	src, payload, blobs, err := m.loadWithBlobs(srcThread, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	forked := &Checkpoint{
		ThreadID:  dstThread,
		ParentID:  src.ID,
		Node:      src.Node,
		Step:      src.Step,
		Source:    SourceFork,
		Timestamp: time.Now(),
	}
	if err := m.storage.Put(forked, payload, blobs); err != nil {
		return nil, fmt.Errorf("save forked checkpoint: %w", err)
	}
	return forked, nil
}

// Rewind appends a copy of an older checkpoint so it becomes the latest.
// Nothing is deleted.
func (m *Manager) Rewind(threadID, checkpointID string) (*Checkpoint, error) {
	src, payload, blobs, err := m.loadWithBlobs(threadID, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	rewound := &Checkpoint{
		ThreadID: threadID,
		ParentID: src.ID,
		Node:     src.Node,
		Step:     src.Step,
		Source:   SourceRewind,
	}
	if err := m.storage.Put(rewound, payload, blobs); err != nil {
		return nil, fmt.Errorf("save rewound checkpoint: %w", err)
	}
	return rewound, nil
}

// Timeline builds the checkpoint tree of a thread from parent links
func (m *Manager) Timeline(threadID string) (*Timeline, error) {
	checkpoints, err := m.storage.List(threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	timeline := &Timeline{
		ThreadID:         threadID,
		TotalCheckpoints: len(checkpoints),
	}
	if len(checkpoints) == 0 {
		return timeline, nil
	}

	nodeMap := make(map[string]*TimelineNode, len(checkpoints))
	for _, cp := range checkpoints {
		nodeMap[cp.ID] = &TimelineNode{Checkpoint: cp, Children: []*TimelineNode{}}
	}

	// Link parent-child relationships in version order; a parent outside
	// this thread (a fork source) makes the node the root.
	for _, cp := range checkpoints {
		node := nodeMap[cp.ID]
		if parent, ok := nodeMap[cp.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else if timeline.RootNode == nil {
			timeline.RootNode = node
		}
	}

	timeline.CurrentCheckpointID = checkpoints[len(checkpoints)-1].ID
	return timeline, nil
}
