package composer

import (
	"encoding/json"
	"errors"
	"fmt"

	"wingman/internal/checkpoint"
	"wingman/internal/provider"
)

// Meta is the graph position recorded with a checkpoint.
type Meta struct {
	Node   string
	Step   int
	Source string
}

// Store persists thread states as checkpoints. File contents go to the
// checkpoint content pool so unchanged files are stored once per thread.
type Store struct {
	checkpoints *checkpoint.Manager
}

func NewStore(checkpoints *checkpoint.Manager) *Store {
	return &Store{checkpoints: checkpoints}
}

// storedFile keeps contents out of the payload. Original and Code shadow the
// embedded fields and are always empty.
type storedFile struct {
	FileMetadata
	Original    string `json:"original,omitempty"`
	Code        string `json:"code,omitempty"`
	OriginalRef string `json:"originalRef,omitempty"`
	CodeRef     string `json:"codeRef,omitempty"`
}

type storedState struct {
	Messages           []provider.Message `json:"messages"`
	Files              []storedFile       `json:"files"`
	Dependencies       []string           `json:"dependencies,omitempty"`
	ProjectDetails     string             `json:"projectDetails,omitempty"`
	ImplementationPlan string             `json:"implementationPlan,omitempty"`
	Error              string             `json:"error,omitempty"`
}

func encodeState(st *PlanExecuteState) ([]byte, map[string]string, error) {
	blobs := make(map[string]string)
	pool := func(content string) string {
		if content == "" {
			return ""
		}
		hash := checkpoint.CalculateHash(content)
		blobs[hash] = content
		return hash
	}

	stored := storedState{
		Messages:           st.Messages,
		Dependencies:       st.Dependencies,
		ProjectDetails:     st.ProjectDetails,
		ImplementationPlan: st.ImplementationPlan,
		Error:              st.Error,
	}
	for _, f := range st.Files.Items() {
		sf := storedFile{
			FileMetadata: f,
			OriginalRef:  pool(f.Original),
			CodeRef:      pool(f.Code),
		}
		stored.Files = append(stored.Files, sf)
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal state: %w", err)
	}
	return payload, blobs, nil
}

func (s *Store) decodeState(threadID string, payload []byte) (*PlanExecuteState, error) {
	var stored storedState
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}

	blob := func(hash string) (string, error) {
		if hash == "" {
			return "", nil
		}
		return s.checkpoints.Storage().Blob(threadID, hash)
	}

	st := NewState()
	if stored.Messages != nil {
		st.Messages = stored.Messages
	}
	st.Dependencies = stored.Dependencies
	st.ProjectDetails = stored.ProjectDetails
	st.ImplementationPlan = stored.ImplementationPlan
	st.Error = stored.Error
	for _, sf := range stored.Files {
		f := sf.FileMetadata
		var err error
		if f.Original, err = blob(sf.OriginalRef); err != nil {
			return nil, fmt.Errorf("load original of %s: %w", f.Path, err)
		}
		if f.Code, err = blob(sf.CodeRef); err != nil {
			return nil, fmt.Errorf("load code of %s: %w", f.Path, err)
		}
		st.Files.Upsert(f)
	}
	return st, nil
}

// Get returns the latest checkpoint of a thread and its state.
func (s *Store) Get(threadID string) (*checkpoint.Checkpoint, *PlanExecuteState, error) {
	return s.load(threadID, "")
}

// GetAt returns a specific checkpoint of a thread and its state.
func (s *Store) GetAt(threadID, checkpointID string) (*checkpoint.Checkpoint, *PlanExecuteState, error) {
	return s.load(threadID, checkpointID)
}

func (s *Store) load(threadID, checkpointID string) (*checkpoint.Checkpoint, *PlanExecuteState, error) {
	var (
		cp      *checkpoint.Checkpoint
		payload []byte
		err     error
	)
	if checkpointID == "" {
		cp, payload, err = s.checkpoints.Storage().Latest(threadID)
	} else {
		cp, payload, err = s.checkpoints.Storage().Load(threadID, checkpointID)
	}
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", threadID, ErrThreadNotFound)
		}
		return nil, nil, err
	}

	st, err := s.decodeState(threadID, payload)
	if err != nil {
		return nil, nil, err
	}
	return cp, st, nil
}

// Put appends a checkpoint holding state.
func (s *Store) Put(threadID string, meta Meta, state *PlanExecuteState) (*checkpoint.Checkpoint, error) {
	payload, blobs, err := encodeState(state)
	if err != nil {
		return nil, err
	}
	cp := &checkpoint.Checkpoint{
		ThreadID: threadID,
		Node:     meta.Node,
		Step:     meta.Step,
		Source:   meta.Source,
	}
	if err := s.checkpoints.Storage().Put(cp, payload, blobs); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	return cp, nil
}

// Exists reports whether the thread has a checkpoint.
func (s *Store) Exists(threadID string) bool {
	return s.checkpoints.Storage().Exists(threadID)
}

// Branch copies a checkpoint of src (its latest when checkpointID is empty)
// into the new thread dst and returns dst's initial state.
func (s *Store) Branch(src, checkpointID, dst string) (*PlanExecuteState, error) {
	if _, err := s.checkpoints.Fork(src, checkpointID, dst); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", src, ErrThreadNotFound)
		}
		return nil, err
	}
	_, st, err := s.Get(dst)
	return st, err
}

// Clear appends an empty state. Earlier checkpoints are kept.
func (s *Store) Clear(threadID string) (*PlanExecuteState, error) {
	st := NewState()
	if _, err := s.Put(threadID, Meta{Source: checkpoint.SourceUpdate, Step: 0}, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Rewind makes an older checkpoint the latest again.
func (s *Store) Rewind(threadID, checkpointID string) (*PlanExecuteState, error) {
	if _, err := s.checkpoints.Rewind(threadID, checkpointID); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, fmt.Errorf("%s@%s: %w", threadID, checkpointID, ErrThreadNotFound)
		}
		return nil, err
	}
	_, st, err := s.Get(threadID)
	return st, err
}

func (s *Store) Timeline(threadID string) (*checkpoint.Timeline, error) {
	return s.checkpoints.Timeline(threadID)
}
