package composer

import (
	"encoding/json"
	"fmt"
	"sort"

	"wingman/internal/provider"
)

// FileMetadata describes one file touched by a run: its content before and
// after the proposed change and the user's decision on it. Existed is set
// when the file was already on disk when the change was planned.
type FileMetadata struct {
	ID           string   `json:"id"`
	Path         string   `json:"path"`
	Original     string   `json:"original"`
	Existed      bool     `json:"existed,omitempty"`
	Code         string   `json:"code"`
	Diff         string   `json:"diff,omitempty"`
	Description  string   `json:"description,omitempty"`
	Language     string   `json:"language,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Accepted     bool     `json:"accepted,omitempty"`
	Rejected     bool     `json:"rejected,omitempty"`
}

// Pending reports whether no decision has been made yet.
func (f FileMetadata) Pending() bool {
	return !f.Accepted && !f.Rejected
}

func (f FileMetadata) clone() FileMetadata {
	f.Dependencies = append([]string(nil), f.Dependencies...)
	return f
}

// FileSet is an ordered collection of FileMetadata, unique by path.
// Records are addressed by index; Replace swaps one in place.
type FileSet struct {
	items []FileMetadata
	index map[string]int
}

func NewFileSet(files ...FileMetadata) *FileSet {
	s := &FileSet{index: make(map[string]int, len(files))}
	for _, f := range files {
		s.Upsert(f)
	}
	return s
}

func (s *FileSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Lookup returns the index of the record for path.
func (s *FileSet) Lookup(path string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[path]
	return i, ok
}

// At returns a copy of the record at index i.
func (s *FileSet) At(i int) FileMetadata {
	return s.items[i].clone()
}

// Replace overwrites the record at index i. The new record may change its
// path only to one that is not used by another record.
func (s *FileSet) Replace(i int, f FileMetadata) error {
	if i < 0 || i >= len(s.items) {
		return fmt.Errorf("file index %d out of range", i)
	}
	old := s.items[i].Path
	if f.Path != old {
		if _, taken := s.index[f.Path]; taken {
			return fmt.Errorf("path %s already present", f.Path)
		}
		delete(s.index, old)
		s.index[f.Path] = i
	}
	s.items[i] = f.clone()
	return nil
}

// Upsert replaces the record with the same path or appends a new one.
func (s *FileSet) Upsert(f FileMetadata) int {
	if i, ok := s.index[f.Path]; ok {
		s.items[i] = f.clone()
		return i
	}
	s.items = append(s.items, f.clone())
	s.index[f.Path] = len(s.items) - 1
	return len(s.items) - 1
}

// Items returns a copy of all records in insertion order.
func (s *FileSet) Items() []FileMetadata {
	out := make([]FileMetadata, 0, s.Len())
	if s == nil {
		return out
	}
	for _, f := range s.items {
		out = append(out, f.clone())
	}
	return out
}

func (s *FileSet) Clone() *FileSet {
	if s == nil {
		return NewFileSet()
	}
	return NewFileSet(s.items...)
}

func (s *FileSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Items())
}

func (s *FileSet) UnmarshalJSON(data []byte) error {
	var files []FileMetadata
	if err := json.Unmarshal(data, &files); err != nil {
		return err
	}
	*s = *NewFileSet(files...)
	return nil
}

// PlanExecuteState is the conversation state threaded through the nodes of
// one run.
type PlanExecuteState struct {
	Messages           []provider.Message `json:"messages"`
	Files              *FileSet           `json:"files"`
	Dependencies       []string           `json:"dependencies,omitempty"`
	ProjectDetails     string             `json:"projectDetails,omitempty"`
	ImplementationPlan string             `json:"implementationPlan,omitempty"`
	Error              string             `json:"error,omitempty"`
}

// NewState returns an empty state.
func NewState() *PlanExecuteState {
	return &PlanExecuteState{
		Messages: []provider.Message{},
		Files:    NewFileSet(),
	}
}

// Clone returns a deep copy.
func (s *PlanExecuteState) Clone() *PlanExecuteState {
	out := *s
	out.Messages = cloneMessages(s.Messages)
	out.Files = s.Files.Clone()
	out.Dependencies = append([]string(nil), s.Dependencies...)
	return &out
}

// Apply merges a patch field by field. Fields left nil are unchanged.
func (s *PlanExecuteState) Apply(p Patch) {
	if p.Messages != nil {
		s.Messages = cloneMessages(p.Messages)
	}
	if p.Files != nil {
		s.Files = p.Files.Clone()
	}
	if p.Dependencies != nil {
		s.Dependencies = append([]string{}, p.Dependencies...)
	}
	if p.ProjectDetails != nil {
		s.ProjectDetails = *p.ProjectDetails
	}
	if p.ImplementationPlan != nil {
		s.ImplementationPlan = *p.ImplementationPlan
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
}

func cloneMessages(in []provider.Message) []provider.Message {
	out := make([]provider.Message, len(in))
	for i, m := range in {
		m.ToolCalls = append([]provider.ToolCall(nil), m.ToolCalls...)
		out[i] = m
	}
	return out
}

// Patch is a partial state update returned by a node.
type Patch struct {
	Messages           []provider.Message
	Files              *FileSet
	Dependencies       []string
	ProjectDetails     *string
	ImplementationPlan *string
	Error              *string
}

// mergeDeps returns the sorted union of both sets.
func mergeDeps(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := []string{}
	for _, list := range [][]string{a, b} {
		for _, d := range list {
			if d == "" || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

func ptr[T any](v T) *T {
	return &v
}
