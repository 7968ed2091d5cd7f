// internal/checkpoint/models.go
package checkpoint

import "time"

// Sources recorded on a checkpoint
const (
	SourceInput  = "input"
	SourceLoop   = "loop"
	SourceUpdate = "update"
	SourceFork   = "fork"
	SourceRewind = "rewind"
)

// Checkpoint is the metadata of one saved state of a thread. The state
// itself is stored next to it as an opaque compressed payload.
type Checkpoint struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Version   int       `json:"version"`
	Node      string    `json:"node,omitempty"`
	Step      int       `json:"step"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	// Blobs are the content pool hashes the payload refers to
	Blobs []string `json:"blobs,omitempty"`
}

// Timeline is the checkpoint tree of a thread
type Timeline struct {
	ThreadID            string        `json:"thread_id"`
	RootNode            *TimelineNode `json:"root_node,omitempty"`
	CurrentCheckpointID string        `json:"current_checkpoint_id,omitempty"`
	TotalCheckpoints    int           `json:"total_checkpoints"`
}

// TimelineNode represents a node in the checkpoint tree
type TimelineNode struct {
	Checkpoint Checkpoint      `json:"checkpoint"`
	Children   []*TimelineNode `json:"children"`
}
