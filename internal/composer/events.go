package composer

import "wingman/internal/provider"

// Emitter receives the notifications of composer runs. Implementations must
// not block for long; they are called from the run goroutine.
type Emitter interface {
	NodeFinished(threadID, node string, state *PlanExecuteState)
	MessageStream(threadID, content string)
	MessageStreamFinish(threadID string, messages []provider.Message)
	FilesUpdated(threadID string, files []FileMetadata)
	Error(threadID, message string)
	Done(threadID string, state *PlanExecuteState)
}

// NopEmitter drops every notification.
type NopEmitter struct{}

func (NopEmitter) NodeFinished(string, string, *PlanExecuteState) {}
func (NopEmitter) MessageStream(string, string) {}
func (NopEmitter) MessageStreamFinish(string, []provider.Message) {}
func (NopEmitter) FilesUpdated(string, []FileMetadata) {}
func (NopEmitter) Error(string, string) {}
func (NopEmitter) Done(string, *PlanExecuteState) {}
