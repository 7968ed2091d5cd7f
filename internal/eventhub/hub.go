package eventhub

import (
	"wingman/internal/composer"
	"wingman/internal/provider"
)

// 事件名称
const (
	EventComposerNode                = "composer:node"
	EventComposerMessageStream       = "composer:message-stream"
	EventComposerMessageStreamFinish = "composer:message-stream-finish"
	EventComposerFiles               = "composer:files"
	EventComposerError               = "composer:error"
	EventComposerDone                = "composer:done"
	EventThreadsChanged              = "threads:changed"
	EventWorkspaceChanged            = "workspace:changed"
)

// Broadcaster 事件广播接口
type Broadcaster interface {
	BroadcastEvent(eventType string, payload any)
}

// EventHub 统一事件分发中心
type EventHub struct {
	broadcaster Broadcaster
}

var _ composer.Emitter = (*EventHub)(nil)

// New 创建新的 EventHub
func New() *EventHub {
	return &EventHub{}
}

// SetBroadcaster 设置 WebSocket 广播器
func (h *EventHub) SetBroadcaster(b Broadcaster) {
	h.broadcaster = b
}

// emit 统一的事件发送方法
func (h *EventHub) emit(eventName string, payload any) {
	// WebSocket 广播模式
	if h.broadcaster != nil {
		h.broadcaster.BroadcastEvent(eventName, payload)
	}
}

// Emit 通用事件发送方法
func (h *EventHub) Emit(eventName string, payload any) {
	h.emit(eventName, payload)
}

// Composer 节点完成事件
type NodeEvent struct {
	ThreadID string                     `json:"threadId"`
	Node     string                     `json:"node"`
	State    *composer.PlanExecuteState `json:"state"`
}

func (h *EventHub) NodeFinished(threadID, node string, state *composer.PlanExecuteState) {
	h.emit(EventComposerNode, NodeEvent{ThreadID: threadID, Node: node, State: state})
}

// 流式消息事件，content 为本次新增的文本片段，客户端按顺序拼接
type MessageStreamEvent struct {
	ThreadID string `json:"threadId"`
	Content  string `json:"content"`
}

func (h *EventHub) MessageStream(threadID, content string) {
	h.emit(EventComposerMessageStream, MessageStreamEvent{ThreadID: threadID, Content: content})
}

type MessageStreamFinishEvent struct {
	ThreadID string             `json:"threadId"`
	Messages []provider.Message `json:"messages"`
}

func (h *EventHub) MessageStreamFinish(threadID string, messages []provider.Message) {
	h.emit(EventComposerMessageStreamFinish, MessageStreamFinishEvent{ThreadID: threadID, Messages: messages})
}

// 文件更新事件
type FilesEvent struct {
	ThreadID string                  `json:"threadId"`
	Files    []composer.FileMetadata `json:"files"`
}

func (h *EventHub) FilesUpdated(threadID string, files []composer.FileMetadata) {
	h.emit(EventComposerFiles, FilesEvent{ThreadID: threadID, Files: files})
}

// 错误事件
type ErrorEvent struct {
	ThreadID string `json:"threadId"`
	Error    string `json:"error"`
}

func (h *EventHub) Error(threadID, message string) {
	h.emit(EventComposerError, ErrorEvent{ThreadID: threadID, Error: message})
}

// 运行完成事件
type DoneEvent struct {
	ThreadID string                     `json:"threadId"`
	State    *composer.PlanExecuteState `json:"state"`
}

func (h *EventHub) Done(threadID string, state *composer.PlanExecuteState) {
	h.emit(EventComposerDone, DoneEvent{ThreadID: threadID, State: state})
}

// 线程列表变化事件
type ThreadsChangedEvent struct {
	ThreadID string `json:"threadId"`
	Action   string `json:"action"` // "created", "renamed", "branched", "cleared", "rewound"
}

func (h *EventHub) EmitThreadsChanged(event ThreadsChangedEvent) {
	h.emit(EventThreadsChanged, event)
}

// 工作区文件变化事件
type WorkspaceChangedEvent struct {
	Paths []string `json:"paths"`
}

func (h *EventHub) EmitWorkspaceChanged(event WorkspaceChangedEvent) {
	h.emit(EventWorkspaceChanged, event)
}
