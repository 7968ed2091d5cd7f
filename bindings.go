package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"wingman/internal/checkpoint"
	"wingman/internal/composer"
	"wingman/internal/database"
	"wingman/internal/eventhub"
	"wingman/internal/logging"
)

// maxTitleLen caps thread titles derived from the first request
const maxTitleLen = 60

var errNotStarted = errors.New("app is not started")

// ThreadState is a thread together with its latest checkpointed state
type ThreadState struct {
	Thread       *database.Thread           `json:"thread"`
	CheckpointID string                     `json:"checkpointId,omitempty"`
	Running      bool                       `json:"running"`
	State        *composer.PlanExecuteState `json:"state"`
}

func (a *App) ready() error {
	if a.graph == nil || a.dbManager == nil {
		return errNotStarted
	}
	return nil
}

// ===== Composer Bindings =====

// Compose runs the composer for one user request and returns the final state.
// Progress is pushed as composer:* events while the run is going.
func (a *App) Compose(ctx context.Context, req composer.ComposeRequest) (*composer.PlanExecuteState, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, errors.New("input is required")
	}

	created := false
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	if _, err := a.dbManager.GetThread(req.ThreadID); errors.Is(err, database.ErrThreadNotFound) {
		if err := a.dbManager.CreateThread(&database.Thread{ID: req.ThreadID, Title: titleFrom(req.Input)}); err != nil {
			return nil, err
		}
		created = true
	} else if err != nil {
		return nil, err
	} else if err := a.dbManager.TouchThread(req.ThreadID); err != nil {
		return nil, err
	}
	if created {
		a.eventHub.EmitThreadsChanged(eventhub.ThreadsChangedEvent{ThreadID: req.ThreadID, Action: "created"})
	}

	log := logging.Ctx(logging.WithThreadID(ctx, req.ThreadID), logger())
	log.Info().Int("input_len", len(req.Input)).Msg("compose")

	state, err := a.graph.Compose(ctx, req)
	if err != nil && !errors.Is(err, composer.ErrCancelled) {
		log.Error().Err(err).Msg("compose failed")
	}
	return state, err
}

// CancelComposer stops the run of a thread, or every run when threadID is
// empty. It returns the number of runs cancelled.
func (a *App) CancelComposer(threadID string) int {
	if a.graph == nil {
		return 0
	}
	if threadID == "" {
		return a.graph.CancelAll()
	}
	if a.graph.Cancel(threadID) {
		return 1
	}
	return 0
}

// AcceptFile writes the proposed code of file to disk
func (a *App) AcceptFile(file composer.FileMetadata, threadID string) (*composer.FileMetadata, error) {
	return a.decide(threadID, file.Path, a.lifecycle.Accept)
}

// RejectFile discards the proposed code of file
func (a *App) RejectFile(file composer.FileMetadata, threadID string) (*composer.FileMetadata, error) {
	return a.decide(threadID, file.Path, a.lifecycle.Reject)
}

// UndoFile restores the original content of an accepted file
func (a *App) UndoFile(file composer.FileMetadata, threadID string) (*composer.FileMetadata, error) {
	return a.decide(threadID, file.Path, a.lifecycle.Undo)
}

func (a *App) decide(threadID, path string, fn func(threadID, path string) (*composer.FileMetadata, error)) (*composer.FileMetadata, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if threadID == "" || path == "" {
		return nil, errors.New("thread id and file path are required")
	}

	f, err := fn(threadID, path)
	if err != nil {
		return nil, err
	}
	a.eventHub.FilesUpdated(threadID, []composer.FileMetadata{*f})
	return f, nil
}

// ===== Thread Bindings =====

// CreateThread registers a new, empty thread
func (a *App) CreateThread(title string) (*database.Thread, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	t := &database.Thread{ID: uuid.NewString(), Title: strings.TrimSpace(title)}
	if err := a.dbManager.CreateThread(t); err != nil {
		return nil, err
	}
	a.eventHub.EmitThreadsChanged(eventhub.ThreadsChangedEvent{ThreadID: t.ID, Action: "created"})
	return t, nil
}

// ListThreads returns all threads, most recently updated first
func (a *App) ListThreads() ([]*database.Thread, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.dbManager.ListThreads()
}

func (a *App) RenameThread(threadID, title string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.dbManager.RenameThread(threadID, strings.TrimSpace(title)); err != nil {
		return err
	}
	a.eventHub.EmitThreadsChanged(eventhub.ThreadsChangedEvent{ThreadID: threadID, Action: "renamed"})
	return nil
}

// GetThreadState returns the latest state of a thread. A registered thread
// without checkpoints has an empty state.
func (a *App) GetThreadState(threadID string) (*ThreadState, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	thread, err := a.dbManager.GetThread(threadID)
	if err != nil {
		return nil, err
	}

	view := &ThreadState{Thread: thread, Running: a.graph.Active(threadID)}
	cp, state, err := a.store.Get(threadID)
	switch {
	case errors.Is(err, composer.ErrThreadNotFound):
		view.State = composer.NewState()
	case err != nil:
		return nil, err
	default:
		view.CheckpointID = cp.ID
		view.State = state
	}
	return view, nil
}

func (a *App) GetThreadTimeline(threadID string) (*checkpoint.Timeline, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.store.Timeline(threadID)
}

// BranchThread copies a checkpoint of originalThreadID (its latest when
// checkpointID is empty) into a new thread. A new id is generated when
// newThreadID is empty.
func (a *App) BranchThread(originalThreadID, checkpointID, newThreadID string) (*ThreadState, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if a.graph.Active(originalThreadID) {
		return nil, fmt.Errorf("branch %s: %w", originalThreadID, composer.ErrRunInProgress)
	}
	if newThreadID == "" {
		newThreadID = uuid.NewString()
	}

	title := "Branch"
	if orig, err := a.dbManager.GetThread(originalThreadID); err == nil {
		title = orig.Title + " (branch)"
	} else if !errors.Is(err, database.ErrThreadNotFound) {
		return nil, err
	}

	if _, err := a.store.Branch(originalThreadID, checkpointID, newThreadID); err != nil {
		return nil, err
	}
	if err := a.dbManager.CreateThread(&database.Thread{ID: newThreadID, Title: title, ParentThreadID: originalThreadID}); err != nil {
		return nil, err
	}

	logger().Info().Str("from", originalThreadID).Str("checkpoint", checkpointID).Str("thread_id", newThreadID).Msg("thread branched")
	a.eventHub.EmitThreadsChanged(eventhub.ThreadsChangedEvent{ThreadID: newThreadID, Action: "branched"})
	return a.GetThreadState(newThreadID)
}

// ClearChatHistory starts the thread over with an empty state. Earlier
// checkpoints stay in the timeline.
func (a *App) ClearChatHistory(threadID string) (*composer.PlanExecuteState, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if a.graph.Active(threadID) {
		return nil, fmt.Errorf("clear %s: %w", threadID, composer.ErrRunInProgress)
	}
	if _, err := a.dbManager.EnsureThread(threadID, ""); err != nil {
		return nil, err
	}
	state, err := a.store.Clear(threadID)
	if err != nil {
		return nil, err
	}
	a.eventHub.EmitThreadsChanged(eventhub.ThreadsChangedEvent{ThreadID: threadID, Action: "cleared"})
	return state, nil
}

// RewindThread makes an older checkpoint the latest state of the thread
func (a *App) RewindThread(threadID, checkpointID string) (*composer.PlanExecuteState, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if a.graph.Active(threadID) {
		return nil, fmt.Errorf("rewind %s: %w", threadID, composer.ErrRunInProgress)
	}
	state, err := a.store.Rewind(threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	a.eventHub.EmitThreadsChanged(eventhub.ThreadsChangedEvent{ThreadID: threadID, Action: "rewound"})
	return state, nil
}

// titleFrom derives a thread title from the first line of a request
func titleFrom(input string) string {
	title := strings.TrimSpace(input)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if utf8.RuneCountInString(title) <= maxTitleLen {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleLen])) + "…"
}
