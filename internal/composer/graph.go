package composer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"wingman/internal/checkpoint"
	"wingman/internal/logging"
	"wingman/internal/provider"
)

func logger() *zerolog.Logger {
	return logging.Component("composer")
}

// Run identifies the run a node executes in.
type Run struct {
	ThreadID string
	Emit     Emitter
}

// Node is one agent of the workflow graph. It works on its own copy of the
// state and reports changes only through its Result.
type Node interface {
	Run(ctx context.Context, run Run, state *PlanExecuteState) Result
}

// NodeFunc adapts a function to Node.
type NodeFunc func(ctx context.Context, run Run, state *PlanExecuteState) Result

func (f NodeFunc) Run(ctx context.Context, run Run, state *PlanExecuteState) Result {
	return f(ctx, run, state)
}

// ComposeRequest starts a run on a thread.
type ComposeRequest struct {
	ThreadID string `json:"threadId"`
	Input    string `json:"input"`
}

// Graph drives find -> write -> done with the write -> find recovery edge.
// One run may be active per thread.
type Graph struct {
	store      *Store
	nodes      map[string]Node
	emit       Emitter
	maxReplans int

	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

func NewGraph(store *Store, find, write Node, emit Emitter, maxReplans int) *Graph {
	if emit == nil {
		emit = NopEmitter{}
	}
	return &Graph{
		store: store,
		nodes: map[string]Node{
			NodeFind:  find,
			NodeWrite: write,
		},
		emit:       emit,
		maxReplans: maxReplans,
		runs:       make(map[string]context.CancelFunc),
	}
}

func (g *Graph) register(threadID string, cancel context.CancelFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.runs[threadID]; ok {
		return fmt.Errorf("%s: %w", threadID, ErrRunInProgress)
	}
	g.runs[threadID] = cancel
	return nil
}

func (g *Graph) unregister(threadID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.runs, threadID)
}

// Cancel stops the active run of a thread. It reports whether one was found.
func (g *Graph) Cancel(threadID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cancel, ok := g.runs[threadID]
	if ok {
		cancel()
	}
	return ok
}

// CancelAll stops every active run and returns how many there were.
func (g *Graph) CancelAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cancel := range g.runs {
		cancel()
	}
	return len(g.runs)
}

// Active reports whether a thread has a run in flight.
func (g *Graph) Active(threadID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.runs[threadID]
	return ok
}

// Compose runs the graph for one user request. The state is checkpointed
// after the input is recorded and after every node. A cancelled run returns
// ErrCancelled and leaves the last checkpoint as it was.
func (g *Graph) Compose(ctx context.Context, req ComposeRequest) (*PlanExecuteState, error) {
	if req.ThreadID == "" {
		return nil, errors.New("thread id is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := g.register(req.ThreadID, cancel); err != nil {
		return nil, err
	}
	defer g.unregister(req.ThreadID)

	ctx = logging.WithThreadID(ctx, req.ThreadID)
	log := logging.Ctx(ctx, logger())

	_, state, err := g.store.Get(req.ThreadID)
	if errors.Is(err, ErrThreadNotFound) {
		state = NewState()
	} else if err != nil {
		return nil, err
	}

	state.Messages = append(state.Messages, provider.Message{Role: provider.RoleUser, Content: req.Input})
	state.Error = ""
	if _, err := g.store.Put(req.ThreadID, Meta{Source: checkpoint.SourceInput}, state); err != nil {
		return nil, err
	}

	run := Run{ThreadID: req.ThreadID, Emit: g.emit}
	node := NodeFind
	step, replans := 0, 0

	for node != NodeDone {
		if ctx.Err() != nil {
			log.Info().Str("node", node).Msg("run cancelled")
			return state, ErrCancelled
		}

		res := g.nodes[node].Run(ctx, run, state.Clone())
		if ctx.Err() != nil || errors.Is(res.err, ErrCancelled) {
			log.Info().Str("node", node).Msg("run cancelled, discarding node output")
			return state, ErrCancelled
		}
		step++

		var next string
		switch res.kind {
		case kindFatal:
			return state, g.fail(ctx, run, node, step, state, res.err)

		case kindContinue:
			state.Apply(res.patch)
			next = g.defaultEdge(node, state)

		case kindRedirect:
			state.Apply(res.patch)
			next = res.next
			if _, ok := g.nodes[next]; !ok && next != NodeDone {
				return state, g.fail(ctx, run, node, step, state, fmt.Errorf("unknown node %q", next))
			}
			if node == NodeFind && next == NodeFind {
				return state, g.fail(ctx, run, node, step, state, errors.New("find node cannot route to itself"))
			}
			if next == NodeFind {
				replans++
				log.Warn().Str("node", node).Int("replans", replans).Str("reason", state.Error).Msg("re-planning")
				if replans > g.maxReplans {
					return state, g.fail(ctx, run, node, step, state, fmt.Errorf("%w: %s", ErrRecoveryExhausted, state.Error))
				}
			}
		}

		if _, err := g.store.Put(req.ThreadID, Meta{Node: node, Step: step, Source: checkpoint.SourceLoop}, state); err != nil {
			return state, err
		}
		log.Debug().Str("node", node).Int("step", step).Str("next", next).Msg("node finished")
		g.emit.NodeFinished(req.ThreadID, node, state.Clone())
		node = next
	}

	g.emit.Done(req.ThreadID, state.Clone())
	return state, nil
}

func (g *Graph) defaultEdge(node string, state *PlanExecuteState) string {
	switch node {
	case NodeFind:
		if state.Files.Len() > 0 {
			return NodeWrite
		}
		return NodeDone
	default:
		return NodeDone
	}
}

// fail records err on the state, checkpoints it and notifies the host.
func (g *Graph) fail(ctx context.Context, run Run, node string, step int, state *PlanExecuteState, err error) error {
	message := err.Error()
	if errors.Is(err, ErrRecoveryExhausted) {
		message = msgReplanLimit
	}
	logging.Ctx(ctx, logger()).Error().Err(err).Str("node", node).Int("step", step).Msg("run failed")

	state.Error = message
	if _, perr := g.store.Put(run.ThreadID, Meta{Node: node, Step: step, Source: checkpoint.SourceLoop}, state); perr != nil {
		logging.Ctx(ctx, logger()).Error().Err(perr).Msg("failed to checkpoint run error")
	}
	g.emit.Error(run.ThreadID, message)
	return err
}
