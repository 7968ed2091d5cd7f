package composer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wingman/internal/codeindex"
	"wingman/internal/logging"
	"wingman/internal/parser"
	"wingman/internal/provider"
	"wingman/internal/workspace"
)

// Lister lists workspace-relative files
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// DetailsSource returns the cached project description
type DetailsSource interface {
	Get(ctx context.Context) (string, error)
}

// FindOptions are the knobs of the planning agent
type FindOptions struct {
	Model         string
	Temperature   *float64
	Timeout       time.Duration
	MaxToolRounds int
	SearchResults int
}

// FindAgent plans a change: it lets the model explore the code through
// tools, then extracts the target files and new dependencies from its answer.
type FindAgent struct {
	model   provider.Provider
	tools   toolRunner
	lister  Lister
	files   *workspace.Files
	details DetailsSource
	opts    FindOptions
}

func NewFindAgent(model provider.Provider, index codeindex.Index, lister Lister, files *workspace.Files, details DetailsSource, opts FindOptions) *FindAgent {
	if opts.SearchResults <= 0 {
		opts.SearchResults = 5
	}
	return &FindAgent{
		model:   model,
		tools:   toolRunner{index: index, results: opts.SearchResults},
		lister:  lister,
		files:   files,
		details: details,
		opts:    opts,
	}
}

func (a *FindAgent) Run(ctx context.Context, run Run, state *PlanExecuteState) Result {
	log := logging.Ctx(ctx, logger())
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	details := state.ProjectDetails
	if details == "" {
		d, err := a.details.Get(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("project details unavailable")
		}
		details = d
	}
	if details == "" {
		details = workspace.NotAvailable
	}

	listing, err := a.lister.List(ctx)
	if err != nil {
		return Fatal(fmt.Errorf("list workspace: %w", err))
	}

	req := provider.Request{
		Model:       a.opts.Model,
		System:      buildFindPrompt(details, state, listing),
		Temperature: a.opts.Temperature,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: fmt.Sprintf(findInputPrompt, formatConversation(state.Messages))},
		},
	}

	var plan *parser.PlanParser
	for round := 0; ; round++ {
		req.Tools = findTools
		if round >= a.opts.MaxToolRounds {
			req.Tools = nil
		}

		stream, err := a.model.Stream(ctx, req)
		if err != nil {
			return Fatal(fmt.Errorf("planning model: %w", err))
		}

		plan = parser.NewPlanParser()
		text, calls, err := consume(ctx, stream, func(chunk string) bool {
			plan.Feed(chunk)
			run.Emit.MessageStream(run.ThreadID, chunk)
			return false
		})
		if err != nil {
			return Fatal(fmt.Errorf("planning model: %w", err))
		}
		if len(calls) == 0 {
			break
		}

		req.Messages = append(req.Messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})
		for _, call := range calls {
			log.Debug().Str("tool", call.Name).Str("args", call.Arguments).Msg("tool call")
			req.Messages = append(req.Messages, provider.Message{
				Role:       provider.RoleTool,
				Content:    a.tools.run(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	result := plan.Finish()
	raw := plan.Raw()

	messages := append(cloneMessages(state.Messages), provider.Message{Role: provider.RoleAssistant, Content: raw})
	run.Emit.MessageStreamFinish(run.ThreadID, messages)

	files := NewFileSet()
	for _, pf := range result.Files {
		f := FileMetadata{
			ID:          uuid.NewString(),
			Path:        pf.Path,
			Description: pf.Analysis,
		}
		content, exists, err := a.files.Read(pf.Path)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("path", pf.Path).Msg("target unreadable, falling back to committed version")
			f.Existed = true
			f.Original = a.files.Baseline(pf.Path)
		case exists:
			f.Existed = true
			f.Original = content
		}
		files.Upsert(f)
	}
	log.Info().Int("files", files.Len()).Int("dependencies", len(result.Dependencies)).Msg("plan ready")

	return Continue(Patch{
		Messages:           messages,
		Files:              files,
		Dependencies:       mergeDeps(nil, result.Dependencies),
		ProjectDetails:     ptr(details),
		ImplementationPlan: ptr(raw),
		Error:              ptr(""),
	})
}
