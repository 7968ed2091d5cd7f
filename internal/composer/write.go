package composer

import (
	"context"
	"fmt"

	"wingman/internal/logging"
	"wingman/internal/parser"
	"wingman/internal/provider"
	"wingman/internal/workspace"
)

// WriteOptions are the knobs of the code writing agent
type WriteOptions struct {
	Model       string
	Temperature *float64
}

// WriteAgent generates the full new content of every target file, one file
// at a time, so each prompt can describe the files already written.
type WriteAgent struct {
	model provider.Provider
	files *workspace.Files
	rules func() string
	opts  WriteOptions
}

// NewWriteAgent creates the agent. model should already carry the retry and
// timeout policy; rules returns the optional rule pack.
func NewWriteAgent(model provider.Provider, files *workspace.Files, rules func() string, opts WriteOptions) *WriteAgent {
	if rules == nil {
		rules = func() string { return "" }
	}
	return &WriteAgent{model: model, files: files, rules: rules, opts: opts}
}

func (a *WriteAgent) Run(ctx context.Context, run Run, state *PlanExecuteState) Result {
	log := logging.Ctx(ctx, logger())

	details := state.ProjectDetails
	if details == "" {
		details = workspace.NotAvailable
	}
	rules := a.rules()

	working := state.Clone()
	var (
		written []FileMetadata
		deps    = append([]string(nil), state.Dependencies...)
	)

	for _, target := range state.Files.Items() {
		req := provider.Request{
			Model:       a.opts.Model,
			Temperature: a.opts.Temperature,
			System:      buildWritePrompt(details, rules, working, target.Path, written),
			Messages: []provider.Message{
				{Role: provider.RoleUser, Content: buildWriteInput(target)},
			},
		}

		stream, err := a.model.Stream(ctx, req)
		if err != nil {
			return Fatal(fmt.Errorf("writing model: %w", err))
		}

		original := target.Original
		p := parser.NewStreamParser(func(string) string { return original })
		var rec *parser.Record
		if _, _, err := consume(ctx, stream, func(chunk string) bool {
			rec = p.Parse(chunk)
			return rec != nil
		}); err != nil {
			return Fatal(fmt.Errorf("writing model: %w", err))
		}

		if rec == nil || rec.Code == "" || !a.sameFile(rec.Path, target.Path) {
			reason := ErrEmptyGeneration
			if rec != nil && rec.Code != "" {
				reason = ErrMislabeledRecord
			}
			ev := log.Warn().Err(reason).Str("path", target.Path).Bool("closed", rec != nil)
			if rec != nil {
				ev = ev.Str("generated", rec.Path)
			}
			ev.Msg("re-planning")
			msg := fmt.Sprintf(msgFileFailed, target.Path)
			run.Emit.Error(run.ThreadID, msg)
			return Redirect(NodeFind, Patch{Error: ptr(msg)})
		}

		i, ok := working.Files.Lookup(target.Path)
		if !ok {
			return Fatal(fmt.Errorf("%s: %w", target.Path, ErrFileNotFound))
		}
		f := working.Files.At(i)
		f.Code = rec.Code
		f.Language = rec.Language
		if rec.Description != "" {
			f.Description = rec.Description
		}
		f.Dependencies = rec.Dependencies
		f.Diff = rec.Diff
		f.Accepted, f.Rejected = false, false
		if err := working.Files.Replace(i, f); err != nil {
			return Fatal(err)
		}

		written = append(written, f)
		deps = mergeDeps(deps, rec.Dependencies)
		run.Emit.FilesUpdated(run.ThreadID, working.Files.Items())
		log.Debug().Str("path", f.Path).Str("diff", f.Diff).Msg("file generated")
	}

	if len(written) == 0 {
		log.Warn().Err(ErrNoFilesGenerated).Int("targets", state.Files.Len()).Msg("re-planning")
		run.Emit.Error(run.ThreadID, msgNoChanges)
		return Redirect(NodeFind, Patch{Error: ptr(msgNoChanges)})
	}

	return Continue(Patch{
		Files:        NewFileSet(written...),
		Dependencies: deps,
		Error:        ptr(""),
	})
}

// sameFile reports whether a generated path names the target being written.
func (a *WriteAgent) sameFile(generated, target string) bool {
	return generated != "" && a.files.Abs(generated) == a.files.Abs(target)
}
