package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"wingman/internal/provider"
)

// NotAvailable is used when no project description can be produced.
const NotAvailable = "Not available."

// maxManifestBytes caps how much of each manifest is sent to the model.
const maxManifestBytes = 4000

// Manifests are the files used to describe a project, in priority order.
var Manifests = []string{
	"go.mod", "package.json", "Cargo.toml", "pyproject.toml", "requirements.txt",
	"pom.xml", "build.gradle", "composer.json", "Gemfile", "README.md",
}

// SettingsStore persists small key/value pairs
type SettingsStore interface {
	GetSetting(key string) (string, bool, error)
	SaveSetting(key, value string) error
}

// Invoker runs a single completion
type Invoker interface {
	Invoke(ctx context.Context, req provider.Request) (string, error)
}

// ProjectDetails produces and caches a short description of the project.
// Concurrent callers share one model call.
type ProjectDetails struct {
	root  string
	store SettingsStore
	model Invoker
	group singleflight.Group
}

func NewProjectDetails(root string, store SettingsStore, model Invoker) *ProjectDetails {
	return &ProjectDetails{root: root, store: store, model: model}
}

func (p *ProjectDetails) key() string {
	return "project_details:" + p.root
}

// Get returns the cached description, generating it on first use.
func (p *ProjectDetails) Get(ctx context.Context) (string, error) {
	if v, ok := p.cached(); ok {
		return v, nil
	}

	v, err, _ := p.group.Do(p.key(), func() (any, error) {
		if v, ok := p.cached(); ok {
			return v, nil
		}

		manifests := p.readManifests()
		if manifests == "" {
			return NotAvailable, nil
		}

		desc, err := p.model.Invoke(ctx, provider.Request{
			System: describePrompt,
			Messages: []provider.Message{
				{Role: provider.RoleUser, Content: manifests},
			},
		})
		if err != nil {
			return "", fmt.Errorf("describe project: %w", err)
		}
		desc = strings.TrimSpace(desc)
		if desc == "" {
			return NotAvailable, nil
		}

		if err := p.store.SaveSetting(p.key(), desc); err != nil {
			logger().Warn().Err(err).Msg("failed to cache project details")
		}
		return desc, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate forgets the cached description
func (p *ProjectDetails) Invalidate() {
	if err := p.store.SaveSetting(p.key(), ""); err != nil {
		logger().Warn().Err(err).Msg("failed to reset project details")
	}
}

// IsManifest reports whether a change to path should invalidate the description
func IsManifest(path string) bool {
	base := filepath.Base(path)
	for _, m := range Manifests {
		if base == m {
			return true
		}
	}
	return false
}

func (p *ProjectDetails) cached() (string, bool) {
	v, ok, err := p.store.GetSetting(p.key())
	if err != nil {
		logger().Warn().Err(err).Msg("failed to read project details")
		return "", false
	}
	return v, ok && v != ""
}

func (p *ProjectDetails) readManifests() string {
	var b strings.Builder
	for _, name := range Manifests {
		data, err := os.ReadFile(filepath.Join(p.root, name))
		if err != nil {
			continue
		}
		if len(data) > maxManifestBytes {
			data = data[:maxManifestBytes]
		}
		fmt.Fprintf(&b, "File: %s\n%s\n\n", name, data)
	}
	return b.String()
}

const describePrompt = `You describe software projects for other engineers.
From the files below, write a short paragraph covering the project's purpose, languages, frameworks and how it is built and tested.
Do not speculate beyond what the files show. Respond with the paragraph only.`
