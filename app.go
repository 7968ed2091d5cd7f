package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"wingman/internal/checkpoint"
	"wingman/internal/codeindex"
	"wingman/internal/composer"
	"wingman/internal/config"
	"wingman/internal/database"
	"wingman/internal/eventhub"
	"wingman/internal/git"
	"wingman/internal/logging"
	"wingman/internal/provider"
	"wingman/internal/watcher"
	"wingman/internal/workspace"
)

func logger() *zerolog.Logger {
	return logging.Component("app")
}

const watchDebounce = 200 * time.Millisecond

// App struct contains the core application state and managers
type App struct {
	ctx       context.Context
	workspace string
	config    *config.Config

	// model overrides the provider built from settings
	model provider.Provider

	// Core managers
	dbManager   *database.Database
	checkpoints *checkpoint.Manager
	store       *composer.Store
	graph       *composer.Graph
	lifecycle   *composer.Lifecycle
	scanner     *workspace.Scanner
	index       *codeindex.Lexical
	files       *workspace.Files
	details     *workspace.ProjectDetails
	fileWatcher *watcher.Watcher
	eventHub    *eventhub.EventHub
}

// NewApp creates a new App for the given workspace directory
func NewApp(workspace string) *App {
	return &App{workspace: workspace}
}

// Load resolves paths and reads settings. Startup calls it when it has not
// run yet.
func (a *App) Load() error {
	if a.config != nil {
		return nil
	}
	cfg, err := config.Load(a.workspace)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings %s: %w", cfg.SettingsPath, err)
	}
	a.config = cfg
	return nil
}

// Startup opens storage, builds the composer and starts watching the workspace
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx
	if err := a.Load(); err != nil {
		return err
	}
	cfg := a.config
	settings := cfg.Settings

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.dbManager = db

	storage, err := checkpoint.NewStorage(cfg.CheckpointsDir, settings.Checkpoint.CompressionLevel)
	if err != nil {
		a.Shutdown(ctx)
		return fmt.Errorf("open checkpoints: %w", err)
	}
	a.checkpoints = checkpoint.NewManager(storage)
	a.store = composer.NewStore(a.checkpoints)

	// Initialize EventHub (before managers that need it)
	a.eventHub = eventhub.New()

	var head workspace.HeadReader
	if repo, err := git.Open(cfg.WorkspaceDir); err != nil {
		logger().Info().Err(err).Msg("workspace is not a git repository, diff baselines use the working tree only")
	} else {
		head = repo
	}
	a.files = workspace.NewFiles(cfg.WorkspaceDir, head)
	a.scanner = workspace.NewScanner(cfg.WorkspaceDir, settings.Indexer.Include, settings.Indexer.Exclude, settings.Composer.ScanDepth)
	a.index = codeindex.NewLexical(cfg.WorkspaceDir, a.scanner)

	findModel, writeModel, err := a.models()
	if err != nil {
		a.Shutdown(ctx)
		return err
	}
	a.details = workspace.NewProjectDetails(cfg.WorkspaceDir, db, findModel)

	find := composer.NewFindAgent(findModel, a.index, a.scanner, a.files, a.details, composer.FindOptions{
		Model:         settings.Provider.ReasoningModel,
		Temperature:   settings.Provider.Temperature,
		Timeout:       settings.Composer.FindTimeout,
		MaxToolRounds: settings.Composer.MaxToolRounds,
		SearchResults: settings.Composer.SearchResults,
	})
	root := cfg.WorkspaceDir
	write := composer.NewWriteAgent(writeModel, a.files, func() string { return workspace.LoadRules(root) }, composer.WriteOptions{
		Model:       settings.Provider.Model,
		Temperature: settings.Provider.Temperature,
	})
	a.graph = composer.NewGraph(a.store, find, write, a.eventHub, settings.Composer.MaxReplans)
	a.lifecycle = composer.NewLifecycle(a.store, a.files)

	w, err := watcher.New(cfg.WorkspaceDir, watchDebounce, a.scanner.SkipDir, a.onWorkspaceChange)
	if err != nil {
		logger().Warn().Err(err).Msg("workspace watcher unavailable")
	} else if err := w.Start(); err != nil {
		logger().Warn().Err(err).Msg("failed to start workspace watcher")
		_ = w.Close()
	} else {
		a.fileWatcher = w
	}

	logger().Info().Str("workspace", cfg.WorkspaceDir).Str("data", cfg.DataDir).Msg("wingman started")
	return nil
}

// models returns the planning and writing providers. Both share one client;
// writing retries failed generations.
func (a *App) models() (provider.Provider, provider.Provider, error) {
	settings := a.config.Settings
	base := a.model
	if base == nil {
		client, err := provider.NewOpenAI(provider.Config{
			BaseURL:     settings.Provider.BaseURL,
			APIKey:      settings.Provider.ResolveAPIKey(),
			Model:       settings.Provider.Model,
			Temperature: settings.Provider.Temperature,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create model provider: %w", err)
		}
		base = client
	}
	write := provider.WithRetry(base, settings.Composer.WriteAttempts, settings.Composer.WriteTimeout)
	return base, write, nil
}

// onWorkspaceChange drops cached listings and file contents for a changed path
func (a *App) onWorkspaceChange(e watcher.Event) {
	a.scanner.Invalidate()
	a.index.Invalidate(e.Path)
	if workspace.IsManifest(e.Path) {
		a.details.Invalidate()
	}

	rel := e.Path
	if r, err := filepath.Rel(a.config.WorkspaceDir, e.Path); err == nil {
		rel = filepath.ToSlash(r)
	}
	logger().Debug().Str("path", rel).Str("type", string(e.Type)).Msg("workspace changed")
	a.eventHub.EmitWorkspaceChanged(eventhub.WorkspaceChangedEvent{Paths: []string{rel}})
}

// Shutdown cancels running composer runs and closes storage
func (a *App) Shutdown(ctx context.Context) {
	if a.graph != nil {
		if n := a.graph.CancelAll(); n > 0 {
			logger().Info().Int("runs", n).Msg("cancelled composer runs")
		}
	}

	if a.fileWatcher != nil {
		if err := a.fileWatcher.Close(); err != nil {
			logger().Warn().Err(err).Msg("failed to close workspace watcher")
		}
		a.fileWatcher = nil
	}

	// Close database
	if a.dbManager != nil {
		if err := a.dbManager.Close(); err != nil {
			logger().Warn().Err(err).Msg("failed to close database")
		}
		a.dbManager = nil
	}

	logger().Info().Msg("wingman shutdown complete")
}

// SetEventHubBroadcaster 设置 EventHub 的广播器（用于 WebSocket 模式）
func (a *App) SetEventHubBroadcaster(broadcaster eventhub.Broadcaster) {
	if a.eventHub != nil {
		a.eventHub.SetBroadcaster(broadcaster)
	}
}
