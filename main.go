package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"wingman/internal/logging"
	"wingman/internal/websocket"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func build() string {
	if commit != "" {
		return fmt.Sprintf("%s (%s, %s)", version, commit, date)
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

type flags struct {
	Workspace string
	LogLevel  string
	LogFile   string
	Addr      string
	AuthKey   string
}

func main() {
	f := &flags{}
	var logCloser func()

	cmd := &cli.Command{
		Name:      "wingman",
		Usage:     "Serve the composer workflow engine for a workspace",
		UsageText: "wingman [options]",
		Description: `wingman plans and writes multi-file code changes for a workspace.

It serves a websocket RPC endpoint for the host editor. Once listening it
prints WS_PORT:<port> on stdout.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "workspace",
				Aliases:     []string{"w"},
				Usage:       "workspace directory",
				Sources:     cli.EnvVars("WINGMAN_WORKSPACE"),
				Value:       ".",
				Destination: &f.Workspace,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (trace, debug, info, warn, error)",
				Sources:     cli.EnvVars("WINGMAN_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to ~/.wingman/<workspace>/logs/wingman.log)",
				Sources:     cli.EnvVars("WINGMAN_LOG_FILE"),
				Destination: &f.LogFile,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address, overrides server.addr in settings.yaml",
				Sources:     cli.EnvVars("WINGMAN_ADDR"),
				Destination: &f.Addr,
			},
			&cli.StringFlag{
				Name:        "auth-key",
				Usage:       "key clients must send in the X-Auth-Key header",
				Sources:     cli.EnvVars("WINGMAN_AUTH_KEY"),
				Destination: &f.AuthKey,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			app := NewApp(f.Workspace)
			if err := app.Load(); err != nil {
				return err
			}

			logFile := f.LogFile
			if logFile == "" {
				logFile = app.config.LogFile()
			}
			l, closer, err := logging.New(f.LogLevel, logFile)
			if err != nil {
				return fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = l
			logCloser = closer

			return serve(ctx, app, f)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if logCloser != nil {
		logCloser()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, app *App, f *flags) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Startup(ctx); err != nil {
		return err
	}

	settings := app.config.Settings.Server
	addr := settings.Addr
	if f.Addr != "" {
		addr = f.Addr
	}
	authKey := settings.AuthKey
	if f.AuthKey != "" {
		authKey = f.AuthKey
	}

	router := websocket.NewRouter(app, "Load", "Startup", "Shutdown", "SetEventHubBroadcaster")
	wsServer := websocket.NewServer(router, addr, authKey)
	app.SetEventHubBroadcaster(wsServer)

	if _, err := wsServer.Start(ctx); err != nil {
		app.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := wsServer.Stop(stopCtx); err != nil {
		log.Warn().Err(err).Msg("websocket server shutdown")
	}
	app.Shutdown(stopCtx)
	return nil
}
