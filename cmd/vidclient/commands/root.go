package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/vidclient/internal/app"
	"github.com/florianilch/vidclient/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "vidclient",
		Usage: "Video platform client with persistent sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "log exporter (none|stdout|otlp-http|otlp-grpc)",
				Value: app.DefaultConfigTelemetryExporter,
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "backend API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.DurationFlag{
				Name:  "api--timeout",
				Usage: "per-request timeout",
				Value: app.DefaultConfigAPITimeout,
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "credential storage (file|keyring|memory)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.StringFlag{
				Name:  "auth--file",
				Usage: "credentials file for file storage",
			},
			&cli.StringFlag{
				Name:  "auth--keyring-user",
				Usage: "keyring user for keyring storage",
			},
		},
		Commands: []*cli.Command{
			signupCommand(),
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			whoamiCommand(),
			videosCommand(),
			playCommand(),
			serveBackendCommand(),
		},
	}
}

// setup loads the configuration and installs logging. The returned function
// flushes telemetry and must be called before the command returns.
func setup(ctx context.Context, cmd *cli.Command) (*app.Config, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, observability.Config{
		Level:    cfg.LogLevel,
		Format:   string(cfg.LogFormat),
		Exporter: cfg.Telemetry.Exporter,
		Writer:   cmd.Root().ErrWriter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(cmd.Root().ErrWriter, "failed to flush telemetry: %v\n", err)
		}
	}, nil
}

// withClient runs fn with a client wired from the loaded configuration.
func withClient(ctx context.Context, cmd *cli.Command, fn func(*app.Client) error) error {
	cfg, done, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer done()

	client, err := app.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	return fn(client)
}

func serveBackendCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-backend",
		Usage: "run the in-memory development backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "backend--host",
				Usage: "backend host",
				Value: app.DefaultConfigBackendHost,
			},
			&cli.IntFlag{
				Name:  "backend--port",
				Usage: "backend port",
				Value: app.DefaultConfigBackendPort,
			},
			&cli.StringFlag{
				Name:  "backend--secret",
				Usage: "token signing secret (random when unset)",
			},
			&cli.DurationFlag{
				Name:  "backend--access-ttl",
				Usage: "access token lifetime",
			},
			&cli.DurationFlag{
				Name:  "backend--refresh-ttl",
				Usage: "refresh token lifetime",
			},
			&cli.DurationFlag{
				Name:  "backend--playback-ttl",
				Usage: "playback token lifetime",
			},
			&cli.IntFlag{
				Name:  "backend--dashboard-limit",
				Usage: "maximum number of videos on the dashboard",
			},
		},
		Action: serveBackendAction,
	}
}

func serveBackendAction(ctx context.Context, cmd *cli.Command) error {
	cfg, done, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer done()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
