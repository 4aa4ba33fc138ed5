// Package cli implements the imagesmith command line interface.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// Version information - will be set during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// NewApp creates and configures the CLI application
func NewApp() *cli.App {
	app := &cli.App{
		Name:    "imagesmith",
		Usage:   "Image generation agent speaking the A2A protocol",
		Version: Version,
		Commands: []*cli.Command{
			serveCommand(),
			cardCommand(),
			sendCommand(),
			getCommand(),
			cancelCommand(),
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Path to an env file loaded before anything else",
			},
		},
		Before: func(c *cli.Context) error {
			// Missing env file is fine; explicit paths should exist.
			if err := godotenv.Load(c.String("env-file")); err != nil && c.IsSet("env-file") {
				return err
			}
			level := slog.LevelInfo
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	return app
}

// parseLogLevel maps a textual level to slog, defaulting to info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
