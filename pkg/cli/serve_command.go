package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/imagesmith/imagesmith/pkg/a2a"
	"github.com/imagesmith/imagesmith/pkg/agent"
	"github.com/imagesmith/imagesmith/pkg/handler"
	"github.com/imagesmith/imagesmith/pkg/ptr"
	"github.com/imagesmith/imagesmith/pkg/server"
	"github.com/imagesmith/imagesmith/pkg/taskstore"
)

// serveCommand creates the 'serve' command
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Starts the image generation agent server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Value: "localhost",
				Usage: "Host to bind the server to",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: 10011,
				Usage: "Port to bind the server to",
			},
			&cli.StringSliceFlag{
				Name:  "allow-origins",
				Usage: "Additional origins to allow for CORS",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "INFO",
				Usage: "Logging level (DEBUG, INFO, WARNING, ERROR)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to a SQLite task database (default: in-memory tasks)",
			},
			&cli.StringFlag{
				Name:    "model",
				Value:   agent.DefaultConfig().Model,
				Usage:   "Gemini model used for image generation",
				EnvVars: []string{"IMAGESMITH_MODEL"},
			},
			&cli.StringFlag{
				Name:    "host-override",
				Usage:   "Advertised URL when running behind a proxy or tunnel",
				EnvVars: []string{"HOST_OVERRIDE"},
			},
			&cli.BoolFlag{
				Name:  "streaming",
				Value: true,
				Usage: "Advertise streaming support (tasks/sendSubscribe) on the agent card",
			},
		},
		Action: serveCommandAction,
	}
}

func serveCommandAction(c *cli.Context) error {
	if !c.Bool("verbose") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLogLevel(c.String("log-level")),
		})))
	}

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY environment variable not set")
	}

	host := c.String("host")
	port := c.Int("port")

	card, err := a2a.BuildCard(a2a.CardConfig{
		Name:         "Image Generator Agent",
		Description:  "Generate stunning, high-quality images on demand and leverage powerful editing capabilities to modify, enhance, or completely transform visuals.",
		Version:      Version,
		Host:         host,
		Port:         port,
		HostOverride: c.String("host-override"),
		InputModes:   agent.SupportedContentTypes,
		OutputModes:  agent.SupportedContentTypes,
		Skills: []a2a.AgentSkill{{
			ID:          "image_generator",
			Name:        "Image Generator",
			Description: ptr.Ptr("Generate stunning, high-quality images on demand and leverage powerful editing capabilities to modify, enhance, or completely transform visuals."),
			Tags:        []string{"generate image", "edit image"},
			Examples:    []string{"Generate a photorealistic image of raspberry lemonade"},
		}},
		Streaming: c.Bool("streaming"),
	})
	if err != nil {
		return fmt.Errorf("invalid agent card: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	imageAgent, err := agent.New(ctx, agent.Config{
		Model:  c.String("model"),
		APIKey: apiKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create image agent: %w", err)
	}
	defer imageAgent.Close()

	var store taskstore.Store
	if dbPath := c.String("db"); dbPath != "" {
		sqliteStore, err := taskstore.OpenSQLiteStore(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open task database: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
		slog.Info("using SQLite task store", "path", dbPath)
	} else {
		store = taskstore.NewMemoryStore()
	}

	h := handler.New(card, store, imageAgent)
	srv := server.New(&server.Config{
		Host:         host,
		Port:         port,
		AllowOrigins: c.StringSlice("allow-origins"),
	}, h)

	slog.Info("starting agent server", "url", card.URL, "model", c.String("model"))
	return srv.Start(ctx)
}
