package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/imagesmith/imagesmith/pkg/a2a"
)

func agentURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "agent",
		Value:   "http://localhost:10011/",
		Usage:   "Base URL of the agent",
		EnvVars: []string{"IMAGESMITH_AGENT_URL"},
	}
}

func newClient(c *cli.Context) (*a2a.Client, error) {
	card, err := a2a.FetchCard(c.Context, c.String("agent"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card: %w", err)
	}
	return a2a.NewClient(card, nil)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// cardCommand creates the 'card' command
func cardCommand() *cli.Command {
	return &cli.Command{
		Name:  "card",
		Usage: "Fetches and prints the agent card",
		Flags: []cli.Flag{agentURLFlag()},
		Action: func(c *cli.Context) error {
			card, err := a2a.FetchCard(c.Context, c.String("agent"), nil)
			if err != nil {
				return fmt.Errorf("failed to fetch agent card: %w", err)
			}
			return printJSON(card)
		},
	}
}

// sendCommand creates the 'send' command
func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Sends a prompt to the agent and waits for the generated image",
		ArgsUsage: "PROMPT",
		Flags: []cli.Flag{
			agentURLFlag(),
			&cli.StringFlag{
				Name:  "task",
				Usage: "Task ID to use (default: a new random ID)",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "Session ID grouping related requests",
			},
			&cli.StringFlag{
				Name:  "attach",
				Usage: "Path to an image to include, for edit requests",
			},
			&cli.StringFlag{
				Name:  "out",
				Value: ".",
				Usage: "Directory where returned images are written",
			},
			&cli.BoolFlag{
				Name:  "stream",
				Usage: "Use streaming and print updates as they arrive",
			},
		},
		Action: sendCommandAction,
	}
}

func sendCommandAction(c *cli.Context) error {
	prompt := c.Args().First()
	if prompt == "" {
		return fmt.Errorf("a prompt is required")
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}

	msg := a2a.NewTextMessage("user", prompt)
	if path := c.String("attach"); path != "" {
		part, err := filePartFromPath(path)
		if err != nil {
			return err
		}
		msg.Parts = append(msg.Parts, part)
	}

	taskID := c.String("task")
	if taskID == "" {
		taskID = uuid.NewString()
	}
	params := &a2a.TaskSendParams{ID: taskID, Message: msg}
	if session := c.String("session"); session != "" {
		params.SessionID = &session
	}

	if c.Bool("stream") {
		var artifacts []a2a.Artifact
		err := client.SendTaskStream(c.Context, params, func(resp *a2a.SendTaskStreamingResponse) error {
			if resp.Error != nil {
				return resp.Error
			}
			if u := resp.GetStatusUpdate(); u != nil {
				fmt.Printf("status: %s\n", u.Status.State)
			}
			if u := resp.GetArtifactUpdate(); u != nil {
				artifacts = append(artifacts, u.Artifact)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return saveArtifacts(artifacts, c.String("out"))
	}

	task, err := client.SendTask(c.Context, params)
	if err != nil {
		return err
	}
	fmt.Printf("task %s: %s\n", task.ID, task.Status.State)
	if task.Status.State == a2a.TaskStateFailed && task.Status.Message != nil {
		fmt.Printf("error: %s\n", task.Status.Message.Text())
	}
	return saveArtifacts(task.Artifacts, c.String("out"))
}

// getCommand creates the 'get' command
func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetches the current state of a task",
		ArgsUsage: "TASK_ID",
		Flags: []cli.Flag{
			agentURLFlag(),
			&cli.IntFlag{
				Name:  "history",
				Usage: "Limit task history to the last N messages",
			},
		},
		Action: func(c *cli.Context) error {
			taskID := c.Args().First()
			if taskID == "" {
				return fmt.Errorf("a task ID is required")
			}
			client, err := newClient(c)
			if err != nil {
				return err
			}
			params := &a2a.TaskQueryParams{ID: taskID}
			if c.IsSet("history") {
				n := c.Int("history")
				params.HistoryLength = &n
			}
			task, err := client.GetTask(c.Context, params)
			if err != nil {
				return err
			}
			return printJSON(task)
		},
	}
}

// cancelCommand creates the 'cancel' command
func cancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Requests cancellation of a task",
		ArgsUsage: "TASK_ID",
		Flags:     []cli.Flag{agentURLFlag()},
		Action: func(c *cli.Context) error {
			taskID := c.Args().First()
			if taskID == "" {
				return fmt.Errorf("a task ID is required")
			}
			client, err := newClient(c)
			if err != nil {
				return err
			}
			task, err := client.CancelTask(c.Context, &a2a.TaskIdParams{ID: taskID})
			if err != nil {
				return err
			}
			fmt.Printf("task %s: %s\n", task.ID, task.Status.State)
			return nil
		},
	}
}

// filePartFromPath reads an image file into an inline base64 file part.
func filePartFromPath(path string) (a2a.Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return a2a.Part{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "image/png"
	}
	return a2a.NewFilePart(filepath.Base(path), mimeType, base64.StdEncoding.EncodeToString(data)), nil
}

// saveArtifacts writes inline file parts to disk and prints where they went.
func saveArtifacts(artifacts []a2a.Artifact, dir string) error {
	for _, artifact := range artifacts {
		for _, part := range artifact.Parts {
			if part.Type != a2a.PartTypeFile || part.File == nil || part.File.Bytes == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(*part.File.Bytes)
			if err != nil {
				return fmt.Errorf("failed to decode image data: %w", err)
			}
			name := "image.png"
			if part.File.Name != nil {
				name = *part.File.Name
			}
			if filepath.Ext(name) == "" {
				name += extensionFor(part.File.MimeType)
			}
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write image: %w", err)
			}
			fmt.Printf("wrote %s (%d bytes)\n", path, len(data))
		}
	}
	return nil
}

func extensionFor(mimeType *string) string {
	if mimeType == nil {
		return ".png"
	}
	exts, err := mime.ExtensionsByType(*mimeType)
	if err != nil || len(exts) == 0 {
		return ".png"
	}
	return exts[0]
}
