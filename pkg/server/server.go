// Package server binds the request handler to HTTP: agent card discovery at
// the well-known path, the JSON-RPC endpoint, and a websocket feed of task
// updates.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/imagesmith/imagesmith/internal/jsonrpc2"
	"github.com/imagesmith/imagesmith/pkg/a2a"
	"github.com/imagesmith/imagesmith/pkg/handler"
)

// Config contains configuration for the HTTP shell.
type Config struct {
	Host         string
	Port         int
	AllowOrigins []string
}

// Server exposes one agent over HTTP.
type Server struct {
	config   *Config
	handler  *handler.RequestHandler
	rpc      *jsonrpc2.Server
	router   *http.ServeMux
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates the HTTP shell around a request handler.
func New(config *Config, h *handler.RequestHandler) *Server {
	s := &Server{
		config:  config,
		handler: h,
		rpc:     jsonrpc2.NewServer(h),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router = http.NewServeMux()
	s.router.HandleFunc(a2a.WellKnownCardPath, s.handleAgentCard)
	s.router.Handle("/", s.rpc)
	s.router.HandleFunc("/events/", s.handleTaskEvents)
	s.router.HandleFunc("/health", s.handleHealth)
}

// Start runs the server until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	address := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{Addr: address, Handler: c.Handler(s.router)}

	slog.Info("starting agent server",
		"address", address,
		"agent", s.handler.Card().Name,
		"streaming", s.handler.Card().Capabilities.Streaming)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// handleAgentCard serves the read-only discovery document. Clients fetch
// and cache it before issuing capability-gated requests.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.handler.Card()); err != nil {
		slog.Error("failed to write agent card", "error", err)
	}
}

// handleTaskEvents upgrades to a websocket and feeds the client the task's
// current status followed by subsequent updates until the task reaches a
// terminal state or the client goes away.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimPrefix(r.URL.Path, "/events/")
	if taskID == "" {
		http.Error(w, "Missing task id", http.StatusBadRequest)
		return
	}

	task, err := s.handler.GetTask(r.Context(), &a2a.TaskQueryParams{ID: taskID})
	if err != nil {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	events, unsubscribe := s.handler.Subscribe(taskID)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade websocket connection", "error", err)
		return
	}
	defer conn.Close()

	// Replay current state before live updates.
	snapshot := &a2a.TaskStatusUpdateEvent{ID: task.ID, Status: task.Status, Final: task.Status.State.Terminal()}
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}
	if snapshot.Final {
		return
	}

	// Drain the read side so close frames are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			if err := conn.WriteJSON(event); err != nil {
				slog.Debug("websocket write failed", "task", taskID, "error", err)
				return
			}
			if u, ok := event.(*a2a.TaskStatusUpdateEvent); ok && u.Status.State.Terminal() {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
