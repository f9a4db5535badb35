// Package api exposes the Orchestrator over HTTP: one task per (kind,
// service), created/polled/deleted through a small REST surface, the same
// shape as the teacher repository's chi-routed control plane.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/homeport/dbmigrate/internal/orchestrator"
	"github.com/homeport/dbmigrate/internal/pkg/logger"
	"github.com/homeport/dbmigrate/internal/task"
)

// Config holds the server's listen address and ambient flags.
type Config struct {
	Host    string
	Port    int
	Verbose bool
	Version string
}

// Server wires the task registry, the orchestrator-backed workers, and the
// chi router together.
type Server struct {
	config     Config
	router     *chi.Mux
	httpServer *http.Server
	tasks      *task.Manager
}

// NewServer registers the orchestrator's operations as task kinds and
// builds the router. It never fails: an orchestrator with no reachable
// cloud or cluster backend simply fails its tasks at run time, the same
// division of concerns the teacher repository keeps between NewServer and
// a handler's own first remote call.
func NewServer(cfg Config, orch *orchestrator.Orchestrator) *Server {
	s := &Server{config: cfg, tasks: task.NewManager()}
	registerWorkers(s.tasks, orch)
	s.setupRoutes()
	return s
}

// registerWorkers binds every supported task kind (spec.md §4.5) to the
// orchestrator method it drives.
func registerWorkers(m *task.Manager, orch *orchestrator.Orchestrator) {
	m.Register("preflight", func(ctx context.Context, t *task.Task, service string) (any, error) {
		status, err := orch.Preflight(ctx, service, t)
		if err != nil {
			return status, err
		}
		if pass, _ := status["pass"].(bool); !pass {
			return status, fmt.Errorf("preflight checks failed for %s", service)
		}
		return status, nil
	})
	m.Register("sync", func(ctx context.Context, t *task.Task, service string) (any, error) {
		return nil, orch.Sync(ctx, service, t)
	})
	m.Register("cutover", func(ctx context.Context, t *task.Task, service string) (any, error) {
		return nil, orch.Cutover(ctx, service, t)
	})
	m.Register("cleanup", func(ctx context.Context, t *task.Task, service string) (any, error) {
		return nil, orch.Cleanup(ctx, service, t)
	})
	m.Register("dummy", dummyWorker)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.config.Verbose {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleListKinds)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Route("/{kind}", func(r chi.Router) {
			r.Get("/", s.handleListTasksOfKind)
			r.Route("/{service}", func(r chi.Router) {
				r.Post("/", s.handleCreateTask)
				r.Get("/", s.handleGetTask)
				r.Delete("/", s.handleDeleteTask)
			})
		})
	})

	s.router = r
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	logger.Info("starting server", "host", s.config.Host, "port", s.config.Port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener. Running tasks are left to
// finish or be cancelled independently; shutdown does not cancel them.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down server gracefully...")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying mux, primarily so tests can drive requests
// directly with httptest.NewServer.
func (s *Server) Router() *chi.Mux {
	return s.router
}
