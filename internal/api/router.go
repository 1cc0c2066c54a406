package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ghostclick/internal/bus"
	"ghostclick/internal/core"
	"ghostclick/internal/script"
	"ghostclick/internal/stats"
	"ghostclick/internal/store"
)

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Scheduler *core.Scheduler
	Tasks     *store.TaskFile
	Templates *store.TemplateLibrary
	Profiles  *store.ProfileStore
	Scripts   *script.Library
	Runner    *script.Runner
	// Stats may be nil when statistics are disabled.
	Stats  *stats.Store
	Bus    *bus.Bus
	Logger *slog.Logger
}

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	scheduler  *core.Scheduler
	tasks      *store.TaskFile
	templates  *store.TemplateLibrary
	profiles   *store.ProfileStore
	scripts    *script.Library
	runner     *script.Runner
	stats      *stats.Store
	bus        *bus.Bus
	logger     *slog.Logger
	authToken  string
}

// NewServer constructs the HTTP API server.
func NewServer(addr, authToken string, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		scheduler: deps.Scheduler,
		tasks:     deps.Tasks,
		templates: deps.Templates,
		profiles:  deps.Profiles,
		scripts:   deps.Scripts,
		runner:    deps.Runner,
		stats:     deps.Stats,
		bus:       deps.Bus,
		logger:    deps.Logger,
		authToken: authToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Script runs and the event stream hold the response open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Get("/status", s.handleStatus)
		r.Post("/control/start", s.handleControlStart)
		r.Post("/control/stop", s.handleControlStop)
		r.Post("/click", s.handleClickOnce)
		r.Get("/windows", s.handleListWindows)
		r.Get("/events", s.handleEvents)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Patch("/", s.handleUpdateTask)
				r.Delete("/", s.handleDeleteTask)
				r.Post("/start", s.handleStartTask)
				r.Post("/stop", s.handleStopTask)
				r.Get("/stats", s.handleTaskStats)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/capture", s.handleCaptureTemplate)
			r.Delete("/{name}", s.handleDeleteTemplate)
		})

		r.Route("/scripts", func(r chi.Router) {
			r.Get("/", s.handleListScripts)
			r.Post("/{name}/run", s.handleRunScript)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleListProfiles)
			r.Post("/", s.handleSaveProfile)
			r.Post("/{name}/activate", s.handleActivateProfile)
			r.Delete("/{name}", s.handleDeleteProfile)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/", s.handleStats)
			r.Get("/{taskID}", s.handleTaskStats)
		})
	})
}

// persistTasks writes the live task table through to disk. Mutation
// handlers call it after the scheduler accepted the change.
func (s *Server) persistTasks() {
	if err := s.tasks.Save(s.scheduler.List()); err != nil {
		s.logger.Error("persist tasks", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
