package ui

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"smefit/internal"
	"smefit/ports"
)

// App serves the run browser: JSON endpoints over the result store and a
// rendered report view per run.
type App struct {
	router *chi.Mux
	store  ports.ResultStore
	log    *internal.Logger
	port   string
}

// Config holds UI application configuration
type Config struct {
	Port string
}

// NewApp creates the UI application over a result store
func NewApp(cfg Config, store ports.ResultStore, log *internal.Logger) *App {
	if log == nil {
		log = internal.DefaultLogger
	}
	app := &App{
		router: chi.NewRouter(),
		store:  store,
		log:    log.WithTag("UI"),
		port:   cfg.Port,
	}
	app.setupMiddleware()
	app.setupRoutes()
	return app
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealth)

	a.router.Get("/api/runs", a.handleListRuns)
	a.router.Get("/api/runs/{id}", a.handleGetRun)

	a.router.Get("/runs/{id}/report", a.handleRunReport)
}

// Router exposes the handler for tests and embedding
func (a *App) Router() http.Handler {
	return a.router
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := ":" + a.port
	a.log.Info("serving run browser on %s", addr)
	return http.ListenAndServe(addr, a.router)
}
