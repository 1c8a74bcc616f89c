// Package api provides the REST API for iter-service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ternarybob/forge/internal/config"
	"github.com/ternarybob/forge/internal/mcp"
	"github.com/ternarybob/forge/internal/project"
	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/pkg/engine"
	"github.com/ternarybob/forge/pkg/session"
)

// Server represents the API server.
type Server struct {
	cfg      *config.Config
	router   chi.Router
	registry *project.Registry
	manager  *project.Manager

	// db, eng and sessions back the operations/sessions routes (§4.G).
	// They are optional: a server built without SetEngine serves the
	// project/index/web routes only, and handleCreateSession /
	// handleRunOperation report 503 rather than panicking.
	db       *store.Store
	eng      *engine.Engine
	sessions *session.Store
}

// SetEngine wires component G (the Operation Engine) and its backing
// store/session-history into the server, enabling the /sessions and
// /operations routes. Called once during startup after the engine has
// been constructed from the service's persistence and LLM config.
func (s *Server) SetEngine(db *store.Store, eng *engine.Engine, sessions *session.Store) {
	s.db = db
	s.eng = eng
	s.sessions = sessions
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, registry *project.Registry, manager *project.Manager) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		manager:  manager,
	}

	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * 1000000000)) // 60 seconds

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Optional API key authentication
	if s.cfg.API.APIKey != "" {
		r.Use(s.apiKeyAuth)
	}

	// Health and version endpoints (no auth)
	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	// API routes
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleRegisterProject)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetProject)
			r.Delete("/", s.handleUnregisterProject)
			r.Post("/index", s.handleRebuildIndex)
			r.Post("/search", s.handleSearch)
			r.Get("/deps/{symbol}", s.handleGetDeps)
			r.Get("/dependents/{symbol}", s.handleGetDependents)
			r.Get("/impact/{file}", s.handleGetImpact)
			r.Get("/history", s.handleGetHistory)
		})
	})

	// Operation Engine routes (§4.G). Backed by SetEngine; respond 503
	// until the engine has been wired in by the caller.
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/operations", s.handleRunOperation)
		})
	})
	r.Route("/operations", func(r chi.Router) {
		r.Get("/{id}", s.handleGetOperation)
		r.Get("/{id}/events", s.handleGetOperationEvents)
		r.Get("/{id}/artifacts", s.handleGetOperationArtifacts)
	})

	// API route for HTMX project list partial
	r.Get("/api/projects-list", s.handleProjectsList)
	r.Get("/api/index-status", s.handleIndexStatus)

	// MCP over HTTP: JSON-RPC POSTs and the /mcp/sse stream
	if s.cfg.MCP.Enabled {
		mcpHandler := mcp.NewHandler(s.cfg, s.registry, s.manager)
		r.Handle("/mcp", mcpHandler)
		r.Handle("/mcp/*", mcpHandler)
	}

	// Web UI routes (served from /web)
	r.Get("/", s.handleWebRoot)
	r.Get("/web/*", s.handleWebAssets)

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// apiKeyAuth is middleware that validates API key.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health and version
		if r.URL.Path == "/health" || r.URL.Path == "/version" {
			next.ServeHTTP(w, r)
			return
		}

		// Skip auth for localhost without API key configured
		if s.cfg.API.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Check API key header
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
