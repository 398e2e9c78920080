package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/promptelt/promptelt/internal/broker"
	"github.com/promptelt/promptelt/internal/config"
	"github.com/promptelt/promptelt/internal/connector"
	"github.com/promptelt/promptelt/internal/handler"
	"github.com/promptelt/promptelt/internal/server/middleware"
	"github.com/promptelt/promptelt/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes
	RateLimit       int   // requests per minute per client, 0 disables
	TLSCertFile     string
	TLSKeyFile      string
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		MaxBodySize:     10 * 1024 * 1024, // 10MB
		RateLimit:       600,
		Version:         "dev",
	}
}

// Server is the HTTP front of the broker. It owns the chi router and shares
// the connector registry, broker and config store with the rest of the
// process.
type Server struct {
	cfg        Config
	router     chi.Router
	registry   *connector.Registry
	broker     *broker.Broker
	store      *config.Store
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, registry *connector.Registry, b *broker.Broker, store *config.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		broker:   b,
		store:    store,
		logger:   logger.With("component", "server"),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.ProviderKeyHeader, middleware.RequestIDHeader, "X-Requested-With"},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.ProviderKey)
	r.Use(s.limitBody)
	r.Use(chimw.Compress(5))

	// --- Probes and metrics ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	var settings telemetry.SettingsStore
	if s.store != nil {
		settings = s.store
	}
	if telemetry.Enabled(context.Background(), settings) {
		r.Handle("/metrics", telemetry.Handler())
	}

	openAPIHandler := handler.NewOpenAPIHandler(s.store, s.broker, s.cfg.Version)
	r.Get("/openapi.json", openAPIHandler.ServeAPISpec)

	// --- API routes ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.RateLimit))

		dbHandler := handler.NewDatabaseHandler(s.store, s.broker, s.logger)
		schemaHandler := handler.NewSchemaHandler(s.broker)
		assistantHandler := handler.NewAssistantHandler(s.broker, s.store, s.logger)
		cacheHandler := handler.NewCacheHandler(s.broker)
		convHandler := handler.NewConversationHandler(s.store)
		pipelineHandler := handler.NewPipelineHandler(s.store)

		// Registered databases and their connections
		r.Get("/databases", dbHandler.List)
		r.Post("/databases", dbHandler.Create)
		r.Route("/databases/{id}", func(r chi.Router) {
			r.Get("/", dbHandler.Get)
			r.Put("/", dbHandler.Update)
			r.Delete("/", dbHandler.Delete)
			r.Post("/connect", dbHandler.Connect)
			r.Delete("/connection", dbHandler.Disconnect)
			r.Post("/query", dbHandler.Query)
			r.Get("/openapi.json", openAPIHandler.ServeDatabaseSpec)

			r.Get("/schema", schemaHandler.Get)
			r.Post("/schema/refresh", schemaHandler.Refresh)
			r.Get("/schema/history", schemaHandler.History)
			r.Get("/schema/changes", schemaHandler.Changes)
		})

		// Snapshots across databases
		r.Get("/schema/diff", schemaHandler.Diff)
		r.Post("/schema/snapshots/restore", schemaHandler.Restore)
		r.Get("/schema/snapshots/{snapshotId}/export", schemaHandler.Export)
		r.Post("/schema/snapshots/{snapshotId}/archive", schemaHandler.Archive)

		// Assistant
		r.Post("/process-query", assistantHandler.ProcessQuery)
		r.Post("/pipelines/generate", assistantHandler.GeneratePipeline)
		r.Post("/validate-query", assistantHandler.Validate)

		// Cache and statistics
		r.Get("/cache/entries", cacheHandler.Entries)
		r.Delete("/cache", cacheHandler.Invalidate)
		r.Post("/cache/archive", cacheHandler.Archive)
		r.Get("/stats", cacheHandler.Stats)

		// Conversations
		r.Get("/conversations", convHandler.List)
		r.Post("/conversations", convHandler.Create)
		r.Delete("/conversations/{conversationId}", convHandler.Delete)
		r.Get("/conversations/{conversationId}/messages", convHandler.Messages)
		r.Post("/conversations/{conversationId}/messages", convHandler.AddMessage)

		// Saved pipelines
		r.Get("/pipelines", pipelineHandler.List)
		r.Post("/pipelines", pipelineHandler.Create)
		r.Get("/pipelines/{pipelineId}", pipelineHandler.Get)
		r.Put("/pipelines/{pipelineId}", pipelineHandler.Update)
		r.Delete("/pipelines/{pipelineId}", pipelineHandler.Delete)
	})

	s.router = r
}

// limitBody caps request bodies at MaxBodySize.
func (s *Server) limitBody(next http.Handler) http.Handler {
	if s.cfg.MaxBodySize <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when every open connector
// answers a ping, or 503 if any of them does not.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, c := range s.broker.Connections() {
		conn, err := s.registry.Get(c.ID)
		if err != nil {
			checks[c.ID] = "error: " + err.Error()
			status = "degraded"
			continue
		}
		if err := conn.Ping(ctx); err != nil {
			checks[c.ID] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks[c.ID] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled.
// It then performs a graceful shutdown, draining in-flight requests before
// closing the broker and with it every database connection.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // assistant calls can be slow
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "tls", s.cfg.TLSCertFile != "")
		var err error
		if s.cfg.TLSCertFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := s.broker.Close(shutdownCtx); err != nil {
		return fmt.Errorf("close broker: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
