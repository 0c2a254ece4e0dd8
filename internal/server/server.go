// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (we can create a test server without running main)
// - Reusable (multiple entry points could use the same server config)
// - Clean (main.go stays minimal — just "start the server")
//
// DEPENDENCY INJECTION FLOW:
// main.go builds a Config from the environment and calls New, which wires:
//   sqlite.DB → repositories → services → handlers → routes
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/contribtrack/internal/auth"
	"github.com/sakif/contribtrack/internal/github"
	"github.com/sakif/contribtrack/internal/handler"
	"github.com/sakif/contribtrack/internal/middleware"
	sqliteRepo "github.com/sakif/contribtrack/internal/repository/sqlite"
	"github.com/sakif/contribtrack/internal/service"
)

// Config holds server configuration.
// Using a struct for config (instead of individual parameters) makes it easy to:
// - Add new config options without changing function signatures
// - Pass config around as a single value
// - Load config from files/env vars in one place
type Config struct {
	Port          int
	DBPath        string    // path to the SQLite database file
	GitHubToken   string    // personal access token for the search API
	JWTSecret     string    // HMAC secret for admin session tokens
	AdminUser     string    // admin login name
	AdminPassword string    // admin password (hashed at startup, never stored)
	StartDate     time.Time // merged PRs before this date are ignored
	BackupDir     string    // where ledger backups land
	CacheTTL      time.Duration
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection (db). When the server shuts down,
// we must close this connection to flush any pending writes and release the
// file lock. This is handled in Start() during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a new Server with the given config.
//
// DEPENDENCY INJECTION & WIRING:
// This is where the entire dependency chain is assembled:
//  1. Create the database connection (sqlite.New)
//  2. Create the services with the repository interfaces
//  3. Create the handlers with the services
//  4. Wire handlers to routes
//
// Each layer only receives what it needs:
// - Services get repository interfaces (not the concrete sqlite.DB)
// - Handlers get services (not the repositories or DB)
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package. Import aliases are common in Go when
// package names would otherwise collide or be unclear.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Set up middleware and routes
	if err := s.setupRoutes(); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware, services and route handlers.
//
// ROUTE STRUCTURE:
// POST   /api/contributions                        → submit a merged-PR claim
// GET    /api/contributions                        → list the review queue
// GET    /api/users/{id}                           → user profile + ledger
// GET    /api/leaderboard                          → points ranking
// POST   /api/auth/login                           → admin login (JWT cookie)
// POST   /api/auth/logout                          → clear session
// POST   /api/admin/contributions/{id}/approve     → approve (JWT)
// POST   /api/admin/contributions/{id}/reject      → reject with reason (JWT)
// DELETE /api/admin/contributions/rejected         → purge rejected (JWT)
// POST   /api/admin/reconcile                      → reconcile ledgers (JWT)
// POST   /api/admin/sync                           → GitHub batch sync (JWT)
// GET    /api/admin/validate                       → integrity report (JWT)
// POST   /api/admin/repos                          → register/edit repo (JWT)
// POST   /api/admin/users                          → enroll participant (JWT)
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Logger — logs each request with timing info
// 4. Recoverer — catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	// These run on EVERY request, in order

	// Chi's built-in middleware
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500

	// Our custom logging middleware
	s.router.Use(middleware.Logger(s.logger))

	// === Auth plumbing ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	adminAuth, err := service.NewAdminAuthService(
		s.config.AdminUser, s.config.AdminPassword, tokens, passwords, s.logger,
	)
	if err != nil {
		return fmt.Errorf("creating admin auth service: %w", err)
	}

	// === GitHub client ===
	ghCfg := github.DefaultConfig(s.config.StartDate)
	if s.config.CacheTTL > 0 {
		ghCfg.CacheTTL = s.config.CacheTTL
	}
	ghClient := github.NewClient(
		s.config.GitHubToken,
		github.NewMemoryCache(ghCfg.CacheTTL),
		ghCfg,
		s.logger,
	)

	// === Services ===
	// DEPENDENCY CHAIN:
	//   s.db (sqlite.DB) → implements all three repository interfaces
	//   Services receive the interfaces; handlers receive the services.
	//
	// Notice: the handlers never touch the database directly.
	// The services never touch HTTP. Clean separation!
	gateway := service.NewSubmissionGateway(s.db, s.db, s.logger)
	reviews := service.NewReviewService(s.db, s.logger)
	reconciler := service.NewReconcileService(s.db, s.db, s.db, s.config.BackupDir, s.logger)
	validator := service.NewIntegrityValidator(s.db, s.db)
	syncer := service.NewSyncService(s.db, ghClient, gateway, s.logger)

	// === Handlers ===
	contributionHandler := handler.NewContributionHandler(gateway, s.db, s.logger)
	userHandler := handler.NewUserHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(adminAuth, s.logger)
	adminHandler := handler.NewAdminHandler(reviews, reconciler, syncer, validator, s.db, s.db, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		// Public surface
		r.Post("/contributions", contributionHandler.HandleSubmit)
		r.Get("/contributions", contributionHandler.HandleList)
		r.Get("/users/{id}", userHandler.HandleGet)
		r.Get("/leaderboard", userHandler.HandleLeaderboard)

		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		// Admin surface — everything below requires a valid JWT cookie
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(tokens))

			r.Post("/contributions/{id}/approve", adminHandler.HandleApprove)
			r.Post("/contributions/{id}/reject", adminHandler.HandleReject)
			r.Delete("/contributions/rejected", adminHandler.HandlePurgeRejected)
			r.Post("/reconcile", adminHandler.HandleReconcile)
			r.Post("/sync", adminHandler.HandleSync)
			r.Get("/validate", adminHandler.HandleValidate)
			r.Post("/repos", adminHandler.HandleSaveRepo)
			r.Post("/users", adminHandler.HandleRegisterUser)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout — a running
//    reconcile or sync is allowed to complete its current user)
// 3. Close the database connection (flushes WAL, releases file lock)
//
// If we skip step 3, the database file might be left in an inconsistent state.
// The `defer s.db.Close()` ensures this happens even if something panics.
func (s *Server) Start() error {
	// Ensure the database is closed when the server stops.
	// This runs AFTER everything else in this function finishes.
	defer s.db.Close()

	// Create the HTTP server with sensible timeouts.
	// WriteTimeout is generous because a sync run with many users can hold
	// the request open across several batch pauses.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		// Server failed to start
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		// Received shutdown signal
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
