// Package server is the composition root: it builds the store, uploader,
// token and password services, wires them into the account handler, and
// runs the HTTP server until SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/videotube/internal/auth"
	"github.com/sakif/videotube/internal/config"
	"github.com/sakif/videotube/internal/handler"
	"github.com/sakif/videotube/internal/media"
	"github.com/sakif/videotube/internal/middleware"
	"github.com/sakif/videotube/internal/repository"
	mongoRepo "github.com/sakif/videotube/internal/repository/mongo"
	sqliteRepo "github.com/sakif/videotube/internal/repository/sqlite"
	"github.com/sakif/videotube/internal/service"
)

// bodyLimit caps JSON and form-encoded request bodies.
const bodyLimit = 20 << 10

// Server owns the router and the store connection.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	store  repository.UserRepository
	logger *slog.Logger
}

// New opens the configured store and S3 client and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	uploader, err := media.NewS3Uploader(ctx, media.Config{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		PublicBaseURL:   cfg.S3.PublicBaseURL,
		KeyPrefix:       cfg.S3.KeyPrefix,
		UsePathStyle:    cfg.S3.UsePathStyle,
	}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	s, err := newServer(cfg, store, uploader, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// newServer wires the dependency graph around an already-open store.
//
//	store ─┐
//	       ├─> AccountService ─> AccountHandler ─> routes
//	uploader, tokens, passwords ─┘
func newServer(cfg *config.Config, store repository.UserRepository, uploader media.Uploader, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.Token.AccessSecret,
		AccessTTL:     cfg.Token.AccessExpiry,
		RefreshSecret: cfg.Token.RefreshSecret,
		RefreshTTL:    cfg.Token.RefreshExpiry,
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	accounts := service.NewAccountService(
		store,
		uploader,
		tokens,
		auth.NewPasswordService(cfg.Token.BcryptCost),
		logger,
	)

	accountHandler := handler.NewAccountHandler(accounts, handler.Options{
		SecureCookies: cfg.HTTPServer.SecureCookies,
		AccessTTL:     tokens.AccessTTL(),
		RefreshTTL:    tokens.RefreshTTL(),
		TempDir:       cfg.Uploads.TempDir,
		MaxMemory:     cfg.Uploads.MaxMemoryMiB << 20,
	}, logger)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
	s.routes(accountHandler, auth.RequireAuth(tokens))
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.UserRepository, error) {
	switch cfg.Store.Driver {
	case "mongo":
		db, err := mongoRepo.New(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase, logger)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return db, nil
	default:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return db, nil
	}
}

// routes sets up middleware and handlers.
//
// ROUTES:
//
//	GET   /healthz
//	POST  /api/v1/users/register          multipart
//	POST  /api/v1/users/login
//	POST  /api/v1/users/refresh-token
//	POST  /api/v1/users/logout            auth
//	POST  /api/v1/users/change-password   auth
//	GET   /api/v1/users/current-user      auth
//	PATCH /api/v1/users/update-account    auth
//	PATCH /api/v1/users/avatar            auth, multipart
//	PATCH /api/v1/users/cover-image       auth, multipart
//
// Middleware order: RequestID first so the access log can read the id,
// Recoverer inside Logger so a panic is still logged as a 500.
func (s *Server) routes(h *handler.AccountHandler, requireAuth func(http.Handler) http.Handler) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.HTTPServer.CORSOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.router.Use(middleware.LimitBody(bodyLimit))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", h.HandleRegister)
		r.Post("/login", h.HandleLogin)
		r.Post("/refresh-token", h.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", h.HandleLogout)
			r.Post("/change-password", h.HandleChangePassword)
			r.Get("/current-user", h.HandleCurrentUser)
			r.Patch("/update-account", h.HandleUpdateAccount)
			r.Patch("/avatar", h.HandleUpdateAvatar)
			r.Patch("/cover-image", h.HandleUpdateCoverImage)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting connections
//  2. wait up to 30s for in-flight requests
//  3. close the store
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTPServer.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTPServer.ReadTimeout,
		WriteTimeout: s.cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  s.cfg.HTTPServer.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.HTTPServer.Port),
			slog.String("env", s.cfg.Env),
			slog.String("store", s.cfg.Store.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
