// Package server wires the application together and owns the HTTP server.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → sqldb.DB (UserRepository)          → IdentityResolver
//	  → storage.LocalStore | S3Store        ↗
//	  → auth.PasswordService                ↗
//	  → auth.TokenService  → AuthService (+ metrics.Recorder)
//	  → auth.Providers     → AuthHandler
//
// Everything is built in New; no package registers itself at import time.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/petadopt/internal/auth"
	"github.com/sakif/petadopt/internal/config"
	"github.com/sakif/petadopt/internal/handler"
	"github.com/sakif/petadopt/internal/metrics"
	"github.com/sakif/petadopt/internal/middleware"
	"github.com/sakif/petadopt/internal/repository/sqldb"
	"github.com/sakif/petadopt/internal/service"
	"github.com/sakif/petadopt/internal/storage"
)

// uploadsPrefix is the URL path the local avatar store is served under.
const uploadsPrefix = "/uploads"

// Server holds the router and the resources it must release on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqldb.DB
	metrics metrics.Recorder

	// uploadRoot is set when avatars are kept on local disk.
	uploadRoot string
	providers  auth.Providers

	closeOnce sync.Once
	closeErr  error
}

// New opens the database, builds every service, and mounts the routes.
// On error nothing is left open.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === INFRASTRUCTURE ===
	db, err := sqldb.New(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(cfg.MetricsEnabled),
	}

	avatars, err := s.avatarStore(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.BcryptCost)
	s.providers = buildProviders(cfg)

	// === SERVICES ===
	resolver := service.NewIdentityResolver(db, passwords, avatars, logger)
	authService := service.NewAuthService(resolver, tokens, s.metrics, logger)

	// === HANDLERS ===
	authHandler := handler.NewAuthHandler(authService, s.providers, handler.AuthHandlerConfig{
		ClientURL:    cfg.ClientURL,
		CookieSecure: cfg.CookieSecure,
	}, logger)
	healthHandler := handler.NewHealthHandler(db, logger)

	s.setupRoutes(tokens, authHandler, healthHandler)

	logger.Info("server configured",
		slog.String("database", db.Driver()),
		slog.String("avatar_store", cfg.AvatarStore),
		slog.Any("providers", s.providers.Names()),
		slog.Bool("metrics", cfg.MetricsEnabled),
		slog.Duration("token_ttl", tokens.TTL()),
		slog.Int("bcrypt_cost", passwords.Cost()),
		slog.Bool("trust_proxy", cfg.TrustProxy),
	)
	return s, nil
}

func (s *Server) avatarStore(ctx context.Context) (storage.AvatarStore, error) {
	switch s.config.AvatarStore {
	case config.AvatarStoreS3:
		st, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:       s.config.S3.Region,
			Endpoint:     s.config.S3.Endpoint,
			AccessKey:    s.config.S3.AccessKey,
			SecretKey:    s.config.S3.SecretKey,
			Bucket:       s.config.S3.Bucket,
			PublicURL:    s.config.S3.PublicURL,
			UsePathStyle: s.config.S3.Endpoint != "",
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 avatar store: %w", err)
		}
		return st, nil
	default:
		st, err := storage.NewLocalStore(s.config.UploadDir, uploadsPrefix)
		if err != nil {
			return nil, fmt.Errorf("creating local avatar store: %w", err)
		}
		s.uploadRoot = st.Root()
		return st, nil
	}
}

// buildProviders registers each provider whose id and secret are both set.
func buildProviders(cfg *config.Config) auth.Providers {
	var ps []auth.Provider
	if cfg.Google.Enabled() {
		ps = append(ps, auth.NewGoogleProvider(auth.ProviderConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			CallbackURL:  cfg.Google.CallbackURL,
		}))
	}
	if cfg.Facebook.Enabled() {
		ps = append(ps, auth.NewFacebookProvider(auth.ProviderConfig{
			ClientID:     cfg.Facebook.ClientID,
			ClientSecret: cfg.Facebook.ClientSecret,
			CallbackURL:  cfg.Facebook.CallbackURL,
		}))
	}
	return auth.NewProviders(ps...)
}

// setupRoutes mounts middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET  /api/health
//	POST /api/auth/register            (rate limited)
//	POST /api/auth/login               (rate limited)
//	POST /api/auth/setup-profile       (bearer)
//	GET  /api/auth/profile             (bearer)
//	GET  /api/auth/{provider}
//	GET  /api/auth/{provider}/callback
//	GET  /metrics                      (METRICS_ENABLED)
//	GET  /uploads/*                    (local avatar store)
//
// Static routes like /profile are matched before the {provider} pattern.
func (s *Server) setupRoutes(tokens *auth.TokenService, authHandler *handler.AuthHandler, healthHandler *handler.HealthHandler) {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	if s.config.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(metrics.Middleware(s.metrics))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := middleware.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.With(limiter.Middleware).Post("/register", authHandler.HandleRegister)
			r.With(limiter.Middleware).Post("/login", authHandler.HandleLogin)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(tokens))
				r.Post("/setup-profile", authHandler.HandleSetupProfile)
				r.Get("/profile", authHandler.HandleProfile)
			})

			r.Get("/{provider}", authHandler.HandleProviderLogin)
			r.Get("/{provider}/callback", authHandler.HandleProviderCallback)
		})
	})

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", metrics.Handler(s.metrics))
	}

	if s.uploadRoot != "" {
		s.router.Get(uploadsPrefix+"/*", serveAvatars(s.uploadRoot))
	}
}

// avatarTypes are the only files /uploads serves, keyed by extension.
var avatarTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// serveAvatars serves stored avatar images from root. Directory listings
// and non-image files are 404; the Content-Type is fixed by extension and
// the browser is told not to sniff.
func serveAvatars(root string) http.HandlerFunc {
	files := http.StripPrefix(uploadsPrefix+"/", http.FileServer(http.Dir(root)))
	return func(w http.ResponseWriter, r *http.Request) {
		contentType, ok := avatarTypes[strings.ToLower(path.Ext(r.URL.Path))]
		if !ok || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
		files.ServeHTTP(w, r)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully and closes
// the database.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections.
//  2. Wait up to 30s for in-flight requests.
//  3. Close the database pool.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.ServerURL),
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

// Close releases the database. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
