package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/docs"
	"github.com/bookclub/bookclub/internal/club"
	"github.com/bookclub/bookclub/internal/config"
	"github.com/bookclub/bookclub/internal/database"
	"github.com/bookclub/bookclub/internal/discussion"
	"github.com/bookclub/bookclub/internal/graph"
	"github.com/bookclub/bookclub/internal/graph/memory"
	"github.com/bookclub/bookclub/internal/graph/neo4jstore"
	"github.com/bookclub/bookclub/internal/graph/postgres"
	"github.com/bookclub/bookclub/internal/logger"
	"github.com/bookclub/bookclub/internal/membership"
	"github.com/bookclub/bookclub/internal/notification"
	"github.com/bookclub/bookclub/internal/ratelimit"
	"github.com/bookclub/bookclub/internal/rotation"
	"github.com/bookclub/bookclub/internal/user"
	"github.com/bookclub/bookclub/internal/validation"
	mw "github.com/bookclub/bookclub/pkg/middleware"
)

// @title        Book Club API
// @version      1.0
// @description  Book clubs with a rotating book picker, member roles and threaded discussions.
// @BasePath     /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	lg.Info("store ready", zap.String("backend", cfg.StoreBackend))

	validate := validation.New()

	// Notification feature
	notificationService := notification.NewService(store, lg)
	notificationHandler := notification.NewHandler(notificationService)

	// User feature
	userService := user.NewService(store, lg)
	userHandler := user.NewHandler(userService, validate)

	// Club feature
	clubService := club.NewService(store, lg)
	clubHandler := club.NewHandler(clubService, validate)

	// Membership feature
	membershipService := membership.NewService(store, notificationService, lg)
	membershipHandler := membership.NewHandler(membershipService, validate)

	// Rotation feature
	rotationService := rotation.NewService(store, notificationService, lg)
	rotationHandler := rotation.NewHandler(rotationService, validate)

	// Discussion feature
	discussionService := discussion.NewService(store, cfg.MaxReplyDepth, lg)
	discussionHandler := discussion.NewHandler(discussionService, validate, discussion.NewRenderer())

	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
	defer limiter.Stop()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(lg))
	r.Use(middleware.Recoverer)
	if cfg.Auth.Mode == config.AuthJWT {
		r.Use(mw.JWTAuth(cfg.Auth.JWTSecret))
	} else {
		lg.Warn("trusting X-User-Email header for identity")
		r.Use(mw.HeaderAuth)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit(limiter))

		r.Mount("/users", userHandler.Routes())
		r.Mount("/notifications", notificationHandler.Routes())
		r.Route("/clubs", func(r chi.Router) {
			clubHandler.Register(r)
			r.Mount("/{slug}/members", membershipHandler.Routes())
			r.Mount("/{slug}/rotation", rotationHandler.Routes())
			r.Mount("/{slug}/discussions", discussionHandler.Routes())
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := store.Close(shutdownCtx); err != nil {
		lg.Error("closing store failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (graph.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return postgres.New(db, lg), nil
	case config.BackendNeo4j:
		return neo4jstore.Open(ctx, neo4jstore.Options{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		}, lg)
	case config.BackendMemory:
		lg.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
