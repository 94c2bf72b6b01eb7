package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	goredis "github.com/redis/go-redis/v9"

	"margin/internal/api/middleware"
	"margin/internal/api/routes"
	"margin/internal/config"
	"margin/internal/core/comments"
	"margin/internal/core/engagement"
	"margin/internal/core/follows"
	"margin/internal/core/mediafetch"
	"margin/internal/core/pages"
	"margin/internal/core/projection"
	"margin/internal/db/postgres"
	redisdb "margin/internal/db/redis"
	"margin/internal/grace"
	"margin/internal/recordstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	store, cleanup, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to open record store:", err)
	}
	defer cleanup()

	logger.Info("record store ready", "backend", cfg.StoreBackend)

	keeper := grace.NewKeeper(logger)
	proj := projection.New(logger)

	var media pages.MediaFetcher
	if cfg.MediaFetchEnabled {
		media = mediafetch.NewFetcher(logger)
	}

	pageService := pages.NewService(store, media, keeper, logger)
	commentService := comments.NewService(store, pageService, keeper, logger)
	engagementService := engagement.NewService(store, proj, keeper, logger)
	followService := follows.NewService(store, logger)

	r := chi.NewRouter()

	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)

	if cfg.RateLimitPerMinute > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		r.Use(rateLimiter.Middleware)
	}

	routes.RegisterPageRoutes(r, pageService)
	routes.RegisterCommentRoutes(r, commentService)
	routes.RegisterEngagementRoutes(r, engagementService, pageService, store)
	routes.RegisterFollowRoutes(r, followService)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		logger.Info("margin starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// Let in-flight background writes (comment saves, engagement
	// reconciles, media attaches) finish before the process exits.
	if !keeper.Drain(cfg.ShutdownTimeout) {
		logger.Warn("background work still pending at exit", "active", keeper.Active())
	}
}

// openStore builds the configured record store backend. The returned
// cleanup closes the underlying connection.
func openStore(cfg *config.Config) (recordstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := goose.SetDialect("postgres"); err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := goose.Up(db, "internal/db/migrations"); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewRecordStore(db), func() { db.Close() }, nil

	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		return redisdb.NewRecordStore(client), func() { client.Close() }, nil

	default:
		return recordstore.NewMemStore(), func() {}, nil
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
