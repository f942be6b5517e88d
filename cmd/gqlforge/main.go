// Command gqlforge is the gateway's process entry point: it loads the
// bootstrap configuration, parses and compiles the SDL configuration
// file into a Blueprint, builds the shared Runtime and cache tier, and
// serves the GraphQL-over-HTTP surface, shutting down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/gqlforge/gqlforge/internal/blueprint"
	"github.com/gqlforge/gqlforge/internal/cache"
	"github.com/gqlforge/gqlforge/internal/config"
	"github.com/gqlforge/gqlforge/internal/gateway"
	bootstrap "github.com/gqlforge/gqlforge/internal/platform/config"
	"github.com/gqlforge/gqlforge/internal/platform/logging"
	"github.com/gqlforge/gqlforge/internal/runtime"
)

func main() {
	_ = godotenv.Load()

	cfg := bootstrap.Load()
	logging.SetLevel(cfg.LogLevel)
	log := logging.New("gqlforge")

	log.Info().Str("config", cfg.ConfigPath).Msg("loading configuration")

	src, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ConfigPath).Msg("failed to read configuration file")
	}

	mod, err := config.Parse(cfg.ConfigPath, string(src))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}

	bp, err := blueprint.Compile(mod)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to compile blueprint")
	}
	log.Info().Int("fields", len(bp.Fields)).Msg("blueprint compiled")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := runtime.New(ctx, bp)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build runtime")
	}
	defer rt.Close()

	group := cache.NewGroup()
	var ttl cache.Store
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		ttl = cache.NewRedisStore(client, "gqlforge:")
		log.Info().Msg("using redis-backed cache tier")
	} else {
		ttl = cache.NewTTLCache(cfg.LocalCacheSize)
		log.Info().Int("size", cfg.LocalCacheSize).Msg("using in-memory cache tier")
	}

	handler := gateway.New(bp, rt, rt, group, ttl, rt.Schema())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", gateway.HealthHandler)

	if cfg.EnablePlayground {
		r.Get("/", gateway.PlaygroundHandler("/graphql"))
	}

	r.Handle("/graphql", handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("gqlforge is running")

	<-done
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("exited properly")
}
