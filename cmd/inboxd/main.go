package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shootingwala/inbox/clients/go/inbox"
	"github.com/shootingwala/inbox/internal/api"
	"github.com/shootingwala/inbox/internal/api/middleware"
	"github.com/shootingwala/inbox/internal/config"
	"github.com/shootingwala/inbox/internal/engine"
	"github.com/shootingwala/inbox/internal/handlers"
	"github.com/shootingwala/inbox/internal/store"
)

const tokenValidity = 24 * time.Hour

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Drafts and identities live in PostgreSQL when configured, SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
	}
	defer db.Close()

	actor := cfg.Actor
	if actor.ID == "" {
		identity, err := db.GetIdentity(ctx, store.DefaultProfile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load identity")
		}
		if identity == nil {
			logger.Fatal().Msg("no actor configured: set ACTOR_ID or run `inbox use`")
		}
		actor = inbox.Actor{ID: identity.ActorID, Name: identity.ActorName, Type: inbox.ActorType(identity.ActorType)}
	}

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Messaging API client
	client := inbox.NewClient(cfg.APIURL)
	client.HTTPClient.Timeout = cfg.HTTPTimeout
	var signer *inbox.TokenSigner
	if cfg.TokenSecret != "" {
		signer = inbox.NewTokenSigner(cfg.TokenSecret, "inboxd", tokenValidity)
		client.Signer = signer
		client.Actor = actor
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	eng := engine.New(client, actor, &engine.Options{
		Admin:                    cfg.Admin,
		ConversationPollInterval: cfg.ConversationPollInterval,
		MessagePollInterval:      cfg.MessagePollInterval,
		Logger:                   &engineLogger,
		Drafts:                   db,
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if redisStore != nil {
		pub := newPublisher(redisStore, eng.Snapshot, actor.ID, logger)
		eng.On(pub.handle)
		go pub.run(runCtx)
	}

	if err := eng.Attach(runCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start sync")
	}

	// Create router
	opts := api.Options{
		CORSOrigins: cfg.CORSOrigins,
		RateLimit: middleware.RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Whitelist:         cfg.RateLimitWhitelist,
		},
		ActorID: actor.ID,
	}
	if signer != nil {
		opts.Verifier = signer
	}
	h := handlers.NewHandler(eng, db, redisStore, logger)
	router := api.NewRouter(logger, h, opts)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 15*time.Second, // a send waits on the API
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("actor", actor.ID).
			Str("api", cfg.APIURL).
			Msg("starting inbox bridge")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	eng.Detach()
	stop()

	logger.Info().Msg("server stopped")
}
