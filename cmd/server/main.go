package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/api"
	"github.com/davidgomes/10-seconds-game/internal/config"
	"github.com/davidgomes/10-seconds-game/internal/events"
	"github.com/davidgomes/10-seconds-game/internal/game"
	"github.com/davidgomes/10-seconds-game/internal/gateway"
	"github.com/davidgomes/10-seconds-game/internal/leaderboard"
	"github.com/davidgomes/10-seconds-game/internal/storage"
	"github.com/davidgomes/10-seconds-game/internal/storage/memory"
	"github.com/davidgomes/10-seconds-game/internal/storage/postgres"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := setupLogger(cfg.Log)
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer cleanup()

	projections := leaderboard.NewService(store)
	manager := game.NewManager(store, nil, game.DefaultConfig(), clockwork.NewRealClock())
	hub := gateway.NewHub(manager, store, projections, gateway.DefaultConfig())

	sinks := game.Fanout{hub}
	if cfg.NATS.URL != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		publisher, err := events.NewPublisher(jsCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer publisher.Close()
		go publisher.Start(ctx)
		sinks = append(sinks, publisher)
	}
	manager.SetBroadcaster(sinks)

	go hub.Start(ctx)
	go func() {
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("game loop exited")
		}
	}()

	handler := api.NewHandler(manager, store, projections)
	router := api.NewRouter(handler, hub.HandleWS, logger)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: h2c.NewHandler(c.Handler(router), &http2.Server{}),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

func setupLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Env == "local" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	dsn := cfg.Database.DSN()
	if dsn == "" {
		log.Info().Msg("no database configured, using in-memory store")
		return memory.New(), func() {}, nil
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("host", cfg.Database.Host).Msg("connected to postgres")
	return store, func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}, nil
}
