package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/KraakeAA/CoinFlipHelper/internal/dbconfig"
	"github.com/KraakeAA/CoinFlipHelper/internal/gameconfig"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/engine"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/events"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/gateway"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/pickup"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/registry"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/repository"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/rng"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/timers"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := dbconfig.NewConfigFromEnv()

	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create database pool")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Str("database", dbCfg.Database).Msg("connected to database")

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	gameCfg, err := gameconfig.Load(getEnv("GAME_CONFIG", "game.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load game config")
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = getEnv("NATS_URL", nats.DefaultURL)
	publisher, err := events.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer publisher.Close()

	repo := repository.NewRepository(pool)

	connManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	presenter := gateway.NewPresenter(connManager)

	eng := engine.New(
		registry.NewRegistry(),
		timers.NewRegistry(clockwork.NewRealClock()),
		repo,
		presenter,
		publisher,
		rng.New(),
		clockwork.NewRealClock(),
		gameCfg.Timings(),
	)

	wsHandler := gateway.NewWebSocketHandler(connManager, eng, repo)
	server := gateway.NewServer(getEnv("PORT", "8080"), wsHandler)

	pickupCfg := pickup.DefaultConfig()
	pickupCfg.DatabaseURL = dbCfg.DSN()
	dispatcher, err := pickup.NewDispatcher(repo, eng, pickupCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start pickup dispatcher")
	}

	go connManager.Start(ctx)
	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			log.Error().Err(err).Msg("pickup dispatcher stopped")
		}
	}()
	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway server shutdown failed")
	}
}
