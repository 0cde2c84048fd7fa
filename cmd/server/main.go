// Package main is the entry point for the dispatcher server.
//
// Dependencies are wired by hand in main(): store, then services, then
// handlers, then the router — the same explicit repos -> services ->
// handlers -> router construction order the teacher's cmd/server/main.go
// uses, generalized from an in-memory-only MVP to a Postgres/Redis-backed
// server with structured logging and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"caballus/internal/api"
	"caballus/internal/api/handlers"
	"caballus/internal/authz"
	"caballus/internal/config"
	"caballus/internal/dispatch"
	"caballus/internal/geo"
	"caballus/internal/location"
	"caballus/internal/quote"
	"caballus/internal/store/postgres"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENVIRONMENT") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := postgres.New(ctx, postgres.Config{
		DatabaseURL:   cfg.Store.DatabaseURL,
		MaxConns:      cfg.Store.MaxConns,
		MinConns:      cfg.Store.MinConns,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
		HeartbeatTTL:  cfg.Store.HeartbeatTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer st.Close()
	log.Info().Msg("store connection established")

	geoClient := geo.NewClient(cfg.Geo.BaseURL, cfg.Geo.APIKey, cfg.Geo.Timeout)
	policy := authz.NewPolicy()

	locationSvc := location.NewService(st, policy, geoClient)
	quoteSvc := quote.NewService(st, nil)
	dispatcher := dispatch.NewDispatcher(st, policy, nil)

	locationHandler := handlers.NewLocationHandler(locationSvc)
	quoteHandler := handlers.NewQuoteHandler(quoteSvc)
	tripHandler := handlers.NewTripHandler(dispatcher, quoteSvc)
	driverHandler := handlers.NewDriverHandler(dispatcher)

	router := api.NewRouter(locationHandler, quoteHandler, tripHandler, driverHandler)

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("dispatcher server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	stop()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited properly")
}
