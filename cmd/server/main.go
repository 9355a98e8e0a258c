package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashboard/internal/api"
	"dashboard/internal/config"
	"dashboard/internal/engine"
	"dashboard/internal/logging"
	"dashboard/internal/store/memstore"
	"dashboard/internal/store/mongostore"
	"dashboard/internal/store/pgstore"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "Path to a config file (yaml, toml or json)")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("opening store")
	}
	defer closeStore()

	// 2. Query service + loader
	svc := engine.NewService(store, log)
	loader := engine.NewLoader(engine.NewHTTPFetcher(cfg.Seed.URL, cfg.Seed.Timeout, cfg.Seed.MaxBytes), store, log)

	if cfg.Seed.OnStart {
		go func() {
			if _, err := loader.Load(ctx); err != nil {
				log.Error().Err(err).Msg("seeding on start")
			}
		}()
	}

	// 3. HTTP
	e := api.NewEcho(log)
	h := api.NewHandler(svc, loader, store, log)
	h.RegisterRoutes(e, cfg.HTTP.BasePath, rate.Limit(cfg.Seed.RatePerMinute/60))

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("driver", cfg.Store.Driver).Msg("server ready")
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (engine.Store, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Store.ConnectAttempts+1)*(cfg.Store.RetryDelay+5*time.Second))
	defer cancel()

	switch cfg.Store.Driver {
	case config.DriverMongo:
		s, err := mongostore.Connect(connectCtx, mongostore.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Attempts:   cfg.Store.ConnectAttempts,
			RetryDelay: cfg.Store.RetryDelay,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				log.Error().Err(err).Msg("closing mongo")
			}
		}, nil

	case config.DriverPostgres:
		s, err := pgstore.Connect(connectCtx, pgstore.Config{
			DSN:        cfg.Postgres.DSN,
			Attempts:   cfg.Store.ConnectAttempts,
			RetryDelay: cfg.Store.RetryDelay,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("closing postgres")
			}
		}, nil

	case config.DriverMemory:
		return memstore.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
