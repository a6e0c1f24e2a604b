package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"zoneroute/internal/api"
	"zoneroute/internal/cache"
	"zoneroute/internal/config"
	"zoneroute/internal/integrations"
	"zoneroute/internal/integrations/fsjson"
	"zoneroute/internal/integrations/synthetic"
	"zoneroute/internal/metrics"
	"zoneroute/internal/planner"
	"zoneroute/internal/store"
)

var interruptSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
	syscall.SIGINT,
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found (using environment variables)")
	}
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}
	if cfg.Development() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	metrics.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), interruptSignals...)
	defer stop()

	src, err := source(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot configure dataset source")
	}
	ds, err := src.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("source", src.Name()).Msg("cannot load dataset")
	}
	for _, w := range ds.Warnings {
		log.Warn().Err(w).Msg("dataset: skipped record")
	}

	pcfg, err := cfg.PlannerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid planner config")
	}
	p := planner.New(ds.Graph, ds.Zones, ds.Vehicles, pcfg)

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var broker api.EventBroker
	deps := map[string]interface{ Ping(context.Context) error }{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot configure redis cache")
		}
		defer func() { _ = rc.Close() }()
		p.Cache = rc
		deps["cache"] = rc

		rb, err := api.NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot configure redis broker")
		}
		defer func() { _ = rb.Close() }()
		broker = rb
		deps["broker"] = rb
		log.Info().Msg("using redis cache and broker")
	} else {
		p.Cache = cache.NewMemory(cfg.CacheTTL)
	}

	srv := api.NewServer(p, st, broker, cfg).WithDataset(src.Name(), ds)
	defer srv.Close()
	for name, d := range deps {
		srv.Deps[name] = d
	}

	waitGroup, ctx := errgroup.WithContext(ctx)
	runWebhookWorker(ctx, waitGroup, srv)
	runHTTPServer(ctx, waitGroup, cfg, srv)

	if err := waitGroup.Wait(); err != nil {
		log.Fatal().Err(err).Msg("error from wait group")
	}
}

func source(cfg config.Config) (integrations.Source, error) {
	rules, err := integrations.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		return synthetic.Source{Rules: rules}, nil
	}
	return fsjson.Source{Dir: cfg.DataDir, RulesPath: cfg.RulesFile}, nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Info().Msg("using in-memory store")
		return store.NewMemory(), func() {}
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect to db")
	}
	log.Info().Msg("using postgres store")
	return pg, func() { _ = pg.Close() }
}

func runWebhookWorker(ctx context.Context, waitGroup *errgroup.Group, srv *api.Server) {
	worker := srv.NewWebhookWorker()
	log.Info().Int("maxAttempts", worker.MaxAttempts).Msg("start webhook worker")
	waitGroup.Go(func() error {
		return worker.Run(ctx)
	})
}

func runHTTPServer(ctx context.Context, waitGroup *errgroup.Group, cfg config.Config, srv *api.Server) {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	waitGroup.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("start HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed to serve")
			return err
		}
		return nil
	})

	waitGroup.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("graceful shutdown HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown HTTP server")
			return err
		}
		if err := srv.Drain(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("background plans still running at shutdown")
		}
		log.Info().Msg("HTTP server is stopped")
		return nil
	})
}
