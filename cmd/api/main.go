package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canteen-coders/canteen-client/api/controllers"
	"github.com/canteen-coders/canteen-client/api/routes"
	"github.com/canteen-coders/canteen-client/internal/authclient"
	"github.com/canteen-coders/canteen-client/internal/workspace"
	"github.com/canteen-coders/canteen-client/pkg/config"
	"github.com/canteen-coders/canteen-client/pkg/db"
	"github.com/canteen-coders/canteen-client/pkg/kv"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/canteen-coders/canteen-client/pkg/metrics"
	"github.com/canteen-coders/canteen-client/pkg/migrate"
	"github.com/canteen-coders/canteen-client/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	ready := map[string]controllers.Pinger{}
	backends := workspace.Backends{}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		closers = append(closers, redisClient.Close)
		ready["redis"] = redisClient

		store, err := kv.NewRedisStore(redisClient, cfg.Client.TTL)
		if err != nil {
			return err
		}
		backends.Session = store
	} else {
		logg.Warn(ctx, "redis not configured, session records kept in process memory")
		backends.Session = kv.NewMemoryStore()
	}

	if cfg.Client.UsesDurable() {
		dbClient, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return err
		}
		closers = append(closers, dbClient.Close)
		ready["database"] = dbClient

		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			return err
		}

		store, err := kv.NewDurableStore(dbClient.DB())
		if err != nil {
			return err
		}
		backends.Durable = store
	}

	authClient, err := authclient.NewClient(cfg.Auth.BaseURL, authclient.WithTimeout(cfg.Auth.Timeout))
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	clientMetrics := metrics.NewClientMetrics(promRegistry)

	registry, err := workspace.NewRegistry(cfg.Client, backends, authClient,
		workspace.WithLogger(logg),
		workspace.WithMetrics(clientMetrics),
	)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"principal_scope": cfg.Client.PrincipalScope,
		"cart_scope":      cfg.Client.CartScope,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Registry: registry,
			Metrics:  clientMetrics,
			Gatherer: promRegistry,
			Ready:    ready,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return registry.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
