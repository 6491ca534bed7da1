package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stories-api/pkg/api"
	"stories-api/pkg/config"
	"stories-api/pkg/db"
	"stories-api/pkg/httpclient"
	"stories-api/pkg/storage"
	"stories-api/pkg/title"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the YAML config file (optional)")
		addr       = flag.String("addr", "", "Listen address, overrides server.addr")
		backend    = flag.String("store", "", "Storage backend: postgres, supabase, mongo or memory; overrides store.backend")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *addr != "" {
			c.Server.Addr = *addr
		}
		if *backend != "" {
			c.Store.Backend = *backend
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	clientType, err := httpclient.ParseClientType(cfg.HTTPClient.Profile)
	if err != nil {
		return err
	}
	resolver := title.NewResolver(httpclient.NewClient(clientType), logger)
	handler := api.New(store, resolver, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr, "store", cfg.Store.Backend)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown server", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				logger.Error("failed to force close server", "error", closeErr)
			}
		}
	}

	logger.Info("server stopped")
	return nil
}

// openStore connects the configured backend and returns its gateway with a close func.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		client := db.NewPostgresClient(cfg.PostgresConfig())
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return sqlStore(ctx, client, func() { _ = client.Close() })

	case config.BackendSupabase:
		client := db.NewSupabaseClient(cfg.SupabaseConfig())
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Close() }
		if client.HasDirectDB() {
			return sqlStore(ctx, client, closeFn)
		}

		// the REST API cannot run DDL; the stories table and upvote_story
		// must already exist in the project
		logger.Info("supabase REST API mode, no database password configured")
		store, err := storage.NewSupabase(client)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil

	case config.BackendMongo:
		client := db.NewMongoClient(cfg.MongoConfig())
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Close(context.Background()) }
		store, err := storage.NewMongo(client)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store, stories are lost on restart")
		return storage.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func sqlStore(ctx context.Context, p db.DBProvider, closeFn func()) (storage.Store, func(), error) {
	if err := db.EnsureSchema(ctx, p); err != nil {
		closeFn()
		return nil, nil, err
	}
	store, err := storage.NewPostgres(p)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}
