package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/cache"
	"github.com/soltixdb/sensorlog/internal/collector"
	"github.com/soltixdb/sensorlog/internal/config"
	"github.com/soltixdb/sensorlog/internal/fanout"
	"github.com/soltixdb/sensorlog/internal/forward"
	"github.com/soltixdb/sensorlog/internal/handlers"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/queue"
	"github.com/soltixdb/sensorlog/internal/router"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

// housekeepingInterval is how often an idle store re-checks its rotation policy.
const housekeepingInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	logger.Info("Sensor logger starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Sensor logger failed", "error", err)
	}
	logger.Info("Sensor logger exited")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := logstore.New(logstore.ConfigFrom(cfg.Store), logstore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	if err := store.Start(); err != nil {
		return fmt.Errorf("start store: %w", err)
	}
	defer func() {
		if err := store.Stop(); err != nil {
			logger.Error("Failed to stop store", "error", err)
		}
	}()
	logger.Info("Store started", "config", cfg.Store.String(), "active", store.ActiveFile().Path)

	latest := cache.NewLatest()
	stats := cache.NewStats(0.01)

	// local receives readings that must only be persisted; ingress additionally relays
	// them to the queue and the upstream collector. Ingested queue messages go to local
	// so they are never forwarded again.
	local := fanout.NewHub(logger)
	must(local.Register("store", store))
	must(local.Register("latest", latest))
	must(local.Register("stats", stats))

	ingress := fanout.NewHub(logger)
	must(ingress.Register("local", local))

	var q queue.Queue
	if cfg.Forward.Enabled || cfg.Forward.Ingest {
		logger.Info("Connecting to Queue", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
		q, err = queue.NewQueue(cfg.Queue, logger)
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		defer func() { _ = q.Close() }()
	}

	fwdOpts, err := forward.OptionsFrom(cfg.Forward, logger)
	if err != nil {
		return err
	}
	if cfg.Forward.Enabled {
		fw, err := forward.NewForwarder(q, fwdOpts)
		if err != nil {
			return err
		}
		must(ingress.Register("forwarder", fw))
		logger.Info("Forwarding readings", "subject", cfg.Forward.Subject,
			"codec", cfg.Forward.Codec, "compression", cfg.Forward.Compression)
	}

	// With a listening collector the upstream client would send readings to ourselves.
	if cfg.Collector.Host != "" && !cfg.Collector.Listen {
		client := collector.NewClient(collector.ClientConfig{
			Addr:      cfg.Collector.DialAddress(),
			Timeout:   cfg.Collector.Timeout,
			Retries:   cfg.Collector.Retries,
			KeepAlive: cfg.Collector.KeepAlive,
			Backoff:   cfg.Collector.Backoff,
		}, logger)
		defer func() { _ = client.Close() }()
		must(ingress.Register("collector_client", client))
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Collector.Listen {
		srv := collector.NewServer(ingress, collector.ServerConfig{ReadTimeout: cfg.Collector.ReadTimeout}, logger)
		addr := cfg.Collector.ListenAddress()
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, addr); err != nil {
				return fmt.Errorf("collector server: %w", err)
			}
			return nil
		})
	}

	if cfg.Forward.Ingest {
		in, err := forward.NewIngestor(q, local, fwdOpts)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := in.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			in.Stop()
			logger.Info("Ingestor stopped", "stats", in.Stats())
			return nil
		})
	}

	if cfg.Server.Enabled {
		if cfg.Auth.Enabled {
			logger.Info("API key authentication enabled", "num_keys", len(cfg.Auth.APIKeys))
		} else {
			logger.Warn("API key authentication DISABLED - all requests will be allowed")
		}
		app := router.New(logger, handlers.Deps{
			Store:  store,
			Sink:   ingress,
			Latest: latest,
			Stats:  stats,
			Hub:    ingress,
		}, *cfg)
		g.Go(func() error { return serveHTTP(gctx, app, cfg.GetServerAddress(), logger) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(housekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := store.Flush(); err != nil {
					logger.Warn("Periodic flush failed", "error", err)
				}
			}
		}
	})

	<-gctx.Done()
	logger.Info("Shutting down...")
	return g.Wait()
}

func serveHTTP(ctx context.Context, app *fiber.App, addr string, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "address", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server forced to shutdown", "error", err)
	}
	return nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
