package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soltixdb/sensorlog/internal/collector"
	"github.com/soltixdb/sensorlog/internal/config"
	"github.com/soltixdb/sensorlog/internal/fanout"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/sensor"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	readings := flag.Int("readings", -1, "Rounds to run, 0 runs until interrupted (default: simulator.readings)")
	send := flag.Bool("send", true, "Send readings to the collector (and simulator.send)")
	seed := flag.Uint64("seed", 0, "Random seed, 0 for a time-based seed")
	readBack := flag.Duration("read-back", 5*time.Minute, "Print readings logged within this window on exit, 0 to skip")
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

	rounds := cfg.Simulator.Readings
	if *readings >= 0 {
		rounds = *readings
	}

	if err := run(cfg, logger, rounds, *send && cfg.Simulator.Send, *seed, *readBack); err != nil {
		logger.Fatal("Simulator failed", "error", err)
	}
}

func run(cfg *config.Config, logger *logging.Logger, rounds int, send bool, seed uint64, readBack time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	tod, err := sensor.ParseTimeOfDay(cfg.Simulator.TimeOfDay, rng)
	if err != nil {
		return err
	}
	logger.Info("Simulating sensors", "time_of_day", tod, "rounds", rounds, "interval", cfg.Simulator.Interval)

	store, err := logstore.New(logstore.ConfigFrom(cfg.Store), logstore.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := store.Start(); err != nil {
		return err
	}

	hub := fanout.NewHub(logger)
	if send {
		client := collector.NewClient(collector.ClientConfig{
			Addr:      cfg.Collector.DialAddress(),
			Timeout:   cfg.Collector.Timeout,
			Retries:   cfg.Collector.Retries,
			KeepAlive: cfg.Collector.KeepAlive,
			Backoff:   cfg.Collector.Backoff,
		}, logger)
		defer func() { _ = client.Close() }()
		if err := client.Connect(ctx); err != nil {
			logger.Warn("Collector unreachable, readings are logged locally only until it is up", "error", err)
		}
		if err := hub.Register("network", client); err != nil {
			return err
		}
	}
	if err := hub.Register("store", store); err != nil {
		return err
	}

	runner := sensor.NewRunner(sensor.DefaultSet(tod, rng), printer{hub}, cfg.Simulator.Interval, logger)
	if err := runner.Run(ctx, rounds); err != nil {
		return err
	}

	if err := store.Stop(); err != nil {
		return err
	}

	if readBack <= 0 {
		return nil
	}
	end := time.Now()
	fmt.Println("\nReadings from the log files:")
	for e, err := range store.ReadLogs(context.Background(), end.Add(-readBack), end, "") {
		if err != nil {
			logger.Warn("Read failed", "error", err)
			continue
		}
		fmt.Printf("%s  %-6s %10.2f %s\n", e.Timestamp.Format(time.RFC3339), e.SensorID, e.Value, e.Unit)
	}
	return nil
}

// printer echoes every reading before passing it on.
type printer struct {
	next *fanout.Hub
}

func (p printer) HandleReading(ctx context.Context, e logstore.LogEntry) error {
	fmt.Printf("%-6s %10.2f %s\n", e.SensorID, e.Value, e.Unit)
	return p.next.Publish(ctx, e)
}
