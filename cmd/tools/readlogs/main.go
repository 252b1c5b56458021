package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"iter"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/soltixdb/sensorlog/internal/cache"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/models"
)

func main() {
	dir := flag.String("dir", "./logs", "Log directory (archives are read from <dir>/archive)")
	start := flag.String("start", "", "Inclusive start timestamp, ISO-8601 (optional)")
	end := flag.String("end", "", "Inclusive end timestamp, ISO-8601 (optional)")
	sensorID := flag.String("sensor", "", "Filter by sensor ID (optional)")
	format := flag.String("format", "csv", "Output format: csv, json, ndjson")
	output := flag.String("output", "", "Output file (default: stdout)")
	stats := flag.Bool("stats", false, "Print per-sensor statistics instead of readings")
	verbose := flag.Bool("v", false, "Log skipped rows")
	flag.Parse()

	q := models.NewReadingsQuery(*start, *end, *sensorID, *format, 0)
	if err := q.Validate(); err != nil {
		log.Fatalf("Error: %v", err)
	}

	out := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Error creating output file: %v", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	logger := logging.NewNop()
	if *verbose {
		logger = logging.NewDevelopment()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := logstore.NewQueryEngine(*dir, logger)
	rows := engine.Query(ctx, q.Filter())

	var (
		n   int
		err error
	)
	if *stats {
		n, err = writeStats(out, rows)
	} else {
		n, err = writeRows(out, q.Format, rows)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Fprintf(os.Stderr, "%d readings, %d malformed rows skipped\n", n, engine.SkippedRows())
}

func writeRows(out io.Writer, format string, rows iter.Seq2[logstore.LogEntry, error]) (int, error) {
	n := 0
	switch format {
	case models.FormatCSV:
		w := csv.NewWriter(out)
		if err := w.Write(logstore.Header); err != nil {
			return 0, err
		}
		for e, err := range rows {
			if err != nil {
				log.Printf("Warning: %v", err)
				continue
			}
			if err := w.Write(e.Record()); err != nil {
				return n, err
			}
			n++
		}
		w.Flush()
		return n, w.Error()

	case models.FormatNDJSON:
		enc := json.NewEncoder(out)
		for e, err := range rows {
			if err != nil {
				log.Printf("Warning: %v", err)
				continue
			}
			if err := enc.Encode(models.NewReadingView(e)); err != nil {
				return n, err
			}
			n++
		}
		return n, nil

	default:
		views := []models.ReadingView{}
		for e, err := range rows {
			if err != nil {
				log.Printf("Warning: %v", err)
				continue
			}
			views = append(views, models.NewReadingView(e))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return len(views), enc.Encode(models.ReadingsResponse{Readings: views, Count: len(views)})
	}
}

func writeStats(out io.Writer, rows iter.Seq2[logstore.LogEntry, error]) (int, error) {
	s := cache.NewStats(0.01)
	n := 0
	for e, err := range rows {
		if err != nil {
			log.Printf("Warning: %v", err)
			continue
		}
		s.Add(e)
		n++
	}

	fmt.Fprintf(out, "%-8s %-5s %8s %10s %10s %10s %10s %10s  %s\n",
		"SENSOR", "UNIT", "COUNT", "MIN", "AVG", "P50", "P99", "MAX", "RANGE")
	for _, st := range s.Snapshot() {
		_, err := fmt.Fprintf(out, "%-8s %-5s %8d %10.2f %10.2f %10.2f %10.2f %10.2f  %s .. %s\n",
			st.SensorID, st.Unit, st.Count, st.Min, st.Avg, st.P50, st.P99, st.Max,
			st.First.Format(time.RFC3339), st.Last.Format(time.RFC3339))
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
