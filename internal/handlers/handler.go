package handlers

import (
	"context"
	"iter"
	"time"

	"github.com/soltixdb/sensorlog/internal/cache"
	"github.com/soltixdb/sensorlog/internal/fanout"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Store is the part of *logstore.Store the API needs.
type Store interface {
	Query(ctx context.Context, f logstore.Filter) iter.Seq2[logstore.LogEntry, error]
	Status() logstore.Status
	Archives() ([]logstore.ArchiveFile, error)
	Flush() error
	Rotate() error
	Sweep() logstore.SweepResult
}

// Sink accepts readings written through the API, normally the fan-out hub.
type Sink interface {
	HandleReading(ctx context.Context, e logstore.LogEntry) error
}

// Deps are the collaborators of the HTTP handlers. Latest, Stats and Hub are optional.
type Deps struct {
	Store  Store
	Sink   Sink
	Latest *cache.Latest
	Stats  *cache.Stats
	Hub    *fanout.Hub
}

// Handler contains all HTTP handlers
type Handler struct {
	logger *logging.Logger
	deps   Deps
	now    func() time.Time
}

// New creates a new handler instance
func New(logger *logging.Logger, deps Deps) *Handler {
	if logger == nil {
		logger = logging.Global()
	}
	return &Handler{
		logger: logger.With("component", "http"),
		deps:   deps,
		now:    time.Now,
	}
}
