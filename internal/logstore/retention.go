package logstore

import (
	"errors"
	"os"
	"time"

	"github.com/soltixdb/sensorlog/internal/logging"
)

// SweepResult reports one retention pass.
type SweepResult struct {
	Cutoff  time.Time
	Deleted []string
	Kept    int
	Errors  []error
}

// Sweeper deletes archives older than the retention window.
type Sweeper struct {
	dir       string
	retention time.Duration
	now       func() time.Time
	remove    func(path string) error
	logger    *logging.Logger
}

// NewSweeper creates a sweeper for the archive directory dir.
func NewSweeper(dir string, retention time.Duration, now func() time.Time, logger *logging.Logger) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Sweeper{dir: dir, retention: retention, now: now, remove: os.Remove, logger: logger}
}

// Sweep deletes every archive whose modification time is strictly before
// now - retention. A failed deletion is recorded and the sweep moves on.
func (s *Sweeper) Sweep() SweepResult {
	result := SweepResult{Cutoff: s.now().Add(-s.retention)}

	archives, err := ListArchives(s.dir)
	if err != nil {
		result.Errors = append(result.Errors, newError(ErrRetention, "list", s.dir, err))
		s.logger.Warn("Retention sweep could not list archives", "dir", s.dir, "error", err)
		return result
	}

	for _, archive := range archives {
		if !archive.ModTime.Before(result.Cutoff) {
			result.Kept++
			continue
		}
		if err := s.remove(archive.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			result.Errors = append(result.Errors, newError(ErrRetention, "delete", archive.Path, err))
			s.logger.Warn("Failed to delete expired archive", "archive", archive.Path, "error", err)
			continue
		}
		result.Deleted = append(result.Deleted, archive.Path)
	}

	if len(result.Deleted) > 0 || len(result.Errors) > 0 {
		s.logger.Info("Retention sweep finished",
			"deleted", len(result.Deleted),
			"kept", result.Kept,
			"errors", len(result.Errors),
			"cutoff", result.Cutoff.Format(time.RFC3339))
	}
	return result
}
