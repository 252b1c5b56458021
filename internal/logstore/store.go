package logstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soltixdb/sensorlog/internal/config"
	"github.com/soltixdb/sensorlog/internal/logging"
)

// ArchiveDirName is the archive subdirectory of the log directory.
const ArchiveDirName = "archive"

// Config configures a Store. No defaults are applied here.
type Config struct {
	LogDir          string
	FilenamePattern string
	Rotation        RotationConfig
}

// ConfigFrom converts the store section of the application config, which is
// expressed in hours, megabytes and days.
func ConfigFrom(c config.StoreConfig) Config {
	return Config{
		LogDir:          c.LogDir,
		FilenamePattern: c.FilenamePattern,
		Rotation: RotationConfig{
			RotateEvery:          time.Duration(c.RotateEveryHours * float64(time.Hour)),
			MaxSizeBytes:         int64(c.MaxSizeMB * 1024 * 1024),
			RotateAfterLines:     c.RotateAfterLines,
			Retention:            time.Duration(c.RetentionDays * 24 * float64(time.Hour)),
			BufferFlushThreshold: c.BufferSize,
		},
	}
}

// Validate checks the store configuration.
func (c Config) Validate() error {
	if c.LogDir == "" {
		return configErrorf("log_dir is required")
	}
	if c.FilenamePattern == "" {
		return configErrorf("filename_pattern is required")
	}
	if !strings.HasSuffix(c.FilenamePattern, dataFileExt) {
		return configErrorf("filename_pattern must end in %s, got %q", dataFileExt, c.FilenamePattern)
	}
	if strings.ContainsRune(c.FilenamePattern, filepath.Separator) {
		return configErrorf("filename_pattern must not contain a path separator")
	}
	if _, err := RenderFilename(c.FilenamePattern, time.Now()); err != nil {
		return configErrorf("filename_pattern: %v", err)
	}
	return c.Rotation.Validate()
}

// State is the position of the store in the rotation sequence.
type State int32

const (
	StateStopped State = iota
	StateActive
	StateStopping
	StateArchiving
	StateSweeping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	case StateArchiving:
		return "ARCHIVING"
	case StateSweeping:
		return "SWEEPING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Status is a point-in-time view of the store.
type Status struct {
	State        string          `json:"state"`
	SessionID    string          `json:"session_id,omitempty"`
	Active       ActiveFileState `json:"active"`
	Buffered     int             `json:"buffered"`
	Rotations    int64           `json:"rotations"`
	LastRotation time.Time       `json:"last_rotation,omitempty"`
	LastTrigger  Trigger         `json:"last_trigger,omitempty"`
	SkippedRows  int64           `json:"skipped_rows"`
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store and its components.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for file naming, rotation and retention decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is an append-only, self-rotating, self-archiving sensor log.
//
// A single mutex spans append, flush and rotation so a rotation never interleaves with
// a flush of the same buffer. Queries do not take the lock.
type Store struct {
	cfg        Config
	archiveDir string
	logger     *logging.Logger
	now        func() time.Time
	openFile   func(path string, startTime time.Time) (*activeFile, error)

	archiver *Archiver
	sweeper  *Sweeper
	query    *QueryEngine

	mu           sync.Mutex
	active       *activeFile
	buffer       *entryBuffer
	sessionID    string
	rotations    int64
	lastRotation time.Time
	lastTrigger  Trigger
	lastSweep    SweepResult

	state atomic.Int32
}

// New validates cfg and prepares the log and archive directories. Call Start before
// writing.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:        cfg,
		archiveDir: filepath.Join(cfg.LogDir, ArchiveDirName),
		logger:     logging.Global(),
		now:        time.Now,
		openFile:   openActiveFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "logstore", "log_dir", cfg.LogDir)

	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return nil, newError(ErrIO, "mkdir", s.archiveDir, err)
	}

	s.buffer = newEntryBuffer(cfg.Rotation.BufferFlushThreshold)
	s.archiver = NewArchiver(s.archiveDir, s.logger)
	s.sweeper = NewSweeper(s.archiveDir, cfg.Rotation.Retention, s.now, s.logger)
	s.query = NewQueryEngine(cfg.LogDir, s.logger)
	return s, nil
}

// Start opens the active file for the current time. An existing file of that name is
// resumed. Calling Start on a running store is a no-op.
func (s *Store) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil
	}
	if err := recoverInterruptedRotations(s.cfg.LogDir, s.archiveDir, s.logger); err != nil {
		return err
	}
	return s.openLocked(s.now())
}

// Stop flushes the buffer, writes the session sentinel and closes the active file.
// On error the file stays open and buffered entries are kept, so Stop can be retried.
func (s *Store) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil
	}
	if err := s.stopLocked(); err != nil {
		return err
	}
	s.setState(StateStopped)
	s.logger.Info("Log store stopped", "session_id", s.sessionID)
	return nil
}

// LogReading records one reading. It fails only when the reading could not be
// accepted or the store could not stay writable; a failed archive step that left the
// source file open is logged and retried on the next rotation trigger.
func (s *Store) LogReading(sensorID string, ts time.Time, value float64, unit string) error {
	return s.HandleReading(context.Background(), LogEntry{
		Timestamp: ts,
		SensorID:  sensorID,
		Value:     value,
		Unit:      unit,
	})
}

// HandleReading lets the store receive readings from a fan-out hub.
func (s *Store) HandleReading(_ context.Context, e LogEntry) error {
	err := s.Append(e)
	// An archive failure is retried on the next trigger only while the source file is
	// open again; a failed reopen is an I/O error the caller must see.
	if err != nil && errors.Is(err, ErrArchive) && !errors.Is(err, ErrIO) {
		s.logger.Warn("Rotation aborted, source file kept for retry", "error", err)
		return nil
	}
	return err
}

// Append buffers e and flushes once the buffer reaches its threshold, then evaluates
// the rotation policy. The entry is accepted even if the flush fails: it stays in the
// buffer and is written by the next successful Flush, Append or Stop. Do not re-append
// it. An entry failing Validate is rejected with ErrInvalidEntry and never buffered.
func (s *Store) Append(e LogEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNotStarted
	}
	if s.buffer.add(e) {
		if err := s.buffer.flushTo(s.active); err != nil {
			return err
		}
	}
	return s.maybeRotateLocked()
}

// Flush writes buffered entries regardless of the threshold, then evaluates the
// rotation policy.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNotStarted
	}
	if err := s.buffer.flushTo(s.active); err != nil {
		return err
	}
	return s.maybeRotateLocked()
}

// Rotate forces a rotation of the active file.
func (s *Store) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNotStarted
	}
	return s.rotateLocked(TriggerManual)
}

// Sweep runs a retention pass outside the rotation cycle.
func (s *Store) Sweep() SweepResult {
	return s.sweeper.Sweep()
}

// Query returns a lazy sequence of entries matching f across data files and archives.
func (s *Store) Query(ctx context.Context, f Filter) iter.Seq2[LogEntry, error] {
	return s.query.Query(ctx, f)
}

// ReadLogs returns entries with start <= timestamp <= end, optionally restricted to
// one sensor. An empty sensorID matches all sensors.
func (s *Store) ReadLogs(ctx context.Context, start, end time.Time, sensorID string) iter.Seq2[LogEntry, error] {
	return s.query.Query(ctx, Filter{Start: start, End: end, SensorID: sensorID})
}

// Archives lists the archive directory.
func (s *Store) Archives() ([]ArchiveFile, error) {
	return ListArchives(s.archiveDir)
}

// State returns the current rotation state without blocking on the writer.
func (s *Store) State() State {
	return State(s.state.Load())
}

// ActiveFile returns the state of the active file, or the zero value when stopped.
func (s *Store) ActiveFile() ActiveFileState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ActiveFileState{}
	}
	return s.active.state()
}

// Status returns a snapshot for monitoring.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:        s.State().String(),
		Buffered:     s.buffer.len(),
		Rotations:    s.rotations,
		LastRotation: s.lastRotation,
		LastTrigger:  s.lastTrigger,
		SkippedRows:  s.query.SkippedRows(),
	}
	if s.active != nil {
		st.SessionID = s.sessionID
		st.Active = s.active.state()
	}
	return st
}

// LastSweep returns the result of the sweep run by the most recent rotation.
func (s *Store) LastSweep() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep
}

func (s *Store) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Store) openLocked(now time.Time) error {
	name, err := RenderFilename(s.cfg.FilenamePattern, now)
	if err != nil {
		return newError(ErrConfig, "render filename", s.cfg.FilenamePattern, err)
	}
	return s.openPathLocked(filepath.Join(s.cfg.LogDir, name), now)
}

func (s *Store) openPathLocked(path string, startTime time.Time) error {
	af, err := s.openFile(path, startTime)
	if err != nil {
		s.setState(StateStopped)
		return err
	}
	s.active = af
	s.sessionID = uuid.New().String()
	s.setState(StateActive)
	s.logger.Info("Opened active file",
		"path", path,
		"session_id", s.sessionID,
		"existing_rows", af.lineCount,
		"size", af.byteSize)
	return nil
}

func (s *Store) stopLocked() error {
	if err := s.buffer.flushTo(s.active); err != nil {
		return err
	}
	if err := s.active.close(); err != nil {
		return err
	}
	s.active = nil
	return nil
}

func (s *Store) maybeRotateLocked() error {
	rotate, trigger := ShouldRotate(s.active.state(), s.now(), s.cfg.Rotation)
	if !rotate {
		return nil
	}
	return s.rotateLocked(trigger)
}

// rotateLocked runs STOPPING -> ARCHIVING -> SWEEPING -> ACTIVE. A failure before the
// archive is in place leaves the source file where it is and the store writable.
func (s *Store) rotateLocked(trigger Trigger) error {
	state := s.active.state()
	s.logger.Info("Rotating active file",
		"path", state.Path,
		"trigger", string(trigger),
		"lines", state.LineCount,
		"size", state.ByteSize)

	s.setState(StateStopping)
	if err := s.stopLocked(); err != nil {
		s.setState(StateActive)
		return fmt.Errorf("rotation stopped before archiving: %w", err)
	}

	s.setState(StateArchiving)
	archivePath, err := s.archiver.Archive(state.Path)
	if err != nil {
		s.logger.Error("Archiving failed, reopening source file", "path", state.Path, "error", err)
		// Keep the original start time so a time trigger fires again on the next write.
		if reopenErr := s.openPathLocked(state.Path, state.StartTime); reopenErr != nil {
			return errors.Join(err, reopenErr)
		}
		return err
	}

	s.setState(StateSweeping)
	s.lastSweep = s.sweeper.Sweep()

	if err := s.openLocked(s.now()); err != nil {
		return fmt.Errorf("rotation archived %s but could not open a new file: %w", archivePath, err)
	}

	s.rotations++
	s.lastRotation = s.now()
	s.lastTrigger = trigger
	return nil
}
