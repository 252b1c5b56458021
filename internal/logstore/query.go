package logstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/soltixdb/sensorlog/internal/logging"
)

// Filter selects entries for a query. Start and End are inclusive; a zero value leaves
// that side unbounded. An empty SensorID matches every sensor.
type Filter struct {
	Start    time.Time
	End      time.Time
	SensorID string

	// OnSkip, if set, is called for every row the query could not parse.
	OnSkip func(source string, line int, err error)
}

func (f Filter) matches(e LogEntry) bool {
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	return f.SensorID == "" || e.SensorID == f.SensorID
}

// QueryEngine reads entries back from the data files in the log directory and from
// every archive. It keeps no state between queries and never writes.
type QueryEngine struct {
	logDir     string
	archiveDir string
	logger     *logging.Logger
	skipped    atomic.Int64
}

// NewQueryEngine creates a query engine over logDir and its archive subdirectory.
func NewQueryEngine(logDir string, logger *logging.Logger) *QueryEngine {
	if logger == nil {
		logger = logging.Global()
	}
	return &QueryEngine{
		logDir:     logDir,
		archiveDir: filepath.Join(logDir, ArchiveDirName),
		logger:     logger,
	}
}

// SkippedRows returns the number of malformed rows skipped by all queries so far.
func (q *QueryEngine) SkippedRows() int64 {
	return q.skipped.Load()
}

// Query returns a lazy sequence of matching entries. Data files are read first, then
// archives; the archive directory is listed only once the data files are done, so a
// file rotated away during the scan is picked up from its archive. Each call to the
// returned sequence starts a fresh pass.
//
// Source-level failures are yielded as errors and the scan moves on to the next source
// if the caller keeps ranging. Malformed rows are skipped.
func (q *QueryEngine) Query(ctx context.Context, f Filter) iter.Seq2[LogEntry, error] {
	return func(yield func(LogEntry, error) bool) {
		files, err := listDataFiles(q.logDir)
		if err != nil {
			if !yield(LogEntry{}, err) {
				return
			}
		}
		for _, path := range files {
			if !q.scanFile(ctx, path, f, yield) {
				return
			}
		}

		archives, err := ListArchives(q.archiveDir)
		if err != nil {
			if !yield(LogEntry{}, err) {
				return
			}
		}
		for _, archive := range archives {
			if !q.scanArchive(ctx, archive.Path, f, yield) {
				return
			}
		}
	}
}

func (q *QueryEngine) scanFile(ctx context.Context, path string, f Filter, yield func(LogEntry, error) bool) bool {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Rotated away after listing; its rows are in the archive.
			return true
		}
		return yield(LogEntry{}, newError(ErrIO, "open", path, err))
	}
	defer func() { _ = file.Close() }()

	return q.scanRows(ctx, path, file, f, yield)
}

func (q *QueryEngine) scanArchive(ctx context.Context, path string, f Filter, yield func(LogEntry, error) bool) bool {
	zr, err := openArchive(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Swept after listing.
			return true
		}
		return yield(LogEntry{}, newError(ErrIO, "open archive", path, err))
	}
	defer func() { _ = zr.Close() }()

	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, dataFileExt) {
			continue
		}
		source := path + ":" + zf.Name
		rc, err := zf.Open()
		if err != nil {
			if !yield(LogEntry{}, newError(ErrIO, "open archive entry", source, err)) {
				return false
			}
			continue
		}
		ok := q.scanRows(ctx, source, rc, f, yield)
		_ = rc.Close()
		if !ok {
			return false
		}
	}
	return true
}

// scanRows parses one source line by line. It returns false once the caller has
// stopped consuming.
func (q *QueryEngine) scanRows(ctx context.Context, source string, r io.Reader, f Filter, yield func(LogEntry, error) bool) bool {
	header := strings.Join(Header, ",")
	br := bufio.NewReader(r)
	lineNo := 0

	for {
		if err := ctx.Err(); err != nil {
			yield(LogEntry{}, err)
			return false
		}

		line, readErr := br.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			if !strings.HasSuffix(line, "\n") {
				// A row still being written, or torn by a crash.
				if strings.TrimSpace(line) != "" {
					q.skip(source, lineNo, f, fmt.Errorf("%w: incomplete trailing row", ErrParse))
				}
			} else {
				trimmed := strings.TrimRight(line, "\r\n")
				switch {
				case strings.TrimSpace(trimmed) == "", trimmed == header, isSentinel(trimmed):
				default:
					entry, err := parseLine(trimmed)
					if err != nil {
						q.skip(source, lineNo, f, err)
					} else if f.matches(entry) {
						if !yield(entry, nil) {
							return false
						}
					}
				}
			}
		}

		if readErr == io.EOF {
			return true
		}
		if readErr != nil {
			return yield(LogEntry{}, newError(ErrIO, "read", source, readErr))
		}
	}
}

func (q *QueryEngine) skip(source string, line int, f Filter, err error) {
	q.skipped.Add(1)
	q.logger.Debug("Skipped malformed row", "source", source, "line", line, "error", err)
	if f.OnSkip != nil {
		f.OnSkip(source, line, err)
	}
}
