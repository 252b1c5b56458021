package logstore

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

// ActiveFileState describes the currently open data file.
type ActiveFileState struct {
	Path      string    `json:"path"`
	StartTime time.Time `json:"start_time"`
	LineCount int       `json:"line_count"`
	ByteSize  int64     `json:"byte_size"`
}

// activeFile owns the single appendable data file.
type activeFile struct {
	path      string
	file      *os.File
	startTime time.Time
	lineCount int
	byteSize  int64
}

// openActiveFile opens path for append, creating it with a header if it is new or
// empty. An existing file is resumed: its data rows are counted and no second header
// is written.
func openActiveFile(path string, startTime time.Time) (*activeFile, error) {
	lines, endsWithNewline, err := scanDataRows(path)
	if err != nil {
		return nil, newError(ErrIO, "scan", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, newError(ErrIO, "open", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, newError(ErrIO, "stat", path, err)
	}

	af := &activeFile{
		path:      path,
		file:      file,
		startTime: startTime,
		lineCount: lines,
		byteSize:  stat.Size(),
	}

	switch {
	case af.byteSize == 0:
		if err := af.write(encodeHeader()); err != nil {
			_ = file.Close()
			return nil, err
		}
	case !endsWithNewline:
		// A torn row from an interrupted write must not swallow the next one.
		if err := af.write([]byte("\n")); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return af, nil
}

// scanDataRows counts data rows in an existing file. Header, sentinel and blank lines
// are excluded, as is a trailing fragment without a newline.
func scanDataRows(path string) (int, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, true, nil
		}
		return 0, false, err
	}
	defer func() { _ = f.Close() }()

	header := strings.Join(Header, ",")
	r := bufio.NewReader(f)
	count := 0
	endsWithNewline := true
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			complete := strings.HasSuffix(line, "\n")
			endsWithNewline = complete
			trimmed := strings.TrimRight(line, "\r\n")
			if complete && trimmed != "" && trimmed != header && !isSentinel(trimmed) {
				count++
			}
		}
		if err == io.EOF {
			return count, endsWithNewline, nil
		}
		if err != nil {
			return 0, false, err
		}
	}
}

// write appends data in a single call. On a short write the file is truncated back so
// no partial row is left behind.
func (a *activeFile) write(data []byte) error {
	prev := a.byteSize
	n, err := a.file.Write(data)
	if err != nil {
		if n > 0 {
			_ = a.file.Truncate(prev)
		}
		return newError(ErrIO, "write", a.path, err)
	}
	a.byteSize += int64(n)
	return nil
}

// writeRows appends entries in order and advances the line count.
func (a *activeFile) writeRows(entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := encodeRows(entries)
	if err != nil {
		return newError(ErrIO, "encode", a.path, err)
	}
	if err := a.write(data); err != nil {
		return err
	}
	a.lineCount += len(entries)
	return nil
}

// close writes the session sentinel, syncs and closes the handle.
func (a *activeFile) close() error {
	if err := a.write([]byte(Sentinel + "\n")); err != nil {
		return err
	}
	if err := a.file.Sync(); err != nil {
		return newError(ErrIO, "sync", a.path, err)
	}
	if err := a.file.Close(); err != nil {
		return newError(ErrIO, "close", a.path, err)
	}
	a.file = nil
	return nil
}

func (a *activeFile) state() ActiveFileState {
	return ActiveFileState{
		Path:      a.path,
		StartTime: a.startTime,
		LineCount: a.lineCount,
		ByteSize:  a.byteSize,
	}
}
