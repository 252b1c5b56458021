package logstore

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/soltixdb/sensorlog/internal/logging"
)

const partialSuffix = ".partial"

// ArchiveFile is an archive found in the archive directory. The directory listing is
// the only index.
type ArchiveFile struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"modified_time"`
	Size    int64     `json:"size"`
}

// Archiver packs closed data files into single-entry zip archives.
type Archiver struct {
	dir    string
	logger *logging.Logger
}

// NewArchiver creates an archiver writing into dir.
func NewArchiver(dir string, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Global()
	}
	return &Archiver{dir: dir, logger: logger}
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string {
	return a.dir
}

// UniqueArchiveName returns the first free archive name for dataFile in dir:
// "<base>.zip", then "<base>(1).zip", "<base>(2).zip", ...
func UniqueArchiveName(dir, dataFile string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(dataFile), filepath.Ext(dataFile))
	name := base + archiveExt
	for counter := 1; ; counter++ {
		_, err := os.Lstat(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
		name = fmt.Sprintf("%s(%d)%s", base, counter, archiveExt)
	}
}

// archiveCandidates lists every archive in dir named "<base>.zip" or "<base>(N).zip"
// for dataFile, in name order. Numbering may have gaps once older archives are swept.
func archiveCandidates(dir, dataFile string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(dataFile), filepath.Ext(dataFile))
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `(\([0-9]+\))?` + regexp.QuoteMeta(archiveExt) + `$`)
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !pattern.MatchString(entry.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	return out, nil
}

// Archive packs src into a uniquely named archive and removes src once the archive is
// durably in place. If anything fails, src is left untouched and no archive remains.
func (a *Archiver) Archive(src string) (string, error) {
	tmpPath, err := a.writePartial(src)
	if err != nil {
		return "", newError(ErrArchive, "write", src, err)
	}
	defer func() { _ = os.Remove(tmpPath) }()

	dst, err := a.publish(tmpPath, src)
	if err != nil {
		return "", newError(ErrArchive, "publish", src, err)
	}

	if err := os.Remove(src); err != nil {
		// Keep exactly one copy of the data: withdraw the archive, keep the source.
		if rmErr := os.Remove(dst); rmErr != nil {
			a.logger.Error("Failed to withdraw archive after source removal failed",
				"archive", dst, "error", rmErr)
		}
		return "", newError(ErrArchive, "remove source", src, err)
	}

	a.logger.Info("Archived data file", "source", src, "archive", dst)
	return dst, nil
}

// writePartial writes the zip to a hidden temp file in the archive directory and
// syncs it.
func (a *Archiver) writePartial(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	stat, err := in.Stat()
	if err != nil {
		return "", err
	}

	base := filepath.Base(src)
	tmp, err := os.CreateTemp(a.dir, "."+base+"-*"+partialSuffix)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	header := &zip.FileHeader{
		Name:     base,
		Method:   zip.Deflate,
		Modified: stat.ModTime(),
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fail(err)
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

// publish gives the finished temp file its unique archive name without ever replacing
// an existing archive.
func (a *Archiver) publish(tmpPath, src string) (string, error) {
	for {
		name, err := UniqueArchiveName(a.dir, src)
		if err != nil {
			return "", err
		}
		dst := filepath.Join(a.dir, name)

		err = os.Link(tmpPath, dst)
		if err == nil {
			syncDir(a.dir)
			return dst, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}

		// Hard links are not available everywhere. Single-writer access makes the
		// existence check above sufficient for a rename.
		if _, statErr := os.Lstat(dst); statErr == nil {
			continue
		}
		if err := os.Rename(tmpPath, dst); err != nil {
			return "", err
		}
		syncDir(a.dir)
		return dst, nil
	}
}

// ListArchives returns the archives in dir in name order. A missing directory yields
// an empty list.
func ListArchives(dir string) ([]ArchiveFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, newError(ErrIO, "list", dir, err)
	}

	var out []ArchiveFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), archiveExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		out = append(out, ArchiveFile{
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return out, nil
}

// openArchive opens an archive for reading with the same flate implementation used
// for writing.
func openArchive(path string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
	return zr, nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
