package logstore

import (
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soltixdb/sensorlog/internal/logging"
)

// recoverInterruptedRotations finishes rotations that stopped between publishing an
// archive and removing its source. A data file whose bytes are already held by one of
// its archives is deleted, so it can never be reopened and appended to. Leftover
// partial archives are removed.
func recoverInterruptedRotations(logDir, archiveDir string, logger *logging.Logger) error {
	if entries, err := os.ReadDir(archiveDir); err == nil {
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), partialSuffix) {
				path := filepath.Join(archiveDir, entry.Name())
				if err := os.Remove(path); err == nil {
					logger.Warn("Removed partial archive", "path", path)
				}
			}
		}
	}

	dataFiles, err := listDataFiles(logDir)
	if err != nil {
		return err
	}

	for _, path := range dataFiles {
		candidates, err := archiveCandidates(archiveDir, path)
		if err != nil {
			return newError(ErrIO, "list", archiveDir, err)
		}
		for _, candidate := range candidates {
			same, err := archiveHolds(candidate, path)
			if err != nil {
				logger.Warn("Could not compare data file with archive",
					"file", path, "archive", candidate, "error", err)
				continue
			}
			if !same {
				continue
			}
			if err := os.Remove(path); err != nil {
				return newError(ErrIO, "remove archived source", path, err)
			}
			logger.Warn("Removed data file already held by archive",
				"file", path, "archive", candidate)
			break
		}
	}
	return nil
}

// archiveHolds reports whether the archive at zipPath consists of exactly one entry
// that is byte-identical to the file at path.
func archiveHolds(zipPath, path string) (bool, error) {
	zr, err := openArchive(zipPath)
	if err != nil {
		return false, err
	}
	defer func() { _ = zr.Close() }()

	if len(zr.File) != 1 {
		return false, nil
	}
	entry := zr.File[0]
	if entry.Name != filepath.Base(path) {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return false, err
	}
	if uint64(stat.Size()) != entry.UncompressedSize64 {
		return false, nil
	}

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return h.Sum32() == entry.CRC32, nil
}

// listDataFiles returns the data files in dir in name order.
func listDataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newError(ErrIO, "list", dir, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), dataFileExt) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	return out, nil
}
