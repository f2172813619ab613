// Package blobStore owns the on-disk ciphertext blobs, one file per artifact
// id. The bytes inside a blob are opaque here; envelopes in the meta store
// carry everything needed to interpret them.
package blobStore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/disk"
)

var (
	// ErrNotFound is returned when no blob exists for the given id.
	ErrNotFound = errors.New("blobStore: blob not found")

	// ErrNoSpace is returned when the data volume is below the configured
	// free-space threshold. Writes are refused before any bytes land.
	ErrNoSpace = errors.New("blobStore: not enough free disk space")
)

type BlobStore struct {
	dir           string
	minimumFreeGB uint
	log           *slog.Logger
}

func New(dir string, minimumFreeGB uint, logger *slog.Logger) (*BlobStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("blobStore: mkdir %s: %w", dir, err)
	}

	s := &BlobStore{
		dir:           dir,
		minimumFreeGB: minimumFreeGB,
		log:           logger,
	}

	if usage, err := disk.Usage(dir); err == nil {
		s.log.Info("blob store ready",
			"dir", dir,
			"freeGB", fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
			"usedPercent", fmt.Sprintf("%.1f", usage.UsedPercent))
	}

	return s, nil
}

func (s *BlobStore) path(id string) string {
	return filepath.Join(s.dir, id+".enc")
}

// checkFreeSpace refuses writes once free space drops under the threshold.
func (s *BlobStore) checkFreeSpace() error {
	if s.minimumFreeGB == 0 {
		return nil
	}
	usage, err := disk.Usage(s.dir)
	if err != nil {
		return fmt.Errorf("blobStore: stat disk usage: %w", err)
	}
	if usage.Free < uint64(s.minimumFreeGB)*1e9 {
		s.log.Warn("refusing write, disk space low",
			"dir", s.dir,
			"freeGB", fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
			"minimumFreeGB", s.minimumFreeGB)
		return ErrNoSpace
	}
	return nil
}

// BlobWriter writes a blob through a temp file. The blob becomes visible only
// on Commit; Abort discards everything written so far.
type BlobWriter struct {
	f         *os.File
	tmpPath   string
	finalPath string
}

func (w *BlobWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Commit syncs and atomically moves the blob into place.
func (w *BlobWriter) Commit() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(w.tmpPath)
		return fmt.Errorf("blobStore: sync blob: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("blobStore: close blob: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("blobStore: commit blob: %w", err)
	}
	return nil
}

// Abort removes the partial blob. Safe to call after Commit; it is a no-op
// then.
func (w *BlobWriter) Abort() {
	w.f.Close()
	os.Remove(w.tmpPath)
}

// Create opens a writer for a new blob under id.
func (s *BlobStore) Create(id string) (*BlobWriter, error) {
	if err := s.checkFreeSpace(); err != nil {
		return nil, err
	}

	finalPath := s.path(id)
	tmpPath := finalPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("blobStore: create blob %s: %w", id, err)
	}

	return &BlobWriter{f: f, tmpPath: tmpPath, finalPath: finalPath}, nil
}

// Open returns a reader over the blob for id. The returned file is also an
// io.ReadSeeker, which lets the decrypt pipeline run its two-pass strategy.
func (s *BlobStore) Open(id string) (*os.File, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("blobStore: open blob %s: %w", id, err)
	}
	return f, nil
}

// Size returns the stored blob size in bytes.
func (s *BlobStore) Size(id string) (int64, error) {
	info, err := os.Stat(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return 0, fmt.Errorf("blobStore: stat blob %s: %w", id, err)
	}
	return info.Size(), nil
}

// Delete removes the blob for id.
func (s *BlobStore) Delete(id string) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("blobStore: delete blob %s: %w", id, err)
	}
	return nil
}

// TotalSize walks the blob directory and sums stored ciphertext bytes.
func (s *BlobStore) TotalSize() (int64, error) {
	var size int64
	err := filepath.Walk(s.dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("blobStore: walk %s: %w", s.dir, err)
	}
	return size, nil
}

var _ io.Writer = (*BlobWriter)(nil)
