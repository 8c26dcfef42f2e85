package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jackzampolin/pagemerge/internal/fsutil"
)

// DiskStore keeps one file per entry under a two-level fan-out directory.
// Expiry is judged from the file's modification time.
type DiskStore struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewDiskStore creates the store directory if needed.
func NewDiskStore(cfg Config) (*DiskStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("disk cache requires a directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskStore{dir: cfg.Dir, ttl: cfg.TTL, now: time.Now}, nil
}

func (d *DiskStore) path(key string) string {
	h := Hash([]byte(key))
	return filepath.Join(d.dir, h[:2], h)
}

func (d *DiskStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	p := d.path(key)
	if d.ttl > 0 {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		if d.now().Sub(info.ModTime()) > d.ttl {
			os.Remove(p)
			return nil, false, nil
		}
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *DiskStore) Set(_ context.Context, key string, value []byte) error {
	return fsutil.WriteFileAtomic(d.path(key), value, 0o644)
}

func (d *DiskStore) Delete(_ context.Context, key string) error {
	err := os.Remove(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (d *DiskStore) Close() error { return nil }
