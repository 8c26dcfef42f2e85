// Package home manages the pagemerge home directory.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the pagemerge home directory.
	DefaultDirName = ".pagemerge"

	// CacheDirName holds rendered page images and vision replies.
	CacheDirName = "cache"

	// LogDirName holds rotated log files.
	LogDirName = "logs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// EnvFileName is loaded into the environment before config is read.
	EnvFileName = ".env"
)

// Dir represents the pagemerge home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.pagemerge).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnvPath returns the path to the optional .env file.
func (d *Dir) EnvPath() string {
	return filepath.Join(d.path, EnvFileName)
}

// CacheDir returns the root of the disk cache.
func (d *Dir) CacheDir() string {
	return filepath.Join(d.path, CacheDirName)
}

// LogPath returns the default log file path.
func (d *Dir) LogPath() string {
	return filepath.Join(d.path, LogDirName, "pagemerge.log")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Creating the cache directory also creates the parent
	if err := os.MkdirAll(d.CacheDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// OutputPaths returns the default output locations for a source PDF: the
// Markdown next to it, the provenance log beside that.
func OutputPaths(pdfPath string) (markdown, provenance string) {
	base := pdfPath[:len(pdfPath)-len(filepath.Ext(pdfPath))]
	return base + ".md", base + ".provenance.jsonl"
}
