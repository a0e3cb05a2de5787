package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the syncbridge home directory.
	DefaultDirName = ".syncbridge"

	// DataDirName is the subdirectory for persisted state and cached artifacts.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// MappingsFileName holds the set of configured AB/ES/RA mappings.
	MappingsFileName = "mappings.json"

	// StatesFileName holds per-mapping reconciliation state.
	StatesFileName = "states.json"

	// TranscriptsDirName holds one TranscriptIndex artifact per mapping.
	TranscriptsDirName = "transcripts"

	// EbookCacheDirName holds one EbookIndex artifact per content hash.
	EbookCacheDirName = "ebookcache"
)

// Dir represents the syncbridge home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.syncbridge).
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

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// MappingsPath returns the path to the mappings store.
func (d *Dir) MappingsPath() string {
	return filepath.Join(d.DataPath(), MappingsFileName)
}

// StatesPath returns the path to the reconciliation state store.
func (d *Dir) StatesPath() string {
	return filepath.Join(d.DataPath(), StatesFileName)
}

// TranscriptsDir returns the directory holding TranscriptIndex artifacts.
func (d *Dir) TranscriptsDir() string {
	return filepath.Join(d.DataPath(), TranscriptsDirName)
}

// TranscriptPath returns the artifact path for a given mapping id.
func (d *Dir) TranscriptPath(mappingID string) string {
	return filepath.Join(d.TranscriptsDir(), mappingID+".json")
}

// EbookCacheDir returns the directory holding EbookIndex artifacts.
func (d *Dir) EbookCacheDir() string {
	return filepath.Join(d.DataPath(), EbookCacheDirName)
}

// EbookCachePath returns the artifact path for a given ebook content hash.
func (d *Dir) EbookCachePath(contentHash string) string {
	return filepath.Join(d.EbookCacheDir(), contentHash+".json")
}

// EnsureExists creates the home directory and its subdirectories if they
// don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.DataPath(), d.TranscriptsDir(), d.EbookCacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
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
