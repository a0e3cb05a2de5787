package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-syncbridge")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-syncbridge" {
			t.Errorf("expected path /tmp/test-syncbridge, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-syncbridge")

	t.Run("DataPath", func(t *testing.T) {
		expected := "/tmp/test-syncbridge/data"
		if dir.DataPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.DataPath())
		}
	})

	t.Run("ConfigPath", func(t *testing.T) {
		expected := "/tmp/test-syncbridge/config.yaml"
		if dir.ConfigPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.ConfigPath())
		}
	})

	t.Run("MappingsPath", func(t *testing.T) {
		expected := "/tmp/test-syncbridge/data/mappings.json"
		if dir.MappingsPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.MappingsPath())
		}
	})

	t.Run("StatesPath", func(t *testing.T) {
		expected := "/tmp/test-syncbridge/data/states.json"
		if dir.StatesPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.StatesPath())
		}
	})

	t.Run("TranscriptPath", func(t *testing.T) {
		expected := "/tmp/test-syncbridge/data/transcripts/ab-123.json"
		if dir.TranscriptPath("ab-123") != expected {
			t.Errorf("expected %s, got %s", expected, dir.TranscriptPath("ab-123"))
		}
	})

	t.Run("EbookCachePath", func(t *testing.T) {
		expected := "/tmp/test-syncbridge/data/ebookcache/deadbeef.json"
		if dir.EbookCachePath("deadbeef") != expected {
			t.Errorf("expected %s, got %s", expected, dir.EbookCachePath("deadbeef"))
		}
	})
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	syncbridgeDir := filepath.Join(tmpDir, "syncbridge-test")

	dir, err := New(syncbridgeDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}

	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}

	for _, sub := range []string{dir.DataPath(), dir.TranscriptsDir(), dir.EbookCacheDir()} {
		if _, err := os.Stat(sub); os.IsNotExist(err) {
			t.Errorf("%s should exist after EnsureExists", sub)
		}
	}
}

func TestDir_ConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, _ := New(tmpDir)

	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}

	configPath := dir.ConfigPath()
	if err := os.WriteFile(configPath, []byte("test: true\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}
