package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "doc.json")

	want := doc{Name: "alpha", Count: 3}
	if err := WriteJSON(path, &want); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var got doc
	found, err := ReadJSON(path, &got)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestReadJSON_MissingFile(t *testing.T) {
	var got doc
	found, err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for missing file")
	}
}

func TestReadJSON_TruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.json")
	if err := os.WriteFile(path, []byte(`{"name": "a`), 0o644); err != nil {
		t.Fatalf("failed to write truncated file: %v", err)
	}

	var got doc
	found, err := ReadJSON(path, &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for truncated file")
	}
}

func TestReadJSON_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatalf("failed to write empty file: %v", err)
	}

	var got doc
	found, err := ReadJSON(path, &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for empty file")
	}
}

func TestWriteJSON_NoStaleTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	if err := WriteJSON(path, &doc{Name: "a"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly 1 file in dir, got %d", len(entries))
	}
}
