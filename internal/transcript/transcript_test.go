package transcript

import (
	"path/filepath"
	"testing"

	"github.com/jackzampolin/syncbridge/internal/fuzzy"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		MappingID: "ab-1",
		Segments: []Segment{
			{TStart: 0, TEnd: 5, Text: "once upon a time"},
			{TStart: 5, TEnd: 10, Text: "there was a kingdom"},
			{TStart: 12, TEnd: 18, Text: "she opened the envelope slowly"},
		},
	}
}

func TestArtifact_Duration(t *testing.T) {
	a := sampleArtifact()
	if got := a.Duration(); got != 18 {
		t.Errorf("expected duration 18, got %v", got)
	}
}

func TestArtifact_TextAtTime_WithinSegment(t *testing.T) {
	a := sampleArtifact()
	text, ok := a.TextAtTime(6)
	if !ok || text != "there was a kingdom" {
		t.Errorf("expected 'there was a kingdom', got %q (ok=%v)", text, ok)
	}
}

func TestArtifact_TextAtTime_SilenceGap(t *testing.T) {
	a := sampleArtifact()
	text, ok := a.TextAtTime(11)
	if !ok {
		t.Fatal("expected a nearest-segment match")
	}
	if text != "there was a kingdom" && text != "she opened the envelope slowly" {
		t.Errorf("expected a boundary-adjacent segment, got %q", text)
	}
}

func TestArtifact_TextAtTime_BeforeStart(t *testing.T) {
	a := sampleArtifact()
	text, ok := a.TextAtTime(-5)
	if !ok || text != "once upon a time" {
		t.Errorf("expected first segment, got %q (ok=%v)", text, ok)
	}
}

func TestArtifact_TextAtTime_AfterEnd(t *testing.T) {
	a := sampleArtifact()
	text, ok := a.TextAtTime(1000)
	if !ok || text != "she opened the envelope slowly" {
		t.Errorf("expected last segment, got %q (ok=%v)", text, ok)
	}
}

func TestArtifact_TimeForText(t *testing.T) {
	a := sampleArtifact()
	m := fuzzy.New(fuzzy.DefaultThreshold)

	tstart, ok := a.TimeForText("she opened the envelope slowly", m)
	if !ok {
		t.Fatal("expected a match")
	}
	if tstart != 12 {
		t.Errorf("expected t_start 12, got %v", tstart)
	}
}

func TestRegistry_SaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(func(mappingID string) string {
		return filepath.Join(dir, mappingID+".json")
	})

	a := sampleArtifact()
	if err := reg.Save(a); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reg.Invalidate(a.MappingID)

	loaded, found, err := reg.Open(a.MappingID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !found {
		t.Fatal("expected artifact to be found after save")
	}
	if len(loaded.Segments) != len(a.Segments) {
		t.Errorf("expected %d segments, got %d", len(a.Segments), len(loaded.Segments))
	}
}

func TestRegistry_Open_Missing(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(func(mappingID string) string {
		return filepath.Join(dir, mappingID+".json")
	})

	_, found, err := reg.Open("unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for unknown mapping")
	}
}
