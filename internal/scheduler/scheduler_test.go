package scheduler

import (
	"archive/zip"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/syncbridge/internal/config"
	"github.com/jackzampolin/syncbridge/internal/ebook"
	"github.com/jackzampolin/syncbridge/internal/fuzzy"
	"github.com/jackzampolin/syncbridge/internal/jobctl"
	"github.com/jackzampolin/syncbridge/internal/recon"
	"github.com/jackzampolin/syncbridge/internal/sources"
	"github.com/jackzampolin/syncbridge/internal/store"
	"github.com/jackzampolin/syncbridge/internal/transcript"
)

// --- minimal adapters, counting calls instead of modeling full behavior ---

type countingAB struct {
	calls atomic.Int64
}

func (a *countingAB) GetProgress(_ context.Context, _ string) (float64, error) {
	a.calls.Add(1)
	return 0, nil
}
func (a *countingAB) UpdateProgress(_ context.Context, _ string, _ float64) error { return nil }

type noopES struct{}

func (noopES) GetProgress(_ context.Context, _ string) (float64, error) { return 0, nil }
func (noopES) UpdateProgress(_ context.Context, _ string, _ float64, _ string) error {
	return nil
}

type noopRA struct{}

func (noopRA) GetProgress(_ context.Context, _ string) (sources.RAPosition, error) {
	return sources.RAPosition{}, nil
}
func (noopRA) GetProgressWithAnchor(_ context.Context, _ string) (sources.RAAnchoredPosition, error) {
	return sources.RAAnchoredPosition{}, nil
}
func (noopRA) UpdateProgress(_ context.Context, _ string, _ float64, _ int64) (bool, error) {
	return true, nil
}

type countingAudioSource struct {
	calls atomic.Int64
}

func (a *countingAudioSource) ListAudioFiles(_ context.Context, _ string) ([]string, error) {
	a.calls.Add(1)
	return nil, errors.New("no audio backend wired in this test")
}

type noopTranscriber struct{}

func (noopTranscriber) Transcribe(_ context.Context, mappingID string, _ []string) (*transcript.Artifact, error) {
	return &transcript.Artifact{MappingID: mappingID}, nil
}

func writeMinimalEPUB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create epub: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	files := map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`,
		"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest><item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="ch1"/></spine>
</package>`,
		"OEBPS/ch1.xhtml": `<html xmlns="http://www.w3.org/1999/xhtml"><body><p id="p1">Hello world.</p></body></html>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return path
}

func TestScheduler_TicksBothLoopsRepeatedly(t *testing.T) {
	dir := t.TempDir()
	ps, err := store.Open(filepath.Join(dir, "mappings.json"), filepath.Join(dir, "states.json"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	epubPath := writeMinimalEPUB(t)

	reconcileMapping := store.Mapping{ABID: "ab-reconcile", ESDocID: "doc-1", EbookFile: epubPath, ABTitle: "Reconcile"}
	if err := ps.AddMapping(reconcileMapping); err != nil {
		t.Fatalf("failed to add reconcile mapping: %v", err)
	}
	if err := ps.SetStatus("ab-reconcile", store.StatusActive); err != nil {
		t.Fatalf("failed to activate reconcile mapping: %v", err)
	}

	jobMapping := store.Mapping{ABID: "ab-job", ESDocID: "doc-2", EbookFile: epubPath, ABTitle: "Job"}
	if err := ps.AddMapping(jobMapping); err != nil {
		t.Fatalf("failed to add job mapping: %v", err)
	}
	if err := ps.SetStatus("ab-job", store.StatusPending); err != nil {
		t.Fatalf("failed to mark job mapping pending: %v", err)
	}

	transcr := transcript.NewRegistry(func(mappingID string) string {
		return filepath.Join(dir, "transcript-"+mappingID+".json")
	})
	ebooks := ebook.NewRegistry(func(hash string) string {
		return filepath.Join(dir, "ebook-"+hash+".json")
	})
	if err := ps.SetTranscriptRef("ab-reconcile", "ab-reconcile"); err != nil {
		t.Fatalf("failed to set transcript ref: %v", err)
	}
	if err := transcr.Save(&transcript.Artifact{MappingID: "ab-reconcile"}); err != nil {
		t.Fatalf("failed to save transcript: %v", err)
	}

	ab := &countingAB{}
	engine := recon.New(recon.Bundle{
		AB: ab, ES: noopES{}, RA: noopRA{},
		Transcripts: transcr, Ebooks: ebooks, Store: ps,
		Matcher: fuzzy.New(fuzzy.DefaultThreshold),
		Thresholds: config.SyncConfig{
			DeltaABSeconds: 60, DeltaESPercent: 1, DeltaESWords: 400,
		},
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})

	audio := &countingAudioSource{}
	jobs := &jobctl.Controller{
		Store: ps, Audio: audio, Transcriber: noopTranscriber{},
		Transcripts: transcr, Ebooks: ebooks,
	}

	sched := &Scheduler{
		Engine:            engine,
		Jobs:              jobs,
		ReconcileInterval: 15 * time.Millisecond,
		JobCheckInterval:  15 * time.Millisecond,
		Logger:            slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	<-done

	if ab.calls.Load() < 2 {
		t.Errorf("expected the reconcile loop to tick more than once, got %d calls", ab.calls.Load())
	}
	if audio.calls.Load() < 2 {
		t.Errorf("expected the job loop to tick more than once, got %d calls", audio.calls.Load())
	}
}

func TestScheduler_SkipsOverlappingReconcileTick(t *testing.T) {
	dir := t.TempDir()
	ps, err := store.Open(filepath.Join(dir, "mappings.json"), filepath.Join(dir, "states.json"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	epubPath := writeMinimalEPUB(t)

	m := store.Mapping{ABID: "ab-1", ESDocID: "doc-1", EbookFile: epubPath, ABTitle: "Test"}
	if err := ps.AddMapping(m); err != nil {
		t.Fatalf("failed to add mapping: %v", err)
	}
	if err := ps.SetStatus("ab-1", store.StatusActive); err != nil {
		t.Fatalf("failed to activate mapping: %v", err)
	}

	transcr := transcript.NewRegistry(func(mappingID string) string {
		return filepath.Join(dir, "transcript-"+mappingID+".json")
	})
	ebooks := ebook.NewRegistry(func(hash string) string {
		return filepath.Join(dir, "ebook-"+hash+".json")
	})
	if err := ps.SetTranscriptRef("ab-1", "ab-1"); err != nil {
		t.Fatalf("failed to set transcript ref: %v", err)
	}
	if err := transcr.Save(&transcript.Artifact{MappingID: "ab-1"}); err != nil {
		t.Fatalf("failed to save transcript: %v", err)
	}

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocking := &blockingAB{started: started, release: release}

	engine := recon.New(recon.Bundle{
		AB: blocking, ES: noopES{}, RA: noopRA{},
		Transcripts: transcr, Ebooks: ebooks, Store: ps,
		Matcher: fuzzy.New(fuzzy.DefaultThreshold),
		Thresholds: config.SyncConfig{
			DeltaABSeconds: 60, DeltaESPercent: 1, DeltaESWords: 400,
		},
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})

	sched := &Scheduler{
		Engine:            engine,
		Jobs:              &jobctl.Controller{Store: ps, Audio: &countingAudioSource{}, Transcriber: noopTranscriber{}, Transcripts: transcr, Ebooks: ebooks},
		ReconcileInterval: 10 * time.Millisecond,
		JobCheckInterval:  time.Hour,
		Logger:            slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first reconcile tick never started")
	}

	// While the first cycle is blocked mid-flight, several more ticks fire;
	// all of them must be skipped rather than stacking up concurrent cycles.
	time.Sleep(60 * time.Millisecond)
	if got := blocking.calls.Load(); got != 1 {
		t.Errorf("expected exactly one in-flight call while blocked, got %d", got)
	}

	close(release)
	cancel()
}

type blockingAB struct {
	calls   atomic.Int64
	started chan struct{}
	release chan struct{}
}

func (b *blockingAB) GetProgress(_ context.Context, _ string) (float64, error) {
	b.calls.Add(1)
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return 0, nil
}
func (b *blockingAB) UpdateProgress(_ context.Context, _ string, _ float64) error { return nil }
