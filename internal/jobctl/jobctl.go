// Package jobctl implements JobController: the mapping lifecycle state
// machine that takes a freshly added mapping through transcription and
// ebook priming before the reconciliation engine ever sees it.
package jobctl

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jackzampolin/syncbridge/internal/ebook"
	"github.com/jackzampolin/syncbridge/internal/store"
	"github.com/jackzampolin/syncbridge/internal/transcript"
)

var errNoAudioFiles = errors.New("jobctl: no audio files found for mapping")

// AudioSource lists the audio files backing an audiobook, the one piece of
// plumbing the "pending" workflow needs from AB beyond its narrow
// SourceAdapters progress contract.
type AudioSource interface {
	ListAudioFiles(ctx context.Context, abID string) ([]string, error)
}

// Transcriber produces a TranscriptIndex artifact for a mapping from its
// audio files, addressable afterward by transcript_ref. Implementations
// must be idempotent per mapping id.
type Transcriber interface {
	Transcribe(ctx context.Context, mappingID string, audioFiles []string) (*transcript.Artifact, error)
}

// jobResult is what a detached transcription goroutine reports back.
type jobResult struct {
	abID string
	art  *transcript.Artifact
	err  error
}

// Controller drives the mapping lifecycle state machine:
//
//	pending ──(has audio)───▶ processing ──(transcribe+index ok)──▶ active
//	   │                             │
//	   │                             └─(exception)──▶ failed_retry ──▶ processing
//	   │
//	pending_transcript ──(transcript file appears)──▶ active
//
// Transcription is detached: entering "processing" launches a goroutine and
// returns immediately, and the result is picked up at the start of the next
// Tick. "crashed" → "active" recovery happens once, at startup, inside
// store.Open; the controller never observes that status.
type Controller struct {
	Store       *store.ProgressStore
	Audio       AudioSource
	Transcriber Transcriber
	Transcripts *transcript.Registry
	Ebooks      *ebook.Registry
	Logger      *slog.Logger

	once    sync.Once
	results chan jobResult
	wg      sync.WaitGroup
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Controller) resultsChan() chan jobResult {
	c.once.Do(func() {
		c.results = make(chan jobResult, 64)
	})
	return c.results
}

// Wait blocks until every in-flight transcription goroutine has reported a
// result. Callers that want a deterministic hand-off (tests, or a graceful
// shutdown path) call Wait between the Tick that launches a job and the
// Tick that drains it; the scheduler's normal ticking does not need to.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Tick drains any finished transcription jobs, then advances every mapping
// not yet in a steady state by one step. The mappings are listed before the
// drain, so a job failure drained here is retried on the next Tick. Called
// at the job-queue check cadence.
func (c *Controller) Tick(ctx context.Context) {
	mappings := c.Store.ListMappings()
	c.drainResults()

	for _, m := range mappings {
		switch m.Status {
		case store.StatusPending, store.StatusFailedRetry:
			c.startTranscription(ctx, m)
		case store.StatusPendingTranscript:
			c.advancePendingTranscript(m)
		}
	}
}

// startTranscription implements the "pending"/"failed_retry" branch: mark
// the mapping processing, then list audio files and transcribe in a
// detached goroutine.
func (c *Controller) startTranscription(ctx context.Context, m store.Mapping) {
	jobID := uuid.New().String()
	log := c.logger().With("ab_id", m.ABID, "ab_title", m.ABTitle, "job_id", jobID)

	if err := c.Store.SetStatus(m.ABID, store.StatusProcessing); err != nil {
		log.Error("failed to mark mapping processing", "err", err)
		return
	}

	results := c.resultsChan()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		audioFiles, err := c.Audio.ListAudioFiles(ctx, m.ABID)
		if err == nil && len(audioFiles) == 0 {
			err = errNoAudioFiles
		}
		if err != nil {
			log.Error("failed to list audio files", "err", err)
			results <- jobResult{abID: m.ABID, err: err}
			return
		}

		log.Info("starting transcription", "audio_files", len(audioFiles))
		art, err := c.Transcriber.Transcribe(ctx, m.ABID, audioFiles)
		results <- jobResult{abID: m.ABID, art: art, err: err}
	}()
}

// drainResults picks up every transcription job that has finished since the
// last Tick and carries it through indexing and activation.
func (c *Controller) drainResults() {
	results := c.resultsChan()
	for {
		select {
		case r := <-results:
			c.handleResult(r)
		default:
			return
		}
	}
}

func (c *Controller) handleResult(r jobResult) {
	log := c.logger().With("ab_id", r.abID)

	if r.err != nil {
		log.Error("transcription job failed", "err", r.err)
		c.failRetry(r.abID, log)
		return
	}

	if err := c.Transcripts.Save(r.art); err != nil {
		log.Error("failed to persist transcript artifact", "err", err)
		c.failRetry(r.abID, log)
		return
	}

	m, ok := c.findMapping(r.abID)
	if !ok {
		log.Warn("mapping removed while transcription was in flight")
		return
	}

	log.Info("priming ebook index")
	if _, err := c.Ebooks.Open(m.EbookFile); err != nil {
		log.Error("failed to prime ebook index", "err", err)
		c.failRetry(r.abID, log)
		return
	}

	if err := c.Store.SetTranscriptRef(r.abID, r.abID); err != nil {
		log.Error("failed to record transcript ref", "err", err)
		c.failRetry(r.abID, log)
		return
	}
	if err := c.Store.SetStatus(r.abID, store.StatusActive); err != nil {
		log.Error("failed to activate mapping", "err", err)
		return
	}
	log.Info("job complete, mapping is now active")
}

func (c *Controller) findMapping(abID string) (store.Mapping, bool) {
	for _, m := range c.Store.ListMappings() {
		if m.ABID == abID {
			return m, true
		}
	}
	return store.Mapping{}, false
}

// advancePendingTranscript implements the "pending_transcript" branch: wait
// for the transcript artifact produced by a side pipeline to appear on
// disk, then activate.
func (c *Controller) advancePendingTranscript(m store.Mapping) {
	log := c.logger().With("ab_id", m.ABID, "ab_title", m.ABTitle)

	_, found, err := c.Transcripts.Open(m.TranscriptRef)
	if err != nil {
		log.Error("failed to check transcript artifact", "err", err)
		return
	}
	if !found {
		return
	}

	log.Info("transcript ready, activating sync")
	if err := c.Store.SetStatus(m.ABID, store.StatusActive); err != nil {
		log.Error("failed to activate mapping", "err", err)
	}
}

func (c *Controller) failRetry(abID string, log *slog.Logger) {
	if err := c.Store.SetStatus(abID, store.StatusFailedRetry); err != nil {
		log.Error("failed to mark mapping failed_retry", "err", err)
	}
}
