// Package recon implements ReconciliationEngine: the per-cycle three-way
// diff between AB, ES, and RA, conflict resolution, the regression guard,
// and translation/propagation via the transcript and ebook indices.
package recon

import (
	"log/slog"
	"time"

	"github.com/jackzampolin/syncbridge/internal/config"
	"github.com/jackzampolin/syncbridge/internal/ebook"
	"github.com/jackzampolin/syncbridge/internal/fuzzy"
	"github.com/jackzampolin/syncbridge/internal/sources"
	"github.com/jackzampolin/syncbridge/internal/store"
	"github.com/jackzampolin/syncbridge/internal/transcript"
)

// regressionThreshold is Δ_regress. Unlike the other thresholds it has no
// corresponding environment variable, so it is not part of config.SyncConfig.
const regressionThreshold = 0.05

// Bundle is the injected set of capability-objects the engine operates
// over. Nothing here is process-wide state: every field is owned by
// whoever constructs the Bundle, replacing the source's three global
// adapter singletons.
type Bundle struct {
	AB sources.ABAdapter
	ES sources.ESAdapter
	RA sources.RAAdapter

	Transcripts *transcript.Registry
	Ebooks      *ebook.Registry
	Store       *store.ProgressStore
	Matcher     *fuzzy.Matcher

	Thresholds config.SyncConfig
	Logger     *slog.Logger

	// Now returns the current time. Overridable in tests.
	Now func() time.Time
}

func (b Bundle) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b Bundle) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
