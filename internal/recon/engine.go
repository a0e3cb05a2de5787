package recon

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/jackzampolin/syncbridge/internal/store"
	"github.com/jackzampolin/syncbridge/internal/syncerr"
)

// Engine runs reconciliation cycles over a Bundle's mappings. Different
// mappings may reconcile concurrently; a per-mapping exclusion lock (spec
// §5) prevents two cycles from interleaving on the same ab_id.
type Engine struct {
	bundle Bundle

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an Engine over bundle.
func New(bundle Bundle) *Engine {
	return &Engine{bundle: bundle, locks: make(map[string]*sync.Mutex)}
}

func (e *Engine) lockFor(abID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	l, ok := e.locks[abID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[abID] = l
	}
	return l
}

// Cycle reconciles every active mapping, processed sequentially over a
// snapshot of the mapping list. Per-mapping errors never
// abort the cycle for other mappings.
func (e *Engine) Cycle(ctx context.Context) CycleResult {
	mappings := e.bundle.Store.ListMappings()

	var result CycleResult
	for _, m := range mappings {
		if m.Status != store.StatusActive {
			continue
		}

		lock := e.lockFor(m.ABID)
		lock.Lock()
		r := e.reconcileOne(ctx, m)
		lock.Unlock()

		result.Results = append(result.Results, r)
	}
	return result
}

// reconcileOne runs the collect → prior → deltas → absorb →
// regression-guard → source-selection → translate → propagate → persist
// pipeline for a single mapping.
func (e *Engine) reconcileOne(ctx context.Context, m store.Mapping) MappingResult {
	log := e.bundle.logger().With("ab_id", m.ABID, "ab_title", m.ABTitle)

	transcriptArt, found, err := e.bundle.Transcripts.Open(m.TranscriptRef)
	if err != nil {
		log.Error("failed to open transcript artifact", "err", err)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
	}
	if !found {
		if serr := e.bundle.Store.SetStatus(m.ABID, store.StatusPendingTranscript); serr != nil {
			log.Error("failed to downgrade mapping to pending_transcript", "err", serr)
		}
		return MappingResult{ABID: m.ABID, Outcome: OutcomePendingArtifact}
	}

	ebookIdx, err := e.bundle.Ebooks.Open(m.EbookFile)
	if err != nil {
		wrapped := syncerr.New(syncerr.KindMissingArtifact, "failed to open ebook index", err)
		log.Error("failed to open ebook index", "err", wrapped)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: wrapped}
	}

	// Step 1: collect.
	abS, err := e.bundle.AB.GetProgress(ctx, m.ABID)
	if err != nil {
		log.Error("AB read failed", "err", err)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
	}
	esF, err := e.bundle.ES.GetProgress(ctx, m.ESDocID)
	if err != nil {
		log.Error("ES read failed", "err", err)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
	}
	raPos, err := e.bundle.RA.GetProgress(ctx, m.EbookFile)
	if err != nil {
		log.Error("RA read failed", "err", err)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
	}
	raF := raPos.Fraction

	// Step 2: prior.
	prior := e.bundle.Store.GetState(m.ABID)
	working := prior

	// Step 3: deltas & thresholds.
	dAB := math.Abs(abS - prior.ABSeconds)
	dES := math.Abs(esF - prior.ESFraction)
	dRA := math.Abs(raF - prior.RAFraction)

	abChanged := dAB > float64(e.bundle.Thresholds.DeltaABSeconds)
	esChanged := dES > e.bundle.Thresholds.DeltaESFraction()
	raChanged := dRA > e.bundle.Thresholds.DeltaESFraction()

	// Step 4: sub-threshold drift absorption.
	absorbed := false
	if dAB > 0 && !abChanged {
		working.ABSeconds = abS
		absorbed = true
	}
	if dES > 0 && !esChanged {
		charDelta := ebookIdx.CharDelta(prior.ESFraction, esF)
		if charDelta < 0 {
			charDelta = -charDelta
		}
		if charDelta > e.bundle.Thresholds.DeltaCharWords() {
			esChanged = true
		} else {
			working.ESFraction = esF
			working.ESCharCursor = 0
			absorbed = true
		}
	}
	if dRA > 0 && !raChanged {
		working.RAFraction = raF
		absorbed = true
	}

	if !abChanged && !esChanged && !raChanged {
		if absorbed {
			if err := e.bundle.Store.PutState(m.ABID, working, e.bundle.now()); err != nil {
				log.Error("failed to persist absorbed state", "err", err)
				return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
			}
			return MappingResult{ABID: m.ABID, Outcome: OutcomeAbsorbed}
		}
		return MappingResult{ABID: m.ABID, Outcome: OutcomeNoChange}
	}

	log.Info("change detected",
		"ab_prior", prior.ABSeconds, "ab_now", abS,
		"es_prior", prior.ESFraction, "es_now", esF,
		"ra_prior", prior.RAFraction, "ra_now", raF)

	// Step 6: regression guard.
	if regressed(abChanged, abS, prior.ABSeconds, true) ||
		regressed(esChanged, esF, prior.ESFraction, false) ||
		regressed(raChanged, raF, prior.RAFraction, false) {
		snap := store.ReconState{ABSeconds: abS, ESFraction: esF, RAFraction: raF, ESCharCursor: working.ESCharCursor}
		if err := e.bundle.Store.PutState(m.ABID, snap, e.bundle.now()); err != nil {
			log.Error("failed to persist regression snap", "err", err)
			return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
		}
		log.Warn("regression detected, blocking propagation")
		return MappingResult{ABID: m.ABID, Outcome: OutcomeRegression}
	}

	// Step 7: source selection (priority AB > ES > RA).
	numChanged := 0
	for _, c := range []bool{abChanged, esChanged, raChanged} {
		if c {
			numChanged++
		}
	}
	conflict := numChanged > 1
	source := "RA"
	switch {
	case abChanged:
		source = "AB"
	case esChanged:
		source = "ES"
	}
	if conflict {
		log.Warn("conflict: multiple sources changed", "chosen_source", source, "n", numChanged)
	}

	// Step 8: translate and propagate.
	switch source {
	case "AB":
		return e.propagateFromAB(ctx, m, transcriptArt, ebookIdx, abS, working, conflict, log)
	case "ES":
		return e.propagateFromES(ctx, m, transcriptArt, ebookIdx, esF, working, conflict, log)
	default:
		return e.propagateFromRA(ctx, m, transcriptArt, ebookIdx, raF, working, conflict, log)
	}
}

// regressed reports whether a changed source moved backwards past
// regressionThreshold. ab uses a relative percentage of
// the prior value (spec's original "estimate book length from current
// position"); es and ra are already fractions, so the threshold applies
// directly.
func regressed(changed bool, now, prior float64, isAB bool) bool {
	if !changed || now >= prior {
		return false
	}
	amount := prior - now
	if isAB {
		if prior <= 0 {
			return false
		}
		return amount/prior > regressionThreshold
	}
	return amount > regressionThreshold
}

func (e *Engine) snapToPresent(m store.Mapping, abS, esF, raF float64, cursor int, outcome Outcome, log *slog.Logger) MappingResult {
	snap := store.ReconState{ABSeconds: abS, ESFraction: esF, RAFraction: raF, ESCharCursor: cursor}
	if err := e.bundle.Store.PutState(m.ABID, snap, e.bundle.now()); err != nil {
		log.Error("failed to persist snap-to-present state", "err", err)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
	}
	return MappingResult{ABID: m.ABID, Outcome: outcome}
}
