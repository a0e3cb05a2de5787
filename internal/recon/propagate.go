package recon

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/syncbridge/internal/ebook"
	"github.com/jackzampolin/syncbridge/internal/store"
	"github.com/jackzampolin/syncbridge/internal/transcript"
)

// propagateFromAB handles the "AB wins" case: locate ab_s in
// the transcript, translate to an ebook fraction, write ES and RA.
func (e *Engine) propagateFromAB(
	ctx context.Context, m store.Mapping,
	art *transcript.Artifact, idx *ebook.Index,
	abS float64, working store.ReconState, conflict bool, log *slog.Logger,
) MappingResult {
	q, ok := art.TextAtTime(abS)
	if !ok {
		log.Info("untranslatable: no transcript text at AB position")
		return e.snapToPresent(m, abS, working.ESFraction, working.RAFraction, working.ESCharCursor, OutcomeUntranslatable, log)
	}

	p, loc, off, ok := idx.Locate(q, e.bundle.Matcher)
	if !ok {
		log.Info("untranslatable: AB text did not match ebook")
		return e.snapToPresent(m, abS, working.ESFraction, working.RAFraction, working.ESCharCursor, OutcomeUntranslatable, log)
	}

	if err := e.bundle.ES.UpdateProgress(ctx, m.ESDocID, p, encodeLocator(loc)); err != nil {
		log.Error("ES write failed", "err", err)
	}
	raOK, err := e.bundle.RA.UpdateProgress(ctx, m.EbookFile, p, int64(e.bundle.now().Unix()))
	if err != nil {
		log.Error("RA write failed", "err", err)
		raOK = false
	}

	newRA := working.RAFraction
	if raOK {
		newRA = p
	}
	state := store.ReconState{ABSeconds: abS, ESFraction: p, RAFraction: newRA, ESCharCursor: off}
	if err := e.bundle.Store.PutState(m.ABID, state, e.bundle.now()); err != nil {
		log.Error("failed to persist propagated state", "err", err)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
	}

	log.Info("propagated from AB", "es_fraction", p, "locator", loc, "ra_ok", raOK)
	return MappingResult{ABID: m.ABID, Outcome: OutcomePropagated, Source: "AB", Conflict: conflict, RAWriteOK: raOK}
}

// propagateFromES handles the "ES wins" case: locate es_f in
// the ebook, translate to an AB timestamp, write AB and RA.
func (e *Engine) propagateFromES(
	ctx context.Context, m store.Mapping,
	art *transcript.Artifact, idx *ebook.Index,
	esF float64, working store.ReconState, conflict bool, log *slog.Logger,
) MappingResult {
	q, ok := idx.TextAtFraction(esF)
	if !ok {
		log.Info("untranslatable: no ebook text at ES fraction")
		return e.snapToPresent(m, working.ABSeconds, esF, working.RAFraction, working.ESCharCursor, OutcomeUntranslatable, log)
	}

	t, ok := art.TimeForText(q, e.bundle.Matcher)
	if !ok {
		log.Info("untranslatable: ES text did not match transcript")
		return e.snapToPresent(m, working.ABSeconds, esF, working.RAFraction, working.ESCharCursor, OutcomeUntranslatable, log)
	}

	if err := e.bundle.AB.UpdateProgress(ctx, m.ABID, t); err != nil {
		log.Error("AB write failed", "err", err)
	}
	raOK, err := e.bundle.RA.UpdateProgress(ctx, m.EbookFile, esF, int64(e.bundle.now().Unix()))
	if err != nil {
		log.Error("RA write failed", "err", err)
		raOK = false
	}

	newRA := working.RAFraction
	if raOK {
		newRA = esF
	}
	state := store.ReconState{ABSeconds: t, ESFraction: esF, RAFraction: newRA, ESCharCursor: working.ESCharCursor}
	if err := e.bundle.Store.PutState(m.ABID, state, e.bundle.now()); err != nil {
		log.Error("failed to persist propagated state", "err", err)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
	}

	log.Info("propagated from ES", "ab_seconds", t, "ra_ok", raOK)
	return MappingResult{ABID: m.ABID, Outcome: OutcomePropagated, Source: "ES", Conflict: conflict, RAWriteOK: raOK}
}

// propagateFromRA handles the "RA wins" case: prefer RA's
// precise fragment anchor over a fraction-based lookup, translate to an
// AB timestamp, write AB and ES.
func (e *Engine) propagateFromRA(
	ctx context.Context, m store.Mapping,
	art *transcript.Artifact, idx *ebook.Index,
	raF float64, working store.ReconState, conflict bool, log *slog.Logger,
) MappingResult {
	var q string
	var ok bool

	anchored, err := e.bundle.RA.GetProgressWithAnchor(ctx, m.EbookFile)
	if err != nil {
		log.Error("RA anchor read failed", "err", err)
	} else if anchored.Locator != "" && anchored.FragmentID != "" {
		q, ok = idx.FragmentText(ebook.Locator{DocPath: anchored.Locator}, anchored.FragmentID)
		if ok {
			log.Info("using precise fragment-based text extraction")
		}
	}

	if !ok {
		q, ok = idx.TextAtFraction(raF)
	}
	if !ok {
		log.Info("untranslatable: no ebook text at RA fraction")
		return e.snapToPresent(m, working.ABSeconds, working.ESFraction, raF, working.ESCharCursor, OutcomeUntranslatable, log)
	}

	t, ok := art.TimeForText(q, e.bundle.Matcher)
	if !ok {
		log.Info("untranslatable: RA text did not match transcript")
		return e.snapToPresent(m, working.ABSeconds, working.ESFraction, raF, working.ESCharCursor, OutcomeUntranslatable, log)
	}

	if err := e.bundle.AB.UpdateProgress(ctx, m.ABID, t); err != nil {
		log.Error("AB write failed", "err", err)
	}

	esLocator := ""
	cursor := working.ESCharCursor
	if _, loc, off, locOK := idx.Locate(q, e.bundle.Matcher); locOK {
		esLocator = encodeLocator(loc)
		cursor = off
	}
	if err := e.bundle.ES.UpdateProgress(ctx, m.ESDocID, raF, esLocator); err != nil {
		log.Error("ES write failed", "err", err)
	}

	state := store.ReconState{ABSeconds: t, ESFraction: raF, RAFraction: raF, ESCharCursor: cursor}
	if err := e.bundle.Store.PutState(m.ABID, state, e.bundle.now()); err != nil {
		log.Error("failed to persist propagated state", "err", err)
		return MappingResult{ABID: m.ABID, Outcome: OutcomeError, Err: err}
	}

	log.Info("propagated from RA", "ab_seconds", t, "es_locator", esLocator)
	return MappingResult{ABID: m.ABID, Outcome: OutcomePropagated, Source: "RA", Conflict: conflict}
}
