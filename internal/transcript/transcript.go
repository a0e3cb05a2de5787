// Package transcript implements TranscriptIndex: a time-ordered, file-backed
// index of recognized speech, one artifact per mapping.
package transcript

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jackzampolin/syncbridge/internal/atomicfile"
	"github.com/jackzampolin/syncbridge/internal/fuzzy"
)

// Segment is one interval of recognized text.
type Segment struct {
	TStart float64 `json:"t_start"`
	TEnd   float64 `json:"t_end"`
	Text   string  `json:"text"`
}

// Artifact is the persisted TranscriptIndex for one mapping. It is built
// once by the Transcriber collaborator and treated as read-only by the
// core thereafter.
type Artifact struct {
	MappingID string    `json:"mapping_id"`
	Segments  []Segment `json:"segments"`
}

// Duration returns T, the max t_end across all segments.
func (a *Artifact) Duration() float64 {
	var t float64
	for _, s := range a.Segments {
		if s.TEnd > t {
			t = s.TEnd
		}
	}
	return t
}

// TextAtTime returns the text of the segment whose interval contains t, the
// nearest segment if t falls in a silence gap, the first segment if t < 0,
// or the last segment if t exceeds the transcript's duration.
// Returns ("", false) only when the artifact has no segments at all.
func (a *Artifact) TextAtTime(t float64) (string, bool) {
	if len(a.Segments) == 0 {
		return "", false
	}
	if t < 0 {
		return a.Segments[0].Text, true
	}
	if t > a.Duration() {
		return a.Segments[len(a.Segments)-1].Text, true
	}

	for _, s := range a.Segments {
		if t >= s.TStart && t <= s.TEnd {
			return s.Text, true
		}
	}

	// t fell in a silence gap: return the nearest segment by boundary
	// distance.
	best := a.Segments[0]
	bestDist := math.Abs(t - best.TStart)
	for _, s := range a.Segments {
		d := math.Abs(t - s.TStart)
		if t > s.TEnd {
			d = t - s.TEnd
		}
		if d < bestDist {
			bestDist = d
			best = s
		}
	}
	return best.Text, true
}

// TimeForText locates the best fuzzy occurrence of q among the concatenated
// segment texts and returns the t_start of the segment containing the
// match's midpoint. Ties are broken by earliest position since
// the scan is left-to-right and the matcher keeps the first best score.
func (a *Artifact) TimeForText(q string, matcher *fuzzy.Matcher) (float64, bool) {
	if len(a.Segments) == 0 {
		return 0, false
	}

	var concatenated string
	boundaries := make([]int, 0, len(a.Segments)+1)
	boundaries = append(boundaries, 0)
	for _, s := range a.Segments {
		concatenated += s.Text + " "
		boundaries = append(boundaries, len([]rune(concatenated)))
	}

	match, ok := matcher.Find(q, concatenated)
	if !ok {
		return 0, false
	}

	midpoint := match.Offset + match.Length/2
	idx := sort.Search(len(boundaries), func(i int) bool { return boundaries[i] > midpoint }) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(a.Segments) {
		idx = len(a.Segments) - 1
	}
	return a.Segments[idx].TStart, true
}

// Registry loads and caches Artifact files by mapping id, keyed by the
// path the caller supplies (typically home.Dir.TranscriptPath).
type Registry struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
	pathFor   func(mappingID string) string
}

// NewRegistry creates a Registry that resolves artifact paths with pathFor.
func NewRegistry(pathFor func(mappingID string) string) *Registry {
	return &Registry{
		artifacts: make(map[string]*Artifact),
		pathFor:   pathFor,
	}
}

// Open returns the Artifact for mappingID, loading it from disk on first
// access. Returns ok=false if no artifact file exists yet.
func (r *Registry) Open(mappingID string) (*Artifact, bool, error) {
	r.mu.RLock()
	if a, ok := r.artifacts[mappingID]; ok {
		r.mu.RUnlock()
		return a, true, nil
	}
	r.mu.RUnlock()

	var a Artifact
	found, err := atomicfile.ReadJSON(r.pathFor(mappingID), &a)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load transcript for %s: %w", mappingID, err)
	}
	if !found {
		return nil, false, nil
	}

	r.mu.Lock()
	r.artifacts[mappingID] = &a
	r.mu.Unlock()

	return &a, true, nil
}

// Save persists the artifact and updates the in-memory cache. Idempotent
// per mapping id: re-running overwrites the same file rather than
// appending (spec's TranscriptIndex contract via the Transcriber
// collaborator).
func (r *Registry) Save(a *Artifact) error {
	if err := atomicfile.WriteJSON(r.pathFor(a.MappingID), a); err != nil {
		return fmt.Errorf("failed to save transcript for %s: %w", a.MappingID, err)
	}

	r.mu.Lock()
	r.artifacts[a.MappingID] = a
	r.mu.Unlock()
	return nil
}

// Invalidate drops mappingID's cached artifact so the next Open re-reads
// from disk.
func (r *Registry) Invalidate(mappingID string) {
	r.mu.Lock()
	delete(r.artifacts, mappingID)
	r.mu.Unlock()
}
