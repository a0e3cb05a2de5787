// Package fuzzy implements the sliding-window approximate string search
// used by TranscriptIndex.time_for_text and EbookIndex.locate.
package fuzzy

import (
	"math"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/xrash/smetrics"

	"github.com/jackzampolin/syncbridge/internal/textnorm"
)

const (
	// DefaultThreshold is the default acceptance score.
	DefaultThreshold = 0.70

	// windowLo/windowHi bound the scanned window lengths as a fraction of
	// the query length.
	windowLo = 0.8
	windowHi = 1.25

	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

// Match is a single accepted window into the target text.
type Match struct {
	Offset int     // rune offset into target where the window starts
	Length int     // length of the window, in runes of target
	Score  float64 // mean of the two underlying similarity metrics
}

// Matcher performs sliding-window fuzzy search with a configurable
// acceptance threshold.
type Matcher struct {
	threshold float64
}

// New creates a Matcher with the given acceptance threshold. threshold <= 0
// uses DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Find scans target for the best window matching query. Returns ok=false
// (the fail-closed ∅ spec requires) if no window meets the acceptance
// threshold, rather than returning the best-available bad match.
func (m *Matcher) Find(query, target string) (Match, bool) {
	nq := textnorm.Normalize(query)
	var nt []rune
	var origin []int // origin[k] is the index of the target rune nt[k] came from
	for i, r := range []rune(target) {
		piece := []rune(textnorm.Normalize(string(r)))
		if len(piece) == 0 && unicode.IsSpace(r) && len(nt) > 0 && nt[len(nt)-1] != ' ' {
			piece = []rune{' '}
		}
		for _, p := range piece {
			nt, origin = append(nt, p), append(origin, i)
		}
	}
	qRunes := []rune(nq)
	n := len(qRunes)
	if n == 0 || len(nt) == 0 {
		return Match{}, false
	}

	lo := int(math.Floor(float64(n) * windowLo))
	hi := int(math.Ceil(float64(n) * windowHi))
	if lo < 1 {
		lo = 1
	}
	if hi > len(nt) {
		hi = len(nt)
	}

	best := Match{Score: -1}
	found := false

	for windowLen := lo; windowLen <= hi; windowLen++ {
		for start := 0; start+windowLen <= len(nt); start++ {
			candidate := string(nt[start : start+windowLen])
			score := m.score(nq, candidate)
			if score > best.Score {
				best = Match{Offset: start, Length: windowLen, Score: score}
				found = true
			}
		}
	}

	if !found || best.Score < m.threshold {
		return Match{}, false
	}
	end := origin[best.Offset+best.Length-1] + 1
	best.Offset = origin[best.Offset]
	best.Length = end - best.Offset
	return best, true
}

// score is the mean of go-edlib's normalized Jaro-Winkler similarity and
// xrash/smetrics's Jaro-Winkler similarity, both computed over text already
// normalized by internal/textnorm so ASR-style punctuation substitutions
// never move the score.
func (m *Matcher) score(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	edlibScore, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	var s1 float64
	if err == nil {
		s1 = float64(edlibScore)
	}

	s2 := smetrics.JaroWinkler(a, b, jaroWinklerBoostThreshold, jaroWinklerPrefixSize)

	return (s1 + s2) / 2
}
