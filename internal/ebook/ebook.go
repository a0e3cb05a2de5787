// Package ebook implements EbookIndex: a position-indexed linearization of
// an EPUB's text, with locator-based fragment lookup and fuzzy relocation
// support for ES's fraction-plus-locator progress values.
package ebook

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackzampolin/syncbridge/internal/atomicfile"
	"github.com/jackzampolin/syncbridge/internal/fuzzy"
)

const (
	minWindowChars = 800
	maxWindowChars = 2000
)

// Locator identifies a position in the ebook by sub-document and nearest
// enclosing element id, the same shape RA's media-overlay fragments use.
type Locator struct {
	DocPath   string `json:"doc_path"`
	ElementID string `json:"element_id"`
}

// Index is the built EbookIndex for one (ebook_file, content_hash) pair. It
// is immutable once built and safe for concurrent reads.
type Index struct {
	ContentHash string  `json:"content_hash"`
	FullText    string  `json:"full_text"`
	Blocks      []block `json:"blocks"`
}

// Build opens filePath as an EPUB container, linearizes its spine documents
// in reading order, and returns the resulting Index.
func Build(filePath string) (*Index, error) {
	hash, err := contentHash(filePath)
	if err != nil {
		return nil, err
	}

	c, err := openContainer(filePath)
	if err != nil {
		return nil, err
	}
	defer c.close()

	var allBlocks []block
	var fullText strings.Builder
	for _, docPath := range c.spine {
		f, err := c.open(docPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open spine document %s: %w", docPath, err)
		}
		blocks, err := linearizeDoc(f, docPath)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse spine document %s: %w", docPath, err)
		}

		for _, bl := range blocks {
			if fullText.Len() > 0 {
				fullText.WriteByte(' ')
			}
			bl.CharOffset = len([]rune(fullText.String()))
			fullText.WriteString(bl.Text)
			allBlocks = append(allBlocks, bl)
		}
	}

	return &Index{ContentHash: hash, FullText: fullText.String(), Blocks: allBlocks}, nil
}

// Len returns L, the total rune length of the linearized text.
func (idx *Index) Len() int {
	return len([]rune(idx.FullText))
}

// TextAtFraction returns an 800-2000 character window of text centered on
// position floor(p*L), extended to end on a sentence boundary, or ("",
// false) if the index is empty.
func (idx *Index) TextAtFraction(p float64) (string, bool) {
	runes := []rune(idx.FullText)
	L := len(runes)
	if L == 0 {
		return "", false
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	center := int(p * float64(L))
	if center >= L {
		center = L - 1
	}

	half := minWindowChars / 2
	start := center - half
	end := center + half
	if start < 0 {
		start = 0
	}
	if end > L {
		end = L
	}

	end = extendToSentenceBoundary(runes, end, min(L, start+maxWindowChars))

	return strings.TrimSpace(string(runes[start:end])), true
}

func extendToSentenceBoundary(runes []rune, from, limit int) int {
	for i := from; i < limit; i++ {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			return i + 1
		}
	}
	return limit
}

// Locate finds the best fuzzy occurrence of q in the linearized text and
// returns the fraction of its midpoint, the Locator of the block holding
// its first rune, and the rune offset where it starts. Returns ok=false
// below the matcher's threshold.
func (idx *Index) Locate(q string, matcher *fuzzy.Matcher) (fraction float64, loc Locator, charOffset int, ok bool) {
	L := idx.Len()
	if L == 0 {
		return 0, Locator{}, 0, false
	}

	match, found := matcher.Find(q, idx.FullText)
	if !found {
		return 0, Locator{}, 0, false
	}

	midpoint := match.Offset + match.Length/2
	bl := idx.blockAtOffset(match.Offset)

	fraction = float64(midpoint) / float64(L)
	return fraction, Locator{DocPath: bl.DocPath, ElementID: bl.ElementID}, match.Offset, true
}

// CharDelta returns the signed difference in character offsets between two
// fractional positions.
func (idx *Index) CharDelta(p1, p2 float64) int {
	L := idx.Len()
	return int(p2*float64(L)) - int(p1*float64(L))
}

// FragmentText returns the concatenated text of every block tagged with
// fragmentID (or with locator's element id when fragmentID is empty) within
// locator's document, the Go equivalent of recovering a read-along fragment
// by its anchor id. Returns ("", false) if no block matches.
func (idx *Index) FragmentText(locator Locator, fragmentID string) (string, bool) {
	id := fragmentID
	if id == "" {
		id = locator.ElementID
	}

	var parts []string
	for _, bl := range idx.Blocks {
		if bl.DocPath == locator.DocPath && bl.ElementID == id {
			parts = append(parts, bl.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

func (idx *Index) blockAtOffset(offset int) block {
	i := sort.Search(len(idx.Blocks), func(i int) bool { return idx.Blocks[i].CharOffset > offset }) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(idx.Blocks) {
		i = len(idx.Blocks) - 1
	}
	return idx.Blocks[i]
}

// Registry builds and caches Index values keyed by content hash, backed by
// a file cache so repeated runs against the same ebook file skip
// re-parsing the EPUB.
type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*Index
	pathFor func(contentHash string) string
}

// NewRegistry creates a Registry that resolves cache file paths with pathFor.
func NewRegistry(pathFor func(contentHash string) string) *Registry {
	return &Registry{
		indexes: make(map[string]*Index),
		pathFor: pathFor,
	}
}

// Open returns the Index for filePath, using the in-memory and on-disk
// caches before falling back to Build.
func (r *Registry) Open(filePath string) (*Index, error) {
	hash, err := contentHash(filePath)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if idx, ok := r.indexes[hash]; ok {
		r.mu.RUnlock()
		return idx, nil
	}
	r.mu.RUnlock()

	var cached Index
	found, err := atomicfile.ReadJSON(r.pathFor(hash), &cached)
	if err != nil {
		return nil, fmt.Errorf("failed to read ebook index cache for %s: %w", filePath, err)
	}
	if found {
		r.mu.Lock()
		r.indexes[hash] = &cached
		r.mu.Unlock()
		return &cached, nil
	}

	idx, err := Build(filePath)
	if err != nil {
		return nil, err
	}
	if err := atomicfile.WriteJSON(r.pathFor(idx.ContentHash), idx); err != nil {
		return nil, fmt.Errorf("failed to write ebook index cache for %s: %w", filePath, err)
	}

	r.mu.Lock()
	r.indexes[idx.ContentHash] = idx
	r.mu.Unlock()

	return idx, nil
}
