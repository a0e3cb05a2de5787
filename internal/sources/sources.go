// Package sources implements the narrow SourceAdapters the reconciliation
// engine reads from and writes to: AB (audiobook seconds), ES (ebook
// fraction + locator), and RA (read-along fraction + optional precise
// anchor).
package sources

import "context"

// ABAdapter is the audiobook progress authority: seconds into the title.
type ABAdapter interface {
	GetProgress(ctx context.Context, abID string) (seconds float64, err error)
	UpdateProgress(ctx context.Context, abID string, seconds float64) error
}

// ESAdapter is the ebook sync authority: a fraction plus a locator anchor.
type ESAdapter interface {
	GetProgress(ctx context.Context, esDocID string) (fraction float64, err error)
	UpdateProgress(ctx context.Context, esDocID string, fraction float64, locator string) error
}

// RAPosition is what RA's plain read returns: a fraction and its own
// cached write timestamp in milliseconds.
type RAPosition struct {
	Fraction    float64
	TimestampMS int64
}

// RAAnchoredPosition additionally carries the precise locator/fragment
// anchor RA may have recorded.
type RAAnchoredPosition struct {
	RAPosition
	Locator    string
	FragmentID string
}

// RAAdapter is the read-along database: a fraction, its own timestamp, and
// an optional precise (locator, fragment_id) anchor. Absence is reported as
// a zero Fraction/TimestampMS pair, not an error.
type RAAdapter interface {
	GetProgress(ctx context.Context, ebookFile string) (RAPosition, error)
	GetProgressWithAnchor(ctx context.Context, ebookFile string) (RAAnchoredPosition, error)

	// UpdateProgress writes fraction for ebookFile with the leapfrog
	// timestamp rule applied. sourceTS is
	// the wall-clock time of this write, in seconds. Returns whether the
	// write was reported successful by the underlying store.
	UpdateProgress(ctx context.Context, ebookFile string, fraction float64, sourceTS int64) (bool, error)
}
