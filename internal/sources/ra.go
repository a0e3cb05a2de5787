package sources

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackzampolin/syncbridge/internal/syncerr"
)

// leapfrogGraceMS is the minimum lead RA's write timestamp must keep over
// its own previously stored timestamp, defeating RA client-side caches
// that otherwise ignore a write "older" than what they've already seen.
const leapfrogGraceMS = 60_000

// SQLRAAdapter is the read-along database adapter. RA's schema and driver
// are both external to this module; the caller injects an already-opened
// *sql.DB for whatever driver backs it.
type SQLRAAdapter struct {
	db     *sql.DB
	userID string
	now    func() time.Time
}

// NewSQLRAAdapter creates a RAAdapter over db, scoped to userID.
func NewSQLRAAdapter(db *sql.DB, userID string) *SQLRAAdapter {
	return &SQLRAAdapter{db: db, userID: userID, now: time.Now}
}

type raLocator struct {
	Href      string `json:"href,omitempty"`
	Locations struct {
		TotalProgression float64  `json:"totalProgression"`
		Fragments        []string `json:"fragments,omitempty"`
	} `json:"locations"`
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting findBookUUID
// run identically inside or outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func findBookUUID(ctx context.Context, q querier, ebookFile string) (string, error) {
	rows, err := q.QueryContext(ctx, `SELECT uuid, title FROM book`)
	if err != nil {
		return "", syncerr.New(syncerr.KindTransientIO, "failed to query RA books", err)
	}
	defer rows.Close()

	lowerFile := strings.ToLower(ebookFile)
	for rows.Next() {
		var uuid, title string
		if err := rows.Scan(&uuid, &title); err != nil {
			return "", syncerr.New(syncerr.KindTransientIO, "failed to scan RA book row", err)
		}
		lowerTitle := strings.ToLower(title)
		if strings.Contains(lowerTitle, lowerFile) || strings.Contains(lowerFile, lowerTitle) {
			return uuid, nil
		}
	}
	return "", nil
}

// GetProgress returns RA's most recently written position for ebookFile.
// Absence (no matching book, or no position rows) is reported as a zero
// RAPosition, not an error.
func (a *SQLRAAdapter) GetProgress(ctx context.Context, ebookFile string) (RAPosition, error) {
	bookUUID, err := findBookUUID(ctx, a.db, ebookFile)
	if err != nil {
		return RAPosition{}, err
	}
	if bookUUID == "" {
		return RAPosition{}, nil
	}

	var locatorJSON string
	var timestampMS sql.NullFloat64
	row := a.db.QueryRowContext(ctx, `
		SELECT locator, timestamp FROM position
		WHERE book_uuid = ? AND user_id = ? ORDER BY timestamp DESC LIMIT 1`, bookUUID, a.userID)
	if err := row.Scan(&locatorJSON, &timestampMS); err != nil {
		if err == sql.ErrNoRows {
			return RAPosition{}, nil
		}
		return RAPosition{}, syncerr.New(syncerr.KindTransientIO, "failed to read RA position", err)
	}

	var loc raLocator
	_ = json.Unmarshal([]byte(locatorJSON), &loc)

	return RAPosition{Fraction: loc.Locations.TotalProgression, TimestampMS: int64(timestampMS.Float64)}, nil
}

// GetProgressWithAnchor additionally extracts the precise (locator,
// fragment_id) anchor if RA has one.
func (a *SQLRAAdapter) GetProgressWithAnchor(ctx context.Context, ebookFile string) (RAAnchoredPosition, error) {
	bookUUID, err := findBookUUID(ctx, a.db, ebookFile)
	if err != nil {
		return RAAnchoredPosition{}, err
	}
	if bookUUID == "" {
		return RAAnchoredPosition{}, nil
	}

	var locatorJSON string
	var timestampMS sql.NullFloat64
	row := a.db.QueryRowContext(ctx, `
		SELECT locator, timestamp FROM position
		WHERE book_uuid = ? AND user_id = ? ORDER BY timestamp DESC LIMIT 1`, bookUUID, a.userID)
	if err := row.Scan(&locatorJSON, &timestampMS); err != nil {
		if err == sql.ErrNoRows {
			return RAAnchoredPosition{}, nil
		}
		return RAAnchoredPosition{}, syncerr.New(syncerr.KindTransientIO, "failed to read RA position", err)
	}

	var loc raLocator
	_ = json.Unmarshal([]byte(locatorJSON), &loc)

	var fragmentID string
	if len(loc.Locations.Fragments) > 0 {
		fragmentID = loc.Locations.Fragments[0]
	}

	return RAAnchoredPosition{
		RAPosition: RAPosition{Fraction: loc.Locations.TotalProgression, TimestampMS: int64(timestampMS.Float64)},
		Locator:    loc.Href,
		FragmentID: fragmentID,
	}, nil
}

// UpdateProgress writes fraction for ebookFile, applying the leapfrog
// timestamp rule inside a single transaction. Returns
// whether any position row was updated.
func (a *SQLRAAdapter) UpdateProgress(ctx context.Context, ebookFile string, fraction float64, sourceTS int64) (bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, syncerr.New(syncerr.KindTransientIO, "failed to begin RA transaction", err)
	}
	defer tx.Rollback()

	bookUUID, err := findBookUUID(ctx, tx, ebookFile)
	if err != nil {
		return false, err
	}
	if bookUUID == "" {
		return false, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT uuid, user_id, locator, timestamp FROM position WHERE book_uuid = ? AND user_id = ?`,
		bookUUID, a.userID)
	if err != nil {
		return false, syncerr.New(syncerr.KindTransientIO, "failed to query RA positions for write", err)
	}

	type posRow struct {
		uuid, userID, locatorJSON string
		timestampMS               sql.NullFloat64
	}
	var positions []posRow
	var maxStoredMS int64
	for rows.Next() {
		var p posRow
		if err := rows.Scan(&p.uuid, &p.userID, &p.locatorJSON, &p.timestampMS); err != nil {
			rows.Close()
			return false, syncerr.New(syncerr.KindTransientIO, "failed to scan RA position row", err)
		}
		positions = append(positions, p)
		if int64(p.timestampMS.Float64) > maxStoredMS {
			maxStoredMS = int64(p.timestampMS.Float64)
		}
	}
	rows.Close()
	if len(positions) == 0 {
		return false, nil
	}

	nowMS := sourceTS * 1000
	writeTS := nowMS
	if maxStoredMS+leapfrogGraceMS > writeTS {
		writeTS = maxStoredMS + leapfrogGraceMS
	}
	updatedAtStr := a.now().UTC().Format("2006-01-02 15:04:05")

	updated := 0
	for _, p := range positions {
		var loc raLocator
		_ = json.Unmarshal([]byte(p.locatorJSON), &loc)
		loc.Locations.TotalProgression = fraction

		newLocatorJSON, err := json.Marshal(loc)
		if err != nil {
			return false, fmt.Errorf("failed to encode RA locator: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE position SET locator = ?, timestamp = ?, updated_at = ? WHERE uuid = ?`,
			string(newLocatorJSON), writeTS, updatedAtStr, p.uuid)
		if err != nil {
			return false, syncerr.New(syncerr.KindTransientIO, "failed to write RA position", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			updated++
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE session SET updated_at = ?
			WHERE user_id = ? AND id = (
				SELECT id FROM session WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1
			)`, updatedAtStr, p.userID, p.userID); err != nil {
			return false, syncerr.New(syncerr.KindTransientIO, "failed to update RA session", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, syncerr.New(syncerr.KindTransientIO, "failed to commit RA transaction", err)
	}

	return updated > 0, nil
}

