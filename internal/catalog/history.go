package catalog

import (
	"fmt"
	"time"

	"github.com/franz/medialib/internal/sqlite"
)

// HistoryEntry is one externally streamed MRL. The table is append-only
// and capped at 100 rows by the limit_history trigger; re-inserting an MRL
// refreshes its date instead of duplicating it.
type HistoryEntry struct {
	ID            int64
	MRL           string
	InsertionDate int64
	Favorite      bool
}

// MaxHistoryEntries is the cap enforced by the limit_history trigger.
const MaxHistoryEntries = 100

// InsertHistory records a streamed MRL.
func (c *Catalog) InsertHistory(mrl string) error {
	_, err := c.conn.Exec(`
		INSERT INTO history (mrl, insertion_date) VALUES (?, ?)
		ON CONFLICT(mrl) DO UPDATE SET insertion_date = excluded.insertion_date
	`, mrl, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	c.conn.Record(TableHistory, sqlite.HookInsert, 0)
	return nil
}

// History lists entries newest first.
func (c *Catalog) History() ([]*HistoryEntry, error) {
	rows, err := c.conn.Query(`
		SELECT id, mrl, insertion_date, is_favorite FROM history
		ORDER BY insertion_date DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()
	var out []*HistoryEntry
	for rows.Next() {
		h := &HistoryEntry{}
		if err := rows.Scan(&h.ID, &h.MRL, &h.InsertionDate, &h.Favorite); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ClearHistory wipes the log.
func (c *Catalog) ClearHistory() error {
	if _, err := c.conn.Exec("DELETE FROM history"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	c.conn.Record(TableHistory, sqlite.HookDelete, 0)
	return nil
}
