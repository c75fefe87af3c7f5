package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Label is a free-form tag attachable to any media.
type Label struct {
	ID   int64
	Name string
}

// LabelByName fetches a label by exact name.
func (c *Catalog) LabelByName(name string) (*Label, error) {
	l := &Label{}
	err := c.conn.QueryRow(
		"SELECT id, name FROM labels WHERE name = ?", name).Scan(&l.ID, &l.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up label %s: %w", name, err)
	}
	return l, nil
}

// CreateLabel inserts a label, recovering a duplicate-name race by
// fetching the existing row.
func (c *Catalog) CreateLabel(name string) (*Label, error) {
	res, err := c.conn.Exec("INSERT INTO labels (name) VALUES (?)", name)
	if err != nil {
		if sqlite.IsConstraint(err) {
			return c.LabelByName(name)
		}
		return nil, fmt.Errorf("failed to create label: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get label id: %w", err)
	}
	c.conn.Record(TableLabels, sqlite.HookInsert, id)
	return &Label{ID: id, Name: name}, nil
}

// AttachLabel tags a media. Tagging twice is a no-op.
func (c *Catalog) AttachLabel(labelID, mediaID int64) error {
	_, err := c.conn.Exec(`
		INSERT INTO label_media (label_id, media_id) VALUES (?, ?)
		ON CONFLICT(label_id, media_id) DO NOTHING
	`, labelID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to attach label: %w", err)
	}
	return nil
}

// DetachLabel removes a tag from a media.
func (c *Catalog) DetachLabel(labelID, mediaID int64) error {
	_, err := c.conn.Exec(
		"DELETE FROM label_media WHERE label_id = ? AND media_id = ?", labelID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to detach label: %w", err)
	}
	return nil
}

// LabelsOfMedia lists a media's labels by name.
func (c *Catalog) LabelsOfMedia(mediaID int64) ([]*Label, error) {
	rows, err := c.conn.Query(`
		SELECT l.id, l.name FROM labels l
		JOIN label_media lm ON lm.label_id = l.id
		WHERE lm.media_id = ?
		ORDER BY l.name COLLATE NOCASE
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer rows.Close()
	var out []*Label
	for rows.Next() {
		l := &Label{}
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
