package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/franz/medialib/internal/sqlite"
)

// Playlist is an ordered, user-editable sequence of media references.
// Position is significant and dense (0..n-1).
type Playlist struct {
	ID           int64
	Name         string
	FileID       sql.NullInt64
	CreationDate int64
	ArtworkMRL   string
}

// PlaylistByID fetches a playlist through the identity cache.
func (c *Catalog) PlaylistByID(id int64) (*Playlist, error) {
	return c.playlists.GetOrFetch(id, func() (*Playlist, error) {
		p := &Playlist{}
		err := c.conn.QueryRow(`
			SELECT id, COALESCE(name, ''), file_id, creation_date, COALESCE(artwork_mrl, '')
			FROM playlists WHERE id = ?`, id).Scan(
			&p.ID, &p.Name, &p.FileID, &p.CreationDate, &p.ArtworkMRL)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		return p, nil
	})
}

// CreatePlaylist inserts an empty playlist.
func (c *Catalog) CreatePlaylist(name string) (*Playlist, error) {
	res, err := c.conn.Exec(
		"INSERT INTO playlists (name, creation_date) VALUES (?, ?)",
		name, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist id: %w", err)
	}
	c.conn.Record(TablePlaylists, sqlite.HookInsert, id)
	return c.PlaylistByID(id)
}

// DeletePlaylist removes a playlist and its relations.
func (c *Catalog) DeletePlaylist(id int64) error {
	_, err := c.conn.Exec("DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	c.playlists.Evict(id)
	c.conn.Record(TablePlaylists, sqlite.HookDelete, id)
	return nil
}

// Playlists lists playlists by name.
func (c *Catalog) Playlists() ([]*Playlist, error) {
	rows, err := c.conn.Query("SELECT id FROM playlists ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	return c.playlistsFromIDRows(rows)
}

// SearchPlaylists matches playlist names against the FTS shadow table.
func (c *Catalog) SearchPlaylists(pattern string) ([]*Playlist, error) {
	if len(pattern) < 3 {
		return nil, nil
	}
	rows, err := c.conn.Query(`
		SELECT p.id FROM playlists p
		JOIN playlists_fts ON playlists_fts.rowid = p.id
		WHERE playlists_fts MATCH ?
		ORDER BY playlists_fts.rank
	`, ftsQuote(pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to search playlists: %w", err)
	}
	return c.playlistsFromIDRows(rows)
}

func (c *Catalog) playlistsFromIDRows(rows *sql.Rows) ([]*Playlist, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*Playlist, 0, len(ids))
	for _, id := range ids {
		p, err := c.PlaylistByID(id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// AppendToPlaylist adds a media at the end of a playlist.
func (c *Catalog) AppendToPlaylist(playlistID, mediaID int64) error {
	err := c.conn.Transaction(func(tx *sqlite.Tx) error {
		var next int
		if err := tx.QueryRow(
			"SELECT COALESCE(MAX(position) + 1, 0) FROM playlist_media WHERE playlist_id = ?",
			playlistID).Scan(&next); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO playlist_media (media_id, playlist_id, position) VALUES (?, ?, ?)
		`, mediaID, playlistID, next); err != nil {
			return err
		}
		tx.Record(TablePlaylists, sqlite.HookUpdate, playlistID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to playlist: %w", err)
	}
	return nil
}

// RemoveFromPlaylist removes a media and closes the position gap.
func (c *Catalog) RemoveFromPlaylist(playlistID, mediaID int64) error {
	err := c.conn.Transaction(func(tx *sqlite.Tx) error {
		var pos int
		err := tx.QueryRow(
			"SELECT position FROM playlist_media WHERE playlist_id = ? AND media_id = ?",
			playlistID, mediaID).Scan(&pos)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			"DELETE FROM playlist_media WHERE playlist_id = ? AND media_id = ?",
			playlistID, mediaID); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE playlist_media SET position = position - 1 WHERE playlist_id = ? AND position > ?",
			playlistID, pos); err != nil {
			return err
		}
		tx.Record(TablePlaylists, sqlite.HookUpdate, playlistID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove from playlist: %w", err)
	}
	return nil
}

// PlaylistMedia lists a playlist's media in position order.
func (c *Catalog) PlaylistMedia(playlistID int64) ([]*Media, error) {
	rows, err := c.conn.Query(`
		SELECT media_id FROM playlist_media WHERE playlist_id = ? ORDER BY position
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist media: %w", err)
	}
	return c.mediaFromIDRows(rows)
}
