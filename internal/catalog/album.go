package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Album groups tracks. nb_tracks, duration and is_present are maintained
// by triggers; an album whose last track is deleted disappears with it.
type Album struct {
	ID           int64
	Title        string
	ArtistID     sql.NullInt64
	ReleaseYear  sql.NullInt64
	ShortSummary string
	ArtworkMRL   string
	NbTracks     int
	Duration     int64
	Present      bool
}

const albumCols = `id, COALESCE(title, ''), artist_id, release_year,
	COALESCE(short_summary, ''), COALESCE(artwork_mrl, ''), nb_tracks, duration, is_present`

func scanAlbum(row *sql.Row) (*Album, error) {
	a := &Album{}
	err := row.Scan(&a.ID, &a.Title, &a.ArtistID, &a.ReleaseYear,
		&a.ShortSummary, &a.ArtworkMRL, &a.NbTracks, &a.Duration, &a.Present)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}
	return a, nil
}

// AlbumByID fetches an album through the identity cache.
func (c *Catalog) AlbumByID(id int64) (*Album, error) {
	return c.albums.GetOrFetch(id, func() (*Album, error) {
		return scanAlbum(c.conn.QueryRow(
			"SELECT "+albumCols+" FROM albums WHERE id = ?", id))
	})
}

// AlbumByTitleAndArtist fetches the album an analyzer run should attach a
// track to, nil if it does not exist yet.
func (c *Catalog) AlbumByTitleAndArtist(title string, artistID int64) (*Album, error) {
	var id int64
	var err error
	if artistID != 0 {
		err = c.conn.QueryRow(
			"SELECT id FROM albums WHERE title = ? AND artist_id = ?",
			title, artistID).Scan(&id)
	} else {
		err = c.conn.QueryRow(
			"SELECT id FROM albums WHERE title = ? AND artist_id IS NULL",
			title).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up album %s: %w", title, err)
	}
	return c.AlbumByID(id)
}

// CreateAlbum inserts an empty album for an artist (0 for none).
func (c *Catalog) CreateAlbum(title string, artistID int64) (*Album, error) {
	var artist interface{}
	if artistID != 0 {
		artist = artistID
	}
	res, err := c.conn.Exec(`
		INSERT INTO albums (title, artist_id, nb_tracks, duration, is_present)
		VALUES (?, ?, 0, 0, 1)
	`, title, artist)
	if err != nil {
		return nil, fmt.Errorf("failed to create album: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get album id: %w", err)
	}
	if artistID != 0 {
		c.artists.Evict(artistID)
	}
	c.conn.Record(TableAlbums, sqlite.HookInsert, id)
	return c.AlbumByID(id)
}

// SetAlbumInfo writes release year, summary and artwork after analysis.
func (c *Catalog) SetAlbumInfo(id int64, releaseYear int64, summary, artworkMRL string) error {
	var year interface{}
	if releaseYear != 0 {
		year = releaseYear
	}
	_, err := c.conn.Exec(`
		UPDATE albums SET release_year = ?, short_summary = ?, artwork_mrl = ? WHERE id = ?
	`, year, summary, artworkMRL, id)
	if err != nil {
		return fmt.Errorf("failed to update album info: %w", err)
	}
	c.albums.Evict(id)
	c.conn.Record(TableAlbums, sqlite.HookUpdate, id)
	return nil
}

// Albums lists present albums by title.
func (c *Catalog) Albums() ([]*Album, error) {
	rows, err := c.conn.Query(
		"SELECT id FROM albums WHERE is_present = 1 ORDER BY title COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	return c.albumsFromIDRows(rows)
}

// AlbumsOfArtist lists an artist's present albums, newest release first.
func (c *Catalog) AlbumsOfArtist(artistID int64) ([]*Album, error) {
	rows, err := c.conn.Query(`
		SELECT id FROM albums WHERE artist_id = ? AND is_present = 1
		ORDER BY release_year IS NULL, release_year DESC, title COLLATE NOCASE
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artist albums: %w", err)
	}
	return c.albumsFromIDRows(rows)
}

// SearchAlbums matches album titles against the FTS shadow table.
func (c *Catalog) SearchAlbums(pattern string) ([]*Album, error) {
	if len(pattern) < 3 {
		return nil, nil
	}
	rows, err := c.conn.Query(`
		SELECT a.id FROM albums a
		JOIN albums_fts ON albums_fts.rowid = a.id
		WHERE albums_fts MATCH ? AND a.is_present = 1
		ORDER BY albums_fts.rank
	`, ftsQuote(pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to search albums: %w", err)
	}
	return c.albumsFromIDRows(rows)
}

func (c *Catalog) albumsFromIDRows(rows *sql.Rows) ([]*Album, error) {
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
	out := make([]*Album, 0, len(ids))
	for _, id := range ids {
		a, err := c.AlbumByID(id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}
