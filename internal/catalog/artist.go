package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Artist aggregates albums and tracks. nb_albums/nb_tracks are maintained
// by triggers; an artist whose counters both reach zero is deleted by the
// same triggers, except the two seeded default rows.
type Artist struct {
	ID         int64
	Name       string
	ShortBio   string
	ArtworkMRL string
	NbAlbums   int
	NbTracks   int
	MbID       string
	Present    bool
}

const artistCols = `id, COALESCE(name, ''), COALESCE(short_bio, ''), COALESCE(artwork_mrl, ''),
	nb_albums, nb_tracks, COALESCE(mb_id, ''), is_present`

func scanArtist(row *sql.Row) (*Artist, error) {
	a := &Artist{}
	err := row.Scan(&a.ID, &a.Name, &a.ShortBio, &a.ArtworkMRL,
		&a.NbAlbums, &a.NbTracks, &a.MbID, &a.Present)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}
	return a, nil
}

// ArtistByID fetches an artist through the identity cache.
func (c *Catalog) ArtistByID(id int64) (*Artist, error) {
	return c.artists.GetOrFetch(id, func() (*Artist, error) {
		return scanArtist(c.conn.QueryRow(
			"SELECT "+artistCols+" FROM artists WHERE id = ?", id))
	})
}

// ArtistByName fetches an artist by exact name.
func (c *Catalog) ArtistByName(name string) (*Artist, error) {
	var id int64
	err := c.conn.QueryRow("SELECT id FROM artists WHERE name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up artist %s: %w", name, err)
	}
	return c.ArtistByID(id)
}

// CreateArtist inserts an artist. A duplicate-name constraint is recovered
// by fetching the conflicting row, since two parser workers can race on
// the same tag.
func (c *Catalog) CreateArtist(name string) (*Artist, error) {
	res, err := c.conn.Exec(
		"INSERT INTO artists (name, nb_albums, nb_tracks, is_present) VALUES (?, 0, 0, 1)", name)
	if err != nil {
		if sqlite.IsConstraint(err) {
			return c.ArtistByName(name)
		}
		return nil, fmt.Errorf("failed to create artist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get artist id: %w", err)
	}
	c.conn.Record(TableArtists, sqlite.HookInsert, id)
	return c.ArtistByID(id)
}

// Artists lists present artists that have at least one track, by name.
func (c *Catalog) Artists() ([]*Artist, error) {
	rows, err := c.conn.Query(
		"SELECT id FROM artists WHERE is_present = 1 AND nb_tracks > 0 ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("failed to list artists: %w", err)
	}
	return c.artistsFromIDRows(rows)
}

// SearchArtists matches artist names against the FTS shadow table.
func (c *Catalog) SearchArtists(pattern string) ([]*Artist, error) {
	if len(pattern) < 3 {
		return nil, nil
	}
	rows, err := c.conn.Query(`
		SELECT a.id FROM artists a
		JOIN artists_fts ON artists_fts.rowid = a.id
		WHERE artists_fts MATCH ? AND a.is_present = 1
		ORDER BY artists_fts.rank
	`, ftsQuote(pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to search artists: %w", err)
	}
	return c.artistsFromIDRows(rows)
}

func (c *Catalog) artistsFromIDRows(rows *sql.Rows) ([]*Artist, error) {
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
	out := make([]*Artist, 0, len(ids))
	for _, id := range ids {
		a, err := c.ArtistByID(id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}
