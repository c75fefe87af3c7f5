package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// AlbumTrack binds one media to exactly one album and artist, optionally a
// genre, and carries its position on the disc.
type AlbumTrack struct {
	ID         int64
	MediaID    int64
	Duration   int64
	ArtistID   sql.NullInt64
	GenreID    sql.NullInt64
	TrackNum   sql.NullInt64
	AlbumID    int64
	DiscNumber sql.NullInt64
	Present    bool
}

const trackCols = `id, media_id, duration, artist_id, genre_id, track_number,
	album_id, disc_number, is_present`

func scanTrack(row *sql.Row) (*AlbumTrack, error) {
	t := &AlbumTrack{}
	err := row.Scan(&t.ID, &t.MediaID, &t.Duration, &t.ArtistID, &t.GenreID,
		&t.TrackNum, &t.AlbumID, &t.DiscNumber, &t.Present)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album track: %w", err)
	}
	return t, nil
}

// TrackByID fetches a track through the identity cache.
func (c *Catalog) TrackByID(id int64) (*AlbumTrack, error) {
	return c.tracks.GetOrFetch(id, func() (*AlbumTrack, error) {
		return scanTrack(c.conn.QueryRow(
			"SELECT "+trackCols+" FROM album_tracks WHERE id = ?", id))
	})
}

// TrackByMedia fetches the album track attached to a media, nil if none.
func (c *Catalog) TrackByMedia(mediaID int64) (*AlbumTrack, error) {
	var id int64
	err := c.conn.QueryRow(
		"SELECT id FROM album_tracks WHERE media_id = ?", mediaID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up track for media: %w", err)
	}
	return c.TrackByID(id)
}

// AddAlbumTrack attaches a media to an album. The insert trigger bumps the
// album and artist counters.
func (c *Catalog) AddAlbumTrack(mediaID, albumID, artistID, genreID int64, trackNum, discNum int, duration int64) (*AlbumTrack, error) {
	var artist, genre, track, disc interface{}
	if artistID != 0 {
		artist = artistID
	}
	if genreID != 0 {
		genre = genreID
	}
	if trackNum != 0 {
		track = trackNum
	}
	if discNum != 0 {
		disc = discNum
	}
	res, err := c.conn.Exec(`
		INSERT INTO album_tracks (media_id, duration, artist_id, genre_id,
			track_number, album_id, disc_number, is_present)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`, mediaID, duration, artist, genre, track, albumID, disc)
	if err != nil {
		return nil, fmt.Errorf("failed to add album track: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get track id: %w", err)
	}
	c.albums.Evict(albumID)
	if artistID != 0 {
		c.artists.Evict(artistID)
	}
	c.conn.Record(TableTracks, sqlite.HookInsert, id)
	return c.TrackByID(id)
}

// DeleteTrack removes an album track. The delete trigger decrements the
// counters and reaps an emptied album or non-default artist; the hook
// records for those fire only if the row is actually gone after commit.
func (c *Catalog) DeleteTrack(id int64) error {
	t, err := c.TrackByID(id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	err = c.conn.Transaction(func(tx *sqlite.Tx) error {
		if _, err := tx.Exec("DELETE FROM album_tracks WHERE id = ?", id); err != nil {
			return err
		}
		tx.Record(TableTracks, sqlite.HookDelete, id)
		var albumLeft int
		if err := tx.QueryRow(
			"SELECT COUNT(*) FROM albums WHERE id = ?", t.AlbumID).Scan(&albumLeft); err != nil {
			return err
		}
		if albumLeft == 0 {
			tx.Record(TableAlbums, sqlite.HookDelete, t.AlbumID)
		}
		if t.ArtistID.Valid {
			var artistLeft int
			if err := tx.QueryRow(
				"SELECT COUNT(*) FROM artists WHERE id = ?", t.ArtistID.Int64).Scan(&artistLeft); err != nil {
				return err
			}
			if artistLeft == 0 {
				tx.Record(TableArtists, sqlite.HookDelete, t.ArtistID.Int64)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	c.albums.Evict(t.AlbumID)
	if t.ArtistID.Valid {
		c.artists.Evict(t.ArtistID.Int64)
	}
	return nil
}

// TracksOfAlbum lists an album's present tracks in disc/track order.
func (c *Catalog) TracksOfAlbum(albumID int64) ([]*AlbumTrack, error) {
	rows, err := c.conn.Query(`
		SELECT id FROM album_tracks WHERE album_id = ? AND is_present = 1
		ORDER BY disc_number, track_number, id
	`, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to list album tracks: %w", err)
	}
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
	out := make([]*AlbumTrack, 0, len(ids))
	for _, id := range ids {
		t, err := c.TrackByID(id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}
