package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Movie refines a video media into a feature film.
type Movie struct {
	ID         int64
	MediaID    int64
	Title      string
	Summary    string
	ArtworkMRL string
	ImdbID     string
}

// MovieByID fetches a movie through the identity cache.
func (c *Catalog) MovieByID(id int64) (*Movie, error) {
	return c.movies.GetOrFetch(id, func() (*Movie, error) {
		m := &Movie{}
		err := c.conn.QueryRow(`
			SELECT id, media_id, COALESCE(title, ''), COALESCE(summary, ''),
				COALESCE(artwork_mrl, ''), COALESCE(imdb_id, '')
			FROM movies WHERE id = ?`, id).Scan(
			&m.ID, &m.MediaID, &m.Title, &m.Summary, &m.ArtworkMRL, &m.ImdbID)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan movie: %w", err)
		}
		return m, nil
	})
}

// MovieByMedia fetches the movie attached to a media, nil if none.
func (c *Catalog) MovieByMedia(mediaID int64) (*Movie, error) {
	var id int64
	err := c.conn.QueryRow("SELECT id FROM movies WHERE media_id = ?", mediaID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up movie for media: %w", err)
	}
	return c.MovieByID(id)
}

// CreateMovie attaches a movie to a media and flips its sub-type.
func (c *Catalog) CreateMovie(mediaID int64, title string) (*Movie, error) {
	var movieID int64
	err := c.conn.Transaction(func(tx *sqlite.Tx) error {
		res, err := tx.Exec(
			"INSERT INTO movies (media_id, title) VALUES (?, ?)", mediaID, title)
		if err != nil {
			return err
		}
		movieID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE media SET sub_type = ? WHERE id = ?",
			MediaSubTypeMovie, mediaID); err != nil {
			return err
		}
		tx.Record(TableMovies, sqlite.HookInsert, movieID)
		tx.Record(TableMedia, sqlite.HookUpdate, mediaID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create movie: %w", err)
	}
	c.media.Evict(mediaID)
	return c.MovieByID(movieID)
}
