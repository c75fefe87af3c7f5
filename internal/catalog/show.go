package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Show is a TV series; episodes attach media to it.
type Show struct {
	ID           int64
	Title        string
	ReleaseDate  sql.NullInt64
	ShortSummary string
	ArtworkMRL   string
	TvdbID       string
}

// ShowEpisode refines a video media into an episode of a show.
type ShowEpisode struct {
	ID            int64
	MediaID       int64
	ArtworkMRL    string
	EpisodeNumber sql.NullInt64
	Title         string
	SeasonNumber  sql.NullInt64
	Summary       string
	TvdbID        string
	ShowID        sql.NullInt64
}

// ShowByID fetches a show through the identity cache.
func (c *Catalog) ShowByID(id int64) (*Show, error) {
	return c.shows.GetOrFetch(id, func() (*Show, error) {
		s := &Show{}
		err := c.conn.QueryRow(`
			SELECT id, COALESCE(title, ''), release_date, COALESCE(short_summary, ''),
				COALESCE(artwork_mrl, ''), COALESCE(tvdb_id, '')
			FROM shows WHERE id = ?`, id).Scan(
			&s.ID, &s.Title, &s.ReleaseDate, &s.ShortSummary, &s.ArtworkMRL, &s.TvdbID)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan show: %w", err)
		}
		return s, nil
	})
}

// ShowByTitle fetches a show by exact title.
func (c *Catalog) ShowByTitle(title string) (*Show, error) {
	var id int64
	err := c.conn.QueryRow("SELECT id FROM shows WHERE title = ?", title).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up show %s: %w", title, err)
	}
	return c.ShowByID(id)
}

// CreateShow inserts a show.
func (c *Catalog) CreateShow(title string) (*Show, error) {
	res, err := c.conn.Exec("INSERT INTO shows (title) VALUES (?)", title)
	if err != nil {
		return nil, fmt.Errorf("failed to create show: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get show id: %w", err)
	}
	c.conn.Record(TableShows, sqlite.HookInsert, id)
	return c.ShowByID(id)
}

// AddEpisode attaches a media to a show and flips its sub-type.
func (c *Catalog) AddEpisode(showID, mediaID int64, title string, seasonNumber, episodeNumber int) (*ShowEpisode, error) {
	var epID int64
	err := c.conn.Transaction(func(tx *sqlite.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO show_episodes (media_id, title, season_number, episode_number, show_id)
			VALUES (?, ?, ?, ?, ?)
		`, mediaID, title, seasonNumber, episodeNumber, showID)
		if err != nil {
			return err
		}
		epID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE media SET sub_type = ? WHERE id = ?",
			MediaSubTypeShowEpisode, mediaID); err != nil {
			return err
		}
		tx.Record(TableEpisodes, sqlite.HookInsert, epID)
		tx.Record(TableMedia, sqlite.HookUpdate, mediaID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add episode: %w", err)
	}
	c.media.Evict(mediaID)
	return c.EpisodeByID(epID)
}

// EpisodeByID fetches an episode through the identity cache.
func (c *Catalog) EpisodeByID(id int64) (*ShowEpisode, error) {
	return c.episodes.GetOrFetch(id, func() (*ShowEpisode, error) {
		e := &ShowEpisode{}
		err := c.conn.QueryRow(`
			SELECT id, media_id, COALESCE(artwork_mrl, ''), episode_number,
				COALESCE(title, ''), season_number, COALESCE(episode_summary, ''),
				COALESCE(tvdb_id, ''), show_id
			FROM show_episodes WHERE id = ?`, id).Scan(
			&e.ID, &e.MediaID, &e.ArtworkMRL, &e.EpisodeNumber, &e.Title,
			&e.SeasonNumber, &e.Summary, &e.TvdbID, &e.ShowID)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		return e, nil
	})
}

// EpisodesOfShow lists a show's episodes in season/episode order.
func (c *Catalog) EpisodesOfShow(showID int64) ([]*ShowEpisode, error) {
	rows, err := c.conn.Query(`
		SELECT id FROM show_episodes WHERE show_id = ?
		ORDER BY season_number, episode_number, id
	`, showID)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
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
	out := make([]*ShowEpisode, 0, len(ids))
	for _, id := range ids {
		e, err := c.EpisodeByID(id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}
