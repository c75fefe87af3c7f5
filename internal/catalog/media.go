package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/franz/medialib/internal/sqlite"
)

// MediaType is the broad classification of a media asset.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeExternal
	MediaTypeStream
)

// MediaSubType refines audio/video media once analysis has run.
type MediaSubType int

const (
	MediaSubTypeUnknown MediaSubType = iota
	MediaSubTypeAlbumTrack
	MediaSubTypeShowEpisode
	MediaSubTypeMovie
)

// Media is the logical media asset. It owns zero or more files;
// is_present is the OR over them, maintained by triggers.
type Media struct {
	ID            int64
	Type          MediaType
	SubType       MediaSubType
	Title         string
	Filename      string
	Duration      int64
	PlayCount     int
	LastPlayed    sql.NullInt64
	InsertionDate int64
	ReleaseDate   sql.NullInt64
	Thumbnail     string
	Favorite      bool
	Present       bool
	P2P           bool
}

const mediaCols = `id, type, sub_type, COALESCE(title, ''), COALESCE(filename, ''),
	duration, play_count, last_played_date, insertion_date, release_date,
	COALESCE(thumbnail, ''), is_favorite, is_present, is_p2p`

func scanMedia(row *sql.Row) (*Media, error) {
	m := &Media{}
	err := row.Scan(&m.ID, &m.Type, &m.SubType, &m.Title, &m.Filename,
		&m.Duration, &m.PlayCount, &m.LastPlayed, &m.InsertionDate,
		&m.ReleaseDate, &m.Thumbnail, &m.Favorite, &m.Present, &m.P2P)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan media: %w", err)
	}
	return m, nil
}

// MediaByID fetches a media through the identity cache.
func (c *Catalog) MediaByID(id int64) (*Media, error) {
	return c.media.GetOrFetch(id, func() (*Media, error) {
		return scanMedia(c.conn.QueryRow(
			"SELECT "+mediaCols+" FROM media WHERE id = ?", id))
	})
}

// MediaByFileID fetches the media a file realizes.
func (c *Catalog) MediaByFileID(fileID int64) (*Media, error) {
	var id sql.NullInt64
	err := c.conn.QueryRow("SELECT media_id FROM files WHERE id = ?", fileID).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up media for file: %w", err)
	}
	return c.MediaByID(id.Int64)
}

// CreateMedia inserts a fresh media row with Unknown sub-type.
func (c *Catalog) CreateMedia(typ MediaType, title, filename string) (*Media, error) {
	res, err := c.conn.Exec(`
		INSERT INTO media (type, sub_type, title, filename, duration, insertion_date, is_present)
		VALUES (?, 0, ?, ?, -1, ?, 1)
	`, typ, title, filename, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create media: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get media id: %w", err)
	}
	c.conn.Record(TableMedia, sqlite.HookInsert, id)
	return c.MediaByID(id)
}

// SaveMedia writes back the mutable fields of m, optionally inside an open
// transaction.
func (c *Catalog) SaveMedia(tx *sqlite.Tx, m *Media) error {
	const q = `
		UPDATE media SET type = ?, sub_type = ?, title = ?, filename = ?,
			duration = ?, release_date = ?, thumbnail = ?, is_favorite = ?, is_p2p = ?
		WHERE id = ?`
	args := []interface{}{m.Type, m.SubType, m.Title, m.Filename,
		m.Duration, m.ReleaseDate, m.Thumbnail, m.Favorite, m.P2P, m.ID}
	var err error
	if tx != nil {
		_, err = tx.Exec(q, args...)
		if err == nil {
			tx.Record(TableMedia, sqlite.HookUpdate, m.ID)
		}
	} else {
		_, err = c.conn.Exec(q, args...)
		if err == nil {
			c.conn.Record(TableMedia, sqlite.HookUpdate, m.ID)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save media: %w", err)
	}
	return nil
}

// MarkMediaPlayed bumps the play count and records the play time on the
// media itself. Stream history is separate, in the history table.
func (c *Catalog) MarkMediaPlayed(id int64) error {
	_, err := c.conn.Exec(`
		UPDATE media SET play_count = play_count + 1, last_played_date = ? WHERE id = ?
	`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark media played: %w", err)
	}
	c.media.Evict(id)
	c.conn.Record(TableMedia, sqlite.HookUpdate, id)
	return nil
}

// SetMediaFavorite flags or unflags a favorite.
func (c *Catalog) SetMediaFavorite(id int64, fav bool) error {
	_, err := c.conn.Exec("UPDATE media SET is_favorite = ? WHERE id = ?", fav, id)
	if err != nil {
		return fmt.Errorf("failed to set favorite: %w", err)
	}
	c.media.Evict(id)
	c.conn.Record(TableMedia, sqlite.HookUpdate, id)
	return nil
}

// MediaExists checks the row directly, bypassing the cache. The
// thumbnailer uses it to detect a media deleted mid-playback.
func (c *Catalog) MediaExists(id int64) (bool, error) {
	var n int
	if err := c.conn.QueryRow("SELECT COUNT(*) FROM media WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check media existence: %w", err)
	}
	return n > 0, nil
}

// MediaList returns present media of a type, newest first.
func (c *Catalog) MediaList(typ MediaType) ([]*Media, error) {
	rows, err := c.conn.Query(
		"SELECT id FROM media WHERE type = ? AND is_present = 1 ORDER BY insertion_date DESC, id DESC",
		typ)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	return c.mediaFromIDRows(rows)
}

// SearchMedia matches present media titles against the FTS shadow table.
// Patterns shorter than 3 characters return nothing.
func (c *Catalog) SearchMedia(pattern string) ([]*Media, error) {
	if len(pattern) < 3 {
		return nil, nil
	}
	rows, err := c.conn.Query(`
		SELECT m.id FROM media m
		JOIN media_fts ON media_fts.rowid = m.id
		WHERE media_fts MATCH ? AND m.is_present = 1
		ORDER BY media_fts.rank
	`, ftsQuote(pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to search media: %w", err)
	}
	return c.mediaFromIDRows(rows)
}

func (c *Catalog) mediaFromIDRows(rows *sql.Rows) ([]*Media, error) {
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
	out := make([]*Media, 0, len(ids))
	for _, id := range ids {
		m, err := c.MediaByID(id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// AddAudioTrack records a decoded audio stream of a media.
func (c *Catalog) AddAudioTrack(mediaID int64, codec string, bitrate, samplerate, channels int, language, description string) error {
	_, err := c.conn.Exec(`
		INSERT INTO audio_tracks (codec, bitrate, samplerate, nb_channels, language, description, media_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, codec, bitrate, samplerate, channels, language, description, mediaID)
	if err != nil {
		return fmt.Errorf("failed to add audio track: %w", err)
	}
	return nil
}

// AddVideoTrack records a decoded video stream of a media.
func (c *Catalog) AddVideoTrack(mediaID int64, codec string, width, height int, fps float64, language, description string) error {
	_, err := c.conn.Exec(`
		INSERT INTO video_tracks (codec, width, height, fps, language, description, media_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, codec, width, height, fps, language, description, mediaID)
	if err != nil {
		return fmt.Errorf("failed to add video track: %w", err)
	}
	return nil
}
