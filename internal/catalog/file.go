package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// FileType discriminates what a file contributes to its media.
type FileType int

const (
	FileTypeMain FileType = iota
	FileTypePart
	FileTypeSoundtrack
	FileTypeSubtitle
	FileTypePlaylist
)

// File is a concrete filesystem object realizing a media (or a playlist).
// MRLs are stored encoded; for removable devices they are relative to the
// device mountpoint.
type File struct {
	ID           int64
	MediaID      sql.NullInt64
	PlaylistID   sql.NullInt64
	MRL          string
	Type         FileType
	LastModified int64
	Size         int64
	FolderID     sql.NullInt64
	Present      bool
	Removable    bool
	External     bool
}

const fileCols = `id, media_id, playlist_id, mrl, type, COALESCE(last_modification_date, 0),
	size, folder_id, is_present, is_removable, is_external`

func scanFile(row *sql.Row) (*File, error) {
	f := &File{}
	err := row.Scan(&f.ID, &f.MediaID, &f.PlaylistID, &f.MRL, &f.Type,
		&f.LastModified, &f.Size, &f.FolderID, &f.Present, &f.Removable, &f.External)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}
	return f, nil
}

// FileByID fetches a file through the identity cache.
func (c *Catalog) FileByID(id int64) (*File, error) {
	return c.files.GetOrFetch(id, func() (*File, error) {
		return scanFile(c.conn.QueryRow(
			"SELECT "+fileCols+" FROM files WHERE id = ?", id))
	})
}

// FileByMRL fetches an internal file by folder and stored MRL.
func (c *Catalog) FileByMRL(folderID int64, mrl string) (*File, error) {
	var id int64
	err := c.conn.QueryRow(
		"SELECT id FROM files WHERE folder_id = ? AND mrl = ?",
		folderID, mrl).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %s: %w", mrl, err)
	}
	return c.FileByID(id)
}

// FileByStoredMRL looks a file up by stored MRL regardless of folder,
// used when resolving a user-supplied MRL back to its media.
func (c *Catalog) FileByStoredMRL(mrl string) (*File, error) {
	var id int64
	err := c.conn.QueryRow(
		"SELECT id FROM files WHERE mrl = ? ORDER BY id LIMIT 1", mrl).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %s: %w", mrl, err)
	}
	return c.FileByID(id)
}

// FilesInFolder lists files directly under a folder.
func (c *Catalog) FilesInFolder(folderID int64) ([]*File, error) {
	rows, err := c.conn.Query(
		"SELECT "+fileCols+" FROM files WHERE folder_id = ? ORDER BY mrl", folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()
	var out []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.MediaID, &f.PlaylistID, &f.MRL, &f.Type,
			&f.LastModified, &f.Size, &f.FolderID, &f.Present, &f.Removable, &f.External); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FilesOfMedia lists the files realizing a media.
func (c *Catalog) FilesOfMedia(mediaID int64) ([]*File, error) {
	rows, err := c.conn.Query(
		"SELECT id FROM files WHERE media_id = ? ORDER BY id", mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query media files: %w", err)
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
	out := make([]*File, 0, len(ids))
	for _, id := range ids {
		f, err := c.FileByID(id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// AddFile records a filesystem object under a folder.
func (c *Catalog) AddFile(mediaID, folderID int64, mrl string, typ FileType, mtime, size int64, removable bool) (*File, error) {
	var media, folder interface{}
	if mediaID != 0 {
		media = mediaID
	}
	if folderID != 0 {
		folder = folderID
	}
	res, err := c.conn.Exec(`
		INSERT INTO files (media_id, mrl, type, last_modification_date, size,
			folder_id, is_present, is_removable, is_external)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, 0)
	`, media, mrl, typ, mtime, size, folder, removable)
	if err != nil {
		return nil, fmt.Errorf("failed to add file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get file id: %w", err)
	}
	c.conn.Record(TableFiles, sqlite.HookInsert, id)
	return c.FileByID(id)
}

// AddExternalFile records a stream or out-of-tree file identified by MRL
// alone.
func (c *Catalog) AddExternalFile(mediaID int64, mrl string, typ FileType) (*File, error) {
	res, err := c.conn.Exec(`
		INSERT INTO files (media_id, mrl, type, size, is_present, is_removable, is_external)
		VALUES (?, ?, ?, 0, 1, 0, 1)
	`, mediaID, mrl, typ)
	if err != nil {
		return nil, fmt.Errorf("failed to add external file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get file id: %w", err)
	}
	c.conn.Record(TableFiles, sqlite.HookInsert, id)
	return c.FileByID(id)
}

// SetFileMedia binds a parsed file to its media.
func (c *Catalog) SetFileMedia(fileID, mediaID int64) error {
	_, err := c.conn.Exec("UPDATE files SET media_id = ? WHERE id = ?", mediaID, fileID)
	if err != nil {
		return fmt.Errorf("failed to bind file to media: %w", err)
	}
	c.files.Evict(fileID)
	c.conn.Record(TableFiles, sqlite.HookUpdate, fileID)
	return nil
}

// UpdateFileStats refreshes size and mtime after a change on disk.
func (c *Catalog) UpdateFileStats(fileID, mtime, size int64) error {
	_, err := c.conn.Exec(
		"UPDATE files SET last_modification_date = ?, size = ? WHERE id = ?",
		mtime, size, fileID)
	if err != nil {
		return fmt.Errorf("failed to update file stats: %w", err)
	}
	c.files.Evict(fileID)
	c.conn.Record(TableFiles, sqlite.HookUpdate, fileID)
	return nil
}

// SetFilePresent flips one file's presence; the triggers recompute the
// owning media's flag.
func (c *Catalog) SetFilePresent(id int64, present bool) error {
	_, err := c.conn.Exec("UPDATE files SET is_present = ? WHERE id = ?", present, id)
	if err != nil {
		return fmt.Errorf("failed to update file presence: %w", err)
	}
	c.files.Evict(id)
	c.media.Clear()
	c.tracks.Clear()
	c.albums.Clear()
	c.artists.Clear()
	c.conn.Record(TableFiles, sqlite.HookUpdate, id)
	return nil
}

// DeleteFile removes a file row. The cascade trigger removes the media if
// this was its last file.
func (c *Catalog) DeleteFile(id int64) error {
	f, err := c.FileByID(id)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	err = c.conn.Transaction(func(tx *sqlite.Tx) error {
		if _, err := tx.Exec("DELETE FROM files WHERE id = ?", id); err != nil {
			return err
		}
		tx.Record(TableFiles, sqlite.HookDelete, id)
		if f.MediaID.Valid {
			var left int
			if err := tx.QueryRow(
				"SELECT COUNT(*) FROM files WHERE media_id = ?",
				f.MediaID.Int64).Scan(&left); err != nil {
				return err
			}
			if left == 0 {
				tx.Record(TableMedia, sqlite.HookDelete, f.MediaID.Int64)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if f.MediaID.Valid {
		c.media.Evict(f.MediaID.Int64)
		c.tracks.Clear()
		c.albums.Clear()
		c.artists.Clear()
	}
	return nil
}
