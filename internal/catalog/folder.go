package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
)

// Folder is a crawled directory or an entry point (parent == nil). The
// stored path is percent-encoded and, for removable devices, relative to
// the device mountpoint.
type Folder struct {
	ID          int64
	Path        string
	ParentID    sql.NullInt64
	DeviceID    int64
	Blacklisted bool
	Present     bool
	Removable   bool
}

const folderCols = "id, path, parent_id, device_id, is_blacklisted, is_present, is_removable"

func scanFolder(row *sql.Row) (*Folder, error) {
	f := &Folder{}
	err := row.Scan(&f.ID, &f.Path, &f.ParentID, &f.DeviceID,
		&f.Blacklisted, &f.Present, &f.Removable)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan folder: %w", err)
	}
	return f, nil
}

func scanFolderRows(rows *sql.Rows) ([]*Folder, error) {
	defer rows.Close()
	var out []*Folder
	for rows.Next() {
		f := &Folder{}
		if err := rows.Scan(&f.ID, &f.Path, &f.ParentID, &f.DeviceID,
			&f.Blacklisted, &f.Present, &f.Removable); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FolderByID fetches a folder through the identity cache.
func (c *Catalog) FolderByID(id int64) (*Folder, error) {
	return c.folders.GetOrFetch(id, func() (*Folder, error) {
		return scanFolder(c.conn.QueryRow(
			"SELECT "+folderCols+" FROM folders WHERE id = ?", id))
	})
}

// FolderByPath fetches a folder by its stored (encoded, possibly relative)
// path on a device.
func (c *Catalog) FolderByPath(deviceID int64, path string) (*Folder, error) {
	var id int64
	err := c.conn.QueryRow(
		"SELECT id FROM folders WHERE device_id = ? AND path = ?",
		deviceID, path).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up folder %s: %w", path, err)
	}
	return c.FolderByID(id)
}

// CreateFolder records a crawled directory. parentID == 0 marks an entry
// point.
func (c *Catalog) CreateFolder(path string, parentID int64, deviceID int64, removable bool) (*Folder, error) {
	var parent interface{}
	if parentID != 0 {
		parent = parentID
	}
	res, err := c.conn.Exec(`
		INSERT INTO folders (path, parent_id, device_id, is_blacklisted, is_present, is_removable)
		VALUES (?, ?, ?, 0, 1, ?)
	`, path, parent, deviceID, removable)
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get folder id: %w", err)
	}
	c.conn.Record(TableFolders, sqlite.HookInsert, id)
	return c.FolderByID(id)
}

// SubFolders lists the direct children of a folder.
func (c *Catalog) SubFolders(id int64) ([]*Folder, error) {
	rows, err := c.conn.Query(
		"SELECT "+folderCols+" FROM folders WHERE parent_id = ? ORDER BY path", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query subfolders: %w", err)
	}
	return scanFolderRows(rows)
}

// EntryPoints lists non-banned roots of discovery.
func (c *Catalog) EntryPoints() ([]*Folder, error) {
	rows, err := c.conn.Query(
		"SELECT " + folderCols + " FROM folders WHERE parent_id IS NULL AND is_blacklisted = 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query entry points: %w", err)
	}
	return scanFolderRows(rows)
}

// BannedFolders lists blacklisted folders.
func (c *Catalog) BannedFolders() ([]*Folder, error) {
	rows, err := c.conn.Query(
		"SELECT " + folderCols + " FROM folders WHERE is_blacklisted = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query banned folders: %w", err)
	}
	return scanFolderRows(rows)
}

// SetFolderPresent flips a folder subtree's presence via the triggers.
func (c *Catalog) SetFolderPresent(id int64, present bool) error {
	_, err := c.conn.Exec("UPDATE folders SET is_present = ? WHERE id = ?", present, id)
	if err != nil {
		return fmt.Errorf("failed to update folder presence: %w", err)
	}
	c.evictPresenceCascade()
	c.conn.Record(TableFolders, sqlite.HookUpdate, id)
	return nil
}

// BanFolder marks a folder blacklisted, creating the row if the path was
// never crawled.
func (c *Catalog) BanFolder(deviceID int64, path string, removable bool) error {
	_, err := c.conn.Exec(`
		INSERT INTO folders (path, parent_id, device_id, is_blacklisted, is_present, is_removable)
		VALUES (?, NULL, ?, 1, 1, ?)
		ON CONFLICT(device_id, path) DO UPDATE SET is_blacklisted = 1
	`, path, deviceID, removable)
	if err != nil {
		return fmt.Errorf("failed to ban folder: %w", err)
	}
	c.folders.Clear()
	return nil
}

// UnbanFolder clears the blacklist flag. Returns false if the path was not
// banned.
func (c *Catalog) UnbanFolder(deviceID int64, path string) (bool, error) {
	res, err := c.conn.Exec(`
		UPDATE folders SET is_blacklisted = 0
		WHERE device_id = ? AND path = ? AND is_blacklisted = 1
	`, deviceID, path)
	if err != nil {
		return false, fmt.Errorf("failed to unban folder: %w", err)
	}
	n, _ := res.RowsAffected()
	c.folders.Clear()
	return n > 0, nil
}

// RemoveFolder deletes a folder subtree; files, media and tasks follow via
// foreign keys and the cascade trigger.
func (c *Catalog) RemoveFolder(id int64) error {
	err := c.conn.Transaction(func(tx *sqlite.Tx) error {
		if _, err := tx.Exec("DELETE FROM folders WHERE id = ?", id); err != nil {
			return err
		}
		tx.Record(TableFolders, sqlite.HookDelete, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove folder: %w", err)
	}
	c.ClearCaches()
	return nil
}
