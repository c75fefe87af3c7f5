package catalog

import (
	"fmt"

	"github.com/franz/medialib/internal/sqlite"
	"github.com/franz/medialib/internal/util"
)

// MigrationResult tells the facade what initialization did to the
// database.
type MigrationResult int

const (
	// MigrationOK: schema was already current or upgraded in place.
	MigrationOK MigrationResult = iota
	// MigrationReset: the database was rebuilt from scratch.
	MigrationReset
	// MigrationFailed: every attempt, including rebuild, failed.
	MigrationFailed
)

const migrationAttempts = 3

// Migrate brings the database to ModelVersion. Returns the result plus
// whether any applied step requires a full rescan.
func (c *Catalog) Migrate() (MigrationResult, bool, error) {
	var (
		result MigrationResult
		rescan bool
		err    error
	)
	for attempt := 1; attempt <= migrationAttempts; attempt++ {
		result, rescan, err = c.migrateOnce()
		if err == nil {
			return result, rescan, nil
		}
		util.WarnLog("migration attempt %d/%d failed: %v", attempt, migrationAttempts, err)
	}

	util.ErrorLog("migrations exhausted, rebuilding database: %v", err)
	for attempt := 1; attempt <= migrationAttempts; attempt++ {
		if err = c.rebuild(); err == nil {
			return MigrationReset, false, nil
		}
		util.WarnLog("rebuild attempt %d/%d failed: %v", attempt, migrationAttempts, err)
	}
	return MigrationFailed, false, fmt.Errorf("database unrecoverable: %w", err)
}

func (c *Catalog) migrateOnce() (MigrationResult, bool, error) {
	version, err := c.DBModelVersion()
	if err != nil {
		if sqlite.IsCorrupt(err) {
			if err := c.rebuild(); err != nil {
				return MigrationFailed, false, err
			}
			return MigrationReset, false, nil
		}
		return MigrationFailed, false, err
	}

	switch {
	case version == 0:
		// fresh database
		if err := c.CreateSchema(); err != nil {
			return MigrationFailed, false, err
		}
		return MigrationOK, false, nil
	case version == ModelVersion:
		return MigrationOK, false, nil
	case version > ModelVersion, version < 3, version == 4:
		// downgrade, prehistoric, or the aborted version 4 layout: the
		// schema is unreadable, start over
		util.WarnLog("unsupported database version %d, rebuilding", version)
		if err := c.rebuild(); err != nil {
			return MigrationFailed, false, err
		}
		return MigrationReset, false, nil
	}

	rescan := false
	for _, m := range migrations {
		if m.from < version {
			continue
		}
		util.InfoLog("migrating database %d -> %d", m.from, m.to)
		if err := c.applyMigration(m); err != nil {
			return MigrationFailed, false, fmt.Errorf("migration %d->%d: %w", m.from, m.to, err)
		}
		version = m.to
		if m.rescan {
			rescan = true
		}
	}

	if rescan {
		if err := c.ClearDerived(); err != nil {
			return MigrationFailed, false, err
		}
		c.ClearCaches()
	}
	return MigrationOK, rescan, nil
}

// applyMigration runs one step's statements in a weak-DB context, then its
// Go-side hook, then bumps the stored version.
func (c *Catalog) applyMigration(m migration) error {
	err := c.conn.WeakContext(func() error {
		for _, stmt := range m.statements {
			if _, err := c.conn.DB().Exec(stmt); err != nil {
				return sqlite.Classify(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if m.fn != nil {
		if err := m.fn(c); err != nil {
			return err
		}
	}
	return c.SetDBModelVersion(m.to)
}

// rebuild drops every known table and recreates the schema from scratch.
func (c *Catalog) rebuild() error {
	tables := []string{
		"tasks", "history", "label_media", "labels", "playlist_media",
		"playlists", "movies", "show_episodes", "shows", "audio_tracks",
		"video_tracks", "album_tracks", "genres", "albums", "artists",
		"files", "media", "folders", "devices", "settings",
		"media_fts", "albums_fts", "artists_fts", "genres_fts", "playlists_fts",
	}
	err := c.conn.WeakContext(func() error {
		for _, t := range tables {
			if _, err := c.conn.DB().Exec("DROP TABLE IF EXISTS " + t); err != nil {
				return sqlite.Classify(err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	c.ClearCaches()
	return c.CreateSchema()
}

// ClearDerived wipes everything the parser can regenerate, keeping
// devices, folders, files, media rows and the user data attached to them
// (playlists, labels, history, favorites), and resets every task to its
// first step.
func (c *Catalog) ClearDerived() error {
	stmts := []string{
		"DELETE FROM album_tracks",
		"DELETE FROM albums",
		"DELETE FROM artists WHERE id > 2",
		"UPDATE artists SET nb_albums = 0, nb_tracks = 0 WHERE id <= 2",
		"DELETE FROM genres",
		"DELETE FROM show_episodes",
		"DELETE FROM shows",
		"DELETE FROM movies",
		"DELETE FROM audio_tracks",
		"DELETE FROM video_tracks",
	}
	err := c.conn.WeakContext(func() error {
		for _, stmt := range stmts {
			if _, err := c.conn.DB().Exec(stmt); err != nil {
				return sqlite.Classify(err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear derived tables: %w", err)
	}
	return c.ResetParsing()
}
