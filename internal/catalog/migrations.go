package catalog

// A migration upgrades the schema by one step. Statements run inside a
// weak-DB context (no foreign keys, no recursive triggers); fn runs after
// the statements for steps that need Go-side work.
type migration struct {
	from, to   int
	statements []string
	rescan     bool
	fn         func(c *Catalog) error
}

// migrations is the ordered upgrade ladder. Databases older than 3, at the
// short-lived version 4, or newer than the target are rebuilt instead.
var migrations = []migration{
	{
		from: 3, to: 5,
		statements: []string{
			"ALTER TABLE media ADD COLUMN is_p2p INTEGER NOT NULL DEFAULT 0",
			"ALTER TABLE media ADD COLUMN is_favorite INTEGER NOT NULL DEFAULT 0",
		},
	},
	{
		from: 5, to: 6,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS audio_tracks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				codec TEXT, bitrate INTEGER, samplerate INTEGER, nb_channels INTEGER,
				language TEXT, description TEXT,
				media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE)`,
			`CREATE TABLE IF NOT EXISTS video_tracks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				codec TEXT, width INTEGER, height INTEGER, fps REAL,
				language TEXT, description TEXT,
				media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE)`,
		},
	},
	{
		// file uniqueness moved from a bare mrl index to (folder_id, mrl),
		// which requires re-discovering everything.
		from: 6, to: 7, rescan: true,
		statements: []string{
			"DROP INDEX IF EXISTS idx_files_mrl",
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_files_folder_mrl ON files(folder_id, mrl)
				WHERE folder_id IS NOT NULL`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_files_external_mrl ON files(mrl)
				WHERE folder_id IS NULL`,
		},
	},
	{
		from: 7, to: 8,
		statements: []string{
			"ALTER TABLE history ADD COLUMN is_favorite INTEGER NOT NULL DEFAULT 0",
		},
	},
	{
		// the FTS shadow tables replaced LIKE-based search
		from: 8, to: 9, rescan: true,
		statements: []string{
			"DROP TABLE IF EXISTS media_fts",
			"DROP TABLE IF EXISTS albums_fts",
			"DROP TABLE IF EXISTS artists_fts",
			"DROP TABLE IF EXISTS genres_fts",
			"DROP TABLE IF EXISTS playlists_fts",
		},
		fn: func(c *Catalog) error {
			_, err := c.conn.Exec(schemaFts)
			return err
		},
	},
	{
		// MRLs became canonically percent-encoded; stored rows predate the
		// encoder, so everything is rediscovered.
		from: 9, to: 10, rescan: true,
		statements: []string{
			"DELETE FROM tasks",
		},
	},
	{
		// removable-device paths became mountpoint-relative
		from: 10, to: 11, rescan: true,
		statements: []string{
			"ALTER TABLE folders ADD COLUMN is_removable INTEGER NOT NULL DEFAULT 0",
			"ALTER TABLE files ADD COLUMN is_removable INTEGER NOT NULL DEFAULT 0",
		},
	},
	{
		from: 11, to: 12,
		fn: func(c *Catalog) error {
			return c.RecoverUnscannedFiles()
		},
	},
	{
		// the presence triggers gained the album/artist hops; rebuild them
		// and reseed the derived flags bottom-up
		from: 12, to: 13,
		fn: func(c *Catalog) error {
			return c.rebuildPresence()
		},
	},
}

// rebuildPresence drops and recreates the presence triggers, then reseeds
// every derived is_present flag from the layer below it.
func (c *Catalog) rebuildPresence() error {
	for _, name := range presenceTriggerNames {
		if _, err := c.conn.Exec("DROP TRIGGER IF EXISTS " + name); err != nil {
			return err
		}
	}
	if _, err := c.conn.Exec(schemaTriggers); err != nil {
		return err
	}
	reseed := []string{
		`UPDATE folders SET is_present = (
			SELECT d.is_present FROM devices d WHERE d.id = folders.device_id)`,
		`UPDATE files SET is_present = COALESCE((
			SELECT f.is_present FROM folders f WHERE f.id = files.folder_id), is_present)`,
		`UPDATE media SET is_present = EXISTS(
			SELECT 1 FROM files WHERE files.media_id = media.id AND files.is_present = 1)
			WHERE EXISTS(SELECT 1 FROM files WHERE files.media_id = media.id)`,
		`UPDATE album_tracks SET is_present = (
			SELECT m.is_present FROM media m WHERE m.id = album_tracks.media_id)`,
		`UPDATE albums SET is_present = EXISTS(
			SELECT 1 FROM album_tracks t WHERE t.album_id = albums.id AND t.is_present = 1)
			WHERE nb_tracks > 0`,
		`UPDATE artists SET is_present = (
			EXISTS(SELECT 1 FROM album_tracks t WHERE t.artist_id = artists.id AND t.is_present = 1)
			OR EXISTS(SELECT 1 FROM albums a WHERE a.artist_id = artists.id AND a.is_present = 1))
			WHERE nb_tracks > 0 OR nb_albums > 0`,
	}
	for _, q := range reseed {
		if _, err := c.conn.Exec(q); err != nil {
			return err
		}
	}
	return nil
}
