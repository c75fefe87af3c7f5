package catalog

// Schema model version persisted in the settings table. Databases newer
// than this are unreadable and get rebuilt.
const ModelVersion = 13

// schemaTables creates every entity table. Folder paths and file MRLs are
// stored percent-encoded; for removable devices they are relative to the
// device mountpoint, never containing it.
const schemaTables = `
CREATE TABLE IF NOT EXISTS settings (
  db_model_version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  uuid TEXT UNIQUE NOT NULL,
  scheme TEXT NOT NULL DEFAULT 'file',
  is_removable INTEGER NOT NULL DEFAULT 0,
  is_present INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS folders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL,
  parent_id INTEGER REFERENCES folders(id) ON DELETE CASCADE,
  device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
  is_blacklisted INTEGER NOT NULL DEFAULT 0,
  is_present INTEGER NOT NULL DEFAULT 1,
  is_removable INTEGER NOT NULL DEFAULT 0,
  UNIQUE(device_id, path)
);

CREATE INDEX IF NOT EXISTS idx_folders_device ON folders(device_id);
CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);

CREATE TABLE IF NOT EXISTS media (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  type INTEGER NOT NULL DEFAULT 0,
  sub_type INTEGER NOT NULL DEFAULT 0,
  title TEXT,
  filename TEXT,
  duration INTEGER NOT NULL DEFAULT -1,
  play_count INTEGER NOT NULL DEFAULT 0,
  last_played_date INTEGER,
  insertion_date INTEGER NOT NULL,
  release_date INTEGER,
  thumbnail TEXT,
  is_favorite INTEGER NOT NULL DEFAULT 0,
  is_present INTEGER NOT NULL DEFAULT 1,
  is_p2p INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_media_type ON media(type, sub_type);
CREATE INDEX IF NOT EXISTS idx_media_present ON media(is_present);

CREATE TABLE IF NOT EXISTS files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER REFERENCES media(id) ON DELETE CASCADE,
  playlist_id INTEGER REFERENCES playlists(id) ON DELETE CASCADE,
  mrl TEXT NOT NULL,
  type INTEGER NOT NULL DEFAULT 0,
  last_modification_date INTEGER,
  size INTEGER NOT NULL DEFAULT 0,
  folder_id INTEGER REFERENCES folders(id) ON DELETE CASCADE,
  is_present INTEGER NOT NULL DEFAULT 1,
  is_removable INTEGER NOT NULL DEFAULT 0,
  is_external INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_files_folder_mrl ON files(folder_id, mrl)
  WHERE folder_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_files_external_mrl ON files(mrl)
  WHERE folder_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_files_media ON files(media_id);

CREATE TABLE IF NOT EXISTS artists (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE,
  short_bio TEXT,
  artwork_mrl TEXT,
  nb_albums INTEGER NOT NULL DEFAULT 0,
  nb_tracks INTEGER NOT NULL DEFAULT 0,
  mb_id TEXT,
  is_present INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS albums (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT,
  artist_id INTEGER REFERENCES artists(id) ON DELETE SET NULL,
  release_year INTEGER,
  short_summary TEXT,
  artwork_mrl TEXT,
  nb_tracks INTEGER NOT NULL DEFAULT 0,
  duration INTEGER NOT NULL DEFAULT 0,
  is_present INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist_id);

CREATE TABLE IF NOT EXISTS genres (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS album_tracks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
  duration INTEGER NOT NULL DEFAULT 0,
  artist_id INTEGER REFERENCES artists(id) ON DELETE SET NULL,
  genre_id INTEGER REFERENCES genres(id),
  track_number INTEGER,
  album_id INTEGER NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
  disc_number INTEGER,
  is_present INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_tracks_media ON album_tracks(media_id);
CREATE INDEX IF NOT EXISTS idx_tracks_album_genre_artist
  ON album_tracks(album_id, genre_id, artist_id);

CREATE TABLE IF NOT EXISTS shows (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT,
  release_date INTEGER,
  short_summary TEXT,
  artwork_mrl TEXT,
  tvdb_id TEXT
);

CREATE TABLE IF NOT EXISTS show_episodes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
  artwork_mrl TEXT,
  episode_number INTEGER,
  title TEXT,
  season_number INTEGER,
  episode_summary TEXT,
  tvdb_id TEXT,
  show_id INTEGER REFERENCES shows(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_episodes_media ON show_episodes(media_id);

CREATE TABLE IF NOT EXISTS movies (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
  title TEXT,
  summary TEXT,
  artwork_mrl TEXT,
  imdb_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_movies_media ON movies(media_id);

CREATE TABLE IF NOT EXISTS playlists (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT,
  file_id INTEGER REFERENCES files(id) ON DELETE CASCADE,
  creation_date INTEGER NOT NULL,
  artwork_mrl TEXT
);

CREATE TABLE IF NOT EXISTS playlist_media (
  media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
  playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  PRIMARY KEY (media_id, playlist_id)
);

CREATE TABLE IF NOT EXISTS labels (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS label_media (
  label_id INTEGER NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
  media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
  PRIMARY KEY (label_id, media_id)
);

CREATE TABLE IF NOT EXISTS history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  mrl TEXT UNIQUE NOT NULL,
  insertion_date INTEGER NOT NULL,
  is_favorite INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tasks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  step INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  mrl TEXT UNIQUE NOT NULL,
  file_id INTEGER REFERENCES files(id) ON DELETE CASCADE,
  parent_folder_id INTEGER REFERENCES folders(id) ON DELETE CASCADE,
  parent_playlist_id INTEGER REFERENCES playlists(id) ON DELETE CASCADE,
  parent_playlist_index INTEGER
);

CREATE TABLE IF NOT EXISTS audio_tracks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  codec TEXT,
  bitrate INTEGER,
  samplerate INTEGER,
  nb_channels INTEGER,
  language TEXT,
  description TEXT,
  media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_audio_tracks_media ON audio_tracks(media_id);

CREATE TABLE IF NOT EXISTS video_tracks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  codec TEXT,
  width INTEGER,
  height INTEGER,
  fps REAL,
  language TEXT,
  description TEXT,
  media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_video_tracks_media ON video_tracks(media_id);
`

// schemaFts creates the full-text shadow tables. Each mirrors its entity's
// searchable column with rowid = entity id.
const schemaFts = `
CREATE VIRTUAL TABLE IF NOT EXISTS media_fts USING fts5(title);
CREATE VIRTUAL TABLE IF NOT EXISTS albums_fts USING fts5(title);
CREATE VIRTUAL TABLE IF NOT EXISTS artists_fts USING fts5(name);
CREATE VIRTUAL TABLE IF NOT EXISTS genres_fts USING fts5(name);
CREATE VIRTUAL TABLE IF NOT EXISTS playlists_fts USING fts5(name);
`

// schemaTriggers installs the invariant-preserving trigger network. The
// cascades rely on recursive_triggers = ON: a device flip reaches artists
// through five trigger hops.
const schemaTriggers = `
-- presence propagation: devices -> folders -> files -> media -> album_tracks
-- -> albums/artists
CREATE TRIGGER IF NOT EXISTS device_presence
AFTER UPDATE OF is_present ON devices
BEGIN
  UPDATE folders SET is_present = new.is_present WHERE device_id = new.id;
END;

CREATE TRIGGER IF NOT EXISTS folder_presence
AFTER UPDATE OF is_present ON folders
BEGIN
  UPDATE files SET is_present = new.is_present WHERE folder_id = new.id;
END;

CREATE TRIGGER IF NOT EXISTS file_presence
AFTER UPDATE OF is_present ON files
WHEN new.media_id IS NOT NULL
BEGIN
  UPDATE media SET is_present = EXISTS(
    SELECT 1 FROM files WHERE media_id = new.media_id AND is_present = 1
  ) WHERE id = new.media_id;
END;

CREATE TRIGGER IF NOT EXISTS media_presence
AFTER UPDATE OF is_present ON media
BEGIN
  UPDATE album_tracks SET is_present = new.is_present WHERE media_id = new.id;
END;

CREATE TRIGGER IF NOT EXISTS track_presence
AFTER UPDATE OF is_present ON album_tracks
BEGIN
  UPDATE albums SET is_present = EXISTS(
    SELECT 1 FROM album_tracks WHERE album_id = new.album_id AND is_present = 1
  ) WHERE id = new.album_id;
  UPDATE artists SET is_present = (
    EXISTS(SELECT 1 FROM album_tracks WHERE artist_id = new.artist_id AND is_present = 1)
    OR EXISTS(SELECT 1 FROM albums WHERE artist_id = new.artist_id AND is_present = 1)
  ) WHERE id = new.artist_id AND new.artist_id IS NOT NULL;
END;

-- an artist is present when any of its albums OR any of its tracks is.
-- Compilations split the two: the album belongs to Various Artists while
-- each track keeps its performer, so the album hop is the only path that
-- reaches the album artist.
CREATE TRIGGER IF NOT EXISTS album_presence
AFTER UPDATE OF is_present ON albums
WHEN new.artist_id IS NOT NULL
BEGIN
  UPDATE artists SET is_present = (
    EXISTS(SELECT 1 FROM albums WHERE artist_id = new.artist_id AND is_present = 1)
    OR EXISTS(SELECT 1 FROM album_tracks WHERE artist_id = new.artist_id AND is_present = 1)
  ) WHERE id = new.artist_id;
END;

-- a media whose last file is gone is gone too
CREATE TRIGGER IF NOT EXISTS cascade_file_deletion
AFTER DELETE ON files
WHEN old.media_id IS NOT NULL
  AND NOT EXISTS(SELECT 1 FROM files WHERE media_id = old.media_id)
BEGIN
  DELETE FROM media WHERE id = old.media_id;
END;

-- track counters; empty albums and non-default empty artists are deleted.
-- artists 1 and 2 are the seeded Unknown Artist / Various Artists rows.
CREATE TRIGGER IF NOT EXISTS add_album_track
AFTER INSERT ON album_tracks
BEGIN
  UPDATE albums SET
    nb_tracks = nb_tracks + 1,
    duration = duration + max(new.duration, 0)
  WHERE id = new.album_id;
  UPDATE artists SET nb_tracks = nb_tracks + 1
  WHERE id = new.artist_id AND new.artist_id IS NOT NULL;
END;

CREATE TRIGGER IF NOT EXISTS delete_album_track
AFTER DELETE ON album_tracks
BEGIN
  UPDATE albums SET
    nb_tracks = nb_tracks - 1,
    duration = max(duration - max(old.duration, 0), 0)
  WHERE id = old.album_id;
  UPDATE artists SET nb_tracks = nb_tracks - 1
  WHERE id = old.artist_id AND old.artist_id IS NOT NULL;
  DELETE FROM albums WHERE id = old.album_id AND nb_tracks = 0;
  DELETE FROM artists WHERE id = old.artist_id AND nb_tracks = 0 AND nb_albums = 0 AND id > 2;
END;

CREATE TRIGGER IF NOT EXISTS add_album
AFTER INSERT ON albums
WHEN new.artist_id IS NOT NULL
BEGIN
  UPDATE artists SET nb_albums = nb_albums + 1 WHERE id = new.artist_id;
END;

CREATE TRIGGER IF NOT EXISTS delete_album
AFTER DELETE ON albums
WHEN old.artist_id IS NOT NULL
BEGIN
  UPDATE artists SET nb_albums = nb_albums - 1 WHERE id = old.artist_id;
  DELETE FROM artists WHERE id = old.artist_id AND nb_tracks = 0 AND nb_albums = 0 AND id > 2;
END;

-- history is a capped log of externally streamed MRLs
CREATE TRIGGER IF NOT EXISTS limit_history
AFTER INSERT ON history
BEGIN
  DELETE FROM history WHERE id IN (
    SELECT id FROM history ORDER BY insertion_date DESC, id DESC LIMIT -1 OFFSET 100
  );
END;

-- full-text shadow table sync
CREATE TRIGGER IF NOT EXISTS media_fts_ai AFTER INSERT ON media BEGIN
  INSERT INTO media_fts(rowid, title) VALUES (new.id, new.title);
END;
CREATE TRIGGER IF NOT EXISTS media_fts_ad AFTER DELETE ON media BEGIN
  DELETE FROM media_fts WHERE rowid = old.id;
END;
CREATE TRIGGER IF NOT EXISTS media_fts_au AFTER UPDATE OF title ON media BEGIN
  DELETE FROM media_fts WHERE rowid = old.id;
  INSERT INTO media_fts(rowid, title) VALUES (new.id, new.title);
END;

CREATE TRIGGER IF NOT EXISTS albums_fts_ai AFTER INSERT ON albums BEGIN
  INSERT INTO albums_fts(rowid, title) VALUES (new.id, new.title);
END;
CREATE TRIGGER IF NOT EXISTS albums_fts_ad AFTER DELETE ON albums BEGIN
  DELETE FROM albums_fts WHERE rowid = old.id;
END;
CREATE TRIGGER IF NOT EXISTS albums_fts_au AFTER UPDATE OF title ON albums BEGIN
  DELETE FROM albums_fts WHERE rowid = old.id;
  INSERT INTO albums_fts(rowid, title) VALUES (new.id, new.title);
END;

CREATE TRIGGER IF NOT EXISTS artists_fts_ai AFTER INSERT ON artists BEGIN
  INSERT INTO artists_fts(rowid, name) VALUES (new.id, new.name);
END;
CREATE TRIGGER IF NOT EXISTS artists_fts_ad AFTER DELETE ON artists BEGIN
  DELETE FROM artists_fts WHERE rowid = old.id;
END;

CREATE TRIGGER IF NOT EXISTS genres_fts_ai AFTER INSERT ON genres BEGIN
  INSERT INTO genres_fts(rowid, name) VALUES (new.id, new.name);
END;
CREATE TRIGGER IF NOT EXISTS genres_fts_ad AFTER DELETE ON genres BEGIN
  DELETE FROM genres_fts WHERE rowid = old.id;
END;

CREATE TRIGGER IF NOT EXISTS playlists_fts_ai AFTER INSERT ON playlists BEGIN
  INSERT INTO playlists_fts(rowid, name) VALUES (new.id, new.name);
END;
CREATE TRIGGER IF NOT EXISTS playlists_fts_ad AFTER DELETE ON playlists BEGIN
  DELETE FROM playlists_fts WHERE rowid = old.id;
END;
CREATE TRIGGER IF NOT EXISTS playlists_fts_au AFTER UPDATE OF name ON playlists BEGIN
  DELETE FROM playlists_fts WHERE rowid = old.id;
  INSERT INTO playlists_fts(rowid, name) VALUES (new.id, new.name);
END;
`

// presenceTriggerNames lists the triggers migration 12->13 rebuilds.
var presenceTriggerNames = []string{
	"device_presence",
	"folder_presence",
	"file_presence",
	"media_presence",
	"track_presence",
	"album_presence",
}

// seedRows installs the settings singleton and the two default artists,
// which are exempt from auto-deletion.
const seedRows = `
INSERT INTO settings (db_model_version) VALUES (%d);
INSERT INTO artists (id, name, nb_albums, nb_tracks, is_present)
  VALUES (1, 'Unknown Artist', 0, 0, 1);
INSERT INTO artists (id, name, nb_albums, nb_tracks, is_present)
  VALUES (2, 'Various Artists', 0, 0, 1);
`

const (
	// UnknownArtistID is the artist rows with no tag information attach to.
	UnknownArtistID = 1
	// VariousArtistsID is used for multi-artist compilations.
	VariousArtistsID = 2
)
