// Package catalog implements the relational media catalog: the schema and
// its trigger network, the row-backed entities, and the identity caches
// guaranteeing one live object per persisted row.
package catalog

import (
	"fmt"
	"sync/atomic"

	"github.com/franz/medialib/internal/cache"
	"github.com/franz/medialib/internal/sqlite"
)

// Table name tags used for hooks and change notifications.
const (
	TableDevices   = "devices"
	TableFolders   = "folders"
	TableFiles     = "files"
	TableMedia     = "media"
	TableAlbums    = "albums"
	TableTracks    = "album_tracks"
	TableArtists   = "artists"
	TableGenres    = "genres"
	TableShows     = "shows"
	TableEpisodes  = "show_episodes"
	TableMovies    = "movies"
	TablePlaylists = "playlists"
	TableLabels    = "labels"
	TableHistory   = "history"
	TableTasks     = "tasks"
)

// ChangeListener receives committed row changes, after cache eviction. The
// notifier registers one to batch host callbacks.
type ChangeListener func(table string, reason sqlite.HookReason, id int64)

// Catalog is the storage-backed entity layer. All fetches go through the
// per-table identity caches; all mutations go through the Conn so hooks
// fire post-commit.
type Catalog struct {
	conn *sqlite.Conn

	devices   cache.Cache[Device]
	folders   cache.Cache[Folder]
	files     cache.Cache[File]
	media     cache.Cache[Media]
	albums    cache.Cache[Album]
	tracks    cache.Cache[AlbumTrack]
	artists   cache.Cache[Artist]
	genres    cache.Cache[Genre]
	shows     cache.Cache[Show]
	episodes  cache.Cache[ShowEpisode]
	movies    cache.Cache[Movie]
	playlists cache.Cache[Playlist]

	listener atomic.Pointer[ChangeListener]
}

// New wires a Catalog onto an open connection. Row deletions and updates
// evict the matching cache entry before the change listener sees them.
func New(conn *sqlite.Conn) *Catalog {
	c := &Catalog{conn: conn}

	evictors := map[string]func(int64){
		TableDevices:   c.devices.Evict,
		TableFolders:   c.folders.Evict,
		TableFiles:     c.files.Evict,
		TableMedia:     c.media.Evict,
		TableAlbums:    c.albums.Evict,
		TableTracks:    c.tracks.Evict,
		TableArtists:   c.artists.Evict,
		TableGenres:    c.genres.Evict,
		TableShows:     c.shows.Evict,
		TableEpisodes:  c.episodes.Evict,
		TableMovies:    c.movies.Evict,
		TablePlaylists: c.playlists.Evict,
	}
	for table, evict := range evictors {
		table, evict := table, evict
		conn.RegisterHook(table, func(reason sqlite.HookReason, id int64) {
			if reason != sqlite.HookInsert {
				evict(id)
			}
			if l := c.listener.Load(); l != nil {
				(*l)(table, reason, id)
			}
		})
	}
	for _, table := range []string{TableLabels, TableHistory, TableTasks} {
		table := table
		conn.RegisterHook(table, func(reason sqlite.HookReason, id int64) {
			if l := c.listener.Load(); l != nil {
				(*l)(table, reason, id)
			}
		})
	}
	return c
}

// SetChangeListener installs the committed-change listener.
func (c *Catalog) SetChangeListener(l ChangeListener) {
	c.listener.Store(&l)
}

// Conn exposes the storage engine.
func (c *Catalog) Conn() *sqlite.Conn {
	return c.conn
}

// CreateSchema installs tables, FTS shadow tables, triggers and seed rows
// on an empty database.
func (c *Catalog) CreateSchema() error {
	for _, batch := range []string{schemaTables, schemaFts, schemaTriggers} {
		if _, err := c.conn.Exec(batch); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if _, err := c.conn.Exec(fmt.Sprintf(seedRows, ModelVersion)); err != nil {
		return fmt.Errorf("failed to seed database: %w", err)
	}
	return nil
}

// ClearCaches drops every identity cache, e.g. before a full rescan or
// after a bulk migration invalidated rows wholesale.
func (c *Catalog) ClearCaches() {
	c.devices.Clear()
	c.folders.Clear()
	c.files.Clear()
	c.media.Clear()
	c.albums.Clear()
	c.tracks.Clear()
	c.artists.Clear()
	c.genres.Clear()
	c.shows.Clear()
	c.episodes.Clear()
	c.movies.Clear()
	c.playlists.Clear()
}

// evictPresenceCascade drops the caches a presence trigger chain can touch.
// The triggers rewrite rows far from the one we updated, so targeted
// eviction is not possible.
func (c *Catalog) evictPresenceCascade() {
	c.folders.Clear()
	c.files.Clear()
	c.media.Clear()
	c.tracks.Clear()
	c.albums.Clear()
	c.artists.Clear()
}
