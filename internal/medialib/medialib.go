// Package medialib is the embeddable facade over the catalog engine: it
// owns the storage connection, the discoverer, the parser chain and the
// notifier, and exposes the synchronous host API.
package medialib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/discoverer"
	"github.com/franz/medialib/internal/notifier"
	"github.com/franz/medialib/internal/parser"
	"github.com/franz/medialib/internal/sqlite"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

// InitResult is what Initialize did to the library.
type InitResult int

const (
	InitSuccess InitResult = iota
	InitAlreadyInitialized
	InitDbReset
	InitFailed
)

func (r InitResult) String() string {
	switch r {
	case InitSuccess:
		return "success"
	case InitAlreadyInitialized:
		return "already initialized"
	case InitDbReset:
		return "database reset"
	default:
		return "failed"
	}
}

// Config assembles a library instance. Zero values get working defaults:
// OS filesystem, local device lister, JPEG compressor, no-op callbacks.
// Without a Decoder the thumbnail stage is skipped entirely.
type Config struct {
	DBPath       string
	ThumbnailDir string
	FS           afero.Fs
	DeviceLister vfs.DeviceLister
	Decoder      parser.Decoder
	Compressor   parser.ImageCompressor
	Callbacks    Callbacks
	// WatchEntryPoints enables the fsnotify watcher that schedules
	// reloads when an entry point changes on disk.
	WatchEntryPoints bool
}

// MediaLibrary is the top-level engine object.
type MediaLibrary struct {
	cfg    Config
	cb     Callbacks
	fs     *vfs.FS
	lister vfs.DeviceLister

	conn    *sqlite.Conn
	cat     *catalog.Catalog
	parser  *parser.Parser
	disc    *discoverer.Worker
	notif   *notifier.Notifier
	watcher *vfs.Watcher

	// deviceMu makes plug/unplug atomic with respect to ongoing discovery
	deviceMu sync.Mutex

	idleMu     sync.Mutex
	discIdle   bool
	parserIdle bool
	bgIdle     bool

	initMu      sync.Mutex
	initialized bool
}

// New builds an uninitialized library.
func New(cfg Config) *MediaLibrary {
	if cfg.Callbacks == nil {
		cfg.Callbacks = NopCallbacks{}
	}
	if cfg.Compressor == nil {
		cfg.Compressor = parser.NewJpegCompressor()
	}
	return &MediaLibrary{
		cfg:        cfg,
		cb:         cfg.Callbacks,
		fs:         vfs.New(cfg.FS),
		discIdle:   true,
		parserIdle: true,
		bgIdle:     true,
	}
}

// Initialize opens the database, migrates it and starts the background
// machinery. Never panics across this boundary; catastrophic failures
// return InitFailed.
func (m *MediaLibrary) Initialize() InitResult {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized {
		return InitAlreadyInitialized
	}

	if err := os.MkdirAll(m.cfg.ThumbnailDir, 0o755); err != nil && !os.IsExist(err) {
		util.ErrorLog("failed to create thumbnail directory: %v", err)
		return InitFailed
	}

	m.lister = m.cfg.DeviceLister
	if m.lister == nil {
		lister, err := vfs.NewLocalLister(filepath.Join(filepath.Dir(m.cfg.DBPath), "device-uuid"))
		if err != nil {
			util.ErrorLog("failed to set up device lister: %v", err)
			return InitFailed
		}
		m.lister = lister
	}

	conn, err := sqlite.Open(m.cfg.DBPath)
	if err != nil {
		util.ErrorLog("failed to open database: %v", err)
		return InitFailed
	}
	m.conn = conn
	m.cat = catalog.New(conn)

	migration, rescan, err := m.cat.Migrate()
	if migration == catalog.MigrationFailed {
		util.ErrorLog("database migration failed: %v", err)
		conn.Close()
		m.conn = nil
		return InitFailed
	}

	m.notif = notifier.New(&callbackSink{cb: m.cb})
	m.cat.SetChangeListener(m.onRowChange)

	services := []parser.Service{
		parser.NewMetadataExtractor(m.fs, m),
		parser.NewMetadataAnalyzer(),
	}
	if m.cfg.Decoder != nil {
		services = append(services,
			parser.NewThumbnailer(m.cfg.Decoder, m.cfg.Compressor, m, m.cfg.ThumbnailDir))
	}
	m.parser = parser.New(m.cat, &parserEvents{m: m}, services...)
	if !m.parser.Start() {
		util.ErrorLog("parser failed to start")
		conn.Close()
		m.conn = nil
		return InitFailed
	}

	crawler := discoverer.NewCrawler(m.cat, m.fs, m.lister, m.parser,
		func(entryPoint, folder string) { m.cb.OnDiscoveryProgress(entryPoint) })
	m.disc = discoverer.NewWorker(crawler, m.cat, m.lister, &discovererEvents{m: m})

	if m.cfg.WatchEntryPoints {
		w, err := vfs.NewWatcher(func(root string) { m.disc.Reload(root) })
		if err != nil {
			util.WarnLog("entry point watcher unavailable: %v", err)
		} else {
			m.watcher = w
		}
	}

	if rescan {
		util.InfoLog("migration requested a rescan")
		m.disc.ReloadAll()
	}
	m.parser.Restore()

	m.initialized = true
	if migration == catalog.MigrationReset {
		return InitDbReset
	}
	return InitSuccess
}

// Shutdown stops every worker, drains the notifier and closes the
// database. Idempotent.
func (m *MediaLibrary) Shutdown() {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if !m.initialized {
		return
	}
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.disc.Stop()
	m.parser.Stop()
	m.notif.Stop()
	m.conn.Close()
	m.initialized = false
}

// Catalog exposes entity fetch/create operations directly.
func (m *MediaLibrary) Catalog() *catalog.Catalog {
	return m.cat
}

// --- discovery control ---

// Discover queues a crawl of a new entry point path.
func (m *MediaLibrary) Discover(entryPoint string) {
	m.disc.Discover(normalizeEntryPoint(entryPoint))
	if m.watcher != nil {
		if err := m.watcher.Watch(normalizeEntryPoint(entryPoint)); err != nil {
			util.DebugLog("cannot watch %s: %v", entryPoint, err)
		}
	}
}

// Reload re-crawls every entry point.
func (m *MediaLibrary) Reload() {
	m.disc.ReloadAll()
}

// ReloadEntryPoint re-crawls one entry point.
func (m *MediaLibrary) ReloadEntryPoint(entryPoint string) {
	m.disc.Reload(normalizeEntryPoint(entryPoint))
}

// RemoveEntryPoint removes an entry point and everything under it.
func (m *MediaLibrary) RemoveEntryPoint(entryPoint string) {
	ep := normalizeEntryPoint(entryPoint)
	if m.watcher != nil {
		m.watcher.Unwatch(ep)
	}
	m.disc.Remove(ep)
}

// BanFolder blacklists a folder from discovery.
func (m *MediaLibrary) BanFolder(entryPoint string) {
	m.disc.Ban(normalizeEntryPoint(entryPoint))
}

// UnbanFolder lifts a blacklist.
func (m *MediaLibrary) UnbanFolder(entryPoint string) {
	m.disc.Unban(normalizeEntryPoint(entryPoint))
}

// normalizeEntryPoint accepts both file:// MRLs and plain paths.
func normalizeEntryPoint(ep string) string {
	if strings.Contains(ep, "://") {
		if path, err := vfs.FromMRL(ep); err == nil {
			return filepath.Clean(path)
		}
	}
	return filepath.Clean(ep)
}

// --- background control ---

// PauseBackgroundOperations soft-pauses the parser: in-flight service runs
// complete, workers stop before the next task.
func (m *MediaLibrary) PauseBackgroundOperations() {
	m.parser.Pause()
}

// ResumeBackgroundOperations restarts a paused parser.
func (m *MediaLibrary) ResumeBackgroundOperations() {
	m.parser.Resume()
}

// ForceParserRetry resets retry budgets and re-enqueues unfinished tasks.
func (m *MediaLibrary) ForceParserRetry() {
	if err := m.cat.RecoverUnscannedFiles(); err != nil {
		util.ErrorLog("force retry failed: %v", err)
		return
	}
	m.parser.Restore()
}

// ForceRescan drops derived tables, clears caches and re-runs the whole
// parser chain over known files.
func (m *MediaLibrary) ForceRescan() {
	if err := m.cat.ClearDerived(); err != nil {
		util.ErrorLog("force rescan failed: %v", err)
		return
	}
	m.cat.ClearCaches()
	m.parser.Restore()
}

// IsIdle reports the combined background-idle state.
func (m *MediaLibrary) IsIdle() bool {
	m.idleMu.Lock()
	defer m.idleMu.Unlock()
	return m.bgIdle
}

// --- device lifecycle ---

// OnDevicePlugged makes a removable device present. Folders, files, media
// and the musical model above them flip back to present atomically via
// the trigger network.
func (m *MediaLibrary) OnDevicePlugged(uuid, mountpoint string) {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()
	if l, ok := m.lister.(*vfs.LocalLister); ok {
		l.Plug(vfs.Device{UUID: uuid, Mountpoint: filepath.Clean(mountpoint), Removable: true})
	}
	dev, err := m.cat.DeviceByUUID(uuid)
	if err != nil {
		util.ErrorLog("device plug failed: %v", err)
		return
	}
	if dev == nil {
		// first sighting; discovery will create the row when an entry
		// point lands on it
		return
	}
	if err := m.cat.SetDevicePresent(dev.ID, true); err != nil {
		util.ErrorLog("device plug failed: %v", err)
	}
}

// OnDeviceUnplugged marks a removable device absent. Nothing is deleted;
// every dependent row flips to not-present.
func (m *MediaLibrary) OnDeviceUnplugged(uuid string) {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()
	if l, ok := m.lister.(*vfs.LocalLister); ok {
		l.Unplug(uuid)
	}
	dev, err := m.cat.DeviceByUUID(uuid)
	if err != nil || dev == nil {
		return
	}
	if err := m.cat.SetDevicePresent(dev.ID, false); err != nil {
		util.ErrorLog("device unplug failed: %v", err)
	}
}

// --- lookups ---

// Media fetches one media by id.
func (m *MediaLibrary) Media(id int64) (*catalog.Media, error) {
	return m.cat.MediaByID(id)
}

// MediaByMRL resolves a file:// MRL to its media through the device layer,
// so a remounted drive answers with the original rows.
func (m *MediaLibrary) MediaByMRL(mrl string) (*catalog.Media, error) {
	path, err := vfs.FromMRL(mrl)
	if err != nil {
		return nil, err
	}
	devices, err := m.lister.Devices()
	if err != nil {
		return nil, err
	}
	fsDev, ok := vfs.DeviceForPath(devices, path)
	if !ok {
		return nil, fmt.Errorf("no device for %s", path)
	}
	stored := vfs.ToMRL(path)
	if fsDev.Removable {
		stored = vfs.EncodePath(vfs.RelativeToMount(fsDev, path))
	}
	file, err := m.cat.FileByStoredMRL(stored)
	if err != nil || file == nil {
		return nil, err
	}
	if !file.MediaID.Valid {
		return nil, nil
	}
	return m.cat.MediaByID(file.MediaID.Int64)
}

// --- search ---

// SearchResults aggregates one search across every category.
type SearchResults struct {
	Media     []*catalog.Media
	Albums    []*catalog.Album
	Artists   []*catalog.Artist
	Genres    []*catalog.Genre
	Playlists []*catalog.Playlist
}

// MinSearchLength is the shortest accepted pattern; anything shorter
// returns empty results for every category.
const MinSearchLength = 3

// Search runs the pattern against every category.
func (m *MediaLibrary) Search(pattern string) (*SearchResults, error) {
	res := &SearchResults{}
	if len(pattern) < MinSearchLength {
		return res, nil
	}
	var err error
	if res.Media, err = m.cat.SearchMedia(pattern); err != nil {
		return nil, err
	}
	if res.Albums, err = m.cat.SearchAlbums(pattern); err != nil {
		return nil, err
	}
	if res.Artists, err = m.cat.SearchArtists(pattern); err != nil {
		return nil, err
	}
	if res.Genres, err = m.cat.SearchGenres(pattern); err != nil {
		return nil, err
	}
	if res.Playlists, err = m.cat.SearchPlaylists(pattern); err != nil {
		return nil, err
	}
	return res, nil
}

// SearchMedia matches media titles only.
func (m *MediaLibrary) SearchMedia(pattern string) ([]*catalog.Media, error) {
	return m.cat.SearchMedia(pattern)
}

// SearchAlbums matches album titles only.
func (m *MediaLibrary) SearchAlbums(pattern string) ([]*catalog.Album, error) {
	return m.cat.SearchAlbums(pattern)
}

// SearchArtists matches artist names only.
func (m *MediaLibrary) SearchArtists(pattern string) ([]*catalog.Artist, error) {
	return m.cat.SearchArtists(pattern)
}

// SearchPlaylists matches playlist names only.
func (m *MediaLibrary) SearchPlaylists(pattern string) ([]*catalog.Playlist, error) {
	return m.cat.SearchPlaylists(pattern)
}

// SearchGenre matches genre names only.
func (m *MediaLibrary) SearchGenre(pattern string) ([]*catalog.Genre, error) {
	return m.cat.SearchGenres(pattern)
}

// SupportedExtensions returns the discovery whitelist.
func (m *MediaLibrary) SupportedExtensions() []string {
	return discoverer.SupportedExtensions()
}

// --- internal plumbing ---

// AbsolutePath implements parser.PathResolver: stored MRLs become
// absolute paths via the owning device's current mountpoint.
func (m *MediaLibrary) AbsolutePath(t *catalog.Task) (string, error) {
	if strings.Contains(t.MRL, "://") {
		return vfs.FromMRL(t.MRL)
	}
	// mount-relative: resolve through the parent folder's device
	if !t.ParentFolderID.Valid {
		return "", fmt.Errorf("task %d has a relative MRL and no folder", t.ID)
	}
	folder, err := m.cat.FolderByID(t.ParentFolderID.Int64)
	if err != nil || folder == nil {
		return "", fmt.Errorf("task %d folder unavailable: %w", t.ID, err)
	}
	dev, err := m.cat.DeviceByID(folder.DeviceID)
	if err != nil || dev == nil {
		return "", fmt.Errorf("task %d device unavailable: %w", t.ID, err)
	}
	devices, err := m.lister.Devices()
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if d.UUID == dev.UUID {
			rel, err := vfs.DecodePath(t.MRL)
			if err != nil {
				return "", err
			}
			return vfs.JoinMount(d, rel), nil
		}
	}
	return "", fmt.Errorf("device %s not mounted", dev.UUID)
}

// onRowChange bridges storage hooks into the notifier.
func (m *MediaLibrary) onRowChange(table string, reason sqlite.HookReason, id int64) {
	var entity notifier.Entity
	switch table {
	case catalog.TableMedia:
		entity = notifier.EntityMedia
	case catalog.TableArtists:
		entity = notifier.EntityArtist
	case catalog.TableAlbums:
		entity = notifier.EntityAlbum
	case catalog.TableTracks:
		entity = notifier.EntityTrack
	case catalog.TablePlaylists:
		entity = notifier.EntityPlaylist
	default:
		return
	}
	var op notifier.Op
	switch reason {
	case sqlite.HookInsert:
		op = notifier.OpAdded
	case sqlite.HookUpdate:
		op = notifier.OpModified
	case sqlite.HookDelete:
		op = notifier.OpRemoved
	}
	m.notif.Post(entity, op, id)
}

func (m *MediaLibrary) updateIdle(disc, parserIdle *bool) {
	m.idleMu.Lock()
	if disc != nil {
		m.discIdle = *disc
	}
	if parserIdle != nil {
		m.parserIdle = *parserIdle
	}
	combined := m.discIdle && m.parserIdle
	changed := combined != m.bgIdle
	m.bgIdle = combined
	m.idleMu.Unlock()
	if changed {
		m.cb.OnBackgroundTasksIdleChanged(combined)
	}
}

// parserEvents adapts parser callbacks onto the facade.
type parserEvents struct {
	m *MediaLibrary
}

func (e *parserEvents) OnParsingStatsUpdated(percent float64) {
	e.m.cb.OnParsingStatsUpdated(percent)
}

func (e *parserEvents) OnParserIdleChanged(idle bool) {
	e.m.updateIdle(nil, &idle)
}

func (e *parserEvents) OnTaskCompleted(t *catalog.Task) {
	if t.Media != nil {
		e.m.notif.Post(notifier.EntityMedia, notifier.OpModified, t.Media.ID)
	}
}

// discovererEvents adapts discoverer callbacks onto the facade.
type discovererEvents struct {
	m *MediaLibrary
}

func (e *discovererEvents) OnDiscoveryStarted(ep string) {
	e.m.cb.OnDiscoveryStarted(ep)
}

func (e *discovererEvents) OnDiscoveryProgress(ep, folder string) {
	e.m.cb.OnDiscoveryProgress(ep)
}

func (e *discovererEvents) OnDiscoveryCompleted(ep string, ok bool) {
	e.m.cb.OnDiscoveryCompleted(ep, ok)
}

func (e *discovererEvents) OnReloadStarted(ep string) {
	e.m.cb.OnReloadStarted(ep)
}

func (e *discovererEvents) OnReloadCompleted(ep string, ok bool) {
	e.m.cb.OnReloadCompleted(ep, ok)
}

func (e *discovererEvents) OnEntryPointRemoved(ep string, ok bool) {
	e.m.cb.OnEntryPointRemoved(ep, ok)
}

func (e *discovererEvents) OnEntryPointBanned(ep string, ok bool) {
	e.m.cb.OnEntryPointBanned(ep, ok)
}

func (e *discovererEvents) OnEntryPointUnbanned(ep string, ok bool) {
	e.m.cb.OnEntryPointUnbanned(ep, ok)
}

func (e *discovererEvents) OnDiscovererIdleChanged(idle bool) {
	e.m.updateIdle(&idle, nil)
}

// callbackSink adapts notifier batches onto the host callbacks.
type callbackSink struct {
	cb Callbacks
}

func (s *callbackSink) Notify(entity notifier.Entity, op notifier.Op, ids []int64) {
	switch entity {
	case notifier.EntityMedia:
		switch op {
		case notifier.OpAdded:
			s.cb.OnMediaAdded(ids)
		case notifier.OpModified:
			s.cb.OnMediaUpdated(ids)
		case notifier.OpRemoved:
			s.cb.OnMediaDeleted(ids)
		}
	case notifier.EntityArtist:
		switch op {
		case notifier.OpAdded:
			s.cb.OnArtistsAdded(ids)
		case notifier.OpModified:
			s.cb.OnArtistsModified(ids)
		case notifier.OpRemoved:
			s.cb.OnArtistsDeleted(ids)
		}
	case notifier.EntityAlbum:
		switch op {
		case notifier.OpAdded:
			s.cb.OnAlbumsAdded(ids)
		case notifier.OpModified:
			s.cb.OnAlbumsModified(ids)
		case notifier.OpRemoved:
			s.cb.OnAlbumsDeleted(ids)
		}
	case notifier.EntityTrack:
		switch op {
		case notifier.OpAdded:
			s.cb.OnTracksAdded(ids)
		case notifier.OpRemoved:
			s.cb.OnTracksDeleted(ids)
		}
	case notifier.EntityPlaylist:
		switch op {
		case notifier.OpAdded:
			s.cb.OnPlaylistsAdded(ids)
		case notifier.OpModified:
			s.cb.OnPlaylistsModified(ids)
		case notifier.OpRemoved:
			s.cb.OnPlaylistsDeleted(ids)
		}
	}
}
