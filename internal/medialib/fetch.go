package medialib

import "github.com/franz/medialib/internal/catalog"

// Thin fetch/create facades. All of them delegate to the catalog; they
// exist so embedding hosts don't reach into internals for the common
// operations.

// Album fetches one album by id.
func (m *MediaLibrary) Album(id int64) (*catalog.Album, error) {
	return m.cat.AlbumByID(id)
}

// Albums lists present albums.
func (m *MediaLibrary) Albums() ([]*catalog.Album, error) {
	return m.cat.Albums()
}

// Artist fetches one artist by id.
func (m *MediaLibrary) Artist(id int64) (*catalog.Artist, error) {
	return m.cat.ArtistByID(id)
}

// Artists lists present artists with at least one track.
func (m *MediaLibrary) Artists() ([]*catalog.Artist, error) {
	return m.cat.Artists()
}

// Genres lists all genres.
func (m *MediaLibrary) Genres() ([]*catalog.Genre, error) {
	return m.cat.Genres()
}

// Show fetches one show by id.
func (m *MediaLibrary) Show(id int64) (*catalog.Show, error) {
	return m.cat.ShowByID(id)
}

// Movie fetches one movie by id.
func (m *MediaLibrary) Movie(id int64) (*catalog.Movie, error) {
	return m.cat.MovieByID(id)
}

// AudioFiles lists present audio media.
func (m *MediaLibrary) AudioFiles() ([]*catalog.Media, error) {
	return m.cat.MediaList(catalog.MediaTypeAudio)
}

// VideoFiles lists present video media.
func (m *MediaLibrary) VideoFiles() ([]*catalog.Media, error) {
	return m.cat.MediaList(catalog.MediaTypeVideo)
}

// CreatePlaylist creates an empty named playlist.
func (m *MediaLibrary) CreatePlaylist(name string) (*catalog.Playlist, error) {
	return m.cat.CreatePlaylist(name)
}

// Playlist fetches one playlist by id.
func (m *MediaLibrary) Playlist(id int64) (*catalog.Playlist, error) {
	return m.cat.PlaylistByID(id)
}

// Playlists lists playlists.
func (m *MediaLibrary) Playlists() ([]*catalog.Playlist, error) {
	return m.cat.Playlists()
}

// DeletePlaylist removes a playlist.
func (m *MediaLibrary) DeletePlaylist(id int64) error {
	return m.cat.DeletePlaylist(id)
}

// CreateLabel creates or fetches a label by name.
func (m *MediaLibrary) CreateLabel(name string) (*catalog.Label, error) {
	return m.cat.CreateLabel(name)
}

// History lists the streamed-MRL log, newest first.
func (m *MediaLibrary) History() ([]*catalog.HistoryEntry, error) {
	return m.cat.History()
}

// AddToHistory records an externally streamed MRL.
func (m *MediaLibrary) AddToHistory(mrl string) error {
	return m.cat.InsertHistory(mrl)
}

// ClearHistory wipes the streamed-MRL log.
func (m *MediaLibrary) ClearHistory() error {
	return m.cat.ClearHistory()
}
