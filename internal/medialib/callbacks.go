package medialib

// Callbacks is the host-facing event surface. Batched entity callbacks are
// debounced and deduplicated; ids within a batch are ascending. All
// callbacks run on engine goroutines and must not block.
type Callbacks interface {
	OnMediaAdded(ids []int64)
	OnMediaUpdated(ids []int64)
	OnMediaDeleted(ids []int64)

	OnArtistsAdded(ids []int64)
	OnArtistsModified(ids []int64)
	OnArtistsDeleted(ids []int64)

	OnAlbumsAdded(ids []int64)
	OnAlbumsModified(ids []int64)
	OnAlbumsDeleted(ids []int64)

	OnTracksAdded(ids []int64)
	OnTracksDeleted(ids []int64)

	OnPlaylistsAdded(ids []int64)
	OnPlaylistsModified(ids []int64)
	OnPlaylistsDeleted(ids []int64)

	OnDiscoveryStarted(entryPoint string)
	OnDiscoveryProgress(entryPoint string)
	OnDiscoveryCompleted(entryPoint string, success bool)
	OnReloadStarted(entryPoint string)
	OnReloadCompleted(entryPoint string, success bool)
	OnEntryPointRemoved(entryPoint string, success bool)
	OnEntryPointBanned(entryPoint string, success bool)
	OnEntryPointUnbanned(entryPoint string, success bool)

	OnParsingStatsUpdated(percent float64)
	OnBackgroundTasksIdleChanged(idle bool)
}

// NopCallbacks is an embeddable all-no-op implementation so hosts override
// only what they care about.
type NopCallbacks struct{}

func (NopCallbacks) OnMediaAdded([]int64)              {}
func (NopCallbacks) OnMediaUpdated([]int64)            {}
func (NopCallbacks) OnMediaDeleted([]int64)            {}
func (NopCallbacks) OnArtistsAdded([]int64)            {}
func (NopCallbacks) OnArtistsModified([]int64)         {}
func (NopCallbacks) OnArtistsDeleted([]int64)          {}
func (NopCallbacks) OnAlbumsAdded([]int64)             {}
func (NopCallbacks) OnAlbumsModified([]int64)          {}
func (NopCallbacks) OnAlbumsDeleted([]int64)           {}
func (NopCallbacks) OnTracksAdded([]int64)             {}
func (NopCallbacks) OnTracksDeleted([]int64)           {}
func (NopCallbacks) OnPlaylistsAdded([]int64)          {}
func (NopCallbacks) OnPlaylistsModified([]int64)       {}
func (NopCallbacks) OnPlaylistsDeleted([]int64)        {}
func (NopCallbacks) OnDiscoveryStarted(string)         {}
func (NopCallbacks) OnDiscoveryProgress(string)        {}
func (NopCallbacks) OnDiscoveryCompleted(string, bool) {}
func (NopCallbacks) OnReloadStarted(string)            {}
func (NopCallbacks) OnReloadCompleted(string, bool)    {}
func (NopCallbacks) OnEntryPointRemoved(string, bool)  {}
func (NopCallbacks) OnEntryPointBanned(string, bool)   {}
func (NopCallbacks) OnEntryPointUnbanned(string, bool) {}
func (NopCallbacks) OnParsingStatsUpdated(float64)     {}
func (NopCallbacks) OnBackgroundTasksIdleChanged(bool) {}
