// Package vfs abstracts the filesystems the discoverer crawls. Directories
// and files are read through an afero.Fs so the whole discovery path runs
// unchanged against an in-memory filesystem in tests, and storage volumes
// are identified by UUID so a removable drive keeps its identity across
// mount points.
package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Device describes one storage volume as reported by the device lister.
type Device struct {
	UUID       string
	Mountpoint string
	Removable  bool
}

// DeviceLister enumerates mounted volumes. The embedding host provides one;
// NewLocalLister covers the common single-disk case.
type DeviceLister interface {
	Devices() ([]Device, error)
}

// Entry is one directory entry as seen by the crawler.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
	MTime int64
}

// FS reads directories and files for the discoverer.
type FS struct {
	fs afero.Fs
}

// New wraps an afero filesystem.
func New(fs afero.Fs) *FS {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FS{fs: fs}
}

// Afero exposes the wrapped filesystem, e.g. for thumbnail writes.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

// ReadDir lists path sorted by name.
func (f *FS) ReadDir(path string) ([]Entry, error) {
	infos, err := afero.ReadDir(f.fs, path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:  info.Name(),
			IsDir: info.IsDir(),
			Size:  info.Size(),
			MTime: info.ModTime().Unix(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Stat stats a single path.
func (f *FS) Stat(path string) (Entry, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Name:  info.Name(),
		IsDir: info.IsDir(),
		Size:  info.Size(),
		MTime: info.ModTime().Unix(),
	}, nil
}

// Exists reports whether path exists.
func (f *FS) Exists(path string) bool {
	_, err := f.fs.Stat(path)
	return err == nil
}

// Open opens a file for reading.
func (f *FS) Open(path string) (afero.File, error) {
	return f.fs.Open(path)
}

// LocalLister is the default device lister: it reports the root filesystem
// as a single non-removable device whose UUID is minted once and persisted
// next to the database, plus any removable volumes plugged in at runtime
// through the facade.
type LocalLister struct {
	mu        sync.Mutex
	local     Device
	removable []Device
}

// NewLocalLister creates the default lister. statePath is a small file
// remembering the local volume UUID across runs.
func NewLocalLister(statePath string) (*LocalLister, error) {
	id, err := loadOrMintUUID(statePath)
	if err != nil {
		return nil, err
	}
	return &LocalLister{
		local: Device{UUID: id, Mountpoint: "/", Removable: false},
	}, nil
}

func loadOrMintUUID(statePath string) (string, error) {
	if data, err := os.ReadFile(statePath); err == nil {
		id := strings.TrimSpace(string(data))
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(statePath, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to persist device uuid: %w", err)
	}
	return id, nil
}

// Devices returns the known volumes.
func (l *LocalLister) Devices() ([]Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Device, 0, 1+len(l.removable))
	out = append(out, l.local)
	out = append(out, l.removable...)
	return out, nil
}

// Plug registers a removable volume. Replaces a previous entry with the
// same UUID, which is how a remount at a new mountpoint is expressed.
func (l *LocalLister) Plug(d Device) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d.Removable = true
	for i := range l.removable {
		if l.removable[i].UUID == d.UUID {
			l.removable[i] = d
			return
		}
	}
	l.removable = append(l.removable, d)
}

// Unplug removes a removable volume by UUID.
func (l *LocalLister) Unplug(uuid string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.removable {
		if l.removable[i].UUID == uuid {
			l.removable = append(l.removable[:i], l.removable[i+1:]...)
			return
		}
	}
}

// DeviceForPath returns the device whose mountpoint is the longest prefix
// of path, so nested removable mounts win over the root volume.
func DeviceForPath(devices []Device, path string) (Device, bool) {
	var best Device
	bestLen := -1
	for _, d := range devices {
		mp := d.Mountpoint
		if mp != "/" && !strings.HasSuffix(mp, "/") {
			mp += "/"
		}
		if (path == d.Mountpoint || strings.HasPrefix(path, mp)) && len(d.Mountpoint) > bestLen {
			best = d
			bestLen = len(d.Mountpoint)
		}
	}
	return best, bestLen >= 0
}

// RelativeToMount strips the device mountpoint from path. Paths stored for
// removable devices never contain the mountpoint, so remounting elsewhere
// cannot break referential integrity.
func RelativeToMount(d Device, path string) string {
	rel := strings.TrimPrefix(path, d.Mountpoint)
	return strings.TrimPrefix(rel, "/")
}

// JoinMount joins the device's current mountpoint back onto a stored
// relative path.
func JoinMount(d Device, rel string) string {
	return filepath.Join(d.Mountpoint, rel)
}
