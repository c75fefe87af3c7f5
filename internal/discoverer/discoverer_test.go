package discoverer

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/sqlite"
	"github.com/franz/medialib/internal/vfs"
)

type fakeLister struct {
	mu      sync.Mutex
	devices []vfs.Device
}

func (l *fakeLister) Devices() ([]vfs.Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]vfs.Device, len(l.devices))
	copy(out, l.devices)
	return out, nil
}

type taskCollector struct {
	mu    sync.Mutex
	tasks []*catalog.Task
}

func (c *taskCollector) Push(t *catalog.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, t)
}

func (c *taskCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	conn, err := sqlite.Open(filepath.Join(t.TempDir(), "disc.db"))
	if err != nil {
		t.Fatalf("failed to open connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	c := catalog.New(conn)
	if err := c.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return c
}

func writeFile(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtensionWhitelist(t *testing.T) {
	cases := []struct {
		ext  string
		want bool
	}{
		{"mp3", true},
		{"MP3", true},
		{"FlAc", true},
		{"mkv", true},
		{"txt", false},
		{"exe", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsSupportedExtension(c.ext); got != c.want {
			t.Errorf("IsSupportedExtension(%q) = %v, want %v", c.ext, got, c.want)
		}
	}
}

func TestWhitelistIsSorted(t *testing.T) {
	exts := SupportedExtensions()
	for i := 1; i < len(exts); i++ {
		if exts[i-1] >= exts[i] {
			t.Fatalf("whitelist out of order at %q >= %q", exts[i-1], exts[i])
		}
	}
}

func TestProbeDecisions(t *testing.T) {
	p := CrawlerProbe{}
	cases := []struct {
		entry vfs.Entry
		want  Decision
	}{
		{vfs.Entry{Name: "music", IsDir: true}, DecisionDescend},
		{vfs.Entry{Name: ".git", IsDir: true}, DecisionSkip},
		{vfs.Entry{Name: ".hidden.mp3"}, DecisionSkip},
		{vfs.Entry{Name: "song.mp3"}, DecisionEnqueue},
		{vfs.Entry{Name: "SONG.FLAC"}, DecisionEnqueue},
		{vfs.Entry{Name: "readme.txt"}, DecisionSkip},
		{vfs.Entry{Name: "noext"}, DecisionSkip},
	}
	for _, c := range cases {
		if got := p.Probe("/x", c.entry); got != c.want {
			t.Errorf("Probe(%q) = %v, want %v", c.entry.Name, got, c.want)
		}
	}
}

func newTestCrawler(t *testing.T, memfs afero.Fs, lister vfs.DeviceLister) (*Crawler, *catalog.Catalog, *taskCollector) {
	t.Helper()
	cat := openTestCatalog(t)
	sink := &taskCollector{}
	crawler := NewCrawler(cat, vfs.New(memfs), lister, sink, nil)
	return crawler, cat, sink
}

func TestDiscoverEnqueuesWhitelistedFiles(t *testing.T) {
	memfs := afero.NewMemMapFs()
	writeFile(t, memfs, "/music/rock/a.mp3")
	writeFile(t, memfs, "/music/rock/b.FLAC")
	writeFile(t, memfs, "/music/notes.txt")
	writeFile(t, memfs, "/music/.hidden/x.mp3")

	lister := &fakeLister{devices: []vfs.Device{{UUID: "root", Mountpoint: "/"}}}
	crawler, cat, sink := newTestCrawler(t, memfs, lister)

	if err := crawler.Discover("/music"); err != nil {
		t.Fatalf("discover failed: %v", err)
	}

	if sink.count() != 2 {
		t.Errorf("expected 2 tasks, got %d", sink.count())
	}

	eps, err := cat.EntryPoints()
	if err != nil || len(eps) != 1 {
		t.Fatalf("expected one entry point, got %d (%v)", len(eps), err)
	}

	subs, err := cat.SubFolders(eps[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Errorf("expected one subfolder (rock), got %d", len(subs))
	}
}

func TestRediscoverIsIdempotent(t *testing.T) {
	memfs := afero.NewMemMapFs()
	writeFile(t, memfs, "/music/a.mp3")

	lister := &fakeLister{devices: []vfs.Device{{UUID: "root", Mountpoint: "/"}}}
	crawler, cat, sink := newTestCrawler(t, memfs, lister)

	if err := crawler.Discover("/music"); err != nil {
		t.Fatal(err)
	}
	first := sink.count()

	if err := crawler.Discover("/music"); err != nil {
		t.Fatal(err)
	}
	if sink.count() != first {
		t.Errorf("second discovery enqueued new tasks: %d -> %d", first, sink.count())
	}

	var fileRows int
	if err := cat.Conn().QueryRow("SELECT COUNT(*) FROM files").Scan(&fileRows); err != nil {
		t.Fatal(err)
	}
	if fileRows != 1 {
		t.Errorf("second discovery duplicated file rows: %d", fileRows)
	}
}

func TestModifiedFileIsReenqueued(t *testing.T) {
	memfs := afero.NewMemMapFs()
	writeFile(t, memfs, "/music/a.mp3")

	lister := &fakeLister{devices: []vfs.Device{{UUID: "root", Mountpoint: "/"}}}
	crawler, cat, sink := newTestCrawler(t, memfs, lister)

	if err := crawler.Discover("/music"); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 task, got %d", sink.count())
	}

	// complete the task, then touch the file
	task := sink.tasks[0]
	task.MarkStep(catalog.StepMetadataExtraction | catalog.StepMetadataAnalysis | catalog.StepThumbnail)
	if err := cat.SaveTaskStep(nil, task); err != nil {
		t.Fatal(err)
	}
	if err := cat.DeleteTask(task.ID); err != nil {
		t.Fatal(err)
	}

	future := time.Now().Add(time.Hour)
	if err := memfs.Chtimes("/music/a.mp3", future, future); err != nil {
		t.Fatal(err)
	}

	if err := crawler.Discover("/music"); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 2 {
		t.Errorf("modified file should be re-enqueued, got %d tasks", sink.count())
	}
}

func TestVanishedFileOnFixedDeviceIsDeleted(t *testing.T) {
	memfs := afero.NewMemMapFs()
	writeFile(t, memfs, "/music/a.mp3")
	writeFile(t, memfs, "/music/b.mp3")

	lister := &fakeLister{devices: []vfs.Device{{UUID: "root", Mountpoint: "/"}}}
	crawler, cat, _ := newTestCrawler(t, memfs, lister)

	if err := crawler.Discover("/music"); err != nil {
		t.Fatal(err)
	}
	if err := memfs.Remove("/music/b.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := crawler.Discover("/music"); err != nil {
		t.Fatal(err)
	}

	var rows int
	if err := cat.Conn().QueryRow("SELECT COUNT(*) FROM files").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("expected vanished file deleted, %d rows left", rows)
	}
}

func TestRemovableDevicePathsAreRelative(t *testing.T) {
	memfs := afero.NewMemMapFs()
	writeFile(t, memfs, "/mnt/a/music/song.mp3")

	lister := &fakeLister{devices: []vfs.Device{
		{UUID: "root", Mountpoint: "/"},
		{UUID: "usb-1", Mountpoint: "/mnt/a", Removable: true},
	}}
	crawler, cat, _ := newTestCrawler(t, memfs, lister)

	if err := crawler.Discover("/mnt/a/music"); err != nil {
		t.Fatal(err)
	}

	rows, err := cat.Conn().Query("SELECT mrl FROM files")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	found := 0
	for rows.Next() {
		var mrl string
		if err := rows.Scan(&mrl); err != nil {
			t.Fatal(err)
		}
		found++
		if strings.Contains(mrl, "/mnt/a") {
			t.Errorf("removable file MRL contains the mountpoint: %q", mrl)
		}
	}
	if found != 1 {
		t.Fatalf("expected one file row, got %d", found)
	}

	var folderPath string
	if err := cat.Conn().QueryRow(
		"SELECT path FROM folders WHERE parent_id IS NULL").Scan(&folderPath); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(folderPath, "/mnt/a") {
		t.Errorf("removable folder path contains the mountpoint: %q", folderPath)
	}
}

func TestRemountAtNewPathKeepsRows(t *testing.T) {
	memfs := afero.NewMemMapFs()
	writeFile(t, memfs, "/mnt/a/music/song.mp3")
	mtime := time.Unix(1700000000, 0)
	if err := memfs.Chtimes("/mnt/a/music/song.mp3", mtime, mtime); err != nil {
		t.Fatal(err)
	}

	lister := &fakeLister{devices: []vfs.Device{
		{UUID: "root", Mountpoint: "/"},
		{UUID: "usb-1", Mountpoint: "/mnt/a", Removable: true},
	}}
	crawler, cat, sink := newTestCrawler(t, memfs, lister)

	if err := crawler.Discover("/mnt/a/music"); err != nil {
		t.Fatal(err)
	}
	var origFileID int64
	if err := cat.Conn().QueryRow("SELECT id FROM files").Scan(&origFileID); err != nil {
		t.Fatal(err)
	}
	firstTasks := sink.count()

	// unplug, remount at a different path
	dev, err := cat.DeviceByUUID("usb-1")
	if err != nil || dev == nil {
		t.Fatal(err)
	}
	if err := cat.SetDevicePresent(dev.ID, false); err != nil {
		t.Fatal(err)
	}
	writeFile(t, memfs, "/mnt/b/music/song.mp3")
	if err := memfs.Chtimes("/mnt/b/music/song.mp3", mtime, mtime); err != nil {
		t.Fatal(err)
	}
	memfs.RemoveAll("/mnt/a")
	lister.mu.Lock()
	lister.devices[1].Mountpoint = "/mnt/b"
	lister.mu.Unlock()
	if err := cat.SetDevicePresent(dev.ID, true); err != nil {
		t.Fatal(err)
	}

	if err := crawler.Discover("/mnt/b/music"); err != nil {
		t.Fatal(err)
	}

	var fileRows int
	if err := cat.Conn().QueryRow("SELECT COUNT(*) FROM files").Scan(&fileRows); err != nil {
		t.Fatal(err)
	}
	if fileRows != 1 {
		t.Fatalf("remount duplicated file rows: %d", fileRows)
	}
	var id int64
	var present bool
	if err := cat.Conn().QueryRow("SELECT id, is_present FROM files").Scan(&id, &present); err != nil {
		t.Fatal(err)
	}
	if id != origFileID {
		t.Errorf("remount changed the file identity: %d -> %d", origFileID, id)
	}
	if !present {
		t.Error("remounted file should be present")
	}
	// the mtimes match, so no new parse task either
	if sink.count() != firstTasks {
		t.Errorf("remount enqueued spurious tasks: %d -> %d", firstTasks, sink.count())
	}
}

type nopCallbacks struct{}

func (nopCallbacks) OnDiscoveryStarted(string)          {}
func (nopCallbacks) OnDiscoveryProgress(string, string) {}
func (nopCallbacks) OnDiscoveryCompleted(string, bool)  {}
func (nopCallbacks) OnReloadStarted(string)             {}
func (nopCallbacks) OnReloadCompleted(string, bool)     {}
func (nopCallbacks) OnEntryPointRemoved(string, bool)   {}
func (nopCallbacks) OnEntryPointBanned(string, bool)    {}
func (nopCallbacks) OnEntryPointUnbanned(string, bool)  {}
func (nopCallbacks) OnDiscovererIdleChanged(bool)       {}

func TestWorkerProcessesCommandsSerially(t *testing.T) {
	memfs := afero.NewMemMapFs()
	writeFile(t, memfs, "/music/a.mp3")

	lister := &fakeLister{devices: []vfs.Device{{UUID: "root", Mountpoint: "/"}}}
	crawler, cat, sink := newTestCrawler(t, memfs, lister)
	w := NewWorker(crawler, cat, lister, nopCallbacks{})
	defer w.Stop()

	w.Discover("/music")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sink.count() == 1 && w.IsIdle() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("worker did not run discovery: %d tasks", sink.count())
	}
}

func TestBannedFolderIsNotDiscovered(t *testing.T) {
	memfs := afero.NewMemMapFs()
	writeFile(t, memfs, "/music/a.mp3")

	lister := &fakeLister{devices: []vfs.Device{{UUID: "root", Mountpoint: "/"}}}
	crawler, cat, sink := newTestCrawler(t, memfs, lister)
	w := NewWorker(crawler, cat, lister, nopCallbacks{})
	defer w.Stop()

	w.Ban("/music")
	w.Discover("/music")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if w.IsIdle() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	// let any wrongly enqueued work surface
	time.Sleep(50 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("banned folder produced %d tasks", sink.count())
	}
}
