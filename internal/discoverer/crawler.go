package discoverer

import (
	"fmt"
	"path/filepath"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/sqlite"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

// TaskSink receives freshly persisted parse tasks. The parser implements
// it.
type TaskSink interface {
	Push(t *catalog.Task)
}

// ProgressFn is called once per crawled folder.
type ProgressFn func(entryPoint, folder string)

// Crawler walks a mount point subtree and reconciles it with the catalog:
// new files become parse tasks, vanished files are deleted or, on
// removable devices, marked not present.
type Crawler struct {
	cat      *catalog.Catalog
	fs       *vfs.FS
	lister   vfs.DeviceLister
	probe    Probe
	sink     TaskSink
	progress ProgressFn
}

// NewCrawler assembles a crawler with the default probe.
func NewCrawler(cat *catalog.Catalog, fs *vfs.FS, lister vfs.DeviceLister, sink TaskSink, progress ProgressFn) *Crawler {
	return &Crawler{
		cat:      cat,
		fs:       fs,
		lister:   lister,
		probe:    CrawlerProbe{},
		sink:     sink,
		progress: progress,
	}
}

// deviceFor resolves the catalog device owning an absolute path, creating
// the row on first observation.
func (c *Crawler) deviceFor(path string) (*catalog.Device, vfs.Device, error) {
	devices, err := c.lister.Devices()
	if err != nil {
		return nil, vfs.Device{}, fmt.Errorf("device lister failed: %w", err)
	}
	fsDev, ok := vfs.DeviceForPath(devices, path)
	if !ok {
		return nil, vfs.Device{}, fmt.Errorf("no device for path %s", path)
	}
	dev, err := c.cat.DeviceByUUID(fsDev.UUID)
	if err != nil {
		return nil, vfs.Device{}, err
	}
	if dev == nil {
		dev, err = c.cat.CreateDevice(fsDev.UUID, "file", fsDev.Removable)
		if err != nil {
			return nil, vfs.Device{}, err
		}
	}
	return dev, fsDev, nil
}

// storedFolderPath is the folder path as persisted: encoded, and relative
// to the mountpoint on removable devices.
func storedFolderPath(fsDev vfs.Device, absPath string) string {
	if fsDev.Removable {
		return vfs.EncodePath(vfs.RelativeToMount(fsDev, absPath))
	}
	return vfs.EncodePath(absPath)
}

// storedFileMRL is the file MRL as persisted: a full file:// MRL for fixed
// devices, a mount-relative encoded path for removable ones.
func storedFileMRL(fsDev vfs.Device, absPath string) string {
	if fsDev.Removable {
		return vfs.EncodePath(vfs.RelativeToMount(fsDev, absPath))
	}
	return vfs.ToMRL(absPath)
}

// Discover crawls an entry point, creating its folder row if needed.
func (c *Crawler) Discover(entryPoint string) error {
	dev, fsDev, err := c.deviceFor(entryPoint)
	if err != nil {
		return err
	}
	stored := storedFolderPath(fsDev, entryPoint)
	folder, err := c.cat.FolderByPath(dev.ID, stored)
	if err != nil {
		return err
	}
	if folder == nil {
		folder, err = c.cat.CreateFolder(stored, 0, dev.ID, fsDev.Removable)
		if err != nil {
			return err
		}
	}
	if folder.Blacklisted {
		util.WarnLog("refusing to discover banned folder %s", entryPoint)
		return nil
	}
	return c.crawlFolder(entryPoint, folder, fsDev, entryPoint)
}

// Reload re-crawls a previously discovered entry point. An unreachable
// device is reported so the worker can retry on the next reload.
func (c *Crawler) Reload(entryPoint string) error {
	if !c.fs.Exists(entryPoint) {
		return fmt.Errorf("entry point %s unavailable", entryPoint)
	}
	return c.Discover(entryPoint)
}

// crawlFolder reconciles one directory level, then recurses.
func (c *Crawler) crawlFolder(entryPoint string, folder *catalog.Folder, fsDev vfs.Device, absPath string) error {
	entries, err := c.fs.ReadDir(absPath)
	if err != nil {
		// a single unreadable directory does not abort discovery
		util.WarnLog("failed to read %s: %v", absPath, err)
		return nil
	}

	seenFiles := make(map[string]vfs.Entry)
	seenDirs := make(map[string]struct{})

	for _, entry := range entries {
		switch c.probe.Probe(absPath, entry) {
		case DecisionStop:
			return nil
		case DecisionSkip:
			continue
		case DecisionDescend:
			seenDirs[entry.Name] = struct{}{}
		case DecisionEnqueue:
			childAbs := filepath.Join(absPath, entry.Name)
			seenFiles[storedFileMRL(fsDev, childAbs)] = entry
		}
	}

	if err := c.reconcileFiles(folder, fsDev, absPath, seenFiles); err != nil {
		return err
	}
	if err := c.reconcileFolders(folder, fsDev, absPath, seenDirs); err != nil {
		return err
	}

	if c.progress != nil {
		c.progress(entryPoint, absPath)
	}

	// recurse after reconciling this level so removals are visible even if
	// a deep crawl is interrupted
	subs, err := c.cat.SubFolders(folder.ID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.Blacklisted {
			continue
		}
		subAbs, err := c.absFolderPath(fsDev, sub)
		if err != nil {
			util.WarnLog("skipping folder %d: %v", sub.ID, err)
			continue
		}
		if err := c.crawlFolder(entryPoint, sub, fsDev, subAbs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) absFolderPath(fsDev vfs.Device, folder *catalog.Folder) (string, error) {
	decoded, err := vfs.DecodePath(folder.Path)
	if err != nil {
		return "", err
	}
	if folder.Removable {
		return vfs.JoinMount(fsDev, decoded), nil
	}
	return decoded, nil
}

// reconcileFiles adds tasks for new or modified files and handles files
// that vanished from disk.
func (c *Crawler) reconcileFiles(folder *catalog.Folder, fsDev vfs.Device, absPath string, seen map[string]vfs.Entry) error {
	known, err := c.cat.FilesInFolder(folder.ID)
	if err != nil {
		return err
	}
	knownByMRL := make(map[string]*catalog.File, len(known))
	for _, f := range known {
		knownByMRL[f.MRL] = f
	}

	for mrl, entry := range seen {
		existing := knownByMRL[mrl]
		if existing != nil {
			if existing.LastModified == entry.MTime && existing.Size == entry.Size {
				if !existing.Present {
					if err := c.cat.SetFilePresent(existing.ID, true); err != nil {
						return err
					}
				}
				continue
			}
			if err := c.cat.UpdateFileStats(existing.ID, entry.MTime, entry.Size); err != nil {
				return err
			}
			// a stale task for the previous version would block the
			// reschedule on its unique MRL
			if err := c.cat.DeleteTaskByMRL(mrl); err != nil {
				util.WarnLog("%v", err)
			}
			c.enqueue(mrl, existing.ID, folder.ID)
			continue
		}
		file, err := c.cat.AddFile(0, folder.ID, mrl, catalog.FileTypeMain,
			entry.MTime, entry.Size, fsDev.Removable)
		if err != nil {
			if sqlite.IsConstraint(err) {
				util.WarnLog("file %s already known", mrl)
				continue
			}
			return err
		}
		c.enqueue(mrl, file.ID, folder.ID)
	}

	for mrl, f := range knownByMRL {
		if _, ok := seen[mrl]; ok {
			continue
		}
		if fsDev.Removable {
			if f.Present {
				if err := c.cat.SetFilePresent(f.ID, false); err != nil {
					return err
				}
			}
			continue
		}
		if err := c.cat.DeleteFile(f.ID); err != nil {
			return err
		}
	}
	return nil
}

// enqueue persists a parse task and hands it to the parser. A constraint
// error means the file is already scheduled, which is fine.
func (c *Crawler) enqueue(mrl string, fileID, folderID int64) {
	task, err := c.cat.CreateTask(mrl, fileID, folderID)
	if err != nil {
		if sqlite.IsConstraint(err) {
			util.DebugLog("task for %s already scheduled", mrl)
			return
		}
		util.ErrorLog("failed to create task for %s: %v", mrl, err)
		return
	}
	if c.sink != nil {
		c.sink.Push(task)
	}
}

// reconcileFolders creates rows for new directories and handles vanished
// ones.
func (c *Crawler) reconcileFolders(folder *catalog.Folder, fsDev vfs.Device, absPath string, seen map[string]struct{}) error {
	subs, err := c.cat.SubFolders(folder.ID)
	if err != nil {
		return err
	}
	knownNames := make(map[string]*catalog.Folder, len(subs))
	for _, sub := range subs {
		decoded, err := vfs.DecodePath(sub.Path)
		if err != nil {
			continue
		}
		knownNames[filepath.Base(decoded)] = sub
	}

	for name := range seen {
		if _, ok := knownNames[name]; ok {
			continue
		}
		childAbs := filepath.Join(absPath, name)
		stored := storedFolderPath(fsDev, childAbs)
		if _, err := c.cat.CreateFolder(stored, folder.ID, folder.DeviceID, fsDev.Removable); err != nil {
			if sqlite.IsConstraint(err) {
				continue
			}
			return err
		}
	}

	for name, sub := range knownNames {
		if _, ok := seen[name]; ok {
			continue
		}
		if fsDev.Removable {
			if sub.Present {
				if err := c.cat.SetFolderPresent(sub.ID, false); err != nil {
					return err
				}
			}
			continue
		}
		if err := c.cat.RemoveFolder(sub.ID); err != nil {
			return err
		}
	}
	return nil
}
