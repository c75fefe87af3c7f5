// Package discoverer crawls filesystems and turns what it finds into
// persistent parse tasks. One background worker consumes a FIFO command
// queue; commands run serially and emit progress callbacks at folder
// granularity.
package discoverer

import (
	"sync"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

// Callbacks is the host-facing slice of discovery events. Implementations
// must tolerate calls from the worker goroutine.
type Callbacks interface {
	OnDiscoveryStarted(entryPoint string)
	OnDiscoveryProgress(entryPoint, folder string)
	OnDiscoveryCompleted(entryPoint string, success bool)
	OnReloadStarted(entryPoint string)
	OnReloadCompleted(entryPoint string, success bool)
	OnEntryPointRemoved(entryPoint string, success bool)
	OnEntryPointBanned(entryPoint string, success bool)
	OnEntryPointUnbanned(entryPoint string, success bool)
	OnDiscovererIdleChanged(idle bool)
}

type cmdOp int

const (
	cmdDiscover cmdOp = iota
	cmdReload
	cmdReloadAll
	cmdRemove
	cmdBan
	cmdUnban
)

type command struct {
	op         cmdOp
	entryPoint string
}

// Worker owns the discoverer thread.
type Worker struct {
	crawler *Crawler
	cat     *catalog.Catalog
	lister  vfs.DeviceLister
	cb      Callbacks

	mu    sync.Mutex
	cond  *sync.Cond
	queue []command
	stop  bool
	idle  bool

	wg sync.WaitGroup
}

// NewWorker starts the discoverer worker.
func NewWorker(crawler *Crawler, cat *catalog.Catalog, lister vfs.DeviceLister, cb Callbacks) *Worker {
	w := &Worker{
		crawler: crawler,
		cat:     cat,
		lister:  lister,
		cb:      cb,
		idle:    true,
	}
	w.cond = sync.NewCond(&w.mu)
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Worker) post(cmd command) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop {
		return
	}
	w.queue = append(w.queue, cmd)
	w.cond.Signal()
}

// Discover queues a crawl of a new entry point.
func (w *Worker) Discover(entryPoint string) {
	w.post(command{op: cmdDiscover, entryPoint: entryPoint})
}

// Reload queues a re-crawl of one entry point.
func (w *Worker) Reload(entryPoint string) {
	w.post(command{op: cmdReload, entryPoint: entryPoint})
}

// ReloadAll queues a re-crawl of every known entry point.
func (w *Worker) ReloadAll() {
	w.post(command{op: cmdReloadAll})
}

// Remove queues removal of an entry point and its subtree.
func (w *Worker) Remove(entryPoint string) {
	w.post(command{op: cmdRemove, entryPoint: entryPoint})
}

// Ban queues blacklisting of a folder.
func (w *Worker) Ban(entryPoint string) {
	w.post(command{op: cmdBan, entryPoint: entryPoint})
}

// Unban queues un-blacklisting of a folder.
func (w *Worker) Unban(entryPoint string) {
	w.post(command{op: cmdUnban, entryPoint: entryPoint})
}

// IsIdle reports whether the queue is empty and no crawl is in flight.
func (w *Worker) IsIdle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle && len(w.queue) == 0
}

// Stop signals the worker and joins it. Queued commands are dropped;
// the in-flight one completes.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stop = true
	w.cond.Broadcast()
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stop {
			if !w.idle {
				w.idle = true
				w.mu.Unlock()
				if w.cb != nil {
					w.cb.OnDiscovererIdleChanged(true)
				}
				w.mu.Lock()
				continue
			}
			w.cond.Wait()
		}
		if w.stop {
			w.mu.Unlock()
			return
		}
		cmd := w.queue[0]
		w.queue = w.queue[1:]
		wasIdle := w.idle
		w.idle = false
		w.mu.Unlock()

		if wasIdle && w.cb != nil {
			w.cb.OnDiscovererIdleChanged(false)
		}
		w.execute(cmd)
	}
}

func (w *Worker) execute(cmd command) {
	switch cmd.op {
	case cmdDiscover:
		if w.cb != nil {
			w.cb.OnDiscoveryStarted(cmd.entryPoint)
		}
		err := w.crawler.Discover(cmd.entryPoint)
		if err != nil {
			util.ErrorLog("discovery of %s failed: %v", cmd.entryPoint, err)
		}
		if w.cb != nil {
			w.cb.OnDiscoveryCompleted(cmd.entryPoint, err == nil)
		}

	case cmdReload:
		w.reloadOne(cmd.entryPoint)

	case cmdReloadAll:
		eps, err := w.entryPointPaths()
		if err != nil {
			util.ErrorLog("failed to list entry points: %v", err)
			return
		}
		for _, ep := range eps {
			w.reloadOne(ep)
		}

	case cmdRemove:
		err := w.removeEntryPoint(cmd.entryPoint)
		if err != nil {
			util.ErrorLog("failed to remove entry point %s: %v", cmd.entryPoint, err)
		}
		if w.cb != nil {
			w.cb.OnEntryPointRemoved(cmd.entryPoint, err == nil)
		}

	case cmdBan:
		err := w.banFolder(cmd.entryPoint, true)
		if err != nil {
			util.ErrorLog("failed to ban %s: %v", cmd.entryPoint, err)
		}
		if w.cb != nil {
			w.cb.OnEntryPointBanned(cmd.entryPoint, err == nil)
		}

	case cmdUnban:
		err := w.banFolder(cmd.entryPoint, false)
		if err != nil {
			util.ErrorLog("failed to unban %s: %v", cmd.entryPoint, err)
		}
		if w.cb != nil {
			w.cb.OnEntryPointUnbanned(cmd.entryPoint, err == nil)
		}
	}
}

func (w *Worker) reloadOne(entryPoint string) {
	if w.cb != nil {
		w.cb.OnReloadStarted(entryPoint)
	}
	err := w.crawler.Reload(entryPoint)
	if err != nil {
		// unreachable devices are retried on the next scheduled reload
		util.WarnLog("reload of %s failed: %v", entryPoint, err)
	}
	if w.cb != nil {
		w.cb.OnReloadCompleted(entryPoint, err == nil)
	}
}

// entryPointPaths resolves stored entry-point folders back to absolute
// paths using the devices' current mountpoints.
func (w *Worker) entryPointPaths() ([]string, error) {
	folders, err := w.cat.EntryPoints()
	if err != nil {
		return nil, err
	}
	devices, err := w.lister.Devices()
	if err != nil {
		return nil, err
	}
	byUUID := make(map[string]vfs.Device, len(devices))
	for _, d := range devices {
		byUUID[d.UUID] = d
	}

	var out []string
	for _, f := range folders {
		dev, err := w.cat.DeviceByID(f.DeviceID)
		if err != nil || dev == nil {
			continue
		}
		fsDev, mounted := byUUID[dev.UUID]
		if !mounted {
			continue
		}
		decoded, err := vfs.DecodePath(f.Path)
		if err != nil {
			continue
		}
		if f.Removable {
			out = append(out, vfs.JoinMount(fsDev, decoded))
		} else {
			out = append(out, decoded)
		}
	}
	return out, nil
}

func (w *Worker) removeEntryPoint(entryPoint string) error {
	dev, fsDev, err := w.crawler.deviceFor(entryPoint)
	if err != nil {
		return err
	}
	folder, err := w.cat.FolderByPath(dev.ID, storedFolderPath(fsDev, entryPoint))
	if err != nil {
		return err
	}
	if folder == nil {
		return nil
	}
	return w.cat.RemoveFolder(folder.ID)
}

func (w *Worker) banFolder(entryPoint string, ban bool) error {
	dev, fsDev, err := w.crawler.deviceFor(entryPoint)
	if err != nil {
		return err
	}
	stored := storedFolderPath(fsDev, entryPoint)
	if ban {
		return w.cat.BanFolder(dev.ID, stored, fsDev.Removable)
	}
	_, err = w.cat.UnbanFolder(dev.ID, stored)
	return err
}
