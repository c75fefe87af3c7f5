package discoverer

import (
	"path/filepath"
	"strings"

	"github.com/franz/medialib/internal/vfs"
)

// Decision is what a probe tells the crawler to do with one entry.
type Decision int

const (
	// DecisionDescend recurses into a directory.
	DecisionDescend Decision = iota
	// DecisionSkip ignores the entry.
	DecisionSkip
	// DecisionEnqueue schedules a file for parsing.
	DecisionEnqueue
	// DecisionStop aborts the crawl of this subtree.
	DecisionStop
)

// Probe inspects each candidate filesystem entry.
type Probe interface {
	Probe(parent string, entry vfs.Entry) Decision
}

// CrawlerProbe is the default probe: descend into visible directories,
// enqueue regular files whose extension is whitelisted.
type CrawlerProbe struct{}

// Probe implements Probe.
func (CrawlerProbe) Probe(parent string, entry vfs.Entry) Decision {
	if strings.HasPrefix(entry.Name, ".") {
		return DecisionSkip
	}
	if entry.IsDir {
		return DecisionDescend
	}
	ext := strings.TrimPrefix(filepath.Ext(entry.Name), ".")
	if ext == "" || !IsSupportedExtension(ext) {
		return DecisionSkip
	}
	return DecisionEnqueue
}
