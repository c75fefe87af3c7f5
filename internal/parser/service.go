package parser

import "github.com/franz/medialib/internal/catalog"

// Status is a service's verdict on one task.
type Status int

const (
	// StatusSuccess advances the task to the next service.
	StatusSuccess Status = iota
	// StatusError retries the task until its budget runs out.
	StatusError
	// StatusFatal parks the task as permanently failed.
	StatusFatal
	// StatusDiscarded drops the task: the file vanished or turned out to
	// be something else entirely mid-run.
	StatusDiscarded
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusFatal:
		return "fatal"
	case StatusDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Service is one stage of the parser chain. Tasks flow through services in
// declaration order; each service owns one step bit.
type Service interface {
	Name() string
	// NbThreads is a scheduling hint: how many workers may run this
	// service concurrently.
	NbThreads() int
	// Step is the bit this service sets on completion.
	Step() catalog.Step
	// Initialize prepares the service; returning false disables the
	// whole parser.
	Initialize(cat *catalog.Catalog) bool
	// IsCompleted reports whether the task already carries this
	// service's step bit.
	IsCompleted(t *catalog.Task) bool
	// Run processes one task.
	Run(t *catalog.Task) Status
}
