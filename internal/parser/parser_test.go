package parser

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/sqlite"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	conn, err := sqlite.Open(filepath.Join(t.TempDir(), "parser.db"))
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

// fakeService records which tasks it ran and answers with a scripted
// status sequence.
type fakeService struct {
	name    string
	step    catalog.Step
	mu      sync.Mutex
	ran     []int64
	results []Status
}

func (s *fakeService) Name() string                         { return s.name }
func (s *fakeService) NbThreads() int                       { return 1 }
func (s *fakeService) Step() catalog.Step                   { return s.step }
func (s *fakeService) Initialize(cat *catalog.Catalog) bool { return true }
func (s *fakeService) IsCompleted(t *catalog.Task) bool     { return t.HasStep(s.step) }

func (s *fakeService) Run(t *catalog.Task) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, t.ID)
	if len(s.results) == 0 {
		return StatusSuccess
	}
	st := s.results[0]
	s.results = s.results[1:]
	return st
}

func (s *fakeService) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ran)
}

type recordingCallbacks struct {
	completed atomic.Int64
	idleFlips atomic.Int64
}

func (c *recordingCallbacks) OnParsingStatsUpdated(float64)   {}
func (c *recordingCallbacks) OnParserIdleChanged(idle bool)   { c.idleFlips.Add(1) }
func (c *recordingCallbacks) OnTaskCompleted(t *catalog.Task) { c.completed.Add(1) }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func makeTask(t *testing.T, cat *catalog.Catalog, mrl string) *catalog.Task {
	t.Helper()
	task, err := cat.CreateTask(mrl, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func newChain(t *testing.T, cat *catalog.Catalog, cb Callbacks, services ...Service) *Parser {
	t.Helper()
	p := New(cat, cb, services...)
	if !p.Start() {
		t.Fatal("parser failed to start")
	}
	t.Cleanup(p.Stop)
	return p
}

func TestTaskAdvancesThroughServicesInOrder(t *testing.T) {
	cat := openTestCatalog(t)
	first := &fakeService{name: "first", step: catalog.StepMetadataExtraction}
	second := &fakeService{name: "second", step: catalog.StepMetadataAnalysis}
	third := &fakeService{name: "third", step: catalog.StepThumbnail}
	cb := &recordingCallbacks{}
	p := newChain(t, cat, cb, first, second, third)

	task := makeTask(t, cat, "file:///a.mp3")
	p.Push(task)

	waitFor(t, 5*time.Second, func() bool { return cb.completed.Load() == 1 })

	if first.runCount() != 1 || second.runCount() != 1 || third.runCount() != 1 {
		t.Errorf("each service should run once, got %d/%d/%d",
			first.runCount(), second.runCount(), third.runCount())
	}

	saved, err := cat.TaskByID(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved == nil || !saved.IsCompleted() {
		t.Errorf("task step not persisted as completed: %+v", saved)
	}
}

func TestTaskResumesFromRecordedStep(t *testing.T) {
	cat := openTestCatalog(t)
	first := &fakeService{name: "first", step: catalog.StepMetadataExtraction}
	second := &fakeService{name: "second", step: catalog.StepMetadataAnalysis}
	cb := &recordingCallbacks{}
	p := newChain(t, cat, cb, first, second)

	// simulate a crash after the first service completed
	task := makeTask(t, cat, "file:///resume.mp3")
	task.MarkStep(catalog.StepMetadataExtraction)
	if err := cat.SaveTaskStep(nil, task); err != nil {
		t.Fatal(err)
	}

	p.Restore()
	waitFor(t, 5*time.Second, func() bool { return cb.completed.Load() == 1 })

	if first.runCount() != 0 {
		t.Error("completed service ran again after restore")
	}
	if second.runCount() != 1 {
		t.Errorf("expected resume at second service, ran %d times", second.runCount())
	}
}

func TestErrorRetriesThenParks(t *testing.T) {
	cat := openTestCatalog(t)
	failing := &fakeService{
		name: "first", step: catalog.StepMetadataExtraction,
		results: []Status{StatusError, StatusError, StatusError, StatusError},
	}
	second := &fakeService{name: "second", step: catalog.StepMetadataAnalysis}
	cb := &recordingCallbacks{}
	p := newChain(t, cat, cb, failing, second)

	task := makeTask(t, cat, "file:///flaky.mp3")
	p.Push(task)

	waitFor(t, 5*time.Second, func() bool { return failing.runCount() >= catalog.MaxTaskRetries })
	waitFor(t, 5*time.Second, p.IsIdle)

	if second.runCount() != 0 {
		t.Error("parked task leaked into the next service")
	}
	saved, err := cat.TaskByID(task.ID)
	if err != nil || saved == nil {
		t.Fatalf("parked task should stay persisted: %v", err)
	}
	if saved.RetryCount < catalog.MaxTaskRetries {
		t.Errorf("expected exhausted retry budget, got %d", saved.RetryCount)
	}
}

func TestFatalParksImmediately(t *testing.T) {
	cat := openTestCatalog(t)
	fatal := &fakeService{
		name: "first", step: catalog.StepMetadataExtraction,
		results: []Status{StatusFatal},
	}
	cb := &recordingCallbacks{}
	p := newChain(t, cat, cb, fatal)

	task := makeTask(t, cat, "file:///broken.mp3")
	p.Push(task)
	waitFor(t, 5*time.Second, p.IsIdle)

	if fatal.runCount() != 1 {
		t.Errorf("fatal task should run exactly once, ran %d", fatal.runCount())
	}
	saved, _ := cat.TaskByID(task.ID)
	if saved == nil || saved.RetryCount < catalog.MaxTaskRetries {
		t.Error("fatal task not parked as permanently failed")
	}
}

func TestDiscardedDropsTask(t *testing.T) {
	cat := openTestCatalog(t)
	svc := &fakeService{
		name: "first", step: catalog.StepMetadataExtraction,
		results: []Status{StatusDiscarded},
	}
	p := newChain(t, cat, &recordingCallbacks{}, svc)

	task := makeTask(t, cat, "file:///gone.mp3")
	p.Push(task)
	waitFor(t, 5*time.Second, p.IsIdle)

	saved, err := cat.TaskByID(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved != nil {
		t.Error("discarded task still in the task table")
	}
}

func TestPauseResumeRoundTripIsNoOp(t *testing.T) {
	cat := openTestCatalog(t)
	svc := &fakeService{name: "first", step: catalog.StepMetadataExtraction}
	p := newChain(t, cat, &recordingCallbacks{}, svc)

	if !p.IsIdle() {
		t.Fatal("fresh parser should be idle")
	}
	p.Pause()
	p.Resume()
	time.Sleep(50 * time.Millisecond)
	if !p.IsIdle() {
		t.Error("pause/resume with no work changed the idle state")
	}
	if svc.runCount() != 0 {
		t.Error("pause/resume with no work ran a service")
	}
}

func TestPauseHoldsWork(t *testing.T) {
	cat := openTestCatalog(t)
	svc := &fakeService{name: "first", step: catalog.StepMetadataExtraction}
	cb := &recordingCallbacks{}
	p := newChain(t, cat, cb, svc)

	p.Pause()
	task := makeTask(t, cat, "file:///held.mp3")
	p.Push(task)

	time.Sleep(100 * time.Millisecond)
	if svc.runCount() != 0 {
		t.Fatal("paused parser ran a task")
	}

	p.Resume()
	waitFor(t, 5*time.Second, func() bool { return cb.completed.Load() == 1 })
}

func TestPanicInServiceBecomesFatal(t *testing.T) {
	cat := openTestCatalog(t)
	panicking := &panicService{}
	p := newChain(t, cat, &recordingCallbacks{}, panicking)

	task := makeTask(t, cat, "file:///panic.mp3")
	p.Push(task)
	waitFor(t, 5*time.Second, p.IsIdle)

	saved, _ := cat.TaskByID(task.ID)
	if saved == nil || saved.RetryCount < catalog.MaxTaskRetries {
		t.Error("panicking service should park the task as fatal")
	}
}

type panicService struct{}

func (panicService) Name() string                     { return "panics" }
func (panicService) NbThreads() int                   { return 1 }
func (panicService) Step() catalog.Step               { return catalog.StepMetadataExtraction }
func (panicService) Initialize(*catalog.Catalog) bool { return true }
func (panicService) IsCompleted(t *catalog.Task) bool {
	return t.HasStep(catalog.StepMetadataExtraction)
}
func (panicService) Run(*catalog.Task) Status { panic("kaboom") }
