// Package parser drives persistent scan tasks through an ordered chain of
// services. Each service gets its own FIFO queue and worker pool; per-step
// completion is persisted so a crash resumes where it stopped.
package parser

import (
	"sync"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
)

// Callbacks is the host-facing slice of parsing events.
type Callbacks interface {
	OnParsingStatsUpdated(percent float64)
	OnParserIdleChanged(idle bool)
	// OnTaskCompleted fires after a task ran the full chain; the facade
	// uses it to feed the modification notifier.
	OnTaskCompleted(t *catalog.Task)
}

type serviceQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []*catalog.Task
	busy   int
	closed bool
}

func newServiceQueue() *serviceQueue {
	q := &serviceQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Parser owns the service chain.
type Parser struct {
	cat      *catalog.Catalog
	services []Service
	queues   []*serviceQueue
	cb       Callbacks

	mu     sync.Mutex
	paused bool
	stop   bool
	idle   bool

	wg sync.WaitGroup
}

// New assembles a parser over the ordered service chain. Start launches
// the workers.
func New(cat *catalog.Catalog, cb Callbacks, services ...Service) *Parser {
	p := &Parser{
		cat:      cat,
		services: services,
		cb:       cb,
		idle:     true,
	}
	for range services {
		p.queues = append(p.queues, newServiceQueue())
	}
	return p
}

// Start initializes every service and launches the worker pools. A service
// refusing to initialize disables the parser.
func (p *Parser) Start() bool {
	for _, svc := range p.services {
		if !svc.Initialize(p.cat) {
			util.ErrorLog("parser service %s failed to initialize", svc.Name())
			return false
		}
	}
	for i, svc := range p.services {
		n := svc.NbThreads()
		if n < 1 {
			n = 1
		}
		for t := 0; t < n; t++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	}
	return true
}

// Restore re-enqueues crash-recovered tasks from the task table, each at
// its first incomplete service.
func (p *Parser) Restore() {
	tasks, err := p.cat.UncompletedTasks()
	if err != nil {
		util.ErrorLog("failed to restore tasks: %v", err)
		return
	}
	for _, t := range tasks {
		p.Push(t)
	}
	if len(tasks) > 0 {
		util.InfoLog("restored %d unfinished scan tasks", len(tasks))
	}
}

// Push enqueues a task at its first incomplete service. Implements the
// discoverer's TaskSink.
func (p *Parser) Push(t *catalog.Task) {
	for i, svc := range p.services {
		if !svc.IsCompleted(t) {
			p.enqueue(i, t)
			return
		}
	}
	// everything already ran; nothing to do
}

func (p *Parser) enqueue(service int, t *catalog.Task) {
	q := p.queues[service]
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.cond.Broadcast()
	q.mu.Unlock()
	p.setIdle(false)
}

// Pause stops workers before their next task; in-flight runs complete.
func (p *Parser) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume restarts paused workers.
func (p *Parser) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	for _, q := range p.queues {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// IsIdle reports whether every queue is empty and no task is in flight.
func (p *Parser) IsIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

// Stop signals every worker, drains in-flight work and joins the pool.
func (p *Parser) Stop() {
	p.mu.Lock()
	if p.stop {
		p.mu.Unlock()
		return
	}
	p.stop = true
	p.mu.Unlock()
	for _, q := range p.queues {
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}
	p.wg.Wait()
}

func (p *Parser) stopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop
}

func (p *Parser) pausedNow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Parser) worker(service int) {
	defer p.wg.Done()
	q := p.queues[service]
	svc := p.services[service]

	for {
		q.mu.Lock()
		for (len(q.tasks) == 0 || p.pausedNow()) && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.busy++
		q.mu.Unlock()

		status := p.runOne(svc, t)

		q.mu.Lock()
		q.busy--
		q.mu.Unlock()

		p.done(service, t, status)
	}
}

// runOne executes one service run; a panic inside a service is converted
// to Fatal rather than taking the worker down.
func (p *Parser) runOne(svc Service, t *catalog.Task) (status Status) {
	defer func() {
		if r := recover(); r != nil {
			util.ErrorLog("service %s panicked on task %d: %v", svc.Name(), t.ID, r)
			status = StatusFatal
		}
	}()
	if svc.IsCompleted(t) {
		return StatusSuccess
	}
	return svc.Run(t)
}

// done is the per-task sink: persist progress, route the task onward,
// update idle and stats.
func (p *Parser) done(service int, t *catalog.Task, status Status) {
	svc := p.services[service]
	switch status {
	case StatusSuccess:
		t.MarkStep(svc.Step())
		if err := p.cat.SaveTaskStep(nil, t); err != nil {
			util.ErrorLog("failed to persist step for task %d: %v", t.ID, err)
		}
		if service+1 < len(p.services) {
			p.enqueue(service+1, t)
		} else {
			if p.cb != nil {
				p.cb.OnTaskCompleted(t)
			}
			p.reportStats()
		}

	case StatusError:
		retries, err := p.cat.IncrementTaskRetry(t)
		if err != nil {
			util.ErrorLog("failed to bump retry for task %d: %v", t.ID, err)
		}
		if retries < catalog.MaxTaskRetries {
			p.enqueue(service, t)
		} else {
			util.WarnLog("task %d failed after %d retries in %s", t.ID, retries, svc.Name())
			p.reportStats()
		}

	case StatusFatal:
		util.WarnLog("task %d failed permanently in %s", t.ID, svc.Name())
		t.RetryCount = catalog.MaxTaskRetries
		if err := p.cat.SaveTaskStep(nil, t); err != nil {
			util.ErrorLog("failed to park task %d: %v", t.ID, err)
		}
		p.reportStats()

	case StatusDiscarded:
		if err := p.cat.DeleteTask(t.ID); err != nil {
			util.ErrorLog("failed to discard task %d: %v", t.ID, err)
		}
		p.reportStats()
	}

	p.maybeIdle()
}

func (p *Parser) reportStats() {
	if p.cb == nil {
		return
	}
	done, total, err := p.cat.TaskProgress()
	if err != nil || total == 0 {
		return
	}
	p.cb.OnParsingStatsUpdated(float64(done) * 100 / float64(total))
}

// maybeIdle flips the aggregated idle flag when every queue is empty and
// nothing is in flight.
func (p *Parser) maybeIdle() {
	for _, q := range p.queues {
		q.mu.Lock()
		busy := q.busy > 0 || len(q.tasks) > 0
		q.mu.Unlock()
		if busy {
			return
		}
	}
	p.setIdle(true)
}

func (p *Parser) setIdle(idle bool) {
	p.mu.Lock()
	changed := p.idle != idle
	p.idle = idle
	p.mu.Unlock()
	if changed && p.cb != nil {
		p.cb.OnParserIdleChanged(idle)
	}
}
