// Package tasks implements the concurrency backbone: categorized worker
// pools, an owner loop that serializes state mutation, and the sync
// engine that moves member data from the network into the store.
//
// All store writes and event dispatch happen on the owner loop. Workers
// compute and fetch; they hand results back via [Coordinator.RunOnOwner].
package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/mozbugbox/bitiwo/internal/shared"
)

// Pool selects one of the coordinator's worker pools. Workloads are
// separated by class so a flood of one kind never starves another.
type Pool int

const (
	PoolImageDisk  Pool = iota // cover reads from local disk
	PoolImageNet               // cover downloads, bounded politeness
	PoolMemberSync             // member refresh, serialized
	PoolMisc                   // everything else
)

func (p Pool) String() string {
	switch p {
	case PoolImageDisk:
		return "image-disk"
	case PoolImageNet:
		return "image-net"
	case PoolMemberSync:
		return "member-sync"
	case PoolMisc:
		return "misc"
	default:
		return fmt.Sprintf("pool-%d", int(p))
	}
}

// PoolSizes holds the worker count per pool. Zero values fall back to
// defaults.
type PoolSizes struct {
	ImageDisk  int
	ImageNet   int
	MemberSync int
	Misc       int
}

func (ps PoolSizes) withDefaults() PoolSizes {
	if ps.ImageDisk <= 0 {
		ps.ImageDisk = 16
	}
	if ps.ImageNet <= 0 {
		ps.ImageNet = 8
	}
	if ps.MemberSync <= 0 {
		ps.MemberSync = 1
	}
	if ps.Misc <= 0 {
		ps.Misc = 4
	}
	return ps
}

// Job is a unit of background work.
type Job func(ctx context.Context) error

// Handle tracks one submitted job. Cancel only prevents a job that has
// not started yet; running jobs observe cancellation through their
// context.
type Handle struct {
	ID string

	cancelled atomic.Bool
	done      chan struct{}
	err       error // valid after done is closed
}

// Cancel marks the job as cancelled. A job already running is not
// interrupted.
func (h *Handle) Cancel() { h.cancelled.Store(true) }

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// Done is closed once the job finished, was skipped or was rejected.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the job's result. Only valid after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

type task struct {
	handle *Handle
	job    Job
}

type workerPool struct {
	pool  Pool
	tasks chan *task
	wg    sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*Handle
}

// Coordinator owns the worker pools and the owner loop.
type Coordinator struct {
	pools map[Pool]*workerPool
	owner chan func()
	log   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	submitters sync.WaitGroup
	shutdown   bool
}

// NewCoordinator starts the worker pools. Call Run to drive the owner
// loop and Shutdown to stop everything.
func NewCoordinator(sizes PoolSizes, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	sizes = sizes.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		pools:  make(map[Pool]*workerPool),
		owner:  make(chan func(), 1024),
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}

	for pool, size := range map[Pool]int{
		PoolImageDisk:  sizes.ImageDisk,
		PoolImageNet:   sizes.ImageNet,
		PoolMemberSync: sizes.MemberSync,
		PoolMisc:       sizes.Misc,
	} {
		wp := &workerPool{
			pool:    pool,
			tasks:   make(chan *task, 256),
			pending: make(map[string]*Handle),
		}
		c.pools[pool] = wp
		for range size {
			wp.wg.Add(1)
			go c.worker(wp)
		}
	}
	return c
}

func (c *Coordinator) worker(wp *workerPool) {
	defer wp.wg.Done()
	for t := range wp.tasks {
		wp.mu.Lock()
		delete(wp.pending, t.handle.ID)
		wp.mu.Unlock()

		if t.handle.Cancelled() {
			t.handle.err = context.Canceled
			close(t.handle.done)
			continue
		}
		c.runTask(wp, t)
	}
}

// runTask executes one job, capturing panics so a bad job never kills
// its worker.
func (c *Coordinator) runTask(wp *workerPool, t *task) {
	defer close(t.handle.done)
	defer func() {
		if r := recover(); r != nil {
			t.handle.err = fmt.Errorf("job panic: %v", r)
			c.log.Error("job panicked", "pool", wp.pool, "id", t.handle.ID, "panic", r)
		}
	}()

	if err := t.job(c.ctx); err != nil {
		t.handle.err = err
		c.log.Warn("job failed", "pool", wp.pool, "id", t.handle.ID, "error", err)
	}
}

// Submit queues a job on the given pool. The returned handle is already
// finished with [shared.ErrShuttingDown] when the coordinator is closed.
func (c *Coordinator) Submit(pool Pool, job Job) *Handle {
	handle := &Handle{
		ID:   shared.GenerateID(),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		handle.err = shared.ErrShuttingDown
		close(handle.done)
		return handle
	}
	c.submitters.Add(1)
	c.mu.Unlock()
	defer c.submitters.Done()

	wp := c.pools[pool]
	wp.mu.Lock()
	wp.pending[handle.ID] = handle
	wp.mu.Unlock()

	wp.tasks <- &task{handle: handle, job: job}
	return handle
}

// CancelAll cancels every job of the pool that has not started yet.
func (c *Coordinator) CancelAll(pool Pool) {
	wp := c.pools[pool]
	wp.mu.Lock()
	defer wp.mu.Unlock()
	for _, handle := range wp.pending {
		handle.Cancel()
	}
}

// RunOnOwner marshals fn onto the owner loop. The call is dropped when
// the coordinator is shutting down.
func (c *Coordinator) RunOnOwner(fn func()) {
	select {
	case c.owner <- fn:
	case <-c.ctx.Done():
	}
}

// Stepper is a chunk of owner work that yields between steps. Step
// returns true while more work remains.
type Stepper interface {
	Step() bool
}

// RunSteps drives a stepper on the owner loop, re-scheduling after each
// step so long-running bulk work never monopolizes the owner.
func (c *Coordinator) RunSteps(s Stepper) {
	c.RunOnOwner(func() {
		if s.Step() {
			c.RunSteps(s)
		}
	})
}

// Run drains the owner loop until ctx is cancelled or Shutdown closes
// the coordinator.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case fn := <-c.owner:
			fn()
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// Shutdown rejects new work, cancels pending jobs and waits for running
// jobs to drain.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.mu.Unlock()

	for pool := range c.pools {
		c.CancelAll(pool)
	}
	c.cancel()
	c.submitters.Wait()

	for _, wp := range c.pools {
		close(wp.tasks)
		wp.wg.Wait()
	}
}
