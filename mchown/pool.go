package mchown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tigerand/mchown/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Options configures a Pool.
type Options struct {
	// Workers is the number of worker goroutines. The job slab holds the
	// same number of records and the credential table one more.
	Workers int

	// Drain controls how WaitForDrain polls. Zero fields take defaults.
	Drain DrainPolicy

	ops fsOps
}

// WorkerSlot is the externally visible state of one worker. Ordinal 0 is the
// invoking goroutine. Busy and the hierarchy id are written only by the
// owning worker and may be read at any time.
type WorkerSlot struct {
	ordinal   int
	busy      atomic.Bool
	hierarchy atomic.Uint64
	exited    atomic.Bool
	panicMsg  atomic.Pointer[string]
}

func (s *WorkerSlot) Ordinal() int { return s.ordinal }

func (s *WorkerSlot) Busy() bool { return s.busy.Load() }

// HierarchyID is the id of the job being processed, 0 when idle.
func (s *WorkerSlot) HierarchyID() uint64 { return s.hierarchy.Load() }

// Exited reports whether the worker goroutine has returned.
func (s *WorkerSlot) Exited() bool { return s.exited.Load() }

// Abnormal reports whether the worker died from a panic.
func (s *WorkerSlot) Abnormal() bool { return s.panicMsg.Load() != nil }

func (s *WorkerSlot) setBusy(hid uint64) {
	s.hierarchy.Store(hid)
	s.busy.Store(true)
}

func (s *WorkerSlot) setIdle() {
	s.busy.Store(false)
	s.hierarchy.Store(0)
}

// Pool owns every piece of shared traversal state: the job slab, the work
// queue, the credential table, the workers and the shutdown token. One pool
// can serve several hierarchies; each Run tags its jobs with its own id.
type Pool struct {
	opts Options
	ops  fsOps

	mu      sync.Mutex
	cond    *sync.Cond
	slab    *jobSlab
	queue   *workQueue
	creds   *credTable
	pending map[uint64]int
	runs    map[uint64]*Stats

	slots  []*WorkerSlot
	stats  Stats
	nextID atomic.Uint64

	ctx      context.Context
	abort    context.CancelCauseFunc
	group    *errgroup.Group
	stopWake func() bool
	closed   sync.Once
}

// NewPool allocates the pool's tables and starts opts.Workers workers. If
// ctx is cancelled before every worker is running, the ones already started
// are stopped and joined and an error is returned.
func NewPool(ctx context.Context, opts Options) (*Pool, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolSize, opts.Workers)
	}
	opts.Drain = opts.Drain.withDefaults()
	if opts.ops == nil {
		opts.ops = unixOps{}
	}

	p := &Pool{
		opts:    opts,
		ops:     opts.ops,
		slab:    newJobSlab(opts.Workers),
		queue:   newWorkQueue(opts.Workers),
		creds:   newCredTable(opts.Workers + 1),
		pending: make(map[uint64]int),
		runs:    make(map[uint64]*Stats),
		slots:   make([]*WorkerSlot, opts.Workers+1),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := range p.slots {
		p.slots[i] = &WorkerSlot{ordinal: i}
	}

	base, abort := context.WithCancelCause(ctx)
	group, gctx := errgroup.WithContext(base)
	p.ctx = gctx
	p.abort = abort
	p.group = group
	p.stopWake = context.AfterFunc(gctx, p.wakeAll)

	for _, slot := range p.slots[1:] {
		if err := gctx.Err(); err != nil {
			logger.Error("failed to start worker %02d: %v", slot.ordinal, context.Cause(gctx))
			p.Close()
			return nil, fmt.Errorf("starting worker %02d: %w", slot.ordinal, context.Cause(gctx))
		}
		group.Go(func() error { return p.work(slot) })
		logger.Debug("worker %02d started", slot.ordinal)
	}

	return p, nil
}

// Workers returns the configured pool size.
func (p *Pool) Workers() int { return p.opts.Workers }

// Slots returns the worker slots, invoker first.
func (p *Pool) Slots() []*WorkerSlot { return p.slots }

// Stats returns the counters summed over every invocation the pool served.
func (p *Pool) Stats() Snapshot { return p.stats.Snapshot() }

// NewHierarchyID returns a fresh id to tag the jobs of one invocation.
func (p *Pool) NewHierarchyID() uint64 {
	return p.nextID.Add(1)
}

func (p *Pool) AcquireCredential(uid, gid uint32) (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creds.acquire(uid, gid)
}

func (p *Pool) ReleaseCredential(c *Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds.release(c)
}

// ShuttingDown reports whether the shutdown token has fired.
func (p *Pool) ShuttingDown() bool {
	return p.ctx.Err() != nil
}

// Err returns why the pool shut down, or nil while it is running.
func (p *Pool) Err() error {
	if p.ctx.Err() == nil {
		return nil
	}
	return context.Cause(p.ctx)
}

// Aborted reports whether a run-fatal traversal error shut the pool down.
func (p *Pool) Aborted() bool {
	return errors.Is(p.Err(), ErrTraversalAborted)
}

// Shutdown asks every worker to stop after its current directory.
func (p *Pool) Shutdown(cause error) {
	p.abort(cause)
}

func (p *Pool) abortTraversal(err error) {
	p.abort(fmt.Errorf("%w: %w", ErrTraversalAborted, err))
}

// Close shuts the pool down and joins every worker. Workers that died from a
// panic are reported but do not make Close fail.
func (p *Pool) Close() {
	p.closed.Do(func() {
		p.abort(ErrPoolClosed)
		if err := p.group.Wait(); err != nil {
			logger.Debug("worker group returned: %v", err)
		}
		p.stopWake()
		for _, slot := range p.slots[1:] {
			if msg := slot.panicMsg.Load(); msg != nil {
				logger.Warn("worker %02d terminated abnormally: %s", slot.ordinal, *msg)
			}
		}
	})
}

// record folds the counts of one finished walk into the pool totals and,
// while its invocation is running, into that invocation's totals.
func (p *Pool) record(hid uint64, c *jobCounts) {
	p.stats.add(c)
	p.mu.Lock()
	run := p.runs[hid]
	p.mu.Unlock()
	if run != nil {
		run.add(c)
	}
}

func (p *Pool) wakeAll() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// enqueue hands dir/name to another worker. It refuses when the joined path
// would not fit a job's path buffer, when the pool is shutting down, or when
// every slab record is in use; the caller then walks the directory itself.
func (p *Pool) enqueue(ctx context.Context, dir, name string, cred *Credential, hid uint64) bool {
	if len(dir)+len(name) > MaxJoinedPathLen {
		logger.Warn("path %s/%s is %d bytes, over the %d byte queue limit", dir, name, len(dir)+len(name), MaxJoinedPathLen)
		return false
	}
	if ctx.Err() != nil || p.ShuttingDown() {
		return false
	}
	path := joinPath(dir, name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ShuttingDown() {
		return false
	}
	idx, ok := p.slab.acquire()
	if !ok {
		return false
	}
	job := p.slab.job(idx)
	job.Path = path
	job.Cred = cred
	job.HierarchyID = hid
	p.queue.add(idx)
	p.pending[hid]++
	p.cond.Broadcast()
	return true
}

// finishLocked returns a worker's claimed job to the slab.
func (p *Pool) finishLocked(slot *WorkerSlot, idx int) {
	hid := p.slab.job(idx).HierarchyID
	slot.setIdle()
	p.slab.release(idx)
	if p.pending[hid]--; p.pending[hid] <= 0 {
		delete(p.pending, hid)
	}
}

func (p *Pool) work(slot *WorkerSlot) (err error) {
	w := &walker{pool: p, slot: slot}
	held := -1

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			slot.panicMsg.Store(&msg)
			slot.exited.Store(true)
			err = fmt.Errorf("worker %02d panicked: %s", slot.ordinal, msg)
		}
	}()

	for {
		p.mu.Lock()
		if held >= 0 {
			p.finishLocked(slot, held)
			held = -1
		} else {
			slot.setIdle()
		}
		for p.queue.sizeHint() == 0 && !p.ShuttingDown() {
			p.cond.Wait()
		}
		if p.ShuttingDown() {
			p.mu.Unlock()
			slot.exited.Store(true)
			return nil
		}
		idx, _ := p.queue.removeHead()
		p.slab.activate(idx)
		job := *p.slab.job(idx)
		slot.setBusy(job.HierarchyID)
		held = idx
		p.mu.Unlock()

		if werr := w.walk(p.ctx, &job); werr != nil {
			w.debugf("walk of %s returned: %v", job.Path, werr)
		}
	}
}

// Summary describes one finished invocation.
type Summary struct {
	HierarchyID uint64
	Stats       Snapshot
	Elapsed     time.Duration
}

// Run changes the owner of everything under path to uid:gid. The invoking
// goroutine walks the root itself and then waits for the hierarchy to drain.
// The returned summary is valid even when err is not nil.
func (p *Pool) Run(path string, uid, gid uint32) (Summary, error) {
	start := time.Now()
	if p.ShuttingDown() {
		return Summary{}, fmt.Errorf("%w: %w", ErrPoolClosed, p.Err())
	}

	cred, err := p.AcquireCredential(uid, gid)
	if err != nil {
		return Summary{}, err
	}
	defer p.ReleaseCredential(cred)

	root := DirectoryJob{Path: path, Cred: cred, HierarchyID: p.NewHierarchyID()}
	run := &Stats{}
	p.mu.Lock()
	p.runs[root.HierarchyID] = run
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.runs, root.HierarchyID)
		p.mu.Unlock()
	}()
	logger.Debug("invocation job created for %s with hierarchy id %d", path, root.HierarchyID)

	invoker := &walker{pool: p, slot: p.slots[0]}
	p.slots[0].setBusy(root.HierarchyID)
	walkErr := invoker.walk(p.ctx, &root)
	p.slots[0].setIdle()
	if walkErr != nil {
		logger.Error("walk of %s returned: %v", path, walkErr)
	}

	drainErr := p.WaitForDrain(root.HierarchyID)

	return Summary{
		HierarchyID: root.HierarchyID,
		Stats:       run.Snapshot(),
		Elapsed:     time.Since(start),
	}, errors.Join(walkErr, drainErr)
}
