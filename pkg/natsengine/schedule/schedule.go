// Package schedule is a minimal deferred/repeating task runner. It is the
// concrete stand-in for the "generic background scheduler capable of
// deferred and repeating tasks" SPEC_FULL.md §1 names as an external
// collaborator: this engine needs one to exist, so this package implements
// the narrow contract the streaming driver actually uses.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Progress is the outcome of one Task activation, used by the caller to
// decide the next reschedule delay.
type Progress int

const (
	// ProgressRescheduleNow reschedules the task with no delay: the last
	// pass observed data and idle-polling backoff should not apply.
	ProgressRescheduleNow Progress = iota
	// ProgressRescheduleBackoff reschedules the task after the pool's
	// configured backoff delay.
	ProgressRescheduleBackoff
	// ProgressDone deactivates the task; it will not run again until
	// explicitly Activated.
	ProgressDone
)

// Task is one activation of a scheduled unit of work.
type Task func(ctx context.Context) Progress

// Pool runs named tasks on independent timers. At most one activation of a
// given named task runs at a time. Deactivate is guarded by an internal
// mutex distinct from each task's own execution so that a task can
// deactivate a peer (or itself, via Done) from inside its own activation
// without deadlocking — mirroring SPEC_FULL.md §5's task_mutex.
type Pool struct {
	backoff time.Duration
	tasks   map[string]*scheduledTask
	mu      sync.Mutex // guards tasks map and (de)activation, not task bodies
}

type scheduledTask struct {
	fn        Task
	timer     *time.Timer
	ctx       context.Context
	cancel    context.CancelFunc
	active    bool
	activated bool
}

// NewPool returns a Pool whose backoff reschedule delay is backoff.
func NewPool(backoff time.Duration) *Pool {
	return &Pool{
		tasks:   make(map[string]*scheduledTask),
		backoff: backoff,
	}
}

// Register adds a named task without starting it. Call Activate to start
// its first run.
func (p *Pool) Register(name string, fn Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks[name] = &scheduledTask{fn: fn}
}

// Activate schedules name's first activation after delay, if it isn't
// already active. Calling Activate on an already-active task is a no-op.
func (p *Pool) Activate(name string, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[name]
	if !ok || t.active {
		return
	}
	t.active = true
	t.activated = true
	t.ctx, t.cancel = context.WithCancel(context.Background())
	p.arm(name, t, delay)
}

// Deactivate stops name's timer and marks it inactive. Safe to call from
// inside the task's own activation (it only takes p.mu, never blocks on the
// task's execution).
func (p *Pool) Deactivate(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[name]
	if !ok || !t.active {
		return
	}
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.cancel != nil {
		t.cancel()
	}
}

// IsActive reports whether name is currently active.
func (p *Pool) IsActive(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[name]
	return ok && t.active
}

// arm must be called with p.mu held.
func (p *Pool) arm(name string, t *scheduledTask, delay time.Duration) {
	t.timer = time.AfterFunc(delay, func() { p.run(name) })
}

func (p *Pool) run(name string) {
	p.mu.Lock()
	t, ok := p.tasks[name]
	if !ok || !t.active {
		p.mu.Unlock()
		return
	}
	ctx := t.ctx
	fn := t.fn
	p.mu.Unlock()

	progress := fn(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok = p.tasks[name]
	if !ok || !t.active {
		return
	}

	switch progress {
	case ProgressDone:
		t.active = false
		if t.cancel != nil {
			t.cancel()
		}
	case ProgressRescheduleBackoff:
		p.arm(name, t, p.backoff)
	default:
		p.arm(name, t, 0)
	}
}

// StopAll deactivates every registered task, used during shutdown.
func (p *Pool) StopAll() {
	p.mu.Lock()
	names := make([]string, 0, len(p.tasks))
	for name := range p.tasks {
		names = append(names, name)
	}
	p.mu.Unlock()

	for _, name := range names {
		p.Deactivate(name)
	}
}
