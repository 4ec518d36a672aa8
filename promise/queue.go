package promise

import (
	"context"
	"fmt"
	"sync"

	goeventloop "github.com/joeycumines/go-eventloop"
)

// Job is a unit of work run by the queue.
type Job func()

// Queue runs jobs and promise reactions as microtasks of an event loop.
//
// The loop runs on its own goroutine, but callbacks only execute while a
// caller is inside Drain: until then they wait at the front of the
// microtask queue. Module graphs are therefore only touched while some
// goroutine is blocked in Drain on their behalf.
type Queue struct {
	loop *goeventloop.Loop
	js   *goeventloop.JS
	stop context.CancelFunc
	cond *sync.Cond

	mu          sync.Mutex
	outstanding int // scheduled callbacks that have not finished
	ran         int
	running     bool
	draining    bool
	closed      bool
}

// Open creates a queue backed by a new event loop.
func Open() (*Queue, error) {
	loop, err := goeventloop.New()
	if err != nil {
		return nil, fmt.Errorf("create event loop: %w", err)
	}
	js, err := goeventloop.NewJS(loop)
	if err != nil {
		_ = loop.Shutdown(context.Background())
		return nil, fmt.Errorf("create JS adapter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{loop: loop, js: js, stop: cancel}
	q.cond = sync.NewCond(&q.mu)
	go func() { _ = loop.Run(ctx) }()
	return q, nil
}

// NewQueue is like Open but panics if the event loop cannot be created.
func NewQueue() *Queue {
	q, err := Open()
	if err != nil {
		panic(err)
	}
	return q
}

// JS returns the promise and timer API of the underlying loop.
func (q *Queue) JS() *goeventloop.JS {
	return q.js
}

// Enqueue schedules a job as a microtask. Jobs enqueued after Close are
// dropped.
func (q *Queue) Enqueue(job Job) {
	if !q.add(1) {
		return
	}
	if err := q.js.QueueMicrotask(func() { q.run(job) }); err != nil {
		q.done(false)
	}
}

// add accounts for n callbacks the loop is about to run.
func (q *Queue) add(n int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.outstanding += n
	return true
}

func (q *Queue) done(ran bool) {
	q.mu.Lock()
	if q.outstanding > 0 {
		q.outstanding--
	}
	q.running = false
	if ran {
		q.ran++
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

// run executes fn on the loop goroutine once a Drain is active.
func (q *Queue) run(fn func()) {
	q.mu.Lock()
	for !q.draining && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		q.mu.Unlock()
		q.done(false)
		return
	}
	q.running = true
	q.mu.Unlock()

	defer q.done(true)
	fn()
}

// Len returns the number of scheduled jobs and reactions not yet run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Drain lets the loop run jobs, including ones scheduled while draining,
// until none are left or ctx is done. It returns the number of jobs run.
// A job already running when ctx is cancelled is allowed to finish.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	q.draining = true
	q.ran = 0
	q.cond.Broadcast()
	q.mu.Unlock()

	// Wake the loop in case it went idle with microtasks queued.
	_ = q.loop.Submit(func() {})

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.running || (q.outstanding > 0 && ctx.Err() == nil && !q.closed) {
		q.cond.Wait()
	}
	q.draining = false
	return q.ran, ctx.Err()
}

// Close stops the loop. Callbacks that have not run yet are discarded.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	err := q.loop.Shutdown(ctx)
	q.stop()
	return err
}
