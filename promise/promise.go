package promise

import (
	"fmt"
	"sync"

	goeventloop "github.com/joeycumines/go-eventloop"
)

// State is the settlement state of a promise.
type State uint8

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Promise is a single-assignment asynchronous result backed by an event
// loop ChainedPromise. The settlement is mirrored here so it can be read
// synchronously.
type Promise struct {
	queue   *Queue
	chained *goeventloop.ChainedPromise
	fulfil  func(value any)
	reject  func(reason any)
	value   any
	reason  error
	mu      sync.Mutex
	waiting int // reactions attached while pending
	state   State
	handled bool
}

// Capability bundles a promise with the functions that settle it.
// Only the first call to Resolve or Reject has an effect.
type Capability struct {
	Promise *Promise
	Resolve func(value any)
	Reject  func(reason error)
}

// NewCapability creates a pending promise and its resolving functions.
func NewCapability(q *Queue) *Capability {
	chained, fulfil, reject := q.js.NewChainedPromise()
	p := &Promise{
		queue:   q,
		chained: chained,
		fulfil:  func(v any) { fulfil(v) },
		reject:  func(r any) { reject(r) },
	}
	var once sync.Once
	return &Capability{
		Promise: p,
		Resolve: func(value any) {
			once.Do(func() { p.resolve(value) })
		},
		Reject: func(reason error) {
			once.Do(func() { p.settle(Rejected, nil, reason) })
		},
	}
}

// Resolved returns a promise already fulfilled with value.
// If value is itself a promise, the result adopts its state.
func Resolved(q *Queue, value any) *Promise {
	c := NewCapability(q)
	c.Resolve(value)
	return c.Promise
}

// RejectedWith returns a promise already rejected with reason.
func RejectedWith(q *Queue, reason error) *Promise {
	c := NewCapability(q)
	c.Reject(reason)
	return c.Promise
}

// resolve fulfils p, or makes it follow value when value is a promise.
func (p *Promise) resolve(value any) {
	inner, ok := value.(*Promise)
	if !ok {
		p.settle(Fulfilled, value, nil)
		return
	}
	if inner == p {
		p.settle(Rejected, nil, fmt.Errorf("promise: chaining cycle detected"))
		return
	}
	// Adoption takes one extra job, like PromiseResolveThenableJob.
	p.queue.Enqueue(func() {
		inner.Handle(
			func(v any) { p.settle(Fulfilled, v, nil) },
			func(err error) { p.settle(Rejected, nil, err) },
		)
	})
}

func (p *Promise) settle(state State, value any, reason error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Pending {
		return
	}
	p.state = state
	p.value = value
	p.reason = reason

	// The loop schedules one microtask per attached reaction.
	p.queue.add(p.waiting)
	p.waiting = 0
	if state == Fulfilled {
		p.fulfil(value)
	} else {
		p.reject(reason)
	}
}

// State returns the current settlement state.
func (p *Promise) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Value returns the fulfilment value, or nil if not fulfilled.
func (p *Promise) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Reason returns the rejection reason, or nil if not rejected.
func (p *Promise) Reason() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// IsHandled reports whether any reaction was ever attached.
func (p *Promise) IsHandled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handled
}

// MarkHandled flags the promise as observed without attaching a reaction.
func (p *Promise) MarkHandled() {
	p.mu.Lock()
	p.handled = true
	p.mu.Unlock()
}

// Queue returns the job queue reactions are scheduled on.
func (p *Promise) Queue() *Queue {
	return p.queue
}

// Chained returns the event loop promise backing p.
func (p *Promise) Chained() *goeventloop.ChainedPromise {
	return p.chained
}

// Handle attaches settlement callbacks. Nil callbacks are ignored.
// Callbacks always run as jobs, never synchronously.
func (p *Promise) Handle(onFulfilled func(any), onRejected func(error)) {
	q := p.queue
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handled = true
	if p.state == Pending {
		p.waiting++
	} else if !q.add(1) {
		return
	}

	p.chained.Then(
		func(any) any {
			q.run(func() {
				if onFulfilled != nil {
					onFulfilled(p.Value())
				}
			})
			return nil
		},
		func(any) any {
			q.run(func() {
				if onRejected != nil {
					onRejected(p.Reason())
				}
			})
			return nil
		},
	)
}

// Then attaches handlers and returns a derived promise settled with the
// handler's result. A nil handler passes the settlement through.
func (p *Promise) Then(onFulfilled func(any) (any, error), onRejected func(error) (any, error)) *Promise {
	derived := NewCapability(p.queue)
	settle := func(v any, err error) {
		if err != nil {
			derived.Reject(err)
			return
		}
		derived.Resolve(v)
	}
	p.Handle(
		func(v any) {
			if onFulfilled == nil {
				derived.Resolve(v)
				return
			}
			settle(onFulfilled(v))
		},
		func(reason error) {
			if onRejected == nil {
				derived.Reject(reason)
				return
			}
			settle(onRejected(reason))
		},
	)
	return derived.Promise
}
