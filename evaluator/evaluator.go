package evaluator

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

// ErrorBehavior selects how Evaluate reports an already known failure.
type ErrorBehavior uint8

const (
	// ReportAsync always returns the promise; failures reject it.
	ReportAsync ErrorBehavior = iota
	// ThrowSync also returns the error when the promise is already rejected.
	ThrowSync
)

func (b ErrorBehavior) String() string {
	if b == ThrowSync {
		return "throw-sync"
	}
	return "report-async"
}

// Options configures evaluator behavior.
type Options struct {
	// MaxAsyncOrder caps the async post-order counter. Exceeding it is
	// reported as an allocation failure.
	MaxAsyncOrder uint32
}

// DefaultOptions returns default evaluator configuration.
func DefaultOptions() Options {
	return Options{
		MaxAsyncOrder: math.MaxUint32,
	}
}

// Evaluator evaluates linked module graphs on a job queue.
type Evaluator struct {
	queue *promise.Queue
	// outstanding holds records with async evaluation in progress and the
	// context they were started under.
	outstanding map[*record.Record]context.Context
	options     Options
	nextOrder   uint32
}

// New creates an Evaluator scheduling continuations on queue.
func New(queue *promise.Queue, opts Options) *Evaluator {
	if opts.MaxAsyncOrder == 0 {
		opts.MaxAsyncOrder = math.MaxUint32
	}
	return &Evaluator{
		queue:       queue,
		outstanding: make(map[*record.Record]context.Context),
		options:     opts,
		nextOrder:   1,
	}
}

// NewWithDefaults creates an Evaluator with default options.
func NewWithDefaults(queue *promise.Queue) *Evaluator {
	return New(queue, DefaultOptions())
}

// Queue returns the job queue continuations run on.
func (e *Evaluator) Queue() *promise.Queue {
	return e.queue
}

// Pending returns the number of records with async evaluation in progress.
func (e *Evaluator) Pending() int {
	return len(e.outstanding)
}

// NextAsyncOrder returns the order the next record to go async will get.
func (e *Evaluator) NextAsyncOrder() uint32 {
	return e.nextOrder
}

// Evaluate runs root and its dependencies and returns the promise settled
// when the whole graph has finished. Calling it again for a record whose
// evaluation already started returns the same promise.
//
// With ThrowSync, a failure known before Evaluate returns is also
// returned as the error.
func (e *Evaluator) Evaluate(ctx context.Context, root *record.Record, behavior ErrorBehavior) (*promise.Promise, error) {
	module := root
	switch s := module.Status(); {
	case s == record.StatusLinked:
	case s == record.StatusEvaluatingAsync || s.IsEvaluated():
		if cr := module.CycleRoot(); cr != nil {
			module = cr
		}
	default:
		return nil, errors.InvalidState(errors.PhaseEvaluate, root.Specifier,
			"cannot evaluate module in status "+s.String())
	}

	if c := module.TopLevelCapability(); c != nil {
		return outcome(c, behavior)
	}

	c := promise.NewCapability(e.queue)
	module.SetTopLevelCapability(c)

	var stack []*record.Record
	if _, err := e.innerEvaluate(ctx, module, &stack, 0); err != nil {
		for _, m := range stack {
			m.ClearDFS()
			m.SetEvaluationError(err)
			e.finish(m)
		}
		Logger().Debug("evaluation failed",
			zap.String("module", module.Specifier),
			zap.Int("component_size", len(stack)),
			zap.Error(err))
		c.Reject(err)
	} else if !module.AsyncEvaluation() {
		c.Resolve(nil)
	}

	return outcome(c, behavior)
}

func outcome(c *promise.Capability, behavior ErrorBehavior) (*promise.Promise, error) {
	p := c.Promise
	if behavior == ThrowSync && p.State() == promise.Rejected {
		p.MarkHandled()
		return p, p.Reason()
	}
	return p, nil
}

func (e *Evaluator) innerEvaluate(ctx context.Context, m *record.Record, stack *[]*record.Record, index uint32) (uint32, error) {
	switch s := m.Status(); s {
	case record.StatusEvaluatedError:
		return index, m.EvaluationError()
	case record.StatusEvaluating, record.StatusEvaluatingAsync, record.StatusEvaluated:
		return index, nil
	case record.StatusLinked:
	default:
		return index, errors.InvalidState(errors.PhaseEvaluate, m.Specifier,
			"cannot evaluate module in status "+s.String())
	}
	if index == math.MaxUint32 {
		return index, errors.AllocationFailed(errors.PhaseEvaluate, "dfs index space")
	}

	m.SetStatus(record.StatusEvaluating)
	m.SetDFSIndex(index)
	m.ResetPendingAsyncDependencies()
	m.SetCycleRoot(m)
	index++
	*stack = append(*stack, m)

	for _, rm := range m.RequestedModules {
		required, err := m.ImportedModule(rm.Request)
		if err != nil {
			return index, err
		}
		index, err = e.innerEvaluate(ctx, required, stack, index)
		if err != nil {
			return index, err
		}

		if required.Status() == record.StatusEvaluating {
			anc, _ := required.DFSAncestorIndex()
			m.LowerDFSAncestorIndex(anc)
		} else {
			required = required.CycleRoot()
			if err := required.EvaluationError(); err != nil {
				return index, err
			}
		}
		if required.AsyncEvaluation() {
			m.AddPendingAsyncDependency()
			required.AddAsyncParentModule(m)
		}
	}

	if m.PendingAsyncDependencies() > 0 || m.HasTopLevelAwait {
		order, err := e.allocateOrder()
		if err != nil {
			return index, err
		}
		m.StartAsyncEvaluation(order)
		e.outstanding[m] = ctx
		Logger().Debug("module evaluating async",
			zap.String("module", m.Specifier),
			zap.Uint32("async_order", order),
			zap.Uint32("pending", m.PendingAsyncDependencies()))
		if m.PendingAsyncDependencies() == 0 {
			e.executeAsync(ctx, m)
		}
	} else if err := e.execute(ctx, m); err != nil {
		return index, err
	}

	if !m.IsSCCRoot() {
		return index, nil
	}
	for {
		top := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		if top.AsyncEvaluation() {
			top.SetStatus(record.StatusEvaluatingAsync)
		} else {
			top.SetStatus(record.StatusEvaluated)
		}
		top.SetCycleRoot(m)
		top.ClearDFS()
		if top == m {
			break
		}
	}
	return index, nil
}

func (e *Evaluator) allocateOrder() (uint32, error) {
	if e.nextOrder == 0 || e.nextOrder > e.options.MaxAsyncOrder {
		return 0, errors.AllocationFailed(errors.PhaseEvaluate, "async post order")
	}
	order := e.nextOrder
	e.nextOrder++
	return order, nil
}

// execute runs a synchronous body.
func (e *Evaluator) execute(ctx context.Context, m *record.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.Terminated(m.Specifier, err)
	}
	if m.Body == nil {
		return nil
	}
	Logger().Debug("executing module", zap.String("module", m.Specifier))
	p, err := m.Body.Execute(ctx, m.Environment())
	if err != nil {
		return interrupted(ctx, m, err)
	}
	if p != nil {
		// Result of a synchronous body is discarded.
		p.MarkHandled()
	}
	return nil
}

// interrupted reports err as a termination when ctx was cancelled while
// the body ran; other errors are returned unchanged.
func interrupted(ctx context.Context, m *record.Record, err error) error {
	if ctx.Err() == nil || errors.IsKind(err, errors.KindTerminated) {
		return err
	}
	return errors.Terminated(m.Specifier, err)
}
