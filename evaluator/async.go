package evaluator

import (
	"context"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

// executeAsync starts a body that uses top-level await. Its completion is
// observed through a reaction, never synchronously.
func (e *Evaluator) executeAsync(ctx context.Context, m *record.Record) {
	c := promise.NewCapability(e.queue)
	c.Promise.Handle(
		func(any) { e.asyncFulfilled(m) },
		func(err error) { e.asyncRejected(m, err) },
	)

	if err := ctx.Err(); err != nil {
		c.Reject(errors.Terminated(m.Specifier, err))
		return
	}
	if m.Body == nil {
		c.Resolve(nil)
		return
	}

	Logger().Debug("executing async module", zap.String("module", m.Specifier))
	p, err := m.Body.Execute(ctx, m.Environment())
	switch {
	case err != nil:
		c.Reject(interrupted(ctx, m, err))
	case p == nil:
		c.Resolve(nil)
	default:
		c.Resolve(p)
	}
}

// asyncFulfilled completes m and resumes every ancestor whose last pending
// dependency was m, in async post order.
func (e *Evaluator) asyncFulfilled(m *record.Record) {
	if m.Status().IsEvaluated() {
		// Failed while waiting; the error is already stored.
		e.finish(m)
		return
	}

	m.SetStatus(record.StatusEvaluated)
	e.finish(m)
	Logger().Debug("async module fulfilled", zap.String("module", m.Specifier))
	if c := m.TopLevelCapability(); c != nil {
		c.Resolve(nil)
	}

	var execList []*record.Record
	gatherAvailableAncestors(m, &execList)
	sort.SliceStable(execList, func(i, j int) bool {
		return execList[i].AsyncEvaluatingOrder() < execList[j].AsyncEvaluatingOrder()
	})

	for _, p := range execList {
		if p.Status().IsEvaluated() {
			continue
		}
		ctx := e.contextOf(p)
		if p.HasTopLevelAwait {
			e.executeAsync(ctx, p)
			continue
		}
		if err := e.execute(ctx, p); err != nil {
			e.asyncRejected(p, err)
			continue
		}
		p.SetStatus(record.StatusEvaluated)
		e.finish(p)
		if c := p.TopLevelCapability(); c != nil {
			c.Resolve(nil)
		}
	}
}

// gatherAvailableAncestors collects the async parents of m that have no
// pending dependency left. Parents without top-level await complete
// synchronously, so their own parents are gathered too.
func gatherAvailableAncestors(m *record.Record, execList *[]*record.Record) {
	for _, p := range m.AsyncParentModules() {
		if slices.Contains(*execList, p) {
			continue
		}
		if cr := p.CycleRoot(); cr != nil && cr.EvaluationError() != nil {
			continue
		}
		if p.Status().IsEvaluated() {
			continue
		}
		if p.ResolvePendingAsyncDependency() == 0 {
			*execList = append(*execList, p)
			if !p.HasTopLevelAwait {
				gatherAvailableAncestors(p, execList)
			}
		}
	}
}

// asyncRejected stores err on m and every async parent waiting on it, and
// rejects their top-level capabilities.
func (e *Evaluator) asyncRejected(m *record.Record, err error) {
	if m.Status().IsEvaluated() {
		e.finish(m)
		return
	}

	m.SetEvaluationError(err)
	e.finish(m)
	Logger().Debug("async module rejected",
		zap.String("module", m.Specifier),
		zap.Error(err))

	for _, p := range m.AsyncParentModules() {
		e.asyncRejected(p, err)
	}
	if c := m.TopLevelCapability(); c != nil {
		c.Reject(err)
	}
}

// finish ends m's async evaluation. The post-order counter restarts once
// no record is left async.
func (e *Evaluator) finish(m *record.Record) {
	if m.AsyncEvaluation() {
		m.FinishAsyncEvaluation()
	}
	delete(e.outstanding, m)
	if len(e.outstanding) == 0 {
		e.nextOrder = 1
	}
}

func (e *Evaluator) contextOf(m *record.Record) context.Context {
	if ctx, ok := e.outstanding[m]; ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// Terminate fails every EvaluatingAsync record with a terminated error
// wrapping cause, oldest first. It returns the number of
// records it failed.
func (e *Evaluator) Terminate(cause error) int {
	pending := make([]*record.Record, 0, len(e.outstanding))
	for m := range e.outstanding {
		pending = append(pending, m)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].AsyncEvaluatingOrder() < pending[j].AsyncEvaluatingOrder()
	})

	n := 0
	for _, m := range pending {
		switch m.Status() {
		case record.StatusEvaluatingAsync:
		case record.StatusEvaluating:
			// Still on an evaluation stack; that call fails it.
			continue
		default:
			e.finish(m)
			continue
		}
		e.asyncRejected(m, errors.Terminated(m.Specifier, cause))
		n++
	}
	if n > 0 {
		Logger().Info("terminated async evaluation", zap.Int("modules", n), zap.Error(cause))
	}
	return n
}
