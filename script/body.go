package script

import (
	"context"
	"fmt"
	"regexp"

	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z_$][A-Za-z0-9_$]*)\}`)

// body interprets steps against a module environment.
type body struct {
	opts      Options
	specifier string
	steps     []Step
	async     bool
}

func (b *body) Execute(ctx context.Context, env *record.Environment) (*promise.Promise, error) {
	return b.run(ctx, env, 0)
}

// run executes steps from pc until the end or the first suspension point.
// A suspension returns a promise for the rest of the body.
func (b *body) run(ctx context.Context, env *record.Environment, pc int) (*promise.Promise, error) {
	for ; pc < len(b.steps); pc++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Terminated(b.specifier, err)
		}
		step := &b.steps[pc]
		switch {
		case step.Await != "":
			return b.resume(ctx, env, b.await(step.Await), pc+1, nil), nil
		case step.Import != nil:
			p, err := b.dynamicImport(ctx, env, step.Import)
			if err != nil {
				return nil, err
			}
			bind := func(ns any) error {
				if step.Import.Into == "" {
					return nil
				}
				return assign(env, step.Import.Into, ns)
			}
			if b.async {
				return b.resume(ctx, env, p, pc+1, bind), nil
			}
			from := step.Import.From
			p.Handle(
				func(ns any) {
					if err := bind(ns); err != nil {
						b.trace(fmt.Sprintf("import %s: %v", from, err))
					}
				},
				func(err error) { b.trace(fmt.Sprintf("import %s failed: %v", from, err)) },
			)
		default:
			if err := b.exec(ctx, env, step); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

// resume continues the body at next once awaited fulfils. A rejection
// skips the rest of the body and rejects the returned promise.
func (b *body) resume(ctx context.Context, env *record.Environment, awaited *promise.Promise, next int, bind func(any) error) *promise.Promise {
	return awaited.Then(func(v any) (any, error) {
		if bind != nil {
			if err := bind(v); err != nil {
				return nil, err
			}
		}
		p, err := b.run(ctx, env, next)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}
		return p, nil
	}, nil)
}

func (b *body) await(operand string) *promise.Promise {
	if operand == AwaitNever {
		return promise.NewCapability(b.opts.Queue).Promise
	}
	return promise.Resolved(b.opts.Queue, nil)
}

func (b *body) dynamicImport(ctx context.Context, env *record.Environment, step *ImportStep) (*promise.Promise, error) {
	if b.opts.Importer == nil {
		return nil, errors.Unsupported(errors.PhaseEvaluate, "dynamic import of "+step.From+" without an importer")
	}
	return b.opts.Importer.DynamicImport(ctx, env.Module(), step.From, assertions(step.With)), nil
}

func (b *body) exec(ctx context.Context, env *record.Environment, step *Step) error {
	switch {
	case step.Set != nil:
		for _, a := range step.Set {
			if err := env.Set(a.Name, a.Value); err != nil {
				return err
			}
		}
	case step.Init != nil:
		for _, a := range step.Init {
			if err := env.Initialize(a.Name, a.Value); err != nil {
				return err
			}
		}
	case step.Copy != nil:
		v, err := env.Get(step.Copy.From)
		if err != nil {
			return err
		}
		return assign(env, step.Copy.To, v)
	case step.Read != "":
		_, err := env.Get(step.Read)
		return err
	case step.Log != "":
		msg, err := interpolate(env, step.Log)
		if err != nil {
			return err
		}
		b.trace(msg)
	case step.Throw != "":
		return errors.New(errors.PhaseEvaluate, errors.KindEvaluation).
			Module(b.specifier).
			Value(step.Throw).
			Detail("%s", step.Throw).
			Build()
	case step.Call != nil:
		return b.call(ctx, env, step.Call)
	}
	return nil
}

func (b *body) call(ctx context.Context, env *record.Environment, step *CallStep) error {
	fn, err := env.Get(step.Fn)
	if err != nil {
		return err
	}
	c, ok := fn.(modgraph.Callable)
	if !ok {
		return errors.New(errors.PhaseEvaluate, errors.KindInvalidData).
			Module(b.specifier).
			Name(step.Fn).
			Detail("%s is not a function", step.Fn).
			Build()
	}
	args := make([]modgraph.Value, len(step.Args))
	copy(args, step.Args)
	v, err := c.Call(ctx, args...)
	if err != nil {
		return err
	}
	if step.Into == "" {
		return nil
	}
	return assign(env, step.Into, v)
}

func (b *body) trace(msg string) {
	if b.opts.Trace != nil {
		b.opts.Trace(b.specifier, msg)
	}
}

// assign initializes name if it is still in its dead zone and sets it
// otherwise.
func assign(env *record.Environment, name string, v modgraph.Value) error {
	if _, local := env.Kind(name); local && !env.IsInitialized(name) {
		return env.Initialize(name, v)
	}
	return env.Set(name, v)
}

// interpolate replaces {name} with the binding's current value.
func interpolate(env *record.Environment, msg string) (string, error) {
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(msg, func(m string) string {
		name := m[1 : len(m)-1]
		v, err := env.Get(name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		return fmt.Sprint(v)
	})
	return out, firstErr
}
