// Package vm is a reference interpreter for the instruction stream produced
// by package compiler, together with the minimal runtime library the
// emitted code calls into: the console, arrays, objects, scopes, closures,
// errors, promises with a job queue, generators and async generators.
//
// Raw numeric instructions only accept unboxed operands, so a
// representation error in emitted code surfaces as a *Fault rather than a
// silently coerced value.
//
// A Runtime is not safe for concurrent use.
package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/registry"
)

const (
	// MaxFrameDepth bounds the nesting of calls.
	MaxFrameDepth = 1024

	// DefaultContextCheckInterval is the number of instructions between
	// checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000
)

// Runtime executes compiled methods. Functions are addressed by the tokens
// the registry assigned to them.
type Runtime struct {
	functions []*bytecode.Code
	globals   map[string]any
	out       io.Writer
	errOut    io.Writer
	logger    zerolog.Logger
	runID     uuid.UUID

	observer    Observer
	observerCfg ObserverConfig

	contextCheckInterval int

	ctx   context.Context
	jobs  []func() error
	depth int
	steps int64
}

// New returns a runtime over a function table indexed by token. Entries
// may be nil for tokens that are never called.
func New(functions []*bytecode.Code, options ...Option) *Runtime {
	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.Nil
	}
	r := &Runtime{
		functions:            functions,
		globals:              map[string]any{"console": &Console{}},
		out:                  os.Stdout,
		errOut:               os.Stderr,
		logger:               zerolog.Nop(),
		runID:                id,
		contextCheckInterval: DefaultContextCheckInterval,
		ctx:                  context.Background(),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.observer != nil {
		r.observerCfg = NormalizeConfig(r.observer.Config())
	}
	r.logger = r.logger.With().Str("run_id", r.runID.String()).Logger()
	return r
}

// RunID identifies this runtime in log output.
func (r *Runtime) RunID() uuid.UUID {
	return r.runID
}

// Steps returns the number of instructions executed so far.
func (r *Runtime) Steps() int64 {
	return r.steps
}

// Pending returns the number of queued jobs.
func (r *Runtime) Pending() int {
	return len(r.jobs)
}

func (r *Runtime) code(token registry.Token) (*bytecode.Code, error) {
	if int(token) >= len(r.functions) || r.functions[token] == nil {
		return nil, fmt.Errorf("no function for token %d", token)
	}
	return r.functions[token], nil
}

// Call invokes the function with the given token synchronously. Queued jobs
// are left in the queue.
func (r *Runtime) Call(ctx context.Context, token registry.Token, args ...any) (any, error) {
	code, err := r.code(token)
	if err != nil {
		return nil, err
	}
	r.ctx = ctx
	return r.invoke(code, args)
}

// CallValue calls a function value: a closure or a native function.
func (r *Runtime) CallValue(ctx context.Context, fn any, args ...any) (any, error) {
	r.ctx = ctx
	return r.callValue(fn, args)
}

// Drain runs queued jobs until the queue is empty.
func (r *Runtime) Drain(ctx context.Context) error {
	r.ctx = ctx
	for len(r.jobs) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		job := r.jobs[0]
		r.jobs = r.jobs[1:]
		if err := job(); err != nil {
			return err
		}
	}
	return nil
}

// Run calls the function with the given token and then drains the job
// queue. When the function returns a promise, Run returns its settled
// value, or its rejection reason as an *Exception.
func (r *Runtime) Run(ctx context.Context, token registry.Token, args ...any) (any, error) {
	start := time.Now()
	r.logger.Debug().Uint16("token", uint16(token)).Int("args", len(args)).Msg("run started")
	result, err := r.Call(ctx, token, args...)
	if err == nil {
		err = r.Drain(ctx)
	}
	if err == nil {
		if p, ok := result.(*Promise); ok {
			switch p.state {
			case fulfilled:
				result = p.value
			case rejected:
				result, err = nil, &Exception{Value: throwable(p.value)}
			}
		}
	}
	r.logger.Debug().
		Int64("steps", r.steps).
		Dur("elapsed", time.Since(start)).
		Bool("ok", err == nil).
		Msg("run finished")
	return result, err
}

// invoke pads or truncates the arguments to the callee's parameter count
// and executes it.
func (r *Runtime) invoke(code *bytecode.Code, args []any) (any, error) {
	n := code.ParamCount()
	params := make([]any, n)
	copy(params, args)
	if r.observer != nil && r.observerCfg.ObserveCalls {
		if !r.observer.OnCall(CallEvent{FunctionName: code.Name(), ArgCount: len(args), FrameDepth: r.depth + 1}) {
			return nil, ErrHalted
		}
	}
	result, err := r.exec(code, params)
	if err == nil && r.observer != nil && r.observerCfg.ObserveReturns {
		if !r.observer.OnReturn(ReturnEvent{FunctionName: code.Name(), FrameDepth: r.depth}) {
			return nil, ErrHalted
		}
	}
	return result, err
}

func (r *Runtime) callClosure(c *Closure, args []any) (any, error) {
	code, err := r.code(c.Token)
	if err != nil {
		return nil, err
	}
	full := make([]any, 0, len(args)+1)
	full = append(full, c.Scopes)
	full = append(full, args...)
	return r.invoke(code, full)
}

func (r *Runtime) callValue(fn any, args []any) (any, error) {
	switch fn := fn.(type) {
	case *Closure:
		return r.callClosure(fn, args)
	case NativeFunc:
		return fn(args)
	}
	return nil, newTypeError("%s is not a function", typeName(fn))
}
