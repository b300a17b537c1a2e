// Package compiler lowers a method body in LIR form into the stack-machine
// instruction stream described by package op.
//
// # Pipeline
//
// Compiling one method runs these passes in order:
//
//  1. Validation (debug builds only): the body is checked against the
//     invariants the backend relies on.
//  2. Stackify: temps whose single use can receive the value directly on the
//     evaluation stack are marked and never get a local.
//  3. Branch conditions: comparisons consumed only by a conditional branch
//     are evaluated by the branch itself.
//  4. Peephole masking (optional): console.log calls built from a scratch
//     argument vector are recognized and emitted directly.
//  5. Slot allocation: every remaining temp whose value must outlive its
//     definition is mapped to a reusable local slot.
//  6. Emission: instructions are lowered one by one. Temps without a slot
//     are regenerated at each use from their defining instruction.
//  7. Verification: the emitted stream is checked for stack balance and its
//     maximum depth is recorded.
//
// # Locals
//
// The local signature is laid out as follows:
//
//   - local 0: the leaf scope, when the method has one or is suspendable
//   - one local per stable variable slot
//   - one local per allocated temp slot
//   - the return-value local, when the method has exception regions or is
//     suspendable
//   - the exception scratch local of async methods
//
// # Suspendable Methods
//
// Generators and async functions are lowered to resumable state machines.
// State that must survive a suspension lives in fields of the leaf scope;
// locals are spilled to it before suspending and restored on re-entry. The
// first argument of the scopes array identifies a resumed invocation.
//
// # Errors
//
// Compile returns *errz.StructuredError values. Unsupported constructs are
// recoverable: the caller may choose another compilation path. All other
// errors abort the method.
package compiler

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/errz"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/registry"
	"github.com/tomacox74/js2il-sub000/validate"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxArgs is the maximum number of arguments passed at a call site.
	MaxArgs = 255

	// DefaultMaxInlineDepth bounds the nesting of regenerated definitions.
	DefaultMaxInlineDepth = 256
)

// Config holds compiler configuration options.
type Config struct {
	// Debug runs the method-body validator before emission.
	Debug bool

	// Peephole enables the console.log fast path.
	Peephole bool

	// MaxInlineDepth bounds how deeply temps are regenerated at their uses.
	// Zero selects DefaultMaxInlineDepth.
	MaxInlineDepth int

	// Parallelism bounds the number of methods CompileModule compiles at
	// once. Zero selects GOMAXPROCS.
	Parallelism int

	// Logger receives per-method debug output. The zero value discards it.
	Logger zerolog.Logger
}

// DefaultConfig returns the configuration used by the command-line tools.
func DefaultConfig() Config {
	return Config{
		Peephole:       true,
		MaxInlineDepth: DefaultMaxInlineDepth,
		Logger:         zerolog.Nop(),
	}
}

// Compile lowers one method body. The body and the resolver are only read;
// the same body may be compiled concurrently with different configurations.
func Compile(body *lir.MethodBody, desc lir.MethodDescriptor, res registry.Resolver, cfg Config) (code *bytecode.Code, err error) {
	if body == nil {
		return nil, errors.New("compiler: nil method body")
	}
	if cfg.MaxInlineDepth <= 0 {
		cfg.MaxInlineDepth = DefaultMaxInlineDepth
	}
	if cfg.Debug {
		if err := validate.Body(body); err != nil {
			return nil, err
		}
	}
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*errz.StructuredError)
			if !ok {
				panic(r)
			}
			code, err = nil, se.WithMethod(body.Name)
		}
	}()
	e := newEmitter(body, desc, res, cfg)
	code = e.compile()
	cfg.Logger.Debug().
		Str("method", body.Name).
		Int("stackable", e.stackable.Count()).
		Int("slots", e.alloc.SlotCount()).
		Int("windows", e.windowCount()).
		Int("words", code.InstructionCount()).
		Int("max_stack", code.MaxStack()).
		Msg("compiled method")
	return code, nil
}

// Method is one unit of a module compile.
type Method struct {
	Body       *lir.MethodBody
	Descriptor lir.MethodDescriptor
}

// CompileModule compiles every method concurrently. The results are in the
// order of the input. When any method fails, the errors of all failing
// methods are returned together and no code is returned.
func CompileModule(methods []Method, res registry.Resolver, cfg Config) ([]*bytecode.Code, error) {
	codes := make([]*bytecode.Code, len(methods))
	errs := make([]error, len(methods))
	limit := cfg.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, m := range methods {
		i, m := i, m
		g.Go(func() error {
			code, err := Compile(m.Body, m.Descriptor, res, cfg)
			if err != nil {
				errs[i] = fmt.Errorf("method %d: %w", i, err)
				return nil
			}
			codes[i] = code
			return nil
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return codes, nil
}
