package vm

import (
	"io"

	"github.com/rs/zerolog"
)

// Option is a configuration function for a Runtime.
type Option func(*Runtime)

// WithOutput sets the writer console.log prints to. console.error prints
// to errOut; a nil errOut selects out.
func WithOutput(out, errOut io.Writer) Option {
	return func(r *Runtime) {
		r.out = out
		r.errOut = errOut
		if errOut == nil {
			r.errOut = out
		}
	}
}

// WithGlobals provides values for LdGlobal in addition to console.
func WithGlobals(globals map[string]any) Option {
	return func(r *Runtime) {
		for name, value := range globals {
			r.globals[name] = value
		}
	}
}

// WithLogger sets the logger receiving run events.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithContextCheckInterval sets how often, in instructions, the runtime
// checks ctx.Done(). A value of 0 disables the check.
func WithContextCheckInterval(interval int) Option {
	return func(r *Runtime) {
		r.contextCheckInterval = interval
	}
}

// WithObserver sets an observer for execution events. Returning false from
// any observer method halts execution with ErrHalted.
func WithObserver(observer Observer) Option {
	return func(r *Runtime) {
		r.observer = observer
	}
}
