package vm

type promiseState uint8

const (
	pending promiseState = iota
	fulfilled
	rejected
)

// Promise is a settle-once container whose reactions run as jobs.
type Promise struct {
	state     promiseState
	value     any
	reactions []reaction
}

type reaction struct {
	onFulfilled func(any) (any, error)
	onRejected  func(any) (any, error)
	result      *Promise
}

// State returns "pending", "fulfilled" or "rejected".
func (p *Promise) State() string {
	switch p.state {
	case fulfilled:
		return "fulfilled"
	case rejected:
		return "rejected"
	}
	return "pending"
}

// Value returns the settled value or rejection reason.
func (p *Promise) Value() any {
	return p.value
}

// resolve settles p with v, adopting the state of v when it is a promise.
func (r *Runtime) resolve(p *Promise, v any) {
	if p.state != pending {
		return
	}
	if inner, ok := v.(*Promise); ok {
		if inner == p {
			r.settle(p, rejected, &ErrorObject{Type: "TypeError", Message: "promise resolved with itself"})
			return
		}
		r.then(inner,
			func(v any) (any, error) { r.resolve(p, v); return nil, nil },
			func(v any) (any, error) { r.settle(p, rejected, v); return nil, nil })
		return
	}
	r.settle(p, fulfilled, v)
}

func (r *Runtime) reject(p *Promise, reason any) {
	if p.state != pending {
		return
	}
	r.settle(p, rejected, reason)
}

func (r *Runtime) settle(p *Promise, state promiseState, v any) {
	p.state, p.value = state, v
	reactions := p.reactions
	p.reactions = nil
	for _, re := range reactions {
		r.schedule(p, re)
	}
}

// then registers reactions and returns the derived promise. A nil handler
// passes the outcome through.
func (r *Runtime) then(p *Promise, onFulfilled, onRejected func(any) (any, error)) *Promise {
	re := reaction{onFulfilled: onFulfilled, onRejected: onRejected, result: &Promise{}}
	if p.state == pending {
		p.reactions = append(p.reactions, re)
	} else {
		r.schedule(p, re)
	}
	return re.result
}

func (r *Runtime) schedule(p *Promise, re reaction) {
	state, value := p.state, p.value
	r.enqueue(func() error {
		handler := re.onFulfilled
		if state == rejected {
			handler = re.onRejected
		}
		if handler == nil {
			if state == rejected {
				r.reject(re.result, value)
			} else {
				r.resolve(re.result, value)
			}
			return nil
		}
		out, err := handler(value)
		if err != nil {
			exc, ok := AsException(err)
			if !ok {
				return err
			}
			r.reject(re.result, exc.ThrownValue())
			return nil
		}
		r.resolve(re.result, out)
		return nil
	})
}

func (r *Runtime) resolved(v any) *Promise {
	if p, ok := v.(*Promise); ok {
		return p
	}
	p := &Promise{}
	r.resolve(p, v)
	return p
}

func (r *Runtime) rejectedWith(reason any) *Promise {
	p := &Promise{}
	r.reject(p, reason)
	return p
}

func (r *Runtime) enqueue(job func() error) {
	r.jobs = append(r.jobs, job)
}
