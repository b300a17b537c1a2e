package vm

import (
	"github.com/tomacox74/js2il-sub000/registry"
)

// Generator drives a compiled generator method. Each step re-enters the
// method through step, whose first scope is the generator's leaf scope.
type Generator struct {
	step *Closure
	args []any
	done bool
}

func (g *Generator) leaf() *Scope {
	return g.step.Scopes[0].(*Scope)
}

// started reports whether the body has run past its first resume point.
func (g *Generator) started() bool {
	state, ok := g.leaf().Fields[registry.FieldGenState].(int)
	return !ok || state != 0
}

func (r *Runtime) generatorResume(g *Generator) (any, error) {
	out, err := r.callClosure(g.step, g.args)
	if err != nil {
		g.done = true
		return nil, err
	}
	if res, ok := out.(*Object); ok && toBoolean(res.Get("done")) {
		g.done = true
	}
	return out, nil
}

func (r *Runtime) generatorNext(g *Generator, v any) (any, error) {
	if g.done {
		return iterResult(nil, true), nil
	}
	g.leaf().Fields[registry.FieldResumeValue] = v
	return r.generatorResume(g)
}

func (r *Runtime) generatorReturn(g *Generator, v any) (any, error) {
	if g.done || !g.started() {
		g.done = true
		return iterResult(v, true), nil
	}
	leaf := g.leaf()
	leaf.Fields[registry.FieldHasReturn] = true
	leaf.Fields[registry.FieldReturnValue] = v
	return r.generatorResume(g)
}

func (r *Runtime) generatorThrow(g *Generator, v any) (any, error) {
	if g.done || !g.started() {
		g.done = true
		return nil, &Exception{Value: throwable(v)}
	}
	leaf := g.leaf()
	leaf.Fields[registry.FieldHasResumeException] = true
	leaf.Fields[registry.FieldResumeException] = v
	return r.generatorResume(g)
}

// AsyncGenerator drives a compiled async generator method. Each call to
// next installs a fresh deferred in the leaf scope and re-enters the method
// through moveNext; the method settles the deferred when it yields or
// completes.
type AsyncGenerator struct {
	moveNext *Closure
	args     []any
}

func (r *Runtime) asyncGeneratorNext(g *AsyncGenerator, v any) (any, error) {
	leaf := g.moveNext.Scopes[0].(*Scope)
	if toBoolean(leaf.Fields[registry.FieldDone]) {
		return r.resolved(iterResult(nil, true)), nil
	}
	deferred := &Deferred{Promise: &Promise{}}
	leaf.Fields[registry.FieldDeferred] = deferred
	leaf.Fields[registry.FieldResumeValue] = v
	if _, err := r.callClosure(g.moveNext, g.args); err != nil {
		exc, ok := AsException(err)
		if !ok {
			return nil, err
		}
		r.reject(deferred.Promise, exc.ThrownValue())
	}
	return deferred.Promise, nil
}
