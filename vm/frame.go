package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/op"
	"github.com/tomacox74/js2il-sub000/registry"
)

// frame is the activation record of one method invocation.
type frame struct {
	code   *bytecode.Code
	args   []any
	locals []any
	stack  []any
	ip     int

	// caught is the exception being handled, for Rethrow.
	caught *Exception
	// finallies are the finally handlers currently running, innermost
	// last.
	finallies []finallyRecord
}

// finallyRecord remembers why a finally handler was entered and where to
// continue when it ends.
type finallyRecord struct {
	region int
	from   int
	leave  bool
	target int
	exc    *Exception
}

func newFrame(code *bytecode.Code, args []any) *frame {
	locals := make([]any, code.LocalCount())
	for i := range locals {
		locals[i] = code.LocalAt(i).Zero()
	}
	return &frame{
		code:   code,
		args:   args,
		locals: locals,
		stack:  make([]any, 0, code.MaxStack()),
	}
}

func (f *frame) push(v any) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() (any, error) {
	n := len(f.stack)
	if n == 0 {
		return nil, errors.New("evaluation stack underflow")
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v, nil
}

// popN pops n values and returns them in push order.
func (f *frame) popN(n int) ([]any, error) {
	if n > len(f.stack) {
		return nil, fmt.Errorf("evaluation stack underflow: need %d, have %d", n, len(f.stack))
	}
	start := len(f.stack) - n
	values := make([]any, n)
	copy(values, f.stack[start:])
	f.stack = f.stack[:start]
	return values, nil
}

func (f *frame) popFloat() (float64, error) {
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	x, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected a raw double, got %s", typeName(v))
	}
	return x, nil
}

func (f *frame) popBool() (bool, error) {
	v, err := f.pop()
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected a raw bool, got %s", typeName(v))
	}
	return b, nil
}

func (f *frame) popInt() (int, error) {
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	i, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("expected a raw int, got %s", typeName(v))
	}
	return i, nil
}

func (f *frame) popVector() ([]any, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	vec, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an object vector, got %s", typeName(v))
	}
	return vec, nil
}

// unwind transfers control to the first handler, starting at region from,
// whose try range protects offset at. It returns false if no region does.
func (f *frame) unwind(exc *Exception, at, from int) bool {
	for i := from; i < f.code.RegionCount(); i++ {
		rg := f.code.RegionAt(i)
		if !rg.Protects(at) {
			continue
		}
		f.stack = f.stack[:0]
		if rg.Kind == bytecode.RegionCatch {
			if rg.CatchType != "" && !isInstance(exc.Value, rg.CatchType) {
				continue
			}
			f.push(exc.Value)
			f.caught = exc
			f.ip = rg.HandlerStart
			return true
		}
		f.finallies = append(f.finallies, finallyRecord{region: i, from: at, exc: exc})
		f.ip = rg.HandlerStart
		return true
	}
	return false
}

// throw starts exception handling for an exception raised at offset at.
// A pending finally handler that raised it is abandoned.
func (f *frame) throw(exc *Exception, at int) bool {
	kept := f.finallies[:0]
	for _, rec := range f.finallies {
		if !f.code.RegionAt(rec.region).InHandler(at) {
			kept = append(kept, rec)
		}
	}
	f.finallies = kept
	return f.unwind(exc, at, 0)
}

// leave exits protected regions from offset at to target, running the
// finally handlers of the regions being exited, starting at region from.
func (f *frame) leave(at, target, from int) {
	f.stack = f.stack[:0]
	for i := from; i < f.code.RegionCount(); i++ {
		rg := f.code.RegionAt(i)
		if rg.Kind == bytecode.RegionFinally && rg.Protects(at) && !rg.Protects(target) {
			f.finallies = append(f.finallies, finallyRecord{region: i, from: at, leave: true, target: target})
			f.ip = rg.HandlerStart
			return
		}
	}
	f.ip = target
}

// endFinally continues whatever entered the innermost running finally
// handler. It returns the exception to propagate when no handler in this
// frame takes it.
func (f *frame) endFinally() (*Exception, error) {
	n := len(f.finallies)
	if n == 0 {
		return nil, errors.New("end of finally handler outside a finally handler")
	}
	rec := f.finallies[n-1]
	f.finallies = f.finallies[:n-1]
	if rec.leave {
		f.leave(rec.from, rec.target, rec.region+1)
		return nil, nil
	}
	if f.unwind(rec.exc, rec.from, rec.region+1) {
		return nil, nil
	}
	return rec.exc, nil
}

// exec runs one invocation to completion.
func (r *Runtime) exec(code *bytecode.Code, args []any) (any, error) {
	if r.depth >= MaxFrameDepth {
		return nil, newRangeError("maximum call stack size exceeded")
	}
	r.depth++
	defer func() { r.depth-- }()

	f := newFrame(code, args)
	instrs := code.Instructions()
	var lastSpan bytecode.SourceSpan
	for {
		if f.ip < 0 || f.ip >= len(instrs) {
			return nil, &Fault{Method: code.Name(), Offset: f.ip, Opcode: "<end>",
				Err: errors.New("execution ran off the end of the method")}
		}
		at := f.ip
		opcode := instrs[at]
		info := op.GetInfo(opcode)
		width := op.Width(instrs, at)
		if info.Name == "" || at+width > len(instrs) {
			return nil, &Fault{Method: code.Name(), Offset: at, Opcode: fmt.Sprint(opcode),
				Err: errors.New("malformed instruction")}
		}
		operands := instrs[at+1 : at+width]
		f.ip = at + width

		r.steps++
		if r.contextCheckInterval > 0 && r.steps%int64(r.contextCheckInterval) == 0 {
			if err := r.ctx.Err(); err != nil {
				return nil, err
			}
		}
		if r.observer != nil && r.observerCfg.StepMode != StepNone {
			span, _ := code.SpanAt(at)
			if r.shouldStep(span, lastSpan) {
				if !r.observer.OnStep(StepEvent{
					Method:     code.Name(),
					IP:         at,
					Opcode:     opcode,
					OpcodeName: info.Name,
					Span:       span,
					StackDepth: len(f.stack),
					FrameDepth: r.depth,
				}) {
					return nil, ErrHalted
				}
			}
			lastSpan = span
		}

		result, done, err := r.step(f, at, opcode, operands)
		if err != nil {
			if p, ok := err.(*propagate); ok {
				return nil, p.exc
			}
			exc, ok := AsException(err)
			if !ok {
				var fault *Fault
				if errors.As(err, &fault) || errors.Is(err, ErrHalted) || r.ctx.Err() != nil {
					return nil, err
				}
				return nil, &Fault{Method: code.Name(), Offset: at, Opcode: info.Name, Err: err}
			}
			if f.throw(exc, at) {
				continue
			}
			return nil, exc
		}
		if done {
			return result, nil
		}
	}
}

func (r *Runtime) shouldStep(span, last bytecode.SourceSpan) bool {
	switch r.observerCfg.StepMode {
	case StepAll:
		return true
	case StepSampled:
		return r.steps%int64(r.observerCfg.SampleInterval) == 0
	case StepOnLine:
		return !span.Start.IsZero() && span.Start.Line != last.Start.Line
	}
	return false
}

// step executes one instruction. done is set when the method returns.
func (r *Runtime) step(f *frame, at int, opcode op.Code, operands []op.Code) (result any, done bool, err error) {
	code := f.code
	switch opcode {
	case op.Nop:
	case op.Pop:
		_, err = f.pop()
	case op.Dup:
		var v any
		if v, err = f.pop(); err == nil {
			f.push(v)
			f.push(v)
		}

	case op.LdUndef:
		f.push(nil)
	case op.LdNull:
		f.push(Null)
	case op.LdTrue:
		f.push(true)
	case op.LdFalse:
		f.push(false)
	case op.LdI4:
		f.push(int(int16(operands[0])))
	case op.LdF64:
		x, ok := code.ConstantAt(int(operands[0])).(float64)
		if !ok {
			return nil, false, fmt.Errorf("constant %d is not a double", operands[0])
		}
		f.push(x)
	case op.LdStr:
		s, ok := code.ConstantAt(int(operands[0])).(string)
		if !ok {
			return nil, false, fmt.Errorf("constant %d is not a string", operands[0])
		}
		f.push(s)

	case op.LdArg:
		n := int(operands[0])
		if n >= len(f.args) {
			return nil, false, fmt.Errorf("argument %d out of range", n)
		}
		f.push(f.args[n])
	case op.StArg:
		n := int(operands[0])
		if n >= len(f.args) {
			return nil, false, fmt.Errorf("argument %d out of range", n)
		}
		f.args[n], err = f.pop()
	case op.LdLoc:
		n := int(operands[0])
		if n >= len(f.locals) {
			return nil, false, fmt.Errorf("local %d out of range", n)
		}
		f.push(f.locals[n])
	case op.StLoc:
		n := int(operands[0])
		if n >= len(f.locals) {
			return nil, false, fmt.Errorf("local %d out of range", n)
		}
		f.locals[n], err = f.pop()

	case op.Add, op.Sub, op.Mul, op.Div, op.Rem, op.Pow, op.Clt, op.Cgt, op.Cle, op.Cge:
		err = f.arith(opcode)
	case op.Neg:
		var x float64
		if x, err = f.popFloat(); err == nil {
			f.push(-x)
		}
	case op.Ceq:
		var values []any
		if values, err = f.popN(2); err == nil {
			f.push(strictEquals(values[0], values[1]))
		}
	case op.Not:
		var b bool
		if b, err = f.popBool(); err == nil {
			f.push(!b)
		}

	case op.ConvF:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		switch v := v.(type) {
		case bool:
			f.push(toNumber(v))
		case int:
			f.push(float64(v))
		case float64:
			f.push(v)
		default:
			err = fmt.Errorf("cannot convert %s to a double", typeName(v))
		}
	case op.ConvI:
		var x float64
		if x, err = f.popFloat(); err == nil {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				f.push(-1)
			} else {
				f.push(int(x))
			}
		}
	case op.BoxF:
		var x float64
		if x, err = f.popFloat(); err == nil {
			f.push(Number(x))
		}
	case op.BoxB:
		var b bool
		if b, err = f.popBool(); err == nil {
			f.push(Boolean(b))
		}
	case op.UnboxF:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		switch v.(type) {
		case float64, bool, int:
			err = fmt.Errorf("cannot unbox raw %s", typeName(v))
		default:
			f.push(toNumber(v))
		}
	case op.UnboxB:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		switch v.(type) {
		case float64, bool, int:
			err = fmt.Errorf("cannot unbox raw %s", typeName(v))
		default:
			f.push(toBoolean(v))
		}
	case op.CastClass:
		name := code.NameAt(int(operands[0]))
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		if v != nil && v != Null && !isInstance(v, name) {
			return nil, false, newTypeError("cannot cast %s to %s", typeName(v), name)
		}
		f.push(v)
	case op.IsInst:
		name := code.NameAt(int(operands[0]))
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		if isInstance(v, name) {
			f.push(v)
		} else {
			f.push(nil)
		}

	case op.Call:
		err = r.opCall(f, registry.Token(operands[0]), int(operands[1]))
	case op.CallValue:
		var values []any
		if values, err = f.popN(int(operands[0]) + 1); err != nil {
			break
		}
		n := len(values) - 1
		var out any
		if out, err = r.callValue(values[n], values[:n]); err == nil {
			f.push(out)
		}
	case op.CallMember:
		var values []any
		if values, err = f.popN(int(operands[1]) + 1); err != nil {
			break
		}
		var out any
		if out, err = r.callMember(values[0], code.NameAt(int(operands[0])), values[1:]); err == nil {
			f.push(out)
		}
	case op.CallMemberArgs:
		var vec []any
		if vec, err = f.popVector(); err != nil {
			break
		}
		var recv, out any
		if recv, err = f.pop(); err != nil {
			break
		}
		if out, err = r.callMember(recv, code.NameAt(int(operands[0])), vec); err == nil {
			f.push(out)
		}
	case op.CallHelper:
		var values []any
		if values, err = f.popN(int(operands[1])); err != nil {
			break
		}
		var out any
		if out, err = r.callHelper(code.NameAt(int(operands[0])), values); err == nil {
			f.push(out)
		}
	case op.NewObj:
		var values []any
		if values, err = f.popN(int(operands[1])); err != nil {
			break
		}
		var out any
		if out, err = r.newObject(code.NameAt(int(operands[0])), values); err == nil {
			f.push(out)
		}
	case op.NewUser:
		err = r.opNewUser(f, registry.Token(operands[0]), int(operands[1]))
	case op.MkClosure:
		var scopes []any
		if scopes, err = f.popVector(); err == nil {
			f.push(&Closure{Token: registry.Token(operands[0]), Scopes: scopes})
		}

	case op.LdFld:
		var obj, v any
		if obj, err = f.pop(); err != nil {
			break
		}
		if v, err = loadField(obj, code.NameAt(int(operands[0]))); err == nil {
			f.push(v)
		}
	case op.StFld:
		var values []any
		if values, err = f.popN(2); err == nil {
			err = storeField(values[0], code.NameAt(int(operands[0])), values[1])
		}
	case op.LdGlobal:
		name := code.NameAt(int(operands[0]))
		v, ok := r.globals[name]
		if !ok {
			return nil, false, fmt.Errorf("unknown global %q", name)
		}
		f.push(v)

	case op.NewArr:
		var n int
		if n, err = f.popInt(); err != nil {
			break
		}
		if n < 0 {
			return nil, false, newRangeError("invalid array length %d", n)
		}
		f.push(make([]any, n))
	case op.LdElem:
		var i int
		var vec []any
		if i, err = f.popInt(); err != nil {
			break
		}
		if vec, err = f.popVector(); err != nil {
			break
		}
		if i >= 0 && i < len(vec) {
			f.push(vec[i])
		} else {
			f.push(nil)
		}
	case op.StElem:
		var v any
		var i int
		var vec []any
		if v, err = f.pop(); err != nil {
			break
		}
		if i, err = f.popInt(); err != nil {
			break
		}
		if vec, err = f.popVector(); err != nil {
			break
		}
		if i < 0 || i >= len(vec) {
			return nil, false, fmt.Errorf("vector index %d out of range [0, %d)", i, len(vec))
		}
		vec[i] = v
	case op.LdLen:
		var vec []any
		if vec, err = f.popVector(); err == nil {
			f.push(len(vec))
		}

	case op.ArrGet, op.ArrSet, op.ArrLen, op.F64Get, op.F64Set, op.F64Len:
		err = f.typedArray(opcode)

	case op.Br:
		f.ip = int(operands[0])
	case op.BrTrue, op.BrFalse:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		if branchTaken(v) == (opcode == op.BrTrue) {
			f.ip = int(operands[0])
		}
	case op.Switch:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		sel, ok := v.(int)
		if !ok {
			return nil, false, fmt.Errorf("switch selector is %s, not a raw int", typeName(v))
		}
		targets := operands[1:]
		if sel >= 0 && sel < len(targets) {
			f.ip = int(targets[sel])
		}
	case op.Ret:
		var v any
		if v, err = f.pop(); err == nil {
			return v, true, nil
		}
	case op.Leave:
		f.leave(at, int(operands[0]), 0)
	case op.EndFinally:
		var exc *Exception
		if exc, err = f.endFinally(); err == nil && exc != nil {
			return nil, false, &propagate{exc}
		}
	case op.Throw:
		var v any
		if v, err = f.pop(); err == nil {
			err = &Exception{Value: throwable(v)}
		}
	case op.Rethrow:
		if f.caught == nil {
			return nil, false, errors.New("rethrow outside a catch handler")
		}
		err = f.caught

	default:
		return nil, false, fmt.Errorf("unhandled opcode %s", op.GetInfo(opcode).Name)
	}
	return nil, false, err
}

// propagate carries an exception out of a finally handler without letting
// the handler's own regions catch it again.
type propagate struct {
	exc *Exception
}

func (p *propagate) Error() string {
	return p.exc.Error()
}

func branchTaken(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	case nil, NullType:
		return false
	}
	return true
}

func (f *frame) arith(opcode op.Code) error {
	b, err := f.popFloat()
	if err != nil {
		return err
	}
	a, err := f.popFloat()
	if err != nil {
		return err
	}
	switch opcode {
	case op.Add:
		f.push(a + b)
	case op.Sub:
		f.push(a - b)
	case op.Mul:
		f.push(a * b)
	case op.Div:
		f.push(a / b)
	case op.Rem:
		f.push(math.Mod(a, b))
	case op.Pow:
		f.push(math.Pow(a, b))
	case op.Clt:
		f.push(a < b)
	case op.Cgt:
		f.push(a > b)
	case op.Cle:
		f.push(a <= b)
	case op.Cge:
		f.push(a >= b)
	}
	return nil
}

func (f *frame) typedArray(opcode op.Code) error {
	var value any
	var index int
	var err error
	switch opcode {
	case op.ArrSet, op.F64Set:
		if value, err = f.pop(); err != nil {
			return err
		}
		fallthrough
	case op.ArrGet, op.F64Get:
		if index, err = f.popInt(); err != nil {
			return err
		}
	}
	target, err := f.pop()
	if err != nil {
		return err
	}
	switch opcode {
	case op.ArrGet, op.ArrSet, op.ArrLen:
		arr, ok := target.(*Array)
		if !ok {
			return fmt.Errorf("expected an Array, got %s", typeName(target))
		}
		switch opcode {
		case op.ArrGet:
			if index >= 0 && index < len(arr.Items) {
				f.push(arr.Items[index])
			} else {
				f.push(nil)
			}
		case op.ArrSet:
			arr.set(index, value)
		case op.ArrLen:
			f.push(len(arr.Items))
		}
	default:
		arr, ok := target.(*Float64Array)
		if !ok {
			return fmt.Errorf("expected a Float64Array, got %s", typeName(target))
		}
		switch opcode {
		case op.F64Get:
			if index >= 0 && index < len(arr.Items) {
				f.push(arr.Items[index])
			} else {
				f.push(math.NaN())
			}
		case op.F64Set:
			x, ok := value.(float64)
			if !ok {
				return fmt.Errorf("expected a raw double, got %s", typeName(value))
			}
			if index >= 0 && index < len(arr.Items) {
				arr.Items[index] = x
			}
		case op.F64Len:
			f.push(len(arr.Items))
		}
	}
	return nil
}

// set stores an element, growing the array with undefined as needed.
func (a *Array) set(index int, value any) {
	if index < 0 {
		return
	}
	for len(a.Items) <= index {
		a.Items = append(a.Items, nil)
	}
	a.Items[index] = value
}

func (r *Runtime) opCall(f *frame, token registry.Token, argc int) error {
	args, err := f.popN(argc)
	if err != nil {
		return err
	}
	code, err := r.code(token)
	if err != nil {
		return err
	}
	out, err := r.invoke(code, args)
	if err != nil {
		return err
	}
	f.push(out)
	return nil
}

func (r *Runtime) opNewUser(f *frame, token registry.Token, argc int) error {
	args, err := f.popN(argc)
	if err != nil {
		return err
	}
	code, err := r.code(token)
	if err != nil {
		return err
	}
	if !code.IsConstructor() {
		return fmt.Errorf("%s is not a constructor", code.Name())
	}
	this := NewObject(className(code.Name()))
	full := make([]any, 0, argc+1)
	full = append(full, this)
	full = append(full, args...)
	out, err := r.invoke(code, full)
	if err != nil {
		return err
	}
	if isObjectValue(out) {
		f.push(out)
	} else {
		f.push(this)
	}
	return nil
}
