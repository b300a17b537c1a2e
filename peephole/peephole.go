// Package peephole recognizes console.log call windows that can be emitted
// as a single stack-only sequence without materializing any of the temps
// that build the argument array.
//
// A window has one of two shapes:
//
//	t0 = global console
//	t1 = new.object[] N
//	[begin.init t1[0]] store t1[0] = a0 ... [begin.init t1[N-1]] store t1[N-1] = aN-1
//	t2 = call.intrinsic t0.log t1
//
//	t0 = global console
//	t1 = new.object[] a0 ... aN-1   (or: t1 = array a0 ... aN-1)
//	t2 = call.intrinsic t0.log t1
//
// Matching only changes how the window is emitted, never what it computes.
package peephole

import (
	"strings"

	"github.com/tomacox74/js2il-sub000/analysis"
	"github.com/tomacox74/js2il-sub000/lir"
)

const (
	receiverName = "console"
	methodName   = "log"
)

// Update describes a fused increment or decrement of a double variable whose
// old (postfix) or new (prefix) value is the single logged argument.
type Update struct {
	Index  int // instruction index of the add or sub
	Slot   int // variable slot being updated
	Op     lir.NumberOp
	Prefix bool
}

// Window is one matched call shape.
type Window struct {
	Start    int // index of the receiver lookup
	Call     int // index of the call; the window is [Start, Call]
	Receiver lir.Temp
	Array    lir.Temp
	Args     []lir.Temp
	Result   lir.Temp
	Update   *Update
}

// Len returns the number of instructions covered by the window.
func (w *Window) Len() int {
	return w.Call - w.Start + 1
}

// Contains returns true if the instruction index lies inside the window.
func (w *Window) Contains(idx int) bool {
	return idx >= w.Start && idx <= w.Call
}

// Analysis holds the accepted windows of a method body.
type Analysis struct {
	Windows []*Window

	// UsedOutside marks temps read by an instruction outside every window.
	UsedOutside []bool

	// Absorbed marks temps defined inside a window and read only there.
	// They never need a local slot.
	Absorbed []bool

	replaced []*Window
}

// IsAbsorbed returns true if t is absorbed by a window.
func (r *Analysis) IsAbsorbed(t lir.Temp) bool {
	return r != nil && t >= 0 && int(t) < len(r.Absorbed) && r.Absorbed[t]
}

// Covering returns the window covering an instruction index, if any.
func (r *Analysis) Covering(idx int) (*Window, bool) {
	if r == nil || idx < 0 || idx >= len(r.replaced) || r.replaced[idx] == nil {
		return nil, false
	}
	return r.replaced[idx], true
}

// At returns the window whose call is at idx, if any.
func (r *Analysis) At(idx int) (*Window, bool) {
	w, ok := r.Covering(idx)
	if !ok || w.Call != idx {
		return nil, false
	}
	return w, true
}

// Mask matches every window of the body. It never modifies the body.
func Mask(body *lir.MethodBody) *Analysis {
	return MaskIndexed(analysis.NewIndex(body))
}

// MaskIndexed is Mask over an existing index.
func MaskIndexed(x *analysis.Index) *Analysis {
	body := x.Body()
	result := &Analysis{
		UsedOutside: make([]bool, body.TempCount()),
		Absorbed:    make([]bool, body.TempCount()),
		replaced:    make([]*Window, len(body.Instructions)),
	}
	for idx := 0; idx < len(body.Instructions); idx++ {
		w, ok := match(x, idx)
		if !ok || !accept(x, w) {
			continue
		}
		result.Windows = append(result.Windows, w)
		for j := w.Start; j <= w.Call; j++ {
			result.replaced[j] = w
		}
		idx = w.Call
	}
	for idx, instr := range body.Instructions {
		if result.replaced[idx] != nil {
			continue
		}
		for _, used := range instr.Uses() {
			if body.ValidTemp(used) {
				result.UsedOutside[used] = true
			}
		}
	}
	for _, w := range result.Windows {
		for j := w.Start; j < w.Call; j++ {
			def := body.Instructions[j].Def()
			if body.ValidTemp(def) && !body.IsVariableBacked(def) && !result.UsedOutside[def] {
				result.Absorbed[def] = true
			}
		}
	}
	return result
}

func isConsole(instr lir.Instruction) (*lir.GetIntrinsicGlobal, bool) {
	g, ok := instr.(*lir.GetIntrinsicGlobal)
	if !ok || !strings.EqualFold(g.Name, receiverName) {
		return nil, false
	}
	return g, true
}

func isLogCall(instr lir.Instruction, receiver, array lir.Temp) (*lir.CallIntrinsic, bool) {
	call, ok := instr.(*lir.CallIntrinsic)
	if !ok || call.Receiver != receiver || call.ArgumentsArray != array ||
		!strings.EqualFold(call.Method, methodName) {
		return nil, false
	}
	return call, true
}

// match recognizes the window shape starting at idx without judging whether
// it is safe to rewrite.
func match(x *analysis.Index, idx int) (*Window, bool) {
	instrs := x.Body().Instructions
	if idx+2 >= len(instrs) {
		return nil, false
	}
	g, ok := isConsole(instrs[idx])
	if !ok {
		return nil, false
	}
	var array lir.Temp
	var elements []lir.Temp
	switch a := instrs[idx+1].(type) {
	case *lir.BuildArray:
		array, elements = a.Result, a.Elements
	case *lir.NewObjectArray:
		if len(a.Elements) == 0 {
			return matchStores(x, idx, g, a)
		}
		array, elements = a.Result, a.Elements
	default:
		return nil, false
	}
	if len(elements) == 0 {
		return nil, false
	}
	call, ok := isLogCall(instrs[idx+2], g.Result, array)
	if !ok {
		return nil, false
	}
	return &Window{
		Start:    idx,
		Call:     idx + 2,
		Receiver: g.Result,
		Array:    array,
		Args:     append([]lir.Temp(nil), elements...),
		Result:   call.Result,
	}, true
}

// matchStores recognizes the element-by-element form. Stores must appear in
// index order; any other instruction may sit between them and is judged by
// accept.
func matchStores(x *analysis.Index, start int, g *lir.GetIntrinsicGlobal, a *lir.NewObjectArray) (*Window, bool) {
	instrs := x.Body().Instructions
	if a.Length < 1 {
		return nil, false
	}
	args := make([]lir.Temp, 0, a.Length)
	search := start + 2
	for i := 0; i < a.Length; i++ {
		if search < len(instrs) {
			if begin, ok := instrs[search].(*lir.BeginInitArrayElement); ok && begin.Array == a.Result && begin.Index == i {
				search++
			}
		}
		found := false
		for j := search; j < len(instrs); j++ {
			if s, ok := instrs[j].(*lir.StoreElementRef); ok && s.Array == a.Result && s.Index == i {
				args = append(args, s.Value)
				search = j + 1
				found = true
				break
			}
			switch instrs[j].(type) {
			case *lir.GetIntrinsicGlobal, *lir.NewObjectArray:
				return nil, false
			}
		}
		if !found {
			return nil, false
		}
	}
	if search >= len(instrs) {
		return nil, false
	}
	call, ok := isLogCall(instrs[search], g.Result, a.Result)
	if !ok {
		return nil, false
	}
	w := &Window{
		Start:    start,
		Call:     search,
		Receiver: g.Result,
		Array:    a.Result,
		Args:     args,
		Result:   call.Result,
	}
	if len(args) == 1 {
		w.Update = matchUpdate(x, w)
	}
	return w, true
}

// matchUpdate recognizes `box x` logged after `x = x +/- 1` (prefix) or
// `box x_old` taken before the update, where x_old is its operand (postfix).
// Both temps name the same variable slot, so the box must sit on the side
// of the update that matches the value it logs.
func matchUpdate(x *analysis.Index, w *Window) *Update {
	body := x.Body()
	conv, ok := x.Def(w.Args[0]).(*lir.Convert)
	if !ok || conv.Kind != lir.Box {
		return nil
	}
	box := x.DefIndex(w.Args[0])
	for idx := w.Start + 2; idx < w.Call; idx++ {
		bin, ok := body.Instructions[idx].(*lir.BinaryNumber)
		if !ok {
			continue
		}
		if bin.Op != lir.AddNumber && bin.Op != lir.SubNumber {
			return nil
		}
		slot := body.VariableSlot(bin.Result)
		if slot < 0 || body.VariableSlot(bin.Left) != slot {
			return nil
		}
		if !body.StorageOf(bin.Result).IsDouble() || !body.StorageOf(bin.Left).IsDouble() {
			return nil
		}
		one, ok := x.Def(bin.Right).(*lir.ConstNumber)
		if !ok || one.Value != 1 {
			return nil
		}
		switch {
		case conv.Source == bin.Result && box > idx:
			return &Update{Index: idx, Slot: slot, Op: bin.Op, Prefix: true}
		case conv.Source == bin.Left && box < idx:
			return &Update{Index: idx, Slot: slot, Op: bin.Op}
		}
		return nil
	}
	return nil
}

// accept decides whether a matched window may be rewritten: every
// instruction inside is part of the shape, a hint, or a pure inlineable
// definition read only inside the window, and every argument can be loaded
// at the call.
func accept(x *analysis.Index, w *Window) bool {
	body := x.Body()
	parts := map[int]bool{w.Start: true, w.Call: true}
	if w.Update != nil {
		box := x.DefIndex(w.Args[0])
		if !w.Contains(box) {
			return false
		}
		parts[w.Update.Index] = true
		parts[box] = true
	}
	for idx := w.Start + 1; idx < w.Call; idx++ {
		if parts[idx] {
			continue
		}
		instr := body.Instructions[idx]
		switch i := instr.(type) {
		case *lir.NewObjectArray:
			if i.Result == w.Array {
				parts[idx] = true
				continue
			}
		case *lir.BuildArray:
			if i.Result == w.Array {
				parts[idx] = true
				continue
			}
		case *lir.BeginInitArrayElement:
			if i.Array == w.Array {
				parts[idx] = true
				continue
			}
		case *lir.StoreElementRef:
			if i.Array == w.Array {
				parts[idx] = true
				continue
			}
		}
		if analysis.IsHint(instr) {
			continue
		}
		if analysis.IsControlFlow(instr) || !x.IsPure(instr) || !instr.Def().Valid() {
			return false
		}
		if !x.CanEmitInline(instr) {
			return false
		}
	}

	// No temp defined inside may escape, except the call result and the
	// variable written by a fused update.
	for idx := w.Start; idx < w.Call; idx++ {
		def := body.Instructions[idx].Def()
		if !body.ValidTemp(def) {
			continue
		}
		if w.Update != nil && idx == w.Update.Index {
			continue
		}
		for _, use := range x.Uses(def) {
			if !w.Contains(use) {
				return false
			}
		}
	}
	if w.Update != nil {
		return true
	}

	for _, arg := range w.Args {
		if !body.ValidTemp(arg) {
			return false
		}
		if !body.IsVariableBacked(arg) {
			def := x.Def(arg)
			if def == nil || !x.CanEmitInline(def) {
				return false
			}
		}
		from := x.DefIndex(arg)
		if from < w.Start {
			from = w.Start
		}
		if !x.SafeBetween(arg, from, w.Call) {
			return false
		}
	}
	return true
}
