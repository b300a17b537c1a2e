package compiler

import (
	"github.com/tomacox74/js2il-sub000/errz"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/op"
	"github.com/tomacox74/js2il-sub000/registry"
)

var numberOps = map[lir.NumberOp]op.Code{
	lir.AddNumber: op.Add,
	lir.SubNumber: op.Sub,
	lir.MulNumber: op.Mul,
	lir.DivNumber: op.Div,
	lir.ModNumber: op.Rem,
	lir.PowNumber: op.Pow,
}

var compareOps = map[lir.CompareOp]op.Code{
	lir.Less:           op.Clt,
	lir.Greater:        op.Cgt,
	lir.LessOrEqual:    op.Cle,
	lir.GreaterOrEqual: op.Cge,
	lir.Equal:          op.Ceq,
	lir.NotEqual:       op.Ceq,
}

// emitValue pushes the value defined by instr and returns its natural
// representation. The caller coerces it to whatever it needs.
func (e *emitter) emitValue(instr lir.Instruction) lir.Storage {
	switch i := instr.(type) {
	case *lir.ConstNumber:
		e.asm.ldF64(i.Value)
		return lir.Double
	case *lir.ConstString:
		e.asm.ldStr(i.Value)
		return lir.String
	case *lir.ConstBool:
		if i.Value {
			e.asm.emit(op.LdTrue)
		} else {
			e.asm.emit(op.LdFalse)
		}
		return lir.Bool
	case *lir.ConstUndefined:
		e.asm.emit(op.LdUndef)
		return lir.Object
	case *lir.ConstNull:
		e.asm.emit(op.LdNull)
		return lir.Object
	case *lir.LoadParameter:
		if i.Index < 0 || i.Index >= len(e.desc.Params) {
			panic(errz.Fatalf(errz.E3003, e.idx, -1, "parameter %d out of range (%d declared)", i.Index, len(e.desc.Params)))
		}
		e.asm.emit(op.LdArg, e.desc.ParamArgIndex(i.Index))
		return lir.Object
	case *lir.LoadThis:
		if e.desc.Instance {
			e.asm.emit(op.LdArg, 0)
		} else {
			e.asm.emit(op.LdUndef)
		}
		return lir.Object
	case *lir.LoadScopesArgument:
		e.asm.emit(op.LdArg, e.scopesArg())
		return lir.ObjectArray
	case *lir.LoadLeafScope:
		e.loadLeaf()
		return lir.ScopeRef(e.body.LeafScope)
	case *lir.LoadParentScope:
		e.loadParentScope(i.Index)
		return lir.Object
	case *lir.BuildScopesArray:
		e.emitBuildScopesArray(i)
		return lir.ObjectArray
	case *lir.GetIntrinsicGlobal:
		e.asm.emitName(op.LdGlobal, i.Name)
		return lir.Object

	case *lir.NegateNumber:
		e.load(i.Value, lir.Double)
		e.asm.emit(op.Neg)
		return lir.Double
	case *lir.LogicalNot:
		e.loadTruthiness(i.Value)
		e.asm.emit(op.Not)
		return lir.Bool
	case *lir.TypeOf:
		e.load(i.Value, lir.Object)
		e.callHelper(registry.HelperTypeOf, 1)
		return lir.String
	case *lir.BinaryNumber:
		code, ok := numberOps[i.Op]
		if !ok {
			panic(errz.Unsupportedf(errz.E2001, e.idx, "numeric operator %s", i.Op))
		}
		e.load(i.Left, lir.Double)
		e.load(i.Right, lir.Double)
		e.asm.emit(code)
		return lir.Double
	case *lir.CompareNumber:
		code, ok := compareOps[i.Op]
		if !ok {
			panic(errz.Unsupportedf(errz.E2001, e.idx, "comparison %s", i.Op))
		}
		e.load(i.Left, lir.Double)
		e.load(i.Right, lir.Double)
		e.asm.emit(code)
		if i.Op == lir.NotEqual {
			e.asm.emit(op.Not)
		}
		return lir.Bool
	case *lir.CompareBoolean:
		if i.Op != lir.Equal && i.Op != lir.NotEqual {
			panic(errz.Unsupportedf(errz.E2001, e.idx, "boolean comparison %s", i.Op))
		}
		e.load(i.Left, lir.Bool)
		e.load(i.Right, lir.Bool)
		e.asm.emit(op.Ceq)
		if i.Op == lir.NotEqual {
			e.asm.emit(op.Not)
		}
		return lir.Bool
	case *lir.DynamicBinary:
		e.load(i.Left, lir.Object)
		e.load(i.Right, lir.Object)
		e.callHelper(i.Op.HelperName(), 2)
		if i.Op.ReturnsBool() {
			return lir.Bool
		}
		return lir.Object
	case *lir.Concat:
		e.load(i.Left, lir.Object)
		e.load(i.Right, lir.Object)
		e.callHelper(registry.HelperConcat, 2)
		return lir.String
	case *lir.IsInstanceOf:
		e.load(i.Value, lir.Object)
		e.asm.emitName(op.IsInst, i.TypeName)
		e.asm.emit(op.LdUndef)
		e.asm.emit(op.Ceq)
		e.asm.emit(op.Not)
		return lir.Bool
	case *lir.Convert:
		return e.emitConvert(i)
	case *lir.CopyTemp:
		want := e.body.StorageOf(i.Result)
		e.load(i.Source, want)
		return want

	case *lir.NewObjectArray:
		if len(i.Elements) > 0 {
			e.vector(i.Elements)
		} else {
			e.asm.ldI4(i.Length)
			e.asm.emit(op.NewArr)
		}
		return lir.ObjectArray
	case *lir.BuildArray:
		e.vector(i.Elements)
		e.callHelper(registry.HelperNewArray, 1)
		return lir.Ref(lir.TypeArray)
	case *lir.NewObjectLiteral:
		if len(i.Keys) != len(i.Values) {
			panic(errz.Fatalf(errz.E3003, e.idx, -1, "object literal has %d keys and %d values", len(i.Keys), len(i.Values)))
		}
		e.asm.emitName(op.NewObj, registry.TypeObject, 0)
		for n, key := range i.Keys {
			e.asm.emit(op.Dup)
			e.load(i.Values[n], lir.Object)
			e.asm.emitName(op.StFld, key)
		}
		return lir.Object

	case *lir.CallFunction:
		return e.emitCallFunction(i)
	case *lir.CallFunctionValue:
		return e.emitCallFunctionValue(i)
	case *lir.CallMember:
		return e.emitCallMember(i)
	case *lir.CallTypedMember:
		return e.emitCallTypedMember(i)
	case *lir.CallIntrinsic:
		e.load(i.Receiver, lir.Object)
		e.loadArgumentVector(i.ArgumentsArray)
		e.asm.emitName(op.CallMemberArgs, i.Method)
		return lir.Object
	case *lir.NewIntrinsicObject:
		e.checkArgs(len(i.Args))
		for _, arg := range i.Args {
			e.load(arg, lir.Object)
		}
		e.asm.emitName(op.NewObj, i.Type, len(i.Args))
		return lir.Ref(i.Type)
	case *lir.NewUserClass:
		return e.emitNewUserClass(i)
	case *lir.CallBaseMethod:
		return e.emitCallBaseMethod(i)

	case *lir.LoadScopeField:
		field, scope := e.scopeField(i.Scope, i.ScopeName, i.Field)
		e.load(i.Scope, lir.ScopeRef(scope))
		e.asm.emitName(op.LdFld, field.Name)
		return field.Storage
	case *lir.LoadInstanceField:
		field := e.instanceField(i.Class, i.Field)
		e.load(i.Object, lir.Object)
		e.asm.emitName(op.LdFld, field.Name)
		return field.Storage
	case *lir.GetItem:
		return e.emitGetItem(i)
	case *lir.GetLength:
		return e.emitGetLength(i)

	case *lir.UnwrapCatchException:
		e.emitUnwrap(func() { e.load(i.Exception, lir.Object) })
		return lir.Object
	case *lir.NewBuiltInError:
		if i.Message.Valid() {
			e.load(i.Message, lir.Object)
		} else {
			e.asm.emit(op.LdUndef)
		}
		e.asm.emitName(op.NewObj, i.Type, 1)
		return lir.Object

	case *lir.Await:
		return e.emitAwait(i)
	case *lir.Yield:
		return e.emitYield(i)
	}
	panic(errz.Unsupportedf(errz.E2001, e.idx, "no lowering for %T", instr))
}

// loadArgumentVector pushes t as an object[] for CallMemberArgs. Arrays and
// untyped values are converted by the runtime.
func (e *emitter) loadArgumentVector(t lir.Temp) {
	have := e.loadRaw(t)
	if have.Type == lir.TypeObjectVector {
		return
	}
	e.coerce(have, lir.Object)
	e.callHelper(registry.HelperToVector, 1)
}

func (e *emitter) emitConvert(i *lir.Convert) lir.Storage {
	switch i.Kind {
	case lir.Box:
		e.load(i.Source, lir.Object)
		return lir.Object
	case lir.UnboxNumber:
		e.load(i.Source, lir.Double)
		return lir.Double
	case lir.UnboxBool:
		e.load(i.Source, lir.Bool)
		return lir.Bool
	case lir.BoolToNumber:
		e.load(i.Source, lir.Bool)
		e.asm.emit(op.ConvF)
		return lir.Double
	case lir.ToNumber:
		switch have := e.loadRaw(i.Source); {
		case have.IsDouble():
		case have.IsBool():
			e.asm.emit(op.ConvF)
		default:
			e.coerce(have, lir.Object)
			e.callHelper(registry.HelperToNumber, 1)
		}
		return lir.Double
	case lir.ToBoolean:
		e.loadTruthiness(i.Source)
		return lir.Bool
	case lir.ToString:
		e.load(i.Source, lir.Object)
		e.callHelper(registry.HelperToString, 1)
		return lir.String
	}
	panic(errz.Unsupportedf(errz.E2001, e.idx, "conversion %s", i.Kind))
}

// loadTruthiness pushes the truthiness of t as an unboxed bool.
func (e *emitter) loadTruthiness(t lir.Temp) {
	have := e.loadRaw(t)
	switch {
	case have.IsBool():
	case have.IsDouble():
		e.asm.emit(op.BoxF)
		e.callHelper(registry.HelperToBoolean, 1)
	default:
		e.coerce(have, lir.Object)
		e.callHelper(registry.HelperToBoolean, 1)
	}
}

// loadParentScope pushes an element of the incoming scopes array. In
// methods that prepend their leaf scope the original elements are shifted
// by one.
func (e *emitter) loadParentScope(index int) {
	if index < 0 {
		panic(errz.Fatalf(errz.E3004, e.idx, -1, "negative scope index %d", index))
	}
	if e.susp != nil && e.susp.prependsLeaf() {
		index++
	}
	e.asm.emit(op.LdArg, e.scopesArg())
	e.asm.ldI4(index)
	e.asm.emit(op.LdElem)
}

func (e *emitter) emitBuildScopesArray(i *lir.BuildScopesArray) {
	e.asm.ldI4(len(i.Scopes))
	e.asm.emit(op.NewArr)
	for n, slot := range i.Scopes {
		e.asm.emit(op.Dup)
		e.asm.ldI4(n)
		switch slot.Kind {
		case lir.LeafScope:
			e.loadLeaf()
		case lir.ParentScope:
			e.loadParentScope(slot.Index)
		default:
			panic(errz.Unsupportedf(errz.E2001, e.idx, "scope slot kind %d", slot.Kind))
		}
		e.asm.emit(op.StElem)
	}
}

func (e *emitter) emitCreateLeafScope() {
	if e.susp != nil && e.susp.prependsLeaf() {
		// Created by the prologue on first entry.
		return
	}
	if e.leafLocal < 0 {
		panic(errz.Fatalf(errz.E3004, e.idx, -1, "method has no leaf scope"))
	}
	e.asm.emitName(op.NewObj, registry.ScopeTypeName(e.body.LeafScope), 0)
	e.asm.emit(op.StLoc, e.leafLocal)
}

// scopeField resolves a field of a scope operand. The scope name falls back
// to the operand's storage.
func (e *emitter) scopeField(scope lir.Temp, scopeName, field string) (registry.FieldInfo, string) {
	name := scopeName
	if name == "" {
		name = e.body.StorageOf(scope).Scope
	}
	f, ok := e.res.ScopeField(name, field)
	if !ok {
		panic(errz.Fatalf(errz.E3004, e.idx, int(scope), "unknown field %q of scope %q", field, name))
	}
	return f, name
}

// instanceField resolves a field of a user class. Fields of an unknown
// receiver class are untyped.
func (e *emitter) instanceField(class, field string) registry.FieldInfo {
	if class == "" {
		return registry.FieldInfo{Name: field, Storage: lir.Object}
	}
	f, ok := e.res.ClassField(class, field)
	if !ok {
		panic(errz.Fatalf(errz.E3004, e.idx, -1, "unknown field %q of class %q", field, class))
	}
	return f
}

func (e *emitter) emitStoreScopeField(i *lir.StoreScopeField) {
	field, scope := e.scopeField(i.Scope, i.ScopeName, i.Field)
	e.load(i.Scope, lir.ScopeRef(scope))
	e.load(i.Value, field.Storage)
	e.asm.emitName(op.StFld, field.Name)
}

func (e *emitter) emitStoreInstanceField(i *lir.StoreInstanceField) {
	field := e.instanceField(i.Class, i.Field)
	e.load(i.Object, lir.Object)
	e.load(i.Value, field.Storage)
	e.asm.emitName(op.StFld, field.Name)
}

func (e *emitter) emitGetItem(i *lir.GetItem) lir.Storage {
	obj := e.body.StorageOf(i.Object)
	index := e.body.StorageOf(i.Index)
	switch {
	case obj.Type == lir.TypeArray && index.IsDouble():
		e.load(i.Object, obj)
		e.load(i.Index, lir.Double)
		e.asm.emit(op.ConvI)
		e.asm.emit(op.ArrGet)
		return lir.Object
	case obj.Type == lir.TypeFloat64Array && index.IsDouble():
		e.load(i.Object, obj)
		e.load(i.Index, lir.Double)
		e.asm.emit(op.ConvI)
		e.asm.emit(op.F64Get)
		return lir.Double
	}
	e.load(i.Object, lir.Object)
	e.load(i.Index, lir.Object)
	e.callHelper(registry.HelperGetItem, 2)
	return lir.Object
}

func (e *emitter) emitSetItem(i *lir.SetItem) {
	obj := e.body.StorageOf(i.Object)
	index := e.body.StorageOf(i.Index)
	switch {
	case obj.Type == lir.TypeArray && index.IsDouble():
		e.load(i.Object, obj)
		e.load(i.Index, lir.Double)
		e.asm.emit(op.ConvI)
		e.load(i.Value, lir.Object)
		e.asm.emit(op.ArrSet)
		return
	case obj.Type == lir.TypeFloat64Array && index.IsDouble() && e.body.StorageOf(i.Value).IsDouble():
		e.load(i.Object, obj)
		e.load(i.Index, lir.Double)
		e.asm.emit(op.ConvI)
		e.load(i.Value, lir.Double)
		e.asm.emit(op.F64Set)
		return
	}
	e.load(i.Object, lir.Object)
	e.load(i.Index, lir.Object)
	e.load(i.Value, lir.Object)
	e.callHelper(registry.HelperSetItem, 3)
	e.asm.emit(op.Pop)
}

func (e *emitter) emitGetLength(i *lir.GetLength) lir.Storage {
	obj := e.body.StorageOf(i.Object)
	switch obj.Type {
	case lir.TypeArray:
		e.load(i.Object, obj)
		e.asm.emit(op.ArrLen)
	case lir.TypeFloat64Array:
		e.load(i.Object, obj)
		e.asm.emit(op.F64Len)
	case lir.TypeObjectVector:
		e.load(i.Object, obj)
		e.asm.emit(op.LdLen)
	default:
		e.load(i.Object, lir.Object)
		e.callHelper(registry.HelperGetLength, 1)
		return lir.Double
	}
	e.asm.emit(op.ConvF)
	return lir.Double
}
