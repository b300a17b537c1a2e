package compiler

import (
	"github.com/tomacox74/js2il-sub000/errz"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/op"
	"github.com/tomacox74/js2il-sub000/registry"
)

func (e *emitter) checkArgs(n int) {
	if n > MaxArgs {
		panic(errz.Fatalf(errz.E3003, e.idx, -1, "%d arguments exceed the maximum of %d", n, MaxArgs))
	}
}

// pushArgs pushes the arguments of a call to a compiled callable. Missing
// arguments are padded with undefined and extra arguments are dropped;
// callees reading their whole argument list receive one object[] instead.
func (e *emitter) pushArgs(info registry.CallableInfo, args []lir.Temp) {
	if info.NeedsArguments {
		e.checkArgs(len(args))
		e.vector(args)
		return
	}
	if info.ParamCount < 0 {
		panic(errz.Fatalf(errz.E3003, e.idx, -1, "%s declares %d parameters", info.Name, info.ParamCount))
	}
	e.checkArgs(info.ParamCount)
	for n := 0; n < info.ParamCount; n++ {
		if n < len(args) {
			e.load(args[n], lir.Object)
		} else {
			e.asm.emit(op.LdUndef)
		}
	}
	if len(args) > info.ParamCount {
		for _, extra := range args[info.ParamCount:] {
			e.discard(extra)
		}
	}
}

// pushScopes pushes the scopes array for a callee that expects one.
func (e *emitter) pushScopes(info registry.CallableInfo, scopes lir.Temp) {
	if !info.HasScopes {
		e.discard(scopes)
		return
	}
	if scopes.Valid() {
		e.load(scopes, lir.ObjectArray)
		return
	}
	e.asm.ldI4(0)
	e.asm.emit(op.NewArr)
}

func (e *emitter) emitCallFunction(i *lir.CallFunction) lir.Storage {
	info, ok := e.res.Callable(i.Callee)
	if !ok {
		panic(errz.Fatalf(errz.E3002, e.idx, -1, "unresolved callable %q", i.Callee))
	}
	e.pushScopes(info, i.ScopesArray)
	e.pushArgs(info, i.Args)
	e.asm.emit(op.Call, int(info.Token), info.ArgCount())
	return lir.Object
}

func (e *emitter) emitCallFunctionValue(i *lir.CallFunctionValue) lir.Storage {
	e.checkArgs(len(i.Args))
	for _, arg := range i.Args {
		e.load(arg, lir.Object)
	}
	e.load(i.Target, lir.Object)
	e.asm.emit(op.CallValue, len(i.Args))
	return lir.Object
}

func (e *emitter) emitCallMember(i *lir.CallMember) lir.Storage {
	e.checkArgs(len(i.Args))
	e.load(i.Receiver, lir.Object)
	for _, arg := range i.Args {
		e.load(arg, lir.Object)
	}
	e.asm.emitName(op.CallMember, i.Method, len(i.Args))
	return lir.Object
}

// emitCallTypedMember binds the call early: to a compiled class method when
// the receiver type is a user class, otherwise to a runtime-library member.
func (e *emitter) emitCallTypedMember(i *lir.CallTypedMember) lir.Storage {
	if info, ok := e.res.ClassMethod(i.Type, i.Method); ok {
		e.load(i.Receiver, lir.Object)
		e.pushScopes(info, lir.NoTemp)
		e.pushArgs(info, i.Args)
		e.asm.emit(op.Call, int(info.Token), info.ArgCount()+1)
		return lir.Object
	}
	m, ok := e.res.RuntimeMember(i.Type, i.Method)
	if !ok {
		panic(errz.Fatalf(errz.E3002, e.idx, -1, "unresolved member %s.%s", i.Type, i.Method))
	}
	e.load(i.Receiver, lir.Ref(i.Type))
	argc := len(i.Args)
	if m.ParamCount == registry.Variadic {
		e.checkArgs(argc)
		for _, arg := range i.Args {
			e.load(arg, lir.Object)
		}
	} else {
		argc = m.ParamCount
		e.checkArgs(argc)
		for n := 0; n < m.ParamCount; n++ {
			if n < len(i.Args) {
				e.load(i.Args[n], lir.Object)
			} else {
				e.asm.emit(op.LdUndef)
			}
		}
		if len(i.Args) > m.ParamCount {
			for _, extra := range i.Args[m.ParamCount:] {
				e.discard(extra)
			}
		}
	}
	e.asm.emitName(op.CallMember, m.Name, argc)
	if m.Returns.Kind == lir.Unknown {
		return lir.Object
	}
	return m.Returns
}

func (e *emitter) emitNewUserClass(i *lir.NewUserClass) lir.Storage {
	info, ok := e.res.ClassConstructor(i.Class)
	if !ok {
		panic(errz.Fatalf(errz.E3002, e.idx, -1, "unresolved class %q", i.Class))
	}
	e.pushScopes(info, i.ScopesArray)
	e.pushArgs(info, i.Args)
	e.asm.emit(op.NewUser, int(info.Token), info.ArgCount())
	return lir.Ref(i.Class)
}

func (e *emitter) loadThisForBase() {
	if !e.desc.Instance {
		panic(errz.Fatalf(errz.E3003, e.idx, -1, "base call outside an instance method"))
	}
	e.asm.emit(op.LdArg, 0)
}

// baseScopes forwards the incoming scopes array to a base-class callee.
func (e *emitter) baseScopes(info registry.CallableInfo) {
	if !info.HasScopes {
		return
	}
	if e.desc.HasScopesParameter {
		e.asm.emit(op.LdArg, e.scopesArg())
		return
	}
	e.asm.ldI4(0)
	e.asm.emit(op.NewArr)
}

func (e *emitter) emitCallBaseConstructor(i *lir.CallBaseConstructor) {
	info, ok := e.res.ClassConstructor(i.Class)
	if !ok {
		panic(errz.Fatalf(errz.E3002, e.idx, -1, "unresolved base class %q", i.Class))
	}
	e.loadThisForBase()
	e.baseScopes(info)
	e.pushArgs(info, i.Args)
	e.asm.emit(op.Call, int(info.Token), info.ArgCount()+1)
	e.asm.emit(op.Pop)
}

func (e *emitter) emitCallBaseMethod(i *lir.CallBaseMethod) lir.Storage {
	info, ok := e.res.ClassMethod(i.Class, i.Method)
	if !ok {
		panic(errz.Fatalf(errz.E3002, e.idx, -1, "unresolved base method %s.%s", i.Class, i.Method))
	}
	e.loadThisForBase()
	e.baseScopes(info)
	e.pushArgs(info, i.Args)
	e.asm.emit(op.Call, int(info.Token), info.ArgCount()+1)
	return lir.Object
}
