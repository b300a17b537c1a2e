package lir

import (
	"fmt"
	"strconv"
	"strings"
)

func list(ts []Temp) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func assign(result Temp, format string, args ...any) string {
	text := fmt.Sprintf(format, args...)
	if !result.Valid() {
		return text
	}
	return result.String() + " = " + text
}

// Format renders one instruction in a compact assembly-like form.
func Format(instr Instruction) string {
	switch i := instr.(type) {
	case *ConstNumber:
		return assign(i.Result, "const %s", strconv.FormatFloat(i.Value, 'g', -1, 64))
	case *ConstString:
		return assign(i.Result, "const %q", i.Value)
	case *ConstBool:
		return assign(i.Result, "const %t", i.Value)
	case *ConstUndefined:
		return assign(i.Result, "const undefined")
	case *ConstNull:
		return assign(i.Result, "const null")
	case *LoadParameter:
		return assign(i.Result, "param %d", i.Index)
	case *LoadThis:
		return assign(i.Result, "this")
	case *LoadScopesArgument:
		return assign(i.Result, "scopes")
	case *LoadLeafScope:
		return assign(i.Result, "leaf.scope")
	case *LoadParentScope:
		return assign(i.Result, "parent.scope %d %s", i.Index, i.Scope)
	case *CreateLeafScope:
		return "create.leaf.scope"
	case *BuildScopesArray:
		parts := make([]string, len(i.Scopes))
		for n, s := range i.Scopes {
			if s.Kind == LeafScope {
				parts[n] = "leaf"
			} else {
				parts[n] = fmt.Sprintf("parent%d", s.Index)
			}
		}
		return assign(i.Result, "scopes.array [%s]", strings.Join(parts, " "))
	case *GetIntrinsicGlobal:
		return assign(i.Result, "global %s", i.Name)
	case *NegateNumber:
		return assign(i.Result, "neg %s", i.Value)
	case *LogicalNot:
		return assign(i.Result, "not %s", i.Value)
	case *TypeOf:
		return assign(i.Result, "typeof %s", i.Value)
	case *BinaryNumber:
		return assign(i.Result, "%s %s %s", i.Op, i.Left, i.Right)
	case *CompareNumber:
		return assign(i.Result, "cmp.%s %s %s", i.Op, i.Left, i.Right)
	case *CompareBoolean:
		return assign(i.Result, "cmp.bool.%s %s %s", i.Op, i.Left, i.Right)
	case *DynamicBinary:
		return assign(i.Result, "dynamic.%s %s %s", i.Op, i.Left, i.Right)
	case *Concat:
		return assign(i.Result, "concat %s %s", i.Left, i.Right)
	case *IsInstanceOf:
		return assign(i.Result, "isinst %s %s", i.Value, i.TypeName)
	case *Convert:
		return assign(i.Result, "%s %s", i.Kind, i.Source)
	case *CopyTemp:
		return assign(i.Result, "copy %s", i.Source)
	case *NewObjectArray:
		if len(i.Elements) > 0 {
			return assign(i.Result, "new.object[] %s", list(i.Elements))
		}
		return assign(i.Result, "new.object[] %d", i.Length)
	case *BeginInitArrayElement:
		return fmt.Sprintf("begin.init %s[%d]", i.Array, i.Index)
	case *StoreElementRef:
		return fmt.Sprintf("store.elem %s[%d] %s", i.Array, i.Index, i.Value)
	case *BuildArray:
		return assign(i.Result, "array %s", list(i.Elements))
	case *NewObjectLiteral:
		parts := make([]string, len(i.Keys))
		for n, k := range i.Keys {
			v := NoTemp
			if n < len(i.Values) {
				v = i.Values[n]
			}
			parts[n] = k + ":" + v.String()
		}
		return assign(i.Result, "object {%s}", strings.Join(parts, " "))
	case *CallFunction:
		return assign(i.Result, "call %s %s %s", i.Callee, i.ScopesArray, list(i.Args))
	case *CallFunctionValue:
		return assign(i.Result, "call.value %s %s", i.Target, list(i.Args))
	case *CallMember:
		return assign(i.Result, "call.member %s.%s %s", i.Receiver, i.Method, list(i.Args))
	case *CallTypedMember:
		return assign(i.Result, "call.typed %s.%s::%s %s", i.Receiver, i.Type, i.Method, list(i.Args))
	case *CallIntrinsic:
		return assign(i.Result, "call.intrinsic %s.%s %s", i.Receiver, i.Method, i.ArgumentsArray)
	case *NewIntrinsicObject:
		return assign(i.Result, "new %s %s", i.Type, list(i.Args))
	case *NewUserClass:
		return assign(i.Result, "new.class %s %s", i.Class, list(i.Args))
	case *CallBaseConstructor:
		return fmt.Sprintf("call.base.ctor %s %s", i.Class, list(i.Args))
	case *CallBaseMethod:
		return assign(i.Result, "call.base %s.%s %s", i.Class, i.Method, list(i.Args))
	case *LoadScopeField:
		return assign(i.Result, "load.scope %s.%s", i.Scope, i.Field)
	case *StoreScopeField:
		return fmt.Sprintf("store.scope %s.%s %s", i.Scope, i.Field, i.Value)
	case *LoadInstanceField:
		return assign(i.Result, "load.field %s.%s", i.Object, i.Field)
	case *StoreInstanceField:
		return fmt.Sprintf("store.field %s.%s %s", i.Object, i.Field, i.Value)
	case *GetItem:
		return assign(i.Result, "get.item %s[%s]", i.Object, i.Index)
	case *SetItem:
		return fmt.Sprintf("set.item %s[%s] %s", i.Object, i.Index, i.Value)
	case *GetLength:
		return assign(i.Result, "length %s", i.Object)
	case *Label:
		return fmt.Sprintf("L%d:", i.ID)
	case *Branch:
		return fmt.Sprintf("br L%d", i.Target)
	case *BranchIfTrue:
		return fmt.Sprintf("br.true %s L%d", i.Cond, i.Target)
	case *BranchIfFalse:
		return fmt.Sprintf("br.false %s L%d", i.Cond, i.Target)
	case *Return:
		return fmt.Sprintf("return %s", i.Value)
	case *Leave:
		return fmt.Sprintf("leave L%d", i.Target)
	case *EndFinally:
		return "end.finally"
	case *StoreException:
		return assign(i.Result, "exception")
	case *UnwrapCatchException:
		return assign(i.Result, "unwrap.exception %s", i.Exception)
	case *Throw:
		return fmt.Sprintf("throw %s", i.Value)
	case *ThrowTypeError:
		return fmt.Sprintf("throw.type.error %q", i.Message)
	case *NewBuiltInError:
		return assign(i.Result, "new.error %s %s", i.Type, i.Message)
	case *Await:
		return assign(i.Result, "await %s #%d", i.Value, i.ResumeID)
	case *Yield:
		return assign(i.Result, "yield %s #%d", i.Value, i.ResumeID)
	case *SequencePoint:
		return fmt.Sprintf(".line %s", i.Span)
	default:
		return fmt.Sprintf("<%T>", instr)
	}
}

// String renders the body one instruction per line.
func (b *MethodBody) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s (%d temps, %d variables)\n", b.Name, b.TempCount(), b.VariableCount())
	for idx, instr := range b.Instructions {
		fmt.Fprintf(&sb, "%4d  %s\n", idx, Format(instr))
	}
	return sb.String()
}
