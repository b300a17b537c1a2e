package lirfile

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/tomacox74/js2il-sub000/lir"
	"gopkg.in/yaml.v3"
)

var (
	instructionTypes = map[string]reflect.Type{}
	tempType         = reflect.TypeOf(lir.Temp(0))
	enumNames        = map[reflect.Type][]string{
		reflect.TypeOf(lir.NumberOp(0)):      names(func(i int) string { return lir.NumberOp(i).String() }),
		reflect.TypeOf(lir.CompareOp(0)):     names(func(i int) string { return lir.CompareOp(i).String() }),
		reflect.TypeOf(lir.DynamicOp(0)):     names(func(i int) string { return lir.DynamicOp(i).String() }),
		reflect.TypeOf(lir.ConvertKind(0)):   names(func(i int) string { return lir.ConvertKind(i).String() }),
		reflect.TypeOf(lir.ScopeSlotKind(0)): {"leaf", "parent"},
	}
)

func names(str func(int) string) []string {
	var out []string
	for i := 0; i < 256; i++ {
		s := str(i)
		if s == "?" {
			break
		}
		out = append(out, s)
	}
	return out
}

func init() {
	for _, instr := range []lir.Instruction{
		&lir.ConstNumber{}, &lir.ConstString{}, &lir.ConstBool{}, &lir.ConstUndefined{}, &lir.ConstNull{},
		&lir.LoadParameter{}, &lir.LoadThis{}, &lir.LoadScopesArgument{}, &lir.LoadLeafScope{},
		&lir.LoadParentScope{}, &lir.CreateLeafScope{}, &lir.BuildScopesArray{}, &lir.GetIntrinsicGlobal{},
		&lir.NegateNumber{}, &lir.LogicalNot{}, &lir.TypeOf{},
		&lir.BinaryNumber{}, &lir.CompareNumber{}, &lir.CompareBoolean{}, &lir.DynamicBinary{}, &lir.Concat{},
		&lir.IsInstanceOf{}, &lir.Convert{}, &lir.CopyTemp{},
		&lir.NewObjectArray{}, &lir.BeginInitArrayElement{}, &lir.StoreElementRef{}, &lir.BuildArray{},
		&lir.NewObjectLiteral{},
		&lir.CallFunction{}, &lir.CallFunctionValue{}, &lir.CallMember{}, &lir.CallTypedMember{},
		&lir.CallIntrinsic{}, &lir.NewIntrinsicObject{}, &lir.NewUserClass{}, &lir.CallBaseConstructor{},
		&lir.CallBaseMethod{},
		&lir.LoadScopeField{}, &lir.StoreScopeField{}, &lir.LoadInstanceField{}, &lir.StoreInstanceField{},
		&lir.GetItem{}, &lir.SetItem{}, &lir.GetLength{},
		&lir.Label{}, &lir.Branch{}, &lir.BranchIfTrue{}, &lir.BranchIfFalse{}, &lir.Return{}, &lir.Leave{},
		&lir.EndFinally{}, &lir.StoreException{}, &lir.UnwrapCatchException{}, &lir.Throw{},
		&lir.ThrowTypeError{}, &lir.NewBuiltInError{},
		&lir.Await{}, &lir.Yield{}, &lir.SequencePoint{},
	} {
		t := reflect.TypeOf(instr).Elem()
		instructionTypes[t.Name()] = t
	}
}

// InstructionNames returns the instruction names accepted in a body, sorted.
func InstructionNames() []string {
	out := make([]string, 0, len(instructionTypes))
	for name := range instructionTypes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func decodeBody(node *yaml.Node) ([]lir.Instruction, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
	default:
		return nil, fmt.Errorf("line %d: body must be a sequence", node.Line)
	}
	instrs := make([]lir.Instruction, 0, len(node.Content))
	for _, item := range node.Content {
		instr, err := decodeInstruction(item)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

// decodeInstruction accepts `- Name: {fields}` and, for instructions
// without operands, a bare `- Name`.
func decodeInstruction(node *yaml.Node) (lir.Instruction, error) {
	var name string
	var args *yaml.Node
	switch {
	case node.Kind == yaml.ScalarNode:
		name = node.Value
	case node.Kind == yaml.MappingNode && len(node.Content) == 2:
		name, args = node.Content[0].Value, node.Content[1]
	default:
		return nil, fmt.Errorf("line %d: instruction must be a single-key mapping", node.Line)
	}
	t, ok := instructionTypes[name]
	if !ok {
		return nil, fmt.Errorf("line %d: unknown instruction %q", node.Line, name)
	}
	v := reflect.New(t)
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Type == tempType {
			v.Elem().Field(i).SetInt(int64(lir.NoTemp))
		}
	}
	if args != nil && args.Tag != "!!null" {
		if err := rewrite(args, t); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := args.Decode(v.Interface()); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return v.Interface().(lir.Instruction), nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

// rewrite converts the file notation of node into the form yaml decodes
// into t: keys become the lowercased field names, temps become integers and
// operator names become their ordinal.
func rewrite(node *yaml.Node, t reflect.Type) error {
	if t == tempType {
		return rewriteTemp(node)
	}
	if names, ok := enumNames[t]; ok {
		return rewriteEnum(node, names)
	}
	switch t.Kind() {
	case reflect.Struct:
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: expected a mapping for %s", node.Line, t.Name())
		}
		fields := map[string]reflect.StructField{}
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.IsExported() {
				fields[strings.ToLower(f.Name)] = f
			}
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			f, ok := fields[normalizeKey(key.Value)]
			if !ok {
				return fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
			}
			key.Value = strings.ToLower(f.Name)
			if err := rewrite(node.Content[i+1], f.Type); err != nil {
				return err
			}
		}
	case reflect.Slice:
		if node.Kind != yaml.SequenceNode {
			return nil
		}
		for _, item := range node.Content {
			if err := rewrite(item, t.Elem()); err != nil {
				return err
			}
		}
	}
	return nil
}

func rewriteTemp(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a temp", node.Line)
	}
	text := node.Value
	switch {
	case text == "_":
		text = strconv.Itoa(int(lir.NoTemp))
	case strings.HasPrefix(text, "t"):
		text = text[1:]
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < int(lir.NoTemp) {
		return fmt.Errorf("line %d: invalid temp %q", node.Line, node.Value)
	}
	node.Value, node.Tag, node.Style = strconv.Itoa(n), "!!int", 0
	return nil
}

func rewriteEnum(node *yaml.Node, names []string) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected one of %s", node.Line, strings.Join(names, ", "))
	}
	for i, name := range names {
		if node.Value == name {
			node.Value, node.Tag, node.Style = strconv.Itoa(i), "!!int", 0
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown operator %q, expected one of %s", node.Line, node.Value, strings.Join(names, ", "))
}
