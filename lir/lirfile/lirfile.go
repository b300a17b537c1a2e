// Package lirfile reads a module of LIR method bodies from YAML.
//
// A file lists the scope shapes and classes the methods refer to, followed by
// the methods themselves. Each method is registered in the function table in
// file order, so the token of a method is its index in the file and the
// compiled module can be handed to the VM as is.
//
//	entry: main
//	methods:
//	  - name: main
//	    temps: [double, double, object]
//	    body:
//	      - ConstNumber: {value: 2, result: t0}
//	      - BinaryNumber: {op: add, left: t0, right: t0, result: t1}
//	      - Convert: {kind: box, source: t1, result: t2}
//	      - Return: {value: t2}
//
// Instructions are single-key mappings named after their lir type. Field
// keys are matched case-insensitively with underscores ignored, temps are
// written tN (or _ for none) and operator fields take their lir names.
package lirfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/compiler"
	"github.com/tomacox74/js2il-sub000/lir"
	"github.com/tomacox74/js2il-sub000/registry"
	"gopkg.in/yaml.v3"
)

// Module is a decoded file: the methods in token order and the table that
// resolves them.
type Module struct {
	Name    string
	Entry   registry.Token
	Table   *registry.Table
	Methods []compiler.Method
}

// Compile compiles every method of the module.
func (m *Module) Compile(cfg compiler.Config) ([]*bytecode.Code, error) {
	return compiler.CompileModule(m.Methods, m.Table, cfg)
}

// Method returns the method registered under the given token.
func (m *Module) Method(token registry.Token) (compiler.Method, bool) {
	if int(token) >= len(m.Methods) {
		return compiler.Method{}, false
	}
	return m.Methods[token], true
}

type file struct {
	Module  string      `yaml:"module"`
	Entry   string      `yaml:"entry"`
	Scopes  []scopeDef  `yaml:"scopes"`
	Classes []classDef  `yaml:"classes"`
	Methods []methodDef `yaml:"methods"`
}

type fieldDef struct {
	Name    string  `yaml:"name"`
	Storage storage `yaml:"storage"`
}

type scopeDef struct {
	Name   string     `yaml:"name"`
	Fields []fieldDef `yaml:"fields"`
}

type classDef struct {
	Name   string     `yaml:"name"`
	Base   string     `yaml:"base"`
	Fields []fieldDef `yaml:"fields"`
}

type regionDef struct {
	Kind         string `yaml:"kind"`
	TryStart     int    `yaml:"try_start"`
	TryEnd       int    `yaml:"try_end"`
	HandlerStart int    `yaml:"handler_start"`
	HandlerEnd   int    `yaml:"handler_end"`
	CatchType    string `yaml:"catch_type"`
}

type methodDef struct {
	Name string `yaml:"name"`
	// ID defaults to Name for free functions. Class members are registered
	// under the ids the registry derives from the class.
	ID             string   `yaml:"id"`
	Class          string   `yaml:"class"`
	Constructor    bool     `yaml:"constructor"`
	Instance       bool     `yaml:"instance"`
	Scopes         bool     `yaml:"scopes"`
	Params         []string `yaml:"params"`
	ReturnsVoid    bool     `yaml:"returns_void"`
	Rest           bool     `yaml:"rest"`
	NeedsArguments bool     `yaml:"needs_arguments"`

	Generator        bool        `yaml:"generator"`
	Async            bool        `yaml:"async"`
	HasAwaits        *bool       `yaml:"has_awaits"`
	LeafScope        string      `yaml:"leaf_scope"`
	Temps            []storage   `yaml:"temps"`
	Variables        []fieldDef  `yaml:"variables"`
	TempSlots        map[int]int `yaml:"temp_slots"`
	SingleAssignment []int       `yaml:"single_assignment"`
	Regions          []regionDef `yaml:"regions"`
	Body             yaml.Node   `yaml:"body"`
}

// storage decodes the textual form accepted by ParseStorage.
type storage lir.Storage

func (s *storage) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := ParseStorage(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = storage(parsed)
	return nil
}

// ParseStorage parses a storage name. The short names double, bool, object,
// string and object[] select the common storages; ref:T and scope:S select a
// typed reference and a scope instance. Storage signatures are accepted too.
func ParseStorage(text string) (lir.Storage, error) {
	switch text {
	case "double", "unboxed:double":
		return lir.Double, nil
	case "bool", "unboxed:bool":
		return lir.Bool, nil
	case "", "object", "ref":
		return lir.Object, nil
	case "string":
		return lir.String, nil
	case "object[]":
		return lir.ObjectArray, nil
	}
	if name, ok := strings.CutPrefix(text, "scope:"); ok && name != "" {
		return lir.ScopeRef(name), nil
	}
	if name, ok := strings.CutPrefix(text, "ref:"); ok && name != "" {
		return lir.Ref(name), nil
	}
	return lir.Storage{}, fmt.Errorf("unknown storage %q", text)
}

// Load reads and decodes the named file.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = path
	}
	return m, nil
}

// Decode reads a module from r.
func Decode(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a module. All methods are decoded before an error is
// returned so that every malformed method is reported at once.
func Parse(data []byte) (*Module, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty module")
		}
		return nil, err
	}
	if len(f.Methods) == 0 {
		return nil, errors.New("module has no methods")
	}

	table := registry.NewTable()
	for _, s := range f.Scopes {
		table.AddScope(registry.ScopeShape{Name: s.Name, Fields: fields(s.Fields)})
	}
	classes := map[string]classDef{}
	for _, c := range f.Classes {
		if _, dup := classes[c.Name]; dup {
			return nil, fmt.Errorf("class %s is declared twice", c.Name)
		}
		classes[c.Name] = c
	}

	m := &Module{Name: f.Module, Table: table}
	var result *multierror.Error
	for i := range f.Methods {
		def := &f.Methods[i]
		if err := register(table, classes, def); err != nil {
			result = multierror.Append(result, fmt.Errorf("method %s: %w", def.Name, err))
			continue
		}
		body, err := buildBody(def)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("method %s: %w", def.Name, err))
			continue
		}
		m.Methods = append(m.Methods, compiler.Method{Body: body, Descriptor: descriptor(def)})
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	if f.Entry != "" {
		found := false
		for i, def := range f.Methods {
			if def.Name == f.Entry {
				m.Entry, found = registry.Token(i), true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("entry method %q not found", f.Entry)
		}
	}
	return m, nil
}

func fields(defs []fieldDef) []registry.FieldInfo {
	out := make([]registry.FieldInfo, len(defs))
	for i, d := range defs {
		out[i] = registry.FieldInfo{Name: d.Name, Storage: lir.Storage(d.Storage)}
	}
	return out
}

func descriptor(def *methodDef) lir.MethodDescriptor {
	return lir.MethodDescriptor{
		Instance:           def.Instance || def.Class != "",
		IsConstructor:      def.Constructor,
		HasScopesParameter: def.Scopes,
		Params:             def.Params,
		ReturnsVoid:        def.ReturnsVoid,
		HasRestParameter:   def.Rest,
	}
}

// register adds the method to the table. Every method takes exactly one
// token, which keeps tokens equal to file positions.
func register(table *registry.Table, classes map[string]classDef, def *methodDef) error {
	if def.Name == "" {
		return errors.New("method has no name")
	}
	fn := registry.Function{
		ID:             lir.CallableID(def.ID),
		Name:           def.Name,
		ParamCount:     len(def.Params),
		HasScopes:      def.Scopes,
		NeedsArguments: def.NeedsArguments,
	}
	switch {
	case def.Class == "" && def.Constructor:
		return errors.New("constructor without a class")
	case def.Class == "":
		if fn.ID == "" {
			fn.ID = lir.CallableID(def.Name)
		}
		_, err := table.AddFunction(fn)
		return err
	case def.Constructor:
		c, ok := classes[def.Class]
		if !ok {
			return fmt.Errorf("unknown class %s", def.Class)
		}
		_, err := table.AddClass(registry.Class{
			Name:        c.Name,
			Base:        c.Base,
			Constructor: fn,
			Fields:      fields(c.Fields),
		})
		return err
	default:
		_, err := table.AddMethod(def.Class, def.Name, fn)
		return err
	}
}

func buildBody(def *methodDef) (*lir.MethodBody, error) {
	body := &lir.MethodBody{
		Name:        def.Name,
		LeafScope:   def.LeafScope,
		IsGenerator: def.Generator,
		IsAsync:     def.Async,
	}
	switch {
	case def.Class != "":
		body.Name = def.Class + "." + def.Name
	case def.ID != "":
		body.Name = def.ID
	}
	for _, s := range def.Temps {
		body.TempStorages = append(body.TempStorages, lir.Storage(s))
		body.TempVariableSlots = append(body.TempVariableSlots, -1)
	}
	for _, v := range def.Variables {
		body.VariableNames = append(body.VariableNames, v.Name)
		body.VariableStorages = append(body.VariableStorages, lir.Storage(v.Storage))
	}
	for temp, slot := range def.TempSlots {
		if temp < 0 || temp >= len(body.TempStorages) {
			return nil, fmt.Errorf("temp_slots: t%d is not a declared temp", temp)
		}
		if slot < 0 || slot >= len(body.VariableStorages) {
			return nil, fmt.Errorf("temp_slots: t%d maps to undeclared variable %d", temp, slot)
		}
		body.TempVariableSlots[temp] = slot
	}
	for _, slot := range def.SingleAssignment {
		if body.SingleAssignmentSlots == nil {
			body.SingleAssignmentSlots = map[int]bool{}
		}
		body.SingleAssignmentSlots[slot] = true
	}
	for _, r := range def.Regions {
		region := lir.ExceptionRegion{
			TryStart:     r.TryStart,
			TryEnd:       r.TryEnd,
			HandlerStart: r.HandlerStart,
			HandlerEnd:   r.HandlerEnd,
			CatchType:    r.CatchType,
		}
		switch r.Kind {
		case "", "catch":
			region.Kind = lir.Catch
		case "finally":
			region.Kind = lir.Finally
		default:
			return nil, fmt.Errorf("unknown region kind %q", r.Kind)
		}
		body.Regions = append(body.Regions, region)
	}

	instrs, err := decodeBody(&def.Body)
	if err != nil {
		return nil, err
	}
	body.Instructions = instrs
	if def.HasAwaits != nil {
		body.HasAwaits = *def.HasAwaits
		return body, nil
	}
	for _, instr := range instrs {
		if _, ok := instr.(*lir.Await); ok {
			body.HasAwaits = true
		}
	}
	return body, nil
}
