package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tomacox74/js2il-sub000/lir"
)

type class struct {
	name    string
	base    string
	fields  map[string]FieldInfo
	methods map[string]lir.CallableID
}

// Table is an in-memory Resolver. It is safe for concurrent use: lookups
// may run while entries are being added.
type Table struct {
	mu        sync.RWMutex
	callables map[lir.CallableID]CallableInfo
	tokens    []lir.CallableID
	classes   map[string]*class
	scopes    map[string]ScopeShape
	members   map[string]MemberInfo
}

// NewTable returns a table holding the runtime-library members.
func NewTable() *Table {
	t := &Table{
		callables: map[lir.CallableID]CallableInfo{},
		classes:   map[string]*class{},
		scopes:    map[string]ScopeShape{},
		members:   map[string]MemberInfo{},
	}
	for _, m := range runtimeMembers {
		t.members[memberKey(m.Type, m.Name)] = m
	}
	return t
}

func memberKey(typeName, member string) string {
	return typeName + "::" + member
}

// Function describes a callable being added to a table.
type Function struct {
	ID             lir.CallableID
	Name           string
	ParamCount     int
	HasScopes      bool
	NeedsArguments bool
}

// AddFunction registers a callable and assigns it the next token.
func (t *Table) AddFunction(fn Function) (CallableInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(fn)
}

func (t *Table) addLocked(fn Function) (CallableInfo, error) {
	if fn.ID == "" {
		return CallableInfo{}, fmt.Errorf("callable id is empty")
	}
	if _, exists := t.callables[fn.ID]; exists {
		return CallableInfo{}, fmt.Errorf("callable already registered: %s", fn.ID)
	}
	if len(t.tokens) >= 1<<16 {
		return CallableInfo{}, fmt.Errorf("function table is full")
	}
	name := fn.Name
	if name == "" {
		name = string(fn.ID)
	}
	info := CallableInfo{
		ID:             fn.ID,
		Token:          Token(len(t.tokens)),
		Name:           name,
		ParamCount:     fn.ParamCount,
		HasScopes:      fn.HasScopes,
		NeedsArguments: fn.NeedsArguments,
	}
	t.callables[fn.ID] = info
	t.tokens = append(t.tokens, fn.ID)
	return info, nil
}

// Class describes a user class being added to a table.
type Class struct {
	Name string
	Base string

	// Constructor is registered under ConstructorID(Name). Its ID field is
	// ignored.
	Constructor Function
	Fields      []FieldInfo
}

// AddClass registers a class and its constructor.
func (t *Table) AddClass(c Class) (CallableInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.classes[c.Name]; exists {
		return CallableInfo{}, fmt.Errorf("class already registered: %s", c.Name)
	}
	ctor := c.Constructor
	ctor.ID = ConstructorID(c.Name)
	if ctor.Name == "" {
		ctor.Name = string(ctor.ID)
	}
	info, err := t.addLocked(ctor)
	if err != nil {
		return CallableInfo{}, err
	}
	entry := &class{
		name:    c.Name,
		base:    c.Base,
		fields:  map[string]FieldInfo{},
		methods: map[string]lir.CallableID{},
	}
	for _, f := range c.Fields {
		entry.fields[f.Name] = f
	}
	t.classes[c.Name] = entry
	return info, nil
}

// AddMethod registers an instance method of a class. The method's ID is
// MethodID(class, method).
func (t *Table) AddMethod(className, method string, fn Function) (CallableInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.classes[className]
	if !ok {
		return CallableInfo{}, fmt.Errorf("unknown class: %s", className)
	}
	fn.ID = MethodID(className, method)
	info, err := t.addLocked(fn)
	if err != nil {
		return CallableInfo{}, err
	}
	c.methods[method] = fn.ID
	return info, nil
}

// AddScope registers a scope shape, replacing any previous shape of the
// same name.
func (t *Table) AddScope(shape ScopeShape) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fields := make([]FieldInfo, len(shape.Fields))
	copy(fields, shape.Fields)
	t.scopes[shape.Name] = ScopeShape{Name: shape.Name, Fields: fields}
}

// AddRuntimeMember registers a method of a runtime-library type.
func (t *Table) AddRuntimeMember(m MemberInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.members[memberKey(m.Type, m.Name)] = m
}

// Callable implements Resolver.
func (t *Table) Callable(id lir.CallableID) (CallableInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.callables[id]
	return info, ok
}

// ClassConstructor implements Resolver.
func (t *Table) ClassConstructor(className string) (CallableInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.classes[className]; !ok {
		return CallableInfo{}, false
	}
	info, ok := t.callables[ConstructorID(className)]
	return info, ok
}

// ClassMethod implements Resolver. Methods are looked up along the base
// class chain.
func (t *Table) ClassMethod(className, method string) (CallableInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for c, depth := t.classes[className], 0; c != nil && depth <= len(t.classes); c, depth = t.classes[c.base], depth+1 {
		if id, ok := c.methods[method]; ok {
			return t.callables[id], true
		}
	}
	return CallableInfo{}, false
}

// ClassField implements Resolver. Fields are looked up along the base
// class chain.
func (t *Table) ClassField(className, field string) (FieldInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for c, depth := t.classes[className], 0; c != nil && depth <= len(t.classes); c, depth = t.classes[c.base], depth+1 {
		if f, ok := c.fields[field]; ok {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// BaseClass returns the base class of a class, or an empty string.
func (t *Table) BaseClass(className string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.classes[className]; ok {
		return c.base
	}
	return ""
}

// RuntimeMember implements Resolver.
func (t *Table) RuntimeMember(typeName, member string) (MemberInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.members[memberKey(typeName, member)]
	return m, ok
}

// ScopeField implements Resolver.
func (t *Table) ScopeField(scope, field string) (FieldInfo, bool) {
	shape, ok := t.ScopeShape(scope)
	if !ok {
		return FieldInfo{}, false
	}
	return shape.Field(field)
}

// ScopeShape implements Resolver.
func (t *Table) ScopeShape(scope string) (ScopeShape, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	shape, ok := t.scopes[scope]
	return shape, ok
}

// Entries returns every callable in token order.
func (t *Table) Entries() []CallableInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]CallableInfo, len(t.tokens))
	for i, id := range t.tokens {
		entries[i] = t.callables[id]
	}
	return entries
}

// Len returns the number of callables.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tokens)
}

// Classes returns the names of the registered classes, sorted.
func (t *Table) Classes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.classes))
	for name := range t.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ Resolver = (*Table)(nil)
