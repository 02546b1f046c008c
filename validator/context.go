// Package validator checks a parsed AST and produces the validation
// context consumed by the code generator: function signatures, struct
// layouts, a type table of sizes and alignments, and a fully typed
// AST.
package validator

import (
	"fmt"

	"github.com/tidwall/btree"

	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/types"
)

// ParameterDef describes one parameter of a registered function.
type ParameterDef struct {
	Name    string
	Ty      types.Type
	Mutable bool
}

// FunctionDefinition is a registered function signature.
type FunctionDefinition struct {
	Parameters []ParameterDef
	ReturnType types.Type
	// IsExtern marks prototypes from extern blocks; they have no body
	// and link against host-registered symbols.
	IsExtern bool
}

// FieldLayout is one laid-out field of a struct: its type and its
// byte offset from the struct's base.
type FieldLayout struct {
	Name   string
	Ty     types.Type
	Offset int
}

// StructDefinition is a registered struct with its C-repr layout.
type StructDefinition struct {
	// Fields in declaration order.
	Fields []FieldLayout

	byName map[string]int
}

// Field looks up a field by name.
func (s *StructDefinition) Field(name string) (FieldLayout, bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldLayout{}, false
	}
	return s.Fields[i], true
}

// TypeLayout is the size and alignment of a type in bytes.
type TypeLayout struct {
	Size      int
	Alignment int
}

// TypeTable maps types to their layouts. It is seeded with every
// primitive (64-bit target values) and extended as structs are laid
// out.
type TypeTable struct {
	entries map[string]TypeLayout
}

// NewTypeTable returns a table seeded with the primitive types.
func NewTypeTable() *TypeTable {
	entries := map[string]TypeLayout{
		types.U8.String():   {1, 1},
		types.U16.String():  {2, 2},
		types.U32.String():  {4, 4},
		types.U64.String():  {8, 8},
		types.U128.String(): {16, 8},

		types.I8.String():   {1, 1},
		types.I16.String():  {2, 2},
		types.I32.String():  {4, 4},
		types.I64.String():  {8, 8},
		types.I128.String(): {16, 8},

		types.F32.String(): {4, 4},
		types.F64.String(): {8, 8},

		types.Bool.String(): {1, 1},

		types.Unit.String(): {0, 1},
	}
	return &TypeTable{entries: entries}
}

// Insert adds a layout for ty. Inserting a type twice is an error.
func (t *TypeTable) Insert(ty types.Type, layout TypeLayout) error {
	key := ty.String()
	if _, exists := t.entries[key]; exists {
		return fmt.Errorf("type `%s` already exists", key)
	}
	t.entries[key] = layout
	return nil
}

// AssertValid fails unless ty has a known layout.
func (t *TypeTable) AssertValid(ty types.Type) error {
	if _, ok := t.entries[ty.String()]; !ok {
		return fmt.Errorf("type `%s` is not valid", ty)
	}
	return nil
}

// Lookup returns the layout for ty.
func (t *TypeTable) Lookup(ty types.Type) (TypeLayout, bool) {
	layout, ok := t.entries[ty.String()]
	return layout, ok
}

// SizeOf returns the size of a validated type in bytes.
func (t *TypeTable) SizeOf(ty types.Type) int {
	return t.entries[ty.String()].Size
}

// AlignmentOf returns the alignment of a validated type in bytes.
func (t *TypeTable) AlignmentOf(ty types.Type) int {
	return t.entries[ty.String()].Alignment
}

// VariableData is what a scope knows about one binding.
type VariableData struct {
	Mutable bool
	Ty      types.Type
}

// scopes is a stack of lexical scopes. A scope is pushed on function
// entry and at every block expression, and popped on exit.
type scopes struct {
	frames []map[string]VariableData
}

func (s *scopes) push() {
	s.frames = append(s.frames, make(map[string]VariableData))
}

func (s *scopes) pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

// add binds name in the innermost frame. Rebinding a name already in
// that frame is an error.
func (s *scopes) add(name string, mutable bool, ty types.Type) error {
	frame := s.frames[len(s.frames)-1]
	if _, exists := frame[name]; exists {
		return fmt.Errorf("variable `%s` is already defined in this scope", name)
	}
	frame[name] = VariableData{Mutable: mutable, Ty: ty}
	return nil
}

// get looks name up from the innermost frame outward.
func (s *scopes) get(name string) (VariableData, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i][name]; ok {
			return v, true
		}
	}
	return VariableData{}, false
}

// Context is the immutable compile-time database produced by
// validation and consumed by the code generator. The registries are
// ordered maps, so iteration order is stable: the code generator
// visits functions in exactly the order Scan yields them.
type Context struct {
	// Functions maps function name to its registered signature.
	Functions btree.Map[string, *FunctionDefinition]
	// Structs maps struct name to its layout.
	Structs btree.Map[string, *StructDefinition]
	// Types holds sizes and alignments for all known types.
	Types *TypeTable

	// AST is the validated tree; every reachable expression has a
	// non-Unknown type.
	AST *ast.File

	scopes scopes
}

// NewContext creates an empty validation context.
func NewContext() *Context {
	return &Context{
		Types: NewTypeTable(),
		AST:   &ast.File{},
	}
}

// FieldOffset returns the byte offset of a field of a struct type.
func (c *Context) FieldOffset(structTy types.Type, field string) (int, error) {
	def, ok := c.Structs.Get(structTy.Name)
	if !ok || !structTy.IsUser() {
		return 0, fmt.Errorf("type `%s` is not a struct", structTy)
	}
	layout, ok := def.Field(field)
	if !ok {
		return 0, fmt.Errorf("struct `%s` has no field `%s`", structTy.Name, field)
	}
	return layout.Offset, nil
}
