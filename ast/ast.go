package ast

import "github.com/swerdloj/jitter/types"

// File is a parsed source file with its top-level items grouped by
// kind. Iterating a field visits items in declaration order.
type File struct {
	Externs   []*ExternBlock
	Functions []*Function
	Traits    []*Trait
	Impls     []*Impl
	Structs   []*Struct
	Uses      []*Use
}

// Merge appends the items of other onto f, preserving order. Used when
// multiple source files compile into one namespace.
func (f *File) Merge(other *File) {
	f.Externs = append(f.Externs, other.Externs...)
	f.Functions = append(f.Functions, other.Functions...)
	f.Traits = append(f.Traits, other.Traits...)
	f.Impls = append(f.Impls, other.Impls...)
	f.Structs = append(f.Structs, other.Structs...)
	f.Uses = append(f.Uses, other.Uses...)
}

// ExternBlock is `extern { fn ...; fn ...; }`: prototypes resolved
// against host-registered symbols at link time.
type ExternBlock struct {
	Prototypes []*Prototype
	Span       Span

	// File is the path of the source file the item came from, set
	// by the parser. Diagnostics about the item attribute to it.
	File string
}

// Function is a named function with a body.
type Function struct {
	Proto    *Prototype
	Body     *BlockExpr
	IsPublic bool
	Span     Span

	// File is the path of the source file the item came from, set
	// by the parser. Diagnostics about the item attribute to it.
	File string
}

// Prototype is a function signature: name, parameters, return type.
type Prototype struct {
	Name       string
	Params     []*Parameter
	ReturnType types.Type
	Span       Span
}

// Parameter is a single function parameter.
type Parameter struct {
	Mutable bool
	Name    string
	Ty      types.Type
	Span    Span
}

// Struct is a struct declaration with ordered fields.
type Struct struct {
	Name     string
	Fields   []*StructField
	IsPublic bool
	Span     Span

	// File is the path of the source file the item came from, set
	// by the parser. Diagnostics about the item attribute to it.
	File string
}

// StructField is one field of a struct declaration.
type StructField struct {
	Name     string
	Ty       types.Type
	IsPublic bool
	Span     Span
}

// Trait is a trait declaration. Traits parse but are not lowered.
type Trait struct {
	Name     string
	Required []*Prototype
	Defaults []*Function
	IsPublic bool
	Span     Span

	// File is the path of the source file the item came from, set
	// by the parser. Diagnostics about the item attribute to it.
	File string
}

// Impl is `impl Type { .. }` or `impl Trait for Type { .. }`.
// A base impl has an empty TraitName.
type Impl struct {
	TraitName  string
	TargetName string
	Functions  []*Function
	Span       Span

	// File is the path of the source file the item came from, set
	// by the parser. Diagnostics about the item attribute to it.
	File string
}

// Use is `use a::b::c;` with the path split into segments.
type Use struct {
	Path []string
	Span Span

	// File is the path of the source file the item came from, set
	// by the parser. Diagnostics about the item attribute to it.
	File string
}
