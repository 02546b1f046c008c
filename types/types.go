// Package types defines the language's type model: the closed set of
// primitive types plus tuples, references, and user-defined types.
package types

import (
	"fmt"
	"strings"
)

// Kind discriminates the closed set of type variants.
type Kind uint8

const (
	KindUnknown Kind = iota

	KindU8
	KindU16
	KindU32
	KindU64
	KindU128

	KindI8
	KindI16
	KindI32
	KindI64
	KindI128

	KindF32
	KindF64

	KindBool

	// The `()` type.
	KindUnit

	KindTuple
	KindReference
	KindUser
)

// Type is a language-level type. The zero value is Unknown.
//
// Types compare by structure; use Equal rather than ==, since tuple
// and reference types carry non-comparable fields.
type Type struct {
	Kind Kind

	// Name of a struct, enum, alias, etc. Set when Kind is KindUser.
	Name string

	// Element types. Set when Kind is KindTuple.
	Elems []Type

	// Referent type and mutability. Set when Kind is KindReference.
	Elem    *Type
	Mutable bool
}

// Convenience values for the primitive types.
var (
	U8   = Type{Kind: KindU8}
	U16  = Type{Kind: KindU16}
	U32  = Type{Kind: KindU32}
	U64  = Type{Kind: KindU64}
	U128 = Type{Kind: KindU128}

	I8   = Type{Kind: KindI8}
	I16  = Type{Kind: KindI16}
	I32  = Type{Kind: KindI32}
	I64  = Type{Kind: KindI64}
	I128 = Type{Kind: KindI128}

	F32 = Type{Kind: KindF32}
	F64 = Type{Kind: KindF64}

	Bool = Type{Kind: KindBool}

	Unit    = Type{Kind: KindUnit}
	Unknown = Type{Kind: KindUnknown}
)

// User returns the user-defined type with the given name.
func User(name string) Type {
	return Type{Kind: KindUser, Name: name}
}

// Tuple returns the tuple type over the given element types.
func Tuple(elems []Type) Type {
	return Type{Kind: KindTuple, Elems: elems}
}

// Reference returns a reference type to ty.
func Reference(ty Type, mutable bool) Type {
	return Type{Kind: KindReference, Elem: &ty, Mutable: mutable}
}

var builtins = map[string]Type{
	"u8":   U8,
	"u16":  U16,
	"u32":  U32,
	"u64":  U64,
	"u128": U128,

	"i8":   I8,
	"i16":  I16,
	"i32":  I32,
	"i64":  I64,
	"i128": I128,

	"f32": F32,
	"f64": F64,

	"bool": Bool,

	"()": Unit,
}

// Resolve maps a type name obtained from the lexer/parser to a
// built-in type, or to a user type if the name is not built in.
func Resolve(name string) Type {
	if t, ok := builtins[name]; ok {
		return t
	}
	return User(name)
}

// IsBuiltin reports whether name resolves to a built-in type.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func (t Type) IsUnknown() bool { return t.Kind == KindUnknown }
func (t Type) IsUnit() bool    { return t.Kind == KindUnit }
func (t Type) IsBool() bool    { return t.Kind == KindBool }
func (t Type) IsUser() bool    { return t.Kind == KindUser }

// IsSignedInteger reports whether t is one of the i* types.
func (t Type) IsSignedInteger() bool {
	switch t.Kind {
	case KindI8, KindI16, KindI32, KindI64, KindI128:
		return true
	}
	return false
}

// IsUnsignedInteger reports whether t is one of the u* types.
func (t Type) IsUnsignedInteger() bool {
	switch t.Kind {
	case KindU8, KindU16, KindU32, KindU64, KindU128:
		return true
	}
	return false
}

func (t Type) IsInteger() bool {
	return t.IsSignedInteger() || t.IsUnsignedInteger()
}

func (t Type) IsFloat() bool {
	return t.Kind == KindF32 || t.Kind == KindF64
}

func (t Type) IsNumeric() bool {
	return t.IsInteger() || t.IsFloat()
}

// Equal reports whether two types are structurally identical.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindUser:
		return t.Name == other.Name
	case KindTuple:
		if len(t.Elems) != len(other.Elems) {
			return false
		}
		for i := range t.Elems {
			if !t.Elems[i].Equal(other.Elems[i]) {
				return false
			}
		}
		return true
	case KindReference:
		return t.Mutable == other.Mutable && t.Elem.Equal(*other.Elem)
	default:
		return true
	}
}

// String renders the type the way it is written in source.
func (t Type) String() string {
	switch t.Kind {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindU128:
		return "u128"
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindI128:
		return "i128"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindBool:
		return "bool"
	case KindUnit:
		return "()"
	case KindTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindReference:
		if t.Mutable {
			return "&mut " + t.Elem.String()
		}
		return "&" + t.Elem.String()
	case KindUser:
		return t.Name
	case KindUnknown:
		return "<unknown>"
	default:
		return fmt.Sprintf("<invalid kind %d>", t.Kind)
	}
}
