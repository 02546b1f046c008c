package ast

import "github.com/swerdloj/jitter/types"

// Expression is the sealed interface over expression variants.
//
// Every expression carries a type slot that starts as types.Unknown
// and is filled by the validator; after validation no reachable
// expression has an Unknown type.
type Expression interface {
	exprNode()
	GetSpan() Span
	// Type returns the expression's type as known at this time.
	Type() types.Type
	// SetType fills the expression's type slot.
	SetType(types.Type)
}

// Binary is `lhs op rhs` for op in + - * /.
type Binary struct {
	Lhs    Expression
	Op     BinaryOp
	OpSpan Span
	Rhs    Expression
	Ty     types.Type
	Span   Span
}

// Unary is `-expr` or `!expr`.
type Unary struct {
	Op      UnaryOp
	OpSpan  Span
	Operand Expression
	Ty      types.Type
	Span    Span
}

// FieldConstructor is `TypeName { field: expr, .. }`. Fields keep
// their written order; shorthand `field` is desugared to
// `field: field` by the parser.
type FieldConstructor struct {
	Ty     types.Type
	Fields []*FieldInit
	Span   Span
}

// FieldInit is one `name: value` entry of a field constructor.
type FieldInit struct {
	Name  string
	Value Expression
	Span  Span
}

// FieldAccess is `base.field`.
type FieldAccess struct {
	Base  Expression
	Field string
	Ty    types.Type
	Span  Span
}

// Call is `name(args..)`.
type Call struct {
	Name string
	Args []Expression
	Ty   types.Type
	Span Span
}

// BlockExpr is `{ statements.. }`. Its type is the type of a trailing
// implicit return, or `()` when there is none.
type BlockExpr struct {
	Statements []Statement
	Ty         types.Type
	Span       Span
}

// Literal is a numeric, boolean, or unit literal.
type Literal struct {
	Value LiteralValue
	Ty    types.Type
	Span  Span
}

// Ident is a bare identifier naming a variable in scope.
type Ident struct {
	Name string
	Ty   types.Type
	Span Span
}

func (*Binary) exprNode()           {}
func (*Unary) exprNode()            {}
func (*FieldConstructor) exprNode() {}
func (*FieldAccess) exprNode()      {}
func (*Call) exprNode()             {}
func (*BlockExpr) exprNode()        {}
func (*Literal) exprNode()          {}
func (*Ident) exprNode()            {}

func (e *Binary) GetSpan() Span           { return e.Span }
func (e *Unary) GetSpan() Span            { return e.Span }
func (e *FieldConstructor) GetSpan() Span { return e.Span }
func (e *FieldAccess) GetSpan() Span      { return e.Span }
func (e *Call) GetSpan() Span             { return e.Span }
func (e *BlockExpr) GetSpan() Span        { return e.Span }
func (e *Literal) GetSpan() Span          { return e.Span }
func (e *Ident) GetSpan() Span            { return e.Span }

func (e *Binary) Type() types.Type           { return e.Ty }
func (e *Unary) Type() types.Type            { return e.Ty }
func (e *FieldConstructor) Type() types.Type { return e.Ty }
func (e *FieldAccess) Type() types.Type      { return e.Ty }
func (e *Call) Type() types.Type             { return e.Ty }
func (e *BlockExpr) Type() types.Type        { return e.Ty }
func (e *Literal) Type() types.Type          { return e.Ty }
func (e *Ident) Type() types.Type            { return e.Ty }

func (e *Binary) SetType(t types.Type)           { e.Ty = t }
func (e *Unary) SetType(t types.Type)            { e.Ty = t }
func (e *FieldConstructor) SetType(t types.Type) { e.Ty = t }
func (e *FieldAccess) SetType(t types.Type)      { e.Ty = t }
func (e *Call) SetType(t types.Type)             { e.Ty = t }
func (e *BlockExpr) SetType(t types.Type)        { e.Ty = t }
func (e *Literal) SetType(t types.Type)          { e.Ty = t }
func (e *Ident) SetType(t types.Type)            { e.Ty = t }

// LiteralValue is the sealed interface over literal payloads.
type LiteralValue interface {
	literalValue()
}

// IntegerValue is an integer literal of any width.
type IntegerValue int64

// FloatValue is a floating point literal of any width.
type FloatValue float64

// UnitValue is the `()` literal.
type UnitValue struct{}

func (IntegerValue) literalValue() {}
func (FloatValue) literalValue()   {}
func (UnitValue) literalValue()    {}

// BinaryOp is a binary arithmetic operator.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSubtract
	OpMultiply
	OpDivide
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	}
	return "<invalid binary op>"
}

// UnaryOp is a unary operator.
type UnaryOp uint8

const (
	OpNegate UnaryOp = iota
	OpNot
)

func (op UnaryOp) String() string {
	switch op {
	case OpNegate:
		return "-"
	case OpNot:
		return "!"
	}
	return "<invalid unary op>"
}
