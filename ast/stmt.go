package ast

import "github.com/swerdloj/jitter/types"

// Statement is the sealed interface over statement variants.
type Statement interface {
	stmtNode()
	GetSpan() Span
}

// Let is `let mut? ident: ty? = expr?;`.
type Let struct {
	Name    string
	Mutable bool
	// Declared type, or types.Unknown when omitted.
	Ty    types.Type
	Value Expression // nil when the binding is declared unassigned
	Span  Span
}

// Assign is `place op expr;` where op is one of =, +=, -=, *=, /=.
type Assign struct {
	Lhs      Expression
	Operator AssignOp
	OpSpan   Span
	Rhs      Expression
	Span     Span
}

// Return is `return expr?;`. An omitted expression returns `()`.
type Return struct {
	Value Expression
	Span  Span
}

// ImplicitReturn is a trailing expression with no semicolon. When it
// terminates a function body, IsFunctionReturn is set during
// validation and the statement behaves exactly like Return; otherwise
// it supplies the value of the enclosing block expression.
type ImplicitReturn struct {
	Value            Expression
	IsFunctionReturn bool
	Span             Span
}

// ExprStatement is `expr;`, evaluated for side effects.
type ExprStatement struct {
	Value Expression
	Span  Span
}

func (*Let) stmtNode()            {}
func (*Assign) stmtNode()         {}
func (*Return) stmtNode()         {}
func (*ImplicitReturn) stmtNode() {}
func (*ExprStatement) stmtNode()  {}

func (s *Let) GetSpan() Span            { return s.Span }
func (s *Assign) GetSpan() Span         { return s.Span }
func (s *Return) GetSpan() Span         { return s.Span }
func (s *ImplicitReturn) GetSpan() Span { return s.Span }
func (s *ExprStatement) GetSpan() Span  { return s.Span }

// AssignOp is the operator of an assignment statement.
type AssignOp uint8

const (
	AssignPlain AssignOp = iota
	AssignAdd
	AssignSubtract
	AssignMultiply
	AssignDivide
)

func (op AssignOp) String() string {
	switch op {
	case AssignPlain:
		return "="
	case AssignAdd:
		return "+="
	case AssignSubtract:
		return "-="
	case AssignMultiply:
		return "*="
	case AssignDivide:
		return "/="
	}
	return "<invalid assign op>"
}
