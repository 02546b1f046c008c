// Package walk provides helpers to traverse an AST.
//
// Traversals are depth-first and structural: a statement visitor sees
// every statement in a block, including those of nested block
// expressions, and an expression visitor sees every sub-expression of
// the expression it starts from. If a visitor returns an error, the
// walk aborts and returns that error.
package walk

import "github.com/swerdloj/jitter/ast"

// Statements walks every statement in the block, depth-first,
// including the statements of nested block expressions.
func Statements(block *ast.BlockExpr, visit func(ast.Statement) error) error {
	for _, stmt := range block.Statements {
		if err := visit(stmt); err != nil {
			return err
		}
		for _, expr := range statementExpressions(stmt) {
			if err := Expressions(expr, func(e ast.Expression) error {
				if nested, ok := e.(*ast.BlockExpr); ok {
					for _, s := range nested.Statements {
						if err := visit(s); err != nil {
							return err
						}
					}
				}
				return nil
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Expressions walks expr and every expression beneath it.
func Expressions(expr ast.Expression, visit func(ast.Expression) error) error {
	if expr == nil {
		return nil
	}
	if err := visit(expr); err != nil {
		return err
	}

	switch e := expr.(type) {
	case *ast.Binary:
		if err := Expressions(e.Lhs, visit); err != nil {
			return err
		}
		return Expressions(e.Rhs, visit)

	case *ast.Unary:
		return Expressions(e.Operand, visit)

	case *ast.FieldConstructor:
		for _, init := range e.Fields {
			if err := Expressions(init.Value, visit); err != nil {
				return err
			}
		}
		return nil

	case *ast.FieldAccess:
		return Expressions(e.Base, visit)

	case *ast.Call:
		for _, arg := range e.Args {
			if err := Expressions(arg, visit); err != nil {
				return err
			}
		}
		return nil

	case *ast.BlockExpr:
		for _, stmt := range e.Statements {
			for _, sub := range statementExpressions(stmt) {
				if err := Expressions(sub, visit); err != nil {
					return err
				}
			}
		}
		return nil

	default:
		// Literals and identifiers have no children.
		return nil
	}
}

// FunctionExpressions walks every expression in a function's body.
func FunctionExpressions(fn *ast.Function, visit func(ast.Expression) error) error {
	return Expressions(fn.Body, visit)
}

func statementExpressions(stmt ast.Statement) []ast.Expression {
	switch s := stmt.(type) {
	case *ast.Let:
		if s.Value == nil {
			return nil
		}
		return []ast.Expression{s.Value}
	case *ast.Assign:
		return []ast.Expression{s.Lhs, s.Rhs}
	case *ast.Return:
		return []ast.Expression{s.Value}
	case *ast.ImplicitReturn:
		return []ast.Expression{s.Value}
	case *ast.ExprStatement:
		return []ast.Expression{s.Value}
	default:
		return nil
	}
}
