// Package ast defines the abstract syntax tree produced by the parser
// and consumed by the validator and code generator.
//
// The tree is a closed set of tagged variants: statements and
// expressions are sealed interfaces over concrete node structs, and
// every traversal is a structural switch over that set. Every node
// carries a Span locating it in its source file. Expression nodes
// additionally carry a type slot that starts as types.Unknown and is
// filled in during validation.
package ast
