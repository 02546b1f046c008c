// Package extension loads compile-time AST transforms from shared
// libraries built with `go build -buildmode=plugin`.
//
// An extension exports TransformTopLevel and, optionally,
// TransformStatement:
//
//	func TransformTopLevel(item extension.Item, inputs []string) ([]extension.Item, error)
//	func TransformStatement(stmt ast.Statement, inputs []string) ([]extension.Item, error)
//
// A library without TransformTopLevel fails compilation as soon as
// there is a function or struct to pass to it.
//
// The compiler invokes these hooks before validation. An extension
// may add, replace, or reject items; a returned error surfaces as a
// compilation error.
package extension

import (
	"fmt"
	"plugin"

	"github.com/swerdloj/jitter/ast"
)

// Item is the tagged union of AST items extensions operate on.
// Exactly one field is set.
type Item struct {
	Function  *ast.Function
	Struct    *ast.Struct
	Statement ast.Statement
}

// FunctionItem wraps a function as an Item.
func FunctionItem(fn *ast.Function) Item { return Item{Function: fn} }

// StructItem wraps a struct as an Item.
func StructItem(s *ast.Struct) Item { return Item{Struct: s} }

// StatementItem wraps a statement as an Item.
func StatementItem(s ast.Statement) Item { return Item{Statement: s} }

func (i Item) String() string {
	switch {
	case i.Function != nil:
		return fmt.Sprintf("function `%s`", i.Function.Proto.Name)
	case i.Struct != nil:
		return fmt.Sprintf("struct `%s`", i.Struct.Name)
	case i.Statement != nil:
		return "statement"
	}
	return "empty item"
}

// TransformTopLevelFunc is the signature of the top-level hook.
type TransformTopLevelFunc = func(item Item, inputs []string) ([]Item, error)

// TransformStatementFunc is the signature of the statement hook.
type TransformStatementFunc = func(stmt ast.Statement, inputs []string) ([]Item, error)

// Extension is a loaded transform library.
type Extension struct {
	path string
	lib  *plugin.Plugin
}

// Load opens the shared library at path. The library is owned by the
// compiler that loaded it and must outlive any AST nodes it created.
func Load(path string) (*Extension, error) {
	lib, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load extension `%s`: %w", path, err)
	}
	return &Extension{path: path, lib: lib}, nil
}

// Path returns the library path the extension was loaded from.
func (e *Extension) Path() string {
	return e.path
}

// TransformTopLevel invokes the library's top-level hook.
func (e *Extension) TransformTopLevel(item Item, inputs []string) ([]Item, error) {
	sym, err := e.lib.Lookup("TransformTopLevel")
	if err != nil {
		return nil, fmt.Errorf("extension `%s` has no TransformTopLevel: %w", e.path, err)
	}
	transform, ok := sym.(TransformTopLevelFunc)
	if !ok {
		return nil, fmt.Errorf("extension `%s`: TransformTopLevel has the wrong signature", e.path)
	}
	return transform(item, inputs)
}

// HasStatementHook reports whether the library exports the statement
// hook.
func (e *Extension) HasStatementHook() bool {
	_, err := e.lib.Lookup("TransformStatement")
	return err == nil
}

// TransformStatement invokes the library's statement hook.
func (e *Extension) TransformStatement(stmt ast.Statement, inputs []string) ([]Item, error) {
	sym, err := e.lib.Lookup("TransformStatement")
	if err != nil {
		return nil, fmt.Errorf("extension `%s` has no TransformStatement: %w", e.path, err)
	}
	transform, ok := sym.(TransformStatementFunc)
	if !ok {
		return nil, fmt.Errorf("extension `%s`: TransformStatement has the wrong signature", e.path)
	}
	return transform(stmt, inputs)
}
