// Package jitter is a just-in-time compiler and embedding runtime for
// a small, statically-typed, Rust-like source language.
//
// The pipeline is strictly staged: text is lexed (with preprocessing)
// into tokens, parsed into a spanned AST, transformed by any loaded
// extensions, validated into a typed context, and lowered to native
// code through the backend. Each stage produces an immutable artifact
// consumed by the next.
//
// This package holds the frontend orchestration: the Compiler turns
// named source files into a validation context. The jit package
// carries that context the rest of the way to callable function
// pointers.
package jitter

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/extension"
	"github.com/swerdloj/jitter/lexer"
	"github.com/swerdloj/jitter/parser"
	"github.com/swerdloj/jitter/reporter"
	"github.com/swerdloj/jitter/validator"
)

// ExtensionConfig names a transform library and the inputs handed to
// its hooks.
type ExtensionConfig struct {
	Path   string
	Inputs []string
}

// Compiler handles frontend compilation tasks: turning source files
// into a validated context ready for code generation.
//
// Distinct files are lexed and parsed concurrently; their items merge
// into one namespace in argument order, so compilation results do not
// depend on scheduling.
type Compiler struct {
	// Resolves path names into source code. This is the only
	// required field.
	Resolver Resolver

	// The maximum parallelism to use when compiling. If unspecified
	// or non-positive, min(runtime.NumCPU(), runtime.GOMAXPROCS(-1))
	// is used.
	MaxParallelism int

	// ErrorLimit stops diagnostic collection after this many errors.
	// Zero collects every diagnostic; stage boundaries still fail on
	// the first one found.
	ErrorLimit int

	// DiagnosticSink observes every diagnostic as it is reported. May
	// be called from whichever goroutine is compiling a file.
	DiagnosticSink func(*reporter.Diagnostic)

	// Pre-seeded token rewrites applied while lexing every file.
	Callbacks []lexer.Callback

	// Transform libraries applied to the merged AST before
	// validation.
	Extensions []ExtensionConfig
}

// Compile compiles the given files into a single validated context.
func (c *Compiler) Compile(ctx context.Context, files ...string) (*validator.Context, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files")
	}

	par := c.MaxParallelism
	if par <= 0 {
		par = runtime.GOMAXPROCS(-1)
		if cpus := runtime.NumCPU(); par > cpus {
			par = cpus
		}
	}

	handler := reporter.NewHandler(
		reporter.WithErrorLimit(c.ErrorLimit),
		reporter.WithSink(c.DiagnosticSink),
	)

	// Lex and parse every file concurrently under a permit cap, in
	// the style of a little fork/join: results land in their input
	// slot so the merge below is deterministic.
	type parsed struct {
		file *ast.File
		err  error
	}
	results := make([]parsed, len(files))

	sem := semaphore.NewWeighted(int64(par))
	var wg sync.WaitGroup
	for i, path := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer sem.Release(1)
			file, err := c.parseFile(path, handler)
			results[i] = parsed{file: file, err: err}
		}(i, path)
	}
	wg.Wait()

	merged := &ast.File{}
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		merged.Merge(r.file)
	}

	if err := c.applyExtensions(merged); err != nil {
		return nil, err
	}

	// Items carry their own source file for diagnostics; the first
	// input is only the fallback for nodes with no recorded origin
	// (such as those produced by extensions).
	return validator.Validate(merged, files[0], handler)
}

func (c *Compiler) parseFile(path string, handler *reporter.Handler) (*ast.File, error) {
	result, err := c.Resolver.FindFileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve path %q: %w", path, err)
	}

	lex := lexer.New(path, result.Source, true, readFileFrom(c.Resolver), handler)
	for _, cb := range c.Callbacks {
		if err := lex.AddCallback(cb); err != nil {
			return nil, err
		}
	}
	tokens, err := lex.Lex()
	if err != nil {
		return nil, err
	}

	return parser.Parse(path, tokens, handler)
}

// applyExtensions runs every configured transform library over the
// merged AST, before validation. Top-level hooks see each function
// and struct; statement hooks, when exported, see each statement of
// every function body.
func (c *Compiler) applyExtensions(file *ast.File) error {
	for _, cfg := range c.Extensions {
		ext, err := extension.Load(cfg.Path)
		if err != nil {
			return err
		}

		if err := applyTopLevel(file, ext, cfg.Inputs); err != nil {
			return err
		}
		if ext.HasStatementHook() {
			if err := applyStatements(file, ext, cfg.Inputs); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyTopLevel(file *ast.File, ext *extension.Extension, inputs []string) error {
	var functions []*ast.Function
	var structs []*ast.Struct

	place := func(items []extension.Item) error {
		for _, item := range items {
			switch {
			case item.Function != nil:
				functions = append(functions, item.Function)
			case item.Struct != nil:
				structs = append(structs, item.Struct)
			default:
				return fmt.Errorf("extension `%s` returned an invalid top-level item: %s", ext.Path(), item)
			}
		}
		return nil
	}

	for _, fn := range file.Functions {
		items, err := ext.TransformTopLevel(extension.FunctionItem(fn), inputs)
		if err != nil {
			return fmt.Errorf("extension `%s`: %w", ext.Path(), err)
		}
		if err := place(items); err != nil {
			return err
		}
	}
	for _, s := range file.Structs {
		items, err := ext.TransformTopLevel(extension.StructItem(s), inputs)
		if err != nil {
			return fmt.Errorf("extension `%s`: %w", ext.Path(), err)
		}
		if err := place(items); err != nil {
			return err
		}
	}

	file.Functions = functions
	file.Structs = structs
	return nil
}

func applyStatements(file *ast.File, ext *extension.Extension, inputs []string) error {
	for _, fn := range file.Functions {
		var statements []ast.Statement
		for _, stmt := range fn.Body.Statements {
			items, err := ext.TransformStatement(stmt, inputs)
			if err != nil {
				return fmt.Errorf("extension `%s`: %w", ext.Path(), err)
			}
			for _, item := range items {
				switch {
				case item.Statement != nil:
					statements = append(statements, item.Statement)
				case item.Function != nil:
					// Produced items hoist to the top level.
					file.Functions = append(file.Functions, item.Function)
				case item.Struct != nil:
					file.Structs = append(file.Structs, item.Struct)
				default:
					return fmt.Errorf("extension `%s` returned an empty item", ext.Path())
				}
			}
		}
		fn.Body.Statements = statements
	}
	return nil
}
