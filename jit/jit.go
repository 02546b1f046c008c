// Package jit compiles source files all the way to callable native
// code and exposes function-pointer lookup to the embedding host.
//
// A Builder configures the compilation: source paths, host symbols
// for `extern` resolution, transform libraries, and token rewrites.
// Build runs the pipeline and finalizes the backend module; the
// resulting Context owns the machine code for its whole lifetime.
//
//	ctx, err := jit.NewBuilder().
//	    WithSourcePath("./scripts/main.jitter").
//	    WithFunction("host_print", hostPrintPtr).
//	    Build()
//	if err != nil { ... }
//	ptr, err := ctx.GetFn("main")
//
// GetFn returns a raw code pointer; the caller is responsible for
// treating it as the correct native signature. Under the
// address-passing convention every parameter is a pointer to the
// argument's bytes, and a non-unit function returns a pointer to its
// result.
package jit

import (
	"context"
	"fmt"
	"io"
	"unsafe"

	jitter "github.com/swerdloj/jitter"
	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/backend"
	"github.com/swerdloj/jitter/codegen"
	"github.com/swerdloj/jitter/lexer"
	"github.com/swerdloj/jitter/reporter"
	"github.com/swerdloj/jitter/validator"
)

// Builder configures and creates a Context. Enables host linking.
type Builder struct {
	sourcePaths []string
	resolver    jitter.Resolver
	symbols     map[string]unsafe.Pointer
	extensions  []jitter.ExtensionConfig
	callbacks   []lexer.Callback
	errorLimit  int
	sink        func(*reporter.Diagnostic)
	irWriter    io.Writer
}

// NewBuilder returns an empty builder that reads sources from the
// operating system.
func NewBuilder() *Builder {
	return &Builder{
		resolver: jitter.SourceResolver{},
		symbols:  make(map[string]unsafe.Pointer),
	}
}

// WithSourcePath adds a source file to compile. All files share one
// namespace.
func (b *Builder) WithSourcePath(path string) *Builder {
	b.sourcePaths = append(b.sourcePaths, path)
	return b
}

// WithFunction registers a host-defined native symbol with the given
// alias; `extern` declarations of that name resolve to pointer.
func (b *Builder) WithFunction(alias string, pointer unsafe.Pointer) *Builder {
	b.symbols[alias] = pointer
	return b
}

// WithExtensionPath loads a transform library applied before
// validation.
func (b *Builder) WithExtensionPath(path string, inputs ...string) *Builder {
	b.extensions = append(b.extensions, jitter.ExtensionConfig{Path: path, Inputs: inputs})
	return b
}

// WithLexerCallback pre-seeds a token rewrite: occurrences of the
// single token pattern lexes to are replaced by replacement's tokens.
func (b *Builder) WithLexerCallback(pattern, replacement string) *Builder {
	b.callbacks = append(b.callbacks, lexer.Callback{Pattern: pattern, Replacement: replacement})
	return b
}

// WithResolver overrides where sources (and includes) are read from.
func (b *Builder) WithResolver(r jitter.Resolver) *Builder {
	b.resolver = r
	return b
}

// WithErrorLimit stops diagnostic collection after n errors. Zero,
// the default, collects everything before failing.
func (b *Builder) WithErrorLimit(n int) *Builder {
	b.errorLimit = n
	return b
}

// WithDiagnosticSink observes every diagnostic as it is reported.
func (b *Builder) WithDiagnosticSink(sink func(*reporter.Diagnostic)) *Builder {
	b.sink = sink
	return b
}

// WithIRWriter streams each function's IR listing to w as it is
// generated, before backend optimization.
func (b *Builder) WithIRWriter(w io.Writer) *Builder {
	b.irWriter = w
	return b
}

// Build compiles the configured sources and finalizes native code.
func (b *Builder) Build() (*Context, error) {
	compiler := &jitter.Compiler{
		Resolver:       b.resolver,
		ErrorLimit:     b.errorLimit,
		DiagnosticSink: b.sink,
		Callbacks:      b.callbacks,
		Extensions:     b.extensions,
	}

	vctx, err := compiler.Compile(context.Background(), b.sourcePaths...)
	if err != nil {
		return nil, err
	}

	jc := newContext()
	for alias, ptr := range b.symbols {
		jc.module.Symbol(alias, ptr)
	}

	if err := jc.translate(vctx, b.irWriter); err != nil {
		return nil, err
	}
	return jc, nil
}

// Context contains everything needed to call the generated code. The
// backend module, and therefore all returned function pointers, live
// exactly as long as the Context; Close invalidates them.
type Context struct {
	module    *backend.Module
	functions map[string]backend.FuncID

	// The target's pointer type.
	pointerType backend.Type
}

func newContext() *Context {
	module := backend.NewModule()
	return &Context{
		module:      module,
		functions:   make(map[string]backend.FuncID),
		pointerType: module.PointerType(),
	}
}

// GetFn returns the native entry point of a compiled function.
func (c *Context) GetFn(name string) (unsafe.Pointer, error) {
	id, ok := c.functions[name]
	if !ok {
		return nil, fmt.Errorf("no such function `%s`", name)
	}
	return c.module.FinalizedFunction(id)
}

// Close releases the generated machine code. Every pointer previously
// returned by GetFn becomes invalid.
func (c *Context) Close() error {
	return c.module.Free()
}

// translate lowers a validated context: forward-declare everything,
// generate IR for each local function, then finalize the module.
// All code represented by the validation context is assumed valid.
func (c *Context) translate(vctx *validator.Context, irWriter io.Writer) error {
	// Begin by forward-declaring all functions, extern included.
	var declErr error
	vctx.Functions.Scan(func(name string, def *validator.FunctionDefinition) bool {
		if err := c.forwardDeclare(name, def); err != nil {
			declErr = err
			return false
		}
		return true
	})
	if declErr != nil {
		return declErr
	}

	// Structs define layouts; they need no translation. Extern
	// prototypes are accounted for by their declarations.
	byName := make(map[string]int, len(vctx.AST.Functions))
	for i, fn := range vctx.AST.Functions {
		byName[fn.Proto.Name] = i
	}

	var genErr error
	vctx.Functions.Scan(func(name string, def *validator.FunctionDefinition) bool {
		if def.IsExtern {
			return true
		}
		i, ok := byName[name]
		if !ok {
			genErr = fmt.Errorf("attempted to translate an unregistered function: %s", name)
			return false
		}
		if err := c.generateFunction(vctx.AST.Functions[i], vctx, irWriter); err != nil {
			genErr = err
			return false
		}
		return true
	})
	if genErr != nil {
		return genErr
	}

	// Performs layout, relocation, and linking.
	if err := c.module.FinalizeDefinitions(); err != nil {
		return err
	}
	return nil
}

// signatureFor builds the address-passing signature: one pointer per
// formal parameter, plus a struct-return pointer for non-unit
// returns.
func (c *Context) signatureFor(def *validator.FunctionDefinition) backend.Signature {
	sig := c.module.MakeSignature()
	for range def.Parameters {
		sig.Params = append(sig.Params, backend.NewAbiParam(c.pointerType))
	}
	if !def.ReturnType.IsUnit() {
		sig.Returns = append(sig.Returns, backend.SpecialAbiParam(c.pointerType, backend.PurposeStructReturn))
	}
	return sig
}

func (c *Context) forwardDeclare(name string, def *validator.FunctionDefinition) error {
	linkage := backend.LinkageLocal
	if def.IsExtern {
		linkage = backend.LinkageImport
	}

	id, err := c.module.DeclareFunction(name, linkage, c.signatureFor(def))
	if err != nil {
		return err
	}
	c.functions[name] = id
	return nil
}

func (c *Context) generateFunction(fn *ast.Function, vctx *validator.Context, irWriter io.Writer) error {
	def, ok := vctx.Functions.Get(fn.Proto.Name)
	if !ok {
		return fmt.Errorf("attempted to translate an unregistered function: %s", fn.Proto.Name)
	}

	ir := backend.NewFunction(c.signatureFor(def))
	builder := backend.NewFunctionBuilder(ir)

	translator := codegen.NewFunctionTranslator(c.pointerType, builder, c.module, vctx, c.functions)

	hasReturnValue := !fn.Proto.ReturnType.IsUnit()
	if err := translator.TranslateFunction(fn, hasReturnValue); err != nil {
		return err
	}

	if irWriter != nil {
		fmt.Fprint(irWriter, backend.FormatFunction(fn.Proto.Name, ir))
	}

	// Constant folding; everything else is the emitter's business.
	backend.Optimize(ir)

	return c.module.DefineFunction(c.functions[fn.Proto.Name], ir)
}
