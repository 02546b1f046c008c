package jitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swerdloj/jitter/lexer"
	"github.com/swerdloj/jitter/reporter"
)

func TestCompileMergesFiles(t *testing.T) {
	sources := MapResolver{
		"a.jitter": "fn f() -> i32 { return 0; }",
		"b.jitter": "fn g() -> i32 { return f(); }",
	}

	compiler := &Compiler{Resolver: sources}
	ctx, err := compiler.Compile(context.Background(), "a.jitter", "b.jitter")
	require.NoError(t, err)

	_, ok := ctx.Functions.Get("f")
	assert.True(t, ok)
	_, ok = ctx.Functions.Get("g")
	assert.True(t, ok)
}

func TestCompileIncludeExposesBothFunctions(t *testing.T) {
	sources := MapResolver{
		"main.jitter": "#include \"lib.src\"\nfn g() -> i32 { return 1; }",
		"lib.src":     "fn f() -> i32 { return 0; }",
	}

	compiler := &Compiler{Resolver: sources}
	ctx, err := compiler.Compile(context.Background(), "main.jitter")
	require.NoError(t, err)

	f, ok := ctx.Functions.Get("f")
	require.True(t, ok)
	assert.False(t, f.IsExtern)
	g, ok := ctx.Functions.Get("g")
	require.True(t, ok)
	assert.False(t, g.IsExtern)
}

func TestCompileUnresolvablePath(t *testing.T) {
	compiler := &Compiler{Resolver: MapResolver{}}
	_, err := compiler.Compile(context.Background(), "missing.jitter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.jitter")
}

func TestDiagnosticsAttributeToTheirFile(t *testing.T) {
	sources := MapResolver{
		"good.jitter": "fn f() -> i32 { return 0; }",
		"bad.jitter":  "fn g() -> i32 { return nope; }",
	}

	compiler := &Compiler{Resolver: sources}
	_, err := compiler.Compile(context.Background(), "good.jitter", "bad.jitter")
	require.Error(t, err)

	// The error lives in bad.jitter even though the merged AST was
	// validated as one unit and good.jitter came first.
	var cerr *reporter.CompileError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Diagnostics, 1)
	assert.Equal(t, "bad.jitter", cerr.Diagnostics[0].Pos.Filename)

	files, _ := cerr.ByFile()
	assert.Equal(t, []string{"bad.jitter"}, files)
}

func TestCompileSinkStreamsDiagnostics(t *testing.T) {
	sources := MapResolver{
		"bad.jitter": "fn f() -> i32 { return nope; }",
	}

	var seen []string
	compiler := &Compiler{
		Resolver: sources,
		DiagnosticSink: func(d *reporter.Diagnostic) {
			seen = append(seen, d.Message)
		},
	}
	_, err := compiler.Compile(context.Background(), "bad.jitter")
	require.Error(t, err)
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0], "nope")
}

func TestCompileDuplicateAcrossFiles(t *testing.T) {
	sources := MapResolver{
		"a.jitter": "fn f() { }",
		"b.jitter": "fn f() { }",
	}

	compiler := &Compiler{Resolver: sources}
	_, err := compiler.Compile(context.Background(), "a.jitter", "b.jitter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already defined")
}

func TestCompileCallbacks(t *testing.T) {
	sources := MapResolver{
		"main.jitter": "fn f() -> i32 { return LIMIT; }",
	}

	compiler := &Compiler{
		Resolver:  sources,
		Callbacks: []lexer.Callback{{Pattern: "LIMIT", Replacement: "512"}},
	}
	_, err := compiler.Compile(context.Background(), "main.jitter")
	require.NoError(t, err)
}

func TestCompileManyFilesInParallel(t *testing.T) {
	sources := MapResolver{}
	files := make([]string, 0, 16)
	names := []string{"a", "b", "c", "d", "e", "f0", "g0", "h", "i", "j", "k", "l", "m", "n", "o", "p"}
	for _, name := range names {
		path := name + ".jitter"
		sources[path] = "fn " + name + "() -> i32 { return 1; }"
		files = append(files, path)
	}

	compiler := &Compiler{Resolver: sources, MaxParallelism: 4}
	ctx, err := compiler.Compile(context.Background(), files...)
	require.NoError(t, err)

	for _, name := range names {
		_, ok := ctx.Functions.Get(name)
		assert.True(t, ok, "function %s", name)
	}
}

func TestCompositeResolver(t *testing.T) {
	primary := MapResolver{"a.jitter": "fn a() { }"}
	fallback := MapResolver{"b.jitter": "fn b() { }"}

	resolver := CompositeResolver{primary, fallback}
	compiler := &Compiler{Resolver: resolver}
	ctx, err := compiler.Compile(context.Background(), "a.jitter", "b.jitter")
	require.NoError(t, err)

	_, ok := ctx.Functions.Get("a")
	assert.True(t, ok)
	_, ok = ctx.Functions.Get("b")
	assert.True(t, ok)
}
