// Command jitter compiles source files ahead of embedding: it runs
// the full pipeline, reports diagnostics, and can dump the generated
// IR.
//
// Usage:
//
//	jitter compile INPUT_PATH [--output OUTPUT_PATH] [--CLIF] [--help]
//
// INPUT_PATH may be a source file, a `**`-style glob over source
// files, or a jitter.yaml project file. Exit code 0 on success, 1 on
// any compilation error.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	jitter "github.com/swerdloj/jitter"
	"github.com/swerdloj/jitter/jit"
	"github.com/swerdloj/jitter/reporter"
)

const usage = `Usage:
  jitter compile INPUT_PATH [--output OUTPUT_PATH] [--CLIF] [--help]

Flags:
  --output OUTPUT_PATH   write the IR listing to OUTPUT_PATH
  --CLIF                 print each function's IR as it is generated
  --help                 show this message
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		var cerr *reporter.CompileError
		if errors.As(err, &cerr) {
			// Every collected diagnostic, batched by file, with
			// source snippets.
			fmt.Fprint(os.Stderr, cerr.Render())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}
	if args[0] != "compile" {
		return fmt.Errorf("unrecognized command %q\n\n%s", args[0], usage)
	}

	var input, output string
	clif := false

	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--help":
			fmt.Print(usage)
			return nil
		case "--CLIF":
			clif = true
		case "--output":
			i++
			if i >= len(rest) {
				return fmt.Errorf("--output requires a path")
			}
			output = rest[i]
		default:
			if strings.HasPrefix(rest[i], "--") {
				return fmt.Errorf("unrecognized flag %q\n\n%s", rest[i], usage)
			}
			if input != "" {
				return fmt.Errorf("multiple input paths given: %q and %q", input, rest[i])
			}
			input = rest[i]
		}
	}
	if input == "" {
		return fmt.Errorf("no input path given\n\n%s", usage)
	}

	builder := jit.NewBuilder()

	if strings.HasSuffix(input, ".yaml") || strings.HasSuffix(input, ".yml") {
		cfg, err := jitter.LoadConfig(input)
		if err != nil {
			return err
		}
		for _, source := range cfg.Sources {
			builder.WithSourcePath(source)
		}
		for _, cb := range cfg.Callbacks() {
			builder.WithLexerCallback(cb.Pattern, cb.Replacement)
		}
		for _, ext := range cfg.ExtensionConfigs() {
			builder.WithExtensionPath(ext.Path, ext.Inputs...)
		}
		if cfg.Output != "" && output == "" {
			output = cfg.Output
		}
		clif = clif || cfg.CLIF
	} else {
		paths, err := expandInput(input)
		if err != nil {
			return err
		}
		for _, path := range paths {
			builder.WithSourcePath(path)
		}
	}

	var irOut io.Writer
	var outFile *os.File
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		outFile = f
		irOut = f
	} else if clif {
		irOut = os.Stdout
	}
	if irOut != nil {
		builder.WithIRWriter(irOut)
	}

	ctx, err := builder.Build()
	if outFile != nil {
		_ = outFile.Close()
	}
	if err != nil {
		return err
	}
	defer ctx.Close()

	return nil
}

// expandInput resolves a literal path or a doublestar glob.
func expandInput(input string) ([]string, error) {
	if !strings.ContainsAny(input, "*?[{") {
		return []string{input}, nil
	}
	paths, err := doublestar.FilepathGlob(input)
	if err != nil {
		return nil, fmt.Errorf("bad input pattern %q: %w", input, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match %q", input)
	}
	return paths, nil
}
