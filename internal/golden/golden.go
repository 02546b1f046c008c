// Package golden provides a small framework for file-based golden
// tests: each input file in a corpus directory is paired with a
// `.out` file holding the expected result.
//
// Corpora can be "refreshed" to regenerate expectations by running
// the test with the environment variable named by Refresh set to a
// non-empty value.
package golden

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pmezard/go-difflib/difflib"
)

// Corpus describes a golden test corpus: table-driven tests where the
// table is the filesystem.
type Corpus struct {
	// Root of the corpus directory, relative to the test's package.
	Root string

	// Extension (without dot) of files that define a test case.
	Extension string

	// Environment variable that switches the corpus to refresh mode.
	Refresh string
}

// Run executes the corpus. test maps one input file to its output
// text, which is compared against the `.out` file next to the input.
func (c Corpus) Run(t *testing.T, test func(t *testing.T, path, input string) string) {
	pattern := filepath.Join(c.Root, "**", "*."+c.Extension)
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		t.Fatalf("golden: bad corpus pattern %q: %v", pattern, err)
	}
	if len(paths) == 0 {
		t.Fatalf("golden: no files match %q", pattern)
	}

	refresh := c.Refresh != "" && os.Getenv(c.Refresh) != ""

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			input, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}

			got := test(t, path, string(input))
			outPath := path + ".out"

			if refresh {
				if err := os.WriteFile(outPath, []byte(got), 0o666); err != nil {
					t.Fatal(err)
				}
				return
			}

			want, err := os.ReadFile(outPath)
			if err != nil {
				t.Fatalf("golden: missing expectation %q (set %s=1 to generate): %v", outPath, c.Refresh, err)
			}

			if got != string(want) {
				diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
					A:        difflib.SplitLines(string(want)),
					B:        difflib.SplitLines(got),
					FromFile: outPath,
					ToFile:   "got",
					Context:  3,
				})
				t.Errorf("golden mismatch for %s:\n%s", path, diff)
			}
		})
	}
}
