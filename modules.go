package jitter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocateModule maps a `use` path to a source file on disk, relative
// to the file that declared it.
//
// For rootPath "src/main.jitter" and path ["geometry", "circle"], the
// segments walk directories under src/ until a segment resolves to a
// `.jitter` file: src/geometry/circle.jitter.
//
// `use` declarations parse and resolve but are not yet linked into
// compilation.
func LocateModule(rootPath string, path []string) (string, error) {
	location := filepath.Dir(rootPath)

	for _, segment := range path {
		location = filepath.Join(location, segment)

		if info, err := os.Stat(location); err == nil && info.IsDir() {
			// Found a folder; keep walking.
			continue
		}

		candidate := location + ".jitter"
		if _, err := os.Stat(candidate); err == nil {
			// Found the target file.
			return candidate, nil
		}
	}

	return "", fmt.Errorf("could not locate module source: `%s`", DisplayModule(path))
}

// DisplayModule renders path segments ["a", "b", "c"] as "a::b::c".
func DisplayModule(path []string) string {
	return strings.Join(path, "::")
}
