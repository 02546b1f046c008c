package jitter

import (
	"fmt"
	"os"

	"github.com/swerdloj/jitter/lexer"
)

// Resolver resolves path names into source code. This is how the
// compiler loads the files to be compiled as well as everything they
// `#include`.
type Resolver interface {
	FindFileByPath(path string) (SearchResult, error)
}

// SearchResult is what a resolver finds for a path.
type SearchResult struct {
	// The file's source text.
	Source string
}

// ResolverFunc adapts a function into a Resolver.
type ResolverFunc func(path string) (SearchResult, error)

var _ Resolver = ResolverFunc(nil)

func (f ResolverFunc) FindFileByPath(path string) (SearchResult, error) {
	return f(path)
}

// CompositeResolver tries each resolver in order, returning the first
// success. If all fail, the first error is returned.
type CompositeResolver []Resolver

var _ Resolver = CompositeResolver(nil)

func (c CompositeResolver) FindFileByPath(path string) (SearchResult, error) {
	if len(c) == 0 {
		return SearchResult{}, fmt.Errorf("could not resolve path %q: no resolvers configured", path)
	}
	var firstErr error
	for _, r := range c {
		result, err := r.FindFileByPath(path)
		if err == nil {
			return result, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return SearchResult{}, firstErr
}

// SourceResolver reads source files from the operating system.
type SourceResolver struct{}

var _ Resolver = SourceResolver{}

func (SourceResolver) FindFileByPath(path string) (SearchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Source: string(data)}, nil
}

// MapResolver serves sources from memory, keyed by path. Useful for
// tests and embedded sources.
type MapResolver map[string]string

var _ Resolver = MapResolver(nil)

func (m MapResolver) FindFileByPath(path string) (SearchResult, error) {
	source, ok := m[path]
	if !ok {
		return SearchResult{}, fmt.Errorf("no source registered for path %q", path)
	}
	return SearchResult{Source: source}, nil
}

// readFileFrom exposes a resolver as the lexer's pure read interface,
// so `#include` goes through the same resolution as top-level files.
func readFileFrom(r Resolver) lexer.ReadFile {
	return func(path string) (string, error) {
		result, err := r.FindFileByPath(path)
		if err != nil {
			return "", err
		}
		return result.Source, nil
	}
}
