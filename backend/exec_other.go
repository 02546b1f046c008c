//go:build !unix

package backend

import "errors"

type execMemory struct{}

func allocExec(size int) (*execMemory, error) {
	return nil, errors.New("executable memory is not supported on this platform")
}

func (e *execMemory) bytes() []byte { return nil }

func (e *execMemory) addr() uintptr { return 0 }

func (e *execMemory) makeExecutable() error { return nil }

func (e *execMemory) release() error { return nil }
