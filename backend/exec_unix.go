//go:build unix

package backend

import (
	"syscall"
	"unsafe"
)

// execMemory is an anonymous mapping that holds finalized machine
// code. It is written while writable, then flipped to read+execute.
type execMemory struct {
	data []byte
}

func allocExec(size int) (*execMemory, error) {
	page := syscall.Getpagesize()
	if size < 1 {
		size = 1
	}
	n := (size + page - 1) &^ (page - 1)

	data, err := syscall.Mmap(-1, 0, n,
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &execMemory{data: data}, nil
}

func (e *execMemory) bytes() []byte {
	return e.data
}

func (e *execMemory) addr() uintptr {
	return uintptr(unsafe.Pointer(&e.data[0]))
}

func (e *execMemory) makeExecutable() error {
	return syscall.Mprotect(e.data, syscall.PROT_READ|syscall.PROT_EXEC)
}

func (e *execMemory) release() error {
	return syscall.Munmap(e.data)
}
