package backend

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Module owns a set of declared functions and the machine code they
// finalize into. The lifecycle is: declare every function, define the
// local ones, then FinalizeDefinitions exactly once. Finalized code
// lives until Free; pointers returned by FinalizedFunction are
// invalidated when the module's memory is released.
type Module struct {
	funcs  []*funcEntry
	byName map[string]FuncID

	symbols map[string]unsafe.Pointer

	mem       *execMemory
	finalized bool
}

type funcEntry struct {
	name    string
	linkage Linkage
	sig     Signature

	ir      *Function
	defined bool

	// Populated by finalization.
	code       []byte
	relocs     []reloc
	codeOffset int
	addr       unsafe.Pointer
}

// reloc is a call-site fixup recorded during emission.
type reloc struct {
	// offset of the 8-byte absolute address within the code buffer
	offset int
	target FuncID
	kind   relocKind
}

type relocKind uint8

const (
	relocAbs64 relocKind = iota
)

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{
		byName:  make(map[string]FuncID),
		symbols: make(map[string]unsafe.Pointer),
	}
}

// PointerType returns the target's pointer-sized integer type.
func (m *Module) PointerType() Type {
	return I64
}

// MakeSignature returns an empty signature to populate.
func (m *Module) MakeSignature() Signature {
	return Signature{}
}

// Symbol registers a host symbol that import-linked functions resolve
// against at finalization. Registration must happen before
// FinalizeDefinitions.
func (m *Module) Symbol(name string, ptr unsafe.Pointer) {
	m.symbols[name] = ptr
}

// DeclareFunction assigns a FuncID to a named function. Declaring the
// same name twice is an error.
func (m *Module) DeclareFunction(name string, linkage Linkage, sig Signature) (FuncID, error) {
	if _, exists := m.byName[name]; exists {
		return 0, fmt.Errorf("function `%s` was already declared", name)
	}
	id := FuncID(len(m.funcs))
	m.funcs = append(m.funcs, &funcEntry{name: name, linkage: linkage, sig: sig})
	m.byName[name] = id
	return id, nil
}

// DeclareFuncInFunc makes a declared function callable from within
// fn, returning the FuncRef to pass to Call.
func (m *Module) DeclareFuncInFunc(id FuncID, fn *Function) FuncRef {
	entry := m.funcs[id]
	for i, ref := range fn.FuncRefs {
		if ref.ID == id {
			return FuncRef(i)
		}
	}
	ref := FuncRef(len(fn.FuncRefs))
	fn.FuncRefs = append(fn.FuncRefs, ExtFuncData{
		ID:        id,
		Name:      entry.name,
		Signature: entry.sig,
	})
	return ref
}

// DefineFunction attaches IR to a declared local function.
func (m *Module) DefineFunction(id FuncID, fn *Function) error {
	if m.finalized {
		return fmt.Errorf("cannot define `%s` after finalization", m.funcs[id].name)
	}
	entry := m.funcs[id]
	if entry.linkage == LinkageImport {
		return fmt.Errorf("cannot define imported function `%s`", entry.name)
	}
	if entry.defined {
		return fmt.Errorf("function `%s` was already defined", entry.name)
	}
	entry.ir = fn
	entry.defined = true
	return nil
}

// FinalizeDefinitions lowers every defined function to machine code,
// lays the code out in one executable mapping, resolves local calls
// and imported symbols, and makes the result callable.
func (m *Module) FinalizeDefinitions() error {
	if m.finalized {
		return fmt.Errorf("module is already finalized")
	}
	if runtime.GOARCH != "amd64" {
		return fmt.Errorf("the JIT targets the host ISA only; %s is not supported (amd64 required)", runtime.GOARCH)
	}

	total := 0
	for _, entry := range m.funcs {
		if entry.linkage == LinkageImport {
			if _, ok := m.symbols[entry.name]; !ok {
				return fmt.Errorf("no symbol registered for imported function `%s`", entry.name)
			}
			continue
		}
		if !entry.defined {
			return fmt.Errorf("function `%s` was declared but never defined", entry.name)
		}

		code, relocs, err := emitAmd64(entry.ir)
		if err != nil {
			return fmt.Errorf("emit `%s`: %w", entry.name, err)
		}
		entry.code = code
		entry.relocs = relocs
		entry.codeOffset = total
		total += align16(len(code))
	}

	mem, err := allocExec(total)
	if err != nil {
		return fmt.Errorf("allocate executable memory: %w", err)
	}
	m.mem = mem

	base := mem.bytes()
	for _, entry := range m.funcs {
		if entry.linkage == LinkageImport {
			entry.addr = m.symbols[entry.name]
			continue
		}
		copy(base[entry.codeOffset:], entry.code)
	}

	// Resolve call sites now that every function has a final address.
	for _, entry := range m.funcs {
		if entry.linkage == LinkageImport {
			continue
		}
		for _, r := range entry.relocs {
			target := m.funcs[r.target]
			at := entry.codeOffset + r.offset
			switch r.kind {
			case relocAbs64:
				var addr uintptr
				if target.linkage == LinkageImport {
					addr = uintptr(m.symbols[target.name])
				} else {
					addr = mem.addr() + uintptr(target.codeOffset)
				}
				putUint64(base[at:], uint64(addr))
			}
		}
	}

	if err := mem.makeExecutable(); err != nil {
		return fmt.Errorf("mark code executable: %w", err)
	}

	for _, entry := range m.funcs {
		if entry.linkage != LinkageImport {
			entry.addr = unsafe.Pointer(mem.addr() + uintptr(entry.codeOffset))
		}
	}

	m.finalized = true
	return nil
}

// FinalizedFunction returns the native entry point of a function. The
// pointer is valid only while the module is alive.
func (m *Module) FinalizedFunction(id FuncID) (unsafe.Pointer, error) {
	if !m.finalized {
		return nil, fmt.Errorf("module is not finalized")
	}
	return m.funcs[id].addr, nil
}

// Free releases the module's executable memory, invalidating every
// pointer previously returned by FinalizedFunction.
func (m *Module) Free() error {
	if m.mem == nil {
		return nil
	}
	err := m.mem.release()
	m.mem = nil
	return err
}

func align16(n int) int {
	return (n + 15) &^ 15
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64(b []byte, v uint64) {
	putUint32(b, uint32(v))
	putUint32(b[4:], uint32(v>>32))
}
