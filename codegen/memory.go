package codegen

import (
	"fmt"

	"github.com/swerdloj/jitter/backend"
)

// MemoryMap associates backend variables with source-level names and
// stack slots with the addresses they produced. Variable bindings are
// scoped so that block-local shadowing resolves the way the validator
// resolved it.
type MemoryMap struct {
	// Each element is one lexical scope of name -> variable bindings.
	scopes []map[string]backend.Variable

	// Explicit allocations, keyed by the address value they yielded.
	stackSlots map[backend.Value]backend.StackSlot

	structReturnSlot    backend.StackSlot
	hasStructReturnSlot bool

	// Each variable requires a unique index; incremented per create.
	index uint32
}

// NewMemoryMap returns an empty map with one root scope.
func NewMemoryMap() *MemoryMap {
	return &MemoryMap{
		scopes:     []map[string]backend.Variable{make(map[string]backend.Variable)},
		stackSlots: make(map[backend.Value]backend.StackSlot),
	}
}

// PushScope opens a nested variable scope.
func (m *MemoryMap) PushScope() {
	m.scopes = append(m.scopes, make(map[string]backend.Variable))
}

// PopScope closes the innermost scope.
func (m *MemoryMap) PopScope() {
	m.scopes = m.scopes[:len(m.scopes)-1]
}

// CreateVariable allocates a fresh backend variable bound to name in
// the innermost scope.
func (m *MemoryMap) CreateVariable(name string) backend.Variable {
	v := backend.Variable(m.index)
	m.index++
	m.scopes[len(m.scopes)-1][name] = v
	return v
}

// GetVariable resolves a name from the innermost scope outward.
func (m *MemoryMap) GetVariable(name string) (backend.Variable, error) {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if v, ok := m.scopes[i][name]; ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("variable `%s` does not exist", name)
}

// RegisterStackSlot records the slot behind an address value.
func (m *MemoryMap) RegisterStackSlot(addr backend.Value, slot backend.StackSlot) {
	m.stackSlots[addr] = slot
}

// GetStackSlot returns the slot that produced an address value.
func (m *MemoryMap) GetStackSlot(addr backend.Value) (backend.StackSlot, error) {
	slot, ok := m.stackSlots[addr]
	if !ok {
		return 0, fmt.Errorf("address `v%d` not found", addr)
	}
	return slot, nil
}

// RegisterStructReturnSlot records the function's return slot.
func (m *MemoryMap) RegisterStructReturnSlot(slot backend.StackSlot) {
	m.structReturnSlot = slot
	m.hasStructReturnSlot = true
}

// StructReturnSlot returns the function's return slot, if one exists.
func (m *MemoryMap) StructReturnSlot() (backend.StackSlot, bool) {
	return m.structReturnSlot, m.hasStructReturnSlot
}
