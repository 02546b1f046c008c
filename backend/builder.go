package backend

import "fmt"

// FunctionBuilder constructs a Function's IR. Usage mirrors the
// classic SSA-builder shape: create the entry block, append the
// signature's parameters to it, declare and define variables, then
// emit instructions through Ins().
type FunctionBuilder struct {
	fn *Function

	vars map[Variable]*varState

	blockCreated  bool
	paramsBound   bool
	currentBlock  Block
	blockSwitched bool
	finalized     bool
}

type varState struct {
	typ     Type
	def     Value
	defined bool
}

// NewFunctionBuilder wraps a function for construction.
func NewFunctionBuilder(fn *Function) *FunctionBuilder {
	return &FunctionBuilder{
		fn:   fn,
		vars: make(map[Variable]*varState),
	}
}

// Func returns the function under construction.
func (b *FunctionBuilder) Func() *Function {
	return b.fn
}

// CreateBlock creates the function's entry block. The IR is
// straight-line, so only a single block exists.
func (b *FunctionBuilder) CreateBlock() Block {
	if b.blockCreated {
		panic("backend: straight-line IR supports a single block")
	}
	b.blockCreated = true
	return 0
}

// AppendBlockParamsForFunctionParams creates one block parameter
// value per signature parameter.
func (b *FunctionBuilder) AppendBlockParamsForFunctionParams(block Block) {
	if b.paramsBound {
		return
	}
	b.paramsBound = true
	for _, param := range b.fn.Signature.Params {
		b.fn.entryParams = append(b.fn.entryParams, b.fn.newValue(param.Type))
	}
}

// BlockParams returns the block's parameter values.
func (b *FunctionBuilder) BlockParams(block Block) []Value {
	return b.fn.entryParams
}

// SwitchToBlock makes block the insertion point.
func (b *FunctionBuilder) SwitchToBlock(block Block) {
	b.currentBlock = block
	b.blockSwitched = true
}

// SealBlock marks a block as having no further predecessors. The
// entry block has none, so this is bookkeeping only.
func (b *FunctionBuilder) SealBlock(block Block) {}

// DeclareVar declares a variable with its IR type.
func (b *FunctionBuilder) DeclareVar(v Variable, t Type) {
	b.vars[v] = &varState{typ: t}
}

// DefVar sets the variable's current definition.
func (b *FunctionBuilder) DefVar(v Variable, val Value) {
	state, ok := b.vars[v]
	if !ok {
		panic(fmt.Sprintf("backend: def of undeclared variable %d", v))
	}
	state.def = val
	state.defined = true
}

// UseVar returns the variable's current definition. With no branches
// there is exactly one reaching definition.
func (b *FunctionBuilder) UseVar(v Variable) Value {
	state, ok := b.vars[v]
	if !ok || !state.defined {
		panic(fmt.Sprintf("backend: use of undefined variable %d", v))
	}
	return state.def
}

// CreateStackSlot allocates a stack slot in the function frame.
func (b *FunctionBuilder) CreateStackSlot(data StackSlotData) StackSlot {
	slot := StackSlot(len(b.fn.Slots))
	b.fn.Slots = append(b.fn.Slots, data)
	return slot
}

// InstResults returns the values produced by an instruction.
func (b *FunctionBuilder) InstResults(inst Inst) []Value {
	instr := b.fn.Instrs[inst]
	if instr.Result == NoValue {
		return nil
	}
	return []Value{instr.Result}
}

// Finalize marks construction complete.
func (b *FunctionBuilder) Finalize() {
	b.finalized = true
}

// Ins returns the instruction builder for the current block.
func (b *FunctionBuilder) Ins() InstBuilder {
	return InstBuilder{b}
}

// InstBuilder appends instructions to the function under
// construction.
type InstBuilder struct {
	b *FunctionBuilder
}

func (ins InstBuilder) push(instr Instruction) Inst {
	fn := ins.b.fn
	fn.Instrs = append(fn.Instrs, instr)
	return Inst(len(fn.Instrs) - 1)
}

func (ins InstBuilder) pushWithResult(instr Instruction, t Type) Value {
	result := ins.b.fn.newValue(t)
	instr.Result = result
	ins.push(instr)
	return result
}

// Iconst materializes an integer constant of the given type.
func (ins InstBuilder) Iconst(t Type, imm int64) Value {
	return ins.pushWithResult(Instruction{Op: OpIconst, Type: t, Imm: imm, Result: NoValue}, t)
}

// F32const materializes a 32-bit float constant.
func (ins InstBuilder) F32const(f float32) Value {
	return ins.pushWithResult(Instruction{Op: OpF32const, Type: F32, Fimm: float64(f), Result: NoValue}, F32)
}

// F64const materializes a 64-bit float constant.
func (ins InstBuilder) F64const(f float64) Value {
	return ins.pushWithResult(Instruction{Op: OpF64const, Type: F64, Fimm: f, Result: NoValue}, F64)
}

// Load reads a value of type t from addr+offset.
func (ins InstBuilder) Load(t Type, flags MemFlags, addr Value, offset int32) Value {
	return ins.pushWithResult(Instruction{Op: OpLoad, Type: t, Args: []Value{addr}, Offset: offset, Result: NoValue}, t)
}

// Store writes val to addr+offset. The width comes from val's type.
func (ins InstBuilder) Store(flags MemFlags, val, addr Value, offset int32) {
	ins.push(Instruction{Op: OpStore, Type: ins.b.fn.ValueType(val), Args: []Value{val, addr}, Offset: offset, Result: NoValue})
}

// StackStore writes val into a stack slot at the given offset.
func (ins InstBuilder) StackStore(val Value, slot StackSlot, offset int32) {
	ins.push(Instruction{Op: OpStackStore, Type: ins.b.fn.ValueType(val), Args: []Value{val}, Slot: slot, Offset: offset, Result: NoValue})
}

// StackAddr yields the address of a stack slot plus offset.
func (ins InstBuilder) StackAddr(t Type, slot StackSlot, offset int32) Value {
	return ins.pushWithResult(Instruction{Op: OpStackAddr, Type: t, Slot: slot, Offset: offset, Result: NoValue}, t)
}

// IaddImm adds an immediate to an integer value.
func (ins InstBuilder) IaddImm(v Value, imm int64) Value {
	t := ins.b.fn.ValueType(v)
	return ins.pushWithResult(Instruction{Op: OpIaddImm, Type: t, Args: []Value{v}, Imm: imm, Result: NoValue}, t)
}

func (ins InstBuilder) binary(op Opcode, a, b Value) Value {
	t := ins.b.fn.ValueType(a)
	return ins.pushWithResult(Instruction{Op: op, Type: t, Args: []Value{a, b}, Result: NoValue}, t)
}

func (ins InstBuilder) Iadd(a, b Value) Value { return ins.binary(OpIadd, a, b) }
func (ins InstBuilder) Isub(a, b Value) Value { return ins.binary(OpIsub, a, b) }
func (ins InstBuilder) Imul(a, b Value) Value { return ins.binary(OpImul, a, b) }
func (ins InstBuilder) Sdiv(a, b Value) Value { return ins.binary(OpSdiv, a, b) }
func (ins InstBuilder) Udiv(a, b Value) Value { return ins.binary(OpUdiv, a, b) }
func (ins InstBuilder) Fadd(a, b Value) Value { return ins.binary(OpFadd, a, b) }
func (ins InstBuilder) Fsub(a, b Value) Value { return ins.binary(OpFsub, a, b) }
func (ins InstBuilder) Fmul(a, b Value) Value { return ins.binary(OpFmul, a, b) }
func (ins InstBuilder) Fdiv(a, b Value) Value { return ins.binary(OpFdiv, a, b) }

// Ineg negates an integer value.
func (ins InstBuilder) Ineg(v Value) Value {
	t := ins.b.fn.ValueType(v)
	return ins.pushWithResult(Instruction{Op: OpIneg, Type: t, Args: []Value{v}, Result: NoValue}, t)
}

// Fneg negates a float value.
func (ins InstBuilder) Fneg(v Value) Value {
	t := ins.b.fn.ValueType(v)
	return ins.pushWithResult(Instruction{Op: OpFneg, Type: t, Args: []Value{v}, Result: NoValue}, t)
}

// BxorImm xors an integer value with an immediate.
func (ins InstBuilder) BxorImm(v Value, imm int64) Value {
	t := ins.b.fn.ValueType(v)
	return ins.pushWithResult(Instruction{Op: OpBxorImm, Type: t, Args: []Value{v}, Imm: imm, Result: NoValue}, t)
}

// Call invokes a callee previously declared in this function. Use
// InstResults to obtain the returned value, if any.
func (ins InstBuilder) Call(callee FuncRef, args []Value) Inst {
	fn := ins.b.fn
	instr := Instruction{Op: OpCall, Args: args, Callee: callee, Result: NoValue}
	if returns := fn.FuncRefs[callee].Signature.Returns; len(returns) > 0 {
		instr.Type = returns[0].Type
		instr.Result = fn.newValue(returns[0].Type)
	}
	ins.push(instr)
	return Inst(len(fn.Instrs) - 1)
}

// Return terminates the function, yielding the given values.
func (ins InstBuilder) Return(args []Value) {
	ins.push(Instruction{Op: OpReturn, Args: args, Result: NoValue})
}
