package backend

import (
	"fmt"
	"math"
)

// The amd64 lowering is a linear walk over the straight-line IR.
// Every SSA value gets an 8-byte home in the frame; instructions load
// their operands from homes into scratch registers, compute, and
// store the result back. No values live in registers across
// instructions, so calls need no spilling.
//
// Frame layout, growing down from rbp:
//
//	[rbp-8*1 .. rbp-8*n]  value homes
//	[below the homes]     IR stack slots, each padded to a multiple of 16 bytes
//
// The total frame size is rounded up to 16 bytes.

const (
	rax = 0
	rcx = 1
	rdx = 2
	rsp = 4
	rbp = 5
	rsi = 6
	rdi = 7
	r8  = 8
	r9  = 9
)

// System V integer argument registers, in order.
var argRegs = [...]int{rdi, rsi, rdx, rcx, r8, r9}

type emitter struct {
	fn     *Function
	buf    []byte
	relocs []reloc

	slotDisp []int32
}

// emitAmd64 lowers a function's IR to amd64 machine code, returning
// the code bytes and the call-site relocations to resolve at layout
// time.
func emitAmd64(fn *Function) ([]byte, []reloc, error) {
	e := &emitter{fn: fn}

	if len(fn.Signature.Params) > len(argRegs) {
		return nil, nil, fmt.Errorf("at most %d parameters are supported", len(argRegs))
	}

	// Assign frame displacements: homes first, then stack slots.
	frame := 8 * len(fn.valueTypes)
	e.slotDisp = make([]int32, len(fn.Slots))
	for i, slot := range fn.Slots {
		frame += alignUp(int(slot.Size), 16)
		e.slotDisp[i] = int32(-frame)
	}
	frame = alignUp(frame, 16)

	// Prologue.
	e.emit(0x55)             // push rbp
	e.emit(0x48, 0x89, 0xE5) // mov rbp, rsp
	if frame > 0 {
		e.emit(0x48, 0x81, 0xEC) // sub rsp, imm32
		e.u32(uint32(frame))
	}

	// Spill incoming parameters to their homes.
	for i, v := range fn.entryParams {
		e.storeHome(v, argRegs[i])
	}

	returned := false
	for i := range fn.Instrs {
		instr := &fn.Instrs[i]
		if err := e.instruction(instr); err != nil {
			return nil, nil, err
		}
		if instr.Op == OpReturn {
			returned = true
		}
	}
	if !returned {
		e.epilogue()
	}

	return e.buf, e.relocs, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func (e *emitter) emit(bytes ...byte) {
	e.buf = append(e.buf, bytes...)
}

func (e *emitter) u32(v uint32) {
	e.emit(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (e *emitter) u64(v uint64) {
	e.u32(uint32(v))
	e.u32(uint32(v >> 32))
}

func modrm(mod, reg, rm int) byte {
	return byte(mod<<6 | (reg&7)<<3 | rm&7)
}

// rex builds a REX prefix. w selects 64-bit operands; reg and rm
// contribute their high bits.
func rex(w bool, reg, rm int) byte {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if reg > 7 {
		b |= 0x04
	}
	if rm > 7 {
		b |= 0x01
	}
	return b
}

func (e *emitter) homeDisp(v Value) int32 {
	return int32(-8 * (int(v) + 1))
}

// memOp emits opcode bytes and a [base+disp32] operand. base must not
// be rsp (which would need a SIB byte).
func (e *emitter) memOp(w bool, opcode []byte, reg, base int, disp int32) {
	e.emit(rex(w, reg, base))
	e.emit(opcode...)
	e.emit(modrm(2, reg, base))
	e.u32(uint32(disp))
}

// loadHome loads a value's 8-byte home into a register.
func (e *emitter) loadHome(reg int, v Value) {
	e.memOp(true, []byte{0x8B}, reg, rbp, e.homeDisp(v))
}

// storeHome spills a register into a value's home.
func (e *emitter) storeHome(v Value, reg int) {
	e.memOp(true, []byte{0x89}, reg, rbp, e.homeDisp(v))
}

// lea reg, [base+disp32]
func (e *emitter) lea(reg, base int, disp int32) {
	e.memOp(true, []byte{0x8D}, reg, base, disp)
}

// movImm64 loads a 64-bit immediate into a register.
func (e *emitter) movImm64(reg int, imm uint64) {
	e.emit(rex(true, 0, reg), 0xB8+byte(reg&7))
	e.u64(imm)
}

// loadMem loads size bytes from [base+disp] into rax, zero-extended.
func (e *emitter) loadMem(size int, base int, disp int32) error {
	switch size {
	case 1:
		e.memOp(true, []byte{0x0F, 0xB6}, rax, base, disp) // movzx
	case 2:
		e.memOp(true, []byte{0x0F, 0xB7}, rax, base, disp) // movzx
	case 4:
		e.memOp(false, []byte{0x8B}, rax, base, disp) // mov eax (zero-extends)
	case 8:
		e.memOp(true, []byte{0x8B}, rax, base, disp)
	default:
		return fmt.Errorf("unsupported load width %d", size)
	}
	return nil
}

// storeMem stores the low size bytes of src into [base+disp].
func (e *emitter) storeMem(size int, base int, disp int32, src int) error {
	switch size {
	case 1:
		// REX (without W) so sil/dil-class encodings stay sane
		e.emit(rex(false, src, base), 0x88, modrm(2, src, base))
		e.u32(uint32(disp))
	case 2:
		e.emit(0x66)
		e.emit(rex(false, src, base), 0x89, modrm(2, src, base))
		e.u32(uint32(disp))
	case 4:
		e.memOp(false, []byte{0x89}, src, base, disp)
	case 8:
		e.memOp(true, []byte{0x89}, src, base, disp)
	default:
		return fmt.Errorf("unsupported store width %d", size)
	}
	return nil
}

// signExtend sign-extends the low width bytes of reg in place.
func (e *emitter) signExtend(reg int, width int) error {
	switch width {
	case 1:
		e.emit(rex(true, reg, reg), 0x0F, 0xBE, modrm(3, reg, reg))
	case 2:
		e.emit(rex(true, reg, reg), 0x0F, 0xBF, modrm(3, reg, reg))
	case 4:
		e.emit(rex(true, reg, reg), 0x63, modrm(3, reg, reg)) // movsxd
	case 8:
		// already full width
	default:
		return fmt.Errorf("unsupported sign-extension width %d", width)
	}
	return nil
}

// zeroExtend zero-extends the low width bytes of reg in place.
func (e *emitter) zeroExtend(reg int, width int) error {
	switch width {
	case 1:
		e.emit(rex(true, reg, reg), 0x0F, 0xB6, modrm(3, reg, reg))
	case 2:
		e.emit(rex(true, reg, reg), 0x0F, 0xB7, modrm(3, reg, reg))
	case 4:
		// mov reg32, reg32 zero-extends
		e.emit(rex(false, reg, reg), 0x89, modrm(3, reg, reg))
	case 8:
		// already full width
	default:
		return fmt.Errorf("unsupported zero-extension width %d", width)
	}
	return nil
}

func (e *emitter) epilogue() {
	e.emit(0xC9) // leave
	e.emit(0xC3) // ret
}

func (e *emitter) checkWidth(t Type) error {
	if t == I128 {
		return fmt.Errorf("i128 values are not supported by the amd64 backend")
	}
	if t == INVALID {
		return fmt.Errorf("instruction with invalid type")
	}
	return nil
}

func (e *emitter) instruction(instr *Instruction) error {
	switch instr.Op {
	case OpIconst:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.movImm64(rax, uint64(instr.Imm))
		e.storeHome(instr.Result, rax)

	case OpF32const:
		e.movImm64(rax, uint64(math.Float32bits(float32(instr.Fimm))))
		e.storeHome(instr.Result, rax)

	case OpF64const:
		e.movImm64(rax, math.Float64bits(instr.Fimm))
		e.storeHome(instr.Result, rax)

	case OpLoad:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rcx, instr.Args[0])
		if err := e.loadMem(instr.Type.Bytes(), rcx, instr.Offset); err != nil {
			return err
		}
		e.storeHome(instr.Result, rax)

	case OpStore:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rax, instr.Args[0])
		e.loadHome(rcx, instr.Args[1])
		return e.storeMem(instr.Type.Bytes(), rcx, instr.Offset, rax)

	case OpStackStore:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rax, instr.Args[0])
		disp := e.slotDisp[instr.Slot] + instr.Offset
		return e.storeMem(instr.Type.Bytes(), rbp, disp, rax)

	case OpStackAddr:
		e.lea(rax, rbp, e.slotDisp[instr.Slot]+instr.Offset)
		e.storeHome(instr.Result, rax)

	case OpIaddImm:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rax, instr.Args[0])
		if instr.Imm >= math.MinInt32 && instr.Imm <= math.MaxInt32 {
			e.emit(0x48, 0x81, 0xC0) // add rax, imm32
			e.u32(uint32(int32(instr.Imm)))
		} else {
			e.movImm64(rcx, uint64(instr.Imm))
			e.emit(0x48, 0x01, 0xC8) // add rax, rcx
		}
		e.storeHome(instr.Result, rax)

	case OpIadd, OpIsub, OpImul:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rax, instr.Args[0])
		e.loadHome(rcx, instr.Args[1])
		switch instr.Op {
		case OpIadd:
			e.emit(0x48, 0x01, 0xC8) // add rax, rcx
		case OpIsub:
			e.emit(0x48, 0x29, 0xC8) // sub rax, rcx
		case OpImul:
			e.emit(0x48, 0x0F, 0xAF, 0xC1) // imul rax, rcx
		}
		e.storeHome(instr.Result, rax)

	case OpSdiv:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rax, instr.Args[0])
		e.loadHome(rcx, instr.Args[1])
		width := instr.Type.Bytes()
		if err := e.signExtend(rax, width); err != nil {
			return err
		}
		if err := e.signExtend(rcx, width); err != nil {
			return err
		}
		e.emit(0x48, 0x99)       // cqo
		e.emit(0x48, 0xF7, 0xF9) // idiv rcx
		e.storeHome(instr.Result, rax)

	case OpUdiv:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rax, instr.Args[0])
		e.loadHome(rcx, instr.Args[1])
		width := instr.Type.Bytes()
		if err := e.zeroExtend(rax, width); err != nil {
			return err
		}
		if err := e.zeroExtend(rcx, width); err != nil {
			return err
		}
		e.emit(0x31, 0xD2)       // xor edx, edx
		e.emit(0x48, 0xF7, 0xF1) // div rcx
		e.storeHome(instr.Result, rax)

	case OpFadd, OpFsub, OpFmul, OpFdiv:
		return e.floatBinary(instr)

	case OpIneg:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rax, instr.Args[0])
		e.emit(0x48, 0xF7, 0xD8) // neg rax
		e.storeHome(instr.Result, rax)

	case OpFneg:
		e.loadHome(rax, instr.Args[0])
		if instr.Type == F64 {
			e.movImm64(rcx, 0x8000_0000_0000_0000)
			e.emit(0x48, 0x31, 0xC8) // xor rax, rcx
		} else {
			e.emit(0x35) // xor eax, imm32
			e.u32(0x8000_0000)
		}
		e.storeHome(instr.Result, rax)

	case OpBxorImm:
		if err := e.checkWidth(instr.Type); err != nil {
			return err
		}
		e.loadHome(rax, instr.Args[0])
		e.emit(0x48, 0x81, 0xF0) // xor rax, imm32
		e.u32(uint32(int32(instr.Imm)))
		e.storeHome(instr.Result, rax)

	case OpCall:
		if len(instr.Args) > len(argRegs) {
			return fmt.Errorf("at most %d call arguments are supported", len(argRegs))
		}
		for i, arg := range instr.Args {
			e.loadHome(argRegs[i], arg)
		}
		// mov rax, imm64 with the callee's final address patched in
		// at layout time, then an indirect call. One shape serves
		// both local and imported targets.
		e.emit(rex(true, 0, rax), 0xB8)
		e.relocs = append(e.relocs, reloc{
			offset: len(e.buf),
			target: e.fn.FuncRefs[instr.Callee].ID,
			kind:   relocAbs64,
		})
		e.u64(0)
		e.emit(0xFF, 0xD0) // call rax
		if instr.Result != NoValue {
			e.storeHome(instr.Result, rax)
		}

	case OpReturn:
		if len(instr.Args) > 0 {
			e.loadHome(rax, instr.Args[0])
		}
		e.epilogue()

	default:
		return fmt.Errorf("unsupported opcode %s", instr.Op)
	}

	return nil
}

// floatBinary lowers fadd/fsub/fmul/fdiv through xmm0/xmm1.
func (e *emitter) floatBinary(instr *Instruction) error {
	e.loadHome(rax, instr.Args[0])
	e.loadHome(rcx, instr.Args[1])

	wide := instr.Type == F64
	if wide {
		e.emit(0x66, 0x48, 0x0F, 0x6E, 0xC0) // movq xmm0, rax
		e.emit(0x66, 0x48, 0x0F, 0x6E, 0xC9) // movq xmm1, rcx
	} else {
		e.emit(0x66, 0x0F, 0x6E, 0xC0) // movd xmm0, eax
		e.emit(0x66, 0x0F, 0x6E, 0xC9) // movd xmm1, ecx
	}

	prefix := byte(0xF3) // scalar single
	if wide {
		prefix = 0xF2 // scalar double
	}
	var op byte
	switch instr.Op {
	case OpFadd:
		op = 0x58
	case OpFsub:
		op = 0x5C
	case OpFmul:
		op = 0x59
	case OpFdiv:
		op = 0x5E
	}
	e.emit(prefix, 0x0F, op, 0xC1) // op xmm0, xmm1

	if wide {
		e.emit(0x66, 0x48, 0x0F, 0x7E, 0xC0) // movq rax, xmm0
	} else {
		e.emit(0x66, 0x0F, 0x7E, 0xC0) // movd eax, xmm0
	}
	e.storeHome(instr.Result, rax)
	return nil
}
