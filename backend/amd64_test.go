package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emitForTest(t *testing.T, fn *Function) ([]byte, []reloc) {
	t.Helper()
	code, relocs, err := emitAmd64(fn)
	require.NoError(t, err)
	return code, relocs
}

func TestEmitPrologueAndEpilogue(t *testing.T) {
	fn := NewFunction(pointerSig(0, false))
	b := NewFunctionBuilder(fn)
	b.CreateBlock()
	b.Ins().Return(nil)

	code, relocs := emitForTest(t, fn)
	assert.Empty(t, relocs)

	// push rbp; mov rbp, rsp
	require.GreaterOrEqual(t, len(code), 6)
	assert.Equal(t, []byte{0x55, 0x48, 0x89, 0xE5}, code[:4])
	// leave; ret
	assert.Equal(t, []byte{0xC9, 0xC3}, code[len(code)-2:])
}

func TestEmitSpillsParameters(t *testing.T) {
	fn := NewFunction(pointerSig(2, false))
	b := NewFunctionBuilder(fn)
	entry := b.CreateBlock()
	b.AppendBlockParamsForFunctionParams(entry)
	b.Ins().Return(nil)

	code, _ := emitForTest(t, fn)

	// Each parameter spills from its System V register to its home:
	// mov [rbp-8], rdi and mov [rbp-16], rsi.
	spill0 := []byte{0x48, 0x89, 0xBD, 0xF8, 0xFF, 0xFF, 0xFF}
	spill1 := []byte{0x48, 0x89, 0xB5, 0xF0, 0xFF, 0xFF, 0xFF}
	assert.Contains(t, string(code), string(spill0))
	assert.Contains(t, string(code), string(spill1))
}

func TestEmitCallRecordsReloc(t *testing.T) {
	m := NewModule()
	calleeID, err := m.DeclareFunction("callee", LinkageLocal, pointerSig(0, true))
	require.NoError(t, err)

	fn := NewFunction(pointerSig(0, false))
	b := NewFunctionBuilder(fn)
	b.CreateBlock()
	ref := m.DeclareFuncInFunc(calleeID, fn)
	b.Ins().Call(ref, nil)
	b.Ins().Return(nil)

	code, relocs := emitForTest(t, fn)
	require.Len(t, relocs, 1)
	assert.Equal(t, calleeID, relocs[0].target)
	assert.Equal(t, relocAbs64, relocs[0].kind)

	// The reloc points at the imm64 of a `mov rax, imm64`, which is
	// followed by `call rax`.
	at := relocs[0].offset
	assert.Equal(t, []byte{0x48, 0xB8}, code[at-2:at])
	assert.Equal(t, []byte{0xFF, 0xD0}, code[at+8:at+10])
	assert.Equal(t, make([]byte, 8), code[at:at+8], "address patched at layout time")
}

func TestEmitRejectsI128(t *testing.T) {
	fn := NewFunction(Signature{})
	b := NewFunctionBuilder(fn)
	b.CreateBlock()
	b.Ins().Iconst(I128, 1)
	b.Ins().Return(nil)

	_, _, err := emitAmd64(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i128")
}

func TestEmitTooManyParameters(t *testing.T) {
	fn := NewFunction(pointerSig(7, false))
	_, _, err := emitAmd64(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameters")
}

func TestEmitFrameIsAligned(t *testing.T) {
	fn := NewFunction(pointerSig(1, false))
	b := NewFunctionBuilder(fn)
	entry := b.CreateBlock()
	b.AppendBlockParamsForFunctionParams(entry)
	b.CreateStackSlot(StackSlotData{Kind: ExplicitSlot, Size: 3})
	b.Ins().Return(nil)

	code, _ := emitForTest(t, fn)

	// sub rsp, imm32 directly after the frame setup; the immediate
	// must be 16-byte aligned.
	require.Equal(t, []byte{0x48, 0x81, 0xEC}, code[4:7])
	frame := uint32(code[7]) | uint32(code[8])<<8 | uint32(code[9])<<16 | uint32(code[10])<<24
	assert.Zero(t, frame%16)
	// one 8-byte home + one slot rounded to 16
	assert.Equal(t, uint32(32), frame)
}
