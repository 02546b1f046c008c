package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swerdloj/jitter/backend"
	"github.com/swerdloj/jitter/codegen"
	"github.com/swerdloj/jitter/lexer"
	"github.com/swerdloj/jitter/parser"
	"github.com/swerdloj/jitter/validator"
)

// lowered compiles the input and lowers every local function,
// returning their IR by name alongside the module.
func lowered(t *testing.T, input string) (map[string]*backend.Function, *backend.Module) {
	t.Helper()

	tokens, err := lexer.LexString("test.jitter", input, true)
	require.NoError(t, err)
	file, err := parser.Parse("test.jitter", tokens, nil)
	require.NoError(t, err)
	vctx, err := validator.Validate(file, "test.jitter", nil)
	require.NoError(t, err)

	module := backend.NewModule()
	pointerType := module.PointerType()

	funcIDs := make(map[string]backend.FuncID)
	signatures := make(map[string]backend.Signature)
	vctx.Functions.Scan(func(name string, def *validator.FunctionDefinition) bool {
		sig := module.MakeSignature()
		for range def.Parameters {
			sig.Params = append(sig.Params, backend.NewAbiParam(pointerType))
		}
		if !def.ReturnType.IsUnit() {
			sig.Returns = append(sig.Returns, backend.SpecialAbiParam(pointerType, backend.PurposeStructReturn))
		}
		linkage := backend.LinkageLocal
		if def.IsExtern {
			linkage = backend.LinkageImport
		}
		id, err := module.DeclareFunction(name, linkage, sig)
		require.NoError(t, err)
		funcIDs[name] = id
		signatures[name] = sig
		return true
	})

	irs := make(map[string]*backend.Function)
	for _, fn := range vctx.AST.Functions {
		ir := backend.NewFunction(signatures[fn.Proto.Name])
		builder := backend.NewFunctionBuilder(ir)
		translator := codegen.NewFunctionTranslator(pointerType, builder, module, vctx, funcIDs)
		require.NoError(t, translator.TranslateFunction(fn, !fn.Proto.ReturnType.IsUnit()))
		irs[fn.Proto.Name] = ir
	}
	return irs, module
}

func ops(fn *backend.Function) []backend.Opcode {
	out := make([]backend.Opcode, len(fn.Instrs))
	for i, instr := range fn.Instrs {
		out[i] = instr.Op
	}
	return out
}

func countOp(fn *backend.Function, op backend.Opcode) int {
	n := 0
	for _, instr := range fn.Instrs {
		if instr.Op == op {
			n++
		}
	}
	return n
}

func findOp(fn *backend.Function, op backend.Opcode) (backend.Instruction, bool) {
	for _, instr := range fn.Instrs {
		if instr.Op == op {
			return instr, true
		}
	}
	return backend.Instruction{}, false
}

func TestAddressPassingSignature(t *testing.T) {
	irs, _ := lowered(t, "fn id(x: i32) -> i32 { return x; }")
	fn := irs["id"]

	// One pointer parameter, one struct-return pointer.
	require.Len(t, fn.Signature.Params, 1)
	assert.Equal(t, backend.I64, fn.Signature.Params[0].Type)
	require.Len(t, fn.Signature.Returns, 1)
	assert.Equal(t, backend.PurposeStructReturn, fn.Signature.Returns[0].Purpose)

	// The body copies the parameter's pointed-to bytes into the
	// struct-return slot and returns the slot's address.
	require.Len(t, fn.Slots, 1)
	assert.Equal(t, backend.StructReturnSlot, fn.Slots[0].Kind)
	assert.Equal(t, uint32(4), fn.Slots[0].Size)

	assert.Equal(t, 4, countOp(fn, backend.OpLoad), "four byte-wise copies")
	assert.Equal(t, 4, countOp(fn, backend.OpStackStore))

	last := fn.Instrs[len(fn.Instrs)-1]
	require.Equal(t, backend.OpReturn, last.Op)
	require.Len(t, last.Args, 1)
	prev := fn.Instrs[len(fn.Instrs)-2]
	assert.Equal(t, backend.OpStackAddr, prev.Op)
	assert.Equal(t, last.Args[0], prev.Result)
}

func TestUnitFunctionReturnsNothing(t *testing.T) {
	irs, _ := lowered(t, "fn nop() { }")
	fn := irs["nop"]

	assert.Empty(t, fn.Signature.Returns)
	assert.Empty(t, fn.Slots)
	assert.Equal(t, []backend.Opcode{backend.OpReturn}, ops(fn))
	assert.Empty(t, fn.Instrs[0].Args)
}

func TestLiteralMaterialization(t *testing.T) {
	irs, _ := lowered(t, "fn f() -> i32 { return 7; }")
	fn := irs["f"]

	iconst, ok := findOp(fn, backend.OpIconst)
	require.True(t, ok)
	assert.Equal(t, int64(7), iconst.Imm)
	assert.Equal(t, backend.I32, iconst.Type)

	// The constant lands in an explicit slot of the literal's size.
	var explicit []backend.StackSlotData
	for _, slot := range fn.Slots {
		if slot.Kind == backend.ExplicitSlot {
			explicit = append(explicit, slot)
		}
	}
	require.Len(t, explicit, 1)
	assert.Equal(t, uint32(4), explicit[0].Size)
}

func TestFieldAccessIsPointerAdd(t *testing.T) {
	irs, _ := lowered(t, `
struct P { x: i32, y: i32 }
fn getx(p: P) -> i32 { return p.x; }
fn gety(p: P) -> i32 { return p.y; }
`)

	// p.x adds offset 0 to the base address.
	xadd, ok := findOp(irs["getx"], backend.OpIaddImm)
	require.True(t, ok)
	assert.Equal(t, int64(0), xadd.Imm)

	// p.y adds offset 4.
	yadd, ok := findOp(irs["gety"], backend.OpIaddImm)
	require.True(t, ok)
	assert.Equal(t, int64(4), yadd.Imm)
}

func TestFieldConstructorFillsSlot(t *testing.T) {
	irs, _ := lowered(t, `
struct P { x: i32, y: i32 }
fn make() -> P { return P { x: 1, y: 2 }; }
`)
	fn := irs["make"]

	// An 8-byte slot for P (plus literal slots and the return slot).
	var sizes []uint32
	for _, slot := range fn.Slots {
		if slot.Kind == backend.ExplicitSlot {
			sizes = append(sizes, slot.Size)
		}
	}
	assert.Contains(t, sizes, uint32(8))

	// Field x's bytes copy to offsets 0..3, y's to 4..7.
	var storeOffsets []int32
	for _, instr := range fn.Instrs {
		if instr.Op == backend.OpStackStore && instr.Type == backend.I8 {
			storeOffsets = append(storeOffsets, instr.Offset)
		}
	}
	// 4 bytes per field into the object, then 8 bytes into the
	// struct-return slot.
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3, 4, 5, 6, 7}, storeOffsets)
}

func TestBinaryLowering(t *testing.T) {
	irs, _ := lowered(t, "fn f(a: i32, b: i32) -> i32 { return a + b; }")
	fn := irs["f"]

	add, ok := findOp(fn, backend.OpIadd)
	require.True(t, ok)
	assert.Equal(t, backend.I32, add.Type)

	// Operands load from addresses; the result spills to a slot.
	assert.GreaterOrEqual(t, countOp(fn, backend.OpLoad), 2)
	assert.GreaterOrEqual(t, countOp(fn, backend.OpStackAddr), 1)
}

func TestDivisionSignedness(t *testing.T) {
	irs, _ := lowered(t, `
fn s(a: i32, b: i32) -> i32 { return a / b; }
fn u(a: u32, b: u32) -> u32 { return a / b; }
fn f(a: f64, b: f64) -> f64 { return a / b; }
`)

	_, ok := findOp(irs["s"], backend.OpSdiv)
	assert.True(t, ok)
	_, ok = findOp(irs["u"], backend.OpUdiv)
	assert.True(t, ok)
	_, ok = findOp(irs["f"], backend.OpFdiv)
	assert.True(t, ok)
}

func TestUnaryLowering(t *testing.T) {
	irs, _ := lowered(t, `
fn neg(a: i32) -> i32 { return -a; }
fn negf(a: f64) -> f64 { return -a; }
fn not(a: bool) -> bool { return !a; }
`)

	_, ok := findOp(irs["neg"], backend.OpIneg)
	assert.True(t, ok)
	_, ok = findOp(irs["negf"], backend.OpFneg)
	assert.True(t, ok)

	xor, ok := findOp(irs["not"], backend.OpBxorImm)
	require.True(t, ok)
	assert.Equal(t, int64(1), xor.Imm)
}

func TestCallPassesAddresses(t *testing.T) {
	irs, _ := lowered(t, `
fn callee(a: i32) -> i32 { return a; }
fn caller(x: i32) -> i32 { return callee(x); }
`)
	fn := irs["caller"]

	call, ok := findOp(fn, backend.OpCall)
	require.True(t, ok)
	require.Len(t, call.Args, 1)
	assert.NotEqual(t, backend.NoValue, call.Result,
		"a non-unit callee's result is the returned slot address")
}

func TestExternCall(t *testing.T) {
	irs, _ := lowered(t, `
extern { fn host(a: i32) -> i32; }
fn f(x: i32) -> i32 { return host(x); }
`)

	call, ok := findOp(irs["f"], backend.OpCall)
	require.True(t, ok)
	assert.Equal(t, "host", irs["f"].FuncRefs[call.Callee].Name)
}

func TestAssignStoresThroughPlace(t *testing.T) {
	irs, _ := lowered(t, `
struct P { x: i32 }
fn f(mut p: P) { p.x = 5; }
`)
	fn := irs["f"]

	// The literal materializes, then its bytes store through the
	// field's address.
	assert.Equal(t, 4, countOp(fn, backend.OpStore))
	add, ok := findOp(fn, backend.OpIaddImm)
	require.True(t, ok)
	assert.Equal(t, int64(0), add.Imm)
}

func TestOpAssignLoadsAndStores(t *testing.T) {
	irs, _ := lowered(t, "fn f() { let mut x = 1; x += 2; }")
	fn := irs["f"]

	add, ok := findOp(fn, backend.OpIadd)
	require.True(t, ok)
	assert.Equal(t, backend.I32, add.Type)

	// The sum stores back through the place's address with the
	// value's own width.
	var typedStores int
	for _, instr := range fn.Instrs {
		if instr.Op == backend.OpStore && instr.Type == backend.I32 {
			typedStores++
		}
	}
	assert.Equal(t, 1, typedStores)
}

func TestBlockValueFlowsOut(t *testing.T) {
	irs, _ := lowered(t, "fn f() -> i32 { let x = { 41 }; return x; }")
	fn := irs["f"]

	// The literal inside the block is the block's value; the return
	// copies it into the struct-return slot.
	iconst, ok := findOp(fn, backend.OpIconst)
	require.True(t, ok)
	assert.Equal(t, int64(41), iconst.Imm)
	assert.Equal(t, 4, countOp(fn, backend.OpLoad))
}

func TestFloatConstants(t *testing.T) {
	irs, _ := lowered(t, `
fn f() -> f32 { return 1.5f32; }
fn g() -> f64 { return 2.5; }
`)

	f32const, ok := findOp(irs["f"], backend.OpF32const)
	require.True(t, ok)
	assert.Equal(t, 1.5, f32const.Fimm)

	f64const, ok := findOp(irs["g"], backend.OpF64const)
	require.True(t, ok)
	assert.Equal(t, 2.5, f64const.Fimm)
}
