// Package codegen lowers a validated AST to backend IR.
//
// The calling convention is address-passing: every value, scalar or
// aggregate, is materialized in a stack slot and handled by pointer.
// Function parameters arrive as pointers to caller-owned slots, and
// every non-unit function fills a caller-visible struct-return slot
// whose address it returns. Expression lowering follows one rule
// throughout: addresses in, address out.
package codegen

import (
	"fmt"

	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/backend"
	"github.com/swerdloj/jitter/types"
	"github.com/swerdloj/jitter/validator"
)

// IRType maps a language type to the backend type its loads and
// stores use. Aggregates have no register class; they are always
// moved byte-wise through their addresses.
func IRType(t types.Type) backend.Type {
	switch t.Kind {
	case types.KindU8, types.KindI8, types.KindBool:
		return backend.I8
	case types.KindU16, types.KindI16:
		return backend.I16
	case types.KindU32, types.KindI32:
		return backend.I32
	case types.KindU64, types.KindI64:
		return backend.I64
	case types.KindU128, types.KindI128:
		return backend.I128
	case types.KindF32:
		return backend.F32
	case types.KindF64:
		return backend.F64
	default:
		return backend.INVALID
	}
}

// FunctionTranslator lowers one function's contents into backend IR.
type FunctionTranslator struct {
	PointerType backend.Type
	Builder     *backend.FunctionBuilder
	Module      *backend.Module

	// Data maps variable names to memory locations.
	Data *MemoryMap

	Ctx     *validator.Context
	FuncIDs map[string]backend.FuncID
}

// NewFunctionTranslator creates a translator for a single function.
func NewFunctionTranslator(pointerType backend.Type, builder *backend.FunctionBuilder, module *backend.Module, ctx *validator.Context, funcIDs map[string]backend.FuncID) *FunctionTranslator {
	return &FunctionTranslator{
		PointerType: pointerType,
		Builder:     builder,
		Module:      module,
		Data:        NewMemoryMap(),
		Ctx:         ctx,
		FuncIDs:     funcIDs,
	}
}

// TranslateFunction emits the function's body. hasReturnValue is
// false exactly when the return type is unit.
func (t *FunctionTranslator) TranslateFunction(fn *ast.Function, hasReturnValue bool) error {
	// Create the function's entry block with the signature's
	// parameters. The entry block has no predecessors.
	entry := t.Builder.CreateBlock()
	t.Builder.AppendBlockParamsForFunctionParams(entry)
	t.Builder.SwitchToBlock(entry)
	t.Builder.SealBlock(entry)

	// Bind each parameter: the pointer to the caller's slot is the
	// parameter's address.
	for i, param := range fn.Proto.Params {
		paramAddr := t.Builder.BlockParams(entry)[i]
		v := t.Data.CreateVariable(param.Name)
		t.Builder.DeclareVar(v, t.PointerType)
		t.Builder.DefVar(v, paramAddr)
	}

	// Pre-allocate the slot the caller reads the return value from.
	if hasReturnValue {
		size := t.Ctx.Types.SizeOf(fn.Proto.ReturnType)
		slot := t.Builder.CreateStackSlot(backend.StackSlotData{
			Kind: backend.StructReturnSlot,
			Size: uint32(size),
		})
		t.Data.RegisterStructReturnSlot(slot)
	}

	for _, stmt := range fn.Body.Statements {
		if err := t.translateStatement(stmt); err != nil {
			return err
		}
	}

	if !hasReturnValue {
		t.Builder.Ins().Return(nil)
	}

	t.Builder.Finalize()
	return nil
}

func (t *FunctionTranslator) translateStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.Let:
		v := t.Data.CreateVariable(s.Name)
		t.Builder.DeclareVar(v, t.PointerType)

		if s.Value != nil {
			addr, err := t.translateExpression(s.Value)
			if err != nil {
				return err
			}
			if addr != backend.NoValue {
				t.Builder.DefVar(v, addr)
			}
		}
		return nil

	case *ast.Assign:
		return t.translateAssign(s)

	case *ast.Return:
		return t.translateReturn(s.Value)

	case *ast.ImplicitReturn:
		if s.IsFunctionReturn {
			return t.translateReturn(s.Value)
		}
		// A non-terminal implicit return is the value of its block;
		// at statement level the address is simply discarded.
		_, err := t.translateExpression(s.Value)
		return err

	case *ast.ExprStatement:
		_, err := t.translateExpression(s.Value)
		return err

	default:
		return fmt.Errorf("unhandled statement kind %T", stmt)
	}
}

// translateReturn fills the struct-return slot with the returned
// value and yields the slot's address.
func (t *FunctionTranslator) translateReturn(value ast.Expression) error {
	if value.Type().IsUnit() {
		t.Builder.Ins().Return(nil)
		return nil
	}

	addr, err := t.translateExpression(value)
	if err != nil {
		return err
	}

	slot, ok := t.Data.StructReturnSlot()
	if !ok {
		return fmt.Errorf("return of `%s` from a function with no return slot", value.Type())
	}

	size := t.Ctx.Types.SizeOf(value.Type())
	t.copyToSlot(addr, slot, 0, size)

	sretAddr := t.Builder.Ins().StackAddr(t.PointerType, slot, 0)
	t.Builder.Ins().Return([]backend.Value{sretAddr})
	return nil
}

func (t *FunctionTranslator) translateAssign(s *ast.Assign) error {
	placeAddr, err := t.translateExpression(s.Lhs)
	if err != nil {
		return err
	}
	valueAddr, err := t.translateExpression(s.Rhs)
	if err != nil {
		return err
	}

	ty := s.Lhs.Type()

	if s.Operator == ast.AssignPlain {
		// Plain assignment is a byte-wise copy through the place's
		// address, aggregates and scalars alike.
		t.copyToAddr(valueAddr, placeAddr, t.Ctx.Types.SizeOf(ty))
		return nil
	}

	// Op-assign loads both sides, applies the operator, and stores
	// back through the place's address.
	irTy := IRType(ty)
	ins := t.Builder.Ins()
	lhsVal := ins.Load(irTy, backend.TrustedMemFlags(), placeAddr, 0)
	rhsVal := ins.Load(irTy, backend.TrustedMemFlags(), valueAddr, 0)

	var op ast.BinaryOp
	switch s.Operator {
	case ast.AssignAdd:
		op = ast.OpAdd
	case ast.AssignSubtract:
		op = ast.OpSubtract
	case ast.AssignMultiply:
		op = ast.OpMultiply
	case ast.AssignDivide:
		op = ast.OpDivide
	}
	result := t.applyBinary(op, ty, lhsVal, rhsVal)
	ins.Store(backend.TrustedMemFlags(), result, placeAddr, 0)
	return nil
}

// translateExpression lowers an expression to the address of its
// materialized result. Unit-typed expressions yield NoValue.
func (t *FunctionTranslator) translateExpression(expr ast.Expression) (backend.Value, error) {
	switch e := expr.(type) {
	case *ast.Ident:
		if e.Ty.IsUnit() {
			// Unit bindings have no backing slot.
			return backend.NoValue, nil
		}
		v, err := t.Data.GetVariable(e.Name)
		if err != nil {
			return backend.NoValue, err
		}
		return t.Builder.UseVar(v), nil

	case *ast.Literal:
		return t.translateLiteral(e)

	case *ast.FieldAccess:
		baseAddr, err := t.translateExpression(e.Base)
		if err != nil {
			return backend.NoValue, err
		}
		offset, err := t.Ctx.FieldOffset(e.Base.Type(), e.Field)
		if err != nil {
			return backend.NoValue, err
		}
		// A field's address is its base's address plus the field's
		// byte offset.
		return t.Builder.Ins().IaddImm(baseAddr, int64(offset)), nil

	case *ast.FieldConstructor:
		return t.translateFieldConstructor(e)

	case *ast.Binary:
		return t.translateBinary(e)

	case *ast.Unary:
		return t.translateUnary(e)

	case *ast.Call:
		return t.translateCall(e)

	case *ast.BlockExpr:
		return t.translateBlock(e)

	default:
		return backend.NoValue, fmt.Errorf("unhandled expression kind %T", expr)
	}
}

// translateLiteral allocates a slot for the constant, fills it, and
// yields the slot's address.
func (t *FunctionTranslator) translateLiteral(e *ast.Literal) (backend.Value, error) {
	ins := t.Builder.Ins()

	var value backend.Value
	switch v := e.Value.(type) {
	case ast.IntegerValue:
		value = ins.Iconst(IRType(e.Ty), int64(v))
	case ast.FloatValue:
		if e.Ty.Kind == types.KindF32 {
			value = ins.F32const(float32(v))
		} else {
			value = ins.F64const(float64(v))
		}
	case ast.UnitValue:
		// `()` has no bytes to materialize.
		return backend.NoValue, nil
	}

	size := t.Ctx.Types.SizeOf(e.Ty)
	slot := t.createExplicitStackSlot(uint32(size))
	ins.StackStore(value, slot, 0)

	addr := ins.StackAddr(t.PointerType, slot, 0)
	t.Data.RegisterStackSlot(addr, slot)
	return addr, nil
}

func (t *FunctionTranslator) translateFieldConstructor(e *ast.FieldConstructor) (backend.Value, error) {
	ins := t.Builder.Ins()

	// Allocate memory for the whole object.
	size := t.Ctx.Types.SizeOf(e.Ty)
	slot := t.createExplicitStackSlot(uint32(size))

	for _, init := range e.Fields {
		// Lower the field's value to an address, then copy its bytes
		// into the slot at the field's offset.
		valueAddr, err := t.translateExpression(init.Value)
		if err != nil {
			return backend.NoValue, err
		}
		offset, err := t.Ctx.FieldOffset(e.Ty, init.Name)
		if err != nil {
			return backend.NoValue, err
		}
		t.copyToSlot(valueAddr, slot, int32(offset), t.Ctx.Types.SizeOf(init.Value.Type()))
	}

	addr := ins.StackAddr(t.PointerType, slot, 0)
	t.Data.RegisterStackSlot(addr, slot)
	return addr, nil
}

func (t *FunctionTranslator) translateBinary(e *ast.Binary) (backend.Value, error) {
	lhsAddr, err := t.translateExpression(e.Lhs)
	if err != nil {
		return backend.NoValue, err
	}
	rhsAddr, err := t.translateExpression(e.Rhs)
	if err != nil {
		return backend.NoValue, err
	}

	irTy := IRType(e.Ty)
	ins := t.Builder.Ins()
	lhsVal := ins.Load(irTy, backend.TrustedMemFlags(), lhsAddr, 0)
	rhsVal := ins.Load(irTy, backend.TrustedMemFlags(), rhsAddr, 0)

	result := t.applyBinary(e.Op, e.Ty, lhsVal, rhsVal)
	return t.spill(result, e.Ty), nil
}

// applyBinary picks the opcode for the operator and operand type.
// Overflow wraps and division by zero traps, whatever the ISA does.
func (t *FunctionTranslator) applyBinary(op ast.BinaryOp, ty types.Type, lhs, rhs backend.Value) backend.Value {
	ins := t.Builder.Ins()
	if ty.IsFloat() {
		switch op {
		case ast.OpAdd:
			return ins.Fadd(lhs, rhs)
		case ast.OpSubtract:
			return ins.Fsub(lhs, rhs)
		case ast.OpMultiply:
			return ins.Fmul(lhs, rhs)
		default:
			return ins.Fdiv(lhs, rhs)
		}
	}
	switch op {
	case ast.OpAdd:
		return ins.Iadd(lhs, rhs)
	case ast.OpSubtract:
		return ins.Isub(lhs, rhs)
	case ast.OpMultiply:
		return ins.Imul(lhs, rhs)
	default:
		if ty.IsSignedInteger() {
			return ins.Sdiv(lhs, rhs)
		}
		return ins.Udiv(lhs, rhs)
	}
}

func (t *FunctionTranslator) translateUnary(e *ast.Unary) (backend.Value, error) {
	addr, err := t.translateExpression(e.Operand)
	if err != nil {
		return backend.NoValue, err
	}

	irTy := IRType(e.Ty)
	ins := t.Builder.Ins()
	value := ins.Load(irTy, backend.TrustedMemFlags(), addr, 0)

	var result backend.Value
	switch e.Op {
	case ast.OpNegate:
		if e.Ty.IsFloat() {
			result = ins.Fneg(value)
		} else {
			result = ins.Ineg(value)
		}
	case ast.OpNot:
		result = ins.BxorImm(value, 1)
	}

	return t.spill(result, e.Ty), nil
}

func (t *FunctionTranslator) translateCall(e *ast.Call) (backend.Value, error) {
	id, ok := t.FuncIDs[e.Name]
	if !ok {
		return backend.NoValue, fmt.Errorf("attempted to translate a call to an undeclared function: %s", e.Name)
	}

	args := make([]backend.Value, 0, len(e.Args))
	for _, arg := range e.Args {
		addr, err := t.translateExpression(arg)
		if err != nil {
			return backend.NoValue, err
		}
		args = append(args, addr)
	}

	ref := t.Module.DeclareFuncInFunc(id, t.Builder.Func())
	inst := t.Builder.Ins().Call(ref, args)

	// A non-unit callee returns the address of its struct-return
	// slot; that address is the call expression's value.
	if results := t.Builder.InstResults(inst); len(results) > 0 {
		return results[0], nil
	}
	return backend.NoValue, nil
}

// translateBlock lowers a block's statements; the trailing implicit
// return, if any, supplies the block's address.
func (t *FunctionTranslator) translateBlock(e *ast.BlockExpr) (backend.Value, error) {
	t.Data.PushScope()
	defer t.Data.PopScope()

	result := backend.NoValue
	for i, stmt := range e.Statements {
		if implicit, ok := stmt.(*ast.ImplicitReturn); ok && i == len(e.Statements)-1 && !implicit.IsFunctionReturn {
			addr, err := t.translateExpression(implicit.Value)
			if err != nil {
				return backend.NoValue, err
			}
			result = addr
			continue
		}
		if err := t.translateStatement(stmt); err != nil {
			return backend.NoValue, err
		}
	}
	return result, nil
}

// spill materializes a register-class value into a fresh slot and
// yields the slot's address.
func (t *FunctionTranslator) spill(value backend.Value, ty types.Type) backend.Value {
	ins := t.Builder.Ins()
	slot := t.createExplicitStackSlot(uint32(t.Ctx.Types.SizeOf(ty)))
	ins.StackStore(value, slot, 0)
	addr := ins.StackAddr(t.PointerType, slot, 0)
	t.Data.RegisterStackSlot(addr, slot)
	return addr
}

// copyToSlot copies size bytes from the data behind addr into a slot
// at the given offset.
func (t *FunctionTranslator) copyToSlot(addr backend.Value, slot backend.StackSlot, offset int32, size int) {
	ins := t.Builder.Ins()
	for b := 0; b < size; b++ {
		v := ins.Load(backend.I8, backend.TrustedMemFlags(), addr, int32(b))
		ins.StackStore(v, slot, offset+int32(b))
	}
}

// copyToAddr copies size bytes from the data behind src to dst.
func (t *FunctionTranslator) copyToAddr(src, dst backend.Value, size int) {
	ins := t.Builder.Ins()
	for b := 0; b < size; b++ {
		v := ins.Load(backend.I8, backend.TrustedMemFlags(), src, int32(b))
		ins.Store(backend.TrustedMemFlags(), v, dst, int32(b))
	}
}

func (t *FunctionTranslator) createExplicitStackSlot(size uint32) backend.StackSlot {
	return t.Builder.CreateStackSlot(backend.StackSlotData{
		Kind: backend.ExplicitSlot,
		Size: size,
	})
}
