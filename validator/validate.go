package validator

import (
	"github.com/swerdloj/jitter/ast"
	"github.com/swerdloj/jitter/reporter"
	"github.com/swerdloj/jitter/types"
)

// Validate takes ownership of the AST, checks it, and produces the
// validation context. Errors report through the handler; any reported
// error makes the whole validation fail.
//
// Items are visited in a fixed order regardless of declaration order:
// all structs are registered first, then all function signatures, and
// only then are function bodies validated.
func Validate(file *ast.File, filePath string, handler *reporter.Handler) (*Context, error) {
	if handler == nil {
		handler = reporter.NewHandler()
	}
	v := &validator{
		ctx:      NewContext(),
		filePath: filePath,
		handler:  handler,
	}

	if err := v.run(file); err != nil {
		return nil, err
	}
	if err := handler.Err(); err != nil {
		return nil, err
	}

	v.ctx.AST = file
	return v.ctx, nil
}

type validator struct {
	ctx      *Context
	filePath string
	handler  *reporter.Handler

	// Source file of the item currently being validated; diagnostics
	// attribute to it. Falls back to filePath for items with no
	// recorded origin.
	currentFile string

	// Return type of the function currently being validated.
	currentReturn types.Type
}

// errf reports an error. A non-nil result means the handler's error
// limit was hit and validation must unwind; nil means keep going and
// collect more.
func (v *validator) errf(span ast.Span, format string, args ...interface{}) error {
	file := v.currentFile
	if file == "" {
		file = v.filePath
	}
	pos := ast.SourcePos{Filename: file, Span: span}
	return v.handler.Errorf(pos, format, args...)
}

func (v *validator) run(file *ast.File) error {
	// Traits and impls parse but have no validation or lowering.
	if len(file.Traits) > 0 {
		v.currentFile = file.Traits[0].File
		if err := v.errf(file.Traits[0].Span, "traits are not supported"); err != nil {
			return err
		}
	}
	if len(file.Impls) > 0 {
		v.currentFile = file.Impls[0].File
		if err := v.errf(file.Impls[0].Span, "impls are not supported"); err != nil {
			return err
		}
	}

	// 1. Register and lay out all structs.
	for _, s := range file.Structs {
		v.currentFile = s.File
		if err := v.registerStruct(s); err != nil {
			return err
		}
	}

	// 2. Register all function signatures, extern prototypes included.
	for _, block := range file.Externs {
		v.currentFile = block.File
		for _, proto := range block.Prototypes {
			if err := v.registerFunction(proto, true); err != nil {
				return err
			}
		}
	}
	for _, fn := range file.Functions {
		v.currentFile = fn.File
		if err := v.registerFunction(fn.Proto, false); err != nil {
			return err
		}
	}

	// 3. Validate each function body.
	for _, fn := range file.Functions {
		v.currentFile = fn.File
		if err := v.validateFunction(fn); err != nil {
			return err
		}
	}

	return nil
}

// neededPadding returns the padding that advances offset to the next
// multiple of alignment.
func neededPadding(offset, alignment int) int {
	misalignment := offset % alignment
	if misalignment > 0 {
		return alignment - misalignment
	}
	return 0
}

// registerStruct lays out a "repr(C)" struct: each field is placed at
// the running byte count padded up to the field's alignment, and the
// total size is padded up to the struct's own alignment (the maximum
// field alignment, 1 if the struct has no fields).
func (v *validator) registerStruct(s *ast.Struct) error {
	if _, exists := v.ctx.Structs.Get(s.Name); exists {
		return v.errf(s.Span, "struct `%s` is already defined", s.Name)
	}

	alignment := 1
	for _, field := range s.Fields {
		if err := v.ctx.Types.AssertValid(field.Ty); err != nil {
			if herr := v.errf(field.Span, "%v", err); herr != nil {
				return herr
			}
			return nil
		}
		if a := v.ctx.Types.AlignmentOf(field.Ty); a > alignment {
			alignment = a
		}
	}

	def := &StructDefinition{byName: make(map[string]int)}

	offset := 0
	for _, field := range s.Fields {
		if _, dup := def.byName[field.Name]; dup {
			if herr := v.errf(field.Span, "struct `%s` has duplicate field `%s`", s.Name, field.Name); herr != nil {
				return herr
			}
			return nil
		}

		// Account for any needed padding, then place the field.
		offset += neededPadding(offset, v.ctx.Types.AlignmentOf(field.Ty))
		def.byName[field.Name] = len(def.Fields)
		def.Fields = append(def.Fields, FieldLayout{
			Name:   field.Name,
			Ty:     field.Ty,
			Offset: offset,
		})
		offset += v.ctx.Types.SizeOf(field.Ty)
	}

	size := offset + neededPadding(offset, alignment)

	v.ctx.Structs.Set(s.Name, def)
	if err := v.ctx.Types.Insert(types.User(s.Name), TypeLayout{Size: size, Alignment: alignment}); err != nil {
		return v.errf(s.Span, "%v", err)
	}
	return nil
}

func (v *validator) registerFunction(proto *ast.Prototype, isExtern bool) error {
	if _, exists := v.ctx.Functions.Get(proto.Name); exists {
		return v.errf(proto.Span, "function `%s` is already defined", proto.Name)
	}

	def := &FunctionDefinition{
		ReturnType: proto.ReturnType,
		IsExtern:   isExtern,
	}
	for _, param := range proto.Params {
		if param.Ty.Kind == types.KindReference {
			if herr := v.errf(param.Span, "reference types are reserved and cannot be used yet"); herr != nil {
				return herr
			}
			continue
		}
		if err := v.ctx.Types.AssertValid(param.Ty); err != nil {
			if herr := v.errf(param.Span, "%v", err); herr != nil {
				return herr
			}
			continue
		}
		def.Parameters = append(def.Parameters, ParameterDef{
			Name:    param.Name,
			Ty:      param.Ty,
			Mutable: param.Mutable,
		})
	}
	if err := v.ctx.Types.AssertValid(proto.ReturnType); err != nil {
		if herr := v.errf(proto.Span, "%v", err); herr != nil {
			return herr
		}
	}

	v.ctx.Functions.Set(proto.Name, def)
	return nil
}

func (v *validator) validateFunction(fn *ast.Function) error {
	v.currentReturn = fn.Proto.ReturnType

	// Fresh scope containing the function's parameters.
	v.ctx.scopes.push()
	defer v.ctx.scopes.pop()

	for _, param := range fn.Proto.Params {
		if err := v.ctx.scopes.add(param.Name, param.Mutable, param.Ty); err != nil {
			if herr := v.errf(param.Span, "%v", err); herr != nil {
				return herr
			}
		}
	}

	// A trailing implicit return terminates the function: desugar it
	// so downstream stages treat it exactly like `return expr;`.
	stmts := fn.Body.Statements
	if len(stmts) > 0 {
		if implicit, ok := stmts[len(stmts)-1].(*ast.ImplicitReturn); ok {
			implicit.IsFunctionReturn = true
		}
	}

	for _, stmt := range stmts {
		if err := v.validateStatement(stmt); err != nil {
			return err
		}
	}
	fn.Body.SetType(fn.Proto.ReturnType)

	// Without control flow, a non-unit function must end by returning.
	if !fn.Proto.ReturnType.IsUnit() {
		terminated := false
		if len(stmts) > 0 {
			switch s := stmts[len(stmts)-1].(type) {
			case *ast.Return:
				terminated = true
			case *ast.ImplicitReturn:
				terminated = s.IsFunctionReturn
			}
		}
		if !terminated {
			if herr := v.errf(fn.Body.Span, "function `%s` must end with a `%s` return", fn.Proto.Name, fn.Proto.ReturnType); herr != nil {
				return herr
			}
		}
	}

	return nil
}

///////////// Statements /////////////

func (v *validator) validateStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.Let:
		return v.validateLet(s)

	case *ast.Assign:
		return v.validateAssign(s)

	case *ast.Return:
		ty, err := v.validateExpression(s.Value, v.currentReturn)
		if err != nil {
			return err
		}
		if !ty.IsUnknown() && !ty.Equal(v.currentReturn) {
			return v.errf(s.Span, "returned type `%s` does not match function return type `%s`", ty, v.currentReturn)
		}
		return nil

	case *ast.ImplicitReturn:
		hint := types.Unknown
		if s.IsFunctionReturn {
			hint = v.currentReturn
		}
		ty, err := v.validateExpression(s.Value, hint)
		if err != nil {
			return err
		}
		if s.IsFunctionReturn && !ty.IsUnknown() && !ty.Equal(v.currentReturn) {
			return v.errf(s.Span, "returned type `%s` does not match function return type `%s`", ty, v.currentReturn)
		}
		return nil

	case *ast.ExprStatement:
		_, err := v.validateExpression(s.Value, types.Unknown)
		return err

	default:
		return v.errf(stmt.GetSpan(), "unhandled statement kind")
	}
}

func (v *validator) validateLet(s *ast.Let) error {
	declared := s.Ty

	if declared.Kind == types.KindReference {
		return v.errf(s.Span, "reference types are reserved and cannot be used yet")
	}

	if s.Value != nil {
		exprTy, err := v.validateExpression(s.Value, declared)
		if err != nil {
			return err
		}
		if declared.IsUnknown() {
			// The binding adopts the initializer's type.
			s.Ty = exprTy
		} else if !exprTy.IsUnknown() && !declared.Equal(exprTy) {
			return v.errf(s.Span, "variable `%s` has type `%s`, but is assigned the type `%s`", s.Name, declared, exprTy)
		}
	} else if declared.IsUnknown() {
		// No annotation and no initializer: nothing to infer from
		// until a constraint solver exists.
		return v.errf(s.Span, "cannot infer type of `%s` without a type or an initial value", s.Name)
	}

	if s.Ty.IsUnknown() {
		// The initializer failed to validate; the error is already
		// collected and the binding stays out of scope.
		return nil
	}

	if err := v.ctx.Types.AssertValid(s.Ty); err != nil {
		return v.errf(s.Span, "%v", err)
	}
	if err := v.ctx.scopes.add(s.Name, s.Mutable, s.Ty); err != nil {
		return v.errf(s.Span, "%v", err)
	}
	return nil
}

func (v *validator) validateAssign(s *ast.Assign) error {
	lhsTy, err := v.validateExpression(s.Lhs, types.Unknown)
	if err != nil {
		return err
	}

	// The root of the place chain must be a mutable binding.
	if root := rootIdent(s.Lhs); root != nil {
		if data, ok := v.ctx.scopes.get(root.Name); ok && !data.Mutable {
			if herr := v.errf(s.Span, "cannot assign to `%s`: variable is not mutable", root.Name); herr != nil {
				return herr
			}
		}
	}

	rhsTy, err := v.validateExpression(s.Rhs, lhsTy)
	if err != nil {
		return err
	}
	if lhsTy.IsUnknown() || rhsTy.IsUnknown() {
		return nil
	}

	if !lhsTy.Equal(rhsTy) {
		return v.errf(s.Span, "cannot assign `%s` to a place of type `%s`", rhsTy, lhsTy)
	}
	if s.Operator != ast.AssignPlain && !lhsTy.IsNumeric() {
		return v.errf(s.OpSpan, "operator `%s` requires a numeric type, found `%s`", s.Operator, lhsTy)
	}
	return nil
}

func rootIdent(expr ast.Expression) *ast.Ident {
	switch e := expr.(type) {
	case *ast.Ident:
		return e
	case *ast.FieldAccess:
		return rootIdent(e.Base)
	default:
		return nil
	}
}

///////////// Expressions /////////////

// validateExpression fills the expression's type slot bottom-up and
// returns the resulting type. hint provides the context type for
// untyped literals. On a collected (non-aborting) error the result is
// types.Unknown and validation continues.
func (v *validator) validateExpression(expr ast.Expression, hint types.Type) (types.Type, error) {
	switch e := expr.(type) {
	case *ast.Literal:
		return v.validateLiteral(e, hint)

	case *ast.Ident:
		data, ok := v.ctx.scopes.get(e.Name)
		if !ok {
			if herr := v.errf(e.Span, "no variable `%s` in scope", e.Name); herr != nil {
				return types.Unknown, herr
			}
			return types.Unknown, nil
		}
		e.SetType(data.Ty)
		return data.Ty, nil

	case *ast.Binary:
		lhs, err := v.validateExpression(e.Lhs, hint)
		if err != nil {
			return types.Unknown, err
		}
		rhsHint := lhs
		if rhsHint.IsUnknown() {
			rhsHint = hint
		}
		rhs, err := v.validateExpression(e.Rhs, rhsHint)
		if err != nil {
			return types.Unknown, err
		}
		if lhs.IsUnknown() || rhs.IsUnknown() {
			return types.Unknown, nil
		}
		if !lhs.Equal(rhs) {
			if herr := v.errf(e.Span, "operator `%s` requires matching types, found `%s` and `%s`", e.Op, lhs, rhs); herr != nil {
				return types.Unknown, herr
			}
			return types.Unknown, nil
		}
		if !lhs.IsNumeric() {
			if herr := v.errf(e.Span, "operator `%s` requires a numeric type, found `%s`", e.Op, lhs); herr != nil {
				return types.Unknown, herr
			}
			return types.Unknown, nil
		}
		e.SetType(lhs)
		return lhs, nil

	case *ast.Unary:
		operand, err := v.validateExpression(e.Operand, hint)
		if err != nil {
			return types.Unknown, err
		}
		if operand.IsUnknown() {
			return types.Unknown, nil
		}
		switch e.Op {
		case ast.OpNegate:
			if !operand.IsSignedInteger() && !operand.IsFloat() {
				if herr := v.errf(e.Span, "operator `-` requires a signed numeric type, found `%s`", operand); herr != nil {
					return types.Unknown, herr
				}
				return types.Unknown, nil
			}
		case ast.OpNot:
			if !operand.IsBool() {
				if herr := v.errf(e.Span, "operator `!` requires `bool`, found `%s`", operand); herr != nil {
					return types.Unknown, herr
				}
				return types.Unknown, nil
			}
		}
		e.SetType(operand)
		return operand, nil

	case *ast.FieldAccess:
		return v.validateFieldAccess(e)

	case *ast.FieldConstructor:
		return v.validateFieldConstructor(e)

	case *ast.Call:
		return v.validateCall(e)

	case *ast.BlockExpr:
		return v.validateBlock(e, hint)

	default:
		return types.Unknown, v.errf(expr.GetSpan(), "unhandled expression kind")
	}
}

func (v *validator) validateLiteral(e *ast.Literal, hint types.Type) (types.Type, error) {
	switch value := e.Value.(type) {
	case ast.IntegerValue:
		ty := e.Ty
		if ty.IsUnknown() {
			// Untyped integers take their type from context,
			// defaulting to i32 when unconstrained.
			if hint.IsInteger() {
				ty = hint
			} else {
				ty = types.I32
			}
		}
		if value < 0 && ty.IsUnsignedInteger() {
			if herr := v.errf(e.Span, "only signed types can be negative (got unsigned type `%s`)", ty); herr != nil {
				return types.Unknown, herr
			}
			return types.Unknown, nil
		}
		e.SetType(ty)
		return ty, nil

	case ast.FloatValue:
		ty := e.Ty
		if ty.IsUnknown() {
			if hint.IsFloat() {
				ty = hint
			} else {
				ty = types.F64
			}
		}
		e.SetType(ty)
		return ty, nil

	case ast.UnitValue:
		e.SetType(types.Unit)
		return types.Unit, nil

	default:
		_ = value
		return types.Unknown, v.errf(e.Span, "unhandled literal kind")
	}
}

func (v *validator) validateFieldAccess(e *ast.FieldAccess) (types.Type, error) {
	baseTy, err := v.validateExpression(e.Base, types.Unknown)
	if err != nil {
		return types.Unknown, err
	}
	if baseTy.IsUnknown() {
		return types.Unknown, nil
	}
	if !baseTy.IsUser() {
		if herr := v.errf(e.Span, "type `%s` has no fields", baseTy); herr != nil {
			return types.Unknown, herr
		}
		return types.Unknown, nil
	}

	def, ok := v.ctx.Structs.Get(baseTy.Name)
	if !ok {
		if herr := v.errf(e.Span, "no struct `%s` is defined", baseTy.Name); herr != nil {
			return types.Unknown, herr
		}
		return types.Unknown, nil
	}
	layout, ok := def.Field(e.Field)
	if !ok {
		if herr := v.errf(e.Span, "struct `%s` has no field `%s`", baseTy.Name, e.Field); herr != nil {
			return types.Unknown, herr
		}
		return types.Unknown, nil
	}

	e.SetType(layout.Ty)
	return layout.Ty, nil
}

func (v *validator) validateFieldConstructor(e *ast.FieldConstructor) (types.Type, error) {
	def, ok := v.ctx.Structs.Get(e.Ty.Name)
	if !ok {
		if herr := v.errf(e.Span, "no struct `%s` is defined", e.Ty.Name); herr != nil {
			return types.Unknown, herr
		}
		return types.Unknown, nil
	}

	// Every declared field must be supplied exactly once; the parser
	// already rejected duplicates.
	supplied := make(map[string]bool, len(e.Fields))
	for _, init := range e.Fields {
		layout, ok := def.Field(init.Name)
		if !ok {
			if herr := v.errf(init.Span, "struct `%s` has no field `%s`", e.Ty.Name, init.Name); herr != nil {
				return types.Unknown, herr
			}
			continue
		}
		supplied[init.Name] = true

		valueTy, err := v.validateExpression(init.Value, layout.Ty)
		if err != nil {
			return types.Unknown, err
		}
		if !valueTy.IsUnknown() && !valueTy.Equal(layout.Ty) {
			if herr := v.errf(init.Span, "field `%s` has type `%s`, but is assigned the type `%s`", init.Name, layout.Ty, valueTy); herr != nil {
				return types.Unknown, herr
			}
		}
	}
	for _, layout := range def.Fields {
		if !supplied[layout.Name] {
			if herr := v.errf(e.Span, "missing field `%s` in constructor for `%s`", layout.Name, e.Ty.Name); herr != nil {
				return types.Unknown, herr
			}
		}
	}

	e.SetType(e.Ty)
	return e.Ty, nil
}

func (v *validator) validateCall(e *ast.Call) (types.Type, error) {
	def, ok := v.ctx.Functions.Get(e.Name)
	if !ok {
		if herr := v.errf(e.Span, "no function `%s` is defined", e.Name); herr != nil {
			return types.Unknown, herr
		}
		return types.Unknown, nil
	}

	if len(e.Args) != len(def.Parameters) {
		if herr := v.errf(e.Span, "function `%s` takes %d inputs, found %d", e.Name, len(def.Parameters), len(e.Args)); herr != nil {
			return types.Unknown, herr
		}
		return types.Unknown, nil
	}

	for i, arg := range e.Args {
		param := def.Parameters[i]
		argTy, err := v.validateExpression(arg, param.Ty)
		if err != nil {
			return types.Unknown, err
		}
		if !argTy.IsUnknown() && !argTy.Equal(param.Ty) {
			if herr := v.errf(arg.GetSpan(), "input `%s` of function `%s` has type `%s`, found `%s`", param.Name, e.Name, param.Ty, argTy); herr != nil {
				return types.Unknown, herr
			}
		}
	}

	e.SetType(def.ReturnType)
	return def.ReturnType, nil
}

// validateBlock types a block expression: the type of its trailing
// implicit return, or `()` when there is none.
func (v *validator) validateBlock(e *ast.BlockExpr, hint types.Type) (types.Type, error) {
	v.ctx.scopes.push()
	defer v.ctx.scopes.pop()

	blockTy := types.Unit
	for i, stmt := range e.Statements {
		if implicit, ok := stmt.(*ast.ImplicitReturn); ok && i == len(e.Statements)-1 && !implicit.IsFunctionReturn {
			ty, err := v.validateExpression(implicit.Value, hint)
			if err != nil {
				return types.Unknown, err
			}
			blockTy = ty
			continue
		}
		if err := v.validateStatement(stmt); err != nil {
			return types.Unknown, err
		}
	}

	e.SetType(blockTy)
	return blockTy, nil
}
