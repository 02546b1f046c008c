package backend

import (
	"fmt"
	"strings"
)

// FormatFunction renders a function's IR as a CLIF-style listing,
// used by the CLI's IR dump and by tests.
func FormatFunction(name string, fn *Function) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "function %%%s(%s)", name, formatParams(fn.Signature.Params))
	if len(fn.Signature.Returns) > 0 {
		fmt.Fprintf(&sb, " -> %s", formatParams(fn.Signature.Returns))
	}
	sb.WriteString(" {\n")

	for i, slot := range fn.Slots {
		kind := "explicit_slot"
		if slot.Kind == StructReturnSlot {
			kind = "struct_return_slot"
		}
		fmt.Fprintf(&sb, "    ss%d = %s %d\n", i, kind, slot.Size)
	}

	sb.WriteString("block0(")
	for i, v := range fn.entryParams {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "v%d: %s", v, fn.ValueType(v))
	}
	sb.WriteString("):\n")

	for i := range fn.Instrs {
		sb.WriteString("    ")
		sb.WriteString(formatInstruction(fn, &fn.Instrs[i]))
		sb.WriteByte('\n')
	}

	sb.WriteString("}\n")
	return sb.String()
}

func formatParams(params []AbiParam) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Type.String()
		if p.Purpose == PurposeStructReturn {
			parts[i] += " sret"
		}
	}
	return strings.Join(parts, ", ")
}

func formatInstruction(fn *Function, instr *Instruction) string {
	var sb strings.Builder
	if instr.Result != NoValue {
		fmt.Fprintf(&sb, "v%d = ", instr.Result)
	}

	switch instr.Op {
	case OpIconst:
		fmt.Fprintf(&sb, "iconst.%s %d", instr.Type, instr.Imm)
	case OpF32const:
		fmt.Fprintf(&sb, "f32const %g", instr.Fimm)
	case OpF64const:
		fmt.Fprintf(&sb, "f64const %g", instr.Fimm)
	case OpLoad:
		fmt.Fprintf(&sb, "load.%s v%d%s", instr.Type, instr.Args[0], formatOffset(instr.Offset))
	case OpStore:
		fmt.Fprintf(&sb, "store.%s v%d, v%d%s", instr.Type, instr.Args[0], instr.Args[1], formatOffset(instr.Offset))
	case OpStackStore:
		fmt.Fprintf(&sb, "stack_store.%s v%d, ss%d%s", instr.Type, instr.Args[0], instr.Slot, formatOffset(instr.Offset))
	case OpStackAddr:
		fmt.Fprintf(&sb, "stack_addr.%s ss%d%s", instr.Type, instr.Slot, formatOffset(instr.Offset))
	case OpIaddImm:
		fmt.Fprintf(&sb, "iadd_imm.%s v%d, %d", instr.Type, instr.Args[0], instr.Imm)
	case OpBxorImm:
		fmt.Fprintf(&sb, "bxor_imm.%s v%d, %d", instr.Type, instr.Args[0], instr.Imm)
	case OpCall:
		fmt.Fprintf(&sb, "call fn%d (%%%s)(%s)", fn.FuncRefs[instr.Callee].ID,
			fn.FuncRefs[instr.Callee].Name, formatValues(instr.Args))
	case OpReturn:
		sb.WriteString("return")
		if len(instr.Args) > 0 {
			fmt.Fprintf(&sb, " %s", formatValues(instr.Args))
		}
	default:
		fmt.Fprintf(&sb, "%s.%s %s", instr.Op, instr.Type, formatValues(instr.Args))
	}

	return sb.String()
}

func formatOffset(offset int32) string {
	if offset == 0 {
		return ""
	}
	return fmt.Sprintf("+%d", offset)
}

func formatValues(values []Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("v%d", v)
	}
	return strings.Join(parts, ", ")
}
