package backend

// Optimize runs the module's constant folding pass over a function.
// Integer arithmetic whose operands are all constants is rewritten to
// a single iconst; chains fold transitively in one forward walk
// because the IR is straight-line.
func Optimize(fn *Function) {
	consts := make(map[Value]int64)

	for i := range fn.Instrs {
		instr := &fn.Instrs[i]

		switch instr.Op {
		case OpIconst:
			consts[instr.Result] = instr.Imm

		case OpIaddImm:
			if c, ok := consts[instr.Args[0]]; ok {
				fold(instr, c+instr.Imm, consts)
			}

		case OpBxorImm:
			if c, ok := consts[instr.Args[0]]; ok {
				fold(instr, c^instr.Imm, consts)
			}

		case OpIneg:
			if c, ok := consts[instr.Args[0]]; ok {
				fold(instr, -c, consts)
			}

		case OpIadd, OpIsub, OpImul:
			a, aok := consts[instr.Args[0]]
			b, bok := consts[instr.Args[1]]
			if !aok || !bok {
				continue
			}
			switch instr.Op {
			case OpIadd:
				fold(instr, a+b, consts)
			case OpIsub:
				fold(instr, a-b, consts)
			case OpImul:
				fold(instr, a*b, consts)
			}

		case OpSdiv, OpUdiv:
			// Folding division would constant-fold a trap; leave the
			// ISA to decide what dividing by zero does.
		}
	}
}

func fold(instr *Instruction, value int64, consts map[Value]int64) {
	result := instr.Result
	*instr = Instruction{
		Op:     OpIconst,
		Type:   instr.Type,
		Imm:    value,
		Result: result,
	}
	consts[result] = value
}
