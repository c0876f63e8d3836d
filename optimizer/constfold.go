package optimizer

import (
	"github.com/velalang/vela/ir"
)

// ConstFold evaluates instructions whose operands are known constants and
// propagates the results forward within each block. Arithmetic wraps at 64
// bits, matching the target. A conditional branch on a constant becomes an
// unconditional jump, which exposes the untaken side to dead-code removal.
type ConstFold struct{}

func (ConstFold) Name() string { return "constfold" }

func (ConstFold) Run(fn *ir.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		consts := make(map[int]int64) // temp ID -> known value

		resolve := func(v ir.Value) ir.Value {
			if v.Kind == ir.Temp {
				if imm, ok := consts[v.ID]; ok {
					return ir.ConstInt(imm)
				}
			}
			return v
		}

		for i := range blk.Instrs {
			in := &blk.Instrs[i]
			a := resolve(in.A)
			b := resolve(in.B)
			if a != in.A || b != in.B {
				in.A, in.B = a, b
				changed = true
			}
			for j, arg := range in.Args {
				if r := resolve(arg); r != arg {
					in.Args[j] = r
					changed = true
				}
			}

			def := in.Def()
			if def.Kind != ir.Temp {
				continue
			}
			delete(consts, def.ID)

			if imm, ok := fold(in); ok {
				if in.Op != ir.Mov || in.A.Kind != ir.Const {
					*in = ir.Instruction{Op: ir.Mov, Dst: def, A: ir.ConstInt(imm)}
					changed = true
				}
				consts[def.ID] = imm
			}
		}

		if blk.Term.Op == ir.Br {
			cond := resolve(blk.Term.Cond)
			if cond.Kind == ir.Const {
				to := blk.Term.Then
				if cond.Imm == 0 {
					to = blk.Term.Else
				}
				blk.Term = ir.Terminator{Op: ir.Jmp, To: to}
				changed = true
			} else if cond != blk.Term.Cond {
				blk.Term.Cond = cond
				changed = true
			}
		}
		if blk.Term.Op == ir.Ret && blk.Term.HasVal {
			if v := resolve(blk.Term.Val); v != blk.Term.Val {
				blk.Term.Val = v
				changed = true
			}
		}
	}
	if changed {
		fn.ComputePreds()
	}
	return changed
}

// fold evaluates in when all of its operands are constants. Division and
// remainder by zero are left alone so the fault stays a runtime event.
func fold(in *ir.Instruction) (int64, bool) {
	switch in.Op {
	case ir.Mov, ir.Neg, ir.Not:
		if in.A.Kind != ir.Const {
			return 0, false
		}
	case ir.Add, ir.Sub, ir.Mul, ir.Div, ir.Rem,
		ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge:
		if in.A.Kind != ir.Const || in.B.Kind != ir.Const {
			return 0, false
		}
	default:
		return 0, false
	}

	a, b := in.A.Imm, in.B.Imm
	switch in.Op {
	case ir.Mov:
		return a, true
	case ir.Neg:
		return -a, true
	case ir.Not:
		return boolImm(a == 0), true
	case ir.Add:
		return a + b, true
	case ir.Sub:
		return a - b, true
	case ir.Mul:
		return a * b, true
	case ir.Div:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case ir.Rem:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case ir.Eq:
		return boolImm(a == b), true
	case ir.Ne:
		return boolImm(a != b), true
	case ir.Lt:
		return boolImm(a < b), true
	case ir.Le:
		return boolImm(a <= b), true
	case ir.Gt:
		return boolImm(a > b), true
	case ir.Ge:
		return boolImm(a >= b), true
	}
	return 0, false
}

func boolImm(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
