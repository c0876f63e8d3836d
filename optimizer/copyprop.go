package optimizer

import (
	"github.com/velalang/vela/ir"
)

// CopyProp rewrites uses of a temp holding a plain copy to use the copied
// value directly, within each block. Variable references lower to one Mov
// per occurrence, so without this pass two readings of the same expression
// never share operands and CSE has nothing to match. A copy of a slot or
// global is valid only until that location is redefined; calls may assign
// globals, so they invalidate global copies.
type CopyProp struct{}

func (CopyProp) Name() string { return "copyprop" }

func (CopyProp) Run(fn *ir.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		copies := make(map[int]ir.Value) // temp ID -> copied value

		resolve := func(v ir.Value) ir.Value {
			if v.Kind == ir.Temp {
				if src, ok := copies[v.ID]; ok {
					return src
				}
			}
			return v
		}
		killSource := func(loc ir.Value) {
			for id, src := range copies {
				if src == loc {
					delete(copies, id)
				}
			}
		}

		for i := range blk.Instrs {
			in := &blk.Instrs[i]

			if a := resolve(in.A); a != in.A {
				in.A = a
				changed = true
			}
			if b := resolve(in.B); b != in.B {
				in.B = b
				changed = true
			}
			for j, arg := range in.Args {
				if r := resolve(arg); r != arg {
					in.Args[j] = r
					changed = true
				}
			}

			if in.Op == ir.Call {
				for id, src := range copies {
					if src.Kind == ir.Global {
						delete(copies, id)
					}
				}
			}
			def := in.Def()
			switch def.Kind {
			case ir.Slot, ir.Global:
				killSource(def)
			case ir.Temp:
				delete(copies, def.ID)
				killSource(def)
			}

			if in.Op == ir.Mov && def.Kind == ir.Temp {
				switch in.A.Kind {
				case ir.Const, ir.Slot, ir.Global, ir.Temp, ir.StrConst:
					copies[def.ID] = in.A
				}
			}
		}

		if blk.Term.Op == ir.Br {
			if c := resolve(blk.Term.Cond); c != blk.Term.Cond {
				blk.Term.Cond = c
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
	return changed
}
