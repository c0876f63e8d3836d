package optimizer

import (
	"fmt"

	"github.com/velalang/vela/ir"
)

// CSE replaces a pure computation with a copy of an earlier identical one
// in the same block. An expression stays available only while none of its
// operands has been redefined; calls and stores kill loads, since memory
// may have changed underneath them, and calls also kill expressions over
// globals, which the callee may assign.
type CSE struct{}

func (CSE) Name() string { return "cse" }

type availExpr struct {
	a, b ir.Value
	dst  ir.Value
	load bool
}

func (CSE) Run(fn *ir.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		avail := make(map[string]availExpr)

		for i := range blk.Instrs {
			in := &blk.Instrs[i]

			if in.Op == ir.Call || in.Op == ir.Store {
				for key, e := range avail {
					if e.load {
						delete(avail, key)
					}
				}
			}
			if in.Op == ir.Call {
				// The callee may assign globals.
				for key, e := range avail {
					if e.a.Kind == ir.Global || e.b.Kind == ir.Global {
						delete(avail, key)
					}
				}
			}

			def := in.Def()
			if def.Kind != ir.NoValue {
				for key, e := range avail {
					if e.a == def || e.b == def || e.dst == def {
						delete(avail, key)
					}
				}
			}

			if !cseable(in) || def.Kind != ir.Temp {
				continue
			}
			key := exprKey(in)
			if prev, ok := avail[key]; ok {
				*in = ir.Instruction{Op: ir.Mov, Dst: def, A: prev.dst}
				changed = true
				continue
			}
			avail[key] = availExpr{a: in.A, b: in.B, dst: def, load: in.Op == ir.Load}
		}
	}
	return changed
}

// cseable reports whether in computes a reusable expression. Plain copies
// are excluded; collapsing them is constant folding's job and keying on a
// bare operand would alias unrelated movs.
func cseable(in *ir.Instruction) bool {
	switch in.Op {
	case ir.Mov, ir.Call, ir.Store:
		return false
	}
	return true
}

func exprKey(in *ir.Instruction) string {
	return fmt.Sprintf("%d|%s|%s", in.Op, valKey(in.A), valKey(in.B))
}

func valKey(v ir.Value) string {
	switch v.Kind {
	case ir.Const:
		return fmt.Sprintf("c%d", v.Imm)
	case ir.Temp:
		return fmt.Sprintf("t%d", v.ID)
	case ir.Slot, ir.Global:
		return fmt.Sprintf("s%p", v.Sym)
	case ir.StrConst:
		return "l" + v.Name
	}
	return ""
}
