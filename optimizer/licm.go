package optimizer

import (
	"github.com/velalang/vela/ir"
	"github.com/velalang/vela/sema"
)

// LoopInvariant hoists computations that produce the same value on every
// iteration out of the loop and into its preheader. Only non-faulting pure
// instructions move; division stays put unless the divisor is a nonzero
// constant, and loads stay put because the loop body may store.
type LoopInvariant struct{}

func (LoopInvariant) Name() string { return "licm" }

func (LoopInvariant) Run(fn *ir.Function) bool {
	fn.ComputePreds()
	dom := dominators(fn)

	changed := false
	for _, blk := range fn.Blocks {
		for _, succ := range blk.Term.Succs() {
			// A back edge jumps to a block that dominates its source.
			if dom[blk.ID][succ] {
				if hoistLoop(fn, succ, blk.ID) {
					changed = true
				}
			}
		}
	}
	return changed
}

// hoistLoop processes the natural loop of the back edge tail -> header.
func hoistLoop(fn *ir.Function, header, tail ir.BlockID) bool {
	loop := naturalLoop(fn, header, tail)

	pre := preheaderOf(fn, header, loop)
	if pre == nil {
		return false
	}

	tempDefs := countTempDefs(fn)
	slotWritten, callInLoop := slotsWrittenIn(fn, loop)

	// invariant temps found so far, by temp ID
	inv := make(map[int]bool)
	var hoisted []hoistKey

	for again := true; again; {
		again = false
		for id := range loop {
			blk := fn.Blocks[id]
			for i, in := range blk.Instrs {
				key := hoistKey{block: id, index: i}
				if marked(hoisted, key) {
					continue
				}
				if !canHoist(&in, tempDefs, slotWritten, callInLoop, inv, loop, fn) {
					continue
				}
				inv[in.Dst.ID] = true
				hoisted = append(hoisted, key)
				again = true
			}
		}
	}
	if len(hoisted) == 0 {
		return false
	}

	// Move in block order so hoisted defs still precede their uses.
	sortKeys(hoisted)
	drop := make(map[hoistKey]bool, len(hoisted))
	for _, key := range hoisted {
		drop[key] = true
		pre.Append(fn.Blocks[key.block].Instrs[key.index])
	}
	for id := range loop {
		blk := fn.Blocks[id]
		kept := blk.Instrs[:0]
		for i, in := range blk.Instrs {
			if drop[hoistKey{block: id, index: i}] {
				continue
			}
			kept = append(kept, in)
		}
		blk.Instrs = kept
	}
	return true
}

type hoistKey struct {
	block ir.BlockID
	index int
}

func marked(keys []hoistKey, k hoistKey) bool {
	for _, have := range keys {
		if have == k {
			return true
		}
	}
	return false
}

func sortKeys(keys []hoistKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if a.block < b.block || (a.block == b.block && a.index < b.index) {
				break
			}
			keys[j-1], keys[j] = b, a
		}
	}
}

func canHoist(in *ir.Instruction, tempDefs map[int]int, slotWritten map[*sema.Symbol]bool, callInLoop bool, inv map[int]bool, loop map[ir.BlockID]bool, fn *ir.Function) bool {
	if !in.IsPure() || in.Dst.Kind != ir.Temp {
		return false
	}
	// Hoisting speculates the instruction, so it must not be able to fault.
	if in.Op == ir.Div || in.Op == ir.Rem {
		if in.B.Kind != ir.Const || in.B.Imm == 0 {
			return false
		}
	}
	// A temp rewritten elsewhere is not single-valued.
	if tempDefs[in.Dst.ID] != 1 {
		return false
	}
	for _, u := range in.Uses() {
		if !operandInvariant(u, slotWritten, callInLoop, inv, loop, fn) {
			return false
		}
	}
	return true
}

func operandInvariant(v ir.Value, slotWritten map[*sema.Symbol]bool, callInLoop bool, inv map[int]bool, loop map[ir.BlockID]bool, fn *ir.Function) bool {
	switch v.Kind {
	case ir.NoValue, ir.Const, ir.StrConst:
		return true
	case ir.Slot:
		return !slotWritten[v.Sym]
	case ir.Global:
		// A callee may assign any global.
		return !slotWritten[v.Sym] && !callInLoop
	case ir.Temp:
		if inv[v.ID] {
			return true
		}
		return definedOutside(v.ID, loop, fn)
	}
	return false
}

func definedOutside(tempID int, loop map[ir.BlockID]bool, fn *ir.Function) bool {
	for _, blk := range fn.Blocks {
		if loop[blk.ID] {
			continue
		}
		for i := range blk.Instrs {
			if d := blk.Instrs[i].Def(); d.Kind == ir.Temp && d.ID == tempID {
				return true
			}
		}
	}
	return false
}

func countTempDefs(fn *ir.Function) map[int]int {
	defs := make(map[int]int)
	for _, blk := range fn.Blocks {
		for i := range blk.Instrs {
			if d := blk.Instrs[i].Def(); d.Kind == ir.Temp {
				defs[d.ID]++
			}
		}
	}
	return defs
}

func slotsWrittenIn(fn *ir.Function, loop map[ir.BlockID]bool) (map[*sema.Symbol]bool, bool) {
	written := make(map[*sema.Symbol]bool)
	calls := false
	for id := range loop {
		for i := range fn.Blocks[id].Instrs {
			in := &fn.Blocks[id].Instrs[i]
			if in.Op == ir.Call {
				calls = true
			}
			if d := in.Def(); d.Kind == ir.Slot || d.Kind == ir.Global {
				written[d.Sym] = true
			}
		}
	}
	return written, calls
}

// naturalLoop collects the blocks of the back edge's natural loop: header
// plus everything that reaches tail without passing through header.
func naturalLoop(fn *ir.Function, header, tail ir.BlockID) map[ir.BlockID]bool {
	loop := map[ir.BlockID]bool{header: true}
	stack := []ir.BlockID{tail}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if loop[id] {
			continue
		}
		loop[id] = true
		stack = append(stack, fn.Blocks[id].Preds...)
	}
	return loop
}

// preheaderOf returns the single out-of-loop predecessor of header, which
// the builder creates for every loop. Bail out if rewrites have produced a
// shape with several entries.
func preheaderOf(fn *ir.Function, header ir.BlockID, loop map[ir.BlockID]bool) *ir.BasicBlock {
	var pre *ir.BasicBlock
	for _, p := range fn.Blocks[header].Preds {
		if loop[p] {
			continue
		}
		if pre != nil {
			return nil
		}
		pre = fn.Blocks[p]
	}
	if pre == nil || pre.Term.Op != ir.Jmp {
		return nil
	}
	return pre
}
