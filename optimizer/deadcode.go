package optimizer

import (
	"github.com/velalang/vela/ir"
	"github.com/velalang/vela/sema"
)

// DeadCode removes pure instructions whose results are never read and
// compacts away blocks control flow can no longer reach. An assignment to
// a local whose slot no reachable instruction reads is dead too; globals
// stay, other functions may read them. Calls and stores always survive;
// their effects are the program.
type DeadCode struct{}

func (DeadCode) Name() string { return "deadcode" }

func (d DeadCode) Run(fn *ir.Function) bool {
	changed := dropUnreachable(fn)

	// Deleting one dead instruction can orphan the temps feeding it, so
	// sweep until a pass removes nothing.
	for {
		uses := countTempUses(fn)
		slotReads := readSlots(fn)
		removed := false
		for _, blk := range fn.Blocks {
			kept := blk.Instrs[:0]
			for _, in := range blk.Instrs {
				def := in.Def()
				if in.IsPure() {
					switch {
					case def.Kind == ir.Temp && uses[def.ID] == 0:
						removed = true
						continue
					case def.Kind == ir.Slot && !slotReads[def.Sym]:
						removed = true
						continue
					}
				}
				kept = append(kept, in)
			}
			blk.Instrs = kept
		}
		if !removed {
			break
		}
		changed = true
	}
	return changed
}

// readSlots collects the locals some instruction reads. Taking an array's
// address counts as a read; stores through it are reachable afterwards.
func readSlots(fn *ir.Function) map[*sema.Symbol]bool {
	reads := make(map[*sema.Symbol]bool)
	for _, blk := range fn.Blocks {
		for i := range blk.Instrs {
			for _, u := range blk.Instrs[i].Uses() {
				if u.Kind == ir.Slot {
					reads[u.Sym] = true
				}
			}
		}
		switch blk.Term.Op {
		case ir.Br:
			if blk.Term.Cond.Kind == ir.Slot {
				reads[blk.Term.Cond.Sym] = true
			}
		case ir.Ret:
			if blk.Term.HasVal && blk.Term.Val.Kind == ir.Slot {
				reads[blk.Term.Val.Sym] = true
			}
		}
	}
	return reads
}

func countTempUses(fn *ir.Function) map[int]int {
	uses := make(map[int]int)
	count := func(v ir.Value) {
		if v.Kind == ir.Temp {
			uses[v.ID]++
		}
	}
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			for _, u := range in.Uses() {
				count(u)
			}
		}
		switch blk.Term.Op {
		case ir.Br:
			count(blk.Term.Cond)
		case ir.Ret:
			if blk.Term.HasVal {
				count(blk.Term.Val)
			}
		}
	}
	return uses
}

// dropUnreachable compacts the block arena to the blocks reachable from
// entry, renumbering IDs and branch targets to the new positions.
func dropUnreachable(fn *ir.Function) bool {
	reach := fn.Reachable()
	if len(reach) == len(fn.Blocks) {
		return false
	}

	remap := make(map[ir.BlockID]ir.BlockID, len(fn.Blocks))
	var kept []*ir.BasicBlock
	for _, blk := range fn.Blocks {
		if !reach[blk.ID] {
			continue
		}
		remap[blk.ID] = ir.BlockID(len(kept))
		kept = append(kept, blk)
	}
	for _, blk := range kept {
		blk.ID = remap[blk.ID]
		switch blk.Term.Op {
		case ir.Jmp:
			blk.Term.To = remap[blk.Term.To]
		case ir.Br:
			blk.Term.Then = remap[blk.Term.Then]
			blk.Term.Else = remap[blk.Term.Else]
		}
	}
	fn.Blocks = kept
	fn.ComputePreds()
	return true
}
