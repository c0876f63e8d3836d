package ir

import "fmt"

// Verify checks the structural invariants of a function's CFG:
// every block has a terminator, every branch target exists, every reachable
// non-entry block has a predecessor, at least one reachable block returns,
// and every temporary is defined on all paths before any use.
func Verify(fn *Function) error {
	if len(fn.Blocks) == 0 {
		return fmt.Errorf("%s: function has no blocks", fn.Name)
	}

	for _, b := range fn.Blocks {
		if b.Term.Op == NoTerm {
			return fmt.Errorf("%s: b%d has no terminator", fn.Name, b.ID)
		}
		for _, succ := range b.Term.Succs() {
			if succ < 0 || int(succ) >= len(fn.Blocks) {
				return fmt.Errorf("%s: b%d jumps to nonexistent block b%d", fn.Name, b.ID, succ)
			}
		}
	}

	fn.ComputePreds()
	reach := fn.Reachable()

	hasRet := false
	for _, b := range fn.Blocks {
		if !reach[b.ID] {
			continue
		}
		if b.ID != 0 && len(b.Preds) == 0 {
			return fmt.Errorf("%s: reachable block b%d has no predecessors", fn.Name, b.ID)
		}
		if b.Term.Op == Ret {
			hasRet = true
		}
	}
	if !hasRet {
		return fmt.Errorf("%s: no reachable return", fn.Name)
	}

	return verifyDefBeforeUse(fn, reach)
}

// verifyDefBeforeUse runs a forward dataflow computing, per block, the set of
// temporaries defined on every path into it. A use outside that set is an
// error.
func verifyDefBeforeUse(fn *Function, reach map[BlockID]bool) error {
	// in[b] = intersection over preds of out[p]; out[b] = in[b] + defs(b).
	in := make([]map[int]bool, len(fn.Blocks))
	out := make([]map[int]bool, len(fn.Blocks))
	for i := range out {
		out[i] = nil // nil means "all temps", the top element
	}
	out[0] = blockDefs(fn.Blocks[0], map[int]bool{})

	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			if b.ID == 0 || !reach[b.ID] {
				continue
			}
			var merged map[int]bool
			for _, p := range b.Preds {
				if !reach[p] {
					continue
				}
				if out[p] == nil {
					continue
				}
				if merged == nil {
					merged = copySet(out[p])
				} else {
					merged = intersect(merged, out[p])
				}
			}
			if merged == nil {
				merged = map[int]bool{}
			}
			in[b.ID] = merged
			o := blockDefs(b, merged)
			if !sameSet(o, out[b.ID]) {
				out[b.ID] = o
				changed = true
			}
		}
	}

	for _, b := range fn.Blocks {
		if !reach[b.ID] {
			continue
		}
		defined := copySet(in[b.ID])
		if b.ID == 0 {
			defined = map[int]bool{}
		}
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			for _, u := range instr.Uses() {
				if u.Kind == Temp && !defined[u.ID] {
					return fmt.Errorf("%s: b%d: t%d used before definition", fn.Name, b.ID, u.ID)
				}
			}
			if d := instr.Def(); d.Kind == Temp {
				defined[d.ID] = true
			}
		}
		if b.Term.Op == Br && b.Term.Cond.Kind == Temp && !defined[b.Term.Cond.ID] {
			return fmt.Errorf("%s: b%d: branch on undefined t%d", fn.Name, b.ID, b.Term.Cond.ID)
		}
		if b.Term.Op == Ret && b.Term.HasVal && b.Term.Val.Kind == Temp && !defined[b.Term.Val.ID] {
			return fmt.Errorf("%s: b%d: return of undefined t%d", fn.Name, b.ID, b.Term.Val.ID)
		}
	}
	return nil
}

func blockDefs(b *BasicBlock, in map[int]bool) map[int]bool {
	defs := copySet(in)
	for i := range b.Instrs {
		if d := b.Instrs[i].Def(); d.Kind == Temp {
			defs[d.ID] = true
		}
	}
	return defs
}

func copySet(s map[int]bool) map[int]bool {
	c := make(map[int]bool, len(s))
	for k := range s {
		c[k] = true
	}
	return c
}

func intersect(a, b map[int]bool) map[int]bool {
	c := make(map[int]bool)
	for k := range a {
		if b[k] {
			c[k] = true
		}
	}
	return c
}

func sameSet(a, b map[int]bool) bool {
	if b == nil || len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
