package optimizer

import (
	"github.com/velalang/vela/ir"
)

// dominators computes the full dominator set for every block with the
// classic iterative dataflow: dom(b) = {b} ∪ ⋂ dom(preds). Block counts in
// lowered functions are small, so set-per-block is plenty fast.
func dominators(fn *ir.Function) [][]bool {
	n := len(fn.Blocks)
	dom := make([][]bool, n)

	full := make([]bool, n)
	for i := range full {
		full[i] = true
	}
	for i := range dom {
		dom[i] = make([]bool, n)
		if i == 0 {
			dom[0][0] = true
		} else {
			copy(dom[i], full)
		}
	}

	for changed := true; changed; {
		changed = false
		for _, b := range fn.Blocks[1:] {
			next := make([]bool, n)
			first := true
			for _, p := range b.Preds {
				if first {
					copy(next, dom[p])
					first = false
					continue
				}
				for i := range next {
					next[i] = next[i] && dom[p][i]
				}
			}
			next[b.ID] = true
			if !equalSets(next, dom[b.ID]) {
				dom[b.ID] = next
				changed = true
			}
		}
	}
	return dom
}

func equalSets(a, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
