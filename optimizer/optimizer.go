// Package optimizer rewrites IR functions in place. Every pass preserves
// the observable behavior of the program and the invariants checked by
// ir.Verify, so passes can run in any order and repeat until nothing
// changes.
package optimizer

import (
	"github.com/velalang/vela/ir"
)

// A Pass transforms one function and reports whether it changed anything.
type Pass interface {
	Name() string
	Run(fn *ir.Function) bool
}

// maxRounds bounds the fixed-point loop. Well-formed passes converge in a
// handful of rounds; the cap guards against a pass pair that flip-flops.
const maxRounds = 10

// PassesFor returns the pass pipeline for an optimization level.
// Level 0 is empty, level 1 folds and removes dead code, level 2 adds
// copy propagation, common subexpression elimination, and loop-invariant
// code motion.
func PassesFor(level int) []Pass {
	switch {
	case level <= 0:
		return nil
	case level == 1:
		return []Pass{ConstFold{}, DeadCode{}}
	default:
		return []Pass{ConstFold{}, CopyProp{}, CSE{}, LoopInvariant{}, DeadCode{}}
	}
}

// Optimize runs the pipeline for level over every function until a full
// round makes no change.
func Optimize(prog *ir.Program, level int) {
	passes := PassesFor(level)
	if len(passes) == 0 {
		return
	}
	for _, fn := range prog.Funcs {
		for round := 0; round < maxRounds; round++ {
			changed := false
			for _, p := range passes {
				if p.Run(fn) {
					changed = true
				}
			}
			if !changed {
				break
			}
		}
	}
}
