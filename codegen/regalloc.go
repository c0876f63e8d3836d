package codegen

import (
	"sort"

	"github.com/velalang/vela/ir"
)

// Linear scan register allocation over temporaries, after Poletto and
// Sarkar. Instructions are numbered in block order; each temp's interval
// runs from its first definition to its last use. A temp that is live on
// entry to a loop is re-read on every iteration, so its interval extends
// to the end of each back edge that jumps over its last linear use.

type interval struct {
	temp  int
	start int
	end   int
	reg   string // empty when spilled
	spill int    // spill slot index, -1 when in a register
}

// Allocation maps each temp to a callee-saved register or a spill slot.
type Allocation struct {
	Reg    map[int]string
	Spill  map[int]int
	Used   []string // callee-saved registers handed out, in pool order
	Spills int      // number of 8-byte spill slots
}

func (a *Allocation) usedReg(reg string) {
	for _, have := range a.Used {
		if have == reg {
			return
		}
	}
	a.Used = append(a.Used, reg)
}

func allocate(fn *ir.Function) *Allocation {
	intervals := liveIntervals(fn)
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].start < intervals[j].start
	})

	alloc := &Allocation{
		Reg:   make(map[int]string),
		Spill: make(map[int]int),
	}
	free := append([]string(nil), calleeSaved...)
	var active []*interval

	expire := func(pos int) {
		kept := active[:0]
		for _, iv := range active {
			if iv.end >= pos {
				kept = append(kept, iv)
				continue
			}
			if iv.reg != "" {
				free = append(free, iv.reg)
			}
		}
		active = kept
	}

	for i := range intervals {
		iv := &intervals[i]
		expire(iv.start)

		if len(free) > 0 {
			iv.reg = free[0]
			free = free[1:]
			iv.spill = -1
		} else {
			// Spill whichever of the active intervals and this one ends
			// furthest away; short intervals are the ones worth a register.
			victim := iv
			for _, act := range active {
				if act.end > victim.end {
					victim = act
				}
			}
			if victim != iv {
				iv.reg = victim.reg
				iv.spill = -1
				victim.reg = ""
				victim.spill = alloc.Spills
				alloc.Spills++
				alloc.Reg[iv.temp] = iv.reg
				delete(alloc.Reg, victim.temp)
				alloc.Spill[victim.temp] = victim.spill
			} else {
				iv.reg = ""
				iv.spill = alloc.Spills
				alloc.Spills++
			}
		}

		if iv.reg != "" {
			alloc.Reg[iv.temp] = iv.reg
			alloc.usedReg(iv.reg)
		} else {
			alloc.Spill[iv.temp] = iv.spill
		}
		active = append(active, iv)
		sort.Slice(active, func(a, b int) bool { return active[a].end < active[b].end })
	}
	return alloc
}

func liveIntervals(fn *ir.Function) []interval {
	starts := make(map[int]int)
	ends := make(map[int]int)

	touch := func(v ir.Value, pos int, isDef bool) {
		if v.Kind != ir.Temp {
			return
		}
		if _, ok := starts[v.ID]; !ok {
			starts[v.ID] = pos
		}
		if isDef {
			return
		}
		if pos > ends[v.ID] {
			ends[v.ID] = pos
		}
	}

	blockStart := make([]int, len(fn.Blocks))
	blockEnd := make([]int, len(fn.Blocks))
	pos := 0
	for _, blk := range fn.Blocks {
		blockStart[blk.ID] = pos
		for i := range blk.Instrs {
			in := &blk.Instrs[i]
			for _, u := range in.Uses() {
				touch(u, pos, false)
			}
			touch(in.Def(), pos, true)
			pos++
		}
		switch blk.Term.Op {
		case ir.Br:
			touch(blk.Term.Cond, pos, false)
		case ir.Ret:
			if blk.Term.HasVal {
				touch(blk.Term.Val, pos, false)
			}
		}
		blockEnd[blk.ID] = pos
		pos++
	}

	// A temp live on entry to a loop stays live through every iteration:
	// extend it to the back edge so nothing defined inside the loop can
	// claim its register before the header re-reads it. Ranges sort by
	// end so inner loops extend before the outer loops that contain them.
	type backEdge struct{ start, end int }
	var edges []backEdge
	for _, blk := range fn.Blocks {
		for _, succ := range blk.Term.Succs() {
			if blockStart[succ] <= blockStart[blk.ID] {
				edges = append(edges, backEdge{blockStart[succ], blockEnd[blk.ID]})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].end < edges[j].end })
	for _, e := range edges {
		for id, end := range ends {
			if starts[id] < e.start && end >= e.start && end < e.end {
				ends[id] = e.end
			}
		}
	}

	intervals := make([]interval, 0, len(starts))
	for id, start := range starts {
		end := ends[id]
		if end < start {
			end = start
		}
		intervals = append(intervals, interval{temp: id, start: start, end: end, spill: -1})
	}
	return intervals
}
