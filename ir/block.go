package ir

import (
	"fmt"
	"strings"

	"github.com/velalang/vela/sema"
)

// BlockID indexes into a function's block arena. Successor edges are stored
// as indices rather than pointers so loops need no ownership cycles.
type BlockID int

const NoBlock BlockID = -1

type TermOp int

const (
	// NoTerm marks a block still under construction. Verify rejects it.
	NoTerm TermOp = iota
	Jmp
	Br
	Ret
)

// Terminator ends a basic block. Jmp uses To; Br uses Cond, Then, Else;
// Ret uses Val when HasVal is set.
type Terminator struct {
	Op     TermOp
	Cond   Value
	To     BlockID // Jmp target
	Then   BlockID // Br target when Cond != 0
	Else   BlockID // Br target when Cond == 0
	Val    Value
	HasVal bool
}

// Succs returns the terminator's successor blocks.
func (t *Terminator) Succs() []BlockID {
	switch t.Op {
	case Jmp:
		return []BlockID{t.To}
	case Br:
		return []BlockID{t.Then, t.Else}
	}
	return nil
}

func (t *Terminator) String() string {
	switch t.Op {
	case Jmp:
		return fmt.Sprintf("jmp b%d", t.To)
	case Br:
		return fmt.Sprintf("br %s, b%d, b%d", t.Cond, t.Then, t.Else)
	case Ret:
		if t.HasVal {
			return fmt.Sprintf("ret %s", t.Val)
		}
		return "ret"
	}
	return "<no terminator>"
}

// BasicBlock is a straight-line sequence of instructions plus one terminator.
type BasicBlock struct {
	ID     BlockID
	Instrs []Instruction
	Term   Terminator
	Preds  []BlockID // recomputed by ComputePreds
}

func (b *BasicBlock) Append(in Instruction) {
	b.Instrs = append(b.Instrs, in)
}

// Function owns its blocks. Block 0 is always the entry.
type Function struct {
	Name     string
	Params   []*sema.Symbol
	Locals   []*sema.Symbol
	Blocks   []*BasicBlock
	NumTemps int
}

func NewFunction(name string) *Function {
	fn := &Function{Name: name}
	fn.NewBlock()
	return fn
}

// NewBlock appends an empty block to the arena and returns it.
func (fn *Function) NewBlock() *BasicBlock {
	b := &BasicBlock{ID: BlockID(len(fn.Blocks))}
	fn.Blocks = append(fn.Blocks, b)
	return b
}

func (fn *Function) Entry() *BasicBlock { return fn.Blocks[0] }

func (fn *Function) Block(id BlockID) *BasicBlock { return fn.Blocks[id] }

// NewTemp returns a fresh temporary value.
func (fn *Function) NewTemp() Value {
	t := TempVal(fn.NumTemps)
	fn.NumTemps++
	return t
}

// FrameBytes estimates the stack space the function's locals need; the code
// generator adds spill slots and alignment on top of this.
func (fn *Function) FrameBytes() int {
	size := 0
	for range fn.Params {
		size += 8 // arrays arrive as pointers, scalars as words
	}
	for _, sym := range fn.Locals {
		size += TypeSize(sym.Type)
	}
	return size
}

// ComputePreds rebuilds every block's predecessor list from the terminators.
func (fn *Function) ComputePreds() {
	for _, b := range fn.Blocks {
		b.Preds = b.Preds[:0]
	}
	for _, b := range fn.Blocks {
		for _, succ := range b.Term.Succs() {
			fn.Blocks[succ].Preds = append(fn.Blocks[succ].Preds, b.ID)
		}
	}
}

// Reachable returns the set of blocks reachable from the entry.
func (fn *Function) Reachable() map[BlockID]bool {
	seen := make(map[BlockID]bool)
	stack := []BlockID{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, fn.Blocks[id].Term.Succs()...)
	}
	return seen
}

func (fn *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s:\n", fn.Name)
	for _, b := range fn.Blocks {
		fmt.Fprintf(&sb, "b%d:\n", b.ID)
		for i := range b.Instrs {
			fmt.Fprintf(&sb, "  %s\n", b.Instrs[i].String())
		}
		fmt.Fprintf(&sb, "  %s\n", b.Term.String())
	}
	return sb.String()
}

// StringLit is an interned string literal emitted into the data section.
type StringLit struct {
	Label string
	Value string
}

// Program is the IR for one compilation unit. Funcs holds the entry function
// first, then source functions in declaration order.
type Program struct {
	Funcs   []*Function
	Globals []*sema.Symbol
	Strings []StringLit
}

func (p *Program) String() string {
	var sb strings.Builder
	for _, fn := range p.Funcs {
		sb.WriteString(fn.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
