// Package ir defines the typed three-address intermediate representation.
// Instructions live in basic blocks, blocks live in an arena owned by their
// function, and control flow is explicit jumps between block indices. There
// are no phi nodes; a temporary may be written on several paths as long as
// every path defines it before any use.
package ir

import (
	"fmt"

	"github.com/velalang/vela/sema"
	"github.com/velalang/vela/types"
)

type ValueKind int

const (
	// NoValue is the zero Value; call instructions without a result use it.
	NoValue ValueKind = iota
	// Const is an integer immediate (ints and bools; bools are 0 or 1).
	Const
	// Temp is a compiler temporary, numbered per function.
	Temp
	// Slot refers to a local or parameter by its symbol.
	Slot
	// Global refers to module-level variable storage by its symbol.
	Global
	// StrConst is the address of an interned string literal.
	StrConst
)

type Value struct {
	Kind ValueKind
	Imm  int64        // Const
	ID   int          // Temp
	Sym  *sema.Symbol // Slot, Global
	Name string       // StrConst label
}

func ConstInt(n int64) Value         { return Value{Kind: Const, Imm: n} }
func TempVal(id int) Value           { return Value{Kind: Temp, ID: id} }
func SlotVal(s *sema.Symbol) Value   { return Value{Kind: Slot, Sym: s} }
func GlobalVal(s *sema.Symbol) Value { return Value{Kind: Global, Sym: s} }
func StrVal(label string) Value      { return Value{Kind: StrConst, Name: label} }

func ConstBool(b bool) Value {
	if b {
		return Value{Kind: Const, Imm: 1}
	}
	return Value{Kind: Const, Imm: 0}
}

func (v Value) IsConst() bool { return v.Kind == Const }

func (v Value) String() string {
	switch v.Kind {
	case Const:
		return fmt.Sprintf("%d", v.Imm)
	case Temp:
		return fmt.Sprintf("t%d", v.ID)
	case Slot:
		return fmt.Sprintf("%%%s", v.Sym.Name)
	case Global:
		return fmt.Sprintf("@%s", v.Sym.Name)
	case StrConst:
		return fmt.Sprintf("$%s", v.Name)
	}
	return "<none>"
}

type Op int

const (
	Mov Op = iota // Dst = A

	Add // Dst = A + B
	Sub
	Mul
	Div
	Rem

	Neg // Dst = -A
	Not // Dst = !A (A is 0 or 1)

	Eq // Dst = A == B (0 or 1)
	Ne
	Lt
	Le
	Gt
	Ge

	Addr  // Dst = address of A (Slot or Global holding aggregate storage)
	Load  // Dst = mem[A]
	Store // mem[A] = B

	Call // Dst = Callee(Args...); Dst may be NoValue
)

var opNames = [...]string{
	Mov: "mov", Add: "add", Sub: "sub", Mul: "mul", Div: "div", Rem: "rem",
	Neg: "neg", Not: "not",
	Eq: "eq", Ne: "ne", Lt: "lt", Le: "le", Gt: "gt", Ge: "ge",
	Addr: "addr", Load: "load", Store: "store", Call: "call",
}

func (op Op) String() string { return opNames[op] }

// Instruction is one three-address operation. Binary ops use A and B, unary
// ops use A, Call uses Callee/Args.
type Instruction struct {
	Op     Op
	Dst    Value
	A, B   Value
	Callee string
	Args   []Value
}

// Def returns the value this instruction writes, or a NoValue Value.
// Only temporary, slot, and global destinations count as definitions.
func (in *Instruction) Def() Value {
	if in.Op == Store {
		return Value{}
	}
	return in.Dst
}

// Uses returns the values this instruction reads.
func (in *Instruction) Uses() []Value {
	switch in.Op {
	case Call:
		return in.Args
	case Store:
		return []Value{in.A, in.B}
	case Mov, Neg, Not, Addr, Load:
		return []Value{in.A}
	default:
		return []Value{in.A, in.B}
	}
}

// HasSideEffects reports whether the instruction must be preserved even when
// its result is unread. Calls and stores are never removed.
func (in *Instruction) HasSideEffects() bool {
	return in.Op == Call || in.Op == Store
}

// IsPure reports whether the instruction depends only on its operands:
// it neither touches memory nor has side effects. Pure instructions are the
// candidates for CSE and loop hoisting.
func (in *Instruction) IsPure() bool {
	switch in.Op {
	case Call, Store, Load:
		return false
	}
	return true
}

func (in *Instruction) String() string {
	switch in.Op {
	case Mov:
		return fmt.Sprintf("%s = %s", in.Dst, in.A)
	case Neg, Not, Addr, Load:
		return fmt.Sprintf("%s = %s %s", in.Dst, in.Op, in.A)
	case Store:
		return fmt.Sprintf("store %s, %s", in.A, in.B)
	case Call:
		args := ""
		for i, a := range in.Args {
			if i > 0 {
				args += ", "
			}
			args += a.String()
		}
		if in.Dst.Kind == NoValue {
			return fmt.Sprintf("call %s(%s)", in.Callee, args)
		}
		return fmt.Sprintf("%s = call %s(%s)", in.Dst, in.Callee, args)
	default:
		return fmt.Sprintf("%s = %s %s, %s", in.Dst, in.Op, in.A, in.B)
	}
}

// TypeSize returns the storage size of t in bytes. Scalars and references
// occupy one 8-byte word; fixed arrays occupy their elements contiguously.
func TypeSize(t types.Type) int {
	if arr, ok := t.(types.Array); ok && arr.Len != types.UnknownLen {
		return arr.Len * TypeSize(arr.Elem)
	}
	return 8
}
