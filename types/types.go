package types

import (
	"fmt"
	"strings"
)

type Kind int

const (
	IntKind Kind = iota
	BoolKind
	StrKind
	VoidKind
	ArrayKind
	FuncKind
)

// Type is the interface for all types in the language.
// Two types are equal iff they are structurally identical.
type Type interface {
	String() string
	Kind() Kind
}

// Value-typed singletons for the primitive types. Comparing them by value
// is safe since the structs carry no state.
var (
	Int  Type = IntType{}
	Bool Type = BoolType{}
	Str  Type = StrType{}
	Void Type = VoidType{}
)

type IntType struct{}

func (IntType) Kind() Kind     { return IntKind }
func (IntType) String() string { return "int" }

type BoolType struct{}

func (BoolType) Kind() Kind     { return BoolKind }
func (BoolType) String() string { return "bool" }

type StrType struct{}

func (StrType) Kind() Kind     { return StrKind }
func (StrType) String() string { return "string" }

type VoidType struct{}

func (VoidType) Kind() Kind     { return VoidKind }
func (VoidType) String() string { return "void" }

// UnknownLen marks an array whose length is not statically known.
// Such arrays occur only in parameter position.
const UnknownLen = -1

// Array is a fixed-element-type array. Arrays nest, giving multidimensional
// arrays; [int; 2][3] is Array{Elem: Array{Elem: Int, Len: 3}, Len: 2}.
type Array struct {
	Elem Type
	Len  int // UnknownLen if not statically known
}

func (a Array) Kind() Kind { return ArrayKind }

func (a Array) String() string {
	if a.Len == UnknownLen {
		return fmt.Sprintf("[%s]", a.Elem)
	}
	return fmt.Sprintf("[%s; %d]", a.Elem, a.Len)
}

// Dims returns the lengths of each array dimension, outermost first.
func (a Array) Dims() []int {
	dims := []int{a.Len}
	for elem := a.Elem; elem.Kind() == ArrayKind; elem = elem.(Array).Elem {
		dims = append(dims, elem.(Array).Len)
	}
	return dims
}

// Base returns the non-array element type at the bottom of the nesting.
func (a Array) Base() Type {
	t := a.Elem
	for t.Kind() == ArrayKind {
		t = t.(Array).Elem
	}
	return t
}

type Func struct {
	Params []Type
	Return Type
}

func (f Func) Kind() Kind { return FuncKind }

func (f Func) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("fn(%s): %s", strings.Join(params, ", "), f.Return)
}

// Equal performs structural equality on types.
func Equal(a, b Type) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case ArrayKind:
		aa, ba := a.(Array), b.(Array)
		return aa.Len == ba.Len && Equal(aa.Elem, ba.Elem)
	case FuncKind:
		af, bf := a.(Func), b.(Func)
		if len(af.Params) != len(bf.Params) || !Equal(af.Return, bf.Return) {
			return false
		}
		for i := range af.Params {
			if !Equal(af.Params[i], bf.Params[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Assignable reports whether a value of type from may bind to a slot of type
// to. It is Equal, except that an unknown-length array accepts any length of
// the same element type. This is what lets a [int] parameter take a [int; 5]
// argument.
func Assignable(from, to Type) bool {
	if from.Kind() == ArrayKind && to.Kind() == ArrayKind {
		fa, ta := from.(Array), to.(Array)
		if ta.Len != UnknownLen && fa.Len != ta.Len {
			return false
		}
		return Assignable(fa.Elem, ta.Elem)
	}
	return Equal(from, to)
}

// IsComparable reports whether == and != apply to operands of type t.
func IsComparable(t Type) bool {
	switch t.Kind() {
	case IntKind, BoolKind, StrKind:
		return true
	}
	return false
}

// IsOrdered reports whether <, <=, >, >= apply to operands of type t.
func IsOrdered(t Type) bool {
	return t.Kind() == IntKind
}
