package sema

import (
	"github.com/velalang/vela/types"
)

// SymbolKind is the storage class of a declared name.
type SymbolKind int

const (
	LocalSymbol SymbolKind = iota
	ParamSymbol
	GlobalSymbol
	FuncSymbol
	BuiltinSymbol
)

func (k SymbolKind) String() string {
	switch k {
	case LocalSymbol:
		return "local"
	case ParamSymbol:
		return "parameter"
	case GlobalSymbol:
		return "global"
	case FuncSymbol:
		return "function"
	case BuiltinSymbol:
		return "builtin"
	}
	return "unknown"
}

// Symbol is a declared name. Slot is a stable identifier assigned in
// declaration order: per function for locals and parameters, per module for
// globals. Later stages key stack and register assignment off it.
type Symbol struct {
	Name  string
	Type  types.Type
	Kind  SymbolKind
	Depth int // scope depth at declaration; 0 is the global scope
	Slot  int
}

type ScopeKind int

const (
	GlobalScope ScopeKind = iota
	FuncScope
	BlockScope
)

// Scope is one frame of the lexical scope stack.
type Scope struct {
	Symbols   map[string]*Symbol
	ScopeKind ScopeKind
}

func NewScope(sk ScopeKind) Scope {
	return Scope{
		Symbols:   make(map[string]*Symbol),
		ScopeKind: sk,
	}
}

func (a *Analyzer) PushScope(sk ScopeKind) {
	a.Scopes = append(a.Scopes, NewScope(sk))
}

func (a *Analyzer) PopScope() {
	if len(a.Scopes) == 1 {
		panic("cannot pop global scope")
	}
	a.Scopes = a.Scopes[:len(a.Scopes)-1]
}

// Put declares sym in the innermost frame.
func (a *Analyzer) Put(name string, sym *Symbol) {
	sym.Depth = len(a.Scopes) - 1
	a.Scopes[len(a.Scopes)-1].Symbols[name] = sym
}

// Get searches from the innermost scope outward.
func (a *Analyzer) Get(name string) (*Symbol, bool) {
	for i := len(a.Scopes) - 1; i >= 0; i-- {
		if sym, ok := a.Scopes[i].Symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// GetLocal searches only the innermost frame; redeclaration checks use it.
func (a *Analyzer) GetLocal(name string) (*Symbol, bool) {
	sym, ok := a.Scopes[len(a.Scopes)-1].Symbols[name]
	return sym, ok
}
