package sema

import (
	"github.com/velalang/vela/ast"
	"github.com/velalang/vela/token"
	"github.com/velalang/vela/types"
)

// Info holds everything the analyzer learns about a program. Annotations live
// in side tables keyed by AST nodes; the AST itself is never mutated.
type Info struct {
	// Types maps every expression to its resolved type.
	Types map[ast.Expression]types.Type
	// Uses maps every identifier reference to the symbol it resolves to.
	Uses map[*ast.Identifier]*Symbol
	// Defs maps each declaring node (let, fn, param name) to the symbol it introduces.
	Defs map[ast.Node]*Symbol
	// Funcs lists the declared functions in declaration order.
	Funcs []*FuncInfo
	// Globals lists top-level variables in declaration order.
	Globals []*Symbol
}

// FuncInfo collects the per-function facts the IR builder needs: the symbol,
// the declaration, and every parameter and local in slot order.
type FuncInfo struct {
	Sym    *Symbol
	Decl   *ast.FuncStatement
	Params []*Symbol
	Locals []*Symbol
}

func (i *Info) FuncNamed(name string) *FuncInfo {
	for _, f := range i.Funcs {
		if f.Sym.Name == name {
			return f
		}
	}
	return nil
}

// Analyzer walks a parsed program, resolves every identifier against the
// scope stack, checks types, and fails fast with the first error it finds.
type Analyzer struct {
	Scopes []Scope
	Info   *Info

	curFunc  *FuncInfo // nil at top level
	nextSlot int       // next local/param slot within curFunc
}

func NewAnalyzer() *Analyzer {
	a := &Analyzer{
		Scopes: []Scope{NewScope(GlobalScope)},
		Info: &Info{
			Types: make(map[ast.Expression]types.Type),
			Uses:  make(map[*ast.Identifier]*Symbol),
			Defs:  make(map[ast.Node]*Symbol),
		},
	}

	// Builtins backed by the C runtime.
	a.Put("len", &Symbol{
		Name: "len",
		Type: types.Func{Params: []types.Type{types.Str}, Return: types.Int},
		Kind: BuiltinSymbol,
	})
	return a
}

// Analyze checks program and returns the populated Info, or the first error.
func (a *Analyzer) Analyze(program *ast.Program) (*Info, *token.CompileError) {
	// Pre-pass: collect every function signature so bodies may forward-reference.
	for _, stmt := range program.Statements {
		fn, ok := stmt.(*ast.FuncStatement)
		if !ok {
			continue
		}
		if _, exists := a.GetLocal(fn.Name.Value); exists {
			return nil, token.NewError(fn.Name.Token, token.Redeclaration,
				"function %q is already declared", fn.Name.Value)
		}
		params := make([]types.Type, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = p.Type
		}
		sym := &Symbol{
			Name: fn.Name.Value,
			Type: types.Func{Params: params, Return: fn.ReturnType},
			Kind: FuncSymbol,
		}
		a.Put(fn.Name.Value, sym)
		a.Info.Defs[fn] = sym
		a.Info.Funcs = append(a.Info.Funcs, &FuncInfo{Sym: sym, Decl: fn})
	}

	for _, stmt := range program.Statements {
		if err := a.checkStatement(stmt); err != nil {
			return nil, err
		}
	}
	return a.Info, nil
}

func (a *Analyzer) checkStatement(stmt ast.Statement) *token.CompileError {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		return a.checkLet(s)
	case *ast.AssignStatement:
		return a.checkAssign(s)
	case *ast.IfStatement:
		return a.checkIf(s)
	case *ast.WhileStatement:
		return a.checkWhile(s)
	case *ast.ForStatement:
		return a.checkFor(s)
	case *ast.FuncStatement:
		return a.checkFunc(s)
	case *ast.ReturnStatement:
		return a.checkReturn(s)
	case *ast.PrintStatement:
		return a.checkPrint(s)
	case *ast.BlockStatement:
		return a.checkBlock(s)
	case *ast.ExpressionStatement:
		_, err := a.checkExpression(s.Expression)
		return err
	default:
		return token.NewError(stmt.Tok(), token.UnsupportedConstruct,
			"cannot analyze %T", stmt)
	}
}

func (a *Analyzer) checkLet(s *ast.LetStatement) *token.CompileError {
	if s.Type.Kind() == types.ArrayKind {
		// Arrays have no copy semantics; they are built in place from a
		// literal and passed around by reference.
		if _, ok := s.Value.(*ast.ArrayLiteral); !ok {
			return token.NewError(s.Value.Tok(), token.UnsupportedConstruct,
				"array variables must be initialized with an array literal")
		}
		if arr := s.Type.(types.Array); arr.Len == types.UnknownLen {
			return token.NewError(s.Name.Token, token.TypeMismatch,
				"array variable %q must have a known length", s.Name.Value)
		}
	}
	valType, err := a.checkExpression(s.Value)
	if err != nil {
		return err
	}
	if !types.Assignable(valType, s.Type) {
		return token.NewError(s.Value.Tok(), token.TypeMismatch,
			"cannot initialize %q (%s) with a value of type %s", s.Name.Value, s.Type, valType)
	}
	if _, exists := a.GetLocal(s.Name.Value); exists {
		return token.NewError(s.Name.Token, token.Redeclaration,
			"%q is already declared in this scope", s.Name.Value)
	}

	sym := &Symbol{Name: s.Name.Value, Type: s.Type}
	if a.curFunc == nil {
		sym.Kind = GlobalSymbol
		sym.Slot = len(a.Info.Globals)
		a.Info.Globals = append(a.Info.Globals, sym)
	} else {
		sym.Kind = LocalSymbol
		sym.Slot = a.nextSlot
		a.nextSlot++
		a.curFunc.Locals = append(a.curFunc.Locals, sym)
	}
	a.Put(s.Name.Value, sym)
	a.Info.Defs[s] = sym
	return nil
}

func (a *Analyzer) checkAssign(s *ast.AssignStatement) *token.CompileError {
	targetType, err := a.checkExpression(s.Target)
	if err != nil {
		return err
	}
	if ident, ok := s.Target.(*ast.Identifier); ok {
		sym := a.Info.Uses[ident]
		if sym.Kind == FuncSymbol || sym.Kind == BuiltinSymbol {
			return token.NewError(ident.Token, token.TypeMismatch,
				"cannot assign to function %q", ident.Value)
		}
	}
	if targetType.Kind() == types.ArrayKind {
		return token.NewError(s.Target.Tok(), token.UnsupportedConstruct,
			"arrays cannot be assigned as a whole; assign elements instead")
	}
	valType, err := a.checkExpression(s.Value)
	if err != nil {
		return err
	}
	if !types.Assignable(valType, targetType) {
		return token.NewError(s.Value.Tok(), token.TypeMismatch,
			"cannot assign value of type %s to target of type %s", valType, targetType)
	}
	return nil
}

func (a *Analyzer) checkCondition(cond ast.Expression, construct string) *token.CompileError {
	condType, err := a.checkExpression(cond)
	if err != nil {
		return err
	}
	if condType.Kind() != types.BoolKind {
		return token.NewError(cond.Tok(), token.TypeMismatch,
			"%s condition must be bool, got %s", construct, condType)
	}
	return nil
}

func (a *Analyzer) checkIf(s *ast.IfStatement) *token.CompileError {
	if err := a.checkCondition(s.Condition, "if"); err != nil {
		return err
	}
	if err := a.checkBlock(s.Consequence); err != nil {
		return err
	}
	if s.Alternative != nil {
		return a.checkBlock(s.Alternative)
	}
	return nil
}

func (a *Analyzer) checkWhile(s *ast.WhileStatement) *token.CompileError {
	if err := a.checkCondition(s.Condition, "while"); err != nil {
		return err
	}
	return a.checkBlock(s.Body)
}

func (a *Analyzer) checkFor(s *ast.ForStatement) *token.CompileError {
	// The init declaration lives in its own scope enclosing the body.
	a.PushScope(BlockScope)
	defer a.PopScope()

	if err := a.checkStatement(s.Init); err != nil {
		return err
	}
	if err := a.checkCondition(s.Condition, "for"); err != nil {
		return err
	}
	if err := a.checkStatement(s.Post); err != nil {
		return err
	}
	return a.checkBlock(s.Body)
}

func (a *Analyzer) checkFunc(s *ast.FuncStatement) *token.CompileError {
	if a.curFunc != nil {
		return token.NewError(s.Token, token.UnsupportedConstruct,
			"nested function declarations are not supported")
	}
	if s.ReturnType.Kind() == types.ArrayKind {
		// Arrays live in their owner's frame; returning one would hand out a
		// dangling reference.
		return token.NewError(s.Name.Token, token.UnsupportedConstruct,
			"functions cannot return arrays")
	}
	fi := a.Info.FuncNamed(s.Name.Value)
	if fi == nil || fi.Decl != s {
		// Same name collected twice in the pre-pass would have errored there;
		// reaching this means the function was declared below the top level.
		return token.NewError(s.Token, token.UnsupportedConstruct,
			"functions may only be declared at the top level")
	}

	a.curFunc = fi
	a.nextSlot = 0
	a.PushScope(FuncScope)
	defer func() {
		a.PopScope()
		a.curFunc = nil
	}()

	for _, p := range s.Params {
		if _, exists := a.GetLocal(p.Name.Value); exists {
			return token.NewError(p.Name.Token, token.Redeclaration,
				"duplicate parameter %q", p.Name.Value)
		}
		sym := &Symbol{Name: p.Name.Value, Type: p.Type, Kind: ParamSymbol, Slot: a.nextSlot}
		a.nextSlot++
		a.Put(p.Name.Value, sym)
		a.Info.Defs[p.Name] = sym
		fi.Params = append(fi.Params, sym)
	}

	for _, stmt := range s.Body.Statements {
		if err := a.checkStatement(stmt); err != nil {
			return err
		}
	}

	if s.ReturnType.Kind() != types.VoidKind && !blockReturns(s.Body) {
		return token.NewError(s.Name.Token, token.MissingReturn,
			"function %q must return %s on every path", s.Name.Value, s.ReturnType)
	}
	return nil
}

func (a *Analyzer) checkReturn(s *ast.ReturnStatement) *token.CompileError {
	if a.curFunc == nil {
		// A top-level return sets the program's exit status.
		if s.Value == nil {
			return nil
		}
		got, err := a.checkExpression(s.Value)
		if err != nil {
			return err
		}
		if got.Kind() != types.IntKind {
			return token.NewError(s.Value.Tok(), token.TypeMismatch,
				"program exit status must be int, got %s", got)
		}
		return nil
	}
	want := a.curFunc.Decl.ReturnType
	if s.Value == nil {
		if want.Kind() != types.VoidKind {
			return token.NewError(s.Token, token.TypeMismatch,
				"function %q must return a value of type %s", a.curFunc.Sym.Name, want)
		}
		return nil
	}
	got, err := a.checkExpression(s.Value)
	if err != nil {
		return err
	}
	if want.Kind() == types.VoidKind {
		return token.NewError(s.Value.Tok(), token.TypeMismatch,
			"void function %q cannot return a value", a.curFunc.Sym.Name)
	}
	if !types.Assignable(got, want) {
		return token.NewError(s.Value.Tok(), token.TypeMismatch,
			"cannot return %s from function of type %s", got, want)
	}
	return nil
}

func (a *Analyzer) checkPrint(s *ast.PrintStatement) *token.CompileError {
	t, err := a.checkExpression(s.Value)
	if err != nil {
		return err
	}
	switch t.Kind() {
	case types.IntKind, types.BoolKind, types.StrKind:
		return nil
	}
	return token.NewError(s.Value.Tok(), token.TypeMismatch,
		"cannot print a value of type %s", t)
}

func (a *Analyzer) checkBlock(b *ast.BlockStatement) *token.CompileError {
	a.PushScope(BlockScope)
	defer a.PopScope()
	for _, stmt := range b.Statements {
		if err := a.checkStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

// blockReturns reports whether every control path through b ends in a return.
func blockReturns(b *ast.BlockStatement) bool {
	for _, stmt := range b.Statements {
		if stmtReturns(stmt) {
			return true
		}
	}
	return false
}

func stmtReturns(stmt ast.Statement) bool {
	switch s := stmt.(type) {
	case *ast.ReturnStatement:
		return true
	case *ast.IfStatement:
		return s.Alternative != nil && blockReturns(s.Consequence) && blockReturns(s.Alternative)
	case *ast.BlockStatement:
		return blockReturns(s)
	}
	// Loops may run zero iterations, so they never guarantee a return.
	return false
}
