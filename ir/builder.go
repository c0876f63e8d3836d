package ir

import (
	"fmt"

	"github.com/velalang/vela/ast"
	"github.com/velalang/vela/sema"
	"github.com/velalang/vela/token"
	"github.com/velalang/vela/types"
)

// Runtime entry points the builder lowers language constructs to.
const (
	RTPrintInt  = "vela_print_int"
	RTPrintBool = "vela_print_bool"
	RTPrintStr  = "vela_print_str"
	RTConcat    = "vela_concat"
	RTStrEq     = "vela_streq"
	RTStrLen    = "vela_len"
)

// EntryFunc is the name of the implicit function built from top-level
// statements. Its return value is the process exit status.
const EntryFunc = "main"

// Builder lowers an analyzed program into IR.
type Builder struct {
	info *sema.Info
	prog *Program

	fn  *Function
	cur *BasicBlock

	strLabels map[string]string
}

func NewBuilder(info *sema.Info) *Builder {
	return &Builder{
		info:      info,
		prog:      &Program{Globals: info.Globals},
		strLabels: make(map[string]string),
	}
}

// Build produces one IR function per source function plus the implicit entry
// function, in deterministic order: entry first, then declaration order.
func (b *Builder) Build(program *ast.Program) (*Program, *token.CompileError) {
	b.fn = NewFunction(EntryFunc)
	b.cur = b.fn.Entry()
	b.prog.Funcs = append(b.prog.Funcs, b.fn)
	for _, stmt := range program.Statements {
		if _, ok := stmt.(*ast.FuncStatement); ok {
			continue
		}
		if err := b.lowerStmt(stmt); err != nil {
			return nil, err
		}
	}
	b.seal(ConstInt(0))

	for _, fi := range b.info.Funcs {
		fn := NewFunction(fi.Sym.Name)
		fn.Params = fi.Params
		fn.Locals = fi.Locals
		b.fn = fn
		b.cur = fn.Entry()
		b.prog.Funcs = append(b.prog.Funcs, fn)

		for _, stmt := range fi.Decl.Body.Statements {
			if err := b.lowerStmt(stmt); err != nil {
				return nil, err
			}
		}
		if fi.Decl.ReturnType.Kind() == types.VoidKind {
			b.seal(Value{})
		} else {
			// Reached only by unreachable fall-through blocks; the analyzer
			// has already proven every real path returns.
			b.seal(ConstInt(0))
		}
	}
	return b.prog, nil
}

// seal terminates every unterminated block with a return. The current block
// is the genuine fall-through exit; any others are unreachable join points.
func (b *Builder) seal(val Value) {
	for _, blk := range b.fn.Blocks {
		if blk.Term.Op != NoTerm {
			continue
		}
		if val.Kind == NoValue {
			blk.Term = Terminator{Op: Ret}
		} else {
			blk.Term = Terminator{Op: Ret, Val: val, HasVal: true}
		}
	}
}

func (b *Builder) lowerStmt(stmt ast.Statement) *token.CompileError {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		return b.lowerLet(s)
	case *ast.AssignStatement:
		return b.lowerAssign(s)
	case *ast.IfStatement:
		return b.lowerIf(s)
	case *ast.WhileStatement:
		return b.lowerWhile(s)
	case *ast.ForStatement:
		return b.lowerFor(s)
	case *ast.ReturnStatement:
		return b.lowerReturn(s)
	case *ast.PrintStatement:
		return b.lowerPrint(s)
	case *ast.BlockStatement:
		for _, inner := range s.Statements {
			if err := b.lowerStmt(inner); err != nil {
				return err
			}
		}
		return nil
	case *ast.ExpressionStatement:
		_, err := b.lowerExpr(s.Expression)
		return err
	default:
		return token.NewError(stmt.Tok(), token.UnsupportedConstruct,
			"cannot lower %T", stmt)
	}
}

func (b *Builder) lowerLet(s *ast.LetStatement) *token.CompileError {
	sym := b.info.Defs[s]
	dst := SlotVal(sym)
	if sym.Kind == sema.GlobalSymbol {
		dst = GlobalVal(sym)
	}

	if lit, ok := s.Value.(*ast.ArrayLiteral); ok {
		base := b.fn.NewTemp()
		b.cur.Append(Instruction{Op: Addr, Dst: base, A: dst})
		return b.storeArrayLiteral(base, 0, lit)
	}

	val, err := b.lowerExpr(s.Value)
	if err != nil {
		return err
	}
	b.cur.Append(Instruction{Op: Mov, Dst: dst, A: val})
	return nil
}

// storeArrayLiteral writes lit's elements into memory starting at base+offset.
// Nested literals recurse with an adjusted offset; the layout is contiguous
// row-major storage.
func (b *Builder) storeArrayLiteral(base Value, offset int, lit *ast.ArrayLiteral) *token.CompileError {
	elemSize := TypeSize(b.info.Types[lit.Elements[0]])
	for i, elem := range lit.Elements {
		at := offset + i*elemSize
		if nested, ok := elem.(*ast.ArrayLiteral); ok {
			if err := b.storeArrayLiteral(base, at, nested); err != nil {
				return err
			}
			continue
		}
		val, err := b.lowerExpr(elem)
		if err != nil {
			return err
		}
		addr := b.fn.NewTemp()
		b.cur.Append(Instruction{Op: Add, Dst: addr, A: base, B: ConstInt(int64(at))})
		b.cur.Append(Instruction{Op: Store, A: addr, B: val})
	}
	return nil
}

func (b *Builder) lowerAssign(s *ast.AssignStatement) *token.CompileError {
	val, err := b.lowerExpr(s.Value)
	if err != nil {
		return err
	}

	switch target := s.Target.(type) {
	case *ast.Identifier:
		sym := b.info.Uses[target]
		dst := SlotVal(sym)
		if sym.Kind == sema.GlobalSymbol {
			dst = GlobalVal(sym)
		}
		b.cur.Append(Instruction{Op: Mov, Dst: dst, A: val})
		return nil
	case *ast.IndexExpression:
		addr, err := b.lowerIndexAddr(target)
		if err != nil {
			return err
		}
		b.cur.Append(Instruction{Op: Store, A: addr, B: val})
		return nil
	}
	return token.NewError(s.Tok(), token.UnsupportedConstruct,
		"cannot assign to %T", s.Target)
}

func (b *Builder) lowerIf(s *ast.IfStatement) *token.CompileError {
	thenBlk := b.fn.NewBlock()
	var elseBlk *BasicBlock
	if s.Alternative != nil {
		elseBlk = b.fn.NewBlock()
	}
	done := b.fn.NewBlock()

	falseTarget := done
	if elseBlk != nil {
		falseTarget = elseBlk
	}
	if err := b.lowerCond(s.Condition, thenBlk, falseTarget); err != nil {
		return err
	}

	b.cur = thenBlk
	if err := b.lowerStmt(s.Consequence); err != nil {
		return err
	}
	if b.cur.Term.Op == NoTerm {
		b.cur.Term = Terminator{Op: Jmp, To: done.ID}
	}

	if elseBlk != nil {
		b.cur = elseBlk
		if err := b.lowerStmt(s.Alternative); err != nil {
			return err
		}
		if b.cur.Term.Op == NoTerm {
			b.cur.Term = Terminator{Op: Jmp, To: done.ID}
		}
	}

	b.cur = done
	return nil
}

// lowerWhile emits the canonical pre-test loop shape. The dedicated
// preheader is the landing pad loop optimization hoists into.
func (b *Builder) lowerWhile(s *ast.WhileStatement) *token.CompileError {
	preheader := b.fn.NewBlock()
	header := b.fn.NewBlock()
	body := b.fn.NewBlock()
	exit := b.fn.NewBlock()

	b.cur.Term = Terminator{Op: Jmp, To: preheader.ID}
	preheader.Term = Terminator{Op: Jmp, To: header.ID}

	b.cur = header
	if err := b.lowerCond(s.Condition, body, exit); err != nil {
		return err
	}

	b.cur = body
	if err := b.lowerStmt(s.Body); err != nil {
		return err
	}
	if b.cur.Term.Op == NoTerm {
		b.cur.Term = Terminator{Op: Jmp, To: header.ID}
	}

	b.cur = exit
	return nil
}

func (b *Builder) lowerFor(s *ast.ForStatement) *token.CompileError {
	if err := b.lowerStmt(s.Init); err != nil {
		return err
	}

	preheader := b.fn.NewBlock()
	header := b.fn.NewBlock()
	body := b.fn.NewBlock()
	exit := b.fn.NewBlock()

	b.cur.Term = Terminator{Op: Jmp, To: preheader.ID}
	preheader.Term = Terminator{Op: Jmp, To: header.ID}

	b.cur = header
	if err := b.lowerCond(s.Condition, body, exit); err != nil {
		return err
	}

	b.cur = body
	if err := b.lowerStmt(s.Body); err != nil {
		return err
	}
	if b.cur.Term.Op == NoTerm {
		if err := b.lowerStmt(s.Post); err != nil {
			return err
		}
		b.cur.Term = Terminator{Op: Jmp, To: header.ID}
	}

	b.cur = exit
	return nil
}

func (b *Builder) lowerReturn(s *ast.ReturnStatement) *token.CompileError {
	if s.Value == nil {
		if b.fn.Name == EntryFunc {
			b.cur.Term = Terminator{Op: Ret, Val: ConstInt(0), HasVal: true}
		} else {
			b.cur.Term = Terminator{Op: Ret}
		}
		return nil
	}
	val, err := b.lowerExpr(s.Value)
	if err != nil {
		return err
	}
	b.cur.Term = Terminator{Op: Ret, Val: val, HasVal: true}
	// Anything else in the source block is unreachable; give it a fresh
	// block so later statements have somewhere to go.
	b.cur = b.fn.NewBlock()
	return nil
}

func (b *Builder) lowerPrint(s *ast.PrintStatement) *token.CompileError {
	val, err := b.lowerExpr(s.Value)
	if err != nil {
		return err
	}
	callee := RTPrintInt
	switch b.info.Types[s.Value].Kind() {
	case types.BoolKind:
		callee = RTPrintBool
	case types.StrKind:
		callee = RTPrintStr
	}
	b.cur.Append(Instruction{Op: Call, Callee: callee, Args: []Value{val}})
	return nil
}

// lowerCond lowers a boolean expression as control flow into thenBlk or
// elseBlk. && and || branch so the untaken operand never executes.
func (b *Builder) lowerCond(expr ast.Expression, thenBlk, elseBlk *BasicBlock) *token.CompileError {
	switch e := expr.(type) {
	case *ast.InfixExpression:
		switch e.Operator {
		case token.LAND:
			mid := b.fn.NewBlock()
			if err := b.lowerCond(e.Left, mid, elseBlk); err != nil {
				return err
			}
			b.cur = mid
			return b.lowerCond(e.Right, thenBlk, elseBlk)
		case token.LOR:
			mid := b.fn.NewBlock()
			if err := b.lowerCond(e.Left, thenBlk, mid); err != nil {
				return err
			}
			b.cur = mid
			return b.lowerCond(e.Right, thenBlk, elseBlk)
		}
	case *ast.PrefixExpression:
		if e.Operator == token.NOT {
			return b.lowerCond(e.Right, elseBlk, thenBlk)
		}
	}

	val, err := b.lowerExpr(expr)
	if err != nil {
		return err
	}
	b.cur.Term = Terminator{Op: Br, Cond: val, Then: thenBlk.ID, Else: elseBlk.ID}
	return nil
}

var infixOps = map[token.TokenType]Op{
	token.ADD: Add,
	token.SUB: Sub,
	token.MUL: Mul,
	token.QUO: Div,
	token.REM: Rem,
	token.EQL: Eq,
	token.NEQ: Ne,
	token.LSS: Lt,
	token.LEQ: Le,
	token.GTR: Gt,
	token.GEQ: Ge,
}

func (b *Builder) lowerExpr(expr ast.Expression) (Value, *token.CompileError) {
	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		return ConstInt(e.Value), nil
	case *ast.BooleanLiteral:
		return ConstBool(e.Value), nil
	case *ast.StringLiteral:
		return StrVal(b.intern(e.Value)), nil
	case *ast.Identifier:
		return b.lowerIdent(e), nil
	case *ast.PrefixExpression:
		return b.lowerPrefix(e)
	case *ast.InfixExpression:
		return b.lowerInfix(e)
	case *ast.IndexExpression:
		return b.lowerIndex(e)
	case *ast.CallExpression:
		return b.lowerCall(e)
	}
	return Value{}, token.NewError(expr.Tok(), token.UnsupportedConstruct,
		"cannot lower expression %T", expr)
}

// lowerIdent materializes a variable reference in a temporary. Scalars are
// read from their slot; arrays evaluate to their base address (params hold
// the pointer in their slot, locals and globals are the storage itself).
func (b *Builder) lowerIdent(e *ast.Identifier) Value {
	sym := b.info.Uses[e]
	src := SlotVal(sym)
	if sym.Kind == sema.GlobalSymbol {
		src = GlobalVal(sym)
	}

	dst := b.fn.NewTemp()
	op := Mov
	if sym.Type.Kind() == types.ArrayKind && sym.Kind != sema.ParamSymbol {
		op = Addr
	}
	b.cur.Append(Instruction{Op: op, Dst: dst, A: src})
	return dst
}

func (b *Builder) lowerPrefix(e *ast.PrefixExpression) (Value, *token.CompileError) {
	// !x in value position still short-circuits through lowerCond when x
	// contains && or ||; a plain operand just negates.
	val, err := b.lowerExpr(e.Right)
	if err != nil {
		return Value{}, err
	}
	dst := b.fn.NewTemp()
	op := Neg
	if e.Operator == token.NOT {
		op = Not
	}
	b.cur.Append(Instruction{Op: op, Dst: dst, A: val})
	return dst, nil
}

func (b *Builder) lowerInfix(e *ast.InfixExpression) (Value, *token.CompileError) {
	switch e.Operator {
	case token.LAND, token.LOR:
		return b.lowerShortCircuit(e)
	}

	left, err := b.lowerExpr(e.Left)
	if err != nil {
		return Value{}, err
	}
	right, err := b.lowerExpr(e.Right)
	if err != nil {
		return Value{}, err
	}

	if b.info.Types[e.Left].Kind() == types.StrKind {
		return b.lowerStringOp(e.Operator, left, right)
	}

	dst := b.fn.NewTemp()
	b.cur.Append(Instruction{Op: infixOps[e.Operator], Dst: dst, A: left, B: right})
	return dst, nil
}

func (b *Builder) lowerStringOp(op token.TokenType, left, right Value) (Value, *token.CompileError) {
	dst := b.fn.NewTemp()
	switch op {
	case token.ADD:
		b.cur.Append(Instruction{Op: Call, Dst: dst, Callee: RTConcat, Args: []Value{left, right}})
		return dst, nil
	case token.EQL:
		b.cur.Append(Instruction{Op: Call, Dst: dst, Callee: RTStrEq, Args: []Value{left, right}})
		return dst, nil
	case token.NEQ:
		eq := b.fn.NewTemp()
		b.cur.Append(Instruction{Op: Call, Dst: eq, Callee: RTStrEq, Args: []Value{left, right}})
		b.cur.Append(Instruction{Op: Not, Dst: dst, A: eq})
		return dst, nil
	}
	return Value{}, &token.CompileError{
		Kind: token.UnsupportedConstruct,
		Msg:  fmt.Sprintf("operator %s is not defined on strings", op),
	}
}

// lowerShortCircuit materializes && or || as a value: both arms write the
// same temporary, so it is defined on every path into the join block.
func (b *Builder) lowerShortCircuit(e *ast.InfixExpression) (Value, *token.CompileError) {
	thenBlk := b.fn.NewBlock()
	elseBlk := b.fn.NewBlock()
	done := b.fn.NewBlock()

	if err := b.lowerCond(e, thenBlk, elseBlk); err != nil {
		return Value{}, err
	}

	dst := b.fn.NewTemp()
	thenBlk.Append(Instruction{Op: Mov, Dst: dst, A: ConstInt(1)})
	thenBlk.Term = Terminator{Op: Jmp, To: done.ID}
	elseBlk.Append(Instruction{Op: Mov, Dst: dst, A: ConstInt(0)})
	elseBlk.Term = Terminator{Op: Jmp, To: done.ID}

	b.cur = done
	return dst, nil
}

// lowerIndexAddr computes the address of an indexed element:
// base + index*elemsize, with nested strides handled by recursion on the
// left operand. No bounds check is emitted.
func (b *Builder) lowerIndexAddr(e *ast.IndexExpression) (Value, *token.CompileError) {
	var base Value
	switch left := e.Left.(type) {
	case *ast.Identifier:
		base = b.lowerIdent(left)
	case *ast.IndexExpression:
		inner, err := b.lowerIndexAddr(left)
		if err != nil {
			return Value{}, err
		}
		base = inner
	default:
		return Value{}, token.NewError(e.Tok(), token.UnsupportedConstruct,
			"cannot index %T", e.Left)
	}

	idx, err := b.lowerExpr(e.Index)
	if err != nil {
		return Value{}, err
	}
	elemSize := int64(TypeSize(b.info.Types[e]))

	off := b.fn.NewTemp()
	b.cur.Append(Instruction{Op: Mul, Dst: off, A: idx, B: ConstInt(elemSize)})
	addr := b.fn.NewTemp()
	b.cur.Append(Instruction{Op: Add, Dst: addr, A: base, B: off})
	return addr, nil
}

func (b *Builder) lowerIndex(e *ast.IndexExpression) (Value, *token.CompileError) {
	addr, err := b.lowerIndexAddr(e)
	if err != nil {
		return Value{}, err
	}
	// Indexing into a nested array yields the sub-array's address itself.
	if b.info.Types[e].Kind() == types.ArrayKind {
		return addr, nil
	}
	dst := b.fn.NewTemp()
	b.cur.Append(Instruction{Op: Load, Dst: dst, A: addr})
	return dst, nil
}

func (b *Builder) lowerCall(e *ast.CallExpression) (Value, *token.CompileError) {
	args := make([]Value, len(e.Arguments))
	for i, arg := range e.Arguments {
		val, err := b.lowerExpr(arg)
		if err != nil {
			return Value{}, err
		}
		args[i] = val
	}

	callee := e.Function.Value
	sym := b.info.Uses[e.Function]
	if sym.Kind == sema.BuiltinSymbol {
		callee = RTStrLen // len is the only builtin function
	}

	fnType := sym.Type.(types.Func)
	in := Instruction{Op: Call, Callee: callee, Args: args}
	if fnType.Return.Kind() != types.VoidKind {
		in.Dst = b.fn.NewTemp()
	}
	b.cur.Append(in)
	return in.Dst, nil
}

// intern deduplicates string literals into labeled data-section entries.
func (b *Builder) intern(s string) string {
	if label, ok := b.strLabels[s]; ok {
		return label
	}
	label := fmt.Sprintf("str_%d", len(b.prog.Strings))
	b.strLabels[s] = label
	b.prog.Strings = append(b.prog.Strings, StringLit{Label: label, Value: s})
	return label
}
