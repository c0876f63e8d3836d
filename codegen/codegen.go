// Package codegen turns optimized IR into NASM assembly for x86-64. One
// Generator emits a complete translation unit: text section with every
// function, data section with the string literals, bss with the globals.
// The output assembles with nasm -f elf64 or -f win64 and links against the
// C runtime.
package codegen

import (
	"fmt"
	"strings"

	"github.com/velalang/vela/ir"
	"github.com/velalang/vela/sema"
	"github.com/velalang/vela/token"
	"github.com/velalang/vela/types"
)

type Generator struct {
	target Target
	prog   *ir.Program
	out    *strings.Builder

	fn        *ir.Function
	alloc     *Allocation
	slotOff   map[*sema.Symbol]int // rbp-relative, positive means below rbp
	saveOff   map[string]int       // frame slots for callee-saved registers
	spillBase int
	callArea  int
	frameSize int

	userFuncs map[string]bool
	externs   map[string]bool
}

func NewGenerator(target Target) *Generator {
	return &Generator{
		target:  target,
		externs: make(map[string]bool),
	}
}

// Emit lowers the whole program to one assembly file.
func (g *Generator) Emit(prog *ir.Program) (string, *token.CompileError) {
	g.prog = prog
	g.userFuncs = make(map[string]bool, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		g.userFuncs[fn.Name] = true
	}

	// Functions first so the extern set is complete before the header.
	text := &strings.Builder{}
	g.out = text
	for _, fn := range prog.Funcs {
		if err := g.emitFunction(fn); err != nil {
			return "", err
		}
	}

	g.out = &strings.Builder{}
	g.emitHeader()
	g.out.WriteString(text.String())
	g.emitData()
	return g.out.String(), nil
}

func (g *Generator) emitHeader() {
	g.writef("default rel\n")
	g.writef("global %s\n", EntryName)
	externs := make([]string, 0, len(g.externs))
	for name := range g.externs {
		externs = append(externs, name)
	}
	// deterministic output
	for i := 1; i < len(externs); i++ {
		for j := i; j > 0 && externs[j] < externs[j-1]; j-- {
			externs[j], externs[j-1] = externs[j-1], externs[j]
		}
	}
	for _, name := range externs {
		g.writef("extern %s\n", name)
	}
	g.writef("\nsection .text\n")
}

// EntryName is the symbol the C runtime's startup calls into.
const EntryName = "main"

// mangle keeps the entry point linkable as C main and prefixes everything
// else so user names cannot collide with libc or the runtime.
func (g *Generator) mangle(name string) string {
	if !g.userFuncs[name] {
		g.externs[name] = true
		return name
	}
	if name == ir.EntryFunc {
		return EntryName
	}
	return "v_" + name
}

func (g *Generator) emitFunction(fn *ir.Function) *token.CompileError {
	g.fn = fn
	g.alloc = allocate(fn)
	g.layoutFrame(fn)

	name := g.mangle(fn.Name)
	g.writef("\n%s:\n", name)
	g.writef("\tpush rbp\n")
	g.writef("\tmov rbp, rsp\n")
	if g.frameSize > 0 {
		g.writef("\tsub rsp, %d\n", g.frameSize)
	}
	for _, reg := range g.alloc.Used {
		g.writef("\tmov [rbp-%d], %s\n", g.saveOff[reg], reg)
	}
	g.spillParams(fn)

	for _, blk := range fn.Blocks {
		g.writef(".bb%d:\n", blk.ID)
		for i := range blk.Instrs {
			if err := g.emitInstr(&blk.Instrs[i]); err != nil {
				return err
			}
		}
		g.emitTerm(blk)
	}

	g.writef(".epilogue:\n")
	for _, reg := range g.alloc.Used {
		g.writef("\tmov %s, [rbp-%d]\n", reg, g.saveOff[reg])
	}
	g.writef("\tmov rsp, rbp\n")
	g.writef("\tpop rbp\n")
	g.writef("\tret\n")
	return nil
}

// layoutFrame assigns every slot, spill and saved register a spot below
// rbp and sizes the outgoing call area, keeping rsp 16-byte aligned at
// every call site.
func (g *Generator) layoutFrame(fn *ir.Function) {
	g.slotOff = make(map[*sema.Symbol]int)
	g.saveOff = make(map[string]int)

	off := 0
	take := func(n int) int {
		off += n
		return off
	}
	for _, sym := range fn.Params {
		// Arrays arrive as a pointer, so every param is one word.
		g.slotOff[sym] = take(8)
	}
	for _, sym := range fn.Locals {
		g.slotOff[sym] = take(ir.TypeSize(sym.Type))
	}
	for _, reg := range g.alloc.Used {
		g.saveOff[reg] = take(8)
	}
	g.spillBase = off
	off += g.alloc.Spills * 8

	g.callArea = g.target.ShadowBytes + 8*g.maxStackArgs(fn)
	off += g.callArea

	g.frameSize = (off + 15) &^ 15
}

func (g *Generator) maxStackArgs(fn *ir.Function) int {
	max := 0
	for _, blk := range fn.Blocks {
		for i := range blk.Instrs {
			in := &blk.Instrs[i]
			if in.Op != ir.Call {
				continue
			}
			if n := len(in.Args) - len(g.target.ArgRegs); n > max {
				max = n
			}
		}
	}
	return max
}

// spillParams homes incoming arguments into their frame slots.
func (g *Generator) spillParams(fn *ir.Function) {
	nreg := len(g.target.ArgRegs)
	for i, sym := range fn.Params {
		if i < nreg {
			g.writef("\tmov [rbp-%d], %s\n", g.slotOff[sym], g.target.ArgRegs[i])
			continue
		}
		// Stack args sit above the saved rbp and return address, past the
		// shadow space when the ABI has one.
		src := 16 + g.target.ShadowBytes + 8*(i-nreg)
		g.writef("\tmov rax, [rbp+%d]\n", src)
		g.writef("\tmov [rbp-%d], rax\n", g.slotOff[sym])
	}
}

func (g *Generator) spillOff(slot int) int {
	return g.spillBase + 8*(slot+1)
}

// loadTo emits whatever it takes to place v in reg.
func (g *Generator) loadTo(reg string, v ir.Value) {
	switch v.Kind {
	case ir.Const:
		g.writef("\tmov %s, %d\n", reg, v.Imm)
	case ir.Temp:
		if r, ok := g.alloc.Reg[v.ID]; ok {
			if r != reg {
				g.writef("\tmov %s, %s\n", reg, r)
			}
			return
		}
		g.writef("\tmov %s, [rbp-%d]\n", reg, g.spillOff(g.alloc.Spill[v.ID]))
	case ir.Slot:
		g.writef("\tmov %s, [rbp-%d]\n", reg, g.slotOff[v.Sym])
	case ir.Global:
		g.writef("\tmov %s, [%s]\n", reg, globalLabel(v.Sym))
	case ir.StrConst:
		g.writef("\tlea %s, [%s]\n", reg, v.Name)
	}
}

// storeFrom writes reg into the location of dst.
func (g *Generator) storeFrom(reg string, dst ir.Value) {
	switch dst.Kind {
	case ir.Temp:
		if r, ok := g.alloc.Reg[dst.ID]; ok {
			if r != reg {
				g.writef("\tmov %s, %s\n", r, reg)
			}
			return
		}
		g.writef("\tmov [rbp-%d], %s\n", g.spillOff(g.alloc.Spill[dst.ID]), reg)
	case ir.Slot:
		g.writef("\tmov [rbp-%d], %s\n", g.slotOff[dst.Sym], reg)
	case ir.Global:
		g.writef("\tmov [%s], %s\n", globalLabel(dst.Sym), reg)
	}
}

var setcc = map[ir.Op]string{
	ir.Eq: "sete",
	ir.Ne: "setne",
	ir.Lt: "setl",
	ir.Le: "setle",
	ir.Gt: "setg",
	ir.Ge: "setge",
}

func (g *Generator) emitInstr(in *ir.Instruction) *token.CompileError {
	switch in.Op {
	case ir.Mov:
		g.loadTo("rax", in.A)
		g.storeFrom("rax", in.Dst)

	case ir.Add, ir.Sub, ir.Mul:
		g.loadTo("rax", in.A)
		g.loadTo("r10", in.B)
		switch in.Op {
		case ir.Add:
			g.writef("\tadd rax, r10\n")
		case ir.Sub:
			g.writef("\tsub rax, r10\n")
		case ir.Mul:
			g.writef("\timul rax, r10\n")
		}
		g.storeFrom("rax", in.Dst)

	case ir.Div, ir.Rem:
		g.loadTo("rax", in.A)
		g.loadTo("r10", in.B)
		g.writef("\tcqo\n")
		g.writef("\tidiv r10\n")
		if in.Op == ir.Rem {
			g.writef("\tmov rax, rdx\n")
		}
		g.storeFrom("rax", in.Dst)

	case ir.Neg:
		g.loadTo("rax", in.A)
		g.writef("\tneg rax\n")
		g.storeFrom("rax", in.Dst)

	case ir.Not:
		g.loadTo("rax", in.A)
		g.writef("\ttest rax, rax\n")
		g.writef("\tsete al\n")
		g.writef("\tmovzx rax, al\n")
		g.storeFrom("rax", in.Dst)

	case ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge:
		g.loadTo("rax", in.A)
		g.loadTo("r10", in.B)
		g.writef("\tcmp rax, r10\n")
		g.writef("\t%s al\n", setcc[in.Op])
		g.writef("\tmovzx rax, al\n")
		g.storeFrom("rax", in.Dst)

	case ir.Addr:
		switch in.A.Kind {
		case ir.Slot:
			g.writef("\tlea rax, [rbp-%d]\n", g.slotOff[in.A.Sym])
		case ir.Global:
			g.writef("\tlea rax, [%s]\n", globalLabel(in.A.Sym))
		default:
			return &token.CompileError{Kind: token.CodeGenFailure,
				Msg: fmt.Sprintf("addr of %v operand", in.A.Kind)}
		}
		g.storeFrom("rax", in.Dst)

	case ir.Load:
		g.loadTo("r10", in.A)
		g.writef("\tmov rax, [r10]\n")
		g.storeFrom("rax", in.Dst)

	case ir.Store:
		g.loadTo("r10", in.A)
		g.loadTo("rax", in.B)
		g.writef("\tmov [r10], rax\n")

	case ir.Call:
		g.emitCall(in)

	default:
		return &token.CompileError{Kind: token.CodeGenFailure,
			Msg: fmt.Sprintf("cannot select %s", in.Op)}
	}
	return nil
}

func (g *Generator) emitCall(in *ir.Instruction) {
	nreg := len(g.target.ArgRegs)
	// Stack args first so rax stays free as the shuttle, then registers.
	for i := nreg; i < len(in.Args); i++ {
		g.loadTo("rax", in.Args[i])
		g.writef("\tmov [rsp+%d], rax\n", g.target.ShadowBytes+8*(i-nreg))
	}
	for i := 0; i < len(in.Args) && i < nreg; i++ {
		g.loadTo(g.target.ArgRegs[i], in.Args[i])
	}
	g.writef("\tcall %s\n", g.mangle(in.Callee))
	if in.Dst.Kind != ir.NoValue {
		g.storeFrom("rax", in.Dst)
	}
}

func (g *Generator) emitTerm(blk *ir.BasicBlock) {
	switch blk.Term.Op {
	case ir.Jmp:
		g.writef("\tjmp .bb%d\n", blk.Term.To)
	case ir.Br:
		g.loadTo("rax", blk.Term.Cond)
		g.writef("\ttest rax, rax\n")
		g.writef("\tjnz .bb%d\n", blk.Term.Then)
		g.writef("\tjmp .bb%d\n", blk.Term.Else)
	case ir.Ret:
		if blk.Term.HasVal {
			g.loadTo("rax", blk.Term.Val)
		} else {
			g.writef("\txor eax, eax\n")
		}
		g.writef("\tjmp .epilogue\n")
	}
}

func (g *Generator) emitData() {
	if len(g.prog.Strings) > 0 {
		g.writef("\nsection .data\n")
		for _, lit := range g.prog.Strings {
			g.writef("%s:\tdb %s\n", lit.Label, nasmBytes(lit.Value))
		}
	}
	if len(g.prog.Globals) > 0 {
		g.writef("\nsection .bss\n")
		for _, sym := range g.prog.Globals {
			g.writef("%s:\tresb %d\n", globalLabel(sym), globalSize(sym.Type))
		}
	}
}

// globalLabel carries the symbol's slot so shadowed names get distinct
// storage; top-level blocks may legally redeclare a name the outer scope
// already uses.
func globalLabel(sym *sema.Symbol) string {
	return fmt.Sprintf("g_%s_%d", sym.Name, sym.Slot)
}

func globalSize(t types.Type) int {
	return ir.TypeSize(t)
}

// nasmBytes renders s as a NASM db operand list with a NUL terminator.
// Printable ASCII goes in quoted runs; everything else is a numeric byte,
// so the output never depends on NASM escape handling.
func nasmBytes(s string) string {
	var parts []string
	var run []byte
	flush := func() {
		if len(run) > 0 {
			parts = append(parts, "'"+string(run)+"'")
			run = run[:0]
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c < 0x7f && c != '\'' {
			run = append(run, c)
			continue
		}
		flush()
		parts = append(parts, fmt.Sprintf("%d", c))
	}
	flush()
	parts = append(parts, "0")
	return strings.Join(parts, ", ")
}

func (g *Generator) writef(format string, args ...any) {
	fmt.Fprintf(g.out, format, args...)
}
