package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velalang/vela/lexer"
	"github.com/velalang/vela/parser"
	"github.com/velalang/vela/sema"
)

func build(t *testing.T, input string) *Program {
	t.Helper()
	p := parser.New(lexer.New("test.vl", input))
	program := p.ParseProgram()
	require.Empty(t, p.Errors(), "unexpected parse errors")

	info, cerr := sema.NewAnalyzer().Analyze(program)
	require.Nil(t, cerr)

	prog, cerr := NewBuilder(info).Build(program)
	require.Nil(t, cerr)
	for _, fn := range prog.Funcs {
		require.NoError(t, Verify(fn), "function %s", fn.Name)
	}
	return prog
}

func TestEntryFunction(t *testing.T) {
	prog := build(t, `
let x: int = 1;
print(x);
`)
	require.Equal(t, EntryFunc, prog.Funcs[0].Name)

	// the fall-through exit returns 0
	var sawRetZero bool
	for _, blk := range prog.Funcs[0].Blocks {
		if blk.Term.Op == Ret && blk.Term.HasVal && blk.Term.Val.Kind == Const && blk.Term.Val.Imm == 0 {
			sawRetZero = true
		}
	}
	require.True(t, sawRetZero, "entry function should fall through to ret 0")
}

func TestTopLevelReturn(t *testing.T) {
	prog := build(t, `return 3;`)
	entry := prog.Funcs[0].Entry()
	require.Equal(t, Ret, entry.Term.Op)
	require.True(t, entry.Term.HasVal)
	require.Equal(t, int64(3), entry.Term.Val.Imm)
}

func TestFunctionOrder(t *testing.T) {
	prog := build(t, `
fn a() { }
fn b() { }
print(1);
`)
	require.Len(t, prog.Funcs, 3)
	require.Equal(t, EntryFunc, prog.Funcs[0].Name)
	require.Equal(t, "a", prog.Funcs[1].Name)
	require.Equal(t, "b", prog.Funcs[2].Name)
}

func TestWhileLoopShape(t *testing.T) {
	prog := build(t, `
let i: int = 0;
while (i < 3) {
    i = i + 1;
}
`)
	fn := prog.Funcs[0]

	// entry jumps to a preheader whose only job is to jump to the header
	entry := fn.Entry()
	require.Equal(t, Jmp, entry.Term.Op)
	pre := fn.Block(entry.Term.To)
	require.Empty(t, pre.Instrs)
	require.Equal(t, Jmp, pre.Term.Op)

	// the header tests the condition and branches to body or exit
	header := fn.Block(pre.Term.To)
	require.Equal(t, Br, header.Term.Op)

	// the body jumps back to the header
	body := fn.Block(header.Term.Then)
	require.Equal(t, Jmp, body.Term.Op)
	require.Equal(t, header.ID, body.Term.To)
}

func TestForLoopPost(t *testing.T) {
	prog := build(t, `
for (let i: int = 0; i < 3; i = i + 1) {
    print(i);
}
`)
	fn := prog.Funcs[0]

	var body *BasicBlock
	for _, blk := range fn.Blocks {
		if blk.Term.Op == Jmp {
			target := fn.Block(blk.Term.To)
			if target.Term.Op == Br && len(blk.Instrs) > 0 {
				body = blk
			}
		}
	}
	require.NotNil(t, body, "expected a body block jumping to the header")

	// the post assignment runs at the end of the body, after the print
	var sawCall, postAfterCall bool
	for _, in := range body.Instrs {
		if in.Op == Call {
			sawCall = true
		}
		if sawCall && in.Op == Mov && in.Dst.Kind == Global {
			postAfterCall = true
		}
	}
	require.True(t, postAfterCall, "post statement should follow the body")
}

func TestShortCircuitBranches(t *testing.T) {
	prog := build(t, `
fn f(a: bool, b: bool): int {
    if (a && b) {
        return 1;
    }
    return 0;
}
`)
	fn := prog.Funcs[1]

	// && lowers to two branches; b's test lives in its own block so it never
	// runs when a is false
	entry := fn.Entry()
	require.Equal(t, Br, entry.Term.Op)
	mid := fn.Block(entry.Term.Then)
	require.Equal(t, Br, mid.Term.Op)
	require.Equal(t, entry.Term.Else, mid.Term.Else, "both tests share the false target")
}

func TestShortCircuitValue(t *testing.T) {
	prog := build(t, `
let a: bool = true;
let b: bool = false;
let c: bool = a && b;
`)
	fn := prog.Funcs[0]

	// in value position both arms write the same temp before joining
	var stores []Value
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == Mov && in.Dst.Kind == Temp && in.A.Kind == Const &&
				(in.A.Imm == 0 || in.A.Imm == 1) && blk.Term.Op == Jmp {
				stores = append(stores, in.Dst)
			}
		}
	}
	require.Len(t, stores, 2)
	require.Equal(t, stores[0].ID, stores[1].ID, "arms must define the same temp")
}

func TestStringInterning(t *testing.T) {
	prog := build(t, `
print("hello");
print("world");
print("hello");
`)
	require.Len(t, prog.Strings, 2)
	require.Equal(t, "hello", prog.Strings[0].Value)
	require.Equal(t, "world", prog.Strings[1].Value)
}

func TestPrintDispatch(t *testing.T) {
	prog := build(t, `
print(1);
print(true);
print("s");
`)
	var callees []string
	for _, blk := range prog.Funcs[0].Blocks {
		for _, in := range blk.Instrs {
			if in.Op == Call {
				callees = append(callees, in.Callee)
			}
		}
	}
	require.Equal(t, []string{RTPrintInt, RTPrintBool, RTPrintStr}, callees)
}

func TestStringOps(t *testing.T) {
	prog := build(t, `
let s: string = "a" + "b";
let eq: bool = s == "ab";
let n: int = len(s);
`)
	var callees []string
	for _, blk := range prog.Funcs[0].Blocks {
		for _, in := range blk.Instrs {
			if in.Op == Call {
				callees = append(callees, in.Callee)
			}
		}
	}
	require.Equal(t, []string{RTConcat, RTStrEq, RTStrLen}, callees)
}

func TestArrayIndexing(t *testing.T) {
	prog := build(t, `
let xs: [int; 3] = [1, 2, 3];
xs[1] = xs[0] + xs[2];
`)
	fn := prog.Funcs[0]

	var loads, stores int
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			switch in.Op {
			case Load:
				loads++
			case Store:
				stores++
			}
		}
	}
	require.Equal(t, 2, loads, "reading xs[0] and xs[2]")
	// three literal element stores plus the indexed assignment
	require.Equal(t, 4, stores)
}

func TestNestedArrayLiteral(t *testing.T) {
	prog := build(t, `
let m: [[int; 2]; 2] = [[1, 2], [3, 4]];
print(m[1][0]);
`)
	fn := prog.Funcs[0]

	var stores int
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == Store {
				stores++
			}
		}
	}
	require.Equal(t, 4, stores, "one store per scalar element")
}

func TestCallLowering(t *testing.T) {
	prog := build(t, `
fn add(a: int, b: int): int {
    return a + b;
}
print(add(2, 3));
`)
	fn := prog.Funcs[0]

	var call *Instruction
	for _, blk := range fn.Blocks {
		for i := range blk.Instrs {
			if blk.Instrs[i].Op == Call && blk.Instrs[i].Callee == "add" {
				call = &blk.Instrs[i]
			}
		}
	}
	require.NotNil(t, call)
	require.Len(t, call.Args, 2)
	require.Equal(t, Temp, call.Dst.Kind, "non-void calls define a temp")
}

func TestVoidCallNoDst(t *testing.T) {
	prog := build(t, `
fn hello() {
    print("hi");
}
hello();
`)
	fn := prog.Funcs[0]
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == Call && in.Callee == "hello" {
				require.Equal(t, NoValue, in.Dst.Kind)
				return
			}
		}
	}
	t.Fatal("call to hello not found")
}

func TestFrameBytes(t *testing.T) {
	prog := build(t, `
fn f(xs: [int; 4], n: int): int {
    let acc: int = n;
    return acc + xs[0];
}
`)
	fn := prog.Funcs[1]
	// two pointer-sized params plus one scalar local
	require.Equal(t, 24, fn.FrameBytes())
}
