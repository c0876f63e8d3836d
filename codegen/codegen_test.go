package codegen

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velalang/vela/ir"
	"github.com/velalang/vela/lexer"
	"github.com/velalang/vela/parser"
	"github.com/velalang/vela/sema"
)

func emit(t *testing.T, target Target, input string) string {
	t.Helper()
	p := parser.New(lexer.New("test.vl", input))
	program := p.ParseProgram()
	require.Empty(t, p.Errors(), "unexpected parse errors")

	info, cerr := sema.NewAnalyzer().Analyze(program)
	require.Nil(t, cerr)

	prog, cerr := ir.NewBuilder(info).Build(program)
	require.Nil(t, cerr)
	for _, fn := range prog.Funcs {
		require.NoError(t, ir.Verify(fn))
	}

	asm, cerr := NewGenerator(target).Emit(prog)
	require.Nil(t, cerr)
	return asm
}

func TestByName(t *testing.T) {
	for _, name := range []string{"unix", "linux", "sysv"} {
		tgt, err := ByName(name)
		require.NoError(t, err)
		require.Equal(t, "unix", tgt.Name)
	}
	for _, name := range []string{"windows", "win64"} {
		tgt, err := ByName(name)
		require.NoError(t, err)
		require.Equal(t, "windows", tgt.Name)
		require.Equal(t, 32, tgt.ShadowBytes)
	}
	_, err := ByName("arm")
	require.Error(t, err)
}

func TestHeaderAndEntry(t *testing.T) {
	asm := emit(t, Unix, `print(1);`)
	require.Contains(t, asm, "default rel")
	require.Contains(t, asm, "global main")
	require.Contains(t, asm, "extern vela_print_int")
	require.Contains(t, asm, "section .text")
	require.Contains(t, asm, "\nmain:")
}

func TestMangling(t *testing.T) {
	asm := emit(t, Unix, `
fn add(a: int, b: int): int {
    return a + b;
}
print(add(1, 2));
`)
	require.Contains(t, asm, "\nv_add:")
	require.Contains(t, asm, "call v_add")
	require.NotContains(t, asm, "extern v_add")
}

func TestUnixArgRegisters(t *testing.T) {
	asm := emit(t, Unix, `
fn f(a: int, b: int, c: int): int {
    return a;
}
print(f(1, 2, 3));
`)
	require.Contains(t, asm, "mov rdi, 1")
	require.Contains(t, asm, "mov rsi, 2")
	require.Contains(t, asm, "mov rdx, 3")

	// the callee homes its register params into the frame
	require.Contains(t, asm, "mov [rbp-8], rdi")
	require.Contains(t, asm, "mov [rbp-16], rsi")
	require.Contains(t, asm, "mov [rbp-24], rdx")
}

func TestWindowsArgRegisters(t *testing.T) {
	asm := emit(t, Windows, `
fn f(a: int, b: int): int {
    return a;
}
print(f(7, 8));
`)
	require.Contains(t, asm, "mov rcx, 7")
	require.Contains(t, asm, "mov rdx, 8")
	require.Contains(t, asm, "mov [rbp-8], rcx")
	require.Contains(t, asm, "mov [rbp-16], rdx")
}

func TestWindowsFifthArgOnStack(t *testing.T) {
	asm := emit(t, Windows, `
fn f(a: int, b: int, c: int, d: int, e: int): int {
    return e;
}
print(f(1, 2, 3, 4, 5));
`)
	// the fifth argument goes past the 32-byte shadow space
	require.Contains(t, asm, "mov [rsp+32], rax")
	// and the callee reads it from above the saved frame plus the shadow
	require.Contains(t, asm, "mov rax, [rbp+48]")
	require.Contains(t, asm, "mov r8, 3")
	require.Contains(t, asm, "mov r9, 4")
}

func TestUnixSeventhArgOnStack(t *testing.T) {
	asm := emit(t, Unix, `
fn f(a: int, b: int, c: int, d: int, e: int, g: int, h: int): int {
    return h;
}
print(f(1, 2, 3, 4, 5, 6, 7));
`)
	require.Contains(t, asm, "mov [rsp+0], rax")
	require.Contains(t, asm, "mov rax, [rbp+16]")
}

func TestFrameAligned(t *testing.T) {
	asm := emit(t, Unix, `
fn f(a: int): int {
    let x: int = a + 1;
    let y: int = x * 2;
    return y;
}
print(f(1));
`)
	re := regexp.MustCompile(`sub rsp, (\d+)`)
	matches := re.FindAllStringSubmatch(asm, -1)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		require.NoError(t, err)
		require.Zero(t, n%16, "frame size %d must keep rsp 16-byte aligned", n)
	}
}

func TestLoopAssembly(t *testing.T) {
	asm := emit(t, Unix, `
let i: int = 0;
while (i < 5) {
    i = i + 1;
}
`)
	// pre-test loop: conditional jump into the body, unconditional back edge
	require.Contains(t, asm, "test rax, rax")
	require.Contains(t, asm, "jnz .bb")
	require.Regexp(t, `jmp \.bb\d+`, asm)
}

func TestComparisonSetcc(t *testing.T) {
	asm := emit(t, Unix, `
let a: int = 3;
let b: bool = a <= 4;
let c: bool = a == 3;
`)
	require.Contains(t, asm, "setle al")
	require.Contains(t, asm, "sete al")
	require.Contains(t, asm, "movzx rax, al")
}

func TestDivisionAndRemainder(t *testing.T) {
	asm := emit(t, Unix, `
fn f(a: int, b: int): int {
    return a / b + a % b;
}
`)
	require.Contains(t, asm, "cqo")
	require.Contains(t, asm, "idiv r10")
	require.Contains(t, asm, "mov rax, rdx")
}

func TestDataSections(t *testing.T) {
	asm := emit(t, Unix, `
let count: int = 2;
let grid: [[int; 2]; 2] = [[1, 2], [3, 4]];
print("ready");
`)
	require.Contains(t, asm, "section .data")
	require.Contains(t, asm, "str_0:\tdb 'ready', 0")
	require.Contains(t, asm, "section .bss")
	require.Contains(t, asm, "g_count_0:\tresb 8")
	require.Contains(t, asm, "g_grid_1:\tresb 32")
}

func TestShadowedGlobalLabels(t *testing.T) {
	asm := emit(t, Unix, `
let x: int = 1;
if (x > 0) {
    let x: bool = false;
    print(x);
}
print(x);
`)
	require.Contains(t, asm, "g_x_0:\tresb 8")
	require.Contains(t, asm, "g_x_1:\tresb 8")
	require.Equal(t, 1, strings.Count(asm, "g_x_0:"))
	require.Equal(t, 1, strings.Count(asm, "g_x_1:"))
}

func TestLoopCountersGetDistinctLabels(t *testing.T) {
	asm := emit(t, Unix, `
let total: int = 0;
for (let i: int = 0; i < 3; i = i + 1) {
    total = total + i;
}
for (let i: int = 0; i < 2; i = i + 1) {
    total = total + i;
}
print(total);
`)
	require.Contains(t, asm, "g_i_1:")
	require.Contains(t, asm, "g_i_2:")
	require.Equal(t, 1, strings.Count(asm, "g_i_1:"))
}

func TestStringEscaping(t *testing.T) {
	require.Equal(t, "'abc', 0", nasmBytes("abc"))
	require.Equal(t, "'it', 39, 's', 0", nasmBytes("it's"))
	require.Equal(t, "'a', 10, 'b', 0", nasmBytes("a\nb"))
	require.Equal(t, "0", nasmBytes(""))
}

func TestRetUsesEpilogue(t *testing.T) {
	asm := emit(t, Unix, `
fn f(a: int): int {
    if (a > 0) {
        return 1;
    }
    return 2;
}
`)
	// every return funnels through one epilogue per function
	body := asm[strings.Index(asm, "v_f:"):]
	require.GreaterOrEqual(t, strings.Count(body, "jmp .epilogue"), 2)
	require.Contains(t, body, "mov rsp, rbp")
	require.Contains(t, body, "pop rbp")
}

func TestGlobalAccess(t *testing.T) {
	asm := emit(t, Unix, `
let total: int = 0;
fn bump(n: int) {
    total = total + n;
}
bump(4);
`)
	require.Contains(t, asm, "mov rax, [g_total_0]")
	require.Contains(t, asm, "mov [g_total_0], rax")
}

// loopFunc builds entry -> header -> body -> header (back edge), with one
// temp defined before the loop and read on every iteration, plus a chain
// of fresh temps inside the body.
func loopFunc(bodyChain int) (*ir.Function, ir.Value) {
	fn := ir.NewFunction("f")
	entry := fn.Entry()
	inv := fn.NewTemp()
	entry.Append(ir.Instruction{Op: ir.Mov, Dst: inv, A: ir.ConstInt(7)})
	entry.Term = ir.Terminator{Op: ir.Jmp, To: 1}

	header := fn.NewBlock()
	cond := fn.NewTemp()
	header.Append(ir.Instruction{Op: ir.Lt, Dst: cond, A: inv, B: ir.ConstInt(100)})
	header.Term = ir.Terminator{Op: ir.Br, Cond: cond, Then: 2, Else: 3}

	body := fn.NewBlock()
	prev := fn.NewTemp()
	body.Append(ir.Instruction{Op: ir.Add, Dst: prev, A: inv, B: ir.ConstInt(1)})
	for i := 0; i < bodyChain; i++ {
		next := fn.NewTemp()
		body.Append(ir.Instruction{Op: ir.Add, Dst: next, A: prev, B: ir.ConstInt(1)})
		prev = next
	}
	body.Term = ir.Terminator{Op: ir.Jmp, To: 1}

	exit := fn.NewBlock()
	exit.Term = ir.Terminator{Op: ir.Ret, Val: ir.ConstInt(0), HasVal: true}
	return fn, inv
}

func TestLoopLiveIntervalReachesBackEdge(t *testing.T) {
	fn, inv := loopFunc(5)

	// the back edge ends at the body terminator: entry holds positions
	// 0-1, header 2-3, the body's 6 instructions 4-9 and its jump 10
	ivs := liveIntervals(fn)
	found := false
	for _, iv := range ivs {
		if iv.temp == inv.ID {
			require.Equal(t, 10, iv.end)
			found = true
		}
	}
	require.True(t, found)
}

func TestAllocatorProtectsLoopLiveTemps(t *testing.T) {
	fn, inv := loopFunc(5)
	alloc := allocate(fn)

	invReg, ok := alloc.Reg[inv.ID]
	if !ok {
		return // spilled temps reload from the frame on every use
	}
	for id, reg := range alloc.Reg {
		if id == inv.ID {
			continue
		}
		require.NotEqual(t, invReg, reg, "temp t%d shares %s with a loop-live temp", id, reg)
	}
}
