package sema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velalang/vela/ast"
	"github.com/velalang/vela/lexer"
	"github.com/velalang/vela/parser"
	"github.com/velalang/vela/token"
	"github.com/velalang/vela/types"
)

func analyze(t *testing.T, input string) (*Info, *token.CompileError) {
	t.Helper()
	p := parser.New(lexer.New("test.vl", input))
	program := p.ParseProgram()
	require.Empty(t, p.Errors(), "unexpected parse errors")
	return NewAnalyzer().Analyze(program)
}

func analyzeOK(t *testing.T, input string) *Info {
	t.Helper()
	info, err := analyze(t, input)
	require.Nil(t, err)
	return info
}

func analyzeErr(t *testing.T, input string) *token.CompileError {
	t.Helper()
	_, err := analyze(t, input)
	require.NotNil(t, err, "expected an error for %q", input)
	return err
}

func TestValidProgram(t *testing.T) {
	info := analyzeOK(t, `
let limit: int = 10;
fn square(n: int): int {
    return n * n;
}
let total: int = square(limit);
print(total);
`)
	require.Len(t, info.Globals, 2)
	require.Equal(t, "limit", info.Globals[0].Name)
	require.Equal(t, 0, info.Globals[0].Slot)
	require.Equal(t, "total", info.Globals[1].Name)

	fi := info.FuncNamed("square")
	require.NotNil(t, fi)
	require.Len(t, fi.Params, 1)
	require.Equal(t, ParamSymbol, fi.Params[0].Kind)
	require.Equal(t, 0, fi.Params[0].Slot)
}

func TestExpressionTypes(t *testing.T) {
	p := parser.New(lexer.New("test.vl", `
let a: int = 1 + 2 * 3;
let b: bool = a < 10 && a != 4;
let s: string = "x" + "y";
let n: int = len(s);
`))
	program := p.ParseProgram()
	require.Empty(t, p.Errors())
	info, err := NewAnalyzer().Analyze(program)
	require.Nil(t, err)

	exprTypes := []types.Type{types.Int, types.Bool, types.Str, types.Int}
	for i, want := range exprTypes {
		let := program.Statements[i].(*ast.LetStatement)
		require.Equal(t, want, info.Types[let.Value], "statement %d", i)
	}
}

func TestForwardReference(t *testing.T) {
	analyzeOK(t, `
fn even(n: int): bool {
    if (n == 0) { return true; }
    return odd(n - 1);
}
fn odd(n: int): bool {
    if (n == 0) { return false; }
    return even(n - 1);
}
`)
}

func TestShadowing(t *testing.T) {
	analyzeOK(t, `
let x: int = 1;
if (true) {
    let x: bool = false;
    print(x);
}
print(x);
`)
}

func TestArrays(t *testing.T) {
	info := analyzeOK(t, `
let xs: [int; 3] = [1, 2, 3];
let m: [[int; 2]; 2] = [[1, 2], [3, 4]];
xs[0] = m[1][0];
fn sum(vals: [int], n: int): int {
    let acc: int = 0;
    for (let i: int = 0; i < n; i = i + 1) {
        acc = acc + vals[i];
    }
    return acc;
}
print(sum(xs, 3));
`)
	require.Equal(t, types.Array{Elem: types.Int, Len: 3}, info.Globals[0].Type)
}

func TestTopLevelReturn(t *testing.T) {
	analyzeOK(t, `
let code: int = 3;
return code;
`)
	err := analyzeErr(t, `return true;`)
	require.Equal(t, token.TypeMismatch, err.Kind)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  token.ErrorKind
	}{
		{"undeclared", "print(x);", token.UndeclaredIdentifier},
		{"redeclared var", "let x: int = 1; let x: int = 2;", token.Redeclaration},
		{"redeclared fn", "fn f() { } fn f() { }", token.Redeclaration},
		{"dup param", "fn f(a: int, a: int) { }", token.Redeclaration},
		{"let mismatch", "let x: int = true;", token.TypeMismatch},
		{"assign mismatch", "let x: int = 1; x = false;", token.TypeMismatch},
		{"cond not bool", "if (1) { }", token.TypeMismatch},
		{"while not bool", "while (1 + 2) { }", token.TypeMismatch},
		{"arith on bool", "let x: int = true + false;", token.TypeMismatch},
		{"ordered on string", `let b: bool = "a" < "b";`, token.TypeMismatch},
		{"logic on int", "let b: bool = 1 && 2;", token.TypeMismatch},
		{"arity", "fn f(a: int): int { return a; } let x: int = f(1, 2);", token.ArityMismatch},
		{"arg type", "fn f(a: int): int { return a; } let x: int = f(true);", token.TypeMismatch},
		{"missing return", "fn f(): int { let x: int = 1; }", token.MissingReturn},
		{"loop no return", "fn f(): int { while (true) { return 1; } }", token.MissingReturn},
		{"index not int", "let xs: [int; 2] = [1, 2]; print(xs[true]);", token.InvalidIndexType},
		{"index non-array", "let x: int = 1; print(x[0]);", token.TypeMismatch},
		{"assign to fn", "fn f() { } f = 1;", token.TypeMismatch},
		{"whole array assign", "let a: [int; 2] = [1, 2]; let b: [int; 2] = [3, 4]; a = b;", token.UnsupportedConstruct},
		{"array from expr", "let a: [int; 2] = [1, 2]; let b: [int; 2] = a;", token.UnsupportedConstruct},
		{"array return", "fn f(): [int; 2] { }", token.UnsupportedConstruct},
		{"nested fn", "fn f() { fn g() { } }", token.UnsupportedConstruct},
		{"void in let", "fn f() { } let x: int = f();", token.TypeMismatch},
		{"print array", "let a: [int; 2] = [1, 2]; print(a);", token.TypeMismatch},
		{"mixed literal", "let a: [int; 2] = [1, true];", token.TypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := analyzeErr(t, tt.input)
			require.Equal(t, tt.kind, err.Kind, "message: %s", err.Msg)
		})
	}
}

func TestIfBothBranchesReturn(t *testing.T) {
	analyzeOK(t, `
fn sign(n: int): int {
    if (n < 0) {
        return -1;
    } else {
        return 1;
    }
}
`)
}

func TestParamArrayLength(t *testing.T) {
	// a [int] parameter accepts any fixed-length int array
	analyzeOK(t, `
let a: [int; 2] = [1, 2];
let b: [int; 5] = [1, 2, 3, 4, 5];
fn first(xs: [int]): int { return xs[0]; }
print(first(a));
print(first(b));
`)
	// but a sized parameter requires a matching length
	err := analyzeErr(t, `
let a: [int; 2] = [1, 2];
fn first(xs: [int; 3]): int { return xs[0]; }
print(first(a));
`)
	require.Equal(t, token.TypeMismatch, err.Kind)
}

func TestScopeEndsWithBlock(t *testing.T) {
	err := analyzeErr(t, `
if (true) {
    let y: int = 1;
}
print(y);
`)
	require.Equal(t, token.UndeclaredIdentifier, err.Kind)
}
