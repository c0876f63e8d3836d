package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velalang/vela/token"
)

type lexTest struct {
	expectedType    token.TokenType
	expectedLiteral string
}

func checkInput(t *testing.T, input string, tests []lexTest) {
	t.Helper()
	l := New("test.vl", input)
	for i, tt := range tests {
		tok := l.NextToken()
		require.Equal(t, tt.expectedType, tok.Type, "tests[%d] token type", i)
		require.Equal(t, tt.expectedLiteral, tok.Literal, "tests[%d] literal", i)
	}
}

func TestNextToken(t *testing.T) {
	input := `let five: int = 5;
// a comment
let ten: int = 10;
fn add(x: int, y: int): int {
    return x + y;
}
let result: int = add(five, ten);
!true;
5 < 10;
10 >= 5;
a == b;
a != b;
x && y || !z;
print("hi");
`
	tests := []lexTest{
		{token.LET, "let"}, {token.IDENT, "five"}, {token.COLON, ":"},
		{token.IDENT, "int"}, {token.ASSIGN, "="}, {token.INT, "5"}, {token.SEMI, ";"},
		{token.LET, "let"}, {token.IDENT, "ten"}, {token.COLON, ":"},
		{token.IDENT, "int"}, {token.ASSIGN, "="}, {token.INT, "10"}, {token.SEMI, ";"},
		{token.FN, "fn"}, {token.IDENT, "add"}, {token.LPAREN, "("},
		{token.IDENT, "x"}, {token.COLON, ":"}, {token.IDENT, "int"}, {token.COMMA, ","},
		{token.IDENT, "y"}, {token.COLON, ":"}, {token.IDENT, "int"}, {token.RPAREN, ")"},
		{token.COLON, ":"}, {token.IDENT, "int"}, {token.LBRACE, "{"},
		{token.RETURN, "return"}, {token.IDENT, "x"}, {token.ADD, "+"},
		{token.IDENT, "y"}, {token.SEMI, ";"},
		{token.RBRACE, "}"},
		{token.LET, "let"}, {token.IDENT, "result"}, {token.COLON, ":"},
		{token.IDENT, "int"}, {token.ASSIGN, "="}, {token.IDENT, "add"},
		{token.LPAREN, "("}, {token.IDENT, "five"}, {token.COMMA, ","},
		{token.IDENT, "ten"}, {token.RPAREN, ")"}, {token.SEMI, ";"},
		{token.NOT, "!"}, {token.TRUE, "true"}, {token.SEMI, ";"},
		{token.INT, "5"}, {token.LSS, "<"}, {token.INT, "10"}, {token.SEMI, ";"},
		{token.INT, "10"}, {token.GEQ, ">="}, {token.INT, "5"}, {token.SEMI, ";"},
		{token.IDENT, "a"}, {token.EQL, "=="}, {token.IDENT, "b"}, {token.SEMI, ";"},
		{token.IDENT, "a"}, {token.NEQ, "!="}, {token.IDENT, "b"}, {token.SEMI, ";"},
		{token.IDENT, "x"}, {token.LAND, "&&"}, {token.IDENT, "y"},
		{token.LOR, "||"}, {token.NOT, "!"}, {token.IDENT, "z"}, {token.SEMI, ";"},
		{token.PRINT, "print"}, {token.LPAREN, "("}, {token.STRING, "hi"},
		{token.RPAREN, ")"}, {token.SEMI, ";"},
		{token.EOF, ""},
	}
	checkInput(t, input, tests)
}

func TestOperators(t *testing.T) {
	input := `+ - * / % = == != < <= > >= && || ! [ ] { } ( ) , ; :`
	tests := []lexTest{
		{token.ADD, "+"}, {token.SUB, "-"}, {token.MUL, "*"}, {token.QUO, "/"},
		{token.REM, "%"}, {token.ASSIGN, "="}, {token.EQL, "=="}, {token.NEQ, "!="},
		{token.LSS, "<"}, {token.LEQ, "<="}, {token.GTR, ">"}, {token.GEQ, ">="},
		{token.LAND, "&&"}, {token.LOR, "||"}, {token.NOT, "!"},
		{token.LBRACK, "["}, {token.RBRACK, "]"}, {token.LBRACE, "{"}, {token.RBRACE, "}"},
		{token.LPAREN, "("}, {token.RPAREN, ")"}, {token.COMMA, ","},
		{token.SEMI, ";"}, {token.COLON, ":"},
		{token.EOF, ""},
	}
	checkInput(t, input, tests)
}

func TestPositions(t *testing.T) {
	input := "let x: int = 1;\nlet y: int = 2;"
	l := New("pos.vl", input)

	tok := l.NextToken()
	require.Equal(t, token.LET, tok.Type)
	require.Equal(t, "pos.vl", tok.FileName)
	require.Equal(t, 1, tok.Line)
	require.Equal(t, 1, tok.Column)

	// skip to the second line's let
	for tok.Type != token.SEMI {
		tok = l.NextToken()
	}
	tok = l.NextToken()
	require.Equal(t, token.LET, tok.Type)
	require.Equal(t, 2, tok.Line)
	require.Equal(t, 1, tok.Column)
}

func TestIllegal(t *testing.T) {
	// & and | alone are not operators
	checkInput(t, "&", []lexTest{{token.ILLEGAL, "&"}})
	checkInput(t, "|", []lexTest{{token.ILLEGAL, "|"}})
	checkInput(t, "@", []lexTest{{token.ILLEGAL, "@"}})
}

func TestComments(t *testing.T) {
	input := "// leading\n1 // trailing\n// only\n2"
	tests := []lexTest{
		{token.INT, "1"},
		{token.INT, "2"},
		{token.EOF, ""},
	}
	checkInput(t, input, tests)
}
