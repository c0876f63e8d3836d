package lexer

import "github.com/velalang/vela/token"

type Lexer struct {
	fileName     string
	input        []rune
	position     int  // current position in input (points to current rune)
	readPosition int  // current reading position in input (after current rune)
	curr         rune // current rune under examination
	line         int
	column       int
}

func New(fileName, input string) *Lexer {
	l := &Lexer{
		fileName: fileName,
		input:    []rune(input),
		line:     1,
		column:   0,
	}
	l.readRune()
	return l
}

func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()
	l.skipComment()

	tok := l.newToken(token.ILLEGAL)

	switch l.curr {
	case '=':
		tok = l.switch2(token.ASSIGN, '=', token.EQL)
	case '!':
		tok = l.switch2(token.NOT, '=', token.NEQ)
	case '<':
		tok = l.switch2(token.LSS, '=', token.LEQ)
	case '>':
		tok = l.switch2(token.GTR, '=', token.GEQ)
	case '&':
		tok = l.switch2(token.ILLEGAL, '&', token.LAND)
	case '|':
		tok = l.switch2(token.ILLEGAL, '|', token.LOR)
	case '+':
		tok = l.newToken(token.ADD)
	case '-':
		tok = l.newToken(token.SUB)
	case '*':
		tok = l.newToken(token.MUL)
	case '/':
		tok = l.newToken(token.QUO)
	case '%':
		tok = l.newToken(token.REM)
	case ',':
		tok = l.newToken(token.COMMA)
	case ';':
		tok = l.newToken(token.SEMI)
	case ':':
		tok = l.newToken(token.COLON)
	case '(':
		tok = l.newToken(token.LPAREN)
	case ')':
		tok = l.newToken(token.RPAREN)
	case '{':
		tok = l.newToken(token.LBRACE)
	case '}':
		tok = l.newToken(token.RBRACE)
	case '[':
		tok = l.newToken(token.LBRACK)
	case ']':
		tok = l.newToken(token.RBRACK)
	case '"':
		tok = l.newToken(token.STRING)
		tok.Literal = l.readString()
		return tok
	case 0:
		tok = l.newToken(token.EOF)
		tok.Literal = ""
	default:
		if isLetter(l.curr) {
			tok = l.newToken(token.IDENT)
			tok.Literal = l.readIdentifier()
			tok.Type = token.LookupIdent(tok.Literal)
			return tok
		} else if isDigit(l.curr) {
			tok = l.newToken(token.INT)
			tok.Literal = l.readNumber()
			return tok
		}
	}

	l.readRune()
	return tok
}

func (l *Lexer) newToken(tokenType token.TokenType) token.Token {
	return token.Token{
		Type:     tokenType,
		Literal:  string(l.curr),
		FileName: l.fileName,
		Line:     l.line,
		Column:   l.column,
	}
}

// switch2 handles single-rune tokens that extend to a two-rune token when
// followed by next (e.g. '=' vs "==").
func (l *Lexer) switch2(single token.TokenType, next rune, double token.TokenType) token.Token {
	tok := l.newToken(single)
	if l.peekRune() == next {
		curr := l.curr
		l.readRune()
		tok.Type = double
		tok.Literal = string(curr) + string(l.curr)
	}
	return tok
}

func (l *Lexer) skipWhitespace() {
	for l.curr == ' ' || l.curr == '\t' || l.curr == '\n' || l.curr == '\r' {
		l.readRune()
	}
}

// skipComment consumes // line comments and any whitespace after them.
func (l *Lexer) skipComment() {
	for l.curr == '/' && l.peekRune() == '/' {
		for l.curr != '\n' && l.curr != 0 {
			l.readRune()
		}
		l.skipWhitespace()
	}
}

func (l *Lexer) readRune() {
	if l.curr == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.curr = 0
	} else {
		l.curr = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

func (l *Lexer) peekRune() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.curr) || isDigit(l.curr) {
		l.readRune()
	}
	return string(l.input[position:l.position])
}

func (l *Lexer) readNumber() string {
	position := l.position
	for isDigit(l.curr) {
		l.readRune()
	}
	return string(l.input[position:l.position])
}

func (l *Lexer) readString() string {
	l.readRune() // consume opening quote
	position := l.position
	for l.curr != '"' && l.curr != 0 {
		l.readRune()
	}
	s := string(l.input[position:l.position])
	if l.curr == '"' {
		l.readRune() // consume closing quote
	}
	return s
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
