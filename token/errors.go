package token

import "fmt"

// ErrorKind classifies a CompileError by the check that produced it.
type ErrorKind int

const (
	SyntaxError ErrorKind = iota

	UndeclaredIdentifier
	Redeclaration
	TypeMismatch
	ArityMismatch
	MissingReturn
	InvalidIndexType

	UnsupportedConstruct
	CodeGenFailure
)

var kindNames = map[ErrorKind]string{
	SyntaxError:          "syntax error",
	UndeclaredIdentifier: "undeclared identifier",
	Redeclaration:        "redeclaration",
	TypeMismatch:         "type mismatch",
	ArityMismatch:        "arity mismatch",
	MissingReturn:        "missing return",
	InvalidIndexType:     "invalid index type",
	UnsupportedConstruct: "unsupported construct",
	CodeGenFailure:       "code generation failure",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error(%d)", int(k))
}

// CompileError ties a diagnostic to the token that triggered it.
// Each compiler stage fails fast with the first CompileError it finds.
type CompileError struct {
	Token Token
	Kind  ErrorKind
	Msg   string
}

func (ce *CompileError) Error() string {
	if ce.Token.FileName == "" {
		return fmt.Sprintf("%d:%d: %s: %s", ce.Token.Line, ce.Token.Column, ce.Kind, ce.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", ce.Token.FileName, ce.Token.Line, ce.Token.Column, ce.Kind, ce.Msg)
}

// NewError builds a CompileError at tok's position.
func NewError(tok Token, kind ErrorKind, format string, args ...any) *CompileError {
	return &CompileError{
		Token: tok,
		Kind:  kind,
		Msg:   fmt.Sprintf(format, args...),
	}
}
