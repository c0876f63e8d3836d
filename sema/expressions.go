package sema

import (
	"github.com/velalang/vela/ast"
	"github.com/velalang/vela/token"
	"github.com/velalang/vela/types"
)

// checkExpression resolves and type-checks expr, records its type in the
// side table, and returns it.
func (a *Analyzer) checkExpression(expr ast.Expression) (types.Type, *token.CompileError) {
	var t types.Type
	var err *token.CompileError

	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		t = types.Int
	case *ast.BooleanLiteral:
		t = types.Bool
	case *ast.StringLiteral:
		t = types.Str
	case *ast.Identifier:
		t, err = a.checkIdentifier(e)
	case *ast.ArrayLiteral:
		t, err = a.checkArrayLiteral(e)
	case *ast.PrefixExpression:
		t, err = a.checkPrefix(e)
	case *ast.InfixExpression:
		t, err = a.checkInfix(e)
	case *ast.IndexExpression:
		t, err = a.checkIndex(e)
	case *ast.CallExpression:
		t, err = a.checkCall(e)
	default:
		err = token.NewError(expr.Tok(), token.UnsupportedConstruct,
			"cannot analyze expression %T", expr)
	}

	if err != nil {
		return nil, err
	}
	a.Info.Types[expr] = t
	return t, nil
}

func (a *Analyzer) checkIdentifier(e *ast.Identifier) (types.Type, *token.CompileError) {
	sym, ok := a.Get(e.Value)
	if !ok {
		return nil, token.NewError(e.Token, token.UndeclaredIdentifier,
			"undeclared identifier %q", e.Value)
	}
	a.Info.Uses[e] = sym
	return sym.Type, nil
}

func (a *Analyzer) checkArrayLiteral(e *ast.ArrayLiteral) (types.Type, *token.CompileError) {
	elemType, err := a.checkExpression(e.Elements[0])
	if err != nil {
		return nil, err
	}
	for _, elem := range e.Elements[1:] {
		t, err := a.checkExpression(elem)
		if err != nil {
			return nil, err
		}
		if !types.Equal(t, elemType) {
			return nil, token.NewError(elem.Tok(), token.TypeMismatch,
				"array element has type %s, expected %s", t, elemType)
		}
	}
	return types.Array{Elem: elemType, Len: len(e.Elements)}, nil
}

func (a *Analyzer) checkPrefix(e *ast.PrefixExpression) (types.Type, *token.CompileError) {
	t, err := a.checkExpression(e.Right)
	if err != nil {
		return nil, err
	}
	switch e.Operator {
	case token.SUB:
		if t.Kind() != types.IntKind {
			return nil, token.NewError(e.Token, token.TypeMismatch,
				"operator - requires int, got %s", t)
		}
		return types.Int, nil
	case token.NOT:
		if t.Kind() != types.BoolKind {
			return nil, token.NewError(e.Token, token.TypeMismatch,
				"operator ! requires bool, got %s", t)
		}
		return types.Bool, nil
	}
	return nil, token.NewError(e.Token, token.UnsupportedConstruct,
		"unknown prefix operator %s", e.Operator)
}

func (a *Analyzer) checkInfix(e *ast.InfixExpression) (types.Type, *token.CompileError) {
	left, err := a.checkExpression(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := a.checkExpression(e.Right)
	if err != nil {
		return nil, err
	}

	switch e.Operator {
	case token.ADD:
		// + is integer addition or string concatenation.
		if left.Kind() == types.IntKind && right.Kind() == types.IntKind {
			return types.Int, nil
		}
		if left.Kind() == types.StrKind && right.Kind() == types.StrKind {
			return types.Str, nil
		}
		return nil, token.NewError(e.Token, token.TypeMismatch,
			"operator + cannot combine %s and %s", left, right)

	case token.SUB, token.MUL, token.QUO, token.REM:
		if left.Kind() != types.IntKind || right.Kind() != types.IntKind {
			return nil, token.NewError(e.Token, token.TypeMismatch,
				"operator %s requires int operands, got %s and %s", e.Operator, left, right)
		}
		return types.Int, nil

	case token.EQL, token.NEQ:
		if !types.Equal(left, right) || !types.IsComparable(left) {
			return nil, token.NewError(e.Token, token.TypeMismatch,
				"cannot compare %s and %s", left, right)
		}
		return types.Bool, nil

	case token.LSS, token.GTR, token.LEQ, token.GEQ:
		if !types.Equal(left, right) || !types.IsOrdered(left) {
			return nil, token.NewError(e.Token, token.TypeMismatch,
				"operator %s cannot order %s and %s", e.Operator, left, right)
		}
		return types.Bool, nil

	case token.LAND, token.LOR:
		if left.Kind() != types.BoolKind || right.Kind() != types.BoolKind {
			return nil, token.NewError(e.Token, token.TypeMismatch,
				"operator %s requires bool operands, got %s and %s", e.Operator, left, right)
		}
		return types.Bool, nil
	}

	return nil, token.NewError(e.Token, token.UnsupportedConstruct,
		"unknown operator %s", e.Operator)
}

func (a *Analyzer) checkIndex(e *ast.IndexExpression) (types.Type, *token.CompileError) {
	leftType, err := a.checkExpression(e.Left)
	if err != nil {
		return nil, err
	}
	idxType, err := a.checkExpression(e.Index)
	if err != nil {
		return nil, err
	}
	if idxType.Kind() != types.IntKind {
		return nil, token.NewError(e.Index.Tok(), token.InvalidIndexType,
			"array index must be int, got %s", idxType)
	}
	arr, ok := leftType.(types.Array)
	if !ok {
		return nil, token.NewError(e.Left.Tok(), token.TypeMismatch,
			"cannot index a value of type %s", leftType)
	}
	return arr.Elem, nil
}

func (a *Analyzer) checkCall(e *ast.CallExpression) (types.Type, *token.CompileError) {
	sym, ok := a.Get(e.Function.Value)
	if !ok {
		return nil, token.NewError(e.Function.Token, token.UndeclaredIdentifier,
			"undeclared function %q", e.Function.Value)
	}
	a.Info.Uses[e.Function] = sym

	fnType, ok := sym.Type.(types.Func)
	if !ok {
		return nil, token.NewError(e.Function.Token, token.TypeMismatch,
			"%q is not a function", e.Function.Value)
	}
	if len(e.Arguments) != len(fnType.Params) {
		return nil, token.NewError(e.Token, token.ArityMismatch,
			"%q expects %d arguments, got %d", e.Function.Value, len(fnType.Params), len(e.Arguments))
	}
	for i, arg := range e.Arguments {
		argType, err := a.checkExpression(arg)
		if err != nil {
			return nil, err
		}
		if !types.Assignable(argType, fnType.Params[i]) {
			return nil, token.NewError(arg.Tok(), token.TypeMismatch,
				"argument %d of %q has type %s, expected %s",
				i+1, e.Function.Value, argType, fnType.Params[i])
		}
	}
	return fnType.Return, nil
}
