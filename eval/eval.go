/*
Copyright 2024 batisdev

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package eval compiles and evaluates the path expressions used by dynamic
// SQL guards: member access, indexing, comparison and boolean logic over a
// binding map. Expressions are parsed with go/parser after a lexical pass
// that maps the mapper vocabulary onto Go syntax.
package eval

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"

	"github.com/spf13/cast"

	"github.com/go-batisdev/batis/internal/reflectutil"
)

// SyntaxError wraps a parse failure with its source expression.
type SyntaxError struct {
	Src string
	err error
}

func (s *SyntaxError) Error() string {
	return fmt.Sprintf("eval: syntax error in %q: %v", s.Src, s.err)
}

func (s *SyntaxError) Unwrap() error { return s.err }

// ErrNameNotFound is returned for unresolved names under Strict parameters.
var ErrNameNotFound = errors.New("eval: name not found")

// Expression is a compiled, reusable expression. Implementations are
// immutable and safe for concurrent use.
type Expression interface {
	// Execute evaluates the expression against the given parameter.
	// Null results are reported as invalid reflect.Values.
	Execute(p Parameter) (reflect.Value, error)
}

type compiledExpression struct {
	src  string
	expr ast.Expr
}

func (c *compiledExpression) Execute(p Parameter) (reflect.Value, error) {
	value, err := evalNode(c.expr, p)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("eval: %q: %w", c.src, err)
	}
	return value, nil
}

func compile(src string) (Expression, error) {
	tokenized := NewLexer(src).Tokenize()
	expr, err := parser.ParseExpr(tokenized)
	if err != nil {
		return nil, &SyntaxError{Src: src, err: err}
	}
	return &compiledExpression{src: src, expr: expr}, nil
}

// Eval compiles (through the process-wide cache) and executes src in one call.
func Eval(src string, p Parameter) (reflect.Value, error) {
	expression, err := Compile(src)
	if err != nil {
		return reflect.Value{}, err
	}
	return expression.Execute(p)
}

// Truthy reports the truthiness of a value: booleans directly, numbers
// non-zero, strings non-empty, collections non-empty, any other non-null
// value is truthy. Null (invalid) values are falsey.
func Truthy(v reflect.Value) bool {
	v = reflectutil.Unwrap(v)
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0
	case reflect.String:
		return v.Len() > 0
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return v.Len() > 0
	default:
		return true
	}
}

func evalNode(exp ast.Expr, p Parameter) (reflect.Value, error) {
	switch exp := exp.(type) {
	case *ast.BinaryExpr:
		return evalBinaryExpr(exp, p)
	case *ast.ParenExpr:
		return evalNode(exp.X, p)
	case *ast.BasicLit:
		return evalBasicLit(exp)
	case *ast.Ident:
		return evalIdent(exp, p)
	case *ast.SelectorExpr:
		return evalSelectorExpr(exp, p)
	case *ast.IndexExpr:
		return evalIndexExpr(exp, p)
	case *ast.UnaryExpr:
		return evalUnaryExpr(exp, p)
	case *ast.CallExpr:
		return evalCallExpr(exp, p)
	default:
		return reflect.Value{}, fmt.Errorf("unsupported expression: %T", exp)
	}
}

func evalBasicLit(exp *ast.BasicLit) (reflect.Value, error) {
	switch exp.Kind {
	case token.INT:
		v, err := strconv.ParseInt(exp.Value, 0, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(v), nil
	case token.FLOAT:
		v, err := strconv.ParseFloat(exp.Value, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(v), nil
	case token.STRING, token.CHAR:
		v, err := strconv.Unquote(exp.Value)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(v), nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported literal: %s", exp.Kind)
	}
}

func evalIdent(exp *ast.Ident, p Parameter) (reflect.Value, error) {
	switch exp.Name {
	case "true":
		return reflect.ValueOf(true), nil
	case "false":
		return reflect.ValueOf(false), nil
	case "nil":
		return reflect.Value{}, nil
	}
	value, ok := p.Get(exp.Name)
	if !ok {
		if isStrict(p) {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrNameNotFound, exp.Name)
		}
		// unknown names resolve to null
		return reflect.Value{}, nil
	}
	return value, nil
}

func evalSelectorExpr(exp *ast.SelectorExpr, p Parameter) (reflect.Value, error) {
	base, err := evalNode(exp.X, p)
	if err != nil {
		return reflect.Value{}, err
	}
	value, ok := Access(base, exp.Sel.Name)
	if !ok {
		if isStrict(p) {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrNameNotFound, exp.Sel.Name)
		}
		return reflect.Value{}, nil
	}
	return value, nil
}

func evalIndexExpr(exp *ast.IndexExpr, p Parameter) (reflect.Value, error) {
	base, err := evalNode(exp.X, p)
	if err != nil {
		return reflect.Value{}, err
	}
	index, err := evalNode(exp.Index, p)
	if err != nil {
		return reflect.Value{}, err
	}
	base = reflectutil.Unwrap(base)
	index = reflectutil.Unwrap(index)
	if !base.IsValid() {
		return reflect.Value{}, nil
	}
	switch base.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		i, err := cast.ToIntE(index.Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		if i < 0 || i >= base.Len() {
			return reflect.Value{}, fmt.Errorf("index %d out of range [0, %d)", i, base.Len())
		}
		return base.Index(i), nil
	case reflect.Map:
		key := index
		if key.IsValid() && key.Type() != base.Type().Key() && key.Type().ConvertibleTo(base.Type().Key()) {
			key = key.Convert(base.Type().Key())
		}
		value := base.MapIndex(key)
		if !value.IsValid() {
			return reflect.Value{}, nil
		}
		return value, nil
	default:
		return reflect.Value{}, fmt.Errorf("cannot index %s", base.Kind())
	}
}

func evalUnaryExpr(exp *ast.UnaryExpr, p Parameter) (reflect.Value, error) {
	value, err := evalNode(exp.X, p)
	if err != nil {
		return reflect.Value{}, err
	}
	switch exp.Op {
	case token.NOT:
		return reflect.ValueOf(!Truthy(value)), nil
	case token.SUB:
		f, err := cast.ToFloat64E(reflectutil.Unwrap(value).Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		if f == float64(int64(f)) {
			return reflect.ValueOf(-int64(f)), nil
		}
		return reflect.ValueOf(-f), nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported unary operator: %s", exp.Op)
	}
}

// evalCallExpr supports the single builtin len(x).
func evalCallExpr(exp *ast.CallExpr, p Parameter) (reflect.Value, error) {
	ident, ok := exp.Fun.(*ast.Ident)
	if !ok || ident.Name != "len" || len(exp.Args) != 1 {
		return reflect.Value{}, fmt.Errorf("unsupported call expression")
	}
	value, err := evalNode(exp.Args[0], p)
	if err != nil {
		return reflect.Value{}, err
	}
	value = reflectutil.Unwrap(value)
	if !value.IsValid() {
		return reflect.ValueOf(int64(0)), nil
	}
	switch value.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return reflect.ValueOf(int64(value.Len())), nil
	default:
		return reflect.Value{}, fmt.Errorf("len of %s", value.Kind())
	}
}

func evalBinaryExpr(exp *ast.BinaryExpr, p Parameter) (reflect.Value, error) {
	// boolean operators short-circuit
	switch exp.Op {
	case token.LAND, token.LOR:
		left, err := evalNode(exp.X, p)
		if err != nil {
			return reflect.Value{}, err
		}
		truthy := Truthy(left)
		if (exp.Op == token.LAND && !truthy) || (exp.Op == token.LOR && truthy) {
			return reflect.ValueOf(truthy), nil
		}
		right, err := evalNode(exp.Y, p)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(Truthy(right)), nil
	}

	left, err := evalNode(exp.X, p)
	if err != nil {
		return reflect.Value{}, err
	}
	right, err := evalNode(exp.Y, p)
	if err != nil {
		return reflect.Value{}, err
	}

	switch exp.Op {
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		return compare(left, right, exp.Op)
	case token.ADD, token.SUB, token.MUL, token.QUO, token.REM:
		return arithmetic(left, right, exp.Op)
	default:
		return reflect.Value{}, fmt.Errorf("unsupported operator: %s", exp.Op)
	}
}

func compare(left, right reflect.Value, op token.Token) (reflect.Value, error) {
	left = reflectutil.Unwrap(left)
	right = reflectutil.Unwrap(right)
	leftNull := !left.IsValid()
	rightNull := !right.IsValid()

	// null compares equal only to null; ordering against null is false
	if leftNull || rightNull {
		switch op {
		case token.EQL:
			return reflect.ValueOf(leftNull && rightNull), nil
		case token.NEQ:
			return reflect.ValueOf(leftNull != rightNull), nil
		default:
			return reflect.ValueOf(false), nil
		}
	}

	if isNumeric(left) && isNumeric(right) {
		l, err := cast.ToFloat64E(left.Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		r, err := cast.ToFloat64E(right.Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(compareOrdered(l, r, op)), nil
	}

	if left.Kind() == reflect.String && right.Kind() == reflect.String {
		return reflect.ValueOf(compareOrdered(left.String(), right.String(), op)), nil
	}

	if left.Kind() == reflect.Bool && right.Kind() == reflect.Bool {
		switch op {
		case token.EQL:
			return reflect.ValueOf(left.Bool() == right.Bool()), nil
		case token.NEQ:
			return reflect.ValueOf(left.Bool() != right.Bool()), nil
		}
	}

	switch op {
	case token.EQL:
		return reflect.ValueOf(reflect.DeepEqual(left.Interface(), right.Interface())), nil
	case token.NEQ:
		return reflect.ValueOf(!reflect.DeepEqual(left.Interface(), right.Interface())), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot order %s and %s", left.Kind(), right.Kind())
}

func compareOrdered[T float64 | string](l, r T, op token.Token) bool {
	switch op {
	case token.EQL:
		return l == r
	case token.NEQ:
		return l != r
	case token.LSS:
		return l < r
	case token.LEQ:
		return l <= r
	case token.GTR:
		return l > r
	default:
		return l >= r
	}
}

func arithmetic(left, right reflect.Value, op token.Token) (reflect.Value, error) {
	left = reflectutil.Unwrap(left)
	right = reflectutil.Unwrap(right)
	if !left.IsValid() || !right.IsValid() {
		return reflect.Value{}, errors.New("arithmetic on null")
	}
	if left.Kind() == reflect.String && right.Kind() == reflect.String && op == token.ADD {
		return reflect.ValueOf(left.String() + right.String()), nil
	}
	l, err := cast.ToFloat64E(left.Interface())
	if err != nil {
		return reflect.Value{}, err
	}
	r, err := cast.ToFloat64E(right.Interface())
	if err != nil {
		return reflect.Value{}, err
	}
	var result float64
	switch op {
	case token.ADD:
		result = l + r
	case token.SUB:
		result = l - r
	case token.MUL:
		result = l * r
	case token.QUO:
		if r == 0 {
			return reflect.Value{}, errors.New("division by zero")
		}
		result = l / r
	case token.REM:
		if int64(r) == 0 {
			return reflect.Value{}, errors.New("division by zero")
		}
		return reflect.ValueOf(int64(l) % int64(r)), nil
	}
	if isInteger(left) && isInteger(right) && result == float64(int64(result)) {
		return reflect.ValueOf(int64(result)), nil
	}
	return reflect.ValueOf(result), nil
}

func isNumeric(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func isInteger(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}
