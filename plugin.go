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

package batis

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-batisdev/batis/cache"
	"github.com/go-batisdev/batis/dynsql"
)

// Signature names one intercepted join point.
type Signature struct {
	Type   string // target type, currently "Executor"
	Method string // method name, e.g. "QueryBound"
}

// Interceptor wraps executor operations. Intercept receives the original
// arguments, may mutate the argument slice, and must call Proceed exactly
// once — or not at all to short-circuit.
type Interceptor interface {
	Intercept(invocation *Invocation) (any, error)
	Signatures() []Signature
}

// Invocation is one intercepted call moving through the chain.
type Invocation struct {
	// Target is the executor the interceptor wraps.
	Target Executor
	// Method is the intercepted method name.
	Method string
	// Args holds the call arguments in declaration order. Interceptors may
	// replace elements before calling Proceed.
	Args []any

	proceed  func(args []any) (any, error)
	proceeds int
}

// Proceed continues the pipeline with the (possibly mutated) arguments.
// Calling it more than once is a hard contract violation.
func (inv *Invocation) Proceed() (any, error) {
	inv.proceeds++
	if inv.proceeds > 1 {
		return nil, fmt.Errorf("proceed called %d times for %s", inv.proceeds, inv.Method)
	}
	return inv.proceed(inv.Args)
}

// interceptableMethods are the executor join points plugins may claim.
var interceptableMethods = map[string]struct{}{
	"Update":          {},
	"Query":           {},
	"QueryBound":      {},
	"QueryCursor":     {},
	"FlushStatements": {},
	"Commit":          {},
	"Rollback":        {},
}

// InterceptorChain validates and holds interceptors, and wraps executors
// into the invocation pipeline. Wrapping happens in declaration order, so
// the first added interceptor sits closest to the executor and the last
// one sees calls first.
type InterceptorChain struct {
	interceptors []Interceptor
}

// NewInterceptorChain returns an empty chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{}
}

// Add registers interceptors, rejecting unknown signature targets or
// methods at registration time.
func (c *InterceptorChain) Add(interceptors ...Interceptor) error {
	for _, interceptor := range interceptors {
		name := interceptorName(interceptor)
		signatures := interceptor.Signatures()
		if len(signatures) == 0 {
			return ErrInvalidSignature.New(name, "Executor", "(none)")
		}
		for _, signature := range signatures {
			if signature.Type != "Executor" {
				return ErrInvalidSignature.New(name, signature.Type, signature.Method)
			}
			if _, ok := interceptableMethods[signature.Method]; !ok {
				return ErrInvalidSignature.New(name, signature.Type, signature.Method)
			}
		}
		c.interceptors = append(c.interceptors, interceptor)
	}
	return nil
}

// Apply wraps target with every registered interceptor. The result must be
// installed as the executor's wrapper so nested queries re-enter the chain.
func (c *InterceptorChain) Apply(target Executor) Executor {
	for _, interceptor := range c.interceptors {
		target = &interceptedExecutor{
			interceptor: interceptor,
			methods:     methodSet(interceptor),
			target:      target,
		}
	}
	return target
}

// Len returns the number of registered interceptors.
func (c *InterceptorChain) Len() int { return len(c.interceptors) }

func methodSet(interceptor Interceptor) map[string]struct{} {
	methods := make(map[string]struct{})
	for _, signature := range interceptor.Signatures() {
		methods[signature.Method] = struct{}{}
	}
	return methods
}

func interceptorName(interceptor Interceptor) string {
	return reflect.TypeOf(interceptor).String()
}

// interceptedExecutor is one layer of the Russian-doll pipeline: claimed
// methods route through the interceptor, everything else passes through
// transparently.
type interceptedExecutor struct {
	interceptor Interceptor
	methods     map[string]struct{}
	target      Executor
}

func (p *interceptedExecutor) intercepts(method string) bool {
	_, ok := p.methods[method]
	return ok
}

// invoke runs one intercepted call, surfacing plugin panics and errors with
// the interceptor's type name.
func (p *interceptedExecutor) invoke(method string, args []any, proceed func(args []any) (any, error)) (result any, err error) {
	invocation := &Invocation{
		Target:  p.target,
		Method:  method,
		Args:    args,
		proceed: proceed,
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = ErrInterceptor.Wrap(fmt.Errorf("panic: %v", recovered), interceptorName(p.interceptor))
		}
	}()
	result, err = p.interceptor.Intercept(invocation)
	if err != nil && !isFrameworkError(err) {
		err = ErrInterceptor.Wrap(err, interceptorName(p.interceptor))
	}
	return result, err
}

// isFrameworkError keeps errors that originated below the plugin from being
// re-labelled as plugin failures when the plugin passes them through.
func isFrameworkError(err error) bool {
	return ErrExecutorClosed.Is(err) || ErrBuild.Is(err) || ErrStatement.Is(err) ||
		ErrTransaction.Is(err) || ErrDeferredLoad.Is(err) || ErrInterceptor.Is(err)
}

func (p *interceptedExecutor) Update(ctx context.Context, stmt *MappedStatement, param any) (int64, error) {
	if !p.intercepts("Update") {
		return p.target.Update(ctx, stmt, param)
	}
	result, err := p.invoke("Update", []any{ctx, stmt, param}, func(args []any) (any, error) {
		return p.target.Update(args[0].(context.Context), args[1].(*MappedStatement), args[2])
	})
	if err != nil {
		return 0, err
	}
	affected, _ := result.(int64)
	return affected, nil
}

func (p *interceptedExecutor) Query(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds, rh ResultHandler) ([]any, error) {
	if !p.intercepts("Query") {
		return p.target.Query(ctx, stmt, param, bounds, rh)
	}
	result, err := p.invoke("Query", []any{ctx, stmt, param, bounds, rh}, func(args []any) (any, error) {
		return p.target.Query(args[0].(context.Context), args[1].(*MappedStatement), args[2],
			args[3].(RowBounds), asResultHandler(args[4]))
	})
	if err != nil {
		return nil, err
	}
	list, _ := result.([]any)
	return list, nil
}

func (p *interceptedExecutor) QueryBound(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds, rh ResultHandler, key *cache.Key, bound *dynsql.BoundSQL) ([]any, error) {
	if !p.intercepts("QueryBound") {
		return p.target.QueryBound(ctx, stmt, param, bounds, rh, key, bound)
	}
	result, err := p.invoke("QueryBound", []any{ctx, stmt, param, bounds, rh, key, bound}, func(args []any) (any, error) {
		return p.target.QueryBound(args[0].(context.Context), args[1].(*MappedStatement), args[2],
			args[3].(RowBounds), asResultHandler(args[4]), args[5].(*cache.Key), args[6].(*dynsql.BoundSQL))
	})
	if err != nil {
		return nil, err
	}
	list, _ := result.([]any)
	return list, nil
}

func (p *interceptedExecutor) QueryCursor(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds) (*Cursor, error) {
	if !p.intercepts("QueryCursor") {
		return p.target.QueryCursor(ctx, stmt, param, bounds)
	}
	result, err := p.invoke("QueryCursor", []any{ctx, stmt, param, bounds}, func(args []any) (any, error) {
		return p.target.QueryCursor(args[0].(context.Context), args[1].(*MappedStatement), args[2], args[3].(RowBounds))
	})
	if err != nil {
		return nil, err
	}
	cursor, _ := result.(*Cursor)
	return cursor, nil
}

func (p *interceptedExecutor) FlushStatements(ctx context.Context, rollback bool) ([]BatchResult, error) {
	if !p.intercepts("FlushStatements") {
		return p.target.FlushStatements(ctx, rollback)
	}
	result, err := p.invoke("FlushStatements", []any{ctx, rollback}, func(args []any) (any, error) {
		return p.target.FlushStatements(args[0].(context.Context), args[1].(bool))
	})
	if err != nil {
		return nil, err
	}
	results, _ := result.([]BatchResult)
	return results, nil
}

func (p *interceptedExecutor) Commit(ctx context.Context, required bool) error {
	if !p.intercepts("Commit") {
		return p.target.Commit(ctx, required)
	}
	_, err := p.invoke("Commit", []any{ctx, required}, func(args []any) (any, error) {
		return nil, p.target.Commit(args[0].(context.Context), args[1].(bool))
	})
	return err
}

func (p *interceptedExecutor) Rollback(ctx context.Context, required bool) error {
	if !p.intercepts("Rollback") {
		return p.target.Rollback(ctx, required)
	}
	_, err := p.invoke("Rollback", []any{ctx, required}, func(args []any) (any, error) {
		return nil, p.target.Rollback(args[0].(context.Context), args[1].(bool))
	})
	return err
}

// the remaining operations are not join points and pass through untouched

func (p *interceptedExecutor) Close(forceRollback bool) { p.target.Close(forceRollback) }

func (p *interceptedExecutor) DeferLoad(stmt *MappedStatement, owner any, property string, key *cache.Key, targetType reflect.Type) error {
	return p.target.DeferLoad(stmt, owner, property, key, targetType)
}

func (p *interceptedExecutor) ClearLocalCache() { p.target.ClearLocalCache() }

func (p *interceptedExecutor) CreateCacheKey(stmt *MappedStatement, param any, bounds RowBounds, bound *dynsql.BoundSQL) *cache.Key {
	return p.target.CreateCacheKey(stmt, param, bounds, bound)
}

func (p *interceptedExecutor) Transaction() Transaction { return p.target.Transaction() }

func (p *interceptedExecutor) Closed() bool { return p.target.Closed() }

func (p *interceptedExecutor) SetWrapper(wrapper Executor) { p.target.SetWrapper(wrapper) }

func asResultHandler(arg any) ResultHandler {
	if arg == nil {
		return nil
	}
	return arg.(ResultHandler)
}

var _ Executor = (*interceptedExecutor)(nil)
