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

	"github.com/opentracing/opentracing-go"
	otlog "github.com/opentracing/opentracing-go/log"
)

// TraceInterceptor opens a tracing span around executor operations. Spans
// nest naturally when deferred loads or plugins issue nested queries.
type TraceInterceptor struct{}

func (t *TraceInterceptor) Signatures() []Signature {
	return []Signature{
		{Type: "Executor", Method: "Query"},
		{Type: "Executor", Method: "Update"},
		{Type: "Executor", Method: "Commit"},
		{Type: "Executor", Method: "Rollback"},
	}
}

func (t *TraceInterceptor) Intercept(invocation *Invocation) (any, error) {
	ctx := invocation.Args[0].(context.Context)
	span, ctx := opentracing.StartSpanFromContext(ctx, "batis."+invocation.Method)
	defer span.Finish()

	if stmt, ok := invocationStatement(invocation); ok {
		span.SetTag("statement", stmt.Name())
		span.SetTag("action", string(stmt.Action()))
	}
	invocation.Args[0] = ctx

	result, err := invocation.Proceed()
	if err != nil {
		span.SetTag("error", true)
		span.LogFields(otlog.Error(err))
	}
	return result, err
}

func invocationStatement(invocation *Invocation) (*MappedStatement, bool) {
	if len(invocation.Args) < 2 {
		return nil, false
	}
	stmt, ok := invocation.Args[1].(*MappedStatement)
	return stmt, ok
}

var _ Interceptor = (*TraceInterceptor)(nil)
