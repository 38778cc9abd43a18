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
	"strings"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/go-batisdev/batis/driver"
	"github.com/go-batisdev/batis/dynsql"
)

func installGlobalTracer(tracer opentracing.Tracer) (restore func()) {
	previous := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	return func() { opentracing.SetGlobalTracer(previous) }
}

// wrap installs a chain around the fixture executor and points nested calls
// back at the outermost wrapper.
func (f *fixture) wrap(t *testing.T, interceptors ...Interceptor) Executor {
	t.Helper()
	chain := NewInterceptorChain()
	require.NoError(t, chain.Add(interceptors...))
	wrapped := chain.Apply(f.executor)
	wrapped.SetWrapper(wrapped)
	return wrapped
}

type passthroughInterceptor struct{}

func (passthroughInterceptor) Signatures() []Signature {
	return []Signature{
		{Type: "Executor", Method: "Query"},
		{Type: "Executor", Method: "QueryBound"},
		{Type: "Executor", Method: "Update"},
	}
}

func (passthroughInterceptor) Intercept(invocation *Invocation) (any, error) {
	return invocation.Proceed()
}

func TestInterceptorChain_PassthroughIsTransparent(t *testing.T) {
	plain := newFixture(t, testSettings())
	wrapped := newFixture(t, testSettings())
	executor := wrapped.wrap(t, passthroughInterceptor{}, passthroughInterceptor{})
	ctx := context.Background()

	expected, err := plain.executor.Query(ctx, plain.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
	actual, err := executor.Query(ctx, wrapped.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)

	require.Equal(t, expected, actual)
	require.Equal(t, plain.mock.Queries(), wrapped.mock.Queries())
}

type doubleProceedInterceptor struct{}

func (doubleProceedInterceptor) Signatures() []Signature {
	return []Signature{{Type: "Executor", Method: "Query"}}
}

func (doubleProceedInterceptor) Intercept(invocation *Invocation) (any, error) {
	if _, err := invocation.Proceed(); err != nil {
		return nil, err
	}
	return invocation.Proceed()
}

func TestInterceptorChain_ProceedTwiceIsRejected(t *testing.T) {
	f := newFixture(t, testSettings())
	executor := f.wrap(t, doubleProceedInterceptor{})

	_, err := executor.Query(context.Background(), f.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.Error(t, err)
	require.True(t, ErrInterceptor.Is(err))
	require.Contains(t, err.Error(), "doubleProceedInterceptor")
}

type badSignatureInterceptor struct{ signatures []Signature }

func (b badSignatureInterceptor) Signatures() []Signature            { return b.signatures }
func (b badSignatureInterceptor) Intercept(*Invocation) (any, error) { return nil, nil }

func TestInterceptorChain_RegistrationValidation(t *testing.T) {
	tests := []struct {
		name       string
		signatures []Signature
	}{
		{"NoSignatures", nil},
		{"UnknownMethod", []Signature{{Type: "Executor", Method: "Explode"}}},
		{"UnknownTarget", []Signature{{Type: "StatementHandler", Method: "Query"}}},
		{"NonInterceptableMethod", []Signature{{Type: "Executor", Method: "Close"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := NewInterceptorChain()
			err := chain.Add(badSignatureInterceptor{signatures: tt.signatures})
			require.Error(t, err)
			require.True(t, ErrInvalidSignature.Is(err))
			require.Zero(t, chain.Len())
		})
	}
}

type paramRewriteInterceptor struct{}

func (paramRewriteInterceptor) Signatures() []Signature {
	return []Signature{{Type: "Executor", Method: "Update"}}
}

func (paramRewriteInterceptor) Intercept(invocation *Invocation) (any, error) {
	invocation.Args[2] = map[string]any{"name": "rewritten"}
	return invocation.Proceed()
}

func TestInterceptorChain_ArgumentMutation(t *testing.T) {
	f := newFixture(t, testSettings())
	executor := f.wrap(t, paramRewriteInterceptor{})

	_, err := executor.Update(context.Background(), f.statement(t, "user.add"), map[string]any{"name": "original"})
	require.NoError(t, err)
	require.Equal(t, "rewritten", f.mock.ExecArgs()[0][0])
}

type shortCircuitInterceptor struct{ canned []any }

func (s shortCircuitInterceptor) Signatures() []Signature {
	return []Signature{{Type: "Executor", Method: "Query"}}
}

func (s shortCircuitInterceptor) Intercept(*Invocation) (any, error) {
	return s.canned, nil
}

func TestInterceptorChain_ShortCircuitSkipsExecutor(t *testing.T) {
	f := newFixture(t, testSettings())
	executor := f.wrap(t, shortCircuitInterceptor{canned: []any{"canned"}})

	list, err := executor.Query(context.Background(), f.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
	require.Equal(t, []any{"canned"}, list)
	require.Empty(t, f.mock.Queries())
}

func TestPaginationInterceptor_RewritesSQLAndZeroesBounds(t *testing.T) {
	f := newFixture(t, testSettings())
	executor := f.wrap(t, &PaginationInterceptor{Dialect: driver.MySQLDialect{}})

	list, err := executor.Query(context.Background(), f.statement(t, "user.all"),
		nil, RowBounds{Offset: 20, Limit: 10}, nil)
	require.NoError(t, err)

	queries := f.mock.Queries()
	require.Len(t, queries, 1)
	require.True(t, strings.HasSuffix(queries[0], "LIMIT 10 OFFSET 20"), queries[0])
	// the zeroed bounds skip the in-memory windowing entirely
	require.Len(t, list, 3)
}

func TestPaginationInterceptor_DefaultBoundsUntouched(t *testing.T) {
	f := newFixture(t, testSettings())
	executor := f.wrap(t, &PaginationInterceptor{Dialect: driver.MySQLDialect{}})

	_, err := executor.Query(context.Background(), f.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
	require.NotContains(t, f.mock.Queries()[0], "LIMIT")
}

func TestInMemoryWindowingWithoutPagination(t *testing.T) {
	f := newFixture(t, testSettings())

	list, err := f.executor.Query(context.Background(), f.statement(t, "user.all"),
		nil, RowBounds{Offset: 1, Limit: 1}, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotContains(t, f.mock.Queries()[0], "LIMIT")
}

type nestedQueryInterceptor struct {
	nested *MappedStatement
	rows   int
}

func (n *nestedQueryInterceptor) Signatures() []Signature {
	return []Signature{{Type: "Executor", Method: "Update"}}
}

func (n *nestedQueryInterceptor) Intercept(invocation *Invocation) (any, error) {
	ctx := invocation.Args[0].(context.Context)
	list, err := invocation.Target.Query(ctx, n.nested, nil, DefaultRowBounds(), nil)
	if err != nil {
		return nil, err
	}
	n.rows = len(list)
	return invocation.Proceed()
}

func TestInterceptorChain_PluginReentry(t *testing.T) {
	f := newFixture(t, testSettings())
	interceptor := &nestedQueryInterceptor{nested: f.statement(t, "user.all")}
	executor := f.wrap(t, interceptor)

	_, err := executor.Update(context.Background(), f.statement(t, "user.touch"), map[string]any{"id": 1})
	require.NoError(t, err)
	require.Equal(t, 3, interceptor.rows)
}

func TestTraceInterceptor_OpensSpans(t *testing.T) {
	tracer := mocktracer.New()
	restore := installGlobalTracer(tracer)
	defer restore()

	f := newFixture(t, testSettings())
	executor := f.wrap(t, &TraceInterceptor{})

	_, err := executor.Query(context.Background(), f.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "batis.Query", spans[0].OperationName)
	require.Equal(t, "user.all", spans[0].Tag("statement"))
}

func TestDebugInterceptor_LogsStatements(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := newFixture(t, testSettings())
	executor := f.wrap(t, &DebugInterceptor{Logger: logger})

	_, err := executor.Query(context.Background(), f.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)

	require.NotEmpty(t, hook.Entries)
	entry := hook.LastEntry()
	require.Equal(t, "user.all", entry.Data["statement"])
	require.Contains(t, entry.Data["sql"], "SELECT id, name FROM users")
}

type boundsProbeInterceptor struct {
	sawSQL    string
	sawBounds RowBounds
}

func (b *boundsProbeInterceptor) Signatures() []Signature {
	return []Signature{{Type: "Executor", Method: "QueryBound"}}
}

func (b *boundsProbeInterceptor) Intercept(invocation *Invocation) (any, error) {
	b.sawSQL = invocation.Args[6].(*dynsql.BoundSQL).SQL()
	b.sawBounds = invocation.Args[3].(RowBounds)
	return invocation.Proceed()
}

func TestInterceptorChain_InnermostSeesRewrites(t *testing.T) {
	f := newFixture(t, testSettings())
	probe := &boundsProbeInterceptor{}
	// the probe is added first, so it sits under the pagination rewrite
	executor := f.wrap(t, probe, &PaginationInterceptor{Dialect: driver.MySQLDialect{}})

	_, err := executor.Query(context.Background(), f.statement(t, "user.all"),
		nil, RowBounds{Offset: 20, Limit: 10}, nil)
	require.NoError(t, err)

	require.True(t, strings.HasSuffix(probe.sawSQL, "LIMIT 10 OFFSET 20"), probe.sawSQL)
	require.True(t, probe.sawBounds.IsDefault())
}
