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
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-batisdev/batis/cache"
	batisdriver "github.com/go-batisdev/batis/driver"
	"github.com/go-batisdev/batis/internal/sqlmock"
)

const userMapper = `
<mapper namespace="user">
  <sql id="columns">id, name</sql>
  <select id="byName">
    SELECT <include refid="columns"/> FROM users
    <where><if test="name != null">name = #{name}</if></where>
  </select>
  <select id="all">SELECT id, name FROM users</select>
  <select id="refreshing" flushCache="true">SELECT id, name FROM users ORDER BY id</select>
  <update id="touch">UPDATE users SET touched = 1 WHERE id = #{id}</update>
  <insert id="add">INSERT INTO users (name) VALUES (#{name})</insert>
</mapper>`

type fixture struct {
	configuration *Configuration
	mock          *sqlmock.Instance
	executor      Executor
}

var fixtureSeq int64

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	mock, db, err := sqlmock.New(fmt.Sprintf("%s-%d", t.Name(), atomic.AddInt64(&fixtureSeq, 1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.OnQuery(func(query string, args []driver.Value) (*sqlmock.Rows, error) {
		return &sqlmock.Rows{
			Columns: []string{"id", "name"},
			Values: [][]driver.Value{
				{int64(1), "ada"},
				{int64(2), "bob"},
				{int64(3), "cyd"},
			},
		}, nil
	})

	configuration := NewConfiguration(settings)
	require.NoError(t, configuration.Mappers.Parse(strings.NewReader(userMapper)))

	dialect, err := batisdriver.Get(settings.Dialect)
	require.NoError(t, err)
	handler := NewStatementHandler(dialect, configuration.Converters, configuration.Factory)
	executor := NewSimpleExecutor(configuration, NewManagedTransaction(db, 0), handler)

	f := &fixture{configuration: configuration, mock: mock, executor: executor}
	t.Cleanup(func() { f.executor.Close(false) })
	return f
}

func testSettings() Settings {
	settings := DefaultSettings()
	settings.Environment = "test"
	return settings
}

func (f *fixture) statement(t *testing.T, name string) *MappedStatement {
	t.Helper()
	stmt, err := f.configuration.Statement(name)
	require.NoError(t, err)
	return stmt
}

func (f *fixture) base(t *testing.T) *simpleExecutor {
	t.Helper()
	se, ok := f.executor.(*simpleExecutor)
	require.True(t, ok)
	return se
}

func sameList(a, b []any) bool {
	return len(a) == len(b) && (len(a) == 0 || reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer())
}

func TestExecutor_LocalCacheHitReturnsIdenticalList(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.byName")
	ctx := context.Background()
	param := map[string]any{"name": "ada"}

	first, err := f.executor.Query(ctx, stmt, param, DefaultRowBounds(), nil)
	require.NoError(t, err)
	second, err := f.executor.Query(ctx, stmt, param, DefaultRowBounds(), nil)
	require.NoError(t, err)

	require.True(t, sameList(first, second), "cache hits must return the identical list object")
	require.Len(t, f.mock.Queries(), 1, "the driver must be invoked exactly once")
}

func TestExecutor_DistinctParametersMissSeparately(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.byName")
	ctx := context.Background()

	_, err := f.executor.Query(ctx, stmt, map[string]any{"name": "ada"}, DefaultRowBounds(), nil)
	require.NoError(t, err)
	_, err = f.executor.Query(ctx, stmt, map[string]any{"name": "bob"}, DefaultRowBounds(), nil)
	require.NoError(t, err)

	require.Len(t, f.mock.Queries(), 2)
}

func TestExecutor_UpdateClearsLocalCache(t *testing.T) {
	f := newFixture(t, testSettings())
	query := f.statement(t, "user.byName")
	touch := f.statement(t, "user.touch")
	ctx := context.Background()
	param := map[string]any{"name": "ada"}

	_, err := f.executor.Query(ctx, query, param, DefaultRowBounds(), nil)
	require.NoError(t, err)

	affected, err := f.executor.Update(ctx, touch, map[string]any{"id": 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	_, err = f.executor.Query(ctx, query, param, DefaultRowBounds(), nil)
	require.NoError(t, err)

	require.Len(t, f.mock.Queries(), 2, "the write must invalidate the cached result")
	require.Len(t, f.mock.Execs(), 1)
}

func TestExecutor_FlushCacheStatementClearsBeforeRunning(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()

	_, err := f.executor.Query(ctx, f.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, f.base(t).localCache.Len())

	_, err = f.executor.Query(ctx, f.statement(t, "user.refreshing"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)

	// the earlier entry is gone; only the refreshing statement is cached
	require.Equal(t, 1, f.base(t).localCache.Len())
	_, err = f.executor.Query(ctx, f.statement(t, "user.all"), nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
	require.Len(t, f.mock.Queries(), 3)
}

func TestExecutor_NoSentinelSurvivesFailure(t *testing.T) {
	f := newFixture(t, testSettings())
	f.mock.OnQuery(func(query string, args []driver.Value) (*sqlmock.Rows, error) {
		return nil, errDriverBoom
	})
	stmt := f.statement(t, "user.all")

	_, err := f.executor.Query(context.Background(), stmt, nil, DefaultRowBounds(), nil)
	require.Error(t, err)
	require.True(t, ErrStatement.Is(err))
	require.Contains(t, err.Error(), "user.all")
	require.Contains(t, err.Error(), "SELECT id, name FROM users")

	require.Equal(t, 0, f.base(t).localCache.Len(), "no sentinel orphans after failure")
}

var errDriverBoom = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestExecutor_StatementScopeClearsAfterTopLevelQuery(t *testing.T) {
	settings := testSettings()
	settings.LocalCacheScope = CacheScopeStatement
	f := newFixture(t, settings)
	stmt := f.statement(t, "user.all")
	ctx := context.Background()

	_, err := f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, f.base(t).localCache.Len())

	_, err = f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
	require.Len(t, f.mock.Queries(), 2, "statement scope disables cross-query caching")
}

func TestExecutor_ResultHandlerBypassesCache(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.all")
	ctx := context.Background()

	var streamed []map[string]any
	rh := func(row map[string]any) error {
		streamed = append(streamed, row)
		return nil
	}
	list, err := f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), rh)
	require.NoError(t, err)
	require.Nil(t, list)
	require.Len(t, streamed, 3)
	require.Equal(t, 0, f.base(t).localCache.Len())
}

func TestExecutor_ClosedRejectsEveryOperation(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.all")
	ctx := context.Background()

	f.executor.Close(false)
	require.True(t, f.executor.Closed())
	// closing again is a no-op
	f.executor.Close(true)

	_, err := f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), nil)
	require.True(t, ErrExecutorClosed.Is(err))
	_, err = f.executor.Update(ctx, stmt, nil)
	require.True(t, ErrExecutorClosed.Is(err))
	_, err = f.executor.QueryCursor(ctx, stmt, nil, DefaultRowBounds())
	require.True(t, ErrExecutorClosed.Is(err))
	_, err = f.executor.FlushStatements(ctx, false)
	require.True(t, ErrExecutorClosed.Is(err))
	require.True(t, ErrExecutorClosed.Is(f.executor.Commit(ctx, false)))
	require.True(t, ErrExecutorClosed.Is(f.executor.Rollback(ctx, false)))
	require.True(t, ErrExecutorClosed.Is(f.executor.DeferLoad(stmt, nil, "p", cache.NewKey(), nil)))
}

func TestExecutor_CommitClearsCacheAndStaysOpen(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.all")
	ctx := context.Background()

	_, err := f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, f.base(t).localCache.Len())

	require.NoError(t, f.executor.Commit(ctx, true))
	require.Equal(t, 1, f.mock.Commits())
	require.Equal(t, 0, f.base(t).localCache.Len())
	require.False(t, f.executor.Closed())

	_, err = f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), nil)
	require.NoError(t, err)
}

func TestExecutor_CloseRollsBackWhenForced(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.all")

	_, err := f.executor.Query(context.Background(), stmt, nil, DefaultRowBounds(), nil)
	require.NoError(t, err)

	f.executor.Close(true)
	require.Equal(t, 1, f.mock.Rollbacks())
	require.True(t, f.executor.Closed())
}

func TestExecutor_DeferLoadImmediateWhenMaterialized(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.all")
	ctx := context.Background()

	list, err := f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), nil)
	require.NoError(t, err)

	bound, err := stmt.BoundSQL(nil)
	require.NoError(t, err)
	key := f.executor.CreateCacheKey(stmt, nil, DefaultRowBounds(), bound)

	owner := map[string]any{}
	require.NoError(t, f.executor.DeferLoad(stmt, owner, "children", key, nil))

	require.True(t, sameList(list, owner["children"].([]any)))
	require.Empty(t, f.base(t).deferredLoads)
}

func TestExecutor_DeferLoadEnqueuedWhileBuilding(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.all")
	ctx := context.Background()

	bound, err := stmt.BoundSQL(nil)
	require.NoError(t, err)
	key := f.executor.CreateCacheKey(stmt, nil, DefaultRowBounds(), bound)
	owner := map[string]any{}

	var enqueued bool
	f.mock.OnQuery(func(query string, args []driver.Value) (*sqlmock.Rows, error) {
		// the probe happens while the building sentinel is installed
		require.NoError(t, f.executor.DeferLoad(stmt, owner, "children", key, nil))
		enqueued = len(f.base(t).deferredLoads) == 1
		return &sqlmock.Rows{Columns: []string{"id"}, Values: [][]driver.Value{{int64(1)}}}, nil
	})

	list, err := f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), nil)
	require.NoError(t, err)

	require.True(t, enqueued, "the probe must find the building sentinel and enqueue")
	require.Empty(t, f.base(t).deferredLoads, "the queue drains before the top-level query returns")
	require.True(t, sameList(list, owner["children"].([]any)))
}

func TestExecutor_CacheKeyComponents(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.byName")

	build := func(param map[string]any, bounds RowBounds) *cache.Key {
		bound, err := stmt.BoundSQL(param)
		require.NoError(t, err)
		return f.executor.CreateCacheKey(stmt, param, bounds, bound)
	}

	base := build(map[string]any{"name": "ada"}, DefaultRowBounds())
	require.True(t, base.Equals(build(map[string]any{"name": "ada"}, DefaultRowBounds())))

	require.False(t, base.Equals(build(map[string]any{"name": "bob"}, DefaultRowBounds())))
	require.False(t, base.Equals(build(map[string]any{"name": "ada"}, RowBounds{Offset: 10, Limit: 5})))
}

func TestExecutor_QueryCursorBypassesCache(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.all")
	ctx := context.Background()

	_, err := f.executor.Query(ctx, stmt, nil, DefaultRowBounds(), nil)
	require.NoError(t, err)

	cursor, err := f.executor.QueryCursor(ctx, stmt, nil, DefaultRowBounds())
	require.NoError(t, err)
	defer func() { require.NoError(t, cursor.Close()) }()

	var names []any
	for cursor.Next() {
		names = append(names, cursor.Row()["name"])
	}
	require.NoError(t, cursor.Err())
	require.Equal(t, []any{"ada", "bob", "cyd"}, names)
	require.Len(t, f.mock.Queries(), 2, "cursors must not serve from the cache")
}

func TestExecutor_InMemoryRowBounds(t *testing.T) {
	f := newFixture(t, testSettings())
	stmt := f.statement(t, "user.all")

	list, err := f.executor.Query(context.Background(), stmt, nil, RowBounds{Offset: 1, Limit: 1}, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "bob", list[0].(map[string]any)["name"])
}

func TestBatchExecutor_BuffersUntilFlush(t *testing.T) {
	mock, db, err := sqlmock.New(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	configuration := NewConfiguration(testSettings())
	require.NoError(t, configuration.Mappers.Parse(strings.NewReader(userMapper)))
	dialect, err := batisdriver.Get(configuration.Settings.Dialect)
	require.NoError(t, err)
	executor := NewBatchExecutor(configuration, NewManagedTransaction(db, 0),
		NewStatementHandler(dialect, configuration.Converters, configuration.Factory))
	t.Cleanup(func() { executor.Close(false) })

	stmt, err := configuration.Statement("user.add")
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"ada", "bob"} {
		affected, err := executor.Update(ctx, stmt, map[string]any{"name": name})
		require.NoError(t, err)
		require.Equal(t, BatchUpdateReturnValue, affected)
	}
	require.Empty(t, mock.Execs(), "updates buffer until the batch drains")

	results, err := executor.FlushStatements(ctx, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "user.add", results[0].StatementName)
	require.Equal(t, []int64{1, 1}, results[0].UpdateCounts)
	require.Len(t, mock.Execs(), 2)
	require.Equal(t, [][]driver.Value{{"ada"}, {"bob"}}, mock.ExecArgs())
}

func TestBatchExecutor_RollbackDiscardsBufferedWork(t *testing.T) {
	mock, db, err := sqlmock.New(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	configuration := NewConfiguration(testSettings())
	require.NoError(t, configuration.Mappers.Parse(strings.NewReader(userMapper)))
	dialect, err := batisdriver.Get(configuration.Settings.Dialect)
	require.NoError(t, err)
	executor := NewBatchExecutor(configuration, NewManagedTransaction(db, 0),
		NewStatementHandler(dialect, configuration.Converters, configuration.Factory))
	t.Cleanup(func() { executor.Close(false) })

	stmt, err := configuration.Statement("user.add")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = executor.Update(ctx, stmt, map[string]any{"name": "ada"})
	require.NoError(t, err)

	results, err := executor.FlushStatements(ctx, true)
	require.NoError(t, err)
	require.Empty(t, results)
	require.Empty(t, mock.Execs())

	// nothing left to drain afterwards
	results, err = executor.FlushStatements(ctx, false)
	require.NoError(t, err)
	require.Empty(t, results)
}
