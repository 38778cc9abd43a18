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
	"math"
	"reflect"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/go-batisdev/batis/cache"
	"github.com/go-batisdev/batis/dynsql"
)

const (
	// NoRowOffset is the default logical offset.
	NoRowOffset int64 = 0
	// NoRowLimit is the default logical limit.
	NoRowLimit int64 = math.MaxInt32
)

// BatchUpdateReturnValue is the affected-row count a batch executor reports
// for buffered updates; real counts arrive with FlushStatements.
const BatchUpdateReturnValue int64 = math.MinInt32 + 1002

// RowBounds is the logical result window of a query.
type RowBounds struct {
	Offset int64
	Limit  int64
}

// DefaultRowBounds is the unbounded window.
func DefaultRowBounds() RowBounds {
	return RowBounds{Offset: NoRowOffset, Limit: NoRowLimit}
}

// IsDefault reports whether the bounds request no windowing.
func (r RowBounds) IsDefault() bool {
	return r.Offset == NoRowOffset && r.Limit == NoRowLimit
}

// BatchResult carries the outcome of one drained batch.
type BatchResult struct {
	StatementName string
	SQL           string
	UpdateCounts  []int64
}

// Executor drives update/query/batch/commit/rollback for one session. An
// executor is single-owner: all operations, including nested ones through
// deferred loads and interceptors, run on one logical thread.
type Executor interface {
	// Update clears the local cache and executes a write, returning the
	// number of affected rows.
	Update(ctx context.Context, stmt *MappedStatement, param any) (int64, error)

	// Query is the canonical read path: compose, build the cache key, and
	// continue through QueryBound on the wrapped (interceptable) executor.
	Query(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds, rh ResultHandler) ([]any, error)

	// QueryBound runs the query algorithm for an already-composed
	// statement. Plugins intercept here to rewrite SQL or bounds.
	QueryBound(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds, rh ResultHandler, key *cache.Key, bound *dynsql.BoundSQL) ([]any, error)

	// QueryCursor streams results and bypasses the local cache.
	QueryCursor(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds) (*Cursor, error)

	// FlushStatements clears the local cache and drains buffered batch
	// statements. With rollback set, buffered work is discarded instead.
	FlushStatements(ctx context.Context, rollback bool) ([]BatchResult, error)

	// Commit clears the local cache, flushes, and (if required) commits the
	// transaction. It does not close the executor.
	Commit(ctx context.Context, required bool) error

	// Rollback clears the local cache, discards buffered work, and (if
	// required) rolls the transaction back. It does not close the executor.
	Rollback(ctx context.Context, required bool) error

	// Close rolls back if asked, closes the transaction and releases the
	// caches. Best-effort: no error escapes. All later operations fail with
	// ErrExecutorClosed.
	Close(forceRollback bool)

	// DeferLoad assigns the cached list under key to owner's property, or
	// enqueues the assignment until the top-level query completes if the
	// entry is still being built.
	DeferLoad(stmt *MappedStatement, owner any, property string, key *cache.Key, targetType reflect.Type) error

	// ClearLocalCache drops every locally cached result. Idempotent.
	ClearLocalCache()

	// CreateCacheKey builds the value-equality identifier of one query
	// invocation.
	CreateCacheKey(stmt *MappedStatement, param any, bounds RowBounds, bound *dynsql.BoundSQL) *cache.Key

	// Transaction exposes the owned transaction. Plugins must not close it.
	Transaction() Transaction

	// Closed reports whether Close ran.
	Closed() bool

	// SetWrapper points the executor at its outermost plugin wrapper so
	// nested queries re-enter through the interceptor chain.
	SetWrapper(Executor)
}

// executorDelegate is the driver-facing half a concrete executor supplies.
type executorDelegate interface {
	doUpdate(ctx context.Context, stmt *MappedStatement, param any) (int64, error)
	doQuery(ctx context.Context, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds, rh ResultHandler) ([]any, error)
	doQueryCursor(ctx context.Context, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds) (*Cursor, error)
	doFlushStatements(ctx context.Context, rollback bool) ([]BatchResult, error)
}

// baseExecutor implements the session lifecycle: the local cache, the
// deferred-load queue, nesting-depth accounting and the close protocol.
type baseExecutor struct {
	id               uuid.UUID
	log              *logrus.Entry
	configuration    *Configuration
	transaction      Transaction
	delegate         executorDelegate
	wrapper          Executor
	localCache       *cache.LocalCache
	localOutputCache *cache.LocalCache
	deferredLoads    []*deferredLoad
	queryStack       int
	closed           bool
}

func newBaseExecutor(configuration *Configuration, transaction Transaction) baseExecutor {
	id := uuid.NewV4()
	return baseExecutor{
		id:               id,
		log:              logrus.WithField("session", id.String()),
		configuration:    configuration,
		transaction:      transaction,
		localCache:       cache.NewLocalCache(),
		localOutputCache: cache.NewLocalCache(),
	}
}

func (e *baseExecutor) Transaction() Transaction { return e.transaction }

func (e *baseExecutor) Closed() bool { return e.closed }

func (e *baseExecutor) SetWrapper(wrapper Executor) { e.wrapper = wrapper }

// opContext applies the transaction's remaining budget to driver calls.
func (e *baseExecutor) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := e.transaction.Timeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

func (e *baseExecutor) Update(ctx context.Context, stmt *MappedStatement, param any) (int64, error) {
	if e.closed {
		return 0, ErrExecutorClosed.New()
	}
	e.ClearLocalCache()
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	return e.delegate.doUpdate(ctx, stmt, param)
}

func (e *baseExecutor) Query(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds, rh ResultHandler) ([]any, error) {
	if e.closed {
		return nil, ErrExecutorClosed.New()
	}
	bound, err := stmt.BoundSQL(param)
	if err != nil {
		return nil, ErrBuild.Wrap(err, stmt.Name())
	}
	key := e.CreateCacheKey(stmt, param, bounds, bound)
	return e.self().QueryBound(ctx, stmt, param, bounds, rh, key, bound)
}

// self returns the outermost wrapper so nested calls see interceptors.
func (e *baseExecutor) self() Executor {
	return e.wrapper
}

func (e *baseExecutor) QueryBound(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds, rh ResultHandler, key *cache.Key, bound *dynsql.BoundSQL) ([]any, error) {
	if e.closed {
		return nil, ErrExecutorClosed.New()
	}
	if e.queryStack == 0 && stmt.FlushCache() {
		e.ClearLocalCache()
	}

	e.queryStack++
	list, err := e.runQuery(ctx, stmt, param, bounds, rh, key, bound)
	e.queryStack--

	if err != nil {
		return nil, err
	}
	if e.queryStack == 0 {
		if err = e.drainDeferredLoads(); err != nil {
			return nil, err
		}
		if e.configuration.Settings.LocalCacheScope == CacheScopeStatement {
			e.ClearLocalCache()
		}
	}
	return list, nil
}

func (e *baseExecutor) runQuery(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds, rh ResultHandler, key *cache.Key, bound *dynsql.BoundSQL) ([]any, error) {
	if rh == nil {
		if entry, ok := e.localCache.Get(key); ok && entry != cache.ExecutionPlaceholder {
			list := entry.([]any)
			if stmt.Callable() {
				e.replayOutputParameters(key, param)
			}
			return list, nil
		}
	}
	return e.queryFromDatabase(ctx, stmt, param, bounds, rh, key, bound)
}

func (e *baseExecutor) queryFromDatabase(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds, rh ResultHandler, key *cache.Key, bound *dynsql.BoundSQL) (list []any, err error) {
	e.localCache.Put(key, cache.ExecutionPlaceholder)
	sentinel := true
	defer func() {
		if sentinel {
			e.localCache.Remove(key)
		}
	}()

	ctx, cancel := e.opContext(ctx)
	defer cancel()
	list, err = e.delegate.doQuery(ctx, stmt, bound, bounds, rh)

	sentinel = false
	e.localCache.Remove(key)
	if err != nil {
		return nil, ErrStatement.Wrap(err, stmt.Name(), bound.SQL())
	}

	if rh == nil {
		e.localCache.Put(key, list)
		if stmt.Callable() {
			e.localOutputCache.Put(key, snapshotOutputParameters(param, bound))
		}
	}
	return list, nil
}

// snapshotOutputParameters copies the post-execution values of output-mode
// descriptors out of the parameter object.
func snapshotOutputParameters(param any, bound *dynsql.BoundSQL) map[string]any {
	outputs := make(map[string]any)
	for _, mapping := range bound.Mappings() {
		if mapping.Mode == dynsql.ModeIn {
			continue
		}
		if value, ok := bound.Value(mapping.Property); ok {
			outputs[mapping.Property] = value
		}
	}
	return outputs
}

// replayOutputParameters writes cached output parameters back into the
// caller's parameter object on a local-cache hit.
func (e *baseExecutor) replayOutputParameters(key *cache.Key, param any) {
	entry, ok := e.localOutputCache.Get(key)
	if !ok {
		return
	}
	for property, value := range entry.(map[string]any) {
		if err := reflectSetProperty(param, property, value); err != nil {
			e.log.WithError(err).WithField("property", property).
				Warn("cannot replay cached output parameter")
		}
	}
}

func (e *baseExecutor) QueryCursor(ctx context.Context, stmt *MappedStatement, param any, bounds RowBounds) (*Cursor, error) {
	if e.closed {
		return nil, ErrExecutorClosed.New()
	}
	bound, err := stmt.BoundSQL(param)
	if err != nil {
		return nil, ErrBuild.Wrap(err, stmt.Name())
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	cursor, err := e.delegate.doQueryCursor(ctx, stmt, bound, bounds)
	if err != nil {
		return nil, ErrStatement.Wrap(err, stmt.Name(), bound.SQL())
	}
	return cursor, nil
}

func (e *baseExecutor) FlushStatements(ctx context.Context, rollback bool) ([]BatchResult, error) {
	if e.closed {
		return nil, ErrExecutorClosed.New()
	}
	e.ClearLocalCache()
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	return e.delegate.doFlushStatements(ctx, rollback)
}

func (e *baseExecutor) Commit(ctx context.Context, required bool) error {
	if e.closed {
		return ErrExecutorClosed.New()
	}
	e.ClearLocalCache()
	if _, err := e.FlushStatements(ctx, false); err != nil {
		return err
	}
	if required {
		if err := e.transaction.Commit(); err != nil {
			return ErrTransaction.Wrap(err, "commit")
		}
	}
	return nil
}

func (e *baseExecutor) Rollback(ctx context.Context, required bool) error {
	if e.closed {
		return ErrExecutorClosed.New()
	}
	e.ClearLocalCache()
	e.deferredLoads = nil
	_, flushErr := e.FlushStatements(ctx, true)
	if required {
		if err := e.transaction.Rollback(); err != nil {
			return ErrTransaction.Wrap(err, "rollback")
		}
	}
	return flushErr
}

func (e *baseExecutor) Close(forceRollback bool) {
	if e.closed {
		return
	}
	// best-effort cleanup on every path; rollback and close failures are
	// logged and swallowed
	if err := e.Rollback(context.Background(), forceRollback); err != nil {
		e.log.WithError(err).Warn("rollback during close failed")
	}
	if err := e.transaction.Close(); err != nil {
		e.log.WithError(err).Warn("closing transaction failed")
	}
	e.localCache = nil
	e.localOutputCache = nil
	e.deferredLoads = nil
	e.closed = true
}

func (e *baseExecutor) ClearLocalCache() {
	if e.closed {
		return
	}
	e.localCache.Clear()
	e.localOutputCache.Clear()
}

func (e *baseExecutor) CreateCacheKey(stmt *MappedStatement, param any, bounds RowBounds, bound *dynsql.BoundSQL) *cache.Key {
	key := cache.NewKey()
	key.Update(stmt.Name())
	key.Update(bounds.Offset)
	key.Update(bounds.Limit)
	key.Update(bound.SQL())
	for _, mapping := range bound.Mappings() {
		if mapping.Mode == dynsql.ModeOut {
			continue
		}
		value, ok := bound.Value(mapping.Property)
		if !ok {
			key.Update(cache.NullMarker)
			continue
		}
		key.Update(value)
	}
	key.Update(e.configuration.Settings.Environment)
	return key
}

func (e *baseExecutor) DeferLoad(stmt *MappedStatement, owner any, property string, key *cache.Key, targetType reflect.Type) error {
	if e.closed {
		return ErrExecutorClosed.New()
	}
	load := &deferredLoad{
		localCache: e.localCache,
		owner:      owner,
		property:   property,
		key:        key,
		targetType: targetType,
	}
	if load.canLoad() {
		return load.load()
	}
	e.deferredLoads = append(e.deferredLoads, load)
	return nil
}

// drainDeferredLoads resolves every staged back-reference once the cache is
// guaranteed complete. The queue is emptied before assignments run, so a
// failing assignment cannot corrupt cache state.
func (e *baseExecutor) drainDeferredLoads() error {
	if len(e.deferredLoads) == 0 {
		return nil
	}
	loads := e.deferredLoads
	e.deferredLoads = nil
	for _, load := range loads {
		if err := load.load(); err != nil {
			return err
		}
	}
	return nil
}

// deferredLoad is a pending assignment of a nested-query result into a
// parent object's property.
type deferredLoad struct {
	localCache *cache.LocalCache
	owner      any
	property   string
	key        *cache.Key
	targetType reflect.Type
}

// canLoad reports whether the cache holds a materialized (non-sentinel)
// list for the key.
func (d *deferredLoad) canLoad() bool {
	entry, ok := d.localCache.Get(d.key)
	return ok && entry != cache.ExecutionPlaceholder
}

func (d *deferredLoad) load() error {
	entry, ok := d.localCache.Get(d.key)
	if !ok || entry == cache.ExecutionPlaceholder {
		return ErrDeferredLoad.New(d.property)
	}
	list := entry.([]any)

	value := extractLoadValue(list, d.targetType)
	if err := reflectSetProperty(d.owner, d.property, value); err != nil {
		return ErrDeferredLoad.Wrap(err, d.property)
	}
	return nil
}

// extractLoadValue shapes a cached list for its destination: list-typed
// targets get the list, scalar targets get the first element (or nil).
func extractLoadValue(list []any, targetType reflect.Type) any {
	if targetType != nil && (targetType.Kind() == reflect.Slice || targetType.Kind() == reflect.Array) {
		return list
	}
	if targetType == nil {
		return list
	}
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

var _ Executor = (*simpleExecutor)(nil)

// simpleExecutor executes every operation immediately.
type simpleExecutor struct {
	baseExecutor
	handler StatementHandler
}

// NewSimpleExecutor builds the default executor over a transaction.
func NewSimpleExecutor(configuration *Configuration, transaction Transaction, handler StatementHandler) Executor {
	e := &simpleExecutor{
		baseExecutor: newBaseExecutor(configuration, transaction),
		handler:      handler,
	}
	e.delegate = e
	e.wrapper = e
	return e
}

func (e *simpleExecutor) doUpdate(ctx context.Context, stmt *MappedStatement, param any) (int64, error) {
	bound, err := stmt.BoundSQL(param)
	if err != nil {
		return 0, ErrBuild.Wrap(err, stmt.Name())
	}
	conn, err := e.transaction.Connection(ctx)
	if err != nil {
		return 0, ErrTransaction.Wrap(err, "connect")
	}
	affected, err := e.handler.Update(ctx, conn, stmt, bound)
	if err != nil {
		return 0, ErrStatement.Wrap(err, stmt.Name(), bound.SQL())
	}
	return affected, nil
}

func (e *simpleExecutor) doQuery(ctx context.Context, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds, rh ResultHandler) ([]any, error) {
	conn, err := e.transaction.Connection(ctx)
	if err != nil {
		return nil, ErrTransaction.Wrap(err, "connect")
	}
	return e.handler.Query(ctx, conn, stmt, bound, bounds, rh)
}

func (e *simpleExecutor) doQueryCursor(ctx context.Context, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds) (*Cursor, error) {
	conn, err := e.transaction.Connection(ctx)
	if err != nil {
		return nil, ErrTransaction.Wrap(err, "connect")
	}
	return e.handler.QueryCursor(ctx, conn, stmt, bound, bounds)
}

func (e *simpleExecutor) doFlushStatements(_ context.Context, _ bool) ([]BatchResult, error) {
	return nil, nil
}

var _ Executor = (*batchExecutor)(nil)

// batchExecutor buffers consecutive updates that share SQL text and drains
// them on FlushStatements.
type batchExecutor struct {
	baseExecutor
	handler    StatementHandler
	currentSQL string
	batches    []*batchUnit
}

type batchUnit struct {
	stmt     *MappedStatement
	bound    *dynsql.BoundSQL
	argsList [][]any
}

// NewBatchExecutor builds an executor that buffers writes.
func NewBatchExecutor(configuration *Configuration, transaction Transaction, handler StatementHandler) Executor {
	e := &batchExecutor{
		baseExecutor: newBaseExecutor(configuration, transaction),
		handler:      handler,
	}
	e.delegate = e
	e.wrapper = e
	return e
}

func (e *batchExecutor) doUpdate(ctx context.Context, stmt *MappedStatement, param any) (int64, error) {
	bound, err := stmt.BoundSQL(param)
	if err != nil {
		return 0, ErrBuild.Wrap(err, stmt.Name())
	}
	args, err := batchArgs(bound, e.configuration.Converters)
	if err != nil {
		return 0, err
	}
	sqlText := bound.SQL()
	if len(e.batches) > 0 && sqlText == e.currentSQL {
		last := e.batches[len(e.batches)-1]
		last.argsList = append(last.argsList, args)
	} else {
		e.batches = append(e.batches, &batchUnit{stmt: stmt, bound: bound, argsList: [][]any{args}})
		e.currentSQL = sqlText
	}
	return BatchUpdateReturnValue, nil
}

func (e *batchExecutor) doQuery(ctx context.Context, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds, rh ResultHandler) ([]any, error) {
	// pending writes must land before a read observes the database
	if _, err := e.doFlushStatements(ctx, false); err != nil {
		return nil, err
	}
	conn, err := e.transaction.Connection(ctx)
	if err != nil {
		return nil, ErrTransaction.Wrap(err, "connect")
	}
	return e.handler.Query(ctx, conn, stmt, bound, bounds, rh)
}

func (e *batchExecutor) doQueryCursor(ctx context.Context, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds) (*Cursor, error) {
	if _, err := e.doFlushStatements(ctx, false); err != nil {
		return nil, err
	}
	conn, err := e.transaction.Connection(ctx)
	if err != nil {
		return nil, ErrTransaction.Wrap(err, "connect")
	}
	return e.handler.QueryCursor(ctx, conn, stmt, bound, bounds)
}

func (e *batchExecutor) doFlushStatements(ctx context.Context, rollback bool) ([]BatchResult, error) {
	units := e.batches
	e.batches = nil
	e.currentSQL = ""
	if rollback || len(units) == 0 {
		return nil, nil
	}

	conn, err := e.transaction.Connection(ctx)
	if err != nil {
		return nil, ErrTransaction.Wrap(err, "connect")
	}
	results := make([]BatchResult, 0, len(units))
	for _, unit := range units {
		result := BatchResult{
			StatementName: unit.stmt.Name(),
			SQL:           unit.bound.SQL(),
			UpdateCounts:  make([]int64, 0, len(unit.argsList)),
		}
		for _, args := range unit.argsList {
			execResult, err := conn.ExecContext(ctx, unit.bound.SQL(), args...)
			if err != nil {
				return nil, ErrStatement.Wrap(err, unit.stmt.Name(), unit.bound.SQL())
			}
			affected, err := execResult.RowsAffected()
			if err != nil {
				return nil, ErrStatement.Wrap(err, unit.stmt.Name(), unit.bound.SQL())
			}
			result.UpdateCounts = append(result.UpdateCounts, affected)
		}
		results = append(results, result)
	}
	return results, nil
}

// batchArgs resolves descriptor values eagerly: buffered statements must
// not observe later parameter mutations.
func batchArgs(bound *dynsql.BoundSQL, converters *ConverterRegistry) ([]any, error) {
	mappings := bound.Mappings()
	args := make([]any, 0, len(mappings))
	for _, mapping := range mappings {
		if mapping.Mode == dynsql.ModeOut {
			continue
		}
		value, _ := bound.Value(mapping.Property)
		converted, err := converters.Convert(value)
		if err != nil {
			return nil, err
		}
		args = append(args, converted)
	}
	return args, nil
}
