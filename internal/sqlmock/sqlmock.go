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

// Package sqlmock registers an in-memory database/sql driver for tests.
// Each Instance answers queries from configurable responders and records
// every statement it saw, so tests can assert how often the driver layer
// was actually hit.
package sqlmock

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
)

// Rows is canned query output.
type Rows struct {
	Columns []string
	Values  [][]driver.Value
}

// QueryResponder answers one query.
type QueryResponder func(query string, args []driver.Value) (*Rows, error)

// ExecResponder answers one exec, returning the affected-row count.
type ExecResponder func(query string, args []driver.Value) (int64, error)

// Instance is one mock database. Open it with sql.Open("sqlmock", name).
type Instance struct {
	mu        sync.Mutex
	name      string
	onQuery   QueryResponder
	onExec    ExecResponder
	queries   []string
	execs     []string
	commits   int
	rollbacks int
	queryArgs [][]driver.Value
	execArgs  [][]driver.Value
}

var (
	registerOnce sync.Once
	instancesMu  sync.Mutex
	instances    = make(map[string]*Instance)
)

// New creates (or resets) the named mock instance and returns it together
// with an opened handle.
func New(name string) (*Instance, *sql.DB, error) {
	registerOnce.Do(func() {
		sql.Register("sqlmock", mockDriver{})
	})
	instance := &Instance{name: name}
	instancesMu.Lock()
	instances[name] = instance
	instancesMu.Unlock()

	db, err := sql.Open("sqlmock", name)
	if err != nil {
		return nil, nil, err
	}
	return instance, db, nil
}

// OnQuery installs the query responder.
func (m *Instance) OnQuery(responder QueryResponder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onQuery = responder
}

// OnExec installs the exec responder.
func (m *Instance) OnExec(responder ExecResponder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExec = responder
}

// Queries returns every query statement seen, in order.
func (m *Instance) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Execs returns every exec statement seen, in order.
func (m *Instance) Execs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.execs...)
}

// QueryArgs returns the bound arguments of each query, in order.
func (m *Instance) QueryArgs() [][]driver.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]driver.Value(nil), m.queryArgs...)
}

// ExecArgs returns the bound arguments of each exec, in order.
func (m *Instance) ExecArgs() [][]driver.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]driver.Value(nil), m.execArgs...)
}

// Commits returns how many transactions committed.
func (m *Instance) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Rollbacks returns how many transactions rolled back.
func (m *Instance) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

func (m *Instance) query(query string, args []driver.Value) (*Rows, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.queryArgs = append(m.queryArgs, append([]driver.Value(nil), args...))
	responder := m.onQuery
	m.mu.Unlock()
	if responder == nil {
		return &Rows{}, nil
	}
	return responder(query, args)
}

func (m *Instance) exec(query string, args []driver.Value) (int64, error) {
	m.mu.Lock()
	m.execs = append(m.execs, query)
	m.execArgs = append(m.execArgs, append([]driver.Value(nil), args...))
	responder := m.onExec
	m.mu.Unlock()
	if responder == nil {
		return 1, nil
	}
	return responder(query, args)
}

type mockDriver struct{}

func (mockDriver) Open(name string) (driver.Conn, error) {
	instancesMu.Lock()
	instance, ok := instances[name]
	instancesMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sqlmock: unknown instance %q", name)
	}
	return &mockConn{instance: instance}, nil
}

type mockConn struct {
	instance *Instance
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return &mockStmt{conn: c, query: query}, nil
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return &mockTx{instance: c.instance}, nil
}

type mockTx struct {
	instance *Instance
}

func (t *mockTx) Commit() error {
	t.instance.mu.Lock()
	defer t.instance.mu.Unlock()
	t.instance.commits++
	return nil
}

func (t *mockTx) Rollback() error {
	t.instance.mu.Lock()
	defer t.instance.mu.Unlock()
	t.instance.rollbacks++
	return nil
}

type mockStmt struct {
	conn  *mockConn
	query string
}

func (s *mockStmt) Close() error { return nil }

// NumInput reports -1 so database/sql skips placeholder-count checking.
func (s *mockStmt) NumInput() int { return -1 }

func (s *mockStmt) Exec(args []driver.Value) (driver.Result, error) {
	affected, err := s.conn.instance.exec(s.query, args)
	if err != nil {
		return nil, err
	}
	return mockResult{affected: affected}, nil
}

func (s *mockStmt) Query(args []driver.Value) (driver.Rows, error) {
	rows, err := s.conn.instance.query(s.query, args)
	if err != nil {
		return nil, err
	}
	return &mockRows{rows: rows}, nil
}

type mockResult struct {
	affected int64
}

func (r mockResult) LastInsertId() (int64, error) { return 0, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.affected, nil }

type mockRows struct {
	rows  *Rows
	index int
}

func (r *mockRows) Columns() []string { return r.rows.Columns }

func (r *mockRows) Close() error { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.index >= len(r.rows.Values) {
		return io.EOF
	}
	copy(dest, r.rows.Values[r.index])
	r.index++
	return nil
}
