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
	"database/sql"
	"errors"
	"time"
)

// Connection is the prepared-statement surface the statement handler needs.
// *sql.DB, *sql.Tx and *sql.Conn all satisfy it.
type Connection interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Transaction owns one session's connection. The executor owns the
// transaction lifetime; plugins must not close it.
type Transaction interface {
	// Connection returns the session connection, opening the underlying
	// transaction on first use.
	Connection(ctx context.Context) (Connection, error)
	Commit() error
	Rollback() error
	Close() error
	// Timeout is the optional per-session budget propagated to driver
	// calls; zero means unbounded.
	Timeout() time.Duration
}

// managedTransaction lazily begins a *sql.Tx on first connection use and
// releases it on close. Rolling back an already-finished transaction is not
// an error.
type managedTransaction struct {
	db      *sql.DB
	tx      *sql.Tx
	timeout time.Duration
}

// NewManagedTransaction wraps db in a lazily-begun transaction.
func NewManagedTransaction(db *sql.DB, timeout time.Duration) Transaction {
	return &managedTransaction{db: db, timeout: timeout}
}

func (t *managedTransaction) Connection(ctx context.Context) (Connection, error) {
	if t.tx == nil {
		tx, err := t.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		t.tx = tx
	}
	return t.tx, nil
}

func (t *managedTransaction) Commit() error {
	if t.tx == nil {
		return nil
	}
	err := t.tx.Commit()
	t.tx = nil
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *managedTransaction) Rollback() error {
	if t.tx == nil {
		return nil
	}
	err := t.tx.Rollback()
	t.tx = nil
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *managedTransaction) Close() error {
	if t.tx != nil {
		err := t.tx.Rollback()
		t.tx = nil
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			return err
		}
	}
	return nil
}

func (t *managedTransaction) Timeout() time.Duration { return t.timeout }

var _ Transaction = (*managedTransaction)(nil)
