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
	"database/sql"

	"github.com/go-batisdev/batis/driver"
)

// Engine binds a configuration to a database handle and creates sessions.
type Engine struct {
	configuration *Configuration
	db            *sql.DB
	dialect       driver.Dialect
	handler       StatementHandler
	chain         *InterceptorChain
}

// New creates an engine over an opened database handle. The dialect comes
// from the settings; with Debug set, the debug interceptor is pre-wired.
func New(configuration *Configuration, db *sql.DB) (*Engine, error) {
	dialect, err := driver.Get(configuration.Settings.Dialect)
	if err != nil {
		return nil, err
	}
	configuration.Mappers.SetStrictExpressions(configuration.Settings.StrictExpressions)
	engine := &Engine{
		configuration: configuration,
		db:            db,
		dialect:       dialect,
		handler:       NewStatementHandler(dialect, configuration.Converters, configuration.Factory),
		chain:         NewInterceptorChain(),
	}
	if configuration.Settings.Debug {
		if err = engine.Use(&DebugInterceptor{}); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// Use registers interceptors for every session created afterwards.
func (e *Engine) Use(interceptors ...Interceptor) error {
	return e.chain.Add(interceptors...)
}

// Configuration returns the engine configuration.
func (e *Engine) Configuration() *Configuration { return e.configuration }

// Dialect returns the engine's database dialect.
func (e *Engine) Dialect() driver.Dialect { return e.dialect }

// Statement resolves a registered statement by its namespaced name.
func (e *Engine) Statement(name string) (*MappedStatement, error) {
	return e.configuration.Statement(name)
}

// Session opens an executor over a fresh lazily-begun transaction.
func (e *Engine) Session() Executor {
	return e.wrap(NewSimpleExecutor(e.configuration, e.transaction(), e.handler))
}

// BatchSession opens an executor that buffers writes until flushed.
func (e *Engine) BatchSession() Executor {
	return e.wrap(NewBatchExecutor(e.configuration, e.transaction(), e.handler))
}

func (e *Engine) transaction() Transaction {
	return NewManagedTransaction(e.db, e.configuration.Settings.QueryTimeout.Std())
}

func (e *Engine) wrap(executor Executor) Executor {
	wrapped := e.chain.Apply(executor)
	// nested queries re-enter through the outermost wrapper
	wrapped.SetWrapper(wrapped)
	return wrapped
}
