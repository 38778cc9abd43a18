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

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrExecutorClosed is returned for any operation on a closed executor.
	ErrExecutorClosed = errors.NewKind("batis: executor is closed")

	// ErrBuild is returned when dynamic SQL composition produced an empty
	// or malformed statement.
	ErrBuild = errors.NewKind("batis: statement %s produced no executable SQL")

	// ErrStatement wraps a driver-level SQL failure with the statement id
	// and the SQL text that failed.
	ErrStatement = errors.NewKind("batis: statement %s failed (sql: %s)")

	// ErrTransaction is returned for commit/rollback/close failures.
	ErrTransaction = errors.NewKind("batis: transaction %s failed")

	// ErrInterceptor surfaces a plugin failure with the interceptor's type
	// name.
	ErrInterceptor = errors.NewKind("batis: interceptor %s failed")

	// ErrDeferredLoad is returned when assigning a nested-query result into
	// its owner fails.
	ErrDeferredLoad = errors.NewKind("batis: deferred load of property %s failed")

	// ErrNoStatement is returned when a statement name resolves to nothing.
	ErrNoStatement = errors.NewKind("batis: no statement named %s")

	// ErrInvalidSignature is returned at registration time for interceptors
	// declaring signatures over unknown targets or methods.
	ErrInvalidSignature = errors.NewKind("batis: interceptor %s declares unknown signature %s.%s")
)
