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
	"github.com/go-batisdev/batis/driver"
	"github.com/go-batisdev/batis/dynsql"
)

// PaginationInterceptor rewrites queries with the dialect's paging syntax
// and zeroes the logical row bounds, so the database returns only the
// requested window and the in-memory windowing the result-set handler would
// otherwise perform is skipped.
type PaginationInterceptor struct {
	Dialect driver.Dialect
}

func (p *PaginationInterceptor) Signatures() []Signature {
	return []Signature{{Type: "Executor", Method: "QueryBound"}}
}

func (p *PaginationInterceptor) Intercept(invocation *Invocation) (any, error) {
	bounds := invocation.Args[3].(RowBounds)
	if bounds.IsDefault() || !p.Dialect.SupportsPaging() {
		return invocation.Proceed()
	}
	bound := invocation.Args[6].(*dynsql.BoundSQL)
	invocation.Args[6] = bound.WithSQL(p.Dialect.PageSQL(bound.SQL(), bounds.Offset, bounds.Limit))
	invocation.Args[3] = DefaultRowBounds()
	return invocation.Proceed()
}

var _ Interceptor = (*PaginationInterceptor)(nil)
