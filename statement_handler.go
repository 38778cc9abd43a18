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
	"fmt"

	"github.com/go-batisdev/batis/driver"
	"github.com/go-batisdev/batis/dynsql"
)

// ResultHandler receives result rows one at a time. Supplying one to a
// query streams rows to it instead of materializing (and caching) a list.
type ResultHandler func(row map[string]any) error

// StatementHandler prepares a composed statement against a connection,
// parameterizes it from the bound SQL's descriptors, executes it, and hands
// rows to the result-set handler. It is the executor's driver layer.
type StatementHandler interface {
	Query(ctx context.Context, conn Connection, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds, rh ResultHandler) ([]any, error)
	QueryCursor(ctx context.Context, conn Connection, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds) (*Cursor, error)
	Update(ctx context.Context, conn Connection, stmt *MappedStatement, bound *dynsql.BoundSQL) (int64, error)
}

// ResultSetHandler maps driver rows into result objects, applying in-memory
// row-bounds windowing when the SQL was not rewritten for paging.
type ResultSetHandler interface {
	HandleResults(rows *sql.Rows, bounds RowBounds, rh ResultHandler) ([]any, error)
}

// preparedStatementHandler is the database/sql implementation: prepare,
// bind in placeholder order, execute, release on every exit path.
type preparedStatementHandler struct {
	translator driver.Translator
	converters *ConverterRegistry
	resultSets ResultSetHandler
}

// NewStatementHandler builds the default statement handler for a dialect.
func NewStatementHandler(dialect driver.Dialect, converters *ConverterRegistry, factory ObjectFactory) StatementHandler {
	return &preparedStatementHandler{
		translator: dialect.Translator(),
		converters: converters,
		resultSets: &mapResultSetHandler{factory: factory},
	}
}

func (h *preparedStatementHandler) Query(ctx context.Context, conn Connection, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds, rh ResultHandler) ([]any, error) {
	args, outs, err := h.parameterize(bound)
	if err != nil {
		return nil, err
	}
	prepared, err := conn.PrepareContext(ctx, driver.TranslateSQL(bound.SQL(), h.translator))
	if err != nil {
		return nil, err
	}
	defer func() { _ = prepared.Close() }()

	rows, err := prepared.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	list, err := h.resultSets.HandleResults(rows, bounds, rh)
	if err != nil {
		return nil, err
	}
	if err = writeBackOutputs(bound, outs); err != nil {
		return nil, err
	}
	return list, nil
}

func (h *preparedStatementHandler) QueryCursor(ctx context.Context, conn Connection, stmt *MappedStatement, bound *dynsql.BoundSQL, bounds RowBounds) (*Cursor, error) {
	args, _, err := h.parameterize(bound)
	if err != nil {
		return nil, err
	}
	prepared, err := conn.PrepareContext(ctx, driver.TranslateSQL(bound.SQL(), h.translator))
	if err != nil {
		return nil, err
	}
	rows, err := prepared.QueryContext(ctx, args...)
	if err != nil {
		_ = prepared.Close()
		return nil, err
	}
	return newCursor(rows, prepared, bounds), nil
}

func (h *preparedStatementHandler) Update(ctx context.Context, conn Connection, stmt *MappedStatement, bound *dynsql.BoundSQL) (int64, error) {
	args, outs, err := h.parameterize(bound)
	if err != nil {
		return 0, err
	}
	prepared, err := conn.PrepareContext(ctx, driver.TranslateSQL(bound.SQL(), h.translator))
	if err != nil {
		return 0, err
	}
	defer func() { _ = prepared.Close() }()

	result, err := prepared.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	if err = writeBackOutputs(bound, outs); err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// outBinding tracks one output-mode placeholder so the driver's value can
// land back in the caller's parameter object after execution.
type outBinding struct {
	property string
	holder   *any
}

// parameterize resolves every descriptor in placeholder order. Input-mode
// properties that do not resolve bind null; output-mode descriptors bind a
// holder collected for write-back.
func (h *preparedStatementHandler) parameterize(bound *dynsql.BoundSQL) ([]any, []outBinding, error) {
	mappings := bound.Mappings()
	args := make([]any, 0, len(mappings))
	var outs []outBinding
	for _, mapping := range mappings {
		switch mapping.Mode {
		case dynsql.ModeOut:
			holder := new(any)
			outs = append(outs, outBinding{property: mapping.Property, holder: holder})
			args = append(args, sql.Out{Dest: holder})
		case dynsql.ModeInOut:
			value, _ := bound.Value(mapping.Property)
			holder := new(any)
			*holder = value
			outs = append(outs, outBinding{property: mapping.Property, holder: holder})
			args = append(args, sql.Out{Dest: holder, In: true})
		default:
			value, _ := bound.Value(mapping.Property)
			converted, err := h.converters.Convert(value)
			if err != nil {
				return nil, nil, fmt.Errorf("batis: cannot bind parameter %q: %w", mapping.Property, err)
			}
			args = append(args, converted)
		}
	}
	return args, outs, nil
}

func writeBackOutputs(bound *dynsql.BoundSQL, outs []outBinding) error {
	for _, out := range outs {
		if err := reflectSetProperty(bound.Root(), out.property, *out.holder); err != nil {
			return fmt.Errorf("batis: cannot write back output parameter %q: %w", out.property, err)
		}
	}
	return nil
}

var _ StatementHandler = (*preparedStatementHandler)(nil)

// mapResultSetHandler scans each row into a column-keyed map.
type mapResultSetHandler struct {
	factory ObjectFactory
}

func (h *mapResultSetHandler) HandleResults(rows *sql.Rows, bounds RowBounds, rh ResultHandler) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var (
		list    = h.factory.CreateList(16)
		skipped int64
		taken   int64
	)
	for rows.Next() {
		if skipped < bounds.Offset {
			skipped++
			continue
		}
		if taken >= bounds.Limit {
			break
		}
		row, err := h.scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		taken++
		if rh != nil {
			if err = rh(row); err != nil {
				return nil, err
			}
			continue
		}
		list = append(list, row)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if rh != nil {
		return nil, nil
	}
	return list, nil
}

func (h *mapResultSetHandler) scanRow(rows *sql.Rows, columns []string) (map[string]any, error) {
	values := make([]any, len(columns))
	for i := range values {
		values[i] = new(any)
	}
	if err := rows.Scan(values...); err != nil {
		return nil, err
	}
	row := h.factory.CreateRow()
	for i, column := range columns {
		value := *(values[i].(*any))
		if raw, ok := value.([]byte); ok {
			value = string(raw)
		}
		row[column] = value
	}
	return row, nil
}

var _ ResultSetHandler = (*mapResultSetHandler)(nil)
