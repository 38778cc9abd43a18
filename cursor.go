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

import "database/sql"

// Cursor streams query rows without materializing them; cursor reads bypass
// the local cache. The caller must Close it.
type Cursor struct {
	rows     *sql.Rows
	prepared *sql.Stmt
	bounds   RowBounds
	columns  []string
	current  map[string]any
	skipped  int64
	taken    int64
	err      error
	closed   bool
}

func newCursor(rows *sql.Rows, prepared *sql.Stmt, bounds RowBounds) *Cursor {
	return &Cursor{rows: rows, prepared: prepared, bounds: bounds}
}

// Next advances to the next row inside the cursor's row bounds.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.columns == nil {
		c.columns, c.err = c.rows.Columns()
		if c.err != nil {
			return false
		}
	}
	for c.rows.Next() {
		if c.skipped < c.bounds.Offset {
			c.skipped++
			continue
		}
		if c.taken >= c.bounds.Limit {
			return false
		}
		values := make([]any, len(c.columns))
		for i := range values {
			values[i] = new(any)
		}
		if c.err = c.rows.Scan(values...); c.err != nil {
			return false
		}
		row := make(map[string]any, len(c.columns))
		for i, column := range c.columns {
			value := *(values[i].(*any))
			if raw, ok := value.([]byte); ok {
				value = string(raw)
			}
			row[column] = value
		}
		c.current = row
		c.taken++
		return true
	}
	c.err = c.rows.Err()
	return false
}

// Row returns the current row.
func (c *Cursor) Row() map[string]any { return c.current }

// Err returns the first error hit while iterating.
func (c *Cursor) Err() error { return c.err }

// Close releases the underlying rows and statement. Idempotent.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.rows.Close()
	if c.prepared != nil {
		if cerr := c.prepared.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
