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

// Package driver describes database dialects: placeholder style and paging
// syntax. Statements compose with positional ? placeholders; dialects that
// number their placeholders rewrite at preparation time.
package driver

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Translator renders the placeholder for the i-th parameter (1-based).
type Translator interface {
	Placeholder(ordinal int) string
}

// QuestionTranslator keeps the positional ? placeholders as composed.
type QuestionTranslator struct{}

func (QuestionTranslator) Placeholder(_ int) string { return "?" }

// DollarTranslator numbers placeholders $1, $2, ... (PostgreSQL style).
type DollarTranslator struct{}

func (DollarTranslator) Placeholder(ordinal int) string { return "$" + strconv.Itoa(ordinal) }

// TranslateSQL rewrites the ? placeholders of composed SQL through the
// translator. A QuestionTranslator short-circuits.
func TranslateSQL(sql string, translator Translator) string {
	if _, ok := translator.(QuestionTranslator); ok {
		return sql
	}
	var builder strings.Builder
	builder.Grow(len(sql) + 8)
	ordinal := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			ordinal++
			builder.WriteString(translator.Placeholder(ordinal))
			continue
		}
		builder.WriteByte(sql[i])
	}
	return builder.String()
}

// Dialect is a database dialect: its registered name, its placeholder
// translator and its paging syntax.
type Dialect interface {
	Name() string
	Translator() Translator
	// SupportsPaging reports whether the dialect can rewrite a statement
	// to return only a requested window.
	SupportsPaging() bool
	// PageSQL wraps sql so the database returns limit rows starting at
	// offset. Only called when SupportsPaging is true.
	PageSQL(sql string, offset, limit int64) string
}

// MySQLDialect pages with LIMIT ... OFFSET ....
type MySQLDialect struct{}

func (MySQLDialect) Name() string           { return "mysql" }
func (MySQLDialect) Translator() Translator { return QuestionTranslator{} }
func (MySQLDialect) SupportsPaging() bool   { return true }
func (MySQLDialect) PageSQL(sql string, offset, limit int64) string {
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, limit, offset)
}

// SQLiteDialect pages like MySQL.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string           { return "sqlite" }
func (SQLiteDialect) Translator() Translator { return QuestionTranslator{} }
func (SQLiteDialect) SupportsPaging() bool   { return true }
func (SQLiteDialect) PageSQL(sql string, offset, limit int64) string {
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, limit, offset)
}

// PostgresDialect numbers placeholders and pages with LIMIT/OFFSET.
type PostgresDialect struct{}

func (PostgresDialect) Name() string           { return "postgres" }
func (PostgresDialect) Translator() Translator { return DollarTranslator{} }
func (PostgresDialect) SupportsPaging() bool   { return true }
func (PostgresDialect) PageSQL(sql string, offset, limit int64) string {
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, limit, offset)
}

var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]Dialect)
)

// Register makes a dialect available by name. Re-registration replaces.
func Register(dialect Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[dialect.Name()] = dialect
}

// Get returns the dialect registered under name.
func Get(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	dialect, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("driver: dialect %q is not registered", name)
	}
	return dialect, nil
}

func init() {
	Register(MySQLDialect{})
	Register(SQLiteDialect{})
	Register(PostgresDialect{})
}
