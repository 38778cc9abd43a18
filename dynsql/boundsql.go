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

package dynsql

import (
	"reflect"
	"strings"

	"github.com/go-batisdev/batis/eval"
	"github.com/go-batisdev/batis/internal/reflectutil"
)

// ParameterMode is the I/O direction of one parameter descriptor.
type ParameterMode int

const (
	ModeIn ParameterMode = iota
	ModeOut
	ModeInOut
)

func (m ParameterMode) String() string {
	switch m {
	case ModeOut:
		return "OUT"
	case ModeInOut:
		return "INOUT"
	default:
		return "IN"
	}
}

// ParameterMapping describes one positional placeholder: the property path
// it binds, its I/O mode, the declared type and JDBC-type hints, and whether
// a null value is acceptable without a type hint.
type ParameterMapping struct {
	Property string
	Mode     ParameterMode
	TypeName string
	JDBCType string
	Nullable bool
}

// BoundSQL is the immutable product of one composition: final SQL text with
// positional ? placeholders, the ordered parameter descriptors, a snapshot
// of the bindings used, and the additional parameters published by bind and
// foreach nodes. It is valid for one execution.
type BoundSQL struct {
	sql        string
	mappings   []ParameterMapping
	bindings   map[string]any
	additional map[string]any
	root       any
}

// SQL returns the final SQL text.
func (b *BoundSQL) SQL() string { return b.sql }

// Root returns the root parameter object the statement was composed with.
func (b *BoundSQL) Root() any { return b.root }

// Mappings returns the parameter descriptors in placeholder order. The
// number of ? placeholders in SQL always equals the length of this list.
func (b *BoundSQL) Mappings() []ParameterMapping { return b.mappings }

// Bindings returns the binding-map snapshot taken at composition end.
func (b *BoundSQL) Bindings() map[string]any { return b.bindings }

// Additional reports the additional parameter published under name, if any.
func (b *BoundSQL) Additional(name string) (any, bool) {
	value, ok := b.additional[name]
	return value, ok
}

// Value resolves a descriptor property for statement parameterization.
// Additional parameters take precedence over the root parameter object;
// dotted paths descend into whichever source supplied the first segment.
func (b *BoundSQL) Value(property string) (any, bool) {
	head, rest, dotted := strings.Cut(property, ".")
	if value, ok := b.additional[head]; ok {
		if !dotted {
			return value, value != nil
		}
		resolved, ok := eval.NewParameter(value).Get(rest)
		if !ok {
			return nil, false
		}
		return valueInterface(resolved), true
	}
	resolved, ok := eval.NewParameter(b.root).Get(property)
	if !ok {
		return nil, false
	}
	return valueInterface(resolved), true
}

// WithSQL returns a copy carrying replacement SQL text with the same
// descriptors and bindings. Plugins use it to rewrite statements without
// mutating the original.
func (b *BoundSQL) WithSQL(sql string) *BoundSQL {
	replaced := *b
	replaced.sql = sql
	return &replaced
}

func valueInterface(v reflect.Value) any {
	v = reflectutil.Unwrap(v)
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}
