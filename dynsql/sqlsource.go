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
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySQL is returned when a composition yields no executable text.
var ErrEmptySQL = errors.New("dynsql: composition produced an empty statement")

// SQLSource produces a BoundSQL for a root parameter object.
type SQLSource interface {
	BoundSQL(param any) (*BoundSQL, error)
}

// DynamicSQLSource composes a node tree on every call. Trees are built once
// at registration time and are immutable; a fresh context is created per
// composition.
type DynamicSQLSource struct {
	Root   Node
	Strict bool
}

func (s *DynamicSQLSource) BoundSQL(param any) (*BoundSQL, error) {
	ctx := NewContext(param, s.Strict)
	if _, err := s.Root.Apply(ctx); err != nil {
		return nil, err
	}
	bindings, additional := ctx.snapshot()
	sql, mappings, err := normalizeParamTokens(ctx.SQL())
	if err != nil {
		return nil, err
	}
	return &BoundSQL{
		sql:        sql,
		mappings:   mappings,
		bindings:   bindings,
		additional: additional,
		root:       param,
	}, nil
}

var _ SQLSource = (*DynamicSQLSource)(nil)

// RawSQLSource carries a statement with no dynamic tags or splices: the
// placeholder normalization runs once at build time.
type RawSQLSource struct {
	sql      string
	mappings []ParameterMapping
}

// NewRawSQLSource normalizes the text once and reuses the result for every
// execution.
func NewRawSQLSource(text string) (*RawSQLSource, error) {
	sql, mappings, err := normalizeParamTokens(strings.Join(strings.Fields(text), " "))
	if err != nil {
		return nil, err
	}
	return &RawSQLSource{sql: sql, mappings: mappings}, nil
}

func (s *RawSQLSource) BoundSQL(param any) (*BoundSQL, error) {
	return &BoundSQL{
		sql:        s.sql,
		mappings:   s.mappings,
		bindings:   map[string]any{ParameterKey: param},
		additional: map[string]any{},
		root:       param,
	}, nil
}

var _ SQLSource = (*RawSQLSource)(nil)

// spliceMask replaces the # of parameter-token openers inside spliced text
// so normalizeParamTokens skips them; they are restored afterwards. Splices
// are deliberately a single pass.
const spliceMask = "\x00"

func maskParamTokens(s string) string {
	return strings.ReplaceAll(s, "#{", spliceMask+"{")
}

func unmaskParamTokens(s string) string {
	return strings.ReplaceAll(s, spliceMask+"{", "#{")
}

// normalizeParamTokens converts every #{property,options...} token into a
// positional ? placeholder and the corresponding parameter descriptor, in
// order. The descriptor count always equals the placeholder count.
func normalizeParamTokens(sql string) (string, []ParameterMapping, error) {
	if strings.TrimSpace(sql) == "" {
		return "", nil, ErrEmptySQL
	}

	matches := paramRegex.FindAllStringSubmatchIndex(sql, -1)
	if len(matches) == 0 {
		return unmaskParamTokens(sql), nil, nil
	}

	builder := getStringBuilder()
	defer putStringBuilder(builder)
	builder.Grow(len(sql))

	mappings := make([]ParameterMapping, 0, len(matches))
	lastIndex := 0
	for _, m := range matches {
		builder.WriteString(sql[lastIndex:m[0]])
		mapping, err := parseMapping(sql[m[2]:m[3]])
		if err != nil {
			return "", nil, err
		}
		mappings = append(mappings, mapping)
		builder.WriteString("?")
		lastIndex = m[1]
	}
	builder.WriteString(sql[lastIndex:])

	return unmaskParamTokens(builder.String()), mappings, nil
}

// parseMapping parses a token body: a property path followed by optional
// comma-separated options (mode=, type=, jdbcType=, nullable=).
func parseMapping(content string) (ParameterMapping, error) {
	parts := strings.Split(content, ",")
	mapping := ParameterMapping{Property: strings.TrimSpace(parts[0])}
	if mapping.Property == "" {
		return mapping, fmt.Errorf("dynsql: parameter token %q has no property", content)
	}
	for _, part := range parts[1:] {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return mapping, fmt.Errorf("dynsql: malformed parameter option %q in %q", part, content)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "mode":
			switch strings.ToUpper(value) {
			case "IN":
				mapping.Mode = ModeIn
			case "OUT":
				mapping.Mode = ModeOut
			case "INOUT":
				mapping.Mode = ModeInOut
			default:
				return mapping, fmt.Errorf("dynsql: unknown parameter mode %q in %q", value, content)
			}
		case "type":
			mapping.TypeName = value
		case "jdbcType":
			mapping.JDBCType = value
		case "nullable":
			mapping.Nullable = strings.EqualFold(value, "true")
		default:
			return mapping, fmt.Errorf("dynsql: unknown parameter option %q in %q", key, content)
		}
	}
	return mapping, nil
}
