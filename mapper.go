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
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-batisdev/batis/dynsql"
)

// Mappers is the registry of statements and reusable SQL fragments parsed
// from mapper XML documents. Registration happens once at startup; the
// registry is read-only afterwards.
type Mappers struct {
	statements map[string]*MappedStatement
	fragments  map[string]dynsql.Node
	strict     bool
}

// NewMappers returns an empty registry.
func NewMappers() *Mappers {
	return &Mappers{
		statements: make(map[string]*MappedStatement),
		fragments:  make(map[string]dynsql.Node),
	}
}

// SetStrictExpressions makes statements registered afterwards evaluate
// expressions strictly.
func (m *Mappers) SetStrictExpressions(strict bool) { m.strict = strict }

// Statement resolves a namespaced statement name.
func (m *Mappers) Statement(name string) (*MappedStatement, error) {
	stmt, ok := m.statements[name]
	if !ok {
		return nil, ErrNoStatement.New(name)
	}
	return stmt, nil
}

// Fragment implements dynsql.Fragments for <include> resolution.
func (m *Mappers) Fragment(id string) (dynsql.Node, bool) {
	node, ok := m.fragments[id]
	return node, ok
}

// ParseFile registers every statement of a mapper XML file.
func (m *Mappers) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return m.Parse(f)
}

// Parse registers every statement of one mapper XML document:
//
//	<mapper namespace="user">
//	  <sql id="columns">id, name, age</sql>
//	  <select id="byName">
//	    SELECT <include refid="columns"/> FROM users
//	    <where><if test="name != null">name = #{name}</if></where>
//	  </select>
//	</mapper>
//
// Fragments must be declared before the statements that include them.
func (m *Mappers) Parse(r io.Reader) error {
	decoder := xml.NewDecoder(r)
	for {
		token, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "mapper" {
			return fmt.Errorf("batis: expected <mapper>, found <%s>", start.Name.Local)
		}
		if err = m.parseMapper(decoder, start); err != nil {
			return err
		}
	}
}

func (m *Mappers) parseMapper(decoder *xml.Decoder, start xml.StartElement) error {
	namespace := xmlAttribute(start, "namespace")
	if namespace == "" {
		return fmt.Errorf("batis: mapper requires a namespace")
	}
	scope := &namespacedFragments{mappers: m, namespace: namespace}
	for {
		token, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		switch token := token.(type) {
		case xml.StartElement:
			switch name := token.Name.Local; name {
			case "sql":
				if err = m.parseFragment(decoder, token, scope); err != nil {
					return err
				}
			case "select", "insert", "update", "delete":
				if err = m.parseStatement(decoder, token, namespace, Action(name), scope); err != nil {
					return err
				}
			default:
				return fmt.Errorf("batis: unexpected element <%s> in mapper %q", name, namespace)
			}
		case xml.EndElement:
			if token.Name.Local == "mapper" {
				return nil
			}
		}
	}
	return fmt.Errorf("batis: mapper %q is not closed", namespace)
}

func (m *Mappers) parseFragment(decoder *xml.Decoder, start xml.StartElement, scope dynsql.Fragments) error {
	id := xmlAttribute(start, "id")
	if id == "" {
		return fmt.Errorf("batis: sql fragment requires an id")
	}
	nodes, err := dynsql.Parse(decoder, "sql", scope)
	if err != nil {
		return err
	}
	qualified := scope.(*namespacedFragments).namespace + "." + id
	if _, exists := m.fragments[qualified]; exists {
		return fmt.Errorf("batis: duplicate sql fragment %q", qualified)
	}
	m.fragments[qualified] = nodes
	return nil
}

func (m *Mappers) parseStatement(decoder *xml.Decoder, start xml.StartElement, namespace string, action Action, scope dynsql.Fragments) error {
	id := xmlAttribute(start, "id")
	if id == "" {
		return fmt.Errorf("batis: %s statement requires an id", action)
	}
	nodes, err := dynsql.Parse(decoder, string(action), scope)
	if err != nil {
		return err
	}

	stmt := &MappedStatement{
		id:        id,
		namespace: namespace,
		action:    action,
		source:    buildSource(nodes, m.strict),
		attrs:     make(map[string]string),
	}
	for _, attr := range start.Attr {
		stmt.attrs[attr.Name.Local] = attr.Value
	}
	stmt.flushCache = stmt.attrs["flushCache"] == "true"
	if stmt.attrs["statementType"] == "callable" {
		stmt.statementType = StatementCallable
	}

	name := stmt.Name()
	if _, exists := m.statements[name]; exists {
		return fmt.Errorf("batis: duplicate statement %q", name)
	}
	m.statements[name] = stmt
	return nil
}

// buildSource picks the cheap pre-composed form for purely static bodies.
func buildSource(nodes dynsql.MixedNode, strict bool) dynsql.SQLSource {
	if len(nodes) == 1 {
		if text, ok := nodes[0].(dynsql.StaticTextNode); ok {
			if raw, err := dynsql.NewRawSQLSource(string(text)); err == nil {
				return raw
			}
		}
	}
	return &dynsql.DynamicSQLSource{Root: nodes, Strict: strict}
}

// namespacedFragments resolves include refids first inside the declaring
// namespace, then globally.
type namespacedFragments struct {
	mappers   *Mappers
	namespace string
}

func (s *namespacedFragments) Fragment(id string) (dynsql.Node, bool) {
	if !strings.Contains(id, ".") {
		if node, ok := s.mappers.fragments[s.namespace+"."+id]; ok {
			return node, true
		}
	}
	node, ok := s.mappers.fragments[id]
	return node, ok
}

func xmlAttribute(token xml.StartElement, name string) string {
	for _, attr := range token.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}
