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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-batisdev/batis/dynsql"
)

func TestMappers_Registration(t *testing.T) {
	mappers := NewMappers()
	require.NoError(t, mappers.Parse(strings.NewReader(userMapper)))

	stmt, err := mappers.Statement("user.byName")
	require.NoError(t, err)
	require.Equal(t, "byName", stmt.ID())
	require.Equal(t, "user", stmt.Namespace())
	require.Equal(t, Select, stmt.Action())
	require.False(t, stmt.FlushCache())

	refreshing, err := mappers.Statement("user.refreshing")
	require.NoError(t, err)
	require.True(t, refreshing.FlushCache())

	touch, err := mappers.Statement("user.touch")
	require.NoError(t, err)
	require.Equal(t, Update, touch.Action())

	_, err = mappers.Statement("user.missing")
	require.True(t, ErrNoStatement.Is(err))
}

func TestMappers_DuplicateStatement(t *testing.T) {
	mappers := NewMappers()
	doc := `
<mapper namespace="dup">
  <select id="one">SELECT 1</select>
  <select id="one">SELECT 2</select>
</mapper>`
	err := mappers.Parse(strings.NewReader(doc))
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate statement")
}

func TestMappers_IncludeResolvesFragments(t *testing.T) {
	mappers := NewMappers()
	require.NoError(t, mappers.Parse(strings.NewReader(userMapper)))

	stmt, err := mappers.Statement("user.byName")
	require.NoError(t, err)
	bound, err := stmt.BoundSQL(map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.Equal(t, "SELECT id, name FROM users WHERE name = ?", bound.SQL())
}

func TestMappers_StaticStatementsPrecompile(t *testing.T) {
	mappers := NewMappers()
	doc := `
<mapper namespace="m">
  <select id="static">SELECT * FROM t WHERE id = #{id}</select>
  <select id="dynamic">SELECT * FROM t <where><if test="id != null">id = #{id}</if></where></select>
</mapper>`
	require.NoError(t, mappers.Parse(strings.NewReader(doc)))

	static, err := mappers.Statement("m.static")
	require.NoError(t, err)
	require.IsType(t, &dynsql.RawSQLSource{}, static.source)

	dynamic, err := mappers.Statement("m.dynamic")
	require.NoError(t, err)
	require.IsType(t, &dynsql.DynamicSQLSource{}, dynamic.source)
}

func TestMappers_CallableStatementType(t *testing.T) {
	mappers := NewMappers()
	doc := `
<mapper namespace="proc">
  <select id="call" statementType="callable">CALL totals(#{year}, #{total,mode=OUT})</select>
</mapper>`
	require.NoError(t, mappers.Parse(strings.NewReader(doc)))

	stmt, err := mappers.Statement("proc.call")
	require.NoError(t, err)
	require.True(t, stmt.Callable())
	require.Equal(t, "callable", stmt.Attribute("statementType"))
}

func TestMappers_MultipleNamespaces(t *testing.T) {
	mappers := NewMappers()
	require.NoError(t, mappers.Parse(strings.NewReader(`<mapper namespace="a"><select id="x">SELECT 1</select></mapper>`)))
	require.NoError(t, mappers.Parse(strings.NewReader(`<mapper namespace="b"><select id="x">SELECT 2</select></mapper>`)))

	a, err := mappers.Statement("a.x")
	require.NoError(t, err)
	b, err := mappers.Statement("b.x")
	require.NoError(t, err)
	require.NotEqual(t, a.Name(), b.Name())
}

func TestMappers_RequiresNamespace(t *testing.T) {
	err := NewMappers().Parse(strings.NewReader(`<mapper><select id="x">SELECT 1</select></mapper>`))
	require.Error(t, err)
}
