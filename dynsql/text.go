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
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/go-batisdev/batis/internal/reflectutil"
)

// StaticTextNode emits its literal fragment. Any #{...} tokens it carries
// are normalized into placeholders by the bound-SQL build pass, not here.
type StaticTextNode string

func (s StaticTextNode) Apply(ctx *Context) (bool, error) {
	if strings.TrimSpace(string(s)) == "" {
		return false, nil
	}
	ctx.AppendSQL(string(s))
	return true, nil
}

var _ Node = (StaticTextNode)("")

// TextNode is text containing ${...} splice tokens, resolved against the
// bindings at composition time and substituted directly into the SQL.
type TextNode struct {
	value  string
	tokens []spliceToken
}

type spliceToken struct {
	match string
	name  string
	index int
}

func (t *TextNode) Apply(ctx *Context) (bool, error) {
	builder := getStringBuilder()
	defer putStringBuilder(builder)

	p := ctx.Parameter()
	lastIndex := 0
	for _, token := range t.tokens {
		builder.WriteString(t.value[lastIndex:token.index])
		value, exists := p.Get(token.name)
		if !exists {
			return false, fmt.Errorf("dynsql: splice variable %q not found", token.name)
		}
		spliced, err := renderSplice(value)
		if err != nil {
			return false, err
		}
		builder.WriteString(spliced)
		lastIndex = token.index + len(token.match)
	}
	builder.WriteString(t.value[lastIndex:])

	text := builder.String()
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	ctx.AppendSQL(text)
	return true, nil
}

// renderSplice renders a spliced value as text. Parameter-token openers in
// the result are masked so the bound-SQL build pass does not re-scan spliced
// content: splices are a single pass.
func renderSplice(v reflect.Value) (string, error) {
	v = reflectutil.Unwrap(v)
	if !v.IsValid() {
		return "", fmt.Errorf("dynsql: cannot splice a null value")
	}
	text, err := cast.ToStringE(v.Interface())
	if err != nil {
		return "", fmt.Errorf("dynsql: cannot splice %s: %w", v.Type(), err)
	}
	return maskParamTokens(text), nil
}

// NewTextNode creates a text node for the given fragment. Fragments without
// ${...} tokens get the lightweight static form.
func NewTextNode(str string) Node {
	matches := spliceRegex.FindAllStringSubmatchIndex(str, -1)
	if len(matches) == 0 {
		return StaticTextNode(str)
	}
	tokens := make([]spliceToken, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, spliceToken{
			match: str[m[0]:m[1]],
			name:  str[m[2]:m[3]],
			index: m[0],
		})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].index < tokens[j].index })
	return &TextNode{value: str, tokens: tokens}
}

var _ Node = (*TextNode)(nil)
