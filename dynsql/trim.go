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

import "strings"

// TrimNode wraps a child group and rewrites its boundaries: leading
// whitespace is stripped, the first matching prefix/suffix override is
// removed (case-insensitively), and the configured prefix/suffix are added
// around a non-empty body. A body that is empty or whitespace-only produces
// no output at all.
//
//	<trim prefix="WHERE" prefixOverrides="AND |OR ">
//	  <if test="id != null">AND id = #{id}</if>
//	</trim>
type TrimNode struct {
	Nodes           MixedNode
	Prefix          string
	PrefixOverrides []string
	Suffix          string
	SuffixOverrides []string
}

func (t *TrimNode) Apply(ctx *Context) (bool, error) {
	nested := ctx.Nested()
	if _, err := t.Nodes.Apply(nested); err != nil {
		return false, err
	}

	body := strings.TrimSpace(nested.SQL())
	if body == "" {
		return false, nil
	}

	// the first configured override that matches wins
	upper := strings.ToUpper(body)
	for _, prefix := range t.PrefixOverrides {
		if strings.HasPrefix(upper, strings.ToUpper(prefix)) {
			body = strings.TrimLeft(body[len(prefix):], " \t\r\n")
			break
		}
	}
	upper = strings.ToUpper(body)
	for _, suffix := range t.SuffixOverrides {
		if strings.HasSuffix(upper, strings.ToUpper(suffix)) {
			body = strings.TrimRight(body[:len(body)-len(suffix)], " \t\r\n")
			break
		}
	}
	if body == "" {
		return false, nil
	}

	builder := getStringBuilder()
	defer putStringBuilder(builder)
	builder.Grow(len(t.Prefix) + len(body) + len(t.Suffix) + 2)

	if t.Prefix != "" {
		builder.WriteString(t.Prefix)
		builder.WriteString(" ")
	}
	builder.WriteString(body)
	if t.Suffix != "" {
		builder.WriteString(" ")
		builder.WriteString(t.Suffix)
	}

	ctx.AppendSQL(builder.String())
	return true, nil
}

var _ Node = (*TrimNode)(nil)
