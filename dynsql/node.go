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

// Package dynsql composes dynamic SQL: a tree of nodes that, applied to a
// composition context with runtime bindings, produces final SQL text plus an
// ordered list of parameter descriptors.
package dynsql

import "regexp"

var (
	// paramRegex matches parameter placeholders using #{...} syntax. The
	// token body is a property path optionally followed by comma-separated
	// descriptor options:
	//   - #{id}
	//   - #{user.name}
	//   - #{code,mode=OUT,jdbcType=VARCHAR}
	paramRegex = regexp.MustCompile(`#\{\s*([\w.]+(?:\s*,[^{}]*)?)\s*}`)

	// spliceRegex matches string interpolation placeholders using ${...}
	// syntax. These are replaced directly in the SQL text.
	// WARNING: splices are textual and SQL-injection-prone; they exist for
	// identifiers and structural fragments under caller control.
	spliceRegex = regexp.MustCompile(`\$\{\s*(\w+(?:\.\w+)*)\s*}`)
)

// Node is one composable piece of dynamic SQL. Apply contributes the node's
// fragment (if any) to the context and reports whether this branch
// contributed, for use by conditional wrappers.
type Node interface {
	Apply(ctx *Context) (bool, error)
}

// MixedNode applies a sequence of nodes in order and reports whether any of
// them contributed.
type MixedNode []Node

func (m MixedNode) Apply(ctx *Context) (bool, error) {
	var contributed bool
	for _, node := range m {
		applied, err := node.Apply(ctx)
		if err != nil {
			return false, err
		}
		contributed = contributed || applied
	}
	return contributed, nil
}

var _ Node = (MixedNode)(nil)
