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

	"github.com/go-batisdev/batis/eval"
)

var ErrNilExpression = errors.New("dynsql: nil test expression")

// IfNode applies its children iff the test expression is truthy.
//
// Example:
//
//	<if test="name != null">
//	    AND name = #{name}
//	</if>
type IfNode struct {
	test  eval.Expression
	Nodes MixedNode
}

// Parse compiles the test expression. Compilation goes through the
// process-wide expression cache.
func (n *IfNode) Parse(test string) (err error) {
	n.test, err = eval.Compile(test)
	return err
}

// Match evaluates the test expression against the context bindings.
// Truthiness follows eval.Truthy.
func (n *IfNode) Match(ctx *Context) (bool, error) {
	if n.test == nil {
		return false, ErrNilExpression
	}
	value, err := n.test.Execute(ctx.Parameter())
	if err != nil {
		return false, err
	}
	return eval.Truthy(value), nil
}

func (n *IfNode) Apply(ctx *Context) (bool, error) {
	matched, err := n.Match(ctx)
	if err != nil {
		return false, err
	}
	if !matched {
		return false, nil
	}
	return n.Nodes.Apply(ctx)
}

var _ Node = (*IfNode)(nil)

// WhenNode is a guarded branch inside a choose block; only the first truthy
// guard in the block applies.
type WhenNode = IfNode
