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
	"github.com/go-batisdev/batis/eval"
	"github.com/go-batisdev/batis/internal/reflectutil"
)

// BindNode evaluates an expression and publishes the result into the
// binding map under a given name; later nodes see the binding.
//
//	<bind name="pattern" value="'%' + name + '%'"/>
type BindNode struct {
	Name string
	expr eval.Expression
}

// Parse compiles the value expression.
func (b *BindNode) Parse(expression string) (err error) {
	b.expr, err = eval.Compile(expression)
	return err
}

func (b *BindNode) Apply(ctx *Context) (bool, error) {
	value, err := b.expr.Execute(ctx.Parameter())
	if err != nil {
		return false, err
	}
	unwrapped := reflectutil.Unwrap(value)
	if !unwrapped.IsValid() {
		ctx.Bind(b.Name, nil)
	} else {
		ctx.Bind(b.Name, unwrapped.Interface())
	}
	return true, nil
}

var _ Node = (*BindNode)(nil)
