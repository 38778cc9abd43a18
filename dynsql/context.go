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
	"strings"

	"github.com/go-batisdev/batis/eval"
)

// ParameterKey is the reserved binding name under which the root parameter
// object is published to the binding map.
const ParameterKey = "_parameter"

// shared is the composition state common to a context and all contexts
// nested from it: the binding map, the root parameter and the unique-number
// counter. Nested contexts capture their own SQL fragments but bind into the
// same map and draw from the same counter.
type shared struct {
	root     any
	bindings map[string]any
	param    eval.Parameter
	strict   bool
	uniq     int
}

// Context accumulates SQL fragments and bindings during a single
// composition. It is not safe for concurrent use; exactly one node tree
// composes on it at a time.
type Context struct {
	state     *shared
	fragments []string
}

// NewContext creates a composition context over the given root parameter.
// With strict set, unresolved names fail expression evaluation instead of
// resolving to null.
func NewContext(root any, strict bool) *Context {
	bindings := map[string]any{ParameterKey: root}
	return &Context{state: &shared{
		root:     root,
		bindings: bindings,
		param:    eval.NewParameter(root),
		strict:   strict,
	}}
}

// Nested returns a context that captures its own SQL but shares bindings and
// the unique-number counter with its parent. Trim-style wrappers use it to
// inspect a child's emission before deciding what to keep.
func (c *Context) Nested() *Context {
	return &Context{state: c.state}
}

// AppendSQL appends one SQL fragment. Fragments are joined by single spaces
// when the final SQL is read.
func (c *Context) AppendSQL(text string) {
	if text != "" {
		c.fragments = append(c.fragments, text)
	}
}

// Bind publishes a value into the binding map; the write is visible to every
// node applied afterwards, in this context or any context sharing its state.
func (c *Context) Bind(name string, value any) {
	c.state.bindings[name] = value
}

// Bindings returns the live binding map. Callers must copy before retaining.
func (c *Context) Bindings() map[string]any {
	return c.state.bindings
}

// UniqueNumber returns the next value of the monotone composition counter.
func (c *Context) UniqueNumber() int {
	n := c.state.uniq
	c.state.uniq++
	return n
}

// Parameter returns the name-resolution view nodes evaluate against:
// bindings first, then the root parameter object.
func (c *Context) Parameter() eval.Parameter {
	p := eval.ParamGroup{eval.NewParameter(c.state.bindings), c.state.param}
	if c.state.strict {
		return eval.Strict(p)
	}
	return p
}

// SQL returns the accumulated fragments joined by single spaces, with runs
// of whitespace inside fragments collapsed.
func (c *Context) SQL() string {
	if len(c.fragments) == 0 {
		return ""
	}
	joined := strings.Join(c.fragments, " ")
	return strings.Join(strings.Fields(joined), " ")
}

// snapshot copies the binding map, separating the reserved root slot from
// the additional parameters published during composition.
func (c *Context) snapshot() (bindings, additional map[string]any) {
	bindings = make(map[string]any, len(c.state.bindings))
	additional = make(map[string]any, len(c.state.bindings))
	for name, value := range c.state.bindings {
		bindings[name] = value
		if name != ParameterKey {
			additional[name] = value
		}
	}
	return bindings, additional
}
