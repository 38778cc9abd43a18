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

package eval

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-batisdev/batis/internal/reflectutil"
)

// Param is the root parameter object a statement is executed with.
type Param = any

// H is a shorthand for binding maps.
type H map[string]any

// Parameter resolves names against runtime bindings.
// Names may be dotted paths; each segment is resolved against the value the
// previous segment produced.
type Parameter interface {
	// Get returns the value bound to name. The second result reports whether
	// the name resolved; unresolved names are not an error at this level.
	Get(name string) (reflect.Value, bool)
}

// NoOpParameter resolves nothing.
type NoOpParameter struct{}

func (NoOpParameter) Get(_ string) (reflect.Value, bool) { return reflect.Value{}, false }

var _ Parameter = (ParamGroup)(nil)

// ParamGroup tries each parameter in order and returns the first hit.
type ParamGroup []Parameter

func (g ParamGroup) Get(name string) (reflect.Value, bool) {
	for _, p := range g {
		if p == nil {
			continue
		}
		if value, ok := p.Get(name); ok {
			return value, ok
		}
	}
	return reflect.Value{}, false
}

// genericParameter adapts an arbitrary Go value (map, struct, slice, or any
// combination reachable through dotted paths) to the Parameter interface.
type genericParameter struct {
	value reflect.Value
}

// NewParameter wraps v for name resolution. A nil v resolves nothing.
func NewParameter(v Param) Parameter {
	if v == nil {
		return NoOpParameter{}
	}
	if p, ok := v.(Parameter); ok {
		return p
	}
	return &genericParameter{value: reflect.ValueOf(v)}
}

func (g *genericParameter) Get(name string) (reflect.Value, bool) {
	value := g.value
	for _, segment := range strings.Split(name, ".") {
		var ok bool
		value, ok = Access(value, segment)
		if !ok {
			return reflect.Value{}, false
		}
	}
	return value, true
}

// Access resolves one path segment against v: map key, struct field (exported
// name or "param" tag), or numeric slice index.
func Access(v reflect.Value, segment string) (reflect.Value, bool) {
	v = reflectutil.Unwrap(v)
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		value := v.MapIndex(reflect.ValueOf(segment))
		return value, value.IsValid()
	case reflect.Struct:
		return reflectutil.FieldByName(v, segment)
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= v.Len() {
			return reflect.Value{}, false
		}
		return v.Index(index), true
	default:
		return reflect.Value{}, false
	}
}

// strictParameter marks a parameter chain as strict: unresolved names become
// evaluation errors instead of nulls.
type strictParameter struct{ Parameter }

// Strict wraps p so that unknown names fail evaluation.
func Strict(p Parameter) Parameter { return strictParameter{p} }

func isStrict(p Parameter) bool {
	_, ok := p.(strictParameter)
	return ok
}
