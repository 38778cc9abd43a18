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

import "sync"

// expressions memoizes compiled expressions keyed by source text. The cache
// is process-wide and unbounded: expressions come from a fixed set of mapper
// definitions. Duplicate insertions of the same source are harmless.
var expressions sync.Map // string -> Expression

// Compile returns the compiled form of src, reusing a previous compilation
// of the same source when one exists. Safe for concurrent use.
func Compile(src string) (Expression, error) {
	if cached, ok := expressions.Load(src); ok {
		return cached.(Expression), nil
	}
	expression, err := compile(src)
	if err != nil {
		return nil, err
	}
	actual, _ := expressions.LoadOrStore(src, expression)
	return actual.(Expression), nil
}
