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
	"regexp"
	"strconv"

	"github.com/go-batisdev/batis/eval"
	"github.com/go-batisdev/batis/internal/reflectutil"
)

// itemPrefix is the stem of the uniquified binding names foreach publishes
// for each iteration, so repeated iterations yield distinct parameter
// descriptors.
const itemPrefix = "__frch_"

// ForeachNode iterates a collection from the bindings, applying its children
// once per element joined with Separator and wrapped in Open/Close. Each
// iteration binds Item (the element) and Index (the ordinal for sequences,
// the key for mappings), and re-targets #{Item...} tokens at a uniquified
// binding name of the form __frch_<item>_<n>.
//
//	WHERE id IN
//	<foreach collection="ids" item="x" open="(" close=")" separator=",">
//	  #{x}
//	</foreach>
type ForeachNode struct {
	Collection string
	Nodes      MixedNode
	Item       string
	Index      string
	Open       string
	Close      string
	Separator  string
}

func (f *ForeachNode) Apply(ctx *Context) (bool, error) {
	expression, err := eval.Compile(f.Collection)
	if err != nil {
		return false, err
	}
	value, err := expression.Execute(ctx.Parameter())
	if err != nil {
		return false, err
	}
	value = reflectutil.Unwrap(value)
	if !value.IsValid() {
		return false, fmt.Errorf("dynsql: foreach collection %q is null", f.Collection)
	}

	switch value.Kind() {
	case reflect.Slice, reflect.Array:
		return f.applySlice(ctx, value, f.tokenPatterns())
	case reflect.Map:
		return f.applyMap(ctx, value, f.tokenPatterns())
	default:
		return false, fmt.Errorf("dynsql: foreach collection %q is not a sequence or mapping", f.Collection)
	}
}

// tokenPatterns compiles the #{item...}/#{index...} matchers once per
// composition.
func (f *ForeachNode) tokenPatterns() *foreachPatterns {
	patterns := &foreachPatterns{
		item: regexp.MustCompile(`#\{\s*` + regexp.QuoteMeta(f.Item) + `\b`),
	}
	if f.Index != "" {
		patterns.index = regexp.MustCompile(`#\{\s*` + regexp.QuoteMeta(f.Index) + `\b`)
	}
	return patterns
}

type foreachPatterns struct {
	item  *regexp.Regexp
	index *regexp.Regexp
}

func (f *ForeachNode) applySlice(ctx *Context, value reflect.Value, patterns *foreachPatterns) (bool, error) {
	length := value.Len()
	if length == 0 {
		return false, nil
	}
	if f.Open != "" {
		ctx.AppendSQL(f.Open)
	}
	for i := 0; i < length; i++ {
		if i > 0 && f.Separator != "" {
			ctx.AppendSQL(f.Separator)
		}
		if err := f.applyElement(ctx, value.Index(i).Interface(), i, patterns); err != nil {
			return false, err
		}
	}
	if f.Close != "" {
		ctx.AppendSQL(f.Close)
	}
	return true, nil
}

func (f *ForeachNode) applyMap(ctx *Context, value reflect.Value, patterns *foreachPatterns) (bool, error) {
	keys := value.MapKeys()
	if len(keys) == 0 {
		return false, nil
	}
	if f.Open != "" {
		ctx.AppendSQL(f.Open)
	}
	for i, key := range keys {
		if i > 0 && f.Separator != "" {
			ctx.AppendSQL(f.Separator)
		}
		if err := f.applyElement(ctx, value.MapIndex(key).Interface(), key.Interface(), patterns); err != nil {
			return false, err
		}
	}
	if f.Close != "" {
		ctx.AppendSQL(f.Close)
	}
	return true, nil
}

// applyElement runs one iteration: binds the plain and uniquified names,
// applies the children into a capturing context, rewrites #{item...} tokens
// to the uniquified names, and appends the resulting fragment. Splice
// tokens were already resolved when the children applied.
func (f *ForeachNode) applyElement(ctx *Context, item any, index any, patterns *foreachPatterns) error {
	n := ctx.UniqueNumber()

	itemKey := itemPrefix + f.Item + "_" + strconv.Itoa(n)
	ctx.Bind(f.Item, item)
	ctx.Bind(itemKey, item)

	var indexKey string
	if f.Index != "" {
		indexKey = itemPrefix + f.Index + "_" + strconv.Itoa(n)
		ctx.Bind(f.Index, index)
		ctx.Bind(indexKey, index)
	}

	nested := ctx.Nested()
	if _, err := f.Nodes.Apply(nested); err != nil {
		return err
	}

	fragment := nested.SQL()
	if fragment == "" {
		return nil
	}
	fragment = patterns.item.ReplaceAllString(fragment, "#{"+itemKey)
	if patterns.index != nil {
		fragment = patterns.index.ReplaceAllString(fragment, "#{"+indexKey)
	}
	ctx.AppendSQL(fragment)
	return nil
}

var _ Node = (*ForeachNode)(nil)
