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

// Package cache holds the session-local result cache and the value-equality
// keys that identify query invocations.
package cache

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"strconv"

	"github.com/mitchellh/hashstructure"
)

// nullComponent is the reserved marker absorbed for nil values, distinct
// from the absence of a component.
type nullComponent struct{}

// NullMarker is absorbed in place of nil component values.
var NullMarker = nullComponent{}

const hashMultiplier = 37

// Key identifies a query invocation: an ordered tuple of absorbed
// components compared by value. The hash is order-sensitive; equality is
// component-wise. Byte slices and other collections absorb element-wise
// through structure hashing.
type Key struct {
	hash       uint64
	components []any
}

// NewKey returns a key absorbing the given components in order.
func NewKey(components ...any) *Key {
	k := &Key{}
	k.UpdateAll(components...)
	return k
}

// Update absorbs one component: the running hash advances and the component
// joins the ordered list used for equality.
func (k *Key) Update(component any) {
	component = normalizeComponent(component)
	k.hash = k.hash*hashMultiplier + hashComponent(component)
	k.components = append(k.components, component)
}

// UpdateAll absorbs components in order.
func (k *Key) UpdateAll(components ...any) {
	for _, component := range components {
		k.Update(component)
	}
}

// Count returns the number of absorbed components.
func (k *Key) Count() int { return len(k.components) }

// Hash returns the running order-sensitive hash.
func (k *Key) Hash() uint64 { return k.hash }

// Equals reports component-wise value equality.
func (k *Key) Equals(other *Key) bool {
	if k == other {
		return true
	}
	if other == nil || k.hash != other.hash || len(k.components) != len(other.components) {
		return false
	}
	for i := range k.components {
		if !reflect.DeepEqual(k.components[i], other.components[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy; further updates do not alias.
func (k *Key) Clone() *Key {
	components := make([]any, len(k.components))
	copy(components, k.components)
	return &Key{hash: k.hash, components: components}
}

func (k *Key) String() string {
	return strconv.FormatUint(k.hash, 16) + ":" + strconv.Itoa(len(k.components))
}

func normalizeComponent(component any) any {
	if component == nil {
		return NullMarker
	}
	v := reflect.ValueOf(component)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		if v.IsNil() {
			return NullMarker
		}
	}
	return component
}

func hashComponent(component any) uint64 {
	if component == (NullMarker) {
		return 0x9e3779b97f4a7c15
	}
	h, err := hashstructure.Hash(component, nil)
	if err != nil {
		// unhashable shapes fall back to their printed form
		f := fnv.New64a()
		_, _ = fmt.Fprintf(f, "%v", component)
		return f.Sum64()
	}
	return h
}
