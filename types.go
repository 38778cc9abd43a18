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

package batis

import (
	"database/sql/driver"
	"reflect"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/go-batisdev/batis/internal/reflectutil"
)

// reflectSetProperty assigns a value into an owner object's property; owners
// are struct pointers or string-keyed maps.
func reflectSetProperty(owner any, property string, value any) error {
	return reflectutil.SetProperty(owner, property, value)
}

// TypeConverter maps one application type onto a driver-compatible value.
type TypeConverter interface {
	Convert(src any) (any, error)
}

// TypeConverterFunc adapts a function to the TypeConverter interface.
type TypeConverterFunc func(src any) (any, error)

func (f TypeConverterFunc) Convert(src any) (any, error) { return f(src) }

// ConverterRegistry answers whether a converter exists for a type and maps
// values on the way into prepared statements. Unregistered types pass
// through untouched.
type ConverterRegistry struct {
	converters map[reflect.Type]TypeConverter
}

// NewConverterRegistry returns an empty registry.
func NewConverterRegistry() *ConverterRegistry {
	return &ConverterRegistry{converters: make(map[reflect.Type]TypeConverter)}
}

// Register installs a converter for values of t.
func (r *ConverterRegistry) Register(t reflect.Type, converter TypeConverter) {
	r.converters[t] = converter
}

// Has reports whether a converter exists for t.
func (r *ConverterRegistry) Has(t reflect.Type) bool {
	_, ok := r.converters[t]
	return ok
}

// Convert maps value for binding. database/sql native kinds and
// driver.Valuers pass through.
func (r *ConverterRegistry) Convert(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if converter, ok := r.converters[reflect.TypeOf(value)]; ok {
		return converter.Convert(value)
	}
	if _, ok := value.(driver.Valuer); ok {
		return value, nil
	}
	return value, nil
}

// DefaultConverters returns the registry sessions start from: UUIDs bind as
// their canonical string form, time.Time passes through.
func DefaultConverters() *ConverterRegistry {
	registry := NewConverterRegistry()
	registry.Register(reflect.TypeOf(uuid.UUID{}), TypeConverterFunc(func(src any) (any, error) {
		return src.(uuid.UUID).String(), nil
	}))
	registry.Register(reflect.TypeOf(time.Time{}), TypeConverterFunc(func(src any) (any, error) {
		return src, nil
	}))
	return registry
}

// ObjectFactory constructs result objects and their intermediate
// containers.
type ObjectFactory interface {
	// CreateRow returns the container one result row is scanned into.
	CreateRow() map[string]any
	// CreateList returns the container result rows accumulate into.
	CreateList(capacity int) []any
}

type defaultObjectFactory struct{}

func (defaultObjectFactory) CreateRow() map[string]any     { return make(map[string]any) }
func (defaultObjectFactory) CreateList(capacity int) []any { return make([]any, 0, capacity) }
