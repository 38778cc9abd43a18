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
	"errors"
	"reflect"
	"testing"
)

func evalBool(t *testing.T, src string, param any) bool {
	t.Helper()
	value, err := Eval(src, NewParameter(param))
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return Truthy(value)
}

func TestEval_Comparisons(t *testing.T) {
	param := H{
		"age":    18,
		"name":   "ada",
		"score":  3.5,
		"flag":   true,
		"empty":  "",
		"ids":    []int{1, 2},
		"none":   nil,
		"amount": int64(7),
	}

	tests := []struct {
		src      string
		expected bool
	}{
		{"age >= 18", true},
		{"age < 18", false},
		{"age == 18", true},
		{"age != 18", false},
		{"score > 3", true},
		{"amount == 7", true},
		{"name == 'ada'", true},
		{"name != 'ada'", false},
		{"name < 'b'", true},
		{"flag", true},
		{"flag == true", true},
		{"name != null", true},
		{"none != null", false},
		{"none == null", true},
		{"missing == null", true},
		{"missing != null", false},
		{"missing > 1", false},
		{"age > 10 and name != ''", true},
		{"age > 100 or name != ''", true},
		{"not (age > 100)", true},
		{"len(ids) > 1", true},
		{"len(missing) == 0", true},
		{"ids[1] == 2", true},
		{"empty == ''", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := evalBool(t, tt.src, param); got != tt.expected {
				t.Errorf("eval(%q) = %v, want %v", tt.src, got, tt.expected)
			}
		})
	}
}

func TestEval_MemberAccess(t *testing.T) {
	type address struct {
		City string
	}
	type user struct {
		Name    string
		Age     int
		Address *address
	}
	param := H{"user": &user{Name: "ada", Age: 30, Address: &address{City: "london"}}}

	if !evalBool(t, "user.Age == 30", param) {
		t.Error("struct field access failed")
	}
	if !evalBool(t, "user.Address.City == 'london'", param) {
		t.Error("nested pointer field access failed")
	}
	if !evalBool(t, "user.Missing == null", param) {
		t.Error("unknown members resolve to null")
	}
}

func TestEval_Truthiness(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{"TrueBool", true, true},
		{"FalseBool", false, false},
		{"NonZeroInt", 3, true},
		{"ZeroInt", 0, false},
		{"NonZeroFloat", 0.5, true},
		{"ZeroFloat", 0.0, false},
		{"NonEmptyString", "x", true},
		{"EmptyString", "", false},
		{"NonEmptySlice", []int{1}, true},
		{"EmptySlice", []int{}, false},
		{"NonEmptyMap", map[string]int{"a": 1}, true},
		{"EmptyMap", map[string]int{}, false},
		{"Struct", struct{ X int }{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truthy(reflect.ValueOf(tt.value)); got != tt.expected {
				t.Errorf("Truthy(%v) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
	if Truthy(reflect.Value{}) {
		t.Error("null must be falsey")
	}
}

func TestEval_Arithmetic(t *testing.T) {
	value, err := Eval("'%' + name + '%'", NewParameter(H{"name": "ada"}))
	if err != nil {
		t.Fatal(err)
	}
	if value.Interface() != "%ada%" {
		t.Errorf("concat = %v", value.Interface())
	}

	value, err = Eval("a * 2 + 1", NewParameter(H{"a": 3}))
	if err != nil {
		t.Fatal(err)
	}
	if value.Interface() != int64(7) {
		t.Errorf("arithmetic = %v (%T)", value.Interface(), value.Interface())
	}

	if _, err = Eval("1 / 0", NewParameter(nil)); err == nil {
		t.Error("expected a division-by-zero error")
	}
}

func TestCompile_Memoized(t *testing.T) {
	first, err := Compile("memoized > 1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Compile("memoized > 1")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("identical sources should share one compiled expression")
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile("a ==")
	var syntaxError *SyntaxError
	if !errors.As(err, &syntaxError) {
		t.Errorf("expected SyntaxError, got %v", err)
	}
}

func TestEval_StrictMode(t *testing.T) {
	param := NewParameter(H{"present": 1})
	if _, err := Eval("present == 1", Strict(param)); err != nil {
		t.Errorf("strict mode must not affect resolved names: %v", err)
	}
	_, err := Eval("missing == 1", Strict(param))
	if !errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected ErrNameNotFound, got %v", err)
	}
}

func TestParamGroup_FirstHitWins(t *testing.T) {
	group := ParamGroup{
		NewParameter(H{"a": 1}),
		NewParameter(H{"a": 2, "b": 3}),
	}
	if value, ok := group.Get("a"); !ok || value.Interface() != 1 {
		t.Errorf("group lookup = %v (%v)", value, ok)
	}
	if value, ok := group.Get("b"); !ok || value.Interface() != 3 {
		t.Errorf("fallback lookup = %v (%v)", value, ok)
	}
	if _, ok := group.Get("c"); ok {
		t.Error("unknown names must not resolve")
	}
}
