// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package idl

import (
	"math"
	"testing"

	"github.com/keel-rpc/keel/lib/wire"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"unset", Value{}, Value{}, true},
		{"unset against zero", Value{}, I32(0), false},
		{"integer widths differ", I32(1), I64(1), false},
		{"string and binary share a wire type", String("ab"), Binary([]byte("ab")), true},
		{"NaN bit patterns", Double(math.NaN()), Double(math.NaN()), true},
		{"list order matters", List(I8(1), I8(2)), List(I8(2), I8(1)), false},
		{"set order does not", Set(I8(1), I8(2)), Set(I8(2), I8(1)), true},
		{"set multiplicity", Set(I8(1), I8(1)), Set(I8(1), I8(2)), false},
		{
			"map order does not",
			Map(Pair{Key: String("a"), Value: I8(1)}, Pair{Key: String("b"), Value: I8(2)}),
			Map(Pair{Key: String("b"), Value: I8(2)}, Pair{Key: String("a"), Value: I8(1)}),
			true,
		},
		{
			"map values compared",
			Map(Pair{Key: String("a"), Value: I8(1)}),
			Map(Pair{Key: String("a"), Value: I8(2)}),
			false,
		},
		{"structs by field", point(1, 2), point(1, 2), true},
		{"structs differ", point(1, 2), point(2, 1), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.a.Equal(test.b); got != test.equal {
				t.Errorf("%v.Equal(%v) = %v, want %v", test.a, test.b, got, test.equal)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{Value{}, "<unset>"},
		{Bool(true), "true"},
		{I8(-5), "-5"},
		{I64(math.MinInt64), "-9223372036854775808"},
		{Double(0.5), "0.5"},
		{String("raw text"), "raw text"},
		{List(String("a"), I16(2)), `["a", 2]`},
		{Set(I32(7)), "{7}"},
		{Map(Pair{Key: String("k"), Value: List()}), `{"k": []}`},
		{point(3, 4), "Point(x=3, y=4)"},
		{StructValue(NewRecord(pointDescriptor).Set("y", I32(1))), "Point(y=1)"},
	}
	for _, test := range tests {
		if got := test.value.String(); got != test.want {
			t.Errorf("String() = %q, want %q", got, test.want)
		}
	}
}

func TestValueAccessorPanicsOnWrongType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("I32() on a string value did not panic")
		}
	}()
	String("x").I32()
}

func TestValueLen(t *testing.T) {
	if got := List(I8(1), I8(2)).Len(); got != 2 {
		t.Errorf("list Len = %d", got)
	}
	if got := Map(Pair{Key: I8(1), Value: I8(1)}).Len(); got != 1 {
		t.Errorf("map Len = %d", got)
	}
	if got := String("héllo").Len(); got != 6 {
		t.Errorf("string Len = %d, want byte length 6", got)
	}
	if got := I64(100).Len(); got != 0 {
		t.Errorf("i64 Len = %d", got)
	}
}

func TestRecordSetField(t *testing.T) {
	record := NewRecord(pointDescriptor)
	if err := record.SetField(1, String("one")); err == nil {
		t.Error("SetField accepted a string for an i32 field")
	}
	if err := record.SetField(9, I32(1)); err == nil {
		t.Error("SetField accepted an undeclared id")
	}
	if err := record.SetField(1, I32(5)); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if value, ok := record.Field(1); !ok || value.I32() != 5 {
		t.Errorf("Field(1) = %v, %v", value, ok)
	}
	record.Unset(1)
	if _, ok := record.Field(1); ok {
		t.Error("field still set after Unset")
	}
	if record.Get("nope").IsSet() {
		t.Error("Get of an undeclared name returned a value")
	}
	if got := record.Get("x").Type(); got != wire.Stop {
		t.Errorf("Get(x) after Unset has type %s", got)
	}
}

func TestIssetState(t *testing.T) {
	var state IssetState
	if state.Has(0) || state.Count() != 0 {
		t.Fatal("zero IssetState reports assigned fields")
	}
	for _, index := range []int{0, 5, 63, 64, 130} {
		state.Set(index)
	}
	for _, index := range []int{0, 5, 63, 64, 130} {
		if !state.Has(index) {
			t.Errorf("Has(%d) = false after Set", index)
		}
	}
	if state.Has(1) || state.Has(200) {
		t.Error("Has reported a field that was never set")
	}
	if state.Count() != 5 {
		t.Errorf("Count = %d, want 5", state.Count())
	}
	state.Clear(64)
	state.Clear(500)
	if state.Has(64) || state.Count() != 4 {
		t.Errorf("after Clear(64): Has = %v, Count = %d", state.Has(64), state.Count())
	}
	state.Reset()
	if state.Count() != 0 || state.Has(130) {
		t.Error("Reset left flags behind")
	}
}
