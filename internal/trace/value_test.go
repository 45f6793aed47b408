package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"same number", "5", "5", true},
		{"different number", "5", "6", false},
		{"same string", `"hi"`, `"hi"`, true},
		{"string vs number", `"5"`, "5", false},
		{"object key order", `{"a": 1, "b": 2}`, `{"b": 2, "a": 1}`, true},
		{"nested lists", `[1, [2, 3]]`, `[1,[2,3]]`, true},
		{"different lists", `[1, 2]`, `[2, 1]`, false},
		{"null vs null", "null", "null", true},
		{"bool flip", "true", "false", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, NewValue(tt.a).Equal(NewValue(tt.b)))
		})
	}
}

func TestValueDisplay(t *testing.T) {
	assert.Equal(t, "hello", NewValue(`"hello"`).Display())
	assert.Equal(t, "42", NewValue("42").Display())
	assert.Equal(t, `[1,2]`, NewValue(`[1,2]`).Display())
	assert.Equal(t, "null", Value{}.Display())
}

func TestValueIsCallable(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		callable bool
	}{
		{"function", `"<function greet at 0x7f3a2c>"`, true},
		{"builtin", `"<built-in function print>"`, true},
		{"bound method", `"<bound method Dog.bark of <Dog object>>"`, true},
		{"class", `"<class 'Dog'>"`, true},
		{"module", `"<module 'math' (built-in)>"`, true},
		{"plain string", `"hello"`, false},
		{"angle bracket data", `"<html>"`, false},
		{"number", "5", false},
		{"list", `["<function f at 0x0>"]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.callable, NewValue(tt.raw).IsCallable())
		})
	}
}
