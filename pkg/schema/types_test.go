package schema

import (
	"errors"
	"testing"
	"time"
)

func TestScalarTypes(t *testing.T) {
	tests := []struct {
		typ     Type
		value   any
		wantErr bool
	}{
		{String(), "hello", false},
		{String(), "", false},
		{String(), 42, true},
		{Int(), 42, false},
		{Int(), int64(42), false},
		{Int(), float64(42), false}, // whole number
		{Int(), 42.5, true},
		{Int(), "42", true},
		{Float(), 3.14, false},
		{Float(), 42, false},
		{Float(), "3.14", true},
		{Bool(), true, false},
		{Bool(), "true", true},
		{Duration(), 2 * time.Second, false},
		{Duration(), "2s", true},
		{Any(), struct{}{}, false},
	}

	for _, tt := range tests {
		err := tt.typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Validate(%v) error = %v, wantErr %v", tt.typ.Name(), tt.value, err, tt.wantErr)
		}
	}
}

func TestCheck_Nullability(t *testing.T) {
	tests := []struct {
		typ     Type
		wantErr bool
	}{
		{Any(), false},
		{String(), false},
		{Slice(Int()), false},
		{Int(), true},
		{Float(), true},
		{Bool(), true},
		{Duration(), true},
	}

	for _, tt := range tests {
		err := Check(tt.typ, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("Check(%s, nil) error = %v, wantErr %v", tt.typ.Name(), err, tt.wantErr)
		}
	}
}

func TestSliceType(t *testing.T) {
	stringSlice := Slice(String())
	intSlice := Slice(Int())
	nested := Slice(Slice(String()))

	tests := []struct {
		typ     Type
		value   any
		wantErr bool
		desc    string
	}{
		{stringSlice, []string{"a", "b"}, false, "string slice"},
		{stringSlice, []string{}, false, "empty string slice"},
		{stringSlice, []any{"a", nil}, false, "any slice with strings and nil"},
		{stringSlice, []int{1, 2}, true, "slice of ints when expecting strings"},
		{stringSlice, "not a slice", true, "string instead of slice"},
		{intSlice, []any{1, 2, 3}, false, "any slice with ints"},
		{intSlice, []any{1, "2", 3}, true, "mixed slice"},
		{intSlice, []any{1, nil}, true, "nil int element"},
		{nested, [][]string{{"a"}, {"b", "c"}}, false, "nested string slice"},
	}

	for _, tt := range tests {
		err := Check(tt.typ, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Check(%v) error = %v, wantErr %v", tt.desc, tt.value, err, tt.wantErr)
		}
	}
}

func TestCustomType(t *testing.T) {
	even := Custom("even", func(v any) error {
		i, ok := v.(int)
		if !ok || i%2 != 0 {
			return errors.New("not an even int")
		}
		return nil
	})

	if even.Name() != "even" {
		t.Errorf("Name() = %q, want %q", even.Name(), "even")
	}
	if err := Check(even, 4); err != nil {
		t.Errorf("Check(4) error = %v", err)
	}
	if err := Check(even, 3); err == nil {
		t.Error("Check(3) should fail")
	}
	if err := Check(even, nil); err == nil {
		t.Error("custom types are not nullable by default")
	}

	optional := CustomNullable("optional-even", even.Validate)
	if err := Check(optional, nil); err != nil {
		t.Errorf("nullable custom type rejected nil: %v", err)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		input    string
		wantErr  bool
		wantName string
	}{
		{"", false, "any"},
		{"any", false, "any"},
		{"string", false, "string"},
		{" int ", false, "int"},
		{"float", false, "float"},
		{"bool", false, "bool"},
		{"duration", false, "duration"},
		{"[string]", false, "[string]"},
		{"[[int]]", false, "[[int]]"},
		{"invalid", true, ""},
		{"[invalid]", true, ""},
	}

	for _, tt := range tests {
		typ, err := ParseType(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && typ.Name() != tt.wantName {
			t.Errorf("ParseType(%q) Name() = %q, want %q", tt.input, typ.Name(), tt.wantName)
		}
	}
}

func TestAggregateError(t *testing.T) {
	first := &ValidationError{Key: "root.id", Reason: "required"}
	second := &ValidationError{Key: "root.kind", Reason: "unknown kind", Value: "suite"}

	if Join(nil) != nil {
		t.Error("Join(nil) should be nil")
	}

	err := Join([]error{first, second})
	if got := len(ValidationErrors(err)); got != 2 {
		t.Fatalf("ValidationErrors() len = %d, want 2", got)
	}
	if !errors.Is(err, second) {
		t.Error("aggregate should unwrap to its members")
	}
	want := "2 validation errors:\n  1. field \"root.id\": required\n  2. field \"root.kind\": unknown kind (got string)\n"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
