package helper

import (
	"testing"
	"time"
)

func TestGetStringFromInterface(t *testing.T) {
	cases := []struct {
		in       interface{}
		expected string
	}{
		{in: 12, expected: "12"},
		{in: 1.50, expected: "1.5"},
		{in: "abc", expected: "abc"},
		{in: []byte("xyz"), expected: "xyz"},
		{in: nil, expected: ""},
		{in: true, expected: "true"},
		{in: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), expected: "20200102T030405+0000"},
	}
	for _, c := range cases {
		if got := GetStringFromInterface(c.in, true); got != c.expected {
			t.Fatalf("expected %q for %v; got %q", c.expected, c.in, got)
		}
	}
}

func TestReplaceTextVariables(t *testing.T) {
	vars := map[string]string{"schema": "dw", "day": "20200101"}
	lookup := func(n string) (string, bool) {
		v, ok := vars[n]
		return v, ok
	}
	got := ReplaceTextVariables("select * from ${schema}.t where d = '${day}' and x = ${missing}", lookup)
	expected := "select * from dw.t where d = '20200101' and x = ${missing}"
	if got != expected {
		t.Fatalf("expected %q; got %q", expected, got)
	}
}

func TestGenerateStringOfColsEqualsCols(t *testing.T) {
	got := GenerateStringOfColsEqualsCols([]string{"a", "b"}, "S", "T", " and ")
	if got != "S.a = T.a and S.b = T.b" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestGetTrueFalseStringAsBool(t *testing.T) {
	if !GetTrueFalseStringAsBool(" TRUE ") || !GetTrueFalseStringAsBool("y") || GetTrueFalseStringAsBool("nope") {
		t.Fatal("unexpected boolean conversion")
	}
}

func TestSanitiseName(t *testing.T) {
	if got := SanitiseName("dw.sales-2020 x"); got != "dw_sales_2020_x" {
		t.Fatalf("unexpected %q", got)
	}
}
