package script

import (
	"testing"
)

func TestJsonLogicEvaluate(t *testing.T) {
	e, err := Get("")
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		rule string
		data map[string]interface{}
		want bool
	}{
		{`{"==": [{"var": "REGION"}, "EU"]}`, map[string]interface{}{"REGION": "EU"}, true},
		{`{"==": [{"var": "REGION"}, "EU"]}`, map[string]interface{}{"REGION": "US"}, false},
		{`{">": [{"var": "N"}, 3]}`, map[string]interface{}{"N": 5}, true},
		{`{"var": "MISSING"}`, nil, false},
	}
	for _, c := range cases {
		got, err := EvaluateBool(e, c.rule, c.data)
		if err != nil {
			t.Fatalf("rule %v: %v", c.rule, err)
		}
		if got != c.want {
			t.Fatalf("rule %v with %v: expected %v, got %v", c.rule, c.data, c.want, got)
		}
	}
}

func TestJsonLogicReturnsValues(t *testing.T) {
	e := JsonLogic{}
	v, err := e.Evaluate(`{"if": [{"<": [{"var": "i"}, 2]}, {"var": "i"}, "NO_MORE_ITERATIONS"]}`, map[string]interface{}{"i": 1})
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(1) {
		t.Fatalf("expected 1, got %v (%T)", v, v)
	}
	v, err = e.Evaluate(`{"if": [{"<": [{"var": "i"}, 2]}, {"var": "i"}, "NO_MORE_ITERATIONS"]}`, map[string]interface{}{"i": 2})
	if err != nil {
		t.Fatal(err)
	}
	if v != "NO_MORE_ITERATIONS" {
		t.Fatalf("expected sentinel, got %v", v)
	}
}

func TestValidate(t *testing.T) {
	e := JsonLogic{}
	if err := e.Validate(`{"==": [1, 1]}`); err != nil {
		t.Fatal(err)
	}
	if err := e.Validate(`not json`); err == nil {
		t.Fatal("expected an error for an invalid rule")
	}
	if _, err := Get("lua"); err == nil {
		t.Fatal("expected an error for an unknown language")
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []interface{}{nil, false, float64(0), "", []interface{}{}} {
		if IsTruthy(v) {
			t.Fatalf("expected %v to be false", v)
		}
	}
	for _, v := range []interface{}{true, float64(2), "x", []interface{}{1}, map[string]interface{}{}} {
		if !IsTruthy(v) {
			t.Fatalf("expected %v to be true", v)
		}
	}
}
