package helper

import (
	"strings"
	"testing"
)

type testInner struct {
	Code string `errorTxt:"inner code" mandatory:"yes"`
}

type testOuter struct {
	Name    string               `errorTxt:"name" mandatory:"yes"`
	Count   int                  `errorTxt:"count"`
	Inner   testInner            `errorTxt:"inner"`
	PtrIn   *testInner           `errorTxt:"pointer inner"`
	Items   []testInner          `errorTxt:"items" mandatory:"yes"`
	ByName  map[string]testInner `errorTxt:"by name"`
	private string
}

func TestValidateStructIsPopulated(t *testing.T) {
	// Test 1, everything missing.
	err := ValidateStructIsPopulated(&testOuter{})
	if err == nil {
		t.Fatal("expected error for missing values")
	}
	for _, s := range []string{"name", "inner code", "items"} {
		if !strings.Contains(err.Error(), s) {
			t.Fatalf("expected error to mention %q; got %v", s, err)
		}
	}
	// Test 2, nested values are descended into.
	o := testOuter{
		Name:   "x",
		Inner:  testInner{Code: "c"},
		PtrIn:  &testInner{},
		Items:  []testInner{{Code: "a"}},
		ByName: map[string]testInner{"k": {}},
	}
	got := MissingFields(o)
	if len(got) != 2 {
		t.Fatalf("expected 2 missing inner codes; got %v", got)
	}
	// Test 3, fully populated.
	o.PtrIn.Code = "p"
	o.ByName["k"] = testInner{Code: "k"}
	if err := ValidateStructIsPopulated(o); err != nil {
		t.Fatal(err)
	}
}

func TestAtomBool(t *testing.T) {
	var b AtomBool
	if b.Get() {
		t.Fatal("expected false by default")
	}
	if !b.SetIfFalse() {
		t.Fatal("expected first SetIfFalse to succeed")
	}
	if b.SetIfFalse() {
		t.Fatal("expected second SetIfFalse to fail")
	}
	b.Set(false)
	if b.Get() {
		t.Fatal("expected false after Set(false)")
	}
}
