package helper

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidateStructIsPopulated will check if any mandatory fields in cfg are missing.
// It uses struct tags to determine which fields are mandatory and the error text to fetch.
// The error text returned is just a list of the struct tags with key "errorTxt".
func ValidateStructIsPopulated(cfg interface{}) (err error) {
	errs := MissingFields(cfg)
	if len(errs) > 0 {
		err = fmt.Errorf("please supply values for %v", strings.Join(errs, ", "))
	}
	return
}

// MissingFields returns the errorTxt tag values of every mandatory field in i that is unset.
func MissingFields(i interface{}) []string {
	errs := make([]string, 0)
	GetStructErrorTxt4UnsetFields(i, &errs)
	return errs
}

// GetStructErrorTxt4UnsetFields will reflect over interface i and build a slice containing error text strings for any
// struct fields that are unset i.e. are the zero value for the given field type.
// The error text strings are fetched from the errorTxt tags values found in the supplied interface (struct)
// where tag mandatory:"yes" is set.
// Nested structs, pointers to structs, and maps or slices of structs are descended into.
func GetStructErrorTxt4UnsetFields(i interface{}, errTags *[]string) {
	if i == nil {
		return
	}
	val := reflect.ValueOf(i)
	for val.Kind() == reflect.Ptr { // if we have a pointer...
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}
	typ := val.Type()
	for idx := 0; idx < val.NumField(); idx++ { // for each field in the value/struct...
		f := val.Field(idx)
		sf := typ.Field(idx)
		if sf.PkgPath != "" { // if the field is not exported...
			continue
		}
		mandatory := sf.Tag.Get("mandatory") == "yes"
		switch f.Kind() {
		case reflect.Struct: // if we are looking at a nested struct and need to go down another level...
			GetStructErrorTxt4UnsetFields(f.Interface(), errTags)
		case reflect.Ptr:
			if f.IsNil() {
				if mandatory {
					*errTags = append(*errTags, sf.Tag.Get("errorTxt"))
				}
			} else if f.Elem().Kind() == reflect.Struct { // else descend into the struct it points at...
				GetStructErrorTxt4UnsetFields(f.Interface(), errTags)
			}
		case reflect.Map, reflect.Slice:
			if f.Len() == 0 && mandatory { // if the collection is empty but mandatory...
				*errTags = append(*errTags, sf.Tag.Get("errorTxt"))
				continue
			}
			if f.Kind() == reflect.Map {
				for _, k := range f.MapKeys() { // for each map key...
					descendIfStruct(f.MapIndex(k), errTags)
				}
			} else {
				for j := 0; j < f.Len(); j++ { // for each slice element...
					descendIfStruct(f.Index(j), errTags)
				}
			}
		case reflect.Interface, reflect.Func, reflect.Chan:
			if f.IsNil() && mandatory {
				*errTags = append(*errTags, sf.Tag.Get("errorTxt"))
			}
		default: // extract tags from this struct field...
			if f.IsZero() && mandatory { // if the field is its zero value and it is mandatory...
				*errTags = append(*errTags, sf.Tag.Get("errorTxt"))
			}
		}
	}
}

func descendIfStruct(v reflect.Value, errTags *[]string) {
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		GetStructErrorTxt4UnsetFields(v.Interface(), errTags)
	}
}
