package util

import (
	"reflect"
)

// NameOfType returns the bare type name of v, dereferencing a pointer first.
func NameOfType(v interface{}) string {
	typ := reflect.TypeOf(v)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ.Name()
}
