// Package validation provides helpers for defensive programming and contract enforcement.
package validation

import (
	"fmt"
	"reflect"
)

// AssertNotNil panics if the provided pointer is nil.
// It is intended for use in constructors and configuration phases where
// dependencies are mandatory (Fail Fast principle).
//
// Usage:
//
//	validation.AssertNotNil(db, "database pool")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertDependency panics if an interface-typed dependency is nil, including
// a nil pointer stored in a non-nil interface.
//
// Usage:
//
//	validation.AssertDependency(source, "rule source")
func AssertDependency(dep any, name string) {
	if dep == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}

	v := reflect.ValueOf(dep)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			panic(fmt.Sprintf("critical error: %s cannot be nil", name))
		}
	}
}

// Note: We use panic here because this is for PROGRAMMER ERROR (misconfiguration),
// not for runtime errors (like "network down").
