// internal/network/identity.go
package network

import (
	"reflect"
	"unsafe"
)

// funcIdentity returns the address of fn's closure object, or 0 for nil.
//
// Two func values built from the same literal but capturing different
// variables are distinct closures and get distinct identities. Closures that
// capture nothing and top-level functions share a static identity. Streams are
// shared only when every function they hold has the same identity.
func funcIdentity(fn any) uintptr {
	if fn == nil {
		return 0
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return (*[2]uintptr)(unsafe.Pointer(&fn))[1]
}

// valueIdentity identifies collectors and other parameter objects for sharing.
// Pointer-shaped values compare by address; comparable values by value.
// Anything else is never shared.
func valueIdentity(v any, unique func() any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return rv.Pointer()
	case reflect.Func:
		return funcIdentity(v)
	}
	if rv.Type().Comparable() {
		return v
	}
	return unique()
}
