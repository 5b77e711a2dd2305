package dxgi

import (
	"fmt"
	"reflect"

	"github.com/breeze-rmm/scrap/internal/logging"
)

// ref owns exactly one reference to a backend object. release is
// idempotent; share hands out a second, independently owned reference.
type ref[T Object] struct {
	obj  T
	held bool
}

func own[T Object](obj T) ref[T] {
	if isNil(obj) {
		return ref[T]{}
	}
	return ref[T]{obj: obj, held: true}
}

func (r *ref[T]) valid() bool { return r.held }

func (r *ref[T]) get() T { return r.obj }

func (r *ref[T]) share() ref[T] {
	if !r.held {
		return ref[T]{}
	}
	r.obj.AddRef()
	return ref[T]{obj: r.obj, held: true}
}

func (r *ref[T]) release() {
	if !r.held {
		return
	}
	obj := r.obj
	var zero T
	r.obj, r.held = zero, false
	obj.Release()
}

func isNil(obj any) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// ignoreStatus is the single place where cleanup failures are dropped.
// Unmap and release-frame errors never reach the caller; they are logged
// at debug so leaks stay visible.
func ignoreStatus(op string, err error) {
	if err == nil {
		return
	}
	attrs := []any{logging.KeyOp, op, logging.KeyError, err}
	if st, ok := statusOf(err); ok {
		attrs = append(attrs, logging.KeyHResult, fmt.Sprintf("0x%08X", uint32(st)))
	}
	log.Debug("ignored cleanup status", attrs...)
}
