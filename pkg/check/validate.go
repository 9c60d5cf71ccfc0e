package check

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Validatable is implemented by configuration and model types that can check their own fields.
type Validatable interface {
	Validate() []error
}

// ValidationError aggregates every failed check found while walking a value.
type ValidationError struct {
	Errors []error
}

func (v ValidationError) Error() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, err := range v.Errors {
		msgs = append(msgs, err.Error())
	}
	sort.Strings(msgs)
	return fmt.Sprintf("%d validation errors found:\n\t%s", len(msgs), strings.Join(msgs, "\n\t"))
}

// Validate walks v (structs, pointers, slices and maps) and calls Validate on every Validatable
// it finds. All failures are reported together.
func Validate(v interface{}) error {
	errs := walk(reflect.ValueOf(v), "root")
	if len(errs) == 0 {
		return nil
	}
	return ValidationError{Errors: errs}
}

func walk(v reflect.Value, path string) []error {
	var errs []error
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return walk(v.Elem(), path)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			errs = append(errs, walk(v.Index(i), fmt.Sprintf("%s[%d]", path, i))...)
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			errs = append(errs, walk(v.MapIndex(key), fmt.Sprintf("%s[%v]", path, key.Interface()))...)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Field(i).CanInterface() {
				continue
			}
			errs = append(errs, walk(v.Field(i), path+"."+v.Type().Field(i).Name)...)
		}
	case reflect.Invalid:
		return nil
	}

	// Copy into an addressable value so pointer-receiver Validate methods are found too.
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	if validatable, ok := ptr.Interface().(Validatable); ok {
		for _, err := range validatable.Validate() {
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "error found at %s", path))
			}
		}
	}
	return errs
}
