package check

import (
	"fmt"

	"github.com/pkg/errors"
)

func check(ok bool, msgAndArgs []interface{}, defaultMsg string, args ...interface{}) error {
	if ok {
		return nil
	}
	if msg := messageFromMsgAndArgs(msgAndArgs...); msg != "" {
		return errors.New(msg)
	}
	return errors.Errorf(defaultMsg, args...)
}

func messageFromMsgAndArgs(msgAndArgs ...interface{}) string {
	switch {
	case len(msgAndArgs) == 0:
		return ""
	case len(msgAndArgs) == 1:
		if msg, ok := msgAndArgs[0].(string); ok {
			return msg
		}
		return fmt.Sprintf("%+v", msgAndArgs[0])
	default:
		return fmt.Sprintf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	}
}

// True returns an error with the provided message if the condition is false.
func True(condition bool, msgAndArgs ...interface{}) error {
	return check(condition, msgAndArgs, "expected true")
}

// NotEmpty checks that a string is not empty.
func NotEmpty(actual string, msgAndArgs ...interface{}) error {
	return check(actual != "", msgAndArgs, "value must not be empty")
}

// GreaterThan checks that actual > bound.
func GreaterThan[T int | int64 | float64](actual, bound T, msgAndArgs ...interface{}) error {
	return check(actual > bound, msgAndArgs, "%v must be greater than %v", actual, bound)
}

// GreaterThanOrEqualTo checks that actual >= bound.
func GreaterThanOrEqualTo[T int | int64 | float64](actual, bound T, msgAndArgs ...interface{}) error {
	return check(actual >= bound, msgAndArgs, "%v must be at least %v", actual, bound)
}

// In checks that actual is one of the options.
func In[T comparable](actual T, options []T, msgAndArgs ...interface{}) error {
	for _, o := range options {
		if o == actual {
			return nil
		}
	}
	return check(false, msgAndArgs, "%v must be one of %v", actual, options)
}
