package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeoutError means none of the watched outcomes appeared before the bound
// elapsed. Nothing conclusive rendered, so it is not an assertion failure.
type TimeoutError struct {
	Waiting []string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for any of: %s", e.After, strings.Join(e.Waiting, ", "))
}

// AssertionError means the page settled in a state other than the expected
// one: something rendered, just not the right thing.
type AssertionError struct {
	Expected string
	Observed string
	Detail   string
}

func (e *AssertionError) Error() string {
	msg := fmt.Sprintf("expected %s, observed %s", e.Expected, e.Observed)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsTimeout reports whether err is a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsAssertion reports whether err is an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}
