package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// TypeError reports that an argument had the wrong semantic type. Fatal to
// the operation that raised it, not to the engine.
type TypeError struct {
	Field    string
	Expected string
	Got      interface{}
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: field %q expected %s, got %v (%T)", e.Field, e.Expected, e.Got, e.Got)
}

// MissingError reports required configuration that is absent. Fatal to
// Run().
type MissingError struct {
	What string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing error: %s is required", e.What)
}

// ValueError reports a value outside its allowed enumeration. Fatal to the
// current transition.
type ValueError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("value error: field %q has value %q, must be one of %v", e.Field, e.Value, e.Allowed)
}

// BrokerError reports a connection/channel failure against the message
// broker. No code path in the engine constructs one, and pkg/broker does
// not reconnect after a failure: broker errors surface as wrapped errors
// from the failing call.
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error during %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// WithStack annotates err with a stack trace at the call site. The
// engine's own code paths do not call it; errors returned from Run() are
// fmt.Errorf-wrapped chains without a stack trace.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}
