package rtc

import (
	"errors"
	"fmt"

	"github.com/holochain/tx5-go-pion-rtc/native"
)

var (
	// ErrInvalidState is returned when a context is used before Init, after
	// Free, or, for creation calls, while it is being freed. No native call
	// is made.
	ErrInvalidState = errors.New("rtc: invalid context state")

	// ErrNativeCall is returned when the engine fails a call or returns a
	// null handle from a creation call.
	ErrNativeCall = errors.New("rtc: native call failed")

	// ErrFreed is returned by any method of a wrapper after Free.
	ErrFreed = errors.New("rtc: object freed")

	// ErrDuplicateContext is returned by Host.OnHostInit for an id that is
	// already active.
	ErrDuplicateContext = errors.New("rtc: context id already active")
)

// nativeErr wraps a failed engine call.
func nativeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrNativeCall, op, err)
}

// created checks the result of a creation call.
func created(op string, h native.Handle, err error) error {
	if err != nil {
		return nativeErr(op, err)
	}
	if h == 0 {
		return fmt.Errorf("%w: %s: null handle", ErrNativeCall, op)
	}
	return nil
}
