// Package invoke abstracts calling downstream compute functions. The saga
// coordinator drives pipeline steps through an Invoker so the same wiring
// runs against deployed functions or in-process handlers.
package invoke

import (
	"context"
	"errors"
	"fmt"
)

// ErrFunctionNotFound is returned when no function matches the given name.
var ErrFunctionNotFound = errors.New("invoke: function not found")

// FunctionError reports a downstream function that ran but failed.
type FunctionError struct {
	Function string
	Message  string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s failed: %s", e.Function, e.Message)
}

// Invoker calls a named function with a JSON payload.
type Invoker interface {
	// Invoke calls the function synchronously and returns its response payload.
	Invoke(ctx context.Context, function string, payload []byte) ([]byte, error)
	// InvokeAsync fires the function without waiting for its result.
	InvokeAsync(ctx context.Context, function string, payload []byte) error
}
