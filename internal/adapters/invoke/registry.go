package invoke

import (
	"context"
	"sync"
)

// HandlerFunc is an in-process function body.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Registry is an in-process Invoker. The single-binary deployment registers
// its pipeline handlers here instead of calling out to deployed functions.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

var _ Invoker = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a function name to a handler. Later registrations win.
func (r *Registry) Register(function string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[function] = fn
}

// Invoke runs the named handler synchronously.
func (r *Registry) Invoke(ctx context.Context, function string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	fn, ok := r.handlers[function]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrFunctionNotFound
	}
	out, err := fn(ctx, payload)
	if err != nil {
		return nil, &FunctionError{Function: function, Message: err.Error()}
	}
	return out, nil
}

// InvokeAsync runs the named handler synchronously but discards its result.
// In-process handlers are fast enough that a goroutine is not worth the
// lifecycle bookkeeping.
func (r *Registry) InvokeAsync(ctx context.Context, function string, payload []byte) error {
	_, err := r.Invoke(ctx, function, payload)
	return err
}
