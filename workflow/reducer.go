package workflow

import (
	"fmt"
	"sync"

	"github.com/BaSui01/deepresearch/types"
)

// Reducer defines how an update merges into the current value of a field.
// A reducer that rejects the update returns an error and the field keeps its value.
type Reducer[T any] func(current T, update T) (T, error)

// Channel 是带合并规则的状态字段。
type Channel[T any] struct {
	name    string
	value   T
	reducer Reducer[T]
	mu      sync.RWMutex
}

// ChannelOption configures a channel.
type ChannelOption[T any] func(*Channel[T])

// WithReducer sets the merge rule for the channel.
func WithReducer[T any](r Reducer[T]) ChannelOption[T] {
	return func(c *Channel[T]) {
		c.reducer = r
	}
}

// NewChannel creates a new state channel. Without a reducer the last write wins.
func NewChannel[T any](name string, initial T, opts ...ChannelOption[T]) *Channel[T] {
	c := &Channel[T]{
		name:    name,
		value:   initial,
		reducer: ReplaceReducer[T](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the channel name.
func (c *Channel[T]) Name() string { return c.name }

// Get returns the current value.
func (c *Channel[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Reduce computes the merged value without committing it.
func (c *Channel[T]) Reduce(update T) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	next, err := c.reducer(c.value, update)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("channel %s: %w", c.name, err)
	}
	return next, nil
}

// Store commits a value previously computed by Reduce.
func (c *Channel[T]) Store(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
}

// Built-in reducers

// ReplaceReducer returns the most recent value (default).
func ReplaceReducer[T any]() Reducer[T] {
	return func(_, update T) (T, error) {
		return update, nil
	}
}

// AppendReducer concatenates update after current into a fresh slice,
// so values returned earlier are never mutated.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) ([]T, error) {
		if len(update) == 0 {
			return current, nil
		}
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result, nil
	}
}

// SetOnceReducer accepts the first non-zero value. A zero update or a
// repeat of the stored value is a no-op; any other write is rejected.
func SetOnceReducer[T comparable]() Reducer[T] {
	return func(current, update T) (T, error) {
		var zero T
		switch {
		case update == zero, update == current:
			return current, nil
		case current == zero:
			return update, nil
		}
		return current, types.NewError(types.ErrFieldAlreadySet, "value is already set")
	}
}
