// Package options implements the generic functional-option machinery behind
// the exported With* options of the frame package (EncoderOption,
// ReaderOption, DecodeOption are all aliases of Option[T] for their
// respective configuration structs).
package options

// Option represents a functional option for configuring any type T.
// The frame package specializes it per configuration target, e.g.
//
//	type EncoderOption = options.Option[*encoderConfig]
type Option[T any] interface {
	apply(T) error
}

// Func is a generic functional option that wraps a function.
// It implements the Option interface for any type T.
type Func[T any] struct {
	applyFunc func(T) error
}

// apply implements the Option interface.
func (f *Func[T]) apply(target T) error {
	return f.applyFunc(target)
}

// New creates a new functional option from a function that can fail, e.g.
// a rows-per-frame setter rejecting non-positive values.
func New[T any](fn func(T) error) *Func[T] {
	return &Func[T]{applyFunc: fn}
}

// Apply applies multiple options to a target object in order, stopping at
// the first error. Constructors such as frame.NewEncoder and frame.NewReader
// call it on their freshly-built configuration.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if err := opt.apply(target); err != nil {
			return err
		}
	}

	return nil
}

// NoError creates a functional option from a function that doesn't return an
// error, e.g. an endianness or property-map setter.
func NoError[T any](fn func(T)) *Func[T] {
	return &Func[T]{
		applyFunc: func(target T) error {
			fn(target)
			return nil
		},
	}
}
