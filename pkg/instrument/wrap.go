package instrument

import "context"

// Wrap instruments a typed single-argument function under name, keeping its
// signature.
func Wrap[T, R any](e *Engine, name string, fn func(context.Context, T) (R, error)) func(context.Context, T) (R, error) {
	return func(ctx context.Context, in T) (R, error) {
		var out R
		err := e.Run(ctx, name, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, in)
			return err
		})
		return out, err
	}
}

// WrapErr instruments a function that only reports an error.
func WrapErr(e *Engine, name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return e.Run(ctx, name, fn)
	}
}
