package core

// Result holds either a success value or a failure, never both.
type Result[T any] struct {
	value T
	err   error
}

func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail builds a failed result. A nil error is replaced with an internal error
// so the failure branch is always populated.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = NewError(KindOperationFailed, "core: failed result without error")
	}
	return Result[T]{err: err}
}

func (r Result[T]) OK() bool {
	return r.err == nil
}

// Value returns the success value, or the zero value for failures.
func (r Result[T]) Value() T {
	if r.err != nil {
		var zero T
		return zero
	}
	return r.value
}

func (r Result[T]) Err() error {
	return r.err
}

func (r Result[T]) Unwrap() (T, error) {
	return r.Value(), r.err
}

// Map converts the success branch of a result and passes failures through.
func Map[T any, U any](r Result[T], fn func(T) (U, error)) Result[U] {
	if r.err != nil {
		return Fail[U](r.err)
	}
	if fn == nil {
		return Fail[U](NewConfiguration("core: result map function is required"))
	}
	mapped, err := fn(r.value)
	if err != nil {
		return Fail[U](err)
	}
	return Ok(mapped)
}
