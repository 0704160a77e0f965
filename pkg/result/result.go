// Package result provides a tagged success/failure container.
package result

// Result holds either a success value of type T or a failure of type E.
// Exactly one of the two is populated. E is a type parameter so callers get
// the concrete failure, such as *domain.StepError, without an assertion.
type Result[T, E any] struct {
	value T
	err   E
	ok    bool
}

// Ok wraps a success value.
func Ok[T, E any](value T) Result[T, E] {
	return Result[T, E]{value: value, ok: true}
}

// Err wraps a failure.
func Err[T, E any](err E) Result[T, E] {
	return Result[T, E]{err: err}
}

// IsOk reports whether r holds a success value.
func (r Result[T, E]) IsOk() bool { return r.ok }

// IsErr reports whether r holds a failure.
func (r Result[T, E]) IsErr() bool { return !r.ok }

// Value returns the success value, or the zero T for a failure.
func (r Result[T, E]) Value() T { return r.value }

// Err returns the failure, or the zero E for a success.
func (r Result[T, E]) Err() E { return r.err }

// Get returns the success value and whether r is a success.
func (r Result[T, E]) Get() (T, bool) { return r.value, r.ok }

// ValueOr returns the success value, or fallback for a failure.
func (r Result[T, E]) ValueOr(fallback T) T {
	if r.ok {
		return r.value
	}
	return fallback
}
