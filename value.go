package uploader

// ResolverFunc computes an option value for a file, a chunk and the kind of
// request being built. c is nil when the value is resolved per file, such as
// the chunk size.
type ResolverFunc[T any] func(f *File, c *Chunk, isTest bool) T

// Value is an option that is either a literal or computed per request.
// The zero Value is a literal holding T's zero value.
type Value[T any] struct {
	literal  T
	resolver ResolverFunc[T]
}

// Literal returns a Value that always evaluates to v.
func Literal[T any](v T) Value[T] {
	return Value[T]{literal: v}
}

// Resolver returns a Value computed by fn on every evaluation.
// A nil fn behaves like the zero literal.
func Resolver[T any](fn ResolverFunc[T]) Value[T] {
	return Value[T]{resolver: fn}
}

// Eval returns the value for the given file, chunk and request kind.
func (v Value[T]) Eval(f *File, c *Chunk, isTest bool) T {
	if v.resolver != nil {
		return v.resolver(f, c, isTest)
	}
	return v.literal
}

// IsResolver reports whether the value is computed per request.
func (v Value[T]) IsResolver() bool {
	return v.resolver != nil
}
