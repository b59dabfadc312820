package wasmcodec

// Lazy is a section payload that may exist as raw bytes, a decoded
// value, or both. Decoding is one-way: once a caller asks for the
// decoded form, the raw bytes are kept alongside it (so encode can
// still take the cheap path if nothing changed), but any call to Set
// invalidates the raw bytes, since they are no longer known to be
// authoritative. There is no way to go from "only decoded" back to
// "only raw" — mutation is monotone.
type Lazy[T any] struct {
	decoded  *T
	decodeFn func([]byte) (T, error)
	encodeFn func(T) ([]byte, error)
	raw      []byte
	rawValid bool
}

// NewLazyRaw wraps raw bytes not yet decoded.
func NewLazyRaw[T any](raw []byte, decode func([]byte) (T, error), encode func(T) ([]byte, error)) Lazy[T] {
	return Lazy[T]{raw: raw, rawValid: true, decodeFn: decode, encodeFn: encode}
}

// NewLazyDecoded wraps an already-decoded value with no raw bytes backing it.
func NewLazyDecoded[T any](v T, decode func([]byte) (T, error), encode func(T) ([]byte, error)) Lazy[T] {
	return Lazy[T]{decoded: &v, decodeFn: decode, encodeFn: encode}
}

// Decoded forces decoding (if not already done) and returns the
// decoded value. Subsequent calls return the cached value. A zero
// Lazy (no raw bytes, no decode function) yields the zero value of T.
func (l *Lazy[T]) Decoded() (T, error) {
	if l.decoded != nil {
		return *l.decoded, nil
	}
	if l.decodeFn == nil {
		var zero T
		return zero, nil
	}
	v, err := l.decodeFn(l.raw)
	if err != nil {
		var zero T
		return zero, err
	}
	l.decoded = &v
	return v, nil
}

// DecodedMut forces decoding and returns a pointer to the cached value
// for in-place mutation. The raw bytes are invalidated immediately,
// since a caller asking for a mutable view is assumed to use it; Encode
// must re-serialize the decoded tree from this point on rather than
// risk emitting stale bytes alongside an in-place edit.
func (l *Lazy[T]) DecodedMut() (*T, error) {
	if l.decoded == nil {
		var v T
		if l.decodeFn != nil {
			var err error
			v, err = l.decodeFn(l.raw)
			if err != nil {
				return nil, err
			}
		}
		l.decoded = &v
	}
	l.rawValid = false
	l.raw = nil
	return l.decoded, nil
}

// Set replaces the decoded value outright and invalidates any raw bytes.
func (l *Lazy[T]) Set(v T) {
	l.decoded = &v
	l.rawValid = false
	l.raw = nil
}

// Invalidate marks the raw bytes stale. DecodedMut already does this
// itself; this is exposed for callers that mutate through a pointer
// obtained some other way (e.g. across a package boundary in a test).
func (l *Lazy[T]) Invalidate() {
	l.rawValid = false
	l.raw = nil
}

// Raw returns the raw bytes if they are still authoritative (nothing
// has mutated the decoded form since they were captured), and whether
// they are valid.
func (l *Lazy[T]) Raw() ([]byte, bool) {
	return l.raw, l.rawValid
}

// Encode returns the bytes for this section's payload, preferring raw
// bytes when they are still authoritative and falling back to encoding
// the decoded value otherwise. The only failure mode is the decoded
// value itself rejecting re-encoding (an unbalanced instruction list).
func (l *Lazy[T]) Encode() ([]byte, error) {
	if l.rawValid {
		return l.raw, nil
	}
	v, err := l.Decoded()
	if err != nil {
		return nil, err
	}
	if l.encodeFn == nil {
		return l.raw, nil
	}
	return l.encodeFn(v)
}
