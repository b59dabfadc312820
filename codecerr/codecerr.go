// Package codecerr provides the structured error type used by
// wasmcodec. Errors are categorized by Phase (decode vs. encode) and
// Kind (error category), and carry an ordered path of frames from the
// outermost structure down to the byte that failed.
//
// Use the Builder for structured construction:
//
//	err := codecerr.New(codecerr.PhaseDecode, codecerr.KindUnexpectedEnd).
//		Path("code", "func[3]", "body").
//		Detail("truncated while reading opcode").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, path, disc)
//	err := codecerr.MismatchedBlockDepth(path)
//
// All errors implement the standard error interface and support
// errors.Is/As.
package codecerr

import (
	"fmt"
	"strings"
)

// Phase indicates which direction the codec was moving in when the error occurred.
type Phase string

const (
	PhaseDecode Phase = "decode"
	PhaseEncode Phase = "encode"
)

// Kind categorizes the error.
type Kind string

const (
	KindUnexpectedEnd      Kind = "unexpected_end_of_input"
	KindUnsupportedVariant Kind = "unsupported_discriminant"
	KindIntegerOutOfRange  Kind = "integer_out_of_range"
	KindInvalidUTF8        Kind = "invalid_utf8"
	KindInvalidBool        Kind = "invalid_boolean_byte"
	KindBlockDepth         Kind = "mismatched_block_depth"
	KindIO                 Kind = "io_error"
)

// Error is the structured error type produced by wasmcodec.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
	Value  uint32
	HasVal bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.HasVal {
		fmt.Fprintf(&b, " (observed %d)", e.Value)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// WithPath returns a copy of e with an additional path frame prepended,
// used as an error climbs back out of nested sum/product/sequence decoders.
func (e *Error) WithPath(frame string) *Error {
	cp := *e
	cp.Path = append([]string{frame}, cp.Path...)
	return &cp
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Value(v uint32) *Builder {
	b.err.Value = v
	b.err.HasVal = true
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the common error kinds below.

// UnexpectedEnd builds an error for a read that ran past the end of input.
func UnexpectedEnd(path []string) *Error {
	return &Error{Phase: PhaseDecode, Kind: KindUnexpectedEnd, Path: path}
}

// UnsupportedDiscriminant builds an error for an opcode, section id, or
// type discriminant the codec does not recognize or is not configured
// (via Features) to accept.
func UnsupportedDiscriminant(phase Phase, path []string, observed uint32) *Error {
	return &Error{Phase: phase, Kind: KindUnsupportedVariant, Path: path, Value: observed, HasVal: true}
}

// IntegerOutOfRange builds an error for a LEB128 value that overflows
// its target width.
func IntegerOutOfRange(path []string, detail string) *Error {
	return &Error{Phase: PhaseDecode, Kind: KindIntegerOutOfRange, Path: path, Detail: detail}
}

// InvalidUTF8 builds an error for a name field that is not valid UTF-8.
func InvalidUTF8(path []string) *Error {
	return &Error{Phase: PhaseDecode, Kind: KindInvalidUTF8, Path: path}
}

// InvalidBool builds an error for a boolean byte that is neither 0 nor 1.
func InvalidBool(path []string, observed byte) *Error {
	return &Error{Phase: PhaseDecode, Kind: KindInvalidBool, Path: path, Value: uint32(observed), HasVal: true}
}

// MismatchedBlockDepth builds an error for an instruction list, given
// to the encoder, whose End opcodes do not balance its Block/Loop/If/
// TryTable starts. The decoder never produces this: an End it cannot
// match against an open scope is, by construction, the expression's
// own terminator.
func MismatchedBlockDepth(path []string) *Error {
	return &Error{Phase: PhaseEncode, Kind: KindBlockDepth, Path: path, Detail: "unbalanced block nesting"}
}

// IO wraps an underlying I/O error from the sink or source.
func IO(phase Phase, path []string, cause error) *Error {
	return &Error{Phase: phase, Kind: KindIO, Path: path, Cause: cause}
}
