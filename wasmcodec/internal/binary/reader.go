// Package binary implements the low-level wire primitives the wasmcodec
// grammar is built from: LEB128 integers, IEEE-754 floats, and
// length-prefixed names, plus position-tracked reader/writer wrappers.
package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value exceeds its target width.
var ErrOverflow = errors.New("leb128: overflow")

// Reader wraps a byte source with position tracking and the wire
// primitives the grammar decodes from.
type Reader struct {
	r   io.ByteReader
	pos int
}

// NewReader creates a new Reader wrapping the given io.ByteReader.
func NewReader(r io.ByteReader) *Reader {
	return &Reader{r: r}
}

// Position returns the current byte offset.
func (r *Reader) Position() int { return r.pos }

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, err
	}
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

// ReadU32 reads an unsigned LEB128 encoded value into a uint32,
// tolerating non-minimal (overlong) encodings.
func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.ReadU64Bits(32)
	return uint32(v), err
}

// ReadU64 reads an unsigned LEB128 encoded uint64, tolerating
// non-minimal encodings.
func (r *Reader) ReadU64() (uint64, error) {
	return r.ReadU64Bits(64)
}

// ReadU64Bits reads an unsigned LEB128 value, rejecting only encodings
// whose significant bits overflow the given width: either too many
// continuation groups, or a final group whose bits above width are
// nonzero (which would otherwise be silently truncated by the caller).
func (r *Reader) ReadU64Bits(width uint) (uint64, error) {
	var result uint64
	var shift uint
	maxShift := ((width + 6) / 7) * 7
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			if width < 64 && result>>width != 0 {
				return 0, ErrOverflow
			}
			if shift == 63 && b&0x7e != 0 {
				return 0, ErrOverflow
			}
			return result, nil
		}
		shift += 7
		if shift >= maxShift {
			return 0, ErrOverflow
		}
	}
}

// ReadS32 reads a signed LEB128 encoded int32, tolerating non-minimal encodings.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.ReadS64Bits(32)
	return int32(v), err
}

// ReadS64 reads a signed LEB128 encoded int64, tolerating non-minimal encodings.
func (r *Reader) ReadS64() (int64, error) {
	return r.ReadS64Bits(64)
}

// ReadS33 reads a signed LEB128 value as a 33-bit quantity, used for
// the multi-value block-type type index and for s33 heap type indices.
func (r *Reader) ReadS33() (int64, error) {
	return r.ReadS64Bits(33)
}

// ReadS64Bits reads a signed LEB128 value of the given bit width.
func (r *Reader) ReadS64Bits(width uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	maxShift := ((width + 6) / 7) * 7
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			result |= int64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= maxShift {
			return 0, ErrOverflow
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	return result, nil
}

// ReadName reads a UTF-8 encoded name (a length-prefixed byte sequence).
func (r *Reader) ReadName() (string, error) {
	length, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	data, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}

var errInvalidUTF8 = errors.New("invalid UTF-8 in name")

// IsInvalidUTF8 reports whether err originated from ReadName's UTF-8 check.
func IsInvalidUTF8(err error) bool { return errors.Is(err, errInvalidUTF8) }

// ReadF32 reads a little-endian IEEE-754 single-precision float.
func (r *Reader) ReadF32() (float32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
}

// ReadF64 reads a little-endian IEEE-754 double-precision float.
func (r *Reader) ReadF64() (float64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// ReadRemaining reads all remaining bytes.
func (r *Reader) ReadRemaining() ([]byte, error) {
	if br, ok := r.r.(*bytes.Reader); ok {
		return r.ReadBytes(br.Len())
	}
	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		buf.WriteByte(b)
	}
	return buf.Bytes(), nil
}
