package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer accumulates encoded bytes.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// WriteBytes writes a raw byte slice verbatim.
func (w *Writer) WriteBytes(b []byte) {
	w.buf.Write(b)
}

// WriteU32 writes v as minimal unsigned LEB128.
func (w *Writer) WriteU32(v uint32) { w.WriteU64(uint64(v)) }

// WriteU64 writes v as minimal unsigned LEB128.
func (w *Writer) WriteU64(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// WriteS32 writes v as minimal signed LEB128.
func (w *Writer) WriteS32(v int32) { w.WriteS64(int64(v)) }

// WriteS64 writes v as minimal signed LEB128.
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			w.buf.WriteByte(b)
			return
		}
		w.buf.WriteByte(b | 0x80)
	}
}

// WriteS33 writes v as minimal signed LEB128, used for the multi-value
// block-type type index.
func (w *Writer) WriteS33(v int64) { w.WriteS64(v) }

// WriteName writes a length-prefixed UTF-8 name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteF32 writes a little-endian IEEE-754 single-precision float.
func (w *Writer) WriteF32(f float32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
	w.buf.Write(buf[:])
}

// WriteF64 writes a little-endian IEEE-754 double-precision float.
func (w *Writer) WriteF64(f float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	w.buf.Write(buf[:])
}
