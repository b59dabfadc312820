package wasmcodec

import (
	"bytes"
	"io"

	"github.com/go-wasm/codec/wasmcodec/internal/binary"
)

// ErrOverflow is returned when a LEB128 value exceeds its target bit width.
var ErrOverflow = binary.ErrOverflow

// ReadLEB128u reads an unsigned LEB128 value, tolerating non-minimal
// (overlong) encodings per the codec's decode-is-tolerant, encode-is-
// canonical asymmetry.
func ReadLEB128u(r io.ByteReader) (uint32, error) {
	return binary.NewReader(r).ReadU32()
}

// ReadLEB128u64 reads an unsigned 64-bit LEB128 value.
func ReadLEB128u64(r io.ByteReader) (uint64, error) {
	return binary.NewReader(r).ReadU64()
}

// ReadLEB128s reads a signed 32-bit LEB128 value.
func ReadLEB128s(r io.ByteReader) (int32, error) {
	return binary.NewReader(r).ReadS32()
}

// ReadLEB128s64 reads a signed 64-bit LEB128 value.
func ReadLEB128s64(r io.ByteReader) (int64, error) {
	return binary.NewReader(r).ReadS64()
}

// WriteLEB128u writes the minimal-length unsigned LEB128 encoding of v.
func WriteLEB128u(w *bytes.Buffer, v uint32) {
	bw := binary.NewWriter()
	bw.WriteU32(v)
	w.Write(bw.Bytes())
}

// WriteLEB128u64 writes the minimal-length unsigned LEB128 encoding of v.
func WriteLEB128u64(w *bytes.Buffer, v uint64) {
	bw := binary.NewWriter()
	bw.WriteU64(v)
	w.Write(bw.Bytes())
}

// WriteLEB128s writes the minimal-length signed LEB128 encoding of v.
func WriteLEB128s(w *bytes.Buffer, v int32) {
	bw := binary.NewWriter()
	bw.WriteS32(v)
	w.Write(bw.Bytes())
}

// WriteLEB128s64 writes the minimal-length signed LEB128 encoding of v.
func WriteLEB128s64(w *bytes.Buffer, v int64) {
	bw := binary.NewWriter()
	bw.WriteS64(v)
	w.Write(bw.Bytes())
}

// EncodeLEB128u encodes v as minimal-length unsigned LEB128.
func EncodeLEB128u(v uint32) []byte {
	bw := binary.NewWriter()
	bw.WriteU32(v)
	return bw.Bytes()
}

// EncodeLEB128s encodes v as minimal-length signed LEB128.
func EncodeLEB128s(v int32) []byte {
	bw := binary.NewWriter()
	bw.WriteS32(v)
	return bw.Bytes()
}

// EncodeLEB128u64 encodes v as minimal-length unsigned LEB128.
func EncodeLEB128u64(v uint64) []byte {
	bw := binary.NewWriter()
	bw.WriteU64(v)
	return bw.Bytes()
}

// EncodeLEB128s64 encodes v as minimal-length signed LEB128.
func EncodeLEB128s64(v int64) []byte {
	bw := binary.NewWriter()
	bw.WriteS64(v)
	return bw.Bytes()
}

// ReadFloat32 reads a little-endian float32.
func ReadFloat32(r io.Reader) (float32, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufioByteReader(r)
	}
	return binary.NewReader(br).ReadF32()
}

// ReadFloat64 reads a little-endian float64.
func ReadFloat64(r io.Reader) (float64, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufioByteReader(r)
	}
	return binary.NewReader(br).ReadF64()
}

// WriteFloat32 writes a little-endian float32.
func WriteFloat32(w *bytes.Buffer, v float32) {
	bw := binary.NewWriter()
	bw.WriteF32(v)
	w.Write(bw.Bytes())
}

// WriteFloat64 writes a little-endian float64.
func WriteFloat64(w *bytes.Buffer, v float64) {
	bw := binary.NewWriter()
	bw.WriteF64(v)
	w.Write(bw.Bytes())
}

func bufioByteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &simpleByteReader{r: r}
}

type simpleByteReader struct{ r io.Reader }

func (s *simpleByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(s.r, buf[:])
	return buf[0], err
}
