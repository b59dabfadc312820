package wasmcodec

import (
	"bytes"

	"github.com/go-wasm/codec/wasmcodec/internal/binary"
)

// teeByteReader captures every byte it reads from src into buf, so a
// scan over a section of the stream can later be replayed as raw bytes
// without re-reading from the underlying source.
type teeByteReader struct {
	src *binary.Reader
	buf bytes.Buffer
}

func (t *teeByteReader) ReadByte() (byte, error) {
	b, err := t.src.ReadByte()
	if err == nil {
		t.buf.WriteByte(b)
	}
	return b, err
}

// scanExprRaw consumes one Expression from r (an instruction stream
// terminated by a depth-balanced End) and returns the raw bytes
// consumed, terminating End included, without retaining the decoded
// instructions. This lets section parsers populate a Lazy container's
// raw form without forcing a decode callers may never ask for.
func scanExprRaw(r *binary.Reader, features Features) ([]byte, error) {
	tee := &teeByteReader{src: r}
	inner := binary.NewReader(tee)
	var depth DepthTracker
	for i := 0; ; i++ {
		op, err := inner.ReadByte()
		if err != nil {
			return nil, wrapIdx(err, i)
		}
		switch op {
		case OpBlock, OpLoop, OpIf, OpTryTable:
			depth.inc()
		case OpEnd:
			if !depth.tryDec() {
				return tee.buf.Bytes(), nil
			}
		}
		if _, err := decodeOneInstruction(inner, op, features); err != nil {
			return nil, wrapIdx(err, i)
		}
	}
}
