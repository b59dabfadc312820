package wasmcodec_test

import (
	"bytes"
	"testing"

	"github.com/go-wasm/codec/wasmcodec"
)

func instrLazyRaw(raw []byte) wasmcodec.Lazy[[]wasmcodec.Instruction] {
	return wasmcodec.NewLazyRaw(raw,
		func(b []byte) ([]wasmcodec.Instruction, error) {
			return wasmcodec.DecodeInstructions(b, wasmcodec.DefaultFeatures())
		},
		wasmcodec.EncodeInstructions,
	)
}

func TestLazyRawPassesThroughWithoutDecode(t *testing.T) {
	// A non-minimal encoding round-trips verbatim as long as nothing
	// forces a decode: the raw buffer stays authoritative.
	raw := []byte{wasmcodec.OpLocalGet, 0x80, 0x00, wasmcodec.OpEnd}
	l := instrLazyRaw(raw)

	got, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("got % x, want the raw bytes % x", got, raw)
	}
	if _, valid := l.Raw(); !valid {
		t.Error("raw bytes should still be authoritative after Encode")
	}
}

func TestLazyDecodedIsCachedAndRawStaysValid(t *testing.T) {
	raw := []byte{wasmcodec.OpNop, wasmcodec.OpEnd}
	l := instrLazyRaw(raw)

	first, err := l.Decoded()
	if err != nil {
		t.Fatalf("Decoded: %v", err)
	}
	if len(first) != 1 || first[0].Opcode != wasmcodec.OpNop {
		t.Fatalf("unexpected decode result: %+v", first)
	}
	// A read-only decode does not invalidate the raw buffer; encode
	// still takes the cheap path.
	if _, valid := l.Raw(); !valid {
		t.Error("Decoded must not invalidate the raw bytes")
	}
	got, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("got % x, want % x", got, raw)
	}
}

func TestLazyDecodedMutInvalidatesRaw(t *testing.T) {
	raw := []byte{wasmcodec.OpNop, wasmcodec.OpEnd}
	l := instrLazyRaw(raw)

	instrs, err := l.DecodedMut()
	if err != nil {
		t.Fatalf("DecodedMut: %v", err)
	}
	if _, valid := l.Raw(); valid {
		t.Fatal("DecodedMut must drop the raw bytes")
	}

	*instrs = append(*instrs, wasmcodec.Instruction{Opcode: wasmcodec.OpUnreachable})
	got, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{wasmcodec.OpNop, wasmcodec.OpUnreachable, wasmcodec.OpEnd}
	if !bytes.Equal(got, want) {
		t.Errorf("encode after mutation: got % x, want % x", got, want)
	}
}

func TestLazySetReplacesAndInvalidates(t *testing.T) {
	l := instrLazyRaw([]byte{wasmcodec.OpNop, wasmcodec.OpEnd})
	l.Set([]wasmcodec.Instruction{{Opcode: wasmcodec.OpUnreachable}})

	if _, valid := l.Raw(); valid {
		t.Fatal("Set must drop the raw bytes")
	}
	got, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{wasmcodec.OpUnreachable, wasmcodec.OpEnd}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestLazyDecodeErrorLeavesZeroValue(t *testing.T) {
	l := instrLazyRaw([]byte{0xF0}) // unknown opcode, no terminator
	v, err := l.Decoded()
	if err == nil {
		t.Fatal("expected a decode error for malformed raw bytes")
	}
	if v != nil {
		t.Errorf("expected the zero value on a failed decode, got %+v", v)
	}
	// The container stays decodable-on-retry rather than caching a
	// partial result.
	if _, valid := l.Raw(); !valid {
		t.Error("raw bytes must survive a failed decode")
	}
}
