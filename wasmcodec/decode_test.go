package wasmcodec_test

import (
	"errors"
	"testing"

	"github.com/go-wasm/codec/codecerr"
	"github.com/go-wasm/codec/wasmcodec"
)

func exprLazy(instrs []wasmcodec.Instruction) wasmcodec.Lazy[[]wasmcodec.Instruction] {
	decode := func(b []byte) ([]wasmcodec.Instruction, error) {
		return wasmcodec.DecodeInstructions(b, wasmcodec.DefaultFeatures())
	}
	return wasmcodec.NewLazyDecoded(instrs, decode, wasmcodec.EncodeInstructions)
}

func mustEncode(t *testing.T, m *wasmcodec.Module) []byte {
	t.Helper()
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestDecodeMinimalModule(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	m, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil module")
	}
	if len(m.Types) != 0 {
		t.Errorf("expected no types, got %d", len(m.Types))
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Error("expected error for invalid magic")
	}
}

func TestDecodeInvalidVersion(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Error("expected error for invalid version")
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Error("expected error for truncated header")
	}
}

func TestRoundTripSectionOrdering(t *testing.T) {
	m := &wasmcodec.Module{
		Types: []wasmcodec.TypeDef{{
			Kind: wasmcodec.TypeDefKindFunc,
			Func: &wasmcodec.FuncType{},
		}},
		Funcs:    []wasmcodec.TypeId{0},
		Memories: []wasmcodec.MemoryType{{Limits: wasmcodec.Limits{Min: 1}}},
	}
	data := mustEncode(t, m)

	parsed, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(parsed.Types) != 1 {
		t.Errorf("expected 1 type, got %d", len(parsed.Types))
	}
	if len(parsed.Funcs) != 1 {
		t.Errorf("expected 1 func, got %d", len(parsed.Funcs))
	}
	if len(parsed.Memories) != 1 {
		t.Errorf("expected 1 memory, got %d", len(parsed.Memories))
	}
}

func TestRoundTripDataCountSection(t *testing.T) {
	count := uint32(2)
	m := &wasmcodec.Module{
		Memories:  []wasmcodec.MemoryType{{Limits: wasmcodec.Limits{Min: 1}}},
		DataCount: &count,
		Data: []wasmcodec.DataSegment{
			{Flags: 1, Init: []byte{1, 2, 3}},
			{Flags: 1, Init: []byte{4, 5, 6}},
		},
	}

	data := mustEncode(t, m)
	parsed, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if parsed.DataCount == nil {
		t.Fatal("DataCount should not be nil")
	}
	if *parsed.DataCount != 2 {
		t.Errorf("expected DataCount 2, got %d", *parsed.DataCount)
	}
	if len(parsed.Data) != 2 {
		t.Fatalf("expected 2 data segments, got %d", len(parsed.Data))
	}
	if string(parsed.Data[0].Init) != string([]byte{1, 2, 3}) {
		t.Errorf("data[0] mismatch: got %v", parsed.Data[0].Init)
	}
}

func TestRoundTripFunctionWithBody(t *testing.T) {
	m := &wasmcodec.Module{
		Types: []wasmcodec.TypeDef{{
			Kind: wasmcodec.TypeDefKindFunc,
			Func: &wasmcodec.FuncType{
				Params:  []wasmcodec.ValueType{wasmcodec.ValI32, wasmcodec.ValI32},
				Results: []wasmcodec.ValueType{wasmcodec.ValI32},
			},
		}},
		Funcs: []wasmcodec.TypeId{0},
		Code: []wasmcodec.FuncBody{{
			Locals: []wasmcodec.LocalEntry{{Count: 1, Type: wasmcodec.ValI32}},
			Code: exprLazy([]wasmcodec.Instruction{
				{Opcode: wasmcodec.OpLocalGet, Imm: wasmcodec.LocalImm{Local: 0}},
				{Opcode: wasmcodec.OpLocalGet, Imm: wasmcodec.LocalImm{Local: 1}},
				{Opcode: 0x6A}, // i32.add
			}),
		}},
		Exports: []wasmcodec.Export{{Name: "add", Idx: 0, Kind: wasmcodec.KindFunc}},
	}
	data := mustEncode(t, m)

	parsed, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(parsed.Code) != 1 {
		t.Fatalf("expected 1 code entry, got %d", len(parsed.Code))
	}
	body := &parsed.Code[0]
	if len(body.Locals) != 1 || body.Locals[0].Count != 1 || body.Locals[0].Type != wasmcodec.ValI32 {
		t.Errorf("unexpected locals: %+v", body.Locals)
	}
	instrs, err := body.Code.Decoded()
	if err != nil {
		t.Fatalf("Decoded: %v", err)
	}
	if len(instrs) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(instrs))
	}
	if instrs[2].Opcode != 0x6A {
		t.Errorf("expected i32.add, got opcode 0x%02x", instrs[2].Opcode)
	}

	ft := parsed.GetFuncType(0)
	if ft == nil {
		t.Fatal("expected resolvable function type")
	}
	if len(ft.Params) != 2 || len(ft.Results) != 1 {
		t.Errorf("unexpected signature: %+v", ft)
	}
}

func TestRoundTripGlobalAndElement(t *testing.T) {
	m := &wasmcodec.Module{
		Types: []wasmcodec.TypeDef{{Kind: wasmcodec.TypeDefKindFunc, Func: &wasmcodec.FuncType{}}},
		Funcs: []wasmcodec.TypeId{0},
		Code: []wasmcodec.FuncBody{{
			Code: exprLazy(nil),
		}},
		Tables: []wasmcodec.TableType{{
			ElemType: wasmcodec.RefType{HeapType: wasmcodec.HeapTypeFunc, Nullable: true},
			Limits:   wasmcodec.Limits{Min: 1},
		}},
		Globals: []wasmcodec.Global{{
			Type: wasmcodec.GlobalType{ValType: wasmcodec.ValI32, Mutable: false},
			Init: exprLazy([]wasmcodec.Instruction{
				{Opcode: wasmcodec.OpI32Const, Imm: wasmcodec.I32Imm{Value: 42}},
			}),
		}},
		Elements: []wasmcodec.Element{{
			Flags:    0,
			Table:    0,
			Offset:   exprLazy([]wasmcodec.Instruction{{Opcode: wasmcodec.OpI32Const, Imm: wasmcodec.I32Imm{Value: 0}}}),
			FuncIdxs: []wasmcodec.FuncId{0},
		}},
	}
	data := mustEncode(t, m)

	parsed, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(parsed.Globals) != 1 {
		t.Fatalf("expected 1 global, got %d", len(parsed.Globals))
	}
	ginit, err := parsed.Globals[0].Init.Decoded()
	if err != nil {
		t.Fatalf("global init Decoded: %v", err)
	}
	if len(ginit) != 1 {
		t.Fatalf("expected 1 instruction in global init, got %d", len(ginit))
	}
	imm, ok := ginit[0].Imm.(wasmcodec.I32Imm)
	if !ok || imm.Value != 42 {
		t.Errorf("unexpected global init: %+v", ginit[0])
	}

	if len(parsed.Elements) != 1 {
		t.Fatalf("expected 1 element segment, got %d", len(parsed.Elements))
	}
	if len(parsed.Elements[0].FuncIdxs) != 1 || parsed.Elements[0].FuncIdxs[0] != 0 {
		t.Errorf("unexpected element funcidxs: %+v", parsed.Elements[0].FuncIdxs)
	}
}

func TestRoundTripPassiveElementHasNoOffset(t *testing.T) {
	m := &wasmcodec.Module{
		Elements: []wasmcodec.Element{{
			Flags:    1, // passive
			FuncIdxs: []wasmcodec.FuncId{},
		}},
	}
	data := mustEncode(t, m)

	parsed, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(parsed.Elements) != 1 {
		t.Fatalf("expected 1 element segment, got %d", len(parsed.Elements))
	}
	if _, valid := parsed.Elements[0].Offset.Raw(); valid {
		t.Error("expected no offset bytes for a passive element segment")
	}
}

func TestDecodeMemory64RequiresFeatureFlag(t *testing.T) {
	m := &wasmcodec.Module{
		Memories: []wasmcodec.MemoryType{{Limits: wasmcodec.Limits{Min: 1, Memory64: true}}},
	}
	data := mustEncode(t, m)

	restricted := wasmcodec.Core20Features()
	if _, err := wasmcodec.DecodeModule(data, restricted); err == nil {
		t.Error("expected memory64 to be rejected under Core20Features")
	}

	if _, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures()); err != nil {
		t.Errorf("expected memory64 to decode under DefaultFeatures: %v", err)
	}
}

func TestDecodeIndexedRefTypeRejectedInFuncSignature(t *testing.T) {
	// A type section with a single function type whose param byte is
	// 0x64 (ref $t) is not representable as a bare ValueType and must
	// be rejected rather than silently desynchronizing the reader.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x01,             // type section id
		0x05,             // section size
		0x01,             // 1 type
		0x60,             // func
		0x01, 0x64, 0x00, // 1 param: 0x64 (ref $t, truncated), 0 results
	}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Error("expected an error decoding an indexed reference type in a func signature")
	}
}

func TestEncodeEmptySectionsOmitted(t *testing.T) {
	m := &wasmcodec.Module{}
	data := mustEncode(t, m)
	// magic + version only: no sections are emitted for a fully empty module.
	if len(data) != 8 {
		t.Errorf("expected 8-byte empty module, got %d bytes", len(data))
	}
}

func TestGetFuncTypeOutOfRange(t *testing.T) {
	m := &wasmcodec.Module{}
	if ft := m.GetFuncType(0); ft != nil {
		t.Errorf("expected nil for out-of-range func id, got %+v", ft)
	}
}

func TestEncodeUnderclosedBlockFailsWithMismatchedDepth(t *testing.T) {
	// [BlockStart(Empty), End, End]: the second End has no open scope
	// left to close once the first balances the block.
	unbalanced := []wasmcodec.Instruction{
		{Opcode: wasmcodec.OpBlock, Imm: wasmcodec.BlockImm{Type: wasmcodec.BlockType{Kind: wasmcodec.BlockTypeEmpty}}},
		{Opcode: wasmcodec.OpEnd},
		{Opcode: wasmcodec.OpEnd},
	}
	if _, err := wasmcodec.EncodeInstructions(unbalanced); err == nil {
		t.Fatal("expected mismatched block depth error")
	}

	balanced := []wasmcodec.Instruction{
		{Opcode: wasmcodec.OpBlock, Imm: wasmcodec.BlockImm{Type: wasmcodec.BlockType{Kind: wasmcodec.BlockTypeEmpty}}},
		{Opcode: wasmcodec.OpEnd},
	}
	data, err := wasmcodec.EncodeInstructions(balanced)
	if err != nil {
		t.Fatalf("EncodeInstructions: %v", err)
	}
	want := []byte{0x02, 0x40, 0x0B, 0x0B}
	if string(data) != string(want) {
		t.Errorf("got % x, want % x", data, want)
	}
}

func TestEncodeDanglingOpenBlockFailsWithMismatchedDepth(t *testing.T) {
	// A BlockStart with no matching End at all is under-balanced too.
	dangling := []wasmcodec.Instruction{
		{Opcode: wasmcodec.OpBlock, Imm: wasmcodec.BlockImm{Type: wasmcodec.BlockType{Kind: wasmcodec.BlockTypeEmpty}}},
	}
	if _, err := wasmcodec.EncodeInstructions(dangling); err == nil {
		t.Fatal("expected mismatched block depth error for a dangling open block")
	}
}

func TestStrictRoundTripTypeSection(t *testing.T) {
	// A type section holding a single () -> () function type: the
	// input uses minimal LEB128 throughout, so re-encoding reproduces
	// it byte for byte.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	}
	m, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(m.Types) != 1 {
		t.Fatalf("expected 1 type, got %d", len(m.Types))
	}
	ft := m.Types[0].Func
	if ft == nil || len(ft.Params) != 0 || len(ft.Results) != 0 {
		t.Fatalf("expected an empty function type, got %+v", m.Types[0])
	}
	got := mustEncode(t, m)
	if string(got) != string(data) {
		t.Errorf("strict roundtrip broken:\n got % x\nwant % x", got, data)
	}
}

func TestNonMinimalSectionSizeTolerated(t *testing.T) {
	// The same module with its section size spelled as an overlong
	// two-byte LEB128 (0x84 0x00 for 4). Decoding succeeds and the
	// re-encoded form shrinks back to the minimal encoding.
	overlong := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x84, 0x00, 0x01, 0x60, 0x00, 0x00,
	}
	m, err := wasmcodec.DecodeModule(overlong, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	minimal := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	}
	got := mustEncode(t, m)
	if string(got) != string(minimal) {
		t.Errorf("got % x, want % x", got, minimal)
	}
}

func TestTagSectionOrderedBetweenMemoryAndGlobal(t *testing.T) {
	m := &wasmcodec.Module{
		Types:    []wasmcodec.TypeDef{{Kind: wasmcodec.TypeDefKindFunc, Func: &wasmcodec.FuncType{}}},
		Memories: []wasmcodec.MemoryType{{Limits: wasmcodec.Limits{Min: 1}}},
		Globals: []wasmcodec.Global{{
			Type: wasmcodec.GlobalType{ValType: wasmcodec.ValI32},
			Init: exprLazy([]wasmcodec.Instruction{
				{Opcode: wasmcodec.OpI32Const, Imm: wasmcodec.I32Imm{Value: 0}},
			}),
		}},
		Tags: []wasmcodec.TagType{{Attribute: 0, Type: 0}},
	}
	data := mustEncode(t, m)

	// The encoder must place the tag section where the decoder's
	// ordering check expects it, or its own output would be rejected.
	parsed, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule of own output: %v", err)
	}
	if len(parsed.Tags) != 1 || len(parsed.Globals) != 1 {
		t.Errorf("lost sections in roundtrip: %d tags, %d globals", len(parsed.Tags), len(parsed.Globals))
	}
}

func TestCustomSectionPositionPreserved(t *testing.T) {
	// One custom section before the type section, one after it. Both
	// positions must survive a decode/encode cycle byte for byte.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x01, 'a', 0xAA, 0xBB, // custom "a"
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section
		0x00, 0x03, 0x01, 'b', 0xCC, // custom "b"
	}
	m, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(m.Customs) != 2 {
		t.Fatalf("expected 2 custom sections, got %d", len(m.Customs))
	}
	if m.Customs[0].After != 0 || m.Customs[1].After != wasmcodec.SectionType {
		t.Errorf("unexpected anchors: %d, %d", m.Customs[0].After, m.Customs[1].After)
	}
	got := mustEncode(t, m)
	if string(got) != string(data) {
		t.Errorf("custom positions lost:\n got % x\nwant % x", got, data)
	}
}

func TestDuplicateCustomSectionNamesPermitted(t *testing.T) {
	m := &wasmcodec.Module{
		Customs: []wasmcodec.CustomSection{
			{Name: "meta", Data: []byte{1}},
			{Name: "meta", Data: []byte{2}},
		},
	}
	data := mustEncode(t, m)
	parsed, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(parsed.Customs) != 2 {
		t.Fatalf("expected 2 custom sections, got %d", len(parsed.Customs))
	}
	if parsed.Customs[0].Data[0] != 1 || parsed.Customs[1].Data[0] != 2 {
		t.Errorf("custom sections reordered: %+v", parsed.Customs)
	}
}

func TestDecodeSectionOutOfOrderRejected(t *testing.T) {
	// A function section appearing before the type section violates
	// the canonical ordering.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x03, 0x02, 0x01, 0x00, // function section
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section
	}
	if _, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures()); err == nil {
		t.Error("expected an out-of-order section error")
	}
}

func TestDecodeErrorPathDescendsFromSection(t *testing.T) {
	// A global section whose initializer opens with an unknown opcode:
	// the error path must start at the section frame and descend
	// through the entry index to the failing instruction.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x06, 0x04, // global section, 4 bytes
		0x01,       // one global
		0x7F, 0x00, // i32, immutable
		0xF0, // unknown opcode where the init expression starts
	}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Fatal("expected a decode error for the corrupted initializer")
	}
	var ce *codecerr.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *codecerr.Error, got %T", err)
	}
	want := []string{"section[6]", "global[0]", "instr[0]"}
	if len(ce.Path) != len(want) {
		t.Fatalf("got path %v, want %v", ce.Path, want)
	}
	for i := range want {
		if ce.Path[i] != want[i] {
			t.Fatalf("got path %v, want %v", ce.Path, want)
		}
	}
}

func TestDecodeRejectsInvalidMutabilityByte(t *testing.T) {
	m := &wasmcodec.Module{
		Globals: []wasmcodec.Global{{
			Type: wasmcodec.GlobalType{ValType: wasmcodec.ValI32},
			Init: exprLazy([]wasmcodec.Instruction{
				{Opcode: wasmcodec.OpI32Const, Imm: wasmcodec.I32Imm{Value: 0}},
			}),
		}},
	}
	data := mustEncode(t, m)
	// global section body: count, valtype, mutability; flip the
	// mutability byte (right after 0x7F) to an out-of-range value.
	for i := range data {
		if data[i] == byte(wasmcodec.ValI32) {
			data[i+1] = 0x02
			break
		}
	}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Fatal("expected an invalid boolean byte error")
	}
	var ce *codecerr.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *codecerr.Error, got %T", err)
	}
	if ce.Kind != codecerr.KindInvalidBool {
		t.Errorf("got kind %q, want invalid boolean byte", ce.Kind)
	}
}

func TestDecodeTruncatedSectionReportsUnexpectedEnd(t *testing.T) {
	// A type section that declares 16 payload bytes but ends after the
	// size field: the terminal cause is unexpected end of input, not a
	// generic I/O failure.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x10,
	}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Fatal("expected a decode error for the truncated section")
	}
	var ce *codecerr.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *codecerr.Error, got %T", err)
	}
	if ce.Kind != codecerr.KindUnexpectedEnd {
		t.Errorf("got kind %q, want unexpected end of input", ce.Kind)
	}
	if len(ce.Path) == 0 || ce.Path[0] != "section[1]" {
		t.Errorf("expected a section[1] path frame, got %v", ce.Path)
	}
}

func TestDecodeInvalidUTF8NameReported(t *testing.T) {
	// A custom section whose name bytes are not valid UTF-8.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x00, 0x03, 0x02, 0xFF, 0xFE,
	}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Fatal("expected a decode error for the malformed name")
	}
	var ce *codecerr.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *codecerr.Error, got %T", err)
	}
	if ce.Kind != codecerr.KindInvalidUTF8 {
		t.Errorf("got kind %q, want invalid UTF-8", ce.Kind)
	}
}

func TestDecodeOversizedLEBReportsOutOfRange(t *testing.T) {
	// A section size spelled with six LEB128 groups, one more than a
	// u32 allows, overflows the u32 width.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x0F,
	}
	_, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err == nil {
		t.Fatal("expected a decode error for the oversized length")
	}
	var ce *codecerr.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *codecerr.Error, got %T", err)
	}
	if ce.Kind != codecerr.KindIntegerOutOfRange {
		t.Errorf("got kind %q, want integer out of range", ce.Kind)
	}
}
