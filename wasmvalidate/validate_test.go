package wasmvalidate_test

import (
	"testing"

	"github.com/go-wasm/codec/wasmcodec"
	"github.com/go-wasm/codec/wasmvalidate"
)

func TestValidateRejectsOutOfRangeTypeIndex(t *testing.T) {
	m := &wasmcodec.Module{
		Funcs: []wasmcodec.TypeId{5},
	}
	if err := wasmvalidate.Validate(m); err == nil {
		t.Error("expected validation error for out-of-range type index")
	}
}

func TestValidateAcceptsWellFormedModule(t *testing.T) {
	m := &wasmcodec.Module{
		Types: []wasmcodec.TypeDef{{Kind: wasmcodec.TypeDefKindFunc, Func: &wasmcodec.FuncType{}}},
		Funcs: []wasmcodec.TypeId{0},
		Memories: []wasmcodec.MemoryType{
			{Limits: wasmcodec.Limits{Min: 1, Max: func() *uint64 { v := uint64(4); return &v }()}},
		},
		Exports: []wasmcodec.Export{{Name: "f", Idx: 0, Kind: wasmcodec.KindFunc}},
	}
	if err := wasmvalidate.Validate(m); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateRejectsDuplicateExportNames(t *testing.T) {
	m := &wasmcodec.Module{
		Types: []wasmcodec.TypeDef{{Kind: wasmcodec.TypeDefKindFunc, Func: &wasmcodec.FuncType{}}},
		Funcs: []wasmcodec.TypeId{0, 0},
		Exports: []wasmcodec.Export{
			{Name: "f", Idx: 0, Kind: wasmcodec.KindFunc},
			{Name: "f", Idx: 1, Kind: wasmcodec.KindFunc},
		},
	}
	if err := wasmvalidate.Validate(m); err == nil {
		t.Error("expected validation error for duplicate export names")
	}
}

func TestValidateRejectsStartFunctionWithParams(t *testing.T) {
	start := wasmcodec.FuncId(0)
	m := &wasmcodec.Module{
		Types: []wasmcodec.TypeDef{{
			Kind: wasmcodec.TypeDefKindFunc,
			Func: &wasmcodec.FuncType{Params: []wasmcodec.ValueType{wasmcodec.ValI32}},
		}},
		Funcs: []wasmcodec.TypeId{0},
		Start: &start,
	}
	if err := wasmvalidate.Validate(m); err == nil {
		t.Error("expected validation error for a start function with parameters")
	}
}

func TestValidateRejectsMismatchedDataCount(t *testing.T) {
	count := uint32(3)
	m := &wasmcodec.Module{
		DataCount: &count,
		Data: []wasmcodec.DataSegment{
			{Flags: 1, Init: []byte{1}},
		},
	}
	if err := wasmvalidate.Validate(m); err == nil {
		t.Error("expected validation error for mismatched data count")
	}
}

func TestValidateRejectsSharedMemoryWithoutMax(t *testing.T) {
	m := &wasmcodec.Module{
		Memories: []wasmcodec.MemoryType{{Limits: wasmcodec.Limits{Min: 1, Shared: true}}},
	}
	if err := wasmvalidate.Validate(m); err == nil {
		t.Error("expected validation error for shared memory with no maximum")
	}
}

func TestValidateRejectsMemoryLimitsOverBound(t *testing.T) {
	m := &wasmcodec.Module{
		Memories: []wasmcodec.MemoryType{{Limits: wasmcodec.Limits{Min: wasmvalidate.MemoryMaxPages32 + 1}}},
	}
	if err := wasmvalidate.Validate(m); err == nil {
		t.Error("expected validation error for a memory min exceeding the 32-bit page bound")
	}
}

func TestValidatePassiveElementDoesNotRequireTable(t *testing.T) {
	m := &wasmcodec.Module{
		Elements: []wasmcodec.Element{{Flags: 1, FuncIdxs: []wasmcodec.FuncId{}}},
	}
	if err := wasmvalidate.Validate(m); err != nil {
		t.Errorf("expected a passive element with no table reference to validate, got %v", err)
	}
}
