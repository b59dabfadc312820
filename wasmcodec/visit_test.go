package wasmcodec_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-wasm/codec/wasmcodec"
)

// buildTestModuleBytes encodes a small module with a global
// initializer, an element offset, and a function body, then returns
// its bytes so tests can decode it back into a fully lazy form.
func buildTestModuleBytes(t *testing.T) []byte {
	t.Helper()
	m := &wasmcodec.Module{
		Types: []wasmcodec.TypeDef{{Kind: wasmcodec.TypeDefKindFunc, Func: &wasmcodec.FuncType{}}},
		Funcs: []wasmcodec.TypeId{0},
		Tables: []wasmcodec.TableType{{
			ElemType: wasmcodec.RefType{HeapType: wasmcodec.HeapTypeFunc, Nullable: true},
			Limits:   wasmcodec.Limits{Min: 1},
		}},
		Globals: []wasmcodec.Global{{
			Type: wasmcodec.GlobalType{ValType: wasmcodec.ValI32},
			Init: exprLazy([]wasmcodec.Instruction{
				{Opcode: wasmcodec.OpI32Const, Imm: wasmcodec.I32Imm{Value: 7}},
			}),
		}},
		Elements: []wasmcodec.Element{{
			Flags:    0,
			Offset:   exprLazy([]wasmcodec.Instruction{{Opcode: wasmcodec.OpI32Const, Imm: wasmcodec.I32Imm{Value: 0}}}),
			FuncIdxs: []wasmcodec.FuncId{0},
		}},
		Code: []wasmcodec.FuncBody{{
			Code: exprLazy([]wasmcodec.Instruction{{Opcode: wasmcodec.OpNop}}),
		}},
	}
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestVisitMutMaterializesLazySections(t *testing.T) {
	data := buildTestModuleBytes(t)
	m, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}

	pre, err := m.Encode()
	if err != nil {
		t.Fatalf("pre-visit Encode: %v", err)
	}

	if err := wasmcodec.VisitMut(m, func(any) error { return nil }); err != nil {
		t.Fatalf("VisitMut: %v", err)
	}

	// Every lazy expression was forced into the decoded state.
	if _, valid := m.Globals[0].Init.Raw(); valid {
		t.Error("global init should be decoded after VisitMut")
	}
	if _, valid := m.Elements[0].Offset.Raw(); valid {
		t.Error("element offset should be decoded after VisitMut")
	}
	if _, valid := m.Code[0].Code.Raw(); valid {
		t.Error("function body should be decoded after VisitMut")
	}

	// A no-op mutating visit must not change the encoded bytes.
	post, err := m.Encode()
	if err != nil {
		t.Fatalf("post-visit Encode: %v", err)
	}
	if !bytes.Equal(pre, post) {
		t.Errorf("encode changed after a no-op VisitMut:\n pre % x\npost % x", pre, post)
	}
}

func TestVisitLeavesRawBuffersAuthoritative(t *testing.T) {
	data := buildTestModuleBytes(t)
	m, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if err := wasmcodec.Visit(m, func(any) error { return nil }); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	// A read-only visit decodes but keeps the raw bytes valid, so a
	// later encode still takes the verbatim path.
	if _, valid := m.Code[0].Code.Raw(); !valid {
		t.Error("read-only Visit must not invalidate raw buffers")
	}
}

func TestVisitCallbackErrorPropagatesVerbatim(t *testing.T) {
	data := buildTestModuleBytes(t)
	m, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}

	sentinel := errors.New("stop here")
	err = wasmcodec.Visit(m, func(n any) error {
		if _, ok := n.(*wasmcodec.Export); ok {
			return sentinel
		}
		if _, ok := n.(*wasmcodec.Global); ok {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected the callback's own error, got %v", err)
	}
	var lde *wasmcodec.LazyDecodeError
	if errors.As(err, &lde) {
		t.Error("a callback error must not be wrapped as a lazy-decode error")
	}
}

func TestVisitMutSurfacesLazyDecodeError(t *testing.T) {
	m := &wasmcodec.Module{
		Code: []wasmcodec.FuncBody{{
			Code: instrLazyRaw([]byte{0xF0}), // malformed body
		}},
	}
	err := wasmcodec.VisitMut(m, func(any) error { return nil })
	if err == nil {
		t.Fatal("expected a lazy decode error")
	}
	var lde *wasmcodec.LazyDecodeError
	if !errors.As(err, &lde) {
		t.Fatalf("expected *LazyDecodeError, got %T: %v", err, err)
	}
	if lde.Path == "" {
		t.Error("lazy decode error should name the node that failed")
	}
}

func TestVisitOrderIsDeterministic(t *testing.T) {
	data := buildTestModuleBytes(t)
	collect := func() []string {
		m, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
		if err != nil {
			t.Fatalf("DecodeModule: %v", err)
		}
		var kinds []string
		if err := wasmcodec.Visit(m, func(n any) error {
			switch n.(type) {
			case *wasmcodec.Module:
				kinds = append(kinds, "module")
			case *wasmcodec.TypeDef:
				kinds = append(kinds, "type")
			case *wasmcodec.TableType:
				kinds = append(kinds, "table")
			case *wasmcodec.Global:
				kinds = append(kinds, "global")
			case *wasmcodec.Element:
				kinds = append(kinds, "element")
			case *wasmcodec.FuncBody:
				kinds = append(kinds, "body")
			case *wasmcodec.Instruction:
				kinds = append(kinds, "instr")
			}
			return nil
		}); err != nil {
			t.Fatalf("Visit: %v", err)
		}
		return kinds
	}

	first := collect()
	second := collect()
	if len(first) == 0 {
		t.Fatal("visit reached no nodes")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("traversal order diverged at %d: %q vs %q", i, first[i], second[i])
		}
	}
}
