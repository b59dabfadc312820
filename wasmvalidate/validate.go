// Package wasmvalidate layers semantic well-formedness checks on top of
// a decoded module: cross-section index agreement, export name
// uniqueness, the start function's signature, and memory limit bounds.
// None of this runs during wasmcodec.DecodeModule itself; a grammar-
// valid module can still reference an out-of-range type or declare two
// exports with the same name, and callers that care must opt in here.
package wasmvalidate

import (
	"fmt"

	"github.com/go-wasm/codec/wasmcodec"
)

// MemoryMaxPages32 and MemoryMaxPages64 bound a memory's page count
// under 32-bit and 64-bit addressing respectively.
const (
	MemoryMaxPages32 uint64 = 65536
	MemoryMaxPages64 uint64 = 281474976710656
)

// Validate checks m for structural validity beyond what decoding alone
// enforces. It returns the first problem found; it does not attempt to
// collect every violation in one pass.
func Validate(m *wasmcodec.Module) error {
	checks := []func(*wasmcodec.Module) error{
		validateTypeIndices,
		validateFunctionIndices,
		validateTableIndices,
		validateMemoryIndices,
		validateGlobalIndices,
		validateTagIndices,
		validateExports,
		validateStart,
		validateDataCount,
		validateCodeCount,
		validateMemoryLimits,
		validateTableLimits,
	}
	for _, check := range checks {
		if err := check(m); err != nil {
			return err
		}
	}
	return nil
}

// DecodeValidate decodes data and validates the result in one step.
func DecodeValidate(data []byte, features wasmcodec.Features) (*wasmcodec.Module, error) {
	m, err := wasmcodec.DecodeModule(data, features)
	if err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func validateTypeIndices(m *wasmcodec.Module) error {
	numTypes := uint32(m.NumTypes())
	if numTypes == 0 {
		if len(m.Funcs) > 0 {
			return fmt.Errorf("function references type but no types defined")
		}
		return nil
	}
	for i, typeIdx := range m.Funcs {
		if uint32(typeIdx) >= numTypes {
			return fmt.Errorf("function %d references invalid type index %d (max %d)", i, typeIdx, numTypes-1)
		}
	}
	for i, imp := range m.Imports {
		if imp.Desc.Kind == wasmcodec.KindFunc && uint32(imp.Desc.TypeIdx) >= numTypes {
			return fmt.Errorf("import %d (%s.%s) references invalid type index %d", i, imp.Module, imp.Name, imp.Desc.TypeIdx)
		}
		if imp.Desc.Kind == wasmcodec.KindTag && imp.Desc.Tag != nil && uint32(imp.Desc.Tag.Type) >= numTypes {
			return fmt.Errorf("import %d (%s.%s) tag references invalid type index %d", i, imp.Module, imp.Name, imp.Desc.Tag.Type)
		}
	}
	for i, tag := range m.Tags {
		if uint32(tag.Type) >= numTypes {
			return fmt.Errorf("tag %d references invalid type index %d", i, tag.Type)
		}
	}
	return nil
}

func validateFunctionIndices(m *wasmcodec.Module) error {
	numFuncs := uint32(m.NumImportedFuncs() + len(m.Funcs))
	if m.Start != nil && uint32(*m.Start) >= numFuncs {
		return fmt.Errorf("start function index %d exceeds function count %d", *m.Start, numFuncs)
	}
	for i, elem := range m.Elements {
		for j, funcIdx := range elem.FuncIdxs {
			if uint32(funcIdx) >= numFuncs {
				return fmt.Errorf("element %d, entry %d references invalid function index %d", i, j, funcIdx)
			}
		}
	}
	for i, exp := range m.Exports {
		if exp.Kind == wasmcodec.KindFunc && exp.Idx >= numFuncs {
			return fmt.Errorf("export %d (%s) references invalid function index %d", i, exp.Name, exp.Idx)
		}
	}
	return nil
}

func validateTableIndices(m *wasmcodec.Module) error {
	numTables := uint32(m.NumImportedTables() + len(m.Tables))
	for i, elem := range m.Elements {
		isPassive := elem.Flags&0x3 == 1 || elem.Flags&0x3 == 3
		if !isPassive && uint32(elem.Table) >= numTables {
			return fmt.Errorf("element %d references invalid table index %d", i, elem.Table)
		}
	}
	for i, exp := range m.Exports {
		if exp.Kind == wasmcodec.KindTable && exp.Idx >= numTables {
			return fmt.Errorf("export %d (%s) references invalid table index %d", i, exp.Name, exp.Idx)
		}
	}
	return nil
}

func validateMemoryIndices(m *wasmcodec.Module) error {
	numMemories := uint32(m.NumImportedMemories() + len(m.Memories))
	for i, data := range m.Data {
		if data.Flags != 1 && uint32(data.Mem) >= numMemories {
			return fmt.Errorf("data segment %d references invalid memory index %d", i, data.Mem)
		}
	}
	for i, exp := range m.Exports {
		if exp.Kind == wasmcodec.KindMemory && exp.Idx >= numMemories {
			return fmt.Errorf("export %d (%s) references invalid memory index %d", i, exp.Name, exp.Idx)
		}
	}
	return nil
}

func validateGlobalIndices(m *wasmcodec.Module) error {
	numGlobals := uint32(m.NumImportedGlobals() + len(m.Globals))
	for i, exp := range m.Exports {
		if exp.Kind == wasmcodec.KindGlobal && exp.Idx >= numGlobals {
			return fmt.Errorf("export %d (%s) references invalid global index %d", i, exp.Name, exp.Idx)
		}
	}
	return nil
}

func validateTagIndices(m *wasmcodec.Module) error {
	numTags := uint32(m.NumImportedTags() + len(m.Tags))
	for i, exp := range m.Exports {
		if exp.Kind == wasmcodec.KindTag && exp.Idx >= numTags {
			return fmt.Errorf("export %d (%s) references invalid tag index %d", i, exp.Name, exp.Idx)
		}
	}
	return nil
}

func validateExports(m *wasmcodec.Module) error {
	seen := make(map[string]bool, len(m.Exports))
	for i, exp := range m.Exports {
		if seen[exp.Name] {
			return fmt.Errorf("duplicate export name %q at index %d", exp.Name, i)
		}
		seen[exp.Name] = true
	}
	return nil
}

func validateStart(m *wasmcodec.Module) error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return fmt.Errorf("start function %d has no type", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function must have signature [] -> [], got [%d params] -> [%d results]",
			len(ft.Params), len(ft.Results))
	}
	return nil
}

func validateDataCount(m *wasmcodec.Module) error {
	if m.DataCount != nil && *m.DataCount != uint32(len(m.Data)) {
		return fmt.Errorf("data count section declares %d segments, but data section has %d",
			*m.DataCount, len(m.Data))
	}
	return nil
}

func validateCodeCount(m *wasmcodec.Module) error {
	if len(m.Code) > 0 && len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("code section has %d entries but function section has %d", len(m.Code), len(m.Funcs))
	}
	return nil
}

func validateMemoryLimits(m *wasmcodec.Module) error {
	for i, imp := range m.Imports {
		if imp.Desc.Kind == wasmcodec.KindMemory && imp.Desc.Memory != nil {
			if err := validateMemoryType(imp.Desc.Memory, i, true); err != nil {
				return err
			}
		}
	}
	for i := range m.Memories {
		if err := validateMemoryType(&m.Memories[i], i, false); err != nil {
			return err
		}
	}
	return nil
}

func validateMemoryType(mt *wasmcodec.MemoryType, idx int, isImport bool) error {
	maxPages := MemoryMaxPages32
	if mt.Limits.Memory64 {
		maxPages = MemoryMaxPages64
	}
	prefix := "memory"
	if isImport {
		prefix = "imported memory"
	}
	if mt.Limits.Shared && mt.Limits.Max == nil {
		return fmt.Errorf("%s %d: shared memory must have maximum limit", prefix, idx)
	}
	if mt.Limits.Min > maxPages {
		return fmt.Errorf("%s %d: min pages %d exceeds maximum %d", prefix, idx, mt.Limits.Min, maxPages)
	}
	if mt.Limits.Max != nil && *mt.Limits.Max > maxPages {
		return fmt.Errorf("%s %d: max pages %d exceeds maximum %d", prefix, idx, *mt.Limits.Max, maxPages)
	}
	if mt.Limits.Max != nil && mt.Limits.Min > *mt.Limits.Max {
		return fmt.Errorf("%s %d: min pages %d exceeds declared max %d", prefix, idx, mt.Limits.Min, *mt.Limits.Max)
	}
	return nil
}

func validateTableLimits(m *wasmcodec.Module) error {
	for i := range m.Tables {
		l := &m.Tables[i].Limits
		if l.Max != nil && l.Min > *l.Max {
			return fmt.Errorf("table %d: min size %d exceeds declared max %d", i, l.Min, *l.Max)
		}
	}
	return nil
}
