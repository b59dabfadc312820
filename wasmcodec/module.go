package wasmcodec

// Module is the decoded skeleton of a WebAssembly binary module. Code,
// global initializers, element-segment offsets/expressions, and data-
// segment offsets are kept as Lazy containers holding their raw bytes.
// DecodeModule does not parse function-body instructions, so a caller
// that only inspects the type or import section pays nothing for
// parsing function bodies it never looks at. Global initializers and
// segment offsets/expressions are scanned instruction by instruction to
// find their end, so a malformed one fails DecodeModule, but the
// decoded instructions are not kept.
type Module struct {
	Types     []TypeDef
	Imports   []Import
	Funcs     []TypeId
	Tables    []TableType
	Memories  []MemoryType
	Globals   []Global
	Exports   []Export
	Start     *FuncId
	Elements  []Element
	Code      []FuncBody
	Data      []DataSegment
	DataCount *uint32
	Tags      []TagType
	Customs   []CustomSection
}

// Import is an imported function, table, memory, global, or tag.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes what an import binds to. Kind selects which of
// Table/Memory/Global/Tag is populated; a function import carries only
// a TypeIdx.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	Tag     *TagType
	TypeIdx TypeId
	Kind    byte
}

// Global is a module-defined global variable.
type Global struct {
	Type GlobalType
	Init Lazy[[]Instruction]
}

// Export names a function, table, memory, global, or tag for other modules.
type Export struct {
	Name string
	Idx  uint32
	Kind byte
}

// Element is an element segment. Flags select its shape per the binary
// grammar (active/passive/declarative, explicit table index or not,
// funcidx vector or full expression vector).
type Element struct {
	RefType  *RefType
	Offset   Lazy[[]Instruction]
	FuncIdxs []FuncId
	Exprs    []Lazy[[]Instruction]
	Flags    uint32
	Table    TableId
	ElemKind byte
}

// FuncBody is a function's local declarations plus its instruction stream.
type FuncBody struct {
	Locals []LocalEntry
	Code   Lazy[[]Instruction]
}

// LocalEntry is a run-length-encoded group of same-typed locals.
type LocalEntry struct {
	Count uint32
	Type  ValueType
}

// DataSegment is a data segment. Flags select active/passive and
// whether an explicit memory index is present.
type DataSegment struct {
	Offset Lazy[[]Instruction]
	Init   []byte
	Flags  uint32
	Mem    MemId
}

// CustomSection is an opaque, name-tagged byte blob preserved verbatim.
// After records the id of the last non-custom section preceding it in
// the original byte stream (0 when it appeared before every known
// section), so re-encoding keeps each custom section at the position it
// was read from. Callers appending a name section or similar trailing
// metadata to a constructed module should set After to SectionData (or
// the last section their module actually emits).
type CustomSection struct {
	Name  string
	Data  []byte
	After byte
}

// segFlagExprs is the element-segment flag bit (0x4) selecting a
// vec(expr) init over a vec(funcidx) init; the low two bits of an
// element segment's flags select its active/passive/declarative shape
// and are decoded directly as a 2-bit kind rather than named bits.
const segFlagExprs uint32 = 1 << 2

func decodeExprLazy(raw []byte, features Features) Lazy[[]Instruction] {
	return NewLazyRaw(raw,
		func(b []byte) ([]Instruction, error) { return DecodeInstructions(b, features) },
		EncodeInstructions,
	)
}

// NumImportedFuncs, NumImportedTables, NumImportedMemories,
// NumImportedGlobals, and NumImportedTags count imports of each kind,
// since the function/table/memory/global/tag index spaces place
// imports before module-defined entries of the same kind.
func (m *Module) NumImportedFuncs() int    { return m.countImports(KindFunc) }
func (m *Module) NumImportedTables() int   { return m.countImports(KindTable) }
func (m *Module) NumImportedMemories() int { return m.countImports(KindMemory) }
func (m *Module) NumImportedGlobals() int  { return m.countImports(KindGlobal) }
func (m *Module) NumImportedTags() int     { return m.countImports(KindTag) }

func (m *Module) countImports(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// NumTypes returns the size of the module's flat type index space.
func (m *Module) NumTypes() int { return len(m.Types) }

// GetFuncType resolves a FuncId to its signature, following a plain
// function type or the function-shorthand case of a sub type. Returns
// nil for an out-of-range index or a type index that does not name a
// function signature (e.g. a GC struct/array type).
func (m *Module) GetFuncType(id FuncId) *FuncType {
	imported := m.NumImportedFuncs()
	idx := int(id)
	var typeIdx TypeId
	if idx < imported {
		i := 0
		for _, imp := range m.Imports {
			if imp.Desc.Kind != KindFunc {
				continue
			}
			if i == idx {
				typeIdx = imp.Desc.TypeIdx
				break
			}
			i++
		}
	} else {
		localIdx := idx - imported
		if localIdx < 0 || localIdx >= len(m.Funcs) {
			return nil
		}
		typeIdx = m.Funcs[localIdx]
	}
	return m.getFuncTypeByIdx(typeIdx)
}

func (m *Module) getFuncTypeByIdx(idx TypeId) *FuncType {
	i := int(idx)
	if i < 0 || i >= len(m.Types) {
		return nil
	}
	def := m.Types[i]
	switch def.Kind {
	case TypeDefKindFunc:
		return def.Func
	case TypeDefKindSub:
		if def.Sub != nil && def.Sub.CompType.Kind == CompKindFunc {
			return def.Sub.CompType.Func
		}
	}
	return nil
}
