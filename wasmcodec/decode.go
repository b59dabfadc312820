package wasmcodec

import (
	"bytes"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/go-wasm/codec/codecerr"
	"github.com/go-wasm/codec/wasmcodec/internal/binary"
)

// ErrInvalidMagic is returned when the first four bytes are not "\0asm".
var ErrInvalidMagic = codecerr.New(codecerr.PhaseDecode, codecerr.KindUnsupportedVariant).
	Detail("invalid magic number").Build()

// ErrInvalidVersion is returned when the version field is not 1.
var ErrInvalidVersion = codecerr.New(codecerr.PhaseDecode, codecerr.KindUnsupportedVariant).
	Detail("unsupported binary version").Build()

// sectionOrder returns the canonical position of a section id in the
// module, or -1 for the custom section, which may appear anywhere and
// is exempt from ordering.
func sectionOrder(id byte) int {
	switch id {
	case SectionCustom:
		return -1
	case SectionType:
		return 0
	case SectionImport:
		return 1
	case SectionFunction:
		return 2
	case SectionTable:
		return 3
	case SectionMemory:
		return 4
	case SectionTag:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return 99
	}
}

func readU32LE(r *binary.Reader) (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// DecodeModule parses a complete WebAssembly binary module. Section
// bytes are sliced out and parsed with a fresh sub-reader each, so a
// malformed section cannot desynchronize the reader position for
// sections that follow it; every parser is expected to consume exactly
// its slice.
func DecodeModule(data []byte, features Features) (*Module, error) {
	r := binary.NewReader(bytes.NewReader(data))

	magic, err := readU32LE(r)
	if err != nil {
		return nil, terminalDecodeErr(err, []string{"header"})
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := readU32LE(r)
	if err != nil {
		return nil, terminalDecodeErr(err, []string{"header"})
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	lastOrder := -1
	lastNonCustom := byte(0)

	for {
		id, err := r.ReadByte()
		if err != nil {
			break // clean EOF: end of module
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, terminalDecodeErr(err, []string{sectionFrame(id)})
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, terminalDecodeErr(err, []string{sectionFrame(id)})
		}

		order := sectionOrder(id)
		if order != -1 {
			if order <= lastOrder {
				return nil, codecerr.New(codecerr.PhaseDecode, codecerr.KindUnsupportedVariant).
					Path(sectionFrame(id)).Detail("section out of canonical order").Build()
			}
			lastOrder = order
		}

		if id != SectionCustom {
			lastNonCustom = id
		}

		sr := binary.NewReader(bytes.NewReader(body))
		switch id {
		case SectionCustom:
			cs, err := decodeCustomSection(sr)
			if err != nil {
				return nil, wrapSection(err, id)
			}
			cs.After = lastNonCustom
			m.Customs = append(m.Customs, cs)
		case SectionType:
			m.Types, err = decodeTypeSection(sr)
		case SectionImport:
			m.Imports, err = decodeImportSection(sr, features)
		case SectionFunction:
			m.Funcs, err = decodeFunctionSection(sr)
		case SectionTable:
			m.Tables, err = decodeTableSection(sr, features)
		case SectionMemory:
			m.Memories, err = decodeMemorySection(sr, features)
		case SectionGlobal:
			m.Globals, err = decodeGlobalSection(sr, features)
		case SectionExport:
			m.Exports, err = decodeExportSection(sr)
		case SectionStart:
			var f FuncId
			f, err = decodeStartSection(sr)
			m.Start = &f
		case SectionElement:
			m.Elements, err = decodeElementSection(sr, features)
		case SectionCode:
			m.Code, err = decodeCodeSection(sr, features)
		case SectionData:
			m.Data, err = decodeDataSection(sr, features)
		case SectionDataCount:
			var n uint32
			n, err = sr.ReadU32()
			m.DataCount = &n
		case SectionTag:
			m.Tags, err = decodeTagSection(sr)
		default:
			err = codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(id))
		}
		if err != nil {
			wrapped := wrapSection(err, id)
			log().Debug("section decode failed", zap.Uint8("section", id), zap.Error(wrapped))
			return nil, wrapped
		}
	}

	return m, nil
}

func sectionFrame(id byte) string {
	return "section[" + itoa(int(id)) + "]"
}

func wrapSection(err error, id byte) error {
	if ce, ok := err.(*codecerr.Error); ok {
		return ce.WithPath(sectionFrame(id))
	}
	return terminalDecodeErr(err, []string{sectionFrame(id)})
}

// wrapEntry prepends a "field[index]" frame onto an error bubbling out
// of one vector entry, so a failure names which entry was being
// decoded on the way down to the primitive that caused it.
func wrapEntry(err error, field string, i int) error {
	frame := field + "[" + itoa(i) + "]"
	if ce, ok := err.(*codecerr.Error); ok {
		return ce.WithPath(frame)
	}
	return terminalDecodeErr(err, []string{frame})
}

// terminalDecodeErr classifies a raw reader error into its terminal
// cause: a truncated read is an unexpected end of input, a malformed
// name is invalid UTF-8, and a LEB128 value past its width is an
// integer out of range. Only errors from an actual sink or source
// fall through to the I/O kind.
func terminalDecodeErr(err error, path []string) *codecerr.Error {
	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return codecerr.UnexpectedEnd(path)
	case binary.IsInvalidUTF8(err):
		return codecerr.InvalidUTF8(path)
	case errors.Is(err, binary.ErrOverflow):
		return codecerr.IntegerOutOfRange(path, err.Error())
	default:
		return codecerr.IO(codecerr.PhaseDecode, path, err)
	}
}

func decodeCustomSection(r *binary.Reader) (CustomSection, error) {
	name, err := r.ReadName()
	if err != nil {
		return CustomSection{}, err
	}
	data, err := r.ReadRemaining()
	if err != nil {
		return CustomSection{}, err
	}
	return CustomSection{Name: name, Data: data}, nil
}

func decodeTypeSection(r *binary.Reader) ([]TypeDef, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	var defs []TypeDef
	for i := uint32(0); i < count; i++ {
		d, err := decodeTypeDef(r)
		if err != nil {
			return nil, wrapEntry(err, "type", int(i))
		}
		if d.Kind == TypeDefKindRec {
			defs = append(defs, expandRecType(*d.Rec)...)
			continue
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// expandRecType flattens a recursive type group into the module's flat
// type index space, one TypeDef per member sub type.
func expandRecType(rec RecType) []TypeDef {
	out := make([]TypeDef, len(rec.Types))
	for i := range rec.Types {
		sub := rec.Types[i]
		out[i] = TypeDef{Kind: TypeDefKindSub, Sub: &sub}
	}
	return out
}

func decodeTypeDef(r *binary.Reader) (TypeDef, error) {
	b, err := r.ReadByte()
	if err != nil {
		return TypeDef{}, err
	}
	switch b {
	case recTypeByte:
		count, err := r.ReadU32()
		if err != nil {
			return TypeDef{}, err
		}
		subs := make([]SubType, count)
		for i := range subs {
			subs[i], err = decodeSubType(r)
			if err != nil {
				return TypeDef{}, err
			}
		}
		rec := RecType{Types: subs}
		return TypeDef{Kind: TypeDefKindRec, Rec: &rec}, nil
	case subTypeByte, subFinalTypeByte:
		sub, err := decodeSubTypeBody(r, b == subFinalTypeByte)
		if err != nil {
			return TypeDef{}, err
		}
		return TypeDef{Kind: TypeDefKindSub, Sub: &sub}, nil
	case funcTypeDiscriminant:
		ft, err := decodeFuncTypeBody(r)
		if err != nil {
			return TypeDef{}, err
		}
		return TypeDef{Kind: TypeDefKindFunc, Func: &ft}, nil
	case CompKindStruct, CompKindArray:
		ct, err := decodeCompTypeBody(r, b)
		if err != nil {
			return TypeDef{}, err
		}
		sub := SubType{CompType: ct, Final: true}
		return TypeDef{Kind: TypeDefKindSub, Sub: &sub}, nil
	default:
		return TypeDef{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(b))
	}
}

// decodeSubType reads one member of a rec group. Each member carries
// its own leading discriminant byte (sub, sub-final, or a bare
// composite shorthand), the same grammar as a standalone type entry
// minus the rec form itself.
func decodeSubType(r *binary.Reader) (SubType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return SubType{}, err
	}
	switch b {
	case subTypeByte, subFinalTypeByte:
		return decodeSubTypeBody(r, b == subFinalTypeByte)
	case funcTypeDiscriminant:
		ft, err := decodeFuncTypeBody(r)
		if err != nil {
			return SubType{}, err
		}
		return SubType{CompType: CompType{Kind: CompKindFunc, Func: &ft}, Final: true}, nil
	case CompKindStruct, CompKindArray:
		ct, err := decodeCompTypeBody(r, b)
		if err != nil {
			return SubType{}, err
		}
		return SubType{CompType: ct, Final: true}, nil
	default:
		return SubType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(b))
	}
}

func decodeSubTypeBody(r *binary.Reader, final bool) (SubType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return SubType{}, err
	}
	parents := make([]TypeId, count)
	for i := range parents {
		v, err := r.ReadU32()
		if err != nil {
			return SubType{}, err
		}
		parents[i] = TypeId(v)
	}
	kb, err := r.ReadByte()
	if err != nil {
		return SubType{}, err
	}
	ct, err := decodeCompTypeBody(r, kb)
	if err != nil {
		return SubType{}, err
	}
	return SubType{CompType: ct, Parents: parents, Final: final}, nil
}

func decodeCompTypeBody(r *binary.Reader, kind byte) (CompType, error) {
	switch kind {
	case funcTypeDiscriminant:
		ft, err := decodeFuncTypeBody(r)
		if err != nil {
			return CompType{}, err
		}
		return CompType{Kind: kind, Func: &ft}, nil
	case CompKindStruct:
		count, err := r.ReadU32()
		if err != nil {
			return CompType{}, err
		}
		fields := make([]FieldType, count)
		for i := range fields {
			fields[i], err = decodeFieldType(r)
			if err != nil {
				return CompType{}, err
			}
		}
		st := StructType{Fields: fields}
		return CompType{Kind: kind, Struct: &st}, nil
	case CompKindArray:
		f, err := decodeFieldType(r)
		if err != nil {
			return CompType{}, err
		}
		at := ArrayType{Element: f}
		return CompType{Kind: kind, Array: &at}, nil
	default:
		return CompType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(kind))
	}
}

func decodeFieldType(r *binary.Reader) (FieldType, error) {
	st, err := decodeStorageType(r)
	if err != nil {
		return FieldType{}, err
	}
	mut, err := decodeMutability(r)
	if err != nil {
		return FieldType{}, err
	}
	return FieldType{Type: st, Mutable: mut}, nil
}

// decodeMutability reads the one-byte mutability flag shared by global
// types and GC field types. It is a strict boolean: any byte other
// than 0 or 1 is an error rather than being collapsed to false.
func decodeMutability(r *binary.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case fieldImmutableByte:
		return false, nil
	case fieldMutableByte:
		return true, nil
	default:
		return false, codecerr.InvalidBool(nil, b)
	}
}

func decodeStorageType(r *binary.Reader) (StorageType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return StorageType{}, err
	}
	if b == PackedI8 || b == PackedI16 {
		return StorageType{Kind: StorageKindPacked, Packed: b}, nil
	}
	chained := &chainedByteReader{first: b, rest: r}
	vt, err := decodeValueType(binary.NewReader(chained))
	if err != nil {
		return StorageType{}, err
	}
	return StorageType{Kind: StorageKindVal, ValType: vt}, nil
}

// decodeValueType reads one value type for contexts that carry a bare
// ValueType (function parameters/results, locals, select immediates):
// a numeric, vector, or abbreviated reference byte. The two generic
// indexed reference forms (ref null $t / ref $t) are rejected here
// rather than silently losing their heap index, since ValueType alone
// cannot represent them; table element types and global types carry a
// full RefType instead and use decodeRefType for those. GC struct/array
// field storage types also go through this function, so the indexed
// forms are rejected there too.
func decodeValueType(r *binary.Reader) (ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b == byte(ValRefNull) || b == byte(ValRef) {
		return 0, codecerr.New(codecerr.PhaseDecode, codecerr.KindUnsupportedVariant).
			Detail("indexed reference type not supported outside table/global type position").Build()
	}
	if !isValueTypeByte(b) {
		return 0, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(b))
	}
	return ValueType(b), nil
}

func encodeValueType(w *binary.Writer, vt ValueType) { w.WriteByte(byte(vt)) }

func decodeFuncTypeBody(r *binary.Reader) (FuncType, error) {
	pc, err := r.ReadU32()
	if err != nil {
		return FuncType{}, err
	}
	params := make([]ValueType, pc)
	for i := range params {
		params[i], err = decodeValueType(r)
		if err != nil {
			return FuncType{}, err
		}
	}
	rc, err := r.ReadU32()
	if err != nil {
		return FuncType{}, err
	}
	results := make([]ValueType, rc)
	for i := range results {
		results[i], err = decodeValueType(r)
		if err != nil {
			return FuncType{}, err
		}
	}
	return FuncType{Params: params, Results: results}, nil
}

func decodeImportSection(r *binary.Reader, features Features) ([]Import, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	imports := make([]Import, count)
	for i := range imports {
		imp, err := decodeImport(r, features)
		if err != nil {
			return nil, wrapEntry(err, "import", i)
		}
		imports[i] = imp
	}
	return imports, nil
}

func decodeImport(r *binary.Reader, features Features) (Import, error) {
	mod, err := r.ReadName()
	if err != nil {
		return Import{}, err
	}
	name, err := r.ReadName()
	if err != nil {
		return Import{}, err
	}
	kind, err := r.ReadByte()
	if err != nil {
		return Import{}, err
	}
	desc := ImportDesc{Kind: kind}
	switch kind {
	case KindFunc:
		v, err := r.ReadU32()
		if err != nil {
			return Import{}, err
		}
		desc.TypeIdx = TypeId(v)
	case KindTable:
		t, err := decodeTableType(r)
		if err != nil {
			return Import{}, err
		}
		desc.Table = &t
	case KindMemory:
		mt, err := decodeMemoryType(r, features)
		if err != nil {
			return Import{}, err
		}
		desc.Memory = &mt
	case KindGlobal:
		gt, err := decodeGlobalType(r)
		if err != nil {
			return Import{}, err
		}
		desc.Global = &gt
	case KindTag:
		tt, err := decodeTagType(r)
		if err != nil {
			return Import{}, err
		}
		desc.Tag = &tt
	default:
		return Import{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(kind))
	}
	return Import{Module: mod, Name: name, Desc: desc}, nil
}

func decodeFunctionSection(r *binary.Reader) ([]TypeId, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]TypeId, count)
	for i := range out {
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		out[i] = TypeId(v)
	}
	return out, nil
}

func decodeRefType(r *binary.Reader) (RefType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return RefType{}, err
	}
	switch b {
	case refTypeFuncByte:
		return RefType{HeapType: HeapTypeFunc, Nullable: true}, nil
	case refTypeExternByte:
		return RefType{HeapType: HeapTypeExtern, Nullable: true}, nil
	case refTypeExnByte:
		return RefType{HeapType: HeapTypeException, Nullable: true}, nil
	case byte(ValRefNull), byte(ValRef):
		ht, err := r.ReadS33()
		if err != nil {
			return RefType{}, err
		}
		return RefType{HeapType: ht, Nullable: b == byte(ValRefNull)}, nil
	case byte(ValNullFuncRef):
		return RefType{HeapType: HeapTypeNoFunc, Nullable: true}, nil
	case byte(ValNullExternRef):
		return RefType{HeapType: HeapTypeNoExtern, Nullable: true}, nil
	case byte(ValNullRef):
		return RefType{HeapType: HeapTypeNone, Nullable: true}, nil
	case byte(ValEqRef):
		return RefType{HeapType: HeapTypeEq, Nullable: true}, nil
	case byte(ValI31Ref):
		return RefType{HeapType: HeapTypeI31, Nullable: true}, nil
	case byte(ValStructRef):
		return RefType{HeapType: HeapTypeStruct, Nullable: true}, nil
	case byte(ValArrayRef):
		return RefType{HeapType: HeapTypeArray, Nullable: true}, nil
	case byte(ValAnyRef):
		return RefType{HeapType: HeapTypeAny, Nullable: true}, nil
	default:
		return RefType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(b))
	}
}

// encodeRefType writes a reference type, preferring the single-byte
// abbreviations for nullable abstract heap types so that decoded
// shorthand forms round-trip to their original bytes.
func encodeRefType(w *binary.Writer, rt RefType) {
	if rt.Nullable {
		if b, ok := refTypeShorthand(rt.HeapType); ok {
			w.WriteByte(b)
			return
		}
		w.WriteByte(byte(ValRefNull))
	} else {
		w.WriteByte(byte(ValRef))
	}
	w.WriteS33(rt.HeapType)
}

func refTypeShorthand(heapType int64) (byte, bool) {
	switch heapType {
	case HeapTypeFunc:
		return refTypeFuncByte, true
	case HeapTypeExtern:
		return refTypeExternByte, true
	case HeapTypeException:
		return refTypeExnByte, true
	case HeapTypeAny:
		return byte(ValAnyRef), true
	case HeapTypeEq:
		return byte(ValEqRef), true
	case HeapTypeI31:
		return byte(ValI31Ref), true
	case HeapTypeStruct:
		return byte(ValStructRef), true
	case HeapTypeArray:
		return byte(ValArrayRef), true
	case HeapTypeNone:
		return byte(ValNullRef), true
	case HeapTypeNoExtern:
		return byte(ValNullExternRef), true
	case HeapTypeNoFunc:
		return byte(ValNullFuncRef), true
	default:
		return 0, false
	}
}

// readLimits decodes the shared limits grammar common to tables and
// memories. The flag byte's low three bits select has-max, shared, and
// memory64; bit 3 additionally signals a following custom page size
// and is consumed by the memory-type decoder rather than here.
func readLimits(r *binary.Reader, flags uint32) (Limits, error) {
	min, err := r.ReadU64()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{
		Min:      min,
		Shared:   flags&limitsFlagShared != 0,
		Memory64: flags&limitsFlagMemory64 != 0,
	}
	if flags&limitsFlagHasMax != 0 {
		max, err := r.ReadU64()
		if err != nil {
			return Limits{}, err
		}
		l.Max = &max
	}
	return l, nil
}

func encodeLimits(w *binary.Writer, l Limits, extraFlags uint32) {
	flags := extraFlags
	if l.Max != nil {
		flags |= limitsFlagHasMax
	}
	if l.Shared {
		flags |= limitsFlagShared
	}
	if l.Memory64 {
		flags |= limitsFlagMemory64
	}
	w.WriteU32(flags)
	w.WriteU64(l.Min)
	if l.Max != nil {
		w.WriteU64(*l.Max)
	}
}

const memoryFlagCustomPageSize uint32 = 1 << 3

func decodeMemoryType(r *binary.Reader, features Features) (MemoryType, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return MemoryType{}, err
	}
	if flags&^(limitsFlagHasMax|limitsFlagShared|limitsFlagMemory64|memoryFlagCustomPageSize) != 0 {
		return MemoryType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, flags)
	}
	if flags&limitsFlagShared != 0 && !features.Threads {
		return MemoryType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, flags)
	}
	if flags&limitsFlagMemory64 != 0 && !features.Memory64 {
		return MemoryType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, flags)
	}
	if flags&memoryFlagCustomPageSize != 0 && !features.CustomPageSizes {
		return MemoryType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, flags)
	}
	limits, err := readLimits(r, flags)
	if err != nil {
		return MemoryType{}, err
	}
	mt := MemoryType{Limits: limits}
	if flags&memoryFlagCustomPageSize != 0 {
		log2, err := r.ReadU32()
		if err != nil {
			return MemoryType{}, err
		}
		ps, ok := NewPageSize(log2)
		if !ok {
			return MemoryType{}, codecerr.IntegerOutOfRange(nil, "page size log2 exceeds 64")
		}
		mt.PageSize = &ps
	}
	return mt, nil
}

func encodeMemoryType(w *binary.Writer, mt MemoryType) {
	extra := uint32(0)
	if mt.PageSize != nil {
		extra |= memoryFlagCustomPageSize
	}
	encodeLimits(w, mt.Limits, extra)
	if mt.PageSize != nil {
		w.WriteU32(mt.PageSize.Log2())
	}
}

func decodeTableType(r *binary.Reader) (TableType, error) {
	elem, err := decodeRefType(r)
	if err != nil {
		return TableType{}, err
	}
	flags, err := r.ReadU32()
	if err != nil {
		return TableType{}, err
	}
	limits, err := readLimits(r, flags)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elem, Limits: limits}, nil
}

func encodeTableType(w *binary.Writer, tt TableType) {
	encodeRefType(w, tt.ElemType)
	encodeLimits(w, tt.Limits, 0)
}

func decodeGlobalType(r *binary.Reader) (GlobalType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	gt := GlobalType{}
	if isValueTypeByte(b) && b != byte(ValRefNull) && b != byte(ValRef) {
		gt.ValType = ValueType(b)
	} else {
		chained := &chainedByteReader{first: b, rest: r}
		ref, err := decodeRefType(binary.NewReader(chained))
		if err != nil {
			return GlobalType{}, err
		}
		gt.Ref = &ref
	}
	mut, err := decodeMutability(r)
	if err != nil {
		return GlobalType{}, err
	}
	gt.Mutable = mut
	return gt, nil
}

func encodeGlobalType(w *binary.Writer, gt GlobalType) {
	if gt.Ref != nil {
		encodeRefType(w, *gt.Ref)
	} else {
		w.WriteByte(byte(gt.ValType))
	}
	if gt.Mutable {
		w.WriteByte(fieldMutableByte)
	} else {
		w.WriteByte(fieldImmutableByte)
	}
}

func decodeTagType(r *binary.Reader) (TagType, error) {
	attr, err := r.ReadByte()
	if err != nil {
		return TagType{}, err
	}
	if attr != tagAttributeException {
		return TagType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(attr))
	}
	idx, err := r.ReadU32()
	if err != nil {
		return TagType{}, err
	}
	return TagType{Attribute: attr, Type: TypeId(idx)}, nil
}

func decodeTableSection(r *binary.Reader, _ Features) ([]TableType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]TableType, count)
	for i := range out {
		out[i], err = decodeTableType(r)
		if err != nil {
			return nil, wrapEntry(err, "table", i)
		}
	}
	return out, nil
}

func decodeMemorySection(r *binary.Reader, features Features) ([]MemoryType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]MemoryType, count)
	for i := range out {
		out[i], err = decodeMemoryType(r, features)
		if err != nil {
			return nil, wrapEntry(err, "memory", i)
		}
	}
	return out, nil
}

func decodeGlobalSection(r *binary.Reader, features Features) ([]Global, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]Global, count)
	for i := range out {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return nil, wrapEntry(err, "global", i)
		}
		raw, err := scanExprRaw(r, features)
		if err != nil {
			return nil, wrapEntry(err, "global", i)
		}
		out[i] = Global{Type: gt, Init: decodeExprLazy(raw, features)}
	}
	return out, nil
}

func decodeExportSection(r *binary.Reader) ([]Export, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]Export, count)
	for i := range out {
		name, err := r.ReadName()
		if err != nil {
			return nil, wrapEntry(err, "export", i)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, wrapEntry(err, "export", i)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return nil, wrapEntry(err, "export", i)
		}
		out[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return out, nil
}

func decodeStartSection(r *binary.Reader) (FuncId, error) {
	v, err := r.ReadU32()
	return FuncId(v), err
}

func decodeTagSection(r *binary.Reader) ([]TagType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]TagType, count)
	for i := range out {
		out[i], err = decodeTagType(r)
		if err != nil {
			return nil, wrapEntry(err, "tag", i)
		}
	}
	return out, nil
}

// Element segment shapes are selected by a 2-bit kind (flags & 0x3):
// 0 active/table-0, 1 passive, 2 active/explicit-table, 3 declarative,
// plus an independent bit (0x4) choosing a vec(expr) init over a
// vec(funcidx) init.
const (
	elemKindActiveTable0   = 0
	elemKindPassive        = 1
	elemKindActiveExplicit = 2
	elemKindDeclarative    = 3
)

func decodeElementSection(r *binary.Reader, features Features) ([]Element, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]Element, count)
	for i := range out {
		el, err := decodeElement(r, features)
		if err != nil {
			return nil, wrapEntry(err, "element", i)
		}
		out[i] = el
	}
	return out, nil
}

func decodeElement(r *binary.Reader, features Features) (Element, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return Element{}, err
	}
	el := Element{Flags: flags}
	kind := flags & 0x3
	usesExprs := flags&segFlagExprs != 0
	active := kind == elemKindActiveTable0 || kind == elemKindActiveExplicit

	if active {
		if kind == elemKindActiveExplicit {
			idx, err := r.ReadU32()
			if err != nil {
				return Element{}, err
			}
			el.Table = TableId(idx)
		}
		raw, err := scanExprRaw(r, features)
		if err != nil {
			return Element{}, err
		}
		el.Offset = decodeExprLazy(raw, features)
	}

	if !usesExprs {
		if kind != elemKindActiveTable0 {
			kb, err := r.ReadByte()
			if err != nil {
				return Element{}, err
			}
			el.ElemKind = kb
		}
	} else {
		if kind != elemKindActiveTable0 {
			rt, err := decodeRefType(r)
			if err != nil {
				return Element{}, err
			}
			el.RefType = &rt
		}
	}

	n, err := r.ReadU32()
	if err != nil {
		return Element{}, err
	}
	if usesExprs {
		exprs := make([]Lazy[[]Instruction], n)
		for j := range exprs {
			raw, err := scanExprRaw(r, features)
			if err != nil {
				return Element{}, err
			}
			exprs[j] = decodeExprLazy(raw, features)
		}
		el.Exprs = exprs
	} else {
		idxs := make([]FuncId, n)
		for j := range idxs {
			v, err := r.ReadU32()
			if err != nil {
				return Element{}, err
			}
			idxs[j] = FuncId(v)
		}
		el.FuncIdxs = idxs
	}
	return el, nil
}

func decodeCodeSection(r *binary.Reader, features Features) ([]FuncBody, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]FuncBody, count)
	for i := range out {
		body, err := decodeFuncBody(r, features)
		if err != nil {
			return nil, wrapEntry(err, "func", i)
		}
		out[i] = body
	}
	return out, nil
}

func decodeFuncBody(r *binary.Reader, features Features) (FuncBody, error) {
	bodySize, err := r.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	body, err := r.ReadBytes(int(bodySize))
	if err != nil {
		return FuncBody{}, err
	}
	br := binary.NewReader(bytes.NewReader(body))
	localCount, err := br.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	locals := make([]LocalEntry, localCount)
	for j := range locals {
		n, err := br.ReadU32()
		if err != nil {
			return FuncBody{}, err
		}
		vt, err := decodeValueType(br)
		if err != nil {
			return FuncBody{}, err
		}
		locals[j] = LocalEntry{Count: n, Type: vt}
	}
	code, err := br.ReadRemaining()
	if err != nil {
		return FuncBody{}, err
	}
	return FuncBody{Locals: locals, Code: decodeExprLazy(code, features)}, nil
}

func decodeDataSection(r *binary.Reader, features Features) ([]DataSegment, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]DataSegment, count)
	for i := range out {
		seg, err := decodeDataSegment(r, features)
		if err != nil {
			return nil, wrapEntry(err, "data", i)
		}
		out[i] = seg
	}
	return out, nil
}

func decodeDataSegment(r *binary.Reader, features Features) (DataSegment, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return DataSegment{}, err
	}
	seg := DataSegment{Flags: flags}
	switch flags {
	case 0:
		raw, err := scanExprRaw(r, features)
		if err != nil {
			return DataSegment{}, err
		}
		seg.Offset = decodeExprLazy(raw, features)
	case 1:
		// passive, no offset
	case 2:
		idx, err := r.ReadU32()
		if err != nil {
			return DataSegment{}, err
		}
		seg.Mem = MemId(idx)
		raw, err := scanExprRaw(r, features)
		if err != nil {
			return DataSegment{}, err
		}
		seg.Offset = decodeExprLazy(raw, features)
	default:
		return DataSegment{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, flags)
	}
	n, err := r.ReadU32()
	if err != nil {
		return DataSegment{}, err
	}
	data, err := r.ReadBytes(int(n))
	if err != nil {
		return DataSegment{}, err
	}
	seg.Init = data
	return seg, nil
}
