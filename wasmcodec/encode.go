package wasmcodec

import (
	"go.uber.org/zap"

	"github.com/go-wasm/codec/codecerr"
	"github.com/go-wasm/codec/wasmcodec/internal/binary"
)

// wrapIndexed prepends a "field[index]" frame onto an encode error
// bubbling out of one vector entry, mirroring the decoder's wrapEntry.
func wrapIndexed(err error, field string, i int) error {
	frame := field + "[" + itoa(i) + "]"
	if ce, ok := err.(*codecerr.Error); ok {
		return ce.WithPath(frame)
	}
	return codecerr.IO(codecerr.PhaseEncode, []string{frame}, err)
}

func writeU32LE(w *binary.Writer, v uint32) {
	w.WriteBytes([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// Encode serializes a module back into a WebAssembly binary. Section
// payloads come from each section's own encoder; Lazy fields take the
// cheap raw-bytes path whenever their raw bytes are still valid: a
// read-only Decoded keeps them, while DecodedMut, Set and Invalidate
// drop them. The only failure mode is a function body,
// global initializer, or segment offset/expression whose instruction
// list does not balance its block nesting; everything else is total.
func (m *Module) Encode() ([]byte, error) {
	w := binary.NewWriter()
	writeU32LE(w, Magic)
	writeU32LE(w, Version)

	m.writeCustoms(w, 0)
	writeSection(w, SectionType, encodeTypeSection(m.Types))
	m.writeCustoms(w, SectionType)
	writeSection(w, SectionImport, encodeImportSection(m.Imports))
	m.writeCustoms(w, SectionImport)
	writeSection(w, SectionFunction, encodeFunctionSection(m.Funcs))
	m.writeCustoms(w, SectionFunction)
	writeSection(w, SectionTable, encodeTableSection(m.Tables))
	m.writeCustoms(w, SectionTable)
	writeSection(w, SectionMemory, encodeMemorySection(m.Memories))
	m.writeCustoms(w, SectionMemory)
	writeSection(w, SectionTag, encodeTagSection(m.Tags))
	m.writeCustoms(w, SectionTag)

	globalBody, err := encodeGlobalSection(m.Globals)
	if err != nil {
		return nil, wrapSection(err, SectionGlobal)
	}
	writeSection(w, SectionGlobal, globalBody)
	m.writeCustoms(w, SectionGlobal)
	writeSection(w, SectionExport, encodeExportSection(m.Exports))
	m.writeCustoms(w, SectionExport)
	if m.Start != nil {
		sw := binary.NewWriter()
		sw.WriteU32(uint32(*m.Start))
		writeSection(w, SectionStart, sw.Bytes())
	}
	m.writeCustoms(w, SectionStart)

	elemBody, err := encodeElementSection(m.Elements)
	if err != nil {
		return nil, wrapSection(err, SectionElement)
	}
	writeSection(w, SectionElement, elemBody)
	m.writeCustoms(w, SectionElement)
	if m.DataCount != nil {
		dw := binary.NewWriter()
		dw.WriteU32(*m.DataCount)
		writeSection(w, SectionDataCount, dw.Bytes())
	}
	m.writeCustoms(w, SectionDataCount)

	codeBody, err := encodeCodeSection(m.Code)
	if err != nil {
		wrapped := wrapSection(err, SectionCode)
		log().Debug("code section encode failed", zap.Error(wrapped))
		return nil, wrapped
	}
	writeSection(w, SectionCode, codeBody)
	m.writeCustoms(w, SectionCode)

	dataBody, err := encodeDataSection(m.Data)
	if err != nil {
		return nil, wrapSection(err, SectionData)
	}
	writeSection(w, SectionData, dataBody)
	m.writeCustoms(w, SectionData)
	return w.Bytes(), nil
}

// writeCustoms emits every custom section anchored after the given
// section id, in the order they were read (or appended). Custom
// sections with the same anchor keep their relative order.
func (m *Module) writeCustoms(w *binary.Writer, after byte) {
	for _, cs := range m.Customs {
		if cs.After != after {
			continue
		}
		cw := binary.NewWriter()
		cw.WriteName(cs.Name)
		cw.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, cw.Bytes())
	}
}

// writeSection appends a section to w, skipping it entirely when body
// is empty; callers pass nil/empty slices for absent vector sections
// (an empty Type/Import/etc. section is indistinguishable from an
// absent one and there is no reason to emit the zero-length form).
func writeSection(w *binary.Writer, id byte, body []byte) {
	if len(body) == 0 {
		return
	}
	w.WriteByte(id)
	w.WriteU32(uint32(len(body)))
	w.WriteBytes(body)
}

func encodeTypeSection(defs []TypeDef) []byte {
	if len(defs) == 0 {
		return nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(defs)))
	for _, d := range defs {
		encodeTypeDef(w, d)
	}
	return w.Bytes()
}

func encodeTypeDef(w *binary.Writer, d TypeDef) {
	switch d.Kind {
	case TypeDefKindFunc:
		w.WriteByte(funcTypeDiscriminant)
		encodeFuncTypeBody(w, *d.Func)
	case TypeDefKindSub:
		encodeSubTypeStandalone(w, *d.Sub)
	case TypeDefKindRec:
		w.WriteByte(recTypeByte)
		w.WriteU32(uint32(len(d.Rec.Types)))
		for _, sub := range d.Rec.Types {
			encodeSubTypeStandalone(w, sub)
		}
	}
}

// encodeSubTypeStandalone writes a sub type with its own leading
// discriminant: the short form (bare func/struct/array byte) when it
// has no declared parents and is final, the full "sub"/"sub final"
// form otherwise.
func encodeSubTypeStandalone(w *binary.Writer, s SubType) {
	if s.Final && len(s.Parents) == 0 {
		encodeCompTypeBody(w, s.CompType)
		return
	}
	if s.Final {
		w.WriteByte(subFinalTypeByte)
	} else {
		w.WriteByte(subTypeByte)
	}
	w.WriteU32(uint32(len(s.Parents)))
	for _, p := range s.Parents {
		w.WriteU32(uint32(p))
	}
	encodeCompTypeBody(w, s.CompType)
}

func encodeCompTypeBody(w *binary.Writer, ct CompType) {
	w.WriteByte(ct.Kind)
	switch ct.Kind {
	case funcTypeDiscriminant:
		encodeFuncTypeBody(w, *ct.Func)
	case CompKindStruct:
		w.WriteU32(uint32(len(ct.Struct.Fields)))
		for _, f := range ct.Struct.Fields {
			encodeFieldType(w, f)
		}
	case CompKindArray:
		encodeFieldType(w, ct.Array.Element)
	}
}

func encodeFieldType(w *binary.Writer, f FieldType) {
	encodeStorageType(w, f.Type)
	if f.Mutable {
		w.WriteByte(fieldMutableByte)
	} else {
		w.WriteByte(fieldImmutableByte)
	}
}

func encodeStorageType(w *binary.Writer, st StorageType) {
	if st.Kind == StorageKindPacked {
		w.WriteByte(st.Packed)
		return
	}
	encodeValueType(w, st.ValType)
}

func encodeFuncTypeBody(w *binary.Writer, ft FuncType) {
	w.WriteU32(uint32(len(ft.Params)))
	for _, p := range ft.Params {
		encodeValueType(w, p)
	}
	w.WriteU32(uint32(len(ft.Results)))
	for _, r := range ft.Results {
		encodeValueType(w, r)
	}
}

func encodeImportSection(imports []Import) []byte {
	if len(imports) == 0 {
		return nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(imports)))
	for _, im := range imports {
		w.WriteName(im.Module)
		w.WriteName(im.Name)
		w.WriteByte(im.Desc.Kind)
		switch im.Desc.Kind {
		case KindFunc:
			w.WriteU32(uint32(im.Desc.TypeIdx))
		case KindTable:
			encodeTableType(w, *im.Desc.Table)
		case KindMemory:
			encodeMemoryType(w, *im.Desc.Memory)
		case KindGlobal:
			encodeGlobalType(w, *im.Desc.Global)
		case KindTag:
			w.WriteByte(im.Desc.Tag.Attribute)
			w.WriteU32(uint32(im.Desc.Tag.Type))
		}
	}
	return w.Bytes()
}

func encodeFunctionSection(funcs []TypeId) []byte {
	if len(funcs) == 0 {
		return nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(funcs)))
	for _, t := range funcs {
		w.WriteU32(uint32(t))
	}
	return w.Bytes()
}

func encodeTableSection(tables []TableType) []byte {
	if len(tables) == 0 {
		return nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(tables)))
	for _, t := range tables {
		encodeTableType(w, t)
	}
	return w.Bytes()
}

func encodeMemorySection(mems []MemoryType) []byte {
	if len(mems) == 0 {
		return nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(mems)))
	for _, m := range mems {
		encodeMemoryType(w, m)
	}
	return w.Bytes()
}

func encodeGlobalSection(globals []Global) ([]byte, error) {
	if len(globals) == 0 {
		return nil, nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(globals)))
	for i := range globals {
		encodeGlobalType(w, globals[i].Type)
		init, err := globals[i].Init.Encode()
		if err != nil {
			return nil, wrapIndexed(err, "global", i)
		}
		w.WriteBytes(init)
	}
	return w.Bytes(), nil
}

func encodeExportSection(exports []Export) []byte {
	if len(exports) == 0 {
		return nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(exports)))
	for _, e := range exports {
		w.WriteName(e.Name)
		w.WriteByte(e.Kind)
		w.WriteU32(e.Idx)
	}
	return w.Bytes()
}

func encodeTagSection(tags []TagType) []byte {
	if len(tags) == 0 {
		return nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(tags)))
	for _, t := range tags {
		w.WriteByte(t.Attribute)
		w.WriteU32(uint32(t.Type))
	}
	return w.Bytes()
}

func encodeElementSection(elements []Element) ([]byte, error) {
	if len(elements) == 0 {
		return nil, nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(elements)))
	for i := range elements {
		el := &elements[i]
		w.WriteU32(el.Flags)
		kind := el.Flags & 0x3
		usesExprs := el.Flags&segFlagExprs != 0
		active := kind == elemKindActiveTable0 || kind == elemKindActiveExplicit

		if active {
			if kind == elemKindActiveExplicit {
				w.WriteU32(uint32(el.Table))
			}
			off, err := el.Offset.Encode()
			if err != nil {
				return nil, wrapIndexed(err, "element", i)
			}
			w.WriteBytes(off)
		}
		if !usesExprs {
			if kind != elemKindActiveTable0 {
				w.WriteByte(el.ElemKind)
			}
			w.WriteU32(uint32(len(el.FuncIdxs)))
			for _, f := range el.FuncIdxs {
				w.WriteU32(uint32(f))
			}
		} else {
			if kind != elemKindActiveTable0 {
				encodeRefType(w, *el.RefType)
			}
			w.WriteU32(uint32(len(el.Exprs)))
			for j := range el.Exprs {
				ex, err := el.Exprs[j].Encode()
				if err != nil {
					return nil, wrapIndexed(err, "element", i)
				}
				w.WriteBytes(ex)
			}
		}
	}
	return w.Bytes(), nil
}

func encodeCodeSection(bodies []FuncBody) ([]byte, error) {
	if len(bodies) == 0 {
		return nil, nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(bodies)))
	for i := range bodies {
		bw := binary.NewWriter()
		bw.WriteU32(uint32(len(bodies[i].Locals)))
		for _, l := range bodies[i].Locals {
			bw.WriteU32(l.Count)
			encodeValueType(bw, l.Type)
		}
		code, err := bodies[i].Code.Encode()
		if err != nil {
			return nil, wrapIndexed(err, "code", i)
		}
		bw.WriteBytes(code)
		body := bw.Bytes()
		w.WriteU32(uint32(len(body)))
		w.WriteBytes(body)
	}
	return w.Bytes(), nil
}

func encodeDataSection(segs []DataSegment) ([]byte, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(segs)))
	for i := range segs {
		seg := &segs[i]
		w.WriteU32(seg.Flags)
		switch seg.Flags {
		case 0:
			off, err := seg.Offset.Encode()
			if err != nil {
				return nil, wrapIndexed(err, "data", i)
			}
			w.WriteBytes(off)
		case 1:
			// passive, nothing else before the byte vector
		case 2:
			w.WriteU32(uint32(seg.Mem))
			off, err := seg.Offset.Encode()
			if err != nil {
				return nil, wrapIndexed(err, "data", i)
			}
			w.WriteBytes(off)
		}
		w.WriteU32(uint32(len(seg.Init)))
		w.WriteBytes(seg.Init)
	}
	return w.Bytes(), nil
}
