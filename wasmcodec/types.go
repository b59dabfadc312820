package wasmcodec

import (
	"github.com/go-wasm/codec/codecerr"
	"github.com/go-wasm/codec/wasmcodec/internal/binary"
)

// Magic is the WebAssembly binary magic number ("\0asm").
const Magic uint32 = 0x6D736100

// Version is the only binary format version this codec understands.
const Version uint32 = 0x01

// Section IDs, in numeric order. The order sections must appear in is
// sectionOrder's, not this one: the tag section sits between memory and
// global, and data-count precedes code. Custom sections may appear
// anywhere and do not participate in the ordering check.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
	SectionTag       byte = 13
)

// Import/export descriptor kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
	KindTag    byte = 4
)

// ValueType is a WebAssembly value type discriminant byte.
type ValueType byte

const (
	ValI32     ValueType = 0x7F
	ValI64     ValueType = 0x7E
	ValF32     ValueType = 0x7D
	ValF64     ValueType = 0x7C
	ValV128    ValueType = 0x7B
	ValFuncRef ValueType = 0x70
	ValExtern  ValueType = 0x6F
	ValExnRef  ValueType = 0x69

	// GC proposal abbreviated reference types.
	ValRefNull       ValueType = 0x63
	ValRef           ValueType = 0x64
	ValNullFuncRef   ValueType = 0x73
	ValNullExternRef ValueType = 0x72
	ValNullRef       ValueType = 0x71
	ValEqRef         ValueType = 0x6D
	ValI31Ref        ValueType = 0x6C
	ValStructRef     ValueType = 0x6B
	ValArrayRef      ValueType = 0x6A
	ValAnyRef        ValueType = 0x6E
)

func (v ValueType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	case ValExnRef:
		return "exnref"
	case ValAnyRef:
		return "anyref"
	case ValEqRef:
		return "eqref"
	case ValI31Ref:
		return "i31ref"
	case ValStructRef:
		return "structref"
	case ValArrayRef:
		return "arrayref"
	case ValNullRef:
		return "nullref"
	case ValNullExternRef:
		return "nullexternref"
	case ValNullFuncRef:
		return "nullfuncref"
	case ValRefNull:
		return "ref null"
	case ValRef:
		return "ref"
	default:
		return "unknown"
	}
}

func isValueTypeByte(b byte) bool {
	switch ValueType(b) {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern,
		ValExnRef, ValRefNull, ValRef, ValNullFuncRef, ValNullExternRef,
		ValNullRef, ValEqRef, ValI31Ref, ValStructRef, ValArrayRef, ValAnyRef:
		return true
	default:
		return false
	}
}

// blockTypeEmptyByte is the single-byte encoding for a block with no
// parameters and no results.
const blockTypeEmptyByte byte = 0x40

// BlockTypeKind discriminates the three ways a block type can be encoded.
type BlockTypeKind byte

const (
	BlockTypeEmpty      BlockTypeKind = iota // no params, no results
	BlockTypeValue                           // a single result of the given value type
	BlockTypeMultiValue                      // params and/or results named by a function type index
)

// BlockType is the normalized form of the block-type grammar: a single
// lead byte disambiguates between an empty block, a block producing a
// single value of one of the primitive value types, and (by falling
// through to a signed 33-bit LEB128 read) a block whose params/results
// are given by a function type index.
type BlockType struct {
	Value ValueType // valid when Kind == BlockTypeValue
	Type  TypeId    // valid when Kind == BlockTypeMultiValue
	Kind  BlockTypeKind
}

// Empty reports whether bt is the no-params/no-results block type.
func (bt BlockType) Empty() bool { return bt.Kind == BlockTypeEmpty }

func decodeBlockType(r *binary.Reader) (BlockType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return BlockType{}, err
	}
	if b == blockTypeEmptyByte {
		return BlockType{Kind: BlockTypeEmpty}, nil
	}
	if isValueTypeByte(b) {
		return BlockType{Kind: BlockTypeValue, Value: ValueType(b)}, nil
	}
	// Neither the empty marker nor a value type: re-chain the byte we
	// already consumed onto the stream and parse it as the low 7 bits
	// of a signed 33-bit LEB128 type index.
	chained := &chainedByteReader{first: b, rest: r}
	idx, err := binary.NewReader(chained).ReadS33()
	if err != nil {
		return BlockType{}, err
	}
	if idx < 0 || idx >= 1<<31 {
		return BlockType{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(b))
	}
	return BlockType{Kind: BlockTypeMultiValue, Type: TypeId(idx)}, nil
}

func encodeBlockType(w *binary.Writer, bt BlockType) {
	switch bt.Kind {
	case BlockTypeEmpty:
		w.WriteByte(blockTypeEmptyByte)
	case BlockTypeValue:
		w.WriteByte(byte(bt.Value))
	case BlockTypeMultiValue:
		w.WriteS33(int64(bt.Type))
	}
}

// chainedByteReader re-presents a single already-consumed byte followed
// by the rest of a Reader, without buffering the whole stream.
type chainedByteReader struct {
	first    byte
	consumed bool
	rest     *binary.Reader
}

func (c *chainedByteReader) ReadByte() (byte, error) {
	if !c.consumed {
		c.consumed = true
		return c.first, nil
	}
	return c.rest.ReadByte()
}

// RefType is a reference type: a nullability flag plus an abstract or
// concrete (type-index) heap type, encoded as a signed 33-bit quantity
// where negative values name an abstract heap type and non-negative
// values name a type index.
type RefType struct {
	HeapType int64
	Nullable bool
}

// Abstract heap type constants, encoded as negative s33 values.
const (
	HeapTypeFunc        int64 = -0x10
	HeapTypeExtern      int64 = -0x11
	HeapTypeAny         int64 = -0x12
	HeapTypeEq          int64 = -0x13
	HeapTypeI31         int64 = -0x14
	HeapTypeStruct      int64 = -0x15
	HeapTypeArray       int64 = -0x16
	HeapTypeNone        int64 = -0x0F
	HeapTypeNoExtern    int64 = -0x0E
	HeapTypeNoFunc      int64 = -0x0D
	HeapTypeException   int64 = -0x17
	HeapTypeNoException int64 = -0x0C
)

const (
	refTypeFuncByte   byte = 0x70
	refTypeExternByte byte = 0x6F
	refTypeExnByte    byte = 0x69
)

// FuncType is a function signature: ordered parameter and result value types.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

const funcTypeDiscriminant byte = 0x60

// Limits bounds a table or memory's element/page count.
type Limits struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

const (
	limitsFlagHasMax   uint32 = 1 << 0
	limitsFlagShared   uint32 = 1 << 1
	limitsFlagMemory64 uint32 = 1 << 2
)

// PageSize is a custom memory page size, expressed as its base-2
// logarithm. The grammar is permissive: any size_log2 up to 64 decodes
// successfully even though only 0 (page size 1) and 16 (the default
// 64 KiB page) are meaningful under the current proposal text; this
// mirrors the source codec's permissiveness rather than anticipating
// where the proposal settles.
type PageSize struct {
	log2 uint32
}

// DefaultPageSize is the implicit page size (64 KiB, log2 == 16) used
// when a memory type carries no explicit custom page size.
var DefaultPageSize = PageSize{log2: 16}

// NewPageSize validates and constructs a PageSize from its log2 form.
func NewPageSize(log2 uint32) (PageSize, bool) {
	if log2 > 64 {
		return PageSize{}, false
	}
	return PageSize{log2: log2}, true
}

// Log2 returns the base-2 logarithm of the page size in bytes.
func (p PageSize) Log2() uint32 { return p.log2 }

// MemoryType describes a linear memory.
type MemoryType struct {
	PageSize *PageSize // nil when no custom page size is present
	Limits   Limits
}

// TableType describes a table.
type TableType struct {
	ElemType RefType
	Limits   Limits
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValueType
	Ref     *RefType // set instead of ValType when the global holds a reference type with heap info
	Mutable bool
}

// TagType describes an exception-handling tag's signature.
type TagType struct {
	Attribute byte
	Type      TypeId
}

const tagAttributeException byte = 0x00

// Storage kinds for GC struct/array fields.
const (
	StorageKindVal    byte = 0
	StorageKindPacked byte = 1
)

// Packed storage types, narrower than a full value type.
const (
	PackedI8  byte = 0x78
	PackedI16 byte = 0x77
)

// StorageType is anything that can be stored in a struct field or array
// element: a full value type or one of the packed integer types.
type StorageType struct {
	ValType ValueType
	Packed  byte
	Kind    byte
}

// FieldType is a struct field or array element: a storage type plus mutability.
type FieldType struct {
	Type    StorageType
	Mutable bool
}

const (
	fieldImmutableByte byte = 0
	fieldMutableByte   byte = 1
)

// StructType is a GC struct type definition.
type StructType struct {
	Fields []FieldType
}

// ArrayType is a GC array type definition.
type ArrayType struct {
	Element FieldType
}

// Composite type kinds.
const (
	CompKindFunc   byte = funcTypeDiscriminant
	CompKindStruct byte = 0x5F
	CompKindArray  byte = 0x5E
)

// CompType is the composite payload of a type definition: exactly one
// of Func, Struct, or Array is populated, selected by Kind.
type CompType struct {
	Func   *FuncType
	Struct *StructType
	Array  *ArrayType
	Kind   byte
}

// SubType wraps a composite type with its declared supertypes and
// whether it closes the subtyping hierarchy.
type SubType struct {
	CompType CompType
	Parents  []TypeId
	Final    bool
}

const (
	subTypeByte      byte = 0x50
	subFinalTypeByte byte = 0x4F
	recTypeByte      byte = 0x4E
)

// RecType is a recursive group of mutually-referencing subtypes.
type RecType struct {
	Types []SubType
}

// TypeDefKind selects which shape a TypeDef holds.
type TypeDefKind byte

const (
	TypeDefKindFunc TypeDefKind = iota // bare function type, shorthand for a final sub type with no parents
	TypeDefKindSub
	TypeDefKindRec
)

// TypeDef is an entry in the type section. Recursive groups expand
// into multiple entries of the module's flat type index space.
type TypeDef struct {
	Func *FuncType
	Sub  *SubType
	Rec  *RecType
	Kind TypeDefKind
}
