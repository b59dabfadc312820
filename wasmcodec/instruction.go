package wasmcodec

import (
	"github.com/go-wasm/codec/codecerr"
	"github.com/go-wasm/codec/wasmcodec/internal/binary"
)

// Control flow and exception-handling opcodes.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpThrow       byte = 0x08
	OpThrowRef    byte = 0x0A
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpBrTable     byte = 0x0E
	OpReturn      byte = 0x0F

	OpCall               byte = 0x10
	OpCallIndirect       byte = 0x11
	OpReturnCall         byte = 0x12 // tail-call
	OpReturnCallIndirect byte = 0x13 // tail-call
	OpCallRef            byte = 0x14
	OpReturnCallRef      byte = 0x15

	OpTryTable byte = 0x1F
)

// Reference-type opcodes.
const (
	OpRefNull      byte = 0xD0
	OpRefIsNull    byte = 0xD1
	OpRefFunc      byte = 0xD2
	OpRefAsNonNull byte = 0xD3
	OpRefEq        byte = 0xD4
	OpBrOnNull     byte = 0xD5
	OpBrOnNonNull  byte = 0xD6
)

// Parametric opcodes.
const (
	OpDrop       byte = 0x1A
	OpSelect     byte = 0x1B
	OpSelectType byte = 0x1C
)

// Variable-access opcodes.
const (
	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24
)

// Table opcodes.
const (
	OpTableGet byte = 0x25
	OpTableSet byte = 0x26
)

// Memory load/store opcodes.
const (
	OpI32Load    byte = 0x28
	OpI64Load    byte = 0x29
	OpF32Load    byte = 0x2A
	OpF64Load    byte = 0x2B
	OpI32Load8S  byte = 0x2C
	OpI32Load8U  byte = 0x2D
	OpI32Load16S byte = 0x2E
	OpI32Load16U byte = 0x2F
	OpI64Load8S  byte = 0x30
	OpI64Load8U  byte = 0x31
	OpI64Load16S byte = 0x32
	OpI64Load16U byte = 0x33
	OpI64Load32S byte = 0x34
	OpI64Load32U byte = 0x35
	OpI32Store   byte = 0x36
	OpI64Store   byte = 0x37
	OpF32Store   byte = 0x38
	OpF64Store   byte = 0x39
	OpI32Store8  byte = 0x3A
	OpI32Store16 byte = 0x3B
	OpI64Store8  byte = 0x3C
	OpI64Store16 byte = 0x3D
	OpI64Store32 byte = 0x3E
	OpMemorySize byte = 0x3F
	OpMemoryGrow byte = 0x40
)

// Constant and comparison/numeric/conversion opcodes occupy 0x41-0xC4;
// stored as a flat table since their immediates fall into only a
// handful of shapes (none, i32 const, i64 const, f32 const, f64 const).
const (
	OpI32Const byte = 0x41
	OpI64Const byte = 0x42
	OpF32Const byte = 0x43
	OpF64Const byte = 0x44
)

const opNumericRangeEnd byte = 0xC4 // last of i64.extend32_s and friends

// Multi-byte instruction prefixes.
const (
	PrefixMisc   byte = 0xFC // bulk memory, saturating truncation, misc GC-adjacent ops
	PrefixSIMD   byte = 0xFD
	PrefixAtomic byte = 0xFE
	PrefixGC     byte = 0xFB
)

// Misc (0xFC-prefixed) sub-opcodes.
const (
	MiscI32TruncSatF32S byte = 0
	MiscI32TruncSatF32U byte = 1
	MiscI32TruncSatF64S byte = 2
	MiscI32TruncSatF64U byte = 3
	MiscI64TruncSatF32S byte = 4
	MiscI64TruncSatF32U byte = 5
	MiscI64TruncSatF64S byte = 6
	MiscI64TruncSatF64U byte = 7
	MiscMemoryInit      byte = 8
	MiscDataDrop        byte = 9
	MiscMemoryCopy      byte = 10
	MiscMemoryFill      byte = 11
	MiscTableInit       byte = 12
	MiscElemDrop        byte = 13
	MiscTableCopy       byte = 14
	MiscTableGrow       byte = 15
	MiscTableSize       byte = 16
	MiscTableFill       byte = 17
)

// Catch clause wire kinds, normalized into Catch.CatchRef/ExceptionFilter.
const (
	catchKindCatch       byte = 0x00
	catchKindCatchRef    byte = 0x01
	catchKindCatchAll    byte = 0x02
	catchKindCatchAllRef byte = 0x03
)

const multiMemoryFlag uint32 = 1 << 6

// MemArg is the operand of a linear-memory load or store: an
// alignment hint (as its base-2 logarithm), the memory to access, and
// a constant byte offset. The memory index is implicit (index 0) in
// the common case and only takes an extra byte on the wire when it
// differs from 0 (signaled via bit 6 of the alignment byte).
type MemArg struct {
	Mem       MemId
	AlignLog2 uint32
	Offset    uint64
}

func decodeMemArg(r *binary.Reader, features Features) (MemArg, error) {
	alignLog2, err := r.ReadU32()
	if err != nil {
		return MemArg{}, err
	}
	var mem MemId
	if alignLog2&multiMemoryFlag != 0 {
		if !features.MultiMemory {
			return MemArg{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, alignLog2)
		}
		alignLog2 &^= multiMemoryFlag
		idx, err := r.ReadU32()
		if err != nil {
			return MemArg{}, err
		}
		mem = MemId(idx)
	}
	offset, err := r.ReadU64()
	if err != nil {
		return MemArg{}, err
	}
	return MemArg{Mem: mem, AlignLog2: alignLog2, Offset: offset}, nil
}

func encodeMemArg(w *binary.Writer, m MemArg) {
	if m.Mem != 0 {
		w.WriteU32(m.AlignLog2 | multiMemoryFlag)
		w.WriteU32(uint32(m.Mem))
	} else {
		w.WriteU32(m.AlignLog2)
	}
	w.WriteU64(m.Offset)
}

// decodeAlignedMemArg decodes a MemArg whose alignment is fixed at
// compile time by the atomic opcode being decoded (e.g. i32.atomic.load
// always has alignLog2 == 2). A MemArg observed with a different
// alignment is rejected rather than silently accepted, since the wire
// byte cannot actually vary for these opcodes.
func decodeAlignedMemArg(r *binary.Reader, features Features, wantAlignLog2 uint32, path []string) (MemArg, error) {
	m, err := decodeMemArg(r, features)
	if err != nil {
		return MemArg{}, err
	}
	if m.AlignLog2 != wantAlignLog2 {
		return MemArg{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, path, m.AlignLog2)
	}
	return m, nil
}

// Catch is the normalized form of a try_table catch clause. The wire
// format has four discriminants (catch, catch_ref, catch_all,
// catch_all_ref); this collapses them to whether the clause rethrows
// with an exception reference and whether it filters by tag.
type Catch struct {
	ExceptionFilter *TagId
	CatchRef        bool
	Target          LabelId
}

func decodeCatch(r *binary.Reader) (Catch, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return Catch{}, err
	}
	var filter *TagId
	catchRef := kind == catchKindCatchRef || kind == catchKindCatchAllRef
	switch kind {
	case catchKindCatch, catchKindCatchRef:
		tag, err := r.ReadU32()
		if err != nil {
			return Catch{}, err
		}
		t := TagId(tag)
		filter = &t
	case catchKindCatchAll, catchKindCatchAllRef:
		// no tag
	default:
		return Catch{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(kind))
	}
	target, err := r.ReadU32()
	if err != nil {
		return Catch{}, err
	}
	return Catch{ExceptionFilter: filter, CatchRef: catchRef, Target: LabelId(target)}, nil
}

func encodeCatch(w *binary.Writer, c Catch) {
	var kind byte
	switch {
	case c.ExceptionFilter != nil && !c.CatchRef:
		kind = catchKindCatch
	case c.ExceptionFilter != nil && c.CatchRef:
		kind = catchKindCatchRef
	case c.ExceptionFilter == nil && !c.CatchRef:
		kind = catchKindCatchAll
	default:
		kind = catchKindCatchAllRef
	}
	w.WriteByte(kind)
	if c.ExceptionFilter != nil {
		w.WriteU32(uint32(*c.ExceptionFilter))
	}
	w.WriteU32(uint32(c.Target))
}

// Instruction is a single decoded instruction: an opcode plus whatever
// immediate shape that opcode carries. Imm is nil for opcodes with no
// operands (e.g. i32.add).
type Instruction struct {
	Imm    any
	Opcode byte
}

type BlockImm struct{ Type BlockType }
type BranchImm struct{ Label LabelId }
type BrTableImm struct {
	Labels  []LabelId
	Default LabelId
}
type CallImm struct{ Func FuncId }
type CallIndirectImm struct {
	Type  TypeId
	Table TableId
}
type CallRefImm struct{ Type TypeId }
type LocalImm struct{ Local LocalId }
type GlobalImm struct{ Global GlobalId }
type TableImm struct{ Table TableId }
type MemoryIdxImm struct{ Mem MemId }
type I32Imm struct{ Value int32 }
type I64Imm struct{ Value int64 }
type F32Imm struct{ Value float32 }
type F64Imm struct{ Value float64 }
type RefNullImm struct{ HeapType int64 }
type RefFuncImm struct{ Func FuncId }
type SelectTypeImm struct{ Types []ValueType }
type ThrowImm struct{ Tag TagId }
type TryTableImm struct {
	Type    BlockType
	Catches []Catch
}
type MiscImm struct {
	SubOpcode byte
	Operands  []uint32
}

// DepthTracker counts how many block/loop/if/try_table scopes are open
// while decoding or encoding a flat instruction stream. Expression
// decoding uses it to recognize the implicit End that terminates the
// whole expression, as distinct from an End that merely closes a
// nested block.
type DepthTracker struct {
	depth uint32
}

func (d *DepthTracker) inc() { d.depth++ }

// tryDec decrements the depth, returning false if it was already zero
// (meaning the End just observed belongs to no open block and must be
// the expression's own terminator).
func (d *DepthTracker) tryDec() bool {
	if d.depth == 0 {
		return false
	}
	d.depth--
	return true
}

func (d *DepthTracker) assertBalanced() bool { return d.depth == 0 }

// DecodeInstructions decodes an Expression: a flat sequence of
// instructions terminated by an End opcode that is consumed but not
// represented in the result, since it reconstructs automatically on
// encode. Block/loop/if/try_table openers increment a running depth;
// an End that would underflow the depth is the expression's own
// terminator and ends the loop.
func DecodeInstructions(code []byte, features Features) ([]Instruction, error) {
	r := binary.NewReader(newByteSliceReader(code))
	instrs := make([]Instruction, 0, len(code)/2)
	var depth DepthTracker

	for i := 0; ; i++ {
		op, err := r.ReadByte()
		if err != nil {
			return nil, wrapIdx(err, i)
		}

		switch op {
		case OpBlock, OpLoop, OpIf, OpTryTable:
			depth.inc()
		case OpEnd:
			if !depth.tryDec() {
				return instrs, nil
			}
		}

		instr, err := decodeOneInstruction(r, op, features)
		if err != nil {
			return nil, wrapIdx(err, i)
		}
		instrs = append(instrs, instr)
	}
}

func wrapIdx(err error, i int) error {
	if ce, ok := err.(*codecerr.Error); ok {
		return ce.WithPath(indexFrame(i))
	}
	return terminalDecodeErr(err, []string{indexFrame(i)})
}

func indexFrame(i int) string { return "instr[" + itoa(i) + "]" }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// EncodeInstructions encodes an Expression, asserting the caller's
// instruction list is itself balanced (every Block/Loop/If/TryTable
// has a matching End and no End closes a scope that was never opened)
// before appending the implicit terminating End. An unbalanced list is
// the only way encoding can fail short of a sink I/O error.
func EncodeInstructions(instrs []Instruction) ([]byte, error) {
	w := binary.NewWriter()
	var depth DepthTracker
	for i := range instrs {
		switch instrs[i].Opcode {
		case OpBlock, OpLoop, OpIf, OpTryTable:
			depth.inc()
		case OpEnd:
			if !depth.tryDec() {
				return nil, codecerr.MismatchedBlockDepth([]string{indexFrame(i)})
			}
		}
		encodeOneInstruction(w, &instrs[i])
	}
	if !depth.assertBalanced() {
		return nil, codecerr.MismatchedBlockDepth(nil)
	}
	w.WriteByte(OpEnd)
	return w.Bytes(), nil
}
