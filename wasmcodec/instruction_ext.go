package wasmcodec

import (
	"github.com/go-wasm/codec/codecerr"
	"github.com/go-wasm/codec/wasmcodec/internal/binary"
)

// decodeMiscInstruction decodes a 0xFC-prefixed instruction: saturating
// truncation (no operands beyond the sub-opcode) or one of the bulk-
// memory operations (memory.init/copy/fill, table.init/copy/grow/
// size/fill, data.drop, elem.drop).
func decodeMiscInstruction(r *binary.Reader, _ Features) (Instruction, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: PrefixMisc}
	if sub > uint32(MiscTableFill) {
		return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, sub)
	}
	subByte := byte(sub)

	readOperands := func(n int) ([]uint32, error) {
		ops := make([]uint32, n)
		for i := range ops {
			v, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			ops[i] = v
		}
		return ops, nil
	}

	var ops []uint32
	switch subByte {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U, MiscI32TruncSatF64S, MiscI32TruncSatF64U,
		MiscI64TruncSatF32S, MiscI64TruncSatF32U, MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		// no operands
	case MiscMemoryInit:
		ops, err = readOperands(2) // data idx, mem idx
	case MiscDataDrop:
		ops, err = readOperands(1)
	case MiscMemoryCopy:
		ops, err = readOperands(2) // dst mem, src mem
	case MiscMemoryFill:
		ops, err = readOperands(1)
	case MiscTableInit:
		ops, err = readOperands(2) // elem idx, table idx
	case MiscElemDrop:
		ops, err = readOperands(1)
	case MiscTableCopy:
		ops, err = readOperands(2) // dst table, src table
	case MiscTableGrow, MiscTableSize, MiscTableFill:
		ops, err = readOperands(1)
	default:
		return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, sub)
	}
	if err != nil {
		return instr, err
	}
	instr.Imm = MiscImm{SubOpcode: subByte, Operands: ops}
	return instr, nil
}

// SIMDImm holds the immediate for a 0xFD-prefixed (SIMD) instruction.
// The sub-opcode space is large; immediates fall into a handful of
// shapes (none, a MemArg, a lane index, a MemArg plus a lane index, or
// 16 raw bytes for v128.const and i8x16.shuffle), so the payload is kept generic rather than one
// struct field per sub-opcode.
type SIMDImm struct {
	MemArg    *MemArg
	Lane      *byte
	V128      []byte
	SubOpcode uint32
}

const (
	simdV128Load      uint32 = 0 // 0-10: v128.load and its half-width/splat variants
	simdV128Store     uint32 = 11
	simdV128Const     uint32 = 12
	simdI8x16Shuffle  uint32 = 13
	simdLaneOpStart   uint32 = 21 // extract_lane/replace_lane family, single lane byte
	simdLaneOpEnd     uint32 = 34
	simdLoadLaneStart uint32 = 84 // v128.load8_lane .. v128.store64_lane, memarg plus lane
	simdStoreLaneEnd  uint32 = 91
	simdLoadZeroStart uint32 = 92 // v128.load32_zero, v128.load64_zero
	simdLoadZeroEnd   uint32 = 93
)

func decodeSIMDInstruction(r *binary.Reader, features Features) (Instruction, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: PrefixSIMD}
	if sub > 0xFF {
		return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, sub)
	}
	imm := SIMDImm{SubOpcode: sub}

	switch {
	case sub <= simdV128Store, sub >= simdLoadZeroStart && sub <= simdLoadZeroEnd:
		m, err := decodeMemArg(r, features)
		if err != nil {
			return instr, err
		}
		imm.MemArg = &m
	case sub == simdV128Const, sub == simdI8x16Shuffle:
		b, err := r.ReadBytes(16)
		if err != nil {
			return instr, err
		}
		imm.V128 = b
	case sub >= simdLaneOpStart && sub <= simdLaneOpEnd:
		lane, err := r.ReadByte()
		if err != nil {
			return instr, err
		}
		imm.Lane = &lane
	case sub >= simdLoadLaneStart && sub <= simdStoreLaneEnd:
		m, err := decodeMemArg(r, features)
		if err != nil {
			return instr, err
		}
		lane, err := r.ReadByte()
		if err != nil {
			return instr, err
		}
		imm.MemArg = &m
		imm.Lane = &lane
	default:
		// everything else (swizzle, splats, arithmetic, shifts,
		// comparisons, conversions) carries no immediate beyond the
		// sub-opcode itself
	}
	instr.Imm = imm
	return instr, nil
}

func encodeSIMDImm(w *binary.Writer, imm SIMDImm) {
	w.WriteU32(imm.SubOpcode)
	switch {
	case imm.V128 != nil:
		w.WriteBytes(imm.V128)
	case imm.MemArg != nil && imm.Lane != nil:
		encodeMemArg(w, *imm.MemArg)
		w.WriteByte(*imm.Lane)
	case imm.MemArg != nil:
		encodeMemArg(w, *imm.MemArg)
	case imm.Lane != nil:
		w.WriteByte(*imm.Lane)
	}
}

// AtomicImm holds the immediate for a 0xFE-prefixed (threads/atomics)
// instruction: a sub-opcode plus a MemArg whose alignment is fixed by
// that sub-opcode (AlignedMemArg in the source codec).
type AtomicImm struct {
	MemArg    MemArg
	SubOpcode uint32
}

const (
	atomicMemoryAtomicNotify uint32 = 0x00
	atomicMemoryAtomicWait32 uint32 = 0x01
	atomicMemoryAtomicWait64 uint32 = 0x02
	atomicFenceOp            uint32 = 0x03
	atomicAccessOpStart      uint32 = 0x10 // i32.atomic.load
	atomicAccessOpEnd        uint32 = 0x4E // i64.atomic.rmw32.cmpxchg_u
)

// atomicAlignment returns the fixed alignment (as log2) an atomic
// sub-opcode requires, grounded on the width of the value it touches,
// or ok=false for a sub-opcode outside the atomic instruction set.
// atomic.fence carries no memarg and is handled by the caller.
//
// The load/store/rmw block at 0x10-0x4E repeats the same seven-entry
// width pattern per operation group (i32, i64, then the 8/16/32-bit
// zero-extending narrow variants of each): 4, 8, 1, 2, 1, 2, 4 bytes.
func atomicAlignment(sub uint32) (uint32, bool) {
	switch sub {
	case atomicMemoryAtomicNotify, atomicMemoryAtomicWait32:
		return align32, true
	case atomicMemoryAtomicWait64:
		return align64, true
	}
	if sub < atomicAccessOpStart || sub > atomicAccessOpEnd {
		return 0, false
	}
	switch (sub - atomicAccessOpStart) % 7 {
	case 0:
		return align32, true
	case 1:
		return align64, true
	case 2, 4:
		return align8, true
	case 3, 5:
		return align16, true
	default:
		return align32, true
	}
}

func decodeAtomicInstruction(r *binary.Reader, features Features) (Instruction, error) {
	if !features.Threads {
		return Instruction{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(PrefixAtomic))
	}
	sub, err := r.ReadU32()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: PrefixAtomic}
	if sub == atomicFenceOp {
		flag, err := r.ReadByte()
		if err != nil {
			return instr, err
		}
		if flag != 0x00 {
			return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(flag))
		}
		instr.Imm = AtomicImm{SubOpcode: sub}
		return instr, nil
	}
	want, ok := atomicAlignment(sub)
	if !ok {
		return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, sub)
	}
	m, err := decodeAlignedMemArg(r, features, want, nil)
	if err != nil {
		return instr, err
	}
	instr.Imm = AtomicImm{SubOpcode: sub, MemArg: m}
	return instr, nil
}

// GCImm holds the immediate for a 0xFB-prefixed (GC proposal)
// instruction: struct/array allocation, field access, and ref.test/
// ref.cast style type checks.
type GCImm struct {
	HeapType  *int64
	Type      *TypeId
	Field     *uint32
	Data      *uint32
	Elem      *uint32
	Size      *uint32
	SubOpcode uint32
}

const (
	gcStructNew        uint32 = 0x00
	gcStructNewDefault uint32 = 0x01
	gcStructGet        uint32 = 0x02
	gcStructGetS       uint32 = 0x03
	gcStructGetU       uint32 = 0x04
	gcStructSet        uint32 = 0x05
	gcArrayNew         uint32 = 0x06
	gcArrayNewDefault  uint32 = 0x07
	gcArrayNewFixed    uint32 = 0x08
	gcArrayNewData     uint32 = 0x09
	gcArrayNewElem     uint32 = 0x0A
	gcArrayGet         uint32 = 0x0B
	gcArrayGetS        uint32 = 0x0C
	gcArrayGetU        uint32 = 0x0D
	gcArraySet         uint32 = 0x0E
	gcArrayLen         uint32 = 0x0F
	gcRefTest          uint32 = 0x14
	gcRefTestNull      uint32 = 0x15
	gcRefCast          uint32 = 0x16
	gcRefCastNull      uint32 = 0x17
)

func decodeGCInstruction(r *binary.Reader, features Features) (Instruction, error) {
	if !features.GC {
		return Instruction{}, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(PrefixGC))
	}
	sub, err := r.ReadU32()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: PrefixGC}
	imm := GCImm{SubOpcode: sub}

	readType := func() (TypeId, error) {
		v, err := r.ReadU32()
		return TypeId(v), err
	}
	readU32 := func() (uint32, error) { return r.ReadU32() }

	switch sub {
	case gcStructNew, gcStructNewDefault, gcArrayNew, gcArrayNewDefault:
		t, err := readType()
		if err != nil {
			return instr, err
		}
		imm.Type = &t
	case gcStructGet, gcStructGetS, gcStructGetU, gcStructSet:
		t, err := readType()
		if err != nil {
			return instr, err
		}
		f, err := readU32()
		if err != nil {
			return instr, err
		}
		imm.Type, imm.Field = &t, &f
	case gcArrayNewFixed:
		t, err := readType()
		if err != nil {
			return instr, err
		}
		n, err := readU32()
		if err != nil {
			return instr, err
		}
		imm.Type, imm.Size = &t, &n
	case gcArrayNewData:
		t, err := readType()
		if err != nil {
			return instr, err
		}
		d, err := readU32()
		if err != nil {
			return instr, err
		}
		imm.Type, imm.Data = &t, &d
	case gcArrayNewElem:
		t, err := readType()
		if err != nil {
			return instr, err
		}
		e, err := readU32()
		if err != nil {
			return instr, err
		}
		imm.Type, imm.Elem = &t, &e
	case gcArrayGet, gcArrayGetS, gcArrayGetU, gcArraySet:
		t, err := readType()
		if err != nil {
			return instr, err
		}
		imm.Type = &t
	case gcArrayLen:
		// no operand
	case gcRefTest, gcRefTestNull, gcRefCast, gcRefCastNull:
		ht, err := r.ReadS33()
		if err != nil {
			return instr, err
		}
		imm.HeapType = &ht
	default:
		return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, sub)
	}
	instr.Imm = imm
	return instr, nil
}

func encodeGCImm(w *binary.Writer, imm GCImm) {
	w.WriteU32(imm.SubOpcode)
	if imm.Type != nil {
		w.WriteU32(uint32(*imm.Type))
	}
	switch {
	case imm.Field != nil:
		w.WriteU32(*imm.Field)
	case imm.Size != nil:
		w.WriteU32(*imm.Size)
	case imm.Data != nil:
		w.WriteU32(*imm.Data)
	case imm.Elem != nil:
		w.WriteU32(*imm.Elem)
	}
	if imm.HeapType != nil {
		w.WriteS33(*imm.HeapType)
	}
}
