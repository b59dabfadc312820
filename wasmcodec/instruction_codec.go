package wasmcodec

import (
	"bytes"

	"github.com/go-wasm/codec/codecerr"
	"github.com/go-wasm/codec/wasmcodec/internal/binary"
)

func newByteSliceReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// alignment widths fixed by opcode for atomic read-modify-write ops.
const (
	align8  uint32 = 0
	align16 uint32 = 1
	align32 uint32 = 2
	align64 uint32 = 3
)

func decodeOneInstruction(r *binary.Reader, op byte, features Features) (Instruction, error) {
	instr := Instruction{Opcode: op}

	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn,
		OpDrop, OpSelect, OpRefIsNull, OpRefEq, OpRefAsNonNull:
		// no immediate

	case OpBlock, OpLoop, OpIf:
		bt, err := decodeBlockType(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = BlockImm{Type: bt}

	case OpThrow:
		if !features.ExceptionHandling {
			return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(op))
		}
		tag, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = ThrowImm{Tag: TagId(tag)}

	case OpThrowRef:
		if !features.ExceptionHandling {
			return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(op))
		}

	case OpTryTable:
		if !features.ExceptionHandling {
			return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(op))
		}
		bt, err := decodeBlockType(r)
		if err != nil {
			return instr, err
		}
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		catches := make([]Catch, count)
		for i := range catches {
			catches[i], err = decodeCatch(r)
			if err != nil {
				return instr, err
			}
		}
		instr.Imm = TryTableImm{Type: bt, Catches: catches}

	case OpBr, OpBrIf, OpBrOnNull, OpBrOnNonNull:
		label, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{Label: LabelId(label)}

	case OpBrTable:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		labels := make([]LabelId, count)
		for i := range labels {
			v, err := r.ReadU32()
			if err != nil {
				return instr, err
			}
			labels[i] = LabelId(v)
		}
		def, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: LabelId(def)}

	case OpCall, OpReturnCall:
		if op == OpReturnCall && !features.TailCall {
			return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(op))
		}
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallImm{Func: FuncId(idx)}

	case OpCallIndirect, OpReturnCallIndirect:
		if op == OpReturnCallIndirect && !features.TailCall {
			return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(op))
		}
		ty, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		table, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallIndirectImm{Type: TypeId(ty), Table: TableId(table)}

	case OpCallRef, OpReturnCallRef:
		if op == OpReturnCallRef && !features.TailCall {
			return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(op))
		}
		ty, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallRefImm{Type: TypeId(ty)}

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{Local: LocalId(idx)}

	case OpGlobalGet, OpGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = GlobalImm{Global: GlobalId(idx)}

	case OpTableGet, OpTableSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = TableImm{Table: TableId(idx)}

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		m, err := decodeMemArg(r, features)
		if err != nil {
			return instr, err
		}
		instr.Imm = m

	case OpMemorySize, OpMemoryGrow:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		if idx != 0 && !features.MultiMemory {
			return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, idx)
		}
		instr.Imm = MemoryIdxImm{Mem: MemId(idx)}

	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{Value: v}

	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{Value: v}

	case OpF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{Value: v}

	case OpF64Const:
		v, err := r.ReadF64()
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{Value: v}

	case OpRefNull:
		ht, err := r.ReadS33()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefNullImm{HeapType: ht}

	case OpRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefFuncImm{Func: FuncId(idx)}

	case OpSelectType:
		count, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		types := make([]ValueType, count)
		for i := range types {
			types[i], err = decodeValueType(r)
			if err != nil {
				return instr, err
			}
		}
		instr.Imm = SelectTypeImm{Types: types}

	case PrefixMisc:
		return decodeMiscInstruction(r, features)

	case PrefixSIMD:
		return decodeSIMDInstruction(r, features)

	case PrefixAtomic:
		return decodeAtomicInstruction(r, features)

	case PrefixGC:
		return decodeGCInstruction(r, features)

	default:
		if isNumericOpcode(op) {
			// no immediate: comparisons, arithmetic, conversions, sign-extension
			break
		}
		return instr, codecerr.UnsupportedDiscriminant(codecerr.PhaseDecode, nil, uint32(op))
	}

	return instr, nil
}

func isNumericOpcode(op byte) bool {
	return op >= 0x45 && op <= opNumericRangeEnd
}

func encodeOneInstruction(w *binary.Writer, instr *Instruction) {
	w.WriteByte(instr.Opcode)
	switch imm := instr.Imm.(type) {
	case BlockImm:
		encodeBlockType(w, imm.Type)
	case ThrowImm:
		w.WriteU32(uint32(imm.Tag))
	case BranchImm:
		w.WriteU32(uint32(imm.Label))
	case TryTableImm:
		encodeBlockType(w, imm.Type)
		w.WriteU32(uint32(len(imm.Catches)))
		for _, c := range imm.Catches {
			encodeCatch(w, c)
		}
	case BrTableImm:
		w.WriteU32(uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			w.WriteU32(uint32(l))
		}
		w.WriteU32(uint32(imm.Default))
	case CallImm:
		w.WriteU32(uint32(imm.Func))
	case CallIndirectImm:
		w.WriteU32(uint32(imm.Type))
		w.WriteU32(uint32(imm.Table))
	case CallRefImm:
		w.WriteU32(uint32(imm.Type))
	case LocalImm:
		w.WriteU32(uint32(imm.Local))
	case GlobalImm:
		w.WriteU32(uint32(imm.Global))
	case TableImm:
		w.WriteU32(uint32(imm.Table))
	case MemArg:
		encodeMemArg(w, imm)
	case MemoryIdxImm:
		w.WriteU32(uint32(imm.Mem))
	case I32Imm:
		w.WriteS32(imm.Value)
	case I64Imm:
		w.WriteS64(imm.Value)
	case F32Imm:
		w.WriteF32(imm.Value)
	case F64Imm:
		w.WriteF64(imm.Value)
	case RefNullImm:
		w.WriteS33(imm.HeapType)
	case RefFuncImm:
		w.WriteU32(uint32(imm.Func))
	case SelectTypeImm:
		w.WriteU32(uint32(len(imm.Types)))
		for _, t := range imm.Types {
			w.WriteByte(byte(t))
		}
	case MiscImm:
		w.WriteU32(uint32(imm.SubOpcode))
		for _, o := range imm.Operands {
			w.WriteU32(o)
		}
	case SIMDImm:
		encodeSIMDImm(w, imm)
	case AtomicImm:
		w.WriteU32(imm.SubOpcode)
		if imm.SubOpcode == atomicFenceOp {
			w.WriteByte(0x00)
		} else {
			encodeMemArg(w, imm.MemArg)
		}
	case GCImm:
		encodeGCImm(w, imm)
	case nil:
		// no immediate
	}
}
