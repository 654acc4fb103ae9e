package ebpf

import (
	"encoding/binary"
	"fmt"
)

// Instruction is one decoded instruction word. For the 64-bit immediate
// load the decoded form spans two words and Imm carries the folded 64-bit
// constant; PC always refers to the first word.
type Instruction struct {
	// PC is the index of the instruction in the program
	PC int
	// Opcode selects class, size and mode (loads/stores) or operation
	Opcode uint8
	// Dst is the destination register index (low nibble of byte 1)
	Dst uint8
	// Src is the source register index (high nibble of byte 1)
	Src uint8
	// Off is the signed 16-bit offset operand
	Off int16
	// Imm is the immediate operand, sign-extended to 64 bits
	Imm int64
}

// GetInsn decodes the instruction word at pc. The program length must be a
// multiple of InsnSize and pc must be in range; callers validate both.
func GetInsn(prog []byte, pc int) Instruction {
	base := pc * InsnSize
	return Instruction{
		PC:     pc,
		Opcode: prog[base],
		Dst:    prog[base+1] & 0x0f,
		Src:    prog[base+1] >> 4,
		Off:    int16(binary.LittleEndian.Uint16(prog[base+2 : base+4])),
		Imm:    int64(int32(binary.LittleEndian.Uint32(prog[base+4 : base+8]))),
	}
}

// AugmentLddw folds the second word of a two-word immediate load into the
// high half of the decoded 64-bit constant. The caller has already checked
// that pc+1 is in range.
func AugmentLddw(prog []byte, insn *Instruction) {
	base := (insn.PC + 1) * InsnSize
	hi := binary.LittleEndian.Uint32(prog[base+4 : base+8])
	insn.Imm = int64(uint64(uint32(insn.Imm)) | uint64(hi)<<32)
}

// Decode turns raw program bytes into the instruction vector used by the
// static analysis. Wide-immediate loads appear once, already augmented.
// A program whose last instruction is a wide-immediate half-pair is
// malformed.
func Decode(prog []byte) ([]Instruction, error) {
	if len(prog)%InsnSize != 0 {
		return nil, fmt.Errorf("program length %d is not a multiple of %d", len(prog), InsnSize)
	}
	count := len(prog) / InsnSize
	instructions := make([]Instruction, 0, count)
	for pc := 0; pc < count; pc++ {
		insn := GetInsn(prog, pc)
		if insn.Opcode == LD_DW_IMM {
			if pc+1 >= count {
				return nil, fmt.Errorf("wide immediate load at pc %d is missing its second word", pc)
			}
			AugmentLddw(prog, &insn)
			pc++
		}
		instructions = append(instructions, insn)
	}
	return instructions, nil
}

// Bytes encodes the instruction back into its 8-byte wire form. Wide
// immediates emit both words.
func (insn Instruction) Bytes() []byte {
	buf := make([]byte, InsnSize)
	buf[0] = insn.Opcode
	buf[1] = insn.Dst&0x0f | insn.Src<<4
	binary.LittleEndian.PutUint16(buf[2:4], uint16(insn.Off))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(insn.Imm))
	if insn.Opcode == LD_DW_IMM {
		second := make([]byte, InsnSize)
		binary.LittleEndian.PutUint32(second[4:8], uint32(uint64(insn.Imm)>>32))
		buf = append(buf, second...)
	}
	return buf
}

// IsWide reports whether the instruction occupies two program slots.
func (insn Instruction) IsWide() bool {
	return insn.Opcode == LD_DW_IMM
}
