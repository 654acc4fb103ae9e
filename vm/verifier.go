package vm

import (
	"github.com/hcudev/solana-rpdf/ebpf"
)

// DefaultMaxInstructions bounds the accepted program size
const DefaultMaxInstructions = 65536

// Verify statically checks raw instruction bytes before any execution.
// It is pure: the same input always yields the same verdict.
func Verify(prog []byte, maxInstructions int) error {
	if len(prog) == 0 || len(prog)%ebpf.InsnSize != 0 {
		return &VerifierError{Kind: ProgramLengthNotMultipleOfEight, Detail: int64(len(prog))}
	}
	count := len(prog) / ebpf.InsnSize
	if count > maxInstructions {
		return &VerifierError{Kind: ProgramTooLong, Detail: int64(count)}
	}

	// Walk the program once, remembering which slots are the second half
	// of a wide immediate so branch targets can be checked against them.
	wideHalf := make(map[int]bool)
	lastPC := -1
	for pc := 0; pc < count; pc++ {
		insn := ebpf.GetInsn(prog, pc)
		lastPC = pc
		if err := verifyInsn(insn, pc); err != nil {
			return err
		}
		if insn.Opcode == ebpf.LD_DW_IMM {
			if pc+1 >= count {
				return &VerifierError{Kind: NoExit}
			}
			wideHalf[pc+1] = true
			pc++
		}
	}

	// The final instruction must be EXIT, or an unconditional jump whose
	// target is EXIT.
	last := ebpf.GetInsn(prog, lastPC)
	switch last.Opcode {
	case ebpf.EXIT:
	case ebpf.JA:
		target := lastPC + int(last.Off) + 1
		if target < 0 || target >= count || wideHalf[target] ||
			ebpf.GetInsn(prog, target).Opcode != ebpf.EXIT {
			return &VerifierError{Kind: NoExit}
		}
	default:
		return &VerifierError{Kind: NoExit}
	}

	// Branch offsets must resolve to in-range, instruction-aligned slots
	// outside of wide-immediate second halves.
	for pc := 0; pc < count; pc++ {
		if wideHalf[pc] {
			continue
		}
		insn := ebpf.GetInsn(prog, pc)
		if !isBranch(insn.Opcode) {
			continue
		}
		target := pc + int(insn.Off) + 1
		if target < 0 || target >= count {
			return &VerifierError{Kind: JumpOutOfCode, PC: pc}
		}
		if wideHalf[target] {
			return &VerifierError{Kind: JumpToWideImmediateHalf, PC: pc}
		}
	}
	return nil
}

func isBranch(opcode uint8) bool {
	switch opcode {
	case ebpf.JA,
		ebpf.JEQ_IMM, ebpf.JEQ_REG, ebpf.JGT_IMM, ebpf.JGT_REG,
		ebpf.JGE_IMM, ebpf.JGE_REG, ebpf.JLT_IMM, ebpf.JLT_REG,
		ebpf.JLE_IMM, ebpf.JLE_REG, ebpf.JSET_IMM, ebpf.JSET_REG,
		ebpf.JNE_IMM, ebpf.JNE_REG, ebpf.JSGT_IMM, ebpf.JSGT_REG,
		ebpf.JSGE_IMM, ebpf.JSGE_REG, ebpf.JSLT_IMM, ebpf.JSLT_REG,
		ebpf.JSLE_IMM, ebpf.JSLE_REG:
		return true
	}
	return false
}

// verifyInsn checks the operands of a single instruction: register
// indices, immediate divisors and shift amounts, and opcode validity.
func verifyInsn(insn ebpf.Instruction, pc int) error {
	writesDst := false
	readsSrc := false

	switch insn.Opcode {
	case ebpf.LD_DW_IMM:
		writesDst = true
	case ebpf.LD_ABS_B, ebpf.LD_ABS_H, ebpf.LD_ABS_W, ebpf.LD_ABS_DW:
		// writes r0 only
	case ebpf.LD_IND_B, ebpf.LD_IND_H, ebpf.LD_IND_W, ebpf.LD_IND_DW:
		readsSrc = true
	case ebpf.LD_B_REG, ebpf.LD_H_REG, ebpf.LD_W_REG, ebpf.LD_DW_REG:
		writesDst = true
		readsSrc = true
	case ebpf.ST_B_IMM, ebpf.ST_H_IMM, ebpf.ST_W_IMM, ebpf.ST_DW_IMM:
	case ebpf.ST_B_REG, ebpf.ST_H_REG, ebpf.ST_W_REG, ebpf.ST_DW_REG:
		readsSrc = true

	case ebpf.DIV32_IMM, ebpf.MOD32_IMM, ebpf.DIV64_IMM, ebpf.MOD64_IMM:
		if insn.Imm == 0 {
			return &VerifierError{Kind: DivisionByZero, PC: pc}
		}
		writesDst = true
	case ebpf.LSH32_IMM, ebpf.RSH32_IMM, ebpf.ARSH32_IMM:
		if insn.Imm < 0 || insn.Imm >= 32 {
			return &VerifierError{Kind: ShiftWithOverflow, PC: pc, Detail: insn.Imm}
		}
		writesDst = true
	case ebpf.LSH64_IMM, ebpf.RSH64_IMM, ebpf.ARSH64_IMM:
		if insn.Imm < 0 || insn.Imm >= 64 {
			return &VerifierError{Kind: ShiftWithOverflow, PC: pc, Detail: insn.Imm}
		}
		writesDst = true

	case ebpf.ADD32_IMM, ebpf.SUB32_IMM, ebpf.MUL32_IMM, ebpf.OR32_IMM,
		ebpf.AND32_IMM, ebpf.XOR32_IMM, ebpf.MOV32_IMM, ebpf.NEG32,
		ebpf.LE, ebpf.BE,
		ebpf.ADD64_IMM, ebpf.SUB64_IMM, ebpf.MUL64_IMM, ebpf.OR64_IMM,
		ebpf.AND64_IMM, ebpf.XOR64_IMM, ebpf.MOV64_IMM, ebpf.NEG64:
		writesDst = true

	case ebpf.ADD32_REG, ebpf.SUB32_REG, ebpf.MUL32_REG, ebpf.DIV32_REG,
		ebpf.OR32_REG, ebpf.AND32_REG, ebpf.LSH32_REG, ebpf.RSH32_REG,
		ebpf.MOD32_REG, ebpf.XOR32_REG, ebpf.MOV32_REG, ebpf.ARSH32_REG,
		ebpf.ADD64_REG, ebpf.SUB64_REG, ebpf.MUL64_REG, ebpf.DIV64_REG,
		ebpf.OR64_REG, ebpf.AND64_REG, ebpf.LSH64_REG, ebpf.RSH64_REG,
		ebpf.MOD64_REG, ebpf.XOR64_REG, ebpf.MOV64_REG, ebpf.ARSH64_REG:
		writesDst = true
		readsSrc = true

	case ebpf.JA, ebpf.EXIT, ebpf.CALL_IMM:
	case ebpf.CALL_REG:
		if insn.Imm < 0 || insn.Imm >= ebpf.FramePointerReg {
			return &VerifierError{Kind: InvalidRegister, PC: pc, Detail: insn.Imm}
		}
	case ebpf.JEQ_IMM, ebpf.JGT_IMM, ebpf.JGE_IMM, ebpf.JLT_IMM,
		ebpf.JLE_IMM, ebpf.JSET_IMM, ebpf.JNE_IMM, ebpf.JSGT_IMM,
		ebpf.JSGE_IMM, ebpf.JSLT_IMM, ebpf.JSLE_IMM:
	case ebpf.JEQ_REG, ebpf.JGT_REG, ebpf.JGE_REG, ebpf.JLT_REG,
		ebpf.JLE_REG, ebpf.JSET_REG, ebpf.JNE_REG, ebpf.JSGT_REG,
		ebpf.JSGE_REG, ebpf.JSLT_REG, ebpf.JSLE_REG:
		readsSrc = true

	default:
		return &VerifierError{Kind: UnknownOpcode, PC: pc, Detail: int64(insn.Opcode)}
	}

	if insn.Dst >= ebpf.RegisterCount {
		return &VerifierError{Kind: InvalidRegister, PC: pc, Detail: int64(insn.Dst)}
	}
	if writesDst && insn.Dst == ebpf.FramePointerReg {
		return &VerifierError{Kind: InvalidRegister, PC: pc, Detail: int64(insn.Dst)}
	}
	if readsSrc && insn.Src >= ebpf.RegisterCount {
		return &VerifierError{Kind: InvalidRegister, PC: pc, Detail: int64(insn.Src)}
	}
	return nil
}
