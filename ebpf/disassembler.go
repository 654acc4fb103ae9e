package ebpf

import "fmt"

func offString(off int16) string {
	if off < 0 {
		return fmt.Sprintf("-0x%x", -int32(off))
	}
	return fmt.Sprintf("+0x%x", off)
}

func jumpTarget(off int16) string {
	if off < 0 {
		return fmt.Sprintf("-%d", -int32(off))
	}
	return fmt.Sprintf("+%d", off)
}

func aluImm(name string, insn Instruction) string {
	return fmt.Sprintf("%s r%d, %d", name, insn.Dst, insn.Imm)
}

func aluReg(name string, insn Instruction) string {
	return fmt.Sprintf("%s r%d, r%d", name, insn.Dst, insn.Src)
}

func jmpImm(name string, insn Instruction) string {
	return fmt.Sprintf("%s r%d, %d, %s", name, insn.Dst, insn.Imm, jumpTarget(insn.Off))
}

func jmpReg(name string, insn Instruction) string {
	return fmt.Sprintf("%s r%d, r%d, %s", name, insn.Dst, insn.Src, jumpTarget(insn.Off))
}

func loadReg(name string, insn Instruction) string {
	return fmt.Sprintf("%s r%d, [r%d%s]", name, insn.Dst, insn.Src, offString(insn.Off))
}

func storeImm(name string, insn Instruction) string {
	return fmt.Sprintf("%s [r%d%s], %d", name, insn.Dst, offString(insn.Off), insn.Imm)
}

func storeReg(name string, insn Instruction) string {
	return fmt.Sprintf("%s [r%d%s], r%d", name, insn.Dst, offString(insn.Off), insn.Src)
}

// Disasm renders one decoded instruction as canonical assembler text.
func Disasm(insn Instruction) string {
	switch insn.Opcode {
	case LD_DW_IMM:
		return fmt.Sprintf("lddw r%d, 0x%x", insn.Dst, uint64(insn.Imm))
	case LD_ABS_B:
		return fmt.Sprintf("ldabsb 0x%x", insn.Imm)
	case LD_ABS_H:
		return fmt.Sprintf("ldabsh 0x%x", insn.Imm)
	case LD_ABS_W:
		return fmt.Sprintf("ldabsw 0x%x", insn.Imm)
	case LD_ABS_DW:
		return fmt.Sprintf("ldabsdw 0x%x", insn.Imm)
	case LD_IND_B:
		return fmt.Sprintf("ldindb r%d, 0x%x", insn.Src, insn.Imm)
	case LD_IND_H:
		return fmt.Sprintf("ldindh r%d, 0x%x", insn.Src, insn.Imm)
	case LD_IND_W:
		return fmt.Sprintf("ldindw r%d, 0x%x", insn.Src, insn.Imm)
	case LD_IND_DW:
		return fmt.Sprintf("ldinddw r%d, 0x%x", insn.Src, insn.Imm)

	case LD_B_REG:
		return loadReg("ldxb", insn)
	case LD_H_REG:
		return loadReg("ldxh", insn)
	case LD_W_REG:
		return loadReg("ldxw", insn)
	case LD_DW_REG:
		return loadReg("ldxdw", insn)

	case ST_B_IMM:
		return storeImm("stb", insn)
	case ST_H_IMM:
		return storeImm("sth", insn)
	case ST_W_IMM:
		return storeImm("stw", insn)
	case ST_DW_IMM:
		return storeImm("stdw", insn)

	case ST_B_REG:
		return storeReg("stxb", insn)
	case ST_H_REG:
		return storeReg("stxh", insn)
	case ST_W_REG:
		return storeReg("stxw", insn)
	case ST_DW_REG:
		return storeReg("stxdw", insn)

	case ADD32_IMM:
		return aluImm("add32", insn)
	case ADD32_REG:
		return aluReg("add32", insn)
	case SUB32_IMM:
		return aluImm("sub32", insn)
	case SUB32_REG:
		return aluReg("sub32", insn)
	case MUL32_IMM:
		return aluImm("mul32", insn)
	case MUL32_REG:
		return aluReg("mul32", insn)
	case DIV32_IMM:
		return aluImm("div32", insn)
	case DIV32_REG:
		return aluReg("div32", insn)
	case OR32_IMM:
		return aluImm("or32", insn)
	case OR32_REG:
		return aluReg("or32", insn)
	case AND32_IMM:
		return aluImm("and32", insn)
	case AND32_REG:
		return aluReg("and32", insn)
	case LSH32_IMM:
		return aluImm("lsh32", insn)
	case LSH32_REG:
		return aluReg("lsh32", insn)
	case RSH32_IMM:
		return aluImm("rsh32", insn)
	case RSH32_REG:
		return aluReg("rsh32", insn)
	case NEG32:
		return fmt.Sprintf("neg32 r%d", insn.Dst)
	case MOD32_IMM:
		return aluImm("mod32", insn)
	case MOD32_REG:
		return aluReg("mod32", insn)
	case XOR32_IMM:
		return aluImm("xor32", insn)
	case XOR32_REG:
		return aluReg("xor32", insn)
	case MOV32_IMM:
		return aluImm("mov32", insn)
	case MOV32_REG:
		return aluReg("mov32", insn)
	case ARSH32_IMM:
		return aluImm("arsh32", insn)
	case ARSH32_REG:
		return aluReg("arsh32", insn)
	case LE:
		return fmt.Sprintf("le%d r%d", insn.Imm, insn.Dst)
	case BE:
		return fmt.Sprintf("be%d r%d", insn.Imm, insn.Dst)

	case ADD64_IMM:
		return aluImm("add64", insn)
	case ADD64_REG:
		return aluReg("add64", insn)
	case SUB64_IMM:
		return aluImm("sub64", insn)
	case SUB64_REG:
		return aluReg("sub64", insn)
	case MUL64_IMM:
		return aluImm("mul64", insn)
	case MUL64_REG:
		return aluReg("mul64", insn)
	case DIV64_IMM:
		return aluImm("div64", insn)
	case DIV64_REG:
		return aluReg("div64", insn)
	case OR64_IMM:
		return aluImm("or64", insn)
	case OR64_REG:
		return aluReg("or64", insn)
	case AND64_IMM:
		return aluImm("and64", insn)
	case AND64_REG:
		return aluReg("and64", insn)
	case LSH64_IMM:
		return aluImm("lsh64", insn)
	case LSH64_REG:
		return aluReg("lsh64", insn)
	case RSH64_IMM:
		return aluImm("rsh64", insn)
	case RSH64_REG:
		return aluReg("rsh64", insn)
	case NEG64:
		return fmt.Sprintf("neg64 r%d", insn.Dst)
	case MOD64_IMM:
		return aluImm("mod64", insn)
	case MOD64_REG:
		return aluReg("mod64", insn)
	case XOR64_IMM:
		return aluImm("xor64", insn)
	case XOR64_REG:
		return aluReg("xor64", insn)
	case MOV64_IMM:
		return aluImm("mov64", insn)
	case MOV64_REG:
		return aluReg("mov64", insn)
	case ARSH64_IMM:
		return aluImm("arsh64", insn)
	case ARSH64_REG:
		return aluReg("arsh64", insn)

	case JA:
		return fmt.Sprintf("ja %s", jumpTarget(insn.Off))
	case JEQ_IMM:
		return jmpImm("jeq", insn)
	case JEQ_REG:
		return jmpReg("jeq", insn)
	case JGT_IMM:
		return jmpImm("jgt", insn)
	case JGT_REG:
		return jmpReg("jgt", insn)
	case JGE_IMM:
		return jmpImm("jge", insn)
	case JGE_REG:
		return jmpReg("jge", insn)
	case JLT_IMM:
		return jmpImm("jlt", insn)
	case JLT_REG:
		return jmpReg("jlt", insn)
	case JLE_IMM:
		return jmpImm("jle", insn)
	case JLE_REG:
		return jmpReg("jle", insn)
	case JSET_IMM:
		return jmpImm("jset", insn)
	case JSET_REG:
		return jmpReg("jset", insn)
	case JNE_IMM:
		return jmpImm("jne", insn)
	case JNE_REG:
		return jmpReg("jne", insn)
	case JSGT_IMM:
		return jmpImm("jsgt", insn)
	case JSGT_REG:
		return jmpReg("jsgt", insn)
	case JSGE_IMM:
		return jmpImm("jsge", insn)
	case JSGE_REG:
		return jmpReg("jsge", insn)
	case JSLT_IMM:
		return jmpImm("jslt", insn)
	case JSLT_REG:
		return jmpReg("jslt", insn)
	case JSLE_IMM:
		return jmpImm("jsle", insn)
	case JSLE_REG:
		return jmpReg("jsle", insn)

	case CALL_IMM:
		return fmt.Sprintf("call 0x%x", uint32(insn.Imm))
	case CALL_REG:
		return fmt.Sprintf("callx r%d", insn.Imm)
	case EXIT:
		return "exit"
	}
	return fmt.Sprintf("unknown opcode 0x%02x", insn.Opcode)
}
