package vm

import (
	"math/bits"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// machine is the mutable execution state of one run: the register file,
// the call frames and the instruction meter.
type machine struct {
	regs      [ebpf.RegisterCount]uint64
	pc        int
	frames    []frame
	remaining uint64
	done      bool
}

// frame saves the callee-saved registers and the return pc across a
// bytecode function call.
type frame struct {
	saved [ebpf.ScratchRegs]uint64
	retPC int
}

// run drives the dispatch loop: decode at pc, charge the meter, step.
// Interpreted and compiled execution share step, so they agree bit for bit.
func (vm *VM) run(m *machine) (uint64, error) {
	for !m.done {
		if m.remaining == 0 {
			vm.remaining = 0
			return 0, &RuntimeError{Kind: ExceededMaxInstructions}
		}
		m.remaining--
		if m.pc < 0 || m.pc >= vm.insnCount {
			vm.remaining = m.remaining
			return 0, &RuntimeError{Kind: InvalidInstruction, PC: m.pc}
		}
		insn := ebpf.GetInsn(vm.prog, m.pc)
		if insn.Opcode == ebpf.LD_DW_IMM {
			if m.pc+1 >= vm.insnCount {
				vm.remaining = m.remaining
				return 0, &RuntimeError{Kind: InvalidInstruction, PC: m.pc}
			}
			ebpf.AugmentLddw(vm.prog, &insn)
		}
		if vm.Trace != nil && vm.Trace.Enabled {
			vm.Trace.RecordInstruction(m.pc, insn)
		}
		if err := vm.step(m, insn); err != nil {
			vm.remaining = m.remaining
			return 0, err
		}
	}
	vm.remaining = m.remaining
	return m.regs[0], nil
}

// step executes exactly one decoded instruction against the machine state
// and the memory environment, leaving pc at the next instruction.
func (vm *VM) step(m *machine, insn ebpf.Instruction) error {
	dst := insn.Dst
	src := insn.Src
	imm := insn.Imm
	next := insn.PC + 1
	if insn.IsWide() {
		next++
	}

	switch insn.Opcode {
	case ebpf.LD_DW_IMM:
		m.regs[dst] = uint64(imm)

	case ebpf.LD_ABS_B, ebpf.LD_ABS_H, ebpf.LD_ABS_W, ebpf.LD_ABS_DW:
		value, err := vm.mem.loadAbs(uint64(imm), absSize(insn.Opcode))
		if err != nil {
			return err
		}
		m.regs[0] = value
	case ebpf.LD_IND_B, ebpf.LD_IND_H, ebpf.LD_IND_W, ebpf.LD_IND_DW:
		value, err := vm.mem.loadAbs(m.regs[src]+uint64(imm), absSize(insn.Opcode))
		if err != nil {
			return err
		}
		m.regs[0] = value

	case ebpf.LD_B_REG, ebpf.LD_H_REG, ebpf.LD_W_REG, ebpf.LD_DW_REG:
		value, err := vm.mem.load(m.regs[src]+uint64(int64(insn.Off)), memSize(insn.Opcode))
		if err != nil {
			return err
		}
		m.regs[dst] = value
	case ebpf.ST_B_IMM, ebpf.ST_H_IMM, ebpf.ST_W_IMM, ebpf.ST_DW_IMM:
		if err := vm.mem.store(m.regs[dst]+uint64(int64(insn.Off)), memSize(insn.Opcode), uint64(imm)); err != nil {
			return err
		}
	case ebpf.ST_B_REG, ebpf.ST_H_REG, ebpf.ST_W_REG, ebpf.ST_DW_REG:
		if err := vm.mem.store(m.regs[dst]+uint64(int64(insn.Off)), memSize(insn.Opcode), m.regs[src]); err != nil {
			return err
		}

	// 32-bit ALU: operate on the low halves, zero-extend the result.
	case ebpf.ADD32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) + uint32(imm))
	case ebpf.ADD32_REG:
		m.regs[dst] = uint64(uint32(m.regs[dst]) + uint32(m.regs[src]))
	case ebpf.SUB32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) - uint32(imm))
	case ebpf.SUB32_REG:
		m.regs[dst] = uint64(uint32(m.regs[dst]) - uint32(m.regs[src]))
	case ebpf.MUL32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) * uint32(imm))
	case ebpf.MUL32_REG:
		m.regs[dst] = uint64(uint32(m.regs[dst]) * uint32(m.regs[src]))
	case ebpf.DIV32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) / uint32(imm))
	case ebpf.DIV32_REG:
		m.regs[dst] = uint64(div32(uint32(m.regs[dst]), uint32(m.regs[src])))
	case ebpf.OR32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) | uint32(imm))
	case ebpf.OR32_REG:
		m.regs[dst] = uint64(uint32(m.regs[dst]) | uint32(m.regs[src]))
	case ebpf.AND32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) & uint32(imm))
	case ebpf.AND32_REG:
		m.regs[dst] = uint64(uint32(m.regs[dst]) & uint32(m.regs[src]))
	case ebpf.LSH32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) << (uint32(imm) & 31))
	case ebpf.LSH32_REG:
		m.regs[dst] = uint64(uint32(m.regs[dst]) << (uint32(m.regs[src]) & 31))
	case ebpf.RSH32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) >> (uint32(imm) & 31))
	case ebpf.RSH32_REG:
		m.regs[dst] = uint64(uint32(m.regs[dst]) >> (uint32(m.regs[src]) & 31))
	case ebpf.NEG32:
		m.regs[dst] = uint64(uint32(-int32(m.regs[dst])))
	case ebpf.MOD32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) % uint32(imm))
	case ebpf.MOD32_REG:
		m.regs[dst] = uint64(mod32(uint32(m.regs[dst]), uint32(m.regs[src])))
	case ebpf.XOR32_IMM:
		m.regs[dst] = uint64(uint32(m.regs[dst]) ^ uint32(imm))
	case ebpf.XOR32_REG:
		m.regs[dst] = uint64(uint32(m.regs[dst]) ^ uint32(m.regs[src]))
	case ebpf.MOV32_IMM:
		m.regs[dst] = uint64(uint32(imm))
	case ebpf.MOV32_REG:
		m.regs[dst] = uint64(uint32(m.regs[src]))
	case ebpf.ARSH32_IMM:
		m.regs[dst] = uint64(uint32(int32(m.regs[dst]) >> (uint32(imm) & 31)))
	case ebpf.ARSH32_REG:
		m.regs[dst] = uint64(uint32(int32(m.regs[dst]) >> (uint32(m.regs[src]) & 31)))

	case ebpf.LE:
		switch imm {
		case 16:
			m.regs[dst] = uint64(uint16(m.regs[dst]))
		case 32:
			m.regs[dst] = uint64(uint32(m.regs[dst]))
		}
	case ebpf.BE:
		switch imm {
		case 16:
			m.regs[dst] = uint64(bits.ReverseBytes16(uint16(m.regs[dst])))
		case 32:
			m.regs[dst] = uint64(bits.ReverseBytes32(uint32(m.regs[dst])))
		case 64:
			m.regs[dst] = bits.ReverseBytes64(m.regs[dst])
		}

	// 64-bit ALU
	case ebpf.ADD64_IMM:
		m.regs[dst] += uint64(imm)
	case ebpf.ADD64_REG:
		m.regs[dst] += m.regs[src]
	case ebpf.SUB64_IMM:
		m.regs[dst] -= uint64(imm)
	case ebpf.SUB64_REG:
		m.regs[dst] -= m.regs[src]
	case ebpf.MUL64_IMM:
		m.regs[dst] *= uint64(imm)
	case ebpf.MUL64_REG:
		m.regs[dst] *= m.regs[src]
	case ebpf.DIV64_IMM:
		m.regs[dst] /= uint64(imm)
	case ebpf.DIV64_REG:
		m.regs[dst] = div64(m.regs[dst], m.regs[src])
	case ebpf.OR64_IMM:
		m.regs[dst] |= uint64(imm)
	case ebpf.OR64_REG:
		m.regs[dst] |= m.regs[src]
	case ebpf.AND64_IMM:
		m.regs[dst] &= uint64(imm)
	case ebpf.AND64_REG:
		m.regs[dst] &= m.regs[src]
	case ebpf.LSH64_IMM:
		m.regs[dst] <<= uint64(imm) & 63
	case ebpf.LSH64_REG:
		m.regs[dst] <<= m.regs[src] & 63
	case ebpf.RSH64_IMM:
		m.regs[dst] >>= uint64(imm) & 63
	case ebpf.RSH64_REG:
		m.regs[dst] >>= m.regs[src] & 63
	case ebpf.NEG64:
		m.regs[dst] = uint64(-int64(m.regs[dst]))
	case ebpf.MOD64_IMM:
		m.regs[dst] %= uint64(imm)
	case ebpf.MOD64_REG:
		m.regs[dst] = mod64(m.regs[dst], m.regs[src])
	case ebpf.XOR64_IMM:
		m.regs[dst] ^= uint64(imm)
	case ebpf.XOR64_REG:
		m.regs[dst] ^= m.regs[src]
	case ebpf.MOV64_IMM:
		m.regs[dst] = uint64(imm)
	case ebpf.MOV64_REG:
		m.regs[dst] = m.regs[src]
	case ebpf.ARSH64_IMM:
		m.regs[dst] = uint64(int64(m.regs[dst]) >> (uint64(imm) & 63))
	case ebpf.ARSH64_REG:
		m.regs[dst] = uint64(int64(m.regs[dst]) >> (m.regs[src] & 63))

	case ebpf.JA:
		next = jumpPC(insn)
		vm.recordEdge(insn.PC, next)
	case ebpf.JEQ_IMM:
		next = vm.branch(m, insn, m.regs[dst] == uint64(imm))
	case ebpf.JEQ_REG:
		next = vm.branch(m, insn, m.regs[dst] == m.regs[src])
	case ebpf.JGT_IMM:
		next = vm.branch(m, insn, m.regs[dst] > uint64(imm))
	case ebpf.JGT_REG:
		next = vm.branch(m, insn, m.regs[dst] > m.regs[src])
	case ebpf.JGE_IMM:
		next = vm.branch(m, insn, m.regs[dst] >= uint64(imm))
	case ebpf.JGE_REG:
		next = vm.branch(m, insn, m.regs[dst] >= m.regs[src])
	case ebpf.JLT_IMM:
		next = vm.branch(m, insn, m.regs[dst] < uint64(imm))
	case ebpf.JLT_REG:
		next = vm.branch(m, insn, m.regs[dst] < m.regs[src])
	case ebpf.JLE_IMM:
		next = vm.branch(m, insn, m.regs[dst] <= uint64(imm))
	case ebpf.JLE_REG:
		next = vm.branch(m, insn, m.regs[dst] <= m.regs[src])
	case ebpf.JSET_IMM:
		next = vm.branch(m, insn, m.regs[dst]&uint64(imm) != 0)
	case ebpf.JSET_REG:
		next = vm.branch(m, insn, m.regs[dst]&m.regs[src] != 0)
	case ebpf.JNE_IMM:
		next = vm.branch(m, insn, m.regs[dst] != uint64(imm))
	case ebpf.JNE_REG:
		next = vm.branch(m, insn, m.regs[dst] != m.regs[src])
	case ebpf.JSGT_IMM:
		next = vm.branch(m, insn, int64(m.regs[dst]) > imm)
	case ebpf.JSGT_REG:
		next = vm.branch(m, insn, int64(m.regs[dst]) > int64(m.regs[src]))
	case ebpf.JSGE_IMM:
		next = vm.branch(m, insn, int64(m.regs[dst]) >= imm)
	case ebpf.JSGE_REG:
		next = vm.branch(m, insn, int64(m.regs[dst]) >= int64(m.regs[src]))
	case ebpf.JSLT_IMM:
		next = vm.branch(m, insn, int64(m.regs[dst]) < imm)
	case ebpf.JSLT_REG:
		next = vm.branch(m, insn, int64(m.regs[dst]) < int64(m.regs[src]))
	case ebpf.JSLE_IMM:
		next = vm.branch(m, insn, int64(m.regs[dst]) <= imm)
	case ebpf.JSLE_REG:
		next = vm.branch(m, insn, int64(m.regs[dst]) <= int64(m.regs[src]))

	case ebpf.CALL_IMM:
		id := uint32(imm)
		if entry, ok := vm.functions.lookupByID(id); ok {
			if err := m.pushFrame(next, vm.MaxCallDepth); err != nil {
				return err
			}
			next = entry
		} else if helper, ok := vm.helpers.lookup(id); ok {
			ret, err := helper(m.regs[1], m.regs[2], m.regs[3], m.regs[4], m.regs[5])
			if err != nil {
				return &RuntimeError{Kind: HelperError, PC: insn.PC, Err: err}
			}
			m.regs[0] = ret
		} else {
			return &RuntimeError{Kind: UnknownHelper, PC: insn.PC, ID: id}
		}
	case ebpf.CALL_REG:
		target := int(m.regs[imm])
		if !vm.functions.isEntry(target) {
			return &RuntimeError{Kind: UnknownCallTarget, PC: insn.PC}
		}
		if err := m.pushFrame(next, vm.MaxCallDepth); err != nil {
			return err
		}
		next = target
	case ebpf.EXIT:
		if len(m.frames) == 0 {
			m.done = true
		} else {
			next = m.popFrame()
		}

	default:
		return &RuntimeError{Kind: InvalidInstruction, PC: insn.PC}
	}

	m.pc = next
	return nil
}

// branch resolves a conditional jump and records the taken edge.
func (vm *VM) branch(m *machine, insn ebpf.Instruction, taken bool) int {
	next := insn.PC + 1
	if taken {
		next = jumpPC(insn)
	}
	vm.recordEdge(insn.PC, next)
	return next
}

func jumpPC(insn ebpf.Instruction) int {
	return insn.PC + int(insn.Off) + 1
}

func (m *machine) pushFrame(retPC, maxDepth int) error {
	if len(m.frames) >= maxDepth {
		return &RuntimeError{Kind: CallStackOverflow}
	}
	f := frame{retPC: retPC}
	copy(f.saved[:], m.regs[ebpf.FirstScratchReg:ebpf.FirstScratchReg+ebpf.ScratchRegs])
	m.frames = append(m.frames, f)
	return nil
}

func (m *machine) popFrame() int {
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	copy(m.regs[ebpf.FirstScratchReg:ebpf.FirstScratchReg+ebpf.ScratchRegs], f.saved[:])
	return f.retPC
}

// Runtime division by zero writes 0 to the destination and execution
// continues; this matches the kernel. Immediate-zero divisors never reach
// here, the verifier rejects them.
func div32(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return a / b
}

func mod32(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return a % b
}

func div64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func mod64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return a % b
}

func absSize(opcode uint8) int {
	switch opcode {
	case ebpf.LD_ABS_B, ebpf.LD_IND_B:
		return 1
	case ebpf.LD_ABS_H, ebpf.LD_IND_H:
		return 2
	case ebpf.LD_ABS_W, ebpf.LD_IND_W:
		return 4
	}
	return 8
}

func memSize(opcode uint8) int {
	switch opcode & 0x18 {
	case ebpf.SizeB:
		return 1
	case ebpf.SizeH:
		return 2
	case ebpf.SizeW:
		return 4
	}
	return 8
}
