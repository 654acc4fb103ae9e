package vm

import (
	"fmt"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// compiledFn executes one pre-specialized instruction.
type compiledFn func(m *machine) error

// JITCompile lowers the program into an array of per-instruction closures
// indexed by pc. Decoding, wide-immediate folding and operand extraction
// happen once here instead of on every dispatch. The compiled form shares
// step with the interpreter, which is what makes the equivalence contract
// hold: identical return value, final memory, remaining budget and error
// text for any verified program and memory environment.
func (vm *VM) JITCompile() error {
	compiled := make([]compiledFn, vm.insnCount)
	for pc := 0; pc < vm.insnCount; pc++ {
		insn := ebpf.GetInsn(vm.prog, pc)
		if insn.Opcode == ebpf.LD_DW_IMM {
			if pc+1 >= vm.insnCount {
				return &JitError{Kind: CompilationFailed, Reason: fmt.Sprintf("truncated wide immediate at pc %d", pc)}
			}
			ebpf.AugmentLddw(vm.prog, &insn)
			half := insn.PC + 1
			compiled[half] = func(m *machine) error {
				return &RuntimeError{Kind: InvalidInstruction, PC: half}
			}
			pc++
		}
		bound := insn
		compiled[bound.PC] = func(m *machine) error {
			return vm.step(m, bound)
		}
	}
	vm.compiled = compiled
	return nil
}

// ExecuteJIT runs the compiled form over the given input buffer.
func (vm *VM) ExecuteJIT(input []byte) (uint64, error) {
	if vm.compiled == nil {
		if err := vm.JITCompile(); err != nil {
			return 0, err
		}
	}
	vm.freeze()
	vm.mem.reset(input)
	m := vm.newMachine(input)
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
		if err := vm.compiled[m.pc](m); err != nil {
			vm.remaining = m.remaining
			return 0, err
		}
	}
	vm.remaining = m.remaining
	return m.regs[0], nil
}
