package vm

import (
	"github.com/hcudev/solana-rpdf/ebpf"
)

// Session is a stepwise execution of one program over one input, used by
// the TUI inspector. It shares all semantics with Execute.
type Session struct {
	vm   *VM
	m    *machine
	err  error
	done bool
}

// NewSession resets the VM state around the input buffer and positions
// execution at the entrypoint without running anything.
func (vm *VM) NewSession(input []byte) *Session {
	vm.freeze()
	vm.mem.reset(input)
	return &Session{vm: vm, m: vm.newMachine(input)}
}

// Step executes a single instruction. It reports whether execution has
// finished, either by exiting or by failing.
func (s *Session) Step() (bool, error) {
	if s.done || s.err != nil {
		return true, s.err
	}
	vm := s.vm
	m := s.m
	if m.remaining == 0 {
		s.fail(&RuntimeError{Kind: ExceededMaxInstructions})
		return true, s.err
	}
	m.remaining--
	if m.pc < 0 || m.pc >= vm.insnCount {
		s.fail(&RuntimeError{Kind: InvalidInstruction, PC: m.pc})
		return true, s.err
	}
	insn := ebpf.GetInsn(vm.prog, m.pc)
	if insn.Opcode == ebpf.LD_DW_IMM {
		if m.pc+1 >= vm.insnCount {
			s.fail(&RuntimeError{Kind: InvalidInstruction, PC: m.pc})
			return true, s.err
		}
		ebpf.AugmentLddw(vm.prog, &insn)
	}
	if err := vm.step(m, insn); err != nil {
		s.fail(err)
		return true, s.err
	}
	if m.done {
		s.done = true
		vm.remaining = m.remaining
	}
	return s.done, nil
}

func (s *Session) fail(err error) {
	s.err = err
	s.done = true
	s.vm.remaining = s.m.remaining
}

// Run steps until the execution finishes.
func (s *Session) Run() (uint64, error) {
	for {
		done, err := s.Step()
		if err != nil {
			return 0, err
		}
		if done {
			return s.Result(), s.err
		}
	}
}

// PC returns the next instruction to execute.
func (s *Session) PC() int { return s.m.pc }

// Registers returns a snapshot of the register file.
func (s *Session) Registers() [ebpf.RegisterCount]uint64 { return s.m.regs }

// Remaining returns the instruction meter left.
func (s *Session) Remaining() uint64 { return s.m.remaining }

// CallDepth returns the current function nesting depth.
func (s *Session) CallDepth() int { return len(s.m.frames) }

// Result returns r0; meaningful once the session is done without error.
func (s *Session) Result() uint64 { return s.m.regs[0] }

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error { return s.err }

// ReadGuestMemory copies size bytes from the guest address space, for
// inspection tooling.
func (vm *VM) ReadGuestMemory(addr uint64, size int) ([]byte, error) {
	host, err := vm.mem.translate(addr, size, false)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, host)
	return out, nil
}
