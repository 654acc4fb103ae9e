package vm

import (
	"bytes"
	"testing"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// diffTest executes a program twice, interpreted and compiled, over two
// copies of the same input, and requires identical return values, error
// strings, remaining budgets and final memory.
func diffTest(t *testing.T, prog, input []byte, budget uint64, setup func(*VM)) {
	t.Helper()

	interpMem := append([]byte(nil), input...)
	jitMem := append([]byte(nil), input...)

	interpVM, err := NewRaw(prog)
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	jitVM, err := NewRaw(prog)
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	interpVM.Budget = budget
	jitVM.Budget = budget
	if setup != nil {
		setup(interpVM)
		setup(jitVM)
	}
	if err := jitVM.JITCompile(); err != nil {
		t.Fatalf("compilation failed: %v", err)
	}

	interpRes, interpErr := interpVM.Execute(interpMem)
	jitRes, jitErr := jitVM.ExecuteJIT(jitMem)

	if (interpErr == nil) != (jitErr == nil) {
		t.Fatalf("error mismatch: interpreter %v, compiled %v", interpErr, jitErr)
	}
	if interpErr != nil {
		if interpErr.Error() != jitErr.Error() {
			t.Errorf("error text mismatch: %q vs %q", interpErr.Error(), jitErr.Error())
		}
		return
	}
	if interpRes != jitRes {
		t.Errorf("result mismatch: 0x%x vs 0x%x", interpRes, jitRes)
	}
	if interpVM.RemainingBudget() != jitVM.RemainingBudget() {
		t.Errorf("remaining budget mismatch: %d vs %d",
			interpVM.RemainingBudget(), jitVM.RemainingBudget())
	}
	if !bytes.Equal(interpMem, jitMem) {
		t.Errorf("final memory mismatch:\ninterpreter: %x\ncompiled:    %x", interpMem, jitMem)
	}
}

func TestJitEquivalenceTCPSack(t *testing.T) {
	diffTest(t, tcpSackProg, tcpSackMatch, 1<<16, nil)
	diffTest(t, tcpSackProg, tcpSackNoMatch, 1<<16, nil)
}

func TestJitEquivalenceMemoryWrites(t *testing.T) {
	prog := asm(
		ins(ebpf.ST_W_IMM, 1, 0, 0, 0x11223344),
		ins(ebpf.MOV64_IMM, 2, 0, 0, 0x55),
		ins(ebpf.ST_B_REG, 1, 2, 4, 0),
		ins(ebpf.LD_W_REG, 0, 1, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	diffTest(t, prog, make([]byte, 8), 1<<16, nil)
}

func TestJitEquivalenceOnFailure(t *testing.T) {
	prog := asm(
		ins(ebpf.LD_W_REG, 0, 1, 0x40, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	diffTest(t, prog, make([]byte, 8), 1<<16, nil)
}

func TestJitEquivalenceOnBudgetExhaustion(t *testing.T) {
	prog := asm(
		ins(ebpf.JA, 0, 0, -1, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	diffTest(t, prog, nil, 100, nil)
}

func TestJitEquivalenceWithHelpers(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 1, 0, 0, 20),
		ins(ebpf.MOV64_IMM, 2, 0, 0, 22),
		ins(ebpf.CALL_IMM, 0, 0, 0, 1),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	diffTest(t, prog, nil, 1<<16, func(machine *VM) {
		_ = machine.RegisterHelper(1, func(r1, r2, r3, r4, r5 uint64) (uint64, error) {
			return r1 + r2, nil
		})
	})
}

func TestJitEquivalenceWithFunctions(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 6, 0, 0, 7),
		ins(ebpf.CALL_IMM, 0, 0, 0, 0x10),
		ins(ebpf.MOV64_REG, 0, 6, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
		ins(ebpf.MOV64_IMM, 6, 0, 0, 99),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	diffTest(t, prog, nil, 1<<16, func(machine *VM) {
		_ = machine.RegisterFunction(0x10, 4, "clobber_r6")
	})
}

func TestJitEquivalenceWideImmediate(t *testing.T) {
	prog := asm(
		ins(ebpf.LD_DW_IMM, 0, 0, 0, 0x1122334455667788),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	diffTest(t, prog, nil, 1<<16, nil)
}

func TestJitFixedMbuffEquivalence(t *testing.T) {
	for _, probe := range [][2]byte{{0x99, 0x99}, {0x98, 0x76}} {
		interpMem := blockAPortPacket(probe[0], probe[1])
		jitMem := blockAPortPacket(probe[0], probe[1])

		interpVM, err := NewFixedMbuff(blockAPortProg(), 0x40, 0x50)
		if err != nil {
			t.Fatalf("failed to load program: %v", err)
		}
		jitVM, err := NewFixedMbuff(blockAPortProg(), 0x40, 0x50)
		if err != nil {
			t.Fatalf("failed to load program: %v", err)
		}
		if err := jitVM.JITCompile(); err != nil {
			t.Fatalf("compilation failed: %v", err)
		}
		interpRes, interpErr := interpVM.Execute(interpMem)
		jitRes, jitErr := jitVM.ExecuteJIT(jitMem)
		if interpErr != nil || jitErr != nil {
			t.Fatalf("execution failed: %v / %v", interpErr, jitErr)
		}
		if interpRes != jitRes {
			t.Errorf("result mismatch: 0x%x vs 0x%x", interpRes, jitRes)
		}
		if !bytes.Equal(interpMem, jitMem) {
			t.Error("final memory mismatch")
		}
	}
}
