package debugger

import (
	"testing"

	"github.com/hcudev/solana-rpdf/analysis"
	"github.com/hcudev/solana-rpdf/ebpf"
	"github.com/hcudev/solana-rpdf/vm"
)

func testProgram() []byte {
	var prog []byte
	for _, insn := range []ebpf.Instruction{
		{Opcode: ebpf.MOV64_IMM, Dst: 0, Imm: 1},
		{Opcode: ebpf.ADD64_IMM, Dst: 0, Imm: 2},
		{Opcode: ebpf.EXIT},
	} {
		prog = append(prog, insn.Bytes()...)
	}
	return prog
}

func TestNewTUIInitializesViews(t *testing.T) {
	prog := testProgram()
	machine, err := vm.NewRaw(prog)
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	a, err := analysis.FromProgram(prog, analysis.SymbolTable{})
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	tui := NewTUI(machine, a, nil)
	if tui.RegisterView == nil || tui.DisassemblyView == nil ||
		tui.StackView == nil || tui.OutputView == nil {
		t.Error("expected all panels to be initialized")
	}
	if tui.session == nil {
		t.Error("expected a session to be created")
	}
}

func TestStepOnceAdvancesSession(t *testing.T) {
	prog := testProgram()
	machine, err := vm.NewRaw(prog)
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	a, err := analysis.FromProgram(prog, analysis.SymbolTable{})
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	tui := NewTUI(machine, a, nil)
	tui.stepOnce()
	if tui.session.PC() != 1 {
		t.Errorf("expected pc 1 after a step, got %d", tui.session.PC())
	}
}

func TestRunToEndReportsResult(t *testing.T) {
	prog := testProgram()
	machine, err := vm.NewRaw(prog)
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	a, err := analysis.FromProgram(prog, analysis.SymbolTable{})
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	tui := NewTUI(machine, a, nil)
	tui.runToEnd()
	if tui.session.Result() != 3 {
		t.Errorf("expected result 3, got %d", tui.session.Result())
	}
}
