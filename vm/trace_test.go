package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hcudev/solana-rpdf/ebpf"
)

func TestExecutionTraceRecordsInstructions(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 0, 0, 0, 1),
		ins(ebpf.ADD64_IMM, 0, 0, 0, 2),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	machine, err := NewRaw(prog)
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	var sink bytes.Buffer
	machine.Trace = NewExecutionTrace(&sink)
	if _, err := machine.Execute(nil); err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	entries := machine.Trace.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 trace entries, got %d", len(entries))
	}
	if entries[1].Disassembly != "add64 r0, 2" {
		t.Errorf("expected add64 r0, 2, got %q", entries[1].Disassembly)
	}
	if err := machine.Trace.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if !strings.Contains(sink.String(), "exit") {
		t.Errorf("expected the flushed trace to contain exit, got %q", sink.String())
	}
}

func TestDynamicEdgesRecorded(t *testing.T) {
	// A conditional with both outcomes exercised across two runs.
	prog := asm(
		ins(ebpf.LD_B_REG, 1, 1, 0, 0),
		ins(ebpf.JEQ_IMM, 1, 0, 1, 1),
		ins(ebpf.EXIT, 0, 0, 0, 0),
		ins(ebpf.MOV64_IMM, 0, 0, 0, 1),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	machine, err := NewRaw(prog)
	if err != nil {
		t.Fatalf("failed to load program: %v", err)
	}
	machine.Trace = NewExecutionTrace(nil)
	if _, err := machine.Execute([]byte{1}); err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if _, err := machine.Execute([]byte{0}); err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	edges := machine.DynamicEdges()
	if edges[1][3] != 1 {
		t.Errorf("expected the taken edge 1->3 once, got %d", edges[1][3])
	}
	if edges[1][2] != 1 {
		t.Errorf("expected the fallthrough edge 1->2 once, got %d", edges[1][2])
	}
}
