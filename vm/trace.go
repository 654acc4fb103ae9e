package vm

import (
	"fmt"
	"io"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// TraceEntry is a single executed instruction in the trace.
type TraceEntry struct {
	Sequence    uint64
	PC          int
	Disassembly string
}

// ExecutionTrace records the instructions an execution visits. It also
// switches on the dynamic per-edge counters used by the visualizer.
type ExecutionTrace struct {
	Enabled    bool
	Writer     io.Writer
	MaxEntries int

	entries  []TraceEntry
	sequence uint64
}

// NewExecutionTrace creates a trace writing to the given sink.
func NewExecutionTrace(writer io.Writer) *ExecutionTrace {
	return &ExecutionTrace{
		Enabled:    true,
		Writer:     writer,
		MaxEntries: 100000,
		entries:    make([]TraceEntry, 0, 1000),
	}
}

// RecordInstruction appends one executed instruction.
func (t *ExecutionTrace) RecordInstruction(pc int, insn ebpf.Instruction) {
	if !t.Enabled {
		return
	}
	t.sequence++
	if t.MaxEntries > 0 && len(t.entries) >= t.MaxEntries {
		return
	}
	t.entries = append(t.entries, TraceEntry{
		Sequence:    t.sequence,
		PC:          pc,
		Disassembly: ebpf.Disasm(insn),
	})
}

// Entries returns the recorded trace.
func (t *ExecutionTrace) Entries() []TraceEntry {
	return t.entries
}

// Flush writes the recorded trace to the sink and clears it.
func (t *ExecutionTrace) Flush() error {
	if t.Writer == nil {
		return nil
	}
	for _, entry := range t.entries {
		if _, err := fmt.Fprintf(t.Writer, "%8d  %4d  %s\n", entry.Sequence, entry.PC, entry.Disassembly); err != nil {
			return err
		}
	}
	t.entries = t.entries[:0]
	return nil
}
