package analysis

import (
	"fmt"
	"io"
	"math"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// noBlock marks "no previous basic block" while emitting labels
const noBlock = math.MaxInt

// disassembleLabel emits a block label before the instruction at pc when
// the block cannot be reached purely by fallthrough from the previous one.
func (a *Analysis) disassembleLabel(w io.Writer, suppressExtraNewlines bool, pc int, lastBasicBlock *int) error {
	node, ok := a.CfgNodes[pc]
	if !ok {
		return nil
	}
	_, isFunction := a.Functions[pc]
	if isFunction || !(len(node.Sources) == 1 && node.Sources[0] == *lastBasicBlock) {
		if isFunction && !suppressExtraNewlines {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s:\n", node.Label); err != nil {
			return err
		}
	}
	lastInsn := a.Instructions[node.InsnEnd-1]
	if lastInsn.Opcode == ebpf.JA {
		*lastBasicBlock = noBlock
	} else {
		*lastBasicBlock = pc
	}
	return nil
}

// Disassemble emits assembler text for the analyzed program: one label
// per block, one line per instruction.
func (a *Analysis) Disassemble(w io.Writer) error {
	lastBasicBlock := noBlock
	for i, insn := range a.Instructions {
		if err := a.disassembleLabel(w, i == 0, insn.PC, &lastBasicBlock); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "    %s\n", ebpf.Disasm(insn)); err != nil {
			return err
		}
	}
	return nil
}
