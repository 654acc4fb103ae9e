package analysis

import (
	"fmt"
	"sort"

	"github.com/hcudev/solana-rpdf/ebpf"
)

type cfgEdge struct {
	opcode       uint8
	destinations []int
}

func (a *Analysis) ensureNode(start int) {
	if _, ok := a.CfgNodes[start]; !ok {
		a.CfgNodes[start] = &CfgNode{
			SccID:           unset,
			IndexInScc:      unset,
			DominatorParent: unset,
		}
	}
}

// splitIntoBasicBlocks splits the instruction vector into basic blocks and
// links the control-flow edges between them. A new block begins at every
// function entry, every branch target, and every instruction following a
// branch, call or exit.
func (a *Analysis) splitIntoBasicBlocks(flattenCallGraph bool) {
	for pc := range a.Functions {
		a.ensureNode(pc)
	}
	cfgEdges := make(map[int]cfgEdge)
	for _, insn := range a.Instructions {
		targetPC := insn.PC + int(insn.Off) + 1
		switch insn.Opcode {
		case ebpf.CALL_IMM:
			if name, ok := a.Helpers[uint32(insn.Imm)]; ok {
				a.ensureNode(insn.PC + 1)
				if name == "abort" {
					cfgEdges[insn.PC] = cfgEdge{opcode: insn.Opcode}
				} else {
					cfgEdges[insn.PC] = cfgEdge{opcode: insn.Opcode, destinations: []int{insn.PC + 1}}
				}
			} else if entry, ok := a.functionsByID[uint32(insn.Imm)]; ok {
				a.ensureNode(insn.PC + 1)
				a.ensureNode(entry)
				destinations := []int{insn.PC + 1}
				if flattenCallGraph {
					destinations = []int{insn.PC + 1, entry}
				}
				cfgEdges[insn.PC] = cfgEdge{opcode: insn.Opcode, destinations: destinations}
			} else {
				a.ensureNode(insn.PC + 1)
				cfgEdges[insn.PC] = cfgEdge{opcode: insn.Opcode, destinations: []int{insn.PC + 1}}
			}
		case ebpf.CALL_REG:
			// Abnormal CFG edge
			a.ensureNode(insn.PC + 1)
			cfgEdges[insn.PC] = cfgEdge{opcode: insn.Opcode, destinations: []int{insn.PC + 1}}
		case ebpf.EXIT:
			a.ensureNode(insn.PC + 1)
			cfgEdges[insn.PC] = cfgEdge{opcode: insn.Opcode}
		case ebpf.JA:
			a.ensureNode(insn.PC + 1)
			a.ensureNode(targetPC)
			cfgEdges[insn.PC] = cfgEdge{opcode: insn.Opcode, destinations: []int{targetPC}}
		case ebpf.JEQ_IMM, ebpf.JGT_IMM, ebpf.JGE_IMM, ebpf.JLT_IMM,
			ebpf.JLE_IMM, ebpf.JSET_IMM, ebpf.JNE_IMM, ebpf.JSGT_IMM,
			ebpf.JSGE_IMM, ebpf.JSLT_IMM, ebpf.JSLE_IMM,
			ebpf.JEQ_REG, ebpf.JGT_REG, ebpf.JGE_REG, ebpf.JLT_REG,
			ebpf.JLE_REG, ebpf.JSET_REG, ebpf.JNE_REG, ebpf.JSGT_REG,
			ebpf.JSGE_REG, ebpf.JSLT_REG, ebpf.JSLE_REG:
			a.ensureNode(insn.PC + 1)
			a.ensureNode(targetPC)
			cfgEdges[insn.PC] = cfgEdge{opcode: insn.Opcode, destinations: []int{insn.PC + 1, targetPC}}
		}
	}

	// Drop orphan block starts that do not land on a real instruction
	// (out-of-range targets, wide-immediate second halves), then filter
	// edges and function entries against the surviving blocks.
	for start := range a.CfgNodes {
		if _, ok := a.insnIndexAt(start); !ok {
			delete(a.CfgNodes, start)
		}
	}
	for pc, edge := range cfgEdges {
		kept := edge.destinations[:0]
		for _, destination := range edge.destinations {
			if _, ok := a.CfgNodes[destination]; ok {
				kept = append(kept, destination)
			}
		}
		edge.destinations = kept
		cfgEdges[pc] = edge
	}
	for pc := range a.Functions {
		if _, ok := a.CfgNodes[pc]; !ok {
			delete(a.Functions, pc)
		}
	}

	// Assign instruction ranges and terminator destinations. A block
	// without a terminator falls through to the next block unless it
	// starts a function.
	starts := a.sortedBlockStarts()
	edgePCs := make([]int, 0, len(cfgEdges))
	for pc := range cfgEdges {
		edgePCs = append(edgePCs, pc)
	}
	sort.Ints(edgePCs)
	instructionIndex := 0
	edgeIndex := 0
	for i, start := range starts {
		node := a.CfgNodes[start]
		var blockEnd int
		if i+1 < len(starts) {
			blockEnd = starts[i+1] - 1
		} else {
			blockEnd = a.Instructions[len(a.Instructions)-1].PC
		}
		node.InsnStart = instructionIndex
		for instructionIndex < len(a.Instructions) && a.Instructions[instructionIndex].PC <= blockEnd {
			instructionIndex++
			node.InsnEnd = instructionIndex
		}
		if edgeIndex < len(edgePCs) && edgePCs[edgeIndex] <= blockEnd {
			node.Destinations = cfgEdges[edgePCs[edgeIndex]].destinations
			edgeIndex++
			continue
		}
		if i+1 < len(starts) {
			if _, isFunction := a.Functions[start]; !isFunction {
				node.Destinations = append(node.Destinations, starts[i+1])
			}
		}
	}

	// Link the reverse direction.
	for _, start := range starts {
		for _, destination := range a.CfgNodes[start].Destinations {
			a.CfgNodes[destination].Sources = append(a.CfgNodes[destination].Sources, start)
		}
	}

	if flattenCallGraph {
		a.linkFunctionExits()
	}
}

// linkFunctionExits adds return edges from exit blocks back to their
// callers' continuations when the call graph is flattened.
func (a *Analysis) linkFunctionExits() {
	var destinations []int
	type pending struct {
		source       int
		destinations []int
	}
	var extra []pending
	for _, start := range a.sortedBlockStarts() {
		node := a.CfgNodes[start]
		if _, isFunction := a.Functions[start]; isFunction {
			destinations = destinations[:0]
			for _, caller := range node.Sources {
				callerNode := a.CfgNodes[caller]
				if callerNode.InsnEnd < len(a.Instructions) {
					destinations = append(destinations, a.Instructions[callerNode.InsnEnd].PC)
				}
			}
		}
		if len(node.Destinations) == 0 && node.InsnEnd > 0 &&
			a.Instructions[node.InsnEnd-1].Opcode == ebpf.EXIT {
			extra = append(extra, pending{source: start, destinations: append([]int(nil), destinations...)})
		}
	}
	for _, p := range extra {
		a.CfgNodes[p.source].Destinations = append([]int(nil), p.destinations...)
		for _, destination := range p.destinations {
			a.CfgNodes[destination].Sources = append(a.CfgNodes[destination].Sources, p.source)
		}
	}
}

// labelBasicBlocks names every block: function entries keep their symbol
// name, other blocks get lbb_<pc>.
func (a *Analysis) labelBasicBlocks() {
	for pc, node := range a.CfgNodes {
		if sym, ok := a.Functions[pc]; ok {
			node.Label = sym.Name
		} else {
			node.Label = fmt.Sprintf("lbb_%d", pc)
		}
	}
}
