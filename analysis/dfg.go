package analysis

import (
	"github.com/hcudev/solana-rpdf/ebpf"
)

// DfgNodeKind distinguishes instruction nodes from Φ nodes
type DfgNodeKind int

const (
	// InstructionNode points at a single instruction
	InstructionNode DfgNodeKind = iota
	// PhiNode points at a basic block which starts with a Φ node because
	// it has multiple CFG sources
	PhiNode
)

// DfgNode is an instruction or Φ node of the data-flow graph
type DfgNode struct {
	Kind DfgNodeKind
	// PC is the instruction pc, or the block start for Φ nodes
	PC int
}

// DataResourceKind distinguishes registers from memory
type DataResourceKind int

const (
	// ResourceRegister guards one register
	ResourceRegister DataResourceKind = iota
	// ResourceMemory guards any writable memory location
	ResourceMemory
)

// DataResource is the register or memory location a data-flow edge guards
type DataResource struct {
	Kind DataResourceKind
	Reg  uint8
}

func register(reg uint8) DataResource {
	return DataResource{Kind: ResourceRegister, Reg: reg}
}

var memory = DataResource{Kind: ResourceMemory}

// DfgEdgeKind is the kind of a data-flow edge
type DfgEdgeKind int

const (
	// Filled edges carry data: the destination reads what the source wrote
	Filled DfgEdgeKind = iota
	// Empty edges carry none: the destination overwrites what the source
	// wrote
	Empty
)

// DfgEdge is an edge of the data-flow graph
type DfgEdge struct {
	Source      DfgNode
	Destination DfgNode
	Kind        DfgEdgeKind
	Resource    DataResource
}

type dfgState struct {
	blockStart int
	edges      map[DfgNode]map[DfgEdge]struct{}
	lastWriter map[DataResource]int
}

// bind records one read or write of a resource at an instruction: reads
// draw a Filled edge from the last writer, writes draw an Empty edge from
// the overwritten writer and take over the resource. A resource with no
// writer yet falls back to the block's Φ node.
func (s *dfgState) bind(insn ebpf.Instruction, isOutput bool, resource DataResource) {
	kind := Filled
	if isOutput {
		kind = Empty
	}
	var source DfgNode
	if writer, ok := s.lastWriter[resource]; ok {
		source = DfgNode{Kind: InstructionNode, PC: writer}
	} else {
		source = DfgNode{Kind: PhiNode, PC: s.blockStart}
	}
	destination := DfgNode{Kind: InstructionNode, PC: insn.PC}
	edge := DfgEdge{Source: source, Destination: destination, Kind: kind, Resource: resource}
	if s.edges[source] == nil {
		s.edges[source] = make(map[DfgEdge]struct{})
	}
	s.edges[source][edge] = struct{}{}
	if isOutput {
		s.lastWriter[resource] = insn.PC
	}
}

// intraBasicBlockDataFlow connects the dependencies between the
// instructions inside each basic block, and returns every block's final
// resource-to-writer map for the inter-block propagation.
func (a *Analysis) intraBasicBlockDataFlow() map[int]map[DataResource]int {
	state := dfgState{edges: make(map[DfgNode]map[DfgEdge]struct{})}
	blockOutputs := make(map[int]map[DataResource]int)
	for _, blockStart := range a.sortedBlockStarts() {
		node := a.CfgNodes[blockStart]
		state.blockStart = blockStart
		state.lastWriter = make(map[DataResource]int)
		for _, insn := range a.Instructions[node.InsnStart:node.InsnEnd] {
			a.bindInsnResources(&state, insn)
		}
		blockOutputs[blockStart] = state.lastWriter
	}
	a.DfgForwardEdges = state.edges
	return blockOutputs
}

// bindInsnResources applies the per-opcode resource sets.
func (a *Analysis) bindInsnResources(state *dfgState, insn ebpf.Instruction) {
	switch insn.Opcode {
	case ebpf.LD_ABS_B, ebpf.LD_ABS_H, ebpf.LD_ABS_W, ebpf.LD_ABS_DW:
		state.bind(insn, true, register(0))
	case ebpf.LD_IND_B, ebpf.LD_IND_H, ebpf.LD_IND_W, ebpf.LD_IND_DW:
		state.bind(insn, false, register(insn.Src))
		state.bind(insn, true, register(0))
	case ebpf.LD_DW_IMM:
		state.bind(insn, true, register(insn.Dst))
	case ebpf.LD_B_REG, ebpf.LD_H_REG, ebpf.LD_W_REG, ebpf.LD_DW_REG:
		state.bind(insn, false, memory)
		state.bind(insn, false, register(insn.Src))
		state.bind(insn, true, register(insn.Dst))
	case ebpf.ST_B_IMM, ebpf.ST_H_IMM, ebpf.ST_W_IMM, ebpf.ST_DW_IMM:
		state.bind(insn, false, register(insn.Dst))
		state.bind(insn, true, memory)
	case ebpf.ST_B_REG, ebpf.ST_H_REG, ebpf.ST_W_REG, ebpf.ST_DW_REG:
		state.bind(insn, false, register(insn.Src))
		state.bind(insn, false, register(insn.Dst))
		state.bind(insn, true, memory)

	case ebpf.ADD32_IMM, ebpf.SUB32_IMM, ebpf.MUL32_IMM, ebpf.DIV32_IMM,
		ebpf.OR32_IMM, ebpf.AND32_IMM, ebpf.LSH32_IMM, ebpf.RSH32_IMM,
		ebpf.MOD32_IMM, ebpf.XOR32_IMM, ebpf.ARSH32_IMM,
		ebpf.ADD64_IMM, ebpf.SUB64_IMM, ebpf.MUL64_IMM, ebpf.DIV64_IMM,
		ebpf.OR64_IMM, ebpf.AND64_IMM, ebpf.LSH64_IMM, ebpf.RSH64_IMM,
		ebpf.MOD64_IMM, ebpf.XOR64_IMM, ebpf.ARSH64_IMM,
		ebpf.NEG32, ebpf.NEG64, ebpf.LE, ebpf.BE:
		state.bind(insn, false, register(insn.Dst))
		state.bind(insn, true, register(insn.Dst))
	case ebpf.MOV32_IMM, ebpf.MOV64_IMM:
		state.bind(insn, true, register(insn.Dst))
	case ebpf.ADD32_REG, ebpf.SUB32_REG, ebpf.MUL32_REG, ebpf.DIV32_REG,
		ebpf.OR32_REG, ebpf.AND32_REG, ebpf.LSH32_REG, ebpf.RSH32_REG,
		ebpf.MOD32_REG, ebpf.XOR32_REG, ebpf.ARSH32_REG,
		ebpf.ADD64_REG, ebpf.SUB64_REG, ebpf.MUL64_REG, ebpf.DIV64_REG,
		ebpf.OR64_REG, ebpf.AND64_REG, ebpf.LSH64_REG, ebpf.RSH64_REG,
		ebpf.MOD64_REG, ebpf.XOR64_REG, ebpf.ARSH64_REG:
		state.bind(insn, false, register(insn.Src))
		state.bind(insn, false, register(insn.Dst))
		state.bind(insn, true, register(insn.Dst))
	case ebpf.MOV32_REG, ebpf.MOV64_REG:
		state.bind(insn, false, register(insn.Src))
		state.bind(insn, true, register(insn.Dst))

	case ebpf.JEQ_IMM, ebpf.JGT_IMM, ebpf.JGE_IMM, ebpf.JLT_IMM,
		ebpf.JLE_IMM, ebpf.JSET_IMM, ebpf.JNE_IMM, ebpf.JSGT_IMM,
		ebpf.JSGE_IMM, ebpf.JSLT_IMM, ebpf.JSLE_IMM:
		state.bind(insn, false, register(insn.Dst))
	case ebpf.JEQ_REG, ebpf.JGT_REG, ebpf.JGE_REG, ebpf.JLT_REG,
		ebpf.JLE_REG, ebpf.JSET_REG, ebpf.JNE_REG, ebpf.JSGT_REG,
		ebpf.JSGE_REG, ebpf.JSLT_REG, ebpf.JSLE_REG:
		state.bind(insn, false, register(insn.Src))
		state.bind(insn, false, register(insn.Dst))

	case ebpf.CALL_IMM, ebpf.CALL_REG:
		if insn.Opcode == ebpf.CALL_REG &&
			(insn.Imm < ebpf.FirstScratchReg || insn.Imm >= ebpf.FirstScratchReg+ebpf.ScratchRegs) {
			state.bind(insn, false, register(uint8(insn.Imm)))
		}
		state.bind(insn, false, memory)
		state.bind(insn, true, memory)
		for reg := uint8(0); reg < ebpf.FirstScratchReg; reg++ {
			state.bind(insn, false, register(reg))
			state.bind(insn, true, register(reg))
		}
		state.bind(insn, false, register(ebpf.FramePointerReg))
		state.bind(insn, true, register(ebpf.FramePointerReg))
	case ebpf.EXIT:
		state.bind(insn, false, memory)
		for reg := uint8(0); reg < ebpf.FirstScratchReg; reg++ {
			state.bind(insn, false, register(reg))
		}
		state.bind(insn, false, register(ebpf.FramePointerReg))
	}
}

// interBasicBlockDataFlow propagates Φ inputs across block boundaries to a
// fixed point: each block's Φ reads resolve against every predecessor's
// output map, falling back to the predecessor's own Φ, which re-queues
// propagation. Afterwards Φ nodes of single-predecessor blocks are
// dropped — those have no merge — and the reverse adjacency is built.
func (a *Analysis) interBasicBlockDataFlow(blockOutputs map[int]map[DataResource]int) {
	continuePropagation := true
	for continuePropagation {
		continuePropagation = false
		for i := len(a.TopologicalOrder) - 1; i >= 0; i-- {
			blockStart := a.TopologicalOrder[i]
			phi := DfgNode{Kind: PhiNode, PC: blockStart}
			edges, ok := a.DfgForwardEdges[phi]
			if !ok {
				continue
			}
			basicBlock := a.CfgNodes[blockStart]
			a.DfgForwardEdges[phi] = make(map[DfgEdge]struct{})
			for _, predecessor := range basicBlock.Sources {
				providedOutputs := blockOutputs[predecessor]
				for edge := range edges {
					sourceIsPhi := false
					var source DfgNode
					if writer, ok := providedOutputs[edge.Resource]; ok {
						source = DfgNode{Kind: InstructionNode, PC: writer}
					} else {
						sourceIsPhi = true
						source = DfgNode{Kind: PhiNode, PC: predecessor}
					}
					propagated := edge
					propagated.Source = source
					if len(basicBlock.Sources) != 1 {
						propagated.Destination = phi
					}
					if a.DfgForwardEdges[source] == nil {
						a.DfgForwardEdges[source] = make(map[DfgEdge]struct{})
					}
					if _, seen := a.DfgForwardEdges[source][propagated]; !seen {
						a.DfgForwardEdges[source][propagated] = struct{}{}
						if sourceIsPhi && source != phi {
							continuePropagation = true
						}
					}
				}
			}
			// Edges that landed back on this block's own Φ while
			// propagating (self-loops) merge into the original set.
			for edge := range a.DfgForwardEdges[phi] {
				if _, seen := edges[edge]; !seen {
					edges[edge] = struct{}{}
					continuePropagation = true
				}
			}
			a.DfgForwardEdges[phi] = edges
		}
	}
	for blockStart, basicBlock := range a.CfgNodes {
		if len(basicBlock.Sources) == 1 {
			delete(a.DfgForwardEdges, DfgNode{Kind: PhiNode, PC: blockStart})
		}
	}
	for _, edges := range a.DfgForwardEdges {
		for edge := range edges {
			if a.DfgReverseEdges[edge.Destination] == nil {
				a.DfgReverseEdges[edge.Destination] = make(map[DfgEdge]struct{})
			}
			a.DfgReverseEdges[edge.Destination][edge] = struct{}{}
		}
	}
}
