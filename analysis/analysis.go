// Package analysis derives a static view of a loaded program: basic
// blocks, strongly connected components, the dominator tree, and the
// intra- and inter-block data-flow graph with Φ nodes. The structures are
// built once and are read-only thereafter.
package analysis

import (
	"sort"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// unset marks a not-yet-computed block attribute
const unset = -1

// CfgNode is a basic block of the control-flow graph. Blocks are keyed and
// cross-referenced by their start pc — indices, not pointers — so the
// graph carries no cyclic ownership.
type CfgNode struct {
	// Label is a human readable name
	Label string
	// Sources are the blocks which can jump to the start of this one
	Sources []int
	// Destinations are the blocks the end of this one can jump to
	Destinations []int
	// InsnStart and InsnEnd delimit the instructions of this block as
	// indices into Analysis.Instructions
	InsnStart int
	InsnEnd   int
	// SccID is the strongly-connected-component id, assigned in reverse
	// topological order
	SccID int
	// IndexInScc is the order in which the component's blocks leave the
	// Tarjan stack: the component's root, discovered first, gets the
	// highest index
	IndexInScc int
	// DominatorParent is the immediate dominator's start pc
	DominatorParent int
	// DominatedChildren are the blocks this one immediately dominates
	DominatedChildren []int
}

// Symbol names a bytecode function
type Symbol struct {
	ID   uint32
	Name string
}

// SymbolTable carries the function-entry and helper names known to the
// analysis.
type SymbolTable struct {
	// Functions maps entry pcs to symbols
	Functions map[int]Symbol
	// Helpers maps helper ids to names
	Helpers map[uint32]string
}

// Analysis is the static-analysis result over one loaded program.
type Analysis struct {
	// Instructions is the decoded instruction vector; wide immediates
	// appear once, already augmented
	Instructions []ebpf.Instruction
	// Functions maps entry pcs to symbols
	Functions map[int]Symbol
	// Helpers maps helper ids to names
	Helpers map[uint32]string
	// CfgNodes maps block start pcs to blocks
	CfgNodes map[int]*CfgNode
	// TopologicalOrder lists block starts in topological order
	TopologicalOrder []int
	// Entrypoint is the block where execution starts
	Entrypoint int
	// DfgForwardEdges maps data-flow sources to their edges
	DfgForwardEdges map[DfgNode]map[DfgEdge]struct{}
	// DfgReverseEdges maps data-flow destinations to their edges
	DfgReverseEdges map[DfgNode]map[DfgEdge]struct{}

	functionsByID map[uint32]int
}

// Option adjusts how the analysis is built
type Option func(*options)

type options struct {
	flattenCallGraph bool
	entrypoint       int
}

// WithFlattenCallGraph adds control-flow edges from call sites into
// callees and from function exits back to their callers.
func WithFlattenCallGraph() Option {
	return func(o *options) { o.flattenCallGraph = true }
}

// WithEntrypoint sets the pc the analysis treats as the program entry.
func WithEntrypoint(pc int) Option {
	return func(o *options) { o.entrypoint = pc }
}

// FromProgram analyzes raw instruction bytes statically.
func FromProgram(prog []byte, symbols SymbolTable, opts ...Option) (*Analysis, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	instructions, err := ebpf.Decode(prog)
	if err != nil {
		return nil, err
	}
	a := &Analysis{
		Instructions:    instructions,
		Functions:       make(map[int]Symbol),
		Helpers:         make(map[uint32]string),
		CfgNodes:        make(map[int]*CfgNode),
		Entrypoint:      o.entrypoint,
		DfgForwardEdges: make(map[DfgNode]map[DfgEdge]struct{}),
		DfgReverseEdges: make(map[DfgNode]map[DfgEdge]struct{}),
		functionsByID:   make(map[uint32]int),
	}
	for pc, sym := range symbols.Functions {
		a.Functions[pc] = sym
	}
	for id, name := range symbols.Helpers {
		a.Helpers[id] = name
	}
	if _, ok := a.Functions[a.Entrypoint]; !ok {
		a.Functions[a.Entrypoint] = Symbol{Name: "entrypoint"}
	}
	for pc, sym := range a.Functions {
		a.functionsByID[sym.ID] = pc
	}
	a.splitIntoBasicBlocks(o.flattenCallGraph)
	a.labelBasicBlocks()
	a.controlFlowGraphTarjan()
	a.controlFlowGraphDominanceHierarchy()
	outputs := a.intraBasicBlockDataFlow()
	a.interBasicBlockDataFlow(outputs)
	return a, nil
}

// CompareOrder is the topological order relation over block starts:
// lexicographic on (SccID descending, IndexInScc descending).
func (a *Analysis) CompareOrder(x, y int) int {
	nodeX := a.CfgNodes[x]
	nodeY := a.CfgNodes[y]
	if nodeX.SccID != nodeY.SccID {
		if nodeY.SccID < nodeX.SccID {
			return -1
		}
		return 1
	}
	if nodeY.IndexInScc < nodeX.IndexInScc {
		return -1
	}
	if nodeY.IndexInScc > nodeX.IndexInScc {
		return 1
	}
	return 0
}

// sortedBlockStarts returns the block start pcs in ascending order.
func (a *Analysis) sortedBlockStarts() []int {
	starts := make([]int, 0, len(a.CfgNodes))
	for start := range a.CfgNodes {
		starts = append(starts, start)
	}
	sort.Ints(starts)
	return starts
}

// insnIndexAt locates the instruction whose PC equals pc, if any.
func (a *Analysis) insnIndexAt(pc int) (int, bool) {
	i := sort.Search(len(a.Instructions), func(i int) bool {
		return a.Instructions[i].PC >= pc
	})
	if i < len(a.Instructions) && a.Instructions[i].PC == pc {
		return i, true
	}
	return 0, false
}

// blockStartContaining returns the start pc of the block holding pc.
func (a *Analysis) blockStartContaining(pc int) (int, bool) {
	idx, ok := a.insnIndexAt(pc)
	if !ok {
		return 0, false
	}
	for _, start := range a.sortedBlockStarts() {
		node := a.CfgNodes[start]
		if idx >= node.InsnStart && idx < node.InsnEnd {
			return start, true
		}
	}
	return 0, false
}
