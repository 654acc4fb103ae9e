// Package vm implements the userland eBPF execution engine: the memory
// environment, the verifier, the interpreter and the compiled execution
// form sharing its semantics, plus the helper and function registries.
package vm

import (
	"fmt"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// Execution defaults
const (
	DefaultBudget       = 1000000
	DefaultMaxCallDepth = 20
	DefaultMbuffSize    = 0x60
)

// VM executes one verified program. A VM instance is not safe for
// concurrent use; separate instances are independent.
type VM struct {
	prog      []byte
	insnCount int
	mem       *MemoryEnvironment
	helpers   *helperRegistry
	functions *functionRegistry

	// Budget is the instruction meter supplied to each execution
	Budget uint64
	// MaxCallDepth bounds the nesting of bytecode function calls
	MaxCallDepth int
	// EntryOffset is the pc execution starts from
	EntryOffset int

	// Trace, when non-nil, records executed instructions
	Trace *ExecutionTrace

	remaining uint64
	fixedForm bool
	compiled  []compiledFn
	dynEdges  map[int]map[int]uint64
}

func newVM(prog []byte) (*VM, error) {
	if err := Verify(prog, DefaultMaxInstructions); err != nil {
		return nil, err
	}
	return &VM{
		prog:         prog,
		insnCount:    len(prog) / ebpf.InsnSize,
		helpers:      newHelperRegistry(),
		functions:    newFunctionRegistry(),
		Budget:       DefaultBudget,
		MaxCallDepth: DefaultMaxCallDepth,
		dynEdges:     make(map[int]map[int]uint64),
	}, nil
}

// NewRaw builds a VM whose guest address space exposes only the caller's
// input buffer, addressable from MM_InputStart.
func NewRaw(prog []byte) (*VM, error) {
	vm, err := newVM(prog)
	if err != nil {
		return nil, err
	}
	vm.mem = newMemoryEnvironment(ebpf.StackSize)
	return vm, nil
}

// NewFixedMbuff builds a VM that additionally owns a fixed metadata buffer.
// On each execution the engine stamps the guest addresses of the input's
// first byte at offStart and one past its last byte at offEnd, both 8-byte
// little-endian. This form emulates kernel context objects whose fixed
// shape programs assume.
func NewFixedMbuff(prog []byte, offStart, offEnd uint) (*VM, error) {
	vm, err := newVM(prog)
	if err != nil {
		return nil, err
	}
	vm.mem = newMemoryEnvironment(ebpf.StackSize)
	size := uint(DefaultMbuffSize)
	for offStart+8 > size || offEnd+8 > size {
		size *= 2
	}
	if err := vm.mem.attachMbuff(size, offStart, offEnd); err != nil {
		return nil, err
	}
	vm.fixedForm = true
	return vm, nil
}

// RegisterHelper binds a helper id to a host routine. The registry is
// immutable after the first execution.
func (vm *VM) RegisterHelper(id uint32, fn Helper) error {
	return vm.helpers.register(id, fmt.Sprintf("helper_%d", id), fn)
}

// RegisterNamedHelper is RegisterHelper with a symbol name for analysis.
func (vm *VM) RegisterNamedHelper(id uint32, name string, fn Helper) error {
	return vm.helpers.register(id, name, fn)
}

// RegisterFunction binds a bpf-to-bpf call id to a function entry pc.
func (vm *VM) RegisterFunction(id uint32, entry int, name string) error {
	if entry < 0 || entry >= vm.insnCount {
		return fmt.Errorf("function entry %d is outside the program", entry)
	}
	return vm.functions.register(id, entry, name)
}

// SetStackSize resizes the stack region. Only meaningful before the
// first execution.
func (vm *VM) SetStackSize(size uint) {
	vm.mem.stack.Data = make([]byte, size)
}

// Execute interprets the program over the given input buffer and returns
// r0. The register file and stack are reset first; on failure the input
// region may be partially mutated.
func (vm *VM) Execute(input []byte) (uint64, error) {
	vm.freeze()
	vm.mem.reset(input)
	m := vm.newMachine(input)
	return vm.run(m)
}

// RemainingBudget reports the instruction meter left after the last
// execution.
func (vm *VM) RemainingBudget() uint64 {
	return vm.remaining
}

// HelperNames exposes registered helper symbols for the static analysis.
func (vm *VM) HelperNames() map[uint32]string {
	names := make(map[uint32]string, len(vm.helpers.names))
	for id, name := range vm.helpers.names {
		names[id] = name
	}
	return names
}

// FunctionSymbols exposes registered function entries for the static
// analysis: entry pc to (id, name).
func (vm *VM) FunctionSymbols() map[int]FunctionSymbol {
	symbols := make(map[int]FunctionSymbol, len(vm.functions.entries))
	for pc, sym := range vm.functions.entries {
		symbols[pc] = sym
	}
	return symbols
}

// Program returns the raw instruction bytes.
func (vm *VM) Program() []byte {
	return vm.prog
}

// DynamicEdges returns per-branch taken-edge counters accumulated across
// traced executions, keyed by source pc then target pc.
func (vm *VM) DynamicEdges() map[int]map[int]uint64 {
	return vm.dynEdges
}

func (vm *VM) freeze() {
	vm.helpers.frozen = true
	vm.functions.frozen = true
}

func (vm *VM) newMachine(input []byte) *machine {
	m := &machine{
		pc:        vm.EntryOffset,
		remaining: vm.Budget,
	}
	m.regs[ebpf.FramePointerReg] = vm.mem.StackTop()
	if vm.fixedForm {
		m.regs[1] = ebpf.MM_MbuffStart
	} else {
		m.regs[1] = ebpf.MM_InputStart
	}
	m.regs[2] = uint64(len(input))
	return m
}

func (vm *VM) recordEdge(from, to int) {
	if vm.Trace == nil || !vm.Trace.Enabled {
		return
	}
	inner := vm.dynEdges[from]
	if inner == nil {
		inner = make(map[int]uint64)
		vm.dynEdges[from] = inner
	}
	inner[to]++
}
