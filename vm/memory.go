package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/hcudev/solana-rpdf/ebpf"
)

// Region is one contiguous span of the synthetic guest address space,
// backed by host memory. Bounds are fixed at VM construction; only the
// backing slice is swapped per execution.
type Region struct {
	Name       string
	GuestStart uint64
	Writable   bool
	Data       []byte
}

// Contains reports whether the whole access lies inside this region.
// Written so that addresses near the top of the guest space cannot wrap
// back into range.
func (r *Region) Contains(addr uint64, size int) bool {
	if addr < r.GuestStart || uint64(size) > uint64(len(r.Data)) {
		return false
	}
	return addr-r.GuestStart <= uint64(len(r.Data))-uint64(size)
}

// MemoryEnvironment presents the guest address space: stack, input packet
// region, and the optional fixed metadata buffer. Each access must lie
// entirely within one region; straddling regions fails.
type MemoryEnvironment struct {
	stack Region
	input Region
	mbuff Region

	hasMbuff  bool
	mbuffData []byte
	offStart  uint
	offEnd    uint
}

func newMemoryEnvironment(stackSize uint) *MemoryEnvironment {
	return &MemoryEnvironment{
		stack: Region{Name: "stack", GuestStart: ebpf.MM_StackStart, Writable: true, Data: make([]byte, stackSize)},
		input: Region{Name: "input", GuestStart: ebpf.MM_InputStart, Writable: true},
	}
}

// attachMbuff configures the fixed metadata buffer. The two pointer slots
// must lie within the buffer and must not overlap.
func (m *MemoryEnvironment) attachMbuff(size, offStart, offEnd uint) error {
	if offStart+8 > size || offEnd+8 > size {
		return fmt.Errorf("metadata offsets 0x%x/0x%x do not fit in a %d byte buffer", offStart, offEnd, size)
	}
	if offStart+8 > offEnd && offEnd+8 > offStart {
		return fmt.Errorf("metadata offsets 0x%x and 0x%x overlap", offStart, offEnd)
	}
	m.mbuffData = make([]byte, size)
	m.mbuff = Region{Name: "mbuff", GuestStart: ebpf.MM_MbuffStart, Writable: true, Data: m.mbuffData}
	m.hasMbuff = true
	m.offStart = offStart
	m.offEnd = offEnd
	return nil
}

// reset points the input region at the caller's buffer and re-stamps the
// metadata buffer with the current packet bounds. The stack is zeroed.
func (m *MemoryEnvironment) reset(input []byte) {
	m.input.Data = input
	for i := range m.stack.Data {
		m.stack.Data[i] = 0
	}
	if m.hasMbuff {
		for i := range m.mbuffData {
			m.mbuffData[i] = 0
		}
		binary.LittleEndian.PutUint64(m.mbuffData[m.offStart:], ebpf.MM_InputStart)
		binary.LittleEndian.PutUint64(m.mbuffData[m.offEnd:], ebpf.MM_InputStart+uint64(len(input)))
	}
}

// StackTop returns the initial r10 value.
func (m *MemoryEnvironment) StackTop() uint64 {
	return m.stack.GuestStart + uint64(len(m.stack.Data))
}

func (m *MemoryEnvironment) regions() []*Region {
	regions := []*Region{&m.stack, &m.input}
	if m.hasMbuff {
		regions = append(regions, &m.mbuff)
	}
	return regions
}

// translate maps a guest access onto host memory. Width must be 1, 2, 4 or
// 8 and the whole range must lie inside a single region.
func (m *MemoryEnvironment) translate(addr uint64, size int, write bool) ([]byte, error) {
	for _, region := range m.regions() {
		if !region.Contains(addr, size) {
			continue
		}
		if write && !region.Writable {
			return nil, &RuntimeError{Kind: ReadOnlyViolation, Addr: addr, Region: region.Name}
		}
		offset := addr - region.GuestStart
		return region.Data[offset : offset+uint64(size)], nil
	}
	region := "unmapped"
	for _, r := range m.regions() {
		if addr >= r.GuestStart && addr < r.GuestStart+uint64(len(r.Data)) {
			region = r.Name
			break
		}
	}
	return nil, &RuntimeError{Kind: AccessViolation, Addr: addr, Width: size, Region: region}
}

func (m *MemoryEnvironment) load(addr uint64, size int) (uint64, error) {
	host, err := m.translate(addr, size, false)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint64(host[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(host)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(host)), nil
	case 8:
		return binary.LittleEndian.Uint64(host), nil
	}
	return 0, &RuntimeError{Kind: AccessViolation, Addr: addr, Width: size, Region: "invalid width"}
}

func (m *MemoryEnvironment) store(addr uint64, size int, value uint64) error {
	host, err := m.translate(addr, size, true)
	if err != nil {
		return err
	}
	switch size {
	case 1:
		host[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(host, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(host, uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(host, value)
	default:
		return &RuntimeError{Kind: AccessViolation, Addr: addr, Width: size, Region: "invalid width"}
	}
	return nil
}

// loadAbs reads from the input region at an absolute offset, as the legacy
// LD_ABS/LD_IND instructions do. The offset is checked against the region
// length before it is folded into a guest address, so oversized offsets
// cannot wrap around into another region.
func (m *MemoryEnvironment) loadAbs(offset uint64, size int) (uint64, error) {
	if offset >= uint64(len(m.input.Data)) || offset+uint64(size) > uint64(len(m.input.Data)) {
		return 0, &RuntimeError{Kind: AccessViolation, Addr: ebpf.MM_InputStart + offset, Width: size, Region: m.input.Name}
	}
	return m.load(ebpf.MM_InputStart+offset, size)
}
