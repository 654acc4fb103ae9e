package vm

import "github.com/hcudev/solana-rpdf/ebpf"

// ins assembles one instruction word for test programs.
func ins(opcode uint8, dst, src uint8, off int16, imm int64) []byte {
	return ebpf.Instruction{Opcode: opcode, Dst: dst, Src: src, Off: off, Imm: imm}.Bytes()
}

// asm concatenates assembled instructions into a program.
func asm(words ...[]byte) []byte {
	var prog []byte
	for _, w := range words {
		prog = append(prog, w...)
	}
	return prog
}

// blockAPortProg branches on the two packet bytes at 0x34 (relative to the
// packet start) being 0x99, 0x99 under the fixed metadata form with the
// packet pointers stamped at 0x40 and 0x50.
func blockAPortProg() []byte {
	return asm(
		ins(ebpf.LD_DW_REG, 2, 1, 0x50, 0), // r2 = packet end
		ins(ebpf.LD_DW_REG, 1, 1, 0x40, 0), // r1 = packet start
		ins(ebpf.MOV64_REG, 3, 1, 0, 0),
		ins(ebpf.ADD64_IMM, 3, 0, 0, 0x36),
		ins(ebpf.JGT_REG, 3, 2, 4, 0), // packet too short
		ins(ebpf.LD_H_REG, 4, 1, 0x34, 0),
		ins(ebpf.JNE_IMM, 4, 0, 2, 0x9999),
		ins(ebpf.MOV32_IMM, 0, 0, 0, -1),
		ins(ebpf.EXIT, 0, 0, 0, 0),
		ins(ebpf.MOV64_IMM, 0, 0, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
}

// blockAPortPacket builds a 64 byte packet carrying the two probed bytes
// at offset 0x34.
func blockAPortPacket(b0, b1 byte) []byte {
	packet := make([]byte, 64)
	for i := range packet {
		packet[i] = byte(i)
	}
	packet[0x34] = b0
	packet[0x35] = b1
	return packet
}

// Converted from the tests for uBPF <https://github.com/iovisor/ubpf>:
// a TCP SACK classifier over raw ethernet frames.
var tcpSackProg = []byte{
	0x71, 0x12, 0x0c, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x71, 0x13, 0x0d, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x67, 0x03, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00,
	0x4f, 0x23, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xb7, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x55, 0x03, 0x25, 0x00, 0x08, 0x00, 0x00, 0x00,
	0x71, 0x12, 0x17, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x55, 0x02, 0x23, 0x00, 0x06, 0x00, 0x00, 0x00,
	0x71, 0x12, 0x0e, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x07, 0x01, 0x00, 0x00, 0x0e, 0x00, 0x00, 0x00,
	0x57, 0x02, 0x00, 0x00, 0x0f, 0x00, 0x00, 0x00,
	0x67, 0x02, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00,
	0x0f, 0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xb7, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x69, 0x14, 0x0c, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x07, 0x01, 0x00, 0x00, 0x14, 0x00, 0x00, 0x00,
	0x77, 0x04, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00,
	0x57, 0x04, 0x00, 0x00, 0x3c, 0x00, 0x00, 0x00,
	0xbf, 0x42, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x07, 0x02, 0x00, 0x00, 0xec, 0xff, 0xff, 0xff,
	0xb7, 0x05, 0x00, 0x00, 0x15, 0x00, 0x00, 0x00,
	0xb7, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x2d, 0x45, 0x14, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xbf, 0x35, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x67, 0x05, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00,
	0xc7, 0x05, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00,
	0xbf, 0x14, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x0f, 0x54, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x71, 0x45, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x15, 0x05, 0x04, 0x00, 0x01, 0x00, 0x00, 0x00,
	0x15, 0x05, 0x0c, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xbf, 0x36, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x15, 0x05, 0x09, 0x00, 0x05, 0x00, 0x00, 0x00,
	0x05, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x07, 0x03, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
	0xbf, 0x36, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x71, 0x43, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x0f, 0x63, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x67, 0x03, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00,
	0xc7, 0x03, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00,
	0x6d, 0x32, 0xee, 0xff, 0x00, 0x00, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xb7, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
	0x95, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var tcpSackMatch = []byte{
	0x00, 0x26, 0x62, 0x2f, 0x47, 0x87, 0x00, 0x1d,
	0x60, 0xb3, 0x01, 0x84, 0x08, 0x00, 0x45, 0x00,
	0x00, 0x40, 0xa8, 0xde, 0x40, 0x00, 0x40, 0x06,
	0x9d, 0x58, 0xc0, 0xa8, 0x01, 0x03, 0x3f, 0x74,
	0xf3, 0x61, 0xe5, 0xc0, 0x00, 0x50, 0xe5, 0x94,
	0x3f, 0x77, 0xa3, 0xc4, 0xc4, 0x80, 0xb0, 0x10,
	0x01, 0x3e, 0x34, 0xb6, 0x00, 0x00, 0x01, 0x01,
	0x08, 0x0a, 0x00, 0x17, 0x95, 0x6f, 0x8d, 0x9d,
	0x9e, 0x27, 0x01, 0x01, 0x05, 0x0a, 0xa3, 0xc4,
	0xca, 0x28, 0xa3, 0xc4, 0xcf, 0xd0,
}

var tcpSackNoMatch = []byte{
	0x00, 0x26, 0x62, 0x2f, 0x47, 0x87, 0x00, 0x1d,
	0x60, 0xb3, 0x01, 0x84, 0x08, 0x00, 0x45, 0x00,
	0x00, 0x40, 0xa8, 0xde, 0x40, 0x00, 0x40, 0x06,
	0x9d, 0x58, 0xc0, 0xa8, 0x01, 0x03, 0x3f, 0x74,
	0xf3, 0x61, 0xe5, 0xc0, 0x00, 0x50, 0xe5, 0x94,
	0x3f, 0x77, 0xa3, 0xc4, 0xc4, 0x80, 0x80, 0x10,
	0x01, 0x3e, 0x34, 0xb6, 0x00, 0x00, 0x01, 0x01,
	0x08, 0x0a, 0x00, 0x17, 0x95, 0x6f, 0x8d, 0x9d,
	0x9e, 0x27,
}
