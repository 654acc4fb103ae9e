// Package ebpf defines the 64-bit eBPF instruction set: opcode constants,
// the decoded instruction form, register conventions and the synthetic
// guest address space layout shared by the interpreter and the compiler.
package ebpf

// InsnSize is the size of one instruction word in bytes. The 64-bit
// immediate load occupies two consecutive words.
const InsnSize = 8

// Register file layout
const (
	// RegisterCount is the number of registers r0..r10
	RegisterCount = 11
	// FirstScratchReg is the index of the first callee-saved register (r6)
	FirstScratchReg = 6
	// ScratchRegs is the number of callee-saved registers (r6..r9)
	ScratchRegs = 4
	// FramePointerReg is the read-only frame pointer (r10)
	FramePointerReg = 10
)

// Guest address space layout. The high-order bits of a guest address select
// the region; bounds within a region are fixed at VM construction.
const (
	// MM_StackStart is the base guest address of the per-invocation stack
	MM_StackStart uint64 = 0x200000000
	// MM_MbuffStart is the base guest address of the fixed metadata buffer
	MM_MbuffStart uint64 = 0x300000000
	// MM_InputStart is the base guest address of the input packet region
	MM_InputStart uint64 = 0x400000000
)

// StackSize is the default size of the stack region in bytes
const StackSize = 0x4000

// Instruction classes (low 3 bits of the opcode)
const (
	LD    = 0x00
	LDX   = 0x01
	ST    = 0x02
	STX   = 0x03
	ALU   = 0x04
	JMP   = 0x05
	ALU64 = 0x07
)

// Size modifiers for load/store classes (bits 3-4 of the opcode)
const (
	SizeW  = 0x00 // 4 bytes
	SizeH  = 0x08 // 2 bytes
	SizeB  = 0x10 // 1 byte
	SizeDW = 0x18 // 8 bytes
)

// Load opcodes
const (
	LD_ABS_W  = 0x20
	LD_ABS_H  = 0x28
	LD_ABS_B  = 0x30
	LD_ABS_DW = 0x38
	LD_IND_W  = 0x40
	LD_IND_H  = 0x48
	LD_IND_B  = 0x50
	LD_IND_DW = 0x58
	LD_DW_IMM = 0x18

	LD_W_REG  = 0x61
	LD_H_REG  = 0x69
	LD_B_REG  = 0x71
	LD_DW_REG = 0x79
)

// Store opcodes
const (
	ST_W_IMM  = 0x62
	ST_H_IMM  = 0x6a
	ST_B_IMM  = 0x72
	ST_DW_IMM = 0x7a

	ST_W_REG  = 0x63
	ST_H_REG  = 0x6b
	ST_B_REG  = 0x73
	ST_DW_REG = 0x7b
)

// 32-bit ALU opcodes. These operate on the low 32 bits of their operands
// and zero-extend the result into the destination.
const (
	ADD32_IMM  = 0x04
	ADD32_REG  = 0x0c
	SUB32_IMM  = 0x14
	SUB32_REG  = 0x1c
	MUL32_IMM  = 0x24
	MUL32_REG  = 0x2c
	DIV32_IMM  = 0x34
	DIV32_REG  = 0x3c
	OR32_IMM   = 0x44
	OR32_REG   = 0x4c
	AND32_IMM  = 0x54
	AND32_REG  = 0x5c
	LSH32_IMM  = 0x64
	LSH32_REG  = 0x6c
	RSH32_IMM  = 0x74
	RSH32_REG  = 0x7c
	NEG32      = 0x84
	MOD32_IMM  = 0x94
	MOD32_REG  = 0x9c
	XOR32_IMM  = 0xa4
	XOR32_REG  = 0xac
	MOV32_IMM  = 0xb4
	MOV32_REG  = 0xbc
	ARSH32_IMM = 0xc4
	ARSH32_REG = 0xcc
	LE         = 0xd4
	BE         = 0xdc
)

// 64-bit ALU opcodes
const (
	ADD64_IMM  = 0x07
	ADD64_REG  = 0x0f
	SUB64_IMM  = 0x17
	SUB64_REG  = 0x1f
	MUL64_IMM  = 0x27
	MUL64_REG  = 0x2f
	DIV64_IMM  = 0x37
	DIV64_REG  = 0x3f
	OR64_IMM   = 0x47
	OR64_REG   = 0x4f
	AND64_IMM  = 0x57
	AND64_REG  = 0x5f
	LSH64_IMM  = 0x67
	LSH64_REG  = 0x6f
	RSH64_IMM  = 0x77
	RSH64_REG  = 0x7f
	NEG64      = 0x87
	MOD64_IMM  = 0x97
	MOD64_REG  = 0x9f
	XOR64_IMM  = 0xa7
	XOR64_REG  = 0xaf
	MOV64_IMM  = 0xb7
	MOV64_REG  = 0xbf
	ARSH64_IMM = 0xc7
	ARSH64_REG = 0xcf
)

// Jump opcodes. Branch targets are pc + off + 1.
const (
	JA       = 0x05
	JEQ_IMM  = 0x15
	JEQ_REG  = 0x1d
	JGT_IMM  = 0x25
	JGT_REG  = 0x2d
	JGE_IMM  = 0x35
	JGE_REG  = 0x3d
	JLT_IMM  = 0xa5
	JLT_REG  = 0xad
	JLE_IMM  = 0xb5
	JLE_REG  = 0xbd
	JSET_IMM = 0x45
	JSET_REG = 0x4d
	JNE_IMM  = 0x55
	JNE_REG  = 0x5d
	JSGT_IMM = 0x65
	JSGT_REG = 0x6d
	JSGE_IMM = 0x75
	JSGE_REG = 0x7d
	JSLT_IMM = 0xc5
	JSLT_REG = 0xcd
	JSLE_IMM = 0xd5
	JSLE_REG = 0xdd
	CALL_IMM = 0x85
	CALL_REG = 0x8d
	EXIT     = 0x95
)

// Helper calling convention: r1..r5 carry the five arguments, r0 receives
// the return value, r6..r9 are preserved across the call.
const (
	// HelperTracePrintkID is the conventional id of the trace_printk helper
	HelperTracePrintkID uint32 = 6
)
