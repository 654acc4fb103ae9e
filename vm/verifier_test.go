package vm

import (
	"errors"
	"testing"

	"github.com/hcudev/solana-rpdf/ebpf"
)

func verifierKind(t *testing.T, err error) VerifierErrorKind {
	t.Helper()
	var verr *VerifierError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a VerifierError, got %v", err)
	}
	return verr.Kind
}

func TestVerifyAcceptsMinimalProgram(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 0, 0, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	if err := Verify(prog, DefaultMaxInstructions); err != nil {
		t.Errorf("expected acceptance, got %v", err)
	}
}

func TestVerifyAcceptsTrailingJumpToExit(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 0, 0, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
		ins(ebpf.JA, 0, 0, -2, 0),
	)
	if err := Verify(prog, DefaultMaxInstructions); err != nil {
		t.Errorf("expected acceptance, got %v", err)
	}
}

func TestVerifyRejectsEmptyProgram(t *testing.T) {
	err := Verify(nil, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != ProgramLengthNotMultipleOfEight {
		t.Errorf("expected ProgramLengthNotMultipleOfEight, got %v", err)
	}
}

func TestVerifyRejectsUnalignedLength(t *testing.T) {
	prog := asm(ins(ebpf.EXIT, 0, 0, 0, 0))[:5]
	err := Verify(prog, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != ProgramLengthNotMultipleOfEight {
		t.Errorf("expected ProgramLengthNotMultipleOfEight, got %v", err)
	}
}

func TestVerifyRejectsTooLongProgram(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 0, 0, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	err := Verify(prog, 1)
	if kind := verifierKind(t, err); kind != ProgramTooLong {
		t.Errorf("expected ProgramTooLong, got %v", err)
	}
}

func TestVerifyRejectsMissingExit(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 0, 0, 0, 0),
		ins(ebpf.MOV64_IMM, 1, 0, 0, 0),
	)
	err := Verify(prog, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != NoExit {
		t.Errorf("expected NoExit, got %v", err)
	}
}

func TestVerifyRejectsTruncatedWideImmediate(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 0, 0, 0, 0),
		ins(ebpf.LD_DW_IMM, 1, 0, 0, 1)[:8],
	)
	err := Verify(prog, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != NoExit {
		t.Errorf("expected NoExit, got %v", err)
	}
}

func TestVerifyRejectsJumpOutOfCode(t *testing.T) {
	prog := asm(
		ins(ebpf.JA, 0, 0, 5, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	err := Verify(prog, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != JumpOutOfCode {
		t.Errorf("expected JumpOutOfCode, got %v", err)
	}
}

func TestVerifyRejectsJumpIntoWideImmediate(t *testing.T) {
	prog := asm(
		ins(ebpf.LD_DW_IMM, 1, 0, 0, 1),
		ins(ebpf.JA, 0, 0, -2, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	err := Verify(prog, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != JumpToWideImmediateHalf {
		t.Errorf("expected JumpToWideImmediateHalf, got %v", err)
	}
}

func TestVerifyRejectsDivisionByZeroImmediate(t *testing.T) {
	for _, opcode := range []uint8{ebpf.DIV32_IMM, ebpf.MOD32_IMM, ebpf.DIV64_IMM, ebpf.MOD64_IMM} {
		prog := asm(
			ins(opcode, 0, 0, 0, 0),
			ins(ebpf.EXIT, 0, 0, 0, 0),
		)
		err := Verify(prog, DefaultMaxInstructions)
		if kind := verifierKind(t, err); kind != DivisionByZero {
			t.Errorf("opcode 0x%02x: expected DivisionByZero, got %v", opcode, err)
		}
	}
}

func TestVerifyRejectsShiftOverflow(t *testing.T) {
	cases := []struct {
		opcode uint8
		imm    int64
	}{
		{ebpf.LSH32_IMM, 32},
		{ebpf.RSH32_IMM, 32},
		{ebpf.ARSH32_IMM, 33},
		{ebpf.LSH64_IMM, 64},
		{ebpf.RSH64_IMM, 64},
		{ebpf.ARSH64_IMM, 64},
	}
	for _, tc := range cases {
		prog := asm(
			ins(tc.opcode, 0, 0, 0, tc.imm),
			ins(ebpf.EXIT, 0, 0, 0, 0),
		)
		err := Verify(prog, DefaultMaxInstructions)
		if kind := verifierKind(t, err); kind != ShiftWithOverflow {
			t.Errorf("opcode 0x%02x imm %d: expected ShiftWithOverflow, got %v", tc.opcode, tc.imm, err)
		}
	}
}

func TestVerifyAcceptsShiftInRange(t *testing.T) {
	prog := asm(
		ins(ebpf.LSH32_IMM, 0, 0, 0, 31),
		ins(ebpf.LSH64_IMM, 0, 0, 0, 63),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	if err := Verify(prog, DefaultMaxInstructions); err != nil {
		t.Errorf("expected acceptance, got %v", err)
	}
}

func TestVerifyRejectsWriteToFramePointer(t *testing.T) {
	prog := asm(
		ins(ebpf.MOV64_IMM, 10, 0, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	err := Verify(prog, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != InvalidRegister {
		t.Errorf("expected InvalidRegister, got %v", err)
	}
}

func TestVerifyRejectsInvalidSourceRegister(t *testing.T) {
	prog := asm(
		ins(ebpf.ADD64_REG, 0, 12, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	err := Verify(prog, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != InvalidRegister {
		t.Errorf("expected InvalidRegister, got %v", err)
	}
}

func TestVerifyRejectsUnknownOpcode(t *testing.T) {
	prog := asm(
		ins(0x06, 0, 0, 0, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	err := Verify(prog, DefaultMaxInstructions)
	if kind := verifierKind(t, err); kind != UnknownOpcode {
		t.Errorf("expected UnknownOpcode, got %v", err)
	}
}

func TestVerifyIsPure(t *testing.T) {
	prog := asm(
		ins(ebpf.JA, 0, 0, 5, 0),
		ins(ebpf.EXIT, 0, 0, 0, 0),
	)
	first := Verify(prog, DefaultMaxInstructions)
	second := Verify(prog, DefaultMaxInstructions)
	if first.Error() != second.Error() {
		t.Errorf("verifier verdict changed between runs: %v vs %v", first, second)
	}
}
