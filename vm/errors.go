package vm

import "fmt"

// VerifierErrorKind categorizes the reasons the verifier rejects a program
type VerifierErrorKind int

const (
	ProgramLengthNotMultipleOfEight VerifierErrorKind = iota
	ProgramTooLong
	NoExit
	JumpOutOfCode
	JumpToWideImmediateHalf
	DivisionByZero
	ShiftWithOverflow
	InvalidRegister
	UnknownOpcode
)

// VerifierError is the typed verdict returned at load time. Its Error
// string is stable; tooling matches on it.
type VerifierError struct {
	Kind VerifierErrorKind
	PC   int
	// Detail carries kind-specific context (length, opcode, register)
	Detail int64
}

func (e *VerifierError) Error() string {
	switch e.Kind {
	case ProgramLengthNotMultipleOfEight:
		return fmt.Sprintf("verifier: program length %d is not a multiple of 8", e.Detail)
	case ProgramTooLong:
		return fmt.Sprintf("verifier: program of %d instructions exceeds the maximum", e.Detail)
	case NoExit:
		return "verifier: program does not end with exit"
	case JumpOutOfCode:
		return fmt.Sprintf("verifier: jump out of code at pc %d", e.PC)
	case JumpToWideImmediateHalf:
		return fmt.Sprintf("verifier: jump into the second half of a wide immediate at pc %d", e.PC)
	case DivisionByZero:
		return fmt.Sprintf("verifier: division by zero immediate at pc %d", e.PC)
	case ShiftWithOverflow:
		return fmt.Sprintf("verifier: shift amount %d out of range at pc %d", e.Detail, e.PC)
	case InvalidRegister:
		return fmt.Sprintf("verifier: invalid register r%d at pc %d", e.Detail, e.PC)
	case UnknownOpcode:
		return fmt.Sprintf("verifier: unknown opcode 0x%02x at pc %d", uint8(e.Detail), e.PC)
	}
	return fmt.Sprintf("verifier: unknown error at pc %d", e.PC)
}

// RuntimeErrorKind categorizes failures during execution
type RuntimeErrorKind int

const (
	AccessViolation RuntimeErrorKind = iota
	ReadOnlyViolation
	UnknownHelper
	UnknownCallTarget
	CallStackOverflow
	ExceededMaxInstructions
	InvalidInstruction
	HelperError
)

// RuntimeError terminates the current execution and is returned to the
// caller. Interpreted and compiled execution produce byte-identical Error
// strings for the same failure; the differential fuzzer compares them.
type RuntimeError struct {
	Kind   RuntimeErrorKind
	PC     int
	Addr   uint64
	Width  int
	Region string
	ID     uint32
	// Err is the embedded helper error for HelperError
	Err error
}

func (e *RuntimeError) Error() string {
	switch e.Kind {
	case AccessViolation:
		return fmt.Sprintf("access violation: %d bytes at 0x%x (%s)", e.Width, e.Addr, e.Region)
	case ReadOnlyViolation:
		return fmt.Sprintf("write to read-only region %s at 0x%x", e.Region, e.Addr)
	case UnknownHelper:
		return fmt.Sprintf("call to unknown helper 0x%x", e.ID)
	case UnknownCallTarget:
		return fmt.Sprintf("unknown call target at pc %d", e.PC)
	case CallStackOverflow:
		return "call stack overflow"
	case ExceededMaxInstructions:
		return "exceeded maximum number of instructions"
	case InvalidInstruction:
		return fmt.Sprintf("invalid instruction at pc %d", e.PC)
	case HelperError:
		return fmt.Sprintf("helper failed: %v", e.Err)
	}
	return fmt.Sprintf("runtime error at pc %d", e.PC)
}

// Unwrap exposes the embedded helper error
func (e *RuntimeError) Unwrap() error { return e.Err }

// JitErrorKind categorizes compilation failures
type JitErrorKind int

const (
	UnsupportedPlatform JitErrorKind = iota
	CompilationFailed
)

// JitError is returned by JITCompile
type JitError struct {
	Kind   JitErrorKind
	Reason string
}

func (e *JitError) Error() string {
	switch e.Kind {
	case UnsupportedPlatform:
		return "jit: unsupported platform"
	case CompilationFailed:
		return fmt.Sprintf("jit: compilation failed: %s", e.Reason)
	}
	return "jit: unknown error"
}
