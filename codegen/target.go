package codegen

import "fmt"

// Target describes the calling convention differences between the two
// supported x86-64 ABIs. Everything else about the generated code is
// shared: NASM syntax, 16-byte call alignment, rax for the return value
// and rbx/r12-r15 as the callee-saved allocation pool.
type Target struct {
	Name string

	// ArgRegs are the integer argument registers in call order.
	ArgRegs []string

	// ShadowBytes is stack space the caller reserves below its outgoing
	// arguments for the callee's use. Zero everywhere except Windows.
	ShadowBytes int
}

var (
	Unix = Target{
		Name:    "unix",
		ArgRegs: []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
	}
	Windows = Target{
		Name:        "windows",
		ArgRegs:     []string{"rcx", "rdx", "r8", "r9"},
		ShadowBytes: 32,
	}
)

// ByName resolves a -target flag value.
func ByName(name string) (Target, error) {
	switch name {
	case "unix", "linux", "sysv":
		return Unix, nil
	case "windows", "win64":
		return Windows, nil
	}
	return Target{}, fmt.Errorf("unknown target %q (want unix or windows)", name)
}

// calleeSaved is the register pool handed to the allocator. Values held in
// it survive calls on both ABIs, so temps never need caller spills.
var calleeSaved = []string{"rbx", "r12", "r13", "r14", "r15"}
