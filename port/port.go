// Package port defines the architecture services the kernel core runs
// against: stack frame initialization, the trap-based context switch, the
// tick timer, and the global interrupt gate. The kernel uses the contract
// abstractly; each supported target supplies an implementation. This
// repository ships a host simulation, Machine.
package port

// Func is a task entry point. Task functions must not return; every port
// arranges for a return to trap.
type Func func(arg any)

// Context is a task's saved processor state between runs. Its concrete
// type is owned by the port; the kernel only stores it in the TCB and
// hands it back at switch time.
type Context any

// Switcher is implemented by the kernel scheduler. The port's
// context-switch handler calls SwapContext to commit the pending
// scheduling decision: the kernel marks the chosen task as running and
// returns the outgoing and incoming contexts. prev and next are equal
// when the decision went stale before the trap was taken.
type Switcher interface {
	SwapContext() (prev, next Context)
}

// Port is the architecture contract for a single hart without an MMU.
type Port interface {
	// Bind installs the scheduler consulted by the context-switch
	// handler. Called exactly once, before any other method.
	Bind(s Switcher)

	// InitStack builds a task's initial frame in the caller's stack
	// words (index 0 is the low address) so that dispatching the
	// returned context enters entry with arg and interrupts enabled.
	InitStack(entry Func, arg any, stack []uint32) Context

	// StackHealthy reports whether the context's saved stack pointer
	// still lies above the stack's low end.
	StackHealthy(ctx Context) bool

	// InitTimer programs the periodic tick interrupt to invoke tick.
	InitTimer(tick func())

	// TriggerSWI requests the context-switch trap. The switch is taken
	// at the next interrupt boundary crossed with interrupts enabled;
	// requests coalesce.
	TriggerSWI()

	// StartFirstTask dispatches the first context. On hardware it never
	// returns; the simulation returns once the machine stops.
	StartFirstTask(first Context)

	// DisableIRQ and EnableIRQ gate interrupt delivery. They are
	// idempotent; the kernel's critical section counts nesting.
	DisableIRQ()
	EnableIRQ()

	// Idle may sleep the hart until an interrupt is pending. The idle
	// task calls it in a loop.
	Idle()

	// InISR reports whether the caller runs in interrupt context.
	InISR() bool

	// TopPrio returns the lowest-numbered set bit of prioMap, which
	// must be non-zero.
	TopPrio(prioMap uint32) uint8

	// Halt stops the system after a fatal fault. It does not return
	// control to task code.
	Halt(reason string)
}

// Logger writes newline-delimited trace lines.
type Logger interface {
	WriteLineString(s string)
}
