package kernel

import (
	"sync"
	"sync/atomic"
)

// FaultInfo describes a fatal kernel fault: a corrupted invariant, a
// stack sentinel violation, or an unbalanced critical section.
type FaultInfo struct {
	Reason string
	Task   *TCB
	Tick   uint32
}

type faultState struct {
	active  atomic.Bool
	once    sync.Once
	handler atomic.Value // func(FaultInfo)
}

// InFaultMode reports whether the kernel has taken a fatal fault.
func (k *Kernel) InFaultMode() bool {
	return k.fault.active.Load()
}

// SetFaultHandler installs a fault handler, invoked at most once (on the
// first fault) with interrupts disabled. It must not re-enter the
// kernel.
func (k *Kernel) SetFaultHandler(fn func(FaultInfo)) {
	k.fault.handler.Store(fn)
}

// fatal enters fault mode and halts the port. It does not return.
func (k *Kernel) fatal(reason string) {
	k.port.DisableIRQ()
	k.fault.once.Do(func() {
		k.fault.active.Store(true)
		info := FaultInfo{Reason: reason, Task: k.current, Tick: k.tick}
		if v := k.fault.handler.Load(); v != nil {
			if fn, ok := v.(func(FaultInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
	k.port.Halt(reason)
}
