package kernel

import "github.com/SandOcean-ovo/SandOS/port"

// Kernel is a single-hart preemptive priority kernel. All scheduling
// state lives here and is mutated only under the critical section; the
// architecture-specific half (context switch, tick timer, interrupt
// gate) is delegated to the port.
type Kernel struct {
	port port.Port

	ready   [MaxPrio]list // one FIFO per priority
	prioMap uint32        // bit p set iff ready[p] is non-empty
	delay   list          // delta-encoded, sorted by wake time

	current *TCB
	next    *TCB

	tick        uint32
	critNesting uint32
	running     bool

	fault faultState

	idleTCB   TCB
	idleStack [IdleStackWords]uint32
}

// New initializes a kernel on the given port and creates the idle task
// at the lowest priority, so the scheduler always finds a ready task.
func New(p port.Port) *Kernel {
	k := &Kernel{port: p}
	p.Bind(k)
	for i := range k.ready {
		k.ready[i].init()
	}
	k.delay.init()
	if st := k.TaskCreate(&k.idleTCB, k.idleLoop, nil, k.idleStack[:], MaxPrio-1); st != OK {
		k.fatal("idle task creation failed")
	}
	return k
}

func (k *Kernel) idleLoop(any) {
	for {
		k.port.Idle()
	}
}

// StartScheduler dispatches the highest-priority ready task. On
// hardware it never returns; the simulation port returns from the
// underlying dispatch once the machine stops.
func (k *Kernel) StartScheduler() {
	k.current = k.findNext()
	k.next = k.current
	k.port.InitTimer(k.TickHandler)
	k.running = true
	k.port.StartFirstTask(k.current.ctx)
}

// TickHandler advances the timebase: it validates the running task's
// stack, wakes expired delays, rotates equal-priority tasks, and
// requests a switch when the decision changes. It must be called from
// the tick interrupt, with interrupts gated.
func (k *Kernel) TickHandler() {
	if !k.running {
		return
	}
	cur := k.current
	if cur == nil {
		k.fatal("tick with no running task")
	}
	k.checkStack(cur)

	k.tick++

	if head := k.delay.head; head != nil {
		if head.delayTicks > 0 {
			head.delayTicks--
		}
		// Zero-delta followers share the head's wake instant, so keep
		// popping while the head's delta is spent.
		for k.delay.head != nil && k.delay.head.delayTicks == 0 {
			woken := k.delay.popHead()
			woken.state = TaskReady
			k.readyAdd(woken)
		}
	}

	// Round-robin: if the running task is still ready and shares its
	// priority with others, rotate it to the back of the queue.
	l := &k.ready[cur.prio]
	if cur.state == TaskReady && l.head != l.tail {
		l.remove(cur)
		l.insertTail(cur)
	}

	k.requestSwitch()
}

// EnterCritical disables interrupts and bumps the nesting counter.
func (k *Kernel) EnterCritical() {
	k.port.DisableIRQ()
	k.critNesting++
}

// ExitCritical drops the nesting counter and re-enables interrupts when
// it reaches zero. Calls must balance EnterCritical exactly.
func (k *Kernel) ExitCritical() {
	if k.critNesting == 0 {
		k.fatal("unbalanced ExitCritical")
	}
	k.critNesting--
	if k.critNesting == 0 {
		k.port.EnableIRQ()
	}
}

// Ticks returns the system tick count.
func (k *Kernel) Ticks() uint32 { return k.tick }

// Current returns the running task's TCB.
func (k *Kernel) Current() *TCB { return k.current }

// Running reports whether the scheduler has been started.
func (k *Kernel) Running() bool { return k.running }

// IdleTask returns the kernel-owned idle task's TCB, for host tooling
// that labels or inspects tasks.
func (k *Kernel) IdleTask() *TCB { return &k.idleTCB }

// YieldFromISR requests a context switch from an ISR epilogue after a
// FromISR primitive reported a wakeup through its out-flag.
func (k *Kernel) YieldFromISR(woken bool) {
	if !woken || !k.running {
		return
	}
	k.requestSwitch()
}

// checkStack validates the task's overflow sentinel and the port-side
// stack pointer bound. Either violation is fatal.
func (k *Kernel) checkStack(t *TCB) {
	if t.stack[0] != StackMagic || !k.port.StackHealthy(t.ctx) {
		k.fatal("stack overflow")
	}
}
