package kernel

import "github.com/SandOcean-ovo/SandOS/port"

// readyAdd and readyRemove are the only paths that mutate the priority
// bitmap, keeping bit p in lockstep with ready[p]'s emptiness.

func (k *Kernel) readyAdd(t *TCB) {
	k.prioMap |= 1 << t.prio
	k.ready[t.prio].insertTail(t)
}

func (k *Kernel) readyRemove(t *TCB) {
	k.ready[t.prio].remove(t)
	if k.ready[t.prio].head == nil {
		k.prioMap &^= 1 << t.prio
	}
}

// findNext returns the head of the highest-priority non-empty ready
// queue. The idle task guarantees one exists.
func (k *Kernel) findNext() *TCB {
	if k.prioMap == 0 {
		k.fatal("priority bitmap empty")
	}
	top := k.port.TopPrio(k.prioMap)
	t := k.ready[top].head
	if t == nil {
		k.fatal("ready queue empty with bitmap bit set")
	}
	return t
}

// requestSwitch raises the software interrupt if the scheduling decision
// differs from the running task. Preemption must be disabled. Before the
// scheduler starts there is nothing to preempt and the request is
// dropped; the initial dispatch picks the queues up.
func (k *Kernel) requestSwitch() {
	if !k.running {
		return
	}
	next := k.findNext()
	if next != k.current {
		k.next = next
		k.port.TriggerSWI()
	}
}

// SwapContext commits the pending scheduling decision. It is called by
// the port's context-switch handler with interrupts disabled, mirroring
// the hardware sequence: save the outgoing state, advance the running
// task, load the incoming state.
func (k *Kernel) SwapContext() (prev, next port.Context) {
	prevT := k.current
	k.current = k.next
	return prevT.ctx, k.current.ctx
}

// blockCurrentOn parks the running task at the tail of a wait set and
// requests a switch. Preemption must be disabled.
func (k *Kernel) blockCurrentOn(l *list) {
	cur := k.current
	cur.state = TaskBlocked
	k.readyRemove(cur)
	l.insertTail(cur)
	k.requestSwitch()
}

// wakeHead readies the head of a wait set and requests a switch if it
// outranks the running task. Preemption must be disabled.
func (k *Kernel) wakeHead(l *list) *TCB {
	t := l.popHead()
	t.state = TaskReady
	k.readyAdd(t)
	k.requestSwitch()
	return t
}

// wakeHeadFromISR readies the head of a wait set without touching the
// software interrupt; the ISR epilogue performs the switch. It reports
// whether the woken task outranks the running one.
func (k *Kernel) wakeHeadFromISR(l *list) bool {
	t := l.popHead()
	t.state = TaskReady
	k.readyAdd(t)
	return k.current != nil && t.prio < k.current.prio
}
