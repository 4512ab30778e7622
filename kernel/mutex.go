package kernel

// Mutex is a recursive mutex with priority inheritance. The wait set is
// ordered by priority, highest first and FIFO among equals, so release
// always hands the lock to the most urgent waiter.
//
// Each mutex snapshots its owner's effective priority the first time it
// raises it, and release restores that snapshot. This is exact for
// properly nested (LIFO) acquisition of multiple mutexes; out-of-order
// release of multiply-inherited locks restores conservatively.
type Mutex struct {
	k         *Kernel
	owner     *TCB
	waiters   list
	nest      uint8
	inherited bool  // owner's priority was raised on behalf of this mutex
	ownerPrio uint8 // owner's effective priority before the raise
}

// MutexInit readies m as unowned.
func (k *Kernel) MutexInit(m *Mutex) Status {
	if m == nil {
		return ErrParam
	}
	m.k = k
	m.owner = nil
	m.nest = 0
	m.inherited = false
	m.ownerPrio = MaxPrio - 1
	m.waiters.init()
	return OK
}

// Owner returns a snapshot of the owning task, or nil.
func (m *Mutex) Owner() *TCB { return m.owner }

// Pend acquires the mutex, recursively if the caller already owns it.
// A contended caller first donates its priority to the owner, then
// blocks in the priority-ordered wait set.
func (m *Mutex) Pend() Status {
	if m == nil || m.k == nil {
		return ErrParam
	}
	k := m.k
	if k.port.InISR() {
		return ErrISR
	}
	k.EnterCritical()
	cur := k.current

	if m.owner == nil {
		m.owner = cur
		m.nest = 1
		m.inherited = false
		k.ExitCritical()
		return OK
	}
	if m.owner == cur {
		if m.nest == mutexNestMax {
			k.ExitCritical()
			return ErrNesting
		}
		m.nest++
		k.ExitCritical()
		return OK
	}

	// Contended: cap the inversion window by lending our priority to
	// the owner before going to sleep behind it.
	if cur.prio < m.owner.prio {
		if !m.inherited {
			m.inherited = true
			m.ownerPrio = m.owner.prio
		}
		k.raisePriority(m.owner, cur.prio)
	}

	cur.state = TaskBlocked
	k.readyRemove(cur)
	m.insertWaiter(cur)
	k.requestSwitch()
	k.ExitCritical()
	// Resumed as the new owner.
	return OK
}

// Post releases one level of ownership. When the last level is
// released, any inherited priority is restored and the lock is handed
// to the highest-priority waiter.
func (m *Mutex) Post() Status {
	if m == nil || m.k == nil {
		return ErrParam
	}
	k := m.k
	k.EnterCritical()
	cur := k.current

	if m.owner != cur {
		k.ExitCritical()
		return ErrNotOwner
	}

	m.nest--
	if m.nest > 0 {
		k.ExitCritical()
		return OK
	}

	if m.inherited {
		m.inherited = false
		if cur.prio != m.ownerPrio {
			k.restorePriority(cur, m.ownerPrio)
		}
	}

	if m.waiters.empty() {
		m.owner = nil
		k.ExitCritical()
		return OK
	}

	w := m.waiters.popHead()
	m.owner = w
	m.nest = 1
	w.state = TaskReady
	k.readyAdd(w)
	k.requestSwitch()
	k.ExitCritical()
	return OK
}

// insertWaiter links t into the wait set: strictly higher priority
// precedes, equal priority queues behind its equals.
func (m *Mutex) insertWaiter(t *TCB) {
	at := m.waiters.head
	for at != nil && at.prio <= t.prio {
		at = at.next
	}
	if at == nil {
		m.waiters.insertTail(t)
	} else {
		m.waiters.insertBefore(at, t)
	}
}

// raisePriority lifts t to prio. A ready task is re-queued so the
// bitmap and its new priority queue stay consistent; a blocked task is
// placed correctly when it unblocks.
func (k *Kernel) raisePriority(t *TCB, prio uint8) {
	if t.state == TaskReady {
		k.readyRemove(t)
		t.prio = prio
		k.readyAdd(t)
	} else {
		t.prio = prio
	}
}

// restorePriority returns the running task to prio after inheritance.
func (k *Kernel) restorePriority(t *TCB, prio uint8) {
	k.readyRemove(t)
	t.prio = prio
	k.readyAdd(t)
}
