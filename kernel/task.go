package kernel

import "github.com/SandOcean-ovo/SandOS/port"

// TaskState is a task's scheduling state.
type TaskState uint8

const (
	TaskReady TaskState = iota
	TaskBlocked
	TaskDeleted
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskBlocked:
		return "blocked"
	case TaskDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// TCB is a task control block. Its storage is provided by the caller at
// creation; the kernel borrows it for the task's lifetime and never
// frees it. The TCB is itself the list node of whichever single list the
// task is on: a ready queue, the delay list, or one wait set.
type TCB struct {
	ctx   port.Context // saved processor state, owned by the port between runs
	stack []uint32     // task stack words; stack[0] holds the overflow sentinel

	prev *TCB
	next *TCB

	state      TaskState
	delayTicks uint32 // delta-encoded while on the delay list
	prio       uint8  // effective priority; 0 is highest
	basePrio   uint8  // creation-time priority
}

// State returns the task's scheduling state.
func (t *TCB) State() TaskState { return t.state }

// Priority returns the task's effective priority, which may be raised
// above the base priority by mutex inheritance.
func (t *TCB) Priority() uint8 { return t.prio }

// BasePriority returns the creation-time priority.
func (t *TCB) BasePriority() uint8 { return t.basePrio }

// Context returns the port-owned saved state. Host tooling uses it to
// correlate trace events with tasks.
func (t *TCB) Context() port.Context { return t.ctx }

// TaskCreate initializes tcb to run fn(arg) on the caller's stack words
// at the given priority and places it on its ready queue. The low stack
// word is painted with the overflow sentinel.
func (k *Kernel) TaskCreate(tcb *TCB, fn port.Func, arg any, stack []uint32, prio uint8) Status {
	if tcb == nil || fn == nil || len(stack) == 0 || prio > MaxPrio-1 {
		return ErrParam
	}
	tcb.ctx = k.port.InitStack(fn, arg, stack)
	tcb.stack = stack
	stack[0] = StackMagic

	tcb.delayTicks = 0
	tcb.state = TaskReady
	tcb.prio = prio
	tcb.basePrio = prio

	k.EnterCritical()
	k.readyAdd(tcb)
	k.ExitCritical()
	return OK
}

// Delay blocks the calling task for the given number of ticks. The
// delay list is kept sorted by wake time and stored as deltas: only the
// head's counter is decremented each tick.
//
// Delay(0) is a round-robin yield: the caller moves to the tail of its
// own priority queue and never blocks.
func (k *Kernel) Delay(ticks uint32) {
	if k.port.InISR() {
		return
	}
	k.EnterCritical()
	cur := k.current

	if ticks == 0 {
		l := &k.ready[cur.prio]
		if l.head != l.tail {
			l.remove(cur)
			l.insertTail(cur)
			k.requestSwitch()
		}
		k.ExitCritical()
		return
	}

	cur.state = TaskBlocked
	k.readyRemove(cur)

	if k.delay.head == nil {
		cur.delayTicks = ticks
		k.delay.insertTail(cur)
	} else {
		// Walk forward, consuming each node's delta, until the leftover
		// is smaller than the next node's.
		iter := k.delay.head
		for iter != nil && ticks >= iter.delayTicks {
			ticks -= iter.delayTicks
			iter = iter.next
		}
		cur.delayTicks = ticks
		if iter == nil {
			k.delay.insertTail(cur)
		} else {
			iter.delayTicks -= ticks // re-normalize the follower's delta
			k.delay.insertBefore(iter, cur)
		}
	}

	k.requestSwitch()
	k.ExitCritical()
}
