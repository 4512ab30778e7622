package port

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Status word planted at the top of every simulated task frame. Matches
// a machine-mode mstatus with interrupts enabled.
const simStatusWord = 0x00001880

// frameWords is the size of the synthetic switch frame in stack words.
const frameWords = 32

// MachineConfig controls a simulated machine.
type MachineConfig struct {
	// TickHz is the tick timer rate. Zero or negative means 1000.
	TickHz int
	// ManualClock suppresses the timer goroutine; ticks are delivered
	// with AdvanceTicks instead. Used for deterministic runs.
	ManualClock bool
	// Trace, when non-nil, records context-switch events.
	Trace *Trace
	// Logger, when non-nil, receives one line per context switch.
	Logger Logger
}

// Machine simulates a single hart for the kernel to run on. Each task's
// context owns a goroutine; exactly one task goroutine executes at a
// time, and a context switch parks the outgoing goroutine and resumes
// the incoming one.
//
// Interrupts (tick timer, injected ISRs, the software interrupt) are
// delivered at interrupt boundaries: EnableIRQ transitions, Idle, and
// TriggerSWI itself. Kernel calls are therefore the instruction
// boundaries of the virtual hart; task code that computes without
// touching the kernel is not preempted by the simulation.
//
// Stop abandons parked task goroutines; a Machine is built for
// process-lifetime simulation, not for repeated start/stop cycles.
type Machine struct {
	cfg MachineConfig

	mu        sync.Mutex
	cond      *sync.Cond
	sched     Switcher
	running   *simTask
	irqOff    bool
	inISR     bool
	pendSWI   bool
	pendTicks uint32
	pendIRQs  []func()
	tick      func()
	tickCount uint64
	taskSeq   int
	started   bool
	stopped   bool
	quit      chan struct{}
}

// simTask is the Machine's Context: a lazily started goroutine plus the
// synthetic frame bookkeeping for the task's stack words.
type simTask struct {
	m      *Machine
	name   string
	entry  Func
	arg    any
	stack  []uint32
	sp     int // word index of the saved stack pointer; 0 means overflowed
	resume chan struct{}
	start  bool
}

// NewMachine returns a stopped-clock machine; the timer starts when the
// kernel programs it via InitTimer.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.TickHz <= 0 {
		cfg.TickHz = 1000
	}
	m := &Machine{cfg: cfg, quit: make(chan struct{})}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Bind installs the scheduler.
func (m *Machine) Bind(s Switcher) { m.sched = s }

// InitStack paints a synthetic switch frame into the top of the caller's
// stack words and returns the task's context. Stacks with no room for
// the frame above the low sentinel word (frameWords words or fewer) are
// marked overflowed from the start; the kernel's stack check
// faults them on the first tick.
func (m *Machine) InitStack(entry Func, arg any, stack []uint32) Context {
	m.mu.Lock()
	seq := m.taskSeq
	m.taskSeq++
	m.mu.Unlock()

	t := &simTask{
		m:      m,
		name:   fmt.Sprintf("task#%d", seq),
		entry:  entry,
		arg:    arg,
		stack:  stack,
		resume: make(chan struct{}, 1),
	}
	sp := len(stack) - frameWords
	if sp < 1 {
		t.sp = 0
		return t
	}
	frame := stack[sp:]
	for i := range frame {
		frame[i] = 0
	}
	frame[len(frame)-1] = simStatusWord
	t.sp = sp
	return t
}

// StackHealthy reports whether the context's stack pointer is still
// above the stack's low word.
func (m *Machine) StackHealthy(ctx Context) bool {
	t, ok := ctx.(*simTask)
	return ok && t.sp > 0
}

// NameContext labels a context for trace output.
func (m *Machine) NameContext(ctx Context, name string) {
	if t, ok := ctx.(*simTask); ok {
		m.mu.Lock()
		t.name = name
		m.mu.Unlock()
	}
}

// InitTimer installs the tick handler and, unless the clock is manual,
// starts the timer goroutine.
func (m *Machine) InitTimer(tick func()) {
	m.mu.Lock()
	m.tick = tick
	m.mu.Unlock()
	if m.cfg.ManualClock {
		return
	}
	go func() {
		tk := time.NewTicker(time.Second / time.Duration(m.cfg.TickHz))
		defer tk.Stop()
		for {
			select {
			case <-m.quit:
				return
			case <-tk.C:
				m.AdvanceTicks(1)
			}
		}
	}()
}

// AdvanceTicks pends n tick interrupts. They are taken when the hart
// next crosses an interrupt boundary with interrupts enabled.
func (m *Machine) AdvanceTicks(n uint32) {
	m.mu.Lock()
	m.pendTicks += n
	m.cond.Signal()
	m.mu.Unlock()
}

// InjectIRQ queues isr to run in interrupt context at the next boundary.
// The ISR runs with interrupts gated; if it wakes a task it should end
// with the kernel's YieldFromISR.
func (m *Machine) InjectIRQ(isr func()) {
	m.mu.Lock()
	m.pendIRQs = append(m.pendIRQs, isr)
	m.cond.Signal()
	m.mu.Unlock()
}

// TickCount returns the number of tick interrupts taken so far.
func (m *Machine) TickCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickCount
}

// TriggerSWI pends the context-switch trap and takes it immediately if
// interrupts are enabled.
func (m *Machine) TriggerSWI() {
	m.mu.Lock()
	m.pendSWI = true
	if m.irqOff {
		m.mu.Unlock()
		return
	}
	m.service()
}

// DisableIRQ gates interrupt delivery.
func (m *Machine) DisableIRQ() {
	m.mu.Lock()
	m.irqOff = true
	m.mu.Unlock()
}

// EnableIRQ ungates interrupt delivery and services anything pending.
func (m *Machine) EnableIRQ() {
	m.mu.Lock()
	m.irqOff = false
	m.service()
}

// Idle sleeps the hart until an interrupt is pending, then services it.
func (m *Machine) Idle() {
	m.mu.Lock()
	for !m.stopped && !m.pendSWI && m.pendTicks == 0 && len(m.pendIRQs) == 0 {
		m.cond.Wait()
	}
	if m.stopped {
		m.mu.Unlock()
		runtime.Goexit()
	}
	m.service()
}

// InISR reports whether the caller runs in interrupt context.
func (m *Machine) InISR() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inISR
}

// TopPrio returns the lowest-numbered set bit of prioMap.
func (m *Machine) TopPrio(prioMap uint32) uint8 { return LookupTopPrio(prioMap) }

// StartFirstTask dispatches the first context and parks the boot
// goroutine until the machine stops.
func (m *Machine) StartFirstTask(first Context) {
	t := first.(*simTask)
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.running = t
	m.started = true
	t.start = true
	m.irqOff = false
	m.mu.Unlock()

	go t.run()
	t.resume <- struct{}{}
	<-m.quit
}

// Done is closed when the machine stops.
func (m *Machine) Done() <-chan struct{} { return m.quit }

// Stop shuts the machine down. StartFirstTask returns, the timer
// goroutine exits, and parked tasks are abandoned.
func (m *Machine) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.quit)
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Halt stops the machine after a fatal fault and panics on the calling
// goroutine, so a fault is never silent on the host.
func (m *Machine) Halt(reason string) {
	m.Stop()
	panic("sandos: machine halted: " + reason)
}

// service drains pending interrupts and switch requests in hardware
// priority order: external IRQs, then the software interrupt, then the
// next tick, so a switch requested by a tick handler is taken before
// a further batched tick. A goroutine that was switched out and later
// resumed returns to its task code at once; whatever is still pending
// is taken at the next boundary. Entered with m.mu held and interrupts
// enabled; returns with m.mu released.
//
// Once the machine has stopped, a dispatched hart goroutine that lands
// here terminates instead of resuming task code: a stopped machine
// executes nothing further, and a task body falling off its end would
// otherwise trip the return trap.
func (m *Machine) service() {
	if m.stopped && m.started {
		m.mu.Unlock()
		runtime.Goexit()
	}
	for !m.stopped && !m.irqOff {
		switch {
		case len(m.pendIRQs) > 0:
			isr := m.pendIRQs[0]
			m.pendIRQs = m.pendIRQs[1:]
			m.runISR(isr)
		case m.pendSWI:
			m.pendSWI = false
			if m.contextSwitch() {
				m.mu.Unlock()
				return
			}
		case m.pendTicks > 0:
			m.pendTicks--
			m.tickCount++
			m.runISR(m.tick)
		default:
			m.mu.Unlock()
			return
		}
	}
	m.mu.Unlock()
}

// runISR executes fn in interrupt context: interrupts gated for its
// duration, as on hardware. Called with m.mu held.
func (m *Machine) runISR(fn func()) {
	m.inISR = true
	m.irqOff = true
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
	m.mu.Lock()
	m.inISR = false
	m.irqOff = false
}

// contextSwitch commits the scheduler's decision: parks the outgoing
// goroutine and resumes the incoming one. Called with m.mu held; the
// caller must be the outgoing goroutine (or the boot goroutine). It
// reports whether the caller was parked and has since been resumed.
func (m *Machine) contextSwitch() bool {
	prevC, nextC := m.sched.SwapContext()
	prev, _ := prevC.(*simTask)
	next, _ := nextC.(*simTask)
	if next == nil || next == prev {
		return false
	}
	if m.cfg.Trace != nil {
		m.cfg.Trace.record(TraceEvent{Tick: m.tickCount, From: taskName(prev), To: next.name})
	}
	if m.cfg.Logger != nil {
		m.cfg.Logger.WriteLineString(fmt.Sprintf("[tick %d] switch %s -> %s", m.tickCount, taskName(prev), next.name))
	}
	m.running = next
	if !next.start {
		next.start = true
		go next.run()
	}
	select {
	case next.resume <- struct{}{}:
	default:
	}
	if prev != nil {
		m.mu.Unlock()
		<-prev.resume
		m.mu.Lock()
		return true
	}
	return false
}

func taskName(t *simTask) string {
	if t == nil {
		return "boot"
	}
	return t.name
}

// run is a task goroutine's trampoline: wait for first dispatch, enter
// the task function, and trap if it ever returns.
func (t *simTask) run() {
	<-t.resume
	t.entry(t.arg)
	t.m.Halt("task function returned: " + t.name)
}
