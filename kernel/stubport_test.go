package kernel

import (
	"testing"

	"github.com/SandOcean-ovo/SandOS/port"
)

// stubPort is a synchronous port double. The software interrupt is
// taken the moment interrupts are enabled, as a logical swap of the
// running task, with no goroutines and no stacks. Tests act as whichever
// task the kernel considers current.
//
// onSwitch, when set, runs once after the next swap, standing in for
// the code the newly dispatched task would execute.
type stubPort struct {
	sched    port.Switcher
	irqOff   bool
	pendSWI  bool
	inISR    bool
	switches int
	halted   string
	tickFn   func()
	onSwitch func()
}

type stubCtx struct {
	healthy bool
}

type haltPanic struct{ reason string }

func (p *stubPort) Bind(s port.Switcher) { p.sched = s }

func (p *stubPort) InitStack(entry port.Func, arg any, stack []uint32) port.Context {
	return &stubCtx{healthy: true}
}

func (p *stubPort) StackHealthy(ctx port.Context) bool {
	return ctx.(*stubCtx).healthy
}

func (p *stubPort) InitTimer(tick func()) { p.tickFn = tick }

func (p *stubPort) TriggerSWI() {
	p.pendSWI = true
	if !p.irqOff {
		p.deliver()
	}
}

func (p *stubPort) StartFirstTask(first port.Context) {}

func (p *stubPort) DisableIRQ() { p.irqOff = true }

func (p *stubPort) EnableIRQ() {
	p.irqOff = false
	if p.pendSWI {
		p.deliver()
	}
}

func (p *stubPort) deliver() {
	p.pendSWI = false
	prev, next := p.sched.SwapContext()
	if prev != next {
		p.switches++
	}
	if fn := p.onSwitch; fn != nil {
		p.onSwitch = nil
		fn()
	}
}

func (p *stubPort) Idle() {}

func (p *stubPort) InISR() bool { return p.inISR }

func (p *stubPort) TopPrio(m uint32) uint8 { return port.LookupTopPrio(m) }

func (p *stubPort) Halt(reason string) {
	p.halted = reason
	panic(haltPanic{reason})
}

// newTestKernel returns a fresh kernel on a stub port.
func newTestKernel(t *testing.T) (*Kernel, *stubPort) {
	t.Helper()
	p := &stubPort{}
	return New(p), p
}

// start runs the scheduler; with the stub port this returns immediately
// with the highest-priority task current.
func start(t *testing.T, k *Kernel) {
	t.Helper()
	k.StartScheduler()
	if k.Current() == nil {
		t.Fatal("StartScheduler() left no current task")
	}
}

// spawn creates a task with a throwaway body and stack.
func spawn(t *testing.T, k *Kernel, prio uint8) *TCB {
	t.Helper()
	tcb := new(TCB)
	if st := k.TaskCreate(tcb, func(any) {}, nil, make([]uint32, 64), prio); st != OK {
		t.Fatalf("TaskCreate(prio=%d) = %s, want ok", prio, st)
	}
	return tcb
}

// checkBitmap asserts the bitmap/ready-queue invariant: bit p set iff
// ready queue p is non-empty.
func checkBitmap(t *testing.T, k *Kernel) {
	t.Helper()
	for p := 0; p < MaxPrio; p++ {
		bit := k.prioMap&(1<<p) != 0
		nonEmpty := k.ready[p].head != nil
		if bit != nonEmpty {
			t.Fatalf("bitmap bit %d = %v, ready queue non-empty = %v", p, bit, nonEmpty)
		}
	}
}

// ticksN drives the tick handler n times through the stub ISR path.
func ticksN(t *testing.T, k *Kernel, p *stubPort, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p.inISR = true
		p.irqOff = true
		k.TickHandler()
		p.inISR = false
		p.irqOff = false
		if p.pendSWI {
			p.deliver()
		}
	}
}
