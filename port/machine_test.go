package port

import "testing"

func TestInitStackPaintsFrame(t *testing.T) {
	m := NewMachine(MachineConfig{ManualClock: true})
	stack := make([]uint32, 64)
	ctx := m.InitStack(func(any) {}, nil, stack)
	st := ctx.(*simTask)
	if st.sp != len(stack)-frameWords {
		t.Fatalf("sp = %d, want %d", st.sp, len(stack)-frameWords)
	}
	if stack[len(stack)-1] != simStatusWord {
		t.Fatalf("status word = %#x, want %#x", stack[len(stack)-1], simStatusWord)
	}
	if !m.StackHealthy(ctx) {
		t.Fatal("fresh context reported unhealthy")
	}
}

func TestInitStackTooShallow(t *testing.T) {
	m := NewMachine(MachineConfig{ManualClock: true})
	ctx := m.InitStack(func(any) {}, nil, make([]uint32, 8))
	if m.StackHealthy(ctx) {
		t.Fatal("frame larger than the stack must be unhealthy")
	}
}

func TestAdvanceTicksServicedAtBoundary(t *testing.T) {
	m := NewMachine(MachineConfig{ManualClock: true})
	ticks := 0
	sawISR := false
	m.InitTimer(func() {
		ticks++
		if m.InISR() {
			sawISR = true
		}
	})

	m.AdvanceTicks(3)
	if ticks != 0 {
		t.Fatalf("ticks = %d before a boundary, want 0", ticks)
	}
	m.DisableIRQ()
	m.EnableIRQ()
	if ticks != 3 {
		t.Fatalf("ticks = %d after boundary, want 3", ticks)
	}
	if got := m.TickCount(); got != 3 {
		t.Fatalf("TickCount() = %d, want 3", got)
	}
	if !sawISR {
		t.Fatal("tick handler did not observe interrupt context")
	}
	if m.InISR() {
		t.Fatal("InISR() sticky after handler returned")
	}
}

func TestInjectIRQRuns(t *testing.T) {
	m := NewMachine(MachineConfig{ManualClock: true})
	ran := false
	m.InjectIRQ(func() { ran = true })
	m.DisableIRQ()
	m.EnableIRQ()
	if !ran {
		t.Fatal("injected ISR did not run at the boundary")
	}
}

func TestTraceRingKeepsNewest(t *testing.T) {
	tr := NewTrace(3)
	for i := uint64(1); i <= 5; i++ {
		tr.record(TraceEvent{Tick: i})
	}
	got := tr.Events()
	if len(got) != 3 {
		t.Fatalf("Events() len = %d, want 3", len(got))
	}
	for i, want := range []uint64{3, 4, 5} {
		if got[i].Tick != want {
			t.Fatalf("Events()[%d].Tick = %d, want %d", i, got[i].Tick, want)
		}
	}
}
