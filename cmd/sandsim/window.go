package main

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/SandOcean-ovo/SandOS/kernel"
)

const (
	viewW = 520
	viewH = 400
)

var stateColors = map[kernel.TaskState]color.RGBA{
	kernel.TaskReady:   {0x3f, 0xb9, 0x50, 0xff},
	kernel.TaskBlocked: {0x5a, 0x5f, 0x6a, 0xff},
	kernel.TaskDeleted: {0x30, 0x30, 0x30, 0xff},
}

var runningColor = color.RGBA{0xe8, 0xa3, 0x3d, 0xff}

// traceView renders a best-effort snapshot of task states and the most
// recent context switches. Reads are unsynchronized with the hart; the
// view is diagnostic, not authoritative.
type traceView struct {
	s *sim
}

func (v *traceView) Update() error {
	select {
	case <-v.s.m.Done():
		return ebiten.Termination
	default:
		return nil
	}
}

func (v *traceView) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{0x10, 0x12, 0x16, 0xff})
	y := 8
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("SandOS  tick %d", v.s.k.Ticks()), 8, y)
	y += 24

	cur := v.s.k.Current()
	for _, ti := range v.s.taskList() {
		clr := stateColors[ti.tcb.State()]
		if ti.tcb == cur {
			clr = runningColor
		}
		vector.DrawFilledRect(screen, 8, float32(y), 12, 12, clr, false)
		ebitenutil.DebugPrintAt(screen,
			fmt.Sprintf("%-12s %-8s prio %2d (base %2d)", ti.name, ti.tcb.State(), ti.tcb.Priority(), ti.tcb.BasePriority()),
			28, y)
		y += 18
	}

	y += 10
	ebitenutil.DebugPrintAt(screen, "recent switches:", 8, y)
	y += 18
	evs := v.s.tr.Events()
	if len(evs) > 8 {
		evs = evs[len(evs)-8:]
	}
	for _, ev := range evs {
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("[%6d] %s -> %s", ev.Tick, ev.From, ev.To), 8, y)
		y += 16
	}
}

func (v *traceView) Layout(outsideWidth, outsideHeight int) (int, int) {
	return viewW, viewH
}

// runWindow opens the trace window and blocks until it closes or the
// machine stops.
func runWindow(s *sim) error {
	ebiten.SetWindowSize(viewW, viewH)
	ebiten.SetWindowTitle("sandsim")
	ebiten.SetTPS(30)
	if err := ebiten.RunGame(&traceView{s: s}); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}
