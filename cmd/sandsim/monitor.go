package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/shlex"
	bytesize "github.com/inhies/go-bytesize"
	tty "github.com/mattn/go-tty"
)

// monitor runs a small interactive console next to the workload:
//
//	ps             task states and priorities
//	ticks          kernel tick counter and machine tick count
//	mem            pool statistics
//	trace [n]      last n context switches (default 10)
//	quit           stop the machine and exit
func (s *sim) monitor(ctx context.Context) error {
	t, err := tty.Open()
	if err != nil {
		return fmt.Errorf("open tty: %w", err)
	}
	defer t.Close()

	fmt.Println("monitor ready; try: ps, ticks, mem, trace, quit")
	for ctx.Err() == nil {
		fmt.Print("mon> ")
		line, err := t.ReadString()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		fmt.Println()
		args, err := shlex.Split(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "ps":
			s.cmdPS()
		case "ticks":
			fmt.Printf("kernel ticks %d, machine ticks %d\n", s.k.Ticks(), s.m.TickCount())
		case "mem":
			s.cmdMem()
		case "trace":
			n := 10
			if len(args) > 1 {
				if v, err := strconv.Atoi(args[1]); err == nil && v > 0 {
					n = v
				}
			}
			s.cmdTrace(n)
		case "quit", "exit":
			s.m.Stop()
			return nil
		default:
			fmt.Printf("unknown command %q\n", args[0])
		}
	}
	return nil
}

func (s *sim) cmdPS() {
	cur := s.k.Current()
	for _, ti := range s.taskList() {
		marker := " "
		if ti.tcb == cur {
			marker = "*"
		}
		fmt.Printf("%s %-12s %-8s prio %2d (base %2d)\n",
			marker, ti.name, ti.tcb.State(), ti.tcb.Priority(), ti.tcb.BasePriority())
	}
}

func (s *sim) cmdMem() {
	s.mu.Lock()
	pools := append([]poolInfo(nil), s.pools...)
	s.mu.Unlock()
	if len(pools) == 0 {
		fmt.Println("no pools in this workload")
		return
	}
	for _, pi := range pools {
		p := pi.pool
		total := bytesize.New(float64(p.TotalBlocks() * p.BlockSize()))
		free := bytesize.New(float64(p.FreeBlocks() * p.BlockSize()))
		fmt.Printf("%-8s %d/%d blocks free (%s of %s, block %s)\n",
			pi.name, p.FreeBlocks(), p.TotalBlocks(), free, total,
			bytesize.New(float64(p.BlockSize())))
	}
}

func (s *sim) cmdTrace(n int) {
	evs := s.tr.Events()
	if len(evs) > n {
		evs = evs[len(evs)-n:]
	}
	for _, ev := range evs {
		fmt.Printf("[tick %6d] %s -> %s\n", ev.Tick, ev.From, ev.To)
	}
}
