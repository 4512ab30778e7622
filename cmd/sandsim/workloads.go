package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	tty "github.com/mattn/go-tty"

	"github.com/SandOcean-ovo/SandOS/kernel"
	"github.com/SandOcean-ovo/SandOS/port"
)

const demoStackWords = 512

type taskInfo struct {
	name string
	tcb  *kernel.TCB
}

type poolInfo struct {
	name string
	pool *kernel.MemPool
}

// sim holds one simulated system plus the registries the monitor and
// the trace window browse.
type sim struct {
	k  *kernel.Kernel
	m  *port.Machine
	tr *port.Trace

	mu    sync.Mutex
	tasks []taskInfo
	pools []poolInfo

	console *tty.TTY
	echoQ   *kernel.Queue
}

func newSim(k *kernel.Kernel, m *port.Machine, tr *port.Trace) *sim {
	s := &sim{k: k, m: m, tr: tr}
	s.m.NameContext(k.IdleTask().Context(), "idle")
	s.addTask("idle", k.IdleTask())
	return s
}

func (s *sim) addTask(name string, tcb *kernel.TCB) {
	s.mu.Lock()
	s.tasks = append(s.tasks, taskInfo{name, tcb})
	s.mu.Unlock()
}

func (s *sim) taskList() []taskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]taskInfo(nil), s.tasks...)
}

func (s *sim) spawn(name string, prio uint8, fn port.Func) error {
	tcb := new(kernel.TCB)
	if st := s.k.TaskCreate(tcb, fn, nil, make([]uint32, demoStackWords), prio); st != kernel.OK {
		return fmt.Errorf("create task %s: %s", name, st)
	}
	s.m.NameContext(tcb.Context(), name)
	s.addTask(name, tcb)
	return nil
}

func (s *sim) say(msg string) {
	fmt.Printf("%8d  %s\n", s.k.Ticks(), msg)
}

func (s *sim) build(workload string) error {
	switch workload {
	case "blinky":
		return s.addBlinky()
	case "queue":
		return s.addQueuePair()
	case "mutex":
		return s.addMutexTrio()
	case "pool":
		return s.addPoolWorkers()
	case "echo":
		return s.addEcho()
	case "all":
		for _, add := range []func() error{s.addBlinky, s.addQueuePair, s.addMutexTrio, s.addPoolWorkers} {
			if err := add(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown workload %q", workload)
	}
}

// addBlinky toggles a virtual LED every half second of tick time.
func (s *sim) addBlinky() error {
	return s.spawn("blinky", 8, func(any) {
		on := false
		for {
			on = !on
			if on {
				s.say("blinky: led on")
			} else {
				s.say("blinky: led off")
			}
			s.k.Delay(500)
		}
	})
}

// addQueuePair runs a producer/consumer pair over a 16-deep queue of
// 4-byte sequence numbers. The consumer outranks the producer, so every
// send is consumed immediately.
func (s *sim) addQueuePair() error {
	q := new(kernel.Queue)
	if st := s.k.QueueInit(q, make([]byte, 64), 4, 16); st != kernel.OK {
		return fmt.Errorf("queue init: %s", st)
	}
	if err := s.spawn("consumer", 5, func(any) {
		var msg [4]byte
		for {
			if st := q.Receive(msg[:]); st != kernel.OK {
				continue
			}
			seq := binary.LittleEndian.Uint32(msg[:])
			if seq%50 == 0 {
				s.say(fmt.Sprintf("consumer: message %d", seq))
			}
		}
	}); err != nil {
		return err
	}
	return s.spawn("producer", 9, func(any) {
		seq := uint32(0)
		var msg [4]byte
		for {
			seq++
			binary.LittleEndian.PutUint32(msg[:], seq)
			if st := q.Send(msg[:]); st == kernel.ErrQueueFull {
				s.k.Delay(5)
				continue
			}
			s.k.Delay(20)
		}
	})
}

// addMutexTrio is the classic inversion setup: a low-priority holder, a
// middle-priority spinner and a high-priority pender. Inheritance keeps
// the high task's wait bounded by the holder's critical section.
func (s *sim) addMutexTrio() error {
	mu := new(kernel.Mutex)
	if st := s.k.MutexInit(mu); st != kernel.OK {
		return fmt.Errorf("mutex init: %s", st)
	}
	if err := s.spawn("mtx-high", 4, func(any) {
		for {
			s.k.Delay(400)
			mu.Pend()
			s.say("mtx-high: got the lock")
			mu.Post()
		}
	}); err != nil {
		return err
	}
	if err := s.spawn("mtx-mid", 10, func(any) {
		for {
			s.k.Delay(1)
		}
	}); err != nil {
		return err
	}
	return s.spawn("mtx-low", 20, func(any) {
		for {
			mu.Pend()
			s.k.Delay(150) // long critical section
			mu.Post()
			s.k.Delay(50)
		}
	})
}

// addPoolWorkers cycles two workers through a two-block pool; a third
// worker oversubscribes it to exercise blocking Get.
func (s *sim) addPoolWorkers() error {
	pool := new(kernel.MemPool)
	if st := s.k.MemInit(pool, make([]byte, 2*32), 2, 32); st != kernel.OK {
		return fmt.Errorf("pool init: %s", st)
	}
	s.mu.Lock()
	s.pools = append(s.pools, poolInfo{"demo", pool})
	s.mu.Unlock()

	worker := func(name string, hold uint32) port.Func {
		return func(any) {
			rounds := 0
			for {
				b := pool.Get()
				b[0]++
				s.k.Delay(hold)
				if st := pool.Put(b); st != kernel.OK {
					s.say(fmt.Sprintf("%s: put failed: %s", name, st))
				}
				rounds++
				if rounds%100 == 0 {
					s.say(fmt.Sprintf("%s: %d rounds, %d blocks free", name, rounds, pool.FreeBlocks()))
				}
			}
		}
	}
	for i, hold := range []uint32{7, 11, 13} {
		name := fmt.Sprintf("pool-%d", i)
		if err := s.spawn(name, 12, worker(name, hold)); err != nil {
			return err
		}
	}
	return nil
}

// addEcho opens the terminal in raw mode and forwards each typed rune
// into the kernel as a UART receive interrupt; an echo task drains the
// queue and writes the characters back.
func (s *sim) addEcho() error {
	t, err := tty.Open()
	if err != nil {
		return fmt.Errorf("open tty: %w", err)
	}
	s.console = t

	q := new(kernel.Queue)
	if st := s.k.QueueInit(q, make([]byte, 64), 1, 64); st != kernel.OK {
		return fmt.Errorf("echo queue init: %s", st)
	}
	s.echoQ = q
	return s.spawn("echo", 4, func(any) {
		buf := make([]byte, 1)
		for {
			if st := q.Receive(buf); st != kernel.OK {
				continue
			}
			fmt.Printf("%c", buf[0])
		}
	})
}

// pumpConsole feeds terminal runes into the echo queue from interrupt
// context. Runs on a host goroutine, standing in for the UART.
func (s *sim) pumpConsole(ctx context.Context) error {
	defer s.console.Close()
	for ctx.Err() == nil {
		r, err := s.console.ReadRune()
		if err != nil {
			return err
		}
		if r == 0 {
			continue
		}
		b := byte(r)
		s.m.InjectIRQ(func() {
			woken := false
			s.echoQ.SendFromISR([]byte{b}, &woken)
			s.k.YieldFromISR(woken)
		})
	}
	return nil
}
