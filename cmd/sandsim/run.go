package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SandOcean-ovo/SandOS/kernel"
	"github.com/SandOcean-ovo/SandOS/port"
)

var runOpts = struct {
	workload string
	tickHz   int
	duration time.Duration
	trace    bool
	monitor  bool
	window   bool
}{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a demo workload on the simulated machine",
	Long:  "Run a demo workload (blinky, queue, mutex, pool, echo or all) until interrupted or until --for elapses.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSim()
	},
}

func init() {
	runCmd.Flags().StringVar(&runOpts.workload, "workload", "all", "workload: blinky|queue|mutex|pool|echo|all")
	runCmd.Flags().IntVar(&runOpts.tickHz, "tick-hz", 1000, "tick timer rate")
	runCmd.Flags().DurationVar(&runOpts.duration, "for", 0, "stop after this long (0 = until interrupted)")
	runCmd.Flags().BoolVar(&runOpts.trace, "trace", false, "log every context switch")
	runCmd.Flags().BoolVar(&runOpts.monitor, "monitor", false, "interactive monitor on the terminal")
	runCmd.Flags().BoolVar(&runOpts.window, "window", false, "open the scheduler trace window")
}

// stdoutLogger is the host console.
type stdoutLogger struct{}

func (stdoutLogger) WriteLineString(s string) { fmt.Println(s) }

func runSim() error {
	if runOpts.monitor && runOpts.workload == "echo" {
		return fmt.Errorf("--monitor and the echo workload both own the terminal; pick one")
	}

	tr := port.NewTrace(4096)
	cfg := port.MachineConfig{TickHz: runOpts.tickHz, Trace: tr}
	if runOpts.trace {
		cfg.Logger = stdoutLogger{}
	}
	m := port.NewMachine(cfg)
	k := kernel.New(m)
	k.SetFaultHandler(func(fi kernel.FaultInfo) {
		fmt.Fprintf(os.Stderr, "kernel fault at tick %d: %s\n", fi.Tick, fi.Reason)
	})

	s := newSim(k, m, tr)
	if err := s.build(runOpts.workload); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		k.StartScheduler()
		return nil
	})
	g.Go(func() error {
		var deadline <-chan time.Time
		if runOpts.duration > 0 {
			deadline = time.After(runOpts.duration)
		}
		select {
		case <-ctx.Done():
		case <-deadline:
		case <-m.Done():
		}
		m.Stop()
		return nil
	})
	if s.console != nil {
		g.Go(func() error { return s.pumpConsole(ctx) })
	}
	if runOpts.monitor {
		g.Go(func() error { return s.monitor(ctx) })
	}

	if runOpts.window {
		if err := runWindow(s); err != nil {
			m.Stop()
			g.Wait()
			return err
		}
		m.Stop()
	}
	return g.Wait()
}
