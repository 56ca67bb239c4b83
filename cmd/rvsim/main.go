// Command rvsim loads and runs an RV64I executable, either with the
// sequential driver or the five-stage pipeline driver (§6).
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"rv64sim/pkg/debugger"
	"rv64sim/pkg/loader"
	"rv64sim/pkg/regfile"
	"rv64sim/pkg/sim"
)

func main() {
	log.SetFlags(0)

	var (
		interactive   bool
		quiet         bool
		countFromMain bool
		forwarding    bool
		sequential    bool
	)

	root := &cobra.Command{
		Use:   "rvsim <executable>",
		Short: "Simulate an RV64I executable with a sequential or pipelined timing model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], interactive, quiet, countFromMain, forwarding, sequential)
		},
	}

	root.Flags().BoolVarP(&interactive, "interactive", "i", false, "enable the interactive debugger")
	root.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the startup banner and final report")
	root.Flags().BoolVarP(&countFromMain, "cpi-from-main", "c", false, "start CPI counting at main instead of the entry point")
	root.Flags().BoolVarP(&forwarding, "forwarding", "f", false, "enable register forwarding (pipeline model only)")
	root.Flags().BoolVarP(&sequential, "sequential", "s", false, "use the sequential model instead of the pipeline")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(path string, interactive, quiet, countFromMain, forwarding, sequential bool) error {
	// Forwarding is baked into the register file at construction, so the
	// loader needs to know up front; it is meaningless outside the
	// pipeline model but harmless to carry either way.
	prog, err := loader.Load(path, forwarding && !sequential)
	if err != nil {
		log.Printf("[Fatal] %v", err)
		os.Exit(1)
	}

	startPC := prog.EntryPoint
	if countFromMain {
		if fn, ok := prog.FuncByName("main"); ok {
			startPC = fn.Start
		}
	}

	if !quiet {
		log.Printf("[Debug] entry point: %#x, sp = %#x", prog.EntryPoint, prog.RegFile.Value(regfile.X2))
	}

	if sequential {
		if forwarding && !quiet {
			log.Printf("[Warning] -f has no effect in sequential mode")
		}
		d := sim.NewSequentialDriver(prog, startPC, quiet)
		if interactive {
			d.Debugger = debugger.New(prog, os.Stdin, os.Stdout)
		}
		d.Run()
		if !quiet {
			fmt.Printf("retired=%d cycles=%d cpi=%.2f\n", d.Retired, d.Cycles, d.CPI())
		}
		return nil
	}

	if interactive && !quiet {
		log.Printf("[Warning] -i is only supported in sequential (-s) mode; running without it")
	}
	d := sim.NewPipelineDriver(prog, startPC, quiet)
	d.Run()
	if !quiet {
		fmt.Printf("retired=%d cycles=%d cpi=%.2f data_hazards=%d control_hazards=%d\n",
			d.Retired, d.Cycles, d.CPI(), d.DataHazards, d.ControlHazards)
	}
	return nil
}
