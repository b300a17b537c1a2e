package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tomacox74/js2il-sub000/internal/table"
	"github.com/tomacox74/js2il-sub000/lir/lirfile"
	"github.com/tomacox74/js2il-sub000/vm"
)

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Compile a LIR module and run its entry method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0])
		},
	}
	cmd.Flags().Bool("timing", false, "show execution time")
	cmd.Flags().Int("count-opcodes", 0, "show the N most executed opcodes")
	return cmd
}

type runReport struct {
	Result  string           `json:"result,omitempty"`
	Steps   int64            `json:"steps"`
	RunID   string           `json:"run_id"`
	Elapsed string           `json:"elapsed,omitempty"`
	Opcodes []vm.OpcodeCount `json:"opcodes,omitempty"`
}

func (a *app) run(cmd *cobra.Command, path string) error {
	m, err := lirfile.Load(path)
	if err != nil {
		return err
	}
	codes, err := m.Compile(a.compilerConfig())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	opts := []vm.Option{
		vm.WithOutput(out, cmd.ErrOrStderr()),
		vm.WithLogger(a.logger),
	}
	topN := a.v.GetInt("count-opcodes")
	var counter *vm.OpcodeCounter
	if topN > 0 {
		counter = vm.NewOpcodeCounter()
		opts = append(opts, vm.WithObserver(counter))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := vm.New(codes, opts...)
	start := time.Now()
	result, err := r.Run(ctx, m.Entry)
	elapsed := time.Since(start)
	if err != nil {
		return err
	}
	a.logger.Info().
		Str("module", m.Name).
		Int64("steps", r.Steps()).
		Dur("elapsed", elapsed).
		Msg("module finished")

	timing := a.v.GetBool("timing")
	if a.outputFormat() == "json" {
		report := runReport{Steps: r.Steps(), RunID: r.RunID().String()}
		if result != nil {
			report.Result = vm.Inspect(result)
		}
		if timing {
			report.Elapsed = elapsed.String()
		}
		if counter != nil {
			report.Opcodes = counter.Top(topN)
		}
		return a.writeJSON(out, report)
	}

	if result != nil {
		fmt.Fprintln(out, vm.Inspect(result))
	}
	if timing {
		fmt.Fprintf(cmd.ErrOrStderr(), "%.03f\n", elapsed.Seconds())
	}
	if counter != nil {
		return printCounts(out, counter.Top(topN))
	}
	return nil
}

func printCounts(w io.Writer, counts []vm.OpcodeCount) error {
	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.Name, strconv.Itoa(c.Count)}
	}
	return table.NewTable(w).
		WithHeader([]string{"OPCODE", "COUNT"}).
		WithColumnAlignment([]table.Alignment{table.AlignLeft, table.AlignRight}).
		WithRows(rows).
		Render()
}
