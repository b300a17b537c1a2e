package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/compiler"
	"github.com/tomacox74/js2il-sub000/internal/table"
	"github.com/tomacox74/js2il-sub000/lir/lirfile"
	"golang.org/x/sync/errgroup"
)

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate, compile and verify every method of one or more LIR modules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.check(cmd.OutOrStdout(), args)
		},
	}
}

type methodReport struct {
	File     string `json:"file"`
	Method   string `json:"method,omitempty"`
	Words    int    `json:"words,omitempty"`
	MaxStack int    `json:"max_stack,omitempty"`
	Locals   int    `json:"locals,omitempty"`
	Error    string `json:"error,omitempty"`
}

// check compiles each method on its own with validation enabled, so one
// broken method does not hide the results of the others.
func (a *app) check(w io.Writer, paths []string) error {
	results := make([][]methodReport, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = a.checkFile(path)
			return nil
		})
	}
	_ = g.Wait()

	var reports []methodReport
	failed := 0
	for _, rs := range results {
		for _, r := range rs {
			if r.Error != "" {
				failed++
			}
			reports = append(reports, r)
		}
	}

	var err error
	if a.outputFormat() == "json" {
		err = a.writeJSON(w, reports)
	} else {
		err = printReports(w, reports)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(reports))
	}
	return nil
}

func (a *app) checkFile(path string) []methodReport {
	m, err := lirfile.Load(path)
	if err != nil {
		return []methodReport{{File: path, Error: err.Error()}}
	}
	cfg := a.compilerConfig()
	cfg.Debug = true
	reports := make([]methodReport, len(m.Methods))
	for i, method := range m.Methods {
		report := methodReport{File: path, Method: method.Body.Name}
		code, err := compiler.Compile(method.Body, method.Descriptor, m.Table, cfg)
		if err == nil {
			err = verify(code)
		}
		if err != nil {
			report.Error = err.Error()
			a.logger.Debug().Err(err).Str("method", report.Method).Msg("check failed")
		} else {
			report.Words = code.InstructionCount()
			report.MaxStack = code.MaxStack()
			report.Locals = code.LocalCount()
		}
		reports[i] = report
	}
	return reports
}

// verify re-runs the stack balance analysis on emitted code and compares
// its result with the recorded maximum depth.
func verify(code *bytecode.Code) error {
	regions := make([]bytecode.ExceptionRegion, code.RegionCount())
	for i := range regions {
		regions[i] = code.RegionAt(i)
	}
	depth, err := bytecode.Verify(code.Instructions(), regions)
	if err != nil {
		return err
	}
	if depth != code.MaxStack() {
		return fmt.Errorf("recorded max stack %d, verified %d", code.MaxStack(), depth)
	}
	return nil
}

func printReports(w io.Writer, reports []methodReport) error {
	ok := color.New(color.FgGreen).SprintFunc()
	rows := make([][]string, len(reports))
	for i, r := range reports {
		status := ok("ok")
		if r.Error != "" {
			status = red(r.Error)
		}
		rows[i] = []string{
			r.File,
			r.Method,
			strconv.Itoa(r.Words),
			strconv.Itoa(r.MaxStack),
			strconv.Itoa(r.Locals),
			status,
		}
	}
	return table.NewTable(w).
		WithHeader([]string{"FILE", "METHOD", "WORDS", "MAX STACK", "LOCALS", "STATUS"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignLeft,
			table.AlignLeft,
			table.AlignRight,
			table.AlignRight,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithRows(rows).
		Render()
}
