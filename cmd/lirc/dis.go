package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tomacox74/js2il-sub000/bytecode"
	"github.com/tomacox74/js2il-sub000/dis"
	"github.com/tomacox74/js2il-sub000/lir/lirfile"
)

func (a *app) disCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis FILE",
		Short: "Disassemble the bytecode compiled from a LIR module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dis(cmd.OutOrStdout(), args[0], a.v.GetString("func"))
		},
	}
	cmd.Flags().String("func", "", "disassemble only the named method")
	return cmd
}

type disassembly struct {
	Method       string            `json:"method"`
	Instructions []dis.Instruction `json:"instructions"`
}

func (a *app) dis(w io.Writer, path, funcName string) error {
	m, err := lirfile.Load(path)
	if err != nil {
		return err
	}
	codes, err := m.Compile(a.compilerConfig())
	if err != nil {
		return err
	}
	var selected []*bytecode.Code
	for _, code := range codes {
		if funcName == "" || code.Name() == funcName {
			selected = append(selected, code)
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("method %q not found", funcName)
	}

	if a.outputFormat() == "json" {
		out := make([]disassembly, 0, len(selected))
		for _, code := range selected {
			instructions, err := dis.Disassemble(code)
			if err != nil {
				return err
			}
			out = append(out, disassembly{Method: code.Name(), Instructions: instructions})
		}
		return a.writeJSON(w, out)
	}
	for i, code := range selected {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := dis.PrintCode(code, w); err != nil {
			return err
		}
	}
	return nil
}
