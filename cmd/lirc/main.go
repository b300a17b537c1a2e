package main

import (
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	a := newApp()
	root := &cobra.Command{
		Use:   "lirc",
		Short: "Compile, inspect and run LIR modules",
		Long: `lirc lowers LIR method bodies written in YAML to stack bytecode.

Every flag may also be set through an environment variable with the LIRC_
prefix, e.g. LIRC_PEEPHOLE=false or LIRC_LOG_LEVEL=debug.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.Bool("debug", false, "validate method bodies before emission")
	flags.Bool("peephole", true, "emit console.log calls through the stack-only fast path")
	flags.Int("parallelism", 0, "methods compiled at once (0 selects GOMAXPROCS)")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringP("output", "o", "", "output format (text or json)")
	_ = root.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return outputFormatsCompletion, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(a.disCmd(), a.runCmd(), a.checkCmd(), a.versionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fatal(err)
	}
}
