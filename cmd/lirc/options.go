package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tomacox74/js2il-sub000/compiler"
)

// app holds the settings shared by every command. Each root command owns
// its own viper instance so that commands can be built repeatedly in tests.
type app struct {
	v      *viper.Viper
	logger zerolog.Logger
	color  bool
}

func newApp() *app {
	v := viper.New()
	v.SetEnvPrefix("LIRC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &app{v: v, logger: zerolog.Nop()}
}

// configure binds the flags of the executing command and applies the
// global settings.
func (a *app) configure(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	a.color = !a.v.GetBool("no-color") && isTerminal(cmd.OutOrStdout())
	color.NoColor = !a.color

	level, err := zerolog.ParseLevel(strings.ToLower(a.v.GetString("log-level")))
	if err != nil {
		return fmt.Errorf("invalid log level: %q", a.v.GetString("log-level"))
	}
	a.logger = newLogger(cmd.ErrOrStderr(), level, !a.color)

	switch format := strings.ToLower(a.v.GetString("output")); format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}

func newLogger(w io.Writer, level zerolog.Level, noColor bool) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: noColor}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// compilerConfig returns the compiler configuration selected by flags and
// environment.
func (a *app) compilerConfig() compiler.Config {
	cfg := compiler.DefaultConfig()
	cfg.Debug = a.v.GetBool("debug")
	cfg.Peephole = a.v.GetBool("peephole")
	cfg.Parallelism = a.v.GetInt("parallelism")
	cfg.Logger = a.logger
	return cfg
}

func (a *app) outputFormat() string {
	return strings.ToLower(a.v.GetString("output"))
}
