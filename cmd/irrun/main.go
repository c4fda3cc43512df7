package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/irkit/engine"
	"github.com/wippyai/irkit/object"
	"github.com/wippyai/irkit/passes"
	"github.com/wippyai/irkit/target"
)

var rootCmd = &cobra.Command{
	Use:               "irrun",
	Short:             "Build, inspect and run irkit object files",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	nameColor  = color.New(color.FgGreen, color.Bold)
	kindColor  = color.New(color.FgCyan)
	undefColor = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
)

func main() {
	target.Initialize()
	defer target.Shutdown()

	rootCmd.AddCommand(demoCmd, symbolsCmd, dumpCmd, runCmd, interactiveCmd)

	rootCmd.PersistentFlags().Bool("verbose", false, "log engine activity to stderr")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	if err := rootCmd.Execute(); err != nil {
		errColor.Fprintf(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil || !verbose {
		return err
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	engine.SetLogger(logger)
	passes.SetLogger(logger)
	object.SetLogger(logger)
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
