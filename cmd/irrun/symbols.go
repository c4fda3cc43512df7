package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/wippyai/irkit/object"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols FILE",
	Short: "List the symbols of an object file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSymbols,
}

var symbolCell = lipgloss.NewStyle().PaddingRight(2)

func runSymbols(cmd *cobra.Command, args []string) error {
	f, err := object.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close(context.Background()) }()

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		StyleFunc(func(_, _ int) lipgloss.Style { return symbolCell }).
		Headers("NAME", "KIND", "STATE", "SIZE")
	for _, s := range f.Symbols() {
		state := "defined"
		if !s.Defined {
			state = undefColor.Sprint("undefined")
		}
		t.Row(nameColor.Sprint(s.Name), kindColor.Sprint(s.Kind), state, strconv.FormatUint(s.Size, 10))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	if !f.HasBitcode() {
		fmt.Fprintln(cmd.OutOrStdout(), undefColor.Sprint("no embedded module"))
	}
	return nil
}
