package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/object"
)

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print the module embedded in an object file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().Bool("sections", false, "list the object file sections first")
}

func runDump(cmd *cobra.Command, args []string) error {
	sections, err := cmd.Flags().GetBool("sections")
	if err != nil {
		return err
	}
	f, err := object.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close(context.Background()) }()

	out := cmd.OutOrStdout()
	if sections {
		for _, s := range f.Sections() {
			fmt.Fprintf(out, "; section %s (%d bytes)\n", kindColor.Sprint(s.Name), s.Size)
		}
	}

	c := ir.NewContext()
	defer c.Dispose()
	m, err := f.Load(c)
	if err != nil {
		return err
	}
	fmt.Fprint(out, m.String())
	return nil
}
