package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/irkit/codegen"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/object"
)

var demoCmd = &cobra.Command{
	Use:   "demo -o out.wasm",
	Short: "Write an object file with a few sample functions",
	Args:  cobra.NoArgs,
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().StringP("output", "o", "demo.wasm", "object file to write")
}

func runDemo(cmd *cobra.Command, _ []string) error {
	out, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	c := ir.NewContext()
	defer c.Dispose()

	m, err := buildDemo(c)
	if err != nil {
		return err
	}
	if err := m.Verify(); err != nil {
		return err
	}
	if err := object.WriteFile(m, out, codegen.Options{}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", nameColor.Sprint(out))
	return nil
}

// buildDemo defines add, fib, a counter global with bump, and clamp8.
func buildDemo(c *ir.Context) (*ir.Module, error) {
	m, err := c.CreateModule("demo")
	if err != nil {
		return nil, err
	}
	b := ir.NewBuilder(c)
	i8, i32, i64 := c.Int8Type(), c.Int32Type(), c.Int64Type()

	add, err := m.AddFunction("add", c.FunctionType(i32, i32, i32))
	if err != nil {
		return nil, err
	}
	b.PositionAtEnd(add.Append("entry"))
	b.Ret(b.Add(add.Param(0), add.Param(1)))

	fib, err := m.AddFunction("fib", c.FunctionType(i64, i64))
	if err != nil {
		return nil, err
	}
	n := fib.Param(0)
	entry, base, rec := fib.Append("entry"), fib.Append("base"), fib.Append("rec")
	one, two := ir.Compile(c, uint64(1)), ir.Compile(c, uint64(2))
	b.PositionAtEnd(entry)
	b.CondBr(b.ICmp(ir.UnsignedLessThan, n, two), base, rec)
	b.PositionAtEnd(base)
	b.Ret(n)
	b.PositionAtEnd(rec)
	b.Ret(b.Add(b.Call(fib, b.Sub(n, one)), b.Call(fib, b.Sub(n, two))))

	counter, err := m.AddGlobal(i64, "counter")
	if err != nil {
		return nil, err
	}
	counter.SetInitializer(c.ConstInt(i64, 0))
	bump, err := m.AddFunction("bump", c.FunctionType(i64))
	if err != nil {
		return nil, err
	}
	b.PositionAtEnd(bump.Append("entry"))
	next := b.Add(b.Load(counter), one)
	b.Store(next, counter)
	b.Ret(next)

	clamp, err := m.AddFunction("clamp8", c.FunctionType(i8, i32))
	if err != nil {
		return nil, err
	}
	x := clamp.Param(0)
	lo, hi := c.ConstSInt(i32, -128), c.ConstSInt(i32, 127)
	b.PositionAtEnd(clamp.Append("entry"))
	low := b.Select(b.ICmp(ir.LessThan, x, lo), lo, x)
	high := b.Select(b.ICmp(ir.GreaterThan, low, hi), hi, low)
	b.Ret(b.Trunc(high, i8))
	return m, nil
}
