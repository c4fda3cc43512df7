package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/irkit/engine"
	"github.com/wippyai/irkit/ir"
	"github.com/wippyai/irkit/object"
	"github.com/wippyai/irkit/passes"
)

var runCmd = &cobra.Command{
	Use:   "run FILE --func NAME [--args a,b,...]",
	Short: "Run a function of an object file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	addEngineFlags(runCmd)
	runCmd.Flags().String("func", "", "function to call")
	runCmd.Flags().String("args", "", "comma-separated arguments")
	_ = runCmd.MarkFlagRequired("func")
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "TOML file with an [engine] table")
	cmd.Flags().String("backend", "", "interpreter or jit (overrides the config)")
	cmd.Flags().String("opt", "", "JIT optimization level: none, less, default or aggressive")
	cmd.Flags().Bool("lazy", false, "resolve JIT symbols at call time")
}

// engineConfig merges the config file with command-line overrides.
func engineConfig(cmd *cobra.Command) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if cfg, err = engine.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Kind = engine.Kind(backend)
	}
	if level, _ := cmd.Flags().GetString("opt"); level != "" {
		if cfg.OptLevel, err = passes.ParseOptLevel(level); err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("lazy") {
		cfg.LazySymbolResolution, _ = cmd.Flags().GetBool("lazy")
	}
	return cfg, cfg.Validate()
}

// session is an engine running the module of one object file.
type session struct {
	ctx *ir.Context
	ee  engine.ExecutionEngine
}

func openSession(ctx context.Context, path string, cfg engine.Config) (*session, error) {
	f, err := object.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close(ctx) }()

	c := ir.NewContext()
	m, err := f.Load(c)
	if err != nil {
		c.Dispose()
		return nil, err
	}
	ee, err := engine.New(ctx, cfg, m)
	if err != nil {
		c.Dispose()
		return nil, err
	}
	return &session{ctx: c, ee: ee}, nil
}

func (s *session) close(ctx context.Context) error {
	err := s.ee.Close(ctx)
	s.ctx.Dispose()
	return err
}

// functions lists the defined functions the engine can run.
func (s *session) functions() []*ir.Function {
	var out []*ir.Function
	for _, m := range s.ctx.Modules() {
		for _, fn := range m.Functions() {
			if fn.IsDeclaration() || fn.Linkage().IsLocal() {
				continue
			}
			out = append(out, fn)
		}
	}
	return out
}

func (s *session) call(ctx context.Context, name string, args []string) (engine.GenericValue, error) {
	fn, ok := s.ee.FindFunction(name)
	if !ok {
		return engine.Void(), fmt.Errorf("no function %q", name)
	}
	params := fn.Signature().Params()
	if len(args) != len(params) {
		return engine.Void(), fmt.Errorf("%s takes %d arguments, got %d", name, len(params), len(args))
	}
	values := make([]engine.GenericValue, len(args))
	for i, a := range args {
		v, err := engine.ParseGeneric(strings.TrimSpace(a), params[i])
		if err != nil {
			return engine.Void(), fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}
	return s.ee.RunFunction(ctx, fn, values...)
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := engineConfig(cmd)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("func")
	argList, _ := cmd.Flags().GetString("args")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, args[0], cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.close(ctx) }()

	res, err := s.call(ctx, name, splitArgs(argList))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", nameColor.Sprint(name), res)
	return nil
}
