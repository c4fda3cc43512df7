package passes

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/ir"
)

// Pass transforms one function at a time.
type Pass interface {
	Name() string
	// RunOnFunction reports whether the function was modified.
	RunOnFunction(fn *ir.Function) (bool, error)
}

// PassManager runs an ordered list of passes over functions.
type PassManager struct {
	passes        []Pass
	maxIterations int
}

// NewPassManager returns an empty manager that runs its pipeline once.
func NewPassManager() *PassManager {
	return &PassManager{maxIterations: 1}
}

// Add appends passes to the pipeline.
func (pm *PassManager) Add(p ...Pass) {
	pm.passes = append(pm.passes, p...)
}

// Passes returns the pipeline as pass names.
func (pm *PassManager) Passes() []string {
	names := make([]string, len(pm.passes))
	for i, p := range pm.passes {
		names[i] = p.Name()
	}
	return names
}

// SetMaxIterations makes Run repeat the pipeline up to n times per function,
// stopping early once a full round changes nothing.
func (pm *PassManager) SetMaxIterations(n int) {
	if n < 1 {
		n = 1
	}
	pm.maxIterations = n
}

// RunOnFunction runs the pipeline on fn. Declarations are skipped.
func (pm *PassManager) RunOnFunction(fn *ir.Function) (bool, error) {
	if fn.IsDeclaration() || len(pm.passes) == 0 {
		return false, nil
	}
	changed := false
	for round := 0; round < pm.maxIterations; round++ {
		roundChanged := false
		for _, p := range pm.passes {
			c, err := p.RunOnFunction(fn)
			if err != nil {
				Logger().Debug("pass failed",
					zap.String("pass", p.Name()),
					zap.String("function", fn.Name()),
					zap.Error(err))
				return changed, irerrors.New(irerrors.PhaseOptimize, irerrors.KindInvalidInput).
					Path(fn.Parent().Name(), fn.Name()).
					Detail("pass %s failed", p.Name()).
					Cause(err).
					Build()
			}
			if c {
				Logger().Debug("pass changed function",
					zap.String("pass", p.Name()),
					zap.String("function", fn.Name()),
					zap.Int("round", round))
			}
			roundChanged = roundChanged || c
		}
		if !roundChanged {
			break
		}
		changed = true
	}
	return changed, nil
}

// Run runs the pipeline on every defined function of m.
func (pm *PassManager) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, fn := range m.Functions() {
		c, err := pm.RunOnFunction(fn)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	Logger().Debug("pass pipeline finished",
		zap.String("module", m.Name()),
		zap.Strings("passes", pm.Passes()),
		zap.Bool("changed", changed))
	return changed, nil
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Pass{}
)

// Register makes a pass constructor available to Lookup.
func Register(name string, ctor func() Pass) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// Lookup returns a new instance of the pass registered under name.
func Lookup(name string) (Pass, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, irerrors.NotFound(irerrors.PhaseOptimize, "pass", name)
	}
	return ctor(), nil
}

// Names lists registered passes in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("constfold", func() Pass { return ConstantFold{} })
	Register("dce", func() Pass { return DeadCodeElim{} })
	Register("simplifycfg", func() Pass { return SimplifyCFG{} })
	Register("verify", func() Pass { return Verifier{} })
}

// Verifier fails the pipeline when the function is malformed.
type Verifier struct{}

func (Verifier) Name() string { return "verify" }

func (Verifier) RunOnFunction(fn *ir.Function) (bool, error) {
	return false, fn.Verify()
}
