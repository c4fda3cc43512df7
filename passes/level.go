package passes

import (
	"strconv"
	"strings"

	irerrors "github.com/wippyai/irkit/errors"
)

// OptLevel selects how much optimization a pipeline performs.
type OptLevel uint8

const (
	OptNone OptLevel = iota
	OptLess
	OptDefault
	OptAggressive
)

var optLevelNames = [...]string{
	OptNone:       "none",
	OptLess:       "less",
	OptDefault:    "default",
	OptAggressive: "aggressive",
}

func (l OptLevel) String() string {
	if int(l) < len(optLevelNames) {
		return optLevelNames[l]
	}
	return "OptLevel(" + strconv.Itoa(int(l)) + ")"
}

// ParseOptLevel accepts a level name or its number 0-3.
func ParseOptLevel(s string) (OptLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range optLevelNames {
		if s == n || s == strconv.Itoa(i) {
			return OptLevel(i), nil
		}
	}
	if s == "" {
		return OptDefault, nil
	}
	return OptNone, irerrors.New(irerrors.PhaseConfig, irerrors.KindInvalidInput).
		Value(s).
		Detail("unknown optimization level %q (want none, less, default or aggressive)", s).
		Build()
}

// MarshalText implements encoding.TextMarshaler.
func (l OptLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by TOML configs.
func (l *OptLevel) UnmarshalText(text []byte) error {
	v, err := ParseOptLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// PassManagerBuilder fills a PassManager with the standard pipeline for a level.
type PassManagerBuilder struct {
	OptLevel OptLevel
	// Verify appends a verifier after the optimizations.
	Verify bool
}

// Populate adds the pipeline to pm.
func (b PassManagerBuilder) Populate(pm *PassManager) {
	switch b.OptLevel {
	case OptNone:
	case OptLess:
		pm.Add(ConstantFold{}, DeadCodeElim{})
	case OptDefault:
		pm.Add(ConstantFold{}, SimplifyCFG{}, DeadCodeElim{})
	default:
		pm.Add(ConstantFold{}, SimplifyCFG{}, DeadCodeElim{})
		pm.SetMaxIterations(8)
	}
	if b.Verify {
		pm.Add(Verifier{})
	}
}
