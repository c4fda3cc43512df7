package engine

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/passes"
)

// Kind selects an execution backend.
type Kind string

const (
	KindInterpreter Kind = "interpreter"
	KindJIT         Kind = "jit"
)

// JitOptions tune the JIT backend. The interpreter ignores them.
type JitOptions struct {
	OptLevel passes.OptLevel `toml:"optimization_level"`
	// TargetTriple overrides the host triple. The target must be able to run
	// code in this process.
	TargetTriple string `toml:"target_triple"`
	// LazySymbolResolution defers unresolved function declarations to call
	// time: calling one fails with ErrUnresolvedSymbol instead of failing the
	// construction or AddModule that introduced it.
	LazySymbolResolution bool `toml:"lazy_symbol_resolution"`
}

// Config selects and configures a backend.
type Config struct {
	Kind Kind `toml:"kind"`
	JitOptions
	// MemoryLimitPages caps the linear memory of each module in 64KiB pages.
	// 0 means no cap beyond the WebAssembly limit.
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	// CacheDir persists compiled code between processes. Empty keeps the
	// cache in memory.
	CacheDir string `toml:"cache_dir"`
}

// DefaultConfig is the interpreter with default JIT options.
func DefaultConfig() Config {
	return Config{
		Kind:       KindInterpreter,
		JitOptions: JitOptions{OptLevel: passes.OptDefault},
	}
}

type configFile struct {
	Engine Config `toml:"engine"`
}

// LoadConfig reads the [engine] table of a TOML file. Missing keys keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, irerrors.Wrap(irerrors.PhaseConfig, irerrors.KindNotFound, err, "read config "+path)
	}
	return ParseConfig(string(data))
}

// ParseConfig is LoadConfig for TOML text.
func ParseConfig(text string) (Config, error) {
	file := configFile{Engine: DefaultConfig()}
	md, err := toml.Decode(text, &file)
	if err != nil {
		return Config{}, irerrors.Wrap(irerrors.PhaseConfig, irerrors.KindInvalidData, err, "decode config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		err := irerrors.InvalidInput(irerrors.PhaseConfig, "unknown config key "+undecoded[0].String())
		err.Value = undecoded[0].String()
		return Config{}, err
	}
	if err := file.Engine.Validate(); err != nil {
		return Config{}, err
	}
	return file.Engine, nil
}

// Validate checks the backend kind.
func (c Config) Validate() error {
	switch c.Kind {
	case KindInterpreter, KindJIT:
		return nil
	}
	err := irerrors.InvalidInput(irerrors.PhaseConfig, fmt.Sprintf("unknown engine kind %q (want interpreter or jit)", c.Kind))
	err.Value = string(c.Kind)
	return err
}
