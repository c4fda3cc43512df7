package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	irerrors "github.com/wippyai/irkit/errors"
	"github.com/wippyai/irkit/passes"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Config
	}{
		{
			name: "empty keeps defaults",
			text: "",
			want: DefaultConfig(),
		},
		{
			name: "jit",
			text: `
[engine]
kind = "jit"
optimization_level = "aggressive"
lazy_symbol_resolution = true
memory_limit_pages = 16
`,
			want: Config{
				Kind: KindJIT,
				JitOptions: JitOptions{
					OptLevel:             passes.OptAggressive,
					LazySymbolResolution: true,
				},
				MemoryLimitPages: 16,
			},
		},
		{
			name: "interpreter with cache",
			text: `
[engine]
kind = "interpreter"
cache_dir = "/tmp/irkit-cache"
`,
			want: Config{
				Kind:       KindInterpreter,
				JitOptions: JitOptions{OptLevel: passes.OptDefault},
				CacheDir:   "/tmp/irkit-cache",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.text)
			if err != nil {
				t.Fatalf("ParseConfig: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseConfig = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"unknown key", "[engine]\nspeed = 11\n", irerrors.ErrInvalidInput},
		{"unknown kind", "[engine]\nkind = \"vm\"\n", irerrors.ErrInvalidInput},
		{"bad level", "[engine]\noptimization_level = \"max\"\n", irerrors.ErrInvalidData},
		{"syntax", "[engine\n", irerrors.ErrInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.text)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParseConfig error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	if err := os.WriteFile(path, []byte("[engine]\nkind = \"jit\"\noptimization_level = \"none\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Kind != KindJIT || cfg.OptLevel != passes.OptNone {
		t.Errorf("LoadConfig = %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, irerrors.ErrNotFound) {
		t.Errorf("missing file error = %v, want not found", err)
	}
}

func TestConfigErrorValue(t *testing.T) {
	_, err := ParseConfig("[engine]\nkind = \"vm\"\n")
	var ie *irerrors.Error
	if !errors.As(err, &ie) {
		t.Fatalf("ParseConfig error = %T, want *errors.Error", err)
	}
	if ie.Phase != irerrors.PhaseConfig || ie.Value != "vm" {
		t.Errorf("config error = %+v", ie)
	}
}
