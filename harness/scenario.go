package harness

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Precision is the numeric dtype handed to the example via --dtype.
type Precision string

const (
	// PrecisionFloat32 compares losses at 3 decimal digits.
	PrecisionFloat32 Precision = "float32"
	// PrecisionFloat16 compares losses at 1 decimal digit, and only a prefix of them.
	PrecisionFloat16 Precision = "float16"
)

// Variant selects which example script is launched.
type Variant string

const (
	VariantHelloworld Variant = "helloworld"
	VariantMegatron   Variant = "helloworld_megatron"
)

// Valid value registries.
var (
	validPrecisions = map[Precision]bool{
		PrecisionFloat32: true,
		PrecisionFloat16: true,
	}
	validVariants = map[Variant]bool{
		VariantHelloworld: true,
		VariantMegatron:   true,
	}
)

// IsValidPrecision returns true if p names a recognized dtype.
func IsValidPrecision(p string) bool {
	return validPrecisions[Precision(p)]
}

// IsValidVariant returns true if v names a known example script.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// Digits returns the number of decimal digits losses are rounded to.
func (p Precision) Digits() int {
	if p == PrecisionFloat16 {
		return 1
	}
	return 3
}

// Reduced reports whether only a prefix of the loss sequence is stable
// enough to compare.
func (p Precision) Reduced() bool {
	return p == PrecisionFloat16
}

// Scenario is one configured run of a helloworld example.
// Experts is passed through verbatim: a negative count asks the example to
// shard each expert across |Experts| ranks instead of hosting several locally.
type Scenario struct {
	Procs      int       `yaml:"procs,omitempty" toml:"procs" json:"procs"`
	Variant    Variant   `yaml:"variant,omitempty" toml:"variant" json:"variant"`
	Top        int       `yaml:"top,omitempty" toml:"top" json:"top,omitempty"`
	Precision  Precision `yaml:"dtype,omitempty" toml:"dtype" json:"dtype"`
	Experts    int       `yaml:"num_local_experts,omitempty" toml:"num_local_experts" json:"num_local_experts"`
	HiddenSize int       `yaml:"hidden_size,omitempty" toml:"hidden_size" json:"hidden_size"`
}

// DefaultScenario mirrors the example's own defaults.
func DefaultScenario() Scenario {
	return Scenario{
		Procs:      1,
		Variant:    VariantHelloworld,
		Top:        2,
		Precision:  PrecisionFloat32,
		Experts:    2,
		HiddenSize: 2048,
	}
}

// WithDefaults returns a copy of s with every zero field taken from DefaultScenario.
func (s Scenario) WithDefaults() Scenario {
	d := DefaultScenario()
	if s.Procs == 0 {
		s.Procs = d.Procs
	}
	if s.Variant == "" {
		s.Variant = d.Variant
	}
	if s.Top == 0 {
		s.Top = d.Top
	}
	if s.Precision == "" {
		s.Precision = d.Precision
	}
	if s.Experts == 0 {
		s.Experts = d.Experts
	}
	if s.HiddenSize == 0 {
		s.HiddenSize = d.HiddenSize
	}
	return s
}

// Validate checks that all fields hold values the example accepts.
func (s Scenario) Validate() error {
	if !validPrecisions[s.Precision] {
		return fmt.Errorf("unknown dtype %q; valid: float32, float16", s.Precision)
	}
	if !validVariants[s.Variant] {
		return fmt.Errorf("unknown variant %q; valid: helloworld, helloworld_megatron", s.Variant)
	}
	if s.Procs < 1 {
		return fmt.Errorf("procs must be >= 1, got %d", s.Procs)
	}
	if s.Variant == VariantHelloworld && s.Top < 1 {
		return fmt.Errorf("top must be >= 1, got %d", s.Top)
	}
	if s.Experts == 0 {
		return fmt.Errorf("num_local_experts must be non-zero")
	}
	if s.HiddenSize < 1 {
		return fmt.Errorf("hidden_size must be >= 1, got %d", s.HiddenSize)
	}
	return nil
}

// Key returns the baseline lookup key for s.
func (s Scenario) Key() BaselineKey {
	return BaselineKey{Precision: s.Precision, Top: s.Top, Experts: s.Experts}
}

func (s Scenario) String() string {
	if s.Variant == VariantMegatron {
		return fmt.Sprintf("%s/np%d/%s/e%d/h%d", s.Variant, s.Procs, s.Precision, s.Experts, s.HiddenSize)
	}
	return fmt.Sprintf("%s/np%d/top%d/%s/e%d/h%d", s.Variant, s.Procs, s.Top, s.Precision, s.Experts, s.HiddenSize)
}

// Launcher describes how example scripts are started.
type Launcher struct {
	Python       string `yaml:"python"`        // interpreter binary
	LaunchModule string `yaml:"launch_module"` // distributed launcher run with -m
	ExamplesDir  string `yaml:"examples_dir"`  // directory holding <variant>.py
	WorkDir      string `yaml:"work_dir"`      // child working directory ("" = inherit)
}

// DefaultLauncher returns the launcher used when defaults.yaml leaves fields empty.
func DefaultLauncher() Launcher {
	return Launcher{
		Python:       "python3",
		LaunchModule: "torch.distributed.launch",
		ExamplesDir:  "tutel/examples",
	}
}

// Command is a fully resolved child process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the parent environment
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}

// Command synthesizes the distributed launch invocation for s.
// The megatron variant has no gate flag.
func (l Launcher) Command(s Scenario) (Command, error) {
	if err := s.Validate(); err != nil {
		return Command{}, fmt.Errorf("scenario %s: %w", s, err)
	}
	d := DefaultLauncher()
	if l.Python == "" {
		l.Python = d.Python
	}
	if l.LaunchModule == "" {
		l.LaunchModule = d.LaunchModule
	}
	if l.ExamplesDir == "" {
		l.ExamplesDir = d.ExamplesDir
	}

	args := []string{
		"-m", l.LaunchModule,
		"--nproc_per_node=" + strconv.Itoa(s.Procs),
		filepath.Join(l.ExamplesDir, string(s.Variant)+".py"),
	}
	if s.Variant == VariantHelloworld {
		args = append(args, "--top", strconv.Itoa(s.Top))
	}
	args = append(args,
		"--dtype", string(s.Precision),
		"--num_local_experts", strconv.Itoa(s.Experts),
		"--hidden_size", strconv.Itoa(s.HiddenSize),
	)
	return Command{Name: l.Python, Args: args, Dir: l.WorkDir}, nil
}
