package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Case is one check in a suite: either a baseline comparison of Scenario or
// a cross-variant comparison of the two scenarios in Cross.
type Case struct {
	Name     string     `yaml:"name" toml:"name"`
	Scenario *Scenario  `yaml:"scenario,omitempty" toml:"scenario,omitempty"`
	Prefix   int        `yaml:"prefix,omitempty" toml:"prefix,omitempty"` // losses compared; 0 = precision default
	Cross    []Scenario `yaml:"cross,omitempty" toml:"cross,omitempty"`
}

// IsCross reports whether c compares two scenarios against each other.
func (c *Case) IsCross() bool {
	return len(c.Cross) > 0
}

// Suite is an ordered list of cases.
// Loaded from YAML or TOML via LoadSuite(path).
type Suite struct {
	Version string `yaml:"version" toml:"version"`
	Cases   []Case `yaml:"cases" toml:"cases"`
}

func baselineCase(name string, top int, p Precision, experts int) Case {
	s := Scenario{Procs: 1, Variant: VariantHelloworld, Top: top, Precision: p, Experts: experts}.WithDefaults()
	return Case{Name: name, Scenario: &s}
}

// DefaultSuite returns the eight baseline cases and the megatron cross-check.
func DefaultSuite() *Suite {
	return &Suite{
		Version: "1",
		Cases: []Case{
			baselineCase("top1_fp32_1_expert", 1, PrecisionFloat32, 1),
			baselineCase("top1_fp32_2_experts", 1, PrecisionFloat32, 2),
			baselineCase("top1_fp16_1_expert", 1, PrecisionFloat16, 1),
			baselineCase("top1_fp16_2_experts", 1, PrecisionFloat16, 2),
			baselineCase("top2_fp32_1_expert", 2, PrecisionFloat32, 1),
			baselineCase("top2_fp32_2_experts", 2, PrecisionFloat32, 2),
			baselineCase("top2_fp16_1_expert", 2, PrecisionFloat16, 1),
			baselineCase("top2_fp16_2_experts", 2, PrecisionFloat16, 2),
			{
				Name: "compare_megatron_with_tutel",
				Cross: []Scenario{
					{Procs: 2, Variant: VariantHelloworld, Top: 2, Precision: PrecisionFloat32, Experts: -2, HiddenSize: 2048},
					{Procs: 2, Variant: VariantMegatron, Top: 2, Precision: PrecisionFloat32, Experts: 1, HiddenSize: 1024},
				},
			},
		},
	}
}

// LoadSuite reads a suite from a .yaml/.yml or .toml file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite: %w", err)
	}
	var suite Suite
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&suite); err != nil {
			return nil, fmt.Errorf("parsing suite: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &suite)
		if err != nil {
			return nil, fmt.Errorf("parsing suite: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parsing suite: unknown keys %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("suite %q: unsupported extension; use .yaml, .yml or .toml", path)
	}
	suite.applyDefaults()
	if err := suite.Validate(); err != nil {
		return nil, fmt.Errorf("suite %q: %w", path, err)
	}
	return &suite, nil
}

func (s *Suite) applyDefaults() {
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.Scenario != nil {
			d := c.Scenario.WithDefaults()
			c.Scenario = &d
		}
		for j := range c.Cross {
			c.Cross[j] = c.Cross[j].WithDefaults()
		}
	}
}

// Validate checks case names and scenarios.
func (s *Suite) Validate() error {
	if len(s.Cases) == 0 {
		return fmt.Errorf("at least one case required")
	}
	seen := make(map[string]bool, len(s.Cases))
	for i := range s.Cases {
		if err := validateCase(&s.Cases[i], i); err != nil {
			return err
		}
		name := s.Cases[i].Name
		if seen[name] {
			return fmt.Errorf("case[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
	}
	return nil
}

func validateCase(c *Case, idx int) error {
	prefix := fmt.Sprintf("case[%d]", idx)
	if c.Name == "" {
		return fmt.Errorf("%s: name required", prefix)
	}
	prefix = fmt.Sprintf("%s %q", prefix, c.Name)
	switch {
	case c.Scenario != nil && c.IsCross():
		return fmt.Errorf("%s: set either scenario or cross, not both", prefix)
	case c.Scenario == nil && !c.IsCross():
		return fmt.Errorf("%s: one of scenario or cross required", prefix)
	case c.IsCross() && len(c.Cross) != 2:
		return fmt.Errorf("%s: cross needs exactly 2 scenarios, got %d", prefix, len(c.Cross))
	case c.Prefix < 0:
		return fmt.Errorf("%s: prefix must be >= 0, got %d", prefix, c.Prefix)
	}
	if c.Scenario != nil {
		if err := c.Scenario.Validate(); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	for j, sc := range c.Cross {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("%s: cross[%d]: %w", prefix, j, err)
		}
	}
	return nil
}

// Filter returns the cases whose name contains substr. An empty substr keeps all.
func (s *Suite) Filter(substr string) *Suite {
	if substr == "" {
		return s
	}
	out := &Suite{Version: s.Version}
	for _, c := range s.Cases {
		if strings.Contains(c.Name, substr) {
			out.Cases = append(out.Cases, c)
		}
	}
	return out
}
