package policy

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fleetops/herald/internal/model"
)

//go:embed presets/standard.yaml
var standardYAML []byte

//go:embed presets/strict.yaml
var strictYAML []byte

//go:embed presets/relaxed.yaml
var relaxedYAML []byte

// DefaultPreset is the preset recommended to new operators.
const DefaultPreset = "standard"

// Preset is a named, built-in bundle of integrity thresholds.
type Preset struct {
	Name        string                `yaml:"name" json:"name"`
	Label       string                `yaml:"label" json:"label"`
	Description string                `yaml:"description" json:"description"`
	Recommended bool                  `yaml:"recommended" json:"recommended"`
	Integrity   model.IntegrityPolicy `yaml:"integrity" json:"integrity"`
}

// presetOrder fixes the catalog order returned by Presets.
var presetOrder = []string{"standard", "strict", "relaxed"}

var builtinPresets = map[string]Preset{
	"standard": mustParsePreset(standardYAML),
	"strict":   mustParsePreset(strictYAML),
	"relaxed":  mustParsePreset(relaxedYAML),
}

func mustParsePreset(data []byte) Preset {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		panic(fmt.Sprintf("policy: bad embedded preset: %v", err))
	}
	if p.Integrity.ExpectedProviders == nil {
		p.Integrity.ExpectedProviders = []string{}
	}
	if p.Integrity.ExpectedModels == nil {
		p.Integrity.ExpectedModels = []string{}
	}
	if p.Integrity.ExpectedRegions == nil {
		p.Integrity.ExpectedRegions = []string{}
	}
	return p
}

// Presets returns the built-in catalog in fixed order. The catalog has no
// persistence and is identical on every call.
func Presets() []Preset {
	out := make([]Preset, 0, len(presetOrder))
	for _, name := range presetOrder {
		out = append(out, builtinPresets[name])
	}
	return out
}

// FindPreset looks up a preset by name, case-insensitively.
func FindPreset(name string) (Preset, bool) {
	p, ok := builtinPresets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}
