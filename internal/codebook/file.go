package codebook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML representation of a codebook.
type File struct {
	FeatureOrder []string `yaml:"featureOrder"`
	Continuous   []struct {
		Name        string   `yaml:"name"`
		Min         float64  `yaml:"min"`
		Max         float64  `yaml:"max"`
		Default     *float64 `yaml:"default"`
		Step        float64  `yaml:"step"`
		Unit        string   `yaml:"unit"`
		Description string   `yaml:"description"`
	} `yaml:"continuous"`
	Categorical []struct {
		Name        string     `yaml:"name"`
		Description string     `yaml:"description"`
		Codes       []Category `yaml:"codes"`
	} `yaml:"categorical"`
}

// LoadFile reads a YAML codebook and validates it like New.
func LoadFile(path string) (*Codebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read codebook %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML codebook document.
func Parse(data []byte) (*Codebook, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse codebook: %w", err)
	}

	continuous := make([]FieldSpec, 0, len(f.Continuous))
	for _, c := range f.Continuous {
		spec := FieldSpec{
			Name:        c.Name,
			Min:         c.Min,
			Max:         c.Max,
			Step:        c.Step,
			Unit:        c.Unit,
			Description: c.Description,
		}
		if c.Default != nil {
			spec.Default = *c.Default
			spec.HasDefault = true
		}
		continuous = append(continuous, spec)
	}

	categorical := make([]FieldSpec, 0, len(f.Categorical))
	for _, c := range f.Categorical {
		categorical = append(categorical, FieldSpec{
			Name:        c.Name,
			Description: c.Description,
			Categories:  c.Codes,
		})
	}

	return New(continuous, categorical, f.FeatureOrder)
}
