package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Sample is one entry of the sample-question selector.
type Sample struct {
	Label    string `yaml:"label"`
	Question string `yaml:"question"`
}

// Catalog holds the sample questions offered on the home page and the
// example questions listed on the about page.
type Catalog struct {
	DefaultLabel  string   `yaml:"default_label"`
	Samples       []Sample `yaml:"samples"`
	AboutExamples []string `yaml:"about_examples"`
}

// DefaultSampleLabel is the selector entry that carries no question.
const DefaultSampleLabel = "Select a query"

// LoadCatalog parses the embedded catalog. The default label is prepended to
// Samples with an empty question.
func LoadCatalog() (Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses a catalog document.
func ParseCatalog(data []byte) (Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse sample catalog: %w", err)
	}
	if strings.TrimSpace(cat.DefaultLabel) == "" {
		return Catalog{}, fmt.Errorf("sample catalog: default_label is required")
	}
	seen := map[string]bool{cat.DefaultLabel: true}
	for _, s := range cat.Samples {
		if strings.TrimSpace(s.Label) == "" {
			return Catalog{}, fmt.Errorf("sample catalog: empty label")
		}
		if seen[s.Label] {
			return Catalog{}, fmt.Errorf("sample catalog: duplicate label %q", s.Label)
		}
		seen[s.Label] = true
	}
	cat.Samples = append([]Sample{{Label: cat.DefaultLabel}}, cat.Samples...)
	return cat, nil
}

// Question returns the question for a sample label.
func (c Catalog) Question(label string) (string, bool) {
	for _, s := range c.Samples {
		if s.Label == label {
			return s.Question, true
		}
	}
	return "", false
}
