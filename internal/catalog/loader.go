package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Metrics    []Metric    `yaml:"metrics"`
	Dimensions []Dimension `yaml:"dimensions"`
}

// Load reads a metric catalog from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Metrics) == 0 {
		return nil, fmt.Errorf("catalog defines no metrics")
	}
	return NewRegistry(file.Metrics, file.Dimensions)
}
