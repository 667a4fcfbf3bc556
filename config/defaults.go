package config

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v2"
)

// Defaults is an optional, caller-owned bundle of option defaults loadable
// from a YAML file. The core never reads this implicitly — a caller that
// wants file-based defaults loads it explicitly and passes the resulting
// options into the components itself.
type Defaults struct {
	Fetch     FetchOptions     `yaml:"fetch"`
	Validator ValidatorOptions `yaml:"validator"`
	Cache     CacheOptions     `yaml:"cache"`
	Generate  GenerateOptions  `yaml:"generate"`
}

// LoadDefaults reads and parses a YAML defaults file.
func LoadDefaults(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := d.Fetch.Validate(); err != nil {
		return nil, err
	}
	if err := d.Cache.Validate(); err != nil {
		return nil, err
	}
	if err := d.Generate.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}
