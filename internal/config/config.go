// Package config loads expander settings from a YAML document.
package config

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"go.yaml.in/yaml/v3"
)

// Config is the on-disk settings document for the expander CLI.
type Config struct {
	// Vars seeds the variable snapshot. A scalar value is accepted
	// and normalized to a single-element list.
	Vars map[string][]string `yaml:"vars"`

	// IFS overrides the field separator set; empty keeps the default.
	IFS string `yaml:"ifs"`

	// NounsetError makes referencing an unset variable a hard error.
	NounsetError bool `yaml:"nounset_error"`

	// TriggerChars overrides the delegation pre-check character set.
	TriggerChars string `yaml:"trigger_chars"`
}

// Load reads and decodes the document at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(content)
}

// Parse decodes a YAML settings document. Decoding goes through a
// generic map so scalar var values can be lifted into lists before the
// typed decode.
func Parse(content []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	normalizeVars(raw)

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// normalizeVars lifts scalar var values into single-element lists so
// both `x: a` and `x: [a, b]` are accepted.
func normalizeVars(raw map[string]any) {
	vars, ok := raw["vars"].(map[string]any)
	if !ok {
		return
	}
	for k, v := range vars {
		if _, isList := v.([]any); !isList {
			vars[k] = []any{v}
		}
	}
}
