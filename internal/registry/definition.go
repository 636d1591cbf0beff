package registry

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDefinition []byte

// Definition is the human-editable registry source: canonical families with
// their aliases, suffix alias tokens, exclusion patterns and hint terms.
type Definition struct {
	Suffixes   map[string][]string `yaml:"suffixes"`
	Families   []FamilyDefinition  `yaml:"families"`
	Exclusions []ExclusionPattern  `yaml:"exclusions"`
	Hints      []string            `yaml:"hints,omitempty"`
}

// FamilyDefinition declares one canonical storage family.
type FamilyDefinition struct {
	Name       string              `yaml:"name"`
	Aliases    []string            `yaml:"aliases"`
	Components map[string][]string `yaml:"components,omitempty"` // suffix -> full-name aliases
}

// ExclusionPattern is a glob over normalized technology names that marks a
// record as not-storage.
type ExclusionPattern struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
}

// ParseDefinition decodes a YAML registry definition. Unknown keys are
// rejected so typos surface as configuration errors.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, &ConfigError{Problems: []string{"malformed definition: " + err.Error()}}
	}
	return &def, nil
}

// DefaultDefinition returns the built-in registry definition.
func DefaultDefinition() *Definition {
	def, err := ParseDefinition(defaultDefinition)
	if err != nil {
		panic("registry: embedded default.yaml is invalid: " + err.Error())
	}
	return def
}

// Default builds the registry from the built-in definition.
func Default() (*Registry, error) {
	return New(DefaultDefinition())
}

// LoadFile reads a YAML definition from path and builds a validated registry.
// An empty path selects the built-in definition.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read definition %s", path)
	}

	def, err := ParseDefinition(data)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: parse definition %s", path)
	}
	return New(def)
}
