// Package section describes the facility checkpoints that operators scan at.
package section

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed sections.yaml
var sectionsYAML []byte

// ErrUnknownSection is returned when a section id is not in the catalog.
var ErrUnknownSection = errors.New("unknown section")

// allowedAttributes are the subject columns a section may surface.
// Attribute names are interpolated into SQL, so only these are accepted.
var allowedAttributes = []string{"hostelite", "gym_active", "indoor_sports_active"}

// Section is an operational checkpoint (dining hall, gym, ...).
// All sections share one subject pool and differ in which boolean
// attribute of the subject they surface.
type Section struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Attribute      string `yaml:"attribute" json:"attribute"`
	AttributeLabel string `yaml:"attribute_label" json:"attribute_label"`
	PositiveLabel  string `yaml:"positive_label" json:"positive_label"`
	NegativeLabel  string `yaml:"negative_label" json:"negative_label"`
}

// CategoryLabel returns the display label for an attribute value.
func (s Section) CategoryLabel(value bool) string {
	if value {
		return s.PositiveLabel
	}
	return s.NegativeLabel
}

// Catalog is the set of configured sections.
type Catalog struct {
	sections []Section
}

type catalogFile struct {
	Sections []Section `yaml:"sections"`
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(sectionsYAML)
	if err != nil {
		// Embedded file, only broken by a bad edit.
		panic("failed to parse embedded sections.yaml: " + err.Error())
	}
	return c
}

// Load reads a catalog from path, or returns the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided config path
	if err != nil {
		return nil, fmt.Errorf("read sections file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML section catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	if len(f.Sections) == 0 {
		return nil, errors.New("no sections defined")
	}

	seen := make(map[string]bool, len(f.Sections))
	for _, s := range f.Sections {
		if s.ID == "" {
			return nil, errors.New("section without id")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate section %q", s.ID)
		}
		seen[s.ID] = true
		if !slices.Contains(allowedAttributes, s.Attribute) {
			return nil, fmt.Errorf("section %q: unsupported attribute %q", s.ID, s.Attribute)
		}
	}
	return &Catalog{sections: f.Sections}, nil
}

// Lookup returns the section with the given id.
func (c *Catalog) Lookup(id string) (Section, error) {
	for _, s := range c.sections {
		if s.ID == id {
			return s, nil
		}
	}
	return Section{}, fmt.Errorf("%w: %q", ErrUnknownSection, id)
}

// All returns every configured section in catalog order.
func (c *Catalog) All() []Section {
	return slices.Clone(c.sections)
}

// IsAllowedAttribute reports whether name is a known subject attribute column.
func IsAllowedAttribute(name string) bool {
	return slices.Contains(allowedAttributes, name)
}
