package feature

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk feature declaration file. It lets an operator
// add descriptors (display names, env vars, dependency edges) without a
// rebuild; providers still come from the builders registered in code.
type Manifest struct {
	Features []Descriptor `yaml:"features"`
}

// LoadManifest reads and validates a features.yaml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feature manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest YAML and rejects empty or duplicate IDs.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing feature manifest: %w", err)
	}

	seen := map[string]bool{}
	for _, d := range m.Features {
		if d.ID == "" {
			return nil, fmt.Errorf("feature manifest contains a feature without an ID")
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("feature manifest declares %q twice", d.ID)
		}
		seen[d.ID] = true
	}
	return &m, nil
}

// Apply registers every manifest feature whose ID has a builder. Manifest
// entries without a builder are registered as descriptor-only features so
// dependency edges through them still resolve.
func (m *Manifest) Apply(r *Registry, builders map[string]BuildFunc) error {
	for _, d := range m.Features {
		if err := r.Register(d, builders[d.ID]); err != nil {
			return err
		}
	}
	return nil
}
