package relation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML document describing entity types and relation plugins
type Manifest struct {
	EntityTypes []EntityType `yaml:"entity_types"`
	Plugins     []Definition `yaml:"plugins"`
}

// ParseManifest decodes a YAML manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse relation manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads and decodes a YAML manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relation manifest: %w", err)
	}
	return ParseManifest(data)
}

// Apply registers the manifest's entity types, then its plugins
func (r *Registry) Apply(m *Manifest) error {
	for _, et := range m.EntityTypes {
		if err := r.RegisterEntityType(et); err != nil {
			return err
		}
	}
	for _, def := range m.Plugins {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// LoadDir applies every *.yaml and *.yml manifest in dir in name order.
// Manifests that fail to load are logged and skipped.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Debugf("Relation manifest directory does not exist: %s", dir)
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read relation manifest directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !isManifest(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		m, err := LoadManifest(path)
		if err != nil {
			r.log.Warnf("Failed to load relation manifest %s: %v", path, err)
			continue
		}
		if err := r.Apply(m); err != nil {
			r.log.Warnf("Failed to apply relation manifest %s: %v", path, err)
			continue
		}
		loaded++
	}
	r.log.Infof("Loaded %d relation manifests from %s", loaded, dir)
	return loaded, nil
}

func isManifest(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
