package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warren/pkg/types"
)

// LoadManifests reads every *.yaml/*.yml file directly under dir as a
// PluginManifest, assigning ConfigOrder by sorted filename so the
// topological loader's tie-break matches a stable on-disk declaration order
// (spec §4.10).
func LoadManifests(dir string) ([]types.PluginManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin manifest dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	manifests := make([]types.PluginManifest, 0, len(names))
	for i, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", name, err)
		}
		var m types.PluginManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", name, err)
		}
		m.ConfigOrder = i
		manifests = append(manifests, m)
	}
	return manifests, nil
}
