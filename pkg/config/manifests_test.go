package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifestsAssignsConfigOrderByFilename(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
	write("b-plugin.yaml", "name: b\nversion: \"1.0\"\n")
	write("a-plugin.yaml", "name: a\nversion: \"1.0\"\n")
	write("readme.txt", "not a manifest")

	manifests, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("LoadManifests failed: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("len(manifests) = %d, want 2", len(manifests))
	}
	if manifests[0].Name != "a" || manifests[0].ConfigOrder != 0 {
		t.Errorf("manifests[0] = %+v", manifests[0])
	}
	if manifests[1].Name != "b" || manifests[1].ConfigOrder != 1 {
		t.Errorf("manifests[1] = %+v", manifests[1])
	}
}

func TestLoadManifestsMissingDirReturnsError(t *testing.T) {
	if _, err := LoadManifests(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected an error for a nonexistent directory")
	}
}
