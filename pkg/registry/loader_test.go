package registry

import (
	"context"
	"reflect"
	"testing"

	"github.com/cuemby/warren/pkg/sandbox"
	"github.com/cuemby/warren/pkg/types"
)

func manifest(name string, order int, provides, deps []string) types.PluginManifest {
	return types.PluginManifest{Name: name, ConfigOrder: order, Services: provides, ServiceDependencies: deps}
}

func TestLoaderOrderFromSpecExample(t *testing.T) {
	// spec §4.10 worked example: C{deps:[B]}, B{deps:[A], provides:[B]}, A{provides:[A]}
	// declared in config order [C, B, A]; expected load order A, B, C.
	plugins := []types.PluginManifest{
		manifest("C", 0, nil, []string{"B"}),
		manifest("B", 1, []string{"B"}, []string{"A"}),
		manifest("A", 2, []string{"A"}, nil),
	}

	order, err := NewLoader().Order(plugins)
	if err != nil {
		t.Fatalf("Order returned error: %v", err)
	}
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("Order = %v, want %v", order, want)
	}
}

func TestLoaderIndependentPluginsPreserveConfigOrder(t *testing.T) {
	plugins := []types.PluginManifest{
		manifest("p1", 0, nil, nil),
		manifest("p2", 1, nil, nil),
	}
	order, err := NewLoader().Order(plugins)
	if err != nil {
		t.Fatalf("Order returned error: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"p1", "p2"}) {
		t.Fatalf("Order = %v, want [p1 p2]", order)
	}
}

func TestLoaderDetectsCircularDependency(t *testing.T) {
	plugins := []types.PluginManifest{
		manifest("A", 0, []string{"a"}, []string{"b"}),
		manifest("B", 1, []string{"b"}, []string{"a"}),
	}
	_, err := NewLoader().Order(plugins)
	if err == nil {
		t.Fatal("expected circular dependency to be detected")
	}
}

func TestLoaderUnknownDependencyIsNotFatal(t *testing.T) {
	plugins := []types.PluginManifest{
		manifest("A", 0, nil, []string{"does-not-exist"}),
	}
	order, err := NewLoader().Order(plugins)
	if err != nil {
		t.Fatalf("unknown dependency should warn, not fail: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"A"}) {
		t.Fatalf("Order = %v, want [A]", order)
	}
}

func TestLoadAllAbortsBatchOnFailureWithoutRollback(t *testing.T) {
	plugins := []types.PluginManifest{
		manifest("A", 0, nil, nil),
		manifest("B", 1, nil, nil),
	}
	loadedNames := []string{}
	load := func(ctx context.Context, m types.PluginManifest) (*sandbox.LoadResult, error) {
		loadedNames = append(loadedNames, m.Name)
		if m.Name == "B" {
			return nil, errBoom
		}
		return &sandbox.LoadResult{}, nil
	}

	result, err := NewLoader().LoadAll(context.Background(), plugins, load)
	if err == nil {
		t.Fatal("expected LoadAll to return an error when a plugin fails")
	}
	batchErr, ok := err.(*BatchError)
	if !ok {
		t.Fatalf("expected *BatchError, got %T", err)
	}
	if batchErr.FailedPlugin != "B" {
		t.Errorf("FailedPlugin = %q, want B", batchErr.FailedPlugin)
	}
	if !reflect.DeepEqual(batchErr.LoadedBefore, []string{"A"}) {
		t.Errorf("LoadedBefore = %v, want [A]", batchErr.LoadedBefore)
	}
	if _, ok := result.Loaded["A"]; !ok {
		t.Error("expected A's result to remain in the batch result (no rollback)")
	}
	if _, ok := result.Loaded["B"]; ok {
		t.Error("B should not have a result since its load failed")
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
