package registry

import "testing"

func TestServiceRegistryRejectsDuplicateName(t *testing.T) {
	r := NewServiceRegistry()
	if err := r.Register("cache", "plugin-a"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register("cache", "plugin-b"); err == nil {
		t.Fatal("expected duplicate service name to be rejected")
	}
}

func TestServiceRegistryRejectsEmptyOrWhitespaceName(t *testing.T) {
	r := NewServiceRegistry()
	for _, name := range []string{"", "   ", "\t"} {
		if err := r.Register(name, "plugin-a"); err == nil {
			t.Fatalf("expected name %q to be rejected", name)
		}
	}
}

func TestServiceRegistryListReturnsSnapshotCopy(t *testing.T) {
	r := NewServiceRegistry()
	if err := r.Register("cache", "plugin-a"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	list := r.List()
	list[0].PluginName = "mutated"

	again := r.List()
	if again[0].PluginName != "plugin-a" {
		t.Fatalf("external mutation of List() leaked into the registry: %+v", again)
	}
}

func TestServiceRegistryUnregisterRemovesPluginsServices(t *testing.T) {
	r := NewServiceRegistry()
	_ = r.Register("cache", "plugin-a")
	_ = r.Register("queue", "plugin-a")
	_ = r.Register("search", "plugin-b")

	r.Unregister("plugin-a")

	if _, ok := r.Get("cache"); ok {
		t.Error("expected cache to be removed after Unregister")
	}
	if _, ok := r.Get("queue"); ok {
		t.Error("expected queue to be removed after Unregister")
	}
	if _, ok := r.Get("search"); !ok {
		t.Error("expected search (owned by a different plugin) to survive Unregister")
	}
}
