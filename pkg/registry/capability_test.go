package registry

import (
	"context"
	"testing"

	"github.com/cuemby/warren/pkg/sandbox"
	"github.com/cuemby/warren/pkg/types"
)

func TestToolRegistryRegisterListGetInvoke(t *testing.T) {
	r := NewToolRegistry()
	called := false
	r.RegisterAll("plugin-a", []sandbox.ProxyTool{
		{
			Descriptor: types.ToolDescriptor{ID: "search", Description: "search things"},
			Execute: func(ctx context.Context, input map[string]any, invCtx types.ToolInvocationContext) (types.ToolCallResult, error) {
				called = true
				return types.ToolCallResult{Text: "ok"}, nil
			},
		},
	})

	list := r.ListTools("plugin-a")
	if len(list) != 1 || list[0].ID != "search" {
		t.Fatalf("ListTools = %+v, want one tool named search", list)
	}

	desc, ok := r.GetTool("plugin-a", "search")
	if !ok || desc.ID != "search" {
		t.Fatalf("GetTool = %+v, %v", desc, ok)
	}

	result, err := r.Invoke(context.Background(), "plugin-a", "search", nil, types.ToolInvocationContext{})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if !called || result.Text != "ok" {
		t.Fatalf("Invoke did not execute the registered tool: called=%v result=%+v", called, result)
	}
}

func TestToolRegistryInvokeUnknownToolFails(t *testing.T) {
	r := NewToolRegistry()
	_, err := r.Invoke(context.Background(), "plugin-a", "missing", nil, types.ToolInvocationContext{})
	if err == nil {
		t.Fatal("expected an error invoking an unregistered tool")
	}
}

func TestToolRegistryUnregisterClearsPlugin(t *testing.T) {
	r := NewToolRegistry()
	r.RegisterAll("plugin-a", []sandbox.ProxyTool{{Descriptor: types.ToolDescriptor{ID: "x"}}})
	r.Unregister("plugin-a")
	if list := r.ListTools("plugin-a"); len(list) != 0 {
		t.Fatalf("expected no tools after Unregister, got %+v", list)
	}
}

func TestProviderRegistryShadowsOnDuplicateID(t *testing.T) {
	r := NewProviderRegistry()
	r.Register(types.ProviderDescriptor{ID: "openai", Name: "first"})
	r.Register(types.ProviderDescriptor{ID: "openai", Name: "second"})

	got, ok := r.Get("openai")
	if !ok || got.Name != "second" {
		t.Fatalf("expected shadowing registration to win, got %+v", got)
	}
	if list := r.ListProviders(); len(list) != 1 {
		t.Fatalf("expected exactly one provider entry after shadowing, got %d", len(list))
	}
}

func TestGuideRegistryResolvesSystemPrompt(t *testing.T) {
	r := NewGuideRegistry()
	r.Register(types.GuideDescriptor{ID: "style", Name: "Style Guide"}, func(id string) (string, error) {
		return "be concise", nil
	})
	prompt, err := r.GetSystemPrompt("style")
	if err != nil || prompt != "be concise" {
		t.Fatalf("GetSystemPrompt = %q, %v", prompt, err)
	}
}

func TestGuideRegistryUnknownGuideFails(t *testing.T) {
	r := NewGuideRegistry()
	if _, err := r.GetSystemPrompt("missing"); err == nil {
		t.Fatal("expected an error for an unregistered guide")
	}
}

func TestCommandRegistryListAndGet(t *testing.T) {
	r := NewCommandRegistry()
	r.Register(types.CommandDescriptor{ID: "deploy", Description: "deploys"})
	if _, ok := r.Get("deploy"); !ok {
		t.Fatal("expected deploy command to be registered")
	}
	if len(r.List()) != 1 {
		t.Fatalf("expected one command, got %d", len(r.List()))
	}
}
