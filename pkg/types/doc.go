/*
Package types defines the core data structures used throughout the plugin host.

This package contains the domain model shared by every other package: plugin
manifests and their sandbox policy, the capability surface handed to a plugin
factory, tools and their wire-safe descriptions, sandboxed worker state, and
the restart policy that governs crash recovery.

# Core Types

Plugin identity and policy:
  - PluginManifest: name, version, declared/required services, integrity
    descriptor, sandbox policy, allowed-provider capabilities.
  - SandboxPolicy: memory/cpu caps, restart policy, module allow/block lists,
    module interception mode, audit log configuration.
  - Integrity: either a legacy 128-hex content hash or a PKI descriptor.

Runtime state:
  - HookSummary: the hook metadata a worker reports after initialization
    (tool, provider, guide and command descriptors, listener and UI ids).
  - ToolDescriptor, ProviderDescriptor, GuideDescriptor, CommandDescriptor:
    wire-safe descriptions of those hooks, carrying no executors.
  - SandboxedWorkerState: everything the sandbox manager tracks for one live
    plugin — worker handle, pending RPCs, subscriptions, crash accounting.

All types except SandboxedWorkerState are plain data whose synchronization
is the owning package's responsibility (see pkg/sandbox, pkg/workerpool);
SandboxedWorkerState carries its own mutex, Mu.
*/
package types
