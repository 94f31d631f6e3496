package types

import (
	"sync"
	"time"
)

// ModuleInterception controls how the worker runtime reacts to a forbidden
// module resolution at runtime (C8 defense in depth).
type ModuleInterception string

const (
	ModuleInterceptionStrict ModuleInterception = "strict"
	ModuleInterceptionWarn   ModuleInterception = "warn"
	ModuleInterceptionOff    ModuleInterception = "off"
)

// IntegrityAlgorithm names a PKI signature primitive accepted by the
// signature verifier (C3).
type IntegrityAlgorithm string

const (
	AlgorithmEd25519SHA256 IntegrityAlgorithm = "ed25519-sha256"
	AlgorithmRSASHA256     IntegrityAlgorithm = "rsa-sha256"
)

// Integrity is the manifest's optional integrity descriptor. Exactly one of
// LegacyHash or PKI is populated; the signature verifier detects the format
// rather than trusting a declared kind.
type Integrity struct {
	// LegacyHash is a 128-character lowercase hex SHA-512 content hash.
	LegacyHash string `json:"legacyHash,omitempty" yaml:"legacyHash,omitempty"`
	PKI        *PKI   `json:"pki,omitempty" yaml:"pki,omitempty"`
}

// PKI is the object-shaped integrity descriptor: an author-attributed
// detached signature over the plugin entry file's raw bytes.
type PKI struct {
	Algorithm IntegrityAlgorithm `json:"algorithm" yaml:"algorithm"`
	Signature string             `json:"signature" yaml:"signature"` // base64
	PublicKey string             `json:"publicKey" yaml:"publicKey"` // PEM
	Author    string             `json:"author,omitempty" yaml:"author,omitempty"`
	Timestamp int64              `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// WorkerRestartPolicy governs exponential-backoff crash recovery for one
// sandboxed worker (C10).
type WorkerRestartPolicy struct {
	MaxRestarts   int `json:"maxRestarts" yaml:"maxRestarts"`
	BackoffMs     int `json:"backoffMs" yaml:"backoffMs"`
	MaxBackoffMs  int `json:"maxBackoffMs" yaml:"maxBackoffMs"`
	ResetWindowMs int `json:"resetWindowMs" yaml:"resetWindowMs"`
}

// DefaultWorkerRestartPolicy matches the spec's default crash-recovery budget.
func DefaultWorkerRestartPolicy() WorkerRestartPolicy {
	return WorkerRestartPolicy{
		MaxRestarts:   5,
		BackoffMs:     500,
		MaxBackoffMs:  30000,
		ResetWindowMs: 60000,
	}
}

// AuditLogConfig configures the per-plugin audit logger (C2).
type AuditLogConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	BufferSize    int  `json:"bufferSize" yaml:"bufferSize"`
	FlushMs       int  `json:"flushMs" yaml:"flushMs"`
	MaxFileSizeMb int  `json:"maxFileSizeMb" yaml:"maxFileSizeMb"`
	MaxFiles      int  `json:"maxFiles" yaml:"maxFiles"`
}

// DefaultAuditLogConfig matches the defaults named in spec §4.9.
func DefaultAuditLogConfig() AuditLogConfig {
	return AuditLogConfig{
		Enabled:       true,
		BufferSize:    50,
		FlushMs:       5000,
		MaxFileSizeMb: 10,
		MaxFiles:      5,
	}
}

// SandboxPolicy is the manifest's optional sandbox configuration.
type SandboxPolicy struct {
	Enabled            bool                `json:"enabled" yaml:"enabled"`
	MemoryLimitMb      int                 `json:"memoryLimitMb" yaml:"memoryLimitMb"`
	CPUTimeoutMs       int                 `json:"cpuTimeoutMs" yaml:"cpuTimeoutMs"`
	RestartPolicy      WorkerRestartPolicy `json:"restartPolicy" yaml:"restartPolicy"`
	BlockedModules     []string            `json:"blockedModules,omitempty" yaml:"blockedModules,omitempty"`
	AllowedModules     []string            `json:"allowedModules,omitempty" yaml:"allowedModules,omitempty"`
	ModuleInterception ModuleInterception  `json:"moduleInterception" yaml:"moduleInterception"`
	AuditLog           AuditLogConfig      `json:"auditLog" yaml:"auditLog"`
}

// DefaultSandboxPolicy is applied when a manifest declares itself sandboxed
// but omits the sandbox block.
func DefaultSandboxPolicy() SandboxPolicy {
	return SandboxPolicy{
		Enabled:            true,
		MemoryLimitMb:      256,
		CPUTimeoutMs:       60000,
		RestartPolicy:      DefaultWorkerRestartPolicy(),
		ModuleInterception: ModuleInterceptionStrict,
		AuditLog:           DefaultAuditLogConfig(),
	}
}

// Capabilities restricts which host-resident provider ids a plugin may use.
type Capabilities struct {
	AllowedProviders []string `json:"allowedProviders,omitempty" yaml:"allowedProviders,omitempty"`
}

// PluginManifest is a plugin's identity and policy (spec §3).
type PluginManifest struct {
	Name                string         `json:"name" yaml:"name"`
	Version             string         `json:"version" yaml:"version"`
	EntryPath           string         `json:"entryPath,omitempty" yaml:"entryPath,omitempty"`
	Services            []string       `json:"services,omitempty" yaml:"services,omitempty"`
	ServiceDependencies []string       `json:"serviceDependencies,omitempty" yaml:"serviceDependencies,omitempty"`
	Integrity           *Integrity     `json:"integrity,omitempty" yaml:"integrity,omitempty"`
	Sandbox             *SandboxPolicy `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	Capabilities        *Capabilities  `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Config              map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// ConfigOrder is the plugin's stable position in the on-disk/config-file
	// declaration order, used as the topological loader's tie-break.
	ConfigOrder int `json:"-" yaml:"-"`
}

// ToolParameterSchema is a minimal, portable JSON-schema-shaped description
// of a tool's arguments, re-encodable over the wire to the host.
type ToolParameterSchema struct {
	Type       string                         `json:"type"`
	Properties map[string]ToolParameterSchema `json:"properties,omitempty"`
	Required   []string                       `json:"required,omitempty"`
	Items      *ToolParameterSchema           `json:"items,omitempty"`
	Enum       []any                          `json:"enum,omitempty"`
}

// ToolDescriptor is the wire-safe description of a tool, used by the host
// registry and serialized to workers/callers. It carries no executor.
type ToolDescriptor struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Parameters  ToolParameterSchema `json:"parameters"`
}

// ProviderDescriptor is the host-visible summary of an LLM provider hook;
// the streaming chat surface stays host-resident (spec §4.4).
type ProviderDescriptor struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// GuideDescriptor names a system-prompt-contributing guide.
type GuideDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommandDescriptor names a plugin-provided slash command.
type CommandDescriptor struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// HookSummary is what INIT_COMPLETE reports back to the sandbox manager:
// metadata only, never live callables (those stay in the worker).
type HookSummary struct {
	Tools     []ToolDescriptor     `json:"tools,omitempty"`
	Providers []ProviderDescriptor `json:"providers,omitempty"`
	Guides    []GuideDescriptor    `json:"guides,omitempty"`
	Commands  []CommandDescriptor  `json:"commands,omitempty"`
	Listeners []string             `json:"listeners,omitempty"`
	UIs       []string             `json:"uis,omitempty"`
}

// ToolInvocationContext travels with every INVOKE_TOOL call.
type ToolInvocationContext struct {
	WorkingDirectory string   `json:"workingDirectory"`
	AllowedPaths     []string `json:"allowedPaths,omitempty"`
}

// ToolCallRequest/ToolCallResult are the shapes that cross the cognition-loop
// boundary (external to this package's own concern, but defined here since
// the host-side tool proxy both originates and terminates them).
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ToolCallResult struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	IsError bool   `json:"isError"`
}

// AuditLevel is the severity of one audit log entry.
type AuditLevel string

const (
	AuditLevelInfo  AuditLevel = "info"
	AuditLevelWarn  AuditLevel = "warn"
	AuditLevelError AuditLevel = "error"
	AuditLevelAudit AuditLevel = "audit"
)

// AuditCategory buckets the audit log entry by subsystem.
type AuditCategory string

const (
	AuditCategoryRPC       AuditCategory = "rpc"
	AuditCategoryWorker    AuditCategory = "worker"
	AuditCategoryTool      AuditCategory = "tool"
	AuditCategoryLifecycle AuditCategory = "lifecycle"
)

// AuditLogEntry is the JSONL record shape (spec §3, §6).
type AuditLogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      AuditLevel     `json:"level"`
	PluginName string         `json:"pluginName"`
	Category   AuditCategory  `json:"category"`
	Operation  string         `json:"operation"`
	Method     string         `json:"method,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs *int64         `json:"durationMs,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PendingRPC is one in-flight host→worker request awaiting a reply.
type PendingRPC struct {
	ID        string
	Timer     *time.Timer
	Done      chan RPCOutcome
	StartedAt time.Time
}

// RPCOutcome is delivered exactly once to a PendingRPC's Done channel.
type RPCOutcome struct {
	Payload map[string]any
	Err     error
}

// SandboxedWorkerState is everything the sandbox manager tracks for one live
// plugin (spec §3). All mutable fields are guarded by Mu.
type SandboxedWorkerState struct {
	Mu sync.Mutex

	PluginName     string
	Manifest       PluginManifest
	Hooks          HookSummary
	MemoryLimitMb  int
	PendingRPCs    map[string]*PendingRPC
	LastHeartbeat  time.Time
	HeartbeatEvery time.Duration
	CheckInterval  time.Duration
	Subscriptions  map[string]map[string]struct{} // eventType -> set of subscription ids
	CrashCount     int
	LastCrash      time.Time
	RestartPolicy  WorkerRestartPolicy
	IsRestarting   bool
	PoolManaged    bool
}

// NewSandboxedWorkerState constructs an empty tracking record for a plugin
// about to be initialized.
func NewSandboxedWorkerState(name string, manifest PluginManifest, policy WorkerRestartPolicy) *SandboxedWorkerState {
	return &SandboxedWorkerState{
		PluginName:     name,
		Manifest:       manifest,
		PendingRPCs:    make(map[string]*PendingRPC),
		Subscriptions:  make(map[string]map[string]struct{}),
		RestartPolicy:  policy,
		HeartbeatEvery: 30 * time.Second,
		CheckInterval:  45 * time.Second,
	}
}
