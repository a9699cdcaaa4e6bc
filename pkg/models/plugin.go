package models

import "context"

// ContentBlockType tags the shape of a ContentBlock's Data/Payload.
type ContentBlockType string

const (
	ContentText        ContentBlockType = "text"
	ContentCameraLive  ContentBlockType = "camera_live"
	ContentImage       ContentBlockType = "image"
	ContentTable       ContentBlockType = "table"
	ContentConfigPrompt ContentBlockType = "config_prompt"
)

// ContentBlock is one rendered unit of a Result.
type ContentBlock struct {
	Type    ContentBlockType
	Data    string
	Title   string
	Summary string
	Payload map[string]any
}

// ResultStatus is the outcome of a plugin execution.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusPartial ResultStatus = "partial"
	StatusError   ResultStatus = "error"
)

// ResultMetadata carries execution bookkeeping alongside a Result.
type ResultMetadata struct {
	DurationMS   int64
	Cached       bool
	Truncated    bool
	SourceURL    string
	DeviceCount  int
	Extra        map[string]any
}

// Result is what a plugin's Execute returns.
type Result struct {
	PluginID string
	Status   ResultStatus
	Content  []ContentBlock
	Metadata ResultMetadata
	Err      error // set when Status == StatusError
}

// LlmClient is the out-of-scope LLM collaborator. The core
// only depends on this interface; a concrete implementation is an external
// collaborator and is not part of this module.
type LlmClient interface {
	Summarize(ctx context.Context, text string, maxChars int) (string, error)
	Describe(ctx context.Context, prompt string, image []byte) (string, error)
}

// CancellationToken lets the dispatcher and watch scheduler signal
// cooperative cancellation to plugin executions.
type CancellationToken interface {
	Done() <-chan struct{}
	Err() error
}

// ServiceBundle is the explicit "services" set threaded through
// PluginContext in place of ambient global singletons.
type ServiceBundle struct {
	Config      ConfigReader
	EventLog    EventAppender
	Persistence PersistenceAccessor
	LLM         LlmClient // may be nil
	Scope       Scope
	Cancel      CancellationToken
}

// ConfigReader is the subset of ConfigStore a plugin needs.
type ConfigReader interface {
	Get(key string) (any, bool)
}

// EventAppender is the subset of EventLog a plugin needs.
type EventAppender interface {
	Append(eventType string, payload map[string]any) (uint64, error)
}

// PersistenceAccessor is the subset of PersistenceStore a plugin needs to
// record observed devices, services, and content snapshots.
type PersistenceAccessor interface {
	UpsertDevice(ctx context.Context, d *Device) (*Device, error)
	UpsertService(ctx context.Context, s *Service) (*Service, error)
	SaveSnapshot(ctx context.Context, snap *ContentSnapshot) (*ContentSnapshot, error)
}

// PluginContext is passed to every plugin lifecycle method.
type PluginContext struct {
	RuntimePrivileged bool
	Services          ServiceBundle
}

// InvokeNative lets a plugin request a privileged-runtime primitive
// (raw socket, filesystem, subprocess) through a uniform indirection point.
// Concrete probe implementations that need it supply their own closure;
// the core never calls a raw syscall directly.
type InvokeNative func(ctx context.Context, command string, args map[string]any) (any, error)

// Plugin is the capability record every probe implementation satisfies.
type Plugin interface {
	ID() string
	SupportedIntents() []Intent
	Priority() int
	BrowserCompatible() bool
	CanHandle(text string, pctx *PluginContext) bool
	Execute(ctx context.Context, text string, pctx *PluginContext) (*Result, error)
	Initialize(pctx *PluginContext) error
	Dispose() error
}
