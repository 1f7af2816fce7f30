package provider

import "context"

// Provider is the trait-like capability every backend (local, cloud,
// tunnel, pool) implements. The orchestrator treats all variants uniformly
// through this interface; it never branches on concrete type.
type Provider interface {
	ID() string
	Descriptor() Descriptor
	Health(ctx context.Context) HealthStatus

	CreateSession(ctx context.Context, req *Request) (sessionID string, err error)
	SendPrompt(ctx context.Context, sessionID string, text string) error
	PollOutput(ctx context.Context, sessionID string) (*Chunk, error)
	GetSession(ctx context.Context, sessionID string) (*SessionState, bool)
	ApproveTool(ctx context.Context, sessionID string, approved bool) error
	ForkSession(ctx context.Context, sessionID string) (newSessionID string, err error)

	Stop(ctx context.Context, sessionID string) error
	Pause(ctx context.Context, sessionID string) error
	Resume(ctx context.Context, sessionID string) error

	ToolLog(ctx context.Context, sessionID string) ([]ToolLogEntry, error)
	PendingTool(ctx context.Context, sessionID string) (*PendingTool, error)
}
