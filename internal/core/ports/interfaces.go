package ports

import (
	"context"
	"errors"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// ErrNotFound is returned by repositories when a looked-up record does
// not exist. Callers map it to their own "missing" handling (the kernel
// answers 404).
var ErrNotFound = errors.New("record not found")

// ChatRequest is one model invocation.
type ChatRequest struct {
	Model       string
	Messages    []domain.Message
	Tools       []*domain.ToolDef
	Temperature float64
	MaxTokens   int
	// JSONOutput asks the provider for structured output where it supports
	// a native JSON mode; otherwise the prompt carries the instruction.
	JSONOutput bool
}

// ChatResponse is what a provider returned.
type ChatResponse struct {
	Content    string
	ToolCalls  []domain.ToolCall
	StopReason string
}

// ModelProvider abstracts one LLM backend (Anthropic, OpenAI, Ollama).
type ModelProvider interface {
	// Chat sends a conversation and returns the model's reply. Transport
	// failures, timeouts and empty replies come back as
	// domain.ModelTransientError.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// SupportsTools reports whether the backend can do native tool calling.
	SupportsTools() bool

	// Name returns the provider identifier ("anthropic", "openai", "ollama").
	Name() string
}

// ModelCall is one task-routed model invocation. Provider, Mode and Model
// are per-call overrides; empty values resolve through the configured
// preset and task settings.
type ModelCall struct {
	Task     domain.TaskName
	Provider string
	Mode     string
	Model    string
	Messages []domain.Message
	Tools    []*domain.ToolDef
}

// ModelGateway routes calls to the right provider and model per task and
// owns structured-output handling. Implementations classify failures into
// the domain error taxonomy so callers can tell an empty reply from a
// malformed one from a transport fault and apply retry policy.
type ModelGateway interface {
	// Generate runs the call and returns the reply text.
	Generate(ctx context.Context, call ModelCall) (string, error)

	// GenerateInsight runs the call expecting a structured analysis and
	// parses the reply into an AnalysisInsight. A reply that cannot be
	// parsed is a domain.ModelTransientError.
	GenerateInsight(ctx context.Context, call ModelCall) (*domain.AnalysisInsight, error)

	// Chat runs the call and returns the raw response, including any tool
	// calls the model issued.
	Chat(ctx context.Context, call ModelCall) (*ChatResponse, error)

	// SupportsTools reports whether the provider the name resolves to can
	// do native tool calling. Empty means the configured default provider.
	SupportsTools(provider string) bool
}

// CheckpointStore persists run state by thread so paused runs can resume.
// A missing entry is a valid miss, not an error.
type CheckpointStore interface {
	Get(ctx context.Context, threadID string) (*domain.AgentState, bool, error)
	Put(ctx context.Context, threadID string, state *domain.AgentState) error
	Delete(ctx context.Context, threadID string) error
}

// RunRecord is the persisted summary of one finished run.
type RunRecord struct {
	ID                  string   `json:"id"`
	ThreadID            string   `json:"thread_id"`
	UserID              string   `json:"user_id"`
	ProcessName         string   `json:"process_name"`
	Phase               string   `json:"phase"`
	IssueCount          int      `json:"issue_count"`
	RecommendationCount int      `json:"recommendation_count"`
	Confidence          float64  `json:"confidence"`
	Error               string   `json:"error,omitempty"`
	ReasoningTrace      []string `json:"reasoning_trace,omitempty"`
	CreatedAtUnix       int64    `json:"created_at_unix"`
	UpdatedAtUnix       int64    `json:"updated_at_unix"`
}

// RunHistoryRepository persists finished runs.
type RunHistoryRepository interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRunsByUser(ctx context.Context, userID string, limit int) ([]RunRecord, error)
}

// MemoryRepository persists analysis outcome records per process.
type MemoryRepository interface {
	SaveMemory(ctx context.Context, mem domain.AnalysisMemory) error
	ListMemories(ctx context.Context, processName string, limit int) ([]domain.AnalysisMemory, error)
}

// SettingsRepository is the minimal storage interface for the settings store.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}
