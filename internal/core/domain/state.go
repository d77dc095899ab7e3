package domain

import "encoding/json"

// Phase is the lifecycle stage of an analysis run.
type Phase string

const (
	PhaseInitialization     Phase = "initialization"
	PhaseNeedsClarification Phase = "needs_clarification"
	PhaseAnalysis           Phase = "analysis"
	PhaseAwaitingInput      Phase = "awaiting_input"
	PhaseFinalization       Phase = "finalization"
	PhaseComplete           Phase = "complete"
)

// Role identifies who authored a message in the model conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is a single turn in the model conversation. Tool results carry
// the originating call's ID and tool name.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// maxTraceEntries bounds the reasoning trace; older entries are dropped
// first and a marker records the truncation.
const maxTraceEntries = 200

// TraceTruncatedMarker is the first trace line after a truncation.
const TraceTruncatedMarker = "[trace truncated]"

// AgentState is everything an analysis run knows. Pointer fields mean
// "absent". The orchestrator updates the state atomically per stage: each
// stage works on its own fields and publishes the whole state once.
type AgentState struct {
	Process                *ProcessData     `json:"process,omitempty"`
	Constraints            *Constraints     `json:"constraints,omitempty"`
	Profile                *BusinessProfile `json:"profile,omitempty"`
	Insight                *AnalysisInsight `json:"insight,omitempty"`
	Confidence             *ConfidenceScore `json:"confidence,omitempty"`
	DataGaps               []string         `json:"data_gaps,omitempty"`
	Messages               []Message        `json:"messages,omitempty"`
	ReasoningTrace         []string         `json:"reasoning_trace,omitempty"`
	Phase                  Phase            `json:"phase"`
	NeedsClarification     bool             `json:"needs_clarification"`
	ClarificationQuestions []string         `json:"clarification_questions,omitempty"`
	UserResponse           string           `json:"user_response,omitempty"`
	FeedbackHistory        string           `json:"feedback_history,omitempty"`
	Error                  string           `json:"error,omitempty"`
	AnalysisMode           string           `json:"analysis_mode,omitempty"`
	Provider               string           `json:"provider,omitempty"`
	CycleCount             int              `json:"cycle_count"`
	MaxCyclesOverride      *int             `json:"max_cycles_override,omitempty"`
}

// NewInitialState builds the starting state for a run.
func NewInitialState(process *ProcessData, constraints *Constraints, profile *BusinessProfile, mode, provider string) *AgentState {
	return &AgentState{
		Process:      process,
		Constraints:  constraints,
		Profile:      profile,
		Phase:        PhaseInitialization,
		AnalysisMode: mode,
		Provider:     provider,
	}
}

// AppendTrace adds one line to the reasoning trace, dropping from the
// oldest end once the cap is reached.
func (s *AgentState) AppendTrace(entry string) {
	s.ReasoningTrace = append(s.ReasoningTrace, entry)
	if len(s.ReasoningTrace) <= maxTraceEntries {
		return
	}
	overflow := len(s.ReasoningTrace) - maxTraceEntries
	kept := s.ReasoningTrace[overflow:]
	if kept[0] != TraceTruncatedMarker {
		trimmed := make([]string, 0, maxTraceEntries)
		trimmed = append(trimmed, TraceTruncatedMarker)
		trimmed = append(trimmed, kept[1:]...)
		kept = trimmed
	}
	s.ReasoningTrace = kept
}

// LastMessage returns the most recent conversation message, if any.
func (s *AgentState) LastMessage() (*Message, bool) {
	if len(s.Messages) == 0 {
		return nil, false
	}
	return &s.Messages[len(s.Messages)-1], true
}

// Clone deep-copies the state so a stage can work without aliasing the
// published copy.
func (s *AgentState) Clone() *AgentState {
	raw, err := json.Marshal(s)
	if err != nil {
		cp := *s
		return &cp
	}
	var cp AgentState
	if err := json.Unmarshal(raw, &cp); err != nil {
		fallback := *s
		return &fallback
	}
	return &cp
}
