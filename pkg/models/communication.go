package models

// CommunicationType classifies a normalized backend event.
type CommunicationType string

const (
	CommMessage      CommunicationType = "message"
	CommToolCall     CommunicationType = "tool_call"
	CommReflection   CommunicationType = "reflection"
	CommHandoff      CommunicationType = "handoff"
	CommTableResults CommunicationType = "table_results"
)

// ParseCommunicationType maps a loosely typed backend value onto a known type.
// Unknown values default to CommMessage.
func ParseCommunicationType(s string) CommunicationType {
	switch t := CommunicationType(s); t {
	case CommMessage, CommToolCall, CommReflection, CommHandoff, CommTableResults:
		return t
	default:
		return CommMessage
	}
}

// Status is the progress of a communication.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus maps a backend status onto a known Status, falling back to def.
func ParseStatus(s string, def Status) Status {
	switch st := Status(s); st {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return st
	default:
		return def
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ToolCall is a single tool invocation made by an agent.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Status    Status                 `json:"status,omitempty"`
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	ToolCallID string   `json:"toolCallId"`
	Name       string   `json:"name,omitempty"`
	Success    bool     `json:"success"`
	Summary    string   `json:"summary,omitempty"`
	Items      []string `json:"items,omitempty"`
	Raw        string   `json:"raw,omitempty"`
}

// Communication is the normalized, UI-ready form of one backend event.
type Communication struct {
	ID          string            `json:"id"`
	Timestamp   string            `json:"timestamp"`
	Agent       string            `json:"agent"`
	Type        CommunicationType `json:"type"`
	Simplified  string            `json:"simplified"`
	FullContent string            `json:"fullContent,omitempty"`
	ToolCalls   []ToolCall        `json:"toolCalls,omitempty"`
	Results     []ToolResult      `json:"results,omitempty"`
	Status      Status            `json:"status"`
	TableData   *ParsedTable      `json:"tableData,omitempty"`
}

// Body returns the text a table scan should look at: the full content when
// present, otherwise the simplified line.
func (c Communication) Body() string {
	if c.FullContent != "" {
		return c.FullContent
	}
	return c.Simplified
}
