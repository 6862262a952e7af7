// Package models contains domain models for lobbywatch.
package models

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// MessageType is the discriminator carried in the "type" field of every wire message.
type MessageType string

// Inbound message types sent by the investigation backend.
const (
	MsgAgentCommunication       MessageType = "agent_communication"
	MsgToolCallStart            MessageType = "tool_call_start"
	MsgToolCallResult           MessageType = "tool_call_result"
	MsgInvestigationComplete    MessageType = "investigation_complete"
	MsgInvestigationConcluded   MessageType = "investigation_concluded"
	MsgInvestigationStarted     MessageType = "investigation_started"
	MsgFullInvestigationStarted MessageType = "full_investigation_started"
	MsgInvestigationStopped     MessageType = "investigation_stopped"
	MsgConnectionEstablished    MessageType = "connection_established"
	MsgInvestigationError       MessageType = "investigation_error"
	MsgError                    MessageType = "error"
)

// Outbound request types.
const (
	ReqStartInvestigation MessageType = "start_investigation"
	ReqStopInvestigation  MessageType = "stop_investigation"
)

// WireMessage is the JSON envelope received over the backend WebSocket.
// Type and Timestamp are mandatory; everything else depends on Type.
type WireMessage struct {
	Type      MessageType     `json:"type"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Text returns the first non-empty human-readable field of the envelope.
func (m WireMessage) Text() string {
	if m.Error != "" {
		return m.Error
	}
	return m.Message
}

// Mentions reports whether the error or message text contains substr, case-insensitively.
func (m WireMessage) Mentions(substr string) bool {
	return strings.Contains(strings.ToLower(m.Text()), strings.ToLower(substr))
}

// DecodeData unmarshals the message payload into v.
// A missing payload leaves v untouched.
func (m WireMessage) DecodeData(v interface{}) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// StartRequest asks the backend to begin an investigation.
type StartRequest struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"sessionId"`
	Company     string      `json:"company"`
	Bill        string      `json:"bill"`
	Description string      `json:"description,omitempty"`
}

// StopRequest asks the backend to cancel a running investigation.
type StopRequest struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
}

// AgentCommunicationData is the payload of an agent_communication message.
type AgentCommunicationData struct {
	ID          string       `json:"id"`
	Agent       string       `json:"agent"`
	Type        string       `json:"type"`
	Simplified  string       `json:"simplified"`
	FullContent string       `json:"fullContent"`
	ToolCalls   []ToolCall   `json:"toolCalls"`
	Results     []ToolResult `json:"results"`
	Status      string       `json:"status"`
}

// ToolCallStartData is the payload of a tool_call_start message.
type ToolCallStartData struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	Agent     string                 `json:"agent"`
	Status    string                 `json:"status"`
}

// ToolCallResultData is the payload of a tool_call_result message.
type ToolCallResultData struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Result  json.RawMessage `json:"result"`
	Summary string          `json:"summary"`
	Details *ResultDetails  `json:"details"`
	Success *bool           `json:"success"`
	Agent   string          `json:"agent"`
	Status  string          `json:"status"`
}

// ResultDetails is the display breakdown the backend attaches to tool results.
type ResultDetails struct {
	Title     string   `json:"title"`
	Items     []string `json:"items"`
	Count     int      `json:"count"`
	RawResult string   `json:"raw_result"`
}

// InvestigationCompleteData is the payload of an investigation_complete message.
type InvestigationCompleteData struct {
	ID      string `json:"id"`
	Agent   string `json:"agent"`
	Message string `json:"message"`
	Summary string `json:"summary"`
}

// ConcludedData is the payload of an investigation_concluded message.
type ConcludedData struct {
	ID                string     `json:"id"`
	Agent             string     `json:"agent"`
	Status            string     `json:"status"`
	TableAvailable    bool       `json:"table_available"`
	ConclusionMessage string     `json:"conclusion_message"`
	TableStatus       string     `json:"table_status"`
	TableData         *WireTable `json:"table_data"`
}

// Now returns the current time in the wire timestamp format.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
