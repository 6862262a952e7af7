package session

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/thebtf/lobbywatch/internal/textutil"
	"github.com/thebtf/lobbywatch/pkg/models"
)

const (
	systemAgent      = "system"
	simplifiedMaxLen = 150
)

// newID returns id, or a generated id scoped to agent when id is empty.
func newID(id, agent string) string {
	if id != "" {
		return id
	}
	if agent == "" {
		agent = systemAgent
	}
	return agent + "_" + uuid.NewString()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// summarize cuts text to a single short line.
func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= simplifiedMaxLen {
		return text
	}
	cut := textutil.Cut(text, simplifiedMaxLen)
	if i := strings.LastIndexByte(cut, ' '); i > simplifiedMaxLen/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

func fromAgentCommunication(msg models.WireMessage) (models.Communication, error) {
	var d models.AgentCommunicationData
	if err := msg.DecodeData(&d); err != nil {
		return models.Communication{}, fmt.Errorf("decode agent_communication: %w", err)
	}
	agent := orDefault(d.Agent, systemAgent)
	simplified := d.Simplified
	if strings.TrimSpace(simplified) == "" {
		simplified = summarize(d.FullContent)
	}
	return models.Communication{
		ID:          newID(d.ID, agent),
		Timestamp:   msg.Timestamp,
		Agent:       agent,
		Type:        models.ParseCommunicationType(d.Type),
		Simplified:  orDefault(simplified, "(no content)"),
		FullContent: d.FullContent,
		ToolCalls:   d.ToolCalls,
		Results:     d.Results,
		Status:      models.ParseStatus(d.Status, models.StatusCompleted),
	}, nil
}

func fromToolCallStart(msg models.WireMessage) (models.Communication, error) {
	var d models.ToolCallStartData
	if err := msg.DecodeData(&d); err != nil {
		return models.Communication{}, fmt.Errorf("decode tool_call_start: %w", err)
	}
	agent := orDefault(d.Agent, systemAgent)
	name := orDefault(d.Name, "tool")
	id := newID(d.ID, agent)

	full := ""
	if len(d.Arguments) > 0 {
		if args, err := json.MarshalIndent(d.Arguments, "", "  "); err == nil {
			full = fmt.Sprintf("Calling %s with arguments:\n%s", name, args)
		}
	}
	return models.Communication{
		ID:          id,
		Timestamp:   msg.Timestamp,
		Agent:       agent,
		Type:        models.CommToolCall,
		Simplified:  fmt.Sprintf("Calling %s", name),
		FullContent: full,
		ToolCalls: []models.ToolCall{{
			ID:        id,
			Name:      name,
			Arguments: d.Arguments,
			Status:    models.StatusInProgress,
		}},
		Status: models.StatusInProgress,
	}, nil
}

func fromToolCallResult(msg models.WireMessage) (models.Communication, error) {
	var d models.ToolCallResultData
	if err := msg.DecodeData(&d); err != nil {
		return models.Communication{}, fmt.Errorf("decode tool_call_result: %w", err)
	}
	agent := orDefault(d.Agent, systemAgent)
	name := orDefault(d.Name, "tool")
	id := newID(d.ID, agent)
	success := d.Success == nil || *d.Success

	status := models.StatusCompleted
	outcome := "completed"
	if !success {
		status = models.StatusFailed
		outcome = "failed"
	}

	raw := rawResult(d)
	result := models.ToolResult{
		ToolCallID: id,
		Name:       name,
		Success:    success,
		Summary:    d.Summary,
		Raw:        raw,
	}

	var full strings.Builder
	if d.Summary != "" {
		full.WriteString(d.Summary)
	}
	if det := d.Details; det != nil {
		result.Items = det.Items
		if det.Title != "" {
			if full.Len() > 0 {
				full.WriteString("\n\n")
			}
			full.WriteString(det.Title)
			if det.Count > 0 {
				fmt.Fprintf(&full, " (%d)", det.Count)
			}
		}
		for _, item := range det.Items {
			fmt.Fprintf(&full, "\n- %s", item)
		}
	}
	if full.Len() == 0 {
		full.WriteString(raw)
	}

	return models.Communication{
		ID:          id,
		Timestamp:   msg.Timestamp,
		Agent:       agent,
		Type:        models.CommToolCall,
		Simplified:  orDefault(summarize(d.Summary), fmt.Sprintf("%s %s", name, outcome)),
		FullContent: strings.TrimSpace(full.String()),
		ToolCalls:   []models.ToolCall{{ID: id, Name: name, Status: status}},
		Results:     []models.ToolResult{result},
		Status:      status,
	}, nil
}

// rawResult returns the tool output as text, unquoting JSON strings.
func rawResult(d models.ToolCallResultData) string {
	if d.Details != nil && d.Details.RawResult != "" {
		return d.Details.RawResult
	}
	if len(d.Result) == 0 || string(d.Result) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(d.Result, &s); err == nil {
		return s
	}
	return string(d.Result)
}

func fromInvestigationComplete(msg models.WireMessage) (models.Communication, error) {
	var d models.InvestigationCompleteData
	if err := msg.DecodeData(&d); err != nil {
		return models.Communication{}, fmt.Errorf("decode investigation_complete: %w", err)
	}
	agent := orDefault(d.Agent, systemAgent)
	text := orDefault(d.Message, orDefault(msg.Message, "Investigation complete"))
	return models.Communication{
		ID:          newID(d.ID, agent),
		Timestamp:   msg.Timestamp,
		Agent:       agent,
		Type:        models.CommMessage,
		Simplified:  summarize(text),
		FullContent: orDefault(d.Summary, text),
		Status:      models.StatusCompleted,
	}, nil
}

// fromInvestigationConcluded returns the pre-parsed table (nil when the
// payload has none) and the conclusion summary message.
func fromInvestigationConcluded(msg models.WireMessage) (*models.ParsedTable, models.Communication, error) {
	var d models.ConcludedData
	if err := msg.DecodeData(&d); err != nil {
		return nil, models.Communication{}, fmt.Errorf("decode investigation_concluded: %w", err)
	}
	agent := orDefault(d.Agent, systemAgent)
	table := d.TableData.ToParsedTable()

	text := orDefault(d.ConclusionMessage, orDefault(msg.Message, "Investigation concluded"))
	var full strings.Builder
	full.WriteString(text)
	if d.Status != "" {
		fmt.Fprintf(&full, "\nStatus: %s", d.Status)
	}
	switch {
	case table != nil:
		fmt.Fprintf(&full, "\nResults table: %d members", table.TotalMembers)
	case d.TableStatus != "":
		fmt.Fprintf(&full, "\nResults table: %s", d.TableStatus)
	case !d.TableAvailable:
		full.WriteString("\nResults table: not available")
	}

	summary := models.Communication{
		ID:          newID(d.ID, agent),
		Timestamp:   msg.Timestamp,
		Agent:       agent,
		Type:        models.CommMessage,
		Simplified:  summarize(text),
		FullContent: full.String(),
		Status:      models.StatusCompleted,
	}
	return table, summary, nil
}

func fromInvestigationError(msg models.WireMessage) models.Communication {
	text := msg.Text()
	if text == "" {
		var d struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if msg.DecodeData(&d) == nil {
			text = orDefault(d.Error, d.Message)
		}
	}
	text = orDefault(text, "Unknown investigation error")
	class := Classify(text)
	return models.Communication{
		ID:          newID("", systemAgent),
		Timestamp:   msg.Timestamp,
		Agent:       systemAgent,
		Type:        models.CommMessage,
		Simplified:  Explain(class),
		FullContent: fmt.Sprintf("Investigation error (%s): %s", class, text),
		Status:      models.StatusFailed,
	}
}

func fromConnectionError(msg models.WireMessage) models.Communication {
	text := orDefault(msg.Text(), "Unknown error")
	return models.Communication{
		ID:          newID("", systemAgent),
		Timestamp:   msg.Timestamp,
		Agent:       systemAgent,
		Type:        models.CommMessage,
		Simplified:  "Connection problem: " + summarize(text),
		FullContent: text,
		Status:      models.StatusFailed,
	}
}

func criticalError(msg models.WireMessage, err error) models.Communication {
	return models.Communication{
		ID:          newID("", systemAgent),
		Timestamp:   orDefault(msg.Timestamp, models.Now()),
		Agent:       systemAgent,
		Type:        models.CommMessage,
		Simplified:  fmt.Sprintf("A critical error occurred while processing a %s message", orDefault(string(msg.Type), "backend")),
		FullContent: err.Error(),
		Status:      models.StatusFailed,
	}
}

func statusMessage(msg models.WireMessage, text string) models.Communication {
	return models.Communication{
		ID:         newID("", systemAgent),
		Timestamp:  msg.Timestamp,
		Agent:      systemAgent,
		Type:       models.CommMessage,
		Simplified: orDefault(msg.Message, text),
		Status:     models.StatusCompleted,
	}
}
