package transport

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/thebtf/lobbywatch/pkg/models"
)

// DecodeEnvelope validates and decodes one inbound frame.
//
// Frames that are not JSON return ErrMalformedJSON. JSON that is not an object
// or lacks a string type or timestamp returns ErrInvalidEnvelope.
func DecodeEnvelope(raw []byte) (models.WireMessage, error) {
	if !json.Valid(raw) {
		return models.WireMessage{}, ErrMalformedJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return models.WireMessage{}, fmt.Errorf("%w: not an object", ErrInvalidEnvelope)
	}

	typ, ok := stringField(fields, "type")
	if !ok {
		return models.WireMessage{}, fmt.Errorf("%w: missing string type", ErrInvalidEnvelope)
	}
	ts, ok := stringField(fields, "timestamp")
	if !ok {
		return models.WireMessage{}, fmt.Errorf("%w: missing string timestamp", ErrInvalidEnvelope)
	}

	msg := models.WireMessage{
		Type:      models.MessageType(typ),
		Timestamp: ts,
	}
	msg.SessionID, _ = stringField(fields, "sessionId")
	msg.Message = textField(fields, "message")
	msg.Error = textField(fields, "error")
	if data, ok := fields["data"]; ok {
		msg.Data = data
	}
	return msg, nil
}

// parseErrorMessage builds the local error message dispatched for frames
// that could not be parsed at all.
func parseErrorMessage(err error) models.WireMessage {
	return models.WireMessage{
		Type:      models.MsgError,
		Timestamp: models.Now(),
		Message:   fmt.Sprintf("Failed to parse server message: %v", err),
	}
}

// stringField returns fields[key] when it is a JSON string.
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// textField returns a string field verbatim, or the raw JSON of a non-string value.
func textField(fields map[string]json.RawMessage, key string) string {
	if s, ok := stringField(fields, key); ok {
		return s
	}
	raw, ok := fields[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return ""
	}
	return string(raw)
}
