package socket

import (
	"encoding/json"
	"strings"
)

// Client -> server events.
const (
	JoinDocumentEvent = "joinDocument"
	EditEvent         = "edit"
	BoldEvent         = "bold"
	ItalicEvent       = "italic"
	UnderlineEvent    = "underline"
)

// Server -> client events.
const (
	LoadDocumentEvent = "loadDocument"
	UpdateTextEvent   = "updateText"
	SetBoldEvent      = "setBold"
	SetItalicEvent    = "setItalic"
	SetUnderlineEvent = "setUnderline"
	ErrorEvent        = "error"
)

// styleEvents maps each style toggle to the event peers receive.
var styleEvents = map[string]string{
	BoldEvent:      SetBoldEvent,
	ItalicEvent:    SetItalicEvent,
	UnderlineEvent: SetUnderlineEvent,
}

// Message is the frame envelope in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type EditPayload struct {
	DocID   string `json:"docId"`
	Content string `json:"content"`
}

type StylePayload struct {
	DocID   string `json:"docId"`
	Content bool   `json:"content"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: raw})
}

func errorFrame(message string) []byte {
	b, _ := encode(ErrorEvent, ErrorPayload{Message: message})
	return b
}

// parseDocID accepts either a bare JSON string or an object with a docId field.
func parseDocID(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		DocID string `json:"docId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return strings.TrimSpace(obj.DocID)
	}
	return ""
}
