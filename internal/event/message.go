package event

import "time"

// MessageType classifies a streamed message.
type MessageType string

// Message types, following the Web of Things interaction vocabulary.
const (
	MessageEvent          MessageType = "event"
	MessagePropertyStatus MessageType = "propertyStatus"
	MessageActionStatus   MessageType = "actionStatus"
)

// Message is one streamed notification.
type Message struct {
	Seq         uint64         `json:"seq"`
	MessageType MessageType    `json:"messageType"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data"`
}

// NewMessage builds a message whose data is keyed by the emitting
// interaction's name.
//
// Example:
//
//	event.NewMessage(event.MessageActionStatus, "average_data", snapshot)
//	// {"messageType":"actionStatus","data":{"average_data":{...}}}
func NewMessage(t MessageType, name string, payload any) Message {
	return Message{
		MessageType: t,
		Timestamp:   time.Now().UTC(),
		Data:        map[string]any{name: payload},
	}
}
