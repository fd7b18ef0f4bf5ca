package queue

import (
	"encoding/json"
	"errors"
)

// MessageVersion is the current envelope version.
const MessageVersion = 1

// Message announces one new analysis run. Row carries the run as a JSON
// document in the same shape as a partition part file line.
type Message struct {
	RequestID  string          `json:"requestId"`
	EnqueuedAt string          `json:"enqueuedAt"`
	Version    int             `json:"version"`
	Row        json.RawMessage `json:"row"`
}

var errNoRow = errors.New("message has no row")

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if len(msg.Row) == 0 || string(msg.Row) == "null" {
		return msg, errNoRow
	}
	return msg, nil
}
