package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType distinguishes synchronization messages.
type MessageType string

const (
	// MessageSetup carries the full graph to a newly registered client.
	MessageSetup MessageType = "setup"
	// MessagePush carries revisions committed on the authoritative side.
	MessagePush MessageType = "push"
	// MessageCommit carries an edit proposed by a client.
	MessageCommit MessageType = "commit"
	// MessageError reports a rejected client message.
	MessageError MessageType = "error"
)

// Message is the JSON document exchanged between the authoritative replica
// and its clients.
type Message struct {
	Type MessageType `json:"type"`
	// Seq is stamped by the sender's logical clock.
	Seq uint64 `json:"seq,omitempty"`
	// Base is the latest revision the client had seen when it made its edit.
	Base      RevisionNumber `json:"base,omitempty"`
	Revisions []Revision     `json:"revisions,omitempty"`
	Changes   []EntityChange `json:"changes,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// EncodeMessage serializes a message to JSON text.
// HTML escaping is disabled so encoded attribute strings stay byte-identical.
func EncodeMessage(m Message) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// DecodeMessage parses JSON text into a message.
func DecodeMessage(text string) (Message, error) {
	var m Message
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}
